package models

import (
	"testing"
	"time"
)

func ts(sec int) time.Time {
	return time.Date(2025, 6, 1, 12, 0, sec, 0, time.UTC)
}

func TestConversationValidate(t *testing.T) {
	user := Message{ID: "m1", Role: RoleUser, Content: "hej", Timestamp: ts(0)}
	editor := Message{ID: "m2", Role: RoleEditorMate, Content: "ok", Timestamp: ts(1), ParentMessageID: ptr("m1")}

	tests := []struct {
		name     string
		messages []Message
		wantErr  bool
	}{
		{"empty conversation", nil, false},
		{"valid parent link", []Message{user, editor}, false},
		{
			"parent references later message",
			[]Message{
				{ID: "m1", Role: RoleEditorMate, Content: "x", Timestamp: ts(0), ParentMessageID: ptr("m2")},
				{ID: "m2", Role: RoleUser, Content: "y", Timestamp: ts(1)},
			},
			true,
		},
		{
			"parent references unknown message",
			[]Message{{ID: "m1", Role: RoleEditorMate, Content: "x", Timestamp: ts(0), ParentMessageID: ptr("nope")}},
			true,
		},
		{
			"self parent",
			[]Message{{ID: "m1", Role: RoleEditorMate, Content: "x", Timestamp: ts(0), ParentMessageID: ptr("m1")}},
			true,
		},
		{
			"duplicate ids",
			[]Message{user, user},
			true,
		},
		{
			"invalid role",
			[]Message{{ID: "m1", Role: "narrator", Content: "x", Timestamp: ts(0)}},
			true,
		},
		{
			"missing timestamp",
			[]Message{{ID: "m1", Role: RoleUser, Content: "x"}},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Conversation{
				ID:        "c1",
				CreatedAt: ts(0),
				UpdatedAt: ts(1),
				Messages:  tt.messages,
			}
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConversationValidate_MissingID(t *testing.T) {
	c := Conversation{CreatedAt: ts(0), UpdatedAt: ts(0)}
	if err := c.Validate(); err == nil {
		t.Error("expected error for empty conversation id")
	}
}

func TestCountByRole_SkipsStreaming(t *testing.T) {
	c := Conversation{
		ID: "c1", CreatedAt: ts(0), UpdatedAt: ts(0),
		Messages: []Message{
			{ID: "m1", Role: RoleUser, Timestamp: ts(0)},
			{ID: "m2", Role: RoleChatMate, Timestamp: ts(1), IsStreaming: true},
			{ID: "m3", Role: RoleEditorMate, Timestamp: ts(2)},
		},
	}
	counts := c.CountByRole()
	if counts[RoleUser] != 1 || counts[RoleChatMate] != 0 || counts[RoleEditorMate] != 1 {
		t.Errorf("CountByRole() = %v, want user=1 chat-mate=0 editor-mate=1", counts)
	}
}

func TestTempIDs(t *testing.T) {
	temp := NewTempID()
	if !IsTempID(temp) {
		t.Errorf("IsTempID(%q) = false, want true", temp)
	}
	durable := NewID()
	if IsTempID(durable) {
		t.Errorf("IsTempID(%q) = true, want false", durable)
	}
	if temp == NewTempID() {
		t.Error("NewTempID() returned the same id twice")
	}
}

func TestFeedbackStyleValid(t *testing.T) {
	tests := []struct {
		style FeedbackStyle
		want  bool
	}{
		{FeedbackEncouraging, true},
		{FeedbackDirect, true},
		{FeedbackDetailed, true},
		{"harsh", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := tt.style.Valid(); got != tt.want {
			t.Errorf("FeedbackStyle(%q).Valid() = %v, want %v", tt.style, got, tt.want)
		}
	}
}

func TestOverrideFromGlobal(t *testing.T) {
	g := DefaultGlobalSettings()
	g.TargetLanguage = "Japanese"
	o := OverrideFromGlobal(g)

	if o.TargetLanguage == nil || *o.TargetLanguage != "Japanese" {
		t.Errorf("TargetLanguage not snapshotted: %v", o.TargetLanguage)
	}
	if o.EnableStreaming == nil || *o.EnableStreaming != g.EnableStreaming {
		t.Error("EnableStreaming not snapshotted")
	}
	if o.FeedbackStyle == nil || *o.FeedbackStyle != g.FeedbackStyle {
		t.Error("FeedbackStyle not snapshotted")
	}

	// Snapshot must be detached from the source.
	g.TargetLanguage = "Korean"
	if *o.TargetLanguage != "Japanese" {
		t.Error("override aliases the global settings value")
	}
}
