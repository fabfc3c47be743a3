package models

import "fmt"

// FeedbackStyle selects the tone of Editor Mate's corrections.
type FeedbackStyle string

const (
	FeedbackEncouraging FeedbackStyle = "encouraging"
	FeedbackDirect      FeedbackStyle = "direct"
	FeedbackDetailed    FeedbackStyle = "detailed"
)

// Valid reports whether the style is a known feedback style.
func (s FeedbackStyle) Valid() bool {
	switch s {
	case FeedbackEncouraging, FeedbackDirect, FeedbackDetailed:
		return true
	}
	return false
}

// GlobalSettings is the ambient configuration every conversation starts
// from. Per-conversation overrides are layered over it at read time.
type GlobalSettings struct {
	TargetLanguage        string        `json:"target_language"`
	ChatMatePersonality   string        `json:"chat_mate_personality"`
	EditorMatePersonality string        `json:"editor_mate_personality"`
	Model                 string        `json:"model"`
	APIKey                string        `json:"api_key"`
	EnableStreaming       bool          `json:"enable_streaming"`
	EnableReasoning       bool          `json:"enable_reasoning"`
	ReasoningExpanded     bool          `json:"reasoning_expanded"`
	CulturalContext       bool          `json:"cultural_context"`
	ProgressiveComplexity bool          `json:"progressive_complexity"`
	FeedbackStyle         FeedbackStyle `json:"feedback_style"`
}

// Validate checks the enum-typed fields.
func (g *GlobalSettings) Validate() error {
	if g.FeedbackStyle != "" && !g.FeedbackStyle.Valid() {
		return fmt.Errorf("settings: invalid feedback style %q", g.FeedbackStyle)
	}
	return nil
}

// DefaultGlobalSettings returns the settings a fresh install starts with.
func DefaultGlobalSettings() GlobalSettings {
	return GlobalSettings{
		TargetLanguage:        "Swedish",
		ChatMatePersonality:   "friendly, curious native speaker who keeps the conversation going",
		EditorMatePersonality: "patient language teacher focused on gentle, actionable corrections",
		Model:                 "gpt-4o-mini",
		EnableStreaming:       true,
		EnableReasoning:       false,
		ReasoningExpanded:     false,
		CulturalContext:       true,
		ProgressiveComplexity: true,
		FeedbackStyle:         FeedbackEncouraging,
	}
}

// SettingsOverride holds per-conversation settings. Every field is
// optional: a nil field falls back to the global value at resolve time.
// Stored overrides are never back-filled with defaults, which lets old
// and new schema versions coexist without migration.
type SettingsOverride struct {
	TargetLanguage        *string        `json:"target_language,omitempty"`
	ChatMatePersonality   *string        `json:"chat_mate_personality,omitempty"`
	EditorMatePersonality *string        `json:"editor_mate_personality,omitempty"`
	Model                 *string        `json:"model,omitempty"`
	APIKey                *string        `json:"api_key,omitempty"`
	EnableStreaming       *bool          `json:"enable_streaming,omitempty"`
	EnableReasoning       *bool          `json:"enable_reasoning,omitempty"`
	ReasoningExpanded     *bool          `json:"reasoning_expanded,omitempty"`
	CulturalContext       *bool          `json:"cultural_context,omitempty"`
	ProgressiveComplexity *bool          `json:"progressive_complexity,omitempty"`
	FeedbackStyle         *FeedbackStyle `json:"feedback_style,omitempty"`
}

// Validate checks the enum-typed fields of the override.
func (o *SettingsOverride) Validate() error {
	if o.FeedbackStyle != nil && !o.FeedbackStyle.Valid() {
		return fmt.Errorf("settings override: invalid feedback style %q", *o.FeedbackStyle)
	}
	return nil
}

// OverrideFromGlobal materializes a full override object snapshotting the
// given global settings. Used when a conversation intends to diverge.
func OverrideFromGlobal(g GlobalSettings) SettingsOverride {
	return SettingsOverride{
		TargetLanguage:        ptr(g.TargetLanguage),
		ChatMatePersonality:   ptr(g.ChatMatePersonality),
		EditorMatePersonality: ptr(g.EditorMatePersonality),
		Model:                 ptr(g.Model),
		APIKey:                ptr(g.APIKey),
		EnableStreaming:       ptr(g.EnableStreaming),
		EnableReasoning:       ptr(g.EnableReasoning),
		ReasoningExpanded:     ptr(g.ReasoningExpanded),
		CulturalContext:       ptr(g.CulturalContext),
		ProgressiveComplexity: ptr(g.ProgressiveComplexity),
		FeedbackStyle:         ptr(g.FeedbackStyle),
	}
}

func ptr[T any](v T) *T { return &v }
