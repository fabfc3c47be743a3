package models

import (
	"fmt"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser       Role = "user"
	RoleChatMate   Role = "chat-mate"
	RoleEditorMate Role = "editor-mate"
)

// Valid reports whether the role is one of the known author roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleChatMate, RoleEditorMate:
		return true
	}
	return false
}

// MessageType discriminates which persona (and which step of a round) an
// AI request is addressed to. Sent verbatim on the wire.
type MessageType string

const (
	TypeChatMateResponse          MessageType = "chat-mate-response"
	TypeEditorMateUserComment     MessageType = "editor-mate-user-comment"
	TypeEditorMateChatMateComment MessageType = "editor-mate-chatmate-comment"
	TypeEditorMateResponse        MessageType = "editor-mate-response"
)

// MessageMetadata records how a generated message was produced.
type MessageMetadata struct {
	Model      string    `json:"model,omitempty"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	ElapsedMS  int64     `json:"elapsed_ms,omitempty"`
}

// Message is a single entry in a conversation.
//
// ParentMessageID is a weak reference, not ownership: it links an
// editor-mate comment to the user or chat-mate message it annotates and
// must point at an earlier message in the same conversation.
//
// IsStreaming is true only while content is still arriving. A streaming
// message is never final: its content is overwritten in place until
// completion and it is excluded from export, title generation and forks.
type Message struct {
	ID              string           `json:"id"`
	Role            Role             `json:"role"`
	Content         string           `json:"content"`
	Timestamp       time.Time        `json:"timestamp"`
	Reasoning       string           `json:"reasoning,omitempty"`
	ParentMessageID *string          `json:"parent_message_id,omitempty"`
	IsStreaming     bool             `json:"is_streaming,omitempty"`
	Metadata        *MessageMetadata `json:"metadata,omitempty"`
}

// Validate checks the message's own fields. Parent ordering is checked at
// the conversation level where positions are known.
func (m *Message) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("message: empty id")
	}
	if !m.Role.Valid() {
		return fmt.Errorf("message %s: invalid role %q", m.ID, m.Role)
	}
	if m.Timestamp.IsZero() {
		return fmt.Errorf("message %s: zero timestamp", m.ID)
	}
	return nil
}
