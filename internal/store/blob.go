package store

import (
	"fmt"

	"github.com/mlundqvist/matechat-go/internal/models"
)

// BlobVersion is the schema version written into every persisted blob.
// Older blobs are read with field-level defaulting, never migrated in
// place.
const BlobVersion = 1

// Blob is the single persisted value: all conversations, their settings
// overrides and the global settings, serialized as one JSON document.
// The same shape is used for the export/import file format.
type Blob struct {
	Version              int                                `json:"version"`
	Conversations        []models.Conversation              `json:"conversations"`
	ConversationSettings map[string]models.SettingsOverride `json:"conversationSettings"`
	GlobalSettings       models.GlobalSettings              `json:"globalSettings"`
}

// NewBlob returns an empty blob with default global settings.
func NewBlob() Blob {
	return Blob{
		Version:              BlobVersion,
		Conversations:        []models.Conversation{},
		ConversationSettings: map[string]models.SettingsOverride{},
		GlobalSettings:       models.DefaultGlobalSettings(),
	}
}

// Validate checks the whole blob. Settings overrides for conversations
// that no longer exist are tolerated: they are dead weight, not
// corruption.
func (b *Blob) Validate() error {
	if b.Version <= 0 {
		return fmt.Errorf("blob: invalid version %d", b.Version)
	}
	if err := b.GlobalSettings.Validate(); err != nil {
		return fmt.Errorf("blob: %w", err)
	}
	seen := make(map[string]struct{}, len(b.Conversations))
	for i := range b.Conversations {
		c := &b.Conversations[i]
		if err := c.Validate(); err != nil {
			return fmt.Errorf("blob: %w", err)
		}
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("blob: duplicate conversation id %s", c.ID)
		}
		seen[c.ID] = struct{}{}
	}
	for id, o := range b.ConversationSettings {
		if id == "" {
			return fmt.Errorf("blob: settings override with empty conversation id")
		}
		if err := o.Validate(); err != nil {
			return fmt.Errorf("blob: override for %s: %w", id, err)
		}
	}
	return nil
}

// clone returns a deep copy so callers can never alias store-owned state.
func (b *Blob) clone() Blob {
	out := Blob{
		Version:              b.Version,
		Conversations:        make([]models.Conversation, len(b.Conversations)),
		ConversationSettings: make(map[string]models.SettingsOverride, len(b.ConversationSettings)),
		GlobalSettings:       b.GlobalSettings,
	}
	for i := range b.Conversations {
		out.Conversations[i] = cloneConversation(&b.Conversations[i])
	}
	for id, o := range b.ConversationSettings {
		out.ConversationSettings[id] = o
	}
	return out
}

func cloneConversation(c *models.Conversation) models.Conversation {
	out := *c
	out.Messages = make([]models.Message, len(c.Messages))
	for i := range c.Messages {
		out.Messages[i] = cloneMessage(&c.Messages[i])
	}
	return out
}

func cloneMessage(m *models.Message) models.Message {
	out := *m
	if m.ParentMessageID != nil {
		parent := *m.ParentMessageID
		out.ParentMessageID = &parent
	}
	if m.Metadata != nil {
		meta := *m.Metadata
		out.Metadata = &meta
	}
	return out
}
