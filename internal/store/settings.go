package store

import (
	"encoding/json"
	"fmt"

	"github.com/mlundqvist/matechat-go/internal/models"
)

// GlobalSettings returns a copy of the global settings.
func (s *Store) GlobalSettings() models.GlobalSettings {
	var out models.GlobalSettings
	s.view(func(b *Blob) {
		out = b.GlobalSettings
	})
	return out
}

// SetGlobalSettings replaces the global settings.
func (s *Store) SetGlobalSettings(g models.GlobalSettings) error {
	return s.mutate(func(b *Blob) error {
		if err := g.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidState, err)
		}
		b.GlobalSettings = g
		return nil
	})
}

// Override returns the stored settings override for a conversation, or
// false if the conversation has never diverged from global settings.
func (s *Store) Override(conversationID string) (models.SettingsOverride, bool) {
	var (
		out models.SettingsOverride
		ok  bool
	)
	s.view(func(b *Blob) {
		out, ok = b.ConversationSettings[conversationID]
	})
	return out, ok
}

// SetOverride stores a settings override for a conversation.
func (s *Store) SetOverride(conversationID string, o models.SettingsOverride) error {
	return s.mutate(func(b *Blob) error {
		if conversationID == "" {
			return fmt.Errorf("%w: empty conversation id", ErrInvalidState)
		}
		if err := o.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidState, err)
		}
		b.ConversationSettings[conversationID] = o
		return nil
	})
}

// ExportAll serializes the full validated snapshot as pretty-printed
// JSON, the same shape the store persists. Streaming placeholders never
// reach the store, so no filtering is needed here.
func (s *Store) ExportAll() ([]byte, error) {
	var snapshot Blob
	s.view(func(b *Blob) {
		snapshot = b.clone()
	})
	if err := snapshot.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	raw, err := json.MarshalIndent(&snapshot, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal export: %w", err)
	}
	return raw, nil
}

// ImportAll replaces the entire state with the given blob, atomically:
// if the blob fails to parse or validate, the existing state is left
// untouched and ErrInvalidImport is returned.
func (s *Store) ImportAll(raw []byte) error {
	var blob Blob
	if err := json.Unmarshal(raw, &blob); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}
	if blob.ConversationSettings == nil {
		blob.ConversationSettings = map[string]models.SettingsOverride{}
	}
	if blob.Conversations == nil {
		blob.Conversations = []models.Conversation{}
	}
	if err := blob.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}
	return s.mutate(func(b *Blob) error {
		*b = blob
		return nil
	})
}

// WipeChats clears all conversations and their settings overrides but
// keeps the global settings.
func (s *Store) WipeChats() error {
	return s.mutate(func(b *Blob) error {
		b.Conversations = []models.Conversation{}
		b.ConversationSettings = map[string]models.SettingsOverride{}
		return nil
	})
}

// WipeEverything clears all persisted state including global settings.
func (s *Store) WipeEverything() error {
	return s.mutate(func(b *Blob) error {
		*b = NewBlob()
		return nil
	})
}
