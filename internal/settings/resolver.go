// Package settings computes effective per-conversation settings by
// layering stored overrides over the global defaults.
package settings

import (
	"github.com/mlundqvist/matechat-go/internal/models"
	"github.com/mlundqvist/matechat-go/internal/store"
)

// Resolver computes effective settings at the point of use. It holds no
// state of its own: every call reads fresh snapshots from the store, so
// effective settings are never baked into an entity.
type Resolver struct {
	store *store.Store
}

// NewResolver creates a resolver over the given store.
func NewResolver(s *store.Store) *Resolver {
	return &Resolver{store: s}
}

// Resolve returns the effective settings for a conversation: global
// settings with any stored override merged over them field by field.
// The reasoning toggles are always forced from global scope; they cannot
// be meaningfully overridden per conversation. An absent override yields
// the global settings verbatim.
func (r *Resolver) Resolve(conversationID string) models.GlobalSettings {
	global := r.store.GlobalSettings()
	override, ok := r.store.Override(conversationID)
	if !ok {
		return global
	}
	return Merge(global, override)
}

// CreateOverrides materializes a full override object for the
// conversation, snapshotting the current global settings. Call once per
// conversation before it is meant to diverge; calling again is a no-op
// so an existing divergence is never clobbered.
func (r *Resolver) CreateOverrides(conversationID string) error {
	if _, ok := r.store.Override(conversationID); ok {
		return nil
	}
	return r.store.SetOverride(conversationID, models.OverrideFromGlobal(r.store.GlobalSettings()))
}

// Merge layers an override over global settings, field by field. Fields
// missing from the override fall back to the global value, never to a
// hardcoded constant. EnableReasoning and ReasoningExpanded always come
// from global regardless of what the override stores.
func Merge(global models.GlobalSettings, o models.SettingsOverride) models.GlobalSettings {
	out := global
	if o.TargetLanguage != nil {
		out.TargetLanguage = *o.TargetLanguage
	}
	if o.ChatMatePersonality != nil {
		out.ChatMatePersonality = *o.ChatMatePersonality
	}
	if o.EditorMatePersonality != nil {
		out.EditorMatePersonality = *o.EditorMatePersonality
	}
	if o.Model != nil {
		out.Model = *o.Model
	}
	if o.APIKey != nil {
		out.APIKey = *o.APIKey
	}
	if o.EnableStreaming != nil {
		out.EnableStreaming = *o.EnableStreaming
	}
	if o.CulturalContext != nil {
		out.CulturalContext = *o.CulturalContext
	}
	if o.ProgressiveComplexity != nil {
		out.ProgressiveComplexity = *o.ProgressiveComplexity
	}
	if o.FeedbackStyle != nil {
		out.FeedbackStyle = *o.FeedbackStyle
	}

	// Reasoning behavior is a global concern.
	out.EnableReasoning = global.EnableReasoning
	out.ReasoningExpanded = global.ReasoningExpanded
	return out
}
