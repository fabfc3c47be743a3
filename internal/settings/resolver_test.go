package settings

import (
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlundqvist/matechat-go/internal/models"
	"github.com/mlundqvist/matechat-go/internal/store"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.Options{
		Path:      filepath.Join(t.TempDir(), "settings.db"),
		Logger:    slog.Default(),
		SaveDelay: time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestResolve_NoOverrideYieldsGlobal(t *testing.T) {
	s := testStore(t)
	r := NewResolver(s)

	global := s.GlobalSettings()
	got := r.Resolve("does-not-exist")
	assert.Equal(t, global, got)
}

func TestResolve_OverrideWins(t *testing.T) {
	s := testStore(t)
	r := NewResolver(s)
	c, _ := s.CreateConversation(models.Conversation{})

	lang := "Japanese"
	model := "claude-sonnet-4-5"
	require.NoError(t, s.SetOverride(c.ID, models.SettingsOverride{
		TargetLanguage: &lang,
		Model:          &model,
	}))

	got := r.Resolve(c.ID)
	assert.Equal(t, "Japanese", got.TargetLanguage)
	assert.Equal(t, "claude-sonnet-4-5", got.Model)
	// Unset fields fall back to global.
	assert.Equal(t, s.GlobalSettings().FeedbackStyle, got.FeedbackStyle)
}

func TestResolve_ReasoningAlwaysGlobal(t *testing.T) {
	s := testStore(t)
	r := NewResolver(s)
	c, _ := s.CreateConversation(models.Conversation{})

	g := s.GlobalSettings()
	g.EnableReasoning = false
	g.ReasoningExpanded = false
	require.NoError(t, s.SetGlobalSettings(g))

	enabled := true
	require.NoError(t, s.SetOverride(c.ID, models.SettingsOverride{
		EnableReasoning:   &enabled,
		ReasoningExpanded: &enabled,
	}))

	got := r.Resolve(c.ID)
	assert.False(t, got.EnableReasoning, "enableReasoning must follow global")
	assert.False(t, got.ReasoningExpanded, "reasoningExpanded must follow global")

	// Flipping global flips the resolved value even with the stale override.
	g.EnableReasoning = true
	require.NoError(t, s.SetGlobalSettings(g))
	assert.True(t, r.Resolve(c.ID).EnableReasoning)
}

func TestCreateOverrides_SnapshotsGlobal(t *testing.T) {
	s := testStore(t)
	r := NewResolver(s)
	c, _ := s.CreateConversation(models.Conversation{})

	require.NoError(t, r.CreateOverrides(c.ID))

	o, ok := s.Override(c.ID)
	require.True(t, ok)
	require.NotNil(t, o.TargetLanguage)
	assert.Equal(t, s.GlobalSettings().TargetLanguage, *o.TargetLanguage)

	// Later global changes no longer affect snapshotted fields.
	g := s.GlobalSettings()
	g.TargetLanguage = "Korean"
	require.NoError(t, s.SetGlobalSettings(g))
	assert.NotEqual(t, "Korean", r.Resolve(c.ID).TargetLanguage)
}

func TestCreateOverrides_Idempotent(t *testing.T) {
	s := testStore(t)
	r := NewResolver(s)
	c, _ := s.CreateConversation(models.Conversation{})

	require.NoError(t, r.CreateOverrides(c.ID))
	lang := "Italian"
	require.NoError(t, s.SetOverride(c.ID, models.SettingsOverride{TargetLanguage: &lang}))

	// A second call must not clobber the existing divergence.
	require.NoError(t, r.CreateOverrides(c.ID))
	assert.Equal(t, "Italian", r.Resolve(c.ID).TargetLanguage)
}

func TestMerge_MissingFieldsFallBack(t *testing.T) {
	global := models.DefaultGlobalSettings()
	global.TargetLanguage = "Swedish"
	global.CulturalContext = true

	ctx := false
	merged := Merge(global, models.SettingsOverride{CulturalContext: &ctx})

	assert.Equal(t, "Swedish", merged.TargetLanguage)
	assert.False(t, merged.CulturalContext)
	assert.Equal(t, global.Model, merged.Model)
}
