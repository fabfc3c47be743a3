package store

import (
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/mlundqvist/matechat-go/internal/models"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{
		Path:      filepath.Join(t.TempDir(), "test.db"),
		Logger:    slog.Default(),
		SaveDelay: time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// Close must not race a debounced flush whose timer already fired:
// repeated mutate-then-close cycles land Close inside the timer window.
func TestClose_DrainsInFlightFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "race.db")
	for i := 0; i < 20; i++ {
		s, err := Open(Options{Path: path, SaveDelay: time.Millisecond})
		require.NoError(t, err)
		_, err = s.CreateConversation(models.Conversation{TargetLanguage: "Swedish"})
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
		require.NoError(t, s.Close())
	}

	reopened, err := Open(Options{Path: path, SaveDelay: time.Millisecond})
	require.NoError(t, err)
	defer reopened.Close()
	assert.Len(t, reopened.ListConversations(), 20)
}

func TestCreateConversation(t *testing.T) {
	s := testStore(t)

	c, err := s.CreateConversation(models.Conversation{TargetLanguage: "Swedish"})
	require.NoError(t, err)

	assert.NotEmpty(t, c.ID)
	assert.False(t, models.IsTempID(c.ID))
	assert.Equal(t, "Swedish", c.TargetLanguage)
	assert.False(t, c.CreatedAt.IsZero())
	assert.Empty(t, c.Messages)

	got, ok := s.Conversation(c.ID)
	require.True(t, ok)
	assert.Equal(t, c.ID, got.ID)
}

func TestAddMessage(t *testing.T) {
	s := testStore(t)
	c, err := s.CreateConversation(models.Conversation{TargetLanguage: "Swedish"})
	require.NoError(t, err)

	before, _ := s.Conversation(c.ID)

	msg, err := s.AddMessage(c.ID, models.Message{Role: models.RoleUser, Content: "Hej"})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.Timestamp.IsZero())
	assert.False(t, msg.IsStreaming, "persisted messages are never streaming")

	got, _ := s.Conversation(c.ID)
	require.Len(t, got.Messages, 1)
	assert.False(t, got.UpdatedAt.Before(before.UpdatedAt))
}

func TestAddMessage_StripsStreamingFlag(t *testing.T) {
	s := testStore(t)
	c, _ := s.CreateConversation(models.Conversation{})

	msg, err := s.AddMessage(c.ID, models.Message{Role: models.RoleChatMate, Content: "x", IsStreaming: true})
	require.NoError(t, err)
	assert.False(t, msg.IsStreaming)
}

func TestAddMessage_UnknownParentRejected(t *testing.T) {
	s := testStore(t)
	c, _ := s.CreateConversation(models.Conversation{})

	parent := "nope"
	_, err := s.AddMessage(c.ID, models.Message{Role: models.RoleEditorMate, Content: "x", ParentMessageID: &parent})
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestAddMessage_UnknownConversation(t *testing.T) {
	s := testStore(t)
	_, err := s.AddMessage("missing", models.Message{Role: models.RoleUser, Content: "x"})
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestUpdateMessage_Partial(t *testing.T) {
	s := testStore(t)
	c, _ := s.CreateConversation(models.Conversation{})
	msg, _ := s.AddMessage(c.ID, models.Message{Role: models.RoleChatMate, Content: "hello"})

	content := "hej"
	reasoning := "swedish greeting"
	err := s.UpdateMessage(c.ID, msg.ID, MessageUpdate{Content: &content, Reasoning: &reasoning})
	require.NoError(t, err)

	got, _ := s.Conversation(c.ID)
	assert.Equal(t, "hej", got.Messages[0].Content)
	assert.Equal(t, "swedish greeting", got.Messages[0].Reasoning)
	assert.Equal(t, msg.Timestamp.Unix(), got.Messages[0].Timestamp.Unix(), "timestamp must not change")
}

func TestDeleteMessage_ClearsParentRefs(t *testing.T) {
	s := testStore(t)
	c, _ := s.CreateConversation(models.Conversation{})
	user, _ := s.AddMessage(c.ID, models.Message{Role: models.RoleUser, Content: "hi"})
	_, err := s.AddMessage(c.ID, models.Message{Role: models.RoleEditorMate, Content: "note", ParentMessageID: &user.ID})
	require.NoError(t, err)

	require.NoError(t, s.DeleteMessage(c.ID, user.ID))

	got, _ := s.Conversation(c.ID)
	require.Len(t, got.Messages, 1)
	assert.Nil(t, got.Messages[0].ParentMessageID, "dangling parent ref should be cleared")
	require.NoError(t, got.Validate())
}

func TestDeleteMessagesFrom(t *testing.T) {
	s := testStore(t)
	c, _ := s.CreateConversation(models.Conversation{})
	m1, _ := s.AddMessage(c.ID, models.Message{Role: models.RoleUser, Content: "one"})
	m2, _ := s.AddMessage(c.ID, models.Message{Role: models.RoleChatMate, Content: "two"})
	_, _ = s.AddMessage(c.ID, models.Message{Role: models.RoleEditorMate, Content: "three", ParentMessageID: &m2.ID})

	require.NoError(t, s.DeleteMessagesFrom(c.ID, m2.ID))

	got, _ := s.Conversation(c.ID)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, m1.ID, got.Messages[0].ID)
}

func TestDeleteConversation_RemovesOverride(t *testing.T) {
	s := testStore(t)
	c, _ := s.CreateConversation(models.Conversation{})
	require.NoError(t, s.SetOverride(c.ID, models.OverrideFromGlobal(s.GlobalSettings())))

	require.NoError(t, s.DeleteConversation(c.ID))

	_, ok := s.Conversation(c.ID)
	assert.False(t, ok)
	_, ok = s.Override(c.ID)
	assert.False(t, ok)
}

func TestExportImportRoundTrip(t *testing.T) {
	s := testStore(t)
	c, _ := s.CreateConversation(models.Conversation{Title: "Fika chat", TargetLanguage: "Swedish"})
	u, _ := s.AddMessage(c.ID, models.Message{Role: models.RoleUser, Content: "Hej"})
	_, _ = s.AddMessage(c.ID, models.Message{Role: models.RoleEditorMate, Content: "Good start", ParentMessageID: &u.ID})
	lang := "Swedish"
	require.NoError(t, s.SetOverride(c.ID, models.SettingsOverride{TargetLanguage: &lang}))

	raw, err := s.ExportAll()
	require.NoError(t, err)

	other := testStore(t)
	require.NoError(t, other.ImportAll(raw))

	raw2, err := other.ExportAll()
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(raw2))
}

func TestImportAll_InvalidLeavesStateUntouched(t *testing.T) {
	s := testStore(t)
	c, _ := s.CreateConversation(models.Conversation{Title: "Keep me"})

	err := s.ImportAll([]byte(`{"version": 0}`))
	assert.ErrorIs(t, err, ErrInvalidImport)

	err = s.ImportAll([]byte(`not json`))
	assert.ErrorIs(t, err, ErrInvalidImport)

	got, ok := s.Conversation(c.ID)
	require.True(t, ok)
	assert.Equal(t, "Keep me", got.Title)
}

func TestWipeChats_KeepsGlobalSettings(t *testing.T) {
	s := testStore(t)
	g := s.GlobalSettings()
	g.TargetLanguage = "Japanese"
	require.NoError(t, s.SetGlobalSettings(g))
	c, _ := s.CreateConversation(models.Conversation{})
	require.NoError(t, s.SetOverride(c.ID, models.OverrideFromGlobal(g)))

	require.NoError(t, s.WipeChats())

	assert.Empty(t, s.ListConversations())
	_, ok := s.Override(c.ID)
	assert.False(t, ok)
	assert.Equal(t, "Japanese", s.GlobalSettings().TargetLanguage)
}

func TestWipeEverything_ResetsGlobalSettings(t *testing.T) {
	s := testStore(t)
	g := s.GlobalSettings()
	g.TargetLanguage = "Japanese"
	require.NoError(t, s.SetGlobalSettings(g))
	_, _ = s.CreateConversation(models.Conversation{})

	require.NoError(t, s.WipeEverything())

	assert.Empty(t, s.ListConversations())
	assert.Equal(t, models.DefaultGlobalSettings(), s.GlobalSettings())
}

func TestPersistenceAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.db")

	s, err := Open(Options{Path: path, SaveDelay: time.Millisecond})
	require.NoError(t, err)
	c, _ := s.CreateConversation(models.Conversation{Title: "Persisted"})
	_, _ = s.AddMessage(c.ID, models.Message{Role: models.RoleUser, Content: "Hej"})
	require.NoError(t, s.Close())

	reopened, err := Open(Options{Path: path, SaveDelay: time.Millisecond})
	require.NoError(t, err)
	defer reopened.Close()

	got, ok := reopened.Conversation(c.ID)
	require.True(t, ok)
	assert.Equal(t, "Persisted", got.Title)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "Hej", got.Messages[0].Content)
}

func TestLoad_CorruptBlobFallsBackToDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.db")

	// Plant garbage under the state key directly.
	db, err := bolt.Open(path, 0o600, nil)
	require.NoError(t, err)
	require.NoError(t, db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		if err != nil {
			return err
		}
		return b.Put([]byte(stateKey), []byte("{{{ not json"))
	}))
	require.NoError(t, db.Close())

	s, err := Open(Options{Path: path, SaveDelay: time.Millisecond})
	require.NoError(t, err, "corrupt blob must not be fatal")
	defer s.Close()

	assert.Empty(t, s.ListConversations())
	assert.Equal(t, models.DefaultGlobalSettings(), s.GlobalSettings())
}

func TestMutationsAfterCloseFail(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.Close())

	_, err := s.CreateConversation(models.Conversation{})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestOnChangeFires(t *testing.T) {
	s := testStore(t)
	fired := 0
	s.SetOnChange(func() { fired++ })

	_, err := s.CreateConversation(models.Conversation{})
	require.NoError(t, err)
	assert.Equal(t, 1, fired)
}
