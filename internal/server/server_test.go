package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlundqvist/matechat-go/internal/aiclient"
	"github.com/mlundqvist/matechat-go/internal/metrics"
	"github.com/mlundqvist/matechat-go/internal/models"
	"github.com/mlundqvist/matechat-go/internal/store"
	"github.com/mlundqvist/matechat-go/internal/stream"
)

// scriptedClient returns canned replies in call order, then generic
// ones.
type scriptedClient struct {
	replies []string
	calls   int
	stream  bool
}

func (c *scriptedClient) Chat(ctx context.Context, req aiclient.Request) (*aiclient.Reply, error) {
	n := c.calls
	c.calls++
	text := fmt.Sprintf("reply %d", n)
	if n < len(c.replies) {
		text = c.replies[n]
	}
	if !c.stream {
		return &aiclient.Reply{Response: text}, nil
	}
	var b bytes.Buffer
	_ = stream.WriteEvent(&b, stream.Event{Type: stream.EventContent, Content: text})
	_ = stream.WriteEvent(&b, stream.Event{Type: stream.EventDone})
	return &aiclient.Reply{Stream: io.NopCloser(&b)}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, client aiclient.Client) (*Server, *store.Store, *httptest.Server) {
	t.Helper()
	s, err := store.Open(store.Options{Path: filepath.Join(t.TempDir(), "srv.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	srv := New(s, client, metrics.NewCollector(), testLogger())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(func() { srv.Close(context.Background()) })
	return srv, s, ts
}

func seedConversation(t *testing.T, s *store.Store, title string) models.Conversation {
	t.Helper()
	conv, err := s.CreateConversation(models.Conversation{Title: title, TargetLanguage: "Swedish"})
	require.NoError(t, err)
	user, err := s.AddMessage(conv.ID, models.Message{Role: models.RoleUser, Content: "Hej"})
	require.NoError(t, err)
	_, err = s.AddMessage(conv.ID, models.Message{Role: models.RoleChatMate, Content: "Hej hej!"})
	require.NoError(t, err)
	_, err = s.AddMessage(conv.ID, models.Message{Role: models.RoleEditorMate, Content: "Good greeting.", ParentMessageID: &user.ID})
	require.NoError(t, err)
	got, ok := s.Conversation(conv.ID)
	require.True(t, ok)
	return got
}

// parseFrames splits an event-stream body into its decoded frames.
func parseFrames(t *testing.T, body io.Reader) []streamFrame {
	t.Helper()
	raw, err := io.ReadAll(body)
	require.NoError(t, err)

	var frames []streamFrame
	for _, block := range strings.Split(string(raw), "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		payload, ok := strings.CutPrefix(block, "data: ")
		require.True(t, ok, "unexpected frame: %q", block)
		var f streamFrame
		require.NoError(t, json.Unmarshal([]byte(payload), &f))
		frames = append(frames, f)
	}
	return frames
}

func TestListConversations(t *testing.T) {
	_, s, ts := newTestServer(t, &scriptedClient{})
	seedConversation(t, s, "First")
	seedConversation(t, s, "Second")

	resp, err := http.Get(ts.URL + "/api/conversations")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got []models.Conversation
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Len(t, got, 2)
}

func TestGetConversation(t *testing.T) {
	_, s, ts := newTestServer(t, &scriptedClient{})
	conv := seedConversation(t, s, "Greetings")

	resp, err := http.Get(ts.URL + "/api/conversations/" + conv.ID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got models.Conversation
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, conv.ID, got.ID)
	assert.Len(t, got.Messages, 3)
}

func TestGetConversation_NotFound(t *testing.T) {
	_, _, ts := newTestServer(t, &scriptedClient{})

	resp, err := http.Get(ts.URL + "/api/conversations/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteConversation(t *testing.T) {
	_, s, ts := newTestServer(t, &scriptedClient{})
	conv := seedConversation(t, s, "Doomed")

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/conversations/"+conv.ID, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, ok := s.Conversation(conv.ID)
	assert.False(t, ok)
}

func TestChat_JSONRound(t *testing.T) {
	srv, s, ts := newTestServer(t, &scriptedClient{replies: []string{"editor one", "chat mate", "editor two"}})

	body, err := json.Marshal(chatRequest{Message: "Hej på dig"})
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+"/api/chat", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var conv models.Conversation
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&conv))
	require.Len(t, conv.Messages, 4)
	assert.Equal(t, models.RoleUser, conv.Messages[0].Role)
	assert.Equal(t, "chat mate", conv.Messages[2].Content)

	srv.orch.Wait()
	persisted, ok := s.Conversation(conv.ID)
	require.True(t, ok)
	assert.Len(t, persisted.Messages, 4)
}

func TestChat_EmptyMessageRejected(t *testing.T) {
	_, _, ts := newTestServer(t, &scriptedClient{})

	body := []byte(`{"message":"  "}`)
	resp, err := http.Post(ts.URL+"/api/chat", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChat_EventStream(t *testing.T) {
	_, _, ts := newTestServer(t, &scriptedClient{stream: true, replies: []string{"editor one", "chat mate", "editor two"}})

	body := []byte(`{"message":"Hej"}`)
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/chat", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Accept", "text/event-stream")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	frames := parseFrames(t, resp.Body)
	require.NotEmpty(t, frames)

	last := frames[len(frames)-1]
	assert.Equal(t, "done", last.Type)
	assert.NotEmpty(t, last.ConversationID)

	var chatContent strings.Builder
	for _, f := range frames {
		if f.Type == "content" && f.Role == models.RoleChatMate {
			chatContent.WriteString(f.Content)
		}
	}
	assert.Equal(t, "chat mate", chatContent.String())
}

func TestFork(t *testing.T) {
	_, s, ts := newTestServer(t, &scriptedClient{})
	conv := seedConversation(t, s, "Source")
	mate := conv.Messages[1]

	body, err := json.Marshal(forkRequest{MessageID: mate.ID})
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+"/api/conversations/"+conv.ID+"/fork", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var fork models.Conversation
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fork))
	assert.NotEqual(t, conv.ID, fork.ID)
	assert.Len(t, fork.Messages, 2)
}

func TestExportImportRoundTrip(t *testing.T) {
	_, s, ts := newTestServer(t, &scriptedClient{})
	seedConversation(t, s, "Persist me")

	resp, err := http.Get(ts.URL + "/api/export")
	require.NoError(t, err)
	exported, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, s.WipeEverything())
	assert.Empty(t, s.ListConversations())

	resp, err = http.Post(ts.URL+"/api/import", "application/json", bytes.NewReader(exported))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	assert.Len(t, s.ListConversations(), 1)
}

func TestImport_RejectsGarbage(t *testing.T) {
	_, s, ts := newTestServer(t, &scriptedClient{})
	seedConversation(t, s, "Survivor")

	resp, err := http.Post(ts.URL+"/api/import", "application/json", strings.NewReader("not json"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Len(t, s.ListConversations(), 1)
}

func TestStats(t *testing.T) {
	srv, _, ts := newTestServer(t, &scriptedClient{})
	srv.stats.RecordGeneration(metrics.OpChatGenerate, 120*time.Millisecond, 42)

	resp, err := http.Get(ts.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap metrics.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	require.NotNil(t, snap.ChatGenerate)
	assert.Equal(t, int64(1), snap.ChatGenerate.Count)
}

func TestWebsocket_ReceivesRoundEvents(t *testing.T) {
	_, _, ts := newTestServer(t, &scriptedClient{})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, dialResp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if dialResp != nil {
		dialResp.Body.Close()
	}
	defer conn.Close()

	body := []byte(`{"message":"Hej"}`)
	resp, err := http.Post(ts.URL+"/api/chat", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var sawCreated, sawUpdated bool
	for !(sawCreated && sawUpdated) {
		var ev wsEvent
		require.NoError(t, conn.ReadJSON(&ev))
		switch ev.Type {
		case "conversation-created":
			sawCreated = true
			assert.NotEmpty(t, ev.ConversationID)
		case "conversation-updated":
			sawUpdated = true
		}
	}
}
