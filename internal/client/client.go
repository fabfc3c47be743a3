// Package client provides a Go client for the matechat server API.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mlundqvist/matechat-go/internal/metrics"
	"github.com/mlundqvist/matechat-go/internal/models"
)

// Client talks to a running matechat server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new client.
// If baseURL is empty, uses MATECHAT_SERVER_URL env var or defaults to localhost:8989.
// Timeout can be configured via MATECHAT_CLIENT_TIMEOUT env var (default 10m: a
// full agent round is three model calls).
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("MATECHAT_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8989"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	timeout := 10 * time.Minute
	if t := os.Getenv("MATECHAT_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// errorBody is the server's error response shape.
type errorBody struct {
	Error string `json:"error"`
}

// do sends a JSON request and decodes the JSON response into result.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		var e errorBody
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return fmt.Errorf("server error: %s", e.Error)
		}
		return fmt.Errorf("server error: %s - %s", resp.Status, string(raw))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// ListConversations returns all conversations, most recently updated
// first.
func (c *Client) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	var out []models.Conversation
	if err := c.do(ctx, http.MethodGet, "/api/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetConversation retrieves a conversation by id.
func (c *Client) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var out models.Conversation
	if err := c.do(ctx, http.MethodGet, "/api/conversations/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteConversation deletes a conversation by id.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/conversations/"+url.PathEscape(id), nil, nil)
}

// Fork copies a conversation up to and including the given message into
// a new conversation.
func (c *Client) Fork(ctx context.Context, conversationID, messageID string) (*models.Conversation, error) {
	body := map[string]string{"messageId": messageID}
	var out models.Conversation
	if err := c.do(ctx, http.MethodPost, "/api/conversations/"+url.PathEscape(conversationID)+"/fork", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChatOptions configures a chat round.
type ChatOptions struct {
	// ConversationID continues an existing conversation. Empty starts a
	// new one.
	ConversationID string

	// Language and Model apply to a new conversation only.
	Language string
	Model    string
}

type chatPayload struct {
	ConversationID string `json:"conversationId,omitempty"`
	Message        string `json:"message"`
	Language       string `json:"language,omitempty"`
	Model          string `json:"model,omitempty"`
}

// Chat runs one full agent round and returns the settled conversation.
func (c *Client) Chat(ctx context.Context, message string, opts *ChatOptions) (*models.Conversation, error) {
	payload := chatPayload{Message: message}
	if opts != nil {
		payload.ConversationID = opts.ConversationID
		payload.Language = opts.Language
		payload.Model = opts.Model
	}
	var out models.Conversation
	if err := c.do(ctx, http.MethodPost, "/api/chat", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StreamDelta is one incremental update of a streaming chat round.
type StreamDelta struct {
	MessageID string
	Role      models.Role
	Content   string
	Reasoning bool
}

// streamFrame matches the server's event-stream frame shape.
type streamFrame struct {
	Type           string      `json:"type"`
	MessageID      string      `json:"messageId,omitempty"`
	Role           models.Role `json:"role,omitempty"`
	Content        string      `json:"content,omitempty"`
	ConversationID string      `json:"conversationId,omitempty"`
	Error          string      `json:"error,omitempty"`
}

// ChatStream runs one agent round and invokes onDelta for every partial
// reply fragment as it arrives. It returns the conversation id once the
// round has settled. Return an error from onDelta to abort.
func (c *Client) ChatStream(ctx context.Context, message string, opts *ChatOptions, onDelta func(StreamDelta) error) (string, error) {
	payload := chatPayload{Message: message}
	if opts != nil {
		payload.ConversationID = opts.ConversationID
		payload.Language = opts.Language
		payload.Model = opts.Model
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		var e errorBody
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return "", fmt.Errorf("server error: %s", e.Error)
		}
		return "", fmt.Errorf("server error: %s", resp.Status)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		payload, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}

		var f streamFrame
		if err := json.Unmarshal([]byte(payload), &f); err != nil {
			continue
		}

		switch f.Type {
		case "content", "reasoning":
			delta := StreamDelta{
				MessageID: f.MessageID,
				Role:      f.Role,
				Content:   f.Content,
				Reasoning: f.Type == "reasoning",
			}
			if err := onDelta(delta); err != nil {
				return "", err
			}
		case "error":
			return "", fmt.Errorf("round failed: %s", f.Error)
		case "done":
			return f.ConversationID, nil
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("read stream: %w", err)
	}
	return "", fmt.Errorf("stream ended without done")
}

// Export downloads the full data blob.
func (c *Client) Export(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/export", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server error: %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// Import replaces all server data with the given export blob.
func (c *Client) Import(ctx context.Context, blob []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/import", bytes.NewReader(blob))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		var e errorBody
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return fmt.Errorf("server error: %s", e.Error)
		}
		return fmt.Errorf("server error: %s", resp.Status)
	}
	return nil
}

// Stats returns the server's runtime statistics.
func (c *Client) Stats(ctx context.Context) (*metrics.Snapshot, error) {
	var out metrics.Snapshot
	if err := c.do(ctx, http.MethodGet, "/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Event is one notification from the server's websocket feed.
type Event struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId,omitempty"`
	Level          string `json:"level,omitempty"`
	Message        string `json:"message,omitempty"`
}

// WatchEvents connects to the server's websocket feed and invokes
// onEvent for every notification until the context is cancelled or the
// connection drops. Return an error from onEvent to stop watching.
func (c *Client) WatchEvents(ctx context.Context, onEvent func(Event) error) error {
	wsURL := c.baseURL + "/ws"
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	wsURL = strings.Replace(wsURL, "https://", "wss://", 1)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("websocket connect: %w", err)
	}
	if resp != nil {
		resp.Body.Close()
	}

	var mu sync.Mutex
	closed := false
	closeConn := func() {
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			closed = true
			conn.Close()
		}
	}
	defer closeConn()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			closeConn()
		case <-done:
		}
	}()

	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read event: %w", err)
		}
		if err := onEvent(ev); err != nil {
			return err
		}
	}
}
