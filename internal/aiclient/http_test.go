package aiclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlundqvist/matechat-go/internal/models"
	"github.com/mlundqvist/matechat-go/internal/stream"
)

func TestHTTPClient_StreamingReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, models.TypeChatMateResponse, req.MessageType)
		assert.Equal(t, "Hej", req.Message)

		w.Header().Set("Content-Type", "text/event-stream")
		_ = stream.WriteEvent(w, stream.Event{Type: stream.EventContent, Content: "Hej "})
		_ = stream.WriteEvent(w, stream.Event{Type: stream.EventContent, Content: "hej!"})
		_ = stream.WriteEvent(w, stream.Event{Type: stream.EventDone})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	reply, err := c.Chat(context.Background(), Request{
		Message:     "Hej",
		MessageType: models.TypeChatMateResponse,
		Streaming:   true,
	})
	require.NoError(t, err)
	require.True(t, reply.Streaming())
	defer reply.Stream.Close()

	d := stream.NewDecoder(reply.Stream, nil)
	var content strings.Builder
	for {
		ev, err := d.Next(context.Background())
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		if ev.Type == stream.EventContent {
			content.WriteString(ev.Content)
		}
	}
	assert.Equal(t, "Hej hej!", content.String())
}

func TestHTTPClient_CompleteReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"response":  "Hej på dig!",
			"reasoning": "simple greeting",
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	reply, err := c.Chat(context.Background(), Request{Message: "Hej"})
	require.NoError(t, err)
	assert.False(t, reply.Streaming())
	assert.Equal(t, "Hej på dig!", reply.Response)
	assert.Equal(t, "simple greeting", reply.Reasoning)
}

func TestHTTPClient_ErrorReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "model overloaded"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	_, err := c.Chat(context.Background(), Request{Message: "Hej"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model overloaded")
	assert.Contains(t, err.Error(), "502")
}

func TestHTTPClient_ContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server notices the client going away;
		// blocking before the read keeps the connection alive past
		// srv.Close and deadlocks the test.
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := NewHTTPClient(srv.URL)
	_, err := c.Chat(ctx, Request{Message: "Hej"})
	assert.Error(t, err)
}

func TestNowStrings(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Stockholm")
	require.NoError(t, err)
	now := time.Date(2025, 6, 1, 14, 30, 0, 0, loc)

	date, clock, tz := NowStrings(now)
	assert.Equal(t, "2025-06-01", date)
	assert.Equal(t, "14:30", clock)
	assert.Equal(t, "Europe/Stockholm", tz)
}
