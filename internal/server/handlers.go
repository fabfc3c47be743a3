package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mlundqvist/matechat-go/internal/chat"
	"github.com/mlundqvist/matechat-go/internal/models"
	"github.com/mlundqvist/matechat-go/internal/store"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrConversationNotFound), errors.Is(err, store.ErrMessageNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrInvalidImport):
		status = http.StatusBadRequest
	case errors.Is(err, chat.ErrRoundInFlight):
		status = http.StatusConflict
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.ListConversations())
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, ok := s.store.Conversation(r.PathValue("id"))
	if !ok {
		writeError(w, fmt.Errorf("%w: %s", store.ErrConversationNotFound, r.PathValue("id")))
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteConversation(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type forkRequest struct {
	MessageID string `json:"messageId"`
}

func (s *Server) handleFork(w http.ResponseWriter, r *http.Request) {
	var req forkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	if err := s.orch.SetConversation(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	fork, err := s.orch.Fork(req.MessageID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, fork)
}

type chatRequest struct {
	ConversationID string `json:"conversationId,omitempty"`
	Message        string `json:"message"`
	Language       string `json:"language,omitempty"`
	Model          string `json:"model,omitempty"`
}

// handleChat runs one full agent round. With Accept: text/event-stream
// the reply is a live feed of per-message deltas; otherwise the
// complete round is returned as JSON once it has settled.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "message is required"})
		return
	}

	if err := s.orch.SetConversation(req.ConversationID); err != nil {
		writeError(w, err)
		return
	}
	s.orch.SetPendingSelection(req.Language, req.Model)

	if wantsEventStream(r) {
		s.chatStream(w, r, req.Message)
		return
	}

	if err := s.orch.Submit(r.Context(), req.Message); err != nil {
		writeError(w, err)
		return
	}
	conv, _ := s.store.Conversation(s.orch.ConversationID())
	writeJSON(w, http.StatusOK, conv)
}

func wantsEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

func (s *Server) chatStream(w http.ResponseWriter, r *http.Request, message string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	sink := newSSESink(w, flusher)
	s.attachSink(sink)
	defer s.detachSink()

	err := s.orch.Submit(r.Context(), message)
	if err != nil {
		sink.writeFrame(streamFrame{Type: "error", Error: err.Error()})
		return
	}
	sink.writeFrame(streamFrame{Type: "done", ConversationID: s.orch.ConversationID()})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	raw, err := s.store.ExportAll()
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(raw)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "unreadable request body"})
		return
	}
	if err := s.store.ImportAll(raw); err != nil {
		writeError(w, err)
		return
	}
	s.hub.ConversationUpdated()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.stats.Snapshot())
}

// streamFrame is one event of the chat endpoint's event stream. Content
// and reasoning frames carry only the delta since the previous frame
// for the same message.
type streamFrame struct {
	Type           string      `json:"type"`
	MessageID      string      `json:"messageId,omitempty"`
	Role           models.Role `json:"role,omitempty"`
	Content        string      `json:"content,omitempty"`
	ConversationID string      `json:"conversationId,omitempty"`
	Error          string      `json:"error,omitempty"`
}

// sseSink relays streaming message updates to one HTTP response. All
// writes happen on the request goroutine: the orchestrator invokes the
// observer synchronously while Submit runs.
type sseSink struct {
	w       io.Writer
	flusher http.Flusher
	seen    map[string]sinkProgress
}

type sinkProgress struct {
	content   int
	reasoning int
}

func newSSESink(w io.Writer, flusher http.Flusher) *sseSink {
	return &sseSink{w: w, flusher: flusher, seen: map[string]sinkProgress{}}
}

func (s *sseSink) messageUpdated(m models.Message) {
	p := s.seen[m.ID]
	if len(m.Content) > p.content {
		s.writeFrame(streamFrame{Type: "content", MessageID: m.ID, Role: m.Role, Content: m.Content[p.content:]})
		p.content = len(m.Content)
	}
	if len(m.Reasoning) > p.reasoning {
		s.writeFrame(streamFrame{Type: "reasoning", MessageID: m.ID, Role: m.Role, Content: m.Reasoning[p.reasoning:]})
		p.reasoning = len(m.Reasoning)
	}
	s.seen[m.ID] = p
}

func (s *sseSink) writeFrame(f streamFrame) {
	payload, err := json.Marshal(f)
	if err != nil {
		return
	}
	fmt.Fprintf(s.w, "data: %s\n\n", payload)
	s.flusher.Flush()
}
