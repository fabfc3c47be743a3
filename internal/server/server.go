// Package server exposes the conversation store and the agent round
// over a local HTTP API, with a websocket feed of update notifications
// and an event-stream chat endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/mlundqvist/matechat-go/internal/aiclient"
	"github.com/mlundqvist/matechat-go/internal/chat"
	"github.com/mlundqvist/matechat-go/internal/metrics"
	"github.com/mlundqvist/matechat-go/internal/models"
	"github.com/mlundqvist/matechat-go/internal/settings"
	"github.com/mlundqvist/matechat-go/internal/store"
)

const shutdownTimeout = 5 * time.Second

// Server wires the store, the orchestrator and the notification hub
// behind an HTTP mux. It is the orchestrator's listener: every
// view-layer callback is forwarded to the hub and, during a streaming
// request, to that request's event stream.
type Server struct {
	store  *store.Store
	orch   *chat.Orchestrator
	hub    *Hub
	stats  *metrics.Collector
	logger *slog.Logger

	sinkMu sync.Mutex
	sink   *sseSink
}

// New creates a fully wired server.
func New(s *store.Store, client aiclient.Client, stats *metrics.Collector, logger *slog.Logger) *Server {
	srv := &Server{
		store:  s,
		hub:    NewHub(logger),
		stats:  stats,
		logger: logger,
	}
	srv.orch = chat.NewOrchestrator(s, settings.NewResolver(s), client, chat.Options{
		Logger:   logger,
		Metrics:  stats,
		Listener: srv,
	})
	return srv
}

// Handler returns the routed handler with logging middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/conversations", s.handleListConversations)
	mux.HandleFunc("GET /api/conversations/{id}", s.handleGetConversation)
	mux.HandleFunc("DELETE /api/conversations/{id}", s.handleDeleteConversation)
	mux.HandleFunc("POST /api/conversations/{id}/fork", s.handleFork)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/export", s.handleExport)
	mux.HandleFunc("POST /api/import", s.handleImport)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /ws", s.hub.ServeWS)
	return LoggingMiddleware(s.logger)(mux)
}

// Run serves until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context, port string) error {
	httpServer := &http.Server{
		Addr:    "127.0.0.1:" + port,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", httpServer.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.Close(shutdownCtx)
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Close disconnects websocket clients and waits for in-flight
// background work. Callers embedding Handler directly call this before
// closing the store.
func (s *Server) Close(ctx context.Context) {
	s.hub.Close(ctx)
	s.orch.Wait()
}

// ConversationCreated implements chat.Listener.
func (s *Server) ConversationCreated(id string) {
	s.hub.ConversationCreated(id)
}

// ConversationUpdated implements chat.Listener.
func (s *Server) ConversationUpdated() {
	s.hub.ConversationUpdated()
}

// Notify implements chat.Listener.
func (s *Server) Notify(level chat.NotifyLevel, message string) {
	s.hub.Notify(level, message)
}

// MessageUpdated implements chat.StreamObserver: streaming deltas go to
// the active event-stream request, if any.
func (s *Server) MessageUpdated(m models.Message) {
	s.sinkMu.Lock()
	sink := s.sink
	s.sinkMu.Unlock()
	if sink != nil {
		sink.messageUpdated(m)
	}
}

func (s *Server) attachSink(sink *sseSink) {
	s.sinkMu.Lock()
	s.sink = sink
	s.sinkMu.Unlock()
}

func (s *Server) detachSink() {
	s.sinkMu.Lock()
	s.sink = nil
	s.sinkMu.Unlock()
}
