// Package aiclient talks to the AI backend that generates persona
// replies. Two implementations exist: an HTTP client for the dedicated
// chat endpoint and a direct provider client built on langchaingo. Both
// surface streaming replies in the same event-stream wire format so the
// orchestrator has exactly one decode path.
package aiclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/mlundqvist/matechat-go/internal/config"
	"github.com/mlundqvist/matechat-go/internal/models"
	"github.com/mlundqvist/matechat-go/internal/prompt"
)

// Request is the single logical AI operation: one persona, one message,
// the relevant history and the effective settings.
type Request struct {
	Message         string             `json:"message"`
	MessageType     models.MessageType `json:"messageType"`
	History         []prompt.Turn      `json:"history"`
	SystemPrompt    string             `json:"systemPrompt"`
	TargetLanguage  string             `json:"targetLanguage"`
	Model           string             `json:"model"`
	APIKey          string             `json:"apiKey,omitempty"`
	EnableReasoning bool               `json:"enableReasoning"`
	CurrentDate     string             `json:"currentDate"`
	CurrentTime     string             `json:"currentTime"`
	Timezone        string             `json:"timezone"`
	Streaming       bool               `json:"streaming"`
}

// Reply is either a streaming event body or a complete value.
type Reply struct {
	// Stream is non-nil for event-stream responses. The caller owns it
	// and must close it.
	Stream io.ReadCloser

	// Response and Reasoning carry the complete value for
	// non-streaming replies.
	Response  string
	Reasoning string
}

// Streaming reports whether the reply arrived as an event stream.
func (r *Reply) Streaming() bool { return r.Stream != nil }

// Client is the network collaborator the orchestrator calls once per
// agent step.
type Client interface {
	Chat(ctx context.Context, req Request) (*Reply, error)
}

// New creates a client for the configured provider.
func New(cfg config.Config, logger *slog.Logger) (Client, error) {
	switch cfg.Provider {
	case "http", "":
		return NewHTTPClient(cfg.ChatURL), nil
	case ProviderOpenAI, ProviderAnthropic, ProviderOllama, ProviderBedrock:
		return NewProviderClient(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown AI provider: %s", cfg.Provider)
	}
}
