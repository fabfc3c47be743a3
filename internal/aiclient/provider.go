package aiclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/mlundqvist/matechat-go/internal/config"
	"github.com/mlundqvist/matechat-go/internal/stream"
)

// Supported direct provider backends.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderBedrock   = "bedrock"
)

// ProviderClient talks to an AI provider directly instead of going
// through the chat endpoint. Streamed replies are bridged into the same
// event-stream framing the HTTP path produces, so the orchestrator
// decodes both identically.
type ProviderClient struct {
	provider      string
	ollamaHost    string
	bedrockRegion string
	logger        *slog.Logger
}

// Compile-time check that ProviderClient implements Client.
var _ Client = (*ProviderClient)(nil)

// NewProviderClient creates a direct provider client.
func NewProviderClient(cfg config.Config, logger *slog.Logger) *ProviderClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProviderClient{
		provider:      cfg.Provider,
		ollamaHost:    cfg.OllamaHost,
		bedrockRegion: cfg.BedrockRegion,
		logger:        logger,
	}
}

// buildModel constructs the langchaingo model for one request. Model
// name and credential ride on the request because they are
// conversation-scoped settings, not process configuration.
func (c *ProviderClient) buildModel(ctx context.Context, req Request) (llms.Model, error) {
	switch c.provider {
	case ProviderOpenAI:
		if req.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		return openai.New(
			openai.WithToken(req.APIKey),
			openai.WithModel(req.Model),
		)
	case ProviderAnthropic:
		if req.APIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		return anthropic.New(
			anthropic.WithToken(req.APIKey),
			anthropic.WithModel(req.Model),
		)
	case ProviderOllama:
		return ollama.New(
			ollama.WithModel(req.Model),
			ollama.WithServerURL(c.ollamaHost),
		)
	case ProviderBedrock:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(c.bedrockRegion),
		)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		return bedrock.New(
			bedrock.WithClient(bedrockruntime.NewFromConfig(awsCfg)),
			bedrock.WithModel(req.Model),
		)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", c.provider)
	}
}

// messages assembles the provider message list: system prompt, then the
// conversation turns. The history already ends with the turn being
// replied to, so the request message stands alone only when there is no
// history at all (title generation sends the transcript that way).
func messages(req Request) []llms.MessageContent {
	msgs := make([]llms.MessageContent, 0, len(req.History)+2)
	if req.SystemPrompt != "" {
		msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, req.SystemPrompt))
	}
	if len(req.History) == 0 {
		return append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, req.Message))
	}
	for _, turn := range req.History {
		role := llms.ChatMessageTypeHuman
		if turn.Role == "assistant" {
			role = llms.ChatMessageTypeAI
		}
		msgs = append(msgs, llms.TextParts(role, turn.Content))
	}
	return msgs
}

// Chat generates a reply, streaming it as framed events when requested.
func (c *ProviderClient) Chat(ctx context.Context, req Request) (*Reply, error) {
	model, err := c.buildModel(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create %s model: %w", c.provider, err)
	}

	msgs := messages(req)

	if !req.Streaming {
		resp, err := model.GenerateContent(ctx, msgs)
		if err != nil {
			return nil, fmt.Errorf("generate: %w", err)
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("no response choices")
		}
		return &Reply{Response: resp.Choices[0].Content}, nil
	}

	pr, pw := io.Pipe()
	go func() {
		_, err := model.GenerateContent(ctx, msgs,
			llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
				return stream.WriteEvent(pw, stream.Event{
					Type:    stream.EventContent,
					Content: string(chunk),
				})
			}),
		)
		if err != nil {
			c.logger.Debug("provider stream ended with error", "provider", c.provider, "error", err)
			// Closing with the error surfaces it through the decoder's
			// reader; the orchestrator treats it as a transport failure.
			pw.CloseWithError(err)
			return
		}
		if err := stream.WriteEvent(pw, stream.Event{Type: stream.EventDone}); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.Close()
	}()

	return &Reply{Stream: pr}, nil
}
