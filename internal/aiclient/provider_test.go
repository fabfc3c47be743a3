package aiclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/mlundqvist/matechat-go/internal/prompt"
)

func turnContents(msgs []llms.MessageContent) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		for _, p := range m.Parts {
			if t, ok := p.(llms.TextContent); ok {
				out = append(out, t.Text)
			}
		}
	}
	return out
}

func TestMessages_FocalTurnAppearsOnce(t *testing.T) {
	req := Request{
		Message:      "Hej",
		SystemPrompt: "You are a conversation partner.",
		History: []prompt.Turn{
			{Role: "user", Content: "God morgon"},
			{Role: "assistant", Content: "God morgon!"},
			{Role: "user", Content: "Hej"},
		},
	}

	msgs := messages(req)
	require.Len(t, msgs, 4)
	assert.Equal(t, llms.ChatMessageTypeSystem, msgs[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, msgs[len(msgs)-1].Role)

	// The turn being replied to rides in the history; it must not be
	// appended a second time.
	got := turnContents(msgs[1:])
	assert.Equal(t, []string{"God morgon", "God morgon!", "Hej"}, got)
}

func TestMessages_EmptyHistoryUsesMessage(t *testing.T) {
	req := Request{
		Message:      "User: Hej\nPartner: Hej hej!",
		SystemPrompt: "Generate a title.",
	}

	msgs := messages(req)
	require.Len(t, msgs, 2)
	assert.Equal(t, llms.ChatMessageTypeHuman, msgs[1].Role)
	assert.Equal(t, []string{req.Message}, turnContents(msgs[1:]))
}

func TestMessages_MapsAssistantRole(t *testing.T) {
	req := Request{
		History: []prompt.Turn{
			{Role: "user", Content: "[User]: Hej"},
			{Role: "assistant", Content: "[Chat Mate]: Hej hej!"},
		},
	}

	msgs := messages(req)
	require.Len(t, msgs, 2)
	assert.Equal(t, llms.ChatMessageTypeHuman, msgs[0].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, msgs[1].Role)
}
