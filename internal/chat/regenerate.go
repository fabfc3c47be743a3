package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mlundqvist/matechat-go/internal/metrics"
	"github.com/mlundqvist/matechat-go/internal/models"
	"github.com/mlundqvist/matechat-go/internal/store"
)

// ErrNotRegenerable reports an attempt to regenerate a message that is
// not an agent reply.
var ErrNotRegenerable = errors.New("message cannot be regenerated")

// Regenerate re-runs the step that produced an agent message and
// overwrites it in place. The message keeps its id and position; only
// content, reasoning and metadata change. History sent to the model is
// cut off before the message, so the new reply is generated from the
// same vantage point as the original. On failure the original content
// is restored.
func (o *Orchestrator) Regenerate(ctx context.Context, messageID string) error {
	o.mu.Lock()
	if o.loading {
		o.mu.Unlock()
		return ErrRoundInFlight
	}
	ctx, cancel := context.WithCancel(ctx)
	o.loading = true
	o.cancelRound = cancel
	convID := o.conversationID
	o.mu.Unlock()

	defer func() {
		cancel()
		o.mu.Lock()
		o.loading = false
		o.cancelRound = nil
		o.mu.Unlock()
	}()

	conv, ok := o.store.Conversation(convID)
	if !ok {
		return fmt.Errorf("%w: %s", store.ErrConversationNotFound, convID)
	}
	idx := conv.MessageIndex(messageID)
	if idx < 0 {
		return fmt.Errorf("%w: %s", store.ErrMessageNotFound, messageID)
	}
	original := conv.Messages[idx]
	if original.Role == models.RoleUser {
		return fmt.Errorf("%w: %s is a user message", ErrNotRegenerable, messageID)
	}

	msgType, input, err := regenerationStep(conv, idx)
	if err != nil {
		return err
	}

	eff := o.effectiveSettings(convID)
	req := o.buildRequest(eff, msgType, conv.Messages[:idx], input)

	o.updateView(messageID, func(m *models.Message) {
		m.Content = ""
		m.Reasoning = ""
		m.IsStreaming = true
	})

	restore := func() {
		o.updateView(messageID, func(m *models.Message) {
			m.Content = original.Content
			m.Reasoning = original.Reasoning
			m.IsStreaming = false
		})
	}

	started := o.now()
	reply, err := o.client.Chat(ctx, req)
	if err != nil {
		restore()
		if ctx.Err() != nil {
			o.listener.Notify(NotifyInfo, "Cancelled")
			return ErrCancelled
		}
		o.listener.Notify(NotifyError, stepFailureMessage(msgType))
		return fmt.Errorf("%s request: %w", msgType, err)
	}

	var content, reasoning strings.Builder
	streamed := reply.Streaming()
	if streamed {
		if err := o.consumeStream(ctx, reply, messageID, &content, &reasoning); err != nil {
			restore()
			if errors.Is(err, ErrCancelled) {
				o.listener.Notify(NotifyInfo, "Cancelled")
				return ErrCancelled
			}
			o.listener.Notify(NotifyError, stepFailureMessage(msgType))
			return fmt.Errorf("%s stream: %w", msgType, err)
		}
	} else {
		content.WriteString(reply.Response)
		reasoning.WriteString(reply.Reasoning)
	}

	finished := o.now()
	newContent, newReasoning := content.String(), reasoning.String()
	meta := &models.MessageMetadata{
		Model:      eff.Model,
		StartedAt:  started,
		FinishedAt: finished,
		ElapsedMS:  finished.Sub(started).Milliseconds(),
	}
	err = o.store.UpdateMessage(convID, messageID, store.MessageUpdate{
		Content:   &newContent,
		Reasoning: &newReasoning,
		Metadata:  meta,
	})
	if err != nil {
		restore()
		o.listener.Notify(NotifyError, "Could not save the reply")
		return fmt.Errorf("persist regenerated %s: %w", msgType, err)
	}

	o.updateView(messageID, func(m *models.Message) {
		m.Content = newContent
		m.Reasoning = newReasoning
		m.IsStreaming = false
		m.Metadata = meta
	})

	op := metrics.OpChatGenerate
	if streamed {
		op = metrics.OpChatStream
	}
	o.stats.RecordGeneration(op, finished.Sub(started), int64(len(newContent)))

	o.listener.ConversationUpdated()
	return nil
}

// regenerationStep recovers the step kind and its input from the
// message's position in the tree. Editor comments take their parent's
// text as input; a chat-mate reply takes the last user message before
// it.
func regenerationStep(conv models.Conversation, idx int) (models.MessageType, string, error) {
	m := conv.Messages[idx]
	switch m.Role {
	case models.RoleChatMate:
		for i := idx - 1; i >= 0; i-- {
			if conv.Messages[i].Role == models.RoleUser {
				return models.TypeChatMateResponse, conv.Messages[i].Content, nil
			}
		}
		return "", "", fmt.Errorf("%w: no user message precedes %s", ErrNotRegenerable, m.ID)
	case models.RoleEditorMate:
		if m.ParentMessageID == nil {
			return models.TypeEditorMateResponse, lastUserContent(conv, idx), nil
		}
		pi := conv.MessageIndex(*m.ParentMessageID)
		if pi < 0 {
			return "", "", fmt.Errorf("%w: parent %s missing", store.ErrMessageNotFound, *m.ParentMessageID)
		}
		parent := conv.Messages[pi]
		if parent.Role == models.RoleChatMate {
			return models.TypeEditorMateChatMateComment, parent.Content, nil
		}
		return models.TypeEditorMateUserComment, parent.Content, nil
	default:
		return "", "", fmt.Errorf("%w: role %s", ErrNotRegenerable, m.Role)
	}
}

func lastUserContent(conv models.Conversation, idx int) string {
	for i := idx - 1; i >= 0; i-- {
		if conv.Messages[i].Role == models.RoleUser {
			return conv.Messages[i].Content
		}
	}
	return ""
}
