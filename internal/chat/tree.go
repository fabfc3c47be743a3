package chat

import (
	"fmt"

	"github.com/mlundqvist/matechat-go/internal/models"
	"github.com/mlundqvist/matechat-go/internal/store"
)

// Fork copies the current conversation up to and including the given
// message into a new conversation. Copied messages get fresh durable
// ids with parent links re-pointed to the copies; the fork inherits the
// source's target language, and its persona settings by override. The
// returned conversation is the fork; the live view is not switched.
func (o *Orchestrator) Fork(messageID string) (models.Conversation, error) {
	o.mu.Lock()
	convID := o.conversationID
	o.mu.Unlock()

	conv, ok := o.store.Conversation(convID)
	if !ok {
		return models.Conversation{}, fmt.Errorf("%w: %s", store.ErrConversationNotFound, convID)
	}
	cut := conv.MessageIndex(messageID)
	if cut < 0 {
		return models.Conversation{}, fmt.Errorf("%w: %s", store.ErrMessageNotFound, messageID)
	}

	// Remap ids first so parent links can be re-pointed in one pass.
	idMap := make(map[string]string, cut+1)
	for i := 0; i <= cut; i++ {
		idMap[conv.Messages[i].ID] = models.NewID()
	}

	copied := make([]models.Message, 0, cut+1)
	for i := 0; i <= cut; i++ {
		m := conv.Messages[i]
		if m.IsStreaming {
			continue
		}
		m.ID = idMap[m.ID]
		if m.ParentMessageID != nil {
			if mapped, ok := idMap[*m.ParentMessageID]; ok {
				m.ParentMessageID = &mapped
			} else {
				m.ParentMessageID = nil
			}
		}
		if m.Metadata != nil {
			meta := *m.Metadata
			m.Metadata = &meta
		}
		copied = append(copied, m)
	}

	title := conv.Title
	if title != "" {
		title = "Fork of " + title
	}
	fork, err := o.store.CreateConversation(models.Conversation{
		Title:          title,
		TargetLanguage: conv.TargetLanguage,
		Messages:       copied,
	})
	if err != nil {
		return models.Conversation{}, fmt.Errorf("create fork: %w", err)
	}

	if override, ok := o.store.Override(convID); ok {
		if err := o.store.SetOverride(fork.ID, override); err != nil {
			return models.Conversation{}, fmt.Errorf("copy settings to fork: %w", err)
		}
	}

	o.listener.ConversationCreated(fork.ID)
	return fork, nil
}

// DeleteMessage removes one message from the current conversation and
// from the live view. Later messages that pointed at it lose the link
// but stay.
func (o *Orchestrator) DeleteMessage(messageID string) error {
	o.mu.Lock()
	convID := o.conversationID
	o.mu.Unlock()

	if err := o.store.DeleteMessage(convID, messageID); err != nil {
		return err
	}
	o.refreshView(convID)
	o.listener.ConversationUpdated()
	return nil
}

// DeleteFrom removes the message and everything after it, rolling the
// conversation back to the point just before it.
func (o *Orchestrator) DeleteFrom(messageID string) error {
	o.mu.Lock()
	convID := o.conversationID
	o.mu.Unlock()

	if err := o.store.DeleteMessagesFrom(convID, messageID); err != nil {
		return err
	}
	o.refreshView(convID)
	o.listener.ConversationUpdated()
	return nil
}

// EditMessage rewrites the content of a user message in place. Agent
// replies are regenerated, not edited.
func (o *Orchestrator) EditMessage(messageID, content string) error {
	o.mu.Lock()
	convID := o.conversationID
	o.mu.Unlock()

	conv, ok := o.store.Conversation(convID)
	if !ok {
		return fmt.Errorf("%w: %s", store.ErrConversationNotFound, convID)
	}
	idx := conv.MessageIndex(messageID)
	if idx < 0 {
		return fmt.Errorf("%w: %s", store.ErrMessageNotFound, messageID)
	}
	if conv.Messages[idx].Role != models.RoleUser {
		return fmt.Errorf("%w: only user messages can be edited", ErrNotRegenerable)
	}

	if err := o.store.UpdateMessage(convID, messageID, store.MessageUpdate{Content: &content}); err != nil {
		return err
	}
	o.updateView(messageID, func(m *models.Message) { m.Content = content })
	o.listener.ConversationUpdated()
	return nil
}

// refreshView reloads the live view from the store after a structural
// change.
func (o *Orchestrator) refreshView(convID string) {
	conv, ok := o.store.Conversation(convID)
	if !ok {
		return
	}
	o.mu.Lock()
	o.view = conv.Messages
	o.mu.Unlock()
}
