package models

import (
	"fmt"
	"time"
)

// Conversation is a persistent chat session with one target language and an
// ordered message list. Owned exclusively by the store; mutate only through
// store operations so updated_at stays accurate.
type Conversation struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	TargetLanguage string    `json:"target_language"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Messages       []Message `json:"messages"`
}

// Validate checks the conversation and all its messages, including the
// parent-before-child invariant on parent_message_id references.
func (c *Conversation) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("conversation: empty id")
	}
	if c.CreatedAt.IsZero() || c.UpdatedAt.IsZero() {
		return fmt.Errorf("conversation %s: zero timestamp", c.ID)
	}

	seen := make(map[string]int, len(c.Messages))
	for i := range c.Messages {
		msg := &c.Messages[i]
		if err := msg.Validate(); err != nil {
			return fmt.Errorf("conversation %s: %w", c.ID, err)
		}
		if _, dup := seen[msg.ID]; dup {
			return fmt.Errorf("conversation %s: duplicate message id %s", c.ID, msg.ID)
		}
		if msg.ParentMessageID != nil {
			pos, ok := seen[*msg.ParentMessageID]
			if !ok {
				return fmt.Errorf("conversation %s: message %s references unknown parent %s",
					c.ID, msg.ID, *msg.ParentMessageID)
			}
			if pos >= i {
				return fmt.Errorf("conversation %s: message %s references non-earlier parent %s",
					c.ID, msg.ID, *msg.ParentMessageID)
			}
		}
		seen[msg.ID] = i
	}
	return nil
}

// MessageIndex returns the position of the message with the given id,
// or -1 if it is not part of the conversation.
func (c *Conversation) MessageIndex(id string) int {
	for i := range c.Messages {
		if c.Messages[i].ID == id {
			return i
		}
	}
	return -1
}

// CountByRole returns how many non-streaming messages each role has.
func (c *Conversation) CountByRole() map[Role]int {
	counts := make(map[Role]int, 3)
	for i := range c.Messages {
		if c.Messages[i].IsStreaming {
			continue
		}
		counts[c.Messages[i].Role]++
	}
	return counts
}
