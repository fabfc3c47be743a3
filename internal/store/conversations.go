package store

import (
	"fmt"
	"sort"

	"github.com/mlundqvist/matechat-go/internal/models"
)

// CreateConversation assigns a fresh identifier and timestamps to the
// partial conversation and stores it with an empty message list unless
// messages were supplied (fork copies arrive pre-populated).
func (s *Store) CreateConversation(partial models.Conversation) (models.Conversation, error) {
	var created models.Conversation
	err := s.mutate(func(b *Blob) error {
		now := s.now()
		c := partial
		c.ID = models.NewID()
		c.CreatedAt = now
		c.UpdatedAt = now
		if c.Messages == nil {
			c.Messages = []models.Message{}
		}
		if err := c.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidState, err)
		}
		b.Conversations = append(b.Conversations, c)
		created = cloneConversation(&c)
		return nil
	})
	return created, err
}

// Conversation returns a copy of the conversation, or false if absent.
func (s *Store) Conversation(id string) (models.Conversation, bool) {
	var (
		out models.Conversation
		ok  bool
	)
	s.view(func(b *Blob) {
		if c := findConversation(b, id); c != nil {
			out = cloneConversation(c)
			ok = true
		}
	})
	return out, ok
}

// ListConversations returns copies of all conversations, most recently
// updated first.
func (s *Store) ListConversations() []models.Conversation {
	var out []models.Conversation
	s.view(func(b *Blob) {
		out = make([]models.Conversation, 0, len(b.Conversations))
		for i := range b.Conversations {
			out = append(out, cloneConversation(&b.Conversations[i]))
		}
	})
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// ConversationUpdate carries partial conversation changes.
type ConversationUpdate struct {
	Title          *string
	TargetLanguage *string
}

// UpdateConversation applies a partial update and bumps updated_at.
func (s *Store) UpdateConversation(id string, upd ConversationUpdate) error {
	return s.mutate(func(b *Blob) error {
		c := findConversation(b, id)
		if c == nil {
			return fmt.Errorf("%w: %s", ErrConversationNotFound, id)
		}
		if upd.Title != nil {
			c.Title = *upd.Title
		}
		if upd.TargetLanguage != nil {
			c.TargetLanguage = *upd.TargetLanguage
		}
		c.UpdatedAt = s.now()
		return nil
	})
}

// DeleteConversation removes the conversation and its settings override
// together.
func (s *Store) DeleteConversation(id string) error {
	return s.mutate(func(b *Blob) error {
		for i := range b.Conversations {
			if b.Conversations[i].ID == id {
				b.Conversations = append(b.Conversations[:i], b.Conversations[i+1:]...)
				delete(b.ConversationSettings, id)
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	})
}

// AddMessage assigns a fresh message identifier and timestamp, appends
// the message and bumps the conversation's updated_at. The returned
// message carries the durable identifier: this is the moment an
// optimistic placeholder id is exchanged for a durable one.
func (s *Store) AddMessage(conversationID string, partial models.Message) (models.Message, error) {
	var persisted models.Message
	err := s.mutate(func(b *Blob) error {
		c := findConversation(b, conversationID)
		if c == nil {
			return fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
		}
		m := partial
		m.ID = models.NewID()
		m.Timestamp = s.now()
		m.IsStreaming = false
		if err := m.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidState, err)
		}
		if m.ParentMessageID != nil && c.MessageIndex(*m.ParentMessageID) < 0 {
			return fmt.Errorf("%w: parent %s", ErrMessageNotFound, *m.ParentMessageID)
		}
		c.Messages = append(c.Messages, m)
		c.UpdatedAt = s.now()
		persisted = cloneMessage(&m)
		return nil
	})
	return persisted, err
}

// MessageUpdate carries partial message changes. Nil fields are left
// untouched.
type MessageUpdate struct {
	Content   *string
	Reasoning *string
	Metadata  *models.MessageMetadata
}

// UpdateMessage applies a partial update to one message and bumps the
// conversation's updated_at. The message timestamp is not altered.
func (s *Store) UpdateMessage(conversationID, messageID string, upd MessageUpdate) error {
	return s.mutate(func(b *Blob) error {
		c := findConversation(b, conversationID)
		if c == nil {
			return fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
		}
		i := c.MessageIndex(messageID)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrMessageNotFound, messageID)
		}
		m := &c.Messages[i]
		if upd.Content != nil {
			m.Content = *upd.Content
		}
		if upd.Reasoning != nil {
			m.Reasoning = *upd.Reasoning
		}
		if upd.Metadata != nil {
			meta := *upd.Metadata
			m.Metadata = &meta
		}
		c.UpdatedAt = s.now()
		return nil
	})
}

// DeleteMessage removes exactly one message. Parent references held by
// later messages are weak and left dangling-free: references to the
// removed message are cleared.
func (s *Store) DeleteMessage(conversationID, messageID string) error {
	return s.mutate(func(b *Blob) error {
		c := findConversation(b, conversationID)
		if c == nil {
			return fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
		}
		i := c.MessageIndex(messageID)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrMessageNotFound, messageID)
		}
		c.Messages = append(c.Messages[:i], c.Messages[i+1:]...)
		clearParentRefs(c, messageID)
		c.UpdatedAt = s.now()
		return nil
	})
}

// DeleteMessagesFrom removes the message and every message after it in
// conversation order. A tail truncation, not a dependency traversal.
func (s *Store) DeleteMessagesFrom(conversationID, messageID string) error {
	return s.mutate(func(b *Blob) error {
		c := findConversation(b, conversationID)
		if c == nil {
			return fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
		}
		i := c.MessageIndex(messageID)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrMessageNotFound, messageID)
		}
		removed := c.Messages[i:]
		c.Messages = c.Messages[:i]
		for j := range removed {
			clearParentRefs(c, removed[j].ID)
		}
		c.UpdatedAt = s.now()
		return nil
	})
}

func findConversation(b *Blob, id string) *models.Conversation {
	for i := range b.Conversations {
		if b.Conversations[i].ID == id {
			return &b.Conversations[i]
		}
	}
	return nil
}

func clearParentRefs(c *models.Conversation, removedID string) {
	for i := range c.Messages {
		if p := c.Messages[i].ParentMessageID; p != nil && *p == removedID {
			c.Messages[i].ParentMessageID = nil
		}
	}
}
