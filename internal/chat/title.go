package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/mlundqvist/matechat-go/internal/aiclient"
	"github.com/mlundqvist/matechat-go/internal/metrics"
	"github.com/mlundqvist/matechat-go/internal/models"
	"github.com/mlundqvist/matechat-go/internal/prompt"
	"github.com/mlundqvist/matechat-go/internal/store"
	"github.com/mlundqvist/matechat-go/internal/stream"
)

const titleTimeout = 30 * time.Second

// maybeGenerateTitle starts a background title generation after the
// first complete round of an untitled conversation. The attempt marker
// is set before spawning so rapid consecutive rounds trigger at most
// one request; a failed attempt clears it so the next round retries.
func (o *Orchestrator) maybeGenerateTitle(convID string, eff models.GlobalSettings) {
	conv, ok := o.store.Conversation(convID)
	if !ok || conv.Title != "" {
		return
	}
	counts := conv.CountByRole()
	if counts[models.RoleUser] < 1 || counts[models.RoleChatMate] < 1 || counts[models.RoleEditorMate] < 2 {
		return
	}

	o.mu.Lock()
	if o.titleStarted[convID] {
		o.mu.Unlock()
		return
	}
	o.titleStarted[convID] = true
	o.mu.Unlock()

	o.titleWG.Add(1)
	go func() {
		defer o.titleWG.Done()
		if err := o.generateTitle(conv, eff); err != nil {
			o.logger.Warn("title generation failed", "conversation", convID, "error", err)
			o.mu.Lock()
			delete(o.titleStarted, convID)
			o.mu.Unlock()
		}
	}()
}

// generateTitle asks the model for a short title and stores it. The
// request is always non-streaming regardless of the chat setting, and
// runs detached from the round's context so cancelling a later round
// does not kill it.
func (o *Orchestrator) generateTitle(conv models.Conversation, eff models.GlobalSettings) error {
	ctx, cancel := context.WithTimeout(context.Background(), titleTimeout)
	defer cancel()

	date, clock, tz := aiclient.NowStrings(o.now())
	req := aiclient.Request{
		Message:        transcript(conv.Messages),
		MessageType:    models.TypeChatMateResponse,
		SystemPrompt:   prompt.Title(conv.TargetLanguage),
		TargetLanguage: conv.TargetLanguage,
		Model:          eff.Model,
		APIKey:         eff.APIKey,
		CurrentDate:    date,
		CurrentTime:    clock,
		Timezone:       tz,
		Streaming:      false,
	}

	started := o.now()
	reply, err := o.client.Chat(ctx, req)
	if err != nil {
		return err
	}

	title := reply.Response
	if reply.Streaming() {
		title, err = drainStream(ctx, reply.Stream, o.logger)
		if err != nil {
			return err
		}
	}
	title = cleanTitle(title)
	if title == "" {
		return errEmptyTitle
	}

	err = o.store.UpdateConversation(conv.ID, store.ConversationUpdate{Title: &title})
	if err != nil {
		return err
	}
	o.stats.RecordGeneration(metrics.OpTitleGenerate, o.now().Sub(started), int64(len(title)))
	o.listener.ConversationUpdated()
	return nil
}

var errEmptyTitle = errors.New("model returned an empty title")

// transcript flattens the user/chat-mate exchange into the prompt
// payload for title generation. Editor commentary is noise for this
// purpose.
func transcript(messages []models.Message) string {
	var b strings.Builder
	for i := range messages {
		m := &messages[i]
		if m.IsStreaming || m.Role == models.RoleEditorMate {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		tag := "User"
		if m.Role == models.RoleChatMate {
			tag = "Partner"
		}
		b.WriteString(tag)
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return b.String()
}

// drainStream collects a full streamed reply into one string, for the
// providers that only speak the event-stream shape.
func drainStream(ctx context.Context, rc io.ReadCloser, logger *slog.Logger) (string, error) {
	defer rc.Close()
	var b strings.Builder
	dec := stream.NewDecoder(rc, logger)
	for {
		ev, err := dec.Next(ctx)
		if err == io.EOF {
			return b.String(), nil
		}
		if err != nil {
			return "", err
		}
		if ev.Type == stream.EventContent {
			b.WriteString(ev.Content)
		}
	}
}

// cleanTitle trims quoting and whitespace the model tends to add.
func cleanTitle(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	s = strings.TrimSuffix(s, ".")
	return strings.TrimSpace(s)
}
