// Package chat drives the three-step agent round a user message
// triggers: Editor Mate comments on the user, Chat Mate replies, Editor
// Mate comments on the reply. It owns the live view state, optimistic
// placeholders and their reconciliation with store-assigned ids, and
// cooperative cancellation of in-flight rounds.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mlundqvist/matechat-go/internal/aiclient"
	"github.com/mlundqvist/matechat-go/internal/metrics"
	"github.com/mlundqvist/matechat-go/internal/models"
	"github.com/mlundqvist/matechat-go/internal/prompt"
	"github.com/mlundqvist/matechat-go/internal/settings"
	"github.com/mlundqvist/matechat-go/internal/store"
	"github.com/mlundqvist/matechat-go/internal/stream"
)

// ErrCancelled reports that the round was aborted by the user. It is an
// outcome, not a failure.
var ErrCancelled = errors.New("round cancelled")

// ErrRoundInFlight reports a submit or regenerate attempted while a
// round is still running. One round at a time: overlapping rounds would
// interleave the live view and fight over the cancel handle.
var ErrRoundInFlight = errors.New("a round is already in flight")

// Options configures an Orchestrator.
type Options struct {
	Logger   *slog.Logger
	Metrics  *metrics.Collector
	Listener Listener

	// Now is swappable for tests.
	Now func() time.Time
}

// Orchestrator sequences the agent steps for one conversation at a
// time. It holds no exclusive lock across a round: callers are expected
// to disable further submission while IsLoading reports true.
type Orchestrator struct {
	store    *store.Store
	resolver *settings.Resolver
	client   aiclient.Client
	logger   *slog.Logger
	stats    *metrics.Collector
	listener Listener
	now      func() time.Time

	mu             sync.Mutex
	conversationID string
	view           []models.Message
	loading        bool
	cancelRound    context.CancelFunc

	// pending user selections, consumed at the next round start.
	pendingLanguage string
	pendingModel    string

	titleStarted map[string]bool
	titleWG      sync.WaitGroup
}

// NewOrchestrator creates an orchestrator over the given collaborators.
func NewOrchestrator(s *store.Store, r *settings.Resolver, c aiclient.Client, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	listener := opts.Listener
	if listener == nil {
		listener = NopListener{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		store:        s,
		resolver:     r,
		client:       c,
		logger:       logger,
		stats:        opts.Metrics,
		listener:     listener,
		now:          now,
		titleStarted: map[string]bool{},
	}
}

// SetConversation switches the live view to an existing conversation,
// or to a fresh empty one when id is "". The conversation itself is
// only created lazily, on the first submitted message.
func (o *Orchestrator) SetConversation(id string) error {
	var msgs []models.Message
	if id != "" {
		conv, ok := o.store.Conversation(id)
		if !ok {
			return fmt.Errorf("%w: %s", store.ErrConversationNotFound, id)
		}
		msgs = conv.Messages
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.conversationID = id
	o.view = msgs
	return nil
}

// ConversationID returns the current conversation id, or "" before the
// first message of a fresh chat.
func (o *Orchestrator) ConversationID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.conversationID
}

// IsLoading reports whether a round is in flight.
func (o *Orchestrator) IsLoading() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.loading
}

// SetPendingSelection records a language/model choice the user made
// before the conversation exists. It is captured once at the next round
// start; empty strings leave the current selection untouched.
func (o *Orchestrator) SetPendingSelection(language, model string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if language != "" {
		o.pendingLanguage = language
	}
	if model != "" {
		o.pendingModel = model
	}
}

// Cancel aborts the in-flight round, if any. Placeholders still
// streaming are discarded; messages settled earlier in the round stay.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	cancel := o.cancelRound
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until background work (title generation) has finished.
func (o *Orchestrator) Wait() {
	o.titleWG.Wait()
}

// Submit runs one full round for the given user text: persist the user
// message, then the three agent steps in strict order. Each step's
// network call is issued only after the previous step's message has
// settled; Editor Mate's second comment depends on Chat Mate's
// completed output.
func (o *Orchestrator) Submit(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("empty message")
	}

	ctx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	if o.loading {
		o.mu.Unlock()
		cancel()
		return ErrRoundInFlight
	}
	o.loading = true
	o.cancelRound = cancel
	convID := o.conversationID
	pendingLang := o.pendingLanguage
	pendingModel := o.pendingModel
	o.mu.Unlock()

	defer func() {
		cancel()
		o.mu.Lock()
		o.loading = false
		o.cancelRound = nil
		o.mu.Unlock()
	}()

	// Lazy conversation creation, on the first user message only.
	if convID == "" {
		id, err := o.createConversation(pendingLang, pendingModel)
		if err != nil {
			o.listener.Notify(NotifyError, "Could not create conversation")
			return err
		}
		convID = id
	}

	// Effective settings are captured once at round start and threaded
	// through all three steps.
	eff := o.effectiveSettings(convID)

	// Optimistic user message: shown immediately under a temporary id,
	// swapped for the durable id as soon as the store assigns one.
	temp := models.Message{ID: models.NewTempID(), Role: models.RoleUser, Content: text, Timestamp: o.now()}
	o.appendView(temp)
	userMsg, err := o.store.AddMessage(convID, models.Message{Role: models.RoleUser, Content: text})
	if err != nil {
		o.removeView(temp.ID)
		o.listener.Notify(NotifyError, "Could not save your message")
		return fmt.Errorf("persist user message: %w", err)
	}
	o.reconcile(temp.ID, userMsg)

	// Step 1: Editor Mate comments on what the user wrote.
	if _, err := o.runStep(ctx, convID, eff, models.TypeEditorMateUserComment, &userMsg.ID, text); err != nil {
		return o.failRound(err)
	}

	// Step 2: Chat Mate replies.
	chatMsg, err := o.runStep(ctx, convID, eff, models.TypeChatMateResponse, nil, text)
	if err != nil {
		return o.failRound(err)
	}

	// Step 3: Editor Mate explains Chat Mate's reply.
	if _, err := o.runStep(ctx, convID, eff, models.TypeEditorMateChatMateComment, &chatMsg.ID, chatMsg.Content); err != nil {
		return o.failRound(err)
	}

	o.listener.ConversationUpdated()
	o.maybeGenerateTitle(convID, eff)
	return nil
}

// createConversation makes the conversation for a first message,
// resolving its target language from the pending user selection if one
// exists, else the ambient default.
func (o *Orchestrator) createConversation(pendingLang, pendingModel string) (string, error) {
	lang := pendingLang
	if lang == "" {
		lang = o.store.GlobalSettings().TargetLanguage
	}
	conv, err := o.store.CreateConversation(models.Conversation{TargetLanguage: lang})
	if err != nil {
		return "", fmt.Errorf("create conversation: %w", err)
	}

	if pendingLang != "" || pendingModel != "" {
		override := models.SettingsOverride{}
		if pendingLang != "" {
			override.TargetLanguage = &pendingLang
		}
		if pendingModel != "" {
			override.Model = &pendingModel
		}
		if err := o.store.SetOverride(conv.ID, override); err != nil {
			return "", fmt.Errorf("store selection override: %w", err)
		}
	}

	o.mu.Lock()
	o.conversationID = conv.ID
	o.pendingLanguage = ""
	o.pendingModel = ""
	o.mu.Unlock()

	o.listener.ConversationCreated(conv.ID)
	return conv.ID, nil
}

// effectiveSettings resolves settings for the round. An override
// language wins; otherwise the conversation's own target language beats
// the global default, since the language is fixed at creation unless
// explicitly overridden later.
func (o *Orchestrator) effectiveSettings(convID string) models.GlobalSettings {
	eff := o.resolver.Resolve(convID)
	if override, ok := o.store.Override(convID); ok && override.TargetLanguage != nil {
		return eff
	}
	if conv, ok := o.store.Conversation(convID); ok && conv.TargetLanguage != "" {
		eff.TargetLanguage = conv.TargetLanguage
	}
	return eff
}

// failRound maps a step failure into the round outcome. Cancellation
// discards any leftover streaming placeholders and reports as an
// outcome; real failures were already notified per step.
func (o *Orchestrator) failRound(err error) error {
	if errors.Is(err, ErrCancelled) {
		o.discardStreaming()
		o.listener.Notify(NotifyInfo, "Cancelled")
		return ErrCancelled
	}
	return err
}

// runStep executes one agent step: placeholder, network call, incre-
// mental decode, persistence, id reconciliation. On failure the
// placeholder is removed from view; earlier settled messages are left
// alone.
func (o *Orchestrator) runStep(
	ctx context.Context,
	convID string,
	eff models.GlobalSettings,
	msgType models.MessageType,
	parentID *string,
	input string,
) (models.Message, error) {
	if ctx.Err() != nil {
		return models.Message{}, ErrCancelled
	}

	role := models.RoleEditorMate
	if msgType == models.TypeChatMateResponse {
		role = models.RoleChatMate
	}

	placeholder := models.Message{
		ID:              models.NewTempID(),
		Role:            role,
		Timestamp:       o.now(),
		IsStreaming:     true,
		ParentMessageID: parentID,
	}
	o.appendView(placeholder)

	conv, ok := o.store.Conversation(convID)
	if !ok {
		o.removeView(placeholder.ID)
		return models.Message{}, fmt.Errorf("%w: %s", store.ErrConversationNotFound, convID)
	}

	req := o.buildRequest(eff, msgType, conv.Messages, input)

	started := o.now()
	reply, err := o.client.Chat(ctx, req)
	if err != nil {
		o.removeView(placeholder.ID)
		if ctx.Err() != nil {
			return models.Message{}, ErrCancelled
		}
		o.listener.Notify(NotifyError, stepFailureMessage(msgType))
		return models.Message{}, fmt.Errorf("%s request: %w", msgType, err)
	}

	var content, reasoning strings.Builder
	streamed := reply.Streaming()
	if streamed {
		err = o.consumeStream(ctx, reply, placeholder.ID, &content, &reasoning)
		if err != nil {
			o.removeView(placeholder.ID)
			if errors.Is(err, ErrCancelled) {
				return models.Message{}, ErrCancelled
			}
			o.listener.Notify(NotifyError, stepFailureMessage(msgType))
			return models.Message{}, fmt.Errorf("%s stream: %w", msgType, err)
		}
	} else {
		content.WriteString(reply.Response)
		reasoning.WriteString(reply.Reasoning)
		text, reason := content.String(), reasoning.String()
		o.updateView(placeholder.ID, func(m *models.Message) {
			m.Content = text
			m.Reasoning = reason
		})
	}

	finished := o.now()
	meta := &models.MessageMetadata{
		Model:      eff.Model,
		StartedAt:  started,
		FinishedAt: finished,
		ElapsedMS:  finished.Sub(started).Milliseconds(),
	}

	persisted, err := o.store.AddMessage(convID, models.Message{
		Role:            role,
		Content:         content.String(),
		Reasoning:       reasoning.String(),
		ParentMessageID: parentID,
		Metadata:        meta,
	})
	if err != nil {
		o.removeView(placeholder.ID)
		o.listener.Notify(NotifyError, "Could not save the reply")
		return models.Message{}, fmt.Errorf("persist %s: %w", msgType, err)
	}
	o.reconcile(placeholder.ID, persisted)

	op := metrics.OpChatGenerate
	if streamed {
		op = metrics.OpChatStream
	}
	o.stats.RecordGeneration(op, finished.Sub(started), int64(len(persisted.Content)))

	return persisted, nil
}

// consumeStream feeds decoded deltas into the placeholder until the
// done event. The context is checked every iteration so cancellation
// takes effect within one decode step.
func (o *Orchestrator) consumeStream(ctx context.Context, reply *aiclient.Reply, placeholderID string, content, reasoning *strings.Builder) error {
	defer reply.Stream.Close()
	dec := stream.NewDecoder(reply.Stream, o.logger)
	for {
		ev, err := dec.Next(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ErrCancelled
			}
			return err
		}
		switch ev.Type {
		case stream.EventContent:
			content.WriteString(ev.Content)
			text := content.String()
			o.updateView(placeholderID, func(m *models.Message) { m.Content = text })
		case stream.EventReasoning:
			reasoning.WriteString(ev.Content)
			text := reasoning.String()
			o.updateView(placeholderID, func(m *models.Message) { m.Reasoning = text })
		case stream.EventDone:
			return nil
		}
	}
}

// buildRequest assembles the wire request for one step.
func (o *Orchestrator) buildRequest(eff models.GlobalSettings, msgType models.MessageType, history []models.Message, input string) aiclient.Request {
	date, clock, tz := aiclient.NowStrings(o.now())
	return aiclient.Request{
		Message:     input,
		MessageType: msgType,
		History:     prompt.History(history, msgType),
		SystemPrompt: prompt.System(prompt.Params{
			MessageType:           msgType,
			TargetLanguage:        eff.TargetLanguage,
			ChatMatePersonality:   eff.ChatMatePersonality,
			EditorMatePersonality: eff.EditorMatePersonality,
			FeedbackStyle:         eff.FeedbackStyle,
			CulturalContext:       eff.CulturalContext,
			ProgressiveComplexity: eff.ProgressiveComplexity,
		}),
		TargetLanguage:  eff.TargetLanguage,
		Model:           eff.Model,
		APIKey:          eff.APIKey,
		EnableReasoning: eff.EnableReasoning,
		CurrentDate:     date,
		CurrentTime:     clock,
		Timezone:        tz,
		Streaming:       eff.EnableStreaming,
	}
}

func stepFailureMessage(msgType models.MessageType) string {
	if msgType == models.TypeChatMateResponse {
		return "Chat Mate could not reply"
	}
	return "Editor Mate could not comment"
}
