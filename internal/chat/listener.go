package chat

import "github.com/mlundqvist/matechat-go/internal/models"

// NotifyLevel classifies user-facing notifications.
type NotifyLevel int

const (
	NotifyInfo NotifyLevel = iota
	NotifyError
)

// Listener receives the orchestrator's view-layer callbacks. All
// callbacks fire after the corresponding state change is complete, so a
// listener can re-read the store or the live view immediately.
type Listener interface {
	// ConversationCreated fires when a round lazily creates the
	// conversation for its first user message.
	ConversationCreated(id string)

	// ConversationUpdated fires after structural changes: a completed
	// round, tree operations, title updates.
	ConversationUpdated()

	// Notify carries a short user-facing message. Recoverable failures
	// arrive as NotifyError; cancellation is NotifyInfo, it is an
	// outcome, not a failure.
	Notify(level NotifyLevel, message string)
}

// StreamObserver is an optional Listener extension. A listener that
// implements it receives a snapshot of the updated message after every
// streaming delta, which is how a transport can relay partial replies
// as they arrive.
type StreamObserver interface {
	MessageUpdated(m models.Message)
}

// NopListener discards all callbacks. Useful as a default and in tests
// that do not care about notifications.
type NopListener struct{}

func (NopListener) ConversationCreated(string)      {}
func (NopListener) ConversationUpdated()            {}
func (NopListener) Notify(NotifyLevel, string)      {}
