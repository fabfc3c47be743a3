package store

import "errors"

// Sentinel errors for store operations.
// Use errors.Is() to check for these in calling code.
var (
	// ErrConversationNotFound indicates the referenced conversation does
	// not exist in the store.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrMessageNotFound indicates the referenced message does not exist
	// in the conversation.
	ErrMessageNotFound = errors.New("message not found")

	// ErrInvalidState indicates the in-memory snapshot failed validation
	// before a write. This is a programming fault in the caller, not a
	// recoverable storage condition.
	ErrInvalidState = errors.New("invalid store state")

	// ErrInvalidImport indicates an import blob failed validation. The
	// existing state is left untouched.
	ErrInvalidImport = errors.New("invalid import data")

	// ErrClosed indicates the store has been closed.
	ErrClosed = errors.New("store is closed")
)
