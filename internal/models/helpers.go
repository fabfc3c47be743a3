// Package models defines the conversation, message and settings types
// shared by the store, the orchestrator and the transports.
package models

import (
	"strings"

	"github.com/google/uuid"
)

// tempIDPrefix marks identifiers that exist only in view state and are
// swapped for a store-assigned id once the message is persisted.
const tempIDPrefix = "tmp-"

// NewID returns a fresh durable identifier.
func NewID() string {
	return uuid.NewString()
}

// NewTempID returns a fresh placeholder identifier for optimistic
// in-memory messages that have not been persisted yet.
func NewTempID() string {
	return tempIDPrefix + uuid.NewString()
}

// IsTempID reports whether id was produced by NewTempID.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, tempIDPrefix)
}
