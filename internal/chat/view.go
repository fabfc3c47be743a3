package chat

import (
	"github.com/mlundqvist/matechat-go/internal/models"
)

// The live view is the message list a renderer shows: persisted
// messages plus optimistic placeholders still streaming. It is the only
// place temporary identifiers ever exist; the store never sees them.

// appendView adds a message to the live view.
func (o *Orchestrator) appendView(m models.Message) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.view = append(o.view, m)
}

// removeView drops a message from the live view by id.
func (o *Orchestrator) removeView(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := range o.view {
		if o.view[i].ID == id {
			o.view = append(o.view[:i], o.view[i+1:]...)
			return
		}
	}
}

// updateView mutates a live view message in place via fn. If the
// listener observes streaming deltas it is handed a snapshot, outside
// the lock.
func (o *Orchestrator) updateView(id string, fn func(*models.Message)) {
	var (
		snapshot models.Message
		found    bool
	)
	o.mu.Lock()
	for i := range o.view {
		if o.view[i].ID == id {
			fn(&o.view[i])
			snapshot = o.view[i]
			found = true
			break
		}
	}
	o.mu.Unlock()

	if found {
		if obs, ok := o.listener.(StreamObserver); ok {
			obs.MessageUpdated(snapshot)
		}
	}
}

// reconcile swaps a placeholder's temporary identifier for the persisted
// message in a single step. Idempotent: applying it twice, or after a
// re-render already replaced the placeholder, never duplicates the
// message.
func (o *Orchestrator) reconcile(tempID string, persisted models.Message) {
	o.mu.Lock()
	defer o.mu.Unlock()

	tempIdx, persistedIdx := -1, -1
	for i := range o.view {
		switch o.view[i].ID {
		case tempID:
			tempIdx = i
		case persisted.ID:
			persistedIdx = i
		}
	}

	switch {
	case tempIdx >= 0 && persistedIdx >= 0:
		// Both representations present: keep the durable one.
		o.view[persistedIdx] = persisted
		o.view = append(o.view[:tempIdx], o.view[tempIdx+1:]...)
	case tempIdx >= 0:
		o.view[tempIdx] = persisted
	case persistedIdx >= 0:
		o.view[persistedIdx] = persisted
	default:
		o.view = append(o.view, persisted)
	}
}

// discardStreaming drops every live view message still marked
// streaming. Used on cancellation: those placeholders were never
// persisted and must not survive the round.
func (o *Orchestrator) discardStreaming() {
	o.mu.Lock()
	defer o.mu.Unlock()
	kept := o.view[:0]
	for i := range o.view {
		if !o.view[i].IsStreaming {
			kept = append(kept, o.view[i])
		}
	}
	o.view = kept
}

// Messages returns a copy of the live view in conversation order.
func (o *Orchestrator) Messages() []models.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]models.Message, len(o.view))
	copy(out, o.view)
	return out
}
