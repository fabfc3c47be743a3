// Package store owns all persistent state: conversations, their
// settings overrides and the global settings. It is in-memory-first:
// every operation is synchronous against an in-memory snapshot, with a
// debounced write-through of the whole snapshot to a local bbolt file.
package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/mlundqvist/matechat-go/internal/metrics"
	"github.com/mlundqvist/matechat-go/internal/models"
)

const (
	bucketName = "matechat"
	stateKey   = "state"

	// defaultSaveDelay is how long writes are debounced before the
	// snapshot is flushed to disk.
	defaultSaveDelay = 250 * time.Millisecond
)

// Options configures a Store.
type Options struct {
	// Path is the bbolt database file. The directory is created if
	// missing.
	Path string

	// Logger receives store diagnostics. Defaults to slog.Default().
	Logger *slog.Logger

	// SaveDelay overrides the write debounce interval. Zero keeps the
	// default.
	SaveDelay time.Duration

	// Metrics optionally records flush timings. Nil is fine.
	Metrics *metrics.Collector
}

// Store is the single source of truth for conversations and settings.
// All mutation methods are synchronous and side-effect-complete before
// returning: a caller never observes a half-written conversation.
type Store struct {
	mu     sync.Mutex
	db     *bolt.DB
	state  Blob
	logger *slog.Logger
	stats  *metrics.Collector

	// flushMu serializes disk writes against Close, so a debounced
	// flush already past the timer stop cannot race db.Close.
	flushMu sync.Mutex

	saveDelay time.Duration
	saveTimer *time.Timer
	dirty     bool
	closed    bool

	onChange func()

	// now is swappable for tests.
	now func() time.Time
}

// Open opens (or creates) the store file and loads the persisted blob.
// A corrupt or schema-invalid blob is discarded in favor of defaults:
// availability over durability, losing one profile's history beats a
// client that can never start again.
func Open(opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := bolt.Open(opts.Path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	delay := opts.SaveDelay
	if delay <= 0 {
		delay = defaultSaveDelay
	}

	s := &Store{
		db:        db,
		logger:    logger,
		stats:     opts.Metrics,
		saveDelay: delay,
		now:       time.Now,
	}
	s.state = s.load()
	return s, nil
}

// load reads and validates the persisted blob, falling back to defaults
// on any failure.
func (s *Store) load() Blob {
	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(stateKey)); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("failed to read persisted state, starting fresh", "error", err)
		return NewBlob()
	}
	if raw == nil {
		return NewBlob()
	}

	var blob Blob
	if err := json.Unmarshal(raw, &blob); err != nil {
		s.logger.Warn("discarding corrupt persisted state", "error", err)
		return NewBlob()
	}
	if blob.ConversationSettings == nil {
		blob.ConversationSettings = map[string]models.SettingsOverride{}
	}
	if blob.Conversations == nil {
		blob.Conversations = []models.Conversation{}
	}
	if err := blob.Validate(); err != nil {
		s.logger.Warn("discarding schema-invalid persisted state", "error", err)
		return NewBlob()
	}
	return blob
}

// SetOnChange registers a callback fired after every successful
// mutation, outside the store's lock. Used by the view layers to
// refresh conversation lists.
func (s *Store) SetOnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// markDirtyLocked schedules a debounced flush. Caller holds the lock.
func (s *Store) markDirtyLocked() {
	s.dirty = true
	if s.saveTimer == nil {
		s.saveTimer = time.AfterFunc(s.saveDelay, func() {
			if err := s.Flush(); err != nil {
				s.logger.Error("debounced flush failed", "error", err)
			}
		})
		return
	}
	s.saveTimer.Reset(s.saveDelay)
}

// mutate runs fn against the live blob under the lock, then schedules a
// flush and fires the change callback if fn succeeded.
func (s *Store) mutate(fn func(*Blob) error) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	err := fn(&s.state)
	var cb func()
	if err == nil {
		s.markDirtyLocked()
		cb = s.onChange
	}
	s.mu.Unlock()

	if cb != nil {
		cb()
	}
	return err
}

// view runs fn against the live blob under the lock, read-only.
func (s *Store) view(fn func(*Blob)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.state)
}

// Flush validates and writes the current snapshot to disk. Unlike load,
// a validation failure here is raised: at this point the process itself
// produced the invalid state.
func (s *Store) Flush() error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	if s.closed && s.db == nil {
		s.mu.Unlock()
		return ErrClosed
	}
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	if err := s.state.Validate(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	raw, err := json.MarshalIndent(&s.state, "", "  ")
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("marshal state: %w", err)
	}
	s.dirty = false
	s.mu.Unlock()

	start := time.Now()
	err = s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		if err != nil {
			return err
		}
		return b.Put([]byte(stateKey), raw)
	})
	if err != nil {
		// Keep the state marked dirty so a later flush retries.
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
		return fmt.Errorf("write state: %w", err)
	}
	s.stats.RecordTiming(metrics.OpStoreSave, time.Since(start))
	return nil
}

// Close flushes pending state and closes the underlying file.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.saveTimer != nil {
		s.saveTimer.Stop()
	}
	s.mu.Unlock()

	flushErr := s.Flush()

	// Hold the flush lock while closing so an in-flight debounced
	// flush finishes (or no-ops) before the file goes away.
	s.flushMu.Lock()
	closeErr := s.db.Close()
	s.flushMu.Unlock()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
