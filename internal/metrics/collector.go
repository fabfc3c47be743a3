// Package metrics provides in-memory runtime statistics collection.
package metrics

import (
	"math"
	"sync"
	"time"
)

// OperationMetrics holds aggregated metrics for a single operation type.
type OperationMetrics struct {
	Count     int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration

	// Output size in characters (only for AI operations).
	TotalOutputChars int64
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64   `json:"count"`
	TotalTimeMs int64   `json:"totalTimeMs"`
	AvgTimeMs   float64 `json:"avgTimeMs"`
	MinTimeMs   int64   `json:"minTimeMs"`
	MaxTimeMs   int64   `json:"maxTimeMs"`

	TotalOutputChars *int64   `json:"totalOutputChars,omitempty"`
	AvgOutputChars   *float64 `json:"avgOutputChars,omitempty"`
}

// Snapshot represents the full runtime statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64            `json:"uptimeSeconds"`
	ChatStream    *OperationSnapshot `json:"chatStream,omitempty"`
	ChatGenerate  *OperationSnapshot `json:"chatGenerate,omitempty"`
	TitleGenerate *OperationSnapshot `json:"titleGenerate,omitempty"`
	StoreSave     *OperationSnapshot `json:"storeSave,omitempty"`
}

// Operation names for the collector.
const (
	OpChatStream    = "chat_stream"
	OpChatGenerate  = "chat_generate"
	OpTitleGenerate = "title_generate"
	OpStoreSave     = "store_save"
)

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe. A nil Collector is a no-op.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*OperationMetrics
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
	}
}

// getOrCreate returns existing metrics or creates new ones for an operation.
// Caller must hold write lock.
func (c *Collector) getOrCreate(op string) *OperationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{
			MinTime: time.Duration(math.MaxInt64),
		}
		c.ops[op] = m
	}
	return m
}

// RecordTiming records timing for an operation.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.Count++
	m.TotalTime += duration

	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// RecordGeneration records timing and produced output size for an AI
// operation.
func (c *Collector) RecordGeneration(op string, duration time.Duration, outputChars int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.Count++
	m.TotalTime += duration
	m.TotalOutputChars += outputChars

	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// snapshotOp creates a snapshot for an operation, returning nil if no data.
func snapshotOp(m *OperationMetrics, includeChars bool) *OperationSnapshot {
	if m == nil || m.Count == 0 {
		return nil
	}

	snap := &OperationSnapshot{
		Count:       m.Count,
		TotalTimeMs: m.TotalTime.Milliseconds(),
		AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / float64(m.Count),
		MinTimeMs:   m.MinTime.Milliseconds(),
		MaxTimeMs:   m.MaxTime.Milliseconds(),
	}

	if includeChars && m.TotalOutputChars > 0 {
		total := m.TotalOutputChars
		avg := float64(m.TotalOutputChars) / float64(m.Count)
		snap.TotalOutputChars = &total
		snap.AvgOutputChars = &avg
	}

	return snap
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		ChatStream:    snapshotOp(c.ops[OpChatStream], true),
		ChatGenerate:  snapshotOp(c.ops[OpChatGenerate], true),
		TitleGenerate: snapshotOp(c.ops[OpTitleGenerate], true),
		StoreSave:     snapshotOp(c.ops[OpStoreSave], false),
	}
}
