// Package stream decodes the AI endpoint's event-stream framing into
// typed delta events.
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
)

// EventType discriminates decoded delta events.
type EventType string

const (
	// EventContent carries a fragment of reply text to append.
	EventContent EventType = "content"
	// EventReasoning carries a fragment of secondary reasoning text.
	EventReasoning EventType = "reasoning"
	// EventDone signals completion. Emitted exactly once per stream,
	// either from an explicit done frame or synthesized on stream
	// closure so callers can always finalize bookkeeping.
	EventDone EventType = "done"
)

// Event is one incremental unit of decoded stream output.
type Event struct {
	Type    EventType
	Content string
}

// dataMarker prefixes the payload line of each frame.
const dataMarker = "data:"

// frameDelimiter separates frames: a blank line.
var frameDelimiter = []byte("\n\n")

// delta is the wire payload of a single frame.
type delta struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// Decoder consumes a byte stream and yields delta events one at a time.
// It tolerates frames split across network chunks by carrying unfinished
// segments over to the next read, and it skips individual malformed
// frames without aborting the stream.
type Decoder struct {
	r      io.Reader
	logger *slog.Logger

	carry    []byte
	frames   [][]byte
	readBuf  []byte
	eof      bool
	finished bool
}

// NewDecoder creates a decoder over r. A nil logger defaults to
// slog.Default().
func NewDecoder(r io.Reader, logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{
		r:       r,
		logger:  logger,
		readBuf: make([]byte, 4096),
	}
}

// Next returns the next decoded event. After EventDone has been
// returned, all further calls return io.EOF. The context is checked on
// every iteration so cancellation takes effect within one decode step.
func (d *Decoder) Next(ctx context.Context) (Event, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Event{}, err
		}
		if d.finished {
			return Event{}, io.EOF
		}

		for len(d.frames) > 0 {
			frame := d.frames[0]
			d.frames = d.frames[1:]
			ev, ok := d.parseFrame(frame)
			if !ok {
				continue
			}
			if ev.Type == EventDone {
				d.finished = true
			}
			return ev, nil
		}

		if d.eof {
			// Upstream closed without an explicit done frame;
			// synthesize the completion so finalization runs once.
			d.finished = true
			return Event{Type: EventDone}, nil
		}

		n, err := d.r.Read(d.readBuf)
		if n > 0 {
			d.carry = append(d.carry, d.readBuf[:n]...)
			d.splitFrames()
		}
		if err != nil {
			if err != io.EOF {
				return Event{}, err
			}
			d.eof = true
			// A trailing segment without its delimiter is still a frame.
			if rest := bytes.TrimSpace(d.carry); len(rest) > 0 {
				d.frames = append(d.frames, rest)
			}
			d.carry = nil
		}
	}
}

// splitFrames moves complete frames out of the carry buffer, holding
// back the last (possibly incomplete) segment for the next chunk.
func (d *Decoder) splitFrames() {
	// Normalize CRLF framing before splitting on the blank line.
	d.carry = bytes.ReplaceAll(d.carry, []byte("\r\n"), []byte("\n"))
	for {
		i := bytes.Index(d.carry, frameDelimiter)
		if i < 0 {
			return
		}
		frame := bytes.TrimSpace(d.carry[:i])
		d.carry = append([]byte(nil), d.carry[i+len(frameDelimiter):]...)
		if len(frame) > 0 {
			d.frames = append(d.frames, frame)
		}
	}
}

// parseFrame extracts and validates one frame's payload. Malformed
// frames are logged and skipped; a single corrupt delta must not kill an
// otherwise-good stream.
func (d *Decoder) parseFrame(frame []byte) (Event, bool) {
	var payload string
	for _, line := range strings.Split(string(frame), "\n") {
		if strings.HasPrefix(line, dataMarker) {
			payload = strings.TrimSpace(strings.TrimPrefix(line, dataMarker))
			break
		}
	}
	if payload == "" {
		d.logger.Debug("skipping frame without data line", "frame", string(frame))
		return Event{}, false
	}

	var dl delta
	if err := json.Unmarshal([]byte(payload), &dl); err != nil {
		d.logger.Debug("skipping malformed frame", "error", err, "payload", payload)
		return Event{}, false
	}

	switch dl.Type {
	case string(EventContent):
		return Event{Type: EventContent, Content: dl.Content}, true
	case string(EventReasoning):
		return Event{Type: EventReasoning, Content: dl.Content}, true
	case string(EventDone):
		return Event{Type: EventDone}, true
	default:
		d.logger.Debug("skipping frame with unknown type", "type", dl.Type)
		return Event{}, false
	}
}
