package stream

import (
	"encoding/json"
	"fmt"
	"io"
)

// WriteEvent writes one framed event in the wire format Decoder reads:
// a data-marked JSON payload followed by a blank line.
func WriteEvent(w io.Writer, ev Event) error {
	payload, err := json.Marshal(delta{Type: string(ev.Type), Content: ev.Content})
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if _, err := fmt.Fprintf(w, "%s %s\n\n", dataMarker, payload); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}
