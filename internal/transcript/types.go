// Package transcript records every byte that crosses a session's channels:
// typed events with direction and timestamps, an in-memory store for live
// monitoring, JSONL persistence for post-mortems, and a unixgram
// emitter/collector pair so a watch TUI can observe a run out-of-process.
package transcript

import (
	"fmt"
	"strings"
	"time"
)

const (
	DirectionRead  = "read"
	DirectionWrite = "write"
)

// Event is one observed chunk of channel traffic.
type Event struct {
	// Run identifies the session run (a UUID).
	Run string `json:"run"`
	// Channel is the channel name the bytes crossed.
	Channel string `json:"channel"`
	// Direction is "read" (from the guest) or "write" (to the guest).
	Direction string `json:"direction"`
	// Data is the raw chunk (base64 in JSON).
	Data []byte `json:"data"`
	// TS is when the chunk was observed.
	TS time.Time `json:"ts"`
}

func (e Event) Validate() error {
	if strings.TrimSpace(e.Run) == "" {
		return fmt.Errorf("run is required")
	}
	if strings.TrimSpace(e.Channel) == "" {
		return fmt.Errorf("channel is required")
	}
	if e.Direction != DirectionRead && e.Direction != DirectionWrite {
		return fmt.Errorf("invalid direction %q", e.Direction)
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	return nil
}
