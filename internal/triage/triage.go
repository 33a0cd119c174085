// Package triage provides LLM-based post-mortem analysis of failed runs.
//
// The engine itself is deterministic: it either matched or it did not, and
// every byte is in the transcript. What an LLM adds is reading that
// transcript the way an experienced operator would — spotting the kernel
// panic above the missing prompt, the wrong passphrase echo, the guest that
// never finished booting. Go code renders the transcript and parses the
// response; the diagnosis is the model's.
package triage

import (
	"context"
	"fmt"
	"strings"

	"github.com/kenta2/cryptsetup/internal/transcript"
)

// Triager sends a rendered transcript to an LLM and returns a verdict.
type Triager interface {
	// Analyze sends the transcript to an LLM and returns its diagnosis.
	Analyze(ctx context.Context, rendered string) (*Verdict, error)

	// Provider returns the provider name (e.g., "anthropic", "openai").
	Provider() string

	// Model returns the model name used for analysis.
	Model() string
}

// Verdict is the JSON structure returned by the LLM.
type Verdict struct {
	// Failure is a one-line summary of what went wrong.
	Failure string `json:"failure"`
	// Phase is where the run failed: "connect", "unlock", "login",
	// "command", "shutdown", or "unknown".
	Phase string `json:"phase"`
	// Evidence is a verbatim extract of the transcript supporting the
	// diagnosis.
	Evidence string `json:"evidence"`
	// Suggestions are concrete next steps for the operator.
	Suggestions []string `json:"suggestions,omitempty"`
	// Reasoning is the model's step-by-step analysis.
	Reasoning string `json:"reasoning"`

	// Usage is populated by the triager, not parsed from the LLM response.
	Usage TokenUsage `json:"-"`
}

// TokenUsage tracks LLM token consumption for a single analysis.
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// RenderTranscript formats recorded events for the LLM: one line per chunk,
// with channel, direction, and the bytes rendered with readable escapes.
// Consecutive same-channel same-direction chunks are merged so the model
// sees lines of terminal traffic rather than read-size artifacts.
func RenderTranscript(events []transcript.Event) string {
	var b strings.Builder
	var curChannel, curDir string
	var chunk []byte

	flush := func() {
		if len(chunk) == 0 && curChannel == "" {
			return
		}
		arrow := "<-"
		if curDir == transcript.DirectionWrite {
			arrow = "->"
		}
		fmt.Fprintf(&b, "%s %s %q\n", curChannel, arrow, chunk)
		chunk = nil
	}

	for _, e := range events {
		if e.Channel != curChannel || e.Direction != curDir {
			flush()
			curChannel, curDir = e.Channel, e.Direction
		}
		chunk = append(chunk, e.Data...)
	}
	flush()
	return b.String()
}

// stripMarkdownFences removes a surrounding ```json ... ``` (or plain ```)
// fence that models sometimes wrap JSON responses in.
func stripMarkdownFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		// Drop the language tag line ("json", possibly empty).
		trimmed = trimmed[idx+1:]
	} else {
		// "```json```" style with no newline: nothing left.
		trimmed = strings.TrimPrefix(trimmed, "json")
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
