package console

import (
	"bytes"
	"context"
	"fmt"

	"github.com/kenta2/cryptsetup/internal/channel"
)

// WriteOptions controls one echo-verified send.
type WriteOptions struct {
	// NoEcho skips echo verification entirely. Used for secrets: the
	// terminal's local echo is disabled, so no echo bytes will arrive.
	NoEcho bool
	// Terminator is appended to the payload before sending. Default "\r".
	Terminator string
	// EchoTerminator is what the remote terminal appends to the echoed
	// copy of the payload. Default "\r\n".
	EchoTerminator string
}

// DefaultWriteOptions returns the standard interactive-terminal options:
// echo verified, "\r" sent after the payload, "\r\n" expected after the
// echoed copy.
func DefaultWriteOptions() WriteOptions {
	return WriteOptions{Terminator: "\r", EchoTerminator: "\r\n"}
}

// Write sends payload plus terminator to one channel, handling partial
// writes under non-blocking semantics, then (unless NoEcho) verifies that
// the remote end echoed exactly payload+EchoTerminator before returning.
//
// The echo wait is scoped strictly to the channel being written: other
// channels are not drained until the next expect call.
func Write(s *channel.Set, c *channel.Channel, payload string, opts WriteOptions) error {
	wire := []byte(payload + opts.Terminator)
	for off := 0; off < len(wire); {
		if err := c.WaitWritable(); err != nil {
			return err
		}
		n, err := c.WriteChunk(wire[off:])
		if err != nil {
			return err
		}
		off += n
	}
	s.NoteWrite(c, wire)

	if opts.NoEcho {
		return nil
	}

	expected := []byte(payload + opts.EchoTerminator)
	remaining := expected
	var verified []byte
	for len(remaining) > 0 {
		buf := c.Buffered()
		if len(buf) == 0 {
			if !c.Readable() {
				return fmt.Errorf("channel %s: closed before echo of %q completed",
					c.Name(), expected)
			}
			if err := s.Fill(c); err != nil {
				return err
			}
			continue
		}
		n := len(buf)
		if n > len(remaining) {
			n = len(remaining)
		}
		if !bytes.Equal(buf[:n], remaining[:n]) {
			s.Metrics().RecordEchoMismatch(context.Background(), c.Name())
			return &EchoMismatchError{
				Channel:  c.Name(),
				Expected: expected,
				Actual:   append(verified, buf[:n]...),
			}
		}
		verified = append(verified, c.Consume(n)...)
		remaining = remaining[n:]
	}
	return nil
}
