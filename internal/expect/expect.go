package expect

import (
	"context"

	"github.com/kenta2/cryptsetup/internal/channel"
)

// Expect matches p against the start of ch's buffer, waiting for and
// draining more input until the pattern matches or ch reaches end-of-stream.
// On a match the matched prefix is consumed from the buffer and the captures
// are returned. A nil Match (with a nil error) means the channel closed
// before the pattern ever matched; whether that is fatal is the caller's
// call. Bytes arriving on other channels during the wait are drained into
// their own buffers, never dropped.
func Expect(s *channel.Set, ch *channel.Channel, p *Pattern) (*Match, error) {
	for {
		if m := p.TryMatch(ch.Buffered()); m != nil {
			ch.Consume(m.Len())
			s.Metrics().RecordMatch(context.Background(), ch.Name(), true)
			return m, nil
		}
		if !ch.Readable() {
			// No more bytes can ever arrive; the buffer cannot grow
			// into a match.
			s.Metrics().RecordMatch(context.Background(), ch.Name(), false)
			return nil, nil
		}
		ready, err := s.WaitReadable()
		if err != nil {
			return nil, err
		}
		if len(ready) == 0 {
			s.Metrics().RecordMatch(context.Background(), ch.Name(), false)
			return nil, nil
		}
		if err := s.Drain(ready); err != nil {
			return nil, err
		}
	}
}

// WaitClosed blocks until every channel has reached end-of-stream. This is
// the "expect nothing" form used to await the driven system terminating the
// whole session: it keeps draining so late output is still mirrored.
func WaitClosed(s *channel.Set) error {
	for s.AnyReadable() {
		ready, err := s.WaitReadable()
		if err != nil {
			return err
		}
		if len(ready) == 0 {
			return nil
		}
		if err := s.Drain(ready); err != nil {
			return err
		}
	}
	return nil
}
