package channel

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/sys/unix"

	"github.com/kenta2/cryptsetup/internal/telemetry"
)

// readChunk is the most a single drain reads from one channel.
const readChunk = 4096

// Options configures a Set.
type Options struct {
	// Mirror receives a copy of every byte read from every channel, for
	// human inspection. Mirroring is unconditional and independent of
	// matching. Nil disables it.
	Mirror io.Writer
	// Observer receives typed read/write notifications (transcript
	// recording). Nil disables it.
	Observer Observer
	// Metrics records channel byte counters. Nil-safe.
	Metrics *telemetry.Metrics
}

// Set owns the fixed collection of channels for one session and multiplexes
// readiness across them. It is created once, after all channel connections
// are established, and is exclusively owned by the single execution context
// driving the session: no two operations may be in flight concurrently.
type Set struct {
	channels map[string]*Channel
	order    []string
	byFd     map[int32]*Channel

	// pollfds is the persistent readiness vector handed to poll(2). It is
	// rebuilt only when a channel reaches end-of-stream, not per call.
	pollfds []unix.PollFd

	mirror   io.Writer
	observer Observer
	metrics  *telemetry.Metrics
}

// NewSet builds a Set over an already-connected fixed collection of
// channels. Channel names must be unique.
func NewSet(channels []*Channel, opts Options) (*Set, error) {
	s := &Set{
		channels: make(map[string]*Channel, len(channels)),
		byFd:     make(map[int32]*Channel, len(channels)),
		mirror:   opts.Mirror,
		observer: opts.Observer,
		metrics:  opts.Metrics,
	}
	for _, c := range channels {
		if _, dup := s.channels[c.name]; dup {
			return nil, fmt.Errorf("duplicate channel name %q", c.name)
		}
		s.channels[c.name] = c
		s.byFd[int32(c.fd)] = c
		s.order = append(s.order, c.name)
	}
	s.rebuildPollfds()
	return s, nil
}

// Channel looks up a channel by name.
func (s *Set) Channel(name string) (*Channel, bool) {
	c, ok := s.channels[name]
	return c, ok
}

// Metrics returns the Set's metric instruments (possibly nil; all record
// methods tolerate a nil receiver).
func (s *Set) Metrics() *telemetry.Metrics { return s.metrics }

// Names returns the channel names in configuration order.
func (s *Set) Names() []string {
	return append([]string(nil), s.order...)
}

// AnyReadable reports whether at least one channel can still produce bytes.
// False means every channel has reached end-of-stream (quiescence).
func (s *Set) AnyReadable() bool { return len(s.pollfds) > 0 }

// WaitReadable blocks until at least one still-readable channel has data,
// returning that subset. A signal interrupting the wait is retried
// transparently. When no readable channel remains it returns an empty
// subset instead of blocking forever.
func (s *Set) WaitReadable() ([]*Channel, error) {
	if len(s.pollfds) == 0 {
		return nil, nil
	}
	for {
		_, err := unix.Poll(s.pollfds, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("poll: %w", err)
		}
		var ready []*Channel
		for _, pfd := range s.pollfds {
			if pfd.Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
				ready = append(ready, s.byFd[pfd.Fd])
			}
		}
		if len(ready) > 0 {
			return ready, nil
		}
	}
}

// Drain performs one non-blocking read on each channel in the subset,
// appending received bytes to the channel buffers and mirroring them.
func (s *Set) Drain(ready []*Channel) error {
	for _, c := range ready {
		if err := s.fill(c); err != nil {
			return err
		}
	}
	return nil
}

// Fill blocks until one channel has data, then drains it. Echo
// verification uses this to read back bytes on exactly the channel being
// written, leaving other channels untouched.
func (s *Set) Fill(c *Channel) error {
	if !c.readable {
		return fmt.Errorf("channel %s: read half closed", c.name)
	}
	fds := []unix.PollFd{{Fd: int32(c.fd), Events: unix.POLLIN}}
	for {
		_, err := unix.Poll(fds, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("channel %s: poll: %w", c.name, err)
		}
		if fds[0].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
			return s.fill(c)
		}
	}
}

// fill reads one chunk. A zero-length read means the remote closed the
// stream: the read half is shut down and the channel leaves the readiness
// vector for good.
func (s *Set) fill(c *Channel) error {
	buf := make([]byte, readChunk)
	for {
		n, err := unix.Read(c.fd, buf)
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			return nil
		}
		if err != nil {
			return fmt.Errorf("channel %s: read: %w", c.name, err)
		}
		if n == 0 {
			s.closeRead(c)
			return nil
		}
		data := buf[:n]
		c.buf = append(c.buf, data...)
		if s.mirror != nil {
			_, _ = s.mirror.Write(data)
		}
		if s.observer != nil {
			s.observer.Observe(c.name, DirRead, data)
		}
		s.metrics.RecordChannelBytes(context.Background(), c.name, string(DirRead), int64(n))
		return nil
	}
}

// NoteWrite reports bytes that were written to a channel, so transcripts
// and counters see both directions.
func (s *Set) NoteWrite(c *Channel, data []byte) {
	if s.observer != nil {
		s.observer.Observe(c.name, DirWrite, data)
	}
	s.metrics.RecordChannelBytes(context.Background(), c.name, string(DirWrite), int64(len(data)))
}

func (s *Set) closeRead(c *Channel) {
	// Shutdown fails with ENOTSOCK on PTY-backed channels; the readable
	// flag alone already excludes them from future waits.
	_ = unix.Shutdown(c.fd, unix.SHUT_RD)
	c.readable = false
	s.rebuildPollfds()
}

func (s *Set) rebuildPollfds() {
	s.pollfds = s.pollfds[:0]
	for _, name := range s.order {
		c := s.channels[name]
		if c.readable {
			s.pollfds = append(s.pollfds, unix.PollFd{Fd: int32(c.fd), Events: unix.POLLIN})
		}
	}
}

// Close releases every channel descriptor.
func (s *Set) Close() {
	for _, name := range s.order {
		_ = s.channels[name].Close()
	}
	s.pollfds = nil
}
