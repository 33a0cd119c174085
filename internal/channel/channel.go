// Package channel owns the byte streams of a console session: each Channel
// is one named duplex stream (serial console, virtual console, monitor), and
// a Set multiplexes readiness across all of them with poll(2).
//
// Bytes flow one way per direction. Reads go socket -> per-channel buffer,
// and a matcher or echo verifier consumes a prefix of that buffer. Writes go
// caller -> socket. The buffer never holds a byte twice: every byte read is
// appended exactly once at the tail and removed exactly once from the head.
package channel

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Direction labels which way bytes crossed a channel.
type Direction string

const (
	// DirRead marks bytes received from the remote side.
	DirRead Direction = "read"
	// DirWrite marks bytes sent to the remote side.
	DirWrite Direction = "write"
)

// Observer receives every byte that crosses a channel, in order. Used for
// transcript recording. Implementations must not block for long; they run
// inline on the session's single execution context.
type Observer interface {
	Observe(channel string, dir Direction, data []byte)
}

// Channel is one named duplex byte stream. The buffer holds bytes received
// but not yet consumed by a pattern match or echo verification.
type Channel struct {
	name string
	fd   int
	file *os.File // keeps a PTY-backed fd alive; nil for plain sockets

	buf      []byte
	readable bool
}

func newChannel(name string, fd int) *Channel {
	return &Channel{name: name, fd: fd, readable: true}
}

// Name returns the channel's stable identifier.
func (c *Channel) Name() string { return c.name }

// Readable reports whether the read half is still open. Once false the
// channel is permanently excluded from readiness waits.
func (c *Channel) Readable() bool { return c.readable }

// Buffered returns the unconsumed buffer contents. The slice aliases the
// internal buffer and is invalidated by the next Consume, Unread, or drain.
func (c *Channel) Buffered() []byte { return c.buf }

// Consume removes and returns the first n buffered bytes.
func (c *Channel) Consume(n int) []byte {
	if n > len(c.buf) {
		n = len(c.buf)
	}
	head := append([]byte(nil), c.buf[:n]...)
	c.buf = c.buf[n:]
	return head
}

// Unread puts bytes back at the front of the buffer. Session protocols use
// this to reinject a matched prompt that the next operation must see again.
func (c *Channel) Unread(p []byte) {
	if len(p) == 0 {
		return
	}
	c.buf = append(append([]byte(nil), p...), c.buf...)
}

// WaitWritable blocks until the channel's descriptor accepts more output.
// Interruption by a signal is retried transparently.
func (c *Channel) WaitWritable() error {
	fds := []unix.PollFd{{Fd: int32(c.fd), Events: unix.POLLOUT}}
	for {
		_, err := unix.Poll(fds, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("channel %s: poll for write: %w", c.name, err)
		}
		if fds[0].Revents&(unix.POLLOUT|unix.POLLERR|unix.POLLHUP) != 0 {
			return nil
		}
	}
}

// WriteChunk writes as many bytes as the descriptor accepts in one
// non-blocking call. Returns 0 (and no error) when the descriptor is not
// ready; the caller re-polls and retries.
func (c *Channel) WriteChunk(p []byte) (int, error) {
	for {
		n, err := unix.Write(c.fd, p)
		switch err {
		case nil:
			return n, nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return 0, nil
		default:
			return 0, fmt.Errorf("channel %s: write: %w", c.name, err)
		}
	}
}

// Close releases the underlying descriptor.
func (c *Channel) Close() error {
	c.readable = false
	if c.file != nil {
		return c.file.Close()
	}
	return unix.Close(c.fd)
}
