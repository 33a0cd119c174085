package channel

import (
	"bytes"
	"testing"

	"golang.org/x/sys/unix"
)

// newPair returns a channel backed by one end of a socketpair and the raw
// fd of the other end, which the test drives as the remote side.
func newPair(t *testing.T, name string) (*Channel, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	c, err := NewFromFd(name, fds[0])
	if err != nil {
		t.Fatalf("NewFromFd: %v", err)
	}
	t.Cleanup(func() {
		_ = c.Close()
		_ = unix.Close(fds[1])
	})
	return c, fds[1]
}

func mustWrite(t *testing.T, fd int, data string) {
	t.Helper()
	if _, err := unix.Write(fd, []byte(data)); err != nil {
		t.Fatalf("remote write: %v", err)
	}
}

func newTestSet(t *testing.T, opts Options, channels ...*Channel) *Set {
	t.Helper()
	s, err := NewSet(channels, opts)
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	return s
}

func TestDrainAppendsToBuffer(t *testing.T) {
	c, remote := newPair(t, "console")
	s := newTestSet(t, Options{}, c)

	mustWrite(t, remote, "hello")

	ready, err := s.WaitReadable()
	if err != nil {
		t.Fatalf("WaitReadable: %v", err)
	}
	if len(ready) != 1 || ready[0] != c {
		t.Fatalf("expected console ready, got %v", ready)
	}
	if err := s.Drain(ready); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if string(c.Buffered()) != "hello" {
		t.Fatalf("buffer: got %q, want %q", c.Buffered(), "hello")
	}
}

func TestConsumeRemovesPrefixOnce(t *testing.T) {
	c, remote := newPair(t, "console")
	s := newTestSet(t, Options{}, c)

	mustWrite(t, remote, "abcdef")
	drainOnce(t, s)

	head := c.Consume(3)
	if string(head) != "abc" {
		t.Fatalf("Consume: got %q, want %q", head, "abc")
	}
	if string(c.Buffered()) != "def" {
		t.Fatalf("remaining buffer: got %q, want %q", c.Buffered(), "def")
	}
	// Consuming past the end returns what is there.
	if got := c.Consume(10); string(got) != "def" {
		t.Fatalf("over-consume: got %q, want %q", got, "def")
	}
	if len(c.Buffered()) != 0 {
		t.Fatalf("buffer not empty: %q", c.Buffered())
	}
}

func TestUnreadPrepends(t *testing.T) {
	c, remote := newPair(t, "console")
	s := newTestSet(t, Options{}, c)

	mustWrite(t, remote, "world")
	drainOnce(t, s)

	c.Unread([]byte("hello "))
	if string(c.Buffered()) != "hello world" {
		t.Fatalf("buffer after Unread: got %q, want %q", c.Buffered(), "hello world")
	}
}

func TestBufferSpansMultipleReads(t *testing.T) {
	c, remote := newPair(t, "console")
	s := newTestSet(t, Options{}, c)

	mustWrite(t, remote, "first ")
	drainOnce(t, s)
	mustWrite(t, remote, "second")
	drainOnce(t, s)

	if string(c.Buffered()) != "first second" {
		t.Fatalf("buffer: got %q, want %q", c.Buffered(), "first second")
	}
}

func TestEndOfStreamExcludesChannel(t *testing.T) {
	c, remote := newPair(t, "console")
	s := newTestSet(t, Options{}, c)

	mustWrite(t, remote, "bye")
	if err := unix.Close(remote); err != nil {
		t.Fatalf("close remote: %v", err)
	}

	// First drain picks up the final bytes, second sees the zero-length
	// read and retires the channel.
	for c.Readable() {
		ready, err := s.WaitReadable()
		if err != nil {
			t.Fatalf("WaitReadable: %v", err)
		}
		if len(ready) == 0 {
			break
		}
		if err := s.Drain(ready); err != nil {
			t.Fatalf("Drain: %v", err)
		}
	}

	if c.Readable() {
		t.Fatal("channel still readable after end-of-stream")
	}
	if s.AnyReadable() {
		t.Fatal("set still reports readable channels")
	}
	// Buffered bytes survive end-of-stream.
	if string(c.Buffered()) != "bye" {
		t.Fatalf("buffer after close: got %q, want %q", c.Buffered(), "bye")
	}
	// Further waits return the empty subset instead of blocking.
	ready, err := s.WaitReadable()
	if err != nil {
		t.Fatalf("WaitReadable after close: %v", err)
	}
	if len(ready) != 0 {
		t.Fatalf("expected no ready channels, got %d", len(ready))
	}
}

func TestWaitReadableReturnsOnlyReadySubset(t *testing.T) {
	c1, _ := newPair(t, "console")
	c2, remote2 := newPair(t, "serial")
	s := newTestSet(t, Options{}, c1, c2)

	mustWrite(t, remote2, "serial data")

	ready, err := s.WaitReadable()
	if err != nil {
		t.Fatalf("WaitReadable: %v", err)
	}
	if len(ready) != 1 || ready[0] != c2 {
		t.Fatalf("expected only serial ready, got %d channels", len(ready))
	}
	if err := s.Drain(ready); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(c1.Buffered()) != 0 {
		t.Fatalf("console buffer should be empty, got %q", c1.Buffered())
	}
	if string(c2.Buffered()) != "serial data" {
		t.Fatalf("serial buffer: got %q, want %q", c2.Buffered(), "serial data")
	}
}

func TestMirrorReceivesEveryReadByte(t *testing.T) {
	var mirror bytes.Buffer
	c, remote := newPair(t, "console")
	s := newTestSet(t, Options{Mirror: &mirror}, c)

	mustWrite(t, remote, "mirrored")
	drainOnce(t, s)
	c.Consume(4) // consuming must not affect the mirror

	if mirror.String() != "mirrored" {
		t.Fatalf("mirror: got %q, want %q", mirror.String(), "mirrored")
	}
}

type recordingObserver struct {
	names []string
	dirs  []Direction
	data  []string
}

func (o *recordingObserver) Observe(channel string, dir Direction, data []byte) {
	o.names = append(o.names, channel)
	o.dirs = append(o.dirs, dir)
	o.data = append(o.data, string(data))
}

func TestObserverSeesBothDirections(t *testing.T) {
	obs := &recordingObserver{}
	c, remote := newPair(t, "console")
	s := newTestSet(t, Options{Observer: obs}, c)

	mustWrite(t, remote, "in")
	drainOnce(t, s)
	s.NoteWrite(c, []byte("out"))

	if len(obs.data) != 2 {
		t.Fatalf("expected 2 observations, got %d", len(obs.data))
	}
	if obs.dirs[0] != DirRead || obs.data[0] != "in" {
		t.Errorf("first observation: got %s %q", obs.dirs[0], obs.data[0])
	}
	if obs.dirs[1] != DirWrite || obs.data[1] != "out" || obs.names[1] != "console" {
		t.Errorf("second observation: got %s %s %q", obs.names[1], obs.dirs[1], obs.data[1])
	}
}

func TestFillBlocksOnOneChannelOnly(t *testing.T) {
	c1, remote1 := newPair(t, "console")
	c2, remote2 := newPair(t, "serial")
	s := newTestSet(t, Options{}, c1, c2)

	mustWrite(t, remote2, "noise")
	mustWrite(t, remote1, "echo")

	if err := s.Fill(c1); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if string(c1.Buffered()) != "echo" {
		t.Fatalf("console buffer: got %q, want %q", c1.Buffered(), "echo")
	}
	// The other channel's bytes stay in its socket until a normal drain.
	if len(c2.Buffered()) != 0 {
		t.Fatalf("serial buffer should be untouched, got %q", c2.Buffered())
	}
}

func TestWriteChunkRoundTrip(t *testing.T) {
	c, remote := newPair(t, "console")

	payload := []byte("ls -l\r")
	for off := 0; off < len(payload); {
		if err := c.WaitWritable(); err != nil {
			t.Fatalf("WaitWritable: %v", err)
		}
		n, err := c.WriteChunk(payload[off:])
		if err != nil {
			t.Fatalf("WriteChunk: %v", err)
		}
		off += n
	}

	buf := make([]byte, 64)
	n, err := unix.Read(remote, buf)
	if err != nil {
		t.Fatalf("remote read: %v", err)
	}
	if string(buf[:n]) != "ls -l\r" {
		t.Fatalf("remote received %q, want %q", buf[:n], "ls -l\r")
	}
}

func TestDuplicateChannelNameRejected(t *testing.T) {
	c1, _ := newPair(t, "console")
	c2, _ := newPair(t, "console")

	if _, err := NewSet([]*Channel{c1, c2}, Options{}); err == nil {
		t.Fatal("expected error for duplicate channel name")
	}
}

func drainOnce(t *testing.T, s *Set) {
	t.Helper()
	ready, err := s.WaitReadable()
	if err != nil {
		t.Fatalf("WaitReadable: %v", err)
	}
	if err := s.Drain(ready); err != nil {
		t.Fatalf("Drain: %v", err)
	}
}
