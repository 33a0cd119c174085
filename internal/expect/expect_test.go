package expect

import (
	"testing"

	"golang.org/x/sys/unix"

	"github.com/kenta2/cryptsetup/internal/channel"
)

// newPair returns a channel on one end of a socketpair and the raw fd of
// the other end for the test to drive.
func newPair(t *testing.T, name string) (*channel.Channel, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	c, err := channel.NewFromFd(name, fds[0])
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

func newSet(t *testing.T, channels ...*channel.Channel) *channel.Set {
	t.Helper()
	s, err := channel.NewSet(channels, channel.Options{})
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	return s
}

func TestExpectConsumesMatchedPrefix(t *testing.T) {
	c, remote := newPair(t, "console")
	s := newSet(t, c)

	mustWrite(t, remote, "guest login: root")

	m, err := Expect(s, c, MustCompile(`guest login: `))
	if err != nil {
		t.Fatalf("Expect: %v", err)
	}
	if m == nil {
		t.Fatal("expected a match")
	}
	if string(c.Buffered()) != "root" {
		t.Fatalf("buffer after match: got %q, want %q", c.Buffered(), "root")
	}
}

func TestExpectWaitsAcrossReads(t *testing.T) {
	c, remote := newPair(t, "console")
	s := newSet(t, c)

	// The pattern completes only after the second chunk arrives.
	mustWrite(t, remote, "guest log")
	go func() {
		mustWrite(t, remote, "in: ")
	}()

	m, err := Expect(s, c, MustCompile(`guest login: `))
	if err != nil {
		t.Fatalf("Expect: %v", err)
	}
	if m == nil {
		t.Fatal("expected a match spanning two reads")
	}
	if len(c.Buffered()) != 0 {
		t.Fatalf("buffer should be empty, got %q", c.Buffered())
	}
}

func TestExpectNilMatchOnClose(t *testing.T) {
	c, remote := newPair(t, "console")
	s := newSet(t, c)

	mustWrite(t, remote, "partial outp")
	if err := unix.Close(remote); err != nil {
		t.Fatalf("close remote: %v", err)
	}

	m, err := Expect(s, c, MustCompile(`never matches`))
	if err != nil {
		t.Fatalf("Expect: %v", err)
	}
	if m != nil {
		t.Fatalf("expected nil match on closed channel, got length %d", m.Len())
	}
	// The unmatched bytes stay buffered for diagnostics.
	if string(c.Buffered()) != "partial outp" {
		t.Fatalf("buffer: got %q, want %q", c.Buffered(), "partial outp")
	}
}

func TestExpectDrainsOtherChannels(t *testing.T) {
	console, remoteConsole := newPair(t, "console")
	serial, remoteSerial := newPair(t, "serial")
	s := newSet(t, console, serial)

	// Serial chatter arrives before the console produces the pattern.
	mustWrite(t, remoteSerial, "kernel: something happened")
	go func() {
		mustWrite(t, remoteConsole, "$ ")
	}()

	m, err := Expect(s, console, MustCompile(`\$ `))
	if err != nil {
		t.Fatalf("Expect: %v", err)
	}
	if m == nil {
		t.Fatal("expected a match on console")
	}
	// The serial bytes were drained into their own buffer, not dropped.
	if string(serial.Buffered()) != "kernel: something happened" {
		t.Fatalf("serial buffer: got %q, want %q", serial.Buffered(), "kernel: something happened")
	}
}

func TestExpectMatchesBufferedWithoutWaiting(t *testing.T) {
	c, remote := newPair(t, "console")
	s := newSet(t, c)

	mustWrite(t, remote, "$ extra")
	// Close the remote: if Expect tried to wait for more input it would
	// see end-of-stream, but the buffered bytes alone must satisfy it.
	if err := unix.Close(remote); err != nil {
		t.Fatalf("close remote: %v", err)
	}
	// Pull the bytes in before matching.
	ready, err := s.WaitReadable()
	if err != nil {
		t.Fatalf("WaitReadable: %v", err)
	}
	if err := s.Drain(ready); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	m, err := Expect(s, c, MustCompile(`\$ `))
	if err != nil {
		t.Fatalf("Expect: %v", err)
	}
	if m == nil {
		t.Fatal("expected match from buffered bytes")
	}
	if string(c.Buffered()) != "extra" {
		t.Fatalf("buffer: got %q, want %q", c.Buffered(), "extra")
	}
}

func TestWaitClosedDrainsUntilQuiescence(t *testing.T) {
	console, remoteConsole := newPair(t, "console")
	serial, remoteSerial := newPair(t, "serial")
	s := newSet(t, console, serial)

	mustWrite(t, remoteConsole, "halting\r\n")
	mustWrite(t, remoteSerial, "reboot: power down\r\n")
	unix.Close(remoteConsole)
	unix.Close(remoteSerial)

	if err := WaitClosed(s); err != nil {
		t.Fatalf("WaitClosed: %v", err)
	}
	if s.AnyReadable() {
		t.Fatal("channels still readable after WaitClosed")
	}
	// Late output was still captured.
	if string(console.Buffered()) != "halting\r\n" {
		t.Fatalf("console buffer: got %q", console.Buffered())
	}
	if string(serial.Buffered()) != "reboot: power down\r\n" {
		t.Fatalf("serial buffer: got %q", serial.Buffered())
	}
}
