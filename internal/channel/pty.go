package channel

import (
	"fmt"
	"os/exec"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// StartPTY runs a local command on a pseudo-terminal and wraps the pty side
// as a Channel. The harness can then drive a local shell exactly the way it
// drives a guest console, which is how the engine is smoke-tested without a
// guest.
func StartPTY(name string, cmd *exec.Cmd) (*Channel, error) {
	f, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: 120, Rows: 30})
	if err != nil {
		return nil, fmt.Errorf("start pty for channel %s: %w", name, err)
	}
	fd := int(f.Fd())
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("set pty nonblocking for channel %s: %w", name, err)
	}
	c := newChannel(name, fd)
	c.file = f
	return c, nil
}

// NewFromFd wraps an already-open descriptor as a Channel, switching it to
// non-blocking mode. Tests use this with socketpair descriptors.
func NewFromFd(name string, fd int) (*Channel, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, fmt.Errorf("set nonblocking for channel %s: %w", name, err)
	}
	return newChannel(name, fd), nil
}
