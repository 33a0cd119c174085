package channel

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// Endpoint names a channel and the unix-socket path it connects to.
type Endpoint struct {
	Name string
	Path string
}

// DialOptions bounds connection establishment. The remote side (typically a
// guest that is still booting) may not have created its sockets yet, so
// "no such file" and "connection refused" are tolerated until the deadline.
type DialOptions struct {
	// Deadline is the total time allowed per endpoint. Default 30s.
	Deadline time.Duration
	// Interval is the poll interval between connect attempts. Default 100ms.
	Interval time.Duration
}

// ConnectError reports a channel that could not be established within the
// startup deadline.
type ConnectError struct {
	Name string
	Path string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect channel %s (%s): %v", e.Name, e.Path, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// Dial connects every endpoint and returns the channels in order. Transient
// absence of the socket is retried until the deadline; any other failure is
// immediately fatal.
func Dial(endpoints []Endpoint, opts DialOptions) ([]*Channel, error) {
	if opts.Deadline <= 0 {
		opts.Deadline = 30 * time.Second
	}
	if opts.Interval <= 0 {
		opts.Interval = 100 * time.Millisecond
	}
	var channels []*Channel
	for _, ep := range endpoints {
		c, err := dialOne(ep, opts)
		if err != nil {
			for _, open := range channels {
				_ = open.Close()
			}
			return nil, err
		}
		channels = append(channels, c)
	}
	return channels, nil
}

func dialOne(ep Endpoint, opts DialOptions) (*Channel, error) {
	deadline := time.Now().Add(opts.Deadline)
	for {
		fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
		if err != nil {
			return nil, &ConnectError{Name: ep.Name, Path: ep.Path, Err: err}
		}
		err = connectRetryingEINTR(fd, &unix.SockaddrUnix{Name: ep.Path})
		if err == nil {
			if err := unix.SetNonblock(fd, true); err != nil {
				_ = unix.Close(fd)
				return nil, &ConnectError{Name: ep.Name, Path: ep.Path, Err: err}
			}
			return newChannel(ep.Name, fd), nil
		}
		_ = unix.Close(fd)
		if err != unix.ENOENT && err != unix.ECONNREFUSED {
			return nil, &ConnectError{Name: ep.Name, Path: ep.Path, Err: err}
		}
		if time.Now().After(deadline) {
			return nil, &ConnectError{Name: ep.Name, Path: ep.Path,
				Err: fmt.Errorf("still %v after %v", err, opts.Deadline)}
		}
		time.Sleep(opts.Interval)
	}
}

func connectRetryingEINTR(fd int, sa unix.Sockaddr) error {
	for {
		err := unix.Connect(fd, sa)
		if err != unix.EINTR {
			return err
		}
	}
}
