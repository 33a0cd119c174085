package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

const defaultMaxPayloadBytes = 64 * 1024

// Collector listens on a unix datagram socket for events published by a
// running session and folds them into a Store. One datagram carries one
// JSON-encoded Event; anything that does not decode as valid channel
// traffic is dropped (and counted), never stored.
type Collector struct {
	store *Store
	path  string

	// Run restricts collection to one run id. Empty accepts every run
	// publishing on the socket, which is what a long-lived watch wants.
	Run string

	MaxPayloadBytes int

	recorded atomic.Uint64
	dropped  atomic.Uint64

	mu     sync.Mutex
	conn   *net.UnixConn
	closed bool
}

func NewCollector(store *Store, socketPath string) *Collector {
	return &Collector{
		store:           store,
		path:            socketPath,
		MaxPayloadBytes: defaultMaxPayloadBytes,
	}
}

func (c *Collector) SocketPath() string {
	return c.path
}

// Stats reports how many events have been folded into the store and how
// many datagrams were dropped: malformed, oversized, not channel traffic,
// or belonging to a filtered-out run.
func (c *Collector) Stats() (recorded, dropped uint64) {
	return c.recorded.Load(), c.dropped.Load()
}

func (c *Collector) Start(ctx context.Context) error {
	if c.store == nil {
		return fmt.Errorf("store is required")
	}
	if c.path == "" {
		return fmt.Errorf("socket path is required")
	}
	if c.MaxPayloadBytes <= 0 {
		c.MaxPayloadBytes = defaultMaxPayloadBytes
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("create socket dir: %w", err)
	}
	if err := os.Chmod(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("chmod socket dir: %w", err)
	}
	if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	addr, err := net.ResolveUnixAddr("unixgram", c.path)
	if err != nil {
		return fmt.Errorf("resolve unix addr: %w", err)
	}
	conn, err := net.ListenUnixgram("unixgram", addr)
	if err != nil {
		return fmt.Errorf("listen unixgram: %w", err)
	}
	if err := os.Chmod(c.path, 0o600); err != nil {
		_ = conn.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.closed = false
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		c.close()
	}()

	go c.readLoop()

	return nil
}

func (c *Collector) readLoop() {
	buf := make([]byte, c.MaxPayloadBytes)
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		n, _, err := conn.ReadFromUnix(buf)
		if err != nil {
			if c.isClosed() {
				return
			}
			continue
		}

		e, ok := c.decode(buf[:n])
		if !ok {
			c.dropped.Add(1)
			continue
		}
		c.store.Record(e)
		c.recorded.Add(1)
	}
}

// decode parses one datagram and decides whether it belongs in the store:
// it must carry a valid Event (known direction, run and channel set) and,
// when a run filter is active, that run's id. Anything a stray process
// writes on the socket fails here.
func (c *Collector) decode(payload []byte) (Event, bool) {
	if len(payload) == 0 || len(payload) >= c.MaxPayloadBytes {
		return Event{}, false
	}
	var e Event
	if err := json.Unmarshal(payload, &e); err != nil {
		return Event{}, false
	}
	if err := e.Validate(); err != nil {
		return Event{}, false
	}
	if c.Run != "" && e.Run != c.Run {
		return Event{}, false
	}
	return e, true
}

func (c *Collector) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Collector) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}
