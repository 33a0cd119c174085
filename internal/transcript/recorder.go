package transcript

import (
	"encoding/json"
	"net"
	"time"

	"github.com/kenta2/cryptsetup/internal/channel"
)

// Recorder implements channel.Observer: every chunk crossing a channel
// becomes an Event, appended to the log and (best effort) published on the
// live socket for an out-of-process watcher.
type Recorder struct {
	run  string
	log  *Log
	conn *net.UnixConn
}

// NewRecorder builds a recorder for one run. log may be nil (no
// persistence). socketPath may be empty (no live publishing); a missing or
// dead listener is tolerated silently — watching is optional.
func NewRecorder(run string, log *Log, socketPath string) *Recorder {
	r := &Recorder{run: run, log: log}
	if socketPath != "" {
		addr, err := net.ResolveUnixAddr("unixgram", socketPath)
		if err == nil {
			if conn, err := net.DialUnix("unixgram", nil, addr); err == nil {
				r.conn = conn
			}
		}
	}
	return r
}

// Observe records one chunk. Runs inline on the session's execution
// context, so it never blocks: datagram sends are fire-and-forget.
func (r *Recorder) Observe(ch string, dir channel.Direction, data []byte) {
	e := Event{
		Run:       r.run,
		Channel:   ch,
		Direction: string(dir),
		Data:      append([]byte(nil), data...),
		TS:        time.Now().UTC(),
	}
	if r.log != nil {
		_ = r.log.Append(e)
	}
	if r.conn != nil {
		if payload, err := json.Marshal(e); err == nil {
			_, _ = r.conn.Write(payload)
		}
	}
}

// Close releases the live socket and flushes and closes the log. Buffered
// events only reach disk here, so skipping Close loses the tail of the run.
func (r *Recorder) Close() error {
	if r.conn != nil {
		_ = r.conn.Close()
		r.conn = nil
	}
	if r.log != nil {
		log := r.log
		r.log = nil
		return log.Close()
	}
	return nil
}
