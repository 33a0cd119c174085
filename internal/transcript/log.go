package transcript

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// Log persists events as one JSON object per line.
type Log struct {
	f   *os.File
	w   *bufio.Writer
	enc *json.Encoder
}

// CreateLog opens (truncating) a transcript log at path.
func CreateLog(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create transcript log: %w", err)
	}
	w := bufio.NewWriter(f)
	return &Log{f: f, w: w, enc: json.NewEncoder(w)}, nil
}

// Append writes one event. Encode errors surface on Close.
func (l *Log) Append(e Event) error {
	return l.enc.Encode(e)
}

// Close flushes and closes the log file.
func (l *Log) Close() error {
	if err := l.w.Flush(); err != nil {
		_ = l.f.Close()
		return err
	}
	return l.f.Close()
}

// ReadLog loads every event from a transcript log, in order. Lines that do
// not decode are reported, not skipped: a truncated transcript should be
// visible to whoever reads it.
func ReadLog(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open transcript log: %w", err)
	}
	defer f.Close()

	var events []Event
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return events, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		events = append(events, e)
	}
	if err := sc.Err(); err != nil {
		return events, fmt.Errorf("read transcript log: %w", err)
	}
	return events, nil
}
