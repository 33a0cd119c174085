package transcript

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLog_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.jsonl")

	log, err := CreateLog(path)
	if err != nil {
		t.Fatalf("create log: %v", err)
	}
	ts := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	events := []Event{
		{Run: "r1", Channel: "console", Direction: DirectionRead, Data: []byte("login: "), TS: ts},
		{Run: "r1", Channel: "console", Direction: DirectionWrite, Data: []byte("root\r"), TS: ts.Add(time.Second)},
	}
	for _, e := range events {
		if err := log.Append(e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := log.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	got, err := ReadLog(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if len(got) != len(events) {
		t.Fatalf("expected %d events, got %d", len(events), len(got))
	}
	for i := range events {
		if got[i].Channel != events[i].Channel || got[i].Direction != events[i].Direction {
			t.Errorf("event %d: got %s/%s, want %s/%s",
				i, got[i].Channel, got[i].Direction, events[i].Channel, events[i].Direction)
		}
		if !bytes.Equal(got[i].Data, events[i].Data) {
			t.Errorf("event %d: got data %q, want %q", i, got[i].Data, events[i].Data)
		}
		if !got[i].TS.Equal(events[i].TS) {
			t.Errorf("event %d: got ts %v, want %v", i, got[i].TS, events[i].TS)
		}
	}
}

func TestReadLog_TruncatedLineReported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.jsonl")
	content := `{"run":"r1","channel":"console","direction":"read","data":"aGk=","ts":"2026-08-29T12:00:00Z"}
{"run":"r1","channel":"cons`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	events, err := ReadLog(path)
	if err == nil {
		t.Fatal("expected error for truncated line")
	}
	if len(events) != 1 {
		t.Fatalf("expected the 1 intact event, got %d", len(events))
	}
}
