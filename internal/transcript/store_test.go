package transcript

import (
	"bytes"
	"testing"
	"time"
)

func TestStore_RecordAndSnapshot(t *testing.T) {
	now := time.Now().UTC()
	s := NewStore(5*time.Minute, 0)
	s.Record(Event{Run: "r1", Channel: "console", Direction: DirectionRead, Data: []byte("hello"), TS: now})

	got := s.Snapshot(now)
	if len(got) != 1 {
		t.Fatalf("expected 1 channel, got %d", len(got))
	}
	if got[0].Channel != "console" {
		t.Fatalf("expected channel console, got %s", got[0].Channel)
	}
	if !bytes.Equal(got[0].Tail, []byte("hello")) {
		t.Fatalf("expected tail %q, got %q", "hello", got[0].Tail)
	}
	if got[0].Bytes != 5 {
		t.Fatalf("expected 5 bytes, got %d", got[0].Bytes)
	}
}

func TestStore_WritesCountButDoNotGrowTail(t *testing.T) {
	now := time.Now().UTC()
	s := NewStore(5*time.Minute, 0)
	s.Record(Event{Run: "r1", Channel: "console", Direction: DirectionRead, Data: []byte("out"), TS: now})
	s.Record(Event{Run: "r1", Channel: "console", Direction: DirectionWrite, Data: []byte("typed"), TS: now.Add(time.Second)})

	got := s.Snapshot(now.Add(time.Second))
	if len(got) != 1 {
		t.Fatalf("expected 1 channel, got %d", len(got))
	}
	if !bytes.Equal(got[0].Tail, []byte("out")) {
		t.Fatalf("tail should only hold read bytes, got %q", got[0].Tail)
	}
	if got[0].Bytes != 8 {
		t.Fatalf("expected 8 total bytes, got %d", got[0].Bytes)
	}
	if got[0].LastDir != DirectionWrite {
		t.Fatalf("expected last direction write, got %s", got[0].LastDir)
	}
}

func TestStore_TailTrimmedToLimit(t *testing.T) {
	now := time.Now().UTC()
	s := NewStore(5*time.Minute, 8)
	s.Record(Event{Run: "r1", Channel: "console", Direction: DirectionRead, Data: []byte("0123456789"), TS: now})
	s.Record(Event{Run: "r1", Channel: "console", Direction: DirectionRead, Data: []byte("abc"), TS: now})

	got := s.Snapshot(now)
	if string(got[0].Tail) != "56789abc" {
		t.Fatalf("expected trimmed tail %q, got %q", "56789abc", got[0].Tail)
	}
}

func TestStore_SnapshotSortedByChannel(t *testing.T) {
	now := time.Now().UTC()
	s := NewStore(5*time.Minute, 0)
	s.Record(Event{Run: "r1", Channel: "serial", Direction: DirectionRead, Data: []byte("x"), TS: now})
	s.Record(Event{Run: "r1", Channel: "console", Direction: DirectionRead, Data: []byte("y"), TS: now})

	got := s.Snapshot(now)
	if len(got) != 2 || got[0].Channel != "console" || got[1].Channel != "serial" {
		t.Fatalf("expected [console serial], got %v", got)
	}
}

func TestStore_ExpiresStaleChannels(t *testing.T) {
	now := time.Now().UTC()
	s := NewStore(2*time.Minute, 0)
	s.Record(Event{Run: "r1", Channel: "console", Direction: DirectionRead, Data: []byte("x"), TS: now})

	got := s.Snapshot(now.Add(3 * time.Minute))
	if len(got) != 0 {
		t.Fatalf("expected 0 channels after ttl expiry, got %d", len(got))
	}
}
