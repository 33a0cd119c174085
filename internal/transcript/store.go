package transcript

import (
	"sort"
	"sync"
	"time"
)

// Store keeps the most recent traffic per channel for live monitoring.
// Entries older than the TTL are dropped on snapshot. Safe for concurrent
// use: the collector goroutine upserts while the TUI snapshots.
type Store struct {
	mu   sync.RWMutex
	ttl  time.Duration
	tail int
	data map[string]*channelState
}

type channelState struct {
	Channel string
	Tail    []byte // last tail bytes read from the channel
	Bytes   int64  // total bytes observed in either direction
	Last    time.Time
	LastDir string
}

// ChannelView is an immutable snapshot of one channel's recent activity.
type ChannelView struct {
	Channel string
	Tail    []byte
	Bytes   int64
	Last    time.Time
	LastDir string
}

// NewStore creates a store that keeps up to tail bytes of recent output per
// channel and forgets channels idle longer than ttl (0 disables expiry).
func NewStore(ttl time.Duration, tail int) *Store {
	if tail <= 0 {
		tail = 4096
	}
	return &Store{ttl: ttl, tail: tail, data: make(map[string]*channelState)}
}

// Record folds one event into the per-channel state.
func (s *Store) Record(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.data[e.Channel]
	if st == nil {
		st = &channelState{Channel: e.Channel}
		s.data[e.Channel] = st
	}
	st.Bytes += int64(len(e.Data))
	st.Last = e.TS
	st.LastDir = e.Direction
	if e.Direction == DirectionRead {
		st.Tail = append(st.Tail, e.Data...)
		if len(st.Tail) > s.tail {
			st.Tail = st.Tail[len(st.Tail)-s.tail:]
		}
	}
}

// Snapshot returns the per-channel views sorted by channel name, dropping
// channels idle past the TTL.
func (s *Store) Snapshot(now time.Time) []ChannelView {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ttl > 0 {
		for name, st := range s.data {
			if now.Sub(st.Last) > s.ttl {
				delete(s.data, name)
			}
		}
	}
	result := make([]ChannelView, 0, len(s.data))
	for _, st := range s.data {
		result = append(result, ChannelView{
			Channel: st.Channel,
			Tail:    append([]byte(nil), st.Tail...),
			Bytes:   st.Bytes,
			Last:    st.Last,
			LastDir: st.LastDir,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Channel < result[j].Channel
	})
	return result
}
