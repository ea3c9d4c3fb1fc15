package rank

import (
	"sync"
	"time"

	"github.com/danmuck/cictl/internal/protocol/wire"
)

// Direction tags a history entry as a commit (W) or an update (R).
type Direction byte

const (
	DirWrite Direction = 'W'
	DirRead  Direction = 'R'
)

// HistoryEntry is one recorded bus vector.
type HistoryEntry struct {
	Seq   uint64
	Dir   Direction
	At    time.Time
	Words wire.Vector
}

// history keeps the most recent bus vectors in a circular buffer.
type history struct {
	mu      sync.RWMutex
	entries []HistoryEntry
	index   int
	seq     uint64
}

func newHistory(size int) *history {
	return &history{entries: make([]HistoryEntry, size)}
}

func (h *history) record(dir Direction, words wire.Vector) {
	if len(h.entries) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	h.entries[h.index] = HistoryEntry{Seq: h.seq, Dir: dir, At: time.Now(), Words: words}
	h.index = (h.index + 1) % len(h.entries)
}

// recent returns up to limit entries, most recent first.
func (h *history) recent(limit int) []HistoryEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if limit <= 0 || limit > len(h.entries) {
		limit = len(h.entries)
	}
	out := make([]HistoryEntry, 0, limit)
	if len(h.entries) == 0 {
		return out
	}
	start := h.index - 1
	if start < 0 {
		start = len(h.entries) - 1
	}
	for i := 0; i < limit; i++ {
		e := h.entries[(start-i+len(h.entries))%len(h.entries)]
		if e.Seq != 0 {
			out = append(out, e)
		}
	}
	return out
}
