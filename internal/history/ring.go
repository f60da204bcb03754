package history

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultCapacity is the ring size used when none is configured.
const DefaultCapacity = 10

// Ring is a fixed-capacity circular log of entries. Recording into a full
// ring silently drops the entry with the lowest sequence number. All methods
// are safe for concurrent use.
type Ring struct {
	mu    sync.Mutex
	buf   []Entry
	head  int // index of the oldest entry
	size  int
	seq   uint64
	clock func() time.Time
}

// NewRing creates a ring holding at most capacity entries. A capacity below
// one falls back to DefaultCapacity.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Ring{buf: make([]Entry, capacity), clock: time.Now}
}

// Record stores e and returns the sequence number assigned to it. Seq, ID
// and Timestamp are filled in when zero; Status defaults to attempted.
func (r *Ring) Record(e Entry) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	e.Seq = r.seq
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = r.clock().UTC()
	}
	if e.Status == "" {
		e.Status = StatusAttempted
	}
	r.push(e.clone())
	return e.Seq
}

func (r *Ring) push(e Entry) {
	if r.size < len(r.buf) {
		r.buf[(r.head+r.size)%len(r.buf)] = e
		r.size++
		return
	}
	r.buf[r.head] = e
	r.head = (r.head + 1) % len(r.buf)
}

// List returns the retained entries, oldest first and most recent last.
func (r *Ring) List() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastLocked(r.size)
}

// Last returns up to n of the most recent entries, oldest first.
// n <= 0 returns every retained entry.
func (r *Ring) Last(n int) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n <= 0 || n > r.size {
		n = r.size
	}
	return r.lastLocked(n)
}

func (r *Ring) lastLocked(n int) []Entry {
	out := make([]Entry, 0, n)
	for i := r.size - n; i < r.size; i++ {
		out = append(out, r.buf[(r.head+i)%len(r.buf)].clone())
	}
	return out
}

// Get returns the retained entry with the given sequence number.
func (r *Ring) Get(seq uint64) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i, ok := r.indexLocked(seq); ok {
		return r.buf[i].clone(), true
	}
	return Entry{}, false
}

// SetStatus updates the outcome of a retained entry. It reports false when
// the entry has already been evicted or cleared.
func (r *Ring) SetStatus(seq uint64, status Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i, ok := r.indexLocked(seq); ok {
		r.buf[i].Status = status
		return true
	}
	return false
}

// indexLocked finds seq by offset from the oldest entry; retained sequence
// numbers are contiguous unless Restore supplied gaps.
func (r *Ring) indexLocked(seq uint64) (int, bool) {
	if r.size == 0 {
		return 0, false
	}
	oldest := r.buf[r.head].Seq
	if seq >= oldest {
		if off := seq - oldest; off < uint64(r.size) {
			if i := (r.head + int(off)) % len(r.buf); r.buf[i].Seq == seq {
				return i, true
			}
		}
	}
	for k := 0; k < r.size; k++ {
		i := (r.head + k) % len(r.buf)
		if r.buf[i].Seq == seq {
			return i, true
		}
	}
	return 0, false
}

// Clear drops every entry. The sequence counter keeps counting so numbers
// stay unique for the life of the ring.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.buf {
		r.buf[i] = Entry{}
	}
	r.head, r.size = 0, 0
}

// Restore loads previously persisted entries, oldest first, and advances the
// sequence counter to at least lastSeq. Entries beyond capacity are dropped
// from the front.
func (r *Ring) Restore(entries []Entry, lastSeq uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range entries {
		r.push(e.clone())
		if e.Seq > r.seq {
			r.seq = e.Seq
		}
	}
	if lastSeq > r.seq {
		r.seq = lastSeq
	}
}

// Len returns the number of retained entries.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Cap returns the ring capacity.
func (r *Ring) Cap() int { return len(r.buf) }
