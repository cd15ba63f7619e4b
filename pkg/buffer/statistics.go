package buffer

import "sync/atomic"

// Statistics counts ring buffer operations. Counters are updated by the
// buffer while it holds its lock and may be read at any time.
type Statistics struct {
	writes, reads, peeks atomic.Int64
	overflows, drops     atomic.Int64
	timeouts             atomic.Int64
	size, maxSize        atomic.Int64
}

// NewStatistics returns zeroed statistics
func NewStatistics() *Statistics { return &Statistics{} }

// Write counts an element written
func (s *Statistics) Write() { s.writes.Add(1) }

// Read counts an element read
func (s *Statistics) Read() { s.reads.Add(1) }

// Peek counts a Get that did not advance the read pointer
func (s *Statistics) Peek() { s.peeks.Add(1) }

// Overflow counts a write that found the buffer full
func (s *Statistics) Overflow() { s.overflows.Add(1) }

// Drop counts an element discarded by the full policy
func (s *Statistics) Drop() { s.drops.Add(1) }

// Timeout counts a blocking write or read that gave up
func (s *Statistics) Timeout() { s.timeouts.Add(1) }

// UpdateSize records the fill level and the high-water mark
func (s *Statistics) UpdateSize(n int64) {
	s.size.Store(n)
	for {
		high := s.maxSize.Load()
		if n <= high || s.maxSize.CompareAndSwap(high, n) {
			return
		}
	}
}

// Writes returns the elements written
func (s *Statistics) Writes() int64 { return s.writes.Load() }

// Reads returns the elements read
func (s *Statistics) Reads() int64 { return s.reads.Load() }

// Peeks returns the non-advancing reads
func (s *Statistics) Peeks() int64 { return s.peeks.Load() }

// Overflows returns the writes that found the buffer full
func (s *Statistics) Overflows() int64 { return s.overflows.Load() }

// Drops returns the elements discarded by the full policy
func (s *Statistics) Drops() int64 { return s.drops.Load() }

// Timeouts returns the blocking operations that gave up
func (s *Statistics) Timeouts() int64 { return s.timeouts.Load() }

// CurrentSize returns the fill level
func (s *Statistics) CurrentSize() int64 { return s.size.Load() }

// MaxSize returns the highest fill level seen
func (s *Statistics) MaxSize() int64 { return s.maxSize.Load() }

// DropRate returns drops per write, 0 before the first write
func (s *Statistics) DropRate() float64 {
	w := s.Writes()
	if w == 0 {
		return 0
	}
	return float64(s.Drops()) / float64(w)
}
