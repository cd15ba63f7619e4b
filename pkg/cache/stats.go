package cache

import "sync/atomic"

// Statistics counts cache activity. The zero value is ready to use.
type Statistics struct {
	hits, misses atomic.Int64
	sets         atomic.Int64
	deletes      atomic.Int64
	evictions    atomic.Int64
	size, peak   atomic.Int64
}

func (s *Statistics) lookup(hit bool) {
	if hit {
		s.hits.Add(1)
	} else {
		s.misses.Add(1)
	}
}

func (s *Statistics) resize(n int) {
	s.size.Store(int64(n))
	for {
		p := s.peak.Load()
		if int64(n) <= p || s.peak.CompareAndSwap(p, int64(n)) {
			return
		}
	}
}

func (s *Statistics) Hits() int64      { return s.hits.Load() }
func (s *Statistics) Misses() int64    { return s.misses.Load() }
func (s *Statistics) Evictions() int64 { return s.evictions.Load() }

// HitRatio is hits over lookups, 0 before the first lookup
func (s *Statistics) HitRatio() float64 {
	h, m := s.Hits(), s.Misses()
	if h+m == 0 {
		return 0
	}
	return float64(h) / float64(h+m)
}

// StatsSummary is a point-in-time copy of Statistics
type StatsSummary struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	Sets        int64   `json:"sets"`
	Deletes     int64   `json:"deletes"`
	Evictions   int64   `json:"evictions"`
	CurrentSize int64   `json:"current_size"`
	PeakSize    int64   `json:"peak_size"`
	HitRatio    float64 `json:"hit_ratio"`
}

func (s *Statistics) Summary() StatsSummary {
	return StatsSummary{
		Hits:        s.Hits(),
		Misses:      s.Misses(),
		Sets:        s.sets.Load(),
		Deletes:     s.deletes.Load(),
		Evictions:   s.Evictions(),
		CurrentSize: s.size.Load(),
		PeakSize:    s.peak.Load(),
		HitRatio:    s.HitRatio(),
	}
}
