package engine

import "github.com/treeleaves30760/PyMD/internal/ir"

// statsCounter accumulates execution counters.
//
// Hits add to total but not to time, so averageTimeMs (time over total)
// understates the cost of a miss when the hit rate is high. The miss-only
// average is reported alongside it.
type statsCounter struct {
	total   int64
	hits    int64
	misses  int64
	totalMs float64
}

func (s *statsCounter) hit() {
	s.total++
	s.hits++
}

func (s *statsCounter) miss(ms float64) {
	s.total++
	s.misses++
	s.totalMs += ms
}

func (s statsCounter) view() ir.Stats {
	out := ir.Stats{
		TotalExecutions: s.total,
		CacheHits:       s.hits,
		CacheMisses:     s.misses,
		TotalTimeMs:     s.totalMs,
	}
	if s.total > 0 {
		out.AverageTimeMs = s.totalMs / float64(s.total)
	}
	if s.misses > 0 {
		out.AverageMissTimeMs = s.totalMs / float64(s.misses)
	}
	return out
}
