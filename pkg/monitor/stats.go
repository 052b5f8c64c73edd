package monitor

import (
	"sync/atomic"
)

// PredictionStats tracks the serving workload and the realized coverage of the
// intervals issued so far.
type PredictionStats struct {
	PredictCount uint64
	AdaptCount   uint64
	HitCount     uint64
	MissCount    uint64
}

func NewPredictionStats() *PredictionStats {
	return &PredictionStats{}
}

func (ps *PredictionStats) RecordPredict() {
	atomic.AddUint64(&ps.PredictCount, 1)
}

func (ps *PredictionStats) RecordAdapt() {
	atomic.AddUint64(&ps.AdaptCount, 1)
}

func (ps *PredictionStats) RecordOutcome(covered bool) {
	if covered {
		atomic.AddUint64(&ps.HitCount, 1)
	} else {
		atomic.AddUint64(&ps.MissCount, 1)
	}
}

// EmpiricalCoverage returns the fraction of observed outcomes that fell inside
// their interval, or 0 before any outcome has been recorded.
func (ps *PredictionStats) EmpiricalCoverage() float64 {
	hits := atomic.LoadUint64(&ps.HitCount)
	misses := atomic.LoadUint64(&ps.MissCount)

	total := hits + misses
	if total == 0 {
		return 0.0
	}
	return float64(hits) / float64(total)
}

func (ps *PredictionStats) Snapshot() (predicts, adapts, hits, misses uint64) {
	return atomic.LoadUint64(&ps.PredictCount),
		atomic.LoadUint64(&ps.AdaptCount),
		atomic.LoadUint64(&ps.HitCount),
		atomic.LoadUint64(&ps.MissCount)
}
