package catalog

import "sync/atomic"

// RunStats collects process-wide counters for a single crawl run. A fresh
// RunStats is created per run and passed explicitly to each stage; nothing
// survives between runs. Counters are safe for concurrent increment.
type RunStats struct {
	RequestsAttempted   atomic.Int64
	RequestsSucceeded   atomic.Int64
	RequestsFailed      atomic.Int64
	ChallengesTriggered atomic.Int64
	ProductsRaw         atomic.Int64
	ProductsUnique      atomic.Int64
}

// StatsSnapshot is a plain-value copy of the counters, read at run end.
type StatsSnapshot struct {
	RequestsAttempted   int64
	RequestsSucceeded   int64
	RequestsFailed      int64
	ChallengesTriggered int64
	ProductsRaw         int64
	ProductsUnique      int64
}

// NewRunStats returns zeroed counters for one run.
func NewRunStats() *RunStats {
	return &RunStats{}
}

// Snapshot reads all counters at once.
func (s *RunStats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		RequestsAttempted:   s.RequestsAttempted.Load(),
		RequestsSucceeded:   s.RequestsSucceeded.Load(),
		RequestsFailed:      s.RequestsFailed.Load(),
		ChallengesTriggered: s.ChallengesTriggered.Load(),
		ProductsRaw:         s.ProductsRaw.Load(),
		ProductsUnique:      s.ProductsUnique.Load(),
	}
}
