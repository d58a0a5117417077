package operators

import (
	"sync"
	"sync/atomic"
	"time"
)

// PlanStatistics accumulates execution counters. All mutation is atomic:
// Concatenate branches may execute in parallel against the same object.
type PlanStatistics struct {
	RowsRead     atomic.Int64
	RowsOutput   atomic.Int64
	PagesFetched atomic.Int64

	started time.Time
	elapsed atomic.Int64 // nanoseconds

	perNode sync.Map // description -> *NodeStats
}

// NodeStats holds per-node counters
type NodeStats struct {
	Rows    atomic.Int64
	Elapsed atomic.Int64 // nanoseconds
}

// NewPlanStatistics creates a statistics object with the clock started
func NewPlanStatistics() *PlanStatistics {
	return &PlanStatistics{started: time.Now()}
}

// Node returns the per-node counters for a description, creating on demand
func (s *PlanStatistics) Node(description string) *NodeStats {
	if v, ok := s.perNode.Load(description); ok {
		return v.(*NodeStats)
	}
	v, _ := s.perNode.LoadOrStore(description, &NodeStats{})
	return v.(*NodeStats)
}

// Finish captures the total elapsed time
func (s *PlanStatistics) Finish() {
	s.elapsed.Store(int64(time.Since(s.started)))
}

// Elapsed is the total elapsed time; the live clock when not finished
func (s *PlanStatistics) Elapsed() time.Duration {
	if v := s.elapsed.Load(); v > 0 {
		return time.Duration(v)
	}
	return time.Since(s.started)
}

// EachNode visits per-node counters
func (s *PlanStatistics) EachNode(fn func(description string, ns *NodeStats)) {
	s.perNode.Range(func(k, v interface{}) bool {
		fn(k.(string), v.(*NodeStats))
		return true
	})
}

// timeNode records rows and duration against a node's counters
func timeNode(stats *PlanStatistics, description string, start time.Time, rows int64) {
	if stats == nil {
		return
	}
	ns := stats.Node(description)
	ns.Rows.Add(rows)
	ns.Elapsed.Add(int64(time.Since(start)))
}
