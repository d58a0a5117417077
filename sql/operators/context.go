package operators

import (
	"context"

	"github.com/veldt-labs/sqlbridge/remote"
)

// PlanContext is the execution scope of one logical query invocation. It is
// created per invocation and discarded once the row stream is fully consumed
// or cancelled; it is never persisted.
type PlanContext struct {
	Ctx      context.Context
	Executor remote.QueryExecutor
	Mutator  remote.MutationExecutor
	Progress remote.ProgressReporter
	Stats    *PlanStatistics

	// PageSize is passed through to the query executor; 0 lets it choose
	PageSize int
	// PoolCapacity bounds parallel branch execution; it is a read-only hint
	PoolCapacity int

	// DistinctMemoryLimit bounds client-side dedup state, in rows
	DistinctMemoryLimit int
	// SpillDir enables disk spill for dedup state when non-empty
	SpillDir string
}

// Cancelled reports the context's cancellation error, if any
func (pc *PlanContext) Cancelled() error {
	if pc.Ctx == nil {
		return nil
	}
	return pc.Ctx.Err()
}

// Parallelism is the effective branch parallelism for this context
func (pc *PlanContext) Parallelism() int {
	if pc.PoolCapacity < 1 {
		return 1
	}
	return pc.PoolCapacity
}

func (pc *PlanContext) reportPhase(name, detail string) {
	if pc.Progress != nil {
		pc.Progress.ReportPhase(name, detail)
	}
}

func (pc *PlanContext) reportProgress(current, total int64, message string) {
	if pc.Progress != nil {
		pc.Progress.ReportProgress(current, total, message)
	}
}
