package operators

import (
	"time"

	qerrors "github.com/veldt-labs/sqlbridge/errors"
	"github.com/veldt-labs/sqlbridge/logger"
	"github.com/veldt-labs/sqlbridge/types"
)

// DistinctNode de-duplicates rows by full-row equality, preserving the
// stable iteration order of first occurrence. Dedup state is the one place
// the engine buffers: it is bounded by the context's memory limit and spills
// to disk when a spill directory is configured, otherwise the breach
// surfaces as a memory limit error.
type DistinctNode struct {
	Input PlanNode

	pc    *PlanContext
	seen  map[string]struct{}
	spill *spillStore
}

// NewDistinct wraps a node with de-duplication
func NewDistinct(input PlanNode) *DistinctNode {
	return &DistinctNode{Input: input}
}

func (n *DistinctNode) Description() string { return "Distinct" }

func (n *DistinctNode) EstimatedRows() int64 { return EstimateUnknown }

func (n *DistinctNode) Children() []PlanNode { return []PlanNode{n.Input} }

func (n *DistinctNode) Open(pc *PlanContext) error {
	n.pc = pc
	n.seen = make(map[string]struct{})
	n.spill = nil
	return n.Input.Open(pc)
}

func (n *DistinctNode) Next() (*types.QueryRow, error) {
	for {
		// Buffering node: cancellation is observed per row yielded
		if err := n.pc.Cancelled(); err != nil {
			return nil, err
		}
		row, err := n.Input.Next()
		if err != nil {
			return nil, err
		}

		start := time.Now()
		key := row.Key()
		duplicate, err := n.contains(key)
		if err != nil {
			return nil, err
		}
		if duplicate {
			timeNode(n.pc.Stats, n.Description(), start, 0)
			continue
		}
		if err := n.remember(key); err != nil {
			return nil, err
		}
		timeNode(n.pc.Stats, n.Description(), start, 1)
		return row, nil
	}
}

func (n *DistinctNode) contains(key string) (bool, error) {
	if _, ok := n.seen[key]; ok {
		return true, nil
	}
	if n.spill != nil {
		return n.spill.Has(key)
	}
	return false, nil
}

func (n *DistinctNode) remember(key string) error {
	limit := n.pc.DistinctMemoryLimit
	if limit <= 0 || len(n.seen) < limit {
		n.seen[key] = struct{}{}
		return nil
	}

	if n.spill == nil {
		if n.pc.SpillDir == "" {
			return qerrors.Newf(qerrors.CodeMemoryLimitExceeded,
				"distinct working set exceeded %d rows and no spill directory is configured", limit)
		}
		spill, err := newSpillStore(n.pc.SpillDir)
		if err != nil {
			return qerrors.Wrap(err, qerrors.CodeMemoryLimitExceeded, n.Description())
		}
		logger.Debug("distinct state spilling to disk", "dir", spill.dir, "memory_rows", len(n.seen))
		n.spill = spill
	}
	return n.spill.Add(key)
}

func (n *DistinctNode) Close() error {
	if n.spill != nil {
		n.spill.Close()
		n.spill = nil
	}
	n.seen = nil
	return n.Input.Close()
}
