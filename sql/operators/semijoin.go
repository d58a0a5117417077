package operators

import (
	"fmt"
	"time"

	"github.com/veldt-labs/sqlbridge/types"
)

// SemiJoinNode implements correlated EXISTS/IN by a nested-loop strategy:
// for each outer row the inner plan is rebuilt with the correlation bound
// and probed for at least one row. Anti joins (NOT EXISTS / NOT IN) invert
// the inclusion test.
type SemiJoinNode struct {
	Outer PlanNode
	Anti  bool
	Label string
	// InnerFactory builds the inner plan for one outer row
	InnerFactory func(outer *types.QueryRow) (PlanNode, error)

	pc *PlanContext
}

// NewSemiJoin creates a nested-loop semi-join node
func NewSemiJoin(outer PlanNode, anti bool, label string, factory func(*types.QueryRow) (PlanNode, error)) *SemiJoinNode {
	return &SemiJoinNode{Outer: outer, Anti: anti, Label: label, InnerFactory: factory}
}

func (n *SemiJoinNode) Description() string {
	kind := "SemiJoin"
	if n.Anti {
		kind = "AntiSemiJoin"
	}
	if n.Label != "" {
		return fmt.Sprintf("%s(%s)", kind, n.Label)
	}
	return kind
}

func (n *SemiJoinNode) EstimatedRows() int64 { return EstimateUnknown }

func (n *SemiJoinNode) Children() []PlanNode { return []PlanNode{n.Outer} }

func (n *SemiJoinNode) Open(pc *PlanContext) error {
	n.pc = pc
	return n.Outer.Open(pc)
}

func (n *SemiJoinNode) Next() (*types.QueryRow, error) {
	for {
		if err := n.pc.Cancelled(); err != nil {
			return nil, err
		}
		row, err := n.Outer.Next()
		if err != nil {
			return nil, err
		}

		start := time.Now()
		exists, err := n.probe(row)
		if err != nil {
			return nil, err
		}
		if exists != n.Anti {
			timeNode(n.pc.Stats, n.Description(), start, 1)
			return row, nil
		}
		timeNode(n.pc.Stats, n.Description(), start, 0)
	}
}

// probe runs the inner plan for one outer row and reports whether it
// yields at least one row
func (n *SemiJoinNode) probe(outer *types.QueryRow) (bool, error) {
	inner, err := n.InnerFactory(outer)
	if err != nil {
		return false, err
	}
	if err := inner.Open(n.pc); err != nil {
		return false, err
	}
	defer inner.Close()

	_, err = inner.Next()
	if err == EOF {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (n *SemiJoinNode) Close() error {
	return n.Outer.Close()
}
