// Package operators implements the plan-node tree and its pull-based
// (Volcano) execution runtime.
package operators

import (
	"io"

	"github.com/veldt-labs/sqlbridge/types"
)

// EstimateUnknown marks an unknown estimated row count
const EstimateUnknown int64 = -1

// EOF terminates a node's row sequence
var EOF = io.EOF

// PlanNode is one node of the execution tree. The tree is constructed once
// by the planner and never mutated during execution; only the shared
// statistics object accumulates counters.
//
// Execution contract: Open prepares the node against the plan context, Next
// produces rows until EOF, Close releases resources. The sequence is finite,
// forward-only and not restartable.
type PlanNode interface {
	Description() string
	EstimatedRows() int64
	Children() []PlanNode

	Open(pc *PlanContext) error
	Next() (*types.QueryRow, error)
	Close() error
}

// RowPredicate evaluates a client-side predicate against one row
type RowPredicate func(*types.QueryRow) (bool, error)

// drain pulls every remaining row from an opened node
func drain(node PlanNode) ([]*types.QueryRow, error) {
	var rows []*types.QueryRow
	for {
		row, err := node.Next()
		if err == EOF {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
}
