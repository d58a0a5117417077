package operators

import (
	"time"

	"github.com/veldt-labs/sqlbridge/types"
)

// ClientFilterNode evaluates predicates the planner could not push into the
// native query. It wraps its input and passes matching rows through.
type ClientFilterNode struct {
	Input     PlanNode
	Predicate RowPredicate
	// Label names the filter in EXPLAIN output, e.g. the predicate source
	Label string

	pc *PlanContext
}

// NewClientFilter wraps a node with a client-side predicate
func NewClientFilter(input PlanNode, predicate RowPredicate, label string) *ClientFilterNode {
	return &ClientFilterNode{Input: input, Predicate: predicate, Label: label}
}

func (n *ClientFilterNode) Description() string {
	if n.Label != "" {
		return "ClientFilter(" + n.Label + ")"
	}
	return "ClientFilter"
}

func (n *ClientFilterNode) EstimatedRows() int64 { return EstimateUnknown }

func (n *ClientFilterNode) Children() []PlanNode { return []PlanNode{n.Input} }

func (n *ClientFilterNode) Open(pc *PlanContext) error {
	n.pc = pc
	return n.Input.Open(pc)
}

func (n *ClientFilterNode) Next() (*types.QueryRow, error) {
	for {
		if err := n.pc.Cancelled(); err != nil {
			return nil, err
		}
		row, err := n.Input.Next()
		if err != nil {
			return nil, err
		}

		start := time.Now()
		match, err := n.Predicate(row)
		if err != nil {
			return nil, err
		}
		if match {
			timeNode(n.pc.Stats, n.Description(), start, 1)
			return row, nil
		}
		timeNode(n.pc.Stats, n.Description(), start, 0)
	}
}

func (n *ClientFilterNode) Close() error {
	return n.Input.Close()
}
