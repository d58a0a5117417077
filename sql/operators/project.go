package operators

import (
	"fmt"
	"strings"
	"time"

	"github.com/veldt-labs/sqlbridge/types"
)

// ProjectColumn is one computed output column.
type ProjectColumn struct {
	Name string
	Fn   RowValue
}

// ProjectNode appends computed columns to each row from its input. Plain
// column selection is handled by the scan itself; this node only exists when
// the SELECT list carries expressions the native query cannot produce.
type ProjectNode struct {
	Input   PlanNode
	Columns []ProjectColumn

	pc *PlanContext
}

func NewProject(input PlanNode, columns []ProjectColumn) *ProjectNode {
	return &ProjectNode{Input: input, Columns: columns}
}

func (n *ProjectNode) Description() string {
	names := make([]string, 0, len(n.Columns))
	for _, col := range n.Columns {
		names = append(names, col.Name)
	}
	return fmt.Sprintf("Compute [%s]", strings.Join(names, ", "))
}

func (n *ProjectNode) EstimatedRows() int64 { return n.Input.EstimatedRows() }

func (n *ProjectNode) Children() []PlanNode { return []PlanNode{n.Input} }

func (n *ProjectNode) Open(pc *PlanContext) error {
	n.pc = pc
	return n.Input.Open(pc)
}

func (n *ProjectNode) Next() (*types.QueryRow, error) {
	row, err := n.Input.Next()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	for _, col := range n.Columns {
		value, err := col.Fn(row)
		if err != nil {
			return nil, err
		}
		row.Set(col.Name, value)
	}
	timeNode(n.pc.Stats, n.Description(), start, 1)
	return row, nil
}

func (n *ProjectNode) Close() error { return n.Input.Close() }
