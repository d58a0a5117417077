package sql

import (
	"fmt"
	"strings"

	"github.com/veldt-labs/sqlbridge/sql/operators"
)

// FormatPlan renders a plan tree for EXPLAIN output. Row estimates are
// printed only when the planner actually has one; unknown cardinalities
// stay silent rather than showing a guess.
func FormatPlan(root operators.PlanNode, poolCapacity int) string {
	var b strings.Builder
	b.WriteString("Execution Plan:\n")
	b.WriteString("└── ")
	b.WriteString(nodeLine(root))
	b.WriteByte('\n')
	writeChildren(&b, root, "    ")

	if poolCapacity > 1 {
		fmt.Fprintf(&b, "Pool capacity: %d (branches may run in parallel)\n", poolCapacity)
	} else {
		b.WriteString("Pool capacity: 1 (sequential)\n")
	}
	return b.String()
}

func writeChildren(b *strings.Builder, node operators.PlanNode, prefix string) {
	children := node.Children()
	for i, child := range children {
		last := i == len(children)-1
		connector := "├── "
		childPrefix := prefix + "│   "
		if last {
			connector = "└── "
			childPrefix = prefix + "    "
		}
		b.WriteString(prefix)
		b.WriteString(connector)
		b.WriteString(nodeLine(child))
		b.WriteByte('\n')
		writeChildren(b, child, childPrefix)
	}
}

func nodeLine(node operators.PlanNode) string {
	line := node.Description()
	if est := node.EstimatedRows(); est >= 0 {
		line += fmt.Sprintf(" (est. %d rows)", est)
	}
	return line
}
