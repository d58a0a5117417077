package operators

import (
	"fmt"
	"strings"
	"time"

	qerrors "github.com/veldt-labs/sqlbridge/errors"
	"github.com/veldt-labs/sqlbridge/logger"
	"github.com/veldt-labs/sqlbridge/types"
)

// CountOptimizedNode serves a bare COUNT(*) through the store's aggregate
// count path. Its single child is a plain scan used as a fallback when the
// optimized path is unavailable at execution time.
type CountOptimizedNode struct {
	EntityName string
	Alias      string
	FetchXML   string
	Fallback   PlanNode

	pc   *PlanContext
	done bool
}

// NewCountOptimized creates the count-optimized node
func NewCountOptimized(entityName, alias, fetchXML string, fallback PlanNode) *CountOptimizedNode {
	if alias == "" {
		alias = "count"
	}
	return &CountOptimizedNode{
		EntityName: entityName,
		Alias:      alias,
		FetchXML:   fetchXML,
		Fallback:   fallback,
	}
}

func (n *CountOptimizedNode) Description() string {
	return fmt.Sprintf("CountOptimized(%s)", n.EntityName)
}

// EstimatedRows is always 1: the aggregate produces a single row
func (n *CountOptimizedNode) EstimatedRows() int64 { return 1 }

func (n *CountOptimizedNode) Children() []PlanNode { return []PlanNode{n.Fallback} }

func (n *CountOptimizedNode) Open(pc *PlanContext) error {
	n.pc = pc
	n.done = false
	return nil
}

func (n *CountOptimizedNode) Next() (*types.QueryRow, error) {
	if n.done {
		return nil, EOF
	}
	if err := n.pc.Cancelled(); err != nil {
		return nil, err
	}
	n.done = true

	start := time.Now()
	page, err := n.pc.Executor.Execute(n.pc.Ctx, n.FetchXML, "", 0)
	if err != nil {
		if cancelled := n.pc.Cancelled(); cancelled != nil {
			return nil, cancelled
		}
		if isAggregateLimit(err) {
			return nil, qerrors.Wrap(err, qerrors.CodeAggregateLimit, n.Description())
		}
		logger.Warn("aggregate count path unavailable, falling back to scan",
			"entity", n.EntityName, "cause", err.Error())
		return n.countFallback()
	}

	if stats := n.pc.Stats; stats != nil {
		stats.PagesFetched.Add(1)
		timeNode(stats, n.Description(), start, 1)
	}
	if len(page.Rows) == 0 {
		row := types.NewQueryRow(n.EntityName)
		row.Set(n.Alias, types.NumberValue(0))
		return row, nil
	}
	return page.Rows[0], nil
}

// countFallback counts rows through the plain scan child
func (n *CountOptimizedNode) countFallback() (*types.QueryRow, error) {
	if err := n.Fallback.Open(n.pc); err != nil {
		return nil, err
	}
	defer n.Fallback.Close()

	var count int64
	for {
		if err := n.pc.Cancelled(); err != nil {
			return nil, err
		}
		_, err := n.Fallback.Next()
		if err == EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		count++
	}

	row := types.NewQueryRow(n.EntityName)
	row.Set(n.Alias, types.NumberValue(float64(count)))
	return row, nil
}

func (n *CountOptimizedNode) Close() error { return nil }

// isAggregateLimit recognizes the remote aggregate result size limit breach
func isAggregateLimit(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "aggregate") && strings.Contains(msg, "limit")
}
