package operators

import (
	"fmt"

	qerrors "github.com/veldt-labs/sqlbridge/errors"
	"github.com/veldt-labs/sqlbridge/logger"
	"github.com/veldt-labs/sqlbridge/types"
)

// RowValue computes one column value, optionally against a current row
// (UPDATE SET expressions see the row being updated; INSERT values get nil).
type RowValue func(*types.QueryRow) (types.QueryValue, error)

// InsertNode creates literal rows through the mutation executor and yields a
// single summary row with the affected count.
type InsertNode struct {
	EntityName string
	Rows       []map[string]RowValue
	DryRun     bool

	pc   *PlanContext
	done bool
}

func (n *InsertNode) Description() string {
	return fmt.Sprintf("Insert(%s, %d rows)", n.EntityName, len(n.Rows))
}

func (n *InsertNode) EstimatedRows() int64 { return 1 }

func (n *InsertNode) Children() []PlanNode { return nil }

func (n *InsertNode) Open(pc *PlanContext) error {
	n.pc = pc
	n.done = false
	return nil
}

func (n *InsertNode) Next() (*types.QueryRow, error) {
	if n.done {
		return nil, EOF
	}
	n.done = true

	var affected int64
	for _, rowValues := range n.Rows {
		if err := n.pc.Cancelled(); err != nil {
			return nil, err
		}
		values := make(map[string]types.QueryValue, len(rowValues))
		for col, fn := range rowValues {
			v, err := fn(nil)
			if err != nil {
				return nil, err
			}
			values[col] = v
		}
		if !n.DryRun {
			if _, err := n.pc.Mutator.Create(n.pc.Ctx, n.EntityName, values); err != nil {
				return nil, qerrors.Wrap(err, qerrors.CodeExecutionFailed, n.Description())
			}
		}
		affected++
	}
	return summaryRow(n.EntityName, affected, n.DryRun), nil
}

func (n *InsertNode) Close() error { return nil }

// DmlApplyNode applies UPDATE or DELETE mutations to every row its source
// scan produces, honoring the affected-row cap before each mutation.
type DmlApplyNode struct {
	Kind        string // "update" or "delete"
	EntityName  string
	IDAttribute string
	Source      PlanNode
	Sets        map[string]RowValue
	RowCap      int64
	DryRun      bool

	pc   *PlanContext
	done bool
}

func (n *DmlApplyNode) Description() string {
	return fmt.Sprintf("%s(%s)", titleKind(n.Kind), n.EntityName)
}

func titleKind(kind string) string {
	switch kind {
	case "update":
		return "Update"
	case "delete":
		return "Delete"
	}
	return kind
}

func (n *DmlApplyNode) EstimatedRows() int64 { return 1 }

func (n *DmlApplyNode) Children() []PlanNode { return []PlanNode{n.Source} }

func (n *DmlApplyNode) Open(pc *PlanContext) error {
	n.pc = pc
	n.done = false
	return n.Source.Open(pc)
}

func (n *DmlApplyNode) Next() (*types.QueryRow, error) {
	if n.done {
		return nil, EOF
	}
	n.done = true

	var affected int64
	for {
		if err := n.pc.Cancelled(); err != nil {
			return nil, err
		}
		row, err := n.Source.Next()
		if err == EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		if n.RowCap >= 0 && affected >= n.RowCap {
			return nil, qerrors.Newf(qerrors.CodeDmlRowCapExceeded,
				"%s would affect more than %d rows of %s", n.Kind, n.RowCap, n.EntityName)
		}

		if err := n.apply(row); err != nil {
			return nil, err
		}
		affected++
	}

	logger.Info("dml applied", "kind", n.Kind, "entity", n.EntityName,
		"affected", affected, "dry_run", n.DryRun)
	return summaryRow(n.EntityName, affected, n.DryRun), nil
}

func (n *DmlApplyNode) apply(row *types.QueryRow) error {
	if n.DryRun {
		return nil
	}

	idValue := row.Get(n.IDAttribute)
	id, err := idValue.AsGuid()
	if err != nil {
		return qerrors.Newf(qerrors.CodeExecutionFailed,
			"row of %s has no usable %s identifier", n.EntityName, n.IDAttribute)
	}

	switch n.Kind {
	case "delete":
		err = n.pc.Mutator.Delete(n.pc.Ctx, n.EntityName, id)
	case "update":
		values := make(map[string]types.QueryValue, len(n.Sets))
		for col, fn := range n.Sets {
			v, verr := fn(row)
			if verr != nil {
				return verr
			}
			values[col] = v
		}
		err = n.pc.Mutator.Update(n.pc.Ctx, n.EntityName, id, values)
	default:
		return qerrors.Newf(qerrors.CodeExecutionFailed, "unknown dml kind %q", n.Kind)
	}
	if err != nil {
		return qerrors.Wrap(err, qerrors.CodeExecutionFailed, n.Description())
	}
	return nil
}

func (n *DmlApplyNode) Close() error {
	return n.Source.Close()
}

func summaryRow(entityName string, affected int64, dryRun bool) *types.QueryRow {
	row := types.NewQueryRow(entityName)
	row.Set("affected", types.NumberValue(float64(affected)))
	if dryRun {
		row.Set("dry_run", types.BoolValue(true))
	}
	return row
}
