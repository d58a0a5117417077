package sql

import (
	qerrors "github.com/veldt-labs/sqlbridge/errors"
	"github.com/veldt-labs/sqlbridge/sql/operators"
	"github.com/veldt-labs/sqlbridge/types"
)

func (pl *planning) planInsert(stmt *InsertStatement) (*PlanResult, error) {
	if err := pl.checkDeadline(); err != nil {
		return nil, err
	}

	vars := pl.opts.Vars
	rows := make([]map[string]operators.RowValue, 0, len(stmt.Rows))
	for _, exprs := range stmt.Rows {
		if len(exprs) != len(stmt.Columns) {
			return nil, &qerrors.ParseError{Errors: []qerrors.SyntaxError{{
				Line:    stmt.Pos.Line,
				Column:  stmt.Pos.Column,
				Message: "INSERT row value count does not match the column list",
			}}}
		}
		row := make(map[string]operators.RowValue, len(exprs))
		for i, expr := range exprs {
			fn, err := pl.planner.eval.CompileScalar(substituteExprVariables(expr, vars))
			if err != nil {
				return nil, err
			}
			row[stmt.Columns[i]] = func(current *types.QueryRow) (types.QueryValue, error) {
				return fn(&EvalRow{Row: current, Vars: vars})
			}
		}
		rows = append(rows, row)
	}

	return &PlanResult{
		Root: &operators.InsertNode{
			EntityName: stmt.Table.Name,
			Rows:       rows,
			DryRun:     pl.opts.DryRun,
		},
		EntityName:       stmt.Table.Name,
		EstimatedColumns: dmlSummaryColumns(),
	}, nil
}

func (pl *planning) planUpdate(stmt *UpdateStatement, rowCap int64) (*PlanResult, error) {
	if err := pl.checkDeadline(); err != nil {
		return nil, err
	}

	vars := pl.opts.Vars
	sets := make(map[string]operators.RowValue, len(stmt.Set))
	var setRefs []*ColumnRef
	for _, clause := range stmt.Set {
		expr := substituteExprVariables(clause.Value, vars)
		fn, err := pl.planner.eval.CompileScalar(expr)
		if err != nil {
			return nil, err
		}
		sets[clause.Column] = func(current *types.QueryRow) (types.QueryValue, error) {
			return fn(&EvalRow{Row: current, Vars: vars})
		}
		setRefs = append(setRefs, exprColumnRefs(expr)...)
	}

	source, err := pl.planDmlSource(stmt.Table, stmt.Where, setRefs)
	if err != nil {
		return nil, err
	}

	node := &operators.DmlApplyNode{
		Kind:        "update",
		EntityName:  stmt.Table.Name,
		IDAttribute: stmt.Table.Name + "id",
		Source:      source.Root,
		Sets:        sets,
		RowCap:      rowCap,
		DryRun:      pl.opts.DryRun,
	}
	return &PlanResult{
		Root:             node,
		EntityName:       stmt.Table.Name,
		FetchXML:         source.FetchXML,
		EstimatedColumns: dmlSummaryColumns(),
	}, nil
}

func (pl *planning) planDelete(stmt *DeleteStatement, rowCap int64) (*PlanResult, error) {
	if err := pl.checkDeadline(); err != nil {
		return nil, err
	}

	source, err := pl.planDmlSource(stmt.Table, stmt.Where, nil)
	if err != nil {
		return nil, err
	}

	node := &operators.DmlApplyNode{
		Kind:        "delete",
		EntityName:  stmt.Table.Name,
		IDAttribute: stmt.Table.Name + "id",
		Source:      source.Root,
		RowCap:      rowCap,
		DryRun:      pl.opts.DryRun,
	}
	return &PlanResult{
		Root:             node,
		EntityName:       stmt.Table.Name,
		FetchXML:         source.FetchXML,
		EstimatedColumns: dmlSummaryColumns(),
	}, nil
}

// planDmlSource synthesizes the scan feeding a mutation: the entity's id
// attribute plus any columns the SET expressions read, filtered by the
// statement's WHERE with the same pushdown rules a SELECT gets.
func (pl *planning) planDmlSource(table TableRef, where Condition, extra []*ColumnRef) (*PlanResult, error) {
	columns := []SelectColumn{{Expr: &ColumnRef{Name: table.Name + "id"}}}
	seen := map[string]bool{table.Name + "id": true}
	for _, ref := range extra {
		if ref.Table != "" || seen[ref.Name] {
			continue
		}
		seen[ref.Name] = true
		columns = append(columns, SelectColumn{Expr: &ColumnRef{Name: ref.Name}})
	}
	sel := &SelectStatement{
		Columns: columns,
		From:    table,
		Where:   where,
	}
	return pl.planSingleSelect(sel)
}

func dmlSummaryColumns() []types.QueryColumn {
	return []types.QueryColumn{{LogicalName: "affected", DataType: types.KindNumber}}
}
