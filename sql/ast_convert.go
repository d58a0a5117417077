package sql

import (
	"fmt"

	pg_query "github.com/pganalyze/pg_query_go/v6"
	qerrors "github.com/veldt-labs/sqlbridge/errors"
	"github.com/veldt-labs/sqlbridge/types"
)

// astConverter maps the PostgreSQL parse tree onto the engine's AST
type astConverter struct {
	source string
	base   Pos
}

func (c *astConverter) posAt(location int32) Pos {
	line, col := offsetToLineCol(c.source, int(location))
	if line == 1 {
		return Pos{Line: c.base.Line, Column: c.base.Column + col - 1}
	}
	return Pos{Line: c.base.Line + line - 1, Column: col}
}

func (c *astConverter) errorf(pos Pos, format string, args ...interface{}) error {
	return &qerrors.ParseError{Errors: []qerrors.SyntaxError{{
		Line:    pos.Line,
		Column:  pos.Column,
		Message: fmt.Sprintf(format, args...),
	}}}
}

func (c *astConverter) convertStatement(stmt *pg_query.Node) (Statement, error) {
	switch {
	case stmt.GetSelectStmt() != nil:
		return c.convertSelect(stmt.GetSelectStmt())
	case stmt.GetInsertStmt() != nil:
		return c.convertInsert(stmt.GetInsertStmt())
	case stmt.GetUpdateStmt() != nil:
		return c.convertUpdate(stmt.GetUpdateStmt())
	case stmt.GetDeleteStmt() != nil:
		return c.convertDelete(stmt.GetDeleteStmt())
	default:
		return nil, c.errorf(c.base, "unsupported statement type")
	}
}

func (c *astConverter) convertSelect(stmt *pg_query.SelectStmt) (*SelectStatement, error) {
	if stmt.GetOp() == pg_query.SetOperation_SETOP_UNION {
		return c.convertUnion(stmt)
	}

	sel := &SelectStatement{Pos: c.base}
	if len(stmt.GetDistinctClause()) > 0 {
		sel.Distinct = true
	}

	for _, target := range stmt.GetTargetList() {
		res := target.GetResTarget()
		if res == nil {
			continue
		}
		expr, err := c.convertExpression(res.GetVal())
		if err != nil {
			return nil, err
		}
		col := SelectColumn{Expr: expr, Alias: res.GetName()}
		if agg, ok := expr.(*AggregateExpr); ok && col.Alias != "" {
			agg.Alias = col.Alias
		}
		if ref, ok := expr.(*ColumnRef); ok && col.Alias != "" {
			ref.Alias = col.Alias
		}
		sel.Columns = append(sel.Columns, col)
	}

	if err := c.convertFromClause(stmt.GetFromClause(), sel); err != nil {
		return nil, err
	}

	if where := stmt.GetWhereClause(); where != nil {
		cond, err := c.convertCondition(where)
		if err != nil {
			return nil, err
		}
		sel.Where = cond
	}

	for _, group := range stmt.GetGroupClause() {
		expr, err := c.convertExpression(group)
		if err != nil {
			return nil, err
		}
		ref, ok := expr.(*ColumnRef)
		if !ok {
			return nil, c.errorf(expr.Position(), "GROUP BY supports column references only")
		}
		sel.GroupBy = append(sel.GroupBy, ref)
	}

	if having := stmt.GetHavingClause(); having != nil {
		cond, err := c.convertCondition(having)
		if err != nil {
			return nil, err
		}
		sel.Having = cond
	}

	for _, sort := range stmt.GetSortClause() {
		sb := sort.GetSortBy()
		if sb == nil {
			continue
		}
		expr, err := c.convertExpression(sb.GetNode())
		if err != nil {
			return nil, err
		}
		ref, ok := expr.(*ColumnRef)
		if !ok {
			return nil, c.errorf(expr.Position(), "ORDER BY supports column references only")
		}
		sel.OrderBy = append(sel.OrderBy, OrderByItem{
			Column: ref,
			Desc:   sb.GetSortbyDir() == pg_query.SortByDir_SORTBY_DESC,
		})
	}

	if limit := stmt.GetLimitCount(); limit != nil {
		expr, err := c.convertExpression(limit)
		if err != nil {
			return nil, err
		}
		lit, ok := expr.(*Literal)
		if !ok || lit.Value.Kind != types.KindNumber {
			return nil, c.errorf(expr.Position(), "LIMIT must be a numeric literal")
		}
		sel.Top = int64(lit.Value.Num)
	}

	return sel, nil
}

// convertUnion flattens a UNION tree into branch order
func (c *astConverter) convertUnion(stmt *pg_query.SelectStmt) (*SelectStatement, error) {
	left, err := c.convertSelect(stmt.GetLarg())
	if err != nil {
		return nil, err
	}
	right, err := c.convertSelect(stmt.GetRarg())
	if err != nil {
		return nil, err
	}
	left.SetOps = append(left.SetOps, SetOperation{All: stmt.GetAll(), Select: right})
	return left, nil
}

func (c *astConverter) convertFromClause(from []*pg_query.Node, sel *SelectStatement) error {
	if len(from) == 0 {
		return nil
	}
	if len(from) > 1 {
		return c.errorf(c.base, "multiple FROM tables are not supported, use JOIN")
	}

	node := from[0]
	if rv := node.GetRangeVar(); rv != nil {
		sel.From = c.convertRangeVar(rv)
		return nil
	}
	if je := node.GetJoinExpr(); je != nil {
		return c.convertJoin(je, sel)
	}
	return c.errorf(c.base, "unsupported FROM clause")
}

func (c *astConverter) convertRangeVar(rv *pg_query.RangeVar) TableRef {
	ref := TableRef{Name: rv.GetRelname()}
	if alias := rv.GetAlias(); alias != nil {
		ref.Alias = alias.GetAliasname()
	}
	return ref
}

// convertJoin walks a left-deep join tree into the flat join list
func (c *astConverter) convertJoin(je *pg_query.JoinExpr, sel *SelectStatement) error {
	var joinType JoinType
	switch je.GetJointype() {
	case pg_query.JoinType_JOIN_INNER:
		joinType = JoinInner
	case pg_query.JoinType_JOIN_LEFT:
		joinType = JoinLeft
	default:
		return c.errorf(c.base, "unsupported join type, only INNER and LEFT are available")
	}

	if nested := je.GetLarg().GetJoinExpr(); nested != nil {
		if err := c.convertJoin(nested, sel); err != nil {
			return err
		}
	} else if rv := je.GetLarg().GetRangeVar(); rv != nil {
		sel.From = c.convertRangeVar(rv)
	} else {
		return c.errorf(c.base, "unsupported join source")
	}

	rv := je.GetRarg().GetRangeVar()
	if rv == nil {
		return c.errorf(c.base, "unsupported join target")
	}

	cond, err := c.convertCondition(je.GetQuals())
	if err != nil {
		return err
	}
	cmp, ok := cond.(*Comparison)
	if !ok || cmp.Op != "=" {
		return c.errorf(cond.Position(), "JOIN requires an equality predicate between two columns")
	}
	leftCol, lok := cmp.Left.(*ColumnRef)
	rightCol, rok := cmp.Right.(*ColumnRef)
	if !lok || !rok {
		return c.errorf(cond.Position(), "JOIN requires an equality predicate between two columns")
	}

	sel.Joins = append(sel.Joins, SqlJoin{
		Table:    c.convertRangeVar(rv),
		Type:     joinType,
		LeftCol:  leftCol,
		RightCol: rightCol,
	})
	return nil
}

func (c *astConverter) convertInsert(stmt *pg_query.InsertStmt) (*InsertStatement, error) {
	ins := &InsertStatement{Pos: c.base, Table: c.convertRangeVar(stmt.GetRelation())}

	for _, col := range stmt.GetCols() {
		if res := col.GetResTarget(); res != nil {
			ins.Columns = append(ins.Columns, res.GetName())
		}
	}

	sel := stmt.GetSelectStmt().GetSelectStmt()
	if sel == nil || len(sel.GetValuesLists()) == 0 {
		return nil, c.errorf(c.base, "INSERT supports VALUES lists only")
	}
	for _, list := range sel.GetValuesLists() {
		items := list.GetList().GetItems()
		row := make([]Expression, 0, len(items))
		for _, item := range items {
			expr, err := c.convertExpression(item)
			if err != nil {
				return nil, err
			}
			row = append(row, expr)
		}
		if len(ins.Columns) > 0 && len(row) != len(ins.Columns) {
			return nil, c.errorf(c.base, "INSERT has %d columns but %d values", len(ins.Columns), len(row))
		}
		ins.Rows = append(ins.Rows, row)
	}
	return ins, nil
}

func (c *astConverter) convertUpdate(stmt *pg_query.UpdateStmt) (*UpdateStatement, error) {
	upd := &UpdateStatement{Pos: c.base, Table: c.convertRangeVar(stmt.GetRelation())}

	for _, target := range stmt.GetTargetList() {
		res := target.GetResTarget()
		if res == nil {
			continue
		}
		value, err := c.convertExpression(res.GetVal())
		if err != nil {
			return nil, err
		}
		upd.Set = append(upd.Set, SetClause{Column: res.GetName(), Value: value})
	}

	if where := stmt.GetWhereClause(); where != nil {
		cond, err := c.convertCondition(where)
		if err != nil {
			return nil, err
		}
		upd.Where = cond
	}
	return upd, nil
}

func (c *astConverter) convertDelete(stmt *pg_query.DeleteStmt) (*DeleteStatement, error) {
	del := &DeleteStatement{Pos: c.base, Table: c.convertRangeVar(stmt.GetRelation())}
	if where := stmt.GetWhereClause(); where != nil {
		cond, err := c.convertCondition(where)
		if err != nil {
			return nil, err
		}
		del.Where = cond
	}
	return del, nil
}
