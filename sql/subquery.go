package sql

import (
	"context"
	"errors"
	"io"

	qerrors "github.com/veldt-labs/sqlbridge/errors"
	"github.com/veldt-labs/sqlbridge/sql/operators"
	"github.com/veldt-labs/sqlbridge/types"
)

// semiJoinSpec is one EXISTS or IN (SELECT ...) conjunct the planner lowers
// to a nested-loop semi-join: the inner statement is re-planned and probed
// once per outer row, with outer column references bound to that row.
type semiJoinSpec struct {
	anti  bool
	label string
	inner *SelectStatement
	// probe is the outer-side expression of IN; nil for EXISTS
	probe Expression
	// outerProbe names the outer columns the probe needs, so the outer scan
	// requests them
	outerProbe Condition
}

// resolveSubqueries rewrites subquery conjuncts that can be evaluated
// eagerly at plan time. An uncorrelated IN (SELECT ...) collapses to an IN
// over the literal values the inner query returned, which may then push into
// the native filter. Scalar subqueries inside comparisons collapse to a
// literal; more than one inner row is an error. Eager evaluation requires an
// executor: in explain mode everything stays symbolic and is planned as a
// semi-join so no remote call ever happens.
func (pl *planning) resolveSubqueries(sel *SelectStatement, cond Condition) (Condition, error) {
	if cond == nil {
		return nil, nil
	}
	switch v := cond.(type) {
	case *LogicalCondition:
		children := make([]Condition, len(v.Conditions))
		for i, child := range v.Conditions {
			resolved, err := pl.resolveSubqueries(sel, child)
			if err != nil {
				return nil, err
			}
			children[i] = resolved
		}
		return &LogicalCondition{Pos: v.Pos, Op: v.Op, Conditions: children}, nil

	case *InSubqueryCondition:
		if pl.opts.Executor == nil || pl.isCorrelated(sel, v.Select) {
			return v, nil
		}
		values, err := pl.runSubqueryValues(v.Select)
		if err != nil {
			return nil, err
		}
		items := make([]Expression, len(values))
		for i, value := range values {
			items[i] = &Literal{Pos: v.Pos, Value: value}
		}
		return &InCondition{Pos: v.Pos, Expr: v.Expr, Values: items, Not: v.Not}, nil

	case *Comparison:
		left, err := pl.resolveScalarSubquery(sel, v.Left)
		if err != nil {
			return nil, err
		}
		right, err := pl.resolveScalarSubquery(sel, v.Right)
		if err != nil {
			return nil, err
		}
		if left == v.Left && right == v.Right {
			return v, nil
		}
		return &Comparison{Pos: v.Pos, Op: v.Op, Left: left, Right: right}, nil
	}
	return cond, nil
}

func (pl *planning) resolveScalarSubquery(sel *SelectStatement, expr Expression) (Expression, error) {
	sub, ok := expr.(*SubqueryExpr)
	if !ok {
		return expr, nil
	}
	if pl.opts.Executor == nil {
		// Explain mode: a null placeholder keeps the plan shape visible
		// without touching the remote store.
		return &Literal{Pos: sub.Pos, Value: types.NullValue()}, nil
	}
	if pl.isCorrelated(sel, sub.Select) {
		return nil, qerrors.New(qerrors.CodeExecutionFailed,
			"correlated scalar subqueries are not supported in this position")
	}
	values, err := pl.runSubqueryValues(sub.Select)
	if err != nil {
		return nil, err
	}
	switch len(values) {
	case 0:
		return &Literal{Pos: sub.Pos, Value: types.NullValue()}, nil
	case 1:
		return &Literal{Pos: sub.Pos, Value: values[0]}, nil
	}
	return nil, qerrors.Newf(qerrors.CodeSubqueryMultipleRows,
		"scalar subquery returned %d rows, expected at most one", len(values))
}

// runSubqueryValues plans and fully executes an uncorrelated subquery,
// returning the first output column of every row.
func (pl *planning) runSubqueryValues(inner *SelectStatement) ([]types.QueryValue, error) {
	result, err := pl.planSelect(inner)
	if err != nil {
		return nil, err
	}

	ctx := pl.opts.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	pc := &operators.PlanContext{
		Ctx:      ctx,
		Executor: pl.opts.Executor,
		Stats:    operators.NewPlanStatistics(),
		PageSize: pl.opts.PageSize,
	}
	if err := result.Root.Open(pc); err != nil {
		return nil, err
	}
	defer result.Root.Close()

	var values []types.QueryValue
	for {
		row, err := result.Root.Next()
		if errors.Is(err, io.EOF) {
			return values, nil
		}
		if err != nil {
			return nil, err
		}
		if len(row.Columns) == 0 {
			values = append(values, types.NullValue())
			continue
		}
		values = append(values, row.Get(row.Columns[0]))
	}
}

// isCorrelated reports whether the inner statement references the outer
// statement's table or alias through a qualified column
func (pl *planning) isCorrelated(outer *SelectStatement, inner *SelectStatement) bool {
	return len(outerColumnRefs(outer, inner)) > 0
}

// outerColumnRefs collects the inner statement's qualified references to
// the outer table. Inner-local qualifiers (the inner table, its alias, its
// join aliases) do not count.
func outerColumnRefs(outer *SelectStatement, inner *SelectStatement) []*ColumnRef {
	local := map[string]bool{inner.From.Name: true}
	if inner.From.Alias != "" {
		local[inner.From.Alias] = true
	}
	for _, join := range inner.Joins {
		local[join.Table.Name] = true
		if join.Table.Alias != "" {
			local[join.Table.Alias] = true
		}
	}

	names := map[string]bool{outer.From.Name: true}
	if outer.From.Alias != "" {
		names[outer.From.Alias] = true
	}

	var refs []*ColumnRef
	for _, ref := range conditionColumnRefs(inner.Where) {
		if ref.Table != "" && !local[ref.Table] && names[ref.Table] {
			refs = append(refs, ref)
		}
	}
	return refs
}

// asSemiJoin recognizes the conjuncts that must become semi-joins: every
// EXISTS, and any IN (SELECT ...) that survived eager resolution.
func (pl *planning) asSemiJoin(sel *SelectStatement, cond Condition) (*semiJoinSpec, bool) {
	switch v := cond.(type) {
	case *ExistsCondition:
		label := "exists " + v.Select.From.Name
		if v.Not {
			label = "not " + label
		}
		return &semiJoinSpec{
			anti:       v.Not,
			label:      label,
			inner:      v.Select,
			outerProbe: outerRefsCondition(outerColumnRefs(sel, v.Select)),
		}, true
	case *InSubqueryCondition:
		label := describeExpr(v.Expr) + " in " + v.Select.From.Name
		if v.Not {
			label = "not " + label
		}
		spec := &semiJoinSpec{
			anti:       v.Not,
			label:      label,
			inner:      v.Select,
			probe:      v.Expr,
			outerProbe: &ExprCondition{Expr: v.Expr},
		}
		if refs := outerColumnRefs(sel, v.Select); len(refs) > 0 {
			spec.outerProbe = &LogicalCondition{Op: LogicalAnd, Conditions: []Condition{
				spec.outerProbe, outerRefsCondition(refs),
			}}
		}
		return spec, true
	}
	return nil, false
}

func outerRefsCondition(refs []*ColumnRef) Condition {
	if len(refs) == 0 {
		return nil
	}
	conds := make([]Condition, len(refs))
	for i, ref := range refs {
		conds[i] = &ExprCondition{Expr: ref}
	}
	if len(conds) == 1 {
		return conds[0]
	}
	return &LogicalCondition{Op: LogicalAnd, Conditions: conds}
}

// buildSemiJoin wraps the outer plan in a nested-loop probe. The inner
// statement is re-planned per outer row with outer references bound to that
// row's values, and for IN, an added equality between the inner output
// column and the probe value.
func (pl *planning) buildSemiJoin(outer operators.PlanNode, sel *SelectStatement, spec *semiJoinSpec) operators.PlanNode {
	outerNames := map[string]bool{sel.From.Name: true}
	if sel.From.Alias != "" {
		outerNames[sel.From.Alias] = true
	}
	vars := pl.opts.Vars

	var probeFn ScalarFn
	if spec.probe != nil {
		fn, err := pl.planner.eval.CompileScalar(spec.probe)
		if err == nil {
			probeFn = fn
		}
	}

	// Execution-time replans run without the planning deadline.
	inner := &planning{planner: pl.planner, opts: pl.opts}

	factory := func(row *types.QueryRow) (operators.PlanNode, error) {
		stmt := *spec.inner
		stmt.Where = bindOuterRow(stmt.Where, outerNames, row)

		if spec.probe != nil {
			if probeFn == nil {
				return nil, qerrors.New(qerrors.CodeExecutionFailed,
					"IN subquery probe expression cannot be evaluated")
			}
			value, err := probeFn(&EvalRow{Row: row, Vars: vars})
			if err != nil {
				return nil, err
			}
			col, ok := innerOutputColumn(&stmt)
			if !ok {
				return nil, qerrors.New(qerrors.CodeExecutionFailed,
					"IN subquery must select exactly one column")
			}
			match := &Comparison{Op: "=", Left: col, Right: &Literal{Value: value}}
			stmt.Where = andConditions(stmt.Where, match)
		}

		result, err := inner.planSingleSelect(&stmt)
		if err != nil {
			return nil, err
		}
		return result.Root, nil
	}

	return operators.NewSemiJoin(outer, spec.anti, spec.label, factory)
}

func innerOutputColumn(sel *SelectStatement) (*ColumnRef, bool) {
	if len(sel.Columns) != 1 {
		return nil, false
	}
	ref, ok := sel.Columns[0].Expr.(*ColumnRef)
	if !ok || ref.Wildcard {
		return nil, false
	}
	return ref, true
}

func andConditions(left, right Condition) Condition {
	if left == nil {
		return right
	}
	if right == nil {
		return left
	}
	return &LogicalCondition{Op: LogicalAnd, Conditions: []Condition{left, right}}
}

// bindOuterRow replaces qualified references to the outer table with the
// current outer row's values, turning a correlated inner statement into a
// plain one the planner can lower.
func bindOuterRow(cond Condition, outerNames map[string]bool, row *types.QueryRow) Condition {
	if cond == nil {
		return nil
	}
	er := &EvalRow{Row: row}
	bindExpr := func(expr Expression) Expression {
		return bindOuterExpr(expr, outerNames, er)
	}
	switch v := cond.(type) {
	case *Comparison:
		return &Comparison{Pos: v.Pos, Op: v.Op, Left: bindExpr(v.Left), Right: bindExpr(v.Right)}
	case *NullCondition:
		return &NullCondition{Pos: v.Pos, Expr: bindExpr(v.Expr), Not: v.Not}
	case *LikeCondition:
		return &LikeCondition{Pos: v.Pos, Left: bindExpr(v.Left), Pattern: bindExpr(v.Pattern), Not: v.Not}
	case *InCondition:
		values := make([]Expression, len(v.Values))
		for i, item := range v.Values {
			values[i] = bindExpr(item)
		}
		return &InCondition{Pos: v.Pos, Expr: bindExpr(v.Expr), Values: values, Not: v.Not}
	case *LogicalCondition:
		children := make([]Condition, len(v.Conditions))
		for i, child := range v.Conditions {
			children[i] = bindOuterRow(child, outerNames, row)
		}
		return &LogicalCondition{Pos: v.Pos, Op: v.Op, Conditions: children}
	case *ExprCondition:
		return &ExprCondition{Pos: v.Pos, Expr: bindExpr(v.Expr)}
	}
	return cond
}

func bindOuterExpr(expr Expression, outerNames map[string]bool, er *EvalRow) Expression {
	switch v := expr.(type) {
	case *ColumnRef:
		if v.Table != "" && outerNames[v.Table] {
			// Unqualified lookup against the outer row: the outer scan
			// returns attributes under their plain names.
			return &Literal{Pos: v.Pos, Value: er.Resolve(&ColumnRef{Name: v.Name})}
		}
	case *BinaryExpr:
		return &BinaryExpr{
			Pos:   v.Pos,
			Op:    v.Op,
			Left:  bindOuterExpr(v.Left, outerNames, er),
			Right: bindOuterExpr(v.Right, outerNames, er),
		}
	}
	return expr
}
