package sql

import (
	"strings"

	qerrors "github.com/veldt-labs/sqlbridge/errors"
	"github.com/veldt-labs/sqlbridge/fetchxml"
	"github.com/veldt-labs/sqlbridge/remote"
	"github.com/veldt-labs/sqlbridge/sql/operators"
	"github.com/veldt-labs/sqlbridge/types"
)

func (pl *planning) planSelect(sel *SelectStatement) (*PlanResult, error) {
	if err := pl.checkDeadline(); err != nil {
		return nil, err
	}
	if len(sel.SetOps) > 0 {
		return pl.planUnion(sel)
	}
	return pl.planSingleSelect(sel)
}

// planUnion compiles each UNION branch independently and wraps them in a
// Concatenate node, in branch order. A plain UNION additionally wraps the
// result in a Distinct node.
func (pl *planning) planUnion(sel *SelectStatement) (*PlanResult, error) {
	head := *sel
	arms := head.SetOps
	head.SetOps = nil

	distinct := false
	branches := make([]*SelectStatement, 0, len(arms)+1)
	branches = append(branches, &head)
	for _, arm := range arms {
		if !arm.All {
			distinct = true
		}
		branches = append(branches, arm.Select)
	}

	nodes := make([]operators.PlanNode, 0, len(branches))
	var first *PlanResult
	for _, branch := range branches {
		result, err := pl.planSingleSelect(branch)
		if err != nil {
			return nil, err
		}
		if first == nil {
			first = result
		}
		nodes = append(nodes, result.Root)
	}

	var root operators.PlanNode = operators.NewConcatenate(nodes)
	if distinct {
		root = operators.NewDistinct(root)
	}
	return &PlanResult{
		Root:             root,
		EntityName:       first.EntityName,
		FetchXML:         first.FetchXML,
		VirtualColumns:   first.VirtualColumns,
		EstimatedColumns: first.EstimatedColumns,
	}, nil
}

func (pl *planning) planSingleSelect(sel *SelectStatement) (*PlanResult, error) {
	if err := pl.checkDeadline(); err != nil {
		return nil, err
	}
	if sel.From.Name == "" {
		return nil, &qerrors.ParseError{Errors: []qerrors.SyntaxError{{
			Line:    sel.Pos.Line,
			Column:  sel.Pos.Column,
			Message: "SELECT requires a FROM table",
		}}}
	}

	if result, ok, err := pl.tryCountShortcut(sel); err != nil || ok {
		return result, err
	}

	where := substituteVariables(sel.Where, pl.opts.Vars)
	where, err := pl.resolveSubqueries(sel, where)
	if err != nil {
		return nil, err
	}
	if err := pl.checkDeadline(); err != nil {
		return nil, err
	}

	var pushed []fetchxml.Condition
	var clientConds []Condition
	var semiJoins []*semiJoinSpec
	for _, conjunct := range splitConjuncts(where) {
		if spec, ok := pl.asSemiJoin(sel, conjunct); ok {
			semiJoins = append(semiJoins, spec)
			continue
		}
		if fc, ok := pl.pushableCondition(sel, conjunct); ok {
			pushed = append(pushed, fc)
			continue
		}
		clientConds = append(clientConds, conjunct)
	}

	b := newFetchBuilder(pl, sel)
	b.addProjection()
	// Columns referenced by non-pushable predicates must be requested from
	// the base scan regardless of the SELECT list, so the client filter has
	// data to evaluate against.
	for _, cond := range clientConds {
		b.addConditionColumns(cond)
	}
	for _, spec := range semiJoins {
		b.addConditionColumns(spec.outerProbe)
	}
	b.addFilter(pushed)
	b.addOrders()

	top := sel.Top
	if pl.opts.MaxRows > 0 {
		top = pl.opts.MaxRows
	}
	if top > 0 {
		b.fetch.Top = int(top)
	}

	fetchText, err := b.fetch.Render()
	if err != nil {
		return nil, qerrors.Wrap(err, qerrors.CodeUnknown, "planner")
	}

	scan := operators.NewFetchScan(sel.From.Name, fetchText)
	scan.Virtual = b.virtual
	if top > 0 {
		scan.RowCap = top
		scan.Estimate = top
	}

	var root operators.PlanNode = scan
	if len(clientConds) > 0 {
		predicate, err := pl.clientPredicate(clientConds)
		if err != nil {
			return nil, err
		}
		root = operators.NewClientFilter(root, predicate, describeConditions(clientConds))
	}
	for _, spec := range semiJoins {
		root = pl.buildSemiJoin(root, sel, spec)
	}
	root, err = pl.wrapHaving(root, sel)
	if err != nil {
		return nil, err
	}
	root, err = pl.wrapProjection(root, sel)
	if err != nil {
		return nil, err
	}
	if sel.Distinct {
		root = operators.NewDistinct(root)
	}

	return &PlanResult{
		Root:             root,
		EntityName:       sel.From.Name,
		FetchXML:         fetchText,
		VirtualColumns:   virtualNames(b.virtual),
		EstimatedColumns: pl.estimatedColumns(sel),
	}, nil
}

// tryCountShortcut special-cases a bare COUNT(*) with no WHERE and no GROUP
// BY into the count-optimized node, estimated at one row, with a plain scan
// as fallback child.
func (pl *planning) tryCountShortcut(sel *SelectStatement) (*PlanResult, bool, error) {
	if sel.Where != nil || len(sel.GroupBy) > 0 || len(sel.Joins) > 0 || len(sel.Columns) != 1 {
		return nil, false, nil
	}
	agg, ok := sel.Columns[0].Expr.(*AggregateExpr)
	if !ok || agg.Func != "count" || agg.Column != nil || agg.Distinct {
		return nil, false, nil
	}

	alias := agg.Alias
	if alias == "" {
		alias = "count"
	}
	entity := sel.From.Name
	idAttr := entity + "id"

	countFetch := &fetchxml.Fetch{
		Aggregate: true,
		Entity: fetchxml.Entity{
			Name:       entity,
			Attributes: []fetchxml.Attribute{{Name: idAttr, Alias: alias, Aggregate: "count"}},
		},
	}
	countText, err := countFetch.Render()
	if err != nil {
		return nil, false, qerrors.Wrap(err, qerrors.CodeUnknown, "planner")
	}

	fallbackFetch := &fetchxml.Fetch{
		Entity: fetchxml.Entity{Name: entity, Attributes: []fetchxml.Attribute{{Name: idAttr}}},
	}
	fallbackText, err := fallbackFetch.Render()
	if err != nil {
		return nil, false, qerrors.Wrap(err, qerrors.CodeUnknown, "planner")
	}
	fallback := operators.NewFetchScan(entity, fallbackText)

	node := operators.NewCountOptimized(entity, alias, countText, fallback)
	return &PlanResult{
		Root:       node,
		EntityName: entity,
		FetchXML:   countText,
		EstimatedColumns: []types.QueryColumn{{
			LogicalName: alias,
			DataType:    types.KindNumber,
			IsAggregate: true,
			AggregateFn: "count",
		}},
	}, true, nil
}

// wrapHaving adds the client filter HAVING always requires: grouping and
// aggregation filtering happens after server-side aggregation.
func (pl *planning) wrapHaving(root operators.PlanNode, sel *SelectStatement) (operators.PlanNode, error) {
	if sel.Having == nil {
		return root, nil
	}
	having := substituteVariables(sel.Having, pl.opts.Vars)
	predicate, err := pl.clientPredicate([]Condition{having})
	if err != nil {
		return nil, err
	}
	return operators.NewClientFilter(root, predicate, "having"), nil
}

// wrapProjection adds a projection node when the SELECT list carries
// computed expressions the scan cannot produce natively
func (pl *planning) wrapProjection(root operators.PlanNode, sel *SelectStatement) (operators.PlanNode, error) {
	var computed []operators.ProjectColumn
	for _, col := range sel.Columns {
		bin, ok := col.Expr.(*BinaryExpr)
		if !ok {
			continue
		}
		fn, err := pl.planner.eval.CompileScalar(bin)
		if err != nil {
			return nil, err
		}
		name := col.Alias
		if name == "" {
			name = "expr"
		}
		vars := pl.opts.Vars
		computed = append(computed, operators.ProjectColumn{
			Name: name,
			Fn: func(row *types.QueryRow) (types.QueryValue, error) {
				return fn(&EvalRow{Row: row, Vars: vars})
			},
		})
	}
	if len(computed) == 0 {
		return root, nil
	}
	return operators.NewProject(root, computed), nil
}

// clientPredicate compiles the conjunction of just the non-pushable
// predicates, binding the variable environment
func (pl *planning) clientPredicate(conds []Condition) (operators.RowPredicate, error) {
	fn, err := pl.planner.eval.CompileConjunction(conds)
	if err != nil {
		return nil, err
	}
	vars := pl.opts.Vars
	return func(row *types.QueryRow) (bool, error) {
		return fn(&EvalRow{Row: row, Vars: vars})
	}, nil
}

// splitConjuncts decomposes an AND-connected condition into independent
// conjuncts; OR trees stay whole.
func splitConjuncts(cond Condition) []Condition {
	if cond == nil {
		return nil
	}
	logical, ok := cond.(*LogicalCondition)
	if !ok || logical.Op != LogicalAnd {
		return []Condition{cond}
	}
	var out []Condition
	for _, child := range logical.Conditions {
		out = append(out, splitConjuncts(child)...)
	}
	return out
}

// pushableCondition renders a conjunct into a native filter condition when
// its shape allows: a simple column-to-literal comparison, NULL check, LIKE,
// or IN over literals. Column-to-column comparisons and computed expressions
// are never pushable.
func (pl *planning) pushableCondition(sel *SelectStatement, cond Condition) (fetchxml.Condition, bool) {
	switch v := cond.(type) {
	case *Comparison:
		ref, lit, op, ok := pl.normalizeComparison(v)
		if !ok || !pl.baseColumn(sel, ref) {
			return fetchxml.Condition{}, false
		}
		nativeOp, ok := fetchxml.TranslateOperator(op)
		if !ok {
			return fetchxml.Condition{}, false
		}
		return fetchxml.Condition{
			Attribute: ref.Name,
			Operator:  nativeOp,
			Value:     fetchxml.SerializeValue(lit.Value),
		}, true

	case *NullCondition:
		ref, ok := v.Expr.(*ColumnRef)
		if !ok || !pl.baseColumn(sel, ref) {
			return fetchxml.Condition{}, false
		}
		op := fetchxml.OpNull
		if v.Not {
			op = fetchxml.OpNotNull
		}
		return fetchxml.Condition{Attribute: ref.Name, Operator: op}, true

	case *LikeCondition:
		ref, refOk := v.Left.(*ColumnRef)
		lit, litOk := v.Pattern.(*Literal)
		if !refOk || !litOk || lit.Value.Kind != types.KindString || !pl.baseColumn(sel, ref) {
			return fetchxml.Condition{}, false
		}
		op := fetchxml.OpLike
		if v.Not {
			op = fetchxml.OpNotLike
		}
		return fetchxml.Condition{Attribute: ref.Name, Operator: op, Value: lit.Value.Str}, true

	case *InCondition:
		ref, ok := v.Expr.(*ColumnRef)
		if !ok || !pl.baseColumn(sel, ref) {
			return fetchxml.Condition{}, false
		}
		values := make([]string, 0, len(v.Values))
		for _, item := range v.Values {
			lit, ok := item.(*Literal)
			if !ok {
				return fetchxml.Condition{}, false
			}
			values = append(values, fetchxml.SerializeValue(lit.Value))
		}
		op := fetchxml.OpIn
		if v.Not {
			op = fetchxml.OpNotIn
		}
		return fetchxml.Condition{Attribute: ref.Name, Operator: op, Values: values}, true
	}
	return fetchxml.Condition{}, false
}

// normalizeComparison orients a comparison as column-op-literal, flipping
// the operator when the literal is on the left
func (pl *planning) normalizeComparison(cmp *Comparison) (*ColumnRef, *Literal, string, bool) {
	if ref, ok := cmp.Left.(*ColumnRef); ok {
		if lit, ok := cmp.Right.(*Literal); ok {
			return ref, lit, cmp.Op, true
		}
		return nil, nil, "", false
	}
	if lit, ok := cmp.Left.(*Literal); ok {
		if ref, ok := cmp.Right.(*ColumnRef); ok {
			flipped := map[string]string{
				"=": "=", "<>": "<>",
				"<": ">", "<=": ">=", ">": "<", ">=": "<=",
			}
			return ref, lit, flipped[cmp.Op], true
		}
	}
	return nil, nil, "", false
}

// baseColumn reports whether a reference targets the base entity (not a
// joined one) and is not a virtual column
func (pl *planning) baseColumn(sel *SelectStatement, ref *ColumnRef) bool {
	if ref.Table != "" && ref.Table != sel.From.Name && ref.Table != sel.From.Alias {
		return false
	}
	_, virtual := pl.resolveAttribute(sel.From.Name, ref.Name)
	return virtual == nil
}

// resolveAttribute maps a referenced column onto the attribute the scan must
// request. A name like "ownerid" + "name" whose base attribute is a lookup
// resolves to a virtual column materialized by the execution layer. With no
// metadata provider the column passes through as a plain string attribute.
func (pl *planning) resolveAttribute(entity, name string) (string, *operators.VirtualColumn) {
	md := pl.planner.metadata
	if md == nil {
		return name, nil
	}
	if _, ok := md.AttributeKind(entity, name); ok {
		return name, nil
	}
	if base, found := strings.CutSuffix(name, "name"); found && base != "" {
		if kind, ok := md.AttributeKind(entity, base); ok && kind == remote.AttributeLookup {
			return base, &operators.VirtualColumn{Output: name, Source: base}
		}
	}
	return name, nil
}

func (pl *planning) estimatedColumns(sel *SelectStatement) []types.QueryColumn {
	var out []types.QueryColumn
	for _, col := range sel.Columns {
		switch v := col.Expr.(type) {
		case *ColumnRef:
			qc := types.QueryColumn{
				LogicalName: v.Name,
				Alias:       col.Alias,
				DataType:    pl.attributeType(sel.From.Name, v.Name),
			}
			if v.Wildcard {
				qc.LogicalName = "*"
				qc.DataType = types.KindString
			}
			if v.Table != "" && v.Table != sel.From.Name && v.Table != sel.From.Alias {
				qc.LinkedAlias = v.Table
			}
			out = append(out, qc)
		case *AggregateExpr:
			out = append(out, types.QueryColumn{
				LogicalName: aggregateOutputName(v),
				Alias:       v.Alias,
				DataType:    types.KindNumber,
				IsAggregate: true,
				AggregateFn: v.Func,
			})
		case *BinaryExpr:
			name := col.Alias
			if name == "" {
				name = "expr"
			}
			out = append(out, types.QueryColumn{LogicalName: name, DataType: types.KindNumber})
		}
	}
	return out
}

func (pl *planning) attributeType(entity, name string) types.ValueKind {
	md := pl.planner.metadata
	if md == nil {
		return types.KindString
	}
	kind, ok := md.AttributeKind(entity, name)
	if !ok {
		// Unknown columns degrade to plain string attributes
		return types.KindString
	}
	switch kind {
	case remote.AttributeNumber:
		return types.KindNumber
	case remote.AttributeBool:
		return types.KindBool
	case remote.AttributeDateTime:
		return types.KindDateTime
	case remote.AttributeGuid, remote.AttributeLookup:
		return types.KindGuid
	}
	return types.KindString
}

func virtualNames(virtual []operators.VirtualColumn) []string {
	var out []string
	for _, vc := range virtual {
		out = append(out, vc.Output)
	}
	return out
}

func describeConditions(conds []Condition) string {
	var parts []string
	for _, cond := range conds {
		parts = append(parts, describeCondition(cond))
	}
	return strings.Join(parts, " AND ")
}

func describeCondition(cond Condition) string {
	switch v := cond.(type) {
	case *Comparison:
		return describeExpr(v.Left) + " " + v.Op + " " + describeExpr(v.Right)
	case *NullCondition:
		if v.Not {
			return describeExpr(v.Expr) + " IS NOT NULL"
		}
		return describeExpr(v.Expr) + " IS NULL"
	case *LikeCondition:
		return describeExpr(v.Left) + " LIKE " + describeExpr(v.Pattern)
	case *InCondition:
		return describeExpr(v.Expr) + " IN (...)"
	case *LogicalCondition:
		var parts []string
		for _, child := range v.Conditions {
			parts = append(parts, describeCondition(child))
		}
		return "(" + strings.Join(parts, " "+strings.ToUpper(string(v.Op))+" ") + ")"
	case *ExistsCondition:
		if v.Not {
			return "NOT EXISTS (...)"
		}
		return "EXISTS (...)"
	case *InSubqueryCondition:
		return describeExpr(v.Expr) + " IN (SELECT ...)"
	case *ExprCondition:
		return describeExpr(v.Expr)
	}
	return "?"
}

func describeExpr(expr Expression) string {
	switch v := expr.(type) {
	case *ColumnRef:
		return v.QualifiedName()
	case *Literal:
		if v.Value.Kind == types.KindString {
			return "'" + v.Value.Str + "'"
		}
		return v.Value.String()
	case *VariableRef:
		return "@" + v.Name
	case *AggregateExpr:
		return aggregateOutputName(v)
	case *BinaryExpr:
		return describeExpr(v.Left) + " " + v.Op + " " + describeExpr(v.Right)
	}
	return "?"
}
