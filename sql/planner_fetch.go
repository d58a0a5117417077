package sql

import (
	"github.com/veldt-labs/sqlbridge/fetchxml"
	"github.com/veldt-labs/sqlbridge/sql/operators"
	"github.com/veldt-labs/sqlbridge/types"
)

// fetchBuilder assembles the native query document for one SELECT: the
// projected attributes, joined link entities, pushed-down filter and sort
// order. Columns referenced only by client-side predicates are requested on
// top of the SELECT list so the filter has values to evaluate.
type fetchBuilder struct {
	pl        *planning
	sel       *SelectStatement
	fetch     *fetchxml.Fetch
	virtual   []operators.VirtualColumn
	requested map[string]bool
	linkIndex map[string]int
	aggregate bool
}

func newFetchBuilder(pl *planning, sel *SelectStatement) *fetchBuilder {
	b := &fetchBuilder{
		pl:        pl,
		sel:       sel,
		fetch:     &fetchxml.Fetch{Distinct: sel.Distinct, Entity: fetchxml.Entity{Name: sel.From.Name}},
		requested: make(map[string]bool),
		linkIndex: make(map[string]int),
	}
	b.addLinks()
	return b
}

func (b *fetchBuilder) addLinks() {
	for _, join := range b.sel.Joins {
		linkType := "inner"
		if join.Type == JoinLeft {
			linkType = "outer"
		}
		// Orient the equality: "from" is the joined entity's attribute,
		// "to" the base entity's.
		from, to := join.LeftCol, join.RightCol
		if b.isBaseRef(from) {
			from, to = to, from
		}
		alias := join.Table.Alias
		if alias == "" {
			alias = join.Table.Name
		}
		b.fetch.Entity.Links = append(b.fetch.Entity.Links, fetchxml.LinkEntity{
			Name:     join.Table.Name,
			From:     from.Name,
			To:       to.Name,
			LinkType: linkType,
			Alias:    alias,
		})
		b.linkIndex[alias] = len(b.fetch.Entity.Links) - 1
		if join.Table.Alias != "" {
			b.linkIndex[join.Table.Name] = len(b.fetch.Entity.Links) - 1
		}
	}
}

func (b *fetchBuilder) addProjection() {
	if len(b.sel.GroupBy) > 0 || hasAggregates(b.sel.Columns) {
		b.addAggregateProjection()
		return
	}
	for _, col := range b.sel.Columns {
		switch v := col.Expr.(type) {
		case *ColumnRef:
			if v.Wildcard {
				b.fetch.Entity.AllAttributes = &struct{}{}
				continue
			}
			if idx, ok := b.resolveLink(v); ok {
				b.addLinkAttribute(idx, v.Name, col.Alias)
				continue
			}
			b.requestAttribute(v.Name, col.Alias)
		case *BinaryExpr:
			for _, ref := range exprColumnRefs(v) {
				if idx, ok := b.resolveLink(ref); ok {
					b.addLinkAttribute(idx, ref.Name, "")
					continue
				}
				b.requestAttribute(ref.Name, "")
			}
		}
	}
	if b.fetch.Entity.AllAttributes == nil && len(b.fetch.Entity.Attributes) == 0 {
		b.fetch.Entity.AllAttributes = &struct{}{}
	}
}

// addAggregateProjection switches the document to aggregate mode: every
// attribute is either a group-by key or an aggregated output. COUNT(*) is
// expressed as a count over the entity's id attribute.
func (b *fetchBuilder) addAggregateProjection() {
	b.aggregate = true
	b.fetch.Aggregate = true
	for _, group := range b.sel.GroupBy {
		b.fetch.Entity.Attributes = append(b.fetch.Entity.Attributes, fetchxml.Attribute{
			Name:    group.Name,
			Alias:   group.Name,
			GroupBy: true,
		})
	}
	for _, col := range b.sel.Columns {
		agg, ok := col.Expr.(*AggregateExpr)
		if !ok {
			continue
		}
		attr := agg.Column
		if attr == nil {
			attr = &ColumnRef{Name: b.sel.From.Name + "id"}
		}
		b.fetch.Entity.Attributes = append(b.fetch.Entity.Attributes, fetchxml.Attribute{
			Name:      attr.Name,
			Alias:     aggregateOutputName(agg),
			Aggregate: agg.Func,
			Distinct:  agg.Distinct,
		})
	}
}

// addConditionColumns force-requests every column a client-evaluated
// predicate reads, so the scan returns them even when the SELECT list does
// not name them. Aggregate documents resolve predicates against output
// aliases instead, so nothing extra is requested there.
func (b *fetchBuilder) addConditionColumns(cond Condition) {
	if cond == nil || b.aggregate || b.fetch.Entity.AllAttributes != nil {
		return
	}
	for _, ref := range conditionColumnRefs(cond) {
		if idx, ok := b.resolveLink(ref); ok {
			b.addLinkAttribute(idx, ref.Name, "")
			continue
		}
		b.requestAttribute(ref.Name, "")
	}
}

func (b *fetchBuilder) addFilter(conds []fetchxml.Condition) {
	if len(conds) == 0 {
		return
	}
	b.fetch.Entity.Filter = &fetchxml.Filter{Type: "and", Conditions: conds}
}

func (b *fetchBuilder) addOrders() {
	for _, item := range b.sel.OrderBy {
		if _, ok := b.resolveLink(item.Column); ok {
			// Ordering by joined columns is not expressible natively;
			// result order falls back to store order for those keys.
			continue
		}
		b.fetch.Entity.Orders = append(b.fetch.Entity.Orders, fetchxml.Order{
			Attribute:  item.Column.Name,
			Descending: item.Desc,
		})
	}
}

func (b *fetchBuilder) requestAttribute(name, alias string) {
	resolved, virt := b.pl.resolveAttribute(b.sel.From.Name, name)
	if virt != nil {
		for _, existing := range b.virtual {
			if existing.Output == virt.Output {
				virt = nil
				break
			}
		}
		if virt != nil {
			b.virtual = append(b.virtual, *virt)
		}
	}
	key := resolved + "\x00" + alias
	if b.requested[key] {
		return
	}
	b.requested[key] = true
	b.fetch.Entity.Attributes = append(b.fetch.Entity.Attributes, fetchxml.Attribute{
		Name:  resolved,
		Alias: alias,
	})
}

func (b *fetchBuilder) addLinkAttribute(idx int, name, alias string) {
	link := &b.fetch.Entity.Links[idx]
	for _, existing := range link.Attributes {
		if existing.Name == name && existing.Alias == alias {
			return
		}
	}
	link.Attributes = append(link.Attributes, fetchxml.Attribute{Name: name, Alias: alias})
}

func (b *fetchBuilder) resolveLink(ref *ColumnRef) (int, bool) {
	if ref == nil || ref.Table == "" || b.isBaseRef(ref) {
		return 0, false
	}
	idx, ok := b.linkIndex[ref.Table]
	return idx, ok
}

func (b *fetchBuilder) isBaseRef(ref *ColumnRef) bool {
	return ref.Table == "" || ref.Table == b.sel.From.Name || ref.Table == b.sel.From.Alias
}

func hasAggregates(columns []SelectColumn) bool {
	for _, col := range columns {
		if _, ok := col.Expr.(*AggregateExpr); ok {
			return true
		}
	}
	return false
}

// exprColumnRefs walks an expression tree collecting every column reference
func exprColumnRefs(expr Expression) []*ColumnRef {
	switch v := expr.(type) {
	case *ColumnRef:
		return []*ColumnRef{v}
	case *BinaryExpr:
		return append(exprColumnRefs(v.Left), exprColumnRefs(v.Right)...)
	case *AggregateExpr:
		if v.Column != nil {
			return []*ColumnRef{v.Column}
		}
	}
	return nil
}

// conditionColumnRefs walks a condition tree collecting every column
// reference, including those inside nested logical groups
func conditionColumnRefs(cond Condition) []*ColumnRef {
	switch v := cond.(type) {
	case *Comparison:
		return append(exprColumnRefs(v.Left), exprColumnRefs(v.Right)...)
	case *NullCondition:
		return exprColumnRefs(v.Expr)
	case *LikeCondition:
		return append(exprColumnRefs(v.Left), exprColumnRefs(v.Pattern)...)
	case *InCondition:
		refs := exprColumnRefs(v.Expr)
		for _, item := range v.Values {
			refs = append(refs, exprColumnRefs(item)...)
		}
		return refs
	case *LogicalCondition:
		var refs []*ColumnRef
		for _, child := range v.Conditions {
			refs = append(refs, conditionColumnRefs(child)...)
		}
		return refs
	case *ExprCondition:
		return exprColumnRefs(v.Expr)
	case *InSubqueryCondition:
		return exprColumnRefs(v.Expr)
	}
	return nil
}

// substituteVariables replaces every variable reference whose value is bound
// in the environment with a literal, recursively. Unbound variables stay in
// place and are resolved (or rejected) at evaluation time. Substitution is
// what makes "col = @var" pushable into the native filter.
func substituteVariables(cond Condition, vars map[string]types.QueryValue) Condition {
	if cond == nil || len(vars) == 0 {
		return cond
	}
	switch v := cond.(type) {
	case *Comparison:
		return &Comparison{
			Pos:   v.Pos,
			Op:    v.Op,
			Left:  substituteExprVariables(v.Left, vars),
			Right: substituteExprVariables(v.Right, vars),
		}
	case *NullCondition:
		return &NullCondition{Pos: v.Pos, Expr: substituteExprVariables(v.Expr, vars), Not: v.Not}
	case *LikeCondition:
		return &LikeCondition{
			Pos:     v.Pos,
			Left:    substituteExprVariables(v.Left, vars),
			Pattern: substituteExprVariables(v.Pattern, vars),
			Not:     v.Not,
		}
	case *InCondition:
		values := make([]Expression, len(v.Values))
		for i, item := range v.Values {
			values[i] = substituteExprVariables(item, vars)
		}
		return &InCondition{Pos: v.Pos, Expr: substituteExprVariables(v.Expr, vars), Values: values, Not: v.Not}
	case *LogicalCondition:
		children := make([]Condition, len(v.Conditions))
		for i, child := range v.Conditions {
			children[i] = substituteVariables(child, vars)
		}
		return &LogicalCondition{Pos: v.Pos, Op: v.Op, Conditions: children}
	case *ExprCondition:
		return &ExprCondition{Pos: v.Pos, Expr: substituteExprVariables(v.Expr, vars)}
	case *InSubqueryCondition:
		return &InSubqueryCondition{Pos: v.Pos, Expr: substituteExprVariables(v.Expr, vars), Select: v.Select, Not: v.Not}
	}
	return cond
}

func substituteExprVariables(expr Expression, vars map[string]types.QueryValue) Expression {
	switch v := expr.(type) {
	case *VariableRef:
		if value, ok := vars[v.Name]; ok {
			return &Literal{Pos: v.Pos, Value: value}
		}
	case *BinaryExpr:
		return &BinaryExpr{
			Pos:   v.Pos,
			Op:    v.Op,
			Left:  substituteExprVariables(v.Left, vars),
			Right: substituteExprVariables(v.Right, vars),
		}
	}
	return expr
}
