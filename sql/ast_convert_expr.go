package sql

import (
	"strconv"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
	"github.com/veldt-labs/sqlbridge/types"
)

// comparisonOps is the closed set of SQL comparison operators
var comparisonOps = map[string]bool{
	"=": true, "<>": true, "!=": true,
	"<": true, "<=": true, ">": true, ">=": true,
}

var aggregateFuncs = map[string]bool{
	"count": true, "sum": true, "avg": true, "min": true, "max": true,
}

func (c *astConverter) convertExpression(node *pg_query.Node) (Expression, error) {
	if node == nil {
		return nil, c.errorf(c.base, "missing expression")
	}

	switch {
	case node.GetColumnRef() != nil:
		return c.convertColumnRef(node.GetColumnRef())
	case node.GetAConst() != nil:
		return c.convertConst(node.GetAConst())
	case node.GetTypeCast() != nil:
		return c.convertTypeCast(node.GetTypeCast())
	case node.GetFuncCall() != nil:
		return c.convertFuncCall(node.GetFuncCall())
	case node.GetAExpr() != nil:
		return c.convertArithmetic(node.GetAExpr())
	case node.GetSubLink() != nil:
		sub := node.GetSubLink()
		if sub.GetSubLinkType() != pg_query.SubLinkType_EXPR_SUBLINK {
			return nil, c.errorf(c.base, "subquery is not valid as a scalar expression here")
		}
		inner, err := c.convertSelect(sub.GetSubselect().GetSelectStmt())
		if err != nil {
			return nil, err
		}
		return &SubqueryExpr{Pos: c.base, Select: inner}, nil
	}
	return nil, c.errorf(c.base, "unsupported expression")
}

func (c *astConverter) convertColumnRef(ref *pg_query.ColumnRef) (Expression, error) {
	pos := c.posAt(ref.GetLocation())
	fields := ref.GetFields()

	var parts []string
	wildcard := false
	for _, f := range fields {
		if f.GetAStar() != nil {
			wildcard = true
			continue
		}
		if s := f.GetString_(); s != nil {
			parts = append(parts, s.GetSval())
		}
	}

	col := &ColumnRef{Pos: pos, Wildcard: wildcard}
	switch len(parts) {
	case 0:
	case 1:
		col.Name = parts[0]
	case 2:
		col.Table = parts[0]
		col.Name = parts[1]
	default:
		return nil, c.errorf(pos, "column reference %q has too many qualifiers", strings.Join(parts, "."))
	}

	if after, ok := strings.CutPrefix(col.Name, variablePrefix); ok && col.Table == "" {
		return &VariableRef{Pos: pos, Name: after}, nil
	}
	return col, nil
}

func (c *astConverter) convertConst(a *pg_query.A_Const) (Expression, error) {
	pos := c.posAt(a.GetLocation())
	lit := &Literal{Pos: pos}
	switch {
	case a.GetIsnull():
		lit.Value = types.NullValue()
	case a.GetIval() != nil:
		lit.Value = types.NumberValue(float64(a.GetIval().GetIval()))
	case a.GetFval() != nil:
		f, err := parseFloat(a.GetFval().GetFval())
		if err != nil {
			return nil, c.errorf(pos, "invalid numeric literal %q", a.GetFval().GetFval())
		}
		lit.Value = types.NumberValue(f)
	case a.GetBoolval() != nil:
		lit.Value = types.BoolValue(a.GetBoolval().GetBoolval())
	case a.GetSval() != nil:
		lit.Value = types.StringValue(a.GetSval().GetSval())
	default:
		lit.Value = types.NullValue()
	}
	return lit, nil
}

// convertTypeCast handles typed literals such as DATE '2024-01-01'
func (c *astConverter) convertTypeCast(cast *pg_query.TypeCast) (Expression, error) {
	arg, err := c.convertExpression(cast.GetArg())
	if err != nil {
		return nil, err
	}
	lit, ok := arg.(*Literal)
	if !ok {
		return arg, nil
	}

	names := cast.GetTypeName().GetNames()
	if len(names) == 0 {
		return lit, nil
	}
	typeName := names[len(names)-1].GetString_().GetSval()

	switch typeName {
	case "date", "timestamp", "timestamptz":
		t, err := lit.Value.AsTime()
		if err != nil {
			return nil, c.errorf(lit.Pos, "invalid %s literal %q", typeName, lit.Value.String())
		}
		return &Literal{Pos: lit.Pos, Value: types.TimeValue(t)}, nil
	case "bool":
		if lit.Value.Kind == types.KindString {
			b := strings.HasPrefix(strings.ToLower(lit.Value.Str), "t")
			return &Literal{Pos: lit.Pos, Value: types.BoolValue(b)}, nil
		}
	case "uuid":
		g, err := lit.Value.AsGuid()
		if err != nil {
			return nil, c.errorf(lit.Pos, "invalid uuid literal %q", lit.Value.String())
		}
		return &Literal{Pos: lit.Pos, Value: types.GuidValue(g)}, nil
	}
	return lit, nil
}

func (c *astConverter) convertFuncCall(fc *pg_query.FuncCall) (Expression, error) {
	pos := c.posAt(fc.GetLocation())
	names := fc.GetFuncname()
	if len(names) == 0 {
		return nil, c.errorf(pos, "unsupported function call")
	}
	name := strings.ToLower(names[len(names)-1].GetString_().GetSval())

	if !aggregateFuncs[name] {
		return nil, c.errorf(pos, "unsupported function %q", name)
	}

	agg := &AggregateExpr{Pos: pos, Func: name, Distinct: fc.GetAggDistinct()}
	if fc.GetAggStar() {
		if name != "count" {
			return nil, c.errorf(pos, "%s(*) is not valid", name)
		}
		return agg, nil
	}
	if len(fc.GetArgs()) != 1 {
		return nil, c.errorf(pos, "%s takes exactly one argument", name)
	}
	arg, err := c.convertExpression(fc.GetArgs()[0])
	if err != nil {
		return nil, err
	}
	ref, ok := arg.(*ColumnRef)
	if !ok {
		return nil, c.errorf(pos, "%s requires a column argument", name)
	}
	agg.Column = ref
	return agg, nil
}

// convertArithmetic maps an A_Expr used in expression position
func (c *astConverter) convertArithmetic(ae *pg_query.A_Expr) (Expression, error) {
	pos := c.posAt(ae.GetLocation())
	op := aExprName(ae)
	if op == "" {
		return nil, c.errorf(pos, "unsupported operator")
	}

	left, err := c.convertExpression(ae.GetLexpr())
	if err != nil {
		return nil, err
	}
	right, err := c.convertExpression(ae.GetRexpr())
	if err != nil {
		return nil, err
	}
	return &BinaryExpr{Pos: pos, Op: op, Left: left, Right: right}, nil
}

func aExprName(ae *pg_query.A_Expr) string {
	names := ae.GetName()
	if len(names) == 0 {
		return ""
	}
	return names[len(names)-1].GetString_().GetSval()
}

func (c *astConverter) convertCondition(node *pg_query.Node) (Condition, error) {
	if node == nil {
		return nil, c.errorf(c.base, "missing condition")
	}

	switch {
	case node.GetBoolExpr() != nil:
		return c.convertBoolExpr(node.GetBoolExpr())
	case node.GetAExpr() != nil:
		return c.convertAExprCondition(node.GetAExpr())
	case node.GetNullTest() != nil:
		return c.convertNullTest(node.GetNullTest())
	case node.GetSubLink() != nil:
		return c.convertSubLink(node.GetSubLink())
	}

	// Fall through to an arbitrary expression used as a predicate
	expr, err := c.convertExpression(node)
	if err != nil {
		return nil, err
	}
	return &ExprCondition{Pos: expr.Position(), Expr: expr}, nil
}

func (c *astConverter) convertBoolExpr(be *pg_query.BoolExpr) (Condition, error) {
	pos := c.posAt(be.GetLocation())

	if be.GetBoolop() == pg_query.BoolExprType_NOT_EXPR {
		if len(be.GetArgs()) != 1 {
			return nil, c.errorf(pos, "malformed NOT")
		}
		inner, err := c.convertCondition(be.GetArgs()[0])
		if err != nil {
			return nil, err
		}
		return c.negateCondition(inner)
	}

	op := LogicalAnd
	if be.GetBoolop() == pg_query.BoolExprType_OR_EXPR {
		op = LogicalOr
	}
	logical := &LogicalCondition{Pos: pos, Op: op}
	for _, arg := range be.GetArgs() {
		cond, err := c.convertCondition(arg)
		if err != nil {
			return nil, err
		}
		logical.Conditions = append(logical.Conditions, cond)
	}
	return logical, nil
}

// negateCondition folds NOT into the condition it wraps
func (c *astConverter) negateCondition(cond Condition) (Condition, error) {
	switch v := cond.(type) {
	case *Comparison:
		inverted := map[string]string{
			"=": "<>", "<>": "=", "!=": "=",
			"<": ">=", ">=": "<", ">": "<=", "<=": ">",
		}
		v.Op = inverted[v.Op]
		return v, nil
	case *LikeCondition:
		v.Not = !v.Not
		return v, nil
	case *NullCondition:
		v.Not = !v.Not
		return v, nil
	case *InCondition:
		v.Not = !v.Not
		return v, nil
	case *ExistsCondition:
		v.Not = !v.Not
		return v, nil
	case *InSubqueryCondition:
		v.Not = !v.Not
		return v, nil
	case *LogicalCondition:
		flipped := LogicalAnd
		if v.Op == LogicalAnd {
			flipped = LogicalOr
		}
		out := &LogicalCondition{Pos: v.Pos, Op: flipped}
		for _, child := range v.Conditions {
			neg, err := c.negateCondition(child)
			if err != nil {
				return nil, err
			}
			out.Conditions = append(out.Conditions, neg)
		}
		return out, nil
	}
	return nil, c.errorf(cond.Position(), "unsupported NOT condition")
}

func (c *astConverter) convertAExprCondition(ae *pg_query.A_Expr) (Condition, error) {
	pos := c.posAt(ae.GetLocation())
	op := aExprName(ae)

	switch ae.GetKind() {
	case pg_query.A_Expr_Kind_AEXPR_OP:
		if !comparisonOps[op] {
			expr, err := c.convertArithmetic(ae)
			if err != nil {
				return nil, err
			}
			return &ExprCondition{Pos: pos, Expr: expr}, nil
		}
		left, err := c.convertExpression(ae.GetLexpr())
		if err != nil {
			return nil, err
		}
		right, err := c.convertExpression(ae.GetRexpr())
		if err != nil {
			return nil, err
		}
		if op == "!=" {
			op = "<>"
		}
		return &Comparison{Pos: pos, Op: op, Left: left, Right: right}, nil

	case pg_query.A_Expr_Kind_AEXPR_LIKE, pg_query.A_Expr_Kind_AEXPR_ILIKE:
		left, err := c.convertExpression(ae.GetLexpr())
		if err != nil {
			return nil, err
		}
		pattern, err := c.convertExpression(ae.GetRexpr())
		if err != nil {
			return nil, err
		}
		return &LikeCondition{
			Pos:     pos,
			Left:    left,
			Pattern: pattern,
			Not:     strings.HasPrefix(op, "!"),
		}, nil

	case pg_query.A_Expr_Kind_AEXPR_IN:
		expr, err := c.convertExpression(ae.GetLexpr())
		if err != nil {
			return nil, err
		}
		in := &InCondition{Pos: pos, Expr: expr, Not: op == "<>"}
		for _, item := range ae.GetRexpr().GetList().GetItems() {
			value, err := c.convertExpression(item)
			if err != nil {
				return nil, err
			}
			in.Values = append(in.Values, value)
		}
		return in, nil
	}
	return nil, c.errorf(pos, "unsupported condition operator %q", op)
}

func (c *astConverter) convertNullTest(nt *pg_query.NullTest) (Condition, error) {
	pos := c.posAt(nt.GetLocation())
	expr, err := c.convertExpression(nt.GetArg())
	if err != nil {
		return nil, err
	}
	return &NullCondition{
		Pos:  pos,
		Expr: expr,
		Not:  nt.GetNulltesttype() == pg_query.NullTestType_IS_NOT_NULL,
	}, nil
}

func (c *astConverter) convertSubLink(sub *pg_query.SubLink) (Condition, error) {
	pos := c.posAt(sub.GetLocation())
	inner, err := c.convertSelect(sub.GetSubselect().GetSelectStmt())
	if err != nil {
		return nil, err
	}

	switch sub.GetSubLinkType() {
	case pg_query.SubLinkType_EXISTS_SUBLINK:
		return &ExistsCondition{Pos: pos, Select: inner}, nil
	case pg_query.SubLinkType_ANY_SUBLINK:
		test, err := c.convertExpression(sub.GetTestexpr())
		if err != nil {
			return nil, err
		}
		return &InSubqueryCondition{Pos: pos, Expr: test, Select: inner}, nil
	}
	return nil, c.errorf(pos, "unsupported subquery form")
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}
