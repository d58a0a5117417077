package sql

import (
	qerrors "github.com/veldt-labs/sqlbridge/errors"
	"github.com/veldt-labs/sqlbridge/types"
)

// EvalRow is the evaluation scope for one row: the row itself plus the
// script variable environment.
type EvalRow struct {
	Row  *types.QueryRow
	Vars map[string]types.QueryValue
}

// Resolve looks up a column, trying the qualified form first so joined
// columns (alias.attr) win over same-named base attributes.
func (er *EvalRow) Resolve(ref *ColumnRef) types.QueryValue {
	if er.Row == nil {
		return types.NullValue()
	}
	if ref.Table != "" {
		if qualified := ref.Table + "." + ref.Name; er.Row.Has(qualified) {
			return er.Row.Get(qualified)
		}
	}
	if ref.Alias != "" && er.Row.Has(ref.Alias) {
		return er.Row.Get(ref.Alias)
	}
	return er.Row.Get(ref.Name)
}

// ScalarFn evaluates an expression against one row
type ScalarFn func(*EvalRow) (types.QueryValue, error)

// PredicateFn evaluates a condition against one row
type PredicateFn func(*EvalRow) (bool, error)

// Evaluator compiles AST expressions and predicates into callable
// row-evaluators. Compilation is pure; the compiled functions do no I/O.
type Evaluator struct{}

// NewEvaluator creates an expression evaluator
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// CompileScalar turns an expression into a row-evaluator
func (e *Evaluator) CompileScalar(expr Expression) (ScalarFn, error) {
	switch v := expr.(type) {
	case *Literal:
		value := v.Value
		return func(*EvalRow) (types.QueryValue, error) { return value, nil }, nil

	case *ColumnRef:
		ref := v
		return func(er *EvalRow) (types.QueryValue, error) { return er.Resolve(ref), nil }, nil

	case *VariableRef:
		name := v.Name
		return func(er *EvalRow) (types.QueryValue, error) {
			if er.Vars != nil {
				if val, ok := er.Vars[name]; ok {
					return val, nil
				}
			}
			return types.NullValue(), nil
		}, nil

	case *AggregateExpr:
		// Aggregation happens server-side; the compiled reader picks the
		// aggregated cell out of the grouped row by its output name.
		name := aggregateOutputName(v)
		return func(er *EvalRow) (types.QueryValue, error) {
			return er.Row.Get(name), nil
		}, nil

	case *BinaryExpr:
		return e.compileBinary(v)

	case *SubqueryExpr:
		return nil, qerrors.Newf(qerrors.CodeParse,
			"scalar subquery at line %d must be resolved before evaluation", v.Pos.Line)
	}
	return nil, qerrors.New(qerrors.CodeParse, "unsupported expression")
}

// aggregateOutputName is the column name an aggregate materializes under
func aggregateOutputName(agg *AggregateExpr) string {
	if agg.Alias != "" {
		return agg.Alias
	}
	if agg.Column == nil {
		return agg.Func
	}
	return agg.Func + "_" + agg.Column.Name
}

func (e *Evaluator) compileBinary(bin *BinaryExpr) (ScalarFn, error) {
	left, err := e.CompileScalar(bin.Left)
	if err != nil {
		return nil, err
	}
	right, err := e.CompileScalar(bin.Right)
	if err != nil {
		return nil, err
	}
	op := bin.Op
	pos := bin.Pos

	return func(er *EvalRow) (types.QueryValue, error) {
		lv, err := left(er)
		if err != nil {
			return types.NullValue(), err
		}
		rv, err := right(er)
		if err != nil {
			return types.NullValue(), err
		}
		if lv.IsNull() || rv.IsNull() {
			return types.NullValue(), nil
		}

		if op == "||" {
			return types.StringValue(lv.String() + rv.String()), nil
		}

		ln, err := lv.AsNumber()
		if err != nil {
			return types.NullValue(), qerrors.Wrap(err, qerrors.CodeTypeMismatch, "expression")
		}
		rn, err := rv.AsNumber()
		if err != nil {
			return types.NullValue(), qerrors.Wrap(err, qerrors.CodeTypeMismatch, "expression")
		}

		switch op {
		case "+":
			return types.NumberValue(ln + rn), nil
		case "-":
			return types.NumberValue(ln - rn), nil
		case "*":
			return types.NumberValue(ln * rn), nil
		case "/":
			if rn == 0 {
				return types.NullValue(), qerrors.New(qerrors.CodeTypeMismatch, "division by zero")
			}
			return types.NumberValue(ln / rn), nil
		}
		return types.NullValue(), qerrors.Newf(qerrors.CodeParse,
			"unsupported operator %q at line %d", op, pos.Line)
	}, nil
}

// CompilePredicate turns a condition into a row-predicate
func (e *Evaluator) CompilePredicate(cond Condition) (PredicateFn, error) {
	switch v := cond.(type) {
	case *Comparison:
		return e.compileComparison(v)

	case *LikeCondition:
		left, err := e.CompileScalar(v.Left)
		if err != nil {
			return nil, err
		}
		pattern, err := e.CompileScalar(v.Pattern)
		if err != nil {
			return nil, err
		}
		not := v.Not
		return func(er *EvalRow) (bool, error) {
			lv, err := left(er)
			if err != nil {
				return false, err
			}
			pv, err := pattern(er)
			if err != nil {
				return false, err
			}
			if lv.IsNull() || pv.IsNull() {
				return false, nil
			}
			matched := types.MatchLike(lv.String(), pv.String())
			return matched != not, nil
		}, nil

	case *NullCondition:
		inner, err := e.CompileScalar(v.Expr)
		if err != nil {
			return nil, err
		}
		not := v.Not
		return func(er *EvalRow) (bool, error) {
			val, err := inner(er)
			if err != nil {
				return false, err
			}
			return val.IsNull() != not, nil
		}, nil

	case *InCondition:
		return e.compileIn(v)

	case *LogicalCondition:
		return e.compileLogical(v)

	case *ExprCondition:
		inner, err := e.CompileScalar(v.Expr)
		if err != nil {
			return nil, err
		}
		return func(er *EvalRow) (bool, error) {
			val, err := inner(er)
			if err != nil {
				return false, err
			}
			if val.IsNull() {
				return false, nil
			}
			b, err := val.AsBool()
			if err != nil {
				return false, qerrors.Wrap(err, qerrors.CodeTypeMismatch, "predicate")
			}
			return b, nil
		}, nil

	case *ExistsCondition, *InSubqueryCondition:
		return nil, qerrors.New(qerrors.CodeParse,
			"subquery conditions must be planned as joins before evaluation")
	}
	return nil, qerrors.New(qerrors.CodeParse, "unsupported condition")
}

func (e *Evaluator) compileComparison(cmp *Comparison) (PredicateFn, error) {
	left, err := e.CompileScalar(cmp.Left)
	if err != nil {
		return nil, err
	}
	right, err := e.CompileScalar(cmp.Right)
	if err != nil {
		return nil, err
	}
	op := cmp.Op

	return func(er *EvalRow) (bool, error) {
		lv, err := left(er)
		if err != nil {
			return false, err
		}
		rv, err := right(er)
		if err != nil {
			return false, err
		}
		// SQL three-valued logic collapses to false for null operands
		if lv.IsNull() || rv.IsNull() {
			return false, nil
		}
		c, err := lv.Compare(rv)
		if err != nil {
			return false, qerrors.Wrap(err, qerrors.CodeTypeMismatch, "comparison")
		}
		switch op {
		case "=":
			return c == 0, nil
		case "<>":
			return c != 0, nil
		case "<":
			return c < 0, nil
		case "<=":
			return c <= 0, nil
		case ">":
			return c > 0, nil
		case ">=":
			return c >= 0, nil
		}
		return false, qerrors.Newf(qerrors.CodeParse, "unsupported comparison %q", op)
	}, nil
}

func (e *Evaluator) compileIn(in *InCondition) (PredicateFn, error) {
	inner, err := e.CompileScalar(in.Expr)
	if err != nil {
		return nil, err
	}
	values := make([]ScalarFn, 0, len(in.Values))
	for _, v := range in.Values {
		fn, err := e.CompileScalar(v)
		if err != nil {
			return nil, err
		}
		values = append(values, fn)
	}
	not := in.Not

	return func(er *EvalRow) (bool, error) {
		val, err := inner(er)
		if err != nil {
			return false, err
		}
		if val.IsNull() {
			return false, nil
		}
		for _, fn := range values {
			candidate, err := fn(er)
			if err != nil {
				return false, err
			}
			if candidate.IsNull() {
				continue
			}
			c, err := val.Compare(candidate)
			if err != nil {
				return false, qerrors.Wrap(err, qerrors.CodeTypeMismatch, "in")
			}
			if c == 0 {
				return !not, nil
			}
		}
		return not, nil
	}, nil
}

func (e *Evaluator) compileLogical(lc *LogicalCondition) (PredicateFn, error) {
	children := make([]PredicateFn, 0, len(lc.Conditions))
	for _, cond := range lc.Conditions {
		fn, err := e.CompilePredicate(cond)
		if err != nil {
			return nil, err
		}
		children = append(children, fn)
	}
	isAnd := lc.Op == LogicalAnd

	return func(er *EvalRow) (bool, error) {
		for _, fn := range children {
			ok, err := fn(er)
			if err != nil {
				return false, err
			}
			if isAnd && !ok {
				return false, nil
			}
			if !isAnd && ok {
				return true, nil
			}
		}
		return isAnd, nil
	}, nil
}

// CompileConjunction compiles a set of conditions into one AND predicate
func (e *Evaluator) CompileConjunction(conds []Condition) (PredicateFn, error) {
	if len(conds) == 1 {
		return e.CompilePredicate(conds[0])
	}
	return e.compileLogical(&LogicalCondition{Op: LogicalAnd, Conditions: conds})
}
