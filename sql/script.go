package sql

import (
	"context"

	qerrors "github.com/veldt-labs/sqlbridge/errors"
	"github.com/veldt-labs/sqlbridge/logger"
	"github.com/veldt-labs/sqlbridge/types"
)

// RunScript parses and executes a multi-statement script: an ordered
// sequence of statements with IF/WHILE control flow sharing one variable
// environment. Variables are supplied by the caller through the options and
// are read-only for the duration of the run; there is no assignment
// statement, so a WHILE condition over variables never changes truth value
// and relies on the iteration guard to terminate. Each executed statement
// contributes its result in execution order; DML statements pass through
// the safety guard individually.
func (e *Engine) RunScript(ctx context.Context, sqlText string, opts ExecuteOptions) ([]*types.QueryResult, error) {
	block, err := e.parser.Parse(sqlText)
	if err != nil {
		return nil, err
	}

	run := &scriptRun{
		engine: e,
		opts:   opts,
		vars:   make(map[string]types.QueryValue, len(opts.Vars)),
	}
	for name, value := range opts.Vars {
		run.vars[name] = value
	}

	if err := run.block(ctx, block); err != nil {
		return run.results, err
	}
	return run.results, nil
}

// scriptRun is the state of one script execution: the shared variable
// environment and the accumulated statement results.
type scriptRun struct {
	engine  *Engine
	opts    ExecuteOptions
	vars    map[string]types.QueryValue
	results []*types.QueryResult
}

func (r *scriptRun) block(ctx context.Context, block *BlockStatement) error {
	for _, stmt := range block.Statements {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.statement(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *scriptRun) statement(ctx context.Context, stmt Statement) error {
	switch s := stmt.(type) {
	case *BlockStatement:
		return r.block(ctx, s)
	case *IfStatement:
		return r.ifStatement(ctx, s)
	case *WhileStatement:
		return r.whileStatement(ctx, s)
	default:
		stmtOpts := r.opts
		stmtOpts.Vars = r.vars
		result, err := r.engine.ExecuteStatement(ctx, stmt, stmtOpts)
		if err != nil {
			return err
		}
		r.results = append(r.results, result)
		return nil
	}
}

func (r *scriptRun) ifStatement(ctx context.Context, stmt *IfStatement) error {
	hold, err := r.condition(stmt.Cond)
	if err != nil {
		return err
	}
	if hold {
		return r.block(ctx, stmt.Then)
	}
	if stmt.Else != nil {
		return r.block(ctx, stmt.Else)
	}
	return nil
}

// whileStatement re-evaluates the condition before every iteration, bounded
// by the configured iteration guard so a condition that never turns false
// cannot spin forever.
func (r *scriptRun) whileStatement(ctx context.Context, stmt *WhileStatement) error {
	limit := r.engine.cfg.MaxWhileIterations
	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if limit > 0 && i >= limit {
			logger.Warn("while loop stopped by iteration guard", "limit", limit)
			return qerrors.Newf(qerrors.CodeExecutionFailed,
				"WHILE exceeded the %d iteration limit", limit)
		}
		hold, err := r.condition(stmt.Cond)
		if err != nil {
			return err
		}
		if !hold {
			return nil
		}
		if err := r.block(ctx, stmt.Body); err != nil {
			return err
		}
	}
}

// condition evaluates a control-flow condition against the variable
// environment alone; there is no current row.
func (r *scriptRun) condition(cond Condition) (bool, error) {
	fn, err := r.engine.planner.eval.CompilePredicate(cond)
	if err != nil {
		return false, err
	}
	return fn(&EvalRow{Vars: r.vars})
}
