package sql

import (
	"context"
	"errors"
	"io"

	"github.com/veldt-labs/sqlbridge/config"
	qerrors "github.com/veldt-labs/sqlbridge/errors"
	"github.com/veldt-labs/sqlbridge/logger"
	"github.com/veldt-labs/sqlbridge/remote"
	"github.com/veldt-labs/sqlbridge/sql/operators"
	"github.com/veldt-labs/sqlbridge/types"
)

// Engine is the top-level entry point: it parses SQL text, plans it against
// the remote store's native query language and drives the resulting plan
// tree to completion.
type Engine struct {
	cfg      config.EngineConfig
	executor remote.QueryExecutor
	mutator  remote.MutationExecutor
	metadata remote.MetadataProvider
	parser   *Parser
	planner  *Planner
}

// NewEngine wires an engine to a remote store. mutator may be nil when the
// store is read-only; DML statements then fail at execution. metadata may be
// nil; unknown columns degrade to plain string attributes.
func NewEngine(cfg config.EngineConfig, executor remote.QueryExecutor, mutator remote.MutationExecutor, metadata remote.MetadataProvider) *Engine {
	return &Engine{
		cfg:      cfg,
		executor: executor,
		mutator:  mutator,
		metadata: metadata,
		parser:   NewParser(),
		planner:  NewPlanner(cfg, metadata),
	}
}

// ExecuteOptions tunes one Execute or Explain call
type ExecuteOptions struct {
	// MaxRows caps the result and overrides any TOP in the statement
	MaxRows int64
	// PageSize overrides the configured remote page size when > 0
	PageSize int
	// PoolCapacity overrides the configured parallelism hint when > 0
	PoolCapacity int
	// Vars is the variable environment, usually owned by a running script
	Vars     map[string]types.QueryValue
	Progress remote.ProgressReporter

	// DML flags
	Confirmed bool
	DryRun    bool
	NoLimit   bool
	RowCap    int64
}

// Execute parses and runs a single SQL statement
func (e *Engine) Execute(ctx context.Context, sqlText string, opts ExecuteOptions) (*types.QueryResult, error) {
	stmt, err := e.parser.ParseStatement(sqlText)
	if err != nil {
		return nil, err
	}
	return e.ExecuteStatement(ctx, stmt, opts)
}

// ExecuteStatement runs an already-parsed statement. Script control flow
// (BEGIN, IF, WHILE) is not accepted here; use RunScript.
func (e *Engine) ExecuteStatement(ctx context.Context, stmt Statement, opts ExecuteOptions) (*types.QueryResult, error) {
	switch s := stmt.(type) {
	case *SelectStatement:
		return e.executeSelect(ctx, s, opts)
	case *InsertStatement, *UpdateStatement, *DeleteStatement:
		return e.executeDml(ctx, stmt, opts)
	}
	return nil, &qerrors.ParseError{Errors: []qerrors.SyntaxError{{
		Line:    stmt.Position().Line,
		Column:  stmt.Position().Column,
		Message: "statement cannot be executed directly; control flow requires RunScript",
	}}}
}

// Explain plans a statement and renders its plan tree without executing
// anything: the planner gets no executor, so no remote call can happen, and
// repeated Explain calls return identical output.
func (e *Engine) Explain(ctx context.Context, sqlText string, opts ExecuteOptions) (string, error) {
	stmt, err := e.parser.ParseStatement(sqlText)
	if err != nil {
		return "", err
	}

	planOpts := e.planOptions(ctx, opts)
	planOpts.Executor = nil

	var result *PlanResult
	switch stmt.(type) {
	case *InsertStatement, *UpdateStatement, *DeleteStatement:
		safety := CheckDmlSafety(stmt, planOpts, e.cfg)
		if safety.Blocked {
			return "", safety.Err()
		}
		result, err = e.planner.PlanDml(stmt, planOpts, safety.RowCap)
	default:
		result, err = e.planner.Plan(stmt, planOpts)
	}
	if err != nil {
		return "", err
	}
	return FormatPlan(result.Root, e.poolCapacity(opts)), nil
}

func (e *Engine) executeSelect(ctx context.Context, sel *SelectStatement, opts ExecuteOptions) (*types.QueryResult, error) {
	result, err := e.planner.Plan(sel, e.planOptions(ctx, opts))
	if err != nil {
		return nil, err
	}
	return e.run(ctx, result, opts)
}

func (e *Engine) executeDml(ctx context.Context, stmt Statement, opts ExecuteOptions) (*types.QueryResult, error) {
	if e.mutator == nil && !opts.DryRun {
		return nil, qerrors.New(qerrors.CodeExecutionFailed,
			"the remote store connection is read-only")
	}

	planOpts := e.planOptions(ctx, opts)
	safety := CheckDmlSafety(stmt, planOpts, e.cfg)
	if err := safety.Err(); err != nil {
		logger.Warn("dml refused", "reason", safety.Reason, "code", qerrors.CodeOf(err))
		return nil, err
	}

	result, err := e.planner.PlanDml(stmt, planOpts, safety.RowCap)
	if err != nil {
		return nil, err
	}
	return e.run(ctx, result, opts)
}

// run drives a plan tree to completion and assembles the result envelope
func (e *Engine) run(ctx context.Context, plan *PlanResult, opts ExecuteOptions) (*types.QueryResult, error) {
	stats := operators.NewPlanStatistics()
	pc := &operators.PlanContext{
		Ctx:                 ctx,
		Executor:            e.executor,
		Mutator:             e.mutator,
		Progress:            opts.Progress,
		Stats:               stats,
		PageSize:            e.pageSize(opts),
		PoolCapacity:        e.poolCapacity(opts),
		DistinctMemoryLimit: e.cfg.DistinctMemoryLimit,
		SpillDir:            e.cfg.SpillDir,
	}

	if err := plan.Root.Open(pc); err != nil {
		plan.Root.Close()
		return nil, err
	}

	var rows []*types.QueryRow
	for {
		row, err := plan.Root.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			plan.Root.Close()
			return nil, err
		}
		rows = append(rows, row)
	}
	if err := plan.Root.Close(); err != nil {
		return nil, err
	}
	stats.Finish()

	result := &types.QueryResult{
		Columns:     e.resultColumns(plan, rows),
		Records:     rows,
		RowCount:    int64(len(rows)),
		NativeQuery: plan.FetchXML,
		Elapsed:     stats.Elapsed(),
	}
	for _, col := range result.Columns {
		if col.IsAggregate {
			result.IsAggregate = true
			break
		}
	}
	if scan := findScan(plan.Root); scan != nil {
		result.PagingCookie = scan.PagingCookie()
		result.TotalCount = scan.TotalCount()
	}

	logger.Debug("query executed",
		"entity", plan.EntityName,
		"rows", result.RowCount,
		"pages", stats.PagesFetched.Load(),
		"elapsed", result.Elapsed)
	return result, nil
}

// resultColumns prefers the planner's estimate; a wildcard projection is
// widened to the union of columns actually observed, in first-seen order.
func (e *Engine) resultColumns(plan *PlanResult, rows []*types.QueryRow) []types.QueryColumn {
	wildcard := false
	for _, col := range plan.EstimatedColumns {
		if col.LogicalName == "*" {
			wildcard = true
			break
		}
	}
	if !wildcard && len(plan.EstimatedColumns) > 0 {
		return plan.EstimatedColumns
	}

	var out []types.QueryColumn
	seen := make(map[string]bool)
	for _, row := range rows {
		for _, name := range row.Columns {
			if seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, types.QueryColumn{
				LogicalName: name,
				DataType:    row.Get(name).Kind,
			})
		}
	}
	return out
}

// findScan locates the base scan, skipping over wrapping nodes, so the
// result envelope can expose its paging cookie and server-side total count
func findScan(node operators.PlanNode) *operators.FetchScanNode {
	if scan, ok := node.(*operators.FetchScanNode); ok {
		return scan
	}
	for _, child := range node.Children() {
		if scan := findScan(child); scan != nil {
			return scan
		}
	}
	return nil
}

func (e *Engine) planOptions(ctx context.Context, opts ExecuteOptions) PlanOptions {
	return PlanOptions{
		Ctx:          ctx,
		MaxRows:      opts.MaxRows,
		PageSize:     e.pageSize(opts),
		PoolCapacity: e.poolCapacity(opts),
		Vars:         opts.Vars,
		Executor:     e.executor,
		Confirmed:    opts.Confirmed,
		DryRun:       opts.DryRun,
		NoLimit:      opts.NoLimit,
		RowCap:       opts.RowCap,
	}
}

func (e *Engine) pageSize(opts ExecuteOptions) int {
	if opts.PageSize > 0 {
		return opts.PageSize
	}
	return e.cfg.PageSize
}

func (e *Engine) poolCapacity(opts ExecuteOptions) int {
	if opts.PoolCapacity > 0 {
		return opts.PoolCapacity
	}
	return e.cfg.PoolCapacity
}
