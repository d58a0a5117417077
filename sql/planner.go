package sql

import (
	"context"
	"time"

	"github.com/veldt-labs/sqlbridge/config"
	qerrors "github.com/veldt-labs/sqlbridge/errors"
	"github.com/veldt-labs/sqlbridge/remote"
	"github.com/veldt-labs/sqlbridge/sql/operators"
	"github.com/veldt-labs/sqlbridge/types"
)

// PlanOptions controls one planning invocation
type PlanOptions struct {
	// Ctx bounds eager subquery evaluation; nil falls back to Background
	Ctx context.Context

	// MaxRows overrides any TOP/LIMIT in the statement when > 0
	MaxRows int64
	// PageSize passed through to the query executor
	PageSize int
	// PoolCapacity is the externally-supplied parallelism hint
	PoolCapacity int
	// Vars is the script variable environment
	Vars map[string]types.QueryValue

	// Executor enables eager subquery evaluation during planning. It is nil
	// in explain mode, which must never touch the remote store.
	Executor remote.QueryExecutor

	// DML options
	Confirmed bool
	DryRun    bool
	NoLimit   bool
	// RowCap is a custom affected-row cap; 0 applies the configured default
	RowCap int64
}

// PlanResult is the output of planning one statement
type PlanResult struct {
	Root             operators.PlanNode
	EntityName       string
	FetchXML         string
	VirtualColumns   []string
	EstimatedColumns []types.QueryColumn
}

// Planner lowers validated AST statements into plan trees, deciding per
// predicate whether it can be pushed into the native query or must be
// evaluated client-side.
type Planner struct {
	cfg      config.EngineConfig
	metadata remote.MetadataProvider
	eval     *Evaluator
}

// NewPlanner creates a planner. metadata may be nil; planning then treats
// unknown columns as plain string-typed attributes.
func NewPlanner(cfg config.EngineConfig, metadata remote.MetadataProvider) *Planner {
	return &Planner{
		cfg:      cfg,
		metadata: metadata,
		eval:     NewEvaluator(),
	}
}

// Plan lowers a SELECT statement. Any other statement reaching this path is
// a structured parse-class failure.
func (p *Planner) Plan(stmt Statement, opts PlanOptions) (*PlanResult, error) {
	sel, ok := stmt.(*SelectStatement)
	if !ok {
		return nil, &qerrors.ParseError{Errors: []qerrors.SyntaxError{{
			Line:    stmt.Position().Line,
			Column:  stmt.Position().Column,
			Message: "only SELECT statements can be planned as queries",
		}}}
	}
	pl := &planning{
		planner:  p,
		opts:     opts,
		deadline: time.Now().Add(p.cfg.PlanTimeout),
	}
	return pl.planSelect(sel)
}

// PlanDml lowers an INSERT, UPDATE or DELETE statement. rowCap is the
// affected-row cap the safety guard resolved for this statement.
func (p *Planner) PlanDml(stmt Statement, opts PlanOptions, rowCap int64) (*PlanResult, error) {
	pl := &planning{
		planner:  p,
		opts:     opts,
		deadline: time.Now().Add(p.cfg.PlanTimeout),
	}
	switch s := stmt.(type) {
	case *InsertStatement:
		return pl.planInsert(s)
	case *UpdateStatement:
		return pl.planUpdate(s, rowCap)
	case *DeleteStatement:
		return pl.planDelete(s, rowCap)
	}
	return nil, &qerrors.ParseError{Errors: []qerrors.SyntaxError{{
		Line:    stmt.Position().Line,
		Column:  stmt.Position().Column,
		Message: "statement is not a DML statement",
	}}}
}

// planning is the scratch state of one planning invocation
type planning struct {
	planner  *Planner
	opts     PlanOptions
	deadline time.Time
}

// checkDeadline enforces the planning time budget. A zero deadline, used
// when plans are rebuilt during execution, disables the budget.
func (pl *planning) checkDeadline() error {
	if pl.deadline.IsZero() {
		return nil
	}
	if time.Now().After(pl.deadline) {
		return qerrors.Newf(qerrors.CodePlanTimeout,
			"planning exceeded the %s time budget", pl.planner.cfg.PlanTimeout)
	}
	return nil
}
