package sql

import (
	"math"

	"github.com/veldt-labs/sqlbridge/config"
	qerrors "github.com/veldt-labs/sqlbridge/errors"
)

// SafetyCheckResult is the outcome of vetting a DML statement before it is
// planned.
type SafetyCheckResult struct {
	// Blocked statements must not run under any flag combination
	Blocked bool
	Reason  string
	// RequiresConfirmation marks statements that run only with an explicit
	// confirmation from the caller
	RequiresConfirmation bool
	DryRun               bool
	// RowCap is the resolved affected-row cap the plan must honor
	RowCap int64
}

// CheckDmlSafety vets a mutation statement. An UPDATE or DELETE without a
// WHERE clause is always blocked, regardless of confirmation: a full-table
// mutation is assumed to be a mistake. Filtered mutations run only when the
// caller confirmed them, and are bounded by the configured affected-row cap
// unless the caller lifted it.
func CheckDmlSafety(stmt Statement, opts PlanOptions, cfg config.EngineConfig) SafetyCheckResult {
	result := SafetyCheckResult{
		DryRun: opts.DryRun,
		RowCap: resolveRowCap(opts, cfg),
	}

	switch s := stmt.(type) {
	case *InsertStatement:
		return result
	case *UpdateStatement:
		if s.Where == nil {
			result.Blocked = true
			result.Reason = "UPDATE without a WHERE clause would modify every row of " + s.Table.Name +
				"; update rows in filtered batches instead"
			return result
		}
	case *DeleteStatement:
		if s.Where == nil {
			result.Blocked = true
			result.Reason = "DELETE without a WHERE clause would remove every row of " + s.Table.Name +
				"; use a dedicated bulk-delete operation on " + s.Table.Name + " to remove all rows"
			return result
		}
	default:
		// Reads and scripts carry no mutation risk of their own.
		return result
	}

	if !opts.Confirmed && !opts.DryRun {
		result.RequiresConfirmation = true
	}
	return result
}

// Err renders a failed check as the structured error the engine surfaces
func (r SafetyCheckResult) Err() error {
	if r.Blocked {
		return qerrors.New(qerrors.CodeDmlBlocked, r.Reason)
	}
	if r.RequiresConfirmation {
		return qerrors.New(qerrors.CodeDmlBlocked,
			"mutation requires confirmation; re-run with the confirmed flag or as a dry run")
	}
	return nil
}

func resolveRowCap(opts PlanOptions, cfg config.EngineConfig) int64 {
	if opts.NoLimit {
		return math.MaxInt64
	}
	if opts.RowCap > 0 {
		return opts.RowCap
	}
	return cfg.DefaultDmlRowCap
}
