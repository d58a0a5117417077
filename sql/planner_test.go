package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veldt-labs/sqlbridge/config"
	qerrors "github.com/veldt-labs/sqlbridge/errors"
	"github.com/veldt-labs/sqlbridge/remote/memexec"
	"github.com/veldt-labs/sqlbridge/sql/operators"
	"github.com/veldt-labs/sqlbridge/types"
)

func planQuery(t *testing.T, sqlText string, opts PlanOptions) *PlanResult {
	t.Helper()
	stmt, err := NewParser().ParseStatement(sqlText)
	require.NoError(t, err)

	planner := NewPlanner(config.DefaultEngineConfig(), nil)
	result, err := planner.Plan(stmt, opts)
	require.NoError(t, err)
	return result
}

func TestPlannerCountShortcut(t *testing.T) {
	t.Run("BareCountUsesOptimizedNode", func(t *testing.T) {
		result := planQuery(t, "SELECT COUNT(*) FROM account", PlanOptions{})

		count, ok := result.Root.(*operators.CountOptimizedNode)
		require.True(t, ok)
		assert.Equal(t, int64(1), count.EstimatedRows())

		children := count.Children()
		require.Len(t, children, 1)
		_, ok = children[0].(*operators.FetchScanNode)
		assert.True(t, ok, "fallback child must be a plain scan")
	})

	t.Run("CountWithWhereStaysGeneral", func(t *testing.T) {
		result := planQuery(t, "SELECT COUNT(*) FROM account WHERE revenue > 0", PlanOptions{})
		_, ok := result.Root.(*operators.CountOptimizedNode)
		assert.False(t, ok)
	})

	t.Run("CountWithGroupByStaysGeneral", func(t *testing.T) {
		result := planQuery(t, "SELECT COUNT(*) FROM account GROUP BY industry", PlanOptions{})
		_, ok := result.Root.(*operators.CountOptimizedNode)
		assert.False(t, ok)
	})
}

func TestPlannerPushdown(t *testing.T) {
	t.Run("LiteralComparisonsStayNative", func(t *testing.T) {
		result := planQuery(t,
			"SELECT name FROM account WHERE revenue > 100000 AND name LIKE 'Con%' AND industry IN ('tech', 'retail') AND notes IS NULL",
			PlanOptions{})

		_, ok := result.Root.(*operators.FetchScanNode)
		require.True(t, ok, "fully pushable WHERE must not grow a client filter")
		assert.Contains(t, result.FetchXML, `operator="gt"`)
		assert.Contains(t, result.FetchXML, `operator="like"`)
		assert.Contains(t, result.FetchXML, `operator="in"`)
		assert.Contains(t, result.FetchXML, `operator="null"`)
	})

	t.Run("ColumnToColumnFallsBack", func(t *testing.T) {
		result := planQuery(t,
			"SELECT name FROM account WHERE revenue > budget", PlanOptions{})

		filter, ok := result.Root.(*operators.ClientFilterNode)
		require.True(t, ok)
		_, ok = filter.Input.(*operators.FetchScanNode)
		require.True(t, ok)

		// Both comparison columns must be requested from the scan.
		assert.Contains(t, result.FetchXML, `name="revenue"`)
		assert.Contains(t, result.FetchXML, `name="budget"`)
	})

	t.Run("MixedConjunctsSplit", func(t *testing.T) {
		result := planQuery(t,
			"SELECT name FROM account WHERE revenue > 100000 AND revenue > budget", PlanOptions{})

		filter, ok := result.Root.(*operators.ClientFilterNode)
		require.True(t, ok, "non-pushable conjunct needs a client filter")
		_, ok = filter.Input.(*operators.FetchScanNode)
		require.True(t, ok)
		// The pushable half still lands in the native filter.
		assert.Contains(t, result.FetchXML, `operator="gt"`)
		assert.Contains(t, result.FetchXML, `value="100000"`)
	})

	t.Run("OrTreeStaysWhole", func(t *testing.T) {
		result := planQuery(t,
			"SELECT name FROM account WHERE revenue > 100000 OR name = 'Contoso'", PlanOptions{})

		// OR is not decomposed; whole predicate evaluates client-side.
		_, ok := result.Root.(*operators.ClientFilterNode)
		assert.True(t, ok)
	})

	t.Run("FlippedComparisonNormalizes", func(t *testing.T) {
		result := planQuery(t,
			"SELECT name FROM account WHERE 100000 < revenue", PlanOptions{})

		_, ok := result.Root.(*operators.FetchScanNode)
		require.True(t, ok)
		assert.Contains(t, result.FetchXML, `operator="gt"`)
	})
}

func TestPlannerTopAndMaxRows(t *testing.T) {
	t.Run("TopSetsEstimateAndCap", func(t *testing.T) {
		result := planQuery(t, "SELECT name FROM account LIMIT 50", PlanOptions{})

		scan := result.Root.(*operators.FetchScanNode)
		assert.Equal(t, int64(50), scan.EstimatedRows())
		assert.Equal(t, int64(50), scan.RowCap)
		assert.Contains(t, result.FetchXML, `top="50"`)
	})

	t.Run("MaxRowsOverridesTop", func(t *testing.T) {
		result := planQuery(t, "SELECT name FROM account LIMIT 50", PlanOptions{MaxRows: 10})

		scan := result.Root.(*operators.FetchScanNode)
		assert.Equal(t, int64(10), scan.RowCap)
	})

	t.Run("NoTopMeansUnknownEstimate", func(t *testing.T) {
		result := planQuery(t, "SELECT name FROM account", PlanOptions{})
		assert.Equal(t, operators.EstimateUnknown, result.Root.EstimatedRows())
	})
}

func TestPlannerUnion(t *testing.T) {
	t.Run("UnionAllConcatenates", func(t *testing.T) {
		result := planQuery(t,
			"SELECT name FROM account UNION ALL SELECT fullname FROM contact", PlanOptions{})

		concat, ok := result.Root.(*operators.ConcatenateNode)
		require.True(t, ok)
		children := concat.Children()
		require.Len(t, children, 2)
		first, ok := children[0].(*operators.FetchScanNode)
		require.True(t, ok)
		second, ok := children[1].(*operators.FetchScanNode)
		require.True(t, ok)
		assert.Equal(t, "account", first.EntityName)
		assert.Equal(t, "contact", second.EntityName)
	})

	t.Run("PlainUnionDeduplicates", func(t *testing.T) {
		result := planQuery(t,
			"SELECT name FROM account UNION SELECT fullname FROM contact", PlanOptions{})

		distinct, ok := result.Root.(*operators.DistinctNode)
		require.True(t, ok)
		concat, ok := distinct.Input.(*operators.ConcatenateNode)
		require.True(t, ok)
		assert.Len(t, concat.Children(), 2)
	})
}

func TestPlannerJoins(t *testing.T) {
	result := planQuery(t,
		"SELECT a.name, c.fullname FROM account a INNER JOIN contact c ON c.parentaccountid = a.accountid",
		PlanOptions{})

	assert.Contains(t, result.FetchXML, `<link-entity name="contact"`)
	assert.Contains(t, result.FetchXML, `alias="c"`)
	assert.Contains(t, result.FetchXML, `link-type="inner"`)
	assert.Contains(t, result.FetchXML, `from="parentaccountid"`)
	assert.Contains(t, result.FetchXML, `to="accountid"`)
}

func TestPlannerAggregates(t *testing.T) {
	result := planQuery(t,
		"SELECT industry, SUM(revenue) AS total FROM account GROUP BY industry", PlanOptions{})

	assert.Contains(t, result.FetchXML, `aggregate="true"`)
	assert.Contains(t, result.FetchXML, `groupby="true"`)
	assert.Contains(t, result.FetchXML, `aggregate="sum"`)
	require.Len(t, result.EstimatedColumns, 2)
	assert.True(t, result.EstimatedColumns[1].IsAggregate)
	assert.Equal(t, "sum", result.EstimatedColumns[1].AggregateFn)
}

func TestPlannerSubqueries(t *testing.T) {
	t.Run("UncorrelatedInEvaluatesEagerly", func(t *testing.T) {
		store := memexec.New()
		store.Insert("contact", map[string]types.QueryValue{
			"parentname": types.StringValue("Contoso"),
		})

		result := planQuery(t,
			"SELECT name FROM account WHERE name IN (SELECT parentname FROM contact)",
			PlanOptions{Executor: store})

		// Inner values became a literal IN that pushed into the native filter.
		_, ok := result.Root.(*operators.FetchScanNode)
		require.True(t, ok)
		assert.Contains(t, result.FetchXML, `operator="in"`)
		assert.Contains(t, result.FetchXML, "Contoso")
	})

	t.Run("ExplainModeNeverExecutes", func(t *testing.T) {
		store := memexec.New()
		store.Insert("contact", map[string]types.QueryValue{
			"parentname": types.StringValue("Contoso"),
		})

		result := planQuery(t,
			"SELECT name FROM account WHERE name IN (SELECT parentname FROM contact)",
			PlanOptions{})

		_, ok := result.Root.(*operators.SemiJoinNode)
		assert.True(t, ok, "without an executor the subquery plans as a semi-join")
		assert.Equal(t, 0, store.ExecuteCount)
	})

	t.Run("CorrelatedExistsBecomesSemiJoin", func(t *testing.T) {
		store := memexec.New()
		result := planQuery(t,
			"SELECT name FROM account a WHERE EXISTS (SELECT contactid FROM contact WHERE contact.parentaccountid = a.accountid)",
			PlanOptions{Executor: store})

		semi, ok := result.Root.(*operators.SemiJoinNode)
		require.True(t, ok)
		assert.False(t, semi.Anti)
		assert.Equal(t, 0, store.ExecuteCount, "correlated subqueries must not run at plan time")
	})

	t.Run("ScalarSubqueryMultipleRows", func(t *testing.T) {
		store := memexec.New()
		store.Insert("contact", map[string]types.QueryValue{"age": types.NumberValue(30)})
		store.Insert("contact", map[string]types.QueryValue{"age": types.NumberValue(40)})

		stmt, err := NewParser().ParseStatement(
			"SELECT name FROM account WHERE revenue = (SELECT age FROM contact)")
		require.NoError(t, err)

		planner := NewPlanner(config.DefaultEngineConfig(), nil)
		_, err = planner.Plan(stmt, PlanOptions{Executor: store})
		require.Error(t, err)
		assert.Equal(t, qerrors.CodeSubqueryMultipleRows, qerrors.CodeOf(err))
	})
}

func TestPlannerVariables(t *testing.T) {
	result := planQuery(t,
		"SELECT name FROM account WHERE revenue > @minimum",
		PlanOptions{Vars: map[string]types.QueryValue{"minimum": types.NumberValue(100000)}})

	// A bound variable substitutes to a literal and pushes down.
	_, ok := result.Root.(*operators.FetchScanNode)
	require.True(t, ok)
	assert.Contains(t, result.FetchXML, `value="100000"`)
}

func TestPlannerRejectsNonSelect(t *testing.T) {
	stmt, err := NewParser().ParseStatement("DELETE FROM account")
	require.NoError(t, err)

	planner := NewPlanner(config.DefaultEngineConfig(), nil)
	_, err = planner.Plan(stmt, PlanOptions{})
	require.Error(t, err)

	var pe *qerrors.ParseError
	assert.ErrorAs(t, err, &pe)
}
