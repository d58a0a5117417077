package sql

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veldt-labs/sqlbridge/config"
	qerrors "github.com/veldt-labs/sqlbridge/errors"
	"github.com/veldt-labs/sqlbridge/remote/memexec"
	"github.com/veldt-labs/sqlbridge/types"
)

func seededEngine(t *testing.T) (*Engine, *memexec.Executor) {
	t.Helper()
	store := memexec.New()
	store.Insert("account", map[string]types.QueryValue{
		"name":     types.StringValue("Contoso"),
		"revenue":  types.NumberValue(125000),
		"budget":   types.NumberValue(90000),
		"industry": types.StringValue("tech"),
	})
	store.Insert("account", map[string]types.QueryValue{
		"name":     types.StringValue("Fabrikam"),
		"revenue":  types.NumberValue(87000),
		"budget":   types.NumberValue(95000),
		"industry": types.StringValue("retail"),
	})
	store.Insert("account", map[string]types.QueryValue{
		"name":     types.StringValue("Adventure Works"),
		"revenue":  types.NumberValue(243000),
		"budget":   types.NumberValue(120000),
		"industry": types.StringValue("tech"),
	})
	return NewEngine(config.DefaultEngineConfig(), store, store, nil), store
}

func rowValues(result *types.QueryResult, column string) []string {
	var out []string
	for _, row := range result.Records {
		out = append(out, row.Get(column).String())
	}
	return out
}

func TestEngineSelect(t *testing.T) {
	ctx := context.Background()

	t.Run("PushedFilter", func(t *testing.T) {
		engine, _ := seededEngine(t)
		result, err := engine.Execute(ctx,
			"SELECT name FROM account WHERE revenue > 100000", ExecuteOptions{})
		require.NoError(t, err)

		assert.Equal(t, int64(2), result.RowCount)
		assert.ElementsMatch(t, []string{"Contoso", "Adventure Works"}, rowValues(result, "name"))
		assert.Contains(t, result.NativeQuery, `operator="gt"`)
	})

	t.Run("ClientFilter", func(t *testing.T) {
		engine, _ := seededEngine(t)
		result, err := engine.Execute(ctx,
			"SELECT name FROM account WHERE revenue > budget", ExecuteOptions{})
		require.NoError(t, err)

		assert.ElementsMatch(t, []string{"Contoso", "Adventure Works"}, rowValues(result, "name"))
	})

	t.Run("CountShortcut", func(t *testing.T) {
		engine, _ := seededEngine(t)
		result, err := engine.Execute(ctx, "SELECT COUNT(*) FROM account", ExecuteOptions{})
		require.NoError(t, err)

		require.Equal(t, int64(1), result.RowCount)
		assert.Equal(t, float64(3), result.Records[0].Get("count").Num)
		assert.True(t, result.IsAggregate)
	})

	t.Run("TopLimitsRows", func(t *testing.T) {
		engine, _ := seededEngine(t)
		result, err := engine.Execute(ctx, "SELECT name FROM account LIMIT 2", ExecuteOptions{})
		require.NoError(t, err)
		assert.Equal(t, int64(2), result.RowCount)
	})

	t.Run("MultiPageScan", func(t *testing.T) {
		engine, store := seededEngine(t)
		store.SetPageSize(1)

		result, err := engine.Execute(ctx, "SELECT name FROM account", ExecuteOptions{PageSize: 1})
		require.NoError(t, err)
		assert.Equal(t, int64(3), result.RowCount)
	})

	t.Run("UnionAllKeepsDuplicates", func(t *testing.T) {
		engine, store := seededEngine(t)
		store.Insert("contact", map[string]types.QueryValue{
			"fullname": types.StringValue("Contoso"),
		})

		result, err := engine.Execute(ctx,
			"SELECT name FROM account UNION ALL SELECT fullname FROM contact",
			ExecuteOptions{})
		require.NoError(t, err)
		assert.Equal(t, int64(4), result.RowCount)
	})

	t.Run("InList", func(t *testing.T) {
		engine, _ := seededEngine(t)
		result, err := engine.Execute(ctx,
			"SELECT name FROM account WHERE industry IN ('tech')", ExecuteOptions{})
		require.NoError(t, err)
		assert.Equal(t, int64(2), result.RowCount)
	})

	t.Run("CorrelatedExists", func(t *testing.T) {
		engine, store := seededEngine(t)

		// Give Contoso a contact; EXISTS must keep only that account.
		accounts, err := engine.Execute(ctx,
			"SELECT accountid, name FROM account WHERE name = 'Contoso'", ExecuteOptions{})
		require.NoError(t, err)
		require.Equal(t, int64(1), accounts.RowCount)
		contosoID := accounts.Records[0].Get("accountid")
		store.Insert("contact", map[string]types.QueryValue{
			"parentaccountid": contosoID,
		})

		result, err := engine.Execute(ctx,
			"SELECT name FROM account a WHERE EXISTS (SELECT contactid FROM contact WHERE contact.parentaccountid = a.accountid)",
			ExecuteOptions{})
		require.NoError(t, err)
		assert.Equal(t, []string{"Contoso"}, rowValues(result, "name"))
	})

	t.Run("ComputedColumn", func(t *testing.T) {
		engine, _ := seededEngine(t)
		result, err := engine.Execute(ctx,
			"SELECT revenue + budget AS combined FROM account WHERE name = 'Contoso'",
			ExecuteOptions{})
		require.NoError(t, err)
		require.Equal(t, int64(1), result.RowCount)
		assert.Equal(t, float64(215000), result.Records[0].Get("combined").Num)
	})
}

func TestEngineDml(t *testing.T) {
	ctx := context.Background()

	t.Run("DeleteWithoutWhereBlocked", func(t *testing.T) {
		engine, _ := seededEngine(t)
		_, err := engine.Execute(ctx, "DELETE FROM account",
			ExecuteOptions{Confirmed: true})
		require.Error(t, err)
		assert.Equal(t, qerrors.CodeDmlBlocked, qerrors.CodeOf(err))
	})

	t.Run("UnconfirmedDeleteRefused", func(t *testing.T) {
		engine, _ := seededEngine(t)
		_, err := engine.Execute(ctx,
			"DELETE FROM account WHERE revenue < 100000", ExecuteOptions{})
		require.Error(t, err)
		assert.Equal(t, qerrors.CodeDmlBlocked, qerrors.CodeOf(err))
	})

	t.Run("ConfirmedDeleteApplies", func(t *testing.T) {
		engine, _ := seededEngine(t)
		result, err := engine.Execute(ctx,
			"DELETE FROM account WHERE revenue < 100000",
			ExecuteOptions{Confirmed: true})
		require.NoError(t, err)
		assert.Equal(t, float64(1), result.Records[0].Get("affected").Num)

		remaining, err := engine.Execute(ctx, "SELECT name FROM account", ExecuteOptions{})
		require.NoError(t, err)
		assert.Equal(t, int64(2), remaining.RowCount)
	})

	t.Run("DryRunLeavesStoreUntouched", func(t *testing.T) {
		engine, _ := seededEngine(t)
		result, err := engine.Execute(ctx,
			"DELETE FROM account WHERE revenue < 100000",
			ExecuteOptions{DryRun: true})
		require.NoError(t, err)
		assert.Equal(t, float64(1), result.Records[0].Get("affected").Num)
		assert.True(t, result.Records[0].Get("dry_run").Bool)

		remaining, err := engine.Execute(ctx, "SELECT name FROM account", ExecuteOptions{})
		require.NoError(t, err)
		assert.Equal(t, int64(3), remaining.RowCount)
	})

	t.Run("RowCapEnforced", func(t *testing.T) {
		engine, _ := seededEngine(t)
		_, err := engine.Execute(ctx,
			"DELETE FROM account WHERE revenue > 0",
			ExecuteOptions{Confirmed: true, RowCap: 2})
		require.Error(t, err)
		assert.Equal(t, qerrors.CodeDmlRowCapExceeded, qerrors.CodeOf(err))
	})

	t.Run("UpdateComputedSet", func(t *testing.T) {
		engine, _ := seededEngine(t)
		_, err := engine.Execute(ctx,
			"UPDATE account SET revenue = revenue + 1000 WHERE name = 'Contoso'",
			ExecuteOptions{Confirmed: true})
		require.NoError(t, err)

		check, err := engine.Execute(ctx,
			"SELECT revenue FROM account WHERE name = 'Contoso'", ExecuteOptions{})
		require.NoError(t, err)
		assert.Equal(t, float64(126000), check.Records[0].Get("revenue").Num)
	})

	t.Run("Insert", func(t *testing.T) {
		engine, _ := seededEngine(t)
		result, err := engine.Execute(ctx,
			"INSERT INTO account (name, revenue) VALUES ('Northwind', 55000)",
			ExecuteOptions{})
		require.NoError(t, err)
		assert.Equal(t, float64(1), result.Records[0].Get("affected").Num)

		check, err := engine.Execute(ctx,
			"SELECT name FROM account WHERE name = 'Northwind'", ExecuteOptions{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), check.RowCount)
	})
}

func TestEngineScripts(t *testing.T) {
	ctx := context.Background()

	t.Run("SequenceCollectsResults", func(t *testing.T) {
		engine, _ := seededEngine(t)
		results, err := engine.RunScript(ctx,
			"SELECT name FROM account WHERE industry = 'tech'; SELECT COUNT(*) FROM account",
			ExecuteOptions{})
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, int64(2), results[0].RowCount)
		assert.Equal(t, float64(3), results[1].Records[0].Get("count").Num)
	})

	t.Run("IfBranchesOnVariables", func(t *testing.T) {
		engine, _ := seededEngine(t)
		results, err := engine.RunScript(ctx, `
			IF @threshold > 100 BEGIN
				SELECT name FROM account WHERE industry = 'tech'
			END ELSE BEGIN
				SELECT name FROM account WHERE industry = 'retail'
			END`,
			ExecuteOptions{Vars: map[string]types.QueryValue{
				"threshold": types.NumberValue(50),
			}})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, []string{"Fabrikam"}, rowValues(results[0], "name"))
	})

	t.Run("WhileGuardStopsRunaway", func(t *testing.T) {
		cfg := config.DefaultEngineConfig()
		cfg.MaxWhileIterations = 3
		store := memexec.New()
		engine := NewEngine(cfg, store, store, nil)

		_, err := engine.RunScript(ctx, `
			WHILE 1 = 1 BEGIN
				SELECT name FROM account
			END`,
			ExecuteOptions{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "iteration limit")
	})

	t.Run("DmlInsideScriptPassesGuard", func(t *testing.T) {
		engine, _ := seededEngine(t)
		_, err := engine.RunScript(ctx,
			"DELETE FROM account WHERE revenue < 100000", ExecuteOptions{})
		require.Error(t, err)
		assert.Equal(t, qerrors.CodeDmlBlocked, qerrors.CodeOf(err))
	})
}
