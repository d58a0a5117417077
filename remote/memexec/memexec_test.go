package memexec

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veldt-labs/sqlbridge/types"
)

func seeded(t *testing.T) *Executor {
	t.Helper()
	e := New()
	e.Insert("account", map[string]types.QueryValue{
		"name":    types.StringValue("Contoso"),
		"revenue": types.NumberValue(125000),
	})
	e.Insert("account", map[string]types.QueryValue{
		"name":    types.StringValue("Fabrikam"),
		"revenue": types.NumberValue(87000),
	})
	e.Insert("account", map[string]types.QueryValue{
		"name": types.StringValue("Adventure Works"),
	})
	return e
}

func TestExecuteFilter(t *testing.T) {
	ctx := context.Background()
	e := seeded(t)

	t.Run("ConditionOperators", func(t *testing.T) {
		cases := []struct {
			name  string
			fetch string
			want  int
		}{
			{"Greater", `<fetch><entity name="account"><filter type="and"><condition attribute="revenue" operator="gt" value="100000"/></filter></entity></fetch>`, 1},
			{"Like", `<fetch><entity name="account"><filter type="and"><condition attribute="name" operator="like" value="%works"/></filter></entity></fetch>`, 1},
			{"NotLike", `<fetch><entity name="account"><filter type="and"><condition attribute="name" operator="not-like" value="%o%"/></filter></entity></fetch>`, 1},
			{"In", `<fetch><entity name="account"><filter type="and"><condition attribute="name" operator="in"><value>Contoso</value><value>Fabrikam</value></condition></filter></entity></fetch>`, 2},
			{"Null", `<fetch><entity name="account"><filter type="and"><condition attribute="revenue" operator="null"/></filter></entity></fetch>`, 1},
			{"NotNull", `<fetch><entity name="account"><filter type="and"><condition attribute="revenue" operator="not-null"/></filter></entity></fetch>`, 2},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				page, err := e.Execute(ctx, tc.fetch, "", 0)
				require.NoError(t, err)
				assert.Len(t, page.Rows, tc.want)
			})
		}
	})

	t.Run("OrFilter", func(t *testing.T) {
		doc := `<fetch><entity name="account"><filter type="or">
			<condition attribute="name" operator="eq" value="Contoso"/>
			<condition attribute="name" operator="eq" value="Fabrikam"/>
		</filter></entity></fetch>`
		page, err := e.Execute(ctx, doc, "", 0)
		require.NoError(t, err)
		assert.Len(t, page.Rows, 2)
	})

	t.Run("UnknownEntityIsEmpty", func(t *testing.T) {
		page, err := e.Execute(ctx, `<fetch><entity name="ghost"/></fetch>`, "", 0)
		require.NoError(t, err)
		assert.Empty(t, page.Rows)
		assert.False(t, page.HasMore)
	})
}

func TestExecutePaging(t *testing.T) {
	ctx := context.Background()
	e := seeded(t)
	doc := `<fetch><entity name="account"/></fetch>`

	first, err := e.Execute(ctx, doc, "", 2)
	require.NoError(t, err)
	assert.Len(t, first.Rows, 2)
	require.True(t, first.HasMore)
	require.NotEmpty(t, first.PagingCookie)
	require.NotNil(t, first.TotalCount)
	assert.Equal(t, int64(3), *first.TotalCount)

	second, err := e.Execute(ctx, doc, first.PagingCookie, 2)
	require.NoError(t, err)
	assert.Len(t, second.Rows, 1)
	assert.False(t, second.HasMore)

	_, err = e.Execute(ctx, doc, "garbage", 2)
	assert.Error(t, err)
}

func TestExecuteTopAndProjection(t *testing.T) {
	ctx := context.Background()
	e := seeded(t)

	page, err := e.Execute(ctx, `<fetch top="1"><entity name="account"/></fetch>`, "", 0)
	require.NoError(t, err)
	assert.Len(t, page.Rows, 1)

	page, err = e.Execute(ctx,
		`<fetch><entity name="account"><attribute name="name" alias="label"/></entity></fetch>`, "", 0)
	require.NoError(t, err)
	require.NotEmpty(t, page.Rows)
	row := page.Rows[0]
	assert.True(t, row.Has("label"))
	assert.False(t, row.Has("revenue"))
}

func TestExecuteAggregate(t *testing.T) {
	ctx := context.Background()
	e := seeded(t)

	doc := `<fetch aggregate="true"><entity name="account">
		<attribute name="accountid" alias="total" aggregate="count"/>
	</entity></fetch>`
	page, err := e.Execute(ctx, doc, "", 0)
	require.NoError(t, err)
	require.Len(t, page.Rows, 1)
	assert.Equal(t, float64(3), page.Rows[0].Get("total").Num)

	_, err = e.Execute(ctx, `<fetch aggregate="true"><entity name="account">
		<attribute name="revenue" alias="total" aggregate="sum"/>
	</entity></fetch>`, "", 0)
	assert.Error(t, err)
}

func TestMutations(t *testing.T) {
	ctx := context.Background()
	e := New()

	id, err := e.Create(ctx, "account", map[string]types.QueryValue{
		"name": types.StringValue("Northwind"),
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)

	require.NoError(t, e.Update(ctx, "account", id, map[string]types.QueryValue{
		"name": types.StringValue("Renamed"),
	}))
	page, err := e.Execute(ctx, `<fetch><entity name="account"/></fetch>`, "", 0)
	require.NoError(t, err)
	require.Len(t, page.Rows, 1)
	assert.Equal(t, "Renamed", page.Rows[0].Get("name").Str)

	require.NoError(t, e.Delete(ctx, "account", id))
	page, err = e.Execute(ctx, `<fetch><entity name="account"/></fetch>`, "", 0)
	require.NoError(t, err)
	assert.Empty(t, page.Rows)
}

func TestExecuteCountsInvocations(t *testing.T) {
	ctx := context.Background()
	e := seeded(t)
	require.Equal(t, 0, e.ExecuteCount)
	_, err := e.Execute(ctx, `<fetch><entity name="account"/></fetch>`, "", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, e.ExecuteCount)
}
