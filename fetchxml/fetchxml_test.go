package fetchxml

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veldt-labs/sqlbridge/types"
)

func TestRender(t *testing.T) {
	t.Run("FilteredScan", func(t *testing.T) {
		f := &Fetch{
			Top: 10,
			Entity: Entity{
				Name: "account",
				Attributes: []Attribute{
					{Name: "name"},
					{Name: "revenue"},
				},
				Filter: &Filter{
					Type: "and",
					Conditions: []Condition{
						{Attribute: "revenue", Operator: OpGreater, Value: "100000"},
					},
				},
				Orders: []Order{{Attribute: "name"}},
			},
		}

		out, err := f.Render()
		require.NoError(t, err)
		assert.Contains(t, out, `<fetch top="10">`)
		assert.Contains(t, out, `<entity name="account">`)
		assert.Contains(t, out, `<attribute name="name">`)
		assert.Contains(t, out, `<condition attribute="revenue" operator="gt" value="100000">`)
		assert.Contains(t, out, `<order attribute="name">`)
	})

	t.Run("AggregateGroupBy", func(t *testing.T) {
		f := &Fetch{
			Aggregate: true,
			Entity: Entity{
				Name: "account",
				Attributes: []Attribute{
					{Name: "industry", Alias: "industry", GroupBy: true},
					{Name: "revenue", Alias: "total", Aggregate: "sum"},
				},
			},
		}

		out, err := f.Render()
		require.NoError(t, err)
		assert.Contains(t, out, `aggregate="true"`)
		assert.Contains(t, out, `groupby="true"`)
		assert.Contains(t, out, `aggregate="sum"`)
	})

	t.Run("LinkedEntity", func(t *testing.T) {
		f := &Fetch{
			Entity: Entity{
				Name: "account",
				Links: []LinkEntity{{
					Name:     "contact",
					From:     "parentaccountid",
					To:       "accountid",
					LinkType: "inner",
					Alias:    "c",
				}},
			},
		}

		out, err := f.Render()
		require.NoError(t, err)
		assert.Contains(t, out,
			`<link-entity name="contact" from="parentaccountid" to="accountid" link-type="inner" alias="c">`)
	})

	t.Run("InConditionRendersValueList", func(t *testing.T) {
		f := &Fetch{
			Entity: Entity{
				Name: "account",
				Filter: &Filter{
					Type: "and",
					Conditions: []Condition{
						{Attribute: "industry", Operator: OpIn, Values: []string{"tech", "retail"}},
					},
				},
			},
		}

		out, err := f.Render()
		require.NoError(t, err)
		assert.Contains(t, out, `operator="in"`)
		assert.Contains(t, out, "<value>tech</value>")
		assert.Contains(t, out, "<value>retail</value>")
	})

	t.Run("ValuesAreEscaped", func(t *testing.T) {
		f := &Fetch{
			Entity: Entity{
				Name: "account",
				Filter: &Filter{
					Type: "and",
					Conditions: []Condition{
						{Attribute: "name", Operator: OpEqual, Value: `O'Brien <& Sons>`},
					},
				},
			},
		}

		out, err := f.Render()
		require.NoError(t, err)
		assert.Contains(t, out, "&lt;&amp; Sons&gt;")
	})
}

func TestTranslateOperator(t *testing.T) {
	cases := map[string]string{
		"=":  OpEqual,
		"<>": OpNotEqual,
		"!=": OpNotEqual,
		"<":  OpLess,
		"<=": OpLessEqual,
		">":  OpGreater,
		">=": OpGreaterEqual,
	}
	for sqlOp, want := range cases {
		got, ok := TranslateOperator(sqlOp)
		require.True(t, ok, sqlOp)
		assert.Equal(t, want, got)
	}

	_, ok := TranslateOperator("||")
	assert.False(t, ok)
}

func TestSerializeValue(t *testing.T) {
	assert.Equal(t, "100000", SerializeValue(types.NumberValue(100000)))
	assert.Equal(t, "12.5", SerializeValue(types.NumberValue(12.5)))
	assert.Equal(t, "true", SerializeValue(types.BoolValue(true)))
	assert.Equal(t, "Contoso", SerializeValue(types.StringValue("Contoso")))

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, ts.Format(time.RFC3339), SerializeValue(types.TimeValue(ts)))
}
