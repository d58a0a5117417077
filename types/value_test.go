package types

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompare(t *testing.T) {
	t.Run("Numbers", func(t *testing.T) {
		cmp, err := NumberValue(1).Compare(NumberValue(2))
		require.NoError(t, err)
		assert.Equal(t, -1, cmp)

		cmp, err = NumberValue(2).Compare(StringValue("2"))
		require.NoError(t, err)
		assert.Equal(t, 0, cmp)
	})

	t.Run("StringAgainstNumberCoercesNumerically", func(t *testing.T) {
		cmp, err := StringValue("10").Compare(NumberValue(9))
		require.NoError(t, err)
		assert.Equal(t, 1, cmp)
	})

	t.Run("Strings", func(t *testing.T) {
		cmp, err := StringValue("alpha").Compare(StringValue("beta"))
		require.NoError(t, err)
		assert.Equal(t, -1, cmp)
	})

	t.Run("DateTimes", func(t *testing.T) {
		earlier := TimeValue(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
		cmp, err := earlier.Compare(StringValue("2024-06-01"))
		require.NoError(t, err)
		assert.Equal(t, -1, cmp)
	})

	t.Run("IncompatibleKindsError", func(t *testing.T) {
		_, err := TimeValue(time.Now()).Compare(BoolValue(true))
		assert.Error(t, err)
	})

	t.Run("NullsError", func(t *testing.T) {
		_, err := NullValue().Compare(NumberValue(1))
		assert.Error(t, err)
	})
}

func TestCoercions(t *testing.T) {
	n, err := StringValue(" 12.5 ").AsNumber()
	require.NoError(t, err)
	assert.Equal(t, 12.5, n)

	_, err = StringValue("abc").AsNumber()
	assert.Error(t, err)

	b, err := NumberValue(0).AsBool()
	require.NoError(t, err)
	assert.False(t, b)

	id := uuid.New()
	parsed, err := StringValue(id.String()).AsGuid()
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	ts, err := StringValue("2024-03-01").AsTime()
	require.NoError(t, err)
	assert.Equal(t, 2024, ts.Year())
}

func TestStringRendering(t *testing.T) {
	assert.Equal(t, "100000", NumberValue(100000).String())
	assert.Equal(t, "0.5", NumberValue(0.5).String())
	assert.Equal(t, "false", BoolValue(false).String())
	assert.Equal(t, "", NullValue().String())
}

func TestEqual(t *testing.T) {
	assert.True(t, NumberValue(1).Equal(NumberValue(1)))
	assert.True(t, NullValue().Equal(NullValue()))
	assert.False(t, NullValue().Equal(NumberValue(0)))
	assert.False(t, TimeValue(time.Now()).Equal(BoolValue(true)))
}

func TestRowKey(t *testing.T) {
	a := NewQueryRow("account")
	a.Set("name", StringValue("x"))
	a.Set("revenue", NumberValue(1))

	b := NewQueryRow("account")
	b.Set("name", StringValue("x"))
	b.Set("revenue", NumberValue(1))

	assert.Equal(t, a.Key(), b.Key())

	// Same text under a different kind must not collide.
	c := NewQueryRow("account")
	c.Set("name", StringValue("x"))
	c.Set("revenue", StringValue("1"))
	assert.NotEqual(t, a.Key(), c.Key())
}

func TestMatchLike(t *testing.T) {
	assert.True(t, MatchLike("Contoso", "con%"))
	assert.True(t, MatchLike("Contoso", "%oso"))
	assert.True(t, MatchLike("Contoso", "c_ntoso"))
	assert.True(t, MatchLike("Contoso", "%"))
	assert.False(t, MatchLike("Contoso", "con"))
	assert.False(t, MatchLike("", "_"))
	assert.True(t, MatchLike("", ""))
}
