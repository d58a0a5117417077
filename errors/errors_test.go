package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryError(t *testing.T) {
	t.Run("ErrorRendersOpPrefix", func(t *testing.T) {
		err := Wrap(errors.New("remote refused"), CodeExecutionFailed, "FetchScan(account)")
		assert.Equal(t, "FetchScan(account): remote refused", err.Error())
		assert.Equal(t, CodeExecutionFailed, err.Code)
	})

	t.Run("UnwrapPreservesCause", func(t *testing.T) {
		cause := errors.New("boom")
		err := Wrap(cause, CodeUnknown, "")
		assert.ErrorIs(t, err, cause)
	})

	t.Run("IsMatchesOnCode", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", New(CodeDmlBlocked, "refused"))
		assert.ErrorIs(t, err, New(CodeDmlBlocked, "anything"))
		assert.NotErrorIs(t, err, New(CodeParse, ""))
	})

	t.Run("WrapNilIsNil", func(t *testing.T) {
		assert.Nil(t, Wrap(nil, CodeUnknown, "op"))
	})

	t.Run("CodeOfWalksTheChain", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", Newf(CodePlanTimeout, "budget of %dms exceeded", 5000))
		assert.Equal(t, CodePlanTimeout, CodeOf(err))
		assert.True(t, IsCode(err, CodePlanTimeout))

		assert.Equal(t, CodeUnknown, CodeOf(errors.New("plain")))
	})

	t.Run("ParseErrorMapsToParseCode", func(t *testing.T) {
		err := fmt.Errorf("wrapped: %w", &ParseError{
			Errors: []SyntaxError{{Line: 1, Column: 8, Message: "unexpected token"}},
		})
		assert.Equal(t, CodeParse, CodeOf(err))
	})
}

func TestParseErrorRendering(t *testing.T) {
	t.Run("ShowsPositions", func(t *testing.T) {
		err := &ParseError{
			Errors: []SyntaxError{{Line: 2, Column: 14, Message: "unexpected token"}},
		}
		assert.Contains(t, err.Error(), "line 2, column 14: unexpected token")
	})

	t.Run("CapsAtFiveMessages", func(t *testing.T) {
		pe := &ParseError{}
		for i := 0; i < 8; i++ {
			pe.Errors = append(pe.Errors, SyntaxError{Line: i + 1, Column: 1, Message: "bad"})
		}
		out := pe.Error()
		assert.Contains(t, out, "line 5,")
		assert.NotContains(t, out, "line 6,")
		assert.Contains(t, out, "... and 3 more")
	})

	t.Run("HintAppended", func(t *testing.T) {
		pe := &ParseError{
			Errors: []SyntaxError{{Line: 1, Column: 13, Message: "unexpected token"}},
			Hint:   `missing whitespace in "FROMaccount"?`,
		}
		require.Contains(t, pe.Error(), "hint: missing whitespace")
	})
}
