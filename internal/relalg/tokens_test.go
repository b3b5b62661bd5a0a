package relalg

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nimbusdb/akdb/internal/block"
)

var ordersHeader = []block.AttributeDescriptor{
	{Name: "id", Type: block.TypeInt},
	{Name: "qty", Type: block.TypeInt},
	{Name: "name", Type: block.TypeVarchar},
}

func TestEvalComparisonAgainstAttribute(t *testing.T) {
	ev := NewEvaluator(ordersHeader)
	tokens := []Token{AttrRef("qty"), Lit(block.TypeInt, int64(5)), Op(">")}
	ok, err := ev.Eval(tokens, []any{int64(1), int64(9), "x"})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEvalLogicalAnd(t *testing.T) {
	ev := NewEvaluator(ordersHeader)
	tokens := []Token{
		AttrRef("qty"), Lit(block.TypeInt, int64(5)), Op(">"),
		AttrRef("id"), Lit(block.TypeInt, int64(1)), Op("="),
		Op("AND"),
	}
	ok, err := ev.Eval(tokens, []any{int64(1), int64(9), "x"})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEvalBetween(t *testing.T) {
	ev := NewEvaluator(ordersHeader)
	tokens := []Token{
		AttrRef("qty"), Lit(block.TypeInt, int64(1)), Lit(block.TypeInt, int64(10)), Op("BETWEEN"),
	}
	ok, err := ev.Eval(tokens, []any{int64(1), int64(9), "x"})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEvalLikePattern(t *testing.T) {
	ev := NewEvaluator(ordersHeader)
	tokens := []Token{AttrRef("name"), Lit(block.TypeVarchar, "a%"), Op("LIKE")}
	ok, err := ev.Eval(tokens, []any{int64(1), int64(9), "apple"})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = ev.Eval(tokens, []any{int64(1), int64(9), "banana"})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEvalArithmeticFeedingComparison(t *testing.T) {
	ev := NewEvaluator(ordersHeader)
	tokens := []Token{
		AttrRef("qty"), Lit(block.TypeInt, int64(1)), Op("+"),
		Lit(block.TypeInt, int64(10)), Op("="),
	}
	ok, err := ev.Eval(tokens, []any{int64(1), int64(9), "x"})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEvalAnyOperator(t *testing.T) {
	ev := NewEvaluator(ordersHeader)
	tokens := []Token{AttrRef("qty"), Lit(block.TypeVarchar, "3,9,12"), Op("=ANY")}
	ok, err := ev.Eval(tokens, []any{int64(1), int64(9), "x"})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEvalUnknownAttributeFails(t *testing.T) {
	ev := NewEvaluator(ordersHeader)
	tokens := []Token{AttrRef("nope"), Lit(block.TypeInt, int64(1)), Op("=")}
	_, err := ev.Eval(tokens, []any{int64(1), int64(9), "x"})
	require.Error(t, err)
}

func TestEvalOperandKindMismatchFails(t *testing.T) {
	ev := NewEvaluator(ordersHeader)
	tokens := []Token{AttrRef("name"), Lit(block.TypeInt, int64(5)), Op(">")}
	_, err := ev.Eval(tokens, []any{int64(1), int64(9), "x"})
	require.Error(t, err)
}

func TestEvalStackUnderflowFails(t *testing.T) {
	ev := NewEvaluator(ordersHeader)
	tokens := []Token{Op("AND")}
	_, err := ev.Eval(tokens, []any{int64(1), int64(9), "x"})
	require.Error(t, err)
}

func TestEvalNonBooleanResultFails(t *testing.T) {
	ev := NewEvaluator(ordersHeader)
	tokens := []Token{AttrRef("qty"), Lit(block.TypeInt, int64(1)), Op("+")}
	_, err := ev.Eval(tokens, []any{int64(1), int64(9), "x"})
	require.Error(t, err)
}
