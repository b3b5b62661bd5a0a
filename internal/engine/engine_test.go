package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nimbusdb/akdb/internal/block"
	"github.com/nimbusdb/akdb/internal/catalog"
	"github.com/nimbusdb/akdb/internal/relalg"
	"github.com/nimbusdb/akdb/pkg/options"
)

var peopleHeader = []block.AttributeDescriptor{
	{Name: "id", Type: block.TypeInt},
	{Name: "name", Type: block.TypeVarchar},
}

func testEngine(t *testing.T) *Engine {
	t.Helper()
	opts := options.NewDefaultOptions()
	opts.DataDir = t.TempDir()

	e, err := New(&Config{Options: &opts, Logger: zap.NewNop().Sugar()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestCreateTableThenInsertAndSelect(t *testing.T) {
	e := testEngine(t)
	require.NoError(t, e.CreateTable("people", peopleHeader))

	_, err := e.Insert("people", []any{int64(1), "ava"})
	require.NoError(t, err)

	cols, rows, err := e.Select("people", nil, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"id", "name"}, cols)
	require.Equal(t, [][]any{{int64(1), "ava"}}, rows)
}

func TestSelectServesFromCacheOnSecondCall(t *testing.T) {
	e := testEngine(t)
	require.NoError(t, e.CreateTable("people", peopleHeader))
	_, err := e.Insert("people", []any{int64(1), "ava"})
	require.NoError(t, err)

	_, rows1, err := e.Select("people", nil, nil)
	require.NoError(t, err)
	_, rows2, err := e.Select("people", nil, nil)
	require.NoError(t, err)
	require.Equal(t, rows1, rows2)
}

func TestSelectCacheInvalidatedByMutation(t *testing.T) {
	e := testEngine(t)
	require.NoError(t, e.CreateTable("people", peopleHeader))
	_, err := e.Insert("people", []any{int64(1), "ava"})
	require.NoError(t, err)

	_, rows1, err := e.Select("people", nil, nil)
	require.NoError(t, err)
	require.Len(t, rows1, 1)

	_, err = e.Insert("people", []any{int64(2), "bo"})
	require.NoError(t, err)

	_, rows2, err := e.Select("people", nil, nil)
	require.NoError(t, err)
	require.Len(t, rows2, 2)
}

func TestUpdateRewritesRowAndReindexes(t *testing.T) {
	e := testEngine(t)
	require.NoError(t, e.CreateTable("people", peopleHeader))
	require.NoError(t, e.CreateIndex("idx_name", "people", []string{"name"}))

	addr, err := e.Insert("people", []any{int64(1), "ava"})
	require.NoError(t, err)

	newAddr, err := e.Update("people", addr, []any{int64(1), "eve"})
	require.NoError(t, err)

	_, rows, err := e.Select("people", nil, nil)
	require.NoError(t, err)
	require.Equal(t, [][]any{{int64(1), "eve"}}, rows)
	_ = newAddr
}

func TestDeleteRemovesRow(t *testing.T) {
	e := testEngine(t)
	require.NoError(t, e.CreateTable("people", peopleHeader))
	addr, err := e.Insert("people", []any{int64(1), "ava"})
	require.NoError(t, err)

	require.NoError(t, e.Delete("people", addr))

	_, rows, err := e.Select("people", nil, nil)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestAddConstraintEnforcedOnSubsequentInsert(t *testing.T) {
	e := testEngine(t)
	require.NoError(t, e.CreateTable("people", peopleHeader))
	require.NoError(t, e.AddConstraint(&catalog.Constraint{
		Name: "c1", Relation: "people", Attribute: "name", Kind: catalog.ConstraintNotNull,
	}))

	_, err := e.Insert("people", []any{int64(1), nil})
	require.Error(t, err)
}

func TestAddConstraintRejectedByExistingViolatingRows(t *testing.T) {
	e := testEngine(t)
	require.NoError(t, e.CreateTable("people", peopleHeader))
	_, err := e.Insert("people", []any{int64(1), nil})
	require.NoError(t, err)

	err = e.AddConstraint(&catalog.Constraint{
		Name: "c1", Relation: "people", Attribute: "name", Kind: catalog.ConstraintNotNull,
	})
	require.Error(t, err)
}

func TestDropConstraintStopsEnforcement(t *testing.T) {
	e := testEngine(t)
	require.NoError(t, e.CreateTable("people", peopleHeader))
	require.NoError(t, e.AddConstraint(&catalog.Constraint{
		Name: "c1", Relation: "people", Attribute: "name", Kind: catalog.ConstraintNotNull,
	}))
	require.NoError(t, e.DropConstraint("c1"))

	_, err := e.Insert("people", []any{int64(1), nil})
	require.NoError(t, err)
}

func TestCreateIndexThenDropIndex(t *testing.T) {
	e := testEngine(t)
	require.NoError(t, e.CreateTable("people", peopleHeader))
	_, err := e.Insert("people", []any{int64(1), "ava"})
	require.NoError(t, err)

	require.NoError(t, e.CreateIndex("idx_name", "people", []string{"name"}))
	require.NoError(t, e.DropIndex("idx_name"))
}

func TestDropTableClearsConstraintsAndIndexes(t *testing.T) {
	e := testEngine(t)
	require.NoError(t, e.CreateTable("people", peopleHeader))
	require.NoError(t, e.CreateIndex("idx_name", "people", []string{"name"}))

	require.NoError(t, e.DropTable("people"))
	require.Empty(t, e.indexes)

	_, err := e.Insert("people", []any{int64(1), "ava"})
	require.Error(t, err)
}

func TestSelectWithPredicateAndProjection(t *testing.T) {
	e := testEngine(t)
	require.NoError(t, e.CreateTable("people", peopleHeader))
	_, err := e.Insert("people", []any{int64(1), "ava"})
	require.NoError(t, err)
	_, err = e.Insert("people", []any{int64(2), "bo"})
	require.NoError(t, err)

	cols, rows, err := e.Select("people", []string{"name"}, []relalg.Token{
		relalg.AttrRef("id"), relalg.Lit(block.TypeInt, int64(2)), relalg.Op("="),
	})
	require.NoError(t, err)
	require.Equal(t, []string{"name"}, cols)
	require.Equal(t, [][]any{{"bo"}}, rows)
}

func TestCloseIsIdempotentAndRejectsFurtherOperations(t *testing.T) {
	opts := options.NewDefaultOptions()
	opts.DataDir = t.TempDir()
	e, err := New(&Config{Options: &opts, Logger: zap.NewNop().Sugar()})
	require.NoError(t, err)

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	require.ErrorIs(t, e.CreateTable("people", peopleHeader), ErrEngineClosed)
}
