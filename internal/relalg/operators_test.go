package relalg

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nimbusdb/akdb/internal/block"
	"github.com/nimbusdb/akdb/internal/blockcache"
	"github.com/nimbusdb/akdb/internal/diskmgr"
	"github.com/nimbusdb/akdb/internal/record"
	"github.com/nimbusdb/akdb/internal/segment"
	"github.com/nimbusdb/akdb/pkg/options"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	opts := options.NewDefaultOptions()
	opts.DataDir = t.TempDir()

	dm, err := diskmgr.Init(&diskmgr.Config{Options: &opts, Logger: zap.NewNop().Sugar()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = dm.Close() })

	cache, err := blockcache.New(&blockcache.Config{DiskManager: dm, Capacity: 64, Logger: zap.NewNop().Sugar()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	sm, err := segment.Open(&segment.Config{DiskManager: dm, Cache: cache, Options: &opts, Logger: zap.NewNop().Sugar()})
	require.NoError(t, err)

	return New(sm, cache, zap.NewNop().Sugar())
}

func seedRelation(t *testing.T, e *Engine, name string, header []block.AttributeDescriptor, rows [][]any) {
	t.Helper()
	_, err := e.sm.CreateSegment(name, block.KindData, segment.CategoryTable, header)
	require.NoError(t, err)
	for _, r := range rows {
		_, err := record.Insert(e.sm, e.cache, name, r)
		require.NoError(t, err)
	}
}

func scanAll(t *testing.T, e *Engine, seg string) [][]any {
	t.Helper()
	var rows [][]any
	err := record.Scan(e.sm, e.cache, seg, func(_ record.RowAddr, row []any) (bool, error) {
		rows = append(rows, append([]any{}, row...))
		return true, nil
	})
	require.NoError(t, err)
	return rows
}

func TestSelectFiltersRows(t *testing.T) {
	e := testEngine(t)
	seedRelation(t, e, "orders", ordersHeader, [][]any{
		{int64(1), int64(2), "a"},
		{int64(2), int64(9), "b"},
	})

	dst, err := e.Select(ordersHeader, "orders", []Token{AttrRef("qty"), Lit(block.TypeInt, int64(5)), Op(">")})
	require.NoError(t, err)
	defer e.DropTemp(dst)

	rows := scanAll(t, e, dst)
	require.Len(t, rows, 1)
	require.Equal(t, int64(2), rows[0][0])
}

func TestProjectSelectsAttributesInOrder(t *testing.T) {
	e := testEngine(t)
	seedRelation(t, e, "orders", ordersHeader, [][]any{{int64(1), int64(2), "a"}})

	dst, header, err := e.Project(ordersHeader, "orders", []string{"name", "id"})
	require.NoError(t, err)
	defer e.DropTemp(dst)

	require.Equal(t, []string{"name", "id"}, []string{header[0].Name, header[1].Name})
	rows := scanAll(t, e, dst)
	require.Equal(t, []any{"a", int64(1)}, rows[0])
}

func TestProjectRejectsUnknownAttribute(t *testing.T) {
	e := testEngine(t)
	seedRelation(t, e, "orders", ordersHeader, nil)
	_, _, err := e.Project(ordersHeader, "orders", []string{"nope"})
	require.Error(t, err)
}

func TestSortMaterializeOrdersByKey(t *testing.T) {
	e := testEngine(t)
	seedRelation(t, e, "orders", ordersHeader, [][]any{
		{int64(3), int64(1), "c"},
		{int64(1), int64(1), "a"},
		{int64(2), int64(1), "b"},
	})

	dst, err := e.SortMaterialize(ordersHeader, "orders", []string{"id"})
	require.NoError(t, err)
	defer e.DropTemp(dst)

	rows := scanAll(t, e, dst)
	require.Equal(t, []any{int64(1), int64(1), "a"}, rows[0])
	require.Equal(t, []any{int64(2), int64(1), "b"}, rows[1])
	require.Equal(t, []any{int64(3), int64(1), "c"}, rows[2])
}

func TestUnionRemovesDuplicates(t *testing.T) {
	e := testEngine(t)
	seedRelation(t, e, "a", ordersHeader, [][]any{{int64(1), int64(1), "x"}})
	seedRelation(t, e, "b", ordersHeader, [][]any{{int64(1), int64(1), "x"}, {int64(2), int64(2), "y"}})

	dst, err := e.Union(ordersHeader, "a", "b")
	require.NoError(t, err)
	defer e.DropTemp(dst)

	require.Len(t, scanAll(t, e, dst), 2)
}

func TestIntersectKeepsCommonRowsOnly(t *testing.T) {
	e := testEngine(t)
	seedRelation(t, e, "a", ordersHeader, [][]any{{int64(1), int64(1), "x"}, {int64(2), int64(2), "y"}})
	seedRelation(t, e, "b", ordersHeader, [][]any{{int64(1), int64(1), "x"}})

	dst, err := e.Intersect(ordersHeader, "a", "b")
	require.NoError(t, err)
	defer e.DropTemp(dst)

	rows := scanAll(t, e, dst)
	require.Len(t, rows, 1)
	require.Equal(t, "x", rows[0][2])
}

func TestDifferenceKeepsRowsOnlyInA(t *testing.T) {
	e := testEngine(t)
	seedRelation(t, e, "a", ordersHeader, [][]any{{int64(1), int64(1), "x"}, {int64(2), int64(2), "y"}})
	seedRelation(t, e, "b", ordersHeader, [][]any{{int64(1), int64(1), "x"}})

	dst, err := e.Difference(ordersHeader, "a", "b")
	require.NoError(t, err)
	defer e.DropTemp(dst)

	rows := scanAll(t, e, dst)
	require.Len(t, rows, 1)
	require.Equal(t, "y", rows[0][2])
}

func TestCartesianProductEmitsEveryPair(t *testing.T) {
	e := testEngine(t)
	aHeader := []block.AttributeDescriptor{{Name: "id", Type: block.TypeInt}}
	bHeader := []block.AttributeDescriptor{{Name: "label", Type: block.TypeVarchar}}
	seedRelation(t, e, "a", aHeader, [][]any{{int64(1)}, {int64(2)}})
	seedRelation(t, e, "b", bHeader, [][]any{{"x"}, {"y"}})

	dst, header, err := e.CartesianProduct(aHeader, "a", bHeader, "b")
	require.NoError(t, err)
	defer e.DropTemp(dst)

	require.Equal(t, []string{"id", "label"}, []string{header[0].Name, header[1].Name})
	require.Len(t, scanAll(t, e, dst), 4)
}

func TestThetaJoinAppliesPredicate(t *testing.T) {
	e := testEngine(t)
	aHeader := []block.AttributeDescriptor{{Name: "id", Type: block.TypeInt}}
	bHeader := []block.AttributeDescriptor{{Name: "ref", Type: block.TypeInt}}
	seedRelation(t, e, "a", aHeader, [][]any{{int64(1)}, {int64(2)}})
	seedRelation(t, e, "b", bHeader, [][]any{{int64(1)}, {int64(3)}})

	dst, _, err := e.ThetaJoin(aHeader, "a", bHeader, "b", []Token{AttrRef("id"), AttrRef("ref"), Op("=")})
	require.NoError(t, err)
	defer e.DropTemp(dst)

	rows := scanAll(t, e, dst)
	require.Len(t, rows, 1)
	require.Equal(t, []any{int64(1), int64(1)}, rows[0])
}

func TestNaturalJoinMatchesOnCommonAttributes(t *testing.T) {
	e := testEngine(t)
	aHeader := []block.AttributeDescriptor{{Name: "id", Type: block.TypeInt}, {Name: "name", Type: block.TypeVarchar}}
	bHeader := []block.AttributeDescriptor{{Name: "id", Type: block.TypeInt}, {Name: "amount", Type: block.TypeInt}}
	seedRelation(t, e, "a", aHeader, [][]any{{int64(1), "ann"}, {int64(2), "bo"}})
	seedRelation(t, e, "b", bHeader, [][]any{{int64(1), int64(99)}})

	dst, header, err := e.NaturalJoin(aHeader, "a", bHeader, "b")
	require.NoError(t, err)
	defer e.DropTemp(dst)

	require.Equal(t, []string{"id", "name", "amount"}, []string{header[0].Name, header[1].Name, header[2].Name})
	rows := scanAll(t, e, dst)
	require.Len(t, rows, 1)
	require.Equal(t, []any{int64(1), "ann", int64(99)}, rows[0])
}

func TestAggregateGroupsAndComputes(t *testing.T) {
	e := testEngine(t)
	seedRelation(t, e, "orders", ordersHeader, [][]any{
		{int64(1), int64(5), "a"},
		{int64(1), int64(7), "a"},
		{int64(2), int64(3), "b"},
	})

	dst, header, err := e.Aggregate(ordersHeader, "orders", []string{"id"}, []AggSpec{
		{Func: "COUNT", As: "n"},
		{Func: "SUM", Attribute: "qty", As: "total"},
	})
	require.NoError(t, err)
	defer e.DropTemp(dst)

	require.Equal(t, []string{"id", "n", "total"}, []string{header[0].Name, header[1].Name, header[2].Name})
	rows := scanAll(t, e, dst)
	require.Len(t, rows, 2)

	byID := make(map[int64][]any)
	for _, r := range rows {
		byID[r[0].(int64)] = r
	}
	require.EqualValues(t, 2, byID[int64(1)][1])
	require.EqualValues(t, 12.0, byID[int64(1)][2])
	require.EqualValues(t, 1, byID[int64(2)][1])
}
