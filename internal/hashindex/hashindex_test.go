package hashindex

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nimbusdb/akdb/internal/block"
	"github.com/nimbusdb/akdb/internal/blockcache"
	"github.com/nimbusdb/akdb/internal/diskmgr"
	"github.com/nimbusdb/akdb/internal/segment"
	"github.com/nimbusdb/akdb/pkg/options"
)

func testHarness(t *testing.T) (*segment.Map, *blockcache.Cache) {
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

	return sm, cache
}

func alwaysMatch(block.Addr, int64) (bool, error) { return true, nil }

func TestHashValueSumMixerAddsByteValues(t *testing.T) {
	v := HashValue("sum", []block.Type{block.TypeInt, block.TypeVarchar}, []any{int64(10), "ab"})
	require.Equal(t, int64(10+'a'+'b'), v)
}

func TestHashValueXxhashMixerDiffersFromSum(t *testing.T) {
	sum := HashValue("sum", []block.Type{block.TypeVarchar}, []any{"collision-prone"})
	xx := HashValue("xxhash", []block.Type{block.TypeVarchar}, []any{"collision-prone"})
	require.NotEqual(t, sum, xx)
}

func TestCreateThenInsertThenLookupRoundTrip(t *testing.T) {
	sm, cache := testHarness(t)
	ix, err := Create(sm, cache, zap.NewNop().Sugar(), "idx_id", "sum")
	require.NoError(t, err)

	require.NoError(t, ix.Insert(42, block.Addr(7), 3))

	gotBlock, gotSlot, err := ix.Lookup(42, alwaysMatch)
	require.NoError(t, err)
	require.Equal(t, block.Addr(7), gotBlock)
	require.EqualValues(t, 3, gotSlot)
}

func TestLookupMissingValueFails(t *testing.T) {
	sm, cache := testHarness(t)
	ix, err := Create(sm, cache, zap.NewNop().Sugar(), "idx_id", "sum")
	require.NoError(t, err)

	_, _, err = ix.Lookup(999, alwaysMatch)
	require.Error(t, err)
}

func TestLookupOnEmptyDirectoryFails(t *testing.T) {
	sm, cache := testHarness(t)
	ix, err := Create(sm, cache, zap.NewNop().Sugar(), "idx_id", "sum")
	require.NoError(t, err)

	_, _, err = ix.Lookup(1, alwaysMatch)
	require.Error(t, err)
}

func TestLookupValidateRejectionFallsThroughToNotFound(t *testing.T) {
	sm, cache := testHarness(t)
	ix, err := Create(sm, cache, zap.NewNop().Sugar(), "idx_id", "sum")
	require.NoError(t, err)
	require.NoError(t, ix.Insert(5, block.Addr(1), 0))

	reject := func(block.Addr, int64) (bool, error) { return false, nil }
	_, _, err = ix.Lookup(5, reject)
	require.Error(t, err)
}

func TestInsertManyValuesForcesDirectorySplitAndDouble(t *testing.T) {
	sm, cache := testHarness(t)
	ix, err := Create(sm, cache, zap.NewNop().Sugar(), "idx_id", "sum")
	require.NoError(t, err)

	const n = 80
	for i := int64(0); i < n; i++ {
		require.NoError(t, ix.Insert(i, block.Addr(i), i%3))
	}

	for i := int64(0); i < n; i++ {
		gotBlock, gotSlot, err := ix.Lookup(i, alwaysMatch)
		require.NoErrorf(t, err, "value %d should be found after directory growth", i)
		require.Equal(t, block.Addr(i), gotBlock)
		require.EqualValues(t, i%3, gotSlot)
	}

	info, err := ix.readHashInfo()
	require.NoError(t, err)
	require.Greater(t, info.Modulo, int64(MainBucketSize))
}

func TestDeleteThenLookupMisses(t *testing.T) {
	sm, cache := testHarness(t)
	ix, err := Create(sm, cache, zap.NewNop().Sugar(), "idx_id", "sum")
	require.NoError(t, err)
	require.NoError(t, ix.Insert(11, block.Addr(2), 1))

	require.NoError(t, ix.Delete(11, alwaysMatch))

	_, _, err = ix.Lookup(11, alwaysMatch)
	require.Error(t, err)
}

func TestDeleteUnknownValueFails(t *testing.T) {
	sm, cache := testHarness(t)
	ix, err := Create(sm, cache, zap.NewNop().Sugar(), "idx_id", "sum")
	require.NoError(t, err)
	require.NoError(t, ix.Insert(1, block.Addr(1), 0))

	require.Error(t, ix.Delete(2, alwaysMatch))
}

func TestOpenAttachesToExistingIndexSegment(t *testing.T) {
	sm, cache := testHarness(t)
	ix, err := Create(sm, cache, zap.NewNop().Sugar(), "idx_id", "sum")
	require.NoError(t, err)
	require.NoError(t, ix.Insert(4, block.Addr(9), 0))

	reopened := Open(sm, cache, zap.NewNop().Sugar(), "idx_id", "sum")
	gotBlock, gotSlot, err := reopened.Lookup(4, alwaysMatch)
	require.NoError(t, err)
	require.Equal(t, block.Addr(9), gotBlock)
	require.EqualValues(t, 0, gotSlot)
}
