package blockcache

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nimbusdb/akdb/internal/block"
	"github.com/nimbusdb/akdb/internal/diskmgr"
	"github.com/nimbusdb/akdb/pkg/options"
)

func testDisk(t *testing.T) *diskmgr.DiskManager {
	t.Helper()
	opts := options.NewDefaultOptions()
	opts.DataDir = t.TempDir()
	dm, err := diskmgr.Init(&diskmgr.Config{Options: &opts, Logger: zap.NewNop().Sugar()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = dm.Close() })
	return dm
}

func TestGetFetchesFromDiskOnMiss(t *testing.T) {
	dm := testDisk(t)
	c, err := New(&Config{DiskManager: dm, Capacity: 2, Logger: zap.NewNop().Sugar()})
	require.NoError(t, err)

	addr, _, err := dm.AllocateExtent(1, block.KindData)
	require.NoError(t, err)

	b, err := c.Get(addr)
	require.NoError(t, err)
	require.Equal(t, block.KindData, b.Kind)
}

func TestMarkDirtyThenFlushPersists(t *testing.T) {
	dm := testDisk(t)
	c, err := New(&Config{DiskManager: dm, Capacity: 4, Logger: zap.NewNop().Sugar()})
	require.NoError(t, err)

	addr, _, err := dm.AllocateExtent(1, block.KindData)
	require.NoError(t, err)

	b, err := c.Get(addr)
	require.NoError(t, err)
	b.Kind = block.KindTemp
	require.NoError(t, c.MarkDirty(addr))
	require.NoError(t, c.Flush(addr))

	fresh, err := dm.ReadBlock(addr)
	require.NoError(t, err)
	require.Equal(t, block.KindTemp, fresh.Kind)
}

func TestEvictionFlushesDirtyVictim(t *testing.T) {
	dm := testDisk(t)
	c, err := New(&Config{DiskManager: dm, Capacity: 1, Logger: zap.NewNop().Sugar()})
	require.NoError(t, err)

	a1, _, err := dm.AllocateExtent(1, block.KindData)
	require.NoError(t, err)
	a2, _, err := dm.AllocateExtent(1, block.KindData)
	require.NoError(t, err)

	b1, err := c.Get(a1)
	require.NoError(t, err)
	b1.Kind = block.KindTemp
	require.NoError(t, c.MarkDirty(a1))

	// Admitting a2 while at capacity 1 evicts a1, flushing it first.
	_, err = c.Get(a2)
	require.NoError(t, err)

	fresh, err := dm.ReadBlock(a1)
	require.NoError(t, err)
	require.Equal(t, block.KindTemp, fresh.Kind)
}

func TestCloseFlushesAllDirtyFrames(t *testing.T) {
	dm := testDisk(t)
	c, err := New(&Config{DiskManager: dm, Capacity: 4, Logger: zap.NewNop().Sugar()})
	require.NoError(t, err)

	addr, _, err := dm.AllocateExtent(1, block.KindData)
	require.NoError(t, err)

	b, err := c.Get(addr)
	require.NoError(t, err)
	b.Kind = block.KindTemp
	require.NoError(t, c.MarkDirty(addr))
	require.NoError(t, c.Close())

	fresh, err := dm.ReadBlock(addr)
	require.NoError(t, err)
	require.Equal(t, block.KindTemp, fresh.Kind)
}

func TestMarkDirtyOnNonResidentFails(t *testing.T) {
	dm := testDisk(t)
	c, err := New(&Config{DiskManager: dm, Capacity: 4, Logger: zap.NewNop().Sugar()})
	require.NoError(t, err)

	require.Error(t, c.MarkDirty(block.Addr(999)))
}
