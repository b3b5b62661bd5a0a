package segment

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nimbusdb/akdb/internal/block"
	"github.com/nimbusdb/akdb/internal/blockcache"
	"github.com/nimbusdb/akdb/internal/diskmgr"
	"github.com/nimbusdb/akdb/pkg/options"
)

func testMap(t *testing.T) *Map {
	t.Helper()
	opts := options.NewDefaultOptions()
	opts.DataDir = t.TempDir()

	dm, err := diskmgr.Init(&diskmgr.Config{Options: &opts, Logger: zap.NewNop().Sugar()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = dm.Close() })

	cache, err := blockcache.New(&blockcache.Config{DiskManager: dm, Capacity: 64, Logger: zap.NewNop().Sugar()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	m, err := Open(&Config{DiskManager: dm, Cache: cache, Options: &opts, Logger: zap.NewNop().Sugar()})
	require.NoError(t, err)
	return m
}

var testHeader = []block.AttributeDescriptor{{Name: "id", Type: block.TypeInt}}

func TestCreateSegmentThenAddressesOf(t *testing.T) {
	m := testMap(t)

	first, err := m.CreateSegment("accounts", block.KindData, CategoryTable, testHeader)
	require.NoError(t, err)

	info, err := m.AddressesOf("accounts")
	require.NoError(t, err)
	require.Equal(t, first, info.FirstAddr())
	require.Equal(t, CategoryTable, info.Category)
	require.Len(t, info.Extents, 1)
}

func TestCreateSegmentRejectsDuplicateName(t *testing.T) {
	m := testMap(t)
	_, err := m.CreateSegment("accounts", block.KindData, CategoryTable, testHeader)
	require.NoError(t, err)

	_, err = m.CreateSegment("accounts", block.KindData, CategoryTable, testHeader)
	require.Error(t, err)
}

func TestExtendSegmentAppendsExtent(t *testing.T) {
	m := testMap(t)
	_, err := m.CreateSegment("accounts", block.KindData, CategoryTable, testHeader)
	require.NoError(t, err)

	_, _, err = m.ExtendSegment("accounts")
	require.NoError(t, err)

	info, err := m.AddressesOf("accounts")
	require.NoError(t, err)
	require.Len(t, info.Extents, 2)
}

func TestDeleteSegmentRemovesCatalogRow(t *testing.T) {
	m := testMap(t)
	_, err := m.CreateSegment("accounts", block.KindData, CategoryTable, testHeader)
	require.NoError(t, err)

	require.NoError(t, m.DeleteSegment("accounts", block.KindData))

	_, err = m.AddressesOf("accounts")
	require.Error(t, err)
}

func TestDeleteSegmentRejectsKindMismatch(t *testing.T) {
	m := testMap(t)
	_, err := m.CreateSegment("accounts", block.KindData, CategoryTable, testHeader)
	require.NoError(t, err)

	require.Error(t, m.DeleteSegment("accounts", block.KindIndexInfo))
}

func TestListReturnsInsertionOrder(t *testing.T) {
	m := testMap(t)
	_, err := m.CreateSegment("a", block.KindData, CategoryTable, testHeader)
	require.NoError(t, err)
	_, err = m.CreateSegment("b", block.KindData, CategoryTable, testHeader)
	require.NoError(t, err)

	names := make([]string, 0)
	for _, info := range m.List() {
		names = append(names, info.Name)
	}
	require.Equal(t, []string{"a", "b"}, names)
}
