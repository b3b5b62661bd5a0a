package akdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nimbusdb/akdb/internal/block"
	"github.com/nimbusdb/akdb/internal/catalog"
	"github.com/nimbusdb/akdb/pkg/options"
)

func openTestInstance(t *testing.T) *Instance {
	t.Helper()
	dir := t.TempDir()
	inst, err := Open(context.Background(), "akdb-test", options.WithDataDir(dir))
	require.NoError(t, err)
	t.Cleanup(func() { _ = inst.Close(context.Background()) })
	return inst
}

var peopleHeader = []Attribute{
	{Name: "id", Type: block.TypeInt},
	{Name: "name", Type: block.TypeVarchar},
}

func TestOpenCreateTableInsertAndSelect(t *testing.T) {
	inst := openTestInstance(t)
	ctx := context.Background()

	require.NoError(t, inst.CreateTable(ctx, "people", peopleHeader))

	_, err := inst.Insert(ctx, "people", []any{int64(1), "ava"})
	require.NoError(t, err)

	cols, rows, err := inst.Select(ctx, "people", nil, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"id", "name"}, cols)
	require.Equal(t, [][]any{{int64(1), "ava"}}, rows)
}

func TestUpdateThenDeleteRoundTrip(t *testing.T) {
	inst := openTestInstance(t)
	ctx := context.Background()
	require.NoError(t, inst.CreateTable(ctx, "people", peopleHeader))

	addr, err := inst.Insert(ctx, "people", []any{int64(1), "ava"})
	require.NoError(t, err)

	newAddr, err := inst.Update(ctx, "people", addr, []any{int64(1), "eve"})
	require.NoError(t, err)

	require.NoError(t, inst.Delete(ctx, "people", newAddr))

	_, rows, err := inst.Select(ctx, "people", nil, nil)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestAddConstraintThenDropConstraint(t *testing.T) {
	inst := openTestInstance(t)
	ctx := context.Background()
	require.NoError(t, inst.CreateTable(ctx, "people", peopleHeader))

	require.NoError(t, inst.AddConstraint(ctx, &Constraint{
		Name: "c1", Relation: "people", Attribute: "name", Kind: catalog.ConstraintNotNull,
	}))
	_, err := inst.Insert(ctx, "people", []any{int64(1), nil})
	require.Error(t, err)

	require.NoError(t, inst.DropConstraint(ctx, "c1"))
	_, err = inst.Insert(ctx, "people", []any{int64(1), nil})
	require.NoError(t, err)
}

func TestCreateIndexThenDropIndex(t *testing.T) {
	inst := openTestInstance(t)
	ctx := context.Background()
	require.NoError(t, inst.CreateTable(ctx, "people", peopleHeader))
	_, err := inst.Insert(ctx, "people", []any{int64(1), "ava"})
	require.NoError(t, err)

	require.NoError(t, inst.CreateIndex(ctx, "idx_name", "people", []string{"name"}))
	require.NoError(t, inst.DropIndex(ctx, "idx_name"))
}

func TestDropTableThenOperationsFail(t *testing.T) {
	inst := openTestInstance(t)
	ctx := context.Background()
	require.NoError(t, inst.CreateTable(ctx, "people", peopleHeader))
	require.NoError(t, inst.DropTable(ctx, "people"))

	_, err := inst.Insert(ctx, "people", []any{int64(1), "ava"})
	require.Error(t, err)
}

func TestCloseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	inst, err := Open(context.Background(), "akdb-test", options.WithDataDir(dir))
	require.NoError(t, err)

	require.NoError(t, inst.Close(context.Background()))
	require.NoError(t, inst.Close(context.Background()))
}
