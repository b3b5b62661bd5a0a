package constraint

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nimbusdb/akdb/internal/block"
	"github.com/nimbusdb/akdb/internal/blockcache"
	"github.com/nimbusdb/akdb/internal/catalog"
	"github.com/nimbusdb/akdb/internal/diskmgr"
	"github.com/nimbusdb/akdb/internal/record"
	"github.com/nimbusdb/akdb/internal/segment"
	"github.com/nimbusdb/akdb/pkg/options"
)

var accountsHeader = []block.AttributeDescriptor{
	{Name: "id", Type: block.TypeInt},
	{Name: "email", Type: block.TypeVarchar},
	{Name: "balance", Type: block.TypeInt},
}

var sessionsHeader = []block.AttributeDescriptor{
	{Name: "id", Type: block.TypeInt},
	{Name: "account_id", Type: block.TypeInt},
}

var sessionsHeaderNotNullFK = []block.AttributeDescriptor{
	{Name: "id", Type: block.TypeInt},
	{Name: "account_id", Type: block.TypeInt, Integrity: block.IntegrityNotNull},
}

func testEngine(t *testing.T) (*Engine, *segment.Map, *blockcache.Cache, *catalog.Catalog) {
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

	cat, err := catalog.Open(&catalog.Config{SegmentMap: sm, Cache: cache, Logger: zap.NewNop().Sugar()})
	require.NoError(t, err)

	return New(sm, cache, cat, zap.NewNop().Sugar()), sm, cache, cat
}

func mustCreateRelation(t *testing.T, cat *catalog.Catalog, sm *segment.Map, name string, header []block.AttributeDescriptor) {
	t.Helper()
	require.NoError(t, cat.CreateRelation(name, header))
	_, err := sm.AddressesOf(name)
	require.NoError(t, err)
}

func TestCheckInsertRejectsNullOnNotNullAttribute(t *testing.T) {
	e, sm, cache, cat := testEngine(t)
	mustCreateRelation(t, cat, sm, "accounts", accountsHeader)
	require.NoError(t, cat.AddConstraint(&catalog.Constraint{
		Name: "c1", Relation: "accounts", Attribute: "email", Kind: catalog.ConstraintNotNull,
	}))
	_ = cache

	err := e.CheckInsert("accounts", accountsHeader, []any{int64(1), nil, int64(0)})
	require.Error(t, err)

	require.NoError(t, e.CheckInsert("accounts", accountsHeader, []any{int64(1), "a@b.com", int64(0)}))
}

func TestCheckInsertRejectsDuplicateOnUniqueAttribute(t *testing.T) {
	e, sm, cache, cat := testEngine(t)
	mustCreateRelation(t, cat, sm, "accounts", accountsHeader)
	require.NoError(t, cat.AddConstraint(&catalog.Constraint{
		Name: "c1", Relation: "accounts", Attribute: "email", Kind: catalog.ConstraintUnique,
	}))
	_, err := record.Insert(sm, cache, "accounts", []any{int64(1), "a@b.com", int64(0)})
	require.NoError(t, err)

	err = e.CheckInsert("accounts", accountsHeader, []any{int64(2), "a@b.com", int64(0)})
	require.Error(t, err)

	require.NoError(t, e.CheckInsert("accounts", accountsHeader, []any{int64(2), "c@d.com", int64(0)}))
}

func TestCheckInsertEnforcesCheckConstraint(t *testing.T) {
	e, sm, _, cat := testEngine(t)
	mustCreateRelation(t, cat, sm, "accounts", accountsHeader)
	require.NoError(t, cat.AddConstraint(&catalog.Constraint{
		Name: "c1", Relation: "accounts", Attribute: "balance", Kind: catalog.ConstraintCheck,
		CheckOp: ">=", CheckLiteral: "0",
	}))

	require.Error(t, e.CheckInsert("accounts", accountsHeader, []any{int64(1), "a@b.com", int64(-5)}))
	require.NoError(t, e.CheckInsert("accounts", accountsHeader, []any{int64(1), "a@b.com", int64(5)}))
}

func TestCheckInsertEnforcesBetweenConstraint(t *testing.T) {
	e, sm, _, cat := testEngine(t)
	mustCreateRelation(t, cat, sm, "accounts", accountsHeader)
	require.NoError(t, cat.AddConstraint(&catalog.Constraint{
		Name: "c1", Relation: "accounts", Attribute: "balance", Kind: catalog.ConstraintBetween,
		Lo: "0", Hi: "100",
	}))

	require.Error(t, e.CheckInsert("accounts", accountsHeader, []any{int64(1), "a@b.com", int64(500)}))
	require.NoError(t, e.CheckInsert("accounts", accountsHeader, []any{int64(1), "a@b.com", int64(50)}))
}

func TestCheckInsertEnforcesReferenceConstraint(t *testing.T) {
	e, sm, cache, cat := testEngine(t)
	mustCreateRelation(t, cat, sm, "accounts", accountsHeader)
	mustCreateRelation(t, cat, sm, "sessions", sessionsHeader)
	require.NoError(t, cat.AddConstraint(&catalog.Constraint{
		Name: "fk1", Relation: "sessions", Attribute: "account_id",
		Kind: catalog.ConstraintReference, RefTable: "accounts", RefAttribute: "id", Action: catalog.ActionRestrict,
	}))

	err := e.CheckInsert("sessions", sessionsHeader, []any{int64(1), int64(99)})
	require.Error(t, err)

	_, err = record.Insert(sm, cache, "accounts", []any{int64(99), "a@b.com", int64(0)})
	require.NoError(t, err)

	require.NoError(t, e.CheckInsert("sessions", sessionsHeader, []any{int64(1), int64(99)}))
}

func TestCheckInsertReferenceRejectsNullOnNotNullForeignKey(t *testing.T) {
	e, sm, _, cat := testEngine(t)
	mustCreateRelation(t, cat, sm, "accounts", accountsHeader)
	mustCreateRelation(t, cat, sm, "sessions", sessionsHeaderNotNullFK)
	require.NoError(t, cat.AddConstraint(&catalog.Constraint{
		Name: "fk1", Relation: "sessions", Attribute: "account_id",
		Kind: catalog.ConstraintReference, RefTable: "accounts", RefAttribute: "id", Action: catalog.ActionRestrict,
	}))

	err := e.CheckInsert("sessions", sessionsHeaderNotNullFK, []any{int64(1), nil})
	require.Error(t, err)
}

func TestCheckInsertReferenceAllowsNullOnNullableForeignKey(t *testing.T) {
	e, sm, _, cat := testEngine(t)
	mustCreateRelation(t, cat, sm, "accounts", accountsHeader)
	mustCreateRelation(t, cat, sm, "sessions", sessionsHeader)
	require.NoError(t, cat.AddConstraint(&catalog.Constraint{
		Name: "fk1", Relation: "sessions", Attribute: "account_id",
		Kind: catalog.ConstraintReference, RefTable: "accounts", RefAttribute: "id", Action: catalog.ActionRestrict,
	}))

	require.NoError(t, e.CheckInsert("sessions", sessionsHeader, []any{int64(1), nil}))
}

func TestCheckInsertEvaluatesNotNullBeforeReferenceRegardlessOfInstallOrder(t *testing.T) {
	e, sm, _, cat := testEngine(t)
	mustCreateRelation(t, cat, sm, "accounts", accountsHeader)
	mustCreateRelation(t, cat, sm, "sessions", sessionsHeaderNotNullFK)

	// Install REFERENCE before NOT NULL: catalog-scan order would evaluate
	// REFERENCE first unless CheckInsert re-sorts by kind.
	require.NoError(t, cat.AddConstraint(&catalog.Constraint{
		Name: "fk1", Relation: "sessions", Attribute: "account_id",
		Kind: catalog.ConstraintReference, RefTable: "accounts", RefAttribute: "id", Action: catalog.ActionRestrict,
	}))
	require.NoError(t, cat.AddConstraint(&catalog.Constraint{
		Name: "c1", Relation: "sessions", Attribute: "account_id", Kind: catalog.ConstraintNotNull,
	}))

	err := e.CheckInsert("sessions", sessionsHeaderNotNullFK, []any{int64(1), nil})
	require.Error(t, err)
	require.Contains(t, err.Error(), "NOT NULL")
}

func TestCheckDeleteRestrictBlocksWhenDependentsExist(t *testing.T) {
	e, sm, cache, cat := testEngine(t)
	mustCreateRelation(t, cat, sm, "accounts", accountsHeader)
	mustCreateRelation(t, cat, sm, "sessions", sessionsHeader)
	require.NoError(t, cat.AddConstraint(&catalog.Constraint{
		Name: "fk1", Relation: "sessions", Attribute: "account_id",
		Kind: catalog.ConstraintReference, RefTable: "accounts", RefAttribute: "id", Action: catalog.ActionRestrict,
	}))
	accountRow := []any{int64(1), "a@b.com", int64(0)}
	_, err := record.Insert(sm, cache, "accounts", accountRow)
	require.NoError(t, err)
	_, err = record.Insert(sm, cache, "sessions", []any{int64(1), int64(1)})
	require.NoError(t, err)

	err = e.CheckDelete("accounts", accountsHeader, accountRow)
	require.Error(t, err)
}

func TestCheckDeleteCascadeRemovesDependents(t *testing.T) {
	e, sm, cache, cat := testEngine(t)
	mustCreateRelation(t, cat, sm, "accounts", accountsHeader)
	mustCreateRelation(t, cat, sm, "sessions", sessionsHeader)
	require.NoError(t, cat.AddConstraint(&catalog.Constraint{
		Name: "fk1", Relation: "sessions", Attribute: "account_id",
		Kind: catalog.ConstraintReference, RefTable: "accounts", RefAttribute: "id", Action: catalog.ActionCascade,
	}))
	accountRow := []any{int64(1), "a@b.com", int64(0)}
	_, err := record.Insert(sm, cache, "accounts", accountRow)
	require.NoError(t, err)
	sessAddr, err := record.Insert(sm, cache, "sessions", []any{int64(1), int64(1)})
	require.NoError(t, err)

	require.NoError(t, e.CheckDelete("accounts", accountsHeader, accountRow))

	_, err = record.ReadRow(cache, sessionsHeader, sessAddr)
	require.Error(t, err)
}

func TestCheckDeleteSetNullNullsOutDependents(t *testing.T) {
	e, sm, cache, cat := testEngine(t)
	mustCreateRelation(t, cat, sm, "accounts", accountsHeader)
	mustCreateRelation(t, cat, sm, "sessions", sessionsHeader)
	require.NoError(t, cat.AddConstraint(&catalog.Constraint{
		Name: "fk1", Relation: "sessions", Attribute: "account_id",
		Kind: catalog.ConstraintReference, RefTable: "accounts", RefAttribute: "id", Action: catalog.ActionSetNull,
	}))
	accountRow := []any{int64(1), "a@b.com", int64(0)}
	_, err := record.Insert(sm, cache, "accounts", accountRow)
	require.NoError(t, err)
	sessAddr, err := record.Insert(sm, cache, "sessions", []any{int64(1), int64(1)})
	require.NoError(t, err)

	require.NoError(t, e.CheckDelete("accounts", accountsHeader, accountRow))

	row, err := record.ReadRow(cache, sessionsHeader, sessAddr)
	require.NoError(t, err)
	require.Nil(t, row[1])
}

func TestInstallNotNullRejectsExistingNulls(t *testing.T) {
	e, sm, cache, cat := testEngine(t)
	mustCreateRelation(t, cat, sm, "accounts", accountsHeader)
	_, err := record.Insert(sm, cache, "accounts", []any{int64(1), nil, int64(0)})
	require.NoError(t, err)

	require.Error(t, e.InstallNotNull("accounts", accountsHeader, "email"))
}

func TestInstallNotNullAcceptsWhenNoNulls(t *testing.T) {
	e, sm, cache, cat := testEngine(t)
	mustCreateRelation(t, cat, sm, "accounts", accountsHeader)
	_, err := record.Insert(sm, cache, "accounts", []any{int64(1), "a@b.com", int64(0)})
	require.NoError(t, err)

	require.NoError(t, e.InstallNotNull("accounts", accountsHeader, "email"))
}

func TestInstallUniqueRejectsExistingDuplicates(t *testing.T) {
	e, sm, cache, cat := testEngine(t)
	mustCreateRelation(t, cat, sm, "accounts", accountsHeader)
	_, err := record.Insert(sm, cache, "accounts", []any{int64(1), "a@b.com", int64(0)})
	require.NoError(t, err)
	_, err = record.Insert(sm, cache, "accounts", []any{int64(2), "a@b.com", int64(0)})
	require.NoError(t, err)

	require.Error(t, e.InstallUnique("accounts", accountsHeader, "email"))
}
