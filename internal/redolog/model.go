// Package redolog implements L6: a bounded redo log ring, doubling as the
// SELECT result cache keyed by canonical query identifier. Generalized
// from an append-only log's "rotate to a new file on overflow" discipline
// to "archive the whole ring, then reset".
package redolog

import (
	"sync"

	"go.uber.org/zap"

	"github.com/nimbusdb/akdb/internal/blockcache"
	"github.com/nimbusdb/akdb/internal/catalog"
	"github.com/nimbusdb/akdb/pkg/options"
)

// OperationCode tags what kind of statement produced a log entry.
type OperationCode uint8

const (
	OpInsert OperationCode = iota
	OpUpdate
	OpDelete
	OpSelect
)

// String renders an OperationCode for logging.
func (c OperationCode) String() string {
	switch c {
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	case OpSelect:
		return "select"
	default:
		return "unknown"
	}
}

// QueryPayload is the owned, value-copied materialization of a SELECT
// result: schema header, row count, and deep-copied row cells, so a
// cached result never aliases the caller's slices.
type QueryPayload struct {
	QueryID string
	Columns []string
	Rows    [][]any
}

// Entry is one redo log slot: (operation_code, table_name, timestamp,
// finished_flag, payload). For INSERT/UPDATE/DELETE, Values holds the
// affected row's column values in declared order; for SELECT, Query holds
// the canonical query identifier and cached result.
type Entry struct {
	Op        OperationCode
	Table     string
	Timestamp uint64
	Finished  bool
	Values    []any
	Query     *QueryPayload
}

// Log is the bounded ring of entries plus the SELECT result cache it
// doubles as.
type Log struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int
	sequence uint64

	catalog *catalog.Catalog
	cache   *blockcache.Cache
	options *options.Options
	log     *zap.SugaredLogger
}

// Config bundles a Log's collaborators.
type Config struct {
	Catalog *catalog.Catalog
	Cache   *blockcache.Cache
	Options *options.Options
	Logger  *zap.SugaredLogger
}
