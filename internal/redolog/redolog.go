package redolog

import (
	"github.com/nimbusdb/akdb/pkg/errors"
)

// New builds a Log bounded to config.Options.MaxRedoLogEntries.
func New(config *Config) (*Log, error) {
	if config == nil || config.Catalog == nil || config.Cache == nil || config.Options == nil || config.Logger == nil {
		return nil, errors.NewValidationError(
			nil, errors.ErrorCodeInvalidInput, "redo log configuration is required",
		).WithField("config").WithRule("required")
	}
	capacity := config.Options.MaxRedoLogEntries
	if capacity <= 0 {
		capacity = 256
	}
	return &Log{
		capacity: capacity,
		catalog:  config.Catalog,
		cache:    config.Cache,
		options:  config.Options,
		log:      config.Logger,
	}, nil
}

// RecordMutation appends an INSERT/UPDATE/DELETE entry. If the ring is
// full, the whole log is archived to stable storage and the write index
// reset before the new entry is appended.
func (l *Log) RecordMutation(op OperationCode, table string, values []any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) >= l.capacity {
		if err := l.archiveLocked(); err != nil {
			return err
		}
	}

	l.entries = append(l.entries, Entry{
		Op:        op,
		Table:     table,
		Timestamp: l.catalog.Tick(),
		Values:    append([]any{}, values...),
	})
	return nil
}

// LookupSelect returns a cached SELECT payload for queryID. An entry whose
// timestamp is strictly less than the source table's modification
// timestamp is treated as stale and ignored.
func (l *Log) LookupSelect(table, queryID string) (*QueryPayload, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lastMod := l.catalog.LastModified(table)
	for i := len(l.entries) - 1; i >= 0; i-- {
		e := &l.entries[i]
		if e.Op != OpSelect || e.Query == nil || e.Query.QueryID != queryID {
			continue
		}
		if e.Timestamp < lastMod {
			continue
		}
		return copyPayload(e.Query), true
	}
	return nil, false
}

// RecordSelect caches a freshly computed SELECT result. If the ring is
// full, the oldest SELECT entry (strict LRU over SELECT entries only) is
// evicted to make room; non-SELECT entries are never evicted this way.
func (l *Log) RecordSelect(table, queryID string, columns []string, rows [][]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) >= l.capacity {
		if !l.evictOldestSelectLocked() {
			if err := l.archiveLocked(); err != nil {
				return err
			}
		}
	}

	l.entries = append(l.entries, Entry{
		Op:        OpSelect,
		Table:     table,
		Timestamp: l.catalog.Tick(),
		Query:     copyPayload(&QueryPayload{QueryID: queryID, Columns: columns, Rows: rows}),
	})
	return nil
}

// evictOldestSelectLocked removes the oldest SELECT entry by timestamp, if
// any exists, reporting whether it found one to evict.
func (l *Log) evictOldestSelectLocked() bool {
	oldest := -1
	for i, e := range l.entries {
		if e.Op != OpSelect {
			continue
		}
		if oldest < 0 || e.Timestamp < l.entries[oldest].Timestamp {
			oldest = i
		}
	}
	if oldest < 0 {
		return false
	}
	l.entries = append(l.entries[:oldest], l.entries[oldest+1:]...)
	return true
}

// Commit marks every non-SELECT entry finished and flushes the block
// cache.
func (l *Log) Commit() error {
	l.mu.Lock()
	for i := range l.entries {
		if l.entries[i].Op != OpSelect {
			l.entries[i].Finished = true
		}
	}
	l.mu.Unlock()
	return l.cache.FlushAll()
}

// copyPayload deep-copies a QueryPayload so a cached result is a true value
// copy, independent of whatever slice the caller passed in.
func copyPayload(p *QueryPayload) *QueryPayload {
	if p == nil {
		return nil
	}
	columns := append([]string{}, p.Columns...)
	rows := make([][]any, len(p.Rows))
	for i, row := range p.Rows {
		rows[i] = append([]any{}, row...)
	}
	return &QueryPayload{QueryID: p.QueryID, Columns: columns, Rows: rows}
}
