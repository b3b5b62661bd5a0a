package engine

import (
	"github.com/nimbusdb/akdb/internal/block"
	"github.com/nimbusdb/akdb/internal/record"
	"github.com/nimbusdb/akdb/internal/redolog"
	"github.com/nimbusdb/akdb/internal/relalg"
)

// Select runs SELECT projection FROM table WHERE predicate, consulting the
// redo log's query cache first and materializing the result through
// internal/relalg's Select/Project operators when the cache misses.
// projection empty means "all attributes"; predicate empty means "no
// filter".
func (e *Engine) Select(table string, projection []string, predicate []relalg.Token) ([]string, [][]any, error) {
	e.mu.Lock()
	e.assertNotLocked()
	defer func() { e.clearLocked(); e.mu.Unlock() }()

	if e.closed.Load() {
		return nil, nil, ErrEngineClosed
	}

	queryID := redolog.BuildQueryID(table, projection, predicate)
	if payload, ok := e.redo.LookupSelect(table, queryID); ok {
		return payload.Columns, payload.Rows, nil
	}

	rel, err := e.catalog.GetRelation(table)
	if err != nil {
		return nil, nil, err
	}

	workSeg := table
	header := rel.Header
	var temps []string
	defer func() {
		for _, t := range temps {
			_ = e.operators.DropTemp(t)
		}
	}()

	if len(predicate) > 0 {
		sel, err := e.operators.Select(header, workSeg, predicate)
		if err != nil {
			return nil, nil, err
		}
		temps = append(temps, sel)
		workSeg = sel
	}

	if len(projection) > 0 {
		proj, projHeader, err := e.operators.Project(header, workSeg, projection)
		if err != nil {
			return nil, nil, err
		}
		temps = append(temps, proj)
		workSeg = proj
		header = projHeader
	}

	var rows [][]any
	err = record.Scan(e.segments, e.cache, workSeg, func(_ record.RowAddr, row []any) (bool, error) {
		rows = append(rows, append([]any{}, row...))
		return true, nil
	})
	if err != nil {
		return nil, nil, err
	}

	columns := make([]string, len(header))
	for i, a := range header {
		columns[i] = a.Name
	}

	if err := e.redo.RecordSelect(table, queryID, columns, rows); err != nil {
		return nil, nil, err
	}
	return columns, rows, nil
}

// NamesOf renders header's attribute names in declared order.
func NamesOf(header []block.AttributeDescriptor) []string {
	names := make([]string, len(header))
	for i, a := range header {
		names[i] = a.Name
	}
	return names
}
