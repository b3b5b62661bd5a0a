package engine

import (
	"github.com/nimbusdb/akdb/internal/record"
	"github.com/nimbusdb/akdb/internal/redolog"
)

// Insert enforces every installed constraint against values, writes the
// row, maintains any indexes registered on table, and records the
// mutation in the redo log.
func (e *Engine) Insert(table string, values []any) (RowAddr, error) {
	e.mu.Lock()
	e.assertNotLocked()
	defer func() { e.clearLocked(); e.mu.Unlock() }()

	if e.closed.Load() {
		return RowAddr{}, ErrEngineClosed
	}

	rel, err := e.catalog.GetRelation(table)
	if err != nil {
		return RowAddr{}, err
	}
	if err := e.rules.CheckInsert(table, rel.Header, values); err != nil {
		return RowAddr{}, err
	}

	addr, err := record.Insert(e.segments, e.cache, table, values)
	if err != nil {
		return RowAddr{}, err
	}
	if err := e.maintainIndexesInsert(table, rel.Header, addr, values); err != nil {
		return RowAddr{}, err
	}
	if err := e.redo.RecordMutation(redolog.OpInsert, table, values); err != nil {
		return RowAddr{}, err
	}
	e.catalog.Touch(table)
	return addr, nil
}

// Update enforces every installed constraint against the post-update
// image, rewrites the row (which may relocate it), re-indexes it, and
// records the mutation.
func (e *Engine) Update(table string, addr RowAddr, values []any) (RowAddr, error) {
	e.mu.Lock()
	e.assertNotLocked()
	defer func() { e.clearLocked(); e.mu.Unlock() }()

	if e.closed.Load() {
		return RowAddr{}, ErrEngineClosed
	}

	rel, err := e.catalog.GetRelation(table)
	if err != nil {
		return RowAddr{}, err
	}

	oldRow, err := record.ReadRow(e.cache, rel.Header, addr)
	if err != nil {
		return RowAddr{}, err
	}
	if err := e.rules.CheckUpdate(table, rel.Header, values); err != nil {
		return RowAddr{}, err
	}

	newAddr, err := record.UpdateRow(e.segments, e.cache, table, addr, values)
	if err != nil {
		return RowAddr{}, err
	}
	if err := e.maintainIndexesDelete(table, rel.Header, addr, oldRow); err != nil {
		return RowAddr{}, err
	}
	if err := e.maintainIndexesInsert(table, rel.Header, newAddr, values); err != nil {
		return RowAddr{}, err
	}
	if err := e.redo.RecordMutation(redolog.OpUpdate, table, values); err != nil {
		return RowAddr{}, err
	}
	e.catalog.Touch(table)
	return newAddr, nil
}

// Delete applies referential actions against dependent rows (RESTRICT
// fails the call, CASCADE/SETNULL mutate the dependents), removes the
// row's index entries, deletes the row, and records the mutation.
func (e *Engine) Delete(table string, addr RowAddr) error {
	e.mu.Lock()
	e.assertNotLocked()
	defer func() { e.clearLocked(); e.mu.Unlock() }()

	if e.closed.Load() {
		return ErrEngineClosed
	}

	rel, err := e.catalog.GetRelation(table)
	if err != nil {
		return err
	}

	oldRow, err := record.ReadRow(e.cache, rel.Header, addr)
	if err != nil {
		return err
	}
	if err := e.rules.CheckDelete(table, rel.Header, oldRow); err != nil {
		return err
	}
	if err := e.maintainIndexesDelete(table, rel.Header, addr, oldRow); err != nil {
		return err
	}
	if err := record.DeleteRow(e.cache, addr); err != nil {
		return err
	}
	if err := e.redo.RecordMutation(redolog.OpDelete, table, oldRow); err != nil {
		return err
	}
	e.catalog.Touch(table)
	return nil
}
