package engine

import (
	"github.com/nimbusdb/akdb/internal/block"
	"github.com/nimbusdb/akdb/internal/catalog"
	"github.com/nimbusdb/akdb/internal/hashindex"
	"github.com/nimbusdb/akdb/internal/record"
	"github.com/nimbusdb/akdb/pkg/errors"
)

// CreateIndex builds a hash index over relation's attributes and populates
// it by running the same insert procedure once per existing row.
func (e *Engine) CreateIndex(name, relation string, attributes []string) error {
	e.mu.Lock()
	e.assertNotLocked()
	defer func() { e.clearLocked(); e.mu.Unlock() }()

	if e.closed.Load() {
		return ErrEngineClosed
	}

	rel, err := e.catalog.GetRelation(relation)
	if err != nil {
		return err
	}
	types := make([]block.Type, len(attributes))
	for i, a := range attributes {
		j := attrIndexOf(rel.Header, a)
		if j < 0 {
			return errors.NewSchemaViolationError(relation, a, "unknown attribute in index definition")
		}
		types[i] = rel.Header[j].Type
	}

	segName := "idx_" + name
	idx, err := hashindex.Create(e.segments, e.cache, e.log, segName, e.options.HashMixer)
	if err != nil {
		return err
	}

	err = record.Scan(e.segments, e.cache, relation, func(addr record.RowAddr, row []any) (bool, error) {
		vals := make([]any, len(attributes))
		for i, a := range attributes {
			vals[i] = row[attrIndexOf(rel.Header, a)]
		}
		hv := hashindex.HashValue(e.options.HashMixer, types, vals)
		return true, idx.Insert(hv, addr.Block, int64(addr.FirstSlot))
	})
	if err != nil {
		return err
	}

	if err := e.catalog.RegisterIndex(&catalog.IndexInfo{
		Name: name, Relation: relation, Attributes: attributes, Segment: segName,
	}); err != nil {
		return err
	}

	e.indexMu.Lock()
	e.indexes[name] = idx
	e.indexMu.Unlock()
	return nil
}

// DropIndex removes a previously created hash index.
func (e *Engine) DropIndex(name string) error {
	e.mu.Lock()
	e.assertNotLocked()
	defer func() { e.clearLocked(); e.mu.Unlock() }()

	if e.closed.Load() {
		return ErrEngineClosed
	}

	info, err := e.catalog.GetIndex(name)
	if err != nil {
		return err
	}
	if err := e.segments.DeleteSegment(info.Segment, block.KindIndexInfo); err != nil {
		return err
	}
	if err := e.catalog.DropIndex(name); err != nil {
		return err
	}

	e.indexMu.Lock()
	delete(e.indexes, name)
	e.indexMu.Unlock()
	return nil
}

// hashIndexFor returns the live Index for a catalogued index, opening it
// against its segment on first use and caching the result.
func (e *Engine) hashIndexFor(info *catalog.IndexInfo) *hashindex.Index {
	e.indexMu.Lock()
	defer e.indexMu.Unlock()

	if idx, ok := e.indexes[info.Name]; ok {
		return idx
	}
	idx := hashindex.Open(e.segments, e.cache, e.log, info.Segment, e.options.HashMixer)
	e.indexes[info.Name] = idx
	return idx
}

// maintainIndexesInsert adds a freshly inserted row to every index
// registered against relation.
func (e *Engine) maintainIndexesInsert(relation string, header []block.AttributeDescriptor, addr record.RowAddr, row []any) error {
	infos, err := e.catalog.ListIndexes(relation)
	if err != nil {
		return err
	}
	for _, info := range infos {
		idx := e.hashIndexFor(info)
		hv, err := e.indexHashOf(header, info, row)
		if err != nil {
			return err
		}
		if err := idx.Insert(hv, addr.Block, int64(addr.FirstSlot)); err != nil {
			return err
		}
	}
	return nil
}

// maintainIndexesDelete removes a row's entry from every index registered
// against relation, matching on the exact (block, slot) it occupied so a
// hash collision with another live row is never disturbed.
func (e *Engine) maintainIndexesDelete(relation string, header []block.AttributeDescriptor, addr record.RowAddr, row []any) error {
	infos, err := e.catalog.ListIndexes(relation)
	if err != nil {
		return err
	}
	for _, info := range infos {
		idx := e.hashIndexFor(info)
		hv, err := e.indexHashOf(header, info, row)
		if err != nil {
			return err
		}
		wantBlock, wantSlot := addr.Block, int64(addr.FirstSlot)
		err = idx.Delete(hv, func(rowBlock block.Addr, rowSlot int64) (bool, error) {
			return rowBlock == wantBlock && rowSlot == wantSlot, nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) indexHashOf(header []block.AttributeDescriptor, info *catalog.IndexInfo, row []any) (int64, error) {
	types := make([]block.Type, len(info.Attributes))
	vals := make([]any, len(info.Attributes))
	for i, a := range info.Attributes {
		j := attrIndexOf(header, a)
		if j < 0 {
			return 0, errors.NewSchemaViolationError(info.Relation, a, "indexed attribute no longer exists")
		}
		types[i] = header[j].Type
		vals[i] = row[j]
	}
	return hashindex.HashValue(e.options.HashMixer, types, vals), nil
}
