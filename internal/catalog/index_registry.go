package catalog

import (
	"strings"

	"github.com/nimbusdb/akdb/internal/record"
	"github.com/nimbusdb/akdb/pkg/errors"
)

// RegisterIndex catalogues a newly built hash index.
func (c *Catalog) RegisterIndex(info *IndexInfo) error {
	exists := false
	err := record.Scan(c.sm, c.cache, indexSegment, func(_ record.RowAddr, row []any) (bool, error) {
		if row[0].(string) == info.Name {
			exists = true
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return err
	}
	if exists {
		return errors.NewDuplicateNameError("index", info.Name)
	}

	values := []any{info.Name, info.Relation, strings.Join(info.Attributes, ","), info.Segment}
	_, err = record.Insert(c.sm, c.cache, indexSegment, values)
	return err
}

// GetIndex resolves an index by name.
func (c *Catalog) GetIndex(name string) (*IndexInfo, error) {
	var found *IndexInfo
	err := record.Scan(c.sm, c.cache, indexSegment, func(_ record.RowAddr, row []any) (bool, error) {
		if row[0].(string) == name {
			found = &IndexInfo{Name: row[0].(string), Relation: row[1].(string), Attributes: strings.Split(row[2].(string), ","), Segment: row[3].(string)}
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, errors.NewNotFoundError(name)
	}
	return found, nil
}

// ListIndexes returns every index registered on relation.
func (c *Catalog) ListIndexes(relation string) ([]*IndexInfo, error) {
	var out []*IndexInfo
	err := record.Scan(c.sm, c.cache, indexSegment, func(_ record.RowAddr, row []any) (bool, error) {
		if row[1].(string) == relation {
			out = append(out, &IndexInfo{Name: row[0].(string), Relation: row[1].(string), Attributes: strings.Split(row[2].(string), ","), Segment: row[3].(string)})
		}
		return true, nil
	})
	return out, err
}

// DropIndex removes an index's catalog row (its hash segment is dropped
// separately by the caller).
func (c *Catalog) DropIndex(name string) error {
	return c.deleteMatching(indexSegment, func(row []any) bool { return row[0].(string) == name })
}

// RegisterNamed stores a bare (name, definition) row for the storage-only
// view/sequence/trigger/privilege catalogs: AKDB persists their definitions
// but does not execute view expansion, sequence advancement, trigger
// firing, or privilege checks.
func (c *Catalog) RegisterNamed(segmentName, name, definition string) error {
	_, err := record.Insert(c.sm, c.cache, segmentName, []any{name, definition})
	return err
}

// GetNamed looks up a bare (name, definition) row by name.
func (c *Catalog) GetNamed(segmentName, name string) (string, error) {
	var def string
	found := false
	err := record.Scan(c.sm, c.cache, segmentName, func(_ record.RowAddr, row []any) (bool, error) {
		if row[0].(string) == name {
			def = row[1].(string)
			found = true
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return "", err
	}
	if !found {
		return "", errors.NewNotFoundError(name)
	}
	return def, nil
}

// ViewSegment, SequenceSegment, TriggerSegment, and PrivilegeSegment name
// the bare storage-only catalogs RegisterNamed/GetNamed operate on.
const (
	ViewSegment      = viewSegment
	SequenceSegment  = sequenceSegment
	TriggerSegment   = triggerSegment
	PrivilegeSegment = privilegeSegment
)
