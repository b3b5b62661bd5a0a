// Package constraint implements L8: NOT NULL / UNIQUE / CHECK / BETWEEN /
// referential enforcement at insert, update, and delete. Built on
// internal/catalog's constraint registry for rule storage and
// internal/record for the row scans enforcement requires.
package constraint

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/nimbusdb/akdb/internal/block"
	"github.com/nimbusdb/akdb/internal/blockcache"
	"github.com/nimbusdb/akdb/internal/catalog"
	"github.com/nimbusdb/akdb/internal/record"
	"github.com/nimbusdb/akdb/internal/segment"
	"github.com/nimbusdb/akdb/pkg/errors"
)

// Engine enforces the constraint rules catalog.Catalog stores.
type Engine struct {
	sm    *segment.Map
	cache *blockcache.Cache
	cat   *catalog.Catalog
	log   *zap.SugaredLogger
}

// New binds an Engine to the segment map, cache, and catalog the rest of
// the system already uses.
func New(sm *segment.Map, cache *blockcache.Cache, cat *catalog.Catalog, log *zap.SugaredLogger) *Engine {
	return &Engine{sm: sm, cache: cache, cat: cat, log: log}
}

func attrIndex(header []block.AttributeDescriptor, name string) int {
	for i, a := range header {
		if a.Name == name {
			return i
		}
	}
	return -1
}

// checkOrder fixes the evaluation order CheckInsert enforces regardless of
// the order constraints were installed in.
var checkOrder = map[catalog.ConstraintKind]int{
	catalog.ConstraintNotNull:   0,
	catalog.ConstraintUnique:    1,
	catalog.ConstraintCheck:     2,
	catalog.ConstraintBetween:   3,
	catalog.ConstraintReference: 4,
}

// CheckInsert runs the insert-time check procedure in a fixed order:
// NOT NULL, UNIQUE, CHECK, BETWEEN, then referential.
func (e *Engine) CheckInsert(relation string, header []block.AttributeDescriptor, row []any) error {
	cts, err := e.cat.ListConstraints(relation)
	if err != nil {
		return err
	}
	sort.SliceStable(cts, func(i, j int) bool {
		return checkOrder[cts[i].Kind] < checkOrder[cts[j].Kind]
	})
	for _, ct := range cts {
		if err := e.checkOne(relation, header, row, ct); err != nil {
			return err
		}
	}
	return nil
}

// CheckUpdate runs the same check procedure against a row's post-update
// image.
func (e *Engine) CheckUpdate(relation string, header []block.AttributeDescriptor, row []any) error {
	return e.CheckInsert(relation, header, row)
}

func (e *Engine) checkOne(relation string, header []block.AttributeDescriptor, row []any, ct *catalog.Constraint) error {
	switch ct.Kind {
	case catalog.ConstraintNotNull:
		i := attrIndex(header, ct.Attribute)
		if i < 0 {
			return nil
		}
		if row[i] == nil {
			return errors.NewConstraintViolationError(ct.Name, relation, ct.Attribute, "NOT NULL constraint violated")
		}
		return nil

	case catalog.ConstraintUnique:
		i := attrIndex(header, ct.Attribute)
		if i < 0 {
			return nil
		}
		dup := false
		err := record.Scan(e.sm, e.cache, relation, func(_ record.RowAddr, existing []any) (bool, error) {
			if valuesEqual(existing[i], row[i]) {
				dup = true
				return false, nil
			}
			return true, nil
		})
		if err != nil {
			return err
		}
		if dup {
			return errors.NewConstraintViolationError(ct.Name, relation, ct.Attribute, "UNIQUE constraint violated")
		}
		return nil

	case catalog.ConstraintCheck:
		i := attrIndex(header, ct.Attribute)
		if i < 0 {
			return nil
		}
		ok, err := compareLiteral(row[i], ct.CheckOp, ct.CheckLiteral, header[i].Type)
		if err != nil {
			return err
		}
		if !ok {
			return errors.NewConstraintViolationError(ct.Name, relation, ct.Attribute, "CHECK constraint violated")
		}
		return nil

	case catalog.ConstraintBetween:
		i := attrIndex(header, ct.Attribute)
		if i < 0 {
			return nil
		}
		okLo, err := compareLiteral(row[i], ">=", ct.Lo, header[i].Type)
		if err != nil {
			return err
		}
		okHi, err := compareLiteral(row[i], "<=", ct.Hi, header[i].Type)
		if err != nil {
			return err
		}
		if !okLo || !okHi {
			return errors.NewConstraintViolationError(ct.Name, relation, ct.Attribute, "BETWEEN constraint violated")
		}
		return nil

	case catalog.ConstraintReference:
		i := attrIndex(header, ct.Attribute)
		if i < 0 {
			return nil
		}
		if row[i] == nil {
			if header[i].Integrity&block.IntegrityNotNull != 0 {
				return errors.NewConstraintViolationError(ct.Name, relation, ct.Attribute, "NOT NULL constraint violated")
			}
			return nil
		}
		refHeader, err := e.cat.GetRelation(ct.RefTable)
		if err != nil {
			return err
		}
		refIdx := attrIndex(refHeader.Header, ct.RefAttribute)
		if refIdx < 0 {
			return nil
		}
		found := false
		err = record.Scan(e.sm, e.cache, ct.RefTable, func(_ record.RowAddr, refRow []any) (bool, error) {
			if valuesEqual(refRow[refIdx], row[i]) {
				found = true
				return false, nil
			}
			return true, nil
		})
		if err != nil {
			return err
		}
		if !found {
			return errors.NewConstraintViolationError(ct.Name, relation, ct.Attribute, "referenced row does not exist")
		}
		return nil
	}
	return nil
}

// CheckDelete applies the referential actions declared against rows
// referencing relation when deletedRow is removed: RESTRICT, CASCADE, or
// SET NULL.
func (e *Engine) CheckDelete(relation string, header []block.AttributeDescriptor, deletedRow []any) error {
	referencing, err := e.cat.ListConstraintsReferencing(relation)
	if err != nil {
		return err
	}
	for _, ct := range referencing {
		refIdx := attrIndex(header, ct.RefAttribute)
		if refIdx < 0 {
			continue
		}
		refVal := deletedRow[refIdx]

		depInfo, err := e.cat.GetRelation(ct.Relation)
		if err != nil {
			return err
		}
		depIdx := attrIndex(depInfo.Header, ct.Attribute)
		if depIdx < 0 {
			continue
		}

		var dependents []record.RowAddr
		err = record.Scan(e.sm, e.cache, ct.Relation, func(addr record.RowAddr, row []any) (bool, error) {
			if valuesEqual(row[depIdx], refVal) {
				dependents = append(dependents, addr)
			}
			return true, nil
		})
		if err != nil {
			return err
		}
		if len(dependents) == 0 {
			continue
		}

		switch ct.Action {
		case catalog.ActionRestrict:
			return errors.NewConstraintViolationError(ct.Name, ct.Relation, ct.Attribute, "dependent rows exist, delete restricted")
		case catalog.ActionCascade:
			for _, addr := range dependents {
				if err := record.DeleteRow(e.cache, addr); err != nil {
					return err
				}
			}
		case catalog.ActionSetNull:
			for _, addr := range dependents {
				row, err := record.ReadRow(e.cache, depInfo.Header, addr)
				if err != nil {
					return err
				}
				row[depIdx] = nil
				if _, err := record.UpdateRow(e.sm, e.cache, ct.Relation, addr, row); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// InstallNotNull enforces the installation rule: NOT NULL can only be added
// if every existing row already has a non-null value in attribute.
func (e *Engine) InstallNotNull(relation string, header []block.AttributeDescriptor, attribute string) error {
	i := attrIndex(header, attribute)
	if i < 0 {
		return errors.NewSchemaViolationError(relation, attribute, "unknown attribute")
	}
	violated := false
	err := record.Scan(e.sm, e.cache, relation, func(_ record.RowAddr, row []any) (bool, error) {
		if row[i] == nil {
			violated = true
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return err
	}
	if violated {
		return errors.NewConstraintViolationError("", relation, attribute, "cannot install NOT NULL: existing rows contain null values")
	}
	return nil
}

// InstallUnique enforces the installation rule: UNIQUE can only be added if
// existing rows have no duplicate values on attribute.
func (e *Engine) InstallUnique(relation string, header []block.AttributeDescriptor, attribute string) error {
	i := attrIndex(header, attribute)
	if i < 0 {
		return errors.NewSchemaViolationError(relation, attribute, "unknown attribute")
	}
	seen := make(map[string]bool)
	dup := false
	err := record.Scan(e.sm, e.cache, relation, func(_ record.RowAddr, row []any) (bool, error) {
		key := fmt.Sprintf("%v", row[i])
		if seen[key] {
			dup = true
			return false, nil
		}
		seen[key] = true
		return true, nil
	})
	if err != nil {
		return err
	}
	if dup {
		return errors.NewConstraintViolationError("", relation, attribute, "cannot install UNIQUE: existing rows contain duplicate values")
	}
	return nil
}

func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// compareLiteral parses literal per t and compares it against v using op;
// strings compare lexicographically.
func compareLiteral(v any, op string, literal string, t block.Type) (bool, error) {
	switch t {
	case block.TypeInt:
		n, err := strconv.ParseInt(literal, 10, 64)
		if err != nil {
			return false, errors.NewSchemaViolationError("constraint", "", "invalid integer literal in constraint definition")
		}
		vi, ok := v.(int64)
		if !ok {
			return false, nil
		}
		return compareOrdered(float64(vi), float64(n), op), nil

	case block.TypeFloat:
		f, err := strconv.ParseFloat(literal, 64)
		if err != nil {
			return false, errors.NewSchemaViolationError("constraint", "", "invalid float literal in constraint definition")
		}
		vf, ok := v.(float64)
		if !ok {
			return false, nil
		}
		return compareOrdered(vf, f, op), nil

	case block.TypeVarchar:
		vs, ok := v.(string)
		if !ok {
			return false, nil
		}
		return compareStrings(vs, literal, op), nil

	case block.TypeBool:
		vb, ok := v.(bool)
		if !ok {
			return false, nil
		}
		lit := strings.EqualFold(literal, "true")
		switch op {
		case "=":
			return vb == lit, nil
		case "<>":
			return vb != lit, nil
		}
		return false, nil
	}
	return false, nil
}

func compareOrdered(v, lit float64, op string) bool {
	switch op {
	case "=":
		return v == lit
	case "<>":
		return v != lit
	case "<":
		return v < lit
	case ">":
		return v > lit
	case "<=":
		return v <= lit
	case ">=":
		return v >= lit
	}
	return false
}

func compareStrings(v, lit string, op string) bool {
	switch op {
	case "=":
		return v == lit
	case "<>":
		return v != lit
	case "<":
		return v < lit
	case ">":
		return v > lit
	case "<=":
		return v <= lit
	case ">=":
		return v >= lit
	}
	return false
}
