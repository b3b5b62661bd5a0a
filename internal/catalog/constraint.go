package catalog

import (
	"github.com/nimbusdb/akdb/internal/record"
	"github.com/nimbusdb/akdb/pkg/errors"
)

func constraintRow(c *Constraint) []any {
	return []any{
		c.Name, c.Relation, c.Attribute, string(c.Kind),
		c.CheckOp, c.CheckLiteral, c.Lo, c.Hi,
		c.RefTable, c.RefAttribute, string(c.Action),
	}
}

func rowToConstraint(row []any) *Constraint {
	return &Constraint{
		Name: row[0].(string), Relation: row[1].(string), Attribute: row[2].(string),
		Kind: ConstraintKind(row[3].(string)), CheckOp: row[4].(string), CheckLiteral: row[5].(string),
		Lo: row[6].(string), Hi: row[7].(string),
		RefTable: row[8].(string), RefAttribute: row[9].(string), Action: ReferentialAction(row[10].(string)),
	}
}

// ConstraintNameExists reports whether name is already used by any
// constraint on any relation. Constraint names are unique across every
// relation, not just within one.
func (c *Catalog) ConstraintNameExists(name string) (bool, error) {
	exists := false
	err := record.Scan(c.sm, c.cache, constraintSegment, func(_ record.RowAddr, row []any) (bool, error) {
		if row[0].(string) == name {
			exists = true
			return false, nil
		}
		return true, nil
	})
	return exists, err
}

// AddConstraint installs a new constraint row, rejecting a name already
// used by any constraint with DuplicateName. Existing-row validation for
// NOT NULL/UNIQUE is the caller's responsibility: internal/engine runs
// internal/constraint's install checks against the live data before
// calling AddConstraint.
func (c *Catalog) AddConstraint(ct *Constraint) error {
	exists, err := c.ConstraintNameExists(ct.Name)
	if err != nil {
		return err
	}
	if exists {
		return errors.NewDuplicateNameError("constraint", ct.Name)
	}
	_, err = record.Insert(c.sm, c.cache, constraintSegment, constraintRow(ct))
	return err
}

// ListConstraints returns every constraint installed on relation.
func (c *Catalog) ListConstraints(relation string) ([]*Constraint, error) {
	var out []*Constraint
	err := record.Scan(c.sm, c.cache, constraintSegment, func(_ record.RowAddr, row []any) (bool, error) {
		if row[1].(string) == relation {
			out = append(out, rowToConstraint(row))
		}
		return true, nil
	})
	return out, err
}

// ListConstraintsReferencing returns every REFERENCE constraint whose
// target table is relation, used to enforce RESTRICT/CASCADE/SET NULL on
// delete/update of a referenced row.
func (c *Catalog) ListConstraintsReferencing(relation string) ([]*Constraint, error) {
	var out []*Constraint
	err := record.Scan(c.sm, c.cache, constraintSegment, func(_ record.RowAddr, row []any) (bool, error) {
		ct := rowToConstraint(row)
		if ct.Kind == ConstraintReference && ct.RefTable == relation {
			out = append(out, ct)
		}
		return true, nil
	})
	return out, err
}

// DropConstraint removes a constraint by name.
func (c *Catalog) DropConstraint(name string) error {
	return c.deleteMatching(constraintSegment, func(row []any) bool { return row[0].(string) == name })
}
