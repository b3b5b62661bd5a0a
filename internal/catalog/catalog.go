package catalog

import (
	"github.com/nimbusdb/akdb/internal/block"
	"github.com/nimbusdb/akdb/internal/record"
	"github.com/nimbusdb/akdb/internal/segment"
	"github.com/nimbusdb/akdb/pkg/errors"
)

func attr(name string, t block.Type) block.AttributeDescriptor {
	return block.AttributeDescriptor{Name: name, Type: t}
}

var relationHeader = []block.AttributeDescriptor{attr("name", block.TypeVarchar), attr("kind", block.TypeVarchar)}

var attributeHeader = []block.AttributeDescriptor{
	attr("relation", block.TypeVarchar),
	attr("name", block.TypeVarchar),
	attr("type", block.TypeInt),
	attr("integrity", block.TypeInt),
	attr("ordinal", block.TypeInt),
}

var constraintHeader = []block.AttributeDescriptor{
	attr("name", block.TypeVarchar),
	attr("relation", block.TypeVarchar),
	attr("attribute", block.TypeVarchar),
	attr("kind", block.TypeVarchar),
	attr("check_op", block.TypeVarchar),
	attr("check_literal", block.TypeVarchar),
	attr("lo", block.TypeVarchar),
	attr("hi", block.TypeVarchar),
	attr("ref_table", block.TypeVarchar),
	attr("ref_attribute", block.TypeVarchar),
	attr("action", block.TypeVarchar),
}

var indexHeader = []block.AttributeDescriptor{
	attr("name", block.TypeVarchar),
	attr("relation", block.TypeVarchar),
	attr("attributes", block.TypeVarchar),
	attr("segment", block.TypeVarchar),
}

var namedDefinitionHeader = []block.AttributeDescriptor{attr("name", block.TypeVarchar), attr("definition", block.TypeVarchar)}

// Open bootstraps the bundled system segments if this is a fresh database
// and returns a ready-to-use Catalog.
func Open(config *Config) (*Catalog, error) {
	if config == nil || config.SegmentMap == nil || config.Cache == nil || config.Logger == nil {
		return nil, errors.NewValidationError(
			nil, errors.ErrorCodeInvalidInput, "catalog configuration is required",
		).WithField("config").WithRule("required")
	}

	c := &Catalog{sm: config.SegmentMap, cache: config.Cache, log: config.Logger, modified: make(map[string]uint64)}

	bootstraps := []struct {
		name   string
		header []block.AttributeDescriptor
	}{
		{relationSegment, relationHeader},
		{attributeSegment, attributeHeader},
		{constraintSegment, constraintHeader},
		{indexSegment, indexHeader},
		{viewSegment, namedDefinitionHeader},
		{sequenceSegment, namedDefinitionHeader},
		{triggerSegment, namedDefinitionHeader},
		{privilegeSegment, namedDefinitionHeader},
	}
	for _, b := range bootstraps {
		if _, err := c.sm.AddressesOf(b.name); err != nil {
			if errors.GetErrorCode(err) != errors.ErrorCodeNotFound {
				return nil, err
			}
			if _, err := c.sm.CreateSegment(b.name, block.KindData, segment.CategoryTable, b.header); err != nil {
				return nil, err
			}
			c.log.Infow("Bootstrapped system segment", "name", b.name)
		}
	}

	return c, nil
}

// Touch bumps and returns the logical modification stamp for relation,
// consulted by internal/redolog's SELECT cache invalidation.
func (c *Catalog) Touch(relation string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := c.clock.Add(1)
	c.modified[relation] = ts
	return ts
}

// Tick advances and returns the catalog's logical clock without attributing
// the stamp to any relation. internal/redolog timestamps every entry with
// this clock so a cached SELECT's timestamp is directly comparable to the
// Touch stamps recorded here; both readings must come from the same clock.
func (c *Catalog) Tick() uint64 {
	return c.clock.Add(1)
}

// LastModified returns relation's most recent Touch stamp, or 0 if it has
// never been touched since the catalog was opened.
func (c *Catalog) LastModified(relation string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.modified[relation]
}

// CreateRelation registers a new table: a data segment plus its sys_relation
// and sys_attribute rows.
func (c *Catalog) CreateRelation(name string, header []block.AttributeDescriptor) error {
	if exists, _ := c.findRelationRow(name); exists.Valid() {
		return errors.NewDuplicateNameError("relation", name)
	}

	if _, err := c.sm.CreateSegment(name, block.KindData, segment.CategoryTable, header); err != nil {
		return err
	}
	if _, err := record.Insert(c.sm, c.cache, relationSegment, []any{name, "table"}); err != nil {
		return err
	}
	for i, a := range header {
		values := []any{name, a.Name, int64(a.Type), int64(a.Integrity), int64(i)}
		if _, err := record.Insert(c.sm, c.cache, attributeSegment, values); err != nil {
			return err
		}
	}

	c.Touch(name)
	c.log.Infow("Relation created", "name", name, "attributes", len(header))
	return nil
}

// findRelationRow returns the sys_relation row address for name, or an
// invalid RowAddr if not found.
func (c *Catalog) findRelationRow(name string) (record.RowAddr, error) {
	var found record.RowAddr
	err := record.Scan(c.sm, c.cache, relationSegment, func(addr record.RowAddr, row []any) (bool, error) {
		if row[0].(string) == name {
			found = addr
			return false, nil
		}
		return true, nil
	})
	return found, err
}

// GetRelation resolves name to its catalogued schema.
func (c *Catalog) GetRelation(name string) (*RelationInfo, error) {
	addr, err := c.findRelationRow(name)
	if err != nil {
		return nil, err
	}
	if !addr.Valid() {
		return nil, errors.NewNotFoundError(name)
	}

	type ordinalAttr struct {
		ordinal int64
		desc    block.AttributeDescriptor
	}
	var attrs []ordinalAttr
	err = record.Scan(c.sm, c.cache, attributeSegment, func(_ record.RowAddr, row []any) (bool, error) {
		if row[0].(string) != name {
			return true, nil
		}
		attrs = append(attrs, ordinalAttr{
			ordinal: row[4].(int64),
			desc: block.AttributeDescriptor{
				Name:      row[1].(string),
				Type:      block.Type(row[2].(int64)),
				Integrity: block.IntegrityFlags(row[3].(int64)),
			},
		})
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	header := make([]block.AttributeDescriptor, len(attrs))
	for _, a := range attrs {
		header[a.ordinal] = a.desc
	}
	return &RelationInfo{Name: name, Header: header}, nil
}

// ListRelations returns every catalogued table name.
func (c *Catalog) ListRelations() ([]string, error) {
	var names []string
	err := record.Scan(c.sm, c.cache, relationSegment, func(_ record.RowAddr, row []any) (bool, error) {
		names = append(names, row[0].(string))
		return true, nil
	})
	return names, err
}

// DropRelation removes a table's data segment, its catalog rows, every
// constraint and index registered against it.
func (c *Catalog) DropRelation(name string) error {
	addr, err := c.findRelationRow(name)
	if err != nil {
		return err
	}
	if !addr.Valid() {
		return errors.NewNotFoundError(name)
	}

	if err := c.sm.DeleteSegment(name, block.KindData); err != nil {
		return err
	}
	if err := record.DeleteRow(c.cache, addr); err != nil {
		return err
	}

	if err := c.deleteMatching(attributeSegment, func(row []any) bool { return row[0].(string) == name }); err != nil {
		return err
	}
	if err := c.deleteMatching(constraintSegment, func(row []any) bool { return row[1].(string) == name }); err != nil {
		return err
	}
	if err := c.deleteMatching(indexSegment, func(row []any) bool { return row[1].(string) == name }); err != nil {
		return err
	}

	c.log.Infow("Relation dropped", "name", name)
	return nil
}

// deleteMatching deletes every row of segName for which match returns true.
func (c *Catalog) deleteMatching(segName string, match func([]any) bool) error {
	return record.Scan(c.sm, c.cache, segName, func(addr record.RowAddr, row []any) (bool, error) {
		if match(row) {
			if err := record.DeleteRow(c.cache, addr); err != nil {
				return false, err
			}
		}
		return true, nil
	})
}
