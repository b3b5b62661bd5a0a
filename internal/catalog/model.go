// Package catalog implements L4: the system relations every other layer
// consults to resolve a name to a schema, a set of installed constraints,
// or a registered index. It is built entirely out of internal/segment and
// internal/record — the catalog is just another set of segments, bootstrap
// ones created on first Open rather than by CREATE TABLE.
package catalog

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/nimbusdb/akdb/internal/block"
	"github.com/nimbusdb/akdb/internal/blockcache"
	"github.com/nimbusdb/akdb/internal/segment"
)

const (
	relationSegment  = "sys_relation"
	attributeSegment = "sys_attribute"
	constraintSegment = "sys_constraint"
	indexSegment     = "sys_index"
	viewSegment      = "sys_view"
	sequenceSegment  = "sys_sequence"
	triggerSegment   = "sys_trigger"
	privilegeSegment = "sys_privilege"
)

// RelationInfo is the resolved schema of one catalogued table.
type RelationInfo struct {
	Name   string
	Header []block.AttributeDescriptor
}

// ConstraintKind enumerates the families of row constraints a relation can
// carry.
type ConstraintKind string

const (
	ConstraintNotNull   ConstraintKind = "NOTNULL"
	ConstraintUnique    ConstraintKind = "UNIQUE"
	ConstraintCheck     ConstraintKind = "CHECK"
	ConstraintBetween   ConstraintKind = "BETWEEN"
	ConstraintReference ConstraintKind = "REFERENCE"
)

// ReferentialAction enumerates the actions a REFERENCE constraint applies
// on delete/update of the referenced row.
type ReferentialAction string

const (
	ActionRestrict ReferentialAction = "RESTRICT"
	ActionCascade  ReferentialAction = "CASCADE"
	ActionSetNull  ReferentialAction = "SETNULL"
)

// Constraint is one catalogued row constraint.
type Constraint struct {
	Name      string
	Relation  string
	Attribute string
	Kind      ConstraintKind

	// CheckOp/CheckLiteral hold a CHECK constraint's operator token (one of
	// the comparison operators internal/relalg evaluates) and literal.
	CheckOp      string
	CheckLiteral string

	// Lo/Hi hold a BETWEEN constraint's inclusive bounds, rendered as
	// strings and parsed back per the attribute's declared type.
	Lo string
	Hi string

	// RefTable/RefAttribute/Action hold a REFERENCE constraint's target and
	// its behavior on delete/update of the referenced row.
	RefTable     string
	RefAttribute string
	Action       ReferentialAction
}

// IndexInfo is one catalogued hash index registration.
type IndexInfo struct {
	Name       string
	Relation   string
	Attributes []string
	Segment    string
}

// Catalog owns every system segment and the in-memory last-modified clock
// the redo log's SELECT cache consults to invalidate stale cache hits.
type Catalog struct {
	sm    *segment.Map
	cache *blockcache.Cache
	log   *zap.SugaredLogger

	mu       sync.Mutex
	modified map[string]uint64
	clock    atomic.Uint64
}

// Config encapsulates the configuration parameters required to open a
// Catalog.
type Config struct {
	SegmentMap *segment.Map
	Cache      *blockcache.Cache
	Logger     *zap.SugaredLogger
}
