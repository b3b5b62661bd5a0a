// Package engine provides the construct-once database engine coordinator
// for AKDB. See model.go for the Engine type itself.
package engine

import (
	"errors"

	"github.com/nimbusdb/akdb/internal/block"
	"github.com/nimbusdb/akdb/internal/blockcache"
	"github.com/nimbusdb/akdb/internal/catalog"
	"github.com/nimbusdb/akdb/internal/constraint"
	"github.com/nimbusdb/akdb/internal/diskmgr"
	"github.com/nimbusdb/akdb/internal/hashindex"
	"github.com/nimbusdb/akdb/internal/redolog"
	"github.com/nimbusdb/akdb/internal/relalg"
	"github.com/nimbusdb/akdb/internal/segment"
	pkgerrors "github.com/nimbusdb/akdb/pkg/errors"
)

// ErrEngineClosed is returned by any operation attempted after Close.
var ErrEngineClosed = errors.New("operation failed: cannot access closed engine")

// New builds an Engine, bringing up every layer in dependency order: disk
// manager first, then the block cache built on it, then the segment map,
// then the catalog built out of segments, then the redo log that reads the
// catalog's clock. relalg and constraint are stateless coordinators wired
// up last since they only depend on layers already running.
func New(config *Config) (*Engine, error) {
	if config == nil || config.Options == nil || config.Logger == nil {
		return nil, pkgerrors.NewValidationError(
			nil, pkgerrors.ErrorCodeInvalidInput, "engine configuration is required",
		).WithField("config").WithRule("required")
	}

	disk, err := diskmgr.Init(&diskmgr.Config{Options: config.Options, Logger: config.Logger})
	if err != nil {
		return nil, err
	}

	cache, err := blockcache.New(&blockcache.Config{
		DiskManager: disk,
		Capacity:    config.Options.CacheCapacity,
		Logger:      config.Logger,
	})
	if err != nil {
		return nil, err
	}

	segments, err := segment.Open(&segment.Config{
		DiskManager: disk,
		Cache:       cache,
		Options:     config.Options,
		Logger:      config.Logger,
	})
	if err != nil {
		return nil, err
	}

	cat, err := catalog.Open(&catalog.Config{SegmentMap: segments, Cache: cache, Logger: config.Logger})
	if err != nil {
		return nil, err
	}

	redo, err := redolog.New(&redolog.Config{
		Catalog: cat,
		Cache:   cache,
		Options: config.Options,
		Logger:  config.Logger,
	})
	if err != nil {
		return nil, err
	}

	return &Engine{
		options:   config.Options,
		log:       config.Logger,
		disk:      disk,
		cache:     cache,
		segments:  segments,
		catalog:   cat,
		redo:      redo,
		operators: relalg.New(segments, cache, config.Logger),
		rules:     constraint.New(segments, cache, cat, config.Logger),
		indexes:   make(map[string]*hashindex.Index),
	}, nil
}

// Close idempotently shuts down every owned layer: a final redo log commit
// (marks mutation entries finished, flushes the cache), then the segment
// map, the cache a second time, and finally the disk manager.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.redo.Commit(); err != nil {
		return err
	}
	if err := e.segments.Close(); err != nil {
		return err
	}
	if err := e.cache.Close(); err != nil {
		return err
	}
	return e.disk.Close()
}

// CreateTable catalogues a new relation with the given schema.
func (e *Engine) CreateTable(name string, header []block.AttributeDescriptor) error {
	e.mu.Lock()
	e.assertNotLocked()
	defer func() { e.clearLocked(); e.mu.Unlock() }()

	if e.closed.Load() {
		return ErrEngineClosed
	}
	return e.catalog.CreateRelation(name, header)
}

// DropTable removes a relation, its catalogued schema, and every
// constraint and index registered against it.
func (e *Engine) DropTable(name string) error {
	e.mu.Lock()
	e.assertNotLocked()
	defer func() { e.clearLocked(); e.mu.Unlock() }()

	if e.closed.Load() {
		return ErrEngineClosed
	}

	e.indexMu.Lock()
	for idxName := range e.indexes {
		if info, err := e.catalog.GetIndex(idxName); err == nil && info.Relation == name {
			delete(e.indexes, idxName)
		}
	}
	e.indexMu.Unlock()

	return e.catalog.DropRelation(name)
}

// AddConstraint installs a constraint against an already-catalogued
// relation, running the installation-time pre-check required for NOT NULL
// and UNIQUE before recording the constraint.
func (e *Engine) AddConstraint(ct *catalog.Constraint) error {
	e.mu.Lock()
	e.assertNotLocked()
	defer func() { e.clearLocked(); e.mu.Unlock() }()

	if e.closed.Load() {
		return ErrEngineClosed
	}

	rel, err := e.catalog.GetRelation(ct.Relation)
	if err != nil {
		return err
	}

	switch ct.Kind {
	case catalog.ConstraintNotNull:
		if err := e.rules.InstallNotNull(ct.Relation, rel.Header, ct.Attribute); err != nil {
			return err
		}
	case catalog.ConstraintUnique:
		if err := e.rules.InstallUnique(ct.Relation, rel.Header, ct.Attribute); err != nil {
			return err
		}
	}

	return e.catalog.AddConstraint(ct)
}

// DropConstraint removes a previously installed constraint by name.
func (e *Engine) DropConstraint(name string) error {
	e.mu.Lock()
	e.assertNotLocked()
	defer func() { e.clearLocked(); e.mu.Unlock() }()

	if e.closed.Load() {
		return ErrEngineClosed
	}
	return e.catalog.DropConstraint(name)
}
