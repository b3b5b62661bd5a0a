// Package akdb is the public entry point for the AKDB database engine. It
// wraps internal/engine.Engine behind a relation-oriented surface: CREATE
// TABLE, INSERT, UPDATE, DELETE, SELECT, CREATE INDEX, and constraint
// installation, each backed by the engine's single critical section.
package akdb

import (
	"context"

	"github.com/nimbusdb/akdb/internal/block"
	"github.com/nimbusdb/akdb/internal/catalog"
	"github.com/nimbusdb/akdb/internal/engine"
	"github.com/nimbusdb/akdb/internal/relalg"
	"github.com/nimbusdb/akdb/pkg/logger"
	"github.com/nimbusdb/akdb/pkg/options"
)

// Instance is the primary handle applications hold on a running AKDB
// database. It encapsulates the engine responsible for all storage,
// query, and constraint operations plus the options it was opened with.
type Instance struct {
	engine  *engine.Engine
	options *options.Options
}

// Attribute is re-exported so callers can build table schemas without
// importing internal/block directly.
type Attribute = block.AttributeDescriptor

// RowAddr names a row's storage location, returned by Insert and consumed
// by Update/Delete.
type RowAddr = engine.RowAddr

// Token is one postfix-expression term a predicate is built from.
type Token = relalg.Token

// Constraint describes a row-level rule installed against a relation.
type Constraint = catalog.Constraint

// Open creates and initializes a new AKDB instance for service, applying
// any functional options over the library defaults.
func Open(ctx context.Context, service string, opts ...options.OptionFunc) (*Instance, error) {
	log := logger.New(service)

	defaultOpts := options.NewDefaultOptions()
	for _, opt := range opts {
		opt(&defaultOpts)
	}

	eng, err := engine.New(&engine.Config{Logger: log, Options: &defaultOpts})
	if err != nil {
		return nil, err
	}
	return &Instance{engine: eng, options: &defaultOpts}, nil
}

// CreateTable catalogues a new relation with the given schema.
func (i *Instance) CreateTable(ctx context.Context, name string, header []Attribute) error {
	return i.engine.CreateTable(name, header)
}

// DropTable removes a relation along with its schema, constraints, and
// indexes.
func (i *Instance) DropTable(ctx context.Context, name string) error {
	return i.engine.DropTable(name)
}

// Insert enforces every installed constraint, writes a new row, maintains
// any indexes on table, and returns the row's storage address.
func (i *Instance) Insert(ctx context.Context, table string, values []any) (RowAddr, error) {
	return i.engine.Insert(table, values)
}

// Update enforces every installed constraint against the post-update
// image, rewrites the row addressed by addr, and returns its (possibly
// relocated) new address.
func (i *Instance) Update(ctx context.Context, table string, addr RowAddr, values []any) (RowAddr, error) {
	return i.engine.Update(table, addr, values)
}

// Delete applies referential actions against dependent rows and removes
// the row addressed by addr.
func (i *Instance) Delete(ctx context.Context, table string, addr RowAddr) error {
	return i.engine.Delete(table, addr)
}

// Select runs SELECT projection FROM table WHERE predicate. An empty
// projection means every attribute; an empty predicate means no filter.
// Results are served from the redo log's query cache when possible.
func (i *Instance) Select(ctx context.Context, table string, projection []string, predicate []Token) ([]string, [][]any, error) {
	return i.engine.Select(table, projection, predicate)
}

// CreateIndex builds a hash index over relation's attributes.
func (i *Instance) CreateIndex(ctx context.Context, name, relation string, attributes []string) error {
	return i.engine.CreateIndex(name, relation, attributes)
}

// DropIndex removes a previously created hash index.
func (i *Instance) DropIndex(ctx context.Context, name string) error {
	return i.engine.DropIndex(name)
}

// AddConstraint installs a constraint against an already-catalogued
// relation.
func (i *Instance) AddConstraint(ctx context.Context, ct *Constraint) error {
	return i.engine.AddConstraint(ct)
}

// DropConstraint removes a previously installed constraint by name.
func (i *Instance) DropConstraint(ctx context.Context, name string) error {
	return i.engine.DropConstraint(name)
}

// Close gracefully shuts down the instance, committing the redo log and
// flushing every owned layer to stable storage.
func (i *Instance) Close(ctx context.Context) error {
	return i.engine.Close()
}
