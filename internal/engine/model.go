// Package engine provides the core database engine implementation for
// AKDB. The engine is a construct-once coordinator: it owns every layer
// (disk manager, block cache, segment map, catalog, redo log) and every
// public operation acquires its single mutex exactly once, realizing one
// process-wide critical section. Dependencies are built cheapest first,
// each subsequent layer constructed from the one before it.
package engine

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/nimbusdb/akdb/internal/blockcache"
	"github.com/nimbusdb/akdb/internal/catalog"
	"github.com/nimbusdb/akdb/internal/constraint"
	"github.com/nimbusdb/akdb/internal/diskmgr"
	"github.com/nimbusdb/akdb/internal/hashindex"
	"github.com/nimbusdb/akdb/internal/redolog"
	"github.com/nimbusdb/akdb/internal/relalg"
	"github.com/nimbusdb/akdb/internal/segment"
	"github.com/nimbusdb/akdb/pkg/options"
)

// Engine coordinates every AKDB subsystem behind one critical section.
type Engine struct {
	mu     sync.Mutex
	locked atomic.Bool // debug-build reentrancy assertion, see assert_debug.go

	options *options.Options
	log     *zap.SugaredLogger
	closed  atomic.Bool

	disk     *diskmgr.DiskManager
	cache    *blockcache.Cache
	segments *segment.Map
	catalog  *catalog.Catalog
	redo     *redolog.Log
	operators *relalg.Engine
	rules     *constraint.Engine

	indexMu sync.Mutex
	indexes map[string]*hashindex.Index
}

// Config holds all the parameters needed to initialize a new Engine.
type Config struct {
	Options *options.Options
	Logger  *zap.SugaredLogger
}
