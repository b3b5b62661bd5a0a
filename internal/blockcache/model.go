package blockcache

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/nimbusdb/akdb/internal/block"
	"github.com/nimbusdb/akdb/internal/diskmgr"
)

// frame is one resident block plus the bookkeeping the replacement policy
// needs: whether it has been written since it was last flushed, and the
// logical clock reading from its most recent access.
type frame struct {
	b        *block.Block
	dirty    bool
	lastUsed uint64
}

// Cache is the fixed-capacity, write-back block cache sitting between every
// higher layer and internal/diskmgr: a single RWMutex-guarded map from
// block address to frame plus an atomic closed flag, bounded by a capacity
// and an eviction policy rather than growing without limit. The policy
// uses a monotonic logical clock rather than wall time so
// eviction order is deterministic and reproducible in tests.
type Cache struct {
	dm       *diskmgr.DiskManager
	log      *zap.SugaredLogger
	capacity int

	mu     sync.RWMutex
	frames map[block.Addr]*frame
	clock  atomic.Uint64
	closed atomic.Bool
}

// Config encapsulates the configuration parameters required to initialize a
// Cache.
type Config struct {
	DiskManager *diskmgr.DiskManager
	Capacity    int
	Logger      *zap.SugaredLogger
}
