package segment

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/nimbusdb/akdb/internal/block"
	"github.com/nimbusdb/akdb/internal/blockcache"
	"github.com/nimbusdb/akdb/internal/diskmgr"
	"github.com/nimbusdb/akdb/pkg/options"
)

// Category classifies a segment for the purpose of choosing its growth
// factor on ExtendSegment: Table and Index segments persist for the life of
// the database, Transaction segments are scratch space for one in-flight
// operator pipeline, and Temp segments hold one query's intermediate
// results.
type Category uint8

const (
	CategoryTable Category = iota
	CategoryIndex
	CategoryTransaction
	CategoryTemp
)

// Extent is one contiguous run of blocks belonging to a segment.
type Extent struct {
	From block.Addr
	To   block.Addr
}

// Blocks reports how many blocks this extent spans.
func (e Extent) Blocks() int64 {
	return int64(e.To-e.From) + 1
}

// Info is the catalogued description of one segment: its content kind, its
// schema header, and the ordered list of extents it currently owns.
type Info struct {
	Name     string
	Kind     block.Kind
	Category Category
	Header   []block.AttributeDescriptor
	Extents  []Extent
}

// FirstAddr returns the address of the segment's head block, the first
// block of its first extent.
func (i *Info) FirstAddr() block.Addr {
	if len(i.Extents) == 0 {
		return block.InvalidAddr
	}
	return i.Extents[0].From
}

// TotalBlocks sums the block count of every extent the segment owns.
func (i *Info) TotalBlocks() int64 {
	var n int64
	for _, e := range i.Extents {
		n += e.Blocks()
	}
	return n
}

// Map is the extent/segment map, L2 of the engine: it answers "which block
// addresses belong to segment S" and grows segments on demand. Rather than
// tracking one active append-only segment file and rotating to a new file
// at a size threshold, Map tracks many named, block-addressed segments at
// once and grows each in place by allocating another extent from
// internal/diskmgr.
type Map struct {
	dm      *diskmgr.DiskManager
	cache   *blockcache.Cache
	log     *zap.SugaredLogger
	options *options.Options

	mu      sync.Mutex
	byName  map[string]*Info
	order   []string // insertion order, preserved for deterministic iteration
	closed  atomic.Bool
}

// Config encapsulates the configuration parameters required to open a Map.
type Config struct {
	DiskManager *diskmgr.DiskManager
	Cache       *blockcache.Cache
	Options     *options.Options
	Logger      *zap.SugaredLogger
}
