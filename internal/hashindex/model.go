// Package hashindex implements L5: an extendible hash index over one or
// more attributes of a relation. Main buckets and hash buckets are ordinary
// blocks of the index's own segment, tagged block.KindIndexMain /
// block.KindIndexHash once claimed, so the same tagged-union block
// dispatch used everywhere else in the engine applies here too.
package hashindex

import (
	"go.uber.org/zap"

	"github.com/nimbusdb/akdb/internal/blockcache"
	"github.com/nimbusdb/akdb/internal/segment"
)

// MainBucketSize (M) and HashBucketSize (H) are the fixed directory and
// bucket geometry constants.
const (
	MainBucketSize = 4
	HashBucketSize = 8
)

// HashInfo is the single bootstrap row stored in the index segment's head
// block: the current directory modulo and bucket counts.
type HashInfo struct {
	Modulo          int64
	MainBucketCount int64
	HashBucketCount int64
}

// Entry is one (value, slot_addr) pair a hash bucket holds.
type Entry struct {
	Value    int64
	RowBlock int64
	RowSlot  int64
}

// Index is one extendible hash index over a relation's attributes.
type Index struct {
	sm      *segment.Map
	cache   *blockcache.Cache
	log     *zap.SugaredLogger
	segName string
	mixer   string
}
