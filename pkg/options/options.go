// Package options provides data structures and functions for configuring
// the AKDB database engine. It defines every CLI-configurable parameter,
// plus the per-layer tuning AKDB's subsystems need: block size, cache
// capacity, redo-log capacity, extent bookkeeping, and per-segment-kind
// growth factors.
package options

import (
	"strings"
	"time"
)

// GrowthFactors controls how much a segment grows, per segment kind, when
// extend_segment is called. Keyed by the four segment kinds that actually
// grow on demand; Transaction and Temp segments are short-lived but still
// obey the configured factor.
type GrowthFactors struct {
	Table       float64 `json:"table"`
	Index       float64 `json:"index"`
	Transaction float64 `json:"transaction"`
	Temp        float64 `json:"temp"`
}

// segmentOptions carries the bootstrap sizing for newly created segments.
// InitialExtentBlocks is the number of blocks in a segment's *first*
// extent, not a rotation threshold, since table/index segments grow by extension rather
// than by rolling over to a new file.
type segmentOptions struct {
	// InitialExtentBlocks is the block count requested for a segment's first
	// extent.
	//
	//  - Default: 64 blocks
	InitialExtentBlocks uint64 `json:"initialExtentBlocks"`

	// MaxExtentsPerSegment bounds how many extents a single segment may
	// accumulate before extend_segment refuses further growth.
	//
	// Default: 32
	MaxExtentsPerSegment int `json:"maxExtentsPerSegment"`

	// Growth holds the per-kind growth factors applied on extend_segment.
	Growth GrowthFactors `json:"growth"`
}

// Options defines the full configuration surface for an AKDB engine
// instance, covering every CLI-configurable key.
type Options struct {
	// DataDir is the directory holding the database file (akdb.db). The blob
	// and archive log directories are configured separately.
	//
	// Default: "/var/lib/akdb"
	DataDir string `json:"database_file_path"`

	// BlobsDirectory stores out-of-row payloads too large for the tuple
	// heap. It is an external collaborator; AKDB only reserves the
	// configuration key, never writes to it itself.
	BlobsDirectory string `json:"blobs_directory"`

	// ArchiveLogDirectory is where internal/redolog archives a full redo
	// log ring before resetting its write index.
	//
	// Default: "/var/lib/akdb/archivelog" (a fixed path, not derived from DataDir)
	ArchiveLogDirectory string `json:"archivelog_directory"`

	// BlockSize is the fixed byte size of every block in the database file.
	// It can be set once at Init and is thereafter immutable for the life
	// of the file.
	//
	//  - Default: 8192 (8 KiB)
	//  - Minimum: 2048 (2 KiB)
	//  - Maximum: 16384 (16 KiB)
	BlockSize uint32 `json:"block_size"`

	// CacheCapacity is the fixed number of block frames internal/blockcache
	// holds in memory.
	//
	// Default: 256
	CacheCapacity int `json:"cache_capacity"`

	// MaxRedoLogEntries bounds the redo log ring before archival.
	//
	// Default: 256
	MaxRedoLogEntries int `json:"max_redo_log_entries"`

	// CompactInterval is carried in the configuration but no package reads
	// it. AKDB has no separate background compaction subsystem: internal/record
	// checks a block for compaction inline, on every insert that does not fit,
	// once its reclaimable holes reach B/4.
	//
	// Default: 0 (check on every insert that would otherwise fail to fit)
	CompactInterval time.Duration `json:"compactInterval"`

	// SegmentOptions configures initial segment sizing, extent limits, and
	// per-kind growth factors.
	SegmentOptions *segmentOptions `json:"segmentOptions"`

	// HashMixer selects the hash-value mixing function internal/hashindex
	// uses for varchar attributes: "sum" (a simple byte-sum, the default)
	// or "xxhash" (a proper hash, trading simplicity for a lower collision
	// rate).
	HashMixer string `json:"hash_mixer"`
}

// OptionFunc is a function type that modifies an engine's configuration.
type OptionFunc func(*Options)

// WithDefaultOptions resets every field to its default value.
func WithDefaultOptions() OptionFunc {
	return func(o *Options) {
		opts := NewDefaultOptions()
		*o = opts
	}
}

// WithDataDir sets the directory holding the database file. It does not
// change the blobs or archive log directories.
func WithDataDir(directory string) OptionFunc {
	return func(o *Options) {
		directory = strings.TrimSpace(directory)
		if directory != "" {
			o.DataDir = directory
		}
	}
}

// WithBlobsDirectory sets the external blob storage directory.
func WithBlobsDirectory(directory string) OptionFunc {
	return func(o *Options) {
		directory = strings.TrimSpace(directory)
		if directory != "" {
			o.BlobsDirectory = directory
		}
	}
}

// WithArchiveLogDirectory sets the redo-log archive directory.
func WithArchiveLogDirectory(directory string) OptionFunc {
	return func(o *Options) {
		directory = strings.TrimSpace(directory)
		if directory != "" {
			o.ArchiveLogDirectory = directory
		}
	}
}

// WithBlockSize sets the fixed block size for a fresh database file. Has no
// effect on a file that has already been initialized.
func WithBlockSize(size uint32) OptionFunc {
	return func(o *Options) {
		if size >= MinBlockSize && size <= MaxBlockSize {
			o.BlockSize = size
		}
	}
}

// WithCacheCapacity sets the number of block frames the cache holds.
func WithCacheCapacity(capacity int) OptionFunc {
	return func(o *Options) {
		if capacity > 0 {
			o.CacheCapacity = capacity
		}
	}
}

// WithMaxRedoLogEntries sets the redo log ring capacity.
func WithMaxRedoLogEntries(n int) OptionFunc {
	return func(o *Options) {
		if n > 0 {
			o.MaxRedoLogEntries = n
		}
	}
}

// WithCompactInterval sets CompactInterval, which no package reads.
func WithCompactInterval(interval time.Duration) OptionFunc {
	return func(o *Options) {
		if interval >= 0 {
			o.CompactInterval = interval
		}
	}
}

// WithInitialExtentBlocks sets the block count of a segment's first extent.
func WithInitialExtentBlocks(blocks uint64) OptionFunc {
	return func(o *Options) {
		if blocks > 0 {
			o.SegmentOptions.InitialExtentBlocks = blocks
		}
	}
}

// WithMaxExtentsPerSegment bounds the extents a segment may accumulate.
func WithMaxExtentsPerSegment(n int) OptionFunc {
	return func(o *Options) {
		if n > 0 {
			o.SegmentOptions.MaxExtentsPerSegment = n
		}
	}
}

// WithGrowthFactors sets the per-segment-kind extent growth factors.
func WithGrowthFactors(g GrowthFactors) OptionFunc {
	return func(o *Options) {
		o.SegmentOptions.Growth = g
	}
}

// WithHashMixer selects the varchar hash-mixing function ("sum" or "xxhash").
func WithHashMixer(mixer string) OptionFunc {
	return func(o *Options) {
		mixer = strings.ToLower(strings.TrimSpace(mixer))
		if mixer == "sum" || mixer == "xxhash" {
			o.HashMixer = mixer
		}
	}
}
