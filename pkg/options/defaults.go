package options

import "time"

const (
	// DefaultDataDir is the default base directory AKDB stores its database
	// file, blobs, and archive log under.
	DefaultDataDir = "/var/lib/akdb"

	// DefaultBlobsDirectory is the default subdirectory for blob storage.
	DefaultBlobsDirectory = "/var/lib/akdb/blobs"

	// DefaultArchiveLogDirectory is the default subdirectory redo-log
	// archives are written to.
	DefaultArchiveLogDirectory = "/var/lib/akdb/archivelog"

	// MinBlockSize is the smallest permitted block size (2 KiB).
	MinBlockSize uint32 = 2048

	// MaxBlockSize is the largest permitted block size (16 KiB).
	MaxBlockSize uint32 = 16384

	// DefaultBlockSize is the block size used when none is configured (8 KiB).
	DefaultBlockSize uint32 = 8192

	// DefaultCacheCapacity is the default number of block frames held in
	// memory by internal/blockcache.
	DefaultCacheCapacity = 256

	// DefaultMaxRedoLogEntries is the default redo log ring capacity.
	DefaultMaxRedoLogEntries = 256

	// DefaultCompactInterval is the default in-block compaction check
	// cadence: immediate, i.e. whenever an insert would otherwise fail.
	DefaultCompactInterval = time.Duration(0)

	// DefaultInitialExtentBlocks is the block count of a segment's first
	// extent.
	DefaultInitialExtentBlocks uint64 = 64

	// DefaultMaxExtentsPerSegment bounds how many extents a segment may
	// accumulate.
	DefaultMaxExtentsPerSegment = 32

	// DefaultHashMixer is the varchar hash-mixing function used unless
	// overridden: a simple byte-sum.
	DefaultHashMixer = "sum"
)

// DefaultGrowthFactors holds the per-kind extent growth factors: Table 1.5,
// Index 1.5, Transaction 1.2, Temp 1.0.
var DefaultGrowthFactors = GrowthFactors{
	Table:       1.5,
	Index:       1.5,
	Transaction: 1.2,
	Temp:        1.0,
}

// defaultOptions holds the default configuration for a new AKDB instance.
var defaultOptions = Options{
	DataDir:             DefaultDataDir,
	BlobsDirectory:      DefaultBlobsDirectory,
	ArchiveLogDirectory: DefaultArchiveLogDirectory,
	BlockSize:           DefaultBlockSize,
	CacheCapacity:       DefaultCacheCapacity,
	MaxRedoLogEntries:   DefaultMaxRedoLogEntries,
	CompactInterval:     DefaultCompactInterval,
	HashMixer:           DefaultHashMixer,
	SegmentOptions: &segmentOptions{
		InitialExtentBlocks:  DefaultInitialExtentBlocks,
		MaxExtentsPerSegment: DefaultMaxExtentsPerSegment,
		Growth:               DefaultGrowthFactors,
	},
}

// NewDefaultOptions returns a fresh copy of the default configuration.
func NewDefaultOptions() Options {
	opts := defaultOptions
	segCopy := *defaultOptions.SegmentOptions
	opts.SegmentOptions = &segCopy
	return opts
}
