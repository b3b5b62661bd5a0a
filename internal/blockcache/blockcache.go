// Package blockcache implements L1: a fixed-capacity, write-back cache of
// blocks fetched from internal/diskmgr. It exists so internal/record,
// internal/catalog, and internal/hashindex can read and mutate a block
// repeatedly without a disk round trip per access, flushing dirty frames
// back only on eviction or an explicit Flush.
package blockcache

import (
	stdErrors "errors"

	"github.com/nimbusdb/akdb/internal/block"
	"github.com/nimbusdb/akdb/pkg/errors"
)

// ErrClosed is returned when an operation is attempted on a closed cache.
var ErrClosed = stdErrors.New("operation failed: cannot access closed block cache")

// New creates and initializes a new Cache instance. The returned Cache is
// immediately ready for concurrent use.
func New(config *Config) (*Cache, error) {
	if config == nil || config.DiskManager == nil || config.Logger == nil {
		return nil, errors.NewValidationError(
			nil, errors.ErrorCodeInvalidInput, "block cache configuration is required",
		).WithField("config").WithRule("required")
	}

	capacity := config.Capacity
	if capacity <= 0 {
		capacity = 256
	}

	return &Cache{
		dm:       config.DiskManager,
		log:      config.Logger,
		capacity: capacity,
		frames:   make(map[block.Addr]*frame, capacity),
	}, nil
}

// Get returns the block at addr, fetching it from the disk manager on a
// miss and admitting it into the cache, evicting a frame first if the cache
// is at capacity (see evictLocked for the choice of victim). The returned *block.Block is the
// cache's own resident copy: callers that mutate it must call MarkDirty so
// the mutation is not silently lost on eviction.
func (c *Cache) Get(addr block.Addr) (*block.Block, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if fr, ok := c.frames[addr]; ok {
		fr.lastUsed = c.tick()
		return fr.b, nil
	}

	b, err := c.dm.ReadBlock(addr)
	if err != nil {
		return nil, err
	}

	if len(c.frames) >= c.capacity {
		if err := c.evictLocked(); err != nil {
			return nil, err
		}
	}

	c.frames[addr] = &frame{b: b, lastUsed: c.tick()}
	return b, nil
}

// MarkDirty flags addr's resident frame as modified since last flush. The
// caller must already have obtained the block via Get.
func (c *Cache) MarkDirty(addr block.Addr) error {
	if c.closed.Load() {
		return ErrClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	fr, ok := c.frames[addr]
	if !ok {
		return errors.NewBadAddressError(int64(addr))
	}
	fr.dirty = true
	return nil
}

// Flush writes addr's resident frame back to the disk manager if dirty, and
// clears its dirty flag. It is a no-op if addr is not resident.
func (c *Cache) Flush(addr block.Addr) error {
	if c.closed.Load() {
		return ErrClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	fr, ok := c.frames[addr]
	if !ok || !fr.dirty {
		return nil
	}
	return c.flushFrameLocked(addr, fr)
}

// FlushAll writes every dirty resident frame back to the disk manager.
func (c *Cache) FlushAll() error {
	if c.closed.Load() {
		return ErrClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushAllLocked()
}

func (c *Cache) flushAllLocked() error {
	for addr, fr := range c.frames {
		if fr.dirty {
			if err := c.flushFrameLocked(addr, fr); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Cache) flushFrameLocked(addr block.Addr, fr *frame) error {
	if err := c.dm.WriteBlock(fr.b); err != nil {
		return err
	}
	fr.dirty = false
	return nil
}

// Invalidate drops addr from the cache without flushing it, used by
// internal/diskmgr.FreeExtent callers once a block's bytes have been
// discarded.
func (c *Cache) Invalidate(addr block.Addr) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.frames, addr)
}

// evictLocked removes the least-recently-used clean frame; only when every
// frame is dirty does it pick the least-recently-used dirty frame, which is
// flushed first. Caller holds mu.
func (c *Cache) evictLocked() error {
	var victim block.Addr
	var victimFrame *frame

	for addr, fr := range c.frames {
		if victimFrame == nil ||
			(victimFrame.dirty && !fr.dirty) ||
			(victimFrame.dirty == fr.dirty && fr.lastUsed < victimFrame.lastUsed) {
			victim = addr
			victimFrame = fr
		}
	}
	if victimFrame == nil {
		return nil
	}
	if victimFrame.dirty {
		if err := c.flushFrameLocked(victim, victimFrame); err != nil {
			return err
		}
	}
	delete(c.frames, victim)
	return nil
}

// tick advances and returns the cache's logical clock, used in place of
// wall time so eviction order is deterministic under test.
func (c *Cache) tick() uint64 {
	return c.clock.Add(1)
}

// Close flushes every dirty frame and releases the cache's memory. It
// cannot be used afterward.
func (c *Cache) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}

	c.log.Infow("Closing block cache")

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.flushAllLocked(); err != nil {
		return err
	}
	clear(c.frames)
	c.frames = nil

	c.log.Infow("Block cache closed successfully")
	return nil
}
