package hashindex

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/nimbusdb/akdb/internal/block"
	"github.com/nimbusdb/akdb/internal/blockcache"
	"github.com/nimbusdb/akdb/internal/segment"
	"github.com/nimbusdb/akdb/pkg/errors"
)

const hashInfoSlot = 1 // slot 0 of the head block belongs to internal/segment's own bookkeeping.

// HashValue computes the hash value of a row's indexed attributes:
// integer attributes contribute their value, varchar attributes contribute
// a mix of their bytes, summed across attributes for a multi-attribute
// index. mixer selects the varchar mixing function: "sum" is a simple
// byte-sum (collision-prone, relies on the caller's validate callback to
// rule out false matches), "xxhash" trades that collision rate for a
// proper hash.
func HashValue(mixer string, types []block.Type, values []any) int64 {
	var total int64
	for i, t := range types {
		switch t {
		case block.TypeInt:
			if n, ok := values[i].(int64); ok {
				total += n
			}
		case block.TypeVarchar:
			s, _ := values[i].(string)
			if mixer == "xxhash" {
				total += int64(xxhash.Sum64String(s) & 0x7fffffffffffffff)
			} else {
				var sum int64
				for _, c := range []byte(s) {
					sum += int64(c)
				}
				total += sum
			}
		case block.TypeBool:
			if b, ok := values[i].(bool); ok && b {
				total++
			}
		case block.TypeFloat:
			if f, ok := values[i].(float64); ok {
				total += int64(f)
			}
		}
	}
	return total
}

// Create allocates a fresh index segment with an empty directory (modulo
// 0), lazily initialized on the first insert.
func Create(sm *segment.Map, cache *blockcache.Cache, log *zap.SugaredLogger, segName string, mixer string) (*Index, error) {
	if _, err := sm.CreateSegment(segName, block.KindIndexInfo, segment.CategoryIndex, nil); err != nil {
		return nil, err
	}
	ix := &Index{sm: sm, cache: cache, log: log, segName: segName, mixer: mixer}
	if err := ix.writeHashInfo(&HashInfo{}); err != nil {
		return nil, err
	}
	return ix, nil
}

// Open attaches to an already-catalogued index segment.
func Open(sm *segment.Map, cache *blockcache.Cache, log *zap.SugaredLogger, segName string, mixer string) *Index {
	return &Index{sm: sm, cache: cache, log: log, segName: segName, mixer: mixer}
}

func (ix *Index) headAddr() (block.Addr, error) {
	info, err := ix.sm.AddressesOf(ix.segName)
	if err != nil {
		return 0, err
	}
	return info.FirstAddr(), nil
}

func (ix *Index) readHashInfo() (*HashInfo, error) {
	addr, err := ix.headAddr()
	if err != nil {
		return nil, err
	}
	head, err := ix.cache.Get(addr)
	if err != nil {
		return nil, err
	}
	if len(head.Slots) <= hashInfoSlot {
		return &HashInfo{}, nil
	}
	s := head.Slots[hashInfoSlot]
	buf := head.Heap[s.Offset : s.Offset+s.Size]
	return &HashInfo{
		Modulo:          int64(binary.LittleEndian.Uint64(buf[0:8])),
		MainBucketCount: int64(binary.LittleEndian.Uint64(buf[8:16])),
		HashBucketCount: int64(binary.LittleEndian.Uint64(buf[16:24])),
	}, nil
}

func (ix *Index) writeHashInfo(info *HashInfo) error {
	addr, err := ix.headAddr()
	if err != nil {
		return err
	}
	head, err := ix.cache.Get(addr)
	if err != nil {
		return err
	}

	buf := make([]byte, 24)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(info.Modulo))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(info.MainBucketCount))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(info.HashBucketCount))

	if len(head.Slots) <= hashInfoSlot {
		offset := len(head.Heap)
		head.Heap = append(head.Heap, buf...)
		head.Slots = append(head.Slots, block.Slot{Offset: int32(offset), Size: int32(len(buf)), Type: block.TypeInt})
	} else {
		s := head.Slots[hashInfoSlot]
		copy(head.Heap[s.Offset:s.Offset+s.Size], buf)
	}
	return ix.cache.MarkDirty(addr)
}

// claimBlock finds the first not-yet-claimed block in the index segment
// (one still carrying the placeholder KindIndexInfo tag from allocation)
// and relabels it kind, extending the segment first if none is free.
func (ix *Index) claimBlock(kind block.Kind) (block.Addr, *block.Block, error) {
	for attempt := 0; attempt < 2; attempt++ {
		info, err := ix.sm.AddressesOf(ix.segName)
		if err != nil {
			return 0, nil, err
		}
		head := info.FirstAddr()
		for _, ext := range info.Extents {
			for a := ext.From; a <= ext.To; a++ {
				if a == head {
					continue
				}
				b, err := ix.cache.Get(a)
				if err != nil {
					return 0, nil, err
				}
				if b.Kind == block.KindIndexInfo {
					b.Kind = kind
					if err := ix.cache.MarkDirty(a); err != nil {
						return 0, nil, err
					}
					return a, b, nil
				}
			}
		}
		if _, _, err := ix.sm.ExtendSegment(ix.segName); err != nil {
			return 0, nil, err
		}
	}
	return 0, nil, errors.NewEngineError(nil, errors.ErrorCodeNoSpace, "index segment has no claimable block").WithSegmentName(ix.segName)
}

// mainBucketAt returns the address of the i-th main bucket, in the
// catalog-ordered traversal of the segment's extents.
func (ix *Index) mainBucketAt(i int64) (block.Addr, error) {
	info, err := ix.sm.AddressesOf(ix.segName)
	if err != nil {
		return 0, err
	}
	head := info.FirstAddr()
	var n int64
	for _, ext := range info.Extents {
		for a := ext.From; a <= ext.To; a++ {
			if a == head {
				continue
			}
			b, err := ix.cache.Get(a)
			if err != nil {
				return 0, err
			}
			if b.Kind != block.KindIndexMain {
				continue
			}
			if n == i {
				return a, nil
			}
			n++
		}
	}
	return 0, errors.NewEngineError(nil, errors.ErrorCodeCorruptState, "main bucket index out of range").WithSegmentName(ix.segName)
}

func (ix *Index) readMainEntry(addr block.Addr, slot int) (block.Addr, error) {
	b, err := ix.cache.Get(addr)
	if err != nil {
		return 0, err
	}
	if slot >= len(b.Slots) {
		return 0, errors.NewCorruptStateError(int64(addr), "main bucket entry out of range")
	}
	s := b.Slots[slot]
	return block.Addr(int64(binary.LittleEndian.Uint64(b.Heap[s.Offset : s.Offset+s.Size]))), nil
}

func (ix *Index) writeMainEntry(addr block.Addr, slot int, target block.Addr) error {
	b, err := ix.cache.Get(addr)
	if err != nil {
		return err
	}
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(target))
	for len(b.Slots) <= slot {
		offset := len(b.Heap)
		b.Heap = append(b.Heap, make([]byte, 8)...)
		b.Slots = append(b.Slots, block.Slot{Offset: int32(offset), Size: 8, Type: block.TypeInt})
	}
	s := b.Slots[slot]
	copy(b.Heap[s.Offset:s.Offset+s.Size], buf)
	return ix.cache.MarkDirty(addr)
}

func (ix *Index) readBucketLevel(addr block.Addr) (int64, error) {
	b, err := ix.cache.Get(addr)
	if err != nil {
		return 0, err
	}
	if len(b.Slots) <= HashBucketSize {
		return 0, errors.NewCorruptStateError(int64(addr), "hash bucket missing level slot")
	}
	s := b.Slots[HashBucketSize]
	return int64(binary.LittleEndian.Uint64(b.Heap[s.Offset : s.Offset+s.Size])), nil
}

func (ix *Index) writeBucketLevel(addr block.Addr, level int64) error {
	b, err := ix.cache.Get(addr)
	if err != nil {
		return err
	}
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(level))
	for len(b.Slots) <= HashBucketSize {
		offset := len(b.Heap)
		b.Heap = append(b.Heap, make([]byte, 8)...)
		b.Slots = append(b.Slots, block.Slot{Offset: int32(offset), Size: block.FreeSlot, Type: block.TypeInt})
	}
	s := b.Slots[HashBucketSize]
	b.Slots[HashBucketSize].Size = int32(len(buf))
	copy(b.Heap[s.Offset:s.Offset+int32(len(buf))], buf)
	return ix.cache.MarkDirty(addr)
}

func (ix *Index) readEntry(bucketAddr block.Addr, slot int) (Entry, bool, error) {
	b, err := ix.cache.Get(bucketAddr)
	if err != nil {
		return Entry{}, false, err
	}
	if slot >= len(b.Slots) || b.Slots[slot].Free() {
		return Entry{}, false, nil
	}
	s := b.Slots[slot]
	buf := b.Heap[s.Offset : s.Offset+s.Size]
	return Entry{
		Value:    int64(binary.LittleEndian.Uint64(buf[0:8])),
		RowBlock: int64(binary.LittleEndian.Uint64(buf[8:16])),
		RowSlot:  int64(binary.LittleEndian.Uint64(buf[16:24])),
	}, true, nil
}

func (ix *Index) writeEntry(bucketAddr block.Addr, slot int, e Entry) error {
	b, err := ix.cache.Get(bucketAddr)
	if err != nil {
		return err
	}
	buf := make([]byte, 24)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(e.Value))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(e.RowBlock))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(e.RowSlot))

	for len(b.Slots) <= slot {
		offset := len(b.Heap)
		b.Heap = append(b.Heap, make([]byte, 24)...)
		b.Slots = append(b.Slots, block.Slot{Offset: int32(offset), Size: block.FreeSlot, Type: block.TypeInt})
	}
	s := b.Slots[slot]
	if s.Size == block.FreeSlot {
		offset := len(b.Heap)
		b.Heap = append(b.Heap, buf...)
		b.Slots[slot] = block.Slot{Offset: int32(offset), Size: int32(len(buf)), Type: block.TypeInt}
	} else {
		copy(b.Heap[s.Offset:s.Offset+s.Size], buf)
	}
	return ix.cache.MarkDirty(bucketAddr)
}

func (ix *Index) freeEntry(bucketAddr block.Addr, slot int) error {
	b, err := ix.cache.Get(bucketAddr)
	if err != nil {
		return err
	}
	if slot >= len(b.Slots) {
		return nil
	}
	b.Slots[slot].Size = block.FreeSlot
	return ix.cache.MarkDirty(bucketAddr)
}

// newHashBucket claims a fresh block, tags it KindIndexHash, and stamps its
// level.
func (ix *Index) newHashBucket(level int64) (block.Addr, error) {
	addr, _, err := ix.claimBlock(block.KindIndexHash)
	if err != nil {
		return 0, err
	}
	if err := ix.writeBucketLevel(addr, level); err != nil {
		return 0, err
	}
	return addr, nil
}

// locate resolves hash value v to its bucket id and the address of the
// hash bucket currently responsible for it.
func (ix *Index) locate(v int64, info *HashInfo) (bucketID int64, hashAddr block.Addr, mainAddr block.Addr, mainSlot int, err error) {
	bucketID = v % info.Modulo
	if bucketID < 0 {
		bucketID += info.Modulo
	}
	mainIndex := bucketID / MainBucketSize
	mainAddr, err = ix.mainBucketAt(mainIndex)
	if err != nil {
		return
	}
	mainSlot = int(bucketID % MainBucketSize)
	hashAddr, err = ix.readMainEntry(mainAddr, mainSlot)
	return
}

// Lookup finds the slot address of the row matching hash value v, calling
// validate to rule out hash collisions: the hash is not injective, so
// validation is mandatory.
func (ix *Index) Lookup(v int64, validate func(rowBlock block.Addr, rowSlot int64) (bool, error)) (block.Addr, int64, error) {
	info, err := ix.readHashInfo()
	if err != nil {
		return 0, 0, err
	}
	if info.Modulo == 0 {
		return 0, 0, errors.NewNotFoundError("index entry")
	}

	_, hashAddr, _, _, err := ix.locate(v, info)
	if err != nil {
		return 0, 0, err
	}

	for slot := 0; slot < HashBucketSize; slot++ {
		e, ok, err := ix.readEntry(hashAddr, slot)
		if err != nil {
			return 0, 0, err
		}
		if !ok || e.Value != v {
			continue
		}
		match, err := validate(block.Addr(e.RowBlock), e.RowSlot)
		if err != nil {
			return 0, 0, err
		}
		if match {
			return block.Addr(e.RowBlock), e.RowSlot, nil
		}
	}
	return 0, 0, errors.NewNotFoundError("index entry")
}

// Insert adds (v, rowBlock:rowSlot) to the index, splitting and doubling
// the directory as needed.
func (ix *Index) Insert(v int64, rowBlock block.Addr, rowSlot int64) error {
	info, err := ix.readHashInfo()
	if err != nil {
		return err
	}

	if info.Modulo == 0 {
		mainAddr, _, err := ix.claimBlock(block.KindIndexMain)
		if err != nil {
			return err
		}
		for i := 0; i < MainBucketSize; i++ {
			hb, err := ix.newHashBucket(MainBucketSize)
			if err != nil {
				return err
			}
			if err := ix.writeMainEntry(mainAddr, i, hb); err != nil {
				return err
			}
		}
		info = &HashInfo{Modulo: MainBucketSize, MainBucketCount: 1, HashBucketCount: MainBucketSize}
		if err := ix.writeHashInfo(info); err != nil {
			return err
		}
	}

	for {
		bucketID, hashAddr, mainAddr, mainSlot, err := ix.locate(v, info)
		if err != nil {
			return err
		}

		freeSlot := -1
		for slot := 0; slot < HashBucketSize; slot++ {
			e, ok, err := ix.readEntry(hashAddr, slot)
			if err != nil {
				return err
			}
			if !ok {
				freeSlot = slot
				break
			}
			_ = e
		}
		if freeSlot >= 0 {
			return ix.writeEntry(hashAddr, freeSlot, Entry{Value: v, RowBlock: int64(rowBlock), RowSlot: rowSlot})
		}

		level, err := ix.readBucketLevel(hashAddr)
		if err != nil {
			return err
		}

		if level == info.Modulo {
			if err := ix.doubleDirectory(info); err != nil {
				return err
			}
			continue
		}

		siblingID := (bucketID + info.Modulo/2) % info.Modulo
		newLevel := level * 2
		siblingAddr, err := ix.newHashBucket(newLevel)
		if err != nil {
			return err
		}

		siblingMainIndex := siblingID / MainBucketSize
		siblingMainAddr, err := ix.mainBucketAt(siblingMainIndex)
		if err != nil {
			return err
		}
		if err := ix.writeMainEntry(siblingMainAddr, int(siblingID%MainBucketSize), siblingAddr); err != nil {
			return err
		}
		if err := ix.writeBucketLevel(hashAddr, newLevel); err != nil {
			return err
		}

		entries := make([]Entry, 0, HashBucketSize)
		for slot := 0; slot < HashBucketSize; slot++ {
			e, ok, err := ix.readEntry(hashAddr, slot)
			if err != nil {
				return err
			}
			if ok {
				entries = append(entries, e)
				if err := ix.freeEntry(hashAddr, slot); err != nil {
					return err
				}
			}
		}
		_ = mainAddr
		_ = mainSlot
		for _, e := range entries {
			target := e.Value % info.Modulo
			if target < 0 {
				target += info.Modulo
			}
			var dest block.Addr
			if target == bucketID {
				dest = hashAddr
			} else {
				dest = siblingAddr
			}
			if err := ix.rehashInto(dest, e); err != nil {
				return err
			}
		}
	}
}

// rehashInto writes e into the first free slot of bucket dest, used only
// during a split where by construction a free slot exists.
func (ix *Index) rehashInto(dest block.Addr, e Entry) error {
	for slot := 0; slot < HashBucketSize; slot++ {
		_, ok, err := ix.readEntry(dest, slot)
		if err != nil {
			return err
		}
		if !ok {
			return ix.writeEntry(dest, slot, e)
		}
	}
	return errors.NewEngineError(nil, errors.ErrorCodeCorruptState, "hash bucket split left no room for rehashed entry")
}

// doubleDirectory duplicates every main bucket so each new main bucket
// initially points at the same hash buckets as its original, then doubles
// modulo and main bucket count.
func (ix *Index) doubleDirectory(info *HashInfo) error {
	oldCount := info.MainBucketCount
	for i := int64(0); i < oldCount; i++ {
		oldAddr, err := ix.mainBucketAt(i)
		if err != nil {
			return err
		}
		newAddr, _, err := ix.claimBlock(block.KindIndexMain)
		if err != nil {
			return err
		}
		for slot := 0; slot < MainBucketSize; slot++ {
			target, err := ix.readMainEntry(oldAddr, slot)
			if err != nil {
				return err
			}
			if err := ix.writeMainEntry(newAddr, slot, target); err != nil {
				return err
			}
		}
	}
	info.Modulo *= 2
	info.MainBucketCount *= 2
	return ix.writeHashInfo(info)
}

// Delete removes the entry for hash value v whose row matches per
// validate.
func (ix *Index) Delete(v int64, validate func(rowBlock block.Addr, rowSlot int64) (bool, error)) error {
	info, err := ix.readHashInfo()
	if err != nil {
		return err
	}
	if info.Modulo == 0 {
		return errors.NewNotFoundError("index entry")
	}

	_, hashAddr, _, _, err := ix.locate(v, info)
	if err != nil {
		return err
	}

	for slot := 0; slot < HashBucketSize; slot++ {
		e, ok, err := ix.readEntry(hashAddr, slot)
		if err != nil {
			return err
		}
		if !ok || e.Value != v {
			continue
		}
		match, err := validate(block.Addr(e.RowBlock), e.RowSlot)
		if err != nil {
			return err
		}
		if match {
			return ix.freeEntry(hashAddr, slot)
		}
	}
	return errors.NewNotFoundError("index entry")
}
