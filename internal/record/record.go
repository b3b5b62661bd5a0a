package record

import (
	stdErrors "errors"

	"github.com/nimbusdb/akdb/internal/block"
	"github.com/nimbusdb/akdb/internal/blockcache"
	"github.com/nimbusdb/akdb/internal/segment"
	"github.com/nimbusdb/akdb/pkg/errors"
)

// ErrNoAttributes is returned when a row's value count does not match its
// segment's declared header arity.
var ErrNoAttributes = stdErrors.New("operation failed: row arity does not match segment header")

// RowAddr is a row's slot address: a block address plus the first of the k
// consecutive tuple_dict slots (one per attribute) the row occupies, per
// the GLOSSARY's "slot address" entry, generalized from one slot to the
// contiguous run a whole row takes.
type RowAddr struct {
	Block     block.Addr
	FirstSlot int
	Count     int
}

// Valid reports whether addr names an actual slot run.
func (a RowAddr) Valid() bool {
	return a.Block != block.InvalidAddr && a.FirstSlot >= 0 && a.Count > 0
}

func encodeRow(header []block.AttributeDescriptor, values []any) ([][]byte, int, error) {
	if len(values) != len(header) {
		return nil, 0, ErrNoAttributes
	}
	cells := make([][]byte, len(values))
	total := 0
	for i, v := range values {
		cell, err := encodeCell(header[i].Type, v)
		if err != nil {
			return nil, 0, err
		}
		cells[i] = cell
		total += len(cell)
	}
	return cells, total, nil
}

// Insert writes values as a new row in segName, appending to the tail block
// of its last extent, compacting that block or extending the segment if
// the row does not fit.
func Insert(sm *segment.Map, cache *blockcache.Cache, segName string, values []any) (RowAddr, error) {
	info, err := sm.AddressesOf(segName)
	if err != nil {
		return RowAddr{}, err
	}

	cells, rowBytes, err := encodeRow(info.Header, values)
	if err != nil {
		return RowAddr{}, err
	}
	k := len(cells)
	dictGrowth := uint32(9 * k)

	addr, b, err := tailBlockWithRoom(cache, info, rowBytes, dictGrowth)
	if err != nil {
		if errors.GetErrorCode(err) != errors.ErrorCodeNoSpace {
			return RowAddr{}, err
		}
		// No block in the last extent has room even after compaction;
		// grow the segment and use the new extent's head block.
		newFrom, _, extendErr := sm.ExtendSegment(segName)
		if extendErr != nil {
			return RowAddr{}, extendErr
		}
		info, err = sm.AddressesOf(segName)
		if err != nil {
			return RowAddr{}, err
		}
		addr = newFrom
		b, err = cache.Get(addr)
		if err != nil {
			return RowAddr{}, err
		}
	}

	if b.Header == nil {
		b.Header = info.Header
	}

	firstSlot := len(b.Slots)
	for _, cell := range cells {
		offset := len(b.Heap)
		b.Heap = append(b.Heap, cell...)
		size := int32(len(cell))
		if cell == nil {
			size = block.NullSlot
		}
		b.Slots = append(b.Slots, block.Slot{Offset: int32(offset), Size: size})
	}
	// Stamp each slot's declared type from the header so a lone slot can be
	// interpreted without consulting the block header.
	for i := 0; i < k; i++ {
		b.Slots[firstSlot+i].Type = info.Header[i].Type
	}

	if err := cache.MarkDirty(addr); err != nil {
		return RowAddr{}, err
	}
	return RowAddr{Block: addr, FirstSlot: firstSlot, Count: k}, nil
}

// tailBlockWithRoom scans the last extent of info for a block with room for
// rowBytes more heap plus dictGrowth more tuple_dict bytes, compacting a
// block first if doing so would free enough space. Returns an
// *errors.EngineError with ErrorCodeNoSpace if no block in the extent has
// or can be made to have room.
func tailBlockWithRoom(cache *blockcache.Cache, info *segment.Info, rowBytes int, dictGrowth uint32) (block.Addr, *block.Block, error) {
	last := info.Extents[len(info.Extents)-1]
	for a := last.From; a <= last.To; a++ {
		b, err := cache.Get(a)
		if err != nil {
			return 0, nil, err
		}
		budget := block.HeaderAndDictBudget(b) + dictGrowth
		if b.FreeSpace(budget) >= rowBytes {
			return a, b, nil
		}
		if reclaimable(b) >= int(b.Size())/4 {
			Compact(b)
			if b.FreeSpace(budget) >= rowBytes {
				if err := cache.MarkDirty(a); err != nil {
					return 0, nil, err
				}
				return a, b, nil
			}
		}
	}
	return 0, nil, errors.NewEngineError(nil, errors.ErrorCodeNoSpace, "no block in segment's tail extent has room").WithSegmentName(info.Name)
}

// reclaimable returns the heap bytes no live slot references any more (the
// cells of deleted rows), candidates for recovery at the next compaction.
// Deletion overwrites a slot's size with the Free sentinel, so the count is
// the heap length minus the bytes of every live, non-null slot.
func reclaimable(b *block.Block) int {
	live := 0
	for _, s := range b.Slots {
		if !s.Free() && !s.Null() {
			live += int(s.Size)
		}
	}
	return len(b.Heap) - live
}

// Compact rebuilds b's heap, dropping the bytes of every free slot and
// packing the remaining cells contiguously. Run periodically once a block
// accumulates enough reclaimable holes in its free space.
func Compact(b *block.Block) {
	newHeap := make([]byte, 0, len(b.Heap))
	for i, s := range b.Slots {
		if s.Free() || s.Null() {
			continue
		}
		offset := len(newHeap)
		newHeap = append(newHeap, b.Heap[s.Offset:s.Offset+s.Size]...)
		b.Slots[i].Offset = int32(offset)
	}
	b.Heap = newHeap
}

// ReadRow decodes the row at addr according to header's declared types.
func ReadRow(cache *blockcache.Cache, header []block.AttributeDescriptor, addr RowAddr) ([]any, error) {
	if !addr.Valid() {
		return nil, errors.NewBadAddressError(int64(addr.Block))
	}
	b, err := cache.Get(addr.Block)
	if err != nil {
		return nil, err
	}
	if addr.FirstSlot+addr.Count > len(b.Slots) {
		return nil, errors.NewCorruptStateError(int64(addr.Block), "row slot run exceeds tuple_dict")
	}

	row := make([]any, addr.Count)
	for i := 0; i < addr.Count; i++ {
		s := b.Slots[addr.FirstSlot+i]
		if s.Free() {
			return nil, errors.NewNotFoundError("row")
		}
		if s.Null() {
			row[i] = nil
			continue
		}
		v, err := decodeCell(header[i].Type, b.Heap[s.Offset:s.Offset+s.Size])
		if err != nil {
			return nil, err
		}
		row[i] = v
	}
	return row, nil
}

// DeleteRow frees every slot addr's row occupies by setting slot.size to
// the Free sentinel.
func DeleteRow(cache *blockcache.Cache, addr RowAddr) error {
	if !addr.Valid() {
		return errors.NewBadAddressError(int64(addr.Block))
	}
	b, err := cache.Get(addr.Block)
	if err != nil {
		return err
	}
	for i := 0; i < addr.Count; i++ {
		b.Slots[addr.FirstSlot+i].Size = block.FreeSlot
	}
	return cache.MarkDirty(addr.Block)
}

// UpdateRow writes newValues over addr's row. A column whose new encoding
// is no larger than its current slot shrinks or rewrites in place; if any
// column grows beyond its slot, the whole row is deleted (its old slot
// marked free) and a fresh row is appended via Insert at the tail. The
// returned RowAddr is addr unchanged in the in-place case, or the new tail
// address otherwise.
func UpdateRow(sm *segment.Map, cache *blockcache.Cache, segName string, addr RowAddr, newValues []any) (RowAddr, error) {
	info, err := sm.AddressesOf(segName)
	if err != nil {
		return RowAddr{}, err
	}
	if !addr.Valid() {
		return RowAddr{}, errors.NewBadAddressError(int64(addr.Block))
	}

	cells, _, err := encodeRow(info.Header, newValues)
	if err != nil {
		return RowAddr{}, err
	}

	b, err := cache.Get(addr.Block)
	if err != nil {
		return RowAddr{}, err
	}
	if addr.FirstSlot+addr.Count > len(b.Slots) {
		return RowAddr{}, errors.NewCorruptStateError(int64(addr.Block), "row slot run exceeds tuple_dict")
	}

	fitsInPlace := true
	for i, cell := range cells {
		s := b.Slots[addr.FirstSlot+i]
		if s.Free() {
			return RowAddr{}, errors.NewNotFoundError("row")
		}
		if cell != nil && (s.Null() || int32(len(cell)) > s.Size) {
			fitsInPlace = false
			break
		}
	}

	if fitsInPlace {
		for i, cell := range cells {
			idx := addr.FirstSlot + i
			if cell == nil {
				b.Slots[idx].Size = block.NullSlot
				continue
			}
			copy(b.Heap[b.Slots[idx].Offset:], cell)
			b.Slots[idx].Size = int32(len(cell))
		}
		if err := cache.MarkDirty(addr.Block); err != nil {
			return RowAddr{}, err
		}
		return addr, nil
	}

	if err := DeleteRow(cache, addr); err != nil {
		return RowAddr{}, err
	}
	return Insert(sm, cache, segName, newValues)
}

// Count returns how many live rows segName currently holds, scanning every
// extent in catalog order.
func Count(sm *segment.Map, cache *blockcache.Cache, segName string) (int, error) {
	info, err := sm.AddressesOf(segName)
	if err != nil {
		return 0, err
	}
	k := len(info.Header)
	if k == 0 {
		return 0, nil
	}

	n := 0
	for _, ext := range info.Extents {
		for a := ext.From; a <= ext.To; a++ {
			b, err := cache.Get(a)
			if err != nil {
				return 0, err
			}
			// Slot 0 of the head block holds the segment's own metadata.
			start := 0
			if a == info.FirstAddr() {
				start = 1
			}
			for j := start; j+k <= len(b.Slots); j += k {
				if !b.Slots[j].Free() {
					n++
				}
			}
		}
	}
	return n, nil
}

// Scan invokes fn with the RowAddr and decoded values of every live row in
// segName, in deterministic catalog order, stopping early if fn returns
// false.
func Scan(sm *segment.Map, cache *blockcache.Cache, segName string, fn func(RowAddr, []any) (bool, error)) error {
	info, err := sm.AddressesOf(segName)
	if err != nil {
		return err
	}
	k := len(info.Header)
	if k == 0 {
		return nil
	}

	for _, ext := range info.Extents {
		for a := ext.From; a <= ext.To; a++ {
			b, err := cache.Get(a)
			if err != nil {
				return err
			}
			// Slot 0 of the head block holds the segment's own metadata.
			start := 0
			if a == info.FirstAddr() {
				start = 1
			}
			for j := start; j+k <= len(b.Slots); j += k {
				if b.Slots[j].Free() {
					continue
				}
				addr := RowAddr{Block: a, FirstSlot: j, Count: k}
				row, err := ReadRow(cache, info.Header, addr)
				if err != nil {
					return err
				}
				cont, err := fn(addr, row)
				if err != nil {
					return err
				}
				if !cont {
					return nil
				}
			}
		}
	}
	return nil
}
