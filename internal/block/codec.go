package block

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// magic identifies a well-formed AKDB block at the start of every block's
// bytes.
var magic = [4]byte{'A', 'K', 'D', 'B'}

const (
	checksumSize = 8 // xxhash.Sum64 output
	magicSize    = 4
	kindSize     = 1
	heapLenSize  = 4 // byte length of the heap, stored so Decode knows where it starts
)

// codecError reports a block that cannot be encoded into its size or a
// buffer that does not decode as a well-formed block.
type codecError struct{ msg string }

func (e *codecError) Error() string { return e.msg }

// headerEncodedSize returns the byte length the header section occupies.
func headerEncodedSize(header []AttributeDescriptor) int {
	n := 2 // attribute count
	for _, a := range header {
		n += 2 + len(a.Name) + 1 + 1 // name length + name + type + integrity
	}
	return n
}

// dictEncodedSize returns the byte length the tuple dictionary occupies.
func dictEncodedSize(slots []Slot) int {
	return 2 + len(slots)*(4+4+1) // slot count + (offset,size,type) per slot
}

// HeaderAndDictBudget returns the number of bytes the header and tuple_dict
// sections of b currently occupy on disk, the quantity internal/record needs
// to compute remaining free space in the block.
func HeaderAndDictBudget(b *Block) uint32 {
	return uint32(magicSize + kindSize + headerEncodedSize(b.Header) + dictEncodedSize(b.Slots) + heapLenSize + checksumSize)
}

// Encode serializes b into a buffer of exactly b.blockSize bytes, little
// endian throughout, trailing the payload with an xxhash checksum. The
// heap occupies the tail of the block, growing backward from the
// checksum.
func Encode(b *Block) ([]byte, error) {
	buf := make([]byte, b.blockSize)
	off := 0

	copy(buf[off:], magic[:])
	off += magicSize

	buf[off] = byte(b.Kind)
	off += kindSize

	binary.LittleEndian.PutUint16(buf[off:], uint16(len(b.Header)))
	off += 2
	for _, a := range b.Header {
		if off+2+len(a.Name)+2 > len(buf) {
			return nil, &codecError{fmt.Sprintf("block %d: header overflows block size %d", b.Addr, b.blockSize)}
		}
		binary.LittleEndian.PutUint16(buf[off:], uint16(len(a.Name)))
		off += 2
		copy(buf[off:], a.Name)
		off += len(a.Name)
		buf[off] = byte(a.Type)
		off++
		buf[off] = byte(a.Integrity)
		off++
	}

	binary.LittleEndian.PutUint16(buf[off:], uint16(len(b.Slots)))
	off += 2
	for _, s := range b.Slots {
		if off+9 > len(buf) {
			return nil, &codecError{fmt.Sprintf("block %d: tuple dict overflows block size %d", b.Addr, b.blockSize)}
		}
		binary.LittleEndian.PutUint32(buf[off:], uint32(s.Offset))
		off += 4
		binary.LittleEndian.PutUint32(buf[off:], uint32(s.Size))
		off += 4
		buf[off] = byte(s.Type)
		off++
	}

	binary.LittleEndian.PutUint32(buf[off:], uint32(len(b.Heap)))
	off += heapLenSize

	heapStart := int(b.blockSize) - checksumSize - len(b.Heap)
	if heapStart < off {
		return nil, &codecError{fmt.Sprintf("block %d: heap of %d bytes does not fit remaining %d bytes", b.Addr, len(b.Heap), int(b.blockSize)-checksumSize-off)}
	}
	copy(buf[heapStart:], b.Heap)

	sum := xxhash.Sum64(buf[:len(buf)-checksumSize])
	binary.LittleEndian.PutUint64(buf[len(buf)-checksumSize:], sum)

	return buf, nil
}

// Decode parses a raw block buffer back into a Block, validating the magic
// prefix and trailing checksum. A checksum mismatch or malformed section is
// reported as CorruptState by the caller (internal/diskmgr), not here —
// this package only reports shape errors.
func Decode(buf []byte, addr Addr) (*Block, bool, error) {
	blockSize := uint32(len(buf))
	if len(buf) < magicSize+kindSize+2+2+checksumSize {
		return nil, false, &codecError{"buffer too small to be a block"}
	}

	gotSum := binary.LittleEndian.Uint64(buf[len(buf)-checksumSize:])
	wantSum := xxhash.Sum64(buf[:len(buf)-checksumSize])
	checksumOK := gotSum == wantSum

	if string(buf[:magicSize]) != string(magic[:]) {
		// An all-zero buffer (never written) is a legitimate Free block,
		// not corruption; only flag a mismatch as corrupt if some of the
		// block has clearly been written to.
		allZero := true
		for _, c := range buf {
			if c != 0 {
				allZero = false
				break
			}
		}
		if allZero {
			return &Block{Addr: addr, Kind: KindFree, blockSize: blockSize}, true, nil
		}
		return nil, false, &codecError{"bad magic prefix"}
	}

	off := magicSize
	kind := Kind(buf[off])
	off += kindSize

	headerCount := int(binary.LittleEndian.Uint16(buf[off:]))
	off += 2
	header := make([]AttributeDescriptor, 0, headerCount)
	for i := 0; i < headerCount; i++ {
		if off+2 > len(buf) {
			return nil, false, &codecError{"truncated header"}
		}
		nameLen := int(binary.LittleEndian.Uint16(buf[off:]))
		off += 2
		if off+nameLen+2 > len(buf) {
			return nil, false, &codecError{"truncated header attribute"}
		}
		name := string(buf[off : off+nameLen])
		off += nameLen
		t := Type(buf[off])
		off++
		integrity := IntegrityFlags(buf[off])
		off++
		header = append(header, AttributeDescriptor{Name: name, Type: t, Integrity: integrity})
	}

	slotCount := int(binary.LittleEndian.Uint16(buf[off:]))
	off += 2
	slots := make([]Slot, 0, slotCount)
	for i := 0; i < slotCount; i++ {
		if off+9 > len(buf) {
			return nil, false, &codecError{"truncated tuple dict"}
		}
		o := int32(binary.LittleEndian.Uint32(buf[off:]))
		off += 4
		sz := int32(binary.LittleEndian.Uint32(buf[off:]))
		off += 4
		t := Type(buf[off])
		off++
		slots = append(slots, Slot{Offset: o, Size: sz, Type: t})
	}

	if off+heapLenSize > len(buf)-checksumSize {
		return nil, false, &codecError{"truncated heap length"}
	}
	heapLen := int(binary.LittleEndian.Uint32(buf[off:]))
	off += heapLenSize

	heapEnd := len(buf) - checksumSize
	heapStart := heapEnd - heapLen
	if heapStart < off || heapStart > heapEnd {
		return nil, false, &codecError{"heap length out of range"}
	}
	heap := make([]byte, 0, heapLen)
	heap = append(heap, buf[heapStart:heapEnd]...)

	b := &Block{
		Addr:      addr,
		Kind:      kind,
		Header:    header,
		Slots:     slots,
		Heap:      heap,
		blockSize: blockSize,
	}
	return b, checksumOK, nil
}
