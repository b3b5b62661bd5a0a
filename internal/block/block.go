// Package block defines the fixed-size on-disk unit every AKDB storage layer
// speaks: the Block. A Block carries a kind tag, a self-describing attribute
// header, a bounded tuple dictionary, and a byte heap. Every layer from
// internal/diskmgr up borrows this type rather than each defining its own;
// it is the one struct shared across every subsystem boundary.
package block

import "fmt"

// Addr is a block address: a non-negative integer unique within one
// database file.
type Addr int64

// InvalidAddr is the sentinel returned by lookups that found nothing.
const InvalidAddr Addr = -1

// Kind tags what a block currently holds: a tagged union where Kind is the
// tag and callers switch on it to choose how to interpret Slots/Heap.
type Kind uint8

const (
	KindFree Kind = iota
	KindExtentHead
	KindData
	KindIndexInfo
	KindIndexMain
	KindIndexHash
	KindTemp
)

// String renders a Kind for logging and error messages.
func (k Kind) String() string {
	switch k {
	case KindFree:
		return "free"
	case KindExtentHead:
		return "extent_head"
	case KindData:
		return "data"
	case KindIndexInfo:
		return "index_info"
	case KindIndexMain:
		return "index_main"
	case KindIndexHash:
		return "index_hash"
	case KindTemp:
		return "temp"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Type is the logical type of one attribute/cell value, carried in both the
// block header and each tuple_dict slot so the slot's type can be checked
// against the header's declared type.
type Type uint8

const (
	TypeInt Type = iota
	TypeFloat
	TypeVarchar
	TypeBool
)

// String renders a Type for logging and error messages.
func (t Type) String() string {
	switch t {
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeVarchar:
		return "varchar"
	case TypeBool:
		return "bool"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// IntegrityFlags marks the per-attribute constraints declared inline in a
// header entry. Constraint rows in internal/catalog are the source of
// truth; these flags are a denormalized, fast-path mirror so internal/record
// can reject an obviously-null NOT NULL column without a catalog round trip.
type IntegrityFlags uint8

const (
	IntegrityNone    IntegrityFlags = 0
	IntegrityNotNull IntegrityFlags = 1 << (iota - 1)
	IntegrityUnique
	IntegrityIndexed
)

// AttributeDescriptor is one entry of a block's header: the name, logical
// type, and integrity flags of one column of the owning segment's schema.
// This descriptor is repeated in every block of a data segment, not just
// the head block, so a block can be interpreted in isolation during
// recovery.
type AttributeDescriptor struct {
	Name      string
	Type      Type
	Integrity IntegrityFlags
}

// FreeSlot is the sentinel size/offset recorded for a deleted or
// not-yet-used tuple_dict slot.
const FreeSlot = -1

// NullSlot is the sentinel slot size recording the SQL null value: the cell
// owns no heap bytes, distinct from a Free slot which owns no row at all.
const NullSlot = -2

// Slot is one tuple_dict entry: an (offset, size, type) triple locating one
// cell's bytes in the heap. Its index within Block.Slots is the intra-block
// tuple id, the "slot address" component of a row's address.
type Slot struct {
	Offset int32
	Size   int32
	Type   Type
}

// Free reports whether this slot has been deleted: deletion sets
// slot.size to the Free sentinel.
func (s Slot) Free() bool {
	return s.Size == FreeSlot
}

// Null reports whether this slot holds the SQL null value.
func (s Slot) Null() bool {
	return s.Size == NullSlot
}

// Block is the in-memory representation of one fixed-size disk block.
type Block struct {
	Addr   Addr
	Kind   Kind
	Header []AttributeDescriptor
	Slots  []Slot
	Heap   []byte // raw cell bytes, referenced by Slot.Offset/Slot.Size

	// blockSize is the fixed on-disk size this block must serialize to; it
	// is carried on the value (rather than being a package constant) so a
	// single process can in principle operate files with different sizes
	// during migration, though within one file it never changes after Init.
	blockSize uint32
}

// New returns an empty block of the given kind and size, with no slots and
// an empty heap, ready to accept a header and tuples.
func New(addr Addr, kind Kind, blockSize uint32, header []AttributeDescriptor) *Block {
	return &Block{
		Addr:      addr,
		Kind:      kind,
		Header:    header,
		Slots:     nil,
		Heap:      make([]byte, 0, blockSize),
		blockSize: blockSize,
	}
}

// Size returns the fixed on-disk size of this block.
func (b *Block) Size() uint32 {
	return b.blockSize
}

// FreeSpace returns the number of bytes still available in the heap:
// block size minus heap-start offset minus the sum of used slot sizes.
// headerAndDictBudget is the byte cost of the header and tuple_dict
// sections as currently sized; it is supplied by the codec, which alone
// knows the on-disk encoding of those sections.
func (b *Block) FreeSpace(headerAndDictBudget uint32) int {
	used := 0
	for _, s := range b.Slots {
		if !s.Free() && !s.Null() {
			used += int(s.Size)
		}
	}
	avail := int(b.blockSize) - int(headerAndDictBudget) - used
	if avail < 0 {
		return 0
	}
	return avail
}

// LastSlotID returns the high-water mark in the tuple dictionary, or -1 if
// no slot has ever been allocated.
func (b *Block) LastSlotID() int {
	return len(b.Slots) - 1
}
