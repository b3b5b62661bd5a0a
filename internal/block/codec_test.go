package block

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTripPreservesHeapBytes(t *testing.T) {
	b := New(7, KindData, 4096, []AttributeDescriptor{
		{Name: "id", Type: TypeInt, Integrity: IntegrityNotNull},
		{Name: "name", Type: TypeVarchar},
	})
	b.Heap = append(b.Heap, []byte("ava")...)
	b.Slots = []Slot{{Offset: 0, Size: 3, Type: TypeVarchar}}

	buf, err := Encode(b)
	require.NoError(t, err)

	decoded, checksumOK, err := Decode(buf, 7)
	require.NoError(t, err)
	require.True(t, checksumOK)
	require.Equal(t, b.Heap, decoded.Heap)

	s := decoded.Slots[0]
	require.Equal(t, []byte("ava"), decoded.Heap[s.Offset:s.Offset+s.Size])
}

func TestEncodeDecodeRoundTripSurvivesUndersizedTupleDict(t *testing.T) {
	// A block whose header/tuple-dict section is much smaller than the
	// distance from the dict's end to where the heap was written (as
	// happens once rows have been deleted and the dict shrinks relative
	// to an unmoved heap) must still decode the heap at its original
	// offsets rather than picking up the gap as leading padding.
	b := New(3, KindData, 1024, []AttributeDescriptor{
		{Name: "id", Type: TypeInt},
	})
	b.Heap = append(b.Heap, []byte("hello")...)
	b.Slots = []Slot{{Offset: 0, Size: 5, Type: TypeVarchar}}

	buf, err := Encode(b)
	require.NoError(t, err)

	decoded, checksumOK, err := Decode(buf, 3)
	require.NoError(t, err)
	require.True(t, checksumOK)
	require.Len(t, decoded.Heap, 5)

	s := decoded.Slots[0]
	require.Equal(t, []byte("hello"), decoded.Heap[s.Offset:s.Offset+s.Size])
}

func TestEncodeDecodeRoundTripEmptyHeap(t *testing.T) {
	b := New(1, KindData, 512, nil)

	buf, err := Encode(b)
	require.NoError(t, err)

	decoded, checksumOK, err := Decode(buf, 1)
	require.NoError(t, err)
	require.True(t, checksumOK)
	require.Empty(t, decoded.Heap)
}

func TestDecodeDetectsChecksumMismatch(t *testing.T) {
	b := New(2, KindData, 512, []AttributeDescriptor{{Name: "id", Type: TypeInt}})
	b.Heap = append(b.Heap, []byte{1, 2, 3, 4}...)
	b.Slots = []Slot{{Offset: 0, Size: 4, Type: TypeInt}}

	buf, err := Encode(b)
	require.NoError(t, err)

	buf[10] ^= 0xFF

	_, checksumOK, err := Decode(buf, 2)
	require.NoError(t, err)
	require.False(t, checksumOK)
}

func TestDecodeAllZeroBufferIsFreeBlock(t *testing.T) {
	buf := make([]byte, 512)

	decoded, checksumOK, err := Decode(buf, 5)
	require.NoError(t, err)
	require.True(t, checksumOK)
	require.Equal(t, KindFree, decoded.Kind)
}
