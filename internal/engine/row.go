package engine

import (
	"github.com/nimbusdb/akdb/internal/block"
	"github.com/nimbusdb/akdb/internal/record"
)

// RowAddr names one row's storage location: a block address plus the slot
// run within it. Re-exported from internal/record so callers outside the
// engine package never need to import that package directly.
type RowAddr = record.RowAddr

func attrIndexOf(header []block.AttributeDescriptor, name string) int {
	for i, a := range header {
		if a.Name == name {
			return i
		}
	}
	return -1
}
