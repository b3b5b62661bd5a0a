// Package record implements L3: row insert, read, update, and delete within
// a segment's blocks, following a tuple-dictionary discipline: a row
// occupies one tuple_dict slot per attribute, the slots for one row are
// written contiguously, and the heap grows backward from the block's end.
package record

import (
	"encoding/binary"
	"math"

	"github.com/nimbusdb/akdb/internal/block"
	"github.com/nimbusdb/akdb/pkg/errors"
)

// Null is the sentinel value a caller supplies for a SQL null cell.
var Null = struct{}{}

// encodeCell renders one attribute value into its heap bytes per its
// declared type. A nil value (or the package's Null sentinel) encodes to
// zero bytes; the caller records nullness in the slot, not the heap.
func encodeCell(t block.Type, v any) ([]byte, error) {
	if v == nil || v == Null {
		return nil, nil
	}
	switch t {
	case block.TypeInt:
		i, err := asInt64(v)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, uint64(i))
		return buf, nil
	case block.TypeFloat:
		f, err := asFloat64(v)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, math.Float64bits(f))
		return buf, nil
	case block.TypeBool:
		b, ok := v.(bool)
		if !ok {
			return nil, errors.NewSchemaViolationError("", "", "expected bool value")
		}
		if b {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case block.TypeVarchar:
		s, ok := v.(string)
		if !ok {
			return nil, errors.NewSchemaViolationError("", "", "expected string value")
		}
		return []byte(s), nil
	default:
		return nil, errors.NewSchemaViolationError("", "", "unknown attribute type")
	}
}

// decodeCell parses one cell's heap bytes back into a Go value of the
// shape its type implies.
func decodeCell(t block.Type, buf []byte) (any, error) {
	switch t {
	case block.TypeInt:
		if len(buf) != 8 {
			return nil, errors.NewCorruptStateError(-1, "malformed int cell")
		}
		return int64(binary.LittleEndian.Uint64(buf)), nil
	case block.TypeFloat:
		if len(buf) != 8 {
			return nil, errors.NewCorruptStateError(-1, "malformed float cell")
		}
		return math.Float64frombits(binary.LittleEndian.Uint64(buf)), nil
	case block.TypeBool:
		if len(buf) != 1 {
			return nil, errors.NewCorruptStateError(-1, "malformed bool cell")
		}
		return buf[0] != 0, nil
	case block.TypeVarchar:
		return string(buf), nil
	default:
		return nil, errors.NewCorruptStateError(-1, "unknown attribute type")
	}
}

func asInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	default:
		return 0, errors.NewSchemaViolationError("", "", "expected integer value")
	}
}

func asFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int:
		return float64(n), nil
	default:
		return 0, errors.NewSchemaViolationError("", "", "expected numeric value")
	}
}
