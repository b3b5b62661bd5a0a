package redolog

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"

	"github.com/nimbusdb/akdb/pkg/errors"
	"github.com/nimbusdb/akdb/pkg/filesys"
	"github.com/nimbusdb/akdb/pkg/seginfo"
)

const archivePrefix = "redolog"
const pointerFileName = "CURRENT"

// archiveLocked serializes the current ring to a dated file under
// ArchiveLogDirectory and rewrites the pointer file naming it: the
// directory holds dated files plus a pointer file naming the most recent
// archive. Callers must hold l.mu.
func (l *Log) archiveLocked() error {
	dir := l.options.ArchiveLogDirectory
	if dir == "" {
		dir = filepath.Join(l.options.DataDir, "archivelog")
	}
	if err := filesys.CreateDir(dir, 0755, true); err != nil {
		return errors.NewStorageError(err, errors.ErrorCodeIO, "failed to create archive log directory").WithPath(dir)
	}

	if l.sequence == 0 {
		last, info, err := seginfo.GetLastSegmentInfo(dir, ".", archivePrefix)
		if err == nil && info != nil {
			l.sequence = last + 1
		} else {
			l.sequence = 1
		}
	}

	name := seginfo.GenerateName(l.sequence, archivePrefix)
	path := filepath.Join(dir, name)

	buf := encodeEntries(l.entries)
	if err := filesys.WriteFile(path, 0644, buf); err != nil {
		return errors.NewStorageError(err, errors.ErrorCodeIO, "failed to write redo log archive").WithPath(path)
	}

	pointerPath := filepath.Join(dir, pointerFileName)
	if err := os.WriteFile(pointerPath, []byte(name), 0644); err != nil {
		return errors.NewStorageError(err, errors.ErrorCodeIO, "failed to write archive pointer file").WithPath(pointerPath)
	}

	l.log.Infow("Redo log archived", "file", name, "entries", len(l.entries))
	l.sequence++
	l.entries = l.entries[:0]
	return nil
}

// encodeEntries renders entries as a self-contained binary blob: entry
// count, then each entry framed as (op, table, timestamp, finished,
// value-count, values...) or (op, table, timestamp, finished, query_id,
// columns, rows) depending on Op.
func encodeEntries(entries []Entry) []byte {
	var buf []byte
	buf = appendUint32(buf, uint32(len(entries)))
	for _, e := range entries {
		buf = append(buf, byte(e.Op))
		buf = appendString(buf, e.Table)
		buf = appendUint64(buf, e.Timestamp)
		if e.Finished {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
		if e.Op == OpSelect {
			q := e.Query
			if q == nil {
				q = &QueryPayload{}
			}
			buf = appendString(buf, q.QueryID)
			buf = appendUint32(buf, uint32(len(q.Columns)))
			for _, c := range q.Columns {
				buf = appendString(buf, c)
			}
			buf = appendUint32(buf, uint32(len(q.Rows)))
			for _, row := range q.Rows {
				buf = appendUint32(buf, uint32(len(row)))
				for _, v := range row {
					buf = appendValue(buf, v)
				}
			}
		} else {
			buf = appendUint32(buf, uint32(len(e.Values)))
			for _, v := range e.Values {
				buf = appendValue(buf, v)
			}
		}
	}
	return buf
}

func appendUint32(buf []byte, v uint32) []byte {
	tmp := make([]byte, 4)
	binary.LittleEndian.PutUint32(tmp, v)
	return append(buf, tmp...)
}

func appendUint64(buf []byte, v uint64) []byte {
	tmp := make([]byte, 8)
	binary.LittleEndian.PutUint64(tmp, v)
	return append(buf, tmp...)
}

func appendString(buf []byte, s string) []byte {
	buf = appendUint32(buf, uint32(len(s)))
	return append(buf, []byte(s)...)
}

const (
	valTagNil = iota
	valTagInt
	valTagFloat
	valTagString
	valTagBool
)

func appendValue(buf []byte, v any) []byte {
	switch t := v.(type) {
	case nil:
		return append(buf, valTagNil)
	case int64:
		buf = append(buf, valTagInt)
		return appendUint64(buf, uint64(t))
	case float64:
		buf = append(buf, valTagFloat)
		return appendUint64(buf, math.Float64bits(t))
	case string:
		buf = append(buf, valTagString)
		return appendString(buf, t)
	case bool:
		buf = append(buf, valTagBool)
		if t {
			return append(buf, 1)
		}
		return append(buf, 0)
	default:
		return append(buf, valTagNil)
	}
}
