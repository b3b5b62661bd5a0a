package relalg

import (
	"fmt"
	"sort"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/nimbusdb/akdb/internal/block"
	"github.com/nimbusdb/akdb/internal/blockcache"
	"github.com/nimbusdb/akdb/internal/record"
	"github.com/nimbusdb/akdb/internal/segment"
	"github.com/nimbusdb/akdb/pkg/errors"
)

var tempSeq atomic.Uint64

// NewTempSegmentName returns a unique name for an intermediate result
// segment. Operators create these with category Temp and kind block.KindTemp,
// and the segment is dropped once the query that produced it completes.
func NewTempSegmentName(label string) string {
	return fmt.Sprintf("__temp_%s_%d", label, tempSeq.Add(1))
}

// Engine bundles the collaborators every operator needs: the segment map and
// block cache that back every relation, whether catalogued or temporary.
type Engine struct {
	sm    *segment.Map
	cache *blockcache.Cache
	log   *zap.SugaredLogger
}

// New binds an Engine to the segment map and cache the rest of the system
// already uses.
func New(sm *segment.Map, cache *blockcache.Cache, log *zap.SugaredLogger) *Engine {
	return &Engine{sm: sm, cache: cache, log: log}
}

// CreateTemp allocates a fresh Temp-category segment with the given schema
// and returns its name.
func (e *Engine) CreateTemp(label string, header []block.AttributeDescriptor) (string, error) {
	name := NewTempSegmentName(label)
	if _, err := e.sm.CreateSegment(name, block.KindTemp, segment.CategoryTemp, header); err != nil {
		return "", err
	}
	return name, nil
}

// DropTemp discards an intermediate result segment once a query completes.
func (e *Engine) DropTemp(name string) error {
	return e.sm.DeleteSegment(name, block.KindTemp)
}

// Select realizes σ_predicate(R): scans srcSeg row-by-row, evaluates tokens
// against each row, and copies matching rows into a new destination segment
// preserving source order.
func (e *Engine) Select(header []block.AttributeDescriptor, srcSeg string, tokens []Token) (string, error) {
	dst, err := e.CreateTemp("select", header)
	if err != nil {
		return "", err
	}
	ev := NewEvaluator(header)
	err = record.Scan(e.sm, e.cache, srcSeg, func(_ record.RowAddr, row []any) (bool, error) {
		ok, err := ev.Eval(tokens, row)
		if err != nil {
			return false, err
		}
		if ok {
			if _, err := record.Insert(e.sm, e.cache, dst, row); err != nil {
				return false, err
			}
		}
		return true, nil
	})
	if err != nil {
		_ = e.DropTemp(dst)
		return "", err
	}
	return dst, nil
}

// Project realizes π_attrs(R): for each source row emits only the chosen
// attributes, in the requested order.
func (e *Engine) Project(header []block.AttributeDescriptor, srcSeg string, attrs []string) (string, []block.AttributeDescriptor, error) {
	index := make(map[string]int, len(header))
	for i, a := range header {
		index[a.Name] = i
	}

	dstHeader := make([]block.AttributeDescriptor, len(attrs))
	positions := make([]int, len(attrs))
	for i, name := range attrs {
		pos, ok := index[name]
		if !ok {
			return "", nil, errors.NewSchemaViolationError("projection", name, "projected attribute not found in source schema")
		}
		positions[i] = pos
		dstHeader[i] = header[pos]
	}

	dst, err := e.CreateTemp("project", dstHeader)
	if err != nil {
		return "", nil, err
	}
	err = record.Scan(e.sm, e.cache, srcSeg, func(_ record.RowAddr, row []any) (bool, error) {
		out := make([]any, len(positions))
		for i, pos := range positions {
			out[i] = row[pos]
		}
		_, err := record.Insert(e.sm, e.cache, dst, out)
		return true, err
	})
	if err != nil {
		_ = e.DropTemp(dst)
		return "", nil, err
	}
	return dst, dstHeader, nil
}

// SortMaterialize implements ORDER BY: reads srcSeg entirely into memory,
// stable-sorts by keyAttrs (lexicographic tie-break over the key vector),
// and writes the result to a new segment of the same schema. A classic
// external sort would do a per-block sort plus k-way merge, but since
// intermediate result segments are query-sized rather than table-sized,
// this collapses to a single in-memory stable sort instead (materially the
// same external behavior for any segment that fits in the cache's working
// set, which every Temp segment here does by construction).
func (e *Engine) SortMaterialize(header []block.AttributeDescriptor, srcSeg string, keyAttrs []string) (string, error) {
	index := make(map[string]int, len(header))
	for i, a := range header {
		index[a.Name] = i
	}
	keyPositions := make([]int, len(keyAttrs))
	for i, name := range keyAttrs {
		pos, ok := index[name]
		if !ok {
			return "", errors.NewSchemaViolationError("sort", name, "sort key attribute not found in source schema")
		}
		keyPositions[i] = pos
	}

	var rows [][]any
	if err := record.Scan(e.sm, e.cache, srcSeg, func(_ record.RowAddr, row []any) (bool, error) {
		rows = append(rows, row)
		return true, nil
	}); err != nil {
		return "", err
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return lessKey(rows[i], rows[j], keyPositions)
	})

	dst, err := e.CreateTemp("sort", header)
	if err != nil {
		return "", err
	}
	for _, row := range rows {
		if _, err := record.Insert(e.sm, e.cache, dst, row); err != nil {
			_ = e.DropTemp(dst)
			return "", err
		}
	}
	return dst, nil
}

func lessKey(a, b []any, positions []int) bool {
	for _, pos := range positions {
		c := compareAny(a[pos], b[pos])
		if c != 0 {
			return c < 0
		}
	}
	return false
}

func compareAny(a, b any) int {
	if af, aok := asNumber(a); aok {
		if bf, bok := asNumber(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		switch {
		case as < bs:
			return -1
		case as > bs:
			return 1
		default:
			return 0
		}
	}
	return 0
}

// rowKey builds a comparable key from a row's values at positions, used to
// deduplicate and match rows in the set operators and to group rows for aggregation.
func rowKey(row []any, positions []int) string {
	key := ""
	for _, pos := range positions {
		key += fmt.Sprintf("%v\x1f", row[pos])
	}
	return key
}

// setOp is the shared hash-based implementation backing Union/Intersect/
// Difference (rows are matched by rowKey in maps): defined only for
// schema-compatible inputs, duplicates removed.
func (e *Engine) setOp(header []block.AttributeDescriptor, aSeg, bSeg string, mode string) (string, error) {
	positions := make([]int, len(header))
	for i := range header {
		positions[i] = i
	}

	var aRows, bRows [][]any
	if err := record.Scan(e.sm, e.cache, aSeg, func(_ record.RowAddr, row []any) (bool, error) {
		aRows = append(aRows, row)
		return true, nil
	}); err != nil {
		return "", err
	}
	if err := record.Scan(e.sm, e.cache, bSeg, func(_ record.RowAddr, row []any) (bool, error) {
		bRows = append(bRows, row)
		return true, nil
	}); err != nil {
		return "", err
	}

	bKeys := make(map[string]bool, len(bRows))
	for _, row := range bRows {
		bKeys[rowKey(row, positions)] = true
	}

	dst, err := e.CreateTemp(mode, header)
	if err != nil {
		return "", err
	}

	seen := make(map[string]bool)
	emit := func(row []any) error {
		k := rowKey(row, positions)
		if seen[k] {
			return nil
		}
		seen[k] = true
		_, err := record.Insert(e.sm, e.cache, dst, row)
		return err
	}

	switch mode {
	case "union":
		for _, row := range aRows {
			if err := emit(row); err != nil {
				_ = e.DropTemp(dst)
				return "", err
			}
		}
		for _, row := range bRows {
			if err := emit(row); err != nil {
				_ = e.DropTemp(dst)
				return "", err
			}
		}
	case "intersect":
		for _, row := range aRows {
			if bKeys[rowKey(row, positions)] {
				if err := emit(row); err != nil {
					_ = e.DropTemp(dst)
					return "", err
				}
			}
		}
	case "difference":
		for _, row := range aRows {
			if !bKeys[rowKey(row, positions)] {
				if err := emit(row); err != nil {
					_ = e.DropTemp(dst)
					return "", err
				}
			}
		}
	}
	return dst, nil
}

// Union implements the ∪ set operator.
func (e *Engine) Union(header []block.AttributeDescriptor, aSeg, bSeg string) (string, error) {
	return e.setOp(header, aSeg, bSeg, "union")
}

// Intersect implements the ∩ set operator.
func (e *Engine) Intersect(header []block.AttributeDescriptor, aSeg, bSeg string) (string, error) {
	return e.setOp(header, aSeg, bSeg, "intersect")
}

// Difference implements the − set operator.
func (e *Engine) Difference(header []block.AttributeDescriptor, aSeg, bSeg string) (string, error) {
	return e.setOp(header, aSeg, bSeg, "difference")
}

// CartesianProduct emits the concatenation of every row of aSeg with every
// row of bSeg: the theta join with predicate "true".
func (e *Engine) CartesianProduct(aHeader []block.AttributeDescriptor, aSeg string, bHeader []block.AttributeDescriptor, bSeg string) (string, []block.AttributeDescriptor, error) {
	return e.ThetaJoin(aHeader, aSeg, bHeader, bSeg, nil)
}

// ThetaJoin emits the concatenation of every (a, b) row pair for which
// tokens (evaluated over the concatenated schema) is true. A nil tokens
// list is treated as the always-true predicate (cartesian product).
func (e *Engine) ThetaJoin(aHeader []block.AttributeDescriptor, aSeg string, bHeader []block.AttributeDescriptor, bSeg string, tokens []Token) (string, []block.AttributeDescriptor, error) {
	joined := append(append([]block.AttributeDescriptor{}, aHeader...), bHeader...)

	var ev *Evaluator
	if tokens != nil {
		ev = NewEvaluator(joined)
	}

	dst, err := e.CreateTemp("join", joined)
	if err != nil {
		return "", nil, err
	}

	var bRows [][]any
	if err := record.Scan(e.sm, e.cache, bSeg, func(_ record.RowAddr, row []any) (bool, error) {
		bRows = append(bRows, row)
		return true, nil
	}); err != nil {
		_ = e.DropTemp(dst)
		return "", nil, err
	}

	err = record.Scan(e.sm, e.cache, aSeg, func(_ record.RowAddr, aRow []any) (bool, error) {
		for _, bRow := range bRows {
			combined := append(append([]any{}, aRow...), bRow...)
			if ev != nil {
				ok, err := ev.Eval(tokens, combined)
				if err != nil {
					return false, err
				}
				if !ok {
					continue
				}
			}
			if _, err := record.Insert(e.sm, e.cache, dst, combined); err != nil {
				return false, err
			}
		}
		return true, nil
	})
	if err != nil {
		_ = e.DropTemp(dst)
		return "", nil, err
	}
	return dst, joined, nil
}

// NaturalJoin determines the common attribute names between the two
// schemas and emits the concatenation of every row pair with equal values
// on all common attributes; the destination schema is the union of
// attributes with common ones appearing once.
func (e *Engine) NaturalJoin(aHeader []block.AttributeDescriptor, aSeg string, bHeader []block.AttributeDescriptor, bSeg string) (string, []block.AttributeDescriptor, error) {
	aIndex := make(map[string]int, len(aHeader))
	for i, a := range aHeader {
		aIndex[a.Name] = i
	}
	var common []string
	bOnly := make([]block.AttributeDescriptor, 0, len(bHeader))
	bOnlyPos := make([]int, 0, len(bHeader))
	for i, b := range bHeader {
		if _, ok := aIndex[b.Name]; ok {
			common = append(common, b.Name)
		} else {
			bOnly = append(bOnly, b)
			bOnlyPos = append(bOnlyPos, i)
		}
	}

	dstHeader := append(append([]block.AttributeDescriptor{}, aHeader...), bOnly...)
	dst, err := e.CreateTemp("natjoin", dstHeader)
	if err != nil {
		return "", nil, err
	}

	var bRows [][]any
	if err := record.Scan(e.sm, e.cache, bSeg, func(_ record.RowAddr, row []any) (bool, error) {
		bRows = append(bRows, row)
		return true, nil
	}); err != nil {
		_ = e.DropTemp(dst)
		return "", nil, err
	}

	err = record.Scan(e.sm, e.cache, aSeg, func(_ record.RowAddr, aRow []any) (bool, error) {
		for _, bRow := range bRows {
			matched := true
			for _, name := range common {
				aPos := aIndex[name]
				bPos := -1
				for i, b := range bHeader {
					if b.Name == name {
						bPos = i
						break
					}
				}
				if compareAny(aRow[aPos], bRow[bPos]) != 0 {
					matched = false
					break
				}
			}
			if !matched {
				continue
			}
			combined := append([]any{}, aRow...)
			for _, pos := range bOnlyPos {
				combined = append(combined, bRow[pos])
			}
			if _, err := record.Insert(e.sm, e.cache, dst, combined); err != nil {
				return false, err
			}
		}
		return true, nil
	})
	if err != nil {
		_ = e.DropTemp(dst)
		return "", nil, err
	}
	return dst, dstHeader, nil
}

// AggSpec names one requested aggregate over one attribute.
type AggSpec struct {
	Func      string // COUNT, SUM, AVG, MIN, MAX
	Attribute string
	As        string
}

type aggState struct {
	count int64
	sum   float64
	min   float64
	max   float64
	init  bool
}

// Aggregate builds an in-memory map from key-tuple to aggregator state and
// emits one row per distinct group-key value.
func (e *Engine) Aggregate(header []block.AttributeDescriptor, srcSeg string, groupKeys []string, specs []AggSpec) (string, []block.AttributeDescriptor, error) {
	index := make(map[string]int, len(header))
	for i, a := range header {
		index[a.Name] = i
	}
	keyPositions := make([]int, len(groupKeys))
	for i, name := range groupKeys {
		pos, ok := index[name]
		if !ok {
			return "", nil, errors.NewSchemaViolationError("aggregation", name, "group key attribute not found in source schema")
		}
		keyPositions[i] = pos
	}
	specPositions := make([]int, len(specs))
	for i, s := range specs {
		if s.Func == "COUNT" && s.Attribute == "" {
			specPositions[i] = -1
			continue
		}
		pos, ok := index[s.Attribute]
		if !ok {
			return "", nil, errors.NewSchemaViolationError("aggregation", s.Attribute, "aggregate attribute not found in source schema")
		}
		specPositions[i] = pos
	}

	type group struct {
		keyVals []any
		states  []aggState
	}
	groups := make(map[string]*group)
	var order []string

	err := record.Scan(e.sm, e.cache, srcSeg, func(_ record.RowAddr, row []any) (bool, error) {
		keyVals := make([]any, len(keyPositions))
		for i, pos := range keyPositions {
			keyVals[i] = row[pos]
		}
		k := rowKey(row, keyPositions)
		g, ok := groups[k]
		if !ok {
			g = &group{keyVals: keyVals, states: make([]aggState, len(specs))}
			groups[k] = g
			order = append(order, k)
		}
		for i, s := range specs {
			st := &g.states[i]
			st.count++
			if specPositions[i] < 0 {
				continue
			}
			f, ok := asNumber(row[specPositions[i]])
			if !ok {
				return true, nil
			}
			if !st.init {
				st.min, st.max = f, f
				st.init = true
			}
			st.sum += f
			if f < st.min {
				st.min = f
			}
			if f > st.max {
				st.max = f
			}
		}
		return true, nil
	})
	if err != nil {
		return "", nil, err
	}

	dstHeader := make([]block.AttributeDescriptor, 0, len(groupKeys)+len(specs))
	for _, name := range groupKeys {
		dstHeader = append(dstHeader, header[index[name]])
	}
	for _, s := range specs {
		name := s.As
		if name == "" {
			name = s.Func
		}
		t := block.TypeFloat
		if s.Func == "COUNT" {
			t = block.TypeInt
		}
		dstHeader = append(dstHeader, block.AttributeDescriptor{Name: name, Type: t})
	}

	dst, err := e.CreateTemp("agg", dstHeader)
	if err != nil {
		return "", nil, err
	}

	for _, k := range order {
		g := groups[k]
		out := append([]any{}, g.keyVals...)
		for i, s := range specs {
			st := g.states[i]
			switch s.Func {
			case "COUNT":
				out = append(out, st.count)
			case "SUM":
				out = append(out, st.sum)
			case "AVG":
				if st.count == 0 {
					out = append(out, 0.0)
				} else {
					out = append(out, st.sum/float64(st.count))
				}
			case "MIN":
				out = append(out, st.min)
			case "MAX":
				out = append(out, st.max)
			default:
				_ = e.DropTemp(dst)
				return "", nil, errors.NewValidationError(nil, errors.ErrorCodeInvalidInput, fmt.Sprintf("unsupported aggregate function %q", s.Func)).WithField("aggregate")
			}
		}
		if _, err := record.Insert(e.sm, e.cache, dst, out); err != nil {
			_ = e.DropTemp(dst)
			return "", nil, err
		}
	}
	return dst, dstHeader, nil
}
