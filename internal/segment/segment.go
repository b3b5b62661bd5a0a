package segment

import (
	"encoding/binary"
	stdErrors "errors"

	"github.com/nimbusdb/akdb/internal/block"
	"github.com/nimbusdb/akdb/pkg/errors"
)

// ErrClosed is returned when an operation is attempted on a closed map.
var ErrClosed = stdErrors.New("operation failed: cannot access closed segment map")

// rootAddr is the fixed address of the catalog root block: block 0 holds
// the root catalog pointers.
const rootAddr block.Addr = 0

// growthFactor returns the configured extent growth factor for a segment
// category: Table 1.5, Index 1.5, Transaction 1.2, Temp 1.0 by default.
func (m *Map) growthFactor(cat Category) float64 {
	g := m.options.SegmentOptions.Growth
	switch cat {
	case CategoryTable:
		return g.Table
	case CategoryIndex:
		return g.Index
	case CategoryTransaction:
		return g.Transaction
	case CategoryTemp:
		return g.Temp
	default:
		return 1.0
	}
}

// Open loads the segment map from the catalog root block, reconstructing
// every segment's extents and header by reading its head block.
func Open(config *Config) (*Map, error) {
	if config == nil || config.DiskManager == nil || config.Cache == nil ||
		config.Options == nil || config.Logger == nil {
		return nil, errors.NewValidationError(
			nil, errors.ErrorCodeInvalidInput, "segment map configuration is required",
		).WithField("config").WithRule("required")
	}

	m := &Map{
		dm:      config.DiskManager,
		cache:   config.Cache,
		options: config.Options,
		log:     config.Logger,
		byName:  make(map[string]*Info),
	}

	root, err := m.cache.Get(rootAddr)
	if err != nil {
		return nil, err
	}

	for _, rootEntry := range decodeRootEntries(root) {
		info, err := m.loadSegment(rootEntry.name, rootEntry.firstAddr)
		if err != nil {
			return nil, err
		}
		m.byName[rootEntry.name] = info
		m.order = append(m.order, rootEntry.name)
	}

	m.log.Infow("Segment map opened", "segments", len(m.order))
	return m, nil
}

// loadSegment reads a segment's head block and reconstructs its Info.
func (m *Map) loadSegment(name string, firstAddr block.Addr) (*Info, error) {
	head, err := m.cache.Get(firstAddr)
	if err != nil {
		return nil, err
	}
	if len(head.Slots) == 0 || head.Slots[0].Free() {
		return nil, errors.NewCorruptStateError(int64(firstAddr), "segment head block missing metadata slot")
	}
	s := head.Slots[0]
	meta := head.Heap[s.Offset : s.Offset+s.Size]
	return decodeSegmentMeta(name, head.Kind, head.Header, meta)
}

// rootEntry is one (segment_name, first_addr) pair stored in block 0.
type rootEntry struct {
	name      string
	firstAddr block.Addr
}

func decodeRootEntries(root *block.Block) []rootEntry {
	entries := make([]rootEntry, 0, len(root.Slots))
	for _, s := range root.Slots {
		if s.Free() {
			continue
		}
		buf := root.Heap[s.Offset : s.Offset+s.Size]
		nameLen := binary.LittleEndian.Uint16(buf[0:2])
		name := string(buf[2 : 2+nameLen])
		addr := block.Addr(binary.LittleEndian.Uint64(buf[2+nameLen : 2+nameLen+8]))
		entries = append(entries, rootEntry{name: name, firstAddr: addr})
	}
	return entries
}

func encodeRootEntry(name string, firstAddr block.Addr) []byte {
	buf := make([]byte, 2+len(name)+8)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(len(name)))
	copy(buf[2:], name)
	binary.LittleEndian.PutUint64(buf[2+len(name):], uint64(firstAddr))
	return buf
}

// appendRootEntry appends one (name, firstAddr) row to block 0's tuple_dict,
// growing the heap backward exactly as internal/record will for ordinary
// data blocks.
func (m *Map) appendRootEntry(name string, firstAddr block.Addr) error {
	root, err := m.cache.Get(rootAddr)
	if err != nil {
		return err
	}
	payload := encodeRootEntry(name, firstAddr)
	budget := block.HeaderAndDictBudget(root) + uint32(9) // one new tuple_dict slot
	if root.FreeSpace(budget) < len(payload) {
		return errors.NewEngineError(nil, errors.ErrorCodeNoSpace, "catalog root block is full").WithBlockAddr(int64(rootAddr))
	}

	offset := len(root.Heap)
	root.Heap = append(root.Heap, payload...)
	root.Slots = append(root.Slots, block.Slot{Offset: int32(offset), Size: int32(len(payload)), Type: block.TypeVarchar})

	if err := m.cache.MarkDirty(rootAddr); err != nil {
		return err
	}
	return nil
}

// removeRootEntry frees name's root slot by marking it deleted.
func (m *Map) removeRootEntry(name string) error {
	root, err := m.cache.Get(rootAddr)
	if err != nil {
		return err
	}
	for i, s := range root.Slots {
		if s.Free() {
			continue
		}
		buf := root.Heap[s.Offset : s.Offset+s.Size]
		nameLen := binary.LittleEndian.Uint16(buf[0:2])
		if string(buf[2:2+nameLen]) == name {
			root.Slots[i].Size = block.FreeSlot
			return m.cache.MarkDirty(rootAddr)
		}
	}
	return nil
}

// encodeSegmentMeta packs a segment's category, kind, and extent list into
// the bytes stored in its head block's single metadata slot.
func encodeSegmentMeta(info *Info) []byte {
	buf := make([]byte, 1+1+2+len(info.Extents)*16)
	buf[0] = byte(info.Category)
	buf[1] = byte(info.Kind)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(len(info.Extents)))
	off := 4
	for _, e := range info.Extents {
		binary.LittleEndian.PutUint64(buf[off:], uint64(e.From))
		binary.LittleEndian.PutUint64(buf[off+8:], uint64(e.To))
		off += 16
	}
	return buf
}

func decodeSegmentMeta(name string, kind block.Kind, header []block.AttributeDescriptor, buf []byte) (*Info, error) {
	if len(buf) < 4 {
		return nil, errors.NewCorruptStateError(-1, "truncated segment metadata")
	}
	cat := Category(buf[0])
	extentCount := int(binary.LittleEndian.Uint16(buf[2:4]))
	off := 4
	extents := make([]Extent, 0, extentCount)
	for i := 0; i < extentCount; i++ {
		if off+16 > len(buf) {
			return nil, errors.NewCorruptStateError(-1, "truncated segment extent list")
		}
		from := block.Addr(binary.LittleEndian.Uint64(buf[off:]))
		to := block.Addr(binary.LittleEndian.Uint64(buf[off+8:]))
		extents = append(extents, Extent{From: from, To: to})
		off += 16
	}
	return &Info{Name: name, Kind: kind, Category: cat, Header: header, Extents: extents}, nil
}

// writeHeadBlock (re)writes a segment's head block with its current
// metadata. Called on CreateSegment and after ExtendSegment appends an
// extent.
func (m *Map) writeHeadBlock(info *Info) error {
	addr := info.FirstAddr()
	head, err := m.cache.Get(addr)
	if err != nil {
		return err
	}
	head.Header = info.Header
	meta := encodeSegmentMeta(info)
	if len(head.Slots) == 0 {
		head.Slots = []block.Slot{{Offset: 0, Size: int32(len(meta)), Type: block.TypeVarchar}}
		head.Heap = meta
	} else {
		// Rows may already live in the head block's heap: append the new
		// metadata rather than replacing the heap, and repoint slot 0.
		offset := len(head.Heap)
		head.Heap = append(head.Heap, meta...)
		head.Slots[0] = block.Slot{Offset: int32(offset), Size: int32(len(meta)), Type: block.TypeVarchar}
	}
	return m.cache.MarkDirty(addr)
}

// CreateSegment allocates a first extent for a new segment, writes its head
// block, and catalogues it in the root block.
func (m *Map) CreateSegment(name string, kind block.Kind, category Category, header []block.AttributeDescriptor) (block.Addr, error) {
	if m.closed.Load() {
		return 0, ErrClosed
	}
	if name == "" {
		return 0, errors.NewRequiredFieldError("name")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byName[name]; exists {
		return 0, errors.NewDuplicateNameError("segment", name)
	}

	size := int(m.options.SegmentOptions.InitialExtentBlocks)
	from, to, err := m.dm.AllocateExtent(size, kind)
	if err != nil {
		return 0, err
	}

	info := &Info{
		Name:     name,
		Kind:     kind,
		Category: category,
		Header:   header,
		Extents:  []Extent{{From: from, To: to}},
	}
	if err := m.writeHeadBlock(info); err != nil {
		return 0, err
	}
	if err := m.appendRootEntry(name, from); err != nil {
		return 0, err
	}

	m.byName[name] = info
	m.order = append(m.order, name)

	m.log.Infow("Segment created", "name", name, "kind", kind.String(), "from", from, "to", to)
	return from, nil
}

// AddressesOf returns the catalogued Info for name.
func (m *Map) AddressesOf(name string) (*Info, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	info, ok := m.byName[name]
	if !ok {
		return nil, errors.NewNotFoundError(name)
	}
	return info, nil
}

// List returns every catalogued segment's Info in insertion order.
func (m *Map) List() []*Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Info, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.byName[name])
	}
	return out
}

// ExtendSegment allocates a new extent sized prev_size*growth_factor(kind)
// and appends it to name's catalog row.
func (m *Map) ExtendSegment(name string) (block.Addr, block.Addr, error) {
	if m.closed.Load() {
		return 0, 0, ErrClosed
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	info, ok := m.byName[name]
	if !ok {
		return 0, 0, errors.NewNotFoundError(name)
	}
	if len(info.Extents) >= m.options.SegmentOptions.MaxExtentsPerSegment {
		return 0, 0, errors.NewEngineError(
			nil, errors.ErrorCodeNoSpace, "segment has reached its maximum extent count",
		).WithSegmentName(name)
	}

	last := info.Extents[len(info.Extents)-1]
	prevSize := last.Blocks()
	nextSize := int(float64(prevSize) * m.growthFactor(info.Category))
	if nextSize < 1 {
		nextSize = 1
	}

	from, to, err := m.dm.AllocateExtent(nextSize, info.Kind)
	if err != nil {
		return 0, 0, err
	}

	info.Extents = append(info.Extents, Extent{From: from, To: to})
	if err := m.writeHeadBlock(info); err != nil {
		return 0, 0, err
	}

	m.log.Infow("Segment extended", "name", name, "from", from, "to", to, "nextSize", nextSize)
	return from, to, nil
}

// DeleteSegment frees every extent a segment owns and removes its catalog
// row, restoring the bitmap to its pre-create state.
func (m *Map) DeleteSegment(name string, kind block.Kind) error {
	if m.closed.Load() {
		return ErrClosed
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	info, ok := m.byName[name]
	if !ok {
		return errors.NewNotFoundError(name)
	}
	if info.Kind != kind {
		return errors.NewEngineError(
			nil, errors.ErrorCodeInvalidInput, "segment kind does not match requested kind",
		).WithSegmentName(name)
	}

	for _, e := range info.Extents {
		if err := m.dm.FreeExtent(e.From, e.To); err != nil {
			return err
		}
		for a := e.From; a <= e.To; a++ {
			m.cache.Invalidate(a)
		}
	}
	if err := m.removeRootEntry(name); err != nil {
		return err
	}

	delete(m.byName, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}

	m.log.Infow("Segment deleted", "name", name)
	return nil
}

// Close marks the segment map closed. The underlying cache and disk
// manager are closed separately by the engine that owns all three.
func (m *Map) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	return nil
}
