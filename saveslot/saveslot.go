// Package saveslot implements the save-slot manager: the rotating ring
// of UNSAVED/SAVE region tables a sub-index cycles through so that a
// save is either fully committed or leaves the previous save intact.
package saveslot

import (
	"github.com/outofforest/albireo/blockio"
	"github.com/outofforest/albireo/codec"
	"github.com/outofforest/albireo/errs"
	"github.com/outofforest/albireo/indexsave"
	"github.com/outofforest/albireo/nonce"
	"github.com/outofforest/albireo/region"
)

// Slot is one save slot's on-disk table plus the in-memory state the
// manager carries across the save protocol's steps.
type Slot struct {
	startBlock uint64
	numBlocks  uint64

	headerType region.HeaderType
	header     indexsave.Header
	state      indexsave.StateBuffer
	sub        indexsave.SubLayout
}

// StartBlock returns the slot's first block, relative to the manager's
// base (the block at which the first slot begins).
func (s *Slot) StartBlock() uint64 {
	return s.startBlock
}

// HeaderType reports the slot's table type as last written to disk.
// Instantiate does not change it; WriteTable and Invalidate set it.
func (s *Slot) HeaderType() region.HeaderType {
	return s.headerType
}

// State returns the slot's decoded index-state buffer, valid only after
// a successful Load or Save.
func (s *Slot) State() indexsave.StateBuffer {
	return s.state
}

// Sub returns the slot's reconstructed sub-layout, for callers that
// need to address its VOLUME_INDEX/OPEN_CHAPTER/INDEX_PAGE_MAP regions
// directly.
func (s *Slot) Sub() indexsave.SubLayout {
	return s.sub
}

// Manager owns a fixed ring of save slots and the save/load protocol
// that rotates them.
type Manager struct {
	factory       *blockio.Factory
	blockSize     uint64
	base          uint64 // absolute block of the first slot; slot start blocks are relative to it
	subIndexNonce uint64
	slots         []*Slot
}

// Load reads back every save slot's region table from the backing
// store and reconstructs its sub-layout. base is the absolute block at
// which the first slot begins; slotBlocks is the fixed span of each slot.
func Load(factory *blockio.Factory, blockSize, base uint64, slotBlocks uint64, maxSaves uint16, subIndexNonce uint64) (*Manager, error) {
	m := &Manager{factory: factory, blockSize: blockSize, base: base, subIndexNonce: subIndexNonce}

	for i := uint16(0); i < maxSaves; i++ {
		startBlock := uint64(i) * slotBlocks
		slot, err := loadSlot(factory, blockSize, base, startBlock, slotBlocks)
		if err != nil {
			return nil, errs.Wrapf(err, "saveslot: loading slot %d", i)
		}
		m.slots = append(m.slots, slot)
	}
	return m, nil
}

func loadSlot(factory *blockio.Factory, blockSize, base, startBlock, slotBlocks uint64) (*Slot, error) {
	r, err := factory.BufferedReader(int64(base+startBlock)*int64(blockSize), int64(blockSize))
	if err != nil {
		return nil, err
	}
	buf := make([]byte, blockSize)
	if err := r.ReadFull(buf); err != nil {
		return nil, err
	}

	table, err := region.DecodeTable(buf)
	if err != nil {
		return nil, err
	}

	slot := &Slot{startBlock: startBlock, numBlocks: slotBlocks, headerType: table.Header.Type}

	decodeState := table.Header.Type == region.HeaderSave
	if len(table.Payload) > 0 {
		slot.header, slot.state, err = indexsave.DecodeHeader(table.Payload, decodeState)
		if err != nil {
			return nil, err
		}
	}

	// Region descriptors inside a slot's table are slot-relative, so the
	// iterator starts at 0; startBlock only addresses the disk read and
	// the slot itself.
	slot.sub, err = indexsave.Reconstruct(table.Regions, 0, slotBlocks, table.Header.Type)
	if err != nil {
		return nil, err
	}
	return slot, nil
}

// New builds a Manager for a freshly created layout: maxSaves blank
// slots, each written to disk immediately as an UNSAVED skeleton
// (HEADER, INDEX_PAGE_MAP, SCRATCH) sized for pageMapBlocks. This is the
// create-time "write save-slot skeletons (all marked UNSAVED)" step.
func New(factory *blockio.Factory, blockSize, base, slotBlocks uint64, maxSaves uint16, subIndexNonce, pageMapBlocks uint64) (*Manager, error) {
	m := &Manager{factory: factory, blockSize: blockSize, base: base, subIndexNonce: subIndexNonce}

	for i := uint16(0); i < maxSaves; i++ {
		s := &Slot{
			startBlock: uint64(i) * slotBlocks,
			numBlocks:  slotBlocks,
			sub:        indexsave.SubLayout{PageMap: region.Region{NumBlocks: pageMapBlocks}},
		}
		if err := m.Invalidate(s); err != nil {
			return nil, errs.Wrapf(err, "saveslot: writing skeleton for slot %d", i)
		}
		m.slots = append(m.slots, s)
	}
	return m, nil
}

// Slots returns the manager's slots in array order.
func (m *Manager) Slots() []*Slot {
	return m.slots
}

// SelectOldest returns the slot with the smallest valid timestamp. A
// slot that fails ValidateSave is treated as timestamp 0 and so always
// beats any real save; ties break toward the first slot in array order.
func (m *Manager) SelectOldest() *Slot {
	best := m.slots[0]
	bestTimestamp := timestampOrZero(m, best)
	for _, s := range m.slots[1:] {
		t := timestampOrZero(m, s)
		if t < bestTimestamp {
			best, bestTimestamp = s, t
		}
	}
	return best
}

func timestampOrZero(m *Manager, s *Slot) uint64 {
	if m.ValidateSave(s) != nil {
		return 0
	}
	return s.header.TimestampMs
}

// SelectLatest returns the valid slot with the greatest timestamp, or
// errs.IndexNotSavedCleanly if no slot validates.
func (m *Manager) SelectLatest() (*Slot, error) {
	var best *Slot
	var bestTimestamp uint64
	for _, s := range m.slots {
		if m.ValidateSave(s) != nil {
			continue
		}
		if best == nil || s.header.TimestampMs > bestTimestamp {
			best, bestTimestamp = s, s.header.TimestampMs
		}
	}
	if best == nil {
		return nil, errs.IndexNotSavedCleanly
	}
	return best, nil
}

// ValidateSave returns errs.BadState unless the slot is a fully valid
// SAVE: its type is SAVE, it has at least one zone, its timestamp is
// non-zero, and its stored nonce matches the one derived from the
// sub-index's nonce, the slot's start block, and its own header fields.
func (m *Manager) ValidateSave(s *Slot) error {
	if s.headerType != region.HeaderSave {
		return errs.Wrapf(errs.BadState, "saveslot: slot at block %d is not type SAVE", s.startBlock)
	}
	if len(s.sub.Zones) == 0 {
		return errs.Wrapf(errs.BadState, "saveslot: slot at block %d has no zones", s.startBlock)
	}
	if s.header.TimestampMs == 0 {
		return errs.Wrapf(errs.BadState, "saveslot: slot at block %d has a zero timestamp", s.startBlock)
	}
	if s.header.Nonce != m.expectedNonce(s) {
		return errs.Wrapf(errs.BadState, "saveslot: slot at block %d has a mismatched nonce", s.startBlock)
	}
	return nil
}

func (m *Manager) expectedNonce(s *Slot) uint64 {
	zeroed := s.header
	zeroed.Nonce = 0
	data := append(zeroed.EncodeFixed(), encodeU64(s.startBlock)...)
	return nonce.Secondary(m.subIndexNonce, data)
}

func encodeU64(v uint64) []byte {
	enc := codec.NewEncoderSize(8)
	enc.PutUint64(v)
	return enc.Bytes()
}

// Invalidate rewrites the slot as UNSAVED with only HEADER,
// INDEX_PAGE_MAP, and a SCRATCH covering the rest, and flushes. After
// this returns, a crash leaves the slot definitely unusable rather than
// half-written; this is the durability barrier the save protocol
// depends on.
func (m *Manager) Invalidate(s *Slot) error {
	pageMapBlocks := s.sub.PageMap.NumBlocks
	if pageMapBlocks == 0 {
		pageMapBlocks = 1 // a never-instantiated slot carries no stored size; reserve the minimum.
	}

	header := region.Region{StartBlock: 0, NumBlocks: 1, Kind: region.KindHeader, Instance: region.SoleInstance}
	pageMap := region.Region{StartBlock: header.EndBlock(), NumBlocks: pageMapBlocks, Kind: region.KindIndexPageMap, Instance: region.SoleInstance}
	scratch := region.Region{StartBlock: pageMap.EndBlock(), NumBlocks: s.numBlocks - pageMap.EndBlock(), Kind: region.KindScratch, Instance: region.SoleInstance}

	s.headerType = region.HeaderUnsaved
	s.header = indexsave.Header{}
	s.state = indexsave.StateBuffer{}
	s.sub = indexsave.SubLayout{Header: header, PageMap: pageMap, Scratch: scratch}

	return m.writeTable(s, nil)
}

// Instantiate re-carves the slot in memory for a pending SAVE: HEADER,
// INDEX_PAGE_MAP, numZones VOLUME_INDEX regions of equal size,
// OPEN_CHAPTER, SCRATCH covering the remainder. It stamps the pending
// header's timestamp, version, and nonce, but does not write anything to
// disk; the on-disk copy stays UNSAVED until WriteTable is called after
// every region has been written.
func (m *Manager) Instantiate(s *Slot, numZones uint32, pageMapBlocks, openChapterBlocks uint64, nowMs uint64) error {
	if numZones == 0 {
		return errs.Wrapf(errs.InvalidArgument, "saveslot: instantiate requires at least one zone")
	}

	header := region.Region{StartBlock: 0, NumBlocks: 1, Kind: region.KindHeader, Instance: region.SoleInstance}
	pageMap := region.Region{StartBlock: header.EndBlock(), NumBlocks: pageMapBlocks, Kind: region.KindIndexPageMap, Instance: region.SoleInstance}

	available := s.numBlocks - pageMap.EndBlock() - openChapterBlocks
	zoneBlocks := available / uint64(numZones)
	if zoneBlocks == 0 {
		return errs.Wrapf(errs.NoSpace, "saveslot: slot has no room for %d zones", numZones)
	}

	zones := make([]region.Region, numZones)
	cursor := pageMap.EndBlock()
	for i := range zones {
		zones[i] = region.Region{StartBlock: cursor, NumBlocks: zoneBlocks, Kind: region.KindVolumeIndex, Instance: uint16(i)}
		cursor = zones[i].EndBlock()
	}

	openChapter := region.Region{StartBlock: cursor, NumBlocks: openChapterBlocks, Kind: region.KindOpenChapter, Instance: region.SoleInstance}
	cursor = openChapter.EndBlock()

	scratch := region.Region{StartBlock: cursor, NumBlocks: s.numBlocks - cursor, Kind: region.KindScratch, Instance: region.SoleInstance}

	header2 := indexsave.Header{TimestampMs: nowMs, Version: indexsave.HeaderVersion}
	header2.Nonce = nonce.Secondary(m.subIndexNonce, append(header2.EncodeFixed(), encodeU64(s.startBlock)...))

	s.header = header2
	s.sub = indexsave.SubLayout{
		Header:         header,
		PageMap:        pageMap,
		Zones:          zones,
		OpenChapter:    openChapter,
		HasOpenChapter: true,
		Scratch:        scratch,
	}
	// headerType stays HeaderUnsaved on disk until WriteTable commits SAVE.
	return nil
}

// Cancel discards a pending save: zeroes the in-memory header and state
// without touching the disk, which remains UNSAVED from the preceding
// Invalidate.
func (m *Manager) Cancel(s *Slot) {
	s.header = indexsave.Header{}
	s.state = indexsave.StateBuffer{}
}

// RegionWriter returns a buffered writer over one of the slot's
// sub-regions, addressed at its absolute block offset on the backing
// store.
func (m *Manager) RegionWriter(s *Slot, r region.Region) (*blockio.Writer, error) {
	offset := int64(m.base+s.startBlock+r.StartBlock) * int64(m.blockSize)
	return m.factory.BufferedWriter(offset, int64(r.NumBlocks)*int64(m.blockSize))
}

// RegionReader returns a buffered reader over one of the slot's
// sub-regions.
func (m *Manager) RegionReader(s *Slot, r region.Region) (*blockio.Reader, error) {
	offset := int64(m.base+s.startBlock+r.StartBlock) * int64(m.blockSize)
	return m.factory.BufferedReader(offset, int64(r.NumBlocks)*int64(m.blockSize))
}

// WriteTable commits the slot's pending in-memory layout to disk as a
// SAVE table carrying state, or as UNSAVED when state is nil, and
// flushes. This is the step-7 rewrite that finishes a save.
func (m *Manager) WriteTable(s *Slot, state *indexsave.StateBuffer) error {
	headerType := region.HeaderUnsaved
	var payload []byte
	if state != nil {
		headerType = region.HeaderSave
		s.state = *state
		buf, err := s.header.Encode(*state)
		if err != nil {
			return err
		}
		payload = buf
	}
	s.headerType = headerType

	return m.writeTable(s, payload)
}

func (m *Manager) writeTable(s *Slot, payload []byte) error {
	regions := []region.Region{s.sub.Header, s.sub.PageMap}
	regions = append(regions, s.sub.Zones...)
	if s.sub.HasOpenChapter {
		regions = append(regions, s.sub.OpenChapter)
	}
	if s.sub.Scratch.NumBlocks > 0 {
		regions = append(regions, s.sub.Scratch)
	}

	table := region.NewTable(s.headerType, s.numBlocks, regions, payload)
	buf, err := table.Encode(int(m.blockSize))
	if err != nil {
		return err
	}

	w, err := m.factory.BufferedWriter(int64(m.base+s.startBlock)*int64(m.blockSize), int64(m.blockSize))
	if err != nil {
		return err
	}
	if err := w.Write(buf); err != nil {
		return err
	}
	return w.Flush()
}
