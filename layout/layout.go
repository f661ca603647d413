// Package layout implements the core collaborator surface the index
// module calls into: formatting a backing store, reopening it, and
// driving the save/load/discard/conversion protocols described by the
// superblock, save-slot, index-save, and page-map packages. Everything
// else in this module is plumbing this package wires together.
package layout

import (
	"io"

	"github.com/outofforest/albireo/blockio"
	"github.com/outofforest/albireo/contracts"
	"github.com/outofforest/albireo/errs"
	"github.com/outofforest/albireo/geometry"
	"github.com/outofforest/albireo/indexsave"
	"github.com/outofforest/albireo/nonce"
	"github.com/outofforest/albireo/obslog"
	"github.com/outofforest/albireo/pagemap"
	"github.com/outofforest/albireo/region"
	"github.com/outofforest/albireo/saveslot"
	"github.com/outofforest/albireo/superblock"
)

var log = obslog.New("layout")

// Layout is the fully materialized on-disk layout of one backing store:
// the superblock and top-level region table, plus the save-slot manager
// that owns the rotating checkpoint ring.
type Layout struct {
	factory   *blockio.Factory
	blockSize uint64
	geometry  geometry.Geometry
	cfg       geometry.Configuration
	funcs     contracts.SizeFuncs

	sizes superblock.Sizes
	top   superblock.TopLevel

	subIndexNonce uint64
	saves         *saveslot.Manager
}

// ComputeSize works out the device size, in bytes, a layout for the
// given geometry and size contracts will require.
func ComputeSize(g geometry.Geometry, blockSize uint64, funcs contracts.SizeFuncs) (uint64, error) {
	sizes, err := superblock.ComputeSize(g, blockSize, funcs)
	if err != nil {
		return 0, err
	}
	return sizes.TotalBytes(blockSize), nil
}

// MakeLayout formats a fresh backing store (newLayout = true) or reopens
// an existing one (newLayout = false), and returns the materialized
// Layout. For a fresh store this also writes the save-slot skeletons
// that a create operation leaves behind; for an existing one it
// reconstructs every save slot's sub-layout from its on-disk region table.
func MakeLayout(factory *blockio.Factory, g geometry.Geometry, cfg geometry.Configuration, newLayout bool, funcs contracts.SizeFuncs) (*Layout, error) {
	blockSize := uint64(factory.BlockSize())

	sizes, err := superblock.ComputeSize(g, blockSize, funcs)
	if err != nil {
		return nil, err
	}

	var top superblock.TopLevel
	if newLayout {
		top, err = superblock.Plan(blockSize, g, sizes)
	} else {
		top, err = superblock.Open(factory, g, cfg)
	}
	if err != nil {
		return nil, errs.Wrapf(err, "layout: make layout")
	}
	if !newLayout && (top.Data.OpenChapterBlocks != sizes.OpenChapterBlocks || top.Data.PageMapBlocks != sizes.PageMapBlocks) {
		return nil, errs.Wrapf(errs.CorruptData,
			"layout: stored save-region sizes (open chapter %d, page map %d) do not match computed (%d, %d)",
			top.Data.OpenChapterBlocks, top.Data.PageMapBlocks, sizes.OpenChapterBlocks, sizes.PageMapBlocks)
	}

	l := &Layout{
		factory:   factory,
		blockSize: blockSize,
		geometry:  g,
		cfg:       cfg,
		funcs:     funcs,
		sizes:     sizes,
		top:       top,
	}
	l.subIndexNonce = nonce.SubIndex(top.Data.Nonce, top.Index.StartBlock, 0)

	base := l.slotBase()
	if newLayout {
		l.saves, err = saveslot.New(factory, blockSize, base, sizes.SaveBlocks, top.Data.MaxSaves, l.subIndexNonce, sizes.PageMapBlocks)
	} else {
		l.saves, err = saveslot.Load(factory, blockSize, base, sizes.SaveBlocks, top.Data.MaxSaves, l.subIndexNonce)
	}
	if err != nil {
		return nil, errs.Wrapf(err, "layout: materializing save slots")
	}

	// The header is committed only after every slot skeleton is on disk, so
	// a crash mid-create leaves an unformatted store, never a valid header
	// pointing at unwritten slots.
	if newLayout {
		if err := superblock.Commit(factory, blockSize, top, cfg); err != nil {
			return nil, errs.Wrapf(err, "layout: committing superblock")
		}
	}

	log.Info("layout ready", "new", newLayout, "total_blocks", sizes.TotalBlocks)
	return l, nil
}

// FreeLayout releases any resources the Layout holds. The block I/O
// façade owns the backing store's file descriptor or memory buffer
// directly, so there is nothing further to release here; this exists to
// satisfy the make_layout/free_layout pairing, and as the obvious place
// a future resource (e.g. a cached region table) would be torn down.
func FreeLayout(*Layout) {}

// VolumeNonce returns the nonce bound to this layout's sub-index, the
// value every save slot's own nonce is derived from.
func VolumeNonce(l *Layout) uint64 {
	return l.subIndexNonce
}

// translation is the block offset a conversion to VersionShifted applies
// to every subsequent read or write: volume_offset - start_offset, or 0
// for an unconverted (VersionLegacy) layout.
func (l *Layout) translation() int64 {
	if l.top.Data.Version != superblock.VersionShifted {
		return 0
	}
	return int64(l.top.Data.VolumeOffset) - int64(l.top.Data.StartOffset)
}

// slotBase is the absolute block at which the first save slot begins: past the top-level INDEX region's start and the VOLUME region
// it carries, translated for any conversion in effect.
func (l *Layout) slotBase() uint64 {
	return uint64(int64(l.top.Index.StartBlock) + int64(l.sizes.VolumeBlocks) + l.translation())
}

// VolumeWindow returns the byte offset and length of the top-level VOLUME
// region, for a caller (the volume module, out of scope here) that wants
// to open its own reader/writer directly against the backing store. A
// converted layout has surrendered volume_offset blocks from the volume's
// front, so the window shrinks by that much.
func (l *Layout) VolumeWindow() (byteOffset, byteLength int64) {
	start := int64(l.top.Index.StartBlock) + l.translation()
	length := int64(l.sizes.VolumeBlocks)
	if l.top.Data.Version == superblock.VersionShifted {
		length -= int64(l.top.Data.VolumeOffset)
	}
	return start * int64(l.blockSize), length * int64(l.blockSize)
}

// Sizes returns the block-count breakdown this layout was computed with.
func (l *Layout) Sizes() superblock.Sizes {
	return l.sizes
}

// SaveState runs the save protocol: select the oldest slot, invalidate
// it, re-carve it for the current zone count, write the state buffer,
// open chapter, every volume-index zone, and the page map, then commit
// the slot as SAVE. Any failure after Invalidate cancels the pending
// save, leaving the slot cleanly UNSAVED on disk.
func SaveState(l *Layout, vindex contracts.VolumeIndex, ochapter contracts.OpenChapter, pm *pagemap.Map, state indexsave.StateBuffer, nowMs uint64) error {
	slot := l.saves.SelectOldest()

	if err := l.saves.Invalidate(slot); err != nil {
		return errs.Wrapf(err, "layout: invalidating slot before save")
	}

	numZones := vindex.Zones()
	if err := l.saves.Instantiate(slot, uint32(numZones), l.sizes.PageMapBlocks, l.sizes.OpenChapterBlocks, nowMs); err != nil {
		l.saves.Cancel(slot)
		return errs.Wrapf(err, "layout: instantiating slot for save")
	}

	if err := l.writeOpenChapter(slot, ochapter); err != nil {
		l.saves.Cancel(slot)
		return errs.Wrapf(err, "layout: saving open chapter")
	}

	if err := l.writeVolumeIndex(slot, vindex); err != nil {
		l.saves.Cancel(slot)
		return errs.Wrapf(err, "layout: saving volume index")
	}

	if err := l.writePageMap(slot, pm); err != nil {
		l.saves.Cancel(slot)
		return errs.Wrapf(err, "layout: saving index page map")
	}

	if err := l.saves.WriteTable(slot, &state); err != nil {
		l.saves.Cancel(slot)
		return errs.Wrapf(err, "layout: committing save")
	}

	log.Info("save committed", "slot_block", slot.StartBlock(), "timestamp_ms", nowMs)
	return nil
}

// LoadState runs the load protocol: find the latest valid slot and read
// the open chapter, every volume-index zone, and the page map into the
// caller's collaborators. Returns errs.IndexNotSavedCleanly if no slot
// validates.
func LoadState(l *Layout, vindex contracts.VolumeIndex, ochapter contracts.OpenChapter) (indexsave.StateBuffer, *pagemap.Map, error) {
	slot, err := l.saves.SelectLatest()
	if err != nil {
		return indexsave.StateBuffer{}, nil, err
	}

	if err := l.readOpenChapter(slot, ochapter); err != nil {
		return indexsave.StateBuffer{}, nil, errs.Wrapf(err, "layout: loading open chapter")
	}
	if err := l.readVolumeIndex(slot, vindex); err != nil {
		return indexsave.StateBuffer{}, nil, errs.Wrapf(err, "layout: loading volume index")
	}
	pm, err := l.readPageMap(slot)
	if err != nil {
		return indexsave.StateBuffer{}, nil, errs.Wrapf(err, "layout: loading index page map")
	}

	return slot.State(), pm, nil
}

// DiscardState invalidates every save slot, leaving the layout with no
// valid checkpoint to load.
func DiscardState(l *Layout) error {
	for _, s := range l.saves.Slots() {
		if err := l.saves.Invalidate(s); err != nil {
			return errs.Wrapf(err, "layout: discarding state")
		}
	}
	return nil
}

// DiscardOpenChapter overwrites the open-chapter region of the latest
// save with one zeroed block, so a restart sees an empty open chapter
// without disturbing the rest of that save.
func DiscardOpenChapter(l *Layout) error {
	slot, err := l.saves.SelectLatest()
	if err != nil {
		return err
	}
	if !slot.Sub().HasOpenChapter {
		return errs.Wrapf(errs.BadState, "layout: latest save has no open chapter region")
	}

	oc := slot.Sub().OpenChapter
	w, err := l.saves.RegionWriter(slot, region.Region{StartBlock: oc.StartBlock, NumBlocks: 1, Kind: region.KindOpenChapter, Instance: region.SoleInstance})
	if err != nil {
		return err
	}
	if err := w.WriteZeros(int64(l.blockSize)); err != nil {
		return err
	}
	return w.Flush()
}

// UpdateLayout converts the layout to VersionShifted: the volume is
// considered shifted forward by offsetBytes to make room for lvmOffsetBytes
// of volume-manager metadata prepended ahead of it. Both must be
// block-aligned. After conversion, every subsequent read or write through
// this Layout is translated by volume_offset - start_offset.
func UpdateLayout(l *Layout, cfg geometry.Configuration, lvmOffsetBytes, offsetBytes uint64) (*Layout, error) {
	if lvmOffsetBytes%l.blockSize != 0 || offsetBytes%l.blockSize != 0 {
		return nil, errs.Wrapf(errs.IncorrectAlignment, "layout: conversion offsets must be multiples of the block size")
	}
	lvmBlocks := lvmOffsetBytes / l.blockSize
	offsetBlocks := offsetBytes / l.blockSize

	l.top.Data = l.top.Data.Convert(offsetBlocks, lvmBlocks)
	l.top.Index.NumBlocks -= offsetBlocks
	l.top.Seal.StartBlock = l.top.Index.EndBlock()
	l.sizes.SubIndexBlocks -= offsetBlocks
	l.sizes.TotalBlocks -= offsetBlocks
	l.cfg = cfg

	if err := superblock.Rewrite(l.factory, l.blockSize, l.top, l.sizes.TotalBlocks); err != nil {
		return nil, errs.Wrapf(err, "layout: rewriting converted superblock")
	}

	l.subIndexNonce = nonce.SubIndex(l.top.Data.Nonce, l.top.Index.StartBlock, 0)
	saves, err := saveslot.Load(l.factory, l.blockSize, l.slotBase(), l.sizes.SaveBlocks, l.top.Data.MaxSaves, l.subIndexNonce)
	if err != nil {
		return nil, errs.Wrapf(err, "layout: reloading save slots after conversion")
	}
	l.saves = saves

	log.Info("layout converted", "volume_offset", offsetBlocks, "start_offset", lvmBlocks)
	return l, nil
}

func (l *Layout) writeOpenChapter(slot *saveslot.Slot, ochapter contracts.OpenChapter) error {
	w, err := l.saves.RegionWriter(slot, slot.Sub().OpenChapter)
	if err != nil {
		return err
	}
	if err := ochapter.Save(writerAdapter{w}); err != nil {
		return err
	}
	return w.Flush()
}

func (l *Layout) readOpenChapter(slot *saveslot.Slot, ochapter contracts.OpenChapter) error {
	if !slot.Sub().HasOpenChapter {
		return errs.Wrapf(errs.BadState, "layout: selected save has no open chapter region")
	}
	r, err := l.saves.RegionReader(slot, slot.Sub().OpenChapter)
	if err != nil {
		return err
	}
	return ochapter.Load(readerAdapter{r})
}

func (l *Layout) writeVolumeIndex(slot *saveslot.Slot, vindex contracts.VolumeIndex) error {
	zones := slot.Sub().Zones
	writers := make([]io.Writer, len(zones))
	blockioWriters := make([]*blockio.Writer, len(zones))
	for i, z := range zones {
		w, err := l.saves.RegionWriter(slot, z)
		if err != nil {
			return err
		}
		blockioWriters[i] = w
		writers[i] = writerAdapter{w}
	}
	if err := vindex.Save(writers); err != nil {
		return err
	}
	for _, w := range blockioWriters {
		if err := w.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func (l *Layout) readVolumeIndex(slot *saveslot.Slot, vindex contracts.VolumeIndex) error {
	zones := slot.Sub().Zones
	readers := make([]io.Reader, len(zones))
	for i, z := range zones {
		r, err := l.saves.RegionReader(slot, z)
		if err != nil {
			return err
		}
		readers[i] = readerAdapter{r}
	}
	return vindex.Load(readers)
}

func (l *Layout) writePageMap(slot *saveslot.Slot, pm *pagemap.Map) error {
	w, err := l.saves.RegionWriter(slot, slot.Sub().PageMap)
	if err != nil {
		return err
	}
	if err := pm.Write(writerAdapter{w}); err != nil {
		return err
	}
	return w.Flush()
}

func (l *Layout) readPageMap(slot *saveslot.Slot) (*pagemap.Map, error) {
	r, err := l.saves.RegionReader(slot, slot.Sub().PageMap)
	if err != nil {
		return nil, err
	}
	return pagemap.Read(readerAdapter{r}, l.geometry.ChaptersPerVolume, l.geometry.IndexPagesPerChapter, l.geometry.DeltaListsPerChapter)
}

// writerAdapter and readerAdapter bridge blockio's explicit-error
// Write(p)/ReadFull(p) shape onto io.Writer/io.Reader, which every
// collaborator contract is specified in terms of.
type writerAdapter struct{ w *blockio.Writer }

func (a writerAdapter) Write(p []byte) (int, error) {
	if err := a.w.Write(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

type readerAdapter struct{ r *blockio.Reader }

func (a readerAdapter) Read(p []byte) (int, error) {
	if err := a.r.ReadFull(p); err != nil {
		return 0, err
	}
	return len(p), nil
}
