// Package contracts defines the narrow collaborator hooks the layout
// engine calls out to but does not itself implement: the volume index,
// the open chapter writer, and the chapter-assignment hash. Production
// callers supply their own; this package also carries one small
// reference implementation, XXHashChapterHasher.
package contracts

import "io"

// SizeFuncs bundles the three size-contract functions compute_size needs
// from the index module. VolumeIndexSaveBlocks already returns a block
// count (the volume index module does its own rounding); the other two
// return byte counts that the layout engine rounds up itself.
type SizeFuncs struct {
	VolumeIndexSaveBlocks func(blockSize uint64) uint64
	IndexPageMapSaveSize  func() uint64
	SavedOpenChapterSize  func() uint64
}

// VolumeIndex is the save/load contract for the volume-index region. The
// index owns the zone count; the layout engine only ever asks for it and
// hands back that many writers or readers, one per VOLUME_INDEX region of
// the save slot being written or read.
type VolumeIndex interface {
	Zones() int
	Save(writers []io.Writer) error
	Load(readers []io.Reader) error
}

// OpenChapter is the save/load contract for the open-chapter region.
type OpenChapter interface {
	Save(w io.Writer) error
	Load(r io.Reader) error
}

// ChapterHasher assigns a record's hash to a chapter delta list. It is
// the hash_to_chapter_delta_list collaborator: the layout engine never
// computes chapter assignments itself, only stores what the index tells
// it to.
type ChapterHasher interface {
	DeltaList(recordName []byte, deltaListsPerChapter uint32) uint32
}
