package superblock

import (
	"github.com/outofforest/albireo/contracts"
	"github.com/outofforest/albireo/errs"
	"github.com/outofforest/albireo/geometry"
)

// NumSaves is the number of rotating save slots every layout carries.
const NumSaves = 2

// Sizes is the result of a layout size computation: the block count of
// every region plus the device total, ready to hand to a region-carving
// pass.
type Sizes struct {
	VolumeBlocks      uint64
	VolumeIndexBlocks uint64
	PageMapBlocks     uint64
	OpenChapterBlocks uint64
	SaveBlocks        uint64
	NumSaves          uint64
	SubIndexBlocks    uint64
	TotalBlocks       uint64
}

// TotalBytes returns the device size, in bytes, required to hold a
// layout of these sizes.
func (s Sizes) TotalBytes(blockSize uint64) uint64 {
	return s.TotalBlocks * blockSize
}

// ComputeSize works out how many blocks each region of a single-index
// layout needs, given its geometry and the index module's own size
// contracts. The three fixed blocks it accounts for are the top-level
// HEADER (region table and superblock), the CONFIG region, and the
// trailing SEAL block; everything else scales with geometry.
func ComputeSize(g geometry.Geometry, blockSize uint64, funcs contracts.SizeFuncs) (Sizes, error) {
	if err := g.Validate(blockSize); err != nil {
		return Sizes{}, err
	}
	if funcs.VolumeIndexSaveBlocks == nil || funcs.IndexPageMapSaveSize == nil || funcs.SavedOpenChapterSize == nil {
		return Sizes{}, errs.Wrapf(errs.InvalidArgument, "superblock: all three size contracts are required")
	}

	volumeBlocks := g.BytesPerVolume / blockSize
	volumeIndexBlocks := funcs.VolumeIndexSaveBlocks(blockSize)
	pageMapBlocks := ceilDiv(funcs.IndexPageMapSaveSize(), blockSize)
	openChapterBlocks := ceilDiv(funcs.SavedOpenChapterSize(), blockSize)

	// Each save slot holds its own region-table header block plus the
	// three regions it snapshots.
	saveBlocks := 1 + volumeIndexBlocks + pageMapBlocks + openChapterBlocks
	subIndexBlocks := volumeBlocks + NumSaves*saveBlocks

	// HEADER + CONFIG + SEAL.
	totalBlocks := 3 + subIndexBlocks

	return Sizes{
		VolumeBlocks:      volumeBlocks,
		VolumeIndexBlocks: volumeIndexBlocks,
		PageMapBlocks:     pageMapBlocks,
		OpenChapterBlocks: openChapterBlocks,
		SaveBlocks:        saveBlocks,
		NumSaves:          NumSaves,
		SubIndexBlocks:    subIndexBlocks,
		TotalBlocks:       totalBlocks,
	}, nil
}

func ceilDiv(n, d uint64) uint64 {
	if d == 0 {
		return 0
	}
	return (n + d - 1) / d
}
