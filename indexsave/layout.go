package indexsave

import (
	"github.com/outofforest/albireo/errs"
	"github.com/outofforest/albireo/region"
)

// SubLayout is a save slot's reconstructed sub-region layout.
type SubLayout struct {
	// Fresh is true for the two degenerate cases treated as unreadable:
	// zero regions, or a single SCRATCH-only region. A fresh slot has no
	// zones and is not saved.
	Fresh bool

	Header         region.Region
	PageMap        region.Region
	Zones          []region.Region
	OpenChapter    region.Region
	HasOpenChapter bool
	Scratch        region.Region
}

// Reconstruct walks a save slot's decoded region array and recovers its
// sub-layout. startBlock is the block the descriptors are relative to
// (0 for a slot table, whose descriptors are slot-relative) and
// totalBlocks the slot's full span, used to synthesize SCRATCH when it
// was not stored explicitly. saveType selects whether an OPEN_CHAPTER
// region is expected (only for HeaderSave, never for HeaderUnsaved).
func Reconstruct(regions []region.Region, startBlock, totalBlocks uint64, saveType region.HeaderType) (SubLayout, error) {
	if len(regions) == 0 || (len(regions) == 1 && regions[0].Kind == region.KindScratch) {
		return SubLayout{Fresh: true}, nil
	}

	it := region.NewIterator(regions, startBlock)
	header := it.Expect(region.KindHeader, region.Inst(region.SoleInstance), onePtr())
	pageMap := it.Expect(region.KindIndexPageMap, region.Inst(region.SoleInstance), nil)

	var zones []region.Region
	for {
		peeked, ok := it.Peek()
		if !ok || peeked.Kind != region.KindVolumeIndex {
			break
		}
		instance := uint16(len(zones))
		zones = append(zones, it.Expect(region.KindVolumeIndex, region.Inst(instance), nil))
	}

	var openChapter region.Region
	hasOpenChapter := false
	if saveType == region.HeaderSave {
		if peeked, ok := it.Peek(); ok && peeked.Kind == region.KindOpenChapter {
			openChapter = it.Expect(region.KindOpenChapter, region.Inst(region.SoleInstance), nil)
			hasOpenChapter = true
		}
	}

	var scratch region.Region
	if peeked, ok := it.Peek(); ok && peeked.Kind == region.KindScratch {
		scratch = it.Expect(region.KindScratch, region.Inst(region.SoleInstance), nil)
	} else if end := startBlock + totalBlocks; it.EndBlock() < end {
		scratch = region.Region{StartBlock: it.EndBlock(), NumBlocks: end - it.EndBlock(), Kind: region.KindScratch, Instance: region.SoleInstance}
	}

	if err := it.Err(); err != nil {
		return SubLayout{}, err
	}
	if !it.Done() {
		return SubLayout{}, errs.Wrapf(errs.UnexpectedResult, "indexsave: %d region(s) remain unconsumed after reconstructing sub-layout", it.Remaining())
	}

	return SubLayout{
		Header:         header,
		PageMap:        pageMap,
		Zones:          zones,
		OpenChapter:    openChapter,
		HasOpenChapter: hasOpenChapter,
		Scratch:        scratch,
	}, nil
}

func onePtr() *uint64 {
	v := uint64(1)
	return &v
}
