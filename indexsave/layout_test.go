package indexsave

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outofforest/albireo/region"
)

func TestReconstructTreatsEmptyRegionsAsFresh(t *testing.T) {
	requireT := require.New(t)

	sub, err := Reconstruct(nil, 10, 20, region.HeaderUnsaved)
	requireT.NoError(err)
	requireT.True(sub.Fresh)
}

func TestReconstructTreatsScratchOnlyAsFresh(t *testing.T) {
	requireT := require.New(t)

	regions := []region.Region{{StartBlock: 10, NumBlocks: 20, Kind: region.KindScratch, Instance: region.SoleInstance}}
	sub, err := Reconstruct(regions, 10, 20, region.HeaderUnsaved)
	requireT.NoError(err)
	requireT.True(sub.Fresh)
}

func TestReconstructFullSaveSlot(t *testing.T) {
	requireT := require.New(t)

	regions := []region.Region{
		{StartBlock: 0, NumBlocks: 1, Kind: region.KindHeader, Instance: region.SoleInstance},
		{StartBlock: 1, NumBlocks: 2, Kind: region.KindIndexPageMap, Instance: region.SoleInstance},
		{StartBlock: 3, NumBlocks: 4, Kind: region.KindVolumeIndex, Instance: 0},
		{StartBlock: 7, NumBlocks: 4, Kind: region.KindVolumeIndex, Instance: 1},
		{StartBlock: 11, NumBlocks: 2, Kind: region.KindOpenChapter, Instance: region.SoleInstance},
		{StartBlock: 13, NumBlocks: 7, Kind: region.KindScratch, Instance: region.SoleInstance},
	}

	sub, err := Reconstruct(regions, 0, 20, region.HeaderSave)
	requireT.NoError(err)
	requireT.False(sub.Fresh)
	requireT.Len(sub.Zones, 2)
	requireT.True(sub.HasOpenChapter)
	requireT.Equal(uint64(13), sub.Scratch.StartBlock)
	requireT.Equal(uint64(7), sub.Scratch.NumBlocks)
}

func TestReconstructSynthesizesMissingScratch(t *testing.T) {
	requireT := require.New(t)

	regions := []region.Region{
		{StartBlock: 0, NumBlocks: 1, Kind: region.KindHeader, Instance: region.SoleInstance},
		{StartBlock: 1, NumBlocks: 2, Kind: region.KindIndexPageMap, Instance: region.SoleInstance},
	}

	sub, err := Reconstruct(regions, 0, 10, region.HeaderUnsaved)
	requireT.NoError(err)
	requireT.Equal(uint64(3), sub.Scratch.StartBlock)
	requireT.Equal(uint64(7), sub.Scratch.NumBlocks)
}

func TestReconstructOmitsOpenChapterForUnsaved(t *testing.T) {
	requireT := require.New(t)

	regions := []region.Region{
		{StartBlock: 0, NumBlocks: 1, Kind: region.KindHeader, Instance: region.SoleInstance},
		{StartBlock: 1, NumBlocks: 2, Kind: region.KindIndexPageMap, Instance: region.SoleInstance},
		{StartBlock: 3, NumBlocks: 7, Kind: region.KindScratch, Instance: region.SoleInstance},
	}

	sub, err := Reconstruct(regions, 0, 10, region.HeaderUnsaved)
	requireT.NoError(err)
	requireT.False(sub.HasOpenChapter)
}
