package superblock

import (
	"github.com/outofforest/albireo/blockio"
	"github.com/outofforest/albireo/errs"
	"github.com/outofforest/albireo/geometry"
	"github.com/outofforest/albireo/nonce"
	"github.com/outofforest/albireo/region"
)

// TopLevel is the decoded result of opening or creating the top-level
// layout: the superblock itself, plus the four regions the top-level
// table always carries, in block order: HEADER (this table's own
// block), CONFIG, the single INDEX region spanning the sub-index
// layout, and the trailing SEAL marker block.
type TopLevel struct {
	Data   Data
	Header region.Region
	Config region.Region
	Index  region.Region
	Seal   region.Region
}

// Plan carves the top-level regions and generates a fresh superblock
// for a device about to be formatted, without touching the device. The
// caller writes the save-slot skeletons first and then commits the
// header and configuration with Commit, so that a crash mid-create
// never leaves a valid header pointing at unwritten slots.
func Plan(blockSize uint64, g geometry.Geometry, sizes Sizes) (TopLevel, error) {
	if err := g.Validate(blockSize); err != nil {
		return TopLevel{}, err
	}

	headerRegion := region.Region{StartBlock: 0, NumBlocks: 1, Kind: region.KindHeader, Instance: region.SoleInstance}
	configRegion := region.Region{StartBlock: headerRegion.EndBlock(), NumBlocks: 1, Kind: region.KindConfig, Instance: region.SoleInstance}
	indexRegion := region.Region{StartBlock: configRegion.EndBlock(), NumBlocks: sizes.SubIndexBlocks, Kind: region.KindIndex, Instance: region.SoleInstance}
	sealRegion := region.Region{StartBlock: indexRegion.EndBlock(), NumBlocks: 1, Kind: region.KindSeal, Instance: region.SoleInstance}

	seed := nonce.UniqueSeed()
	data := Data{
		NonceInfo:         seed,
		Nonce:             nonce.Primary(seed[:]),
		Version:           VersionLegacy,
		BlockSize:         uint32(blockSize),
		NumIndexes:        1,
		MaxSaves:          NumSaves,
		OpenChapterBlocks: sizes.OpenChapterBlocks,
		PageMapBlocks:     sizes.PageMapBlocks,
	}

	return TopLevel{Data: data, Header: headerRegion, Config: configRegion, Index: indexRegion, Seal: sealRegion}, nil
}

// Commit writes a planned top-level layout to the device: the region
// table (its payload is the superblock data) into the HEADER block,
// then the configuration payload into CONFIG.
func Commit(factory *blockio.Factory, blockSize uint64, top TopLevel, cfg geometry.Configuration) error {
	if err := writeHeaderBlock(factory, blockSize, top, top.Seal.EndBlock()); err != nil {
		return err
	}
	return writeConfig(factory, blockSize, top.Config, cfg, top.Data.Version)
}

// Create formats a fresh device in one call: Plan followed by Commit.
// Callers that also write save-slot skeletons should sequence the two
// halves themselves.
func Create(factory *blockio.Factory, g geometry.Geometry, cfg geometry.Configuration, sizes Sizes) (TopLevel, error) {
	top, err := Plan(uint64(factory.BlockSize()), g, sizes)
	if err != nil {
		return TopLevel{}, err
	}
	if err := Commit(factory, uint64(factory.BlockSize()), top, cfg); err != nil {
		return TopLevel{}, err
	}
	return top, nil
}

// Open reads the HEADER block back, decodes and validates the
// superblock (index count, version, primary nonce), walks the region
// table (ordering, contiguity, block totals), and validates the CONFIG
// payload against g.
func Open(factory *blockio.Factory, g geometry.Geometry, cfg geometry.Configuration) (TopLevel, error) {
	blockSize := uint64(factory.BlockSize())
	if err := g.Validate(blockSize); err != nil {
		return TopLevel{}, err
	}

	table, err := readHeaderBlock(factory, blockSize)
	if err != nil {
		return TopLevel{}, err
	}
	if table.Header.Type != region.HeaderSuper {
		return TopLevel{}, errs.Wrapf(errs.CorruptData, "superblock: top-level header type is %s, want SUPER", table.Header.Type)
	}

	data, err := Decode(table.Payload)
	if err != nil {
		return TopLevel{}, err
	}
	if data.NumIndexes != 1 {
		return TopLevel{}, errs.Wrapf(errs.CorruptData, "superblock: num_indexes must be 1, got %d", data.NumIndexes)
	}
	if data.Version == VersionShifted && data.VolumeOffset < data.StartOffset {
		return TopLevel{}, errs.Wrapf(errs.CorruptData, "superblock: volume_offset %d < start_offset %d", data.VolumeOffset, data.StartOffset)
	}
	if nonce.Primary(data.NonceInfo[:]) != data.Nonce {
		return TopLevel{}, errs.Wrapf(errs.CorruptData, "superblock: primary nonce mismatch")
	}
	if uint64(data.BlockSize) != blockSize {
		return TopLevel{}, errs.Wrapf(errs.IncorrectAlignment, "superblock: stored block size %d, opened with %d", data.BlockSize, blockSize)
	}
	if table.Header.RegionBlocks != sumRegionBlocks(table.Regions) {
		return TopLevel{}, errs.Wrapf(errs.CorruptData, "superblock: region_blocks %d does not match region sum %d", table.Header.RegionBlocks, sumRegionBlocks(table.Regions))
	}

	it := region.NewIterator(table.Regions, 0)
	headerRegion := it.Expect(region.KindHeader, region.Inst(region.SoleInstance), onePtr())
	configRegion := it.Expect(region.KindConfig, region.Inst(region.SoleInstance), onePtr())
	indexRegion := it.Expect(region.KindIndex, region.Inst(region.SoleInstance), nil)
	sealRegion := it.Expect(region.KindSeal, region.Inst(region.SoleInstance), onePtr())
	if err := it.Err(); err != nil {
		return TopLevel{}, err
	}

	if err := validateConfig(factory, blockSize, configRegion, cfg); err != nil {
		return TopLevel{}, err
	}

	return TopLevel{Data: data, Header: headerRegion, Config: configRegion, Index: indexRegion, Seal: sealRegion}, nil
}

// Rewrite re-encodes and writes top's HEADER block against an
// already-formatted device, e.g. after a conversion to VersionShifted.
// totalBlocks is the layout's current total block count.
func Rewrite(factory *blockio.Factory, blockSize uint64, top TopLevel, totalBlocks uint64) error {
	return writeHeaderBlock(factory, blockSize, top, totalBlocks)
}

func sumRegionBlocks(regions []region.Region) uint64 {
	var sum uint64
	for _, r := range regions {
		sum += r.NumBlocks
	}
	return sum
}

func onePtr() *uint64 {
	v := uint64(1)
	return &v
}

func writeHeaderBlock(factory *blockio.Factory, blockSize uint64, top TopLevel, totalBlocks uint64) error {
	payload, err := top.Data.Encode()
	if err != nil {
		return err
	}
	table := region.NewTable(region.HeaderSuper, totalBlocks, []region.Region{top.Header, top.Config, top.Index, top.Seal}, payload)
	buf, err := table.Encode(int(blockSize))
	if err != nil {
		return err
	}
	w, err := factory.BufferedWriter(int64(top.Header.StartBlock)*int64(blockSize), int64(blockSize))
	if err != nil {
		return err
	}
	if err := w.Write(buf); err != nil {
		return err
	}
	return w.Flush()
}

func readHeaderBlock(factory *blockio.Factory, blockSize uint64) (region.Table, error) {
	r, err := factory.BufferedReader(0, int64(blockSize))
	if err != nil {
		return region.Table{}, err
	}
	buf := make([]byte, blockSize)
	if err := r.ReadFull(buf); err != nil {
		return region.Table{}, err
	}
	return region.DecodeTable(buf)
}

func writeConfig(factory *blockio.Factory, blockSize uint64, configRegion region.Region, cfg geometry.Configuration, superVersion Version) error {
	w, err := factory.BufferedWriter(int64(configRegion.StartBlock)*int64(blockSize), int64(configRegion.NumBlocks)*int64(blockSize))
	if err != nil {
		return err
	}
	buf := &writerBuf{}
	if err := cfg.Write(buf, uint32(superVersion)); err != nil {
		return err
	}
	if err := w.Write(buf.b); err != nil {
		return err
	}
	if err := w.WriteZeros(int64(configRegion.NumBlocks)*int64(blockSize) - int64(len(buf.b))); err != nil {
		return err
	}
	return w.Flush()
}

func validateConfig(factory *blockio.Factory, blockSize uint64, configRegion region.Region, cfg geometry.Configuration) error {
	r, err := factory.BufferedReader(int64(configRegion.StartBlock)*int64(blockSize), int64(configRegion.NumBlocks)*int64(blockSize))
	if err != nil {
		return err
	}
	buf := make([]byte, configRegion.NumBlocks*blockSize)
	if err := r.ReadFull(buf); err != nil {
		return err
	}
	return cfg.Validate(&readerBuf{b: buf})
}

// writerBuf and readerBuf adapt geometry.Configuration's io.Writer/
// io.Reader contract onto a plain byte slice without pulling in
// bytes.Buffer's growth machinery, which buffered region writes don't need.
type writerBuf struct {
	b []byte
}

func (w *writerBuf) Write(p []byte) (int, error) {
	w.b = append(w.b, p...)
	return len(p), nil
}

type readerBuf struct {
	b   []byte
	off int
}

func (r *readerBuf) Read(p []byte) (int, error) {
	n := copy(p, r.b[r.off:])
	r.off += n
	if n == 0 {
		return 0, errs.Wrapf(errs.CorruptData, "superblock: config payload shorter than expected")
	}
	return n, nil
}
