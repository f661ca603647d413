package region

import "github.com/outofforest/albireo/codec"

// DescriptorSize is the encoded size, in bytes, of a single Region
// descriptor: start_block(8) + num_blocks(8) + checksum(4) + kind(2) +
// instance(2).
const DescriptorSize = 8 + 8 + 4 + 2 + 2

// Region is a contiguous run of blocks with a kind, an instance number,
// and (for SAVE regions) a checksum.
type Region struct {
	StartBlock uint64
	NumBlocks  uint64
	Checksum   uint32
	Kind       Kind
	Instance   uint16
}

// EndBlock returns the first block past the region.
func (r Region) EndBlock() uint64 {
	return r.StartBlock + r.NumBlocks
}

// Encode appends the region's wire representation to enc.
func (r Region) Encode(enc *codec.Encoder) {
	enc.PutUint64(r.StartBlock)
	enc.PutUint64(r.NumBlocks)
	enc.PutUint32(r.Checksum)
	enc.PutUint16(uint16(r.Kind))
	enc.PutUint16(r.Instance)
}

// DecodeRegion consumes one region descriptor from dec.
func DecodeRegion(dec *codec.Decoder) (Region, error) {
	start, err := dec.Uint64()
	if err != nil {
		return Region{}, err
	}
	num, err := dec.Uint64()
	if err != nil {
		return Region{}, err
	}
	checksum, err := dec.Uint32()
	if err != nil {
		return Region{}, err
	}
	kind, err := dec.Uint16()
	if err != nil {
		return Region{}, err
	}
	instance, err := dec.Uint16()
	if err != nil {
		return Region{}, err
	}
	return Region{
		StartBlock: start,
		NumBlocks:  num,
		Checksum:   checksum,
		Kind:       Kind(kind),
		Instance:   instance,
	}, nil
}
