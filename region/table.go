package region

import (
	"bytes"

	"github.com/outofforest/albireo/codec"
	"github.com/outofforest/albireo/errs"
)

// Magic is the region-table magic: the ASCII bytes "AlbRgn01" read as a
// big-endian uint64. Like every other field it is stored little-endian,
// so its on-disk bytes are "10ngRblA".
const Magic uint64 = 0x416c6252676e3031

// HeaderVersion is the only region-header version this engine writes or
// accepts.
const HeaderVersion uint16 = 1

// HeaderSize is the encoded size, in bytes, of the fixed part of a region
// header: magic(8) + region_blocks(8) + type(2) + version(2) +
// num_regions(2) + payload_bytes(2).
const HeaderSize = 8 + 8 + 2 + 2 + 2 + 2

// Header is the fixed-size prefix of a region table. PayloadBytes counts
// the non-region data that follows the descriptors.
type Header struct {
	RegionBlocks uint64
	Type         HeaderType
	Version      uint16
	NumRegions   uint16
	PayloadBytes uint16
}

// Table is a region header followed by its region descriptors and a
// kind-specific payload.
type Table struct {
	Header  Header
	Regions []Region
	Payload []byte
}

// NewTable builds a table ready for encoding.
func NewTable(headerType HeaderType, regionBlocks uint64, regions []Region, payload []byte) Table {
	return Table{
		Header: Header{
			RegionBlocks: regionBlocks,
			Type:         headerType,
			Version:      HeaderVersion,
			NumRegions:   uint16(len(regions)),
			PayloadBytes: uint16(len(payload)),
		},
		Regions: regions,
		Payload: payload,
	}
}

// Encode renders the table into exactly blockSize bytes (the header,
// region table, and payload must fit within the single block that backs
// a region header). Returns errs.NoSpace if they do not.
func (t Table) Encode(blockSize int) ([]byte, error) {
	enc := codec.NewEncoderSize(blockSize)
	enc.PutUint64(Magic)
	enc.PutUint64(t.Header.RegionBlocks)
	enc.PutUint16(uint16(t.Header.Type))
	enc.PutUint16(t.Header.Version)
	enc.PutUint16(uint16(len(t.Regions)))
	enc.PutUint16(uint16(len(t.Payload)))

	for _, r := range t.Regions {
		r.Encode(enc)
	}
	enc.PutBytes(t.Payload)

	if enc.Len() > blockSize {
		return nil, errs.Wrapf(errs.NoSpace, "region: table needs %d bytes, header block holds %d", enc.Len(), blockSize)
	}
	enc.PutZeroes(blockSize - enc.Len())
	return enc.Bytes(), nil
}

// DecodeTable parses a region table from a single header block. Returns
// errs.NoIndex if the magic does not match (the backing store has never
// been formatted), errs.UnsupportedVersion if the header version is not
// HeaderVersion, or errs.CorruptData if the descriptors or payload don't
// fit within buf.
func DecodeTable(buf []byte) (Table, error) {
	dec := codec.NewDecoder(buf)

	magic, err := dec.Uint64()
	if err != nil {
		return Table{}, err
	}
	if magic != Magic {
		return Table{}, errs.Wrapf(errs.NoIndex, "region: magic mismatch, got %#x", magic)
	}

	regionBlocks, err := dec.Uint64()
	if err != nil {
		return Table{}, err
	}
	headerType, err := dec.Uint16()
	if err != nil {
		return Table{}, err
	}
	version, err := dec.Uint16()
	if err != nil {
		return Table{}, err
	}
	if version != HeaderVersion {
		return Table{}, errs.Wrapf(errs.UnsupportedVersion, "region: header version %d", version)
	}
	numRegions, err := dec.Uint16()
	if err != nil {
		return Table{}, err
	}
	payloadBytes, err := dec.Uint16()
	if err != nil {
		return Table{}, err
	}

	regions := make([]Region, numRegions)
	for i := range regions {
		r, err := DecodeRegion(dec)
		if err != nil {
			return Table{}, errs.Wrapf(errs.CorruptData, "region: decoding descriptor %d: %v", i, err)
		}
		regions[i] = r
	}

	if int(payloadBytes) > dec.Remaining() {
		return Table{}, errs.Wrapf(errs.CorruptData, "region: payload of %d bytes exceeds the %d left in the header block", payloadBytes, dec.Remaining())
	}
	payload, err := dec.Bytes(int(payloadBytes))
	if err != nil {
		return Table{}, err
	}
	payload = append([]byte{}, payload...)

	return Table{
		Header: Header{
			RegionBlocks: regionBlocks,
			Type:         HeaderType(headerType),
			Version:      version,
			NumRegions:   numRegions,
			PayloadBytes: payloadBytes,
		},
		Regions: regions,
		Payload: payload,
	}, nil
}

// Equal reports whether two tables are structurally equal: same header,
// same regions in the same order, and equal payload bytes. Used by the
// round-trip property test (write, read back, compare).
func (t Table) Equal(other Table) bool {
	if t.Header != other.Header {
		return false
	}
	if len(t.Regions) != len(other.Regions) {
		return false
	}
	for i := range t.Regions {
		if t.Regions[i] != other.Regions[i] {
			return false
		}
	}
	return bytes.Equal(t.Payload, other.Payload)
}
