// Package superblock implements the fixed-format block-0 header that
// identifies a device as holding an index layout, carries the
// layout-wide nonce and block size, and sizes every region the layout
// engine will carve out of the device.
package superblock

import (
	"bytes"

	"github.com/outofforest/albireo/codec"
	"github.com/outofforest/albireo/errs"
)

// MagicLabel identifies block 0 of a formatted device. Exactly 32 bytes.
var MagicLabel = [32]byte(mustPad32("*ALBIREO*SINGLE*FILE*LAYOUT*001*"))

func mustPad32(s string) [32]byte {
	if len(s) != 32 {
		panic("superblock: magic label must be exactly 32 bytes")
	}
	var b [32]byte
	copy(b[:], s)
	return b
}

// Version identifies the superblock layout. VersionLegacy is the format
// a layout is created with; VersionShifted, written by a conversion, adds
// the volume_offset/start_offset fields that let the volume region be
// relocated without rewriting everything ahead of it.
type Version uint32

const (
	VersionLegacy  Version = 3
	VersionShifted Version = 7
)

// fixedSize is the encoded size of the fields present in every version:
// magic(32) + nonce_info(32) + nonce(8) + version(4) + block_size(4) +
// num_indexes(2) + max_saves(2) + pad(4) + open_chapter_blocks(8) +
// page_map_blocks(8).
const fixedSize = 32 + 32 + 8 + 4 + 4 + 2 + 2 + 4 + 8 + 8

// shiftedExtra is the additional bytes VersionShifted appends:
// volume_offset(8) + start_offset(8).
const shiftedExtra = 8 + 8

// Data is the decoded superblock.
type Data struct {
	NonceInfo         [32]byte
	Nonce             uint64
	Version           Version
	BlockSize         uint32
	NumIndexes        uint16
	MaxSaves          uint16
	OpenChapterBlocks uint64
	PageMapBlocks     uint64
	VolumeOffset      uint64 // VersionShifted only
	StartOffset       uint64 // VersionShifted only
}

// Size returns the encoded size of d, which depends on its version.
func (d Data) Size() int {
	if d.Version == VersionShifted {
		return fixedSize + shiftedExtra
	}
	return fixedSize
}

// Encode renders d into its wire form.
func (d Data) Encode() ([]byte, error) {
	if d.Version != VersionLegacy && d.Version != VersionShifted {
		return nil, errs.Wrapf(errs.InvalidArgument, "superblock: unsupported version %d", d.Version)
	}

	enc := codec.NewEncoderSize(d.Size())
	enc.PutBytes(MagicLabel[:])
	enc.PutBytes(d.NonceInfo[:])
	enc.PutUint64(d.Nonce)
	enc.PutUint32(uint32(d.Version))
	enc.PutUint32(d.BlockSize)
	enc.PutUint16(d.NumIndexes)
	enc.PutUint16(d.MaxSaves)
	enc.PutZeroes(4)
	enc.PutUint64(d.OpenChapterBlocks)
	enc.PutUint64(d.PageMapBlocks)
	if d.Version == VersionShifted {
		enc.PutUint64(d.VolumeOffset)
		enc.PutUint64(d.StartOffset)
	}
	return enc.Bytes(), nil
}

// Decode parses a superblock from buf. Returns errs.CorruptData if the
// magic label does not match (the region-table magic was already
// verified by the caller, so this is corruption rather than an
// unformatted store), or errs.UnsupportedVersion if the version field is
// neither VersionLegacy nor VersionShifted.
func Decode(buf []byte) (Data, error) {
	dec := codec.NewDecoder(buf)

	magic, err := dec.Bytes(32)
	if err != nil {
		return Data{}, err
	}
	if !bytes.Equal(magic, MagicLabel[:]) {
		return Data{}, errs.Wrapf(errs.CorruptData, "superblock: magic label mismatch")
	}

	var d Data
	nonceInfo, err := dec.Bytes(32)
	if err != nil {
		return Data{}, err
	}
	copy(d.NonceInfo[:], nonceInfo)

	if d.Nonce, err = dec.Uint64(); err != nil {
		return Data{}, err
	}
	version, err := dec.Uint32()
	if err != nil {
		return Data{}, err
	}
	d.Version = Version(version)
	if d.Version != VersionLegacy && d.Version != VersionShifted {
		return Data{}, errs.Wrapf(errs.UnsupportedVersion, "superblock: version %d", version)
	}
	if d.BlockSize, err = dec.Uint32(); err != nil {
		return Data{}, err
	}
	if d.NumIndexes, err = dec.Uint16(); err != nil {
		return Data{}, err
	}
	if d.MaxSaves, err = dec.Uint16(); err != nil {
		return Data{}, err
	}
	if err := dec.Skip(4); err != nil {
		return Data{}, err
	}
	if d.OpenChapterBlocks, err = dec.Uint64(); err != nil {
		return Data{}, err
	}
	if d.PageMapBlocks, err = dec.Uint64(); err != nil {
		return Data{}, err
	}
	if d.Version == VersionShifted {
		if d.VolumeOffset, err = dec.Uint64(); err != nil {
			return Data{}, err
		}
		if d.StartOffset, err = dec.Uint64(); err != nil {
			return Data{}, err
		}
	}

	if err := dec.ExpectConsumed(d.Size()); err != nil {
		return Data{}, err
	}
	return d, nil
}

// Convert returns a copy of d upgraded to VersionShifted; d itself is not
// modified. The copy carries the offsets that let the volume region be relocated ahead of
// the save slots without touching their content.
func (d Data) Convert(volumeOffset, startOffset uint64) Data {
	d.Version = VersionShifted
	d.VolumeOffset = volumeOffset
	d.StartOffset = startOffset
	return d
}
