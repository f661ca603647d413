// Package geometry describes the on-volume index shape that drives every
// layout size computation, and the narrow configuration contract the
// layout engine uses to validate that shape across a close/reopen cycle.
package geometry

import (
	"io"

	"github.com/outofforest/albireo/codec"
	"github.com/outofforest/albireo/errs"
)

// Geometry is the subset of index geometry the layout engine needs to
// size regions. Everything else (hash function tuning, cache policy) is
// the volume index's own business.
type Geometry struct {
	BytesPerPage         uint64
	BytesPerVolume       uint64
	ChaptersPerVolume    uint32
	IndexPagesPerChapter uint32
	DeltaListsPerChapter uint32
	Sparse               bool
}

// Validate checks the one alignment rule the layout engine itself cares
// about: the page size must be a multiple of the block size.
func (g Geometry) Validate(blockSize uint64) error {
	if blockSize == 0 {
		return errs.Wrapf(errs.InvalidArgument, "geometry: block size must be positive")
	}
	if g.BytesPerPage%blockSize != 0 {
		return errs.Wrapf(errs.IncorrectAlignment, "geometry: page size %d is not a multiple of block size %d", g.BytesPerPage, blockSize)
	}
	return nil
}

// recordVersion is the only configuration-payload format this engine
// writes or accepts.
const recordVersion uint32 = 1

// recordSize is the encoded size of the configuration payload:
// record_version(4) + bytes_per_page(8) + bytes_per_volume(8) +
// chapters_per_volume(4) + index_pages_per_chapter(4) +
// delta_lists_per_chapter(4) + sparse(1) + pad(3).
const recordSize = 4 + 8 + 8 + 4 + 4 + 4 + 1 + 3

// Configuration is the configuration_validate/configuration_write
// collaborator contract: the CONFIG region's payload is written once at
// create time and matched against the caller's geometry on every later
// open.
type Configuration interface {
	Write(w io.Writer, superVersion uint32) error
	Validate(r io.Reader) error
}

// geometryConfiguration is the default Configuration backed directly by a
// Geometry value.
type geometryConfiguration struct {
	Geometry
}

// NewConfiguration returns the default geometry-backed Configuration.
func NewConfiguration(g Geometry) Configuration {
	return geometryConfiguration{Geometry: g}
}

func (c geometryConfiguration) Write(w io.Writer, _ uint32) error {
	enc := codec.NewEncoderSize(recordSize)
	enc.PutUint32(recordVersion)
	enc.PutUint64(c.BytesPerPage)
	enc.PutUint64(c.BytesPerVolume)
	enc.PutUint32(c.ChaptersPerVolume)
	enc.PutUint32(c.IndexPagesPerChapter)
	enc.PutUint32(c.DeltaListsPerChapter)
	if c.Sparse {
		enc.PutBytes([]byte{1})
	} else {
		enc.PutBytes([]byte{0})
	}
	enc.PutZeroes(3)

	_, err := w.Write(enc.Bytes())
	return errs.Wrap(err, "geometry: write configuration payload")
}

func (c geometryConfiguration) Validate(r io.Reader) error {
	buf := make([]byte, recordSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return errs.Wrapf(errs.CorruptData, "geometry: short read of configuration payload: %v", err)
	}

	dec := codec.NewDecoder(buf)
	version, err := dec.Uint32()
	if err != nil {
		return err
	}
	if version != recordVersion {
		return errs.Wrapf(errs.UnsupportedVersion, "geometry: configuration record version %d", version)
	}
	bytesPerPage, err := dec.Uint64()
	if err != nil {
		return err
	}
	bytesPerVolume, err := dec.Uint64()
	if err != nil {
		return err
	}
	chaptersPerVolume, err := dec.Uint32()
	if err != nil {
		return err
	}
	indexPagesPerChapter, err := dec.Uint32()
	if err != nil {
		return err
	}
	deltaListsPerChapter, err := dec.Uint32()
	if err != nil {
		return err
	}
	sparseByte, err := dec.Bytes(1)
	if err != nil {
		return err
	}
	if err := dec.Skip(3); err != nil {
		return err
	}
	if err := dec.ExpectConsumed(recordSize); err != nil {
		return err
	}

	got := Geometry{
		BytesPerPage:         bytesPerPage,
		BytesPerVolume:       bytesPerVolume,
		ChaptersPerVolume:    chaptersPerVolume,
		IndexPagesPerChapter: indexPagesPerChapter,
		DeltaListsPerChapter: deltaListsPerChapter,
		Sparse:               sparseByte[0] != 0,
	}
	if got != c.Geometry {
		return errs.Wrapf(errs.CorruptData, "geometry: stored configuration %+v does not match requested %+v", got, c.Geometry)
	}
	return nil
}
