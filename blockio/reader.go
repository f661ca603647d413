package blockio

import (
	"io"

	"github.com/outofforest/albireo/errs"
)

// Reader reads sequentially from a fixed byte window of the backing
// store. It owns the window exclusively for the duration of its use.
type Reader struct {
	dev    Dev
	start  int64
	length int64
	pos    int64
}

// Len returns the window's total length in bytes.
func (r *Reader) Len() int64 {
	return r.length
}

// Pos returns the current read offset relative to the start of the
// window.
func (r *Reader) Pos() int64 {
	return r.pos
}

// ReadFull reads exactly len(p) bytes from the current position, failing
// with errs.CorruptData on a short read (the window ran out before p was
// filled).
func (r *Reader) ReadFull(p []byte) error {
	if r.pos+int64(len(p)) > r.length {
		return errs.Wrapf(errs.CorruptData, "blockio: read of %d bytes at offset %d exceeds window length %d", len(p), r.pos, r.length)
	}

	if _, err := r.dev.Seek(r.start+r.pos, io.SeekStart); err != nil {
		return errs.Wrap(err, "blockio: seek for read")
	}

	n, err := io.ReadFull(r.dev, p)
	if err != nil {
		return errs.Wrapf(errs.CorruptData, "blockio: short read, got %d of %d bytes: %v", n, len(p), err)
	}
	r.pos += int64(n)
	return nil
}

// Skip advances the read position by n bytes without reading them.
func (r *Reader) Skip(n int64) error {
	if r.pos+n > r.length {
		return errs.Wrapf(errs.CorruptData, "blockio: skip of %d bytes at offset %d exceeds window length %d", n, r.pos, r.length)
	}
	r.pos += n
	return nil
}

// Verify reads len(expectedMagic) bytes and compares them to
// expectedMagic, returning errs.CorruptData on mismatch.
func Verify(r *Reader, expectedMagic []byte) error {
	got := make([]byte, len(expectedMagic))
	if err := r.ReadFull(got); err != nil {
		return err
	}
	for i := range expectedMagic {
		if got[i] != expectedMagic[i] {
			return errs.Wrapf(errs.CorruptData, "blockio: magic mismatch, want %x got %x", expectedMagic, got)
		}
	}
	return nil
}
