// Package blockio is the block I/O façade: it opens a named backing
// store and hands out typed, buffered readers and writers over a
// (byte offset, byte length) window. All I/O is synchronous from the caller's
// perspective; see the layout engine's concurrency model for why that is
// sufficient.
package blockio

import (
	"io"

	"github.com/outofforest/albireo/errs"
)

// Mode selects how a backing store is opened.
type Mode int

// Open modes.
const (
	// ModeCreateRW opens a backing store for a brand-new layout, zeroing
	// its first block so a stale header is never read back.
	ModeCreateRW Mode = iota
	// ModeRW opens an existing backing store for reading and writing.
	ModeRW
)

// Dev is the interface required from a backing store: seekable,
// readable, writable, flushable, and able to report its total size.
// FileDev (which wraps an *os.File) and the in-memory MemDev both
// satisfy it.
type Dev interface {
	io.ReadWriteSeeker
	Sync() error
	Size() int64
}

// Factory owns an opened backing store and carves buffered readers and
// writers out of byte windows within it.
type Factory struct {
	dev         Dev
	blockSize   int64
	usableBytes int64
}

// OpenFactory opens dev for layout I/O. requiredBytes is the minimum size
// the caller needs (0 to skip the check); the usable size is always
// rounded down to a multiple of blockSize. Fails with errs.NoSpace if the
// backing store is smaller than requiredBytes once rounded down.
// ModeCreateRW additionally zeroes the store's first block, so any header
// from a previous layout stops reading as valid before the new one is
// written; ModeRW leaves the store untouched.
func OpenFactory(dev Dev, blockSize int64, mode Mode, requiredBytes int64) (*Factory, error) {
	if blockSize <= 0 {
		return nil, errs.Wrapf(errs.InvalidArgument, "blockio: block size must be positive, got %d", blockSize)
	}

	size := dev.Size()
	usable := (size / blockSize) * blockSize

	if requiredBytes > 0 && usable < requiredBytes {
		return nil, errs.Wrapf(errs.NoSpace, "blockio: backing store has %d usable bytes, need %d", usable, requiredBytes)
	}

	f := &Factory{dev: dev, blockSize: blockSize, usableBytes: usable}

	if mode == ModeCreateRW && usable >= blockSize {
		w, err := f.BufferedWriter(0, blockSize)
		if err != nil {
			return nil, err
		}
		if err := w.WriteZeros(blockSize); err != nil {
			return nil, err
		}
		if err := w.Flush(); err != nil {
			return nil, errs.Wrap(err, "blockio: invalidating previous header")
		}
	}

	return f, nil
}

// BlockSize returns the factory's block size.
func (f *Factory) BlockSize() int64 {
	return f.blockSize
}

// UsableBytes returns the backing store's size rounded down to a multiple
// of the block size.
func (f *Factory) UsableBytes() int64 {
	return f.usableBytes
}

// BufferedReader returns a Reader over [byteOffset, byteOffset+byteLength)
// of the backing store.
func (f *Factory) BufferedReader(byteOffset, byteLength int64) (*Reader, error) {
	if byteOffset < 0 || byteLength < 0 || byteOffset+byteLength > f.usableBytes {
		return nil, errs.Wrapf(errs.InvalidArgument, "blockio: reader window [%d,%d) outside usable range [0,%d)", byteOffset, byteOffset+byteLength, f.usableBytes)
	}
	return &Reader{dev: f.dev, start: byteOffset, length: byteLength}, nil
}

// BufferedWriter returns a Writer over [byteOffset, byteOffset+byteLength)
// of the backing store. Nothing reaches the backing store until Flush.
func (f *Factory) BufferedWriter(byteOffset, byteLength int64) (*Writer, error) {
	if byteOffset < 0 || byteLength < 0 || byteOffset+byteLength > f.usableBytes {
		return nil, errs.Wrapf(errs.InvalidArgument, "blockio: writer window [%d,%d) outside usable range [0,%d)", byteOffset, byteOffset+byteLength, f.usableBytes)
	}
	return &Writer{dev: f.dev, start: byteOffset, length: byteLength}, nil
}

// Sync flushes the backing store itself, independent of any in-flight
// writer.
func (f *Factory) Sync() error {
	return errs.Wrap(f.dev.Sync(), "blockio: sync backing store")
}
