package blockio

import (
	"io"

	"github.com/outofforest/albireo/errs"
)

// Writer buffers writes to a fixed byte window of the backing store.
// Nothing is visible to a reader opened on the same window until Flush
// completes; Flush is the durability boundary the save protocol depends
// on as a real barrier.
type Writer struct {
	dev    Dev
	start  int64
	length int64
	buf    []byte
}

// Len returns the window's total length in bytes.
func (w *Writer) Len() int64 {
	return w.length
}

// Write appends p to the writer's buffer, failing with errs.NoSpace if it
// would overflow the window.
func (w *Writer) Write(p []byte) error {
	if int64(len(w.buf)+len(p)) > w.length {
		return errs.Wrapf(errs.NoSpace, "blockio: write of %d bytes overflows window length %d", len(w.buf)+len(p), w.length)
	}
	w.buf = append(w.buf, p...)
	return nil
}

// WriteZeros appends n zero bytes, used to discard a region (e.g. the
// open chapter) without disclosing stale contents.
func (w *Writer) WriteZeros(n int64) error {
	if n < 0 {
		return errs.Wrapf(errs.InvalidArgument, "blockio: negative zero-fill length %d", n)
	}
	zeros := make([]byte, n)
	return w.Write(zeros)
}

// Flush writes the buffered bytes to the backing store at the window's
// start offset and fsyncs the device. This is the durability barrier: a
// caller may only consider the write complete once Flush returns nil.
func (w *Writer) Flush() error {
	if _, err := w.dev.Seek(w.start, io.SeekStart); err != nil {
		return errs.Wrap(err, "blockio: seek for write")
	}
	if _, err := w.dev.Write(w.buf); err != nil {
		return errs.Wrap(err, "blockio: write")
	}
	if err := w.dev.Sync(); err != nil {
		return errs.Wrap(err, "blockio: sync")
	}
	w.buf = w.buf[:0]
	return nil
}
