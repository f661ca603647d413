package blockio

import (
	"io"

	"github.com/pkg/errors"
)

var (
	_ Dev = &MemDev{}
)

// MemDev is an in-memory backing store, used by tests and by
// short-lived sparse layouts.
type MemDev struct {
	size   int64
	offset int64
	data   []byte
}

// NewMemDev returns a MemDev of the given size, zero-filled.
func NewMemDev(size int64) *MemDev {
	return &MemDev{
		size: size,
		data: make([]byte, size),
	}
}

// Seek seeks the position.
func (md *MemDev) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		offset = md.offset + offset
	case io.SeekEnd:
		offset = md.size + offset
	}

	if offset < 0 || offset > md.size {
		return 0, errors.Errorf("memdev: invalid offset %d", offset)
	}

	md.offset = offset
	return offset, nil
}

// Read reads data from the memdev.
func (md *MemDev) Read(p []byte) (int, error) {
	if p == nil {
		return 0, nil
	}
	n := copy(p, md.data[md.offset:])
	md.offset += int64(n)
	if n < len(p) {
		return n, io.ErrUnexpectedEOF
	}
	return n, nil
}

// Write writes data to the memdev.
func (md *MemDev) Write(p []byte) (int, error) {
	if p == nil {
		return 0, nil
	}
	n := copy(md.data[md.offset:], p)
	md.offset += int64(n)
	if n < len(p) {
		return n, errors.Errorf("memdev: write past end of device")
	}
	return n, nil
}

// Sync is a no-op for an in-memory device.
func (md *MemDev) Sync() error {
	return nil
}

// Size returns the device's total byte size.
func (md *MemDev) Size() int64 {
	return md.size
}
