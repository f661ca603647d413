// Package codec implements the little-endian, cursor-based wire format
// used by every on-disk structure in the layout engine: fixed-width
// integers and byte arrays read from or written into an in-memory buffer,
// with explicit bounds checks. No field is ever decoded past its declared
// boundary.
package codec

import (
	"encoding/binary"

	"github.com/outofforest/albireo/errs"
)

// Encoder appends little-endian fields to an in-memory buffer.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an Encoder that appends to an empty buffer.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// NewEncoderSize returns an Encoder whose buffer is pre-allocated to size
// bytes (does not bound subsequent writes).
func NewEncoderSize(size int) *Encoder {
	return &Encoder{buf: make([]byte, 0, size)}
}

// Bytes returns the accumulated buffer.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Len returns the number of bytes appended so far.
func (e *Encoder) Len() int {
	return len(e.buf)
}

// PutUint16 appends v as little-endian.
func (e *Encoder) PutUint16(v uint16) *Encoder {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	e.buf = append(e.buf, b[:]...)
	return e
}

// PutUint32 appends v as little-endian.
func (e *Encoder) PutUint32(v uint32) *Encoder {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.buf = append(e.buf, b[:]...)
	return e
}

// PutUint64 appends v as little-endian.
func (e *Encoder) PutUint64(v uint64) *Encoder {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.buf = append(e.buf, b[:]...)
	return e
}

// PutInt32 appends v as little-endian.
func (e *Encoder) PutInt32(v int32) *Encoder {
	return e.PutUint32(uint32(v))
}

// PutBytes appends p verbatim.
func (e *Encoder) PutBytes(p []byte) *Encoder {
	e.buf = append(e.buf, p...)
	return e
}

// PutZeroes appends n zero bytes, used for padding fields and scratch fill.
func (e *Encoder) PutZeroes(n int) *Encoder {
	for i := 0; i < n; i++ {
		e.buf = append(e.buf, 0)
	}
	return e
}

// Decoder consumes little-endian fields from a fixed buffer, tracking how
// much has been consumed so decode_* helpers can check it against the
// expected structure size.
type Decoder struct {
	buf []byte
	off int
}

// NewDecoder returns a Decoder reading from buf.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Len returns the number of bytes consumed so far.
func (d *Decoder) Len() int {
	return d.off
}

// Remaining returns the number of unconsumed bytes.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.off
}

func (d *Decoder) take(n int) ([]byte, error) {
	if n < 0 || d.off+n > len(d.buf) {
		return nil, errs.Wrapf(errs.CorruptData, "codec: short buffer, need %d bytes, have %d", n, d.Remaining())
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b, nil
}

// Uint16 consumes and returns a little-endian uint16.
func (d *Decoder) Uint16() (uint16, error) {
	b, err := d.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// Uint32 consumes and returns a little-endian uint32.
func (d *Decoder) Uint32() (uint32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// Uint64 consumes and returns a little-endian uint64.
func (d *Decoder) Uint64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// Int32 consumes and returns a little-endian int32.
func (d *Decoder) Int32() (int32, error) {
	v, err := d.Uint32()
	if err != nil {
		return 0, err
	}
	return int32(v), nil
}

// Bytes consumes and returns the next n raw bytes.
func (d *Decoder) Bytes(n int) ([]byte, error) {
	return d.take(n)
}

// Skip discards the next n bytes (used for reserved/pad fields).
func (d *Decoder) Skip(n int) error {
	_, err := d.take(n)
	return err
}

// ExpectConsumed returns errs.CorruptData if the decoder has not consumed
// exactly want bytes. The superblock, page-map and configuration-record
// decoders call this before returning, so an under-read of those
// structures is detected. The region-table and save-header decoders do
// not call it; they read their declared fields and leave any bytes past
// them unchecked.
func (d *Decoder) ExpectConsumed(want int) error {
	if d.off != want {
		return errs.Wrapf(errs.CorruptData, "codec: expected to consume %d bytes, consumed %d", want, d.off)
	}
	return nil
}
