// Package indexsave reconstructs a save slot's sub-region layout from
// its on-disk region table, and codes the save header payload (the
// SAVE/UNSAVED region header's timestamp/nonce) together with the
// opaque index-state buffer it is followed by.
package indexsave

import (
	"github.com/outofforest/photon"

	"github.com/outofforest/albireo/codec"
	"github.com/outofforest/albireo/errs"
)

// MaxStateBufferSize is the maximum size of the opaque index-state
// buffer that follows the save header.
const MaxStateBufferSize = 512

// stateSignature and stateVersionID are the only version tag this
// engine writes or accepts in the state buffer.
const (
	stateSignature = -1
	stateVersionID = 301
)

// stateTag is the fixed 32-byte prefix of the index-state buffer: the
// version tag plus the three chapter counters the index keeps across a
// save/load cycle. Unlike the rest of the wire format, this prefix is a
// fixed, non-self-describing struct with no version-dependent tail, so
// it is cast directly via photon rather than coded field by field.
type stateTag struct {
	Signature             int32
	VersionID             int32
	NewestVirtualChapter  uint64
	OldestVirtualChapter  uint64
	LastCheckpointChapter uint64
}

const stateTagSize = 4 + 4 + 8 + 8 + 8

// extraSize is the portion of the fixed 512-byte buffer left over for
// the index's own use once the tag and counters are accounted for. The
// buffer is always exactly MaxStateBufferSize bytes on disk (it is not
// length-prefixed), so Extra is always exactly this many bytes, zero
// where the index has not claimed them.
const extraSize = MaxStateBufferSize - stateTagSize

// StateBuffer is the decoded index-state buffer.
type StateBuffer struct {
	NewestVirtualChapter  uint64
	OldestVirtualChapter  uint64
	LastCheckpointChapter uint64
	// Extra is the opaque trailing portion of the fixed-size buffer,
	// always exactly extraSize bytes. The layout engine never interprets
	// it; it round-trips it for the index.
	Extra []byte
}

// Encode renders the buffer to its wire form: always exactly
// MaxStateBufferSize bytes. Returns errs.NoSpace if Extra is longer than
// the buffer has room for.
func (s StateBuffer) Encode() ([]byte, error) {
	if len(s.Extra) > extraSize {
		return nil, errs.Wrapf(errs.NoSpace, "indexsave: state buffer extra needs %d bytes, max is %d", len(s.Extra), extraSize)
	}

	tag := photon.NewFromValue(&stateTag{
		Signature:             stateSignature,
		VersionID:             stateVersionID,
		NewestVirtualChapter:  s.NewestVirtualChapter,
		OldestVirtualChapter:  s.OldestVirtualChapter,
		LastCheckpointChapter: s.LastCheckpointChapter,
	})

	buf := make([]byte, MaxStateBufferSize)
	copy(buf, tag.B)
	copy(buf[stateTagSize:], s.Extra)
	return buf, nil
}

// Decode parses a state buffer from the first MaxStateBufferSize bytes
// of buf, ignoring anything beyond (region-table block padding). Returns
// errs.UnsupportedVersion if the version tag does not match
// {signature: -1, version_id: 301}.
func Decode(buf []byte) (StateBuffer, error) {
	if len(buf) < MaxStateBufferSize {
		return StateBuffer{}, errs.Wrapf(errs.CorruptData, "indexsave: state buffer shorter than its fixed size")
	}
	buf = buf[:MaxStateBufferSize]

	tag := photon.NewFromBytes[stateTag](append([]byte{}, buf[:stateTagSize]...))
	if tag.V.Signature != stateSignature || tag.V.VersionID != stateVersionID {
		return StateBuffer{}, errs.Wrapf(errs.UnsupportedVersion, "indexsave: state buffer tag {%d,%d}", tag.V.Signature, tag.V.VersionID)
	}

	extra := append([]byte{}, buf[stateTagSize:]...)
	return StateBuffer{
		NewestVirtualChapter:  tag.V.NewestVirtualChapter,
		OldestVirtualChapter:  tag.V.OldestVirtualChapter,
		LastCheckpointChapter: tag.V.LastCheckpointChapter,
		Extra:                 extra,
	}, nil
}

// Header is the fixed part of a SAVE/UNSAVED region header's payload.
type Header struct {
	TimestampMs uint64
	Nonce       uint64
	Version     uint32
}

// HeaderVersion is the only save-header version this engine writes or
// accepts.
const HeaderVersion uint32 = 1

// HeaderSize is the encoded size of Header: timestamp_ms(8) + nonce(8) +
// version(4) + pad(4).
const HeaderSize = 8 + 8 + 4 + 4

// EncodeFixed renders just h's fixed fields, without any state buffer.
// Used to compute the bytes a save slot's nonce is derived from.
func (h Header) EncodeFixed() []byte {
	enc := codec.NewEncoderSize(HeaderSize)
	enc.PutUint64(h.TimestampMs)
	enc.PutUint64(h.Nonce)
	enc.PutUint32(HeaderVersion)
	enc.PutZeroes(4)
	return enc.Bytes()
}

// Encode renders h followed by the encoded state buffer.
func (h Header) Encode(state StateBuffer) ([]byte, error) {
	stateBuf, err := state.Encode()
	if err != nil {
		return nil, err
	}

	enc := codec.NewEncoderSize(HeaderSize + len(stateBuf))
	enc.PutUint64(h.TimestampMs)
	enc.PutUint64(h.Nonce)
	enc.PutUint32(HeaderVersion)
	enc.PutZeroes(4)
	enc.PutBytes(stateBuf)
	return enc.Bytes(), nil
}

// DecodeHeader parses a Header and its trailing state buffer from buf.
// The state buffer is only decoded (and its version tag checked) when
// decodeState is true; a fresh/UNSAVED slot's payload has no state
// buffer worth validating.
func DecodeHeader(buf []byte, decodeState bool) (Header, StateBuffer, error) {
	dec := codec.NewDecoder(buf)

	var h Header
	var err error
	if h.TimestampMs, err = dec.Uint64(); err != nil {
		return Header{}, StateBuffer{}, err
	}
	if h.Nonce, err = dec.Uint64(); err != nil {
		return Header{}, StateBuffer{}, err
	}
	if h.Version, err = dec.Uint32(); err != nil {
		return Header{}, StateBuffer{}, err
	}
	if h.Version != HeaderVersion {
		return Header{}, StateBuffer{}, errs.Wrapf(errs.UnsupportedVersion, "indexsave: save header version %d", h.Version)
	}
	if err := dec.Skip(4); err != nil {
		return Header{}, StateBuffer{}, err
	}

	if !decodeState {
		return h, StateBuffer{}, nil
	}

	state, err := Decode(buf[dec.Len():])
	if err != nil {
		return Header{}, StateBuffer{}, err
	}
	return h, state, nil
}
