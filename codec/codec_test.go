package codec

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outofforest/albireo/errs"
)

func TestRoundTripFixedWidthFields(t *testing.T) {
	requireT := require.New(t)

	enc := NewEncoder()
	enc.PutUint16(0x1234).PutUint32(0xdeadbeef).PutUint64(0x0102030405060708).PutInt32(-1).PutBytes([]byte{9, 9}).PutZeroes(3)

	dec := NewDecoder(enc.Bytes())
	u16, err := dec.Uint16()
	requireT.NoError(err)
	requireT.EqualValues(0x1234, u16)

	u32, err := dec.Uint32()
	requireT.NoError(err)
	requireT.EqualValues(0xdeadbeef, u32)

	u64, err := dec.Uint64()
	requireT.NoError(err)
	requireT.EqualValues(0x0102030405060708, u64)

	i32, err := dec.Int32()
	requireT.NoError(err)
	requireT.EqualValues(-1, i32)

	b, err := dec.Bytes(2)
	requireT.NoError(err)
	requireT.Equal([]byte{9, 9}, b)

	requireT.NoError(dec.Skip(3))
	requireT.NoError(dec.ExpectConsumed(enc.Len()))
}

func TestDecodeShortBufferIsCorruptData(t *testing.T) {
	requireT := require.New(t)

	dec := NewDecoder([]byte{1, 2, 3})
	_, err := dec.Uint32()
	requireT.ErrorIs(err, errs.CorruptData)
}

func TestExpectConsumedCatchesUnderAndOverRead(t *testing.T) {
	requireT := require.New(t)

	enc := NewEncoder()
	enc.PutUint32(1).PutUint32(2)

	dec := NewDecoder(enc.Bytes())
	_, err := dec.Uint32()
	requireT.NoError(err)
	requireT.Error(dec.ExpectConsumed(enc.Len()))

	_, err = dec.Uint32()
	requireT.NoError(err)
	requireT.NoError(dec.ExpectConsumed(enc.Len()))
}

func TestLittleEndianByteOrder(t *testing.T) {
	requireT := require.New(t)

	enc := NewEncoder()
	enc.PutUint32(0x01020304)
	requireT.Equal([]byte{0x04, 0x03, 0x02, 0x01}, enc.Bytes())
}
