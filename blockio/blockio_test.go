package blockio

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outofforest/albireo/errs"
)

const testBlockSize = 4096

func TestOpenFactoryRoundsDownToBlockSize(t *testing.T) {
	requireT := require.New(t)

	dev := NewMemDev(testBlockSize*4 + 100)
	f, err := OpenFactory(dev, testBlockSize, ModeCreateRW, 0)
	requireT.NoError(err)
	requireT.EqualValues(testBlockSize*4, f.UsableBytes())
}

func TestOpenFactoryFailsWithNoSpace(t *testing.T) {
	requireT := require.New(t)

	dev := NewMemDev(testBlockSize * 2)
	_, err := OpenFactory(dev, testBlockSize, ModeCreateRW, testBlockSize*4)
	requireT.ErrorIs(err, errs.NoSpace)
}

func TestWriterBuffersUntilFlush(t *testing.T) {
	requireT := require.New(t)

	dev := NewMemDev(testBlockSize * 2)
	f, err := OpenFactory(dev, testBlockSize, ModeCreateRW, 0)
	requireT.NoError(err)

	w, err := f.BufferedWriter(0, testBlockSize)
	requireT.NoError(err)
	requireT.NoError(w.Write([]byte("hello")))

	r, err := f.BufferedReader(0, testBlockSize)
	requireT.NoError(err)
	got := make([]byte, 5)
	requireT.NoError(r.ReadFull(got))
	requireT.Equal([]byte{0, 0, 0, 0, 0}, got)

	requireT.NoError(w.Flush())

	r2, err := f.BufferedReader(0, testBlockSize)
	requireT.NoError(err)
	got2 := make([]byte, 5)
	requireT.NoError(r2.ReadFull(got2))
	requireT.Equal([]byte("hello"), got2)
}

func TestWriterRejectsOverflow(t *testing.T) {
	requireT := require.New(t)

	dev := NewMemDev(testBlockSize)
	f, err := OpenFactory(dev, testBlockSize, ModeCreateRW, 0)
	requireT.NoError(err)

	w, err := f.BufferedWriter(0, 4)
	requireT.NoError(err)
	requireT.ErrorIs(w.Write([]byte("12345")), errs.NoSpace)
}

func TestReaderFailsWithCorruptDataOnShortRead(t *testing.T) {
	requireT := require.New(t)

	dev := NewMemDev(testBlockSize)
	f, err := OpenFactory(dev, testBlockSize, ModeCreateRW, 0)
	requireT.NoError(err)

	r, err := f.BufferedReader(0, 4)
	requireT.NoError(err)
	err = r.ReadFull(make([]byte, 5))
	requireT.ErrorIs(err, errs.CorruptData)
}

func TestVerifyMagic(t *testing.T) {
	requireT := require.New(t)

	dev := NewMemDev(testBlockSize)
	f, err := OpenFactory(dev, testBlockSize, ModeCreateRW, 0)
	requireT.NoError(err)

	w, err := f.BufferedWriter(0, testBlockSize)
	requireT.NoError(err)
	requireT.NoError(w.Write([]byte("MAGIC001")))
	requireT.NoError(w.Flush())

	r, err := f.BufferedReader(0, testBlockSize)
	requireT.NoError(err)
	requireT.NoError(Verify(r, []byte("MAGIC001")))

	r2, err := f.BufferedReader(0, testBlockSize)
	requireT.NoError(err)
	requireT.ErrorIs(Verify(r2, []byte("WRONGMAG")), errs.CorruptData)
}

func TestWriteZeros(t *testing.T) {
	requireT := require.New(t)

	dev := NewMemDev(testBlockSize)
	f, err := OpenFactory(dev, testBlockSize, ModeCreateRW, 0)
	requireT.NoError(err)

	w, err := f.BufferedWriter(0, testBlockSize)
	requireT.NoError(err)
	requireT.NoError(w.WriteZeros(16))
	requireT.NoError(w.Flush())

	r, err := f.BufferedReader(0, 16)
	requireT.NoError(err)
	got := make([]byte, 16)
	requireT.NoError(r.ReadFull(got))
	requireT.Equal(make([]byte, 16), got)
}
