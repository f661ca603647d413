package pagemap

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outofforest/albireo/contracts"
	"github.com/outofforest/albireo/errs"
)

func TestUpdateThenFindPage(t *testing.T) {
	requireT := require.New(t)

	m, err := New(4, 3, 16)
	requireT.NoError(err)

	requireT.NoError(m.Update(1, 0, 0, 5))
	requireT.NoError(m.Update(1, 0, 1, 10))

	hasher := constHasher{d: 3}
	page, err := m.FindPage([]byte("name"), 0, hasher)
	requireT.NoError(err)
	requireT.Equal(uint32(0), page) // boundary 5 >= 3

	hasher = constHasher{d: 7}
	page, err = m.FindPage([]byte("name"), 0, hasher)
	requireT.NoError(err)
	requireT.Equal(uint32(1), page) // boundary 10 >= 7

	hasher = constHasher{d: 15}
	page, err = m.FindPage([]byte("name"), 0, hasher)
	requireT.NoError(err)
	requireT.Equal(uint32(2), page) // none >= 15, falls to last page
}

func TestBoundsBetweenRecordedBoundaries(t *testing.T) {
	requireT := require.New(t)

	m, err := New(4, 3, 10)
	requireT.NoError(err)
	requireT.NoError(m.Update(1, 0, 0, 3))
	requireT.NoError(m.Update(1, 0, 1, 7))

	low, high, err := m.Bounds(0, 1)
	requireT.NoError(err)
	requireT.Equal(uint32(4), low)
	requireT.Equal(uint32(7), high)
}

func TestBoundsOnLastPageReturnsTopDeltaList(t *testing.T) {
	requireT := require.New(t)

	m, err := New(1, 3, 16)
	requireT.NoError(err)
	requireT.NoError(m.Update(1, 0, 2, 9)) // writing the last page is a no-op

	_, high, err := m.Bounds(0, 2)
	requireT.NoError(err)
	requireT.Equal(uint32(15), high)
}

func TestUpdateSkipsWritingLastPage(t *testing.T) {
	requireT := require.New(t)

	m, err := New(1, 3, 16)
	requireT.NoError(err)
	requireT.NoError(m.Update(1, 0, 2, 9)) // last page (index 2 of 3)

	for _, e := range m.entries {
		requireT.Zero(e)
	}
}

func TestUpdateRejectsOutOfRangeArguments(t *testing.T) {
	requireT := require.New(t)

	m, err := New(2, 3, 16)
	requireT.NoError(err)

	requireT.ErrorIs(m.Update(1, 5, 0, 0), errs.InvalidArgument)
	requireT.ErrorIs(m.Update(1, 0, 5, 0), errs.InvalidArgument)
	requireT.ErrorIs(m.Update(1, 0, 0, 99), errs.InvalidArgument)
}

func TestNewRejectsOverflowingDeltaListCount(t *testing.T) {
	requireT := require.New(t)

	_, err := New(1, 3, 0)
	requireT.ErrorIs(err, errs.BadState)

	_, err = New(1, 3, 70000)
	requireT.ErrorIs(err, errs.BadState)
}

func TestEncodeDecodeRoundTrips(t *testing.T) {
	requireT := require.New(t)

	m, err := New(4, 3, 16)
	requireT.NoError(err)
	requireT.NoError(m.Update(5, 2, 0, 3))
	requireT.NoError(m.Update(5, 2, 1, 9))

	buf := m.Encode()
	requireT.Len(buf, int(EncodedSize(4, 3)))

	decoded, err := Decode(buf, 4, 3, 16)
	requireT.NoError(err)
	requireT.Equal(m.lastUpdate, decoded.lastUpdate)
	requireT.Equal(m.entries, decoded.entries)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	requireT := require.New(t)

	buf := make([]byte, EncodedSize(4, 3))
	_, err := Decode(buf, 4, 3, 16)
	requireT.ErrorIs(err, errs.CorruptData)
}

type constHasher struct {
	d uint32
}

func (h constHasher) DeltaList([]byte, uint32) uint32 {
	return h.d
}

var _ contracts.ChapterHasher = constHasher{}
