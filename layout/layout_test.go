package layout

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outofforest/albireo/blockio"
	"github.com/outofforest/albireo/contracts"
	"github.com/outofforest/albireo/errs"
	"github.com/outofforest/albireo/geometry"
	"github.com/outofforest/albireo/indexsave"
	"github.com/outofforest/albireo/pagemap"
)

const testBlockSize = 4096

func testGeometry() geometry.Geometry {
	return geometry.Geometry{
		BytesPerPage:         4096,
		BytesPerVolume:       4096 * 40,
		ChaptersPerVolume:    4,
		IndexPagesPerChapter: 3,
		DeltaListsPerChapter: 16,
	}
}

func testFuncs() contracts.SizeFuncs {
	return contracts.SizeFuncs{
		VolumeIndexSaveBlocks: func(blockSize uint64) uint64 { return 4 },
		IndexPageMapSaveSize:  func() uint64 { return 64 },
		SavedOpenChapterSize:  func() uint64 { return 4096 },
	}
}

// fakeVolumeIndex is a minimal in-memory stand-in for the real volume
// index: one buffer of content per zone, round-tripped verbatim.
type fakeVolumeIndex struct {
	zones [][]byte
}

func (f *fakeVolumeIndex) Zones() int { return len(f.zones) }

func (f *fakeVolumeIndex) Save(writers []io.Writer) error {
	for i, w := range writers {
		if _, err := w.Write(f.zones[i]); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeVolumeIndex) Load(readers []io.Reader) error {
	f.zones = make([][]byte, len(readers))
	for i, r := range readers {
		buf := make([]byte, 8)
		if _, err := io.ReadFull(r, buf); err != nil {
			return err
		}
		f.zones[i] = buf
	}
	return nil
}

type fakeOpenChapter struct {
	content []byte
}

func (f *fakeOpenChapter) Save(w io.Writer) error {
	_, err := w.Write(f.content)
	return err
}

func (f *fakeOpenChapter) Load(r io.Reader) error {
	buf := make([]byte, len(f.content))
	_, err := io.ReadFull(r, buf)
	f.content = buf
	return err
}

func newTestFactory(t *testing.T, g geometry.Geometry) *blockio.Factory {
	t.Helper()
	size, err := ComputeSize(g, testBlockSize, testFuncs())
	require.NoError(t, err)

	dev := blockio.NewMemDev(int64(size))
	factory, err := blockio.OpenFactory(dev, testBlockSize, blockio.ModeCreateRW, int64(size))
	require.NoError(t, err)
	return factory
}

func TestFreshCreateThenOpen(t *testing.T) {
	requireT := require.New(t)
	g := testGeometry()
	cfg := geometry.NewConfiguration(g)
	factory := newTestFactory(t, g)

	l, err := MakeLayout(factory, g, cfg, true, testFuncs())
	requireT.NoError(err)
	requireT.NotZero(VolumeNonce(l))
	requireT.Len(l.saves.Slots(), 2)

	for _, s := range l.saves.Slots() {
		requireT.ErrorIs(l.saves.ValidateSave(s), errs.BadState)
	}
	_, err = l.saves.SelectLatest()
	requireT.ErrorIs(err, errs.IndexNotSavedCleanly)

	reopened, err := MakeLayout(factory, g, cfg, false, testFuncs())
	requireT.NoError(err)
	requireT.Equal(VolumeNonce(l), VolumeNonce(reopened))
}

func TestSaveThenLoadRoundTripsState(t *testing.T) {
	requireT := require.New(t)
	g := testGeometry()
	cfg := geometry.NewConfiguration(g)
	factory := newTestFactory(t, g)

	l, err := MakeLayout(factory, g, cfg, true, testFuncs())
	requireT.NoError(err)

	vindex := &fakeVolumeIndex{zones: [][]byte{[]byte("zonedata")}}
	ochapter := &fakeOpenChapter{content: bytes.Repeat([]byte{0xAB}, 32)}
	pm, err := newTestPageMap(g)
	requireT.NoError(err)

	state := indexsave.StateBuffer{
		NewestVirtualChapter:  1000,
		OldestVirtualChapter:  100,
		LastCheckpointChapter: 0xCAFE,
	}
	requireT.NoError(SaveState(l, vindex, ochapter, pm, state, 42))

	reopened, err := MakeLayout(factory, g, cfg, false, testFuncs())
	requireT.NoError(err)

	loadedVindex := &fakeVolumeIndex{zones: make([][]byte, 1)}
	loadedOchapter := &fakeOpenChapter{content: make([]byte, 32)}
	loadedState, loadedPM, err := LoadState(reopened, loadedVindex, loadedOchapter)
	requireT.NoError(err)

	requireT.Equal(state.NewestVirtualChapter, loadedState.NewestVirtualChapter)
	requireT.Equal(state.OldestVirtualChapter, loadedState.OldestVirtualChapter)
	requireT.Equal(state.LastCheckpointChapter, loadedState.LastCheckpointChapter)
	requireT.Equal([]byte("zonedata"), loadedVindex.zones[0])
	requireT.Equal(ochapter.content, loadedOchapter.content)
	requireT.NotNil(loadedPM)
}

func TestCrashBetweenInvalidateAndWriteLeavesPriorSaveSelectable(t *testing.T) {
	requireT := require.New(t)
	g := testGeometry()
	cfg := geometry.NewConfiguration(g)
	factory := newTestFactory(t, g)

	l, err := MakeLayout(factory, g, cfg, true, testFuncs())
	requireT.NoError(err)

	vindex := &fakeVolumeIndex{zones: [][]byte{[]byte("firstsav")}}
	ochapter := &fakeOpenChapter{content: bytes.Repeat([]byte{0x01}, 32)}
	pm, err := newTestPageMap(g)
	requireT.NoError(err)
	requireT.NoError(SaveState(l, vindex, ochapter, pm, indexsave.StateBuffer{NewestVirtualChapter: 1}, 100))

	nextSlot := l.saves.SelectOldest()
	requireT.NoError(l.saves.Invalidate(nextSlot))
	// Simulate a crash: no Instantiate/WriteTable follows.

	reopened, err := MakeLayout(factory, g, cfg, false, testFuncs())
	requireT.NoError(err)

	latest, err := reopened.saves.SelectLatest()
	requireT.NoError(err)
	requireT.EqualValues(1, latest.State().NewestVirtualChapter)
}

func TestTwoGenerationRotationOverwritesOldest(t *testing.T) {
	requireT := require.New(t)
	g := testGeometry()
	cfg := geometry.NewConfiguration(g)
	factory := newTestFactory(t, g)

	l, err := MakeLayout(factory, g, cfg, true, testFuncs())
	requireT.NoError(err)

	vindex := &fakeVolumeIndex{zones: [][]byte{[]byte("aaaaaaaa")}}
	ochapter := &fakeOpenChapter{content: bytes.Repeat([]byte{0x02}, 32)}

	timestamps := []uint64{10, 20, 30}
	for _, ts := range timestamps {
		pm, err := newTestPageMap(g)
		requireT.NoError(err)
		requireT.NoError(SaveState(l, vindex, ochapter, pm, indexsave.StateBuffer{NewestVirtualChapter: ts}, ts))
	}

	latest, err := l.saves.SelectLatest()
	requireT.NoError(err)
	requireT.EqualValues(30, latest.State().NewestVirtualChapter)

	for _, s := range l.saves.Slots() {
		if l.saves.ValidateSave(s) == nil {
			requireT.NotEqualValues(10, s.State().NewestVirtualChapter)
		}
	}
}

func TestDiscardStateInvalidatesEverySlot(t *testing.T) {
	requireT := require.New(t)
	g := testGeometry()
	cfg := geometry.NewConfiguration(g)
	factory := newTestFactory(t, g)

	l, err := MakeLayout(factory, g, cfg, true, testFuncs())
	requireT.NoError(err)

	vindex := &fakeVolumeIndex{zones: [][]byte{[]byte("aaaaaaaa")}}
	ochapter := &fakeOpenChapter{content: bytes.Repeat([]byte{0x03}, 32)}
	pm, err := newTestPageMap(g)
	requireT.NoError(err)
	requireT.NoError(SaveState(l, vindex, ochapter, pm, indexsave.StateBuffer{NewestVirtualChapter: 5}, 5))

	requireT.NoError(DiscardState(l))
	_, err = l.saves.SelectLatest()
	requireT.ErrorIs(err, errs.IndexNotSavedCleanly)
}

func TestUpdateLayoutConvertsAndRoundTrips(t *testing.T) {
	requireT := require.New(t)
	g := testGeometry()
	cfg := geometry.NewConfiguration(g)

	size, err := ComputeSize(g, testBlockSize, testFuncs())
	requireT.NoError(err)

	const offsetBlocks = 4
	// Give the device more room than the layout's computed size.
	dev := blockio.NewMemDev(int64(size) + offsetBlocks*testBlockSize)
	factory, err := blockio.OpenFactory(dev, testBlockSize, blockio.ModeCreateRW, int64(size))
	requireT.NoError(err)

	l, err := MakeLayout(factory, g, cfg, true, testFuncs())
	requireT.NoError(err)

	converted, err := UpdateLayout(l, cfg, offsetBlocks*testBlockSize, offsetBlocks*testBlockSize)
	requireT.NoError(err)
	requireT.Equal(uint64(offsetBlocks), converted.top.Data.VolumeOffset)
	requireT.Equal(uint64(offsetBlocks), converted.top.Data.StartOffset)

	vindex := &fakeVolumeIndex{zones: [][]byte{[]byte("postconv")}}
	ochapter := &fakeOpenChapter{content: bytes.Repeat([]byte{0x04}, 32)}
	pm, err := newTestPageMap(g)
	requireT.NoError(err)
	requireT.NoError(SaveState(converted, vindex, ochapter, pm, indexsave.StateBuffer{NewestVirtualChapter: 77}, 77))

	reopened, err := MakeLayout(factory, g, cfg, false, testFuncs())
	requireT.NoError(err)

	loadedVindex := &fakeVolumeIndex{zones: make([][]byte, 1)}
	loadedOchapter := &fakeOpenChapter{content: make([]byte, 32)}
	state, _, err := LoadState(reopened, loadedVindex, loadedOchapter)
	requireT.NoError(err)
	requireT.EqualValues(77, state.NewestVirtualChapter)
}

func newTestPageMap(g geometry.Geometry) (*pagemap.Map, error) {
	return pagemap.New(g.ChaptersPerVolume, g.IndexPagesPerChapter, g.DeltaListsPerChapter)
}
