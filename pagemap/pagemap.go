// Package pagemap implements the index page map: a per-chapter array of
// delta-list boundaries that lets a lookup jump straight to the index
// page holding a given record's delta list instead of scanning every
// page of a chapter.
package pagemap

import (
	"io"

	"github.com/outofforest/albireo/codec"
	"github.com/outofforest/albireo/contracts"
	"github.com/outofforest/albireo/errs"
	"github.com/outofforest/albireo/obslog"
)

// Magic identifies an encoded page map.
var Magic = [8]byte{'A', 'L', 'B', 'I', 'P', 'M', '0', '2'}

var log = obslog.New("pagemap")

// Map is the decoded index page map. The last index page of each
// chapter is never stored (it is implied by geometry), so entries has
// chaptersPerVolume * (indexPagesPerChapter-1) slots.
type Map struct {
	chaptersPerVolume    uint32
	indexPagesPerChapter uint32
	deltaListsPerChapter uint32
	lastUpdate           uint64
	entries              []uint16
}

// New allocates an empty page map for the given geometry. Returns
// errs.BadState if deltaListsPerChapter-1 would overflow a u16 entry.
func New(chaptersPerVolume, indexPagesPerChapter, deltaListsPerChapter uint32) (*Map, error) {
	if deltaListsPerChapter == 0 || deltaListsPerChapter-1 > 65535 {
		return nil, errs.Wrapf(errs.BadState, "pagemap: delta_lists_per_chapter %d does not fit a u16 boundary", deltaListsPerChapter)
	}
	if indexPagesPerChapter == 0 {
		return nil, errs.Wrapf(errs.BadState, "pagemap: index_pages_per_chapter must be positive")
	}

	return &Map{
		chaptersPerVolume:    chaptersPerVolume,
		indexPagesPerChapter: indexPagesPerChapter,
		deltaListsPerChapter: deltaListsPerChapter,
		entries:              make([]uint16, chaptersPerVolume*(indexPagesPerChapter-1)),
	}, nil
}

// LastUpdate returns the virtual chapter the map was last updated for.
func (m *Map) LastUpdate() uint64 {
	return m.lastUpdate
}

// Update records that delta list `list` is the largest one placed on
// page `page` of chapter `chap`, as of virtual chapter vchap. A
// non-adjacent vchap only warns, it never fails.
func (m *Map) Update(vchap uint64, chap, page, list uint32) error {
	if m.lastUpdate != 0 && vchap != m.lastUpdate && vchap != m.lastUpdate+1 {
		log.Warn("index page map update skipped a virtual chapter", "last_update", m.lastUpdate, "vchap", vchap)
	}
	m.lastUpdate = vchap

	if chap >= m.chaptersPerVolume {
		return errs.Wrapf(errs.InvalidArgument, "pagemap: chapter %d >= chapters_per_volume %d", chap, m.chaptersPerVolume)
	}
	if page >= m.indexPagesPerChapter {
		return errs.Wrapf(errs.InvalidArgument, "pagemap: page %d >= index_pages_per_chapter %d", page, m.indexPagesPerChapter)
	}
	if list >= m.deltaListsPerChapter {
		return errs.Wrapf(errs.InvalidArgument, "pagemap: delta list %d >= delta_lists_per_chapter %d", list, m.deltaListsPerChapter)
	}

	if page == m.indexPagesPerChapter-1 {
		// The last page of a chapter is implied by geometry, not stored.
		return nil
	}
	m.entries[chap*(m.indexPagesPerChapter-1)+page] = uint16(list)
	return nil
}

// FindPage returns the index page of chapter chap that holds name's
// delta list, as determined by hasher.
func (m *Map) FindPage(name []byte, chap uint32, hasher contracts.ChapterHasher) (uint32, error) {
	if chap >= m.chaptersPerVolume {
		return 0, errs.Wrapf(errs.InvalidArgument, "pagemap: chapter %d >= chapters_per_volume %d", chap, m.chaptersPerVolume)
	}

	d := hasher.DeltaList(name, m.deltaListsPerChapter)
	base := chap * (m.indexPagesPerChapter - 1)
	last := m.indexPagesPerChapter - 1

	for page := uint32(0); page < last; page++ {
		if uint32(m.entries[base+page]) >= d {
			return page, nil
		}
	}
	return last, nil
}

// Bounds returns the inclusive range of delta lists that may live on
// page `page` of chapter `chap`, given what has been recorded so far.
func (m *Map) Bounds(chap, page uint32) (lowest, highest uint32, err error) {
	if chap >= m.chaptersPerVolume {
		return 0, 0, errs.Wrapf(errs.InvalidArgument, "pagemap: chapter %d >= chapters_per_volume %d", chap, m.chaptersPerVolume)
	}
	if page >= m.indexPagesPerChapter {
		return 0, 0, errs.Wrapf(errs.InvalidArgument, "pagemap: page %d >= index_pages_per_chapter %d", page, m.indexPagesPerChapter)
	}

	base := chap * (m.indexPagesPerChapter - 1)
	last := m.indexPagesPerChapter - 1

	if page == 0 {
		lowest = 0
	} else {
		lowest = uint32(m.entries[base+page-1]) + 1
	}
	if page == last {
		highest = m.deltaListsPerChapter - 1
	} else {
		highest = uint32(m.entries[base+page])
	}
	return lowest, highest, nil
}

// Encode renders the map to its wire form: magic, last_update, then the
// entries array.
func (m *Map) Encode() []byte {
	enc := codec.NewEncoderSize(8 + 8 + 2*len(m.entries))
	enc.PutBytes(Magic[:])
	enc.PutUint64(m.lastUpdate)
	for _, e := range m.entries {
		enc.PutUint16(e)
	}
	return enc.Bytes()
}

// Decode parses a page map previously sized with New from buf.
func Decode(buf []byte, chaptersPerVolume, indexPagesPerChapter, deltaListsPerChapter uint32) (*Map, error) {
	m, err := New(chaptersPerVolume, indexPagesPerChapter, deltaListsPerChapter)
	if err != nil {
		return nil, err
	}

	dec := codec.NewDecoder(buf)
	magic, err := dec.Bytes(8)
	if err != nil {
		return nil, err
	}
	for i := range Magic {
		if magic[i] != Magic[i] {
			return nil, errs.Wrapf(errs.CorruptData, "pagemap: magic mismatch")
		}
	}
	if m.lastUpdate, err = dec.Uint64(); err != nil {
		return nil, err
	}
	for i := range m.entries {
		if m.entries[i], err = dec.Uint16(); err != nil {
			return nil, err
		}
	}
	if err := dec.ExpectConsumed(8 + 8 + 2*len(m.entries)); err != nil {
		return nil, err
	}
	return m, nil
}

// EncodedSize returns the wire size of a page map for the given
// geometry: the number of bytes Encode produces and Read consumes.
func EncodedSize(chaptersPerVolume, indexPagesPerChapter uint32) uint64 {
	return 8 + 8 + 2*uint64(chaptersPerVolume)*uint64(indexPagesPerChapter-1)
}

// Write renders m and writes it to w, implementing the
// write_index_page_map collaborator contract.
func (m *Map) Write(w io.Writer) error {
	_, err := w.Write(m.Encode())
	return errs.Wrap(err, "pagemap: write")
}

// Read decodes a page map sized for the given geometry from r,
// implementing the read_index_page_map collaborator contract.
func Read(r io.Reader, chaptersPerVolume, indexPagesPerChapter, deltaListsPerChapter uint32) (*Map, error) {
	size := EncodedSize(chaptersPerVolume, indexPagesPerChapter)
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, errs.Wrapf(errs.CorruptData, "pagemap: short read of encoded map: %v", err)
	}
	return Decode(buf, chaptersPerVolume, indexPagesPerChapter, deltaListsPerChapter)
}
