package contracts

import "github.com/cespare/xxhash/v2"

// XXHashChapterHasher is a reference ChapterHasher: a deterministic,
// collision-resistant stand-in for the real volume index's delta-list
// assignment.
type XXHashChapterHasher struct{}

// DeltaList returns recordName's hash modulo deltaListsPerChapter.
func (XXHashChapterHasher) DeltaList(recordName []byte, deltaListsPerChapter uint32) uint32 {
	if deltaListsPerChapter == 0 {
		return 0
	}
	return uint32(xxhash.Sum64(recordName) % uint64(deltaListsPerChapter))
}
