// Package nonce computes the 64-bit nonces that bind a layout's
// superblock, its sub-index, and each save slot together, so that a
// checkpoint can be verified as having been written by the volume that
// claims to own it.
//
// The hash itself is delegated to an off-the-shelf Murmur3-128
// implementation (github.com/spaolacci/murmur3); this package only ever
// derives the seed and slices the digest, never reimplements the hash.
package nonce

import (
	"encoding/binary"
	"math/rand"
	"time"

	"github.com/spaolacci/murmur3"
)

// SeedInfoSize is the number of bytes of seed material stored in the
// superblock and hashed into the primary nonce.
const SeedInfoSize = 32

// primarySeedBase is the fixed starting point hashed into the seed for the
// superblock's primary nonce.
const primarySeedBase uint64 = 0xa1b1e0fc

// digest128 runs Murmur3-128 over data with the given 64-bit start value,
// folded down to the hash's 32-bit seed the same way the kernel's
// hash_stuff() does, and returns the 16-byte digest as two little-endian
// 64-bit halves concatenated.
func digest128(start uint64, data []byte) [16]byte {
	seed := uint32(start ^ (start >> 27))
	h1, h2 := murmur3.Sum128WithSeed(data, seed)

	var out [16]byte
	binary.LittleEndian.PutUint64(out[0:8], h1)
	binary.LittleEndian.PutUint64(out[8:16], h2)
	return out
}

// hashStuff reproduces hash_stuff(): hash data with a seed derived from
// start, then take the little-endian uint64 found at byte offset 4 of the
// 16-byte digest.
func hashStuff(start uint64, data []byte) uint64 {
	digest := digest128(start, data)
	return binary.LittleEndian.Uint64(digest[4:12])
}

// Primary computes the superblock's primary nonce from its 32-byte
// nonce_info seed.
func Primary(seedInfo []byte) uint64 {
	return hashStuff(primarySeedBase, seedInfo)
}

// Secondary deterministically derives a new nonce from an existing one and
// arbitrary bytes, salting the hash with base+1 so that the secondary
// nonce differs from the base even when data is empty.
func Secondary(base uint64, data []byte) uint64 {
	return hashStuff(base+1, data)
}

// negate returns the two's-complement negation of v, used to retry a
// sub-index nonce computation that happened to come out as zero.
func negate(v uint64) uint64 {
	return ^v + 1
}

// SubIndex computes the per-sub-index nonce from the superblock's primary
// nonce and the sub-index's start block and index id. The result is never
// zero: by construction, a zero result is retried once with the primary
// nonce negated.
func SubIndex(primaryNonce uint64, startBlock uint64, indexID uint16) uint64 {
	data := encodeSubIndexSeed(startBlock, indexID)
	n := Secondary(primaryNonce, data)
	if n == 0 {
		n = Secondary(negate(primaryNonce), data)
	}
	return n
}

func encodeSubIndexSeed(startBlock uint64, indexID uint16) []byte {
	b := make([]byte, 10)
	binary.LittleEndian.PutUint64(b[0:8], startBlock)
	binary.LittleEndian.PutUint16(b[8:10], indexID)
	return b
}

// UniqueSeed fills a fresh 32-byte nonce_info buffer for a newly created
// superblock: the current time in nanoseconds, then a 30-bit pseudorandom
// value, then the already-filled prefix doubled over itself until the
// buffer is full.
func UniqueSeed() [SeedInfoSize]byte {
	var buf [SeedInfoSize]byte

	now := uint64(time.Now().UnixNano())
	binary.LittleEndian.PutUint64(buf[0:8], now)
	offset := 8

	r := uint32(1 + rand.Intn((1<<30)-1)) //nolint:gosec // non-cryptographic uniqueness salt
	binary.LittleEndian.PutUint32(buf[offset:offset+4], r)
	offset += 4

	for offset < SeedInfoSize {
		n := offset
		if n > SeedInfoSize-offset {
			n = SeedInfoSize - offset
		}
		copy(buf[offset:offset+n], buf[:n])
		offset += n
	}
	return buf
}
