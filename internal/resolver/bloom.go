package resolver

import (
	"math"

	"github.com/cespare/xxhash/v2"
)

// bloomFilter is a fixed-size membership filter used to reject misses
// before touching the trie. False positives fall through to the trie,
// so lookups stay exact.
type bloomFilter struct {
	bits  []uint64
	nbits uint64
	k     int
}

// newBloomFilter sizes the filter for n items at the given false
// positive rate.
func newBloomFilter(n int, fpRate float64) *bloomFilter {
	if n < 1 {
		n = 1
	}
	if fpRate <= 0 || fpRate >= 1 {
		fpRate = 0.01
	}
	nbits := uint64(math.Ceil(-float64(n) * math.Log(fpRate) / (math.Ln2 * math.Ln2)))
	if nbits < 64 {
		nbits = 64
	}
	k := int(math.Round(float64(nbits) / float64(n) * math.Ln2))
	if k < 1 {
		k = 1
	}
	return &bloomFilter{
		bits:  make([]uint64, (nbits+63)/64),
		nbits: nbits,
		k:     k,
	}
}

// add inserts a key. Double hashing derives k positions from two
// xxhash values.
func (f *bloomFilter) add(key string) {
	h1, h2 := f.hashes(key)
	for i := 0; i < f.k; i++ {
		pos := (h1 + uint64(i)*h2) % f.nbits
		f.bits[pos/64] |= 1 << (pos % 64)
	}
}

// mayContain reports whether key may be in the set. False means
// definitely absent.
func (f *bloomFilter) mayContain(key string) bool {
	h1, h2 := f.hashes(key)
	for i := 0; i < f.k; i++ {
		pos := (h1 + uint64(i)*h2) % f.nbits
		if f.bits[pos/64]&(1<<(pos%64)) == 0 {
			return false
		}
	}
	return true
}

func (f *bloomFilter) hashes(key string) (uint64, uint64) {
	h1 := xxhash.Sum64String(key)
	h2 := xxhash.Sum64String(key + "\x00")
	if h2%2 == 0 {
		h2++
	}
	return h1, h2
}
