package rand

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"sync"
)

const (
	bytesInUint64 = 8
	charset       = "abcdefghijklmnopqrstuvwxyz0123456789"
)

var charsetLen = len(charset)

var defaultRandBytes = newRandBytes()

func newRandBytes() *randBytes {
	randomBytes := make([]byte, bytesInUint64*2)

	if _, err := cryptorand.Read(randomBytes); err != nil {
		panic("unreachable")
	}

	return &randBytes{
		//nolint:gosec // no security required
		rng: rand.New(rand.NewPCG(
			binary.LittleEndian.Uint64(randomBytes[:8]),
			binary.LittleEndian.Uint64(randomBytes[8:]),
		)),
	}
}

type randBytes struct {
	mut sync.Mutex
	rng *rand.Rand
}

func (rb *randBytes) str(length int) string {
	buf := make([]byte, length)

	rb.mut.Lock()
	for i := range buf {
		buf[i] = charset[rb.rng.IntN(charsetLen)]
	}
	rb.mut.Unlock()

	return string(buf)
}

func (rb *randBytes) perm(n int) []int {
	rb.mut.Lock()
	defer rb.mut.Unlock()
	return rb.rng.Perm(n)
}

// String returns a random lowercase alphanumeric string of the given length.
// Not security-critical: used for revision suffixes.
func String(length int) string {
	return defaultRandBytes.str(length)
}

// Perm returns a pseudo-random permutation of [0, n).
func Perm(n int) []int {
	return defaultRandBytes.perm(n)
}
