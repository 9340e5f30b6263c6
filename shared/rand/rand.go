/*
Package rand defines methods of obtaining random number generators requiring or not requiring
cryptographically secure random numbers.

This package should be used throughout the project in place of the standard library math/rand.

There are two modes, one for deterministic and another non-deterministic randomness:
1. If deterministic pseudo-random generator is enough, use:

	import "github.com/Dhenz14/HivePoA-sub000/shared/rand"
	randGen := rand.NewDeterministicGenerator()
	randGen.Intn(32)

2. For cryptographically secure non-deterministic mode (CSPRNG), use:

	import "github.com/Dhenz14/HivePoA-sub000/shared/rand"
	randGen := rand.NewGenerator()
	randGen.Intn(32)

Both modes provide full access to all methods of math.Rand
*/
package rand

import (
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand"
	"sync"
	"time"
)

type source struct{}

var lock sync.RWMutex

// Seed does nothing when crypto/rand is used as source.
func (_ *source) Seed(_ int64) {}

// Int63 returns uniformly-distributed random (as in CSPRNG) int64 value within [0, 1<<63) range.
// Panics if random generator reader cannot return data.
func (s *source) Int63() int64 {
	return int64(s.Uint64() & ^uint64(1<<63))
}

// Uint64 returns uniformly-distributed random (as in CSPRNG) uint64 value within [0, 1<<64) range.
// Panics if random generator reader cannot return data.
func (_ *source) Uint64() (val uint64) {
	lock.RLock()
	defer lock.RUnlock()
	if err := binary.Read(rand.Reader, binary.BigEndian, &val); err != nil {
		panic(err)
	}
	return
}

// NewGenerator returns a new generator that uses random values from crypto/rand as a source
// (cryptographically secure random number generator).
// Panics if crypto/rand input cannot be read.
// Use it for everything where crypto secure non-deterministic randomness is required. Performance
// takes a hit, so use sparingly.
func NewGenerator() *mrand.Rand {
	return mrand.New(&source{}) // #nosec G404 -- excluded
}

// NewDeterministicGenerator returns a random generator which is only seeded with time,
// which makes its output deterministic (given that we know from what time generator was seeded,
// and what numbers were generated).
// Use this method for performance, where deterministic pseudo-random behaviour is enough.
// Otherwise, rely on NewGenerator().
func NewDeterministicGenerator() *mrand.Rand {
	return mrand.New(mrand.NewSource(time.Now().UnixNano())) // #nosec G404 -- excluded
}
