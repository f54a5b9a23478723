package main

import (
	"strconv"
	"time"

	"github.com/dgryski/go-wyhash"
	"pgregory.net/rand"
)

// Rng is a per-user random source. It is not safe for concurrent use; every
// simulated user owns one.
type Rng struct {
	rng *rand.Rand
}

// NewRng seeds a generator from a string so that runs with the same seed
// draw the same sequence.
func NewRng(s string) Rng {
	return Rng{rand.New(wyhash.Hash([]byte(s), 2467825690))}
}

// UserRng derives the rng for user n from the run seed.
func UserRng(seed string, n int) Rng {
	return NewRng(seed + "/" + strconv.Itoa(n))
}

func (r Rng) Intn(n int) int {
	return r.rng.Intn(n)
}

// IntBetween returns an int in [min, max], both ends included.
func (r Rng) IntBetween(min, max int) int {
	if max <= min {
		return min
	}
	return min + r.rng.Intn(max-min+1)
}

// Between returns a duration uniformly distributed in [min, max].
func (r Rng) Between(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(r.rng.Float64()*float64(max-min))
}
