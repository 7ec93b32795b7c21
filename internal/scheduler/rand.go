package scheduler

import (
	"math/rand"
	"time"
)

// Rand is the randomness the engine consumes. *math/rand.Rand satisfies it.
type Rand interface {
	Intn(n int) int
	Shuffle(n int, swap func(i, j int))
}

// NewRand returns a seeded source. A nil seed draws one from the clock.
func NewRand(seed *int64) Rand {
	value := time.Now().UnixNano()
	if seed != nil {
		value = *seed
	}
	return rand.New(rand.NewSource(value))
}

func shuffled[T any](rng Rand, items []T) []T {
	out := make([]T, len(items))
	copy(out, items)
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
