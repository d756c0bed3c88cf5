package vm

import (
	"math/rand"
	"time"
)

// rng wraps the game's random source. The random opcode's contract:
// positive N yields a uniform value in [1, N]; negative N reseeds
// deterministically with -N; zero N reseeds from the clock.
type rng struct {
	r    *rand.Rand
	seed int64 // last applied seed, carried by snapshots
}

func newRNG(seed int64) rng {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rng{r: rand.New(rand.NewSource(seed)), seed: seed}
}

func (g *rng) roll(n int16) uint16 {
	return uint16(g.r.Int31n(int32(n))) + 1
}

func (g *rng) reseed(seed int64) {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	g.seed = seed
	g.r = rand.New(rand.NewSource(seed))
}
