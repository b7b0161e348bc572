package synth

import (
	"math/rand/v2"

	"kws-synth/clip"
)

type Interface interface {
	Synthesize(rng *rand.Rand, background clip.Clip, positives, negatives []clip.Clip) (*Example, error)
}
