package compositor

import (
	"math/rand/v2"

	"kws-synth/clip"
	"kws-synth/segment"
)

type Interface interface {
	// Insert overlays audioClip on a copy of background at a random offset
	// that does not overlap history, and records the placement in history.
	Insert(rng *rand.Rand, background, audioClip clip.Clip, history *segment.History) (clip.Clip, segment.Interval, error)
}
