package segment

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

var (
	// ErrInvalidDuration means no start offset can fit the segment in the track.
	ErrInvalidDuration = errors.New("invalid segment duration")
	// ErrPlacementExhausted means every attempt overlapped an earlier placement.
	ErrPlacementExhausted = errors.New("placement attempts exhausted")
)

// Interval is a closed range of milliseconds on the background track.
type Interval struct {
	Start int `json:"start_ms"`
	End   int `json:"end_ms"`
}

func (i Interval) Duration() int {
	return i.End - i.Start + 1
}

func (i Interval) Overlaps(other Interval) bool {
	return i.Start <= other.End && i.End >= other.Start
}

func (i Interval) String() string {
	return fmt.Sprintf("(%d, %d)", i.Start, i.End)
}

// Overlaps reports whether candidate intersects any interval in history.
func Overlaps(candidate Interval, history []Interval) bool {
	for _, previous := range history {
		if candidate.Overlaps(previous) {
			return true
		}
	}

	return false
}

// Pick draws a random interval of durationMS milliseconds. The start is
// uniform in [0, trackMS-durationMS-marginMS) so that the end of the track
// always keeps marginMS free.
func Pick(rng *rand.Rand, durationMS, trackMS, marginMS int) (Interval, error) {
	if durationMS <= 0 {
		return Interval{}, fmt.Errorf("%w: %dms", ErrInvalidDuration, durationMS)
	}

	upper := trackMS - durationMS - marginMS
	if upper <= 0 {
		return Interval{}, fmt.Errorf("%w: %dms segment with %dms margin does not fit in %dms track",
			ErrInvalidDuration, durationMS, marginMS, trackMS)
	}

	start := rng.IntN(upper)

	return Interval{Start: start, End: start + durationMS - 1}, nil
}

// History is the ordered list of placements made for one example.
type History []Interval

func (h History) Overlaps(candidate Interval) bool {
	return Overlaps(candidate, h)
}

func (h *History) Add(i Interval) {
	*h = append(*h, i)
}
