package label

import "fmt"

const (
	DefaultSteps       = 1375
	DefaultWindowSteps = 50
	DefaultTrackMS     = 10000
)

// Vector holds one binary activation value per output step of the classifier.
type Vector []float32

func New(steps int) Vector {
	return make(Vector, steps)
}

// Painter maps background milliseconds onto label steps and marks the
// window that follows the end of a positive clip.
type Painter struct {
	Steps       int
	WindowSteps int
	TrackMS     int
}

func NewPainter(steps, windowSteps, trackMS int) (*Painter, error) {
	if steps <= 0 {
		return nil, fmt.Errorf("steps must be positive")
	}

	if windowSteps <= 0 {
		return nil, fmt.Errorf("windowSteps must be positive")
	}

	if trackMS <= 0 {
		return nil, fmt.Errorf("trackMS must be positive")
	}

	return &Painter{
		Steps:       steps,
		WindowSteps: windowSteps,
		TrackMS:     trackMS,
	}, nil
}

// StepFor returns floor(ms * Steps / TrackMS).
func (p *Painter) StepFor(ms int) int {
	return int(int64(ms) * int64(p.Steps) / int64(p.TrackMS))
}

// Paint sets the WindowSteps entries after segmentEndMS to 1, clipped to the
// length of v. Painting is a union: nothing is ever cleared.
func (p *Painter) Paint(v Vector, segmentEndMS int) Vector {
	end := p.StepFor(segmentEndMS)

	for i := end + 1; i <= end+p.WindowSteps; i++ {
		if i < 0 {
			continue
		}

		if i >= len(v) {
			break
		}

		v[i] = 1
	}

	return v
}

func (v Vector) Sum() int {
	var n int
	for _, x := range v {
		if x != 0 {
			n++
		}
	}

	return n
}
