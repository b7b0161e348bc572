package synth

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/labstack/gommon/log"

	"kws-synth/clip"
	"kws-synth/compositor"
	"kws-synth/label"
	"kws-synth/segment"
)

// ErrEmptyPool is returned when clips are requested from an empty pool.
var ErrEmptyPool = errors.New("clip pool is empty")

const (
	DefaultMaxPositives     = 5
	DefaultMaxNegatives     = 3
	DefaultBackgroundGainDB = -20.0
	DefaultTargetDBFS       = -20.0
)

type Placement struct {
	Clip     string           `json:"clip"`
	Class    string           `json:"class"`
	Interval segment.Interval `json:"interval"`
}

// Example is one synthesized training pair.
type Example struct {
	Audio      clip.Clip
	Labels     label.Vector
	Placements []Placement
	Positives  int
	Negatives  int
}

type synthImpl struct {
	compositor       compositor.Interface
	labelSteps       int
	windowSteps      int
	maxPositives     int
	maxNegatives     int
	backgroundGainDB float64
	targetDBFS       float64
	logger           *log.Logger
}

type Config struct {
	Compositor       compositor.Interface
	LabelSteps       int
	WindowSteps      int
	MaxPositives     int
	MaxNegatives     int
	BackgroundGainDB float64
	TargetDBFS       float64
	Logger           *log.Logger
}

func New(cfg *Config) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Compositor == nil {
		return nil, fmt.Errorf("compositor is nil")
	}

	if cfg.LabelSteps <= 0 || cfg.WindowSteps <= 0 {
		return nil, fmt.Errorf("labelSteps and windowSteps must be positive")
	}

	if cfg.MaxPositives <= 0 || cfg.MaxNegatives <= 0 {
		return nil, fmt.Errorf("maxPositives and maxNegatives must be positive")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.New("synth")
	}

	return &synthImpl{
		compositor:       cfg.Compositor,
		labelSteps:       cfg.LabelSteps,
		windowSteps:      cfg.WindowSteps,
		maxPositives:     cfg.MaxPositives,
		maxNegatives:     cfg.MaxNegatives,
		backgroundGainDB: cfg.BackgroundGainDB,
		targetDBFS:       cfg.TargetDBFS,
		logger:           logger,
	}, nil
}

// Synthesize builds one training example. Any clip that cannot be placed
// aborts the whole example; callers retry with a fresh random source.
func (s *synthImpl) Synthesize(rng *rand.Rand, background clip.Clip, positives, negatives []clip.Clip) (*Example, error) {
	if rng == nil {
		return nil, fmt.Errorf("rng is nil")
	}

	trackMS := background.DurationMS()

	painter, err := label.NewPainter(s.labelSteps, s.windowSteps, trackMS)
	if err != nil {
		return nil, fmt.Errorf("background %s: %w", background.Name, err)
	}

	audio := background.Gain(s.backgroundGainDB)
	labels := label.New(s.labelSteps)

	var history segment.History

	example := &Example{Labels: labels}

	activates, err := sample(rng, positives, s.maxPositives)
	if err != nil {
		return nil, fmt.Errorf("positives: %w", err)
	}

	for _, activate := range activates {
		var placed segment.Interval

		audio, placed, err = s.compositor.Insert(rng, audio, activate, &history)
		if err != nil {
			return nil, err
		}

		painter.Paint(labels, placed.End)

		example.Placements = append(example.Placements, Placement{Clip: activate.Name, Class: clip.Positive.String(), Interval: placed})
	}

	others, err := sample(rng, negatives, s.maxNegatives)
	if err != nil {
		return nil, fmt.Errorf("negatives: %w", err)
	}

	for _, other := range others {
		var placed segment.Interval

		audio, placed, err = s.compositor.Insert(rng, audio, other, &history)
		if err != nil {
			return nil, err
		}

		example.Placements = append(example.Placements, Placement{Clip: other.Name, Class: clip.Negative.String(), Interval: placed})
	}

	audio = audio.MatchTarget(s.targetDBFS)

	if len(audio.Samples) != len(background.Samples) {
		return nil, fmt.Errorf("background %s changed length from %d to %d samples", background.Name, len(background.Samples), len(audio.Samples))
	}

	example.Audio = audio
	example.Positives = len(activates)
	example.Negatives = len(others)

	s.logger.Debugf("synthesized %s with %d positive and %d negative clips, %d label steps set",
		background.Name, example.Positives, example.Negatives, labels.Sum())

	return example, nil
}

// sample draws a count in [0, max) and then that many clips with replacement.
func sample(rng *rand.Rand, pool []clip.Clip, limit int) ([]clip.Clip, error) {
	n := rng.IntN(limit)
	if n == 0 {
		return nil, nil
	}

	if len(pool) == 0 {
		return nil, fmt.Errorf("%w: %d clips requested", ErrEmptyPool, n)
	}

	picked := make([]clip.Clip, n)
	for i := range picked {
		picked[i] = pool[rng.IntN(len(pool))]
	}

	return picked, nil
}
