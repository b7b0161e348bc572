package compositor

import (
	"fmt"
	"math/rand/v2"

	"github.com/labstack/gommon/log"

	"kws-synth/clip"
	"kws-synth/segment"
)

const (
	DefaultMarginMS    = 25
	DefaultMaxAttempts = 1000
)

type compositorImpl struct {
	marginMS    int
	maxAttempts int
	logger      *log.Logger
}

type Config struct {
	MarginMS    int
	MaxAttempts int
	Logger      *log.Logger
}

func New(cfg *Config) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.MarginMS < 0 {
		return nil, fmt.Errorf("marginMS is negative")
	}

	if cfg.MaxAttempts <= 0 {
		return nil, fmt.Errorf("maxAttempts must be positive")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.New("compositor")
	}

	return &compositorImpl{
		marginMS:    cfg.MarginMS,
		maxAttempts: cfg.MaxAttempts,
		logger:      logger,
	}, nil
}

func (c *compositorImpl) Insert(rng *rand.Rand, background, audioClip clip.Clip, history *segment.History) (clip.Clip, segment.Interval, error) {
	if history == nil {
		return clip.Clip{}, segment.Interval{}, fmt.Errorf("history is nil")
	}

	durationMS := audioClip.DurationMS()
	trackMS := background.DurationMS()

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		candidate, err := segment.Pick(rng, durationMS, trackMS, c.marginMS)
		if err != nil {
			return clip.Clip{}, segment.Interval{}, fmt.Errorf("clip %s: %w", audioClip.Name, err)
		}

		if history.Overlaps(candidate) {
			continue
		}

		mixed, err := background.Overlay(audioClip, candidate.Start)
		if err != nil {
			return clip.Clip{}, segment.Interval{}, fmt.Errorf("clip %s: %w", audioClip.Name, err)
		}

		history.Add(candidate)

		c.logger.Debugf("placed %s clip %s at %v after %d attempt(s)", audioClip.Class, audioClip.Name, candidate, attempt)

		return mixed, candidate, nil
	}

	return clip.Clip{}, segment.Interval{}, fmt.Errorf("clip %s (%dms) after %d attempts with %d placements: %w",
		audioClip.Name, durationMS, c.maxAttempts, len(*history), segment.ErrPlacementExhausted)
}
