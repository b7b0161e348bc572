package compositor

import (
	"errors"
	"math/rand/v2"
	"testing"

	"kws-synth/clip"
	"kws-synth/segment"
)

func tone(name string, class clip.Class, value float64, ms int) clip.Clip {
	samples := make([]float64, ms)
	for i := range samples {
		samples[i] = value
	}

	return clip.Clip{Name: name, Class: class, SampleRate: 1000, Samples: samples}
}

func newCompositor(t *testing.T, maxAttempts int) Interface {
	t.Helper()

	c, err := New(&Config{MarginMS: DefaultMarginMS, MaxAttempts: maxAttempts})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	return c
}

func TestNew(t *testing.T) {
	t.Run("rejects invalid config", func(t *testing.T) {
		for _, cfg := range []*Config{nil, {MarginMS: -1, MaxAttempts: 1}, {MarginMS: 25}} {
			if _, err := New(cfg); err == nil {
				t.Errorf("expected error for %+v", cfg)
			}
		}
	})
}

func TestCompositor_Insert(t *testing.T) {
	background := tone("bg", clip.Background, 0, 10000)

	t.Run("overlays the clip next to existing placements", func(t *testing.T) {
		c := newCompositor(t, DefaultMaxAttempts)
		rng := rand.New(rand.NewPCG(7, 0))

		history := segment.History{{Start: 1328, End: 2795}}
		activate := tone("1.wav", clip.Positive, 0.5, 800)

		out, placed, err := c.Insert(rng, background, activate, &history)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if placed.Overlaps(segment.Interval{Start: 1328, End: 2795}) {
			t.Errorf("placement %v overlaps existing segment", placed)
		}

		if placed.Duration() != 800 {
			t.Errorf("expected duration 800, got %d", placed.Duration())
		}

		if len(history) != 2 || history[1] != placed {
			t.Errorf("expected placement appended to history, got %v", history)
		}

		if len(out.Samples) != len(background.Samples) {
			t.Errorf("expected length %d, got %d", len(background.Samples), len(out.Samples))
		}

		if out.Samples[placed.Start] != 0.5 || out.Samples[placed.End] != 0.5 {
			t.Errorf("expected clip samples inside the placement")
		}

		if placed.Start > 0 && out.Samples[placed.Start-1] != 0 {
			t.Errorf("expected silence before the placement")
		}

		if background.Samples[placed.Start] != 0 {
			t.Errorf("background was modified in place")
		}
	})

	t.Run("every placement in a run is disjoint", func(t *testing.T) {
		c := newCompositor(t, DefaultMaxAttempts)
		rng := rand.New(rand.NewPCG(11, 3))

		var history segment.History

		current := background
		for i := 0; i < 6; i++ {
			var err error

			current, _, err = c.Insert(rng, current, tone("w", clip.Negative, 0.1, 400), &history)
			if err != nil {
				t.Fatalf("insert %d: unexpected error: %v", i, err)
			}
		}

		for i := range history {
			for j := i + 1; j < len(history); j++ {
				if history[i].Overlaps(history[j]) {
					t.Errorf("%v overlaps %v", history[i], history[j])
				}
			}
		}
	})

	t.Run("full track exhausts the retry budget", func(t *testing.T) {
		c := newCompositor(t, 50)
		rng := rand.New(rand.NewPCG(1, 1))

		history := segment.History{{Start: 0, End: 9999}}

		_, _, err := c.Insert(rng, background, tone("1.wav", clip.Positive, 0.5, 100), &history)
		if !errors.Is(err, segment.ErrPlacementExhausted) {
			t.Fatalf("expected ErrPlacementExhausted, got %v", err)
		}

		if len(history) != 1 {
			t.Errorf("history should not grow on failure, got %v", history)
		}
	})

	t.Run("clip longer than the track is invalid", func(t *testing.T) {
		c := newCompositor(t, DefaultMaxAttempts)
		rng := rand.New(rand.NewPCG(1, 1))

		var history segment.History

		_, _, err := c.Insert(rng, background, tone("long", clip.Negative, 0.5, 9990), &history)
		if !errors.Is(err, segment.ErrInvalidDuration) {
			t.Fatalf("expected ErrInvalidDuration, got %v", err)
		}
	})

	t.Run("nil history is rejected", func(t *testing.T) {
		c := newCompositor(t, DefaultMaxAttempts)

		_, _, err := c.Insert(rand.New(rand.NewPCG(1, 1)), background, tone("a", clip.Positive, 0.5, 10), nil)
		if err == nil {
			t.Errorf("expected error")
		}
	})
}
