package dataset

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-audio/wav"
	"github.com/sbinet/npyio"
	"github.com/spf13/afero"

	"kws-synth/clip"
	"kws-synth/clip_pool"
	"kws-synth/compositor"
	"kws-synth/label"
	"kws-synth/segment"
	"kws-synth/spectrogram"
	"kws-synth/synth"
)

const rate = 1000

func sine(name string, class clip.Class, amplitude, freq float64, ms int) clip.Clip {
	samples := make([]float64, ms*rate/1000)
	for i := range samples {
		samples[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/rate)
	}

	return clip.Clip{Name: name, Class: class, SampleRate: rate, Samples: samples}
}

func testPools() *clip_pool.Pools {
	return &clip_pool.Pools{
		Backgrounds: []clip.Clip{
			sine("bg-1.wav", clip.Background, 0.3, 40, 10000),
			sine("bg-2.wav", clip.Background, 0.2, 60, 10000),
		},
		Positives: []clip.Clip{
			sine("activate-1.wav", clip.Positive, 0.5, 120, 700),
			sine("activate-2.wav", clip.Positive, 0.5, 90, 800),
		},
		Negatives: []clip.Clip{
			sine("other-1.wav", clip.Negative, 0.5, 200, 500),
		},
	}
}

func newSynth(t *testing.T) synth.Interface {
	t.Helper()

	c, err := compositor.New(&compositor.Config{MarginMS: compositor.DefaultMarginMS, MaxAttempts: compositor.DefaultMaxAttempts})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s, err := synth.New(&synth.Config{
		Compositor:       c,
		LabelSteps:       label.DefaultSteps,
		WindowSteps:      label.DefaultWindowSteps,
		MaxPositives:     synth.DefaultMaxPositives,
		MaxNegatives:     synth.DefaultMaxNegatives,
		BackgroundGainDB: synth.DefaultBackgroundGainDB,
		TargetDBFS:       synth.DefaultTargetDBFS,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	return s
}

func newSpectrogram(t *testing.T) spectrogram.Interface {
	t.Helper()

	s, err := spectrogram.New(&spectrogram.Config{
		NFFT:      spectrogram.DefaultNFFT,
		Overlap:   spectrogram.DefaultOverlap,
		ScaleRate: spectrogram.DefaultScaleRate,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	return s
}

func newDataset(t *testing.T, fs afero.Fs, s synth.Interface, workers, maxAttempts int) Interface {
	t.Helper()

	d, err := New(&Config{
		FileSys:     fs,
		Synth:       s,
		Spectrogram: newSpectrogram(t),
		Pools:       testPools(),
		OutDir:      "out",
		Seed:        99,
		Workers:     workers,
		MaxAttempts: maxAttempts,
		WriteAudio:  true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	return d
}

// flakySynth fails the first failures calls with err and then delegates.
type flakySynth struct {
	next     synth.Interface
	err      error
	failures int

	mu    sync.Mutex
	calls int
}

func (f *flakySynth) Synthesize(rng *rand.Rand, background clip.Clip, positives, negatives []clip.Clip) (*synth.Example, error) {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.failures
	f.mu.Unlock()

	if fail {
		return nil, fmt.Errorf("flaky: %w", f.err)
	}

	return f.next.Synthesize(rng, background, positives, negatives)
}

func readNpy(t *testing.T, fs afero.Fs, path string) []float64 {
	t.Helper()

	f, err := fs.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}

	defer f.Close()

	var data []float64
	if err := npyio.Read(f, &data); err != nil {
		t.Fatalf("read %s: %v", path, err)
	}

	return data
}

func TestNew(t *testing.T) {
	t.Run("rejects incomplete config and backgrounds of different lengths", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		s := newSynth(t)
		spec := newSpectrogram(t)

		configs := []*Config{
			nil,
			{Synth: s, Spectrogram: spec, Pools: testPools(), Workers: 1, MaxAttempts: 1},
			{FileSys: fs, Spectrogram: spec, Pools: testPools(), Workers: 1, MaxAttempts: 1},
			{FileSys: fs, Synth: s, Pools: testPools(), Workers: 1, MaxAttempts: 1},
			{FileSys: fs, Synth: s, Spectrogram: spec, Pools: &clip_pool.Pools{}, Workers: 1, MaxAttempts: 1},
			{FileSys: fs, Synth: s, Spectrogram: spec, Pools: testPools(), Workers: 0, MaxAttempts: 1},
		}

		mixed := testPools()
		mixed.Backgrounds = append(mixed.Backgrounds, sine("short.wav", clip.Background, 0.2, 50, 6000))
		configs = append(configs, &Config{FileSys: fs, Synth: s, Spectrogram: spec, Pools: mixed, Workers: 1, MaxAttempts: 1})

		for i, cfg := range configs {
			if _, err := New(cfg); err == nil {
				t.Errorf("config %d: expected error", i)
			}
		}
	})
}

func TestDataset_Generate(t *testing.T) {
	t.Run("writes audio, features, labels and a manifest", func(t *testing.T) {
		fs := afero.NewMemMapFs()

		manifest, err := newDataset(t, fs, newSynth(t), 3, 3).Generate(context.Background(), 6)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(manifest.Entries) != 6 {
			t.Fatalf("expected 6 entries, got %d", len(manifest.Entries))
		}

		if manifest.Frames != 123 || manifest.Bins != 101 || manifest.LabelSteps != label.DefaultSteps {
			t.Errorf("unexpected shapes: tx=%d nfreq=%d ty=%d", manifest.Frames, manifest.Bins, manifest.LabelSteps)
		}

		for i, entry := range manifest.Entries {
			if entry.Index != i {
				t.Errorf("entry %d has index %d", i, entry.Index)
			}

			if expected := testPools().Backgrounds[i%2].Name; entry.Background != expected {
				t.Errorf("entry %d: expected background %s, got %s", i, expected, entry.Background)
			}

			x := readNpy(t, fs, filepath.Join("out", entry.Features))
			if len(x) != manifest.Frames*manifest.Bins {
				t.Errorf("entry %d: expected %d feature values, got %d", i, manifest.Frames*manifest.Bins, len(x))
			}

			y := readNpy(t, fs, filepath.Join("out", entry.Labels))
			if len(y) != label.DefaultSteps {
				t.Fatalf("entry %d: expected %d labels, got %d", i, label.DefaultSteps, len(y))
			}

			ones := 0
			for _, v := range y {
				if v == 1 {
					ones++
				} else if v != 0 {
					t.Fatalf("entry %d: non-binary label %f", i, v)
				}
			}

			if ones != entry.LabelSteps {
				t.Errorf("entry %d: expected %d labels set, got %d", i, entry.LabelSteps, ones)
			}

			if ones > entry.Positives*label.DefaultWindowSteps {
				t.Errorf("entry %d: %d labels set for %d positives", i, ones, entry.Positives)
			}
		}

		raw, err := afero.ReadFile(fs, filepath.Join("out", ManifestFile))
		if err != nil {
			t.Fatalf("manifest not written: %v", err)
		}

		var decoded Manifest
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("manifest is not json: %v", err)
		}

		if decoded.RunID != manifest.RunID || decoded.RunID == "" {
			t.Errorf("unexpected run id %q", decoded.RunID)
		}
	})

	t.Run("exported audio keeps the background length", func(t *testing.T) {
		fs := afero.NewMemMapFs()

		manifest, err := newDataset(t, fs, newSynth(t), 2, 3).Generate(context.Background(), 2)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		f, err := fs.Open(filepath.Join("out", manifest.Entries[0].Audio))
		if err != nil {
			t.Fatalf("open: %v", err)
		}

		defer f.Close()

		decoder := wav.NewDecoder(f)
		if !decoder.IsValidFile() {
			t.Fatalf("exported audio is not a valid wav file")
		}

		buf, err := decoder.FullPCMBuffer()
		if err != nil {
			t.Fatalf("decode: %v", err)
		}

		if buf.Format.SampleRate != rate || buf.Format.NumChannels != 1 {
			t.Errorf("unexpected format: %+v", buf.Format)
		}

		if len(buf.Data) != 10000 {
			t.Errorf("expected 10000 samples, got %d", len(buf.Data))
		}
	})

	t.Run("output does not depend on the number of workers", func(t *testing.T) {
		serial := afero.NewMemMapFs()
		parallel := afero.NewMemMapFs()

		a, err := newDataset(t, serial, newSynth(t), 1, 3).Generate(context.Background(), 5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if _, err := newDataset(t, parallel, newSynth(t), 4, 3).Generate(context.Background(), 5); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		paths := []string{ManifestFile}
		for _, entry := range a.Entries {
			paths = append(paths, entry.Audio, entry.Features, entry.Labels)
		}

		for _, path := range paths {
			left, err := afero.ReadFile(serial, filepath.Join("out", path))
			if err != nil {
				t.Fatalf("read %s: %v", path, err)
			}

			right, err := afero.ReadFile(parallel, filepath.Join("out", path))
			if err != nil {
				t.Fatalf("read %s: %v", path, err)
			}

			if !bytes.Equal(left, right) {
				t.Errorf("%s differs between serial and parallel runs", path)
			}
		}
	})

	t.Run("exhausted placements are retried with a fresh source", func(t *testing.T) {
		flaky := &flakySynth{next: newSynth(t), err: segment.ErrPlacementExhausted, failures: 2}

		manifest, err := newDataset(t, afero.NewMemMapFs(), flaky, 1, 3).Generate(context.Background(), 1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if manifest.Entries[0].Attempts != 3 {
			t.Errorf("expected 3 attempts, got %d", manifest.Entries[0].Attempts)
		}
	})

	t.Run("gives up once the attempt budget is spent", func(t *testing.T) {
		flaky := &flakySynth{next: newSynth(t), err: segment.ErrPlacementExhausted, failures: 10}

		_, err := newDataset(t, afero.NewMemMapFs(), flaky, 1, 3).Generate(context.Background(), 1)
		if !errors.Is(err, segment.ErrPlacementExhausted) {
			t.Fatalf("expected ErrPlacementExhausted, got %v", err)
		}

		if flaky.calls != 3 {
			t.Errorf("expected 3 calls, got %d", flaky.calls)
		}
	})

	t.Run("other errors are not retried", func(t *testing.T) {
		flaky := &flakySynth{next: newSynth(t), err: synth.ErrEmptyPool, failures: 1}

		_, err := newDataset(t, afero.NewMemMapFs(), flaky, 1, 3).Generate(context.Background(), 1)
		if !errors.Is(err, synth.ErrEmptyPool) {
			t.Fatalf("expected ErrEmptyPool, got %v", err)
		}

		if flaky.calls != 1 {
			t.Errorf("expected 1 call, got %d", flaky.calls)
		}
	})

	t.Run("cancelled context stops generation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := newDataset(t, afero.NewMemMapFs(), newSynth(t), 2, 3).Generate(ctx, 4)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("count must be positive", func(t *testing.T) {
		if _, err := newDataset(t, afero.NewMemMapFs(), newSynth(t), 1, 1).Generate(context.Background(), 0); err == nil {
			t.Errorf("expected error")
		}
	})
}

func TestRandFor(t *testing.T) {
	t.Run("same arguments give the same stream, others differ", func(t *testing.T) {
		a := RandFor(7, 3, 0).Uint64()
		b := RandFor(7, 3, 0).Uint64()

		if a != b {
			t.Errorf("expected identical streams")
		}

		if a == RandFor(7, 4, 0).Uint64() {
			t.Errorf("expected different stream for another index")
		}

		if a == RandFor(7, 3, 1).Uint64() {
			t.Errorf("expected different stream for another attempt")
		}
	})
}
