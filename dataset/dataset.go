package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"kws-synth/clip_pool"
	"kws-synth/segment"
	"kws-synth/spectrogram"
	"kws-synth/synth"
)

const (
	ManifestFile = "manifest.json"
	AudioDir     = "audio"
	FeaturesDir  = "x"
	LabelsDir    = "y"
)

// golden ratio increment, spreads retry seeds apart
const retryStride = 0x9E3779B97F4A7C15

type Entry struct {
	Index      int               `json:"index"`
	Background string            `json:"background"`
	Attempts   int               `json:"attempts"`
	Positives  int               `json:"positives"`
	Negatives  int               `json:"negatives"`
	LabelSteps int               `json:"label_steps_set"`
	Placements []synth.Placement `json:"placements"`
	Audio      string            `json:"audio,omitempty"`
	Features   string            `json:"x"`
	Labels     string            `json:"y"`

	labelAxis int
}

type Manifest struct {
	RunID      string  `json:"run_id"`
	Seed       uint64  `json:"seed"`
	SampleRate int     `json:"sample_rate"`
	Frames     int     `json:"tx"`
	Bins       int     `json:"n_freq"`
	LabelSteps int     `json:"ty"`
	Entries    []Entry `json:"examples"`
}

type datasetImpl struct {
	fileSys     afero.Fs
	synth       synth.Interface
	spectrogram spectrogram.Interface
	pools       *clip_pool.Pools
	outDir      string
	seed        uint64
	workers     int
	maxAttempts int
	writeAudio  bool
	logger      *log.Logger
}

type Config struct {
	FileSys     afero.Fs
	Synth       synth.Interface
	Spectrogram spectrogram.Interface
	Pools       *clip_pool.Pools
	OutDir      string
	Seed        uint64
	Workers     int
	MaxAttempts int
	WriteAudio  bool
	Logger      *log.Logger
}

func New(cfg *Config) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.FileSys == nil {
		return nil, fmt.Errorf("fileSys is nil")
	}

	if cfg.Synth == nil {
		return nil, fmt.Errorf("synth is nil")
	}

	if cfg.Spectrogram == nil {
		return nil, fmt.Errorf("spectrogram is nil")
	}

	if cfg.Pools == nil || len(cfg.Pools.Backgrounds) == 0 {
		return nil, fmt.Errorf("pools have no backgrounds")
	}

	// every example shares one time axis
	first := cfg.Pools.Backgrounds[0]
	for _, bg := range cfg.Pools.Backgrounds[1:] {
		if len(bg.Samples) != len(first.Samples) || bg.SampleRate != first.SampleRate {
			return nil, fmt.Errorf("%w: %s differs from %s", clip_pool.ErrDurationMismatch, bg.Name, first.Name)
		}
	}

	if cfg.Workers <= 0 || cfg.MaxAttempts <= 0 {
		return nil, fmt.Errorf("workers and maxAttempts must be positive")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.New("dataset")
	}

	return &datasetImpl{
		fileSys:     cfg.FileSys,
		synth:       cfg.Synth,
		spectrogram: cfg.Spectrogram,
		pools:       cfg.Pools,
		outDir:      cfg.OutDir,
		seed:        cfg.Seed,
		workers:     cfg.Workers,
		maxAttempts: cfg.MaxAttempts,
		writeAudio:  cfg.WriteAudio,
		logger:      logger,
	}, nil
}

// RandFor returns the random source of one attempt at one example. It only
// depends on its arguments, so examples can be produced in any order.
func RandFor(seed uint64, index, attempt int) *rand.Rand {
	return rand.New(rand.NewPCG(seed+uint64(attempt)*retryStride, uint64(index)))
}

func (d *datasetImpl) Generate(ctx context.Context, n int) (*Manifest, error) {
	if n <= 0 {
		return nil, fmt.Errorf("example count must be positive, got %d", n)
	}

	for _, dir := range []string{d.outDir, filepath.Join(d.outDir, FeaturesDir), filepath.Join(d.outDir, LabelsDir)} {
		if err := d.fileSys.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	if d.writeAudio {
		if err := d.fileSys.MkdirAll(filepath.Join(d.outDir, AudioDir), 0o755); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	entries := make([]Entry, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)

	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			entry, err := d.generateOne(i)
			if err != nil {
				return fmt.Errorf("example %d: %w", i, err)
			}

			entries[i] = entry

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	background := d.pools.Backgrounds[0]

	manifest := &Manifest{
		RunID:      uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("kws-synth/%d/%d", d.seed, n))).String(),
		Seed:       d.seed,
		SampleRate: background.SampleRate,
		Frames:     d.spectrogram.Frames(len(background.Samples)),
		Bins:       d.spectrogram.Bins(),
		LabelSteps: entries[0].labelAxis,
		Entries:    entries,
	}

	if err := d.writeManifest(manifest); err != nil {
		return nil, err
	}

	d.logger.Infof("generated %d examples in %s (run %s)", n, time.Since(start).Round(time.Millisecond), manifest.RunID)

	return manifest, nil
}

func (d *datasetImpl) generateOne(index int) (Entry, error) {
	background := d.pools.Backgrounds[index%len(d.pools.Backgrounds)]

	var (
		example *synth.Example
		err     error
		attempt int
	)

	for attempt = 0; attempt < d.maxAttempts; attempt++ {
		example, err = d.synth.Synthesize(RandFor(d.seed, index, attempt), background, d.pools.Positives, d.pools.Negatives)
		if err == nil {
			break
		}

		if !errors.Is(err, segment.ErrPlacementExhausted) {
			return Entry{}, err
		}

		d.logger.Warnf("example %d attempt %d: %v", index, attempt+1, err)
	}

	if err != nil {
		return Entry{}, fmt.Errorf("giving up after %d attempts: %w", d.maxAttempts, err)
	}

	features, err := d.spectrogram.Extract(example.Audio)
	if err != nil {
		return Entry{}, err
	}

	entry := Entry{
		Index:      index,
		Background: background.Name,
		Attempts:   attempt + 1,
		Positives:  example.Positives,
		Negatives:  example.Negatives,
		LabelSteps: example.Labels.Sum(),
		Placements: example.Placements,
		Features:   filepath.Join(FeaturesDir, fmt.Sprintf("%04d.npy", index)),
		Labels:     filepath.Join(LabelsDir, fmt.Sprintf("%04d.npy", index)),
		labelAxis:  len(example.Labels),
	}

	if d.writeAudio {
		entry.Audio = filepath.Join(AudioDir, fmt.Sprintf("train_%04d.wav", index))

		if err := writeWav(d.fileSys, filepath.Join(d.outDir, entry.Audio), example.Audio); err != nil {
			return Entry{}, err
		}
	}

	if err := writeFeatures(d.fileSys, filepath.Join(d.outDir, entry.Features), features); err != nil {
		return Entry{}, err
	}

	if err := writeLabels(d.fileSys, filepath.Join(d.outDir, entry.Labels), example.Labels); err != nil {
		return Entry{}, err
	}

	d.logger.Infoj(log.JSON{
		"example":    index,
		"background": background.Name,
		"attempts":   entry.Attempts,
		"positives":  entry.Positives,
		"negatives":  entry.Negatives,
		"labels_set": entry.LabelSteps,
	})

	return entry, nil
}

func (d *datasetImpl) writeManifest(m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}

	return afero.WriteFile(d.fileSys, filepath.Join(d.outDir, ManifestFile), data, 0o644)
}
