package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/labstack/gommon/log"
	"github.com/spf13/afero"

	"kws-synth/clip_pool"
	"kws-synth/compositor"
	"kws-synth/config"
	"kws-synth/dataset"
	"kws-synth/spectrogram"
	"kws-synth/synth"
)

func main() {
	envFlag := flag.String("env", ".env", "optional env file")
	countFlag := flag.Int("n", 0, "number of examples (overrides KWS_EXAMPLES)")
	seedFlag := flag.Uint64("seed", 0, "random seed (overrides KWS_SEED)")
	outFlag := flag.String("out", "", "output directory (overrides KWS_OUT_DIR)")
	rawFlag := flag.String("raw", "", "raw clip directory (overrides KWS_RAW_DIR)")
	workersFlag := flag.Int("workers", 0, "parallel workers (overrides KWS_WORKERS)")

	flag.Parse()

	logger := log.New("kws-synth")

	cfg, err := config.Load(*envFlag)
	if err != nil {
		logger.Fatalf("error loading config: %v", err)
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "n":
			cfg.Examples = *countFlag
		case "seed":
			cfg.Seed = *seedFlag
		case "out":
			cfg.OutDir = *outFlag
		case "raw":
			cfg.RawDir = *rawFlag
		case "workers":
			cfg.Workers = *workersFlag
		}
	})

	if err := cfg.Validate(); err != nil {
		logger.Fatalf("error: %v", err)
	}

	logger.SetLevel(logLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatalf("error: %v", err)
	}
}

func run(ctx context.Context, cfg config.Config, logger *log.Logger) error {
	fileSys := afero.NewOsFs()

	loader, err := clip_pool.New(&clip_pool.Config{FileSys: fileSys, Logger: logger, BackgroundMS: cfg.BackgroundMS})
	if err != nil {
		return err
	}

	pools, err := loader.Load(cfg.RawDir)
	if err != nil {
		return err
	}

	logger.Infof("loaded %d positives, %d negatives, %d backgrounds from %s",
		len(pools.Positives), len(pools.Negatives), len(pools.Backgrounds), cfg.RawDir)

	comp, err := compositor.New(&compositor.Config{
		MarginMS:    cfg.MarginMS,
		MaxAttempts: cfg.MaxPlacementAttempts,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	synthesizer, err := synth.New(&synth.Config{
		Compositor:       comp,
		LabelSteps:       cfg.LabelSteps,
		WindowSteps:      cfg.WindowSteps,
		MaxPositives:     cfg.MaxPositives,
		MaxNegatives:     cfg.MaxNegatives,
		BackgroundGainDB: cfg.BackgroundGainDB,
		TargetDBFS:       cfg.TargetDBFS,
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	spec, err := spectrogram.New(&spectrogram.Config{
		NFFT:      spectrogram.DefaultNFFT,
		Overlap:   spectrogram.DefaultOverlap,
		ScaleRate: spectrogram.DefaultScaleRate,
	})
	if err != nil {
		return err
	}

	generator, err := dataset.New(&dataset.Config{
		FileSys:     fileSys,
		Synth:       synthesizer,
		Spectrogram: spec,
		Pools:       pools,
		OutDir:      cfg.OutDir,
		Seed:        cfg.Seed,
		Workers:     cfg.Workers,
		MaxAttempts: cfg.MaxExampleAttempts,
		WriteAudio:  cfg.WriteAudio,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	manifest, err := generator.Generate(ctx, cfg.Examples)
	if err != nil {
		return err
	}

	logger.Infof("wrote %d examples to %s (tx=%d, n_freq=%d, ty=%d)",
		len(manifest.Entries), cfg.OutDir, manifest.Frames, manifest.Bins, manifest.LabelSteps)

	return nil
}

func logLevel(name string) log.Lvl {
	switch strings.ToLower(name) {
	case "debug":
		return log.DEBUG
	case "warn":
		return log.WARN
	case "error":
		return log.ERROR
	case "off":
		return log.OFF
	default:
		return log.INFO
	}
}
