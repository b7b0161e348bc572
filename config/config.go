package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the dataset generation settings. Values come from an optional
// .env file, then KWS_* environment variables, then defaults.
type Config struct {
	RawDir   string
	OutDir   string
	LogLevel string

	Examples   int
	Seed       uint64
	Workers    int
	WriteAudio bool

	// BackgroundMS trims or pads backgrounds to one length; 0 requires equal lengths
	BackgroundMS int

	// label axis
	LabelSteps  int
	WindowSteps int

	// placement
	MarginMS             int
	MaxPositives         int // positives drawn from [0, MaxPositives)
	MaxNegatives         int // negatives drawn from [0, MaxNegatives)
	MaxPlacementAttempts int
	MaxExampleAttempts   int

	// loudness
	BackgroundGainDB float64
	TargetDBFS       float64
}

// Load reads envFile if it exists and builds the config from the environment.
// A variable that is set but does not parse is an error.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	var env envReader

	cfg := Config{
		RawDir:   env.strVar("KWS_RAW_DIR", "raw_data"),
		OutDir:   env.strVar("KWS_OUT_DIR", "XY_train"),
		LogLevel: env.strVar("KWS_LOG_LEVEL", "info"),

		Examples:   env.intVar("KWS_EXAMPLES", 32),
		Seed:       env.uint64Var("KWS_SEED", 1),
		Workers:    env.intVar("KWS_WORKERS", 4),
		WriteAudio: env.boolVar("KWS_WRITE_AUDIO", true),

		BackgroundMS: env.intVar("KWS_BACKGROUND_MS", 0),

		LabelSteps:  env.intVar("KWS_LABEL_STEPS", 1375),
		WindowSteps: env.intVar("KWS_WINDOW_STEPS", 50),

		MarginMS:             env.intVar("KWS_MARGIN_MS", 25),
		MaxPositives:         env.intVar("KWS_MAX_POSITIVES", 5),
		MaxNegatives:         env.intVar("KWS_MAX_NEGATIVES", 3),
		MaxPlacementAttempts: env.intVar("KWS_MAX_PLACEMENT_ATTEMPTS", 1000),
		MaxExampleAttempts:   env.intVar("KWS_MAX_EXAMPLE_ATTEMPTS", 5),

		BackgroundGainDB: env.floatVar("KWS_BACKGROUND_GAIN_DB", -20),
		TargetDBFS:       env.floatVar("KWS_TARGET_DBFS", -20),
	}

	if env.err != nil {
		return Config{}, env.err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if c.RawDir == "" || c.OutDir == "" {
		return fmt.Errorf("raw and output directories are required")
	}

	positive := []struct {
		name  string
		value int
	}{
		{"examples", c.Examples},
		{"workers", c.Workers},
		{"label steps", c.LabelSteps},
		{"window steps", c.WindowSteps},
		{"max positives", c.MaxPositives},
		{"max negatives", c.MaxNegatives},
		{"max placement attempts", c.MaxPlacementAttempts},
		{"max example attempts", c.MaxExampleAttempts},
	}

	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", p.name, p.value)
		}
	}

	if c.MarginMS < 0 {
		return fmt.Errorf("margin must not be negative, got %d", c.MarginMS)
	}

	if c.BackgroundMS < 0 {
		return fmt.Errorf("background length must not be negative, got %d", c.BackgroundMS)
	}

	return nil
}

// envReader keeps the first parse failure so Load can report it.
type envReader struct {
	err error
}

func (e *envReader) fail(key, value string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("invalid %s=%q: %w", key, value, err)
	}
}

func (e *envReader) strVar(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (e *envReader) intVar(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, err)
		return fallback
	}
	return n
}

func (e *envReader) uint64Var(key string, fallback uint64) uint64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		e.fail(key, v, err)
		return fallback
	}
	return n
}

func (e *envReader) floatVar(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(key, v, err)
		return fallback
	}
	return f
}

func (e *envReader) boolVar(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, v, err)
		return fallback
	}
	return b
}
