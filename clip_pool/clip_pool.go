package clip_pool

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/labstack/gommon/log"
	"github.com/spf13/afero"

	"kws-synth/clip"
)

const (
	ActivatesDir   = "activates"
	NegativesDir   = "negatives"
	BackgroundsDir = "backgrounds"
)

var (
	ErrUnsupportedFormat  = errors.New("unsupported audio format")
	ErrSampleRateMismatch = errors.New("sample rate mismatch")
	ErrDurationMismatch   = errors.New("background duration mismatch")
)

type poolImpl struct {
	fileSys      afero.Fs
	backgroundMS int
	logger       *log.Logger
}

type Config struct {
	FileSys afero.Fs
	Logger  *log.Logger

	// BackgroundMS, when positive, trims or pads every background to that
	// length. Otherwise all backgrounds must already be the same length.
	BackgroundMS int
}

func New(cfg *Config) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.FileSys == nil {
		return nil, fmt.Errorf("fileSys is nil")
	}

	if cfg.BackgroundMS < 0 {
		return nil, fmt.Errorf("backgroundMS is negative")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.New("clip_pool")
	}

	return &poolImpl{
		fileSys:      cfg.FileSys,
		backgroundMS: cfg.BackgroundMS,
		logger:       logger,
	}, nil
}

// Load reads the activates, negatives and backgrounds directories under root.
// Every clip must share the sample rate of the first background, and every
// background its length.
func (p *poolImpl) Load(root string) (*Pools, error) {
	backgrounds, err := p.LoadDir(filepath.Join(root, BackgroundsDir), clip.Background)
	if err != nil {
		return nil, err
	}

	if len(backgrounds) == 0 {
		return nil, fmt.Errorf("no background tracks in %s", filepath.Join(root, BackgroundsDir))
	}

	if p.backgroundMS > 0 {
		for i := range backgrounds {
			backgrounds[i] = backgrounds[i].Fit(p.backgroundMS)
		}
	}

	for _, bg := range backgrounds[1:] {
		if len(bg.Samples) != len(backgrounds[0].Samples) {
			return nil, fmt.Errorf("%w: %s has %d samples, %s has %d", ErrDurationMismatch,
				bg.Name, len(bg.Samples), backgrounds[0].Name, len(backgrounds[0].Samples))
		}
	}

	positives, err := p.LoadDir(filepath.Join(root, ActivatesDir), clip.Positive)
	if err != nil {
		return nil, err
	}

	negatives, err := p.LoadDir(filepath.Join(root, NegativesDir), clip.Negative)
	if err != nil {
		return nil, err
	}

	rate := backgrounds[0].SampleRate
	for _, group := range [][]clip.Clip{backgrounds, positives, negatives} {
		for _, c := range group {
			if c.SampleRate != rate {
				return nil, fmt.Errorf("%w: %s is %dHz, backgrounds are %dHz", ErrSampleRateMismatch, c.Name, c.SampleRate, rate)
			}
		}
	}

	p.logger.Infof("loaded %d positive, %d negative and %d background clips (%dms) at %dHz",
		len(positives), len(negatives), len(backgrounds), backgrounds[0].DurationMS(), rate)

	return &Pools{
		Positives:   positives,
		Negatives:   negatives,
		Backgrounds: backgrounds,
	}, nil
}

// LoadDir decodes every supported file in dir, in name order.
func (p *poolImpl) LoadDir(dir string, class clip.Class) ([]clip.Clip, error) {
	entries, err := afero.ReadDir(p.fileSys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	clips := make([]clip.Clip, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		path := filepath.Join(dir, entry.Name())

		c, err := p.LoadFile(path, class)
		if errors.Is(err, ErrUnsupportedFormat) {
			p.logger.Debugf("skipping %s: %v", path, err)
			continue
		} else if err != nil {
			return nil, err
		}

		clips = append(clips, c)
	}

	return clips, nil
}

func (p *poolImpl) LoadFile(path string, class clip.Class) (clip.Clip, error) {
	var decode func(afero.File) (*audio.IntBuffer, error)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		decode = decodeWav
	case ".mp3":
		decode = decodeMp3
	default:
		return clip.Clip{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	f, err := p.fileSys.Open(path)
	if err != nil {
		return clip.Clip{}, err
	}

	defer f.Close()

	buf, err := decode(f)
	if err != nil {
		return clip.Clip{}, fmt.Errorf("decoding %s: %w", path, err)
	}

	return clip.FromIntBuffer(filepath.Base(path), class, buf)
}

func decodeWav(f afero.File) (*audio.IntBuffer, error) {
	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("invalid wav file")
	}

	return decoder.FullPCMBuffer()
}

// go-mp3 always yields 16-bit little-endian stereo.
func decodeMp3(f afero.File) (*audio.IntBuffer, error) {
	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, err
	}

	pcm, err := io.ReadAll(decoder)
	if err != nil {
		return nil, err
	}

	data := make([]int, len(pcm)/2)
	for i := range data {
		data[i] = int(int16(uint16(pcm[i*2]) | uint16(pcm[i*2+1])<<8))
	}

	return &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: 2,
			SampleRate:  decoder.SampleRate(),
		},
		Data:           data,
		SourceBitDepth: 16,
	}, nil
}
