package spectrogram

import (
	"fmt"
	"sync"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"

	"kws-synth/clip"
	"kws-synth/ring_buffer"
)

const (
	DefaultNFFT    = 200
	DefaultOverlap = 120
	// DefaultScaleRate only affects the density scaling, not the frame layout.
	DefaultScaleRate = 8000
)

type Interface interface {
	// Extract returns one row of NFFT/2+1 power values per frame.
	Extract(c clip.Clip) ([][]float64, error)
	Frames(samples int) int
	Bins() int
}

type specImpl struct {
	nfft      int
	hop       int
	scaleRate float64
	window    []float64
	norm      float64

	// frame buffers reused across Extract calls, one per concurrent caller
	buffers sync.Pool
}

type Config struct {
	NFFT      int
	Overlap   int
	ScaleRate float64
}

func New(cfg *Config) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.NFFT < 2 {
		return nil, fmt.Errorf("nfft must be at least 2")
	}

	if cfg.Overlap < 0 || cfg.Overlap >= cfg.NFFT {
		return nil, fmt.Errorf("overlap must be in [0, nfft)")
	}

	if cfg.ScaleRate <= 0 {
		return nil, fmt.Errorf("scaleRate must be positive")
	}

	w := window.Hann(cfg.NFFT)

	var energy float64
	for _, v := range w {
		energy += v * v
	}

	s := &specImpl{
		nfft:      cfg.NFFT,
		hop:       cfg.NFFT - cfg.Overlap,
		scaleRate: cfg.ScaleRate,
		window:    w,
		norm:      cfg.ScaleRate * energy,
	}

	s.buffers.New = func() any {
		return ring_buffer.New(s.nfft)
	}

	return s, nil
}

func (s *specImpl) Bins() int {
	return s.nfft/2 + 1
}

func (s *specImpl) Frames(samples int) int {
	if samples < s.nfft {
		return 0
	}

	return (samples-s.nfft)/s.hop + 1
}

// Extract computes a one-sided power spectral density per Hann-windowed
// frame, matching matplotlib's specgram defaults.
func (s *specImpl) Extract(c clip.Clip) ([][]float64, error) {
	frames := s.Frames(len(c.Samples))
	if frames == 0 {
		return nil, fmt.Errorf("clip %s has %d samples, need at least %d", c.Name, len(c.Samples), s.nfft)
	}

	out := make([][]float64, 0, frames)

	rb := s.buffers.Get().(ring_buffer.Interface)
	defer s.buffers.Put(rb)

	// a reused buffer still holds the tail of the previous clip
	rb.Clear()
	rb.Add(c.Samples[:s.nfft])

	if !rb.Full() {
		return nil, fmt.Errorf("clip %s: first frame not filled", c.Name)
	}

	out = append(out, s.power(rb))

	for pos := s.nfft; pos+s.hop <= len(c.Samples); pos += s.hop {
		rb.Add(c.Samples[pos : pos+s.hop])
		out = append(out, s.power(rb))
	}

	return out, nil
}

func (s *specImpl) power(rb ring_buffer.Interface) []float64 {
	frame := rb.Read()

	for i := range frame {
		frame[i] *= s.window[i]
	}

	spectrum := fft.FFTReal(frame)

	bins := s.Bins()
	row := make([]float64, bins)

	for k := 0; k < bins; k++ {
		re, im := real(spectrum[k]), imag(spectrum[k])
		row[k] = (re*re + im*im) / s.norm

		// fold the negative frequencies onto the positive ones; DC and
		// Nyquist (for even nfft) have no mirror
		if k > 0 && (k < bins-1 || s.nfft%2 == 1) {
			row[k] *= 2
		}
	}

	return row
}
