package clip

import (
	"fmt"
	"math"

	"github.com/go-audio/audio"
)

type Class int

const (
	Background Class = iota
	Positive
	Negative
)

func (c Class) String() string {
	switch c {
	case Positive:
		return "positive"
	case Negative:
		return "negative"
	default:
		return "background"
	}
}

// Clip is a mono audio buffer with samples normalized to [-1, 1].
// Operations never modify the receiver; they return a new Clip.
type Clip struct {
	Name       string
	Class      Class
	SampleRate int
	Samples    []float64
}

// DurationMS rounds to the nearest millisecond.
func (c Clip) DurationMS() int {
	if c.SampleRate <= 0 {
		return 0
	}

	return int((int64(len(c.Samples))*1000 + int64(c.SampleRate)/2) / int64(c.SampleRate))
}

// SampleAt converts a millisecond offset to a sample index.
func (c Clip) SampleAt(ms int) int {
	return int(int64(ms) * int64(c.SampleRate) / 1000)
}

func (c Clip) Copy() Clip {
	samples := make([]float64, len(c.Samples))
	copy(samples, c.Samples)
	c.Samples = samples

	return c
}

// Gain scales every sample by the given decibel change.
func (c Clip) Gain(db float64) Clip {
	factor := math.Pow(10, db/20)

	out := c.Copy()
	for i, s := range out.Samples {
		out.Samples[i] = s * factor
	}

	return out
}

// DBFS is the RMS loudness relative to full scale. Silence is -Inf.
func (c Clip) DBFS() float64 {
	if len(c.Samples) == 0 {
		return math.Inf(-1)
	}

	var sum float64
	for _, s := range c.Samples {
		sum += s * s
	}

	rms := math.Sqrt(sum / float64(len(c.Samples)))
	if rms == 0 {
		return math.Inf(-1)
	}

	return 20 * math.Log10(rms)
}

// MatchTarget applies one uniform gain so that DBFS equals target.
// Silent clips are returned unchanged since no finite gain reaches the target.
func (c Clip) MatchTarget(target float64) Clip {
	current := c.DBFS()
	if math.IsInf(current, -1) {
		return c.Copy()
	}

	return c.Gain(target - current)
}

// Overlay mixes other into a copy of c starting at startMS. The result keeps
// the length of c: samples of other past the end are dropped, and the sum
// saturates at full scale.
func (c Clip) Overlay(other Clip, startMS int) (Clip, error) {
	if other.SampleRate != c.SampleRate {
		return Clip{}, fmt.Errorf("sample rate mismatch: %d != %d", other.SampleRate, c.SampleRate)
	}

	if startMS < 0 {
		return Clip{}, fmt.Errorf("negative overlay position: %d", startMS)
	}

	out := c.Copy()

	offset := c.SampleAt(startMS)
	for i, s := range other.Samples {
		j := offset + i
		if j >= len(out.Samples) {
			break
		}

		out.Samples[j] = saturate(out.Samples[j] + s)
	}

	return out, nil
}

// Fit trims c to durationMS or pads it with trailing silence.
func (c Clip) Fit(durationMS int) Clip {
	n := c.SampleAt(durationMS)
	if n < 0 {
		n = 0
	}

	samples := make([]float64, n)
	copy(samples, c.Samples)
	c.Samples = samples

	return c
}

func saturate(s float64) float64 {
	if s > 1 {
		return 1
	} else if s < -1 {
		return -1
	}

	return s
}

// FromIntBuffer downmixes an interleaved PCM buffer to mono.
func FromIntBuffer(name string, class Class, buf *audio.IntBuffer) (Clip, error) {
	if buf == nil || buf.Format == nil {
		return Clip{}, fmt.Errorf("buffer format is nil")
	}

	channels := buf.Format.NumChannels
	if channels <= 0 {
		return Clip{}, fmt.Errorf("invalid channel count: %d", channels)
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth <= 0 {
		bitDepth = 16
	}

	scale := math.Pow(2, float64(bitDepth-1))
	frames := len(buf.Data) / channels

	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for ch := 0; ch < channels; ch++ {
			sum += float64(buf.Data[i*channels+ch])
		}

		samples[i] = saturate(sum / float64(channels) / scale)
	}

	return Clip{
		Name:       name,
		Class:      class,
		SampleRate: buf.Format.SampleRate,
		Samples:    samples,
	}, nil
}

// Int16 quantizes the samples for 16-bit PCM export.
func (c Clip) Int16() []int16 {
	out := make([]int16, len(c.Samples))
	for i, s := range c.Samples {
		v := math.Round(s * 32768)
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}

		out[i] = int16(v)
	}

	return out
}

// IntBuffer converts the clip back to a 16-bit mono go-audio buffer.
func (c Clip) IntBuffer() *audio.IntBuffer {
	pcm := c.Int16()

	data := make([]int, len(pcm))
	for i, s := range pcm {
		data[i] = int(s)
	}

	return &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: 1,
			SampleRate:  c.SampleRate,
		},
		Data:           data,
		SourceBitDepth: 16,
	}
}
