package dataset

import (
	"fmt"

	"github.com/sbinet/npyio"
	"github.com/spf13/afero"
	"github.com/zenwerk/go-wave"
	"gonum.org/v1/gonum/mat"

	"kws-synth/clip"
	"kws-synth/label"
)

// writeWav stores the example as 16-bit mono PCM. The wave writer closes the file.
func writeWav(fileSys afero.Fs, path string, c clip.Clip) error {
	waveFile, err := fileSys.Create(path)
	if err != nil {
		return err
	}

	param := wave.WriterParam{
		Out:           waveFile,
		Channel:       1,
		SampleRate:    c.SampleRate,
		BitsPerSample: 16,
	}

	waveWriter, err := wave.NewWriter(param)
	if err != nil {
		waveFile.Close()
		return err
	}

	_, err = waveWriter.WriteSample16(c.Int16())
	if err != nil {
		waveWriter.Close()
		return err
	}

	return waveWriter.Close()
}

// writeFeatures stores a [frames, bins] spectrogram.
func writeFeatures(fileSys afero.Fs, path string, features [][]float64) error {
	if len(features) == 0 {
		return fmt.Errorf("no spectrogram frames for %s", path)
	}

	bins := len(features[0])
	flat := make([]float64, 0, len(features)*bins)

	for i, row := range features {
		if len(row) != bins {
			return fmt.Errorf("frame %d has %d bins, want %d", i, len(row), bins)
		}

		flat = append(flat, row...)
	}

	return writeMatrix(fileSys, path, mat.NewDense(len(features), bins, flat))
}

// writeLabels stores a [steps, 1] column, the layout the classifier trains on.
func writeLabels(fileSys afero.Fs, path string, labels label.Vector) error {
	if len(labels) == 0 {
		return fmt.Errorf("no labels for %s", path)
	}

	column := make([]float64, len(labels))
	for i, v := range labels {
		column[i] = float64(v)
	}

	return writeMatrix(fileSys, path, mat.NewDense(len(labels), 1, column))
}

func writeMatrix(fileSys afero.Fs, path string, m *mat.Dense) error {
	f, err := fileSys.Create(path)
	if err != nil {
		return err
	}

	if err := npyio.Write(f, m); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}

	return f.Close()
}
