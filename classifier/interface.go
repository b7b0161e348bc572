package classifier

// Interface is a trained trigger-word model: it maps one spectrogram
// (frames x frequency bins) to one activation probability per label step.
type Interface interface {
	Predict(features [][]float64) ([]float64, error)
}
