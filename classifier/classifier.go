package classifier

import (
	"errors"
	"fmt"
	"math"
)

// ErrOutputShape is returned when a model's output does not line up with the label axis.
var ErrOutputShape = errors.New("classifier output does not match label axis")

// Check runs clf on features and verifies the prediction has labelSteps
// probabilities in [0, 1]. Generation never calls it; the training and
// evaluation side uses it to validate a model against the exported label axis.
func Check(clf Interface, features [][]float64, labelSteps int) ([]float64, error) {
	if clf == nil {
		return nil, fmt.Errorf("classifier is nil")
	}

	probs, err := clf.Predict(features)
	if err != nil {
		return nil, err
	}

	if len(probs) != labelSteps {
		return nil, fmt.Errorf("%w: got %d steps, want %d", ErrOutputShape, len(probs), labelSteps)
	}

	for i, p := range probs {
		if math.IsNaN(p) || p < 0 || p > 1 {
			return nil, fmt.Errorf("%w: step %d has probability %v", ErrOutputShape, i, p)
		}
	}

	return probs, nil
}
