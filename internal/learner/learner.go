// Package learner holds the statistical learners the trainable
// capabilities delegate to. They implement a small fit/predict contract
// and serialise to JSON so a persisted learner reproduces its output
// exactly after a reload.
package learner

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

var (
	// ErrNotFitted is returned when predicting with an untrained learner.
	ErrNotFitted = errors.New("learner: not fitted")
	// ErrEmptyData is returned when fitting on zero rows.
	ErrEmptyData = errors.New("learner: empty training data")
)

// Classifier is a binary classifier over dense float rows. Labels are
// 0 or 1.
type Classifier interface {
	Fit(X [][]float64, y []int) error
	Predict(X [][]float64) ([]int, error)
	PredictProba(X [][]float64) ([][]float64, error)
}

// checkMatrix validates that X is non-empty and rectangular and, when
// width > 0, that every row has that width. It returns the row width.
func checkMatrix(X [][]float64, width int) (int, error) {
	if len(X) == 0 {
		return 0, ErrEmptyData
	}
	w := len(X[0])
	if w == 0 {
		return 0, errors.New("learner: rows have no features")
	}
	if width > 0 && w != width {
		return 0, fmt.Errorf("learner: expected %d features, got %d", width, w)
	}
	for i, row := range X {
		if len(row) != w {
			return 0, fmt.Errorf("learner: row %d has %d features, want %d", i, len(row), w)
		}
	}
	return w, nil
}

func checkLabels(X [][]float64, y []int) error {
	if len(y) != len(X) {
		return fmt.Errorf("learner: %d rows but %d labels", len(X), len(y))
	}
	for i, label := range y {
		if label != 0 && label != 1 {
			return fmt.Errorf("learner: label %d at row %d is not binary", label, i)
		}
	}
	return nil
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// probaRows turns P(class 1) values into [P(0), P(1)] rows.
func probaRows(p1 []float64) [][]float64 {
	out := make([][]float64, len(p1))
	for i, p := range p1 {
		out[i] = []float64{1 - p, p}
	}
	return out
}

// classify picks class 1 only when it is strictly more probable, which
// resolves ties to the lower class.
func classify(p1 []float64) []int {
	out := make([]int, len(p1))
	for i, p := range p1 {
		if p > 0.5 {
			out[i] = 1
		}
	}
	return out
}
