package capability

import (
	"fmt"
	"math"

	"github.com/Aidin1998/modelserver/internal/learner"
)

const (
	splitSeed     = 42
	validationCut = 0.2
	// minSplitRows is the smallest dataset that gets a held-out split;
	// smaller sets are scored on the training rows.
	minSplitRows = 10
)

// fitAndScore trains clf on an 80/20 split and scores it on the held
// out rows.
func fitAndScore(clf learner.Classifier, X [][]float64, y []int) (map[string]float64, error) {
	if len(X) == 0 {
		return nil, learner.ErrEmptyData
	}
	if len(X) != len(y) {
		return nil, fmt.Errorf("%d rows but %d labels", len(X), len(y))
	}

	xTrain, yTrain, xVal, yVal := X, y, X, y
	if len(X) >= minSplitRows {
		train, val := learner.TrainTestSplit(len(X), validationCut, splitSeed)
		xTrain, yTrain = learner.Take(X, y, train)
		xVal, yVal = learner.Take(X, y, val)
	}

	if err := clf.Fit(xTrain, yTrain); err != nil {
		return nil, err
	}
	pred, err := clf.Predict(xVal)
	if err != nil {
		return nil, err
	}

	return map[string]float64{
		"accuracy":           learner.Accuracy(yVal, pred),
		"f1":                 learner.F1(yVal, pred),
		"precision":          learner.Precision(yVal, pred),
		"recall":             learner.Recall(yVal, pred),
		"training_samples":   float64(len(xTrain)),
		"validation_samples": float64(len(xVal)),
	}, nil
}

func round(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}
