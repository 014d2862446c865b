package learner

import (
	"encoding/json"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// thresholdData labels rows by whether the first column is below 0.5.
func thresholdData(n, width int, seed uint64) ([][]float64, []int) {
	rng := rand.New(rand.NewPCG(seed, seed))
	X := make([][]float64, n)
	y := make([]int, n)
	for i := range X {
		X[i] = make([]float64, width)
		for c := range X[i] {
			X[i][c] = rng.Float64()
		}
		if X[i][0] < 0.5 {
			y[i] = 1
		}
	}
	return X, y
}

func TestClassifiersLearnThreshold(t *testing.T) {
	X, y := thresholdData(200, 6, 7)
	train, test := TrainTestSplit(len(X), 0.2, 42)
	xTrain, yTrain := Take(X, y, train)
	xTest, yTest := Take(X, y, test)

	cases := map[string]Classifier{
		"random forest":     NewRandomForest(),
		"gradient boosting": NewGradientBoosting(),
	}
	for name, clf := range cases {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, clf.Fit(xTrain, yTrain))

			pred, err := clf.Predict(xTest)
			require.NoError(t, err)
			assert.Greater(t, Accuracy(yTest, pred), 0.8)

			proba, err := clf.PredictProba(xTest)
			require.NoError(t, err)
			require.Len(t, proba, len(xTest))
			for _, row := range proba {
				assert.InDelta(t, 1.0, row[0]+row[1], 1e-9)
			}
		})
	}
}

func TestClassifierJSONRoundTrip(t *testing.T) {
	X, y := thresholdData(60, 4, 3)
	for name, fresh := range map[string]func() Classifier{
		"random forest":     func() Classifier { return NewRandomForest() },
		"gradient boosting": func() Classifier { return NewGradientBoosting() },
	} {
		t.Run(name, func(t *testing.T) {
			clf := fresh()
			require.NoError(t, clf.Fit(X, y))

			raw, err := json.Marshal(clf)
			require.NoError(t, err)
			restored := fresh()
			require.NoError(t, json.Unmarshal(raw, restored))

			want, err := clf.PredictProba(X)
			require.NoError(t, err)
			got, err := restored.PredictProba(X)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestClassifierErrors(t *testing.T) {
	rf := NewRandomForest()
	_, err := rf.Predict([][]float64{{1}})
	assert.ErrorIs(t, err, ErrNotFitted)

	assert.ErrorIs(t, rf.Fit(nil, nil), ErrEmptyData)
	assert.Error(t, rf.Fit([][]float64{{1, 2}, {1}}, []int{0, 1}))
	assert.Error(t, rf.Fit([][]float64{{1}, {2}}, []int{0, 2}))

	require.NoError(t, rf.Fit([][]float64{{1, 2}, {3, 4}}, []int{0, 1}))
	_, err = rf.Predict([][]float64{{1, 2, 3}})
	assert.Error(t, err)
}

func TestFitIsDeterministic(t *testing.T) {
	X, y := thresholdData(80, 5, 11)
	a, b := NewRandomForest(), NewRandomForest()
	require.NoError(t, a.Fit(X, y))
	require.NoError(t, b.Fit(X, y))

	pa, _ := a.PredictProba(X)
	pb, _ := b.PredictProba(X)
	assert.Equal(t, pa, pb)
}

func TestIsolationForest(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	X := make([][]float64, 200)
	for i := range X {
		X[i] = []float64{rng.NormFloat64(), rng.NormFloat64()}
	}

	forest := NewIsolationForest()
	require.NoError(t, forest.Fit(X))

	scores, err := forest.DecisionFunction([][]float64{{0, 0}, {12, -12}})
	require.NoError(t, err)
	assert.Greater(t, scores[0], 0.0, "centre of the mass is an inlier")
	assert.Less(t, scores[1], 0.0, "far point is an outlier")

	labels, err := forest.Predict(X)
	require.NoError(t, err)
	outliers := 0
	for _, l := range labels {
		if l == -1 {
			outliers++
		}
	}
	// contamination 5% of 200 rows
	assert.InDelta(t, 10, outliers, 3)
}

func TestTrainTestSplit(t *testing.T) {
	train, test := TrainTestSplit(200, 0.2, 42)
	assert.Len(t, test, 40)
	assert.Len(t, train, 160)

	seen := map[int]bool{}
	for _, i := range append(append([]int{}, train...), test...) {
		assert.False(t, seen[i])
		seen[i] = true
	}
	assert.Len(t, seen, 200)

	again, _ := TrainTestSplit(200, 0.2, 42)
	assert.Equal(t, train, again)
}

func TestMetrics(t *testing.T) {
	truth := []int{1, 1, 0, 0, 1}
	pred := []int{1, 0, 0, 1, 1}
	assert.InDelta(t, 0.6, Accuracy(truth, pred), 1e-9)
	assert.InDelta(t, 2.0/3.0, Precision(truth, pred), 1e-9)
	assert.InDelta(t, 2.0/3.0, Recall(truth, pred), 1e-9)
	assert.InDelta(t, 2.0/3.0, F1(truth, pred), 1e-9)

	assert.Zero(t, Precision([]int{1, 0}, []int{0, 0}))
	assert.Zero(t, F1([]int{0, 0}, []int{0, 0}))
}

func TestWard(t *testing.T) {
	X := [][]float64{
		{0, 0}, {10, 10}, {0.1, 0}, {10.2, 10}, {0, 0.2}, {20, 0},
	}
	labels, err := Ward(X, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 0, 1, 0, 2}, labels)

	one, err := Ward(X, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 0, 0, 0, 0}, one)

	_, err = Ward(X, 7)
	assert.Error(t, err)
}
