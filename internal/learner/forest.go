package learner

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// RandomForest is a bagged ensemble of depth-limited trees with random
// feature subsampling at every split.
type RandomForest struct {
	Trees    int    `json:"trees"`
	MaxDepth int    `json:"max_depth"`
	MinLeaf  int    `json:"min_leaf"`
	Seed     uint64 `json:"seed"`

	Width  int              `json:"width"`
	Forest []regressionTree `json:"forest,omitempty"`
}

var _ Classifier = (*RandomForest)(nil)

// NewRandomForest returns a forest of 100 trees of depth 10.
func NewRandomForest() *RandomForest {
	return &RandomForest{Trees: 100, MaxDepth: 10, MinLeaf: 1, Seed: 42}
}

func (f *RandomForest) Fit(X [][]float64, y []int) error {
	width, err := checkMatrix(X, 0)
	if err != nil {
		return err
	}
	if err := checkLabels(X, y); err != nil {
		return err
	}

	target := make([]float64, len(y))
	for i, label := range y {
		target[i] = float64(label)
	}
	cfg := treeConfig{
		maxDepth:    f.MaxDepth,
		minLeaf:     f.MinLeaf,
		maxFeatures: max(1, int(math.Sqrt(float64(width)))),
		leafValue:   meanOf(target),
	}

	rng := newRand(f.Seed)
	forest := make([]regressionTree, 0, f.Trees)
	for t := 0; t < f.Trees; t++ {
		sample := make([]int, len(X))
		for i := range sample {
			sample[i] = rng.IntN(len(X))
		}
		forest = append(forest, buildTree(cfg, X, target, sample, rng))
	}

	f.Width = width
	f.Forest = forest
	return nil
}

func (f *RandomForest) positive(X [][]float64) ([]float64, error) {
	if len(f.Forest) == 0 {
		return nil, ErrNotFitted
	}
	if _, err := checkMatrix(X, f.Width); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	votes := make([]float64, len(f.Forest))
	for i, x := range X {
		for t := range f.Forest {
			votes[t] = f.Forest[t].predict(x)
		}
		out[i] = stat.Mean(votes, nil)
	}
	return out, nil
}

func (f *RandomForest) PredictProba(X [][]float64) ([][]float64, error) {
	p, err := f.positive(X)
	if err != nil {
		return nil, err
	}
	return probaRows(p), nil
}

func (f *RandomForest) Predict(X [][]float64) ([]int, error) {
	p, err := f.positive(X)
	if err != nil {
		return nil, err
	}
	return classify(p), nil
}

func meanOf(target []float64) func(idx []int) float64 {
	return func(idx []int) float64 {
		if len(idx) == 0 {
			return 0
		}
		var sum float64
		for _, i := range idx {
			sum += target[i]
		}
		return sum / float64(len(idx))
	}
}
