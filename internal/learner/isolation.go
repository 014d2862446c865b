package learner

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat"
)

const eulerGamma = 0.5772156649015329

type isoNode struct {
	Feature   int     `json:"f,omitempty"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Size      int     `json:"s,omitempty"`
}

type isoTree struct {
	Nodes []isoNode `json:"nodes"`
}

// IsolationForest scores observations by how quickly random axis-aligned
// cuts isolate them. DecisionFunction is negative for the Contamination
// share of the training data that is easiest to isolate.
type IsolationForest struct {
	Trees         int     `json:"trees"`
	MaxSamples    int     `json:"max_samples"`
	Contamination float64 `json:"contamination"`
	Seed          uint64  `json:"seed"`

	Width   int       `json:"width"`
	Samples int       `json:"samples"`
	Offset  float64   `json:"offset"`
	Forest  []isoTree `json:"forest,omitempty"`
}

// NewIsolationForest returns 100 trees on subsamples of at most 256 rows
// with a 5% contamination threshold.
func NewIsolationForest() *IsolationForest {
	return &IsolationForest{Trees: 100, MaxSamples: 256, Contamination: 0.05, Seed: 42}
}

func (f *IsolationForest) Fit(X [][]float64) error {
	width, err := checkMatrix(X, 0)
	if err != nil {
		return err
	}
	psi := min(f.MaxSamples, len(X))
	if psi < 1 {
		psi = len(X)
	}
	maxDepth := int(math.Ceil(math.Log2(math.Max(float64(psi), 2))))

	rng := newRand(f.Seed)
	forest := make([]isoTree, 0, f.Trees)
	for t := 0; t < f.Trees; t++ {
		sample := rng.Perm(len(X))[:psi]
		tree := isoTree{}
		growIso(&tree, X, sample, 0, maxDepth, rng)
		forest = append(forest, tree)
	}

	f.Width = width
	f.Samples = psi
	f.Forest = forest

	scores := f.scoreSamples(X)
	sort.Float64s(scores)
	f.Offset = stat.Quantile(f.Contamination, stat.LinInterp, scores, nil)
	return nil
}

func growIso(t *isoTree, X [][]float64, idx []int, depth, maxDepth int, rng *rand.Rand) int {
	id := len(t.Nodes)
	t.Nodes = append(t.Nodes, isoNode{Size: len(idx)})
	if depth >= maxDepth || len(idx) <= 1 {
		return id
	}

	feature := rng.IntN(len(X[0]))
	lo, hi := X[idx[0]][feature], X[idx[0]][feature]
	for _, i := range idx[1:] {
		lo = math.Min(lo, X[i][feature])
		hi = math.Max(hi, X[i][feature])
	}
	if lo == hi {
		return id
	}
	threshold := lo + rng.Float64()*(hi-lo)

	var left, right []int
	for _, i := range idx {
		if X[i][feature] < threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return id
	}
	l := growIso(t, X, left, depth+1, maxDepth, rng)
	r := growIso(t, X, right, depth+1, maxDepth, rng)
	t.Nodes[id] = isoNode{Feature: feature, Threshold: threshold, Left: l, Right: r, Size: len(idx)}
	return id
}

func (t *isoTree) pathLength(x []float64) float64 {
	i, depth := 0, 0.0
	for {
		n := t.Nodes[i]
		if n.Left == 0 {
			return depth + averagePath(n.Size)
		}
		if x[n.Feature] < n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
		depth++
	}
}

// averagePath is the mean unsuccessful-search path length of a binary
// search tree over n points.
func averagePath(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	m := float64(n - 1)
	return 2*(math.Log(m)+eulerGamma) - 2*m/float64(n)
}

// scoreSamples returns the negated anomaly score; lower is more abnormal.
func (f *IsolationForest) scoreSamples(X [][]float64) []float64 {
	norm := averagePath(f.Samples)
	if norm == 0 {
		norm = 1
	}
	out := make([]float64, len(X))
	depths := make([]float64, len(f.Forest))
	for i, x := range X {
		for t := range f.Forest {
			depths[t] = f.Forest[t].pathLength(x)
		}
		out[i] = -math.Pow(2, -stat.Mean(depths, nil)/norm)
	}
	return out
}

// DecisionFunction returns the anomaly margin of each row; negative
// values are outliers.
func (f *IsolationForest) DecisionFunction(X [][]float64) ([]float64, error) {
	if len(f.Forest) == 0 {
		return nil, ErrNotFitted
	}
	if _, err := checkMatrix(X, f.Width); err != nil {
		return nil, err
	}
	scores := f.scoreSamples(X)
	for i := range scores {
		scores[i] -= f.Offset
	}
	return scores, nil
}

// Predict labels rows +1 (inlier) or -1 (outlier).
func (f *IsolationForest) Predict(X [][]float64) ([]int, error) {
	scores, err := f.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(scores))
	for i, s := range scores {
		out[i] = 1
		if s < 0 {
			out[i] = -1
		}
	}
	return out, nil
}
