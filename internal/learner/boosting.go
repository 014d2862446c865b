package learner

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// GradientBoosting fits an additive model of regression trees to the
// binary log-loss. Leaf values are single Newton steps.
type GradientBoosting struct {
	Estimators   int     `json:"estimators"`
	MaxDepth     int     `json:"max_depth"`
	LearningRate float64 `json:"learning_rate"`

	Width int              `json:"width"`
	Prior float64          `json:"prior"`
	Stage []regressionTree `json:"stages,omitempty"`
}

var _ Classifier = (*GradientBoosting)(nil)

// NewGradientBoosting returns 100 depth-5 trees with learning rate 0.1.
func NewGradientBoosting() *GradientBoosting {
	return &GradientBoosting{Estimators: 100, MaxDepth: 5, LearningRate: 0.1}
}

func (g *GradientBoosting) Fit(X [][]float64, y []int) error {
	width, err := checkMatrix(X, 0)
	if err != nil {
		return err
	}
	if err := checkLabels(X, y); err != nil {
		return err
	}

	n := len(X)
	labels := make([]float64, n)
	for i, label := range y {
		labels[i] = float64(label)
	}
	p := floats.Sum(labels) / float64(n)
	p = math.Min(math.Max(p, 1e-6), 1-1e-6)
	prior := math.Log(p / (1 - p))

	raw := make([]float64, n)
	for i := range raw {
		raw[i] = prior
	}
	residual := make([]float64, n)
	hessian := make([]float64, n)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}

	cfg := treeConfig{
		maxDepth: g.MaxDepth,
		minLeaf:  1,
		leafValue: func(members []int) float64 {
			var num, den float64
			for _, i := range members {
				num += residual[i]
				den += hessian[i]
			}
			if den < 1e-12 {
				return 0
			}
			return num / den
		},
	}

	stages := make([]regressionTree, 0, g.Estimators)
	for m := 0; m < g.Estimators; m++ {
		for i := range raw {
			prob := sigmoid(raw[i])
			residual[i] = labels[i] - prob
			hessian[i] = prob * (1 - prob)
		}
		tree := buildTree(cfg, X, residual, idx, nil)
		for i, x := range X {
			raw[i] += g.LearningRate * tree.predict(x)
		}
		stages = append(stages, tree)
	}

	g.Width = width
	g.Prior = prior
	g.Stage = stages
	return nil
}

func (g *GradientBoosting) positive(X [][]float64) ([]float64, error) {
	if len(g.Stage) == 0 {
		return nil, ErrNotFitted
	}
	if _, err := checkMatrix(X, g.Width); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, x := range X {
		raw := g.Prior
		for t := range g.Stage {
			raw += g.LearningRate * g.Stage[t].predict(x)
		}
		out[i] = sigmoid(raw)
	}
	return out, nil
}

func (g *GradientBoosting) PredictProba(X [][]float64) ([][]float64, error) {
	p, err := g.positive(X)
	if err != nil {
		return nil, err
	}
	return probaRows(p), nil
}

func (g *GradientBoosting) Predict(X [][]float64) ([]int, error) {
	p, err := g.positive(X)
	if err != nil {
		return nil, err
	}
	return classify(p), nil
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
