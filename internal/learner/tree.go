package learner

import (
	"math/rand/v2"
	"sort"
)

// node is one entry of a flat binary tree. Left == 0 marks a leaf since
// the root can never be a child.
type node struct {
	Feature   int     `json:"f,omitempty"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Value     float64 `json:"v"`
}

type regressionTree struct {
	Nodes []node `json:"nodes"`
}

func (t *regressionTree) predict(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Left == 0 {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

type treeConfig struct {
	maxDepth    int
	minLeaf     int
	maxFeatures int
	leafValue   func(idx []int) float64
}

// treeBuilder grows a regression tree that minimises the squared error
// of target. On 0/1 targets this is the gini criterion.
type treeBuilder struct {
	cfg    treeConfig
	X      [][]float64
	target []float64
	rng    *rand.Rand
	nodes  []node
}

func buildTree(cfg treeConfig, X [][]float64, target []float64, idx []int, rng *rand.Rand) regressionTree {
	if cfg.minLeaf < 1 {
		cfg.minLeaf = 1
	}
	b := &treeBuilder{cfg: cfg, X: X, target: target, rng: rng}
	b.grow(idx, 0)
	return regressionTree{Nodes: b.nodes}
}

func (b *treeBuilder) grow(idx []int, depth int) int {
	id := len(b.nodes)
	b.nodes = append(b.nodes, node{Value: b.cfg.leafValue(idx)})

	if depth >= b.cfg.maxDepth || len(idx) < 2*b.cfg.minLeaf {
		return id
	}
	feature, threshold, ok := b.bestSplit(idx)
	if !ok {
		return id
	}

	var left, right []int
	for _, i := range idx {
		if b.X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return id
	}
	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)

	b.nodes[id].Feature = feature
	b.nodes[id].Threshold = threshold
	b.nodes[id].Left = l
	b.nodes[id].Right = r
	return id
}

func (b *treeBuilder) candidates() []int {
	width := len(b.X[0])
	if b.cfg.maxFeatures <= 0 || b.cfg.maxFeatures >= width {
		all := make([]int, width)
		for i := range all {
			all[i] = i
		}
		return all
	}
	return b.rng.Perm(width)[:b.cfg.maxFeatures]
}

func (b *treeBuilder) bestSplit(idx []int) (int, float64, bool) {
	n := float64(len(idx))
	var total float64
	for _, i := range idx {
		total += b.target[i]
	}
	// score of a split is sumL²/nL + sumR²/nR; the parent scores total²/n
	bestScore := total*total/n + 1e-12
	bestFeature, bestThreshold, found := 0, 0.0, false

	sorted := make([]int, len(idx))
	for _, f := range b.candidates() {
		copy(sorted, idx)
		sort.SliceStable(sorted, func(a, c int) bool { return b.X[sorted[a]][f] < b.X[sorted[c]][f] })

		var leftSum float64
		for pos := 0; pos < len(sorted)-1; pos++ {
			leftSum += b.target[sorted[pos]]
			nl := pos + 1
			nr := len(sorted) - nl
			cur, next := b.X[sorted[pos]][f], b.X[sorted[pos+1]][f]
			if cur == next || nl < b.cfg.minLeaf || nr < b.cfg.minLeaf {
				continue
			}
			rightSum := total - leftSum
			score := leftSum*leftSum/float64(nl) + rightSum*rightSum/float64(nr)
			if score > bestScore {
				bestScore = score
				bestFeature = f
				bestThreshold = cur + (next-cur)/2
				if bestThreshold >= next {
					bestThreshold = cur
				}
				found = true
			}
		}
	}
	return bestFeature, bestThreshold, found
}
