package learner

import "math"

// TrainTestSplit shuffles row indices with seed and holds out
// ceil(n*testFraction) of them.
func TrainTestSplit(n int, testFraction float64, seed uint64) (train, test []int) {
	perm := newRand(seed).Perm(n)
	nTest := int(math.Ceil(float64(n) * testFraction))
	nTest = min(max(nTest, 0), n)
	return perm[nTest:], perm[:nTest]
}

// Take selects rows and labels by index.
func Take(X [][]float64, y []int, idx []int) ([][]float64, []int) {
	xs := make([][]float64, len(idx))
	ys := make([]int, len(idx))
	for i, j := range idx {
		xs[i] = X[j]
		ys[i] = y[j]
	}
	return xs, ys
}

type confusion struct {
	tp, tn, fp, fn float64
}

func count(truth, pred []int) confusion {
	var c confusion
	for i := range truth {
		switch {
		case truth[i] == 1 && pred[i] == 1:
			c.tp++
		case truth[i] == 0 && pred[i] == 0:
			c.tn++
		case truth[i] == 0 && pred[i] == 1:
			c.fp++
		default:
			c.fn++
		}
	}
	return c
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// Accuracy is the share of matching labels.
func Accuracy(truth, pred []int) float64 {
	c := count(truth, pred)
	return ratio(c.tp+c.tn, float64(len(truth)))
}

// Precision of the positive class; 0 when nothing is predicted positive.
func Precision(truth, pred []int) float64 {
	c := count(truth, pred)
	return ratio(c.tp, c.tp+c.fp)
}

// Recall of the positive class; 0 when there are no positives.
func Recall(truth, pred []int) float64 {
	c := count(truth, pred)
	return ratio(c.tp, c.tp+c.fn)
}

// F1 of the positive class.
func F1(truth, pred []int) float64 {
	c := count(truth, pred)
	return ratio(2*c.tp, 2*c.tp+c.fp+c.fn)
}
