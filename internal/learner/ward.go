package learner

import (
	"fmt"
	"math"
)

// Ward clusters the rows of X bottom-up with Ward linkage until k
// clusters remain. Cluster labels are numbered in order of each
// cluster's first row, so label 0 always contains row 0.
func Ward(X [][]float64, k int) ([]int, error) {
	n := len(X)
	if _, err := checkMatrix(X, 0); err != nil {
		return nil, err
	}
	if k < 1 || k > n {
		return nil, fmt.Errorf("learner: cannot form %d clusters from %d rows", k, n)
	}

	// squared euclidean distances; Lance-Williams keeps them Ward costs
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			var d float64
			for c := range X[i] {
				diff := X[i][c] - X[j][c]
				d += diff * diff
			}
			dist[i][j], dist[j][i] = d, d
		}
	}

	size := make([]int, n)
	parent := make([]int, n)
	active := make([]bool, n)
	for i := range size {
		size[i] = 1
		parent[i] = i
		active[i] = true
	}

	nn := make([]int, n)
	nnDist := make([]float64, n)
	nearest := func(i int) {
		nn[i], nnDist[i] = -1, math.Inf(1)
		for j := 0; j < n; j++ {
			if j != i && active[j] && dist[i][j] < nnDist[i] {
				nn[i], nnDist[i] = j, dist[i][j]
			}
		}
	}
	for i := 0; i < n; i++ {
		nearest(i)
	}

	for clusters := n; clusters > k; clusters-- {
		a := -1
		for i := 0; i < n; i++ {
			if active[i] && nn[i] >= 0 && (a < 0 || nnDist[i] < nnDist[a]) {
				a = i
			}
		}
		b := nn[a]
		if b < a {
			a, b = b, a
		}

		// merge b into a
		for m := 0; m < n; m++ {
			if !active[m] || m == a || m == b {
				continue
			}
			nm := float64(size[m])
			na, nb := float64(size[a]), float64(size[b])
			d := ((na+nm)*dist[a][m] + (nb+nm)*dist[b][m] - nm*dist[a][b]) / (na + nb + nm)
			dist[a][m], dist[m][a] = d, d
		}
		size[a] += size[b]
		active[b] = false
		for i := range parent {
			if parent[i] == b {
				parent[i] = a
			}
		}

		for m := 0; m < n; m++ {
			if !active[m] {
				continue
			}
			if m == a || nn[m] == a || nn[m] == b {
				nearest(m)
			} else if dist[m][a] < nnDist[m] {
				nn[m], nnDist[m] = a, dist[m][a]
			}
		}
	}

	labels := make([]int, n)
	ids := make(map[int]int, k)
	for i, root := range parent {
		id, ok := ids[root]
		if !ok {
			id = len(ids)
			ids[root] = id
		}
		labels[i] = id
	}
	return labels, nil
}
