package classifier

import (
	"math"
	"math/rand"
)

// Split shuffles row indices with a seeded source and holds out
// ceil(n*testSize) of them for testing.
func Split(n int, testSize float64, seed int64) (train, test []int) {
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	nTest := int(math.Ceil(float64(n) * testSize))
	if nTest > n {
		nTest = n
	}
	return perm[nTest:], perm[:nTest]
}

// Take selects rows by index.
func Take[T any](rows []T, idx []int) []T {
	out := make([]T, len(idx))
	for i, j := range idx {
		out[i] = rows[j]
	}
	return out
}

// ConfusionMatrix counts predictions: cell [t][p] is how many rows of true
// class t were predicted as p.
func ConfusionMatrix(truth, predicted []int, classes int) [][]int {
	out := make([][]int, classes)
	for i := range out {
		out[i] = make([]int, classes)
	}
	for i := range truth {
		t, p := truth[i], predicted[i]
		if t < 0 || t >= classes || p < 0 || p >= classes {
			continue
		}
		out[t][p]++
	}
	return out
}

// Argmax returns the index of the largest value in each row.
func Argmax(probs [][]float64) []int {
	out := make([]int, len(probs))
	for i, row := range probs {
		best := 0
		for j := range row {
			if row[j] > row[best] {
				best = j
			}
		}
		out[i] = best
	}
	return out
}

func sqrt(v float64) float64 { return math.Sqrt(v) }
