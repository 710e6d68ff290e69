package retrieval

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// MMR picks up to k candidate indices by maximal marginal relevance:
// each step takes the candidate maximising
// lambda*sim(query, c) - (1-lambda)*max sim(c, selected).
// lambda=1 is pure relevance ordering, lambda=0 pure diversity.
func MMR(query []float64, candidates [][]float64, k int, lambda float64) []int {
	n := len(candidates)
	if k <= 0 || n == 0 {
		return nil
	}
	if k > n {
		k = n
	}
	lambda = math.Max(0, math.Min(1, lambda))

	relevance := make([]float64, n)
	for i, c := range candidates {
		relevance[i] = cosine(query, c)
	}

	selected := make([]int, 0, k)
	taken := make([]bool, n)
	// redundancy[i] is the max similarity of candidate i to anything selected so far
	redundancy := make([]float64, n)
	for i := range redundancy {
		redundancy[i] = math.Inf(-1)
	}

	for len(selected) < k {
		best, bestScore := -1, math.Inf(-1)
		for i := 0; i < n; i++ {
			if taken[i] {
				continue
			}
			score := lambda * relevance[i]
			if len(selected) > 0 {
				score -= (1 - lambda) * redundancy[i]
			}
			if score > bestScore {
				best, bestScore = i, score
			}
		}
		if best < 0 {
			break
		}
		taken[best] = true
		selected = append(selected, best)
		for i := 0; i < n; i++ {
			if !taken[i] {
				redundancy[i] = math.Max(redundancy[i], cosine(candidates[i], candidates[best]))
			}
		}
	}
	return selected
}

func cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}
