package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMMR_PrefersDiversity(t *testing.T) {
	query := []float64{1, 0.2}
	cands := [][]float64{
		{1, 0},
		{0.98, 0.02},
		{0.6, 0.8},
	}
	assert.Equal(t, []int{1, 2}, MMR(query, cands, 2, 0.5))
	assert.Equal(t, []int{1, 0}, MMR(query, cands, 2, 1), "lambda 1 is plain relevance")
}

func TestMMR_Bounds(t *testing.T) {
	assert.Nil(t, MMR([]float64{1}, nil, 3, 0.5))
	assert.Nil(t, MMR([]float64{1}, [][]float64{{1}}, 0, 0.5))
	assert.Len(t, MMR([]float64{1, 0}, [][]float64{{1, 0}, {0, 1}}, 5, 0.5), 2)
}

func TestMMR_MissingVectorsKeepOrder(t *testing.T) {
	got := MMR([]float64{1, 0}, [][]float64{nil, nil, nil}, 2, 0.5)
	assert.Equal(t, []int{0, 1}, got)
}
