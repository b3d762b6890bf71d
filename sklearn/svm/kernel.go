package svm

import (
	"math"

	lru "github.com/hashicorp/golang-lru/v2"
)

// rbfKernel evaluates exp(-gamma·‖a-b‖²) over a fixed training set and
// caches whole kernel rows. The cache is shared by the one-vs-rest
// subproblems, which see the same kernel with different labels.
type rbfKernel struct {
	x     [][]float64
	sq    []float64
	gamma float64
	rows  *lru.Cache[int, []float64]
}

func newRBFKernel(x [][]float64, gamma float64, cacheRows int) (*rbfKernel, error) {
	if cacheRows < 2 {
		cacheRows = 2
	}
	rows, err := lru.New[int, []float64](cacheRows)
	if err != nil {
		return nil, err
	}
	sq := make([]float64, len(x))
	for i, r := range x {
		sq[i] = dot(r, r)
	}
	return &rbfKernel{x: x, sq: sq, gamma: gamma, rows: rows}, nil
}

func (k *rbfKernel) row(i int) []float64 {
	if r, ok := k.rows.Get(i); ok {
		return r
	}
	r := make([]float64, len(k.x))
	xi := k.x[i]
	for j, xj := range k.x {
		d := k.sq[i] + k.sq[j] - 2*dot(xi, xj)
		if d < 0 {
			d = 0
		}
		r[j] = math.Exp(-k.gamma * d)
	}
	k.rows.Add(i, r)
	return r
}

func rbf(a, b []float64, gamma float64) float64 {
	d := 0.0
	for i := range a {
		diff := a[i] - b[i]
		d += diff * diff
	}
	return math.Exp(-gamma * d)
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
