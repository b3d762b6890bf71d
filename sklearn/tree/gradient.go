package tree

import (
	"math"

	"github.com/YuminosukeSato/exoplanet-classifier/pkg/errors"
)

// GradientTree is a regression tree grown on first and second order
// gradients of a loss. With unit hessians and zero lambda the split gain
// reduces to the squared-error reduction of fitting the negative gradients.
type GradientTree struct {
	Nodes []Node
	Gains []float64 // total split gain per feature

	MaxDepth       int
	MinSamplesLeaf int
	MinChildWeight float64
	Lambda         float64
}

// LeafFunc computes a leaf output from the samples that reach it. A nil
// LeafFunc uses the Newton step -G/(H+lambda).
type LeafFunc func(samples []int) float64

// FitGradients grows the tree over the samples of sorted, as returned by Presort.
func (t *GradientTree) FitGradients(cols [][]float64, sorted [][]int, grad, hess []float64, leaf LeafFunc) error {
	if len(cols) == 0 || len(sorted) != len(cols) || len(sorted[0]) == 0 {
		return errors.NewModelError("GradientTree.Fit", "empty data", errors.ErrEmptyData)
	}
	if len(grad) != len(hess) {
		return errors.NewDimensionError("GradientTree.Fit", len(grad), len(hess), 0)
	}
	if t.MinSamplesLeaf < 1 {
		t.MinSamplesLeaf = 1
	}
	b := &gradBuilder{t: t, cols: cols, grad: grad, hess: hess, leaf: leaf}
	t.Nodes = t.Nodes[:0]
	t.Gains = make([]float64, len(cols))
	b.build(sorted, 0)
	return nil
}

// PredictRow returns the leaf output for row.
func (t *GradientTree) PredictRow(row []float64) float64 {
	return t.Nodes[apply(t.Nodes, row)].Value[0]
}

// Depth returns the depth of the fitted tree.
func (t *GradientTree) Depth() int {
	return depthOf(t.Nodes)
}

type gradBuilder struct {
	t    *GradientTree
	cols [][]float64
	grad []float64
	hess []float64
	leaf LeafFunc
}

func (b *gradBuilder) sums(samples []int) (g, h float64) {
	for _, s := range samples {
		g += b.grad[s]
		h += b.hess[s]
	}
	return g, h
}

// calculateSplitGain is 0.5*(GL²/(HL+λ) + GR²/(HR+λ) − G²/(H+λ)).
func (b *gradBuilder) calculateSplitGain(gl, hl, gr, hr, g, h float64) float64 {
	lambda := b.t.Lambda
	return 0.5 * (gl*gl/(hl+lambda) + gr*gr/(hr+lambda) - g*g/(h+lambda))
}

func (b *gradBuilder) leafValue(samples []int, g, h float64) float64 {
	if b.leaf != nil {
		return b.leaf(samples)
	}
	const epsilon = 1e-10
	if math.Abs(h) < epsilon {
		h = epsilon
	}
	return -g / (h + b.t.Lambda + epsilon)
}

func (b *gradBuilder) build(sorted [][]int, depth int) int {
	t := b.t
	samples := sorted[0]
	g, h := b.sums(samples)
	n := len(samples)

	id := len(t.Nodes)
	t.Nodes = append(t.Nodes, Node{
		Feature:  Leaf,
		Left:     Leaf,
		Right:    Leaf,
		Value:    []float64{b.leafValue(samples, g, h)},
		NSamples: n,
	})

	if n < 2*t.MinSamplesLeaf || (t.MaxDepth > 0 && depth >= t.MaxDepth) {
		return id
	}

	feature, threshold, gain := b.bestSplit(sorted, g, h)
	if feature < 0 || gain <= 1e-12 {
		return id
	}

	left, right := splitSorted(sorted, b.cols[feature], threshold)
	t.Gains[feature] += gain

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	node := &t.Nodes[id]
	node.Feature = feature
	node.Threshold = threshold
	node.Left = l
	node.Right = r
	return id
}

func (b *gradBuilder) bestSplit(sorted [][]int, g, h float64) (int, float64, float64) {
	t := b.t
	n := len(sorted[0])
	bestFeature, bestThreshold, bestGain := -1, 0.0, math.Inf(-1)

	for f, col := range b.cols {
		order := sorted[f]
		if col[order[0]] == col[order[n-1]] {
			continue
		}

		var gl, hl float64
		for i := 1; i < n; i++ {
			s := order[i-1]
			gl += b.grad[s]
			hl += b.hess[s]
			if i < t.MinSamplesLeaf || n-i < t.MinSamplesLeaf {
				continue
			}
			lo, hi := col[s], col[order[i]]
			if lo == hi {
				continue
			}
			gr, hr := g-gl, h-hl
			if hl < t.MinChildWeight || hr < t.MinChildWeight {
				continue
			}
			gain := b.calculateSplitGain(gl, hl, gr, hr, g, h)
			if gain > bestGain+1e-12 {
				bestFeature, bestThreshold, bestGain = f, midpoint(lo, hi), gain
			}
		}
	}
	return bestFeature, bestThreshold, bestGain
}
