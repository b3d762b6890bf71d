// Package tree implements CART decision trees: an impurity-based classifier
// and a second-order gradient regression tree used by the boosting ensembles.
package tree

import (
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Leaf marks a node without children.
const Leaf = -1

// Node is one node of a fitted tree. Trees are stored as flat slices so that
// they gob-encode without recursion.
type Node struct {
	Feature   int // Leaf for leaves
	Threshold float64
	Left      int
	Right     int

	// Value is the class distribution of a classifier node, or a single
	// element holding the output of a regression node.
	Value    []float64
	NSamples int
	Impurity float64
}

// IsLeaf reports whether n has no children.
func (n *Node) IsLeaf() bool {
	return n.Feature == Leaf
}

// Columns copies X into column-major slices, the layout used by the split search.
func Columns(X mat.Matrix) [][]float64 {
	r, c := X.Dims()
	cols := make([][]float64, c)
	for j := 0; j < c; j++ {
		cols[j] = make([]float64, r)
		mat.Col(cols[j], j, X)
	}
	return cols
}

// apply walks the tree for row and returns the index of the reached leaf.
func apply(nodes []Node, row []float64) int {
	i := 0
	for !nodes[i].IsLeaf() {
		if row[nodes[i].Feature] <= nodes[i].Threshold {
			i = nodes[i].Left
		} else {
			i = nodes[i].Right
		}
	}
	return i
}

func depthOf(nodes []Node) int {
	if len(nodes) == 0 {
		return 0
	}
	var walk func(i int) int
	walk = func(i int) int {
		if nodes[i].IsLeaf() {
			return 0
		}
		l, r := walk(nodes[i].Left), walk(nodes[i].Right)
		if l > r {
			return l + 1
		}
		return r + 1
	}
	return walk(0)
}

func countLeaves(nodes []Node) int {
	n := 0
	for i := range nodes {
		if nodes[i].IsLeaf() {
			n++
		}
	}
	return n
}

// Presort returns, for every feature, samples ordered by that feature's
// value. The sort is stable so ties keep the order of samples. Builders keep
// these lists sorted while partitioning, which avoids re-sorting at every node.
func Presort(cols [][]float64, samples []int) [][]int {
	sorted := make([][]int, len(cols))
	for f, col := range cols {
		order := append([]int(nil), samples...)
		sort.SliceStable(order, func(a, b int) bool {
			return col[order[a]] < col[order[b]]
		})
		sorted[f] = order
	}
	return sorted
}

// splitSorted partitions every per-feature list on column <= threshold,
// preserving the sort order within each side.
func splitSorted(sorted [][]int, column []float64, threshold float64) (left, right [][]int) {
	left = make([][]int, len(sorted))
	right = make([][]int, len(sorted))
	for f, order := range sorted {
		l := make([]int, 0, len(order))
		r := make([]int, 0, len(order))
		for _, s := range order {
			if column[s] <= threshold {
				l = append(l, s)
			} else {
				r = append(r, s)
			}
		}
		left[f], right[f] = l, r
	}
	return left, right
}

// midpoint returns a threshold t with lo <= t < hi.
func midpoint(lo, hi float64) float64 {
	t := lo + (hi-lo)/2
	if t >= hi {
		t = lo
	}
	return t
}

func normalize(v []float64) []float64 {
	sum := 0.0
	for _, x := range v {
		sum += x
	}
	out := make([]float64, len(v))
	if sum <= 0 {
		return out
	}
	for i, x := range v {
		out[i] = x / sum
	}
	return out
}
