// Package model_selection splits labelled data for training and evaluation.
package model_selection

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/exoplanet-classifier/pkg/errors"
)

// Split holds the two halves of a train/test split. Rows keep their
// original relative order.
type Split struct {
	XTrain, XTest *mat.Dense
	YTrain, YTest *mat.VecDense

	TrainIndices []int
	TestIndices  []int
}

// TrainTestSplit partitions (X, y) so that ceil(testSize·n) rows land in the
// test half and every class keeps its proportion. Per-class test counts are
// the floors of the proportional share, with leftover rows going to the
// classes with the largest fractional parts. Rows within a class are drawn
// with a PCG source seeded by seed.
func TrainTestSplit(X mat.Matrix, y mat.Vector, testSize float64, seed uint64) (*Split, error) {
	if !(testSize > 0 && testSize < 1) {
		return nil, errors.NewValidationError("test_size", "must be in the open interval (0, 1)", testSize)
	}
	n, _ := X.Dims()
	if y.Len() != n {
		return nil, errors.NewDimensionError("TrainTestSplit", n, y.Len(), 0)
	}

	classIndices := make(map[int][]int)
	var classes []int
	for i := 0; i < n; i++ {
		label := int(y.AtVec(i))
		if _, ok := classIndices[label]; !ok {
			classes = append(classes, label)
		}
		classIndices[label] = append(classIndices[label], i)
	}
	sort.Ints(classes)

	nTest := int(math.Ceil(testSize * float64(n)))
	nTrain := n - nTest
	if nTest < len(classes) || nTrain < len(classes) {
		return nil, errors.NewValidationError("test_size",
			fmt.Sprintf("split of %d rows leaves %d test and %d train rows for %d classes", n, nTest, nTrain, len(classes)), testSize)
	}
	for _, c := range classes {
		if len(classIndices[c]) < 2 {
			return nil, errors.NewValueError("TrainTestSplit",
				fmt.Sprintf("class %d has a single member; stratification needs at least 2", c))
		}
	}

	alloc := allocate(classes, classIndices, n, nTest)

	r := rand.New(rand.NewPCG(seed, seed))
	var train, test []int
	for _, c := range classes {
		indices := append([]int(nil), classIndices[c]...)
		r.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
		test = append(test, indices[:alloc[c]]...)
		train = append(train, indices[alloc[c]:]...)
	}
	sort.Ints(train)
	sort.Ints(test)

	split := &Split{TrainIndices: train, TestIndices: test}
	split.XTrain, split.YTrain = Subset(X, y, train)
	split.XTest, split.YTest = Subset(X, y, test)
	return split, nil
}

func allocate(classes []int, classIndices map[int][]int, n, nTest int) map[int]int {
	type share struct {
		class int
		frac  float64
	}
	alloc := make(map[int]int, len(classes))
	shares := make([]share, 0, len(classes))
	assigned := 0
	for _, c := range classes {
		exact := float64(nTest) * float64(len(classIndices[c])) / float64(n)
		whole := int(math.Floor(exact))
		alloc[c] = whole
		assigned += whole
		shares = append(shares, share{class: c, frac: exact - float64(whole)})
	}
	sort.SliceStable(shares, func(i, j int) bool { return shares[i].frac > shares[j].frac })
	for i := 0; assigned < nTest; i = (i + 1) % len(shares) {
		c := shares[i].class
		// keep at least one training row per class
		if alloc[c] < len(classIndices[c])-1 {
			alloc[c]++
			assigned++
		}
	}
	return alloc
}

// Subset copies the rows of X and y named by indices, in that order.
func Subset(X mat.Matrix, y mat.Vector, indices []int) (*mat.Dense, *mat.VecDense) {
	_, cols := X.Dims()
	xs := mat.NewDense(len(indices), cols, nil)
	ys := mat.NewVecDense(len(indices), nil)
	row := make([]float64, cols)
	for i, idx := range indices {
		mat.Row(row, idx, X)
		xs.SetRow(i, row)
		ys.SetVec(i, y.AtVec(idx))
	}
	return xs, ys
}
