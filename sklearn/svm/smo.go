package svm

import "math"

const tau = 1e-12

// binaryProblem is the C-SVC dual
//
//	min ½αᵀQα − eᵀα  s.t.  0 ≤ α ≤ C, yᵀα = 0,  Q_ij = y_i·y_j·K_ij
//
// solved by SMO with maximal violating pair selection.
type binaryProblem struct {
	kernel  *rbfKernel
	y       []float64 // ±1
	c       float64
	eps     float64
	maxIter int
}

type binarySolution struct {
	alpha     []float64
	rho       float64
	iter      int
	converged bool
}

func (p *binaryProblem) upper(a float64) bool { return a >= p.c }
func (p *binaryProblem) lower(a float64) bool { return a <= 0 }

func (p *binaryProblem) solve() binarySolution {
	n := len(p.y)
	alpha := make([]float64, n)
	grad := make([]float64, n)
	for i := range grad {
		grad[i] = -1
	}

	sol := binarySolution{alpha: alpha}
	for sol.iter < p.maxIter {
		i, j, ok := p.selectPair(alpha, grad)
		if !ok {
			sol.converged = true
			break
		}
		sol.iter++

		ki := p.kernel.row(i)
		kj := p.kernel.row(j)
		yi, yj := p.y[i], p.y[j]
		oldI, oldJ := alpha[i], alpha[j]
		qii, qjj := ki[i], kj[j]
		qij := yi * yj * ki[j]

		if yi != yj {
			quad := qii + qjj + 2*qij
			if quad <= 0 {
				quad = tau
			}
			delta := (-grad[i] - grad[j]) / quad
			diff := alpha[i] - alpha[j]
			alpha[i] += delta
			alpha[j] += delta
			if diff > 0 {
				if alpha[j] < 0 {
					alpha[j] = 0
					alpha[i] = diff
				}
			} else if alpha[i] < 0 {
				alpha[i] = 0
				alpha[j] = -diff
			}
			if diff > 0 {
				if alpha[i] > p.c {
					alpha[i] = p.c
					alpha[j] = p.c - diff
				}
			} else if alpha[j] > p.c {
				alpha[j] = p.c
				alpha[i] = p.c + diff
			}
		} else {
			quad := qii + qjj - 2*qij
			if quad <= 0 {
				quad = tau
			}
			delta := (grad[i] - grad[j]) / quad
			sum := alpha[i] + alpha[j]
			alpha[i] -= delta
			alpha[j] += delta
			if sum > p.c {
				if alpha[i] > p.c {
					alpha[i] = p.c
					alpha[j] = sum - p.c
				}
				if alpha[j] > p.c {
					alpha[j] = p.c
					alpha[i] = sum - p.c
				}
			} else {
				if alpha[j] < 0 {
					alpha[j] = 0
					alpha[i] = sum
				}
				if alpha[i] < 0 {
					alpha[i] = 0
					alpha[j] = sum
				}
			}
		}

		dI, dJ := alpha[i]-oldI, alpha[j]-oldJ
		for t := 0; t < n; t++ {
			grad[t] += p.y[t] * (yi*ki[t]*dI + yj*kj[t]*dJ)
		}
	}
	sol.rho = p.rho(alpha, grad)
	return sol
}

// selectPair returns the maximal violating pair, or ok=false once the
// KKT gap is below eps.
func (p *binaryProblem) selectPair(alpha, grad []float64) (int, int, bool) {
	gmax, gmax2 := math.Inf(-1), math.Inf(-1)
	i, j := -1, -1
	for t, yt := range p.y {
		if yt > 0 {
			if !p.upper(alpha[t]) && -grad[t] >= gmax {
				gmax, i = -grad[t], t
			}
			if !p.lower(alpha[t]) && grad[t] >= gmax2 {
				gmax2, j = grad[t], t
			}
		} else {
			if !p.lower(alpha[t]) && grad[t] >= gmax {
				gmax, i = grad[t], t
			}
			if !p.upper(alpha[t]) && -grad[t] >= gmax2 {
				gmax2, j = -grad[t], t
			}
		}
	}
	if i < 0 || j < 0 || gmax+gmax2 < p.eps {
		return -1, -1, false
	}
	return i, j, true
}

func (p *binaryProblem) rho(alpha, grad []float64) float64 {
	ub, lb := math.Inf(1), math.Inf(-1)
	free, sumFree := 0, 0.0
	for t, yt := range p.y {
		yg := yt * grad[t]
		switch {
		case p.upper(alpha[t]):
			if yt < 0 {
				ub = math.Min(ub, yg)
			} else {
				lb = math.Max(lb, yg)
			}
		case p.lower(alpha[t]):
			if yt > 0 {
				ub = math.Min(ub, yg)
			} else {
				lb = math.Max(lb, yg)
			}
		default:
			free++
			sumFree += yg
		}
	}
	if free > 0 {
		return sumFree / float64(free)
	}
	return (ub + lb) / 2
}
