// Package sparse builds 0/1 adjacency matrices on top of
// github.com/james-bowman/sparse and raises them to integer powers.
//
// Entry (i, j) of A^k counts the walks of exactly k steps from i to j in the
// graph whose adjacency is A, so its nonzero pattern is the k-step
// reachability relation.
package sparse

import (
	"errors"
	"fmt"
	"slices"

	"github.com/james-bowman/sparse"
)

// #region errors
var (
	// ErrDimensionMismatch is returned when operand shapes are incompatible.
	ErrDimensionMismatch = errors.New("sparse: dimension mismatch")

	// ErrInvalidExponent is returned by Pow for exponents below 1.
	ErrInvalidExponent = errors.New("sparse: exponent must be positive")

	// ErrIndexOutOfRange is returned when a column index falls outside the matrix.
	ErrIndexOutOfRange = errors.New("sparse: index out of range")
)

// #endregion errors

// #region constructors
// FromRows builds a rows x cols CSR matrix where adj[i] lists the set columns
// of row i; every set entry is 1. Column lists may be unsorted and contain
// duplicates.
func FromRows(rows, cols int, adj [][]int) (*sparse.CSR, error) {
	if rows < 0 || cols < 0 {
		return nil, fmt.Errorf("%w: negative shape %dx%d", ErrDimensionMismatch, rows, cols)
	}
	if len(adj) != rows {
		return nil, fmt.Errorf("%w: %d row lists for %d rows", ErrDimensionMismatch, len(adj), rows)
	}

	indptr := make([]int, rows+1)
	var indices []int
	for i, row := range adj {
		set := slices.Clone(row)
		slices.Sort(set)
		set = slices.Compact(set)
		for _, j := range set {
			if j < 0 || j >= cols {
				return nil, fmt.Errorf("%w: (%d, %d) in %dx%d", ErrIndexOutOfRange, i, j, rows, cols)
			}
		}
		indices = append(indices, set...)
		indptr[i+1] = len(indices)
	}

	data := make([]float64, len(indices))
	for i := range data {
		data[i] = 1
	}
	return sparse.NewCSR(rows, cols, indptr, indices, data), nil
}

// #endregion constructors

// #region pow
// Pow returns a^k for a square matrix and k >= 1 using repeated squaring.
func Pow(a *sparse.CSR, k int) (*sparse.CSR, error) {
	r, c := a.Dims()
	if r != c {
		return nil, fmt.Errorf("%w: power of non-square %dx%d", ErrDimensionMismatch, r, c)
	}
	if k < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidExponent, k)
	}
	if r == 0 {
		return a, nil
	}

	var result *sparse.CSR
	base := a
	for {
		if k&1 == 1 {
			if result == nil {
				result = base
			} else {
				next := &sparse.CSR{}
				next.Mul(result, base)
				result = next
			}
		}
		k >>= 1
		if k == 0 {
			return result, nil
		}
		sq := &sparse.CSR{}
		sq.Mul(base, base)
		base = sq
	}
}

// #endregion pow

// #region rows
// RowSets returns the nonzero columns of every row in ascending order.
func RowSets(m *sparse.CSR) [][]int {
	rows, _ := m.Dims()
	out := make([][]int, rows)
	m.DoNonZero(func(i, j int, v float64) {
		if v != 0 {
			out[i] = append(out[i], j)
		}
	})
	for _, row := range out {
		slices.Sort(row)
	}
	return out
}

// #endregion rows
