package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// GatherColumns returns a new batch whose column i is column cols[i] of x.
//
// The same index may appear more than once. x is not modified.
func GatherColumns(x *mat.Dense, cols []int) (*mat.Dense, error) {
	r, c := x.Dims()
	if len(cols) == 0 {
		return nil, fmt.Errorf("GatherColumns: empty column selection")
	}
	for _, j := range cols {
		if j < 0 || j >= c {
			return nil, fmt.Errorf("GatherColumns: column %d out of range [0, %d)", j, c)
		}
	}

	out := mat.NewDense(r, len(cols), nil)
	for i := 0; i < r; i++ {
		src := x.RawRowView(i)
		dst := out.RawRowView(i)
		for k, j := range cols {
			dst[k] = src[j]
		}
	}
	return out, nil
}

// Range returns the index sequence [start, start+n).
func Range(start, n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = start + i
	}
	return idx
}
