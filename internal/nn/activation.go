package nn

import "gonum.org/v1/gonum/mat"

// ReLU applies max(0, x) element-wise to m in place.
//
// Only call it on matrices owned by the caller.
func ReLU(m *mat.Dense) {
	r, _ := m.Dims()
	for i := 0; i < r; i++ {
		row := m.RawRowView(i)
		for j, v := range row {
			if v < 0 {
				row[j] = 0
			}
		}
	}
}
