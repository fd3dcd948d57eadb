package interpret

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// VIF returns the variance inflation factor of every column of data, the
// diagonal of the inverse correlation matrix of the non-constant columns.
// Constant columns get NaN. A singular correlation matrix gives +Inf for
// every non-constant column.
func VIF(data [][]float64, p int) []float64 {
	out := make([]float64, p)
	for j := range out {
		out[j] = math.NaN()
	}
	n := len(data)
	if n < 2 {
		return out
	}

	var live []int
	for j := 0; j < p; j++ {
		first := data[0][j]
		for _, row := range data[1:] {
			if row[j] != first {
				live = append(live, j)
				break
			}
		}
	}
	switch len(live) {
	case 0:
		return out
	case 1:
		out[live[0]] = 1
		return out
	}

	x := mat.NewDense(n, len(live), nil)
	for i, row := range data {
		for c, j := range live {
			x.Set(i, c, row[j])
		}
	}

	var corr mat.SymDense
	stat.CorrelationMatrix(&corr, x, nil)

	var inv mat.Dense
	if err := inv.Inverse(&corr); err != nil {
		// mat.Condition: singular or too ill-conditioned to trust.
		for _, j := range live {
			out[j] = math.Inf(1)
		}
		return out
	}
	for c, j := range live {
		out[j] = inv.At(c, c)
	}
	return out
}

// Correlation returns the Pearson correlation matrix of the columns of
// data. Entries involving a constant column are NaN.
func Correlation(data [][]float64, p int) [][]float64 {
	out := make([][]float64, p)
	for j := range out {
		out[j] = make([]float64, p)
		for k := range out[j] {
			out[j][k] = math.NaN()
		}
	}
	if len(data) < 2 || p == 0 {
		return out
	}

	x := mat.NewDense(len(data), p, nil)
	for i, row := range data {
		x.SetRow(i, row)
	}
	var corr mat.SymDense
	stat.CorrelationMatrix(&corr, x, nil)
	for j := 0; j < p; j++ {
		for k := 0; k < p; k++ {
			out[j][k] = corr.At(j, k)
		}
	}
	return out
}
