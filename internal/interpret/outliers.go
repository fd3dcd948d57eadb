package interpret

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// IQRResult lists rows outside the Tukey fences of any metric.
type IQRResult struct {
	// Outliers are positions in the input matrix, ascending.
	Outliers []int
	// Influence counts, per metric, the rows whose value broke its fences.
	Influence []int
}

// IQROutliers flags rows with any metric outside [Q1 - k·IQR, Q3 + k·IQR].
func IQROutliers(data [][]float64, p int, k float64) IQRResult {
	res := IQRResult{Influence: make([]int, p)}
	if len(data) == 0 {
		return res
	}

	flagged := make([]bool, len(data))
	col := make([]float64, len(data))
	for j := 0; j < p; j++ {
		for i, row := range data {
			col[i] = row[j]
		}
		sorted := append([]float64(nil), col...)
		sort.Float64s(sorted)
		q1, q3 := quantile(sorted, 0.25), quantile(sorted, 0.75)
		iqr := q3 - q1
		lo, hi := q1-k*iqr, q3+k*iqr
		for i, v := range col {
			if v < lo || v > hi {
				flagged[i] = true
				res.Influence[j]++
			}
		}
	}
	for i, f := range flagged {
		if f {
			res.Outliers = append(res.Outliers, i)
		}
	}
	return res
}

// quantile interpolates linearly between order statistics at position
// p·(n-1) (Hyndman-Fan type 7).
func quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	pos := p * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// LOFResult holds local outlier factors of a member matrix.
type LOFResult struct {
	Neighbors int
	Scores    []float64
	// Outliers are positions whose factor exceeds the threshold, ascending.
	Outliers []int
}

// LocalOutlierFactor scores every row against its min(neighbors, n-1)
// nearest rows. It returns nil for fewer than three rows.
func LocalOutlierFactor(data [][]float64, neighbors int, threshold float64) *LOFResult {
	n := len(data)
	if n < 3 {
		return nil
	}
	k := min(neighbors, n-1)
	if k < 1 {
		k = 1
	}

	nbrIdx := make([][]int, n)
	nbrDist := make([][]float64, n)
	order := make([]int, 0, n-1)
	dists := make([]float64, n)
	for i, p := range data {
		order = order[:0]
		for j, q := range data {
			if j == i {
				continue
			}
			dists[j] = floats.Distance(p, q, 2)
			order = append(order, j)
		}
		sort.SliceStable(order, func(a, b int) bool {
			return dists[order[a]] < dists[order[b]]
		})
		nbrIdx[i] = append([]int(nil), order[:k]...)
		nbrDist[i] = make([]float64, k)
		for c, j := range nbrIdx[i] {
			nbrDist[i][c] = dists[j]
		}
	}

	kDist := make([]float64, n)
	for i := range data {
		kDist[i] = nbrDist[i][k-1]
	}

	lrd := make([]float64, n)
	for i := range data {
		var reach float64
		for c, j := range nbrIdx[i] {
			reach += math.Max(kDist[j], nbrDist[i][c])
		}
		lrd[i] = 1 / (reach/float64(k) + 1e-10)
	}

	res := &LOFResult{Neighbors: k, Scores: make([]float64, n)}
	for i := range data {
		var sum float64
		for _, j := range nbrIdx[i] {
			sum += lrd[j]
		}
		res.Scores[i] = sum / float64(k) / lrd[i]
		if res.Scores[i] > threshold {
			res.Outliers = append(res.Outliers, i)
		}
	}
	return res
}
