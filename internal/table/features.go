package table

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/stat"
)

// FeatureOptions names the non-metric columns of a feature table.
type FeatureOptions struct {
	IDColumn       string
	GeometryColumn string
	Exclude        []string
}

// Matrix is a dense rows x metrics view of a table.
type Matrix struct {
	Metrics []string
	Data    [][]float64
}

var indexColumn = regexp.MustCompile(`^Unnamed: \d+$`)

// IsIndexColumn reports whether name is a serialized dataframe index column.
func IsIndexColumn(name string) bool {
	return strings.TrimSpace(name) == "" || indexColumn.MatchString(name)
}

// IsMissing reports whether a cell holds no value.
func IsMissing(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "nan", "na", "null", "none":
		return true
	}
	return false
}

// parseMetric reads a numeric cell. Missing cells and non-finite values
// such as "inf" report present == false and are imputed like gaps.
func parseMetric(v string) (f float64, present bool, err error) {
	if IsMissing(v) {
		return 0, false, nil
	}
	f, err = strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, false, err
	}
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false, nil
	}
	return f, true, nil
}

// MetricColumns returns the numeric columns of t usable as clustering features,
// in table order. A column qualifies when every non-missing value parses as a
// float and at least one finite value is present.
func MetricColumns(t *Table, opts FeatureOptions) []string {
	skip := make(map[string]bool, len(opts.Exclude)+2)
	for _, c := range opts.Exclude {
		skip[c] = true
	}
	if opts.IDColumn != "" {
		skip[opts.IDColumn] = true
	}
	if opts.GeometryColumn != "" {
		skip[opts.GeometryColumn] = true
	}

	var metrics []string
	for i, name := range t.Columns {
		if skip[name] || IsIndexColumn(name) {
			continue
		}
		numeric, seen := true, false
		for _, row := range t.Rows {
			_, present, err := parseMetric(row[i])
			if err != nil {
				numeric = false
				break
			}
			seen = seen || present
		}
		if numeric && seen {
			metrics = append(metrics, name)
		}
	}
	return metrics
}

// Features builds the numeric matrix for the given metric columns. Missing
// and non-finite cells are imputed with the column mean of the finite values.
func (t *Table) Features(metrics []string) (*Matrix, error) {
	if len(metrics) == 0 {
		return nil, eris.New("table: no metric columns")
	}
	cols := make([]int, len(metrics))
	for j, m := range metrics {
		cols[j] = t.ColumnIndex(m)
		if cols[j] < 0 {
			return nil, eris.Errorf("table: metric column %q not found", m)
		}
	}

	data := make([][]float64, len(t.Rows))
	for r := range data {
		data[r] = make([]float64, len(metrics))
	}

	for j, c := range cols {
		var sum float64
		var n int
		var missing []int
		for r, row := range t.Rows {
			f, present, err := parseMetric(row[c])
			if err != nil {
				return nil, eris.Wrapf(err, "table: parse %q row %d", metrics[j], r)
			}
			if !present {
				missing = append(missing, r)
				continue
			}
			data[r][j] = f
			sum += f
			n++
		}
		var mean float64
		if n > 0 {
			mean = sum / float64(n)
		}
		for _, r := range missing {
			data[r][j] = mean
		}
	}

	return &Matrix{Metrics: append([]string(nil), metrics...), Data: data}, nil
}

// Rows returns the number of samples.
func (m *Matrix) Rows() int { return len(m.Data) }

// Column copies metric j across all rows.
func (m *Matrix) Column(j int) []float64 {
	out := make([]float64, len(m.Data))
	for i, row := range m.Data {
		out[i] = row[j]
	}
	return out
}

// Subset returns the matrix restricted to the given rows. Rows are shared, not copied.
func (m *Matrix) Subset(rows []int) *Matrix {
	data := make([][]float64, len(rows))
	for i, r := range rows {
		data[i] = m.Data[r]
	}
	return &Matrix{Metrics: m.Metrics, Data: data}
}

// Standardize returns a z-scored copy of m using the population standard
// deviation. Constant columns become zero.
func Standardize(m *Matrix) *Matrix {
	out := &Matrix{Metrics: m.Metrics, Data: make([][]float64, len(m.Data))}
	for i := range out.Data {
		out.Data[i] = make([]float64, len(m.Metrics))
	}
	for j := range m.Metrics {
		col := m.Column(j)
		mean, variance := stat.PopMeanVariance(col, nil)
		sd := math.Sqrt(variance)
		for i, v := range col {
			if sd == 0 || math.IsNaN(sd) {
				out.Data[i][j] = 0
				continue
			}
			out.Data[i][j] = (v - mean) / sd
		}
	}
	return out
}
