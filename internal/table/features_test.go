package table

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricColumns(t *testing.T) {
	tbl := readString(t, ",uID,area,label,height,geometry,Unnamed: 0,empty\n"+
		"0,1,10,a,3,POINT (0 0),0,\n"+
		"1,2,nan,b,4,POINT (1 1),1,\n")

	metrics := MetricColumns(tbl, FeatureOptions{IDColumn: "uID", GeometryColumn: "geometry"})
	assert.Equal(t, []string{"area", "height"}, metrics)
}

func TestMetricColumns_Exclude(t *testing.T) {
	tbl := readString(t, "uID,area,height\n1,2,3\n")
	metrics := MetricColumns(tbl, FeatureOptions{IDColumn: "uID", Exclude: []string{"height"}})
	assert.Equal(t, []string{"area"}, metrics)
}

func TestFeatures_ImputesMean(t *testing.T) {
	tbl := readString(t, "a,b\n1,4\n,6\n3,NaN\n")
	m, err := tbl.Features([]string{"a", "b"})
	require.NoError(t, err)

	assert.Equal(t, 3, m.Rows())
	assert.InDelta(t, 2.0, m.Data[1][0], 1e-12)
	assert.InDelta(t, 5.0, m.Data[2][1], 1e-12)
	assert.Equal(t, []float64{1, 2, 3}, m.Column(0))
}

func TestFeatures_NonFinite(t *testing.T) {
	tests := []struct {
		name string
		cell string
	}{
		{"inf", "inf"},
		{"negative infinity", "-Infinity"},
		{"upper case", "INF"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := readString(t, "uID,ratio,only\n1,2,"+tt.cell+"\n2,"+tt.cell+","+tt.cell+"\n3,4,"+tt.cell+"\n")

			metrics := MetricColumns(tbl, FeatureOptions{IDColumn: "uID"})
			assert.Equal(t, []string{"ratio"}, metrics, "a column with no finite value is not a metric")

			m, err := tbl.Features(metrics)
			require.NoError(t, err)
			assert.Equal(t, []float64{2, 3, 4}, m.Column(0))
			for _, v := range m.Column(0) {
				assert.False(t, math.IsInf(v, 0))
			}
		})
	}
}

func TestFeatures_Errors(t *testing.T) {
	tbl := readString(t, "a,b\n1,x\n")

	_, err := tbl.Features(nil)
	require.Error(t, err)

	_, err = tbl.Features([]string{"c"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	_, err = tbl.Features([]string{"b"})
	require.Error(t, err)
}

func TestStandardize(t *testing.T) {
	m := &Matrix{Metrics: []string{"x", "const"}, Data: [][]float64{{1, 5}, {2, 5}, {3, 5}}}
	s := Standardize(m)

	col := s.Column(0)
	var sum, sq float64
	for _, v := range col {
		sum += v
		sq += v * v
	}
	assert.InDelta(t, 0, sum, 1e-12)
	assert.InDelta(t, 1, sq/3, 1e-12)
	assert.Equal(t, []float64{0, 0, 0}, s.Column(1))
	assert.False(t, math.IsNaN(s.Data[0][1]))
	// Original is untouched.
	assert.Equal(t, 1.0, m.Data[0][0])
}

func TestSubset(t *testing.T) {
	m := &Matrix{Metrics: []string{"x"}, Data: [][]float64{{1}, {2}, {3}}}
	sub := m.Subset([]int{2, 0})
	assert.Equal(t, []float64{3, 1}, sub.Column(0))
}

func TestIsIndexColumn(t *testing.T) {
	assert.True(t, IsIndexColumn(""))
	assert.True(t, IsIndexColumn("Unnamed: 0"))
	assert.False(t, IsIndexColumn("uID"))
}

func TestFloat_JSON(t *testing.T) {
	data, err := json.Marshal([]Float{1.5, Float(math.NaN()), Float(math.Inf(1))})
	require.NoError(t, err)
	assert.Equal(t, "[1.5,null,null]", string(data))

	var back []Float
	require.NoError(t, json.Unmarshal(data, &back))
	require.Len(t, back, 3)
	assert.Equal(t, Float(1.5), back[0])
	assert.True(t, math.IsNaN(float64(back[1])))
}
