// Package plot renders diagnostic charts as standalone HTML pages.
package plot

import (
	"bytes"
	"io"
	"math"
	"sort"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/rotisserie/eris"

	"github.com/sells-group/urban-texture/internal/cluster"
	"github.com/sells-group/urban-texture/internal/interpret"
	"github.com/sells-group/urban-texture/internal/layer"
)

// Analysis plot names.
const (
	NameFlexibility = "flexibility"
	NameVIF         = "vif"
	NameImportance  = "importance"
	NameSilhouette  = "silhouette"
)

// ErrUnknownPlot is returned by Analysis for names it does not know.
var ErrUnknownPlot = eris.New("plot: unknown plot")

type renderer interface {
	Render(w io.Writer) error
}

func render(c renderer) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.Render(&buf); err != nil {
		return nil, eris.Wrap(err, "plot: render")
	}
	return buf.Bytes(), nil
}

// value maps non-finite numbers to echarts' missing marker.
func value(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "-"
	}
	return v
}

// Recommendation draws the mean Davies-Bouldin score and mean silhouette
// against the candidate cluster count.
func Recommendation(rec *cluster.Recommendation) ([]byte, error) {
	if rec == nil {
		return nil, eris.New("plot: no recommendation")
	}
	ks := make([]string, len(rec.Candidates))
	db := make([]opts.LineData, len(rec.Candidates))
	sil := make([]opts.LineData, len(rec.Candidates))
	for i, c := range rec.Candidates {
		ks[i] = strconv.Itoa(c.K)
		db[i] = opts.LineData{Value: value(float64(c.MeanScore))}
		sil[i] = opts.LineData{Value: value(float64(c.MeanSilhouette))}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Davies-Bouldin score by number of clusters"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "clusters"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "score"}),
	)
	line.SetXAxis(ks).
		AddSeries("Davies-Bouldin", db).
		AddSeries("Silhouette", sil)
	return render(line)
}

// Clusters scatters the bounding-box centre of every labeled feature,
// one series per cluster. Rows without a label or geometry are left out.
func Clusters(c *cluster.Classification, geomCol string) ([]byte, error) {
	if c == nil || c.Table == nil {
		return nil, eris.New("plot: nothing classified")
	}
	labels, err := c.Table.Column(cluster.ClusterColumn)
	if err != nil {
		return nil, eris.Wrap(err, "plot: cluster column")
	}
	geoms, err := c.Table.Column(geomCol)
	if err != nil {
		return nil, eris.Wrapf(err, "plot: geometry column %q", geomCol)
	}

	series := make(map[int][]opts.ScatterData)
	for i, lv := range labels {
		label, err := strconv.Atoi(lv)
		if err != nil {
			continue
		}
		g, err := layer.ParseWKT(geoms[i])
		if err != nil {
			continue
		}
		x, y, ok := layer.Center(g)
		if !ok {
			continue
		}
		series[label] = append(series[label], opts.ScatterData{Value: []interface{}{x, y}, SymbolSize: 3})
	}

	keys := make([]int, 0, len(series))
	for k := range series {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Urban types (" + strconv.Itoa(c.K) + " clusters)"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Scale: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Scale: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	for _, k := range keys {
		scatter.AddSeries("Cluster "+strconv.Itoa(k), series[k])
	}
	return render(scatter)
}

func bar(title, seriesName string, s interpret.Series) ([]byte, error) {
	names := make([]string, len(s))
	data := make([]opts.BarData, len(s))
	for i, mv := range s {
		names[i] = mv.Metric
		data[i] = opts.BarData{Value: value(float64(mv.Value))}
	}

	b := charts.NewBar()
	b.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	b.SetXAxis(names).AddSeries(seriesName, data)
	b.XYReversal()
	return render(b)
}

// Flexibility draws the five most and five least flexible metrics overall.
func Flexibility(r *interpret.Report) ([]byte, error) {
	s := append(append(interpret.Series(nil), r.OverallTop...), r.OverallBottom...)
	return bar("Overall flexibility: most and least flexible metrics", "Flexibility", s)
}

// VIF draws the mean variance inflation factor of each metric.
func VIF(r *interpret.Report) ([]byte, error) {
	return bar("Mean VIF per metric", "VIF", r.MeanVIF.Descending())
}

// Importance draws the top-N metrics by importance.
func Importance(r *interpret.Report) ([]byte, error) {
	return bar("Feature importance", "Importance", r.TopImportance)
}

// Silhouette draws the average silhouette value of each cluster.
func Silhouette(r *interpret.Report) ([]byte, error) {
	if r.Silhouette == nil {
		return nil, eris.New("plot: report has no silhouette scores")
	}
	sums := make(map[int]float64)
	counts := make(map[int]int)
	for i, l := range r.Silhouette.Labels {
		sums[l] += r.Silhouette.Values[i]
		counts[l]++
	}
	keys := make([]int, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	metrics := make([]string, 0, len(keys))
	values := make([]float64, 0, len(keys))
	for _, k := range keys {
		metrics = append(metrics, "Cluster "+strconv.Itoa(k))
		values = append(values, sums[k]/float64(counts[k]))
	}
	return bar("Average silhouette per cluster", "Silhouette", interpret.NewSeries(metrics, values))
}

// Analysis renders the named analysis plot.
func Analysis(name string, r *interpret.Report) ([]byte, error) {
	if r == nil {
		return nil, eris.New("plot: no analysis")
	}
	switch name {
	case NameFlexibility:
		return Flexibility(r)
	case NameVIF:
		return VIF(r)
	case NameImportance:
		return Importance(r)
	case NameSilhouette:
		return Silhouette(r)
	default:
		return nil, eris.Wrapf(ErrUnknownPlot, "plot: %q", name)
	}
}
