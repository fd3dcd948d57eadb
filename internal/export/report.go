package export

import (
	"io"
	"math"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/urban-texture/internal/cluster"
	"github.com/sells-group/urban-texture/internal/interpret"
)

// Report sheet names.
const (
	SheetClusters    = "Clusters"
	SheetFlexibility = "Flexibility"
	SheetOverall     = "Overall Flexibility"
	SheetVIF         = "VIF"
	SheetImportance  = "Importance"
)

// Workbook lays the interpretation out as an XLSX workbook.
func Workbook(c *cluster.Classification, r *interpret.Report) (*xlsx.File, error) {
	if c == nil || r == nil {
		return nil, eris.New("export: nothing analysed")
	}
	f := xlsx.NewFile()

	sheet, err := f.AddSheet(SheetClusters)
	if err != nil {
		return nil, eris.Wrap(err, "export: add sheet")
	}
	addRow(sheet, "Cluster", "Size", "IQR Outliers", "LOF Outliers")
	for _, cr := range r.Clusters {
		row := sheet.AddRow()
		row.AddCell().SetInt(cr.Cluster)
		row.AddCell().SetInt(cr.Size)
		row.AddCell().SetInt(len(cr.Outliers))
		row.AddCell().SetInt(len(cr.LOFOutliers))
	}
	row := sheet.AddRow()
	row.AddCell().SetString("Family")
	row.AddCell().SetString(c.Family)
	row = sheet.AddRow()
	row.AddCell().SetString("Seed")
	row.AddCell().SetInt64(c.Seed)

	if sheet, err = f.AddSheet(SheetFlexibility); err != nil {
		return nil, eris.Wrap(err, "export: add sheet")
	}
	addRow(sheet, FlexibilityColumns...)
	ft := FlexibilityTable(r)
	for _, rr := range ft.Rows {
		row := sheet.AddRow()
		cl, _ := strconv.Atoi(rr[0])
		row.AddCell().SetInt(cl)
		row.AddCell().SetString(rr[1])
		setFloat(row.AddCell(), parseFloat(rr[2]))
	}

	if sheet, err = f.AddSheet(SheetOverall); err != nil {
		return nil, eris.Wrap(err, "export: add sheet")
	}
	addRow(sheet, "Metric", "Mean Flexibility", "Rank")
	for _, mv := range r.OverallFlexibility.Descending() {
		row := sheet.AddRow()
		row.AddCell().SetString(mv.Metric)
		setFloat(row.AddCell(), float64(mv.Value))
		rank := ""
		if contains(r.OverallTop, mv.Metric) {
			rank = "top"
		} else if contains(r.OverallBottom, mv.Metric) {
			rank = "bottom"
		}
		row.AddCell().SetString(rank)
	}

	if sheet, err = f.AddSheet(SheetVIF); err != nil {
		return nil, eris.Wrap(err, "export: add sheet")
	}
	header := []string{"Metric", "Mean VIF"}
	for _, cr := range r.Clusters {
		header = append(header, "Cluster "+strconv.Itoa(cr.Cluster))
	}
	addRow(sheet, header...)
	for _, mv := range r.MeanVIF {
		row := sheet.AddRow()
		row.AddCell().SetString(mv.Metric)
		setFloat(row.AddCell(), float64(mv.Value))
		for _, cr := range r.Clusters {
			setFloat(row.AddCell(), cr.VIF.Get(mv.Metric))
		}
	}

	if sheet, err = f.AddSheet(SheetImportance); err != nil {
		return nil, eris.Wrap(err, "export: add sheet")
	}
	addRow(sheet, "Metric", "Importance")
	for _, mv := range r.Importance {
		row := sheet.AddRow()
		row.AddCell().SetString(mv.Metric)
		setFloat(row.AddCell(), float64(mv.Value))
	}

	return f, nil
}

// Report writes the XLSX interpretation report to w.
func Report(w io.Writer, c *cluster.Classification, r *interpret.Report) error {
	f, err := Workbook(c, r)
	if err != nil {
		return err
	}
	return eris.Wrap(f.Write(w), "export: write xlsx")
}

// ReportFile saves the XLSX interpretation report at path.
func ReportFile(path string, c *cluster.Classification, r *interpret.Report) error {
	f, err := Workbook(c, r)
	if err != nil {
		return err
	}
	return eris.Wrapf(f.Save(path), "export: save %s", path)
}

func addRow(sheet *xlsx.Sheet, cells ...string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().SetString(c)
	}
}

// setFloat leaves non-finite values blank.
func setFloat(cell *xlsx.Cell, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		cell.SetString("")
		return
	}
	cell.SetFloat(v)
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

func contains(s interpret.Series, metric string) bool {
	for _, mv := range s {
		if mv.Metric == metric {
			return true
		}
	}
	return false
}
