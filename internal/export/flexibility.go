package export

import (
	"io"
	"math"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/urban-texture/internal/interpret"
	"github.com/sells-group/urban-texture/internal/table"
)

// FlexibilityColumns is the header of the flexibility CSV.
var FlexibilityColumns = []string{"Cluster", "Metric", "Flexibility Score"}

// FlexibilityTable lists every cluster's flexibility scores, highest first
// within each cluster.
func FlexibilityTable(r *interpret.Report) *table.Table {
	var rows [][]string
	for _, c := range r.Clusters {
		cl := strconv.Itoa(c.Cluster)
		for _, mv := range c.Flexibility.Descending() {
			rows = append(rows, []string{cl, mv.Metric, formatFloat(float64(mv.Value))})
		}
	}
	return table.New(append([]string(nil), FlexibilityColumns...), rows)
}

// FlexibilityCSV writes FlexibilityTable to w.
func FlexibilityCSV(w io.Writer, r *interpret.Report) error {
	if r == nil {
		return eris.New("export: nothing analysed")
	}
	return table.WriteCSV(w, FlexibilityTable(r))
}

func formatFloat(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
