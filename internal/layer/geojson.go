package layer

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/urban-texture/internal/table"
)

// FeatureCollection converts l to GeoJSON features. Attribute values that
// parse as numbers become numbers, missing values become null. Features
// without geometry keep a null geometry.
func (l *Layer) FeatureCollection() *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, l.Len())}
	for r, attrs := range l.Rows {
		props := make(map[string]interface{}, len(l.Columns))
		for j, c := range l.Columns {
			props[c] = property(attrs[j])
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         strconv.Itoa(r),
			Geometry:   l.Geoms[r],
			Properties: props,
		})
	}
	return fc
}

// MarshalGeoJSON encodes l as a GeoJSON FeatureCollection.
func (l *Layer) MarshalGeoJSON() ([]byte, error) {
	b, err := json.Marshal(l.FeatureCollection())
	if err != nil {
		return nil, eris.Wrap(err, "layer: encode geojson")
	}
	return b, nil
}

func property(v string) interface{} {
	if table.IsMissing(v) {
		return nil
	}
	if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && !math.IsInf(f, 0) {
		return f
	}
	return v
}
