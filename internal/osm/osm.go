// Package osm loads street networks from the Overpass API.
package osm

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/serjvanilla/go-overpass"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/urban-texture/internal/layer"
)

// DefaultEndpoint is the public Overpass interpreter.
const DefaultEndpoint = "https://overpass-api.de/api/interpreter"

// RoadColumns are the attribute columns of a roads layer.
var RoadColumns = []string{"osm_id", "highway", "name"}

// BBox is a WGS84 bounding box.
type BBox struct {
	South, West, North, East float64
}

// ParseBBox reads "south,west,north,east".
func ParseBBox(s string) (BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return BBox{}, eris.Errorf("osm: bbox %q must be south,west,north,east", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return BBox{}, eris.Wrapf(err, "osm: bbox %q", s)
		}
		v[i] = f
	}
	b := BBox{South: v[0], West: v[1], North: v[2], East: v[3]}
	if b.South >= b.North || b.West >= b.East {
		return BBox{}, eris.Errorf("osm: bbox %q is empty", s)
	}
	return b, nil
}

func (b BBox) String() string {
	return fmt.Sprintf("%g,%g,%g,%g", b.South, b.West, b.North, b.East)
}

// Loader queries Overpass with a shared rate limit.
type Loader struct {
	client  *overpass.Client
	limiter *rate.Limiter
	timeout time.Duration
	retry   RetryConfig
}

// NewLoader creates a loader for endpoint allowing rps queries per second.
func NewLoader(endpoint string, timeout time.Duration, rps float64) *Loader {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if rps <= 0 {
		rps = 1
	}
	hc := &http.Client{
		Timeout:   timeout,
		Transport: &statusTransport{base: http.DefaultTransport},
	}
	client := overpass.NewWithSettings(endpoint, 1, hc)
	return &Loader{
		client:  &client,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		timeout: timeout,
		retry:   DefaultRetry(),
	}
}

// WithRetry replaces the retry policy.
func (l *Loader) WithRetry(cfg RetryConfig) *Loader {
	l.retry = cfg
	return l
}

// RoadsQuery builds the Overpass QL for highway ways in b. An empty filter
// matches every highway value; otherwise it is a regular expression.
func RoadsQuery(b BBox, filter string) string {
	selector := `way["highway"]`
	if filter != "" {
		selector = fmt.Sprintf(`way["highway"~"%s"]`, filter)
	}
	return fmt.Sprintf("[out:json];\n(\n\t%s(%s);\n);\nout body;\n>;\nout skel qt;\n", selector, b)
}

// Roads fetches the street network inside b as a layer of LineStrings in
// WGS84, ordered by way id.
func (l *Loader) Roads(ctx context.Context, b BBox, filter string) (*layer.Layer, error) {
	q := RoadsQuery(b, filter)
	res, err := withRetry(ctx, l.retry, func(ctx context.Context) (*overpass.Result, error) {
		if err := l.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "osm: rate limit")
		}
		return l.query(ctx, q)
	})
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(res.Ways))
	for id := range res.Ways {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := &layer.Layer{Name: "roads", Columns: RoadColumns, SRID: 4326}
	skipped := 0
	for _, id := range ids {
		way := res.Ways[id]
		if way == nil || way.Tags["highway"] == "" || len(way.Nodes) < 2 {
			skipped++
			continue
		}
		flat := make([]float64, 0, 2*len(way.Nodes))
		for _, n := range way.Nodes {
			flat = append(flat, n.Lon, n.Lat)
		}
		out.Rows = append(out.Rows, []string{
			strconv.FormatInt(way.ID, 10),
			way.Tags["highway"],
			way.Tags["name"],
		})
		out.Geoms = append(out.Geoms, geom.NewLineStringFlat(geom.XY, flat))
	}

	zap.L().Info("osm: roads loaded",
		zap.Stringer("bbox", b),
		zap.Int("ways", out.Len()),
		zap.Int("skipped", skipped),
	)
	return out, nil
}

func (l *Loader) query(ctx context.Context, q string) (*overpass.Result, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	type reply struct {
		res overpass.Result
		err error
	}
	ch := make(chan reply, 1)
	go func() {
		res, err := l.client.Query(q)
		ch <- reply{res, err}
	}()

	select {
	case <-ctx.Done():
		return nil, eris.Wrap(ctx.Err(), "osm: overpass query")
	case r := <-ch:
		if r.err != nil {
			return nil, eris.Wrap(r.err, "osm: overpass query")
		}
		return &r.res, nil
	}
}
