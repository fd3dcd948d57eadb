// Package api exposes the classification workflow over HTTP. Every route
// below /sessions/{id} acts on one session's state.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sells-group/urban-texture/internal/metrics"
	"github.com/sells-group/urban-texture/internal/pipeline"
	"github.com/sells-group/urban-texture/internal/session"
)

// DefaultMaxUploadBytes caps an upload when none is configured.
const DefaultMaxUploadBytes = 512 << 20

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	pipeline  *pipeline.Pipeline
	store     *session.Store
	outputDir string
	maxUpload int64
	origins   []string
}

// NewServer creates a Server. Relative export paths resolve against
// outputDir.
func NewServer(p *pipeline.Pipeline, store *session.Store, outputDir string) *Server {
	cfg := p.Config()
	s := &Server{
		pipeline:  p,
		store:     store,
		outputDir: outputDir,
		maxUpload: cfg.Server.MaxUploadBytes,
		origins:   cfg.Server.CORSOrigins,
	}
	if s.maxUpload <= 0 {
		s.maxUpload = DefaultMaxUploadBytes
	}
	if len(s.origins) == 0 {
		s.origins = []string{"*"}
	}
	return s
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Handle("/metrics", metrics.Handler())

	r.Post("/sessions", s.createSession)
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", s.getSession)
		r.Delete("/", s.deleteSession)
		r.Post("/upload", s.upload)

		r.Post("/recommend", s.recommend)
		r.Get("/recommend/plot", s.recommendPlot)

		r.Post("/classify", s.classify)
		r.Get("/clusters.geojson", s.clustersGeoJSON)
		r.Get("/clusters/plot", s.clustersPlot)

		r.Get("/analysis", s.analysis)
		r.Get("/analysis/flexibility.csv", s.flexibilityCSV)
		r.Get("/analysis/plots/{name}", s.analysisPlot)

		r.Get("/export/clusters.csv", s.exportCSV)
		r.Post("/export/layer", s.exportLayer)
		r.Get("/export/report.xlsx", s.exportReport)
	})
	return r
}
