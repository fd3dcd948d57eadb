package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/urban-texture/internal/cluster"
	"github.com/sells-group/urban-texture/internal/export"
	"github.com/sells-group/urban-texture/internal/interpret"
	"github.com/sells-group/urban-texture/internal/plot"
	"github.com/sells-group/urban-texture/internal/session"
)

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": s.store.Len()})
}

func (s *Server) createSession(w http.ResponseWriter, _ *http.Request) {
	sess := s.store.Create()
	writeJSON(w, http.StatusCreated, map[string]string{"id": sess.ID})
}

// session resolves the {id} path parameter.
func (s *Server) session(r *http.Request) (*session.Session, error) {
	return s.store.Get(chi.URLParam(r, "id"))
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Summary())
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// readUpload returns the archive from a multipart "file" field or the raw
// request body.
func readUpload(r *http.Request) ([]byte, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		f, _, err := r.FormFile("file")
		if err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				return nil, err
			}
			return nil, badRequest("multipart upload needs a \"file\" field")
		}
		defer f.Close()
		return io.ReadAll(f)
	}
	return io.ReadAll(r.Body)
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	data, err := readUpload(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(data) == 0 {
		writeError(w, r, badRequest("empty upload"))
		return
	}

	err = sess.Exclusive(func() error {
		b, err := s.pipeline.LoadZIP(r.Context(), data)
		if err != nil {
			return err
		}
		sess.SetBundle(b)
		return nil
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Summary())
}

func (s *Server) recommend(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var rec *cluster.Recommendation
	err = sess.Exclusive(func() error {
		b, err := sess.Bundle()
		if err != nil {
			return err
		}
		rec, err = s.pipeline.Recommend(r.Context(), b)
		if err != nil {
			return err
		}
		sess.SetRecommendation(rec)
		return nil
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) recommendPlot(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rec, err := sess.Recommendation()
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := plot.Recommendation(rec)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeHTML(w, page)
}

type classifyRequest struct {
	Clusters int `json:"clusters"`
}

func (s *Server) classify(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req classifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, badRequest("invalid request body"))
		return
	}
	if req.Clusters == 0 {
		req.Clusters = s.pipeline.Config().Cluster.DefaultClusters
	}
	if req.Clusters < cluster.MinTypes || req.Clusters > cluster.MaxTypes {
		writeError(w, r, badRequest(fmt.Sprintf("clusters must be between %d and %d", cluster.MinTypes, cluster.MaxTypes)))
		return
	}

	var c *cluster.Classification
	err = sess.Exclusive(func() error {
		b, err := sess.Bundle()
		if err != nil {
			return err
		}
		c, err = s.pipeline.Classify(r.Context(), b, req.Clusters)
		if err != nil {
			return err
		}
		sess.SetClassification(c)
		return nil
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) classification(w http.ResponseWriter, r *http.Request) (*cluster.Classification, bool) {
	sess, err := s.session(r)
	if err == nil {
		var c *cluster.Classification
		if c, err = sess.Classification(); err == nil {
			return c, true
		}
	}
	writeError(w, r, err)
	return nil, false
}

func (s *Server) clustersGeoJSON(w http.ResponseWriter, r *http.Request) {
	c, ok := s.classification(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := export.GeoJSON(&buf, c, s.exportOptions()); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) clustersPlot(w http.ResponseWriter, r *http.Request) {
	c, ok := s.classification(w, r)
	if !ok {
		return
	}
	page, err := plot.Clusters(c, s.pipeline.Config().Data.GeometryColumn)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeHTML(w, page)
}

// report returns the session's analysis, computing it on first use.
func (s *Server) report(r *http.Request) (*cluster.Classification, *interpret.Report, error) {
	sess, err := s.session(r)
	if err != nil {
		return nil, nil, err
	}
	var (
		c   *cluster.Classification
		rep *interpret.Report
	)
	err = sess.Exclusive(func() error {
		c, err = sess.Classification()
		if err != nil {
			return err
		}
		if rep, err = sess.Report(); err == nil {
			return nil
		}
		rep, err = s.pipeline.Analyze(r.Context(), c)
		if err != nil {
			return err
		}
		sess.SetReport(rep)
		return nil
	})
	return c, rep, err
}

func (s *Server) analysis(w http.ResponseWriter, r *http.Request) {
	_, rep, err := s.report(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) flexibilityCSV(w http.ResponseWriter, r *http.Request) {
	_, rep, err := s.report(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := export.FlexibilityCSV(&buf, rep); err != nil {
		writeError(w, r, err)
		return
	}
	writeAttachment(w, "text/csv", "flexibility_scores.csv", buf.Bytes())
}

func (s *Server) analysisPlot(w http.ResponseWriter, r *http.Request) {
	_, rep, err := s.report(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := plot.Analysis(chi.URLParam(r, "name"), rep)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeHTML(w, page)
}

func (s *Server) exportCSV(w http.ResponseWriter, r *http.Request) {
	c, ok := s.classification(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := export.ClustersCSV(&buf, c); err != nil {
		writeError(w, r, err)
		return
	}
	writeAttachment(w, "text/csv", s.exportOptions().CSVName, buf.Bytes())
}

type layerRequest struct {
	Path  string `json:"path"`
	Layer string `json:"layer"`
}

func (s *Server) exportLayer(w http.ResponseWriter, r *http.Request) {
	c, ok := s.classification(w, r)
	if !ok {
		return
	}

	var req layerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, badRequest("invalid request body"))
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		writeError(w, r, badRequest("path is required"))
		return
	}

	opts := s.exportOptions()
	if req.Layer == "" {
		req.Layer = opts.LayerName
	}
	target := req.Path
	if !strings.Contains(target, "://") {
		target = opts.Path(target)
	}

	written, err := export.Layer(r.Context(), target, req.Layer, c, opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	zap.L().Info("api: layer exported", zap.String("layer", req.Layer), zap.String("target", written))
	writeJSON(w, http.StatusOK, map[string]any{"layer": req.Layer, "written": written, "features": len(c.Labels)})
}

func (s *Server) exportReport(w http.ResponseWriter, r *http.Request) {
	c, rep, err := s.report(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := export.Report(&buf, c, rep); err != nil {
		writeError(w, r, err)
		return
	}
	writeAttachment(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		s.exportOptions().ReportName, buf.Bytes())
}

func (s *Server) exportOptions() export.Options {
	return s.pipeline.ExportOptions(s.outputDir)
}

func writeHTML(w http.ResponseWriter, page []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

func writeAttachment(w http.ResponseWriter, contentType, name string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	_, _ = w.Write(body)
}
