package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/urban-texture/internal/bundle"
	"github.com/sells-group/urban-texture/internal/cluster"
	"github.com/sells-group/urban-texture/internal/export"
	"github.com/sells-group/urban-texture/internal/interpret"
	"github.com/sells-group/urban-texture/internal/plot"
	"github.com/sells-group/urban-texture/internal/session"
)

// requestError is a client mistake reported back verbatim.
type requestError struct{ msg string }

func (e *requestError) Error() string { return e.msg }

func badRequest(msg string) error { return &requestError{msg: msg} }

// warnings are the messages shown when a step runs before its inputs exist.
var warnings = map[error]string{
	session.ErrNoBundle:         "Preprocessed data not found. Please upload a ZIP file.",
	session.ErrNoRecommendation: "No recommendation yet. Please run the cluster-count recommender first.",
	session.ErrNoClassification: "Please ensure all data is loaded before running classification.",
	session.ErrNoReport:         "No analysis available. Please run classification first.",
}

func warningFor(err error) string {
	for target, msg := range warnings {
		if errors.Is(err, target) {
			return msg
		}
	}
	return err.Error()
}

// writeError maps err onto a status code and a JSON body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		missing *bundle.MissingFilesError
		reqErr  *requestError
		tooBig  *http.MaxBytesError
	)
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
	case errors.Is(err, session.ErrNoData):
		writeJSON(w, http.StatusConflict, map[string]string{"warning": warningFor(err)})
	case errors.As(err, &missing):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":   missing.Error(),
			"missing": missing.Missing,
		})
	case errors.Is(err, plot.ErrUnknownPlot):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.As(err, &tooBig):
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "upload too large"})
	case errors.As(err, &reqErr),
		errors.Is(err, cluster.ErrTooFewSamples),
		errors.Is(err, cluster.ErrNoMetrics),
		errors.Is(err, cluster.ErrRowMismatch),
		errors.Is(err, cluster.ErrInvalidOptions),
		errors.Is(err, cluster.ErrUnknownFamily),
		errors.Is(err, interpret.ErrMetricMismatch),
		errors.Is(err, export.ErrNoGeometry):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	default:
		zap.L().Error("api: request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}
