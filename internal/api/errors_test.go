package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"

	"github.com/sells-group/urban-texture/internal/bundle"
	"github.com/sells-group/urban-texture/internal/cluster"
	"github.com/sells-group/urban-texture/internal/plot"
	"github.com/sells-group/urban-texture/internal/session"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"not found", session.ErrNotFound, http.StatusNotFound, `"error":"session not found"`},
		{"no bundle", session.ErrNoBundle, http.StatusConflict, `"warning":"Preprocessed data not found. Please upload a ZIP file."`},
		{"wrapped no classification", eris.Wrap(session.ErrNoClassification, "api: export"), http.StatusConflict, `"warning":"Please ensure all data is loaded`},
		{"missing files", &bundle.MissingFilesError{Missing: []string{"merged.csv", "buildings.csv"}}, http.StatusUnprocessableEntity, `"missing":["merged.csv","buildings.csv"]`},
		{"too few samples", eris.Wrapf(cluster.ErrTooFewSamples, "cluster: %d rows", 2), http.StatusUnprocessableEntity, `too few samples`},
		{"bad request", badRequest("path is required"), http.StatusUnprocessableEntity, `"error":"path is required"`},
		{"unknown plot", eris.Wrap(plot.ErrUnknownPlot, "plot: radar"), http.StatusNotFound, `unknown plot`},
		{"too large", &http.MaxBytesError{Limit: 10}, http.StatusRequestEntityTooLarge, `upload too large`},
		{"unexpected", eris.New("disk on fire"), http.StatusInternalServerError, `"error":"internal error"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeError(w, httptest.NewRequest(http.MethodGet, "/x", nil), tt.err)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.Contains(t, w.Body.String(), tt.body)
		})
	}
}
