// Package session holds the per-user analysis state shared by the HTTP API
// and the CLI.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/urban-texture/internal/bundle"
	"github.com/sells-group/urban-texture/internal/cluster"
	"github.com/sells-group/urban-texture/internal/interpret"
)

var (
	// ErrNotFound is returned for unknown or expired session ids.
	ErrNotFound = eris.New("session: not found")
	// ErrNoData matches every missing-prerequisite error below.
	ErrNoData = eris.New("session: required data not loaded")

	ErrNoBundle         error = &noDataError{"session: no data loaded, upload a ZIP file first"}
	ErrNoRecommendation error = &noDataError{"session: no recommendation, run the recommender first"}
	ErrNoClassification error = &noDataError{"session: no classification, run classification first"}
	ErrNoReport         error = &noDataError{"session: no analysis, run the interpreter first"}
)

type noDataError struct{ msg string }

func (e *noDataError) Error() string { return e.msg }

func (e *noDataError) Is(target error) bool { return target == ErrNoData }

// Session is one user's working state. Each step's output replaces the
// previous one; loading new data clears everything derived from the old.
type Session struct {
	ID        string
	CreatedAt time.Time

	// run serialises long actions on the session.
	run sync.Mutex

	mu             sync.RWMutex
	lastUsed       time.Time
	bundle         *bundle.Bundle
	recommendation *cluster.Recommendation
	classification *cluster.Classification
	report         *interpret.Report
}

// New creates a session with a random id.
func New() *Session {
	now := time.Now()
	return &Session{ID: uuid.NewString(), CreatedAt: now, lastUsed: now}
}

// Exclusive runs fn while holding the session's action lock, so concurrent
// actions on one session run one after another.
func (s *Session) Exclusive(fn func() error) error {
	s.run.Lock()
	defer s.run.Unlock()
	return fn()
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastUsed = now
	s.mu.Unlock()
}

// LastUsed returns when the session was last fetched from its store.
func (s *Session) LastUsed() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUsed
}

// SetBundle stores freshly loaded data and drops every derived result.
func (s *Session) SetBundle(b *bundle.Bundle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bundle = b
	s.recommendation = nil
	s.classification = nil
	s.report = nil
}

// Bundle returns the loaded data or ErrNoBundle.
func (s *Session) Bundle() (*bundle.Bundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.bundle == nil {
		return nil, ErrNoBundle
	}
	return s.bundle, nil
}

// SetRecommendation stores the latest recommender output.
func (s *Session) SetRecommendation(r *cluster.Recommendation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recommendation = r
}

// Recommendation returns the latest recommender output or ErrNoRecommendation.
func (s *Session) Recommendation() (*cluster.Recommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.recommendation == nil {
		return nil, ErrNoRecommendation
	}
	return s.recommendation, nil
}

// SetClassification stores a classification, replacing the previous one
// and its analysis.
func (s *Session) SetClassification(c *cluster.Classification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classification = c
	s.report = nil
}

// Classification returns the current classification or ErrNoClassification.
func (s *Session) Classification() (*cluster.Classification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.classification == nil {
		return nil, ErrNoClassification
	}
	return s.classification, nil
}

// SetReport stores the analysis of the current classification.
func (s *Session) SetReport(r *interpret.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report = r
}

// Report returns the analysis of the current classification or ErrNoReport.
func (s *Session) Report() (*interpret.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.report == nil {
		return nil, ErrNoReport
	}
	return s.report, nil
}

// Summary describes what a session has loaded and computed.
type Summary struct {
	ID          string          `json:"id"`
	CreatedAt   time.Time       `json:"created_at"`
	LastUsed    time.Time       `json:"last_used"`
	Data        *bundle.Summary `json:"data,omitempty"`
	Recommended []int           `json:"recommended,omitempty"`
	Clusters    int             `json:"clusters,omitempty"`
	Sizes       []int           `json:"sizes,omitempty"`
	Analysed    bool            `json:"analysed"`
}

// Summary snapshots the session state.
func (s *Session) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := Summary{
		ID:        s.ID,
		CreatedAt: s.CreatedAt,
		LastUsed:  s.lastUsed,
		Analysed:  s.report != nil,
	}
	if s.bundle != nil {
		sum := s.bundle.Summary()
		out.Data = &sum
	}
	if s.recommendation != nil {
		out.Recommended = s.recommendation.Recommended
	}
	if s.classification != nil {
		out.Clusters = s.classification.K
		out.Sizes = s.classification.Sizes
	}
	return out
}
