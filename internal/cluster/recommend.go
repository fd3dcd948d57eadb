package cluster

import (
	"context"
	"errors"
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/urban-texture/internal/table"
)

// RecommendOptions controls the cluster-count search.
type RecommendOptions struct {
	Family      string
	MinClusters int
	MaxClusters int
	// Repeat is the number of seeds tried per candidate count.
	Repeat      int
	NInit       int
	MaxIter     int
	RandomState int64
	// Standardize z-scores the matrix before fitting.
	Standardize bool
	Parallelism int
	// SilhouetteSample caps the rows used for silhouette; 0 uses all rows.
	SilhouetteSample int
}

// Candidate is the score record of one cluster count.
type Candidate struct {
	K              int           `json:"k"`
	Scores         []table.Float `json:"scores"`
	MeanScore      table.Float   `json:"mean_score"`
	MeanSilhouette table.Float   `json:"mean_silhouette"`
	Wins           int           `json:"wins"`
}

// Recommendation is the outcome of a cluster-count search.
type Recommendation struct {
	Family      string      `json:"family"`
	Recommended []int       `json:"recommended"`
	Candidates  []Candidate `json:"candidates"`
	// MinClusters and MaxClusters are the effective, clamped bounds.
	MinClusters int `json:"min_clusters"`
	MaxClusters int `json:"max_clusters"`
	Repeat      int `json:"repeat"`
}

// Recommend fits every count in the effective range Repeat times and ranks
// the counts that won a repeat by lowest Davies-Bouldin score.
func Recommend(ctx context.Context, m *table.Matrix, opts RecommendOptions) (*Recommendation, error) {
	if opts.MinClusters > opts.MaxClusters {
		return nil, eris.Wrapf(ErrInvalidOptions, "cluster: min_clusters %d > max_clusters %d", opts.MinClusters, opts.MaxClusters)
	}
	repeat := max(opts.Repeat, 1)

	model, err := NewModel(opts.Family, ModelOptions{NInit: opts.NInit, MaxIter: opts.MaxIter})
	if err != nil {
		return nil, err
	}

	if opts.Standardize {
		m = table.Standardize(m)
	}
	n := m.Rows()

	lo, hi := max(opts.MinClusters, 2), min(opts.MaxClusters, n-1)
	if n < 3 || lo > hi {
		return nil, eris.Wrapf(ErrTooFewSamples, "cluster: %d rows cannot support %d..%d clusters", n, opts.MinClusters, opts.MaxClusters)
	}
	if lo != opts.MinClusters || hi != opts.MaxClusters {
		zap.L().Info("cluster: search range clamped",
			zap.Int("requested_min", opts.MinClusters),
			zap.Int("requested_max", opts.MaxClusters),
			zap.Int("min", lo),
			zap.Int("max", hi),
			zap.Int("rows", n),
		)
	}

	ks := make([]int, hi-lo+1)
	scores := make([][]float64, len(ks))
	silhouettes := make([][]float64, len(ks))
	for i := range ks {
		ks[i] = lo + i
		scores[i] = make([]float64, repeat)
		silhouettes[i] = make([]float64, repeat)
	}

	g, gctx := errgroup.WithContext(ctx)
	if opts.Parallelism > 0 {
		g.SetLimit(opts.Parallelism)
	}
	for ci, k := range ks {
		for r := 0; r < repeat; r++ {
			g.Go(func() error {
				seed := opts.RandomState + int64(r)

				f, err := fit(gctx, model, m.Data, k, seed)
				if err != nil {
					return eris.Wrapf(err, "cluster: fit k=%d repeat=%d", k, r)
				}

				score, err := DaviesBouldin(m.Data, f.Labels)
				if errors.Is(err, ErrTooFewSamples) {
					score = math.NaN()
				} else if err != nil {
					return err
				}
				scores[ci][r] = score

				sil := math.NaN()
				if s, err := SilhouetteScores(m.Data, f.Labels, opts.SilhouetteSample, seed); err == nil {
					sil = s.Average
				}
				silhouettes[ci][r] = sil
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	candidates := make([]Candidate, len(ks))
	for ci, k := range ks {
		candidates[ci] = Candidate{
			K:              k,
			Scores:         table.Floats(scores[ci]),
			MeanScore:      table.Float(nanMean(scores[ci])),
			MeanSilhouette: table.Float(nanMean(silhouettes[ci])),
		}
	}
	for r := 0; r < repeat; r++ {
		best, bestScore := -1, math.Inf(1)
		for ci := range ks {
			if s := scores[ci][r]; !math.IsNaN(s) && s < bestScore {
				best, bestScore = ci, s
			}
		}
		if best >= 0 {
			candidates[best].Wins++
		}
	}

	rec := &Recommendation{
		Family:      familyOf(model),
		Candidates:  candidates,
		MinClusters: lo,
		MaxClusters: hi,
		Repeat:      repeat,
	}
	rec.Recommended = rank(candidates)

	zap.L().Info("cluster: recommendation complete",
		zap.Ints("recommended", rec.Recommended),
		zap.Int("rows", n),
		zap.Int("candidates", len(candidates)),
	)
	return rec, nil
}

// rank orders winning counts by wins, then mean score, then count.
func rank(candidates []Candidate) []int {
	winners := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Wins > 0 {
			winners = append(winners, c)
		}
	}
	sort.SliceStable(winners, func(i, j int) bool {
		a, b := winners[i], winners[j]
		if a.Wins != b.Wins {
			return a.Wins > b.Wins
		}
		if a.MeanScore != b.MeanScore && !math.IsNaN(float64(a.MeanScore)) && !math.IsNaN(float64(b.MeanScore)) {
			return a.MeanScore < b.MeanScore
		}
		return a.K < b.K
	})

	out := make([]int, len(winners))
	for i, c := range winners {
		out[i] = c.K
	}
	return out
}

func nanMean(vals []float64) float64 {
	var sum float64
	var n int
	for _, v := range vals {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}
