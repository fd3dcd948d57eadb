package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/urban-texture/internal/bundle"
	"github.com/sells-group/urban-texture/internal/cluster"
	"github.com/sells-group/urban-texture/internal/interpret"
	"github.com/sells-group/urban-texture/internal/table"
)

func testBundle() *bundle.Bundle {
	tbl := table.New([]string{"uID", "a"}, [][]string{{"1", "0.5"}, {"2", "0.1"}})
	return &bundle.Bundle{Merged: tbl, Percentiles: tbl, Standardized: tbl, Buildings: tbl}
}

func TestSession_Prerequisites(t *testing.T) {
	s := New()

	_, err := s.Bundle()
	assert.ErrorIs(t, err, ErrNoBundle)
	assert.ErrorIs(t, err, ErrNoData)

	_, err = s.Recommendation()
	assert.ErrorIs(t, err, ErrNoRecommendation)

	_, err = s.Classification()
	assert.ErrorIs(t, err, ErrNoClassification)
	assert.ErrorIs(t, eris.Wrap(err, "api: classify"), ErrNoData)

	_, err = s.Report()
	assert.ErrorIs(t, err, ErrNoReport)

	assert.False(t, errors.Is(ErrNotFound, ErrNoData))
}

func TestSession_SetBundleClearsDerived(t *testing.T) {
	s := New()
	s.SetBundle(testBundle())
	s.SetRecommendation(&cluster.Recommendation{Recommended: []int{3}})
	s.SetClassification(&cluster.Classification{K: 3, Sizes: []int{1, 1}})
	s.SetReport(&interpret.Report{K: 3})

	sum := s.Summary()
	assert.Equal(t, []int{3}, sum.Recommended)
	assert.Equal(t, 3, sum.Clusters)
	assert.True(t, sum.Analysed)
	require.NotNil(t, sum.Data)
	assert.Equal(t, 2, sum.Data.Merged)

	s.SetClassification(&cluster.Classification{K: 4})
	_, err := s.Report()
	assert.ErrorIs(t, err, ErrNoReport)

	s.SetBundle(testBundle())
	_, err = s.Recommendation()
	assert.ErrorIs(t, err, ErrNoRecommendation)
	_, err = s.Classification()
	assert.ErrorIs(t, err, ErrNoClassification)

	b, err := s.Bundle()
	require.NoError(t, err)
	assert.Equal(t, 2, b.Merged.Len())
}

func TestSession_Exclusive(t *testing.T) {
	s := New()
	var (
		wg      sync.WaitGroup
		running int
		maxSeen int
		mu      sync.Mutex
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Exclusive(func() error {
				mu.Lock()
				running++
				maxSeen = max(maxSeen, running)
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				running--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)

	want := eris.New("boom")
	assert.Equal(t, want, s.Exclusive(func() error { return want }))
}

func TestStore_CreateGetDelete(t *testing.T) {
	st := NewStore(time.Hour)
	s := st.Create()
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, 1, st.Len())

	got, err := st.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	_, err = st.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, st.Delete(s.ID))
	assert.ErrorIs(t, st.Delete(s.ID), ErrNotFound)
	assert.Zero(t, st.Len())
}

func TestStore_Expiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	st := NewStore(10 * time.Minute)
	st.now = func() time.Time { return now }

	old := st.Create()
	now = now.Add(6 * time.Minute)
	fresh := st.Create()

	// Touching keeps a session alive.
	now = now.Add(3 * time.Minute)
	_, err := st.Get(old.ID)
	require.NoError(t, err)

	now = now.Add(6 * time.Minute)
	assert.Equal(t, 0, st.Sweep())

	now = now.Add(15 * time.Minute)
	assert.Equal(t, 2, st.Sweep())
	assert.Zero(t, st.Len())

	_, err = st.Get(fresh.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_GetExpired(t *testing.T) {
	now := time.Now()
	st := NewStore(time.Minute)
	st.now = func() time.Time { return now }

	s := st.Create()
	now = now.Add(2 * time.Minute)

	_, err := st.Get(s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, st.Len())
}

func TestStore_NoTTL(t *testing.T) {
	now := time.Now()
	st := NewStore(0)
	st.now = func() time.Time { return now }

	s := st.Create()
	now = now.Add(1000 * time.Hour)
	assert.Zero(t, st.Sweep())
	_, err := st.Get(s.ID)
	assert.NoError(t, err)
}

func TestStore_IDs(t *testing.T) {
	now := time.Now()
	st := NewStore(time.Hour)
	st.now = func() time.Time { return now }

	var want []string
	for i := 0; i < 3; i++ {
		want = append(want, st.Create().ID)
		now = now.Add(time.Second)
	}
	assert.Equal(t, want, st.IDs())
}

func TestStore_Janitor(t *testing.T) {
	var mu sync.Mutex
	now := time.Now()
	st := NewStore(time.Minute)
	st.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	st.Create()

	mu.Lock()
	now = now.Add(time.Hour)
	mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		st.Janitor(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return st.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
