package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hurttlocker/memeverse/internal/catalog"
	"github.com/hurttlocker/memeverse/internal/meme"
	"github.com/hurttlocker/memeverse/internal/metrics"
	"github.com/hurttlocker/memeverse/internal/store"
)

// pagedFetcher serves pages of size records from an in-memory listing.
type pagedFetcher struct {
	mu      sync.Mutex
	listing []meme.Record
	size    int
	fail    map[int]error
	calls   []int
}

func newPagedFetcher(n, size int) *pagedFetcher {
	listing := make([]meme.Record, n)
	for i := range listing {
		listing[i] = meme.Record{ID: fmt.Sprint(i + 1), Name: fmt.Sprintf("Meme %d", i+1), Width: 1000 - i}
	}
	return &pagedFetcher{listing: listing, size: size, fail: map[int]error{}}
}

func (p *pagedFetcher) FetchPage(_ context.Context, page int) ([]meme.Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, page)
	if err := p.fail[page]; err != nil {
		return nil, err
	}
	start := (page - 1) * p.size
	if start >= len(p.listing) {
		return []meme.Record{}, nil
	}
	end := start + p.size
	if end > len(p.listing) {
		end = len(p.listing)
	}
	return append([]meme.Record(nil), p.listing[start:end]...), nil
}

// gatedFetcher blocks every fetch until release is closed.
type gatedFetcher struct {
	inner   Fetcher
	started chan int
	release chan struct{}
}

func (g *gatedFetcher) FetchPage(ctx context.Context, page int) ([]meme.Record, error) {
	g.started <- page
	<-g.release
	return g.inner.FetchPage(ctx, page)
}

func newTestFeed(t *testing.T, fetcher Fetcher, cfg Config, opts ...Option) (*Feed, *catalog.Cache) {
	t.Helper()
	cache := catalog.NewCache(store.NewMemoryStore())
	return NewFeed(fetcher, NewPipeline(nil, nil), cache, cfg, opts...), cache
}

func TestFeedAccumulatesPages(t *testing.T) {
	ctx := context.Background()
	fetcher := newPagedFetcher(25, 10)
	f, cache := newTestFeed(t, fetcher, Config{Filter: FilterTrending, SortBy: SortLikes})

	require.True(t, f.Refresh(ctx))
	require.True(t, f.Next(ctx))
	require.True(t, f.Next(ctx))

	st := f.State()
	assert.Equal(t, 3, st.Page)
	assert.Len(t, st.Memes, 25)
	assert.False(t, st.Loading)
	assert.False(t, st.Degraded)
	assert.False(t, st.Exhausted)

	all, err := cache.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 25)

	// Past the end the page is empty; the feed stops asking.
	require.True(t, f.Next(ctx))
	assert.True(t, f.State().Exhausted)
	assert.False(t, f.Next(ctx))
	assert.Equal(t, []int{1, 2, 3, 4}, fetcher.calls)
}

func TestFeedPageOneFailure(t *testing.T) {
	ctx := context.Background()
	fetcher := newPagedFetcher(5, 10)
	fetcher.fail[1] = &meme.NetworkError{Op: "fetch catalog", Err: errors.New("offline")}
	set := metrics.NewSet()
	f, _ := newTestFeed(t, fetcher, Config{}, WithMetrics(set.Catalog))

	assert.NotPanics(t, func() { f.Refresh(ctx) })

	st := f.State()
	assert.Empty(t, st.Memes)
	assert.False(t, st.Loading)
	assert.True(t, st.Degraded)
	assert.True(t, meme.IsNetwork(st.Err))
	assert.Equal(t, 0, st.Page)
	assert.Equal(t, 1.0, testutil.ToFloat64(set.Catalog.Fetches.WithLabelValues("error")))
}

func TestFeedLaterFailureKeepsVisible(t *testing.T) {
	ctx := context.Background()
	fetcher := newPagedFetcher(25, 10)
	f, _ := newTestFeed(t, fetcher, Config{SortBy: SortDate})

	require.True(t, f.Refresh(ctx))
	before := f.State().Memes

	fetcher.fail[2] = errors.New("timeout")
	require.True(t, f.Next(ctx))
	st := f.State()
	assert.Equal(t, before, st.Memes)
	assert.True(t, st.Degraded)
	assert.Equal(t, 1, st.Page)

	// Retrying the same page recovers.
	delete(fetcher.fail, 2)
	require.True(t, f.Next(ctx))
	st = f.State()
	assert.False(t, st.Degraded)
	assert.NoError(t, st.Err)
	assert.Equal(t, 2, st.Page)
	assert.Len(t, st.Memes, 20)
}

func TestFeedCoalescesOverlappingTriggers(t *testing.T) {
	ctx := context.Background()
	gate := &gatedFetcher{inner: newPagedFetcher(30, 10), started: make(chan int, 4), release: make(chan struct{})}
	f, _ := newTestFeed(t, gate, Config{})

	done := make(chan bool)
	go func() { done <- f.Refresh(ctx) }()
	assert.Equal(t, 1, <-gate.started)

	assert.True(t, f.State().Loading)
	assert.False(t, f.Next(ctx), "trigger during an outstanding fetch must be ignored")
	assert.False(t, f.Next(ctx))

	close(gate.release)
	assert.True(t, <-done)
	assert.Len(t, gate.started, 0)

	st := f.State()
	assert.Equal(t, 1, st.Page)
	assert.Len(t, st.Memes, 10)
}

func TestFeedDiscardsResultAfterClose(t *testing.T) {
	ctx := context.Background()
	gate := &gatedFetcher{inner: newPagedFetcher(30, 10), started: make(chan int, 1), release: make(chan struct{})}
	f, _ := newTestFeed(t, gate, Config{})

	done := make(chan bool)
	go func() { done <- f.Refresh(ctx) }()
	<-gate.started

	f.Close()
	close(gate.release)
	<-done

	st := f.State()
	assert.Empty(t, st.Memes)
	assert.Equal(t, 0, st.Page)
	assert.False(t, f.Refresh(ctx))
}

func TestFeedSetFilterResetsAndDropsPending(t *testing.T) {
	ctx := context.Background()
	gate := &gatedFetcher{inner: newPagedFetcher(30, 10), started: make(chan int, 2), release: make(chan struct{})}
	f, _ := newTestFeed(t, gate, Config{Filter: FilterTrending})

	done := make(chan bool)
	go func() { done <- f.Refresh(ctx) }()
	<-gate.started

	f.SetFilter(FilterClassic)
	st := f.State()
	assert.False(t, st.Loading)
	assert.Empty(t, st.Memes)

	close(gate.release)
	<-done
	assert.Empty(t, f.State().Memes, "stale page must not land after a filter change")

	require.True(t, f.Refresh(ctx))
	<-gate.started
	assert.Equal(t, FilterClassic, f.Config().Filter)
	for _, m := range f.State().Memes {
		assert.Greater(t, m.Width, classicMinWidth)
	}
}

func TestFeedRefreshAfterResetWaitsForStaleFetch(t *testing.T) {
	ctx := context.Background()
	inner := newPagedFetcher(30, 10)
	gate := &gatedFetcher{inner: inner, started: make(chan int, 2), release: make(chan struct{})}
	f, _ := newTestFeed(t, gate, Config{})

	done := make(chan bool)
	go func() { done <- f.Refresh(ctx) }()
	<-gate.started

	f.SetSort(SortDate)
	assert.False(t, f.Refresh(ctx), "a second fetch must not start while the first is pending")
	assert.False(t, f.Next(ctx))

	close(gate.release)
	<-done
	assert.Equal(t, []int{1}, inner.calls)
	assert.Empty(t, f.State().Memes)

	require.True(t, f.Refresh(ctx))
	assert.Equal(t, []int{1, 1}, inner.calls)
	assert.Equal(t, "10", f.State().Memes[0].ID)
}

func TestFeedQueryOnlyAffectsReads(t *testing.T) {
	ctx := context.Background()
	fetcher := newPagedFetcher(12, 12)
	f, _ := newTestFeed(t, fetcher, Config{})

	require.True(t, f.Refresh(ctx))
	f.SetQuery("MEME 1")
	st := f.State()
	// "Meme 1", "Meme 10", "Meme 11", "Meme 12"
	assert.Len(t, st.Memes, 4)

	f.SetQuery("")
	assert.Len(t, f.State().Memes, 12)
	assert.Equal(t, []int{1}, fetcher.calls)
}

func TestFeedSetSortResets(t *testing.T) {
	ctx := context.Background()
	fetcher := newPagedFetcher(5, 10)
	f, _ := newTestFeed(t, fetcher, Config{SortBy: SortLikes})

	require.True(t, f.Refresh(ctx))
	f.SetSort(SortDate)
	assert.Empty(t, f.State().Memes)

	require.True(t, f.Refresh(ctx))
	assert.Equal(t, []string{"5", "4", "3", "2", "1"}, ids(f.State().Memes))
}
