package feed

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/hurttlocker/memeverse/internal/catalog"
	"github.com/hurttlocker/memeverse/internal/meme"
	"github.com/hurttlocker/memeverse/internal/metrics"
)

// Fetcher returns one page of the remote catalog.
type Fetcher interface {
	FetchPage(ctx context.Context, page int) ([]meme.Record, error)
}

// State is a snapshot of a Feed.
type State struct {
	Memes []meme.Record `json:"memes"`
	// Page is the last successfully loaded page, 0 before the first load.
	Page    int  `json:"page"`
	Loading bool `json:"loading"`
	// Degraded is set when the last fetch failed; Err holds the failure.
	Degraded bool  `json:"degraded"`
	Err      error `json:"-"`
	// Exhausted is set once a page came back empty.
	Exhausted bool `json:"exhausted"`
}

// Option configures a Feed.
type Option func(*Feed)

// WithLogger sets the feed logger.
func WithLogger(l *zap.Logger) Option {
	return func(f *Feed) { f.logger = l }
}

// WithMetrics records every page fetch on m.
func WithMetrics(m *metrics.CatalogMetrics) Option {
	return func(f *Feed) { f.metrics = m }
}

// Feed is the infinite-scroll explore feed. It holds at most one fetch in
// flight, including one whose result a reset has already discarded; triggers
// that arrive meanwhile are ignored. The fetch runs without the lock held, so
// State never waits on the network.
type Feed struct {
	fetcher  Fetcher
	pipeline *Pipeline
	cache    *catalog.Cache
	logger   *zap.Logger
	metrics  *metrics.CatalogMetrics

	mu        sync.Mutex
	cfg       Config
	visible   []meme.Record
	page      int
	loading   bool
	// inFlight survives resets and is cleared by the fetch that set it.
	inFlight  bool
	degraded  bool
	err       error
	exhausted bool
	// gen changes whenever in-flight results must be discarded.
	gen    uint64
	closed bool
}

// NewFeed creates an empty feed. Fetched records are cached in cache.
func NewFeed(fetcher Fetcher, pipeline *Pipeline, cache *catalog.Cache, cfg Config, opts ...Option) *Feed {
	f := &Feed{
		fetcher:  fetcher,
		pipeline: pipeline,
		cache:    cache,
		logger:   zap.NewNop(),
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Refresh loads page 1, replacing the visible sequence. It reports whether
// a fetch was issued.
func (f *Feed) Refresh(ctx context.Context) bool {
	return f.load(ctx, func() int { return 1 })
}

// Next loads the page after the last loaded one. It is the viewport-bottom
// trigger: it returns false without fetching while another fetch is in
// flight, after Close, or once the catalog is exhausted.
func (f *Feed) Next(ctx context.Context) bool {
	return f.load(ctx, func() int {
		if f.exhausted {
			return 0
		}
		return f.page + 1
	})
}

// SetFilter switches the filter and resets the feed to an empty state.
// Results of fetches still in flight are discarded; call Refresh to reload
// once that fetch has returned.
func (f *Feed) SetFilter(filter Filter) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg.Filter = filter
	f.resetLocked()
}

// SetSort switches the sort mode and resets the feed like SetFilter.
func (f *Feed) SetSort(mode SortMode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg.SortBy = mode
	f.resetLocked()
}

// SetQuery changes the search applied by State. Nothing is refetched.
func (f *Feed) SetQuery(q string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg.SearchQuery = q
}

// Config returns the current configuration.
func (f *Feed) Config() Config {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfg
}

// Close detaches the owner. Results that arrive afterwards are dropped and
// further triggers are ignored.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.gen++
}

// State returns a snapshot with the search query applied.
func (f *Feed) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return State{
		Memes:     Search(f.visible, f.cfg.SearchQuery),
		Page:      f.page,
		Loading:   f.loading,
		Degraded:  f.degraded,
		Err:       f.err,
		Exhausted: f.exhausted,
	}
}

func (f *Feed) resetLocked() {
	f.visible = nil
	f.page = 0
	f.loading = false
	f.degraded = false
	f.err = nil
	f.exhausted = false
	f.gen++
}

// load fetches the page chosen by pick under the lock. A pick of 0 means
// there is nothing to load.
func (f *Feed) load(ctx context.Context, pick func() int) bool {
	f.mu.Lock()
	if f.closed || f.inFlight {
		f.mu.Unlock()
		return false
	}
	page := pick()
	if page < 1 {
		f.mu.Unlock()
		return false
	}
	f.loading = true
	f.inFlight = true
	gen := f.gen
	cfg := f.cfg
	f.mu.Unlock()

	// Search is applied when reading, not when accumulating.
	cfg.SearchQuery = ""
	records, processed, err := f.fetch(ctx, page, cfg)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight = false
	if gen != f.gen {
		f.logger.Debug("discarding stale feed page", zap.Int("page", page))
		return true
	}
	f.loading = false
	if err != nil {
		f.degraded = true
		f.err = err
		f.logger.Warn("feed page fetch failed", zap.Int("page", page), zap.Error(err))
		return true
	}

	f.visible = Accumulate(f.visible, processed, page)
	f.page = page
	f.degraded = false
	f.err = nil
	f.exhausted = len(records) == 0
	f.logger.Debug("feed page loaded",
		zap.Int("page", page),
		zap.Int("fetched", len(records)),
		zap.Int("visible", len(f.visible)),
	)
	return true
}

func (f *Feed) fetch(ctx context.Context, page int, cfg Config) ([]meme.Record, []meme.Record, error) {
	records, err := f.fetcher.FetchPage(ctx, page)
	f.metrics.ObserveFetch(err)
	if err != nil {
		return nil, nil, err
	}
	if f.cache != nil {
		if err := f.cache.Put(ctx, records); err != nil {
			return nil, nil, err
		}
	}
	processed, err := f.pipeline.Run(ctx, records, cfg)
	if err != nil {
		return nil, nil, err
	}
	return records, processed, nil
}
