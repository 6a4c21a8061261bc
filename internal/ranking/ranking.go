// Package ranking derives the leaderboards from the engagement store and the
// catalog cache. Nothing is cached: every call recomputes from persisted
// state, so a mutation is visible to the next read.
package ranking

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hurttlocker/memeverse/internal/catalog"
	"github.com/hurttlocker/memeverse/internal/engagement"
	"github.com/hurttlocker/memeverse/internal/meme"
	"github.com/hurttlocker/memeverse/internal/metrics"
)

const (
	DefaultMemeLimit = 10
	DefaultUserLimit = 5
)

// Engine computes leaderboards.
type Engine struct {
	engagement *engagement.Store
	cache      *catalog.Cache
	logger     *zap.Logger
	metrics    *metrics.EngagementMetrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics counts resolution gaps on m.
func WithMetrics(m *metrics.EngagementMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates a ranking engine.
func NewEngine(es *engagement.Store, cache *catalog.Cache, opts ...Option) *Engine {
	e := &Engine{engagement: es, cache: cache, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TopMemes returns the most liked cached memes, at most limit (default 10
// when limit <= 0). Likes on ids missing from the catalog cache are left
// out, as are cached records without an image URL. Ties keep like-record
// order.
func (e *Engine) TopMemes(ctx context.Context, limit int) ([]meme.MemeRankEntry, error) {
	if limit <= 0 {
		limit = DefaultMemeLimit
	}

	likes, err := e.engagement.Likes(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading likes: %w", err)
	}
	index, err := e.cache.Index(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading catalog cache: %w", err)
	}

	entries := make([]meme.MemeRankEntry, 0, len(likes))
	gaps := 0
	for _, l := range likes {
		if l.LikeCount <= 0 {
			continue
		}
		rec, ok := index[l.MemeID]
		if !ok {
			gaps++
			e.logger.Debug("like excluded from ranking",
				zap.String("meme_id", l.MemeID),
				zap.Int("likes", l.LikeCount),
				zap.Error(meme.ErrResolutionGap),
			)
			continue
		}
		if strings.TrimSpace(rec.URL) == "" {
			e.logger.Debug("cached meme has no image, not ranked", zap.String("meme_id", l.MemeID))
			continue
		}
		entries = append(entries, meme.MemeRankEntry{Meme: rec, LikeCount: l.LikeCount})
	}
	e.metrics.ObserveResolutionGaps(gaps)

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].LikeCount > entries[j].LikeCount
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// TopUsers ranks uploaders by the likes on their uploads, at most limit
// (default 5 when limit <= 0). An upload's likes are the counter keyed by
// its image URL. Users with no likes are included; ties keep the order in
// which users first uploaded.
func (e *Engine) TopUsers(ctx context.Context, limit int) ([]meme.UserRankEntry, error) {
	if limit <= 0 {
		limit = DefaultUserLimit
	}

	uploads, err := e.engagement.ListUploads(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading uploads: %w", err)
	}

	totals := make(map[string]int)
	var order []string
	for _, u := range uploads {
		name := u.RankUsername()
		if _, seen := totals[name]; !seen {
			order = append(order, name)
			totals[name] = 0
		}
		n, err := e.engagement.GetLikeCount(ctx, u.ImageURL)
		if err != nil {
			return nil, fmt.Errorf("loading likes for upload: %w", err)
		}
		totals[name] += n
	}

	entries := make([]meme.UserRankEntry, 0, len(order))
	for _, name := range order {
		entries = append(entries, meme.UserRankEntry{Username: name, TotalLikes: totals[name]})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].TotalLikes > entries[j].TotalLikes
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
