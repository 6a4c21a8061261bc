// Package feed turns fetched catalog pages into the visible explore feed:
// a stateless Pipeline (filter, sort, search, paginate) and the stateful
// infinite-scroll Feed that accumulates pages.
package feed

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"github.com/hurttlocker/memeverse/internal/meme"
)

// Filter selects which fetched records enter the feed.
type Filter string

const (
	FilterTrending Filter = "trending"
	FilterNew      Filter = "new"
	FilterClassic  Filter = "classic"
	FilterRandom   Filter = "random"
)

// SortMode orders a page.
type SortMode string

const (
	// SortLikes orders by descending width. The remote catalog carries no
	// like counts, so width stands in for popularity.
	SortLikes SortMode = "likes"
	// SortDate reverses catalog order, newest last in the listing.
	SortDate SortMode = "date"
	// SortEngagement orders by the persisted like count.
	SortEngagement SortMode = "engagement"
)

// classicMinWidth is the width a record must exceed to count as classic.
const classicMinWidth = 500

// ParseFilter parses a filter name. Empty selects trending.
func ParseFilter(s string) (Filter, error) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FilterTrending, nil
	case FilterTrending, FilterNew, FilterClassic, FilterRandom:
		return f, nil
	default:
		return "", meme.Invalid("filter", fmt.Sprintf("unknown filter %q (want trending, new, classic or random)", s))
	}
}

// ParseSort parses a sort mode. Empty selects likes.
func ParseSort(s string) (SortMode, error) {
	switch m := SortMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return SortLikes, nil
	case SortLikes, SortDate, SortEngagement:
		return m, nil
	default:
		return "", meme.Invalid("sort", fmt.Sprintf("unknown sort %q (want likes, date or engagement)", s))
	}
}

// Config is the pipeline configuration.
type Config struct {
	Filter      Filter
	SortBy      SortMode
	SearchQuery string
	// PageSize truncates the result when positive.
	PageSize int
}

// Shuffler permutes records in place.
type Shuffler func(records []meme.Record)

// RandomShuffler permutes with math/rand.
func RandomShuffler(records []meme.Record) {
	rand.Shuffle(len(records), func(i, j int) {
		records[i], records[j] = records[j], records[i]
	})
}

// LikeCounter returns the persisted like count of a meme id.
type LikeCounter interface {
	LikeCount(ctx context.Context, memeID string) (int, error)
}

// Pipeline runs filter, sort, search and paginate over one page.
type Pipeline struct {
	shuffle Shuffler
	likes   LikeCounter
}

// NewPipeline creates a pipeline. A nil shuffler selects RandomShuffler;
// likes may be nil when SortEngagement is never used.
func NewPipeline(shuffle Shuffler, likes LikeCounter) *Pipeline {
	if shuffle == nil {
		shuffle = RandomShuffler
	}
	return &Pipeline{shuffle: shuffle, likes: likes}
}

// Run applies the stages in fixed order and returns a new slice. The input
// is never modified. Output is deterministic except under FilterRandom.
func (p *Pipeline) Run(ctx context.Context, records []meme.Record, cfg Config) ([]meme.Record, error) {
	out := p.filter(records, cfg.Filter)

	out, err := p.sort(ctx, out, cfg.SortBy)
	if err != nil {
		return nil, err
	}

	out = Search(out, cfg.SearchQuery)

	if cfg.PageSize > 0 && len(out) > cfg.PageSize {
		out = out[:cfg.PageSize]
	}
	return out, nil
}

func (p *Pipeline) filter(records []meme.Record, f Filter) []meme.Record {
	out := make([]meme.Record, 0, len(records))
	switch f {
	case FilterClassic:
		for _, r := range records {
			if r.Width > classicMinWidth {
				out = append(out, r)
			}
		}
	case FilterRandom:
		out = append(out, records...)
		p.shuffle(out)
	default:
		out = append(out, records...)
	}
	return out
}

func (p *Pipeline) sort(ctx context.Context, records []meme.Record, mode SortMode) ([]meme.Record, error) {
	switch mode {
	case SortDate:
		for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
			records[i], records[j] = records[j], records[i]
		}
	case SortEngagement:
		if p.likes == nil {
			return nil, fmt.Errorf("engagement sort: no like source configured")
		}
		counts := make(map[string]int, len(records))
		for _, r := range records {
			n, err := p.likes.LikeCount(ctx, r.ID)
			if err != nil {
				return nil, fmt.Errorf("engagement sort: %w", err)
			}
			counts[r.ID] = n
		}
		sort.SliceStable(records, func(i, j int) bool {
			return counts[records[i].ID] > counts[records[j].ID]
		})
	default:
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].Width > records[j].Width
		})
	}
	return records, nil
}

// Search keeps records whose name contains query, case-insensitively.
// An empty query keeps everything.
func Search(records []meme.Record, query string) []meme.Record {
	q := strings.ToLower(query)
	out := make([]meme.Record, 0, len(records))
	for _, r := range records {
		if q == "" || strings.Contains(strings.ToLower(r.Name), q) {
			out = append(out, r)
		}
	}
	return out
}

// Accumulate merges a processed page into the visible sequence. Page 1
// replaces it; later pages append records whose id is not already visible.
func Accumulate(visible, page []meme.Record, pageNumber int) []meme.Record {
	if pageNumber <= 1 {
		out := make([]meme.Record, len(page))
		copy(out, page)
		return out
	}

	seen := make(map[string]struct{}, len(visible)+len(page))
	out := make([]meme.Record, 0, len(visible)+len(page))
	for _, r := range visible {
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	for _, r := range page {
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	return out
}
