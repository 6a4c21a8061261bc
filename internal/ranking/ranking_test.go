package ranking

import (
	"context"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hurttlocker/memeverse/internal/catalog"
	"github.com/hurttlocker/memeverse/internal/engagement"
	"github.com/hurttlocker/memeverse/internal/meme"
	"github.com/hurttlocker/memeverse/internal/metrics"
	"github.com/hurttlocker/memeverse/internal/store"
)

type fixture struct {
	engagement *engagement.Store
	cache      *catalog.Cache
	metrics    *metrics.Set
	engine     *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewMemoryStore()
	f := &fixture{
		engagement: engagement.NewStore(st),
		cache:      catalog.NewCache(st),
		metrics:    metrics.NewSet(),
	}
	f.engine = NewEngine(f.engagement, f.cache, WithMetrics(f.metrics.Engagement))
	return f
}

func (f *fixture) like(t *testing.T, id string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := f.engagement.RecordLike(context.Background(), id)
		require.NoError(t, err)
	}
}

func TestTopUsersScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.engagement.AddUpload(ctx, meme.Upload{ImageURL: "u1", Caption: "c1", Username: "alice"}))
	f.like(t, "u1", 2)

	users, err := f.engine.TopUsers(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []meme.UserRankEntry{{Username: "alice", TotalLikes: 2}}, users)
}

func TestTopUsersGroupsAndDefaultsUsername(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	uploads := []meme.Upload{
		{ImageURL: "a1", Username: "alice"},
		{ImageURL: "n1"},
		{ImageURL: "b1", Username: "bob"},
		{ImageURL: "a2", Username: "alice"},
		{ImageURL: "n2", Username: "  "},
		{ImageURL: "c1", Username: "carol"},
	}
	for _, u := range uploads {
		require.NoError(t, f.engagement.AddUpload(ctx, u))
	}
	f.like(t, "a1", 1)
	f.like(t, "a2", 2)
	f.like(t, "n1", 3)
	f.like(t, "n2", 1)
	f.like(t, "b1", 3)

	users, err := f.engine.TopUsers(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []meme.UserRankEntry{
		{Username: meme.UnknownUser, TotalLikes: 4},
		{Username: "alice", TotalLikes: 3},
		{Username: "bob", TotalLikes: 3},
		{Username: "carol", TotalLikes: 0},
	}, users)

	top2, err := f.engine.TopUsers(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, top2, 2)
}

func TestTopUsersCountsDuplicateUploadsTwice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	u := meme.Upload{ImageURL: "same", Username: "dup"}
	require.NoError(t, f.engagement.AddUpload(ctx, u))
	require.NoError(t, f.engagement.AddUpload(ctx, u))
	f.like(t, "same", 1)

	users, err := f.engine.TopUsers(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []meme.UserRankEntry{{Username: "dup", TotalLikes: 2}}, users)
}

func TestTopMemesExcludesOrphans(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.cache.Put(ctx, []meme.Record{
		{ID: "1", Name: "Drake", URL: "https://i.imgflip.com/30b1gx.jpg"},
		{ID: "2", Name: "Two Buttons", URL: "https://i.imgflip.com/1g8my4.jpg"},
	}))
	f.like(t, "1", 2)
	f.like(t, "orphan", 9)
	f.like(t, "2", 5)

	top, err := f.engine.TopMemes(ctx, 0)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "2", top[0].Meme.ID)
	assert.Equal(t, 5, top[0].LikeCount)
	assert.Equal(t, "1", top[1].Meme.ID)
	for _, e := range top {
		assert.NotEqual(t, "orphan", e.Meme.ID)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Engagement.ResolutionGaps))
}

func TestTopMemesSortedAndBounded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var page []meme.Record
	for i := 1; i <= 15; i++ {
		page = append(page, meme.Record{ID: fmt.Sprint(i), URL: fmt.Sprintf("https://i.imgflip.com/%d.jpg", i)})
	}
	require.NoError(t, f.cache.Put(ctx, page))
	for i := 1; i <= 15; i++ {
		f.like(t, fmt.Sprint(i), i%4+1)
	}

	top, err := f.engine.TopMemes(ctx, 0)
	require.NoError(t, err)
	require.Len(t, top, DefaultMemeLimit)
	for i := 1; i < len(top); i++ {
		assert.GreaterOrEqual(t, top[i-1].LikeCount, top[i].LikeCount)
	}

	top3, err := f.engine.TopMemes(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, top3, 3)
}

func TestTopMemesTiesKeepLikeOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.cache.Put(ctx, []meme.Record{{ID: "a", URL: "a.jpg"}, {ID: "b", URL: "b.jpg"}, {ID: "c", URL: "c.jpg"}}))
	f.like(t, "c", 1)
	f.like(t, "a", 1)
	f.like(t, "b", 1)

	top, err := f.engine.TopMemes(ctx, 0)
	require.NoError(t, err)
	got := make([]string, len(top))
	for i, e := range top {
		got[i] = e.Meme.ID
	}
	assert.Equal(t, []string{"c", "a", "b"}, got)
}

func TestTopMemesSkipsRecordsWithoutImage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.cache.Put(ctx, []meme.Record{
		{ID: "bare", Name: "No image"},
		{ID: "blank", URL: "  "},
		{ID: "ok", URL: "https://i.imgflip.com/ok.jpg"},
	}))
	f.like(t, "bare", 4)
	f.like(t, "blank", 3)
	f.like(t, "ok", 1)

	top, err := f.engine.TopMemes(ctx, 0)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "ok", top[0].Meme.ID)
	assert.Zero(t, testutil.ToFloat64(f.metrics.Engagement.ResolutionGaps))
}

func TestRankingRecomputesAfterMutation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.cache.Put(ctx, []meme.Record{{ID: "1", URL: "1.jpg"}, {ID: "2", URL: "2.jpg"}}))
	f.like(t, "1", 1)

	top, err := f.engine.TopMemes(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "1", top[0].Meme.ID)

	f.like(t, "2", 2)
	top, err = f.engine.TopMemes(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "2", top[0].Meme.ID)
}
