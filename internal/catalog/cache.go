// Package catalog holds the remote meme catalog: the HTTP client that fetches
// pages of it and the persisted cache that keeps fetched records resolvable
// after the feed has moved on.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hurttlocker/memeverse/internal/meme"
	"github.com/hurttlocker/memeverse/internal/store"
)

// CacheKey is the store key holding the cached catalog.
const CacheKey = "apiMemes"

// Cache is the catalog cache. It has no in-process copy: every call reads
// the store, so writes made inside another component's transaction are seen
// immediately.
type Cache struct {
	st store.Store
}

// NewCache returns a cache persisted in st.
func NewCache(st store.Store) *Cache {
	return &Cache{st: st}
}

// Put merges page into the cache: union by id, the last write wins per id
// and an id keeps the position it was first inserted at.
func (c *Cache) Put(ctx context.Context, page []meme.Record) error {
	if len(page) == 0 {
		return nil
	}
	return c.st.Update(ctx, func(kv store.KV) error {
		return PutKV(ctx, kv, page)
	})
}

// Get returns the cached record for id.
func (c *Cache) Get(ctx context.Context, id string) (meme.Record, bool, error) {
	records, err := load(ctx, c.st)
	if err != nil {
		return meme.Record{}, false, err
	}
	for _, r := range records {
		if r.ID == id {
			return r, true, nil
		}
	}
	return meme.Record{}, false, nil
}

// All returns every cached record in insertion order.
func (c *Cache) All(ctx context.Context) ([]meme.Record, error) {
	return load(ctx, c.st)
}

// Index returns the cached records keyed by id.
func (c *Cache) Index(ctx context.Context) (map[string]meme.Record, error) {
	records, err := load(ctx, c.st)
	if err != nil {
		return nil, err
	}
	idx := make(map[string]meme.Record, len(records))
	for _, r := range records {
		idx[r.ID] = r
	}
	return idx, nil
}

// PutKV merges records into the cache through kv, for callers that need the
// write inside their own transaction.
func PutKV(ctx context.Context, kv store.KV, records []meme.Record) error {
	existing, err := load(ctx, kv)
	if err != nil {
		return err
	}

	pos := make(map[string]int, len(existing))
	for i, r := range existing {
		pos[r.ID] = i
	}
	for _, r := range records {
		if r.ID == "" {
			continue
		}
		if i, ok := pos[r.ID]; ok {
			existing[i] = r
			continue
		}
		pos[r.ID] = len(existing)
		existing = append(existing, r)
	}

	data, err := json.Marshal(existing)
	if err != nil {
		return fmt.Errorf("encoding catalog cache: %w", err)
	}
	return kv.Set(ctx, CacheKey, string(data))
}

// load reads the cached catalog. Malformed content reads as an empty cache.
func load(ctx context.Context, kv store.KV) ([]meme.Record, error) {
	raw, ok, err := kv.Get(ctx, CacheKey)
	if err != nil {
		return nil, fmt.Errorf("reading catalog cache: %w", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var records []meme.Record
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, nil
	}
	return records, nil
}
