// Package engagement persists what the local user does: like counters and
// comments per meme id, the list of uploads, and the profile singleton.
//
// Every write goes through a single store transaction and is durable before
// the call returns, so a read that follows a write, from any component,
// observes it. The package-level *KV functions perform the same writes on a
// caller's transaction.
package engagement

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/hurttlocker/memeverse/internal/meme"
	"github.com/hurttlocker/memeverse/internal/store"
)

// Persisted keys.
const (
	LikesPrefix    = "meme_likes_"
	CommentsPrefix = "meme_comments_"
	UploadsKey     = "userMemes"
	ProfileKey     = "userProfile"
)

// LikesKey returns the key of the like counter for memeID.
func LikesKey(memeID string) string { return LikesPrefix + memeID }

// CommentsKey returns the key of the comment list for memeID.
func CommentsKey(memeID string) string { return CommentsPrefix + memeID }

// Store is the engagement store.
type Store struct {
	st store.Store
}

// NewStore returns an engagement store persisted in st.
func NewStore(st store.Store) *Store {
	return &Store{st: st}
}

// RecordLike increments the like counter of memeID by one and returns the
// new total. Every call increments; there is no unlike.
func (s *Store) RecordLike(ctx context.Context, memeID string) (int, error) {
	var n int
	err := s.st.Update(ctx, func(kv store.KV) error {
		var err error
		n, err = RecordLikeKV(ctx, kv, memeID)
		return err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// AddComment appends text to the comments of memeID and returns the full
// list. Blank text is rejected with a ValidationError and nothing is written.
func (s *Store) AddComment(ctx context.Context, memeID, text string) ([]string, error) {
	var out []string
	err := s.st.Update(ctx, func(kv store.KV) error {
		var err error
		out, err = AddCommentKV(ctx, kv, memeID, text)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetLikeCount returns the like count of memeID, 0 when absent.
func (s *Store) GetLikeCount(ctx context.Context, memeID string) (int, error) {
	return likeCount(ctx, s.st, memeID)
}

// LikeCount implements the feed's engagement sort source.
func (s *Store) LikeCount(ctx context.Context, memeID string) (int, error) {
	return s.GetLikeCount(ctx, memeID)
}

// GetComments returns the comments of memeID in insertion order.
func (s *Store) GetComments(ctx context.Context, memeID string) ([]string, error) {
	return comments(ctx, s.st, memeID)
}

// Likes returns every persisted like counter in store iteration order.
// Malformed counters are skipped.
func (s *Store) Likes(ctx context.Context) ([]meme.LikeRecord, error) {
	keys, err := s.st.Keys(ctx, LikesPrefix)
	if err != nil {
		return nil, fmt.Errorf("listing like counters: %w", err)
	}

	out := make([]meme.LikeRecord, 0, len(keys))
	for _, k := range keys {
		raw, ok, err := s.st.Get(ctx, k)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", k, err)
		}
		if !ok {
			continue
		}
		n, valid := parseCount(raw)
		if !valid {
			continue
		}
		out = append(out, meme.LikeRecord{MemeID: strings.TrimPrefix(k, LikesPrefix), LikeCount: n})
	}
	return out, nil
}

// AddUpload appends u to the uploads. There is no dedupe.
func (s *Store) AddUpload(ctx context.Context, u meme.Upload) error {
	return s.st.Update(ctx, func(kv store.KV) error {
		return AddUploadKV(ctx, kv, u)
	})
}

// ListUploads returns uploads in upload order.
func (s *Store) ListUploads(ctx context.Context) ([]meme.Upload, error) {
	return uploads(ctx, s.st)
}

// SetProfile replaces the profile.
func (s *Store) SetProfile(ctx context.Context, p meme.Profile) error {
	return s.st.Update(ctx, func(kv store.KV) error {
		return SetProfileKV(ctx, kv, p)
	})
}

// GetProfile returns the profile, or the default when it was never set or
// cannot be decoded.
func (s *Store) GetProfile(ctx context.Context) (meme.Profile, error) {
	raw, ok, err := s.st.Get(ctx, ProfileKey)
	if err != nil {
		return meme.Profile{}, fmt.Errorf("reading profile: %w", err)
	}
	if !ok {
		return meme.DefaultProfile(), nil
	}
	var p meme.Profile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return meme.DefaultProfile(), nil
	}
	return p, nil
}

// RecordLikeKV increments the like counter of memeID through kv.
func RecordLikeKV(ctx context.Context, kv store.KV, memeID string) (int, error) {
	if strings.TrimSpace(memeID) == "" {
		return 0, meme.Invalid("meme_id", "cannot be empty")
	}
	n, err := likeCount(ctx, kv, memeID)
	if err != nil {
		return 0, err
	}
	n++
	if err := kv.Set(ctx, LikesKey(memeID), strconv.Itoa(n)); err != nil {
		return 0, fmt.Errorf("saving like count: %w", err)
	}
	return n, nil
}

// AddCommentKV appends a comment through kv.
func AddCommentKV(ctx context.Context, kv store.KV, memeID, text string) ([]string, error) {
	if strings.TrimSpace(memeID) == "" {
		return nil, meme.Invalid("meme_id", "cannot be empty")
	}
	if strings.TrimSpace(text) == "" {
		return nil, meme.Invalid("text", "comment cannot be empty")
	}

	list, err := comments(ctx, kv, memeID)
	if err != nil {
		return nil, err
	}
	list = append(list, text)

	data, err := json.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("encoding comments: %w", err)
	}
	if err := kv.Set(ctx, CommentsKey(memeID), string(data)); err != nil {
		return nil, fmt.Errorf("saving comments: %w", err)
	}
	return list, nil
}

// AddUploadKV appends an upload through kv.
func AddUploadKV(ctx context.Context, kv store.KV, u meme.Upload) error {
	if err := meme.Validate(u); err != nil {
		return err
	}
	list, err := uploads(ctx, kv)
	if err != nil {
		return err
	}
	list = append(list, u)

	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("encoding uploads: %w", err)
	}
	if err := kv.Set(ctx, UploadsKey, string(data)); err != nil {
		return fmt.Errorf("saving uploads: %w", err)
	}
	return nil
}

// SetProfileKV replaces the profile through kv.
func SetProfileKV(ctx context.Context, kv store.KV, p meme.Profile) error {
	if err := meme.Validate(p); err != nil {
		return err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}
	if err := kv.Set(ctx, ProfileKey, string(data)); err != nil {
		return fmt.Errorf("saving profile: %w", err)
	}
	return nil
}

func likeCount(ctx context.Context, kv store.KV, memeID string) (int, error) {
	raw, ok, err := kv.Get(ctx, LikesKey(memeID))
	if err != nil {
		return 0, fmt.Errorf("reading like count: %w", err)
	}
	if !ok {
		return 0, nil
	}
	n, _ := parseCount(raw)
	return n, nil
}

// parseCount reads a persisted counter. Malformed or negative values count
// as absent.
func parseCount(raw string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func comments(ctx context.Context, kv store.KV, memeID string) ([]string, error) {
	raw, ok, err := kv.Get(ctx, CommentsKey(memeID))
	if err != nil {
		return nil, fmt.Errorf("reading comments: %w", err)
	}
	if !ok {
		return []string{}, nil
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil || list == nil {
		return []string{}, nil
	}
	return list, nil
}

func uploads(ctx context.Context, kv store.KV) ([]meme.Upload, error) {
	raw, ok, err := kv.Get(ctx, UploadsKey)
	if err != nil {
		return nil, fmt.Errorf("reading uploads: %w", err)
	}
	if !ok {
		return []meme.Upload{}, nil
	}
	var list []meme.Upload
	if err := json.Unmarshal([]byte(raw), &list); err != nil || list == nil {
		return []meme.Upload{}, nil
	}
	return list, nil
}
