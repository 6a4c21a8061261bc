// Package mutation is the only way engagement state changes. Each operation
// validates its input, then runs as one store transaction: either every
// write lands or none does.
package mutation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hurttlocker/memeverse/internal/catalog"
	"github.com/hurttlocker/memeverse/internal/engagement"
	"github.com/hurttlocker/memeverse/internal/meme"
	"github.com/hurttlocker/memeverse/internal/metrics"
	"github.com/hurttlocker/memeverse/internal/store"
)

var (
	// ErrNoImageHost is returned by UploadImage when no uploader is configured.
	ErrNoImageHost = errors.New("no image host configured")
	// ErrNoCaptioner is returned by GenerateCaption when no generator is configured.
	ErrNoCaptioner = errors.New("no caption generator configured")
)

// Uploader hosts image bytes and returns their URL.
type Uploader interface {
	Upload(ctx context.Context, image []byte) (string, error)
}

// Captioner produces a caption for image bytes.
type Captioner interface {
	Generate(ctx context.Context, image []byte) (string, error)
}

// Config holds the engine collaborators. All fields are optional.
type Config struct {
	Uploader  Uploader
	Captioner Captioner
	Logger    *zap.Logger
	Metrics   *metrics.EngagementMetrics
	// Now and NewID default to time.Now and uuid.NewString.
	Now   func() time.Time
	NewID func() string
}

// Engine applies mutations to the store.
type Engine struct {
	st        store.Store
	uploader  Uploader
	captioner Captioner
	logger    *zap.Logger
	metrics   *metrics.EngagementMetrics
	now       func() time.Time
	newID     func() string
}

// NewEngine creates a mutation engine over st.
func NewEngine(st store.Store, cfg Config) *Engine {
	e := &Engine{
		st:        st,
		uploader:  cfg.Uploader,
		captioner: cfg.Captioner,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		now:       cfg.Now,
		newID:     cfg.NewID,
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}
	return e
}

// Like increments the like count of memeID and returns the new count.
func (e *Engine) Like(ctx context.Context, memeID string) (int, error) {
	var n int
	err := e.st.Update(ctx, func(kv store.KV) error {
		var err error
		n, err = engagement.RecordLikeKV(ctx, kv, memeID)
		return err
	})
	e.observe(metrics.OpLike, err, zap.String("meme_id", memeID), zap.Int("likes", n))
	if err != nil {
		return 0, err
	}
	return n, nil
}

// LikeMeme caches rec in the catalog cache and increments its like count in
// the same transaction, so the like can be resolved by the leaderboard.
func (e *Engine) LikeMeme(ctx context.Context, rec meme.Record) (int, error) {
	var n int
	err := func() error {
		if strings.TrimSpace(rec.ID) == "" {
			return meme.Invalid("id", "is required")
		}
		return e.st.Update(ctx, func(kv store.KV) error {
			if err := catalog.PutKV(ctx, kv, []meme.Record{rec}); err != nil {
				return err
			}
			var err error
			n, err = engagement.RecordLikeKV(ctx, kv, rec.ID)
			return err
		})
	}()
	e.observe(metrics.OpLike, err, zap.String("meme_id", rec.ID), zap.Int("likes", n))
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Comment appends text to the comments of memeID and returns all of them.
// Blank text is a ValidationError.
func (e *Engine) Comment(ctx context.Context, memeID, text string) ([]string, error) {
	var out []string
	err := e.st.Update(ctx, func(kv store.KV) error {
		var err error
		out, err = engagement.AddCommentKV(ctx, kv, memeID, text)
		return err
	})
	e.observe(metrics.OpComment, err, zap.String("meme_id", memeID), zap.Int("comments", len(out)))
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Upload records an already hosted image as a user upload.
func (e *Engine) Upload(ctx context.Context, imageURL, caption, username string) (meme.Upload, error) {
	u := meme.Upload{
		ID:        e.newID(),
		ImageURL:  strings.TrimSpace(imageURL),
		Caption:   caption,
		Username:  strings.TrimSpace(username),
		CreatedAt: e.now().UTC(),
	}
	err := e.st.Update(ctx, func(kv store.KV) error {
		return engagement.AddUploadKV(ctx, kv, u)
	})
	e.observe(metrics.OpUpload, err, zap.String("upload_id", u.ID), zap.String("image", u.ImageURL))
	if err != nil {
		return meme.Upload{}, err
	}
	return u, nil
}

// EditProfile replaces the profile and returns it.
func (e *Engine) EditProfile(ctx context.Context, p meme.Profile) (meme.Profile, error) {
	p.DisplayName = strings.TrimSpace(p.DisplayName)
	p.AvatarURL = strings.TrimSpace(p.AvatarURL)
	err := e.st.Update(ctx, func(kv store.KV) error {
		return engagement.SetProfileKV(ctx, kv, p)
	})
	e.observe(metrics.OpEditProfile, err, zap.String("display_name", p.DisplayName))
	if err != nil {
		return meme.Profile{}, err
	}
	return p, nil
}

// UploadImage hosts image and records it as an upload. When the host fails
// nothing is recorded.
func (e *Engine) UploadImage(ctx context.Context, image []byte, caption, username string) (meme.Upload, error) {
	if len(image) == 0 {
		err := meme.Invalid("image", "please select an image")
		e.observe(metrics.OpUpload, err)
		return meme.Upload{}, err
	}
	if e.uploader == nil {
		e.observe(metrics.OpUpload, ErrNoImageHost)
		return meme.Upload{}, ErrNoImageHost
	}

	hosted, err := e.uploader.Upload(ctx, image)
	if err != nil {
		e.observe(metrics.OpUpload, err, zap.Int("bytes", len(image)))
		return meme.Upload{}, err
	}
	return e.Upload(ctx, hosted, caption, username)
}

// GenerateCaption asks the configured generator for a caption. It writes
// nothing.
func (e *Engine) GenerateCaption(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		err := meme.Invalid("image", "upload an image first")
		e.observe(metrics.OpCaption, err)
		return "", err
	}
	if e.captioner == nil {
		e.observe(metrics.OpCaption, ErrNoCaptioner)
		return "", ErrNoCaptioner
	}
	text, err := e.captioner.Generate(ctx, image)
	e.observe(metrics.OpCaption, err, zap.Int("bytes", len(image)))
	if err != nil {
		return "", err
	}
	return text, nil
}

func (e *Engine) observe(op string, err error, fields ...zap.Field) {
	e.metrics.ObserveMutation(op, err)
	fields = append(fields, zap.String("op", op))
	switch {
	case err == nil:
		e.logger.Debug("mutation applied", fields...)
	case meme.IsValidation(err):
		e.logger.Debug("mutation rejected", append(fields, zap.Error(err))...)
	default:
		e.logger.Warn("mutation failed", append(fields, zap.Error(err))...)
	}
}
