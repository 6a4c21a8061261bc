// Package httpapi exposes the engine as a local JSON API.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hurttlocker/memeverse/internal/catalog"
	"github.com/hurttlocker/memeverse/internal/engagement"
	"github.com/hurttlocker/memeverse/internal/feed"
	"github.com/hurttlocker/memeverse/internal/meme"
	"github.com/hurttlocker/memeverse/internal/metrics"
	"github.com/hurttlocker/memeverse/internal/mutation"
	"github.com/hurttlocker/memeverse/internal/ranking"
	"github.com/hurttlocker/memeverse/internal/store"
)

// maxUploadBytes bounds multipart request bodies.
const maxUploadBytes = 10 << 20

// Deps are the engine components the API serves.
type Deps struct {
	Store      store.Store
	Catalog    feed.Fetcher
	Cache      *catalog.Cache
	Engagement *engagement.Store
	Pipeline   *feed.Pipeline
	Ranking    *ranking.Engine
	Mutations  *mutation.Engine
	Metrics    *metrics.Set
	Logger     *zap.Logger
	Version    string
	// AllowedOrigins feeds CORS; empty allows any origin.
	AllowedOrigins []string
}

// Server is the HTTP API.
type Server struct {
	d      Deps
	logger *zap.Logger
}

// New creates the API server.
func New(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.NewSet()
	}
	return &Server{d: d, logger: d.Logger}
}

// Routes returns the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger(s.logger))
	r.Use(s.d.Metrics.HTTP.Middleware)

	origins := s.d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler(s.d.Metrics.Registry))

	r.Route("/api", func(r chi.Router) {
		r.Get("/feed", s.getFeed)

		r.Route("/memes/{id}", func(r chi.Router) {
			r.Get("/", s.getMeme)
			r.Post("/like", s.likeMeme)
			r.Get("/comments", s.listComments)
			r.Post("/comments", s.addComment)
		})

		r.Get("/uploads", s.listUploads)
		r.Post("/uploads", s.createUpload)
		r.Post("/captions", s.generateCaption)

		r.Get("/profile", s.getProfile)
		r.Put("/profile", s.putProfile)

		r.Get("/leaderboard/memes", s.topMemes)
		r.Get("/leaderboard/users", s.topUsers)
	})

	return r
}

// Serve runs the API on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http api listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("http api shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}

// requestLogger logs one line per request.
func requestLogger(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", chimiddleware.GetReqID(r.Context())),
			)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case meme.IsValidation(err):
		return http.StatusBadRequest
	case meme.IsNetwork(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", chimiddleware.GetReqID(r.Context())),
			zap.Error(err),
		)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
