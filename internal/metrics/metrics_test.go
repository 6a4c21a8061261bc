package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSetRegistersOnPrivateRegistry(t *testing.T) {
	// Two sets must not collide.
	a := NewSet()
	b := NewSet()
	require.NotSame(t, a.Registry, b.Registry)

	a.Engagement.ObserveMutation(OpLike, nil)
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Engagement.Mutations.WithLabelValues(OpLike, "ok")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Engagement.Mutations.WithLabelValues(OpLike, "ok")))
}

func TestObserveMutationStatus(t *testing.T) {
	s := NewSet()
	s.Engagement.ObserveMutation(OpComment, nil)
	s.Engagement.ObserveMutation(OpComment, errors.New("boom"))
	s.Engagement.ObserveMutation(OpComment, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(s.Engagement.Mutations.WithLabelValues(OpComment, "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(s.Engagement.Mutations.WithLabelValues(OpComment, "error")))
}

func TestNilCollectorsAreNoops(t *testing.T) {
	var e *EngagementMetrics
	var c *CatalogMetrics
	var h *HTTPMetrics

	assert.NotPanics(t, func() {
		e.ObserveMutation(OpLike, nil)
		e.ObserveResolutionGaps(3)
		c.ObserveFetch(nil)
	})
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	assert.NotNil(t, h.Middleware(next))
}

func TestResolutionGapsAndFetches(t *testing.T) {
	s := NewSet()
	s.Engagement.ObserveResolutionGaps(2)
	s.Engagement.ObserveResolutionGaps(0)
	s.Catalog.ObserveFetch(nil)
	s.Catalog.ObserveFetch(errors.New("down"))

	assert.Equal(t, 2.0, testutil.ToFloat64(s.Engagement.ResolutionGaps))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.Catalog.Fetches.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.Catalog.Fetches.WithLabelValues("error")))
}

func TestHTTPMiddlewareUsesRoutePattern(t *testing.T) {
	s := NewSet()
	r := chi.NewRouter()
	r.Use(s.HTTP.Middleware)
	r.Get("/api/memes/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {})

	for _, path := range []string{"/api/memes/1", "/api/memes/2", "/health"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(s.HTTP.RequestsTotal.WithLabelValues("GET", "/api/memes/{id}", "418")))
	assert.Equal(t, 1, testutil.CollectAndCount(s.HTTP.RequestsTotal))
}

func TestHandlerServesRegistry(t *testing.T) {
	s := NewSet()
	s.Engagement.ObserveMutation(OpUpload, nil)

	rec := httptest.NewRecorder()
	Handler(s.Registry).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "memeverse_engagement_mutations_total"))
}
