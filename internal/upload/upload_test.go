package upload

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hurttlocker/memeverse/internal/meme"
)

func TestUploadSendsBase64Field(t *testing.T) {
	image := []byte("\x89PNG\r\n\x1a\nfake")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "secret", r.URL.Query().Get("key"))
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, base64.StdEncoding.EncodeToString(image), r.FormValue("image"))
		w.Write([]byte(`{"success":true,"data":{"url":"https://i.ibb.co/abc/meme.png"}}`))
	}))
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL, APIKey: "secret"})
	got, err := c.Upload(context.Background(), image)
	require.NoError(t, err)
	assert.Equal(t, "https://i.ibb.co/abc/meme.png", got)
}

func TestUploadEmptyImage(t *testing.T) {
	c := NewClient(Config{Endpoint: "http://127.0.0.1:0"})
	_, err := c.Upload(context.Background(), nil)
	assert.True(t, meme.IsValidation(err))
}

func TestUploadFailuresAreNetworkErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"bad status", http.StatusBadRequest, `{"error":{"message":"invalid key"}}`},
		{"error body", http.StatusOK, `{"error":{"message":"too large"}}`},
		{"missing url", http.StatusOK, `{"data":{}}`},
		{"not json", http.StatusOK, `<html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(Config{Endpoint: srv.URL}).Upload(context.Background(), []byte("img"))
			require.Error(t, err)
			assert.True(t, meme.IsNetwork(err))
		})
	}
}

func TestUploadBreakerOpens(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL})
	for i := 0; i < 5; i++ {
		_, err := c.Upload(context.Background(), []byte("img"))
		assert.True(t, meme.IsNetwork(err))
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}
