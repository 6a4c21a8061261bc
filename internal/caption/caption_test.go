package caption

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hurttlocker/memeverse/internal/llm"
	"github.com/hurttlocker/memeverse/internal/meme"
)

var img = []byte("\xff\xd8\xff\xe0fake-jpeg")

func TestMemeAPIGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		w.Write([]byte(`{"text":"One does not simply write tests"}`))
	}))
	defer srv.Close()

	got, err := NewMemeAPI(srv.URL, 0).Generate(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, "One does not simply write tests", got)
}

func TestMemeAPIFallback(t *testing.T) {
	for _, body := range []string{`{}`, `{"text":""}`, `{"text":"   "}`} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		}))

		got, err := NewMemeAPI(srv.URL, 0).Generate(context.Background(), img)
		require.NoError(t, err)
		assert.Equal(t, Fallback, got, "body %s", body)
		srv.Close()
	}
}

func TestMemeAPIFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewMemeAPI(srv.URL, 0).Generate(context.Background(), img)
	assert.True(t, meme.IsNetwork(err))

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer bad.Close()

	_, err = NewMemeAPI(bad.URL, 0).Generate(context.Background(), img)
	assert.True(t, meme.IsNetwork(err))
}

func TestGenerateRequiresImage(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	_, err := NewMemeAPI(srv.URL, 0).Generate(context.Background(), nil)
	assert.True(t, meme.IsValidation(err))
	assert.False(t, called)

	_, err = NewLLM(&stubProvider{}).Generate(context.Background(), []byte{})
	assert.True(t, meme.IsValidation(err))
}

type stubProvider struct {
	reply string
	err   error
	opts  llm.CompletionOpts
}

func (s *stubProvider) Complete(_ context.Context, _ string, opts llm.CompletionOpts) (string, error) {
	s.opts = opts
	return s.reply, s.err
}

func (s *stubProvider) Name() string { return "stub/model" }

func TestLLMGenerate(t *testing.T) {
	p := &stubProvider{reply: "\"Nobody:\"\nMe: writing Go at 3am"}
	got, err := NewLLM(p).Generate(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, "Nobody:", got)
	require.NotNil(t, p.opts.Image)
	assert.Equal(t, img, p.opts.Image.Data)
	assert.NotEmpty(t, p.opts.System)

	_, err = NewLLM(&stubProvider{err: errors.New("quota")}).Generate(context.Background(), img)
	assert.True(t, meme.IsNetwork(err))

	got, err = NewLLM(&stubProvider{reply: "  "}).Generate(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, Fallback, got)
}

func TestNewSelectsProvider(t *testing.T) {
	g, err := New(Config{})
	require.NoError(t, err)
	assert.Equal(t, "meme-api", g.Name())

	g, err = New(Config{Provider: "openrouter/openai/gpt-4o-mini", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "openrouter/openai/gpt-4o-mini", g.Name())

	_, err = New(Config{Provider: "bogus/model"})
	assert.Error(t, err)
}
