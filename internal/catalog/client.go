package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hurttlocker/memeverse/internal/meme"
)

const (
	// DefaultEndpoint is the public meme listing.
	DefaultEndpoint = "https://api.imgflip.com/get_memes"
	// DefaultPageSize bounds each fetched page.
	DefaultPageSize = 10
)

// ClientConfig holds the catalog client settings.
type ClientConfig struct {
	Endpoint   string
	PageSize   int
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client fetches pages of the remote catalog.
type Client struct {
	endpoint   string
	pageSize   int
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	group      singleflight.Group
	logger     *zap.Logger
}

type listResponse struct {
	Success      *bool  `json:"success,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	Data         struct {
		Memes []meme.Record `json:"memes"`
	} `json:"data"`
}

// NewClient creates a catalog client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	c := &Client{
		endpoint:   cfg.Endpoint,
		pageSize:   cfg.PageSize,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "catalog",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return c
}

// PageSize returns the number of records per page.
func (c *Client) PageSize() int { return c.pageSize }

// FetchPage returns page (1-based) of the catalog: the window
// [(page-1)*size, page*size) of the listing. Past the end it returns an empty
// page. Concurrent calls for the same page share one request.
func (c *Client) FetchPage(ctx context.Context, page int) ([]meme.Record, error) {
	if page < 1 {
		return nil, meme.Invalid("page", "must be at least 1")
	}

	v, err, shared := c.group.Do(strconv.Itoa(page), func() (interface{}, error) {
		return c.breaker.Execute(func() (interface{}, error) {
			return c.fetchAll(ctx)
		})
	})
	if err != nil {
		return nil, &meme.NetworkError{Op: "fetch catalog", Err: err}
	}
	if shared {
		c.logger.Debug("catalog fetch shared", zap.Int("page", page))
	}

	all := v.([]meme.Record)
	start := (page - 1) * c.pageSize
	if start >= len(all) {
		return []meme.Record{}, nil
	}
	end := start + c.pageSize
	if end > len(all) {
		end = len(all)
	}
	out := make([]meme.Record, end-start)
	copy(out, all[start:end])
	return out, nil
}

func (c *Client) fetchAll(ctx context.Context) ([]meme.Record, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("catalog returned %d: %s", resp.StatusCode, string(body))
	}

	var out listResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if out.Success != nil && !*out.Success {
		return nil, fmt.Errorf("catalog reported failure: %s", out.ErrorMessage)
	}

	c.logger.Debug("catalog fetched", zap.Int("memes", len(out.Data.Memes)))
	return out.Data.Memes, nil
}
