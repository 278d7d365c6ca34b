package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/vectorstored/internal/config"
	"github.com/fyrsmithlabs/vectorstored/internal/errdefs"
)

const maxErrorBody = 4 << 10

// RemoteOptions configures an HTTP embedding backend.
type RemoteOptions struct {
	BaseURL   string
	APIKey    config.Secret
	Timeout   time.Duration
	RateLimit float64 // requests per second, 0 disables
	Burst     int

	// HTTPClient overrides the default client. Tests use it to point at
	// an httptest server.
	HTTPClient *http.Client
}

// remoteClient posts JSON to an embedding server behind a rate limiter and
// a circuit breaker.
type remoteClient struct {
	baseURL    string
	apiKey     config.Secret
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
}

func newRemoteClient(name string, opts RemoteOptions) (*remoteClient, error) {
	if opts.BaseURL == "" {
		return nil, errdefs.Configuration("%s: base URL required", name)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Client errors say nothing about server health.
		IsSuccessful: func(err error) bool {
			var se *statusError
			return err == nil || (errors.As(err, &se) && se.code < 500 && se.code != http.StatusTooManyRequests)
		},
	})

	return &remoteClient{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		httpClient: client,
		limiter:    rate.NewLimiter(limit, burst),
		breaker:    breaker,
	}, nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("embedding server returned %d: %s", e.code, e.body)
}

// postJSON sends in to path and decodes the response into out.
func (c *remoteClient) postJSON(ctx context.Context, path string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	_, err = c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey.IsSet() {
			req.Header.Set("Authorization", "Bearer "+c.apiKey.Value())
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			return nil, &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(body))}
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		return nil, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s unavailable: %v", errdefs.ErrEmbeddingCompute, c.baseURL, err)
	}
	return err
}
