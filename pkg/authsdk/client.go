package authsdk

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultRequestTimeout bounds every request issued by the client,
	// independent of the transport's own timeout. A hung request must not
	// indefinitely block waiters joined via single-flight.
	DefaultRequestTimeout = 15 * time.Second
)

// Client is a client for the CodeStrata authentication backend.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	// RequestTimeout is applied per request on top of the caller's context.
	RequestTimeout time.Duration

	Logger *slog.Logger
}

// NewClient creates a new auth backend client.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		RequestTimeout: DefaultRequestTimeout,
		Logger:         logger,
	}
}

// opContext derives the per-request context with the client timeout applied.
func (c *Client) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := c.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

func (c *Client) url(path string) string {
	return c.BaseURL + path
}
