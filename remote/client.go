package remote

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/mcmanager/minimanager/internal/models"
)

// Client talks to the control plane that owns World records. The daemon only
// reads worlds from it and reports activity back; it never writes worlds.
type Client interface {
	// GetEnabledWorlds returns every enabled world assigned to this node.
	GetEnabledWorlds(ctx context.Context, perPage int) ([]World, error)
	GetWorld(ctx context.Context, id string) (World, error)
	SendActivityLogs(ctx context.Context, activity []models.Activity) error
}

type client struct {
	httpClient  *http.Client
	baseUrl     string
	token       string
	maxAttempts int
	retryDelay  time.Duration
}

type ClientOption func(c *client)

// New returns a client for the control plane at the given base URL.
func New(base string, opts ...ClientOption) Client {
	c := &client{
		baseUrl: strings.TrimSuffix(base, "/") + "/api/remote",
		httpClient: &http.Client{
			Timeout: time.Second * 15,
		},
		maxAttempts: 3,
		retryDelay:  time.Millisecond * 500,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// WithCredentials sets the bearer token sent with every request.
func WithCredentials(token string) ClientOption {
	return func(c *client) {
		c.token = token
	}
}

// WithHttpClient sets the underlying HTTP client.
func WithHttpClient(httpClient *http.Client) ClientOption {
	return func(c *client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the timeout of a single request.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *client) {
		c.httpClient.Timeout = timeout
	}
}

// WithRetries sets how often a request is attempted in total and the delay
// before the first retry. Later retries back off exponentially.
func WithRetries(attempts int, delay time.Duration) ClientOption {
	return func(c *client) {
		if attempts < 1 {
			attempts = 1
		}
		c.maxAttempts = attempts
		c.retryDelay = delay
	}
}
