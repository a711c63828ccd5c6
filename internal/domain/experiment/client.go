package experiment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/GriffinCanCode/HeadlineTester/backend/internal/infrastructure/resilience"
	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
)

// Store endpoints, relative to the client's base URL
const (
	UpsertPath = "/api/widget/experiments"
	ConfigPath = "/api/widget/config"
)

// RequestError is a non-2xx response from the store
type RequestError struct {
	Status  int
	Code    string
	Message string
}

func (e *RequestError) Error() string {
	return e.Message
}

// ClientConfig configures a Client
type ClientConfig struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	// HTTPClient replaces the default transport stack, for tests
	HTTPClient *http.Client
	// Middleware runs before every request, e.g. trace propagation
	Middleware []resty.RequestMiddleware
	// ConfigRetries bounds retries of the config fetch; negative disables them
	ConfigRetries int
	// RetryWait is the first backoff between config fetch attempts
	RetryWait time.Duration
}

// Client calls the experiment store. Saves are never retried; config
// fetches are idempotent and retry on network errors and 5xx responses.
type Client struct {
	persist *resty.Client
	fetch   *resty.Client
	breaker *resilience.Breaker
}

// NewClient creates a client for the store at cfg.BaseURL
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "HeadlineTester-Widget/1.0"
	}

	switch {
	case cfg.ConfigRetries == 0:
		cfg.ConfigRetries = 2
	case cfg.ConfigRetries < 0:
		cfg.ConfigRetries = 0
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = 250 * time.Millisecond
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.ConfigRetries
	retryClient.RetryWaitMin = cfg.RetryWait
	retryClient.RetryWaitMax = 8 * cfg.RetryWait
	retryClient.Logger = nil
	// Hand the final response back so a persistent 5xx keeps its message
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if cfg.HTTPClient != nil {
		retryClient.HTTPClient = cfg.HTTPClient
	}

	persist := resty.NewWithClient(retryClient.HTTPClient)
	fetch := resty.NewWithClient(retryClient.StandardClient())
	for _, r := range []*resty.Client{persist, fetch} {
		r.SetBaseURL(cfg.BaseURL).
			SetTimeout(cfg.Timeout).
			SetRetryCount(0).
			SetHeader("User-Agent", cfg.UserAgent).
			SetHeader("Content-Type", "application/json").
			SetJSONMarshaler(sonic.Marshal).
			SetJSONUnmarshaler(sonic.Unmarshal)
		for _, m := range cfg.Middleware {
			r.OnBeforeRequest(m)
		}
	}

	breaker := resilience.New("experiment-store", resilience.Settings{
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c resilience.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		IsFailure: func(err error) bool {
			var reqErr *RequestError
			if errors.As(err, &reqErr) {
				return reqErr.Status >= http.StatusInternalServerError
			}
			return err != nil && !errors.Is(err, context.Canceled)
		},
	})

	return &Client{persist: persist, fetch: fetch, breaker: breaker}
}

// Upsert saves an experiment. A successful reset may return a nil snapshot.
func (c *Client) Upsert(ctx context.Context, controlToken string, req UpsertRequest) (*Snapshot, error) {
	var out *Snapshot
	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		var body UpsertResponse
		var failure struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}

		resp, err := c.persist.R().
			SetContext(ctx).
			SetAuthToken(controlToken).
			SetBody(req).
			SetResult(&body).
			SetError(&failure).
			Post(UpsertPath)
		if err != nil {
			return fmt.Errorf("upsert experiment: %w", err)
		}

		if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() > 299 {
			msg := failure.Message
			if msg == "" {
				msg = fmt.Sprintf("Request failed with status %d", resp.StatusCode())
			}
			return &RequestError{Status: resp.StatusCode(), Code: failure.Code, Message: msg}
		}

		out = body.Experiment
		return nil
	})
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
		return nil, fmt.Errorf("experiment store unavailable: %w", err)
	}
	return out, err
}

// Config fetches the public configuration for token, with the experiment
// stored for path when there is one
func (c *Client) Config(ctx context.Context, token, path string) (*WidgetConfig, error) {
	var body struct {
		Config *WidgetConfig `json:"config"`
	}
	var failure struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}

	resp, err := c.fetch.R().
		SetContext(ctx).
		SetQueryParam("token", token).
		SetQueryParam("path", path).
		SetResult(&body).
		SetError(&failure).
		Get(ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("fetch widget config: %w", err)
	}
	if resp.IsError() {
		msg := failure.Message
		if msg == "" {
			msg = fmt.Sprintf("Request failed with status %d", resp.StatusCode())
		}
		return nil, &RequestError{Status: resp.StatusCode(), Code: failure.Code, Message: msg}
	}
	if body.Config == nil {
		return nil, fmt.Errorf("fetch widget config: empty response")
	}
	return body.Config, nil
}

// BreakerState reports the circuit state, for health output
func (c *Client) BreakerState() resilience.State {
	return c.breaker.State()
}
