package source

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"resty.dev/v3"

	"github.com/couchcryptid/energy-weather-etl/internal/observability"
)

const (
	defaultRetryWaitTime    = 500 * time.Millisecond
	defaultRetryMaxWaitTime = 5 * time.Second
)

// Options tunes the HTTP client shared by both sources.
type Options struct {
	Timeout          time.Duration
	RetryCount       int
	RetryWaitTime    time.Duration
	RetryMaxWaitTime time.Duration
}

// Response is the raw body and status of one GET.
type Response struct {
	StatusCode int
	Body       []byte
}

// Client performs bounded-timeout GETs with retry. It is shared by both sources.
type Client struct {
	http    *resty.Client
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewClient creates a source client.
func NewClient(opts Options, metrics *observability.Metrics, logger *slog.Logger) *Client {
	if opts.RetryWaitTime <= 0 {
		opts.RetryWaitTime = defaultRetryWaitTime
	}
	if opts.RetryMaxWaitTime <= 0 {
		opts.RetryMaxWaitTime = defaultRetryMaxWaitTime
	}

	hc := resty.New().
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(opts.RetryWaitTime).
		SetRetryMaxWaitTime(opts.RetryMaxWaitTime).
		AddRetryConditions(retryCondition).
		AddRetryHooks(retryHook(logger))

	return &Client{
		http:    hc,
		metrics: metrics,
		logger:  logger,
	}
}

// Get issues a GET for the named source. Only transport failures are
// returned as errors; any HTTP status is a Response.
func (c *Client) Get(ctx context.Context, source, url string) (Response, error) {
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		Get(url)
	c.metrics.FetchDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())

	if err != nil {
		return Response{}, classifyTransportError(source, url, err)
	}
	return Response{StatusCode: resp.StatusCode(), Body: resp.Bytes()}, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	return c.http.Close()
}

// retryCondition retries transport errors, server errors, 429 and 408.
func retryCondition(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	code := r.StatusCode()
	return code >= http.StatusInternalServerError ||
		code == http.StatusTooManyRequests ||
		code == http.StatusRequestTimeout
}

func retryHook(logger *slog.Logger) resty.RetryHookFunc {
	return func(r *resty.Response, err error) {
		if err != nil {
			logger.Debug("retrying request due to error",
				"url", r.Request.URL,
				"attempt", r.Request.Attempt,
				"error", err.Error())
			return
		}
		logger.Debug("retrying request due to status code",
			"url", r.Request.URL,
			"attempt", r.Request.Attempt,
			"status_code", r.StatusCode())
	}
}
