package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/couchcryptid/energy-weather-etl/internal/domain"
)

// Getter retrieves a raw response. *Client implements it.
type Getter interface {
	Get(ctx context.Context, source, url string) (Response, error)
}

// Normalizer turns a response body into records.
type Normalizer[T any] func(body []byte) ([]T, error)

// FetchAndNormalize GETs url and hands the body to normalize.
//
// A non-200 status is logged and the body is still normalized; a bad body
// then surfaces as domain.ErrMalformedResponse. Transport failures are
// returned as *FetchError. The error is always one of *FetchError,
// domain.ErrMalformedResponse or domain.ErrNoData, each wrapped with the
// source name.
func FetchAndNormalize[T any](ctx context.Context, g Getter, logger *slog.Logger, source, url string, normalize Normalizer[T]) ([]T, error) {
	resp, err := g.Get(ctx, source, url)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		logger.Warn("request not successful",
			"source", source,
			"url", url,
			"status", resp.StatusCode,
		)
	}

	records, err := normalize(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	return records, nil
}

// Source fetches and normalizes one endpoint, throttled by its own token bucket.
type Source[T any] struct {
	name      string
	url       string
	getter    Getter
	limiter   *rate.Limiter
	normalize Normalizer[T]
	logger    *slog.Logger
}

// NewPriceSource creates the market price source.
func NewPriceSource(g Getter, url string, rateLimit float64, logger *slog.Logger) *Source[domain.PriceRecord] {
	return newSource(domain.SourcePrice, url, g, rateLimit, domain.NormalizePrices, logger)
}

// NewWeatherSource creates the weather source.
func NewWeatherSource(g Getter, url string, rateLimit float64, logger *slog.Logger) *Source[domain.WeatherRecord] {
	return newSource(domain.SourceWeather, url, g, rateLimit, domain.NormalizeWeather, logger)
}

func newSource[T any](name, url string, g Getter, rateLimit float64, normalize Normalizer[T], logger *slog.Logger) *Source[T] {
	limit := rate.Inf
	if rateLimit > 0 {
		limit = rate.Limit(rateLimit)
	}
	return &Source[T]{
		name:      name,
		url:       url,
		getter:    g,
		limiter:   rate.NewLimiter(limit, 1),
		normalize: normalize,
		logger:    logger,
	}
}

// Name returns the source name used in logs, metrics and file names.
func (s *Source[T]) Name() string { return s.name }

// Extract waits for the rate limiter, then fetches and normalizes the endpoint.
func (s *Source[T]) Extract(ctx context.Context) ([]T, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, &FetchError{Type: ErrorTypeRateLimit, Source: s.name, URL: s.url, Cause: err}
	}
	return FetchAndNormalize(ctx, s.getter, s.logger, s.name, s.url, s.normalize)
}
