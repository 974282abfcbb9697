package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/energy-weather-etl/internal/domain"
	"github.com/couchcryptid/energy-weather-etl/internal/observability"
)

// Extractor fetches and normalizes one source.
type Extractor[T any] interface {
	Name() string
	Extract(ctx context.Context) ([]T, error)
}

// MergeSink consumes the joined records of one cycle.
type MergeSink interface {
	WriteMerged(ctx context.Context, startedAt time.Time, records []domain.MergedRecord) error
}

// SourceSink stores each source's records independently.
type SourceSink interface {
	WritePrices(ctx context.Context, startedAt time.Time, records []domain.PriceRecord) error
	WriteWeather(ctx context.Context, startedAt time.Time, records []domain.WeatherRecord) error
}

// Outcome is the result of one cycle.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeEmpty   Outcome = "empty"
	OutcomeFailed  Outcome = "failed"
)

// Per-source fetch outcomes, used as metric labels.
const (
	sourceOK          = "ok"
	sourceEmpty       = "empty"
	sourceFetchFailed = "fetch_failed"
	sourceMalformed   = "malformed"
)

// Options tunes a Pipeline.
type Options struct {
	// ParallelFetch fetches both sources concurrently. Both complete before
	// the sink step either way.
	ParallelFetch bool
	// Clock stamps cycle start times. Defaults to the real clock.
	Clock clockwork.Clock
}

// Pipeline runs one fetch-normalize-sink cycle at a time. It keeps no state
// between cycles apart from readiness.
type Pipeline struct {
	prices     Extractor[domain.PriceRecord]
	weather    Extractor[domain.WeatherRecord]
	mergeSink  MergeSink
	sourceSink SourceSink
	parallel   bool
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics
	ready      atomic.Bool
}

// NewMerging creates a Pipeline that joins both sources and hands the result
// to sink.
func NewMerging(prices Extractor[domain.PriceRecord], weather Extractor[domain.WeatherRecord], sink MergeSink, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Pipeline {
	p := newPipeline(prices, weather, logger, metrics, opts)
	p.mergeSink = sink
	return p
}

// NewPersisting creates a Pipeline that writes each source on its own.
func NewPersisting(prices Extractor[domain.PriceRecord], weather Extractor[domain.WeatherRecord], sink SourceSink, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Pipeline {
	p := newPipeline(prices, weather, logger, metrics, opts)
	p.sourceSink = sink
	return p
}

func newPipeline(prices Extractor[domain.PriceRecord], weather Extractor[domain.WeatherRecord], logger *slog.Logger, metrics *observability.Metrics, opts Options) *Pipeline {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Pipeline{
		prices:   prices,
		weather:  weather,
		parallel: opts.ParallelFetch,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
	}
}

// CheckReadiness returns nil once at least one cycle has completed.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed a cycle yet")
	}
	return nil
}

// Ready reports whether a cycle has completed.
func (p *Pipeline) Ready() bool {
	return p.ready.Load()
}

type fetchResult[T any] struct {
	records []T
	err     error
}

// usable reports whether the result has records to sink.
func (r fetchResult[T]) usable() bool {
	return r.err == nil && len(r.records) > 0
}

// failed reports whether the result is a failure rather than an empty result.
func (r fetchResult[T]) failed() bool {
	return r.err != nil && !errors.Is(r.err, domain.ErrNoData)
}

// RunCycle fetches both sources, then merges or persists. Source failures
// and sink failures are logged and returned joined; they never panic.
// An empty source yields OutcomeEmpty with a nil error.
func (p *Pipeline) RunCycle(ctx context.Context) (Outcome, error) {
	startedAt := p.clock.Now()
	cycleID := uuid.NewString()
	logger := p.logger.With("cycle_id", cycleID)
	logger.Debug("cycle started", "started_at", startedAt)

	prices, weather := p.fetch(ctx, logger)

	var (
		outcome Outcome
		err     error
	)
	if p.sourceSink != nil {
		outcome, err = p.persist(ctx, logger, startedAt, prices, weather)
	} else {
		outcome, err = p.merge(ctx, logger, startedAt, prices, weather)
	}

	p.metrics.Cycles.WithLabelValues(string(outcome)).Inc()
	p.metrics.CycleDuration.Observe(p.clock.Since(startedAt).Seconds())
	p.ready.Store(true)

	logger.Info("cycle completed", "outcome", outcome)
	return outcome, err
}

func (p *Pipeline) fetch(ctx context.Context, logger *slog.Logger) (fetchResult[domain.PriceRecord], fetchResult[domain.WeatherRecord]) {
	var (
		prices  fetchResult[domain.PriceRecord]
		weather fetchResult[domain.WeatherRecord]
	)
	if !p.parallel {
		prices = extract(ctx, p.prices, logger, p.metrics)
		weather = extract(ctx, p.weather, logger, p.metrics)
		return prices, weather
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		prices = extract(ctx, p.prices, logger, p.metrics)
	}()
	go func() {
		defer wg.Done()
		weather = extract(ctx, p.weather, logger, p.metrics)
	}()
	wg.Wait()
	return prices, weather
}

func extract[T any](ctx context.Context, e Extractor[T], logger *slog.Logger, metrics *observability.Metrics) fetchResult[T] {
	records, err := e.Extract(ctx)
	label := classify(err)
	metrics.SourceFetches.WithLabelValues(e.Name(), label).Inc()

	switch label {
	case sourceOK:
		metrics.RecordsNormalized.WithLabelValues(e.Name()).Add(float64(len(records)))
		logger.Debug("source normalized", "source", e.Name(), "records", len(records))
	case sourceEmpty:
		logger.Info("source returned no data", "source", e.Name())
	default:
		logger.Error("source failed", "source", e.Name(), "outcome", label, "error", err)
	}
	return fetchResult[T]{records: records, err: err}
}

func classify(err error) string {
	switch {
	case err == nil:
		return sourceOK
	case errors.Is(err, domain.ErrNoData):
		return sourceEmpty
	case errors.Is(err, domain.ErrMalformedResponse):
		return sourceMalformed
	default:
		return sourceFetchFailed
	}
}

func (p *Pipeline) merge(ctx context.Context, logger *slog.Logger, startedAt time.Time, prices fetchResult[domain.PriceRecord], weather fetchResult[domain.WeatherRecord]) (Outcome, error) {
	if prices.failed() || weather.failed() {
		return OutcomeFailed, sourceErrors(prices, weather)
	}
	if !prices.usable() || !weather.usable() {
		logger.Info("nothing to merge, skipping sink")
		return OutcomeEmpty, nil
	}

	merged := domain.Merge(prices.records, weather.records)
	p.metrics.MergedRecords.Add(float64(len(merged)))
	logger.Debug("sources merged",
		"prices", len(prices.records),
		"weather", len(weather.records),
		"merged", len(merged),
	)

	if err := p.mergeSink.WriteMerged(ctx, startedAt, merged); err != nil {
		logger.Error("sink write failed", "error", err, "records", len(merged))
		return OutcomeFailed, err
	}
	return OutcomeSuccess, nil
}

func (p *Pipeline) persist(ctx context.Context, logger *slog.Logger, startedAt time.Time, prices fetchResult[domain.PriceRecord], weather fetchResult[domain.WeatherRecord]) (Outcome, error) {
	errs := []error{sourceErrors(prices, weather)}
	written := 0

	if prices.usable() {
		if err := p.sourceSink.WritePrices(ctx, startedAt, prices.records); err != nil {
			logger.Error("sink write failed", "source", p.prices.Name(), "error", err)
			errs = append(errs, err)
		} else {
			written++
		}
	}
	if weather.usable() {
		if err := p.sourceSink.WriteWeather(ctx, startedAt, weather.records); err != nil {
			logger.Error("sink write failed", "source", p.weather.Name(), "error", err)
			errs = append(errs, err)
		} else {
			written++
		}
	}

	if err := errors.Join(errs...); err != nil {
		return OutcomeFailed, err
	}
	if written == 0 {
		return OutcomeEmpty, nil
	}
	return OutcomeSuccess, nil
}

// sourceErrors joins the failures of both sources, ignoring empty results.
func sourceErrors(prices fetchResult[domain.PriceRecord], weather fetchResult[domain.WeatherRecord]) error {
	var errs []error
	if prices.failed() {
		errs = append(errs, prices.err)
	}
	if weather.failed() {
		errs = append(errs, weather.err)
	}
	return errors.Join(errs...)
}
