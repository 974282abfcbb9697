package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/energy-weather-etl/internal/domain"
	"github.com/couchcryptid/energy-weather-etl/internal/observability"
	"github.com/couchcryptid/energy-weather-etl/internal/pipeline"
)

// --- mocks ---

type step[T any] struct {
	records []T
	err     error
}

// mockExtractor returns its steps in order, repeating the last one.
type mockExtractor[T any] struct {
	name  string
	steps []step[T]
	calls atomic.Int64
}

func (m *mockExtractor[T]) Name() string { return m.name }

func (m *mockExtractor[T]) Extract(_ context.Context) ([]T, error) {
	i := int(m.calls.Add(1) - 1)
	if i >= len(m.steps) {
		i = len(m.steps) - 1
	}
	return m.steps[i].records, m.steps[i].err
}

func priceExtractor(steps ...step[domain.PriceRecord]) *mockExtractor[domain.PriceRecord] {
	return &mockExtractor[domain.PriceRecord]{name: domain.SourcePrice, steps: steps}
}

func weatherExtractor(steps ...step[domain.WeatherRecord]) *mockExtractor[domain.WeatherRecord] {
	return &mockExtractor[domain.WeatherRecord]{name: domain.SourceWeather, steps: steps}
}

type mockMergeSink struct {
	mu      sync.Mutex
	batches [][]domain.MergedRecord
	stamps  []time.Time
	err     error
}

func (m *mockMergeSink) WriteMerged(_ context.Context, startedAt time.Time, records []domain.MergedRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.batches = append(m.batches, records)
	m.stamps = append(m.stamps, startedAt)
	return nil
}

func (m *mockMergeSink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batches)
}

type mockSourceSink struct {
	prices   [][]domain.PriceRecord
	weather  [][]domain.WeatherRecord
	priceErr error
	stamps   []time.Time
}

func (m *mockSourceSink) WritePrices(_ context.Context, startedAt time.Time, records []domain.PriceRecord) error {
	if m.priceErr != nil {
		return m.priceErr
	}
	m.prices = append(m.prices, records)
	m.stamps = append(m.stamps, startedAt)
	return nil
}

func (m *mockSourceSink) WriteWeather(_ context.Context, startedAt time.Time, records []domain.WeatherRecord) error {
	m.weather = append(m.weather, records)
	m.stamps = append(m.stamps, startedAt)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

// --- fixtures ---

var base = time.Unix(1700000000, 0)

func hour(n int) time.Time { return base.Add(time.Duration(n) * time.Hour) }

func prices() []domain.PriceRecord {
	return []domain.PriceRecord{
		{Timestamp: hour(1), MarketPrice: 14, Unit: "EUR/MWh"},
		{Timestamp: hour(0), MarketPrice: 12.5, Unit: "EUR/MWh"},
		{Timestamp: hour(5), MarketPrice: 9, Unit: "EUR/MWh"},
	}
}

func weather() []domain.WeatherRecord {
	return []domain.WeatherRecord{
		{Timestamp: hour(0), SunIndex: 0.7},
		{Timestamp: hour(1), SunIndex: 0},
		{Timestamp: hour(2), SunIndex: 0.4},
	}
}

func malformed() error {
	return fmt.Errorf("price: %w: element 0: missing field \"unit\"", domain.ErrMalformedResponse)
}

// --- merge mode ---

func TestRunCycle_MergeHappyPath(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC))
	sink := &mockMergeSink{}
	metrics := newTestMetrics()

	p := pipeline.NewMerging(
		priceExtractor(step[domain.PriceRecord]{records: prices()}),
		weatherExtractor(step[domain.WeatherRecord]{records: weather()}),
		sink, discardLogger(), metrics, pipeline.Options{Clock: clock},
	)

	assert.False(t, p.Ready())
	require.Error(t, p.CheckReadiness(context.Background()))

	outcome, err := p.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pipeline.OutcomeSuccess, outcome)

	want := []domain.MergedRecord{
		{Timestamp: hour(0), MarketPrice: 12.5, Unit: "EUR/MWh", SunIndex: 0.7},
		{Timestamp: hour(1), MarketPrice: 14, Unit: "EUR/MWh", SunIndex: 0},
	}
	require.Equal(t, 1, sink.count())
	if diff := cmp.Diff(want, sink.batches[0]); diff != "" {
		t.Fatalf("merged mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, sink.stamps[0].Equal(clock.Now()))

	assert.True(t, p.Ready())
	require.NoError(t, p.CheckReadiness(context.Background()))
	assert.InDelta(t, 1, counterValue(t, metrics.Cycles.WithLabelValues("success")), 0)
	assert.InDelta(t, 2, counterValue(t, metrics.MergedRecords), 0)
	assert.InDelta(t, 3, counterValue(t, metrics.RecordsNormalized.WithLabelValues(domain.SourcePrice)), 0)
}

func TestRunCycle_MergeParallelFetch(t *testing.T) {
	sink := &mockMergeSink{}
	p := pipeline.NewMerging(
		priceExtractor(step[domain.PriceRecord]{records: prices()}),
		weatherExtractor(step[domain.WeatherRecord]{records: weather()}),
		sink, discardLogger(), newTestMetrics(), pipeline.Options{ParallelFetch: true},
	)

	outcome, err := p.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pipeline.OutcomeSuccess, outcome)
	require.Equal(t, 1, sink.count())
	assert.Len(t, sink.batches[0], 2)
}

func TestRunCycle_MergeNoOverlapStillReachesSink(t *testing.T) {
	sink := &mockMergeSink{}
	p := pipeline.NewMerging(
		priceExtractor(step[domain.PriceRecord]{records: []domain.PriceRecord{{Timestamp: hour(9), MarketPrice: 1, Unit: "EUR/MWh"}}}),
		weatherExtractor(step[domain.WeatherRecord]{records: weather()}),
		sink, discardLogger(), newTestMetrics(), pipeline.Options{},
	)

	outcome, err := p.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pipeline.OutcomeSuccess, outcome)
	require.Equal(t, 1, sink.count())
	assert.Empty(t, sink.batches[0])
}

func TestRunCycle_MergeEmptySourceSkipsSink(t *testing.T) {
	sink := &mockMergeSink{}
	metrics := newTestMetrics()
	p := pipeline.NewMerging(
		priceExtractor(step[domain.PriceRecord]{err: domain.ErrNoData}),
		weatherExtractor(step[domain.WeatherRecord]{records: weather()}),
		sink, discardLogger(), metrics, pipeline.Options{},
	)

	outcome, err := p.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pipeline.OutcomeEmpty, outcome)
	assert.Zero(t, sink.count())
	assert.True(t, p.Ready())
	assert.InDelta(t, 1, counterValue(t, metrics.SourceFetches.WithLabelValues(domain.SourcePrice, "empty")), 0)
}

func TestRunCycle_MergeFailureIsTyped(t *testing.T) {
	fetchErr := fmtFetchFailed()
	sink := &mockMergeSink{}
	metrics := newTestMetrics()
	p := pipeline.NewMerging(
		priceExtractor(step[domain.PriceRecord]{err: malformed()}),
		weatherExtractor(step[domain.WeatherRecord]{err: fetchErr}),
		sink, discardLogger(), metrics, pipeline.Options{},
	)

	outcome, err := p.RunCycle(context.Background())
	assert.Equal(t, pipeline.OutcomeFailed, outcome)
	require.ErrorIs(t, err, domain.ErrMalformedResponse)
	require.ErrorIs(t, err, domain.ErrFetchFailed)
	assert.Zero(t, sink.count())
	assert.InDelta(t, 1, counterValue(t, metrics.Cycles.WithLabelValues("failed")), 0)
	assert.InDelta(t, 1, counterValue(t, metrics.SourceFetches.WithLabelValues(domain.SourcePrice, "malformed")), 0)
	assert.InDelta(t, 1, counterValue(t, metrics.SourceFetches.WithLabelValues(domain.SourceWeather, "fetch_failed")), 0)
}

func TestRunCycle_MergeSinkError(t *testing.T) {
	sinkErr := errors.New("broken pipe")
	p := pipeline.NewMerging(
		priceExtractor(step[domain.PriceRecord]{records: prices()}),
		weatherExtractor(step[domain.WeatherRecord]{records: weather()}),
		&mockMergeSink{err: sinkErr}, discardLogger(), newTestMetrics(), pipeline.Options{},
	)

	outcome, err := p.RunCycle(context.Background())
	assert.Equal(t, pipeline.OutcomeFailed, outcome)
	require.ErrorIs(t, err, sinkErr)
}

// --- persist mode ---

func TestRunCycle_PersistWritesBothSources(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC))
	sink := &mockSourceSink{}
	p := pipeline.NewPersisting(
		priceExtractor(step[domain.PriceRecord]{records: prices()}),
		weatherExtractor(step[domain.WeatherRecord]{records: weather()}),
		sink, discardLogger(), newTestMetrics(), pipeline.Options{Clock: clock},
	)

	outcome, err := p.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pipeline.OutcomeSuccess, outcome)
	require.Len(t, sink.prices, 1)
	require.Len(t, sink.weather, 1)
	assert.Equal(t, prices(), sink.prices[0])
	assert.Equal(t, weather(), sink.weather[0])
	for _, s := range sink.stamps {
		assert.True(t, s.Equal(clock.Now()))
	}
}

func TestRunCycle_PersistKeepsHealthySource(t *testing.T) {
	sink := &mockSourceSink{}
	p := pipeline.NewPersisting(
		priceExtractor(step[domain.PriceRecord]{err: malformed()}),
		weatherExtractor(step[domain.WeatherRecord]{records: weather()}),
		sink, discardLogger(), newTestMetrics(), pipeline.Options{},
	)

	outcome, err := p.RunCycle(context.Background())
	assert.Equal(t, pipeline.OutcomeFailed, outcome)
	require.ErrorIs(t, err, domain.ErrMalformedResponse)
	assert.Empty(t, sink.prices)
	assert.Len(t, sink.weather, 1)
}

func TestRunCycle_PersistBothEmpty(t *testing.T) {
	sink := &mockSourceSink{}
	p := pipeline.NewPersisting(
		priceExtractor(step[domain.PriceRecord]{err: domain.ErrNoData}),
		weatherExtractor(step[domain.WeatherRecord]{err: domain.ErrNoData}),
		sink, discardLogger(), newTestMetrics(), pipeline.Options{},
	)

	outcome, err := p.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pipeline.OutcomeEmpty, outcome)
	assert.Empty(t, sink.prices)
	assert.Empty(t, sink.weather)
}

func TestRunCycle_PersistSinkError(t *testing.T) {
	diskErr := errors.New("no space left on device")
	sink := &mockSourceSink{priceErr: diskErr}
	p := pipeline.NewPersisting(
		priceExtractor(step[domain.PriceRecord]{records: prices()}),
		weatherExtractor(step[domain.WeatherRecord]{records: weather()}),
		sink, discardLogger(), newTestMetrics(), pipeline.Options{},
	)

	outcome, err := p.RunCycle(context.Background())
	assert.Equal(t, pipeline.OutcomeFailed, outcome)
	require.ErrorIs(t, err, diskErr)
	assert.Len(t, sink.weather, 1)
}

// --- helpers ---

type fetchFailed struct{}

func (fetchFailed) Error() string        { return "weather fetch network error: connection refused" }
func (fetchFailed) Is(target error) bool { return target == domain.ErrFetchFailed }

func fmtFetchFailed() error { return fetchFailed{} }

func counterValue(t *testing.T, c prometheus.Metric) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}
