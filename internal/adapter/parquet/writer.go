// Package parquet persists each source's records of a cycle to its own
// parquet file and reads them back.
package parquet

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	parquetgo "github.com/parquet-go/parquet-go"

	"github.com/couchcryptid/energy-weather-etl/internal/domain"
	"github.com/couchcryptid/energy-weather-etl/internal/observability"
)

// StampLayout renders the cycle start time in file names (yyyyMMddHHmmss).
const StampLayout = "20060102150405"

const (
	fileInfix  = "_response_"
	fileSuffix = ".parquet"
)

type priceRow struct {
	DateTime    int64   `parquet:"date_time,timestamp(millisecond)"`
	MarketPrice float64 `parquet:"marketprice"`
	Unit        string  `parquet:"unit,dict"`
}

type weatherRow struct {
	DateTime int64   `parquet:"date_time,timestamp(millisecond)"`
	SunIndex float64 `parquet:"sun_index"`
}

// Writer writes {source}_response_{stamp}.parquet files into one directory.
// It implements pipeline.SourceSink.
type Writer struct {
	dir     string
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewWriter creates dir if needed and returns a Writer for it.
func NewWriter(dir string, metrics *observability.Metrics, logger *slog.Logger) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Writer{dir: dir, metrics: metrics, logger: logger}, nil
}

// FileName returns the file name for a source's records of the cycle that
// started at startedAt. Two cycles in the same second share a name.
func FileName(source string, startedAt time.Time) string {
	return source + fileInfix + startedAt.Format(StampLayout) + fileSuffix
}

// ParseFileName splits a name produced by FileName into its source and
// stamp. It rejects unknown sources and malformed stamps.
func ParseFileName(name string) (source, stamp string, ok bool) {
	base, found := strings.CutSuffix(name, fileSuffix)
	if !found {
		return "", "", false
	}
	source, stamp, found = strings.Cut(base, fileInfix)
	if !found {
		return "", "", false
	}
	if source != domain.SourcePrice && source != domain.SourceWeather {
		return "", "", false
	}
	if _, err := time.Parse(StampLayout, stamp); err != nil {
		return "", "", false
	}
	return source, stamp, true
}

// WritePrices replaces the price file for the cycle.
func (w *Writer) WritePrices(ctx context.Context, startedAt time.Time, records []domain.PriceRecord) error {
	rows := make([]priceRow, len(records))
	for i, r := range records {
		rows[i] = priceRow{DateTime: r.Timestamp.UnixMilli(), MarketPrice: r.MarketPrice, Unit: r.Unit}
	}
	return writeRows(ctx, w, domain.SourcePrice, startedAt, rows)
}

// WriteWeather replaces the weather file for the cycle.
func (w *Writer) WriteWeather(ctx context.Context, startedAt time.Time, records []domain.WeatherRecord) error {
	rows := make([]weatherRow, len(records))
	for i, r := range records {
		rows[i] = weatherRow{DateTime: r.Timestamp.UnixMilli(), SunIndex: r.SunIndex}
	}
	return writeRows(ctx, w, domain.SourceWeather, startedAt, rows)
}

// writeRows writes to a temporary file and renames it over the target, so a
// reader never sees a half-written file.
func writeRows[Row any](ctx context.Context, w *Writer, source string, startedAt time.Time, rows []Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path := filepath.Join(w.dir, FileName(source, startedAt))
	tmp := path + ".tmp"
	if err := parquetgo.WriteFile(tmp, rows); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write %s parquet: %w", source, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace %s parquet: %w", source, err)
	}

	w.metrics.FilesWritten.WithLabelValues(source).Inc()
	w.logger.Info("source persisted", "source", source, "path", path, "rows", len(rows))
	return nil
}

// ReadPrices loads a price file written by WritePrices.
func ReadPrices(path string) ([]domain.PriceRecord, error) {
	rows, err := parquetgo.ReadFile[priceRow](path)
	if err != nil {
		return nil, fmt.Errorf("read price parquet: %w", err)
	}
	records := make([]domain.PriceRecord, len(rows))
	for i, r := range rows {
		ts, err := domain.FromMillisEpoch(float64(r.DateTime))
		if err != nil {
			return nil, err
		}
		records[i] = domain.PriceRecord{Timestamp: ts, MarketPrice: r.MarketPrice, Unit: r.Unit}
	}
	return records, nil
}

// ReadWeather loads a weather file written by WriteWeather.
func ReadWeather(path string) ([]domain.WeatherRecord, error) {
	rows, err := parquetgo.ReadFile[weatherRow](path)
	if err != nil {
		return nil, fmt.Errorf("read weather parquet: %w", err)
	}
	records := make([]domain.WeatherRecord, len(rows))
	for i, r := range rows {
		ts, err := domain.FromMillisEpoch(float64(r.DateTime))
		if err != nil {
			return nil, err
		}
		records[i] = domain.WeatherRecord{Timestamp: ts, SunIndex: r.SunIndex}
	}
	return records, nil
}
