// Command validate checks a pair of persisted price/weather parquet files
// and re-runs the join on them. It reads what persist mode wrote, so it
// exercises the same file layout and merge the service uses.
//
// Usage:
//
//	go run ./cmd/validate -dir ./out
//	go run ./cmd/validate -dir ./out -stamp 20240426151005 -print
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	parquetadapter "github.com/couchcryptid/energy-weather-etl/internal/adapter/parquet"
	"github.com/couchcryptid/energy-weather-etl/internal/adapter/stdout"
	"github.com/couchcryptid/energy-weather-etl/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	dir := flag.String("dir", "", "directory holding {source}_response_{stamp}.parquet files")
	stamp := flag.String("stamp", "", "cycle stamp (yyyyMMddHHmmss); defaults to the newest complete pair")
	printMerged := flag.Bool("print", false, "print the merged table")
	flag.Parse()

	if *dir == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*dir, *stamp, *printMerged); code != 0 {
		os.Exit(code)
	}
}

func run(dir, stamp string, printMerged bool) int {
	fmt.Println("=== Energy/Weather Parquet Validation ===")
	fmt.Println()

	pairs, err := discover(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: scan %s: %v\n", dir, err)
		return 1
	}
	if stamp == "" {
		stamp, err = latestComplete(pairs)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
			return 1
		}
	}
	pair, ok := pairs[stamp]
	if !ok || pair.price == "" || pair.weather == "" {
		fmt.Fprintf(os.Stderr, "FATAL: no complete price/weather pair for stamp %s\n", stamp)
		return 1
	}
	fmt.Printf("Cycle %s\n  %s\n  %s\n\n", stamp, pair.price, pair.weather)

	prices, err := parquetadapter.ReadPrices(pair.price)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}
	weather, err := parquetadapter.ReadWeather(pair.weather)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}
	merged := domain.Merge(prices, weather)

	phases := []*phase{
		validatePrices(prices),
		validateWeather(weather),
		validateMerge(prices, weather, merged),
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-32s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d price, %d weather, %d merged\n", len(prices), len(weather), len(merged))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if printMerged {
		fmt.Println()
		if err := stdout.NewPrinter(os.Stdout).WriteMerged(context.Background(), time.Time{}, merged); err != nil {
			fmt.Fprintf(os.Stderr, "print: %v\n", err)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── File discovery ──

type filePair struct {
	price   string
	weather string
}

// discover groups the parquet files in dir by cycle stamp.
func discover(dir string) (map[string]*filePair, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	pairs := make(map[string]*filePair)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		source, stamp, ok := parquetadapter.ParseFileName(e.Name())
		if !ok {
			continue
		}
		p := pairs[stamp]
		if p == nil {
			p = &filePair{}
			pairs[stamp] = p
		}
		path := filepath.Join(dir, e.Name())
		switch source {
		case domain.SourcePrice:
			p.price = path
		case domain.SourceWeather:
			p.weather = path
		}
	}
	return pairs, nil
}

// latestComplete returns the newest stamp with both files present. Stamps
// sort lexically in time order.
func latestComplete(pairs map[string]*filePair) (string, error) {
	stamps := make([]string, 0, len(pairs))
	for s, p := range pairs {
		if p.price != "" && p.weather != "" {
			stamps = append(stamps, s)
		}
	}
	if len(stamps) == 0 {
		return "", errors.New("no complete price/weather pair found")
	}
	sort.Strings(stamps)
	return stamps[len(stamps)-1], nil
}

// ── Validation phases ──

func validatePrices(prices []domain.PriceRecord) *phase {
	p := &phase{name: "Price file integrity"}
	if len(prices) == 0 {
		p.errorf("no rows")
	}
	for i, r := range prices {
		if r.Timestamp.IsZero() || r.Timestamp.Unix() == 0 {
			p.errorf("row %d: missing date_time", i)
		}
		if math.IsNaN(r.MarketPrice) || math.IsInf(r.MarketPrice, 0) {
			p.errorf("row %d: marketprice %v is not finite", i, r.MarketPrice)
		}
		if r.Unit == "" {
			p.errorf("row %d: empty unit", i)
		}
	}
	return p
}

func validateWeather(weather []domain.WeatherRecord) *phase {
	p := &phase{name: "Weather file integrity"}
	if len(weather) == 0 {
		p.errorf("no rows")
	}
	for i, r := range weather {
		if r.Timestamp.IsZero() || r.Timestamp.Unix() == 0 {
			p.errorf("row %d: missing date_time", i)
		}
		if math.IsNaN(r.SunIndex) || r.SunIndex < 0 || r.SunIndex > 1 {
			p.errorf("row %d: sun_index %v outside [0,1]", i, r.SunIndex)
		}
	}
	return p
}

// validateMerge checks that every merged row comes from a matching input pair
// and that the output is in timestamp order.
func validateMerge(prices []domain.PriceRecord, weather []domain.WeatherRecord, merged []domain.MergedRecord) *phase {
	p := &phase{name: "Merge consistency"}

	priceAt := make(map[domain.InstantKey][]domain.PriceRecord)
	for _, r := range prices {
		k := domain.KeyOf(r.Timestamp)
		priceAt[k] = append(priceAt[k], r)
	}
	weatherAt := make(map[domain.InstantKey][]domain.WeatherRecord)
	for _, r := range weather {
		k := domain.KeyOf(r.Timestamp)
		weatherAt[k] = append(weatherAt[k], r)
	}

	want := 0
	for k, ps := range priceAt {
		want += len(ps) * len(weatherAt[k])
	}
	if len(merged) != want {
		p.errorf("merged %d rows, expected %d", len(merged), want)
	}

	for i, m := range merged {
		if i > 0 && m.Timestamp.Before(merged[i-1].Timestamp) {
			p.errorf("row %d: %s out of order", i, m.Timestamp.Format(time.RFC3339))
		}
		k := domain.KeyOf(m.Timestamp)
		if !containsPrice(priceAt[k], m) {
			p.errorf("row %d: no price row for %s", i, m.Timestamp.Format(time.RFC3339))
		}
		if !containsWeather(weatherAt[k], m) {
			p.errorf("row %d: no weather row for %s", i, m.Timestamp.Format(time.RFC3339))
		}
	}
	return p
}

func containsPrice(rows []domain.PriceRecord, m domain.MergedRecord) bool {
	for _, r := range rows {
		if r.MarketPrice == m.MarketPrice && r.Unit == m.Unit {
			return true
		}
	}
	return false
}

func containsWeather(rows []domain.WeatherRecord, m domain.MergedRecord) bool {
	for _, r := range rows {
		if r.SunIndex == m.SunIndex {
			return true
		}
	}
	return false
}
