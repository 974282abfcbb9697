// Package stdout renders merged records as an aligned table.
package stdout

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/couchcryptid/energy-weather-etl/internal/domain"
)

const timeLayout = "2006-01-02 15:04:05"

// Printer writes one table per cycle. It implements pipeline.MergeSink.
type Printer struct {
	mu  sync.Mutex
	out io.Writer
}

// NewPrinter creates a Printer writing to out, usually os.Stdout.
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// WriteMerged prints the header and one row per record. An empty join prints
// the header only.
func (p *Printer) WriteMerged(_ context.Context, _ time.Time, records []domain.MergedRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	tw := tabwriter.NewWriter(p.out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "\tdate_time\tmarketprice\tunit\tsun_index\t")
	for i, r := range records {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t\n",
			i,
			r.Timestamp.Format(timeLayout),
			strconv.FormatFloat(r.MarketPrice, 'f', -1, 64),
			r.Unit,
			strconv.FormatFloat(r.SunIndex, 'f', -1, 64),
		)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("print merged records: %w", err)
	}
	return nil
}
