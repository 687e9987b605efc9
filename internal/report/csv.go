package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"kvbench/internal/stats"
)

// Header is the 16-field CSV schema. It is printed exactly once per run.
const Header = "timestamp,request_sec,p50_usec,p90_usec,p95_usec,p99_usec,p99_9_usec,p99_99_usec,p99_999_usec,p100_usec,avg_usec,request_finished,requests_total_failed,requests_moved,requests_clusterdown,client_disconnects"

// Row is one emitted interval. All latency fields are truncated integer
// microseconds; counters are per-interval deltas.
type Row struct {
	Timestamp  int64
	RequestSec float64
	P50        int64
	P90        int64
	P95        int64
	P99        int64
	P999       int64
	P9999      int64
	P99999     int64
	P100       int64
	Avg        int64

	Finished    int64
	Failed      int64
	Moved       int64
	Clusterdown int64
	Disconnects int64
}

// NewRow derives a row from a merged interval histogram and its counters.
// An interval with no samples yields zeros for every latency field.
func NewRow(ts time.Time, duration time.Duration, h *hdrhistogram.Histogram, c stats.Counters) Row {
	row := Row{
		Timestamp:   ts.Unix(),
		Finished:    c.Requests,
		Failed:      c.Errors,
		Moved:       c.Moved,
		Clusterdown: c.Clusterdown,
		Disconnects: c.Disconnects,
	}
	if secs := duration.Seconds(); secs > 0 {
		row.RequestSec = float64(c.Requests) / secs
	}
	if h != nil && h.TotalCount() > 0 {
		row.P50 = stats.PercentileUs(h, 50)
		row.P90 = stats.PercentileUs(h, 90)
		row.P95 = stats.PercentileUs(h, 95)
		row.P99 = stats.PercentileUs(h, 99)
		row.P999 = stats.PercentileUs(h, 99.9)
		row.P9999 = stats.PercentileUs(h, 99.99)
		row.P99999 = stats.PercentileUs(h, 99.999)
		row.P100 = h.Max()
		row.Avg = stats.AvgUs(h)
	}
	return row
}

// String renders the row: 16 comma-separated fields, no padding, no
// scientific notation.
func (r Row) String() string {
	fields := []string{
		strconv.FormatInt(r.Timestamp, 10),
		formatRequestSec(r.RequestSec),
		strconv.FormatInt(r.P50, 10),
		strconv.FormatInt(r.P90, 10),
		strconv.FormatInt(r.P95, 10),
		strconv.FormatInt(r.P99, 10),
		strconv.FormatInt(r.P999, 10),
		strconv.FormatInt(r.P9999, 10),
		strconv.FormatInt(r.P99999, 10),
		strconv.FormatInt(r.P100, 10),
		strconv.FormatInt(r.Avg, 10),
		strconv.FormatInt(r.Finished, 10),
		strconv.FormatInt(r.Failed, 10),
		strconv.FormatInt(r.Moved, 10),
		strconv.FormatInt(r.Clusterdown, 10),
		strconv.FormatInt(r.Disconnects, 10),
	}
	return strings.Join(fields, ",")
}

// formatRequestSec prints up to six decimals with trailing zeros trimmed.
func formatRequestSec(v float64) string {
	s := strconv.FormatFloat(v, 'f', 6, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// CSVWriter emits the header once and then rows. In CSV mode it is the
// only writer on stdout.
type CSVWriter struct {
	w          io.Writer
	headerDone bool
}

// NewCSVWriter wraps w.
func NewCSVWriter(w io.Writer) *CSVWriter { return &CSVWriter{w: w} }

// WriteHeader prints the header if it has not been printed yet.
func (c *CSVWriter) WriteHeader() {
	if c.headerDone {
		return
	}
	fmt.Fprintln(c.w, Header)
	c.headerDone = true
}

// WriteRow prints one row, emitting the header first if needed.
func (c *CSVWriter) WriteRow(r Row) {
	c.WriteHeader()
	fmt.Fprintln(c.w, r.String())
}
