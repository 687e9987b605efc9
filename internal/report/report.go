package report

import (
	"fmt"
	"io"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"kvbench/internal/stats"
)

// Progress is the state behind one human progress line.
type Progress struct {
	Elapsed    time.Duration
	Completed  int64
	CurrentRPS float64
	OverallRPS float64
	Errors     int64
	Window     *hdrhistogram.Histogram
}

// WriteProgress prints the once-per-second progress line, overwriting the
// previous one.
func WriteProgress(w io.Writer, p Progress) {
	fmt.Fprintf(w, "\r\x1b[K[%.1fs] Progress: %d requests, Current RPS: %.2f, Overall RPS: %.2f, Errors: %d",
		p.Elapsed.Seconds(), p.Completed, p.CurrentRPS, p.OverallRPS, p.Errors)
	if p.Window != nil && p.Window.TotalCount() > 0 {
		fmt.Fprintf(w, " | Latencies (ms) - Avg: %.2f, p50: %.2f, p99: %.2f",
			float64(stats.AvgUs(p.Window))/1000.0,
			float64(stats.PercentileUs(p.Window, 50))/1000.0,
			float64(stats.PercentileUs(p.Window, 99))/1000.0)
	}
}

// distributionBoundsUs are the fixed report buckets, in microseconds
// (0.1ms up to 1s).
var distributionBoundsUs = []int64{
	100, 500, 1000, 2000, 5000, 10000, 20000, 50000, 100000, 200000, 500000, 1000000,
}

// WriteFinal prints the end-of-run summary and the bucketed latency
// distribution.
func WriteFinal(w io.Writer, totalTime time.Duration, completed, errs int64, overall *hdrhistogram.Histogram) {
	rps := 0.0
	if secs := totalTime.Seconds(); secs > 0 {
		rps = float64(completed) / secs
	}

	fmt.Fprintf(w, "\n\nFinal Results:\n")
	fmt.Fprintf(w, "=============\n")
	fmt.Fprintf(w, "Total time: %.2f seconds\n", totalTime.Seconds())
	fmt.Fprintf(w, "Requests completed: %d\n", completed)
	fmt.Fprintf(w, "Requests per second: %.2f\n", rps)
	fmt.Fprintf(w, "Total errors: %d\n", errs)

	if overall == nil || overall.TotalCount() == 0 {
		return
	}

	fmt.Fprintf(w, "\nLatency Statistics (usec):\n")
	fmt.Fprintf(w, "=====================\n")
	fmt.Fprintf(w, "Minimum: %d\n", overall.Min())
	fmt.Fprintf(w, "Average: %d\n", stats.AvgUs(overall))
	fmt.Fprintf(w, "Maximum: %d\n", overall.Max())
	fmt.Fprintf(w, "Median (p50): %d\n", stats.PercentileUs(overall, 50))
	fmt.Fprintf(w, "95th percentile: %d\n", stats.PercentileUs(overall, 95))
	fmt.Fprintf(w, "99th percentile: %d\n", stats.PercentileUs(overall, 99))

	fmt.Fprintf(w, "\nLatency Distribution:\n")
	fmt.Fprintf(w, "====================\n")

	total := overall.TotalCount()
	counts := bucketCounts(overall)
	var cumulative int64
	for i, bound := range distributionBoundsUs {
		cumulative += counts[i]
		fmt.Fprintf(w, "<= %.1f ms: %.2f%% (%d requests)\n",
			float64(bound)/1000.0, float64(counts[i])/float64(total)*100, counts[i])
	}
	if over := total - cumulative; over > 0 {
		fmt.Fprintf(w, "> 1000.0 ms: %.2f%% (%d requests)\n",
			float64(over)/float64(total)*100, over)
	}
}

// bucketCounts folds the histogram bars into the fixed report bounds.
func bucketCounts(h *hdrhistogram.Histogram) []int64 {
	counts := make([]int64, len(distributionBoundsUs))
	for _, bar := range h.Distribution() {
		if bar.Count == 0 {
			continue
		}
		for i, bound := range distributionBoundsUs {
			if bar.To <= bound {
				counts[i] += bar.Count
				break
			}
		}
	}
	return counts
}
