package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kvbench/internal/stats"
)

func TestWriteFinalSummary(t *testing.T) {
	h := stats.NewHistogram()
	for i := 0; i < 1000; i++ {
		require.NoError(t, h.RecordValue(int64(100+i)))
	}

	var buf bytes.Buffer
	WriteFinal(&buf, 10*time.Second, 1000, 3, h)

	out := buf.String()
	assert.Contains(t, out, "Final Results:")
	assert.Contains(t, out, "Total time: 10.00 seconds")
	assert.Contains(t, out, "Requests completed: 1000")
	assert.Contains(t, out, "Requests per second: 100.00")
	assert.Contains(t, out, "Total errors: 3")
	assert.Contains(t, out, "Latency Statistics (usec):")
	assert.Contains(t, out, "Latency Distribution:")
}

func TestWriteFinalNoSamples(t *testing.T) {
	var buf bytes.Buffer
	WriteFinal(&buf, time.Second, 0, 0, stats.NewHistogram())

	out := buf.String()
	assert.Contains(t, out, "Requests completed: 0")
	assert.NotContains(t, out, "Latency Statistics")
}

func TestDistributionCoversAllSamples(t *testing.T) {
	h := stats.NewHistogram()
	// Samples spread over several report buckets plus the overflow range.
	values := []int64{50, 400, 900, 1500, 4000, 9000, 15000, 40000, 90000, 150000, 400000, 900000, 5000000}
	for _, v := range values {
		require.NoError(t, h.RecordValue(v))
	}

	counts := bucketCounts(h)
	var sum int64
	for _, c := range counts {
		sum += c
	}
	// Everything except the one >1s sample lands inside the fixed bounds.
	assert.Equal(t, int64(len(values)-1), sum)
}

func TestWriteProgressLine(t *testing.T) {
	h := stats.NewHistogram()
	require.NoError(t, h.RecordValue(2000))

	var buf bytes.Buffer
	WriteProgress(&buf, Progress{
		Elapsed:    3 * time.Second,
		Completed:  1500,
		CurrentRPS: 500,
		OverallRPS: 500,
		Errors:     1,
		Window:     h,
	})

	out := buf.String()
	assert.Contains(t, out, "Progress: 1500 requests")
	assert.Contains(t, out, "Current RPS: 500.00")
	assert.Contains(t, out, "Errors: 1")
	assert.Contains(t, out, "p50: 2.00")
}
