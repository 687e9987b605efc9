package stats

import (
	"github.com/HdrHistogram/hdrhistogram-go"
)

// Histogram value range: integer microseconds from 10us to 60s, three
// significant digits.
const (
	MinLatencyUs = 10
	MaxLatencyUs = 60_000_000
	SigFigs      = 3
)

// NewHistogram builds a latency histogram over the standard range.
func NewHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(MinLatencyUs, MaxLatencyUs, SigFigs)
}

// ClampLatencyUs bounds a measured latency to the recordable range.
func ClampLatencyUs(us int64) int64 {
	if us < MinLatencyUs {
		return MinLatencyUs
	}
	if us > MaxLatencyUs {
		return MaxLatencyUs
	}
	return us
}

// EncodeHistogram serializes a histogram as an HdrHistogram V2 compressed
// payload for transport to the orchestrator.
func EncodeHistogram(h *hdrhistogram.Histogram) ([]byte, error) {
	return h.Encode(hdrhistogram.V2CompressedEncodingCookieBase)
}

// MergeEncoded decodes a compressed payload and adds it into dst. A decode
// failure leaves dst untouched; callers count the failure and continue.
func MergeEncoded(dst *hdrhistogram.Histogram, payload []byte) error {
	h, err := hdrhistogram.Decode(payload)
	if err != nil {
		return err
	}
	dst.Merge(h)
	return nil
}

// PercentileUs extracts a percentile as truncated integer microseconds
// using the histogram's bucket boundaries. Empty histograms yield 0.
func PercentileUs(h *hdrhistogram.Histogram, p float64) int64 {
	if h == nil || h.TotalCount() == 0 {
		return 0
	}
	return h.ValueAtQuantile(p)
}

// AvgUs returns the truncated mean in microseconds.
func AvgUs(h *hdrhistogram.Histogram) int64 {
	if h == nil || h.TotalCount() == 0 {
		return 0
	}
	return int64(h.Mean())
}
