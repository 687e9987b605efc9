package stats

import (
	"errors"
	"io"
	"strings"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// ErrKind classifies a failed request from the client library's error text.
type ErrKind int

const (
	ErrGeneric ErrKind = iota
	ErrMoved
	ErrClusterdown
	ErrDisconnect
)

// Classify maps an error to its counter by case-insensitive substring
// match against the error text.
func Classify(err error) ErrKind {
	if err == nil {
		return ErrGeneric
	}
	if errors.Is(err, io.EOF) {
		return ErrDisconnect
	}
	text := strings.ToUpper(err.Error())
	switch {
	case strings.Contains(text, "MOVED"):
		return ErrMoved
	case strings.Contains(text, "CLUSTERDOWN"):
		return ErrClusterdown
	case strings.Contains(text, "CONNECTION REFUSED"),
		strings.Contains(text, "CONNECTION RESET"),
		strings.Contains(text, "BROKEN PIPE"),
		strings.Contains(text, "USE OF CLOSED"),
		strings.Contains(text, "EOF"):
		return ErrDisconnect
	}
	return ErrGeneric
}

// Counters are the per-interval deltas emitted with each CSV row.
// Requests counts successful calls only; every failure bumps Errors plus
// its classifier counter.
type Counters struct {
	Requests    int64
	Errors      int64
	Moved       int64
	Clusterdown int64
	Disconnects int64
}

func (c *Counters) add(o Counters) {
	c.Requests += o.Requests
	c.Errors += o.Errors
	c.Moved += o.Moved
	c.Clusterdown += o.Clusterdown
	c.Disconnects += o.Disconnects
}

// Add accumulates another set of deltas.
func (c *Counters) Add(o Counters) { c.add(o) }

// IntervalSnapshot is the rotated-out state of one CSV interval.
type IntervalSnapshot struct {
	Start     time.Time
	Duration  time.Duration
	Histogram *hdrhistogram.Histogram
	Counters  Counters
}

// Recorder turns per-request outcomes into interval and lifetime summaries
// for one worker. It is written only by the owning worker; snapshots are
// passed by value to consumers, so no locking is needed.
type Recorder struct {
	WorkerID int

	overall  *hdrhistogram.Histogram
	window   *hdrhistogram.Histogram
	interval *hdrhistogram.Histogram

	intervalStart time.Time
	counters      Counters

	totalRequests int64 // every completed call, success or not
	totalErrors   int64
}

// NewRecorder builds a recorder anchored at now.
func NewRecorder(workerID int, now time.Time) *Recorder {
	return &Recorder{
		WorkerID:      workerID,
		overall:       NewHistogram(),
		window:        NewHistogram(),
		interval:      NewHistogram(),
		intervalStart: now,
	}
}

func (r *Recorder) record(latencyUs int64) {
	v := ClampLatencyUs(latencyUs)
	_ = r.overall.RecordValue(v)
	_ = r.window.RecordValue(v)
	_ = r.interval.RecordValue(v)
}

// RecordOK records a successful request.
func (r *Recorder) RecordOK(latencyUs int64) {
	r.record(latencyUs)
	r.counters.Requests++
	r.totalRequests++
}

// RecordErr records a failed request. The latency sample is inserted only
// when the library provided one (latencyUs > 0).
func (r *Recorder) RecordErr(kind ErrKind, latencyUs int64) {
	if latencyUs > 0 {
		r.record(latencyUs)
	}
	r.counters.Errors++
	switch kind {
	case ErrMoved:
		r.counters.Moved++
	case ErrClusterdown:
		r.counters.Clusterdown++
	case ErrDisconnect:
		r.counters.Disconnects++
	}
	r.totalRequests++
	r.totalErrors++
}

// RotateWindow returns the window histogram and resets it. The window
// feeds the once-per-second progress line.
func (r *Recorder) RotateWindow() *hdrhistogram.Histogram {
	snap := hdrhistogram.Import(r.window.Export())
	r.window.Reset()
	return snap
}

// IntervalElapsed reports whether the CSV interval boundary has been
// crossed.
func (r *Recorder) IntervalElapsed(now time.Time, interval time.Duration) bool {
	return now.Sub(r.intervalStart) >= interval
}

// IntervalHasData reports whether the current interval carries anything
// worth flushing.
func (r *Recorder) IntervalHasData() bool {
	return r.interval.TotalCount() > 0 || r.counters != (Counters{})
}

// RotateInterval returns the interval state and resets it for the next
// window.
func (r *Recorder) RotateInterval(now time.Time) IntervalSnapshot {
	snap := IntervalSnapshot{
		Start:     r.intervalStart,
		Duration:  now.Sub(r.intervalStart),
		Histogram: hdrhistogram.Import(r.interval.Export()),
		Counters:  r.counters,
	}
	r.interval.Reset()
	r.counters = Counters{}
	r.intervalStart = now
	return snap
}

// Overall returns the lifetime histogram. Valid only after the worker has
// stopped recording.
func (r *Recorder) Overall() *hdrhistogram.Histogram { return r.overall }

// TotalRequests returns every completed call, success or not.
func (r *Recorder) TotalRequests() int64 { return r.totalRequests }

// TotalErrors returns the lifetime error count.
func (r *Recorder) TotalErrors() int64 { return r.totalErrors }
