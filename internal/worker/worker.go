package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"kvbench/internal/config"
	"kvbench/internal/custom"
	"kvbench/internal/keygen"
	"kvbench/internal/pool"
	"kvbench/internal/rate"
	"kvbench/internal/stats"
)

// Params fixes one worker's slice of the run.
type Params struct {
	ID             int // globally unique across groups
	Command        string
	DataSize       int
	Budget         int64 // 0 in duration-bounded runs
	RequestTimeout time.Duration
	CSVInterval    time.Duration // 0 disables interval rotation
	Keys           *keygen.Generator
	Values         *keygen.ValueSource
	Custom         custom.Command
}

// Worker runs the hot loop: acquire a client index, await a rate slot,
// time the dispatched operation, record the outcome, release the index.
type Worker struct {
	p    Params
	pool *pool.Pool
	rate *rate.Controller
	rec  *stats.Recorder
	out  chan<- stats.Message
	log  *zap.Logger

	value []byte
}

// New wires a worker. The recorder is owned exclusively by this worker.
func New(p Params, pl *pool.Pool, rc *rate.Controller, rec *stats.Recorder, out chan<- stats.Message, log *zap.Logger) *Worker {
	w := &Worker{p: p, pool: pl, rate: rc, rec: rec, out: out, log: log}
	if p.Command == config.CommandSet && p.DataSize > 0 {
		w.value = make([]byte, p.DataSize)
		p.Values.Fill(w.value)
	}
	return w
}

// Run drives the loop until the budget is exhausted, the context deadline
// passes, or shutdown is signalled. Final metrics are always flushed.
func (w *Worker) Run(ctx context.Context) {
	start := time.Now()
	windowLast := start
	var completed int64

	defer func() {
		w.flushInterval(time.Now())
		w.sendFinal(time.Since(start))
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		if w.p.Budget > 0 && completed >= w.p.Budget {
			return
		}

		idx, err := w.pool.Acquire(ctx)
		if err != nil {
			return
		}
		if err := w.rate.Await(ctx); err != nil {
			w.pool.Release(idx)
			return
		}

		t0 := time.Now()
		opErr := w.dispatch(ctx, idx)
		latency := stats.ClampLatencyUs(time.Since(t0).Microseconds())

		if opErr != nil && ctx.Err() == nil {
			w.rec.RecordErr(stats.Classify(opErr), latency)
			w.log.Warn("request failed", zap.Int("worker", w.p.ID), zap.Error(opErr))
		} else if opErr == nil {
			w.rec.RecordOK(latency)
		}

		w.pool.Release(idx)
		completed++

		now := time.Now()
		if now.Sub(windowLast) >= time.Second {
			w.sendProgress(now)
			windowLast = now
		}
		if w.p.CSVInterval > 0 && w.rec.IntervalElapsed(now, w.p.CSVInterval) {
			w.sendInterval(w.rec.RotateInterval(now))
		}
	}
}

func (w *Worker) dispatch(ctx context.Context, idx int) error {
	if w.p.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.p.RequestTimeout)
		defer cancel()
	}
	c := w.pool.Client(idx)
	switch w.p.Command {
	case config.CommandGet:
		return c.Get(ctx, w.p.Keys.Next())
	case config.CommandCustom:
		return w.p.Custom.Execute(ctx, c.Raw())
	default:
		return c.Set(ctx, w.p.Keys.Next(), string(w.value))
	}
}

func (w *Worker) sendProgress(now time.Time) {
	snap := w.rec.RotateWindow()
	enc, err := stats.EncodeHistogram(snap)
	if err != nil {
		w.log.Error("window histogram encode failed", zap.Error(err))
		return
	}
	w.out <- stats.Message{
		Kind:        stats.MsgProgress,
		WorkerID:    w.p.ID,
		Completed:   w.rec.TotalRequests(),
		Errors:      w.rec.TotalErrors(),
		TS:          now,
		Window:      enc,
		WindowCount: snap.TotalCount(),
	}
}

func (w *Worker) sendInterval(snap stats.IntervalSnapshot) {
	enc, err := stats.EncodeHistogram(snap.Histogram)
	if err != nil {
		w.log.Error("interval histogram encode failed", zap.Error(err))
		return
	}
	w.out <- stats.Message{
		Kind:             stats.MsgInterval,
		WorkerID:         w.p.ID,
		IntervalStart:    snap.Start,
		IntervalDuration: snap.Duration,
		Interval:         enc,
		Counters:         snap.Counters,
	}
}

// flushInterval pushes any partial interval so the orchestrator can fold
// it into the last CSV row.
func (w *Worker) flushInterval(now time.Time) {
	if w.p.CSVInterval > 0 && w.rec.IntervalHasData() {
		w.sendInterval(w.rec.RotateInterval(now))
	}
}

func (w *Worker) sendFinal(elapsed time.Duration) {
	enc, err := stats.EncodeHistogram(w.rec.Overall())
	if err != nil {
		w.log.Error("overall histogram encode failed", zap.Error(err))
		enc = nil
	}
	w.out <- stats.Message{
		Kind:      stats.MsgFinal,
		WorkerID:  w.p.ID,
		Completed: w.rec.TotalRequests(),
		Errors:    w.rec.TotalErrors(),
		TS:        time.Now(),
		Overall:   enc,
		TotalTime: elapsed,
	}
}
