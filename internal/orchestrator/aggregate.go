package orchestrator

import (
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"go.uber.org/zap"

	"kvbench/internal/report"
	"kvbench/internal/stats"
)

// workerTotals is the last reported lifetime state of one worker.
type workerTotals struct {
	completed int64
	errors    int64
}

// aggregator is the dedicated aggregation role: it alone mutates the
// merged histograms, consuming messages from the single worker channel.
type aggregator struct {
	o       *Orchestrator
	csvMode bool
	csv     *report.CSVWriter

	start       time.Time
	liveWorkers int

	// progress line state
	lastProgress  time.Time
	lastCompleted int64
	windowMerged  *hdrhistogram.Histogram
	totals        map[int]workerTotals

	// current CSV interval state
	interval       time.Duration
	intervalHist   *hdrhistogram.Histogram
	intervalCnts   stats.Counters
	reported       map[int]bool
	lastEmit       time.Time
	decodeFailures int64

	// final state
	overall        *hdrhistogram.Histogram
	finalCompleted int64
	finalErrors    int64
}

func newAggregator(o *Orchestrator, totalWorkers int, csvMode bool) *aggregator {
	now := o.clock.Now()
	a := &aggregator{
		o:            o,
		csvMode:      csvMode,
		start:        now,
		liveWorkers:  totalWorkers,
		lastProgress: now,
		windowMerged: stats.NewHistogram(),
		totals:       make(map[int]workerTotals, totalWorkers),
		interval:     time.Duration(o.cfg.CSVIntervalSec) * time.Second,
		intervalHist: stats.NewHistogram(),
		reported:     make(map[int]bool, totalWorkers),
		lastEmit:     now,
		overall:      stats.NewHistogram(),
	}
	if csvMode {
		a.csv = report.NewCSVWriter(o.stdout)
		a.csv.WriteHeader()
	}
	return a
}

// drain consumes messages until every worker has sent its final message
// and the channel is closed. A CSV row goes out when all live workers have
// reported the interval or when the interval timer fires; the progress
// line ticks once per second in human mode.
func (a *aggregator) drain(msgs <-chan stats.Message) {
	var progressC, csvC <-chan time.Time
	if a.csvMode {
		t := a.o.clock.Ticker(a.interval)
		defer t.Stop()
		csvC = t.C
	} else {
		t := a.o.clock.Ticker(time.Second)
		defer t.Stop()
		progressC = t.C
	}

	for {
		select {
		case m, ok := <-msgs:
			if !ok {
				return
			}
			a.handle(m)
		case <-progressC:
			a.writeProgress()
		case <-csvC:
			// Skip if an all-workers-reported emission just reset the
			// interval.
			if a.o.clock.Now().Sub(a.lastEmit) >= a.interval/2 {
				a.emitRow()
			}
		}
	}
}

func (a *aggregator) handle(m stats.Message) {
	switch m.Kind {
	case stats.MsgProgress:
		a.totals[m.WorkerID] = workerTotals{completed: m.Completed, errors: m.Errors}
		a.merge(a.windowMerged, m.Window)

	case stats.MsgInterval:
		a.merge(a.intervalHist, m.Interval)
		a.intervalCnts.Add(m.Counters)
		a.reported[m.WorkerID] = true
		if len(a.reported) >= a.liveWorkers {
			a.emitRow()
		}

	case stats.MsgFinal:
		a.totals[m.WorkerID] = workerTotals{completed: m.Completed, errors: m.Errors}
		a.liveWorkers--
		a.finalCompleted += m.Completed
		a.finalErrors += m.Errors
		if m.Overall != nil {
			a.merge(a.overall, m.Overall)
		}
	}
}

// merge folds an encoded payload into dst. Decode failures are counted and
// logged; aggregation continues with the remaining payloads.
func (a *aggregator) merge(dst *hdrhistogram.Histogram, payload []byte) {
	if len(payload) == 0 {
		return
	}
	if err := stats.MergeEncoded(dst, payload); err != nil {
		a.decodeFailures++
		a.o.log.Error("histogram payload decode failed", zap.Error(err))
	}
}

func (a *aggregator) sumTotals() (completed, errs int64) {
	for _, t := range a.totals {
		completed += t.completed
		errs += t.errors
	}
	return
}

func (a *aggregator) writeProgress() {
	now := a.o.clock.Now()
	completed, errs := a.sumTotals()

	elapsed := now.Sub(a.start)
	sinceLast := now.Sub(a.lastProgress).Seconds()
	currentRPS := 0.0
	if sinceLast > 0 {
		currentRPS = float64(completed-a.lastCompleted) / sinceLast
	}
	overallRPS := 0.0
	if s := elapsed.Seconds(); s > 0 {
		overallRPS = float64(completed) / s
	}

	report.WriteProgress(a.o.stdout, report.Progress{
		Elapsed:    elapsed,
		Completed:  completed,
		CurrentRPS: currentRPS,
		OverallRPS: overallRPS,
		Errors:     errs,
		Window:     a.windowMerged,
	})

	a.windowMerged = stats.NewHistogram()
	a.lastProgress = now
	a.lastCompleted = completed
}

// emitRow writes one CSV row from the merged interval state and resets it.
func (a *aggregator) emitRow() {
	now := a.o.clock.Now()
	duration := now.Sub(a.lastEmit)
	if duration <= 0 {
		duration = a.interval
	}

	cnts := a.intervalCnts
	cnts.Disconnects += atomic.SwapInt64(&a.o.poolDisconnects, 0)

	a.csv.WriteRow(report.NewRow(now, duration, a.intervalHist, cnts))

	a.intervalHist = stats.NewHistogram()
	a.intervalCnts = stats.Counters{}
	a.reported = make(map[int]bool, len(a.reported))
	a.lastEmit = now
}

// flushPending emits the trailing partial row if it carries any data.
func (a *aggregator) flushPending() {
	cnts := a.intervalCnts
	cnts.Disconnects += atomic.LoadInt64(&a.o.poolDisconnects)
	if a.intervalHist.TotalCount() == 0 && cnts == (stats.Counters{}) {
		return
	}
	a.emitRow()
}

// writeFinal prints the human end-of-run report.
func (a *aggregator) writeFinal() {
	elapsed := a.o.clock.Now().Sub(a.start)
	report.WriteFinal(a.o.stdout, elapsed, a.finalCompleted, a.finalErrors, a.overall)
}
