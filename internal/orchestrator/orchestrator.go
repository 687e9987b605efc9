package orchestrator

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"kvbench/internal/banner"
	"kvbench/internal/client"
	"kvbench/internal/config"
	"kvbench/internal/custom"
	"kvbench/internal/keygen"
	"kvbench/internal/pool"
	"kvbench/internal/rate"
	"kvbench/internal/stats"
	"kvbench/internal/worker"
)

// Exit codes.
const (
	ExitOK            = 0
	ExitConfig        = 1
	ExitWorkerCrashed = 2
)

// Orchestrator drives the run lifecycle: it spawns P worker groups (the
// in-process rendition of the multi-process model), partitions the request
// budget, divides the QPS targets, consumes the typed metric messages over
// a single channel, merges histograms, and produces the run's output.
type Orchestrator struct {
	cfg    *config.Config
	log    *zap.Logger
	clock  clock.Clock
	stdout io.Writer
	stderr io.Writer

	// factory is swapped in tests to avoid a live server.
	factory func(gid int) pool.Factory

	poolDisconnects int64
}

// New builds an orchestrator writing to the standard streams.
func New(cfg *config.Config, log *zap.Logger) *Orchestrator {
	o := &Orchestrator{
		cfg:    cfg,
		log:    log,
		clock:  clock.New(),
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	o.factory = func(int) pool.Factory {
		opts := client.Options{
			Host:            cfg.Host,
			Port:            cfg.Port,
			TLS:             cfg.TLS,
			Cluster:         cfg.Cluster,
			ReadFromReplica: cfg.ReadFromReplica,
			ConnectTimeout:  cfg.ConnectTimeout(),
			RequestTimeout:  cfg.RequestTimeout(),
		}
		return func(ctx context.Context) (client.Client, error) {
			return client.Connect(ctx, opts)
		}
	}
	return o
}

// Partition distributes total across n parts: floor(total/n) each, with
// the first total mod n parts receiving one extra.
func Partition(total int64, n int) []int64 {
	out := make([]int64, n)
	if n <= 0 {
		return out
	}
	base := total / int64(n)
	extra := total % int64(n)
	for i := range out {
		out[i] = base
		if int64(i) < extra {
			out[i]++
		}
	}
	return out
}

// Run executes the configured workload and returns the process exit code.
func (o *Orchestrator) Run(ctx context.Context) int {
	cfg := o.cfg
	procs := cfg.NumProcesses()
	csvMode := cfg.CSVMode()

	if cfg.ReadFromReplica && !cfg.Cluster {
		o.log.Warn("read-from-replica has no effect with a standalone client")
	}

	policy, warnings, err := rate.NewPolicy(cfg.QPS, cfg.StartQPS, cfg.EndQPS,
		cfg.QPSChange, cfg.QPSChangeIntervalSec, cfg.QPSRampMode, cfg.QPSRampFactor)
	if err != nil {
		fmt.Fprintf(o.stderr, "Error: %v\n", err)
		return ExitConfig
	}
	for _, warning := range warnings {
		o.log.Warn(warning)
		fmt.Fprintf(o.stderr, "Warning: %s\n", warning)
	}

	if !csvMode {
		banner.Print(o.stdout, cfg, procs)
	}

	runCtx := ctx
	var cancelRun context.CancelFunc
	if cfg.DurationBased() {
		runCtx, cancelRun = context.WithTimeout(ctx, time.Duration(cfg.TestDurationSec)*time.Second)
	} else {
		runCtx, cancelRun = context.WithCancel(ctx)
	}
	defer cancelRun()

	totalWorkers := procs * cfg.Threads
	msgs := make(chan stats.Message, totalWorkers*4)

	var budgets []int64
	if !cfg.DurationBased() {
		budgets = Partition(cfg.Requests, procs)
	}
	groupPolicy := policy.Divide(procs)

	eg, workerCtx := errgroup.WithContext(runCtx)
	var pools []*pool.Pool
	defer func() {
		for _, p := range pools {
			p.Close()
		}
	}()

	// Every group's pool is built before any worker starts, so a fatal
	// connect failure exits with no workers running.
	for gid := 0; gid < procs; gid++ {
		p, err := o.buildPool(runCtx, gid)
		if err != nil {
			fmt.Fprintf(o.stderr, "Error: failed to connect: %v\n", err)
			return ExitConfig
		}
		pools = append(pools, p)
	}

	now := o.clock.Now()
	spawned := 0
	for gid := 0; gid < procs; gid++ {
		p := pools[gid]
		controller := rate.NewController(groupPolicy, o.clock)

		var workerBudgets []int64
		if budgets != nil {
			workerBudgets = Partition(budgets[gid], cfg.Threads)
		}

		for t := 0; t < cfg.Threads; t++ {
			wid := gid*cfg.Threads + t
			var budget int64
			if workerBudgets != nil {
				budget = workerBudgets[t]
				if budget == 0 {
					// Nothing left for this worker after partitioning.
					continue
				}
			}

			var cmd custom.Command
			if cfg.Command == config.CommandCustom {
				cmd, err = custom.Load(cfg.CustomCommandFile, cfg.CustomCommandArgs)
				if err != nil {
					fmt.Fprintf(o.stderr, "Error: %v\n", err)
					return ExitConfig
				}
			}

			seed := time.Now().UnixNano() + int64(wid)
			params := worker.Params{
				ID:             wid,
				Command:        cfg.Command,
				DataSize:       cfg.DataSize,
				Budget:         budget,
				RequestTimeout: cfg.RequestTimeout(),
				CSVInterval:    time.Duration(cfg.CSVIntervalSec) * time.Second,
				Keys:           o.buildKeys(wid, seed),
				Values:         keygen.NewValueSource(uint32(seed)),
				Custom:         cmd,
			}
			rec := stats.NewRecorder(wid, now)
			w := worker.New(params, p, controller, rec, msgs, o.log)
			spawned++
			eg.Go(func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						err = fmt.Errorf("worker %d crashed: %v", params.ID, r)
					}
				}()
				w.Run(workerCtx)
				return nil
			})
		}
	}

	var crashErr error
	go func() {
		crashErr = eg.Wait()
		close(msgs)
	}()

	agg := newAggregator(o, spawned, csvMode)
	agg.drain(msgs)

	if csvMode {
		agg.flushPending()
	} else {
		agg.writeFinal()
	}

	if crashErr != nil {
		o.log.Error("worker group crashed", zap.Error(crashErr))
		fmt.Fprintf(o.stderr, "Error: %v\n", crashErr)
		return ExitWorkerCrashed
	}
	return ExitOK
}

func (o *Orchestrator) buildPool(ctx context.Context, gid int) (*pool.Pool, error) {
	cfg := o.cfg
	onDisconnect := func() { atomic.AddInt64(&o.poolDisconnects, 1) }

	if cfg.UseRamp() {
		ramp := pool.Ramp{
			Start:    cfg.ClientsRampStart,
			End:      cfg.ClientsRampEnd,
			PerStep:  cfg.ClientsPerRamp,
			Interval: time.Duration(cfg.ClientRampIntervalSec) * time.Second,
		}
		p := pool.New(o.factory(gid), ramp.End, o.clock, o.log, onDisconnect)
		if err := p.StartRamp(ctx, ramp); err != nil {
			return nil, err
		}
		return p, nil
	}

	p := pool.New(o.factory(gid), cfg.Clients, o.clock, o.log, onDisconnect)
	if err := p.Build(ctx, cfg.Clients); err != nil {
		return nil, err
	}
	return p, nil
}

func (o *Orchestrator) buildKeys(wid int, seed int64) *keygen.Generator {
	cfg := o.cfg
	switch {
	case cfg.RandomKeyspace > 0:
		return keygen.New(keygen.ModeRandom, wid, cfg.RandomKeyspace, cfg.KeyspaceOffset, false, seed)
	case cfg.SequentialKeyspace > 0:
		return keygen.New(keygen.ModeSequential, wid, cfg.SequentialKeyspace, cfg.KeyspaceOffset,
			cfg.SequentialRandomStart, seed)
	default:
		return keygen.New(keygen.ModeFixed, wid, 0, 0, false, seed)
	}
}
