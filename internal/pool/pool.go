package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"kvbench/internal/client"
)

// Factory builds one new client handle.
type Factory func(ctx context.Context) (client.Client, error)

// Ramp describes the gradual sizing discipline: start with Start handles,
// add PerStep more every Interval until End.
type Ramp struct {
	Start    int
	End      int
	PerStep  int
	Interval time.Duration
}

// Pool owns a bounded set of client handles and lends indices to workers
// through a buffered free-index channel. Only the holder of an index may
// use the client at that index.
type Pool struct {
	factory      Factory
	clock        clock.Clock
	log          *zap.Logger
	onDisconnect func()

	mu      sync.Mutex
	clients []client.Client
	free    chan int
}

// New builds an empty pool sized for at most capacity handles.
func New(factory Factory, capacity int, clk clock.Clock, log *zap.Logger, onDisconnect func()) *Pool {
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pool{
		factory:      factory,
		clock:        clk,
		log:          log,
		onDisconnect: onDisconnect,
		free:         make(chan int, capacity),
	}
}

// Build creates n handles up front. Any handle that fails to connect after
// one retry aborts the build; a fixed-size pool that cannot fill is a
// fatal connection failure.
func (p *Pool) Build(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		c, err := p.connect(ctx)
		if err != nil {
			return fmt.Errorf("client %d: %w", i, err)
		}
		p.add(c)
	}
	return nil
}

// StartRamp grows the pool on the ramp schedule, concurrently with the
// workload. The first batch is built before it returns so that workers
// have at least one handle; later failures drop the handle and report a
// disconnect rather than aborting the run.
func (p *Pool) StartRamp(ctx context.Context, r Ramp) error {
	if err := p.Build(ctx, r.Start); err != nil {
		return err
	}
	go func() {
		ticker := p.clock.Ticker(r.Interval)
		defer ticker.Stop()
		for p.Size() < r.End {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			n := r.PerStep
			if remaining := r.End - p.Size(); n > remaining {
				n = remaining
			}
			p.grow(ctx, n)
		}
	}()
	return nil
}

// ResizeTo asynchronously grows the pool up to target. Shrinking is not
// supported; a target at or below the current size is a no-op.
func (p *Pool) ResizeTo(ctx context.Context, target int) {
	n := target - p.Size()
	if n <= 0 {
		return
	}
	go p.grow(ctx, n)
}

func (p *Pool) grow(ctx context.Context, n int) {
	for i := 0; i < n; i++ {
		c, err := p.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Warn("ramp connect failed, dropping handle", zap.Error(err))
			if p.onDisconnect != nil {
				p.onDisconnect()
			}
			continue
		}
		p.add(c)
	}
}

// connect tries the factory, retrying once on failure.
func (p *Pool) connect(ctx context.Context) (client.Client, error) {
	c, err := p.factory(ctx)
	if err == nil {
		return c, nil
	}
	p.log.Debug("connect failed, retrying once", zap.Error(err))
	return p.factory(ctx)
}

func (p *Pool) add(c client.Client) {
	p.mu.Lock()
	p.clients = append(p.clients, c)
	idx := len(p.clients) - 1
	p.mu.Unlock()
	p.free <- idx
}

// Acquire blocks until a free index is available.
func (p *Pool) Acquire(ctx context.Context) (int, error) {
	select {
	case idx := <-p.free:
		return idx, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Release returns an index to the free set, waking one waiter.
func (p *Pool) Release(idx int) {
	p.free <- idx
}

// Client returns the handle at idx. Callers must hold the index.
func (p *Pool) Client(idx int) client.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clients[idx]
}

// Size returns the current count of successfully connected handles.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

// Close tears down every handle. The pool must be idle.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.clients {
		_ = c.Close()
	}
	p.clients = nil
}
