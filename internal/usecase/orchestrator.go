package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	drepo "pairstream/internal/domain/repository"
	mid "pairstream/internal/middleware"
	"pairstream/internal/service/broker"
	applogger "pairstream/pkg/logger"
)

// StreamFactory builds a fresh market stream for a symbol. Streams are
// single-use: a dead feed is replaced, not revived.
type StreamFactory func(symbol string) drepo.MarketStream

// OrchestratorConfig bounds the supervision policy.
type OrchestratorConfig struct {
	RestartBackoffBase time.Duration
	RestartBackoffMax  time.Duration
	FaultLimit         int           // restarts tolerated inside FaultWindow
	FaultWindow        time.Duration // before the orchestrator gives up
}

func (c *OrchestratorConfig) normalize() {
	if c.RestartBackoffBase <= 0 {
		c.RestartBackoffBase = time.Second
	}
	if c.RestartBackoffMax < c.RestartBackoffBase {
		c.RestartBackoffMax = 30 * time.Second
	}
	if c.FaultLimit <= 0 {
		c.FaultLimit = 10
	}
	if c.FaultWindow <= 0 {
		c.FaultWindow = time.Minute
	}
}

// Orchestrator owns the lifecycle of every pipeline stage: one feed plus
// symbol pipeline per symbol, one runner per pair, the live mirror and the
// persistence forwarder. A panicking or failing stage restarts with backoff
// and clean state; crossing the fault limit inside the window is terminal
// and surfaces on Wait.
type Orchestrator struct {
	cfg       OrchestratorConfig
	symbols   []string
	newStream StreamFactory
	pipelines map[string]*SymbolPipeline
	runners   []*PairRunner
	mirror    *LiveMirror
	brk       *broker.Broker
	fwd       *mid.PersistForwarder
	metrics   drepo.Metrics
	logger    *applogger.Logger

	mu      sync.Mutex
	faults  []time.Time
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	live    map[string]drepo.MarketStream

	fatal chan error
	wg    sync.WaitGroup
}

func NewOrchestrator(
	cfg OrchestratorConfig,
	symbols []string,
	newStream StreamFactory,
	pipelines map[string]*SymbolPipeline,
	runners []*PairRunner,
	mirror *LiveMirror,
	brk *broker.Broker,
	fwd *mid.PersistForwarder,
	metrics drepo.Metrics,
	logger *applogger.Logger,
) *Orchestrator {
	cfg.normalize()
	return &Orchestrator{
		cfg:       cfg,
		symbols:   symbols,
		newStream: newStream,
		pipelines: pipelines,
		runners:   runners,
		mirror:    mirror,
		brk:       brk,
		fwd:       fwd,
		metrics:   metrics,
		logger:    logger,
		fatal:     make(chan error, 1),
		live:      make(map[string]drepo.MarketStream),
	}
}

// Connected reports whether every symbol's feed currently holds a live
// connection.
func (o *Orchestrator) Connected() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.live) < len(o.symbols) {
		return false
	}
	for _, s := range o.live {
		if !s.IsConnected() {
			return false
		}
	}
	return true
}

// Start launches every stage. It returns immediately; failures after this
// point are handled by supervision, not by the caller.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator: already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.ctx = runCtx
	o.cancel = cancel
	o.started = true
	o.mu.Unlock()

	if o.fwd != nil {
		o.fwd.Start(runCtx)
	}

	for _, sym := range o.symbols {
		pipe, ok := o.pipelines[sym]
		if !ok {
			cancel()
			return fmt.Errorf("orchestrator: no pipeline for symbol %q", sym)
		}
		o.spawn("feed:"+sym, func(ctx context.Context) error {
			return o.runSymbol(ctx, sym, pipe)
		})
	}
	for _, r := range o.runners {
		runner := r
		o.spawn("pair:"+runner.PairID(), runner.Run)
	}
	if o.mirror != nil {
		o.spawn("mirror", o.mirror.Run)
	}
	return nil
}

// Wait blocks until a fault escalates past the limit; it returns nil when
// the orchestrator is stopped cleanly instead.
func (o *Orchestrator) Wait() error {
	err, ok := <-o.fatal
	if !ok {
		return nil
	}
	return err
}

// Stop shuts stages down in dependency order: feeds first so the final
// candles flush through the pipelines, then the forwarder drains, and the
// broker closes last so no stage publishes into a closed topic set.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.started {
		o.mu.Unlock()
		return
	}
	cancel := o.cancel
	o.started = false
	o.mu.Unlock()

	cancel()
	o.wg.Wait()
	if o.fwd != nil {
		o.fwd.Stop()
	}
	o.brk.Close()
	close(o.fatal)
	if o.logger != nil {
		o.logger.Info("orchestrator stopped")
	}
}

// runSymbol binds one feed to its pipeline for a single stream lifetime.
// ErrStreamClosed means the feed died underneath the pipeline and the
// supervisor must build a fresh stream.
func (o *Orchestrator) runSymbol(ctx context.Context, symbol string, pipe *SymbolPipeline) error {
	stream := o.newStream(symbol)
	o.mu.Lock()
	o.live[symbol] = stream
	o.mu.Unlock()
	defer func() {
		_ = stream.Stop()
		o.mu.Lock()
		delete(o.live, symbol)
		o.mu.Unlock()
	}()

	ticks, errs := stream.Start(ctx)
	done := make(chan error, 1)
	go func() { done <- pipe.Run(ctx, ticks) }()

	select {
	case err := <-errs:
		if err != nil {
			_ = stream.Stop()
			<-done
			return err
		}
		return <-done
	case err := <-done:
		return err
	}
}

// spawn supervises one stage: panics become restarts, restarts back off
// exponentially, and too many inside the fault window kill the instance.
func (o *Orchestrator) spawn(name string, run func(context.Context) error) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		attempt := 0
		for {
			ctx := o.runCtx()
			if ctx == nil || ctx.Err() != nil {
				return
			}
			err := o.guard(name, run, ctx)
			if ctx.Err() != nil {
				return
			}
			if err == nil {
				return
			}
			if o.metrics != nil {
				o.metrics.RecordRestart(name)
			}
			if o.logger != nil {
				o.logger.Warn("stage restarting",
					applogger.String("stage", name),
					applogger.Error(err),
				)
			}
			if o.recordFault() {
				o.escalate(fmt.Errorf("orchestrator: stage %s exceeded %d restarts in %s: %w",
					name, o.cfg.FaultLimit, o.cfg.FaultWindow, err))
				return
			}
			delay := backoff(o.cfg.RestartBackoffBase, o.cfg.RestartBackoffMax, attempt)
			attempt++
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}
	}()
}

func (o *Orchestrator) guard(name string, run func(context.Context) error, ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("orchestrator: stage %s panicked: %v", name, r)
		}
	}()
	return run(ctx)
}

func (o *Orchestrator) runCtx() context.Context {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.started {
		return nil
	}
	return o.ctx
}

// recordFault registers one restart and reports whether the sliding window
// is now over the limit.
func (o *Orchestrator) recordFault() bool {
	now := time.Now()
	cutoff := now.Add(-o.cfg.FaultWindow)

	o.mu.Lock()
	defer o.mu.Unlock()
	kept := o.faults[:0]
	for _, t := range o.faults {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	o.faults = append(kept, now)
	return len(o.faults) > o.cfg.FaultLimit
}

func (o *Orchestrator) escalate(err error) {
	select {
	case o.fatal <- err:
	default:
	}
	o.mu.Lock()
	cancel := o.cancel
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func backoff(base, max time.Duration, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	return d
}
