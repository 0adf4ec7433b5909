// -----------------------------------------------------------------------
// Processor - single poll loop draining the durable queue
// -----------------------------------------------------------------------

package workers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/interfaces"
)

// minIdleBackoff is the shortest idle sleep. An empty poll doubles the sleep
// up to the configured poll interval; any processed item resets it.
const minIdleBackoff = 100 * time.Millisecond

// Processor drains the queue with one poll goroutine: fetch a batch of
// PENDING items, dispatch them sequentially, sleep with exponential idle
// backoff. Batch size and poll interval are re-read from the settings
// document every cycle, so reloads apply without a restart.
type Processor struct {
	pc         *ProcessorContext
	dispatcher *Dispatcher

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startedAt time.Time

	itemsProcessed atomic.Int64
	itemsFailed    atomic.Int64
	lastPollNanos  atomic.Int64
}

var _ interfaces.WorkerController = (*Processor)(nil)

// NewProcessor creates the poll-loop processor over a dispatcher.
func NewProcessor(pc *ProcessorContext, dispatcher *Dispatcher) *Processor {
	return &Processor{
		pc:         pc,
		dispatcher: dispatcher,
	}
}

// Start launches the poll goroutine.
func (p *Processor) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("worker already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.running = true
	p.startedAt = time.Now().UTC()

	p.wg.Add(1)
	go p.run(ctx)

	p.pc.Logger.Info().
		Str(common.FieldCategory, common.CategoryWorker).
		Str(common.FieldAction, common.ActionStart).
		Msg("Queue worker started")
	return nil
}

// Stop halts the poll loop. An in-flight item finishes its current stage.
func (p *Processor) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	p.wg.Wait()

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	p.pc.Logger.Info().
		Str(common.FieldCategory, common.CategoryWorker).
		Str(common.FieldAction, common.ActionStop).
		Msg("Queue worker stopped")
	return nil
}

// Restart stops the loop and starts a fresh one. Counters survive.
func (p *Processor) Restart() error {
	if err := p.Stop(); err != nil {
		return err
	}
	return p.Start()
}

// IsRunning reports whether the poll loop is active.
func (p *Processor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Stats returns a snapshot of the processor counters.
func (p *Processor) Stats() interfaces.WorkerStats {
	p.mu.Lock()
	running := p.running
	startedAt := p.startedAt
	p.mu.Unlock()

	var lastPoll time.Time
	if nanos := p.lastPollNanos.Load(); nanos > 0 {
		lastPoll = time.Unix(0, nanos).UTC()
	}

	return interfaces.WorkerStats{
		Running:        running,
		ItemsProcessed: p.itemsProcessed.Load(),
		ItemsFailed:    p.itemsFailed.Load(),
		LastPollAt:     lastPoll,
		StartedAt:      startedAt,
	}
}

// run is the poll loop. A panic here means queue plumbing is broken beyond
// repair, so it is fatal rather than silently losing the worker.
func (p *Processor) run(ctx context.Context) {
	defer p.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			p.pc.Logger.Fatal().
				Str(common.FieldCategory, common.CategoryWorker).
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", stackTrace()).
				Msg("Queue worker poll loop panicked")
		}
	}()

	backoff := minIdleBackoff
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		cfg := p.pc.workerSettings(ctx)
		maxIdle := time.Duration(cfg.PollIntervalSeconds) * time.Second
		if maxIdle < minIdleBackoff {
			maxIdle = minIdleBackoff
		}

		p.lastPollNanos.Store(time.Now().UnixNano())

		items, err := p.pc.Queue.GetPending(ctx, cfg.BatchSize)
		if err != nil {
			p.pc.Logger.Warn().
				Err(err).
				Str(common.FieldCategory, common.CategoryWorker).
				Str(common.FieldAction, common.ActionPoll).
				Msg("Failed to poll pending items")
			if !p.sleep(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, maxIdle)
			continue
		}

		if len(items) == 0 {
			if !p.sleep(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, maxIdle)
			continue
		}
		backoff = minIdleBackoff

		for _, item := range items {
			if ctx.Err() != nil {
				return
			}
			start := time.Now()
			err := p.dispatcher.Dispatch(ctx, item)
			p.itemsProcessed.Add(1)
			if err != nil {
				p.itemsFailed.Add(1)
				p.pc.itemLogger(item).Warn().
					Err(err).
					Str(common.FieldCategory, common.CategoryWorker).
					Str(common.FieldAction, common.ActionProcess).
					Str("item_id", item.ID).
					Str("item_type", string(item.Type)).
					Dur("duration", time.Since(start)).
					Msg("Item attempt failed")
				continue
			}
			p.pc.itemLogger(item).Debug().
				Str(common.FieldCategory, common.CategoryWorker).
				Str(common.FieldAction, common.ActionProcess).
				Str("item_id", item.ID).
				Str("item_type", string(item.Type)).
				Dur("duration", time.Since(start)).
				Msg("Item processed")
		}
	}
}

// sleep waits for d or until the context is cancelled. Returns false on
// cancellation.
func (p *Processor) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// nextBackoff doubles the idle sleep up to the ceiling.
func nextBackoff(current, ceiling time.Duration) time.Duration {
	next := current * 2
	if next > ceiling {
		return ceiling
	}
	return next
}
