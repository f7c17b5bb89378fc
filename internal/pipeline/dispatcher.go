package pipeline

import (
	"context"
	"sync"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	defaultQueueSize = 256
	defaultWorkers   = 4
)

// Dispatcher runs ingestion jobs detached from the submitting request.
// Jobs for different items run in parallel across the worker pool; the
// stages inside one job stay sequential in the Runner.
type Dispatcher struct {
	log    *zap.Logger
	runner *Runner

	queue chan snowflake.ID
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

type DispatcherParam struct {
	fx.In

	LC     fx.Lifecycle
	Log    *zap.Logger
	Runner *Runner
}

func NewDispatcher(p DispatcherParam) *Dispatcher {
	d := &Dispatcher{
		log:    p.Log.Named("pipeline.dispatcher"),
		runner: p.Runner,
		queue:  make(chan snowflake.ID, defaultQueueSize),
	}

	p.LC.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			d.start(defaultWorkers)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			d.stop()
			return nil
		},
	})

	return d
}

func (d *Dispatcher) start(workers int) {
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for itemID := range d.queue {
				d.run(itemID)
			}
		}()
	}
}

// stop drains queued jobs before returning so accepted submissions are
// not silently lost on shutdown.
func (d *Dispatcher) stop() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// Enqueue hands an item to the pool without blocking the caller. When
// the queue is saturated the job runs on its own goroutine instead of
// being dropped.
func (d *Dispatcher) Enqueue(itemID snowflake.ID) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.log.Warn("enqueue after shutdown", zap.String("item_id", itemID.String()))
		return
	}
	select {
	case d.queue <- itemID:
		d.mu.Unlock()
	default:
		d.mu.Unlock()
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.run(itemID)
		}()
	}
}

// run uses a background context: no timeout or cancellation is imposed
// on a pipeline run, so a hung generator stalls only that item.
func (d *Dispatcher) run(itemID snowflake.ID) {
	if err := d.runner.Run(context.Background(), itemID); err != nil {
		d.log.Error("pipeline run aborted",
			zap.String("item_id", itemID.String()),
			zap.Error(err),
		)
	}
}
