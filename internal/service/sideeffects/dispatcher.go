// Package sideeffects runs the work that follows a committed delivery:
// movement audit records, staff notifications and price recomputation.
// Tasks go through a durable outbox and are executed at least once; their
// failure never affects the committed inventory or order state.
package sideeffects

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/restock/internal/domain/models"
	"github.com/mamadbah2/restock/internal/repository"
	client "github.com/mamadbah2/restock/pkg/clients/whatsapp"
)

// Notifier informs staff that goods were received.
type Notifier interface {
	NotifyDelivery(ctx context.Context, n models.DeliveryNotification) error
}

// PriceSyncer triggers recomputation of prices derived from inventory cost.
type PriceSyncer interface {
	TriggerRecompute(ctx context.Context, tenantID, locationID string) error
}

// Options configures a Dispatcher. Nil handlers disable their task kind.
type Options struct {
	Queue       repository.TaskQueue
	Movements   []repository.MovementLog
	Notifier    Notifier
	Pricing     PriceSyncer
	MaxAttempts int
	Timeout     time.Duration
}

// Dispatcher enqueues and executes post-commit tasks.
type Dispatcher struct {
	queue       repository.TaskQueue
	movements   []repository.MovementLog
	notifier    Notifier
	pricing     PriceSyncer
	maxAttempts int
	timeout     time.Duration
	logger      *zap.Logger
	now         func() time.Time

	wg sync.WaitGroup
}

// NewDispatcher wires a dispatcher.
func NewDispatcher(opts Options, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 8
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Dispatcher{
		queue:       opts.Queue,
		movements:   opts.Movements,
		notifier:    opts.Notifier,
		pricing:     opts.Pricing,
		maxAttempts: opts.MaxAttempts,
		timeout:     opts.Timeout,
		logger:      logger,
		now:         time.Now,
	}
}

// Dispatch records tasks in the outbox and executes them in the background.
// It returns once the tasks are queued; errors are logged, never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, tasks []models.Task) {
	tasks = d.enabled(tasks)
	if len(tasks) == 0 {
		return
	}

	queued := true
	if d.queue == nil {
		queued = false
	} else if err := d.queue.Enqueue(ctx, tasks); err != nil {
		queued = false
		d.logger.Error("failed to enqueue side effects, running once without outbox",
			zap.Int("tasks", len(tasks)), zap.Error(err))
	}

	runCtx := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for _, task := range tasks {
			d.run(runCtx, task, queued)
		}
	}()
}

// Drain executes up to limit pending outbox tasks and returns how many succeeded.
func (d *Dispatcher) Drain(ctx context.Context, limit int) (int, error) {
	if d.queue == nil {
		return 0, nil
	}
	tasks, err := d.queue.Pending(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("load pending tasks: %w", err)
	}

	done := 0
	for _, task := range tasks {
		if d.run(ctx, task, true) {
			done++
		}
	}
	if len(tasks) > 0 {
		d.logger.Info("outbox drained", zap.Int("pending", len(tasks)), zap.Int("succeeded", done))
	}
	return done, nil
}

// Wait blocks until background executions started by Dispatch finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) enabled(tasks []models.Task) []models.Task {
	out := tasks[:0:0]
	for _, task := range tasks {
		switch task.Kind {
		case models.TaskMovement:
			if len(d.movements) == 0 || task.Movement == nil {
				continue
			}
		case models.TaskNotification:
			if d.notifier == nil || task.Notification == nil {
				continue
			}
		case models.TaskPriceSync:
			if d.pricing == nil || task.PriceSync == nil {
				continue
			}
		default:
			continue
		}
		out = append(out, task)
	}
	return out
}

func (d *Dispatcher) run(ctx context.Context, task models.Task, queued bool) bool {
	if queued {
		now := d.now()
		claimed, err := d.queue.Claim(ctx, task.ID, now, now.Add(2*d.timeout))
		if err != nil {
			d.logger.Warn("failed to claim task", zap.String("task", task.ID), zap.Error(err))
			return false
		}
		if !claimed {
			d.logger.Debug("task held by another worker", zap.String("task", task.ID))
			return false
		}
	}

	execCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	err := d.execute(execCtx, task)
	if !queued {
		if err != nil {
			d.logger.Warn("side effect failed", zap.String("kind", string(task.Kind)), zap.String("task", task.ID), zap.Error(err))
		}
		return err == nil
	}

	if err == nil {
		if markErr := d.queue.MarkDone(ctx, task.ID, d.now()); markErr != nil {
			d.logger.Warn("failed to mark task done", zap.String("task", task.ID), zap.Error(markErr))
		}
		return true
	}

	dead := task.Attempts+1 >= d.maxAttempts || errors.Is(err, client.ErrRejected)
	d.logger.Warn("side effect failed",
		zap.String("kind", string(task.Kind)),
		zap.String("task", task.ID),
		zap.Int("attempt", task.Attempts+1),
		zap.Bool("dead", dead),
		zap.Error(err))
	if markErr := d.queue.MarkFailed(ctx, task.ID, err.Error(), dead, d.now()); markErr != nil {
		d.logger.Warn("failed to mark task failed", zap.String("task", task.ID), zap.Error(markErr))
	}
	return false
}

func (d *Dispatcher) execute(ctx context.Context, task models.Task) error {
	switch task.Kind {
	case models.TaskMovement:
		for _, sink := range d.movements {
			if err := sink.RecordMovement(ctx, *task.Movement); err != nil {
				return err
			}
		}
		return nil
	case models.TaskNotification:
		return d.notifier.NotifyDelivery(ctx, *task.Notification)
	case models.TaskPriceSync:
		return d.pricing.TriggerRecompute(ctx, task.PriceSync.TenantID, task.PriceSync.LocationID)
	default:
		return fmt.Errorf("unknown task kind %q", task.Kind)
	}
}

func newTask(kind models.TaskKind, now time.Time) models.Task {
	return models.Task{
		ID:        uuid.NewString(),
		Kind:      kind,
		State:     models.TaskPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
