package core

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/vovakirdan/agora-server/internal/proto"
)

// Task is deferred work executed on a dispatcher worker.
type Task func(ctx context.Context)

// Dispatcher pushes envelopes to live sessions from a pool of background workers.
//
// Delivery is best-effort: no retries, no ordering across principals, and a
// failure on one session never reaches the caller or sibling sessions.
type Dispatcher struct {
	registry *Registry
	tasks    chan Task
	workers  int
	log      *zerolog.Logger
}

// NewDispatcher creates a dispatcher with the given worker count and queue capacity.
func NewDispatcher(registry *Registry, logger *zerolog.Logger, workers, queue int) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queue <= 0 {
		queue = 1
	}
	return &Dispatcher{
		registry: registry,
		tasks:    make(chan Task, queue),
		workers:  workers,
		log:      logger,
	}
}

// Registry exposes the registry the dispatcher routes through.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Run serves the queue until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg conc.WaitGroup
	for range d.workers {
		wg.Go(func() { d.work(ctx) })
	}
	wg.Wait()
}

func (d *Dispatcher) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-d.tasks:
			d.runTask(ctx, task)
		}
	}
}

func (d *Dispatcher) runTask(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Interface("panic", r).Msg("dispatch task panicked")
		}
	}()
	task(ctx)
}

// Submit enqueues task without blocking. A full queue drops the task.
func (d *Dispatcher) Submit(task Task) bool {
	select {
	case d.tasks <- task:
		return true
	default:
		d.log.Warn().Int("queue_cap", cap(d.tasks)).Msg("dispatch queue full, dropping task")
		return false
	}
}

// Unicast pushes env to every session of principal. Offline principals are a no-op.
func (d *Dispatcher) Unicast(principal string, env proto.Envelope) {
	d.Submit(func(context.Context) {
		d.DeliverTo(principal, env)
	})
}

// BroadcastTo pushes env to every session whose principal satisfies pred.
func (d *Dispatcher) BroadcastTo(pred func(*Principal) bool, env proto.Envelope) {
	d.Submit(func(context.Context) {
		d.Deliver(d.registry.Select(pred), env)
	})
}

// BroadcastToAdmins pushes env to administrator sessions.
func (d *Dispatcher) BroadcastToAdmins(env proto.Envelope) {
	d.BroadcastTo((*Principal).IsAdmin, env)
}

// DeliverTo synchronously delivers env to principal's sessions.
func (d *Dispatcher) DeliverTo(principal string, env proto.Envelope) int {
	sessions := d.registry.Lookup(principal)
	if len(sessions) == 0 {
		d.log.Debug().Str("principal", principal).Str("type", env.Type).Msg("recipient offline, skipping push")
		return 0
	}
	return d.Deliver(sessions, env)
}

// Deliver serializes env once and writes it to each session in order.
// Sessions that fail are unregistered in the same pass. It returns the
// number of successful writes.
func (d *Dispatcher) Deliver(sessions []Session, env proto.Envelope) int {
	if len(sessions) == 0 {
		return 0
	}

	payload, err := json.Marshal(env)
	if err != nil {
		d.log.Error().Err(err).Str("type", env.Type).Msg("marshal envelope")
		return 0
	}

	delivered := 0
	for _, s := range sessions {
		if sendErr := s.Send(payload); sendErr != nil {
			d.log.Debug().
				Err(sendErr).
				Str("session_id", s.ID()).
				Str("type", env.Type).
				Msg("delivery failed, dropping session")
			d.registry.Unregister(s)
			continue
		}
		delivered++
	}
	return delivered
}
