package appointment

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// EventEmitter accepts lifecycle events after the owning transaction committed.
// Implementations must not block the caller on delivery.
type EventEmitter interface {
	Emit(ctx context.Context, events ...LifecycleEvent)
}

// EventSink is one consumer of lifecycle events. Errors are logged by the
// dispatcher and never retried.
type EventSink interface {
	Handle(ctx context.Context, ev LifecycleEvent) error
}

type EventSinkFunc func(ctx context.Context, ev LifecycleEvent) error

func (f EventSinkFunc) Handle(ctx context.Context, ev LifecycleEvent) error {
	return f(ctx, ev)
}

const (
	defaultEventBuffer = 1024
	sinkTimeout        = 5 * time.Second
)

// DispatcherHooks lets the caller observe delivery outcomes, e.g. for metrics.
type DispatcherHooks struct {
	OnDelivered func(ev LifecycleEvent)
	OnFailed    func(ev LifecycleEvent, err error)
	OnDropped   func(ev LifecycleEvent)
}

// Dispatcher drains emitted events to its sinks on a single background goroutine.
type Dispatcher struct {
	sinks  []EventSink
	log    *zap.Logger
	hooks  DispatcherHooks
	events chan LifecycleEvent
	done   chan struct{}

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

func NewDispatcher(log *zap.Logger, buffer int, hooks DispatcherHooks, sinks ...EventSink) *Dispatcher {
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	d := &Dispatcher{
		sinks:  sinks,
		log:    log,
		hooks:  hooks,
		events: make(chan LifecycleEvent, buffer),
		done:   make(chan struct{}),
	}
	go d.worker()
	return d
}

// Emit enqueues events. When the buffer is full the event is dropped with a warning.
func (d *Dispatcher) Emit(_ context.Context, events ...LifecycleEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, ev := range events {
		if d.closed {
			d.drop(ev, "dispatcher closed")
			continue
		}
		select {
		case d.events <- ev:
		default:
			d.drop(ev, "event buffer full")
		}
	}
}

// Pending returns the number of queued events.
func (d *Dispatcher) Pending() int {
	return len(d.events)
}

// Close stops accepting events and waits for the queue to drain, up to timeout.
func (d *Dispatcher) Close(timeout time.Duration) {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.events)
		d.mu.Unlock()
	})

	select {
	case <-d.done:
	case <-time.After(timeout):
		d.log.Warn("event dispatcher shutdown timed out; some events may be lost",
			zap.Int("pending", len(d.events)))
	}
}

func (d *Dispatcher) worker() {
	defer close(d.done)
	for ev := range d.events {
		d.deliver(ev)
	}
}

func (d *Dispatcher) deliver(ev LifecycleEvent) {
	failed := false
	for _, sink := range d.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		err := sink.Handle(ctx, ev)
		cancel()
		if err != nil {
			failed = true
			d.log.Error("lifecycle event delivery failed",
				zap.String("sink", fmt.Sprintf("%T", sink)),
				zap.String("event_type", string(ev.Type)),
				zap.Stringer("appointment_id", ev.AppointmentID),
				zap.Error(err),
			)
			if d.hooks.OnFailed != nil {
				d.hooks.OnFailed(ev, err)
			}
		}
	}
	if !failed && d.hooks.OnDelivered != nil {
		d.hooks.OnDelivered(ev)
	}
}

func (d *Dispatcher) drop(ev LifecycleEvent, reason string) {
	d.log.Warn("dropping lifecycle event",
		zap.String("reason", reason),
		zap.String("event_type", string(ev.Type)),
		zap.Stringer("appointment_id", ev.AppointmentID),
	)
	if d.hooks.OnDropped != nil {
		d.hooks.OnDropped(ev)
	}
}

// EventLogWriter persists the audit trail of lifecycle events.
type EventLogWriter interface {
	InsertEvent(ctx context.Context, ev EventLog) error
}

// NewEventLogSink records every lifecycle event in the event log table.
func NewEventLogSink(w EventLogWriter) EventSink {
	return EventSinkFunc(func(ctx context.Context, ev LifecycleEvent) error {
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal event payload: %w", err)
		}
		apptID := ev.AppointmentID
		return w.InsertEvent(ctx, EventLog{
			EventType:     eventLogType(ev.Type),
			AppointmentID: &apptID,
			Payload:       payload,
			CreatedAt:     ev.OccurredAt,
		})
	})
}

func eventLogType(t EventType) string {
	switch t {
	case EventBooked:
		return "APPOINTMENT_BOOKED"
	case EventCancelled:
		return "APPOINTMENT_CANCELLED"
	case EventRescheduled:
		return "APPOINTMENT_RESCHEDULED"
	}
	return "APPOINTMENT_" + string(t)
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, ...LifecycleEvent) {}
