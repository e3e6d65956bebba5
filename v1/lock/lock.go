package lock

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mirkobrombin/go-tasklock/v1/events"
	"github.com/mirkobrombin/go-tasklock/v1/metrics"
)

var tracer = otel.Tracer("github.com/mirkobrombin/go-tasklock/v1/lock")

// DefaultTimeout bounds the wait in Do when no explicit timeout is given.
const DefaultTimeout = time.Minute

// Task is a unit of work executed while holding a lock.
type Task func(ctx context.Context) error

type waiter struct {
	token string
	ready chan struct{}
}

// Lock serializes access to a logical resource. The zero value is not
// usable; construct with New or NewAnonymous.
type Lock struct {
	name string
	clk  clock.Clock
	bus  events.Bus

	metricsEnabled bool
	traceEnabled   bool

	mu      sync.Mutex
	locked  bool
	waiters []*waiter
}

// Option configures a Lock.
type Option func(*Lock)

// WithClock sets the clock used for timeout timers. The wall clock is used
// by default.
func WithClock(clk clock.Clock) Option {
	return func(l *Lock) {
		l.clk = clk
	}
}

// WithMetrics enables Prometheus metrics collection using the provided
// registerer. Locks may share a registry.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(l *Lock) {
		metrics.RegisterLockMetrics(reg)
		l.metricsEnabled = true
	}
}

// WithTracing enables OpenTelemetry spans around guarded task execution.
func WithTracing() Option {
	return func(l *Lock) {
		l.traceEnabled = true
	}
}

// WithEvents publishes lock lifecycle events on bus. See the events package
// for the topics used.
func WithEvents(bus events.Bus) Option {
	return func(l *Lock) {
		l.bus = bus
	}
}

// New returns a Lock with the given name. The name identifies the logical
// resource; callers that want mutual exclusion must share the Lock value,
// not merely the name.
func New(name string, opts ...Option) (*Lock, error) {
	if name == "" {
		return nil, ErrInvalidName
	}
	l := &Lock{name: name, clk: clock.WallClock}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// NewAnonymous returns a Lock with a generated name of the form
// "Lock:<base36 time>:<base36 rand>". Uniqueness is best-effort.
func NewAnonymous(opts ...Option) *Lock {
	name := "Lock:" +
		strconv.FormatInt(time.Now().UnixMilli(), 36) + ":" +
		strconv.FormatUint(uint64(rand.Uint32()), 36)
	l, _ := New(name, opts...)
	return l
}

// Name returns the lock's immutable name.
func (l *Lock) Name() string { return l.name }

// IsLocked reports whether a task currently holds the lock.
func (l *Lock) IsLocked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.locked
}

// Waiters returns the number of tasks queued behind the current holder.
func (l *Lock) Waiters() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.waiters)
}

// Do runs task while holding l, waiting up to DefaultTimeout for the grant.
func (l *Lock) Do(ctx context.Context, task Task) error {
	return l.DoTimeout(ctx, task, DefaultTimeout)
}

// DoTimeout runs task while holding l. The caller waits at most timeout for
// the grant; a zero timeout waits indefinitely. On timeout the call fails
// with a *TimeoutError and the lock state is untouched. Task errors are
// propagated after the lock has been released.
func (l *Lock) DoTimeout(ctx context.Context, task Task, timeout time.Duration) error {
	if task == nil {
		return fmt.Errorf("%w: nil task", ErrInvalidArgument)
	}
	if timeout < 0 {
		return fmt.Errorf("%w: negative timeout %v", ErrInvalidRange, timeout)
	}

	var span trace.Span
	if l.traceEnabled {
		ctx, span = tracer.Start(ctx, "Lock.Do",
			trace.WithAttributes(attribute.String("tasklock.lock.name", l.name)))
		defer span.End()
	}

	if err := l.acquire(ctx, timeout); err != nil {
		if l.traceEnabled {
			span.RecordError(err)
		}
		return err
	}
	defer l.release()

	if err := task(ctx); err != nil {
		if l.metricsEnabled {
			metrics.TaskErrorCounter.WithLabelValues(l.name).Inc()
		}
		if l.traceEnabled {
			span.RecordError(err)
		}
		return err
	}
	return nil
}

// Guarded runs task while holding l and returns its result.
func Guarded[T any](ctx context.Context, l *Lock, task func(ctx context.Context) (T, error), timeout time.Duration) (T, error) {
	var out T
	err := l.DoTimeout(ctx, func(ctx context.Context) error {
		v, err := task(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	}, timeout)
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// acquire makes the caller the holder of l, queueing FIFO behind the current
// holder if there is one. A timeout of zero waits indefinitely. On success
// the caller owns exactly one release.
func (l *Lock) acquire(ctx context.Context, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	start := l.clk.Now()
	l.mu.Lock()
	if !l.locked {
		l.locked = true
		l.mu.Unlock()
		l.granted(start)
		return nil
	}
	w := &waiter{token: uuid.NewString(), ready: make(chan struct{})}
	l.waiters = append(l.waiters, w)
	l.mu.Unlock()

	if l.metricsEnabled {
		metrics.WaitingGauge.WithLabelValues(l.name).Inc()
		defer metrics.WaitingGauge.WithLabelValues(l.name).Dec()
	}

	var timeoutC <-chan time.Time
	if timeout > 0 {
		timer := l.clk.NewTimer(timeout)
		defer timer.Stop()
		timeoutC = timer.Chan()
	}

	select {
	case <-w.ready:
		// The releasing holder handed the lock over; locked never dropped
		// to false in between.
		l.granted(start)
		return nil
	case <-timeoutC:
		if l.abandon(w) {
			if l.metricsEnabled {
				metrics.TimeoutCounter.WithLabelValues(l.name).Inc()
			}
			l.publish(events.TimedOut(l.name))
			return &TimeoutError{Name: l.name, Timeout: timeout}
		}
		// A release dequeued this waiter before it could leave the queue:
		// the grant won the race and the caller is the holder.
		l.granted(start)
		return nil
	case <-ctx.Done():
		if l.abandon(w) {
			return ctx.Err()
		}
		// Granted while cancelling; hand the lock straight back.
		l.granted(start)
		l.release()
		return ctx.Err()
	}
}

// release gives the lock up. If waiters are queued the earliest one becomes
// the holder without the lock ever appearing free; otherwise the lock
// unlocks. Must be called exactly once per successful acquire.
func (l *Lock) release() {
	l.mu.Lock()
	if len(l.waiters) > 0 {
		next := l.waiters[0]
		l.waiters = l.waiters[1:]
		l.mu.Unlock()
		close(next.ready)
	} else {
		l.locked = false
		l.mu.Unlock()
		if l.metricsEnabled {
			metrics.HeldGauge.WithLabelValues(l.name).Set(0)
		}
	}
	l.publish(events.Released(l.name))
}

// abandon removes w from the waiter queue. It returns false when a release
// already dequeued w, in which case the caller holds the lock.
func (l *Lock) abandon(w *waiter) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, q := range l.waiters {
		if q.token == w.token {
			l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
			return true
		}
	}
	return false
}

func (l *Lock) granted(start time.Time) {
	if l.metricsEnabled {
		metrics.AcquireCounter.WithLabelValues(l.name).Inc()
		metrics.HeldGauge.WithLabelValues(l.name).Set(1)
		metrics.WaitSeconds.WithLabelValues(l.name).Observe(l.clk.Now().Sub(start).Seconds())
	}
	l.publish(events.Acquired(l.name))
}

func (l *Lock) publish(topic string) {
	if l.bus == nil {
		return
	}
	_ = l.bus.Publish(context.Background(), topic)
}
