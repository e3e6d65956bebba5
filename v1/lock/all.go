package lock

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// All runs task while holding every lock in locks. Locks are acquired in
// lexicographic name order regardless of the order given, so concurrent
// composite acquisitions over overlapping sets never deadlock. The timeout
// budget covers the whole chain: each acquisition waits at most what is
// left of it, floored at one millisecond; a zero timeout waits indefinitely
// at every step. All locks are held together only for the duration of task;
// release happens in reverse acquisition order.
func All(ctx context.Context, locks []*Lock, task Task, timeout time.Duration) error {
	if task == nil {
		return fmt.Errorf("%w: nil task", ErrInvalidArgument)
	}
	if timeout < 0 {
		return fmt.Errorf("%w: negative timeout %v", ErrInvalidRange, timeout)
	}
	if len(locks) == 0 {
		return fmt.Errorf("%w: no locks given", ErrInvalidRange)
	}
	seen := make(map[string]struct{}, len(locks))
	for _, l := range locks {
		if l == nil {
			return fmt.Errorf("%w: nil lock", ErrInvalidArgument)
		}
		if _, dup := seen[l.name]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateName, l.name)
		}
		seen[l.name] = struct{}{}
	}
	if len(locks) == 1 {
		return locks[0].DoTimeout(ctx, task, timeout)
	}

	sorted := make([]*Lock, len(locks))
	copy(sorted, locks)
	slices.SortFunc(sorted, func(a, b *Lock) int {
		return strings.Compare(a.name, b.name)
	})

	var span trace.Span
	if traced(sorted) {
		ctx, span = tracer.Start(ctx, "Lock.All",
			trace.WithAttributes(attribute.Int("tasklock.locks", len(sorted))))
		defer span.End()
	}

	held := make([]*Lock, 0, len(sorted))
	releaseHeld := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].release()
		}
	}

	// Budget accounting follows the first sorted lock's clock, so an
	// injected clock governs the elapsed measurement as well as the timers.
	clk := sorted[0].clk
	start := clk.Now()
	budget := timeout
	for _, l := range sorted {
		if err := l.acquire(ctx, budget); err != nil {
			releaseHeld()
			if span != nil {
				span.RecordError(err)
			}
			return err
		}
		held = append(held, l)
		if timeout > 0 {
			// Never let an exhausted budget turn into an indefinite wait.
			budget = timeout - clk.Now().Sub(start)
			if budget < time.Millisecond {
				budget = time.Millisecond
			}
		}
	}

	defer releaseHeld()
	return task(ctx)
}

func traced(locks []*Lock) bool {
	for _, l := range locks {
		if l.traceEnabled {
			return true
		}
	}
	return false
}
