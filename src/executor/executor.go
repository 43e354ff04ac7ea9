// Package executor runs batches of independent fallible operations
// concurrently, retrying each one on its own backoff schedule and returning a
// partition of successes and exhausted failures. Partial failure is normal:
// one participant timing out never aborts the rest of a round.
package executor

import (
	"context"
	"fmt"
	"time"
)

// Op performs one attempt of an operation. attempt starts at 1 and increments
// on every retry, letting callers adjust their behavior on re-asks.
type Op[T any] func(ctx context.Context, attempt int) (T, error)

// Task pairs an operation with a label used in failure reports.
type Task[T any] struct {
	Label string
	Op    Op[T]
}

// Policy is the per-operation retry budget.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultPolicy mirrors the HTTP layer's retry shape.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, InitialDelay: 2 * time.Second, MaxDelay: 30 * time.Second}
}

func (p Policy) normalize() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 2 * time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	return p
}

// Success is one completed operation.
type Success[T any] struct {
	Label string
	Value T
}

// Failure is one operation that exhausted its retry budget.
type Failure struct {
	Label    string
	Attempts int
	LastErr  error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: exhausted after %d attempts: %v", f.Label, f.Attempts, f.LastErr)
}

// Outcome partitions a batch by result. Successes preserve task order.
type Outcome[T any] struct {
	Successes []Success[T]
	Failures  []Failure
}

// FailureMessages renders the failure list for result reporting.
func (o Outcome[T]) FailureMessages() []string {
	msgs := make([]string, 0, len(o.Failures))
	for _, f := range o.Failures {
		msgs = append(msgs, f.Error())
	}
	return msgs
}

// Run executes all tasks concurrently. Each task retries independently under
// the policy; no task blocks another and individual failure never aborts the
// batch. Only a nil outcome is impossible: the caller always gets the full
// partition back.
func Run[T any](ctx context.Context, tasks []Task[T], policy Policy) Outcome[T] {
	policy = policy.normalize()

	type slot struct {
		success *Success[T]
		failure *Failure
	}
	slots := make([]slot, len(tasks))

	done := make(chan int, len(tasks))
	for i, task := range tasks {
		go func(i int, task Task[T]) {
			defer func() { done <- i }()

			var lastErr error
			attempts := 0
			delay := policy.InitialDelay
			for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
				attempts = attempt
				value, err := task.Op(ctx, attempt)
				if err == nil {
					slots[i].success = &Success[T]{Label: task.Label, Value: value}
					return
				}
				lastErr = err
				if attempt == policy.MaxAttempts {
					break
				}
				if !sleepWithContext(ctx, delay) {
					break
				}
				if delay < policy.MaxDelay {
					delay *= 2
				}
			}
			slots[i].failure = &Failure{Label: task.Label, Attempts: attempts, LastErr: lastErr}
		}(i, task)
	}

	for range tasks {
		<-done
	}

	var out Outcome[T]
	for _, s := range slots {
		switch {
		case s.success != nil:
			out.Successes = append(out.Successes, *s.success)
		case s.failure != nil:
			out.Failures = append(out.Failures, *s.failure)
		}
	}
	return out
}

func sleepWithContext(ctx context.Context, delay time.Duration) bool {
	if delay <= 0 {
		return true
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
