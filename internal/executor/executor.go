// Package executor runs toolkit commands under an admission-control policy.
//
// At most Limit commands run at once in a process. A command submitted while
// the limit is reached is rejected straight away with a recoverable
// CONCURRENCY_LIMIT error. Nothing is queued and Submit never blocks waiting
// for a slot.
package executor

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/seedkit/internal/failure"
)

// DefaultLimit is the in-flight limit used when none is configured.
const DefaultLimit = 1

// Executor gates command execution.
type Executor struct {
	limit  int
	logger *slog.Logger

	mu       sync.Mutex
	inFlight int
}

// New returns an Executor admitting at most limit concurrent commands.
// A limit below 1 is raised to 1.
func New(limit int, logger *slog.Logger) *Executor {
	if limit < 1 {
		limit = DefaultLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{limit: limit, logger: logger}
}

// Submit runs fn synchronously when a slot is free and returns its error.
// When every slot is taken it returns a CONCURRENCY_LIMIT error without
// calling fn.
func (e *Executor) Submit(ctx context.Context, name string, fn func(context.Context) error) error {
	if !e.acquire() {
		e.logger.Warn("command rejected by admission control", "command", name, "limit", e.limit)
		return failure.Newf(failure.ClassConcurrency, failure.CodeConcurrencyLimit,
			"command %q rejected: %d of %d command slots in use, retry later", name, e.limit, e.limit).
			WithDetail("limit", e.limit)
	}
	defer e.release()

	e.logger.Debug("command admitted", "command", name)
	return fn(ctx)
}

func (e *Executor) acquire() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight >= e.limit {
		return false
	}
	e.inFlight++
	return true
}

func (e *Executor) release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inFlight--
}

// InFlight returns the number of commands currently running.
func (e *Executor) InFlight() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inFlight
}

// Limit returns the configured in-flight limit.
func (e *Executor) Limit() int {
	return e.limit
}
