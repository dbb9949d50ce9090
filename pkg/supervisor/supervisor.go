// Package supervisor runs a fixed set of long-lived tasks under a single
// shared cancellation signal, isolating each task's failure from its peers.
// Unlike golang.org/x/sync/errgroup, one task returning an error does not
// cancel the others — only an external shutdown signal does.
package supervisor

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Task is a long-lived unit of work. Run must return promptly once ctx is
// canceled; a non-nil error is logged by the supervisor but never
// propagated to other tasks.
type Task interface {
	Name() string
	Run(ctx context.Context) error
}

// Run starts one goroutine per task sharing ctx, and blocks until every
// task has returned. Canceling ctx (e.g. on SIGINT/SIGTERM) is the only way
// to stop all tasks together; a task returning on its own does not affect
// the others.
func Run(ctx context.Context, log zerolog.Logger, tasks []Task) {
	var wg sync.WaitGroup
	wg.Add(len(tasks))

	for _, t := range tasks {
		t := t
		go func() {
			taskLog := log.With().Str("task", t.Name()).Logger()
			defer func() {
				if r := recover(); r != nil {
					taskLog.Error().Interface("panic", r).Msg("task panicked")
				}
				wg.Done()
			}()
			taskLog.Info().Msg("task starting")
			if err := t.Run(ctx); err != nil {
				taskLog.Error().Err(err).Msg("task exited with error")
				return
			}
			taskLog.Info().Msg("task exited")
		}()
	}

	wg.Wait()
}
