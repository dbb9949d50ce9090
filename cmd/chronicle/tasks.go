package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chronicle-dev/chronicle/internal/config"
	"github.com/chronicle-dev/chronicle/internal/readapi"
	"github.com/chronicle-dev/chronicle/pkg/storage"
	"github.com/chronicle-dev/chronicle/pkg/supervisor"
	"github.com/chronicle-dev/chronicle/pkg/worker"
)

// buildTasks opens one storage engine per configured db_url (reused across
// indexers that share one), builds one worker per [[indexer]] entry, and
// appends the Read API server task. An indexer that fails to open its
// storage engine is logged and skipped; the process continues with the
// surviving workers.
func buildTasks(ctx context.Context, cfg *config.Config) ([]supervisor.Task, error) {
	engines := make(map[string]*storage.Engine)
	openEngine := func(dbURL string) (*storage.Engine, error) {
		if e, ok := engines[dbURL]; ok {
			return e, nil
		}
		e, err := storage.Open(ctx, dbURL)
		if err != nil {
			return nil, err
		}
		engines[dbURL] = e
		return e, nil
	}

	var tasks []supervisor.Task

	for _, ind := range cfg.Indexer {
		engine, err := openEngine(ind.DBURL)
		if err != nil {
			log.Error().Err(err).Str("event_name", ind.EventName).Msg("failed to open storage engine, skipping indexer")
			continue
		}
		tasks = append(tasks, worker.New(ind, engine))
	}

	if len(tasks) == 0 {
		log.Warn().Msg("no indexer tasks were successfully created")
	}

	serverEngine, err := openEngine(cfg.Server.DBURL)
	if err != nil {
		return nil, fmt.Errorf("opening read API storage engine: %s", err)
	}
	tasks = append(tasks, &serverTask{addr: cfg.Server.ServerURL, engine: serverEngine})

	return tasks, nil
}

// runSupervisor hands tasks to the supervisor package and blocks until every
// task returns. One task's failure never cancels its peers — only ctx being
// canceled does.
func runSupervisor(ctx context.Context, tasks []supervisor.Task) {
	supervisor.Run(ctx, log.Logger, tasks)
}

// serverTask runs the Read API's HTTP server as a supervised task,
// shutting down gracefully when ctx is canceled.
type serverTask struct {
	addr   string
	engine *storage.Engine
}

func (s *serverTask) Name() string { return "readapi" }

func (s *serverTask) Run(ctx context.Context) error {
	router, err := readapi.ConfiguredRouter(s.engine, readapi.RateLimitConfig{
		MaxRPI:   100,
		Interval: time.Minute,
	})
	if err != nil {
		return fmt.Errorf("configuring read API router: %s", err)
	}

	srv := &http.Server{
		Addr:    s.addr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("read API server: %s", err)
	}
}
