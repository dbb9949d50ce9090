// Package worker implements the per-event indexer state machine: register,
// connect, backfill historical logs, then tail the live subscription,
// storing every log through the same idempotent path.
package worker

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/chronicle-dev/chronicle/pkg/chain"
	"github.com/chronicle-dev/chronicle/pkg/event"
	"github.com/chronicle-dev/chronicle/pkg/storage"
)

// State names the worker's current position in its state machine, exposed
// for logging and tests.
type State string

const (
	StateInit        State = "INIT"
	StateReady       State = "READY"
	StateConnected   State = "CONNECTED"
	StateBackfilling State = "BACKFILLING"
	StateTailing     State = "TAILING"
	StateStopping    State = "STOPPING"
	StateDone        State = "DONE"
	StateFailed      State = "FAILED"
)

// Store is the subset of *storage.Engine a Worker needs, narrowed so tests
// can substitute a fake without a live Postgres.
type Store interface {
	Register(ctx context.Context, eventName, contractAddress, eventSignature string, startBlock uint64) error
	Store(ctx context.Context, eventName string, rec event.Record) error
}

var _ Store = (*storage.Engine)(nil)

// Worker drives one configured (event_name, contract, topic0) indexer
// through INIT -> READY -> CONNECTED -> BACKFILLING -> TAILING, with
// STOPPING/DONE on cancellation and FAILED on any unrecoverable error. It
// never calls Storage.Store before Storage.Register has returned
// successfully.
type Worker struct {
	cfg     event.Config
	engine  Store
	log     zerolog.Logger
	state   State
	dialEVM func(ctx context.Context, rpcURL string, addr common.Address, topic0 common.Hash) (chain.Provider, error)
}

// New builds a Worker for cfg, storing events through engine.
func New(cfg event.Config, engine Store) *Worker {
	return &Worker{
		cfg:    cfg,
		engine: engine,
		log:    log.With().Str("event_name", cfg.EventName).Logger(),
		state:  StateInit,
		dialEVM: func(ctx context.Context, rpcURL string, addr common.Address, topic0 common.Hash) (chain.Provider, error) {
			return chain.Dial(ctx, rpcURL, addr, topic0)
		},
	}
}

// Name implements supervisor.Task.
func (w *Worker) Name() string {
	return "indexer:" + w.cfg.EventName
}

// Run implements supervisor.Task. It returns nil on either a clean
// cancellation-driven shutdown or (for the reserved PARACHAIN variant) an
// immediate no-op; it returns an error for every fatal condition (failed
// register, failed connect, a backfill store failure, or tail stream
// termination/store failure).
func (w *Worker) Run(ctx context.Context) error {
	if w.cfg.StateMachine == event.Parachain {
		w.log.Info().Msg("parachain state machine not yet implemented")
		return nil
	}

	w.setState(StateInit)
	if err := w.register(ctx); err != nil {
		w.setState(StateFailed)
		return err
	}
	w.setState(StateReady)

	provider, err := w.connect(ctx)
	if err != nil {
		w.setState(StateFailed)
		return err
	}
	defer provider.Close()
	w.setState(StateConnected)

	w.setState(StateBackfilling)
	if err := w.backfill(ctx, provider); err != nil {
		if ctx.Err() != nil {
			w.setState(StateStopping)
			w.setState(StateDone)
			return nil
		}
		w.setState(StateFailed)
		return err
	}

	w.setState(StateTailing)
	if err := w.tail(ctx, provider); err != nil {
		if ctx.Err() != nil {
			w.setState(StateStopping)
			w.setState(StateDone)
			return nil
		}
		w.setState(StateFailed)
		return err
	}

	w.setState(StateDone)
	return nil
}

func (w *Worker) setState(s State) {
	w.state = s
	w.log.Debug().Str("state", string(s)).Msg("state transition")
}

func (w *Worker) register(ctx context.Context) error {
	return w.engine.Register(ctx, w.cfg.EventName, w.cfg.Address, w.cfg.EventSignature, w.cfg.BlockNumber)
}

func (w *Worker) connect(ctx context.Context) (chain.Provider, error) {
	address := common.HexToAddress(w.cfg.Address)
	topic0 := common.HexToHash(w.cfg.EventSignature)
	return w.dialEVM(ctx, w.cfg.RPCURL, address, topic0)
}

func (w *Worker) backfill(ctx context.Context, provider chain.Provider) error {
	latest, err := provider.LatestBlock(ctx)
	if err != nil {
		return fmt.Errorf("fetching latest block: %s", err)
	}
	if latest < w.cfg.BlockNumber {
		return nil
	}

	logs, err := provider.QueryLogs(ctx, w.cfg.BlockNumber, latest)
	if err != nil {
		return fmt.Errorf("querying historical logs: %s", err)
	}

	for _, l := range logs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := w.engine.Store(ctx, w.cfg.EventName, chain.ToRecord(l)); err != nil {
			return fmt.Errorf("storing backfilled log: %s", err)
		}
	}
	w.log.Info().Int("count", len(logs)).Msg("backfill complete")
	return nil
}

// tail consumes the live subscription indefinitely, storing each log
// through the same idempotent path as backfill. A select races the next
// stream item against cancellation: at most one more log is stored after
// cancellation is raised, and cancellation always returns promptly.
func (w *Worker) tail(ctx context.Context, provider chain.Provider) error {
	logCh := make(chan types.Log)
	sub, err := provider.SubscribeLogs(ctx, logCh)
	if err != nil {
		return fmt.Errorf("subscribing to logs: %s", err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return fmt.Errorf("subscription stream terminated: %s", err)
		case l := <-logCh:
			if err := w.engine.Store(ctx, w.cfg.EventName, chain.ToRecord(l)); err != nil {
				return fmt.Errorf("storing tailed log: %s", err)
			}
		}
	}
}
