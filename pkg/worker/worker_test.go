package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	goethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/chronicle-dev/chronicle/pkg/chain"
	"github.com/chronicle-dev/chronicle/pkg/event"
)

type fakeStore struct {
	registered bool
	registerErr error
	storeErr    error
	stored      []event.Record
}

func (f *fakeStore) Register(_ context.Context, _, _, _ string, _ uint64) error {
	if f.registerErr != nil {
		return f.registerErr
	}
	f.registered = true
	return nil
}

func (f *fakeStore) Store(_ context.Context, _ string, rec event.Record) error {
	if !f.registered {
		panic("Store called before Register succeeded")
	}
	if f.storeErr != nil {
		return f.storeErr
	}
	f.stored = append(f.stored, rec)
	return nil
}

type fakeSubscription struct {
	errCh chan error
}

func (s *fakeSubscription) Unsubscribe() {}
func (s *fakeSubscription) Err() <-chan error { return s.errCh }

type fakeProvider struct {
	backfillLogs []types.Log
	latest       uint64
	tailLogs     []types.Log
	subErr       error
}

func (p *fakeProvider) QueryLogs(_ context.Context, _, _ uint64) ([]types.Log, error) {
	return p.backfillLogs, nil
}

func (p *fakeProvider) LatestBlock(_ context.Context) (uint64, error) {
	return p.latest, nil
}

func (p *fakeProvider) SubscribeLogs(_ context.Context, ch chan<- types.Log) (goethereum.Subscription, error) {
	if p.subErr != nil {
		return nil, p.subErr
	}
	go func() {
		for _, l := range p.tailLogs {
			ch <- l
		}
	}()
	return &fakeSubscription{errCh: make(chan error)}, nil
}

func (p *fakeProvider) Close() {}

func newTestWorker(t *testing.T, store *fakeStore, provider chain.Provider) *Worker {
	t.Helper()
	w := New(event.Config{
		EventName:      "transfer",
		Address:        "0x0000000000000000000000000000000000000001",
		EventSignature: "0x0000000000000000000000000000000000000000000000000000000000000001",
		BlockNumber:    0,
		StateMachine:   event.EVM,
	}, store)
	w.dialEVM = func(context.Context, string, common.Address, common.Hash) (chain.Provider, error) {
		return provider, nil
	}
	return w
}

func TestWorkerRegistersBeforeStoring(t *testing.T) {
	store := &fakeStore{}
	provider := &fakeProvider{
		backfillLogs: []types.Log{{BlockNumber: 1}, {BlockNumber: 2}},
		latest:       2,
	}
	w := newTestWorker(t, store, provider)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := w.Run(ctx)
	require.NoError(t, err)
	require.True(t, store.registered)
	require.Len(t, store.stored, 2)
}

func TestWorkerFailsFatallyOnRegisterError(t *testing.T) {
	store := &fakeStore{registerErr: errors.New("db down")}
	w := newTestWorker(t, store, &fakeProvider{})

	err := w.Run(context.Background())
	require.Error(t, err)
}

func TestWorkerParachainIsNoOp(t *testing.T) {
	store := &fakeStore{}
	w := New(event.Config{EventName: "x", StateMachine: event.Parachain}, store)

	err := w.Run(context.Background())
	require.NoError(t, err)
	require.False(t, store.registered)
}

func TestWorkerCancellationDuringTailReturnsCleanly(t *testing.T) {
	store := &fakeStore{}
	provider := &fakeProvider{latest: 0}
	w := newTestWorker(t, store, provider)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not exit promptly after cancellation")
	}
}
