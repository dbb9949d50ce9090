package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeTask struct {
	name    string
	err     error
	ran     int32
	blocked bool
	panics  bool
}

func (f *fakeTask) Name() string { return f.name }

func (f *fakeTask) Run(ctx context.Context) error {
	atomic.StoreInt32(&f.ran, 1)
	if f.panics {
		panic("boom")
	}
	if f.blocked {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

func TestRunIsolatesFailures(t *testing.T) {
	failing := &fakeTask{name: "failing", err: errors.New("boom")}
	survivor := &fakeTask{name: "survivor", blocked: true}

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		Run(ctx, zerolog.Nop(), []Task{failing, survivor})
		close(done)
	}()

	// Give the failing task a moment to return; the survivor must still be
	// running, unaffected, until we cancel explicitly.
	time.Sleep(50 * time.Millisecond)
	require.EqualValues(t, 1, atomic.LoadInt32(&failing.ran))
	require.EqualValues(t, 1, atomic.LoadInt32(&survivor.ran))

	select {
	case <-done:
		t.Fatal("Run returned before external cancellation, survivor task was not isolated")
	default:
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRunIsolatesPanics(t *testing.T) {
	panicking := &fakeTask{name: "panicking", panics: true}
	survivor := &fakeTask{name: "survivor", blocked: true}

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		Run(ctx, zerolog.Nop(), []Task{panicking, survivor})
		close(done)
	}()

	// Give the panicking task a moment to return; the survivor must still be
	// running, unaffected, until we cancel explicitly. If the panic were not
	// recovered, this goroutine (and the test binary) would crash here.
	time.Sleep(50 * time.Millisecond)
	require.EqualValues(t, 1, atomic.LoadInt32(&panicking.ran))
	require.EqualValues(t, 1, atomic.LoadInt32(&survivor.ran))

	select {
	case <-done:
		t.Fatal("Run returned before external cancellation, survivor task was not isolated")
	default:
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
