package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastRetry = RetryPolicy{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}

func startBroker(t *testing.T, b *Broker) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	b.Start(ctx)
	t.Cleanup(func() {
		b.Stop()
		cancel()
	})
}

func waitTerminal(t *testing.T, b *Broker, id string) Status {
	t.Helper()
	var st Status
	require.Eventually(t, func() bool {
		var err error
		st, err = b.Status(context.Background(), id)
		return err == nil && st.Terminal()
	}, 2*time.Second, 5*time.Millisecond)
	return st
}

type echoArgs struct {
	Text string `json:"text"`
}

func TestSubmit_Success(t *testing.T) {
	b := New(nil, WithLane("main", 2))
	require.NoError(t, b.Register("echo", "main", func(_ context.Context, task *Task) (Outcome, error) {
		var a echoArgs
		if err := task.Decode(&a); err != nil {
			return Outcome{}, err
		}
		return Outcome{Result: a.Text + "!"}, nil
	}, RetryPolicy{}))
	startBroker(t, b)

	id, err := b.Submit(context.Background(), "echo", echoArgs{Text: "hi"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	st := waitTerminal(t, b, id)
	assert.Equal(t, StateSuccess, st.State)
	assert.Equal(t, 1, st.Attempts)
	var got string
	require.NoError(t, json.Unmarshal(st.Result, &got))
	assert.Equal(t, "hi!", got)
}

func TestChainAcrossLanes(t *testing.T) {
	b := New(NewMemoryBackend(), WithLane("fast", 1), WithLane("slow", 1))
	require.NoError(t, b.Register("first", "fast", func(_ context.Context, task *Task) (Outcome, error) {
		task.Progress("fetching")
		return Outcome{Next: &Step{Kind: "second", Args: echoArgs{Text: "from-first"}}}, nil
	}, RetryPolicy{}))
	require.NoError(t, b.Register("second", "slow", func(_ context.Context, task *Task) (Outcome, error) {
		var a echoArgs
		if err := task.Decode(&a); err != nil {
			return Outcome{}, err
		}
		task.Progress("embedding")
		return Outcome{Result: a.Text}, nil
	}, RetryPolicy{}))
	startBroker(t, b)

	id, err := b.Submit(context.Background(), "first", echoArgs{})
	require.NoError(t, err)

	st := waitTerminal(t, b, id)
	assert.Equal(t, StateSuccess, st.State)
	assert.Equal(t, "second", st.Kind)
	assert.Equal(t, "embedding", st.Stage)
	assert.JSONEq(t, `"from-first"`, string(st.Result))
}

func TestRetryableErrorsAreRetried(t *testing.T) {
	var calls atomic.Int32
	b := New(nil, WithLane("main", 1))
	require.NoError(t, b.Register("flaky", "main", func(context.Context, *Task) (Outcome, error) {
		if calls.Add(1) < 3 {
			return Outcome{}, Retryable(errors.New("provider timeout"))
		}
		return Outcome{Result: "ok"}, nil
	}, fastRetry))
	startBroker(t, b)

	id, err := b.Submit(context.Background(), "flaky", nil)
	require.NoError(t, err)

	st := waitTerminal(t, b, id)
	assert.Equal(t, StateSuccess, st.State)
	assert.Equal(t, 3, st.Attempts)
	assert.Empty(t, st.Error)
}

func TestRetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	b := New(nil, WithLane("main", 1))
	require.NoError(t, b.Register("doomed", "main", func(context.Context, *Task) (Outcome, error) {
		calls.Add(1)
		return Outcome{}, Retryable(errors.New("all providers failed"))
	}, fastRetry))
	startBroker(t, b)

	id, err := b.Submit(context.Background(), "doomed", nil)
	require.NoError(t, err)

	st := waitTerminal(t, b, id)
	assert.Equal(t, StateFailure, st.State)
	assert.Equal(t, "all providers failed", st.Error)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 3, st.Attempts)
}

func TestPermanentErrorsFailImmediately(t *testing.T) {
	var calls atomic.Int32
	b := New(nil, WithLane("main", 1))
	require.NoError(t, b.Register("bad", "main", func(context.Context, *Task) (Outcome, error) {
		calls.Add(1)
		return Outcome{}, errors.New("bad input")
	}, fastRetry))
	startBroker(t, b)

	id, err := b.Submit(context.Background(), "bad", nil)
	require.NoError(t, err)

	st := waitTerminal(t, b, id)
	assert.Equal(t, StateFailure, st.State)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHandlerPanicFailsTask(t *testing.T) {
	b := New(nil, WithLane("main", 1))
	require.NoError(t, b.Register("boom", "main", func(context.Context, *Task) (Outcome, error) {
		panic("kaboom")
	}, fastRetry))
	startBroker(t, b)

	id, err := b.Submit(context.Background(), "boom", nil)
	require.NoError(t, err)

	st := waitTerminal(t, b, id)
	assert.Equal(t, StateFailure, st.State)
	assert.Contains(t, st.Error, "kaboom")
}

func TestSubmit_Errors(t *testing.T) {
	b := New(nil, WithLane("main", 1))
	_, err := b.Submit(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, ErrUnknownKind)

	assert.Error(t, b.Register("x", "nope", nil, RetryPolicy{}))

	_, err = b.Status(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSubmitAfterStop(t *testing.T) {
	b := New(nil, WithLane("main", 1))
	require.NoError(t, b.Register("echo", "main", func(context.Context, *Task) (Outcome, error) {
		return Outcome{}, nil
	}, RetryPolicy{}))
	b.Start(context.Background())
	b.Stop()

	_, err := b.Submit(context.Background(), "echo", nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPendingBeforeStart(t *testing.T) {
	b := New(nil, WithLane("main", 1))
	require.NoError(t, b.Register("echo", "main", func(context.Context, *Task) (Outcome, error) {
		return Outcome{}, nil
	}, RetryPolicy{}))

	id, err := b.Submit(context.Background(), "echo", nil)
	require.NoError(t, err)
	st, err := b.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatePending, st.State)
	assert.Equal(t, "echo", st.Kind)
}

func TestRetryableError(t *testing.T) {
	cause := errors.New("timeout")
	err := Retryable(cause)
	assert.ErrorIs(t, err, ErrRetryable)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "timeout", err.Error())
	assert.NoError(t, Retryable(nil))
	assert.False(t, errors.Is(cause, ErrRetryable))
}

func TestHandOffToOwnFullLane(t *testing.T) {
	b := New(nil, WithBuffer(1), WithLane("main", 1))
	entered := make(chan struct{}, 4)
	gate := make(chan struct{})
	require.NoError(t, b.Register("first", "main", func(_ context.Context, _ *Task) (Outcome, error) {
		entered <- struct{}{}
		<-gate
		return Outcome{Next: &Step{Kind: "second", Args: echoArgs{Text: "done"}}}, nil
	}, RetryPolicy{}))
	require.NoError(t, b.Register("second", "main", func(_ context.Context, task *Task) (Outcome, error) {
		var a echoArgs
		if err := task.Decode(&a); err != nil {
			return Outcome{}, err
		}
		return Outcome{Result: a.Text}, nil
	}, RetryPolicy{}))

	ctx := context.Background()
	first, err := b.Submit(ctx, "first", echoArgs{})
	require.NoError(t, err)
	startBroker(t, b)
	<-entered

	// The only worker is busy; this fills the lane so its hand-off finds no room.
	second, err := b.Submit(ctx, "first", echoArgs{})
	require.NoError(t, err)
	close(gate)

	for _, id := range []string{first, second} {
		st := waitTerminal(t, b, id)
		assert.Equal(t, StateSuccess, st.State)
		assert.JSONEq(t, `"done"`, string(st.Result))
	}
}
