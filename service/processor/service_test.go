package processor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/warden/service/messaging/memory"
)

type recorder struct {
	mux   sync.Mutex
	calls map[string]int
	done  chan string
	fail  map[string]func(attempt int) error
}

func newRecorder() *recorder {
	return &recorder{calls: map[string]int{}, done: make(chan string, 16), fail: map[string]func(int) error{}}
}

func (r *recorder) handle(ctx context.Context, id string) error {
	r.mux.Lock()
	r.calls[id]++
	attempt := r.calls[id]
	fn := r.fail[id]
	r.mux.Unlock()
	var err error
	if fn != nil {
		err = fn(attempt)
	}
	r.done <- id
	return err
}

func (r *recorder) count(id string) int {
	r.mux.Lock()
	defer r.mux.Unlock()
	return r.calls[id]
}

func waitFor(t *testing.T, ch chan string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d of %d calls", i, n)
		}
	}
}

func TestService_Dispatch(t *testing.T) {
	testCases := []struct {
		name      string
		fail      func(attempt int) error
		wantCalls int
	}{
		{name: "success", wantCalls: 1},
		{name: "permanent failure not retried", fail: func(int) error { return errors.New("boom") }, wantCalls: 1},
		{
			name: "transient failure retried until success",
			fail: func(attempt int) error {
				if attempt < 3 {
					return Transient(errors.New("locked"))
				}
				return nil
			},
			wantCalls: 3,
		},
		{name: "transient failure exhausts retries", fail: func(int) error { return Transient(errors.New("locked")) }, wantCalls: 3},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := newRecorder()
			rec.fail["r1"] = tc.fail
			srv, err := New(
				WithMessageQueue(memory.NewQueue[Task](memory.DefaultConfig())),
				WithHandler(rec.handle),
				WithWorkers(2),
				WithRetry(RetryPolicy{Type: RetryFixed, MaxRetries: 2, Delay: 5 * time.Millisecond}),
			)
			require.NoError(t, err)
			require.NoError(t, srv.Start(context.Background()))
			require.NoError(t, srv.Submit(context.Background(), "r1"))

			waitFor(t, rec.done, tc.wantCalls)
			time.Sleep(30 * time.Millisecond)
			srv.Shutdown()
			assert.Equal(t, tc.wantCalls, rec.count("r1"))
		})
	}
}

func TestRetryPolicy_ShouldRetry(t *testing.T) {
	testCases := []struct {
		name      string
		policy    RetryPolicy
		attempts  int
		wantRetry bool
		wantDelay time.Duration
	}{
		{name: "none", policy: RetryPolicy{Type: RetryNone, MaxRetries: 3}, wantRetry: false},
		{name: "fixed", policy: RetryPolicy{Type: RetryFixed, MaxRetries: 3, Delay: time.Second}, attempts: 2, wantRetry: true, wantDelay: time.Second},
		{name: "exhausted", policy: RetryPolicy{Type: RetryFixed, MaxRetries: 3, Delay: time.Second}, attempts: 3, wantRetry: false},
		{name: "exponential", policy: RetryPolicy{Type: RetryExponential, MaxRetries: 5, Delay: time.Second, Multiplier: 2}, attempts: 2, wantRetry: true, wantDelay: 4 * time.Second},
		{name: "exponential capped", policy: RetryPolicy{Type: RetryExponential, MaxRetries: 5, Delay: time.Second, MaxDelay: 3 * time.Second}, attempts: 3, wantRetry: true, wantDelay: 3 * time.Second},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			retry, delay := tc.policy.shouldRetry(tc.attempts)
			assert.Equal(t, tc.wantRetry, retry)
			assert.Equal(t, tc.wantDelay, delay)
		})
	}
}

func TestService_Lifecycle(t *testing.T) {
	_, err := New(WithMessageQueue(memory.NewQueue[Task](memory.DefaultConfig())))
	assert.ErrorIs(t, err, ErrNoHandler)

	srv, err := New(WithMessageQueue(memory.NewQueue[Task](memory.DefaultConfig())), WithHandler(newRecorder().handle))
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	srv.Shutdown()
	srv.Shutdown()
	assert.ErrorIs(t, srv.Submit(context.Background(), "x"), ErrShutdown)
	assert.True(t, IsTransient(Transient(errors.New("x"))))
	assert.False(t, IsTransient(errors.New("x")))
	assert.Nil(t, Transient(nil))
}
