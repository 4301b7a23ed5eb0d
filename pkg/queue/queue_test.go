package queue

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seshuthota/backstop/internal/testutils"
	"github.com/seshuthota/backstop/pkg/retry"
)

var errDown = errors.New("dependency down")

func singleShot() *retry.Policy {
	return retry.NewPolicy(retry.WithMaxAttempts(1))
}

func TestQueue_DeliversOutcomePerHandle(t *testing.T) {
	q := New[int](retry.NewExecutor(), WithMaxConcurrent(3))

	handles := make([]*Handle[int], 0, 8)
	for i := 0; i < 8; i++ {
		i := i
		h := q.Add(context.Background(), func(ctx context.Context) (int, error) {
			return i * 10, nil
		}, singleShot())
		handles = append(handles, h)
	}

	for i, h := range handles {
		out, err := h.Wait(context.Background())
		require.NoError(t, err)
		require.True(t, out.Success)
		assert.Equal(t, i*10, out.Data, "handle %d must receive its own result", i)
	}

	assert.Equal(t, 0, q.Size())
}

func TestQueue_BoundsConcurrency(t *testing.T) {
	const maxConcurrent = 2
	const total = 7

	q := New[struct{}](retry.NewExecutor(), WithMaxConcurrent(maxConcurrent))

	var inFlight, peak int32
	handles := make([]*Handle[struct{}], 0, total)
	for i := 0; i < total; i++ {
		h := q.Add(context.Background(), func(ctx context.Context) (struct{}, error) {
			current := atomic.AddInt32(&inFlight, 1)
			for {
				old := atomic.LoadInt32(&peak)
				if current <= old || atomic.CompareAndSwapInt32(&peak, old, current) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			return struct{}{}, nil
		}, singleShot())
		handles = append(handles, h)
	}

	for _, h := range handles {
		_, err := h.Wait(context.Background())
		require.NoError(t, err)
	}

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(maxConcurrent))
}

func TestQueue_RetriesThroughExecutor(t *testing.T) {
	q := New[string](retry.NewExecutor(), WithMaxConcurrent(1))
	policy := retry.NewPolicy(
		retry.WithMaxAttempts(3),
		retry.WithBaseDelay(1*time.Millisecond),
	)

	var calls int32
	h := q.Add(context.Background(), func(ctx context.Context) (string, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return "", errDown
		}
		return "recovered", nil
	}, policy)

	out, err := h.Wait(context.Background())
	require.NoError(t, err)
	require.True(t, out.Success)
	assert.Equal(t, "recovered", out.Data)
	assert.Equal(t, 3, out.Attempts)
}

func TestQueue_Clear(t *testing.T) {
	q := New[int](retry.NewExecutor(), WithMaxConcurrent(1))

	gate := make(chan struct{})
	first := q.Add(context.Background(), func(ctx context.Context) (int, error) {
		<-gate
		return 1, nil
	}, singleShot())

	// wait until the first entry is dispatched so the rest stay pending
	require.Eventually(t, func() bool {
		return q.Size() == 0
	}, time.Second, time.Millisecond)

	pending := make([]*Handle[int], 0, 4)
	for i := 0; i < 4; i++ {
		h := q.Add(context.Background(), func(ctx context.Context) (int, error) {
			return 2, nil
		}, singleShot())
		pending = append(pending, h)
	}
	require.Equal(t, 4, q.Size())

	q.Clear()
	assert.Equal(t, 0, q.Size())

	for _, h := range pending {
		out, err := h.Wait(context.Background())
		require.NoError(t, err)
		assert.False(t, out.Success)
		assert.ErrorIs(t, out.LastError, ErrCleared)
	}

	// the already-dispatched entry completes normally
	close(gate)
	out, err := first.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, 1, out.Data)
}

func TestQueue_FailFastRejectsRemaining(t *testing.T) {
	q := New[int](retry.NewExecutor(), WithMaxConcurrent(1), WithFailFast(true))

	gate := make(chan struct{})
	first := q.Add(context.Background(), func(ctx context.Context) (int, error) {
		<-gate
		return 0, errDown
	}, singleShot())

	require.Eventually(t, func() bool {
		return q.Size() == 0
	}, time.Second, time.Millisecond)

	rest := make([]*Handle[int], 0, 3)
	for i := 0; i < 3; i++ {
		h := q.Add(context.Background(), func(ctx context.Context) (int, error) {
			return 1, nil
		}, singleShot())
		rest = append(rest, h)
	}
	require.Equal(t, 3, q.Size())

	close(gate)

	out, err := first.Wait(context.Background())
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.ErrorIs(t, out.LastError, errDown)

	for _, h := range rest {
		out, err := h.Wait(context.Background())
		require.NoError(t, err)
		assert.False(t, out.Success)
		assert.ErrorIs(t, out.LastError, ErrAborted)
	}

	assert.Equal(t, 0, q.Size())
}

func TestQueue_FailFastBatchMembersStillComplete(t *testing.T) {
	q := New[int](retry.NewExecutor(), WithMaxConcurrent(2), WithFailFast(true))

	gate := make(chan struct{})
	bad := q.Add(context.Background(), func(ctx context.Context) (int, error) {
		<-gate
		return 0, errDown
	}, singleShot())
	good := q.Add(context.Background(), func(ctx context.Context) (int, error) {
		<-gate
		return 99, nil
	}, singleShot())

	close(gate)

	badOut, err := bad.Wait(context.Background())
	require.NoError(t, err)
	assert.False(t, badOut.Success)

	goodOut, err := good.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, goodOut.Success)
	assert.Equal(t, 99, goodOut.Data)
}

func TestQueue_UsableAfterFailFastAbort(t *testing.T) {
	q := New[int](retry.NewExecutor(), WithMaxConcurrent(1), WithFailFast(true))

	h := q.Add(context.Background(), func(ctx context.Context) (int, error) {
		return 0, errDown
	}, singleShot())
	out, err := h.Wait(context.Background())
	require.NoError(t, err)
	require.False(t, out.Success)

	h = q.Add(context.Background(), func(ctx context.Context) (int, error) {
		return 5, nil
	}, singleShot())
	out, err = h.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, 5, out.Data)
}

func TestQueue_ReentrantAdd(t *testing.T) {
	q := New[string](retry.NewExecutor(), WithMaxConcurrent(1))

	var nested *Handle[string]
	outer := q.Add(context.Background(), func(ctx context.Context) (string, error) {
		nested = q.Add(ctx, func(ctx context.Context) (string, error) {
			return "inner", nil
		}, singleShot())
		return "outer", nil
	}, singleShot())

	out, err := outer.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "outer", out.Data)

	require.NotNil(t, nested)
	out, err = nested.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "inner", out.Data)
}

func TestQueue_EntryIDs(t *testing.T) {
	q := New[int](retry.NewExecutor())

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		h := q.Add(context.Background(), func(ctx context.Context) (int, error) {
			return 0, nil
		}, singleShot())
		require.NotEmpty(t, h.ID())
		assert.False(t, seen[h.ID()], "generated IDs must be unique")
		seen[h.ID()] = true
	}

	h := q.AddWithID(context.Background(), "entry-42", func(ctx context.Context) (int, error) {
		return 0, nil
	}, singleShot())
	assert.Equal(t, "entry-42", h.ID())
}

func TestHandle_WaitHonorsContext(t *testing.T) {
	tc := testutils.NewTestContext(t, 20*time.Millisecond)
	defer tc.Cleanup()

	q := New[int](retry.NewExecutor(), WithMaxConcurrent(1))

	gate := make(chan struct{})
	defer close(gate)

	h := q.Add(context.Background(), func(ctx context.Context) (int, error) {
		<-gate
		return 1, nil
	}, singleShot())

	_, err := h.Wait(tc.Context())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueue_ManyEntriesDrainCompletely(t *testing.T) {
	tc := testutils.NewTestContext(t, 5*time.Second)
	defer tc.Cleanup()

	q := New[string](retry.NewExecutor(), WithMaxConcurrent(4))

	handles := make([]*Handle[string], 0, 20)
	for i := 0; i < 20; i++ {
		i := i
		h := q.Add(context.Background(), func(ctx context.Context) (string, error) {
			return fmt.Sprintf("entry-%d", i), nil
		}, singleShot())
		handles = append(handles, h)
	}

	for i, h := range handles {
		out, err := h.Wait(tc.Context())
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("entry-%d", i), out.Data)
	}

	tc.AssertEventually(func() bool {
		return q.Size() == 0
	}, time.Second, time.Millisecond, "queue should drain completely")
}
