package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/reliefops/disburse/internal/clock"
	"github.com/reliefops/disburse/internal/fsp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQueue(t *testing.T) (*Queue, *clock.FakeClock) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clk := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return New(client, clk), clk
}

func testJob(referenceID, correlationID string) Envelope {
	return Envelope{
		PaymentJob: fsp.PaymentJob{
			ReferenceID:   referenceID,
			ProgramID:     1,
			PaymentNr:     1,
			Amount:        25,
			CorrelationID: correlationID,
		},
		Provider: fsp.ProviderVoucherPaper,
	}
}

func TestEnqueue_DedupesOutstandingPayment(t *testing.T) {
	q, _ := newQueue(t)
	ctx := context.Background()

	queued, err := q.Enqueue(ctx, testJob("PA-1", "corr-1"))
	require.NoError(t, err)
	assert.True(t, queued)

	queued, err = q.Enqueue(ctx, testJob("PA-1", "corr-2"))
	require.NoError(t, err)
	assert.False(t, queued, "resubmitting an outstanding payment must not queue a second job")

	pending, err := q.Pending(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)

	env, raw, err := q.Dequeue(ctx, fsp.ProviderVoucherPaper, time.Second)
	require.NoError(t, err)
	require.NotNil(t, env)
	require.NoError(t, q.Settle(ctx, env, raw))

	// Settling lifts the guard so the payment can be submitted again.
	queued, err = q.Enqueue(ctx, testJob("PA-1", "corr-3"))
	require.NoError(t, err)
	assert.True(t, queued)
}

func TestReclaim_RequeuesJobsFromDeadWorkers(t *testing.T) {
	q, clk := newQueue(t)
	ctx := context.Background()

	queued, err := q.Enqueue(ctx, testJob("PA-1", "corr-1"))
	require.NoError(t, err)
	require.True(t, queued)

	env, _, err := q.Dequeue(ctx, fsp.ProviderVoucherPaper, time.Second)
	require.NoError(t, err)
	require.NotNil(t, env)

	reclaimed, err := q.Reclaim(ctx, 15*time.Minute)
	require.NoError(t, err)
	assert.Zero(t, reclaimed, "a freshly claimed job is still being worked on")

	// The worker dies; its claim ages past the visibility timeout.
	clk.Advance(16 * time.Minute)
	reclaimed, err = q.Reclaim(ctx, 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, reclaimed)

	env, raw, err := q.Dequeue(ctx, fsp.ProviderVoucherPaper, time.Second)
	require.NoError(t, err)
	require.NotNil(t, env, "the reclaimed job must be dequeuable by another worker")
	assert.Equal(t, "PA-1", env.ReferenceID)
	assert.Equal(t, "corr-1", env.CorrelationID)

	require.NoError(t, q.Settle(ctx, env, raw))
	pending, err := q.Pending(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, pending, "settling the reclaimed job drains the progress set")
}

func TestRequeue_BumpsAttemptAndKeepsProgress(t *testing.T) {
	q, _ := newQueue(t)
	ctx := context.Background()

	queued, err := q.Enqueue(ctx, testJob("PA-1", "corr-1"))
	require.NoError(t, err)
	require.True(t, queued)

	env, raw, err := q.Dequeue(ctx, fsp.ProviderVoucherPaper, time.Second)
	require.NoError(t, err)
	require.NotNil(t, env)
	require.NoError(t, q.Requeue(ctx, env, raw))

	pending, err := q.Pending(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending, "a retried job is still outstanding")

	env, _, err = q.Dequeue(ctx, fsp.ProviderVoucherPaper, time.Second)
	require.NoError(t, err)
	require.NotNil(t, env)
	assert.Equal(t, 1, env.Attempt)
}
