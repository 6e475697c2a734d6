// Package queue is the durable payment job queue. Jobs live in one redis
// list per provider; a worker moves a job to a processing list and stamps a
// claim while it runs, so a crashed worker's job is reclaimed by the sweep
// instead of lost. Progress per program is a set of outstanding job IDs.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/reliefops/disburse/internal/clock"
	"github.com/reliefops/disburse/internal/fsp"
	"github.com/reliefops/disburse/internal/observability/metrics"
)

// dedupeTTL caps how long an unsettled job can block re-submission of the
// same payment. Settling lifts the guard immediately.
const dedupeTTL = 24 * time.Hour

const processingPrefix = "disburse:processing:"

// Envelope is the serialized form of one queued job.
type Envelope struct {
	fsp.PaymentJob
	Provider string `json:"provider"`
}

type Queue struct {
	client *redis.Client
	clock  clock.Clock
}

func New(client *redis.Client, clk clock.Clock) *Queue {
	return &Queue{client: client, clock: clk}
}

func queueKey(provider string) string      { return "disburse:queue:" + provider }
func processingKey(provider string) string { return processingPrefix + provider }
func claimsKey(provider string) string     { return "disburse:claims:" + provider }
func progressKey(programID int64) string   { return fmt.Sprintf("disburse:progress:%d", programID) }

func dedupeKey(env *Envelope) string {
	return fmt.Sprintf("disburse:job:%d:%d:%s", env.ProgramID, env.PaymentNr, env.ReferenceID)
}

// Enqueue pushes a job and records it in the program's progress set. A
// payment that is already queued or in flight is not enqueued again; the
// returned bool reports whether the job was actually queued.
func (q *Queue) Enqueue(ctx context.Context, env Envelope) (bool, error) {
	payload, err := json.Marshal(env)
	if err != nil {
		return false, fmt.Errorf("encode job: %w", err)
	}

	fresh, err := q.client.SetNX(ctx, dedupeKey(&env), env.CorrelationID, dedupeTTL).Result()
	if err != nil {
		return false, fmt.Errorf("enqueue job: %w", err)
	}
	if !fresh {
		return false, nil
	}

	pipe := q.client.TxPipeline()
	pipe.LPush(ctx, queueKey(env.Provider), payload)
	pipe.SAdd(ctx, progressKey(env.ProgramID), env.CorrelationID)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("enqueue job: %w", err)
	}

	depth, err := q.client.LLen(ctx, queueKey(env.Provider)).Result()
	if err == nil {
		metrics.Payment().QueueDepth.WithLabelValues(env.Provider).Set(float64(depth))
	}
	return true, nil
}

// Pending returns the number of jobs a program is still waiting on.
func (q *Queue) Pending(ctx context.Context, programID int64) (int64, error) {
	return q.client.SCard(ctx, progressKey(programID)).Result()
}

// Dequeue blocks up to timeout for the next job of a provider. The raw
// payload is returned alongside the decoded envelope because settling the
// job removes that exact payload from the processing list. The job's claim
// is stamped with the dequeue time; a claim older than the reclaim
// visibility timeout marks the worker as dead.
func (q *Queue) Dequeue(ctx context.Context, provider string, timeout time.Duration) (*Envelope, string, error) {
	raw, err := q.client.BRPopLPush(ctx, queueKey(provider), processingKey(provider), timeout).Result()
	if err == redis.Nil {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}

	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		// Undecodable payloads are dropped from processing so they cannot
		// wedge the worker loop.
		q.client.LRem(ctx, processingKey(provider), 1, raw)
		return nil, "", fmt.Errorf("decode job payload: %w", err)
	}
	q.client.HSet(ctx, claimsKey(provider), env.CorrelationID, q.clock.Now().Unix())
	return &env, raw, nil
}

// Settle removes a finished job from the processing list, releases its claim
// and dedupe guard, and drops it from the program's progress set.
func (q *Queue) Settle(ctx context.Context, env *Envelope, raw string) error {
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, processingKey(env.Provider), 1, raw)
	pipe.HDel(ctx, claimsKey(env.Provider), env.CorrelationID)
	pipe.Del(ctx, dedupeKey(env))
	pipe.SRem(ctx, progressKey(env.ProgramID), env.CorrelationID)
	_, err := pipe.Exec(ctx)
	return err
}

// Requeue puts a job back on its queue with the attempt counter bumped. The
// progress set and dedupe guard keep the job ID: the program is still
// waiting on it.
func (q *Queue) Requeue(ctx context.Context, env *Envelope, raw string) error {
	bumped := *env
	bumped.Attempt++
	payload, err := json.Marshal(bumped)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, processingKey(env.Provider), 1, raw)
	pipe.HDel(ctx, claimsKey(env.Provider), env.CorrelationID)
	pipe.LPush(ctx, queueKey(env.Provider), payload)
	_, err = pipe.Exec(ctx)
	return err
}

// Reclaim returns jobs abandoned by dead workers to their queues. A job
// counts as abandoned when it sits in a processing list with a claim older
// than the visibility timeout, or with no claim at all.
func (q *Queue) Reclaim(ctx context.Context, visibility time.Duration) (int, error) {
	cutoff := q.clock.Now().Add(-visibility).Unix()

	reclaimed := 0
	iter := q.client.Scan(ctx, 0, processingPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		provider := strings.TrimPrefix(iter.Val(), processingPrefix)
		entries, err := q.client.LRange(ctx, processingKey(provider), 0, -1).Result()
		if err != nil {
			return reclaimed, err
		}
		for _, raw := range entries {
			var env Envelope
			if err := json.Unmarshal([]byte(raw), &env); err != nil {
				q.client.LRem(ctx, processingKey(provider), 1, raw)
				continue
			}
			stamp, err := q.client.HGet(ctx, claimsKey(provider), env.CorrelationID).Int64()
			if err == nil && stamp > cutoff {
				continue
			}
			if err != nil && err != redis.Nil {
				return reclaimed, err
			}
			pipe := q.client.TxPipeline()
			pipe.LRem(ctx, processingKey(provider), 1, raw)
			pipe.HDel(ctx, claimsKey(provider), env.CorrelationID)
			pipe.LPush(ctx, queueKey(provider), raw)
			if _, err := pipe.Exec(ctx); err != nil {
				return reclaimed, err
			}
			reclaimed++
		}
	}
	if err := iter.Err(); err != nil {
		return reclaimed, err
	}
	return reclaimed, nil
}
