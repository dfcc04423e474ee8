package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/apexbridge-tech/bugspotter-sub002/internal/models"
)

// Worker-facing half of the broker: claiming jobs, acknowledging outcomes,
// and the housekeeping loops (delayed promotion, lease reclaim, retention).

// Dequeue claims the next waiting job from the queue, leasing it into the
// active set. Returns nil when the queue is empty or paused.
func (b *Broker) Dequeue(ctx context.Context, queue string) (*models.Job, error) {
	if err := b.ready(queue); err != nil {
		return nil, err
	}
	deadline := time.Now().Add(b.lease).UnixMilli()
	res, err := dequeueScript.Run(ctx, b.client,
		[]string{pausedKey(queue), waitingKey(queue), activeKey(queue)}, deadline).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("broker: dequeue: %w", err)
	}
	id, ok := res.(string)
	if !ok {
		return nil, fmt.Errorf("broker: unexpected type from dequeue script: %T", res)
	}

	now := time.Now()
	pipe := b.client.TxPipeline()
	pipe.HIncrBy(ctx, jobKey(id), "attempts", 1)
	pipe.HSet(ctx, jobKey(id), map[string]any{
		"status":     string(models.StatusActive),
		"started_ms": now.UnixMilli(),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("broker: claim job %s: %w", id, err)
	}

	fields, err := b.client.HGetAll(ctx, jobKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("broker: load job %s: %w", id, err)
	}
	if len(fields) == 0 {
		// Hash expired between claim and load; drop the lease.
		_ = b.client.ZRem(ctx, activeKey(queue), id).Err()
		return nil, nil
	}
	return parseJob(id, fields), nil
}

// UpdateProgress writes the job's progress field. Implements the progress
// tracker's sink.
func (b *Broker) UpdateProgress(ctx context.Context, jobID string, p models.Progress) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("broker: marshal progress: %w", err)
	}
	return b.client.HSet(ctx, jobKey(jobID), "progress", string(raw)).Err()
}

// Complete acknowledges a job as successfully finished with its result.
func (b *Broker) Complete(ctx context.Context, job *models.Job, result json.RawMessage) error {
	if err := b.ready(job.Queue); err != nil {
		return err
	}
	now := time.Now()
	pipe := b.client.TxPipeline()
	pipe.ZRem(ctx, activeKey(job.Queue), job.ID)
	pipe.HSet(ctx, jobKey(job.ID), map[string]any{
		"status":      string(models.StatusCompleted),
		"result":      string(result),
		"finished_ms": now.UnixMilli(),
	})
	pipe.ZAdd(ctx, completedKey(job.Queue), redis.Z{Score: float64(now.UnixMilli()), Member: job.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("broker: complete job %s: %w", job.ID, err)
	}
	return nil
}

// Fail records a failed attempt. When retryAt is non-nil the job re-enters
// the delayed set for another attempt; otherwise it is terminally failed.
func (b *Broker) Fail(ctx context.Context, job *models.Job, reason string, retryAt *time.Time) error {
	if err := b.ready(job.Queue); err != nil {
		return err
	}
	now := time.Now()
	pipe := b.client.TxPipeline()
	pipe.ZRem(ctx, activeKey(job.Queue), job.ID)
	if retryAt != nil {
		pipe.HSet(ctx, jobKey(job.ID), map[string]any{
			"status":         string(models.StatusDelayed),
			"failure_reason": reason,
		})
		pipe.ZAdd(ctx, delayedKey(job.Queue), redis.Z{Score: float64(retryAt.UnixMilli()), Member: job.ID})
	} else {
		pipe.HSet(ctx, jobKey(job.ID), map[string]any{
			"status":         string(models.StatusFailed),
			"failure_reason": reason,
			"finished_ms":    now.UnixMilli(),
		})
		pipe.ZAdd(ctx, failedTerminalKey(job.Queue), redis.Z{Score: float64(now.UnixMilli()), Member: job.ID})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("broker: fail job %s: %w", job.ID, err)
	}
	return nil
}

// ExtendLease pushes the visibility deadline forward for an active job.
func (b *Broker) ExtendLease(ctx context.Context, queue, jobID string, extension time.Duration) error {
	if err := b.ready(queue); err != nil {
		return err
	}
	return b.client.ZAdd(ctx, activeKey(queue), redis.Z{
		Score:  float64(time.Now().Add(extension).UnixMilli()),
		Member: jobID,
	}).Err()
}

// PromoteDelayed moves due delayed jobs onto the waiting list. Returns how
// many were promoted.
func (b *Broker) PromoteDelayed(ctx context.Context, queue string, now time.Time, limit int64) (int, error) {
	if err := b.ready(queue); err != nil {
		return 0, err
	}
	ids, err := b.client.ZRangeByScore(ctx, delayedKey(queue), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: limit,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("broker: promote delayed: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	pipe := b.client.TxPipeline()
	for _, id := range ids {
		pipe.ZRem(ctx, delayedKey(queue), id)
		pipe.HSet(ctx, jobKey(id), "status", string(models.StatusWaiting))
		pipe.RPush(ctx, waitingKey(queue), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("broker: promote delayed: %w", err)
	}
	return len(ids), nil
}

// ReclaimExpired re-enqueues jobs whose lease deadline passed, typically
// after a worker crash. Returns the reclaimed ids.
func (b *Broker) ReclaimExpired(ctx context.Context, queue string, now time.Time, limit int64) ([]string, error) {
	if err := b.ready(queue); err != nil {
		return nil, err
	}
	ids, err := b.client.ZRangeByScore(ctx, activeKey(queue), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("broker: reclaim expired: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	pipe := b.client.TxPipeline()
	for _, id := range ids {
		pipe.ZRem(ctx, activeKey(queue), id)
		pipe.HSet(ctx, jobKey(id), "status", string(models.StatusWaiting))
		pipe.RPush(ctx, waitingKey(queue), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("broker: reclaim expired: %w", err)
	}
	return ids, nil
}

// SweepTerminal garbage-collects completed/failed jobs older than the
// retention window, deleting their hashes.
func (b *Broker) SweepTerminal(ctx context.Context, queue string, now time.Time) (int, error) {
	if err := b.ready(queue); err != nil {
		return 0, err
	}
	cutoff := strconv.FormatInt(now.Add(-b.retention).UnixMilli(), 10)
	removed := 0
	for _, key := range []string{completedKey(queue), failedTerminalKey(queue)} {
		ids, err := b.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: "-inf", Max: cutoff}).Result()
		if err != nil {
			return removed, fmt.Errorf("broker: sweep terminal: %w", err)
		}
		if len(ids) == 0 {
			continue
		}
		pipe := b.client.TxPipeline()
		for _, id := range ids {
			pipe.ZRem(ctx, key, id)
			pipe.Del(ctx, jobKey(id))
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return removed, fmt.Errorf("broker: sweep terminal: %w", err)
		}
		removed += len(ids)
	}
	return removed, nil
}

func parseJob(id string, fields map[string]string) *models.Job {
	job := &models.Job{
		ID:            id,
		Queue:         fields["queue"],
		Name:          fields["name"],
		Payload:       json.RawMessage(fields["payload"]),
		Status:        models.Status(fields["status"]),
		FailureReason: fields["failure_reason"],
	}
	job.AttemptsMade, _ = strconv.Atoi(fields["attempts"])
	job.MaxAttempts, _ = strconv.Atoi(fields["max_attempts"])
	if raw := fields["progress"]; raw != "" {
		_ = json.Unmarshal([]byte(raw), &job.Progress)
	}
	if raw := fields["result"]; raw != "" {
		job.Result = json.RawMessage(raw)
	}
	if ms, err := strconv.ParseInt(fields["enqueued_ms"], 10, 64); err == nil {
		job.EnqueuedAt = time.UnixMilli(ms)
	}
	if ms, err := strconv.ParseInt(fields["started_ms"], 10, 64); err == nil {
		t := time.UnixMilli(ms)
		job.StartedAt = &t
	}
	if ms, err := strconv.ParseInt(fields["finished_ms"], 10, 64); err == nil {
		t := time.UnixMilli(ms)
		job.FinishedAt = &t
	}
	return job
}

var dequeueScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return nil
end
local job = redis.call('LPOP', KEYS[2])
if job then
  redis.call('ZADD', KEYS[3], ARGV[1], job)
  return job
end
return nil
`)
