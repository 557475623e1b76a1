package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RunRequest is the payload queued for the run worker.
type RunRequest struct {
	RunID  string `json:"run_id"`
	Folder string `json:"folder"`
}

// RedisQueue queues folder run requests on a Redis stream with a
// consumer group. Runs are acked on read; a crashed worker's run is
// surfaced through its status record, not redelivered.
type RedisQueue struct {
	client *redis.Client
	Stream string
	Group  string

	cancelKey  string
	lockPrefix string
}

// NewRedisQueue connects to Redis and ensures the stream and group
// exist.
func NewRedisQueue(redisURL, stream, group string) (*RedisQueue, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	q := &RedisQueue{
		client:     c,
		Stream:     stream,
		Group:      group,
		cancelKey:  "runs:cancelled:set",
		lockPrefix: "runs:folderlock:",
	}
	// MKSTREAM creates the stream if missing
	if err := c.XGroupCreateMkStream(ctx, stream, group, "$").Err(); err != nil && !isBusyGroupErr(err) {
		return nil, fmt.Errorf("xgroup create: %w", err)
	}
	return q, nil
}

// isBusyGroupErr matches the server reply for an already existing
// consumer group.
func isBusyGroupErr(err error) bool {
	return err != nil && strings.Contains(strings.ToUpper(err.Error()), "BUSYGROUP")
}

func (q *RedisQueue) Close() error { return q.client.Close() }

// Ping checks redis connectivity.
func (q *RedisQueue) Ping(ctx context.Context) error { return q.client.Ping(ctx).Err() }

// Enqueue adds a run request to the stream as a single-field entry
// {data: <json>}.
func (q *RedisQueue) Enqueue(ctx context.Context, req RunRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal run request: %w", err)
	}
	return q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.Stream,
		Values: map[string]any{"data": string(payload)},
	}).Err()
}

// Dequeue reads one message from the consumer group and ACKs it
// immediately. Returns empty values when the block timeout elapses
// without a message.
func (q *RedisQueue) Dequeue(ctx context.Context, consumer string, timeout time.Duration) (string, []byte, error) {
	res, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.Group,
		Consumer: consumer,
		Streams:  []string{q.Stream, ">"},
		Count:    1,
		Block:    timeout,
		NoAck:    false,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil, nil
		}
		return "", nil, err
	}
	if len(res) == 0 || len(res[0].Messages) == 0 {
		return "", nil, nil
	}
	msg := res[0].Messages[0]
	if v, ok := msg.Values["data"]; ok {
		switch t := v.(type) {
		case string:
			return msg.ID, []byte(t), nil
		case []byte:
			return msg.ID, t, nil
		}
	}
	return msg.ID, nil, nil
}

// Ack marks a message as processed.
func (q *RedisQueue) Ack(ctx context.Context, msgID string) error {
	if msgID == "" {
		return nil
	}
	return q.client.XAck(ctx, q.Stream, q.Group, msgID).Err()
}

// CancelRun flags a run for cancellation. The worker polls this set
// and aborts the run between families.
func (q *RedisQueue) CancelRun(ctx context.Context, runID string) error {
	return q.client.SAdd(ctx, q.cancelKey, runID).Err()
}

// IsCancelled returns true if the run was flagged for cancellation.
func (q *RedisQueue) IsCancelled(ctx context.Context, runID string) (bool, error) {
	return q.client.SIsMember(ctx, q.cancelKey, runID).Result()
}

// TryLockFolder takes a best effort lock preventing two concurrent
// runs over the same source folder. Returns false when the folder is
// already locked.
func (q *RedisQueue) TryLockFolder(ctx context.Context, folder string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return q.client.SetNX(ctx, q.lockPrefix+folder, 1, ttl).Result()
}

// UnlockFolder releases the folder lock after a run completes.
func (q *RedisQueue) UnlockFolder(ctx context.Context, folder string) error {
	return q.client.Del(ctx, q.lockPrefix+folder).Err()
}

// Depth returns the stream length for metrics.
func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	return q.client.XLen(ctx, q.Stream).Result()
}
