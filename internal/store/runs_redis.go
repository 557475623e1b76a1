package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	// Runs are kept a week; completed folders are diagnosed from the
	// CSV log on disk after that.
	statusTTL = 7 * 24 * time.Hour
	// logKeep bounds the per-run report tail held in Redis.
	logKeep = 500
)

// RedisRuns stores run status and report tails in Redis.
type RedisRuns struct {
	client *redis.Client
	keyNS  string
}

func NewRedisRuns(redisURL string) (*RedisRuns, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	c := redis.NewClient(opt)
	if err := c.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return &RedisRuns{client: c, keyNS: "run"}, nil
}

func (s *RedisRuns) statusKey(runID string) string { return fmt.Sprintf("%s:%s:status", s.keyNS, runID) }
func (s *RedisRuns) logKey(runID string) string    { return fmt.Sprintf("%s:%s:log", s.keyNS, runID) }

func (s *RedisRuns) Set(ctx context.Context, runID string, st RunStatus) error {
	m := map[string]interface{}{
		"state":     st.State,
		"folder":    st.Folder,
		"processed": st.Processed,
		"total":     st.Total,
		"message":   st.Message,
	}
	if st.Start != nil {
		m["start"] = st.Start.Format(time.RFC3339Nano)
	}
	if st.End != nil {
		m["end"] = st.End.Format(time.RFC3339Nano)
	}
	key := s.statusKey(runID)
	if err := s.client.HSet(ctx, key, m).Err(); err != nil {
		return err
	}
	return s.client.Expire(ctx, key, statusTTL).Err()
}

func (s *RedisRuns) Get(ctx context.Context, runID string) (RunStatus, bool, error) {
	res, err := s.client.HGetAll(ctx, s.statusKey(runID)).Result()
	if err != nil {
		return RunStatus{}, false, err
	}
	if len(res) == 0 {
		return RunStatus{}, false, nil
	}
	st := RunStatus{
		State:   res["state"],
		Folder:  res["folder"],
		Message: res["message"],
	}
	// parse errors leave the counters at zero
	st.Processed, _ = strconv.Atoi(res["processed"])
	st.Total, _ = strconv.Atoi(res["total"])
	if v := res["start"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			st.Start = &t
		}
	}
	if v := res["end"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			st.End = &t
		}
	}
	return st, true, nil
}

// AppendLog pushes one report line onto the run's tail, trimmed to the
// most recent logKeep entries.
func (s *RedisRuns) AppendLog(ctx context.Context, runID, line string) error {
	key := s.logKey(runID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, line)
	pipe.LTrim(ctx, key, -logKeep, -1)
	pipe.Expire(ctx, key, statusTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// TailLog returns up to n of the most recent report lines, oldest first.
func (s *RedisRuns) TailLog(ctx context.Context, runID string, n int64) ([]string, error) {
	if n <= 0 {
		n = logKeep
	}
	return s.client.LRange(ctx, s.logKey(runID), -n, -1).Result()
}

func (s *RedisRuns) Close() error { return s.client.Close() }

// Client returns the underlying Redis client
func (s *RedisRuns) Client() *redis.Client { return s.client }
