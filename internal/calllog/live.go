package calllog

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/eleven-am/livecaption/internal/shared"
	"github.com/redis/go-redis/v9"
)

const (
	liveTTL    = 24 * time.Hour
	metricsTTL = 7 * 24 * time.Hour
)

// LiveStore keeps calls in progress and hourly counters in redis so every
// relay instance sees the same call.
type LiveStore struct {
	redis *redis.Client
}

func NewLiveStore(redisClient *redis.Client) *LiveStore {
	return &LiveStore{redis: redisClient}
}

func (s *LiveStore) Start(ctx context.Context, call *LiveCall) error {
	data, err := json.Marshal(call)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, call.RedisKey(), data, liveTTL).Err()
}

func (s *LiveStore) Get(ctx context.Context, id string) (*LiveCall, error) {
	data, err := s.redis.Get(ctx, "call:"+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var call LiveCall
	if err := json.Unmarshal(data, &call); err != nil {
		return nil, err
	}
	return &call, nil
}

func (s *LiveStore) Update(ctx context.Context, call *LiveCall) error {
	data, err := json.Marshal(call)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, call.RedisKey(), data, redis.KeepTTL).Err()
}

// Finish removes the live call and returns it. Only one caller gets the
// record; later calls see ErrNotFound.
func (s *LiveStore) Finish(ctx context.Context, id string) (*LiveCall, error) {
	data, err := s.redis.GetDel(ctx, "call:"+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var call LiveCall
	if err := json.Unmarshal(data, &call); err != nil {
		return nil, err
	}
	return &call, nil
}

func (s *LiveStore) IncrementMetric(ctx context.Context, at time.Time, field string, value int64) error {
	at = at.UTC()
	key := MetricsRedisKey(at.Format("2006-01-02"), at.Hour())

	pipe := s.redis.Pipeline()
	pipe.HIncrBy(ctx, key, field, value)
	pipe.Expire(ctx, key, metricsTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *LiveStore) RecordDuration(ctx context.Context, at time.Time, d time.Duration) error {
	at = at.UTC()
	key := MetricsRedisKey(at.Format("2006-01-02"), at.Hour())

	pipe := s.redis.Pipeline()
	pipe.HIncrBy(ctx, key, "total_duration_ms", d.Milliseconds())
	pipe.HIncrBy(ctx, key, "duration_count", 1)
	pipe.Expire(ctx, key, metricsTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// GetMetrics returns the non-empty hours among the last hours ending at now,
// newest first.
func (s *LiveStore) GetMetrics(ctx context.Context, now time.Time, hours int) ([]*Metrics, error) {
	now = now.UTC()
	var metrics []*Metrics

	for i := 0; i < hours; i++ {
		t := now.Add(-time.Duration(i) * time.Hour)
		key := MetricsRedisKey(t.Format("2006-01-02"), t.Hour())

		data, err := s.redis.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			continue
		}

		m := &Metrics{
			Date:        t.Format("2006-01-02"),
			Hour:        t.Hour(),
			Calls:       parseCount(data, "calls"),
			Answered:    parseCount(data, "answered"),
			Completed:   parseCount(data, string(OutcomeCompleted)),
			Rejected:    parseCount(data, string(OutcomeRejected)),
			Cancelled:   parseCount(data, string(OutcomeCancelled)),
			Unanswered:  parseCount(data, string(OutcomeUnanswered)),
			Unavailable: parseCount(data, string(OutcomeUnavailable)),
		}
		if n := parseCount(data, "duration_count"); n > 0 {
			m.AvgDurationMs = parseCount(data, "total_duration_ms") / n
		}
		metrics = append(metrics, m)
	}
	return metrics, nil
}

func parseCount(data map[string]string, field string) int64 {
	v, ok := data[field]
	if !ok {
		return 0
	}
	n, _ := strconv.ParseInt(v, 10, 64)
	return n
}
