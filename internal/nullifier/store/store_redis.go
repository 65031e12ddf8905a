package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"discard/internal/nullifier/models"
	"discard/pkg/platform/sentinel"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	redisInsertDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "discard_nullifier_redis_insert_duration_ms",
		Help:    "Latency of Redis nullifier inserts in milliseconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
	})
)

const (
	nullifierKeyPrefix = "nullifier:"
	activeIndexKey     = "nullifier:index:active"
	expiredIndexKey    = "nullifier:index:expired"
)

// insertScript writes the record only if absent and indexes it by expiry in
// the same atomic step.
var insertScript = redis.NewScript(`
if redis.call('SET', KEYS[1], ARGV[1], 'NX') then
	redis.call('ZADD', KEYS[2], ARGV[2], ARGV[3])
	return 1
end
return 0
`)

// expireScript moves one nullifier from the active to the expired index and
// rewrites its status. It is a no-op if another sweeper already moved it.
var expireScript = redis.NewScript(`
if redis.call('ZREM', KEYS[2], ARGV[1]) == 0 then
	return 0
end
local raw = redis.call('GET', KEYS[1])
if not raw then
	return 0
end
local rec = cjson.decode(raw)
rec['status'] = 'expired'
redis.call('SET', KEYS[1], cjson.encode(rec))
redis.call('ZADD', KEYS[3], ARGV[2], ARGV[1])
return 1
`)

// RedisStore keeps each nullifier as a JSON value without TTL plus two sorted
// sets scored by expiry (milliseconds) that drive the sweeps. Records are
// removed only by DeleteExpired.
type RedisStore struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func nullifierKey(n string) string {
	return nullifierKeyPrefix + n
}

func (s *RedisStore) Insert(ctx context.Context, record *models.Record) error {
	start := time.Now()
	defer func() {
		redisInsertDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal nullifier: %w", err)
	}
	score := strconv.FormatInt(record.ExpiresAt.UnixMilli(), 10)
	inserted, err := insertScript.Run(ctx, s.client,
		[]string{nullifierKey(record.Nullifier), activeIndexKey},
		data, score, record.Nullifier,
	).Int()
	if err != nil {
		return fmt.Errorf("insert nullifier: %w", err)
	}
	if inserted == 0 {
		return sentinel.ErrAlreadyUsed
	}
	return nil
}

func (s *RedisStore) Find(ctx context.Context, nullifier string) (*models.Record, error) {
	raw, err := s.client.Get(ctx, nullifierKey(nullifier)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find nullifier: %w", err)
	}
	var r models.Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode nullifier: %w", err)
	}
	return &r, nil
}

func (s *RedisStore) Exists(ctx context.Context, nullifier string) (bool, error) {
	n, err := s.client.Exists(ctx, nullifierKey(nullifier)).Result()
	if err != nil {
		return false, fmt.Errorf("check nullifier: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) ExistsBatch(ctx context.Context, nullifiers []string) (map[string]bool, error) {
	out := make(map[string]bool, len(nullifiers))
	if len(nullifiers) == 0 {
		return out, nil
	}
	pipe := s.client.Pipeline()
	cmds := make([]*redis.IntCmd, len(nullifiers))
	for i, n := range nullifiers {
		cmds[i] = pipe.Exists(ctx, nullifierKey(n))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("check nullifier batch: %w", err)
	}
	for i, n := range nullifiers {
		out[n] = cmds[i].Val() > 0
	}
	return out, nil
}

func (s *RedisStore) MarkExpired(ctx context.Context, now time.Time) (int, error) {
	due, err := s.client.ZRangeByScore(ctx, activeIndexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("scan active nullifiers: %w", err)
	}

	count := 0
	for _, n := range due {
		score, err := s.client.ZScore(ctx, activeIndexKey, n).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return count, fmt.Errorf("read nullifier expiry: %w", err)
		}
		moved, err := expireScript.Run(ctx, s.client,
			[]string{nullifierKey(n), activeIndexKey, expiredIndexKey},
			n, strconv.FormatInt(int64(score), 10),
		).Int()
		if err != nil {
			return count, fmt.Errorf("expire nullifier: %w", err)
		}
		count += moved
	}
	return count, nil
}

func (s *RedisStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int, error) {
	due, err := s.client.ZRangeByScore(ctx, expiredIndexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("scan expired nullifiers: %w", err)
	}
	if len(due) == 0 {
		return 0, nil
	}

	keys := make([]string, len(due))
	members := make([]any, len(due))
	for i, n := range due {
		keys[i] = nullifierKey(n)
		members[i] = n
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.ZRem(ctx, expiredIndexKey, members...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete expired nullifiers: %w", err)
	}
	return len(due), nil
}
