package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rushteam/saveeat/core"
)

// RedisStore 是 Redis 实现的 KeyValueStore，用于多实例部署时共享画像与热度。
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisOption 配置 RedisStore。
type RedisOption func(*redis.Options, *RedisStore)

// WithRedisPassword 设置认证密码。
func WithRedisPassword(password string) RedisOption {
	return func(o *redis.Options, _ *RedisStore) { o.Password = password }
}

// WithKeyPrefix 为所有 key 增加前缀，便于多个环境共用一个实例。
func WithKeyPrefix(prefix string) RedisOption {
	return func(_ *redis.Options, s *RedisStore) { s.prefix = prefix }
}

// NewRedisStore 连接 Redis 并执行一次 PING。
func NewRedisStore(ctx context.Context, addr string, db int, opts ...RedisOption) (*RedisStore, error) {
	o := &redis.Options{Addr: addr, DB: db}
	s := &RedisStore{}
	for _, opt := range opts {
		opt(o, s)
	}
	s.client = redis.NewClient(o)
	if err := s.client.Ping(ctx).Err(); err != nil {
		_ = s.client.Close()
		return nil, err
	}
	return s, nil
}

func (r *RedisStore) Name() string { return "redis" }

func (r *RedisStore) key(k string) string { return r.prefix + k }

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrStoreNotFound
	}
	return val, err
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl ...int) error {
	return r.client.Set(ctx, r.key(key), value, expiration(ttl)).Err()
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

func (r *RedisStore) BatchGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.key(k)
	}
	vals, err := r.client.MGet(ctx, full...).Result()
	if err != nil {
		return nil, err
	}
	for i, k := range keys {
		if s, ok := vals[i].(string); ok {
			out[k] = []byte(s)
		}
	}
	return out, nil
}

func (r *RedisStore) BatchSet(ctx context.Context, kvs map[string][]byte, ttl ...int) error {
	exp := expiration(ttl)
	pipe := r.client.Pipeline()
	for k, v := range kvs {
		pipe.Set(ctx, r.key(k), v, exp)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisStore) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return r.client.ZAdd(ctx, r.key(key), redis.Z{Score: score, Member: member}).Err()
}

func (r *RedisStore) ZIncrBy(ctx context.Context, key string, delta float64, member string) (float64, error) {
	return r.client.ZIncrBy(ctx, r.key(key), delta, member).Result()
}

func (r *RedisStore) ZRange(ctx context.Context, key string, start, stop int64) ([]core.ScoredMember, error) {
	zs, err := r.client.ZRevRangeWithScores(ctx, r.key(key), start, stop).Result()
	if err != nil {
		return nil, err
	}
	out := make([]core.ScoredMember, 0, len(zs))
	for _, z := range zs {
		m, _ := z.Member.(string)
		out = append(out, core.ScoredMember{Member: m, Score: z.Score})
	}
	return out, nil
}

func (r *RedisStore) ZScore(ctx context.Context, key string, member string) (float64, error) {
	score, err := r.client.ZScore(ctx, r.key(key), member).Result()
	if errors.Is(err, redis.Nil) {
		return 0, core.ErrStoreNotFound
	}
	return score, err
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func expiration(ttl []int) time.Duration {
	if len(ttl) > 0 && ttl[0] > 0 {
		return time.Duration(ttl[0]) * time.Second
	}
	return 0
}

var _ core.KeyValueStore = (*RedisStore)(nil)
