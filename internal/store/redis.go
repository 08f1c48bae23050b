package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var _ Client = (*RedisClient)(nil)

// RedisClient wraps a *redis.Client with the narrow Client surface this
// worker needs: one struct wrapping the backing engine handle, one
// constructor, narrow methods.
type RedisClient struct {
	rdb *redis.Client
}

// Config holds the connection parameters for the shared data store.
type Config struct {
	Host     string
	Port     int
	DB       int
	Timeout  time.Duration
	Password string
}

// NewRedisClient opens a connection to the shared data store and verifies
// it is reachable, so an unreachable store fails startup immediately
// instead of surfacing as a mysterious timeout on the first real command.
func NewRedisClient(ctx context.Context, cfg Config) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		DB:           cfg.DB,
		Password:     cfg.Password,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connect to shared data store at %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	return &RedisClient{rdb: rdb}, nil
}

func (c *RedisClient) Close() error {
	return c.rdb.Close()
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newStoreErr(KindTimeout, op, err)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newStoreErr(KindTimeout, op, err)
	}
	return newStoreErr(KindTransport, op, err)
}

func (c *RedisClient) ListPushHead(ctx context.Context, key string, value string) error {
	if err := c.rdb.LPush(ctx, key, value).Err(); err != nil {
		return classify("ListPushHead", err)
	}
	return nil
}

func (c *RedisClient) ListPopTail(ctx context.Context, key string, block time.Duration) (string, bool, error) {
	if block > 0 {
		res, err := c.rdb.BRPop(ctx, block, key).Result()
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		if err != nil {
			return "", false, classify("ListPopTail", err)
		}
		// BRPop returns [key, value].
		if len(res) < 2 {
			return "", false, nil
		}
		return res[1], true, nil
	}

	val, err := c.rdb.RPop(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, classify("ListPopTail", err)
	}
	return val, true, nil
}

func (c *RedisClient) ListLength(ctx context.Context, key string) (int64, error) {
	n, err := c.rdb.LLen(ctx, key).Result()
	if err != nil {
		return 0, classify("ListLength", err)
	}
	return n, nil
}

func (c *RedisClient) GetString(ctx context.Context, key string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, classify("GetString", err)
	}
	return val, true, nil
}

func (c *RedisClient) SetStringWithTTL(ctx context.Context, key string, value string, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return classify("SetStringWithTTL", err)
	}
	return nil
}

func (c *RedisClient) Delete(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return classify("Delete", err)
	}
	return nil
}

func (c *RedisClient) HashIncrementInt(ctx context.Context, key, field string, delta int64) (int64, error) {
	n, err := c.rdb.HIncrBy(ctx, key, field, delta).Result()
	if err != nil {
		return 0, classify("HashIncrementInt", err)
	}
	return n, nil
}

func (c *RedisClient) HashIncrementFloat(ctx context.Context, key, field string, delta float64) (float64, error) {
	n, err := c.rdb.HIncrByFloat(ctx, key, field, delta).Result()
	if err != nil {
		return 0, classify("HashIncrementFloat", err)
	}
	return n, nil
}

func (c *RedisClient) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	m, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, classify("HashGetAll", err)
	}
	return m, nil
}

// releaseScript deletes the lease key only if it is still held by the
// token that acquired it, so a lease is never released out from under a
// new holder after expiry/re-acquisition. The check-and-delete must run as
// a single atomic step in Redis, hence the Lua script rather than a
// GET-then-DEL round trip from the client.
const releaseScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
else
	return 0
end
`

func (c *RedisClient) TryAcquireLease(ctx context.Context, name string, ttl time.Duration) (LeaseHandle, bool, error) {
	token := uuid.NewString()
	ok, err := c.rdb.SetNX(ctx, name, token, ttl).Result()
	if err != nil {
		return nil, false, classify("TryAcquireLease", err)
	}
	if !ok {
		return nil, false, nil
	}
	return &redisLease{rdb: c.rdb, name: name, token: token}, true, nil
}

type redisLease struct {
	rdb   *redis.Client
	name  string
	token string
}

func (l *redisLease) Release(ctx context.Context) error {
	if err := l.rdb.Eval(ctx, releaseScript, []string{l.name}, l.token).Err(); err != nil {
		return classify("Release", err)
	}
	return nil
}
