package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "chicommute:session:"

// RedisStore keeps sessions in Redis so they survive restarts and are shared
// between instances. Expiry is left to Redis key TTLs.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// DialRedis connects and pings with a short timeout.
func DialRedis(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return rdb, nil
}

func (r *RedisStore) Put(ctx context.Context, token string, u User, ttl time.Duration) error {
	b, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, sessionKeyPrefix+token, b, ttl).Err()
}

func (r *RedisStore) Get(ctx context.Context, token string) (User, error) {
	b, err := r.rdb.Get(ctx, sessionKeyPrefix+token).Bytes()
	return decodeSession(b, err)
}

func (r *RedisStore) Delete(ctx context.Context, token string) (User, error) {
	b, err := r.rdb.GetDel(ctx, sessionKeyPrefix+token).Bytes()
	return decodeSession(b, err)
}

func decodeSession(b []byte, err error) (User, error) {
	if errors.Is(err, redis.Nil) {
		return User{}, ErrNoSession
	}
	if err != nil {
		return User{}, fmt.Errorf("redis session: %w", err)
	}
	var u User
	if err := json.Unmarshal(b, &u); err != nil {
		return User{}, fmt.Errorf("decode session: %w", err)
	}
	return u, nil
}
