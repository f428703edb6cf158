package cache

import (
	"time"

	"github.com/go-redis/redis/v7"
	"github.com/pkg/errors"
)

// Redis is the shared, networked cache backend. Values are opaque
// blobs; callers own serialization, matching the reference design
// ("Values are opaque blobs; serialization is the cache layer's
// concern" — the reference design).
type Redis struct {
	client *redis.Client
}

func NewRedis(addr, password string, db int) *Redis {
	return &Redis{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

func (r *Redis) Set(key string, value []byte, ttl time.Duration) error {
	// a ttl of 0 means "no expiration" for go-redis, matching our NoTTL const
	err := r.client.Set(key, value, ttl).Err()
	return errors.Wrap(err, "cache: redis set failed")
}

func (r *Redis) Get(key string) ([]byte, bool, error) {
	v, err := r.client.Get(key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "cache: redis get failed")
	}
	return v, true, nil
}

func (r *Redis) Remove(key string) error {
	err := r.client.Del(key).Err()
	return errors.Wrap(err, "cache: redis del failed")
}

func (r *Redis) Ping() error {
	return errors.Wrap(r.client.Ping().Err(), "cache: redis ping failed")
}

func (r *Redis) Flush() error {
	return errors.Wrap(r.client.FlushDB().Err(), "cache: redis flushdb failed")
}
