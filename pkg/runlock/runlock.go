// Package runlock keeps two runs from importing the same kind at once.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLocked  = errors.New("import already running")
	ErrNotHeld = errors.New("lock not held")
)

const keyPrefix = "campfin:lock:"

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`)

// Locker hands out run locks by name.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (Lock, error)
}

type Lock interface {
	Release(ctx context.Context) error
}

// New returns the locker of a configured backend: "none" or "redis".
func New(backend, redisURL string) (Locker, error) {
	switch backend {
	case "", "none":
		return Noop{}, nil
	case "redis":
		opts, err := redisOptions(redisURL)
		if err != nil {
			return nil, err
		}
		return NewRedis(redis.NewClient(opts)), nil
	}
	return nil, fmt.Errorf("unknown lock backend %q", backend)
}

func redisOptions(url string) (*redis.Options, error) {
	if opts, err := redis.ParseURL(url); err == nil {
		return opts, nil
	}
	if url == "" {
		return nil, errors.New("REDIS_URL is empty")
	}
	return &redis.Options{Addr: url}, nil
}

// Noop grants every lock.
type Noop struct{}

func (Noop) Acquire(context.Context, string, time.Duration) (Lock, error) {
	return noopLock{}, nil
}

type noopLock struct{}

func (noopLock) Release(context.Context) error { return nil }

type Redis struct {
	client redis.UniversalClient
}

func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

// Acquire sets the lock key if absent, expiring after ttl so a crashed run
// cannot hold it forever.
func (r *Redis) Acquire(ctx context.Context, name string, ttl time.Duration) (Lock, error) {
	key := keyPrefix + name
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, name)
	}
	return &redisLock{client: r.client, key: key, token: token}, nil
}

type redisLock struct {
	client redis.UniversalClient
	key    string
	token  string
}

func (l *redisLock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int64()
	if err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}
