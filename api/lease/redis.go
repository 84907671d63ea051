package lease

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const (
	DefaultTTL  = 30 * time.Second
	redisPrefix = "quickdeploy:lease:"
)

// Only the holder's token may release or extend a lease.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// Redis is a lease shared by every process talking to the same server.
// The lease expires after TTL unless the holder is alive to extend it.
type Redis struct {
	client *redis.Client
	logger *slog.Logger
	TTL    time.Duration
	// Poll is the wait between acquisition attempts.
	Poll time.Duration
}

func NewRedis(addr, password string, db int, logger *slog.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{client: client, logger: logger, TTL: DefaultTTL, Poll: 250 * time.Millisecond}, nil
}

func (r *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	redisKey := redisPrefix + key
	token := uuid.NewString()
	ttl := r.ttl()

	for {
		ok, err := r.client.SetNX(ctx, redisKey, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-time.After(r.poll()):
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire %s: %w", key, ctx.Err())
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go r.keepAlive(redisKey, token, stop, done)

	released := false
	return func() {
		if released {
			return
		}
		released = true
		close(stop)
		<-done
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, r.client, []string{redisKey}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			r.logger.Error("lease release failed", "key", key, "error", err)
		}
	}, nil
}

func (r *Redis) keepAlive(redisKey, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ttl := r.ttl()
	ticker := time.NewTicker(ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			err := extendScript.Run(ctx, r.client, []string{redisKey}, token, ttl.Milliseconds()).Err()
			cancel()
			if err != nil {
				r.logger.Warn("lease extend failed", "key", redisKey, "error", err)
			}
		}
	}
}

func (r *Redis) Healthy(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) ttl() time.Duration {
	if r.TTL > 0 {
		return r.TTL
	}
	return DefaultTTL
}

func (r *Redis) poll() time.Duration {
	if r.Poll > 0 {
		return r.Poll
	}
	return 250 * time.Millisecond
}
