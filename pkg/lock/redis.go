package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"ttharvest/pkg/logger"
)

// DefaultRedisKey is the key the run lock is stored under
const DefaultRedisKey = "ttharvest:run-lock"

// The token check keeps a holder whose lock expired from deleting or
// extending a lock taken over by someone else.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)
)

// RedisClient is the subset of a redis client the lock needs
type RedisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	redis.Scripter
}

// RedisLock is a SET NX lock with a random token and a TTL
type RedisLock struct {
	client RedisClient
	key    string
	ttl    time.Duration
	logger logger.Logger

	mu    sync.Mutex
	token string
	stop  chan struct{}
	done  chan struct{}
}

// NewRedisClient creates a client from address settings
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// NewRedisLock creates a RedisLock
func NewRedisLock(client RedisClient, key string, ttl time.Duration, log logger.Logger) *RedisLock {
	if key == "" {
		key = DefaultRedisKey
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &RedisLock{
		client: client,
		key:    key,
		ttl:    ttl,
		logger: log.WithField("component", "lock"),
	}
}

func (l *RedisLock) Lock(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.token != "" {
		return fmt.Errorf("%w: already held by this process", ErrLocked)
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to acquire redis lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: redis key %s", ErrLocked, l.key)
	}

	l.token = token
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	go l.keepAlive(token, l.stop, l.done)
	return nil
}

func (l *RedisLock) keepAlive(token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(l.ttl / 3)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			n, err := extendScript.Run(ctx, l.client, []string{l.key}, token, l.ttl.Milliseconds()).Int64()
			cancel()
			if err != nil {
				l.logger.WithError(err).Warn("Lock heartbeat failed")
			} else if n == 0 {
				l.logger.Warn("Lock was lost to another holder")
			}
		}
	}
}

func (l *RedisLock) Unlock(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.token == "" {
		return nil
	}
	close(l.stop)
	<-l.done

	token := l.token
	l.token, l.stop, l.done = "", nil, nil

	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to release redis lock: %w", err)
	}
	if n == 0 {
		l.logger.Warn("Lock expired before release")
	}
	return nil
}
