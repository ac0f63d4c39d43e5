/*
lock.go - At-most-one sync pass

PURPOSE:
  Implements timesheet.Locker. A second trigger while a pass is running is
  rejected with timesheet.ErrSyncInProgress instead of queueing behind it;
  the scheduler simply tries again on its next tick.

IMPLEMENTATIONS:
  Local: in-process mutex, enough for a single server
  Redis: SET NX PX with a per-holder token, for several replicas sharing
         one database. The holder extends the lease every TTL/3 while the
         pass runs, so TTL only bounds how long a crashed holder blocks.

SEE ALSO:
  - timesheet/runner.go: Runner acquires before every pass
*/
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/warp/timesheet-engine/timesheet"
	"go.uber.org/zap"
)

var (
	_ timesheet.Locker = (*Local)(nil)
	_ timesheet.Locker = (*Redis)(nil)
)

// =============================================================================
// LOCAL
// =============================================================================

// Local serializes passes within one process.
type Local struct {
	mu sync.Mutex
}

func NewLocal() *Local { return &Local{} }

func (l *Local) Acquire(_ context.Context) (func(), error) {
	if !l.mu.TryLock() {
		return nil, timesheet.ErrSyncInProgress
	}
	var once sync.Once
	return func() { once.Do(l.mu.Unlock) }, nil
}

// =============================================================================
// REDIS
// =============================================================================

// DefaultKey is the lock key shared by every replica.
const DefaultKey = "timesheet:sync:lock"

// releaseScript deletes the key only while it still holds our token, so an
// expired holder never frees a lock someone else has since taken.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript pushes the expiry out only while the key still holds our token.
var extendScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Redis is a lease held in a single key. TTL bounds how long a crashed
// holder can block the next pass; a live holder keeps renewing it.
type Redis struct {
	client goredis.Cmdable
	key    string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedis creates a Redis-backed locker. An empty key uses DefaultKey.
func NewRedis(client goredis.Cmdable, key string, ttl time.Duration, logger *zap.Logger) *Redis {
	if key == "" {
		key = DefaultKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{client: client, key: key, ttl: ttl, logger: logger}
}

func (r *Redis) Acquire(ctx context.Context) (func(), error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, r.key, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire sync lock: %w", err)
	}
	if !ok {
		return nil, timesheet.ErrSyncInProgress
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go r.keepAlive(token, stop, done)

	var once sync.Once
	release := func() {
		once.Do(func() {
			close(stop)
			<-done
			// The pass context may already be cancelled; release on a fresh one.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, r.client, []string{r.key}, token).Err(); err != nil && !errors.Is(err, goredis.Nil) {
				r.logger.Warn("release sync lock", zap.String("key", r.key), zap.Error(err))
			}
		})
	}
	return release, nil
}

// keepAlive renews the lease every ttl/3 until stop is closed or the lease
// is lost to another holder.
func (r *Redis) keepAlive(token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	if r.ttl <= 0 {
		return
	}
	ticker := time.NewTicker(r.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			held, err := r.extend(token)
			if err != nil {
				r.logger.Warn("extend sync lock", zap.String("key", r.key), zap.Error(err))
				continue
			}
			if !held {
				r.logger.Error("sync lock lost to another holder", zap.String("key", r.key))
				return
			}
		}
	}
}

func (r *Redis) extend(token string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.ttl/3)
	defer cancel()
	n, err := extendScript.Run(ctx, r.client, []string{r.key}, token, r.ttl.Milliseconds()).Int64()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, nil
		}
		return false, err
	}
	return n == 1, nil
}

// NewRedisClient connects and pings.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{Addr: addr, Password: password, DB: db})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return client, nil
}
