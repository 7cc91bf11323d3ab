// Package lock provides a Redis-backed per-key lock so several processes can
// resolve into the same edge store without racing on one file.
//
// Locks are held with SET NX PX under a random token, extended while held,
// and released by a script that deletes the key only if the token still
// matches.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/matzehuels/dependents/pkg/deps"
)

const (
	DefaultTTL          = 2 * time.Minute
	DefaultPollInterval = 100 * time.Millisecond
	DefaultPrefix       = "dependents:lock:"
)

// ErrNotHeld is returned when a lock could not be extended because another
// holder owns the key.
var ErrNotHeld = errors.New("lock not held")

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

// Redis implements [deps.Locker] on a Redis server.
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	poll   time.Duration
	logger *log.Logger
}

// Option configures a [Redis] locker.
type Option func(*Redis)

// WithTTL sets how long a lock survives its holder crashing.
func WithTTL(ttl time.Duration) Option {
	return func(r *Redis) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithPollInterval sets how often a blocked Lock retries.
func WithPollInterval(d time.Duration) Option {
	return func(r *Redis) {
		if d > 0 {
			r.poll = d
		}
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(r *Redis) { r.prefix = prefix }
}

// WithLogger sets the logger used to report lost locks.
func WithLogger(l *log.Logger) Option {
	return func(r *Redis) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a locker over client.
func New(client redis.UniversalClient, opts ...Option) *Redis {
	r := &Redis{
		client: client,
		prefix: DefaultPrefix,
		ttl:    DefaultTTL,
		poll:   DefaultPollInterval,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Connect creates a locker on a new client for addr after checking the
// connection.
func Connect(ctx context.Context, addr string, opts ...Option) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return New(client, opts...), nil
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Lock blocks until key is acquired or ctx is done. The lock is extended in
// the background until the returned func is called. If another holder takes
// the key first, held is cancelled with cause [deps.ErrLockLost].
func (r *Redis) Lock(ctx context.Context, key string) (context.Context, func(), error) {
	k := r.prefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()
	for {
		ok, err := r.client.SetNX(ctx, k, token, r.ttl).Result()
		if err != nil {
			return nil, nil, err
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-ticker.C:
		}
	}

	held, cancel := context.WithCancelCause(ctx)
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if r.keepAlive(k, token, stop) {
			r.logger.Warn("lock lost", "key", k)
			cancel(deps.ErrLockLost)
		}
	}()

	var once sync.Once
	return held, func() {
		once.Do(func() {
			close(stop)
			wg.Wait()
			cancel(nil)
			ctx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			_ = releaseScript.Run(ctx, r.client, []string{k}, token).Err()
		})
	}, nil
}

// keepAlive extends key until stop is closed. It reports true if the token
// no longer owns the key.
func (r *Redis) keepAlive(key, token string, stop <-chan struct{}) bool {
	ticker := time.NewTicker(r.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return false
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.ttl/3)
			err := r.extend(ctx, key, token)
			cancel()
			if errors.Is(err, ErrNotHeld) {
				return true
			}
		}
	}
}

func (r *Redis) extend(ctx context.Context, key, token string) error {
	n, err := extendScript.Run(ctx, r.client, []string{key}, token, r.ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

var _ deps.Locker = (*Redis)(nil)
