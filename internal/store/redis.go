package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Redis is the production Store backed by the redis instance the rig-side
// bridge publishes into. Telemetry channels live under <ns>:chan:<name>,
// parameter flags under <ns>:param:<name>, all as stringified floats.
type Redis struct {
	client    *redis.Client
	namespace string
	opTimeout time.Duration
	log       *logrus.Logger
}

// RedisOptions holds the connection settings for NewRedis.
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	Namespace string
	OpTimeout time.Duration
}

// NewRedis connects to redis and verifies the link with a ping before
// returning. A store that cannot be reached at startup is a configuration
// problem, not something to limp along with.
func NewRedis(opts RedisOptions, log *logrus.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	opTimeout := opts.OpTimeout
	if opTimeout <= 0 {
		opTimeout = 2 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connect %s: %w", opts.Addr, err)
	}

	log.Infof("connected to parameter store at %s (db %d, namespace %q)", opts.Addr, opts.DB, opts.Namespace)

	return &Redis{
		client:    client,
		namespace: opts.Namespace,
		opTimeout: opTimeout,
		log:       log,
	}, nil
}

func (r *Redis) channelKey(name string) string {
	return r.namespace + ":chan:" + name
}

func (r *Redis) paramKey(name string) string {
	return r.namespace + ":param:" + name
}

// ReadChannel reads one telemetry channel. A missing key or a value that
// does not parse as a float is ErrUnavailable; only transport failures
// surface as other errors.
func (r *Redis) ReadChannel(ctx context.Context, name string) (float64, error) {
	return r.readFloat(ctx, r.channelKey(name))
}

// ReadFlag reads one parameter flag.
func (r *Redis) ReadFlag(ctx context.Context, name string) (float64, error) {
	return r.readFloat(ctx, r.paramKey(name))
}

// WriteFlag sets a parameter flag. The SET must be acknowledged within the
// operation timeout or the write is reported as failed.
func (r *Redis) WriteFlag(ctx context.Context, name string, value float64) error {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	key := r.paramKey(name)
	if err := r.client.Set(ctx, key, strconv.FormatFloat(value, 'f', -1, 64), 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) readFloat(ctx context.Context, key string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	raw, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return 0, ErrUnavailable
	}
	if err != nil {
		return 0, fmt.Errorf("redis get %s: %w", key, err)
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		// Garbled value from the bridge: treat as no data, but leave a
		// trace so a flaky channel can be diagnosed from the logs.
		r.log.Warnf("unparseable value %q at %s", raw, key)
		return 0, ErrUnavailable
	}
	return v, nil
}

// Close releases the redis connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
