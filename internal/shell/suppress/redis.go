package suppress

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisOptions configures the shared marker table.
type RedisOptions struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379")
	URL string

	// Prefix namespaces the marker keys.
	// Default: "dynroute:suppress:".
	Prefix string

	// ConnectTimeout is the maximum time to wait for connection establishment
	ConnectTimeout time.Duration
}

// RedisTable is a Table shared by every process using the same Redis. It
// lets several dynroute instances suppress each other's re-entrant builds.
type RedisTable struct {
	client *redis.Client
	prefix string
}

var _ Table = (*RedisTable)(nil)

// releaseScript deletes the key only while it still holds the caller's value.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// NewRedisTable connects to Redis and returns a table.
func NewRedisTable(opts RedisOptions) (*RedisTable, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.Prefix == "" {
		opts.Prefix = "dynroute:suppress:"
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	redisOpts.DialTimeout = opts.ConnectTimeout

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisTable{client: client, prefix: opts.Prefix}, nil
}

func (r *RedisTable) Acquire(ctx context.Context, key string, ttl time.Duration) (Token, bool, error) {
	tok := Token{Key: key, Value: uuid.New().String()}
	ok, err := r.client.SetNX(ctx, r.prefix+key, tok.Value, ttl).Result()
	if err != nil {
		return Token{}, false, fmt.Errorf("failed to acquire marker %s: %w", key, err)
	}
	if !ok {
		return Token{}, false, nil
	}
	return tok, true, nil
}

func (r *RedisTable) Release(ctx context.Context, tok Token) error {
	if err := releaseScript.Run(ctx, r.client, []string{r.prefix + tok.Key}, tok.Value).Err(); err != nil {
		return fmt.Errorf("failed to release marker %s: %w", tok.Key, err)
	}
	return nil
}

// Close closes the Redis connection.
func (r *RedisTable) Close() error {
	return r.client.Close()
}
