package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/newtron-network/cmlkit/pkg/util"
)

// DefaultRedisKey is the list events are appended to.
const DefaultRedisKey = "cmlkit:audit"

// RedisConfig configures a RedisLogger.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Key      string
	MaxLen   int64 // keep only the newest MaxLen events; 0 keeps all
	Timeout  time.Duration
}

// RedisLogger appends events to a Redis list so several processes can
// share one audit trail.
type RedisLogger struct {
	client  *redis.Client
	key     string
	maxLen  int64
	timeout time.Duration
}

// NewRedisLogger connects to Redis and verifies the connection.
func NewRedisLogger(cfg RedisConfig) (*RedisLogger, error) {
	if cfg.Key == "" {
		cfg.Key = DefaultRedisKey
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	l := &RedisLogger{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		key:     cfg.Key,
		maxLen:  cfg.MaxLen,
		timeout: cfg.Timeout,
	}

	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	if err := l.client.Ping(ctx).Err(); err != nil {
		l.client.Close()
		return nil, fmt.Errorf("connecting to audit redis at %s: %w", cfg.Addr, err)
	}
	return l, nil
}

// Log appends the event and trims the list to MaxLen in one transaction.
func (l *RedisLogger) Log(event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding audit event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	pipe := l.client.TxPipeline()
	pipe.RPush(ctx, l.key, data)
	if l.maxLen > 0 {
		pipe.LTrim(ctx, l.key, -l.maxLen, -1)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return fmt.Errorf("appending audit event: %w", err)
	}
	return nil
}

// Query reads the whole list, oldest first, and filters it locally.
func (l *RedisLogger) Query(filter Filter) ([]*Event, error) {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	raw, err := l.client.LRange(ctx, l.key, 0, -1).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("reading audit events: %w", err)
	}

	var events []*Event
	for i, entry := range raw {
		var event Event
		if err := json.Unmarshal([]byte(entry), &event); err != nil {
			util.Warnf("audit: skipping malformed redis entry %d: %v", i, err)
			continue
		}
		if filter.Matches(&event) {
			events = append(events, &event)
		}
	}
	return filter.page(events), nil
}

// Close closes the connection.
func (l *RedisLogger) Close() error {
	return l.client.Close()
}
