package state

import (
	"context"
	"fmt"
	"time"

	"github.com/KamdynS/promptline/llm"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisStore keeps each session's transcript in a Redis LIST.
type RedisStore struct {
	rdb redis.Cmdable
	ns  string
	// MaxMessages bounds history length per session; 0 disables trimming.
	MaxMessages int
	// TTL expires idle sessions; 0 keeps them forever.
	TTL time.Duration
	log zerolog.Logger
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr" validate:"required"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db" validate:"gte=0"`
	Namespace   string        `mapstructure:"namespace"`
	MaxMessages int           `mapstructure:"max_messages" validate:"gte=0"`
	TTL         time.Duration `mapstructure:"ttl"`
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig, log zerolog.Logger) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, Username: cfg.Username, Password: cfg.Password, DB: cfg.DB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("state: connect redis %s: %w", cfg.Addr, err)
	}
	s := NewRedisStoreFromClient(rdb, cfg.Namespace)
	s.MaxMessages = cfg.MaxMessages
	s.TTL = cfg.TTL
	s.log = log.With().Str("component", "state").Logger()
	return s, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(rdb redis.Cmdable, namespace string) *RedisStore {
	if namespace == "" {
		namespace = "promptline"
	}
	return &RedisStore{rdb: rdb, ns: namespace, log: zerolog.Nop()}
}

func (s *RedisStore) key(sessionID string) string {
	return fmt.Sprintf("%s:chat:%s", s.ns, sessionID)
}

// Append implements Store. Messages are encoded before anything is
// written, so a message that cannot be stored leaves the session unchanged.
func (s *RedisStore) Append(ctx context.Context, sessionID string, msgs ...llm.ChatMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	vals := make([]any, 0, len(msgs))
	for _, m := range msgs {
		b, err := encodeMessage(m)
		if err != nil {
			return err
		}
		vals = append(vals, string(b))
	}
	key := s.key(sessionID)
	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, key, vals...)
	if s.MaxMessages > 0 {
		pipe.LTrim(ctx, key, -int64(s.MaxMessages), -1)
	}
	if s.TTL > 0 {
		pipe.Expire(ctx, key, s.TTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("state: append %s: %w", sessionID, err)
	}
	return nil
}

// Messages implements Store. Entries that fail to decode are skipped and
// logged.
func (s *RedisStore) Messages(ctx context.Context, sessionID string, n int) ([]llm.ChatMessage, error) {
	start := int64(0)
	if n > 0 {
		start = -int64(n)
	}
	vals, err := s.rdb.LRange(ctx, s.key(sessionID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("state: read %s: %w", sessionID, err)
	}
	out := make([]llm.ChatMessage, 0, len(vals))
	for _, v := range vals {
		m, err := decodeMessage([]byte(v))
		if err != nil {
			s.log.Warn().Err(err).Str("session", sessionID).Msg("skipping undecodable message")
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	return s.rdb.Del(ctx, s.key(sessionID)).Err()
}

// Client returns the underlying redis client for components that share the
// connection.
func (s *RedisStore) Client() redis.Cmdable { return s.rdb }
