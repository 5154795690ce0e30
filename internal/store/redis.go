package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"yuzu/receptionist/internal/types"
)

// RedisStore keeps call sessions as JSON documents. Every save refreshes the
// key TTL, so idle calls expire inside Redis and ExpireIdle is a no-op.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	now    func() time.Time
}

type RedisOption func(*RedisStore)

// WithTTL sets the idle lifetime of a session key. Zero disables expiry.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) { s.ttl = ttl }
}

// WithPrefix sets the key prefix. Default is "receptionist".
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

func NewRedis(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		ttl:    2 * time.Hour,
		prefix: "receptionist",
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(callSid string) string {
	return s.prefix + ":call:" + callSid
}

func (s *RedisStore) GetOrCreate(ctx context.Context, callSid string) (*types.Session, bool, error) {
	sess, err := s.Get(ctx, callSid)
	if err == nil {
		return sess, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	fresh := types.NewSession(callSid, s.now().UTC())
	data, err := json.Marshal(fresh)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal session: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.key(callSid), data, s.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis setnx failed: %w", err)
	}
	if !ok {
		// Another callback for the same call created it first.
		sess, err := s.Get(ctx, callSid)
		return sess, false, err
	}
	metricSessionsCreated.Inc()
	return fresh, true, nil
}

func (s *RedisStore) Get(ctx context.Context, callSid string) (*types.Session, error) {
	if callSid == "" {
		return nil, ErrInvalidID
	}
	data, err := s.client.Get(ctx, s.key(callSid)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	var sess types.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &sess, nil
}

func (s *RedisStore) Save(ctx context.Context, sess *types.Session) error {
	if sess == nil || sess.CallSid == "" {
		return ErrInvalidID
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(sess.CallSid), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, callSid string) error {
	if callSid == "" {
		return ErrInvalidID
	}
	n, err := s.client.Del(ctx, s.key(callSid)).Result()
	if err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	metricSessionsEvicted.WithLabelValues("hangup").Inc()
	return nil
}

func (s *RedisStore) ExpireIdle(context.Context, time.Duration) (int, error) {
	return 0, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
