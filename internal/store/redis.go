package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

// Open connects to REDIS_URL-style addresses and pings the server.
func Open(ctx context.Context, rawURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := ParseRedisURL(rawURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisStore(rdb, ttl), nil
}

func (s *RedisStore) keySession(id string) string { return "battle:session:" + strings.TrimSpace(id) }
func (s *RedisStore) keyActive() string           { return "battle:index:active" }

func (s *RedisStore) Save(ctx context.Context, rec *SessionRecord) error {
	if rec == nil || strings.TrimSpace(rec.ID) == "" {
		return ErrInvalidRecord
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, s.keySession(rec.ID), raw, s.ttl)
	if rec.Finished() {
		pipe.SRem(ctx, s.keyActive(), rec.ID)
	} else {
		pipe.SAdd(ctx, s.keyActive(), rec.ID)
		pipe.Expire(ctx, s.keyActive(), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save session %s: %w", rec.ID, err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, id string) (*SessionRecord, error) {
	raw, err := s.rdb.Get(ctx, s.keySession(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec SessionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return &rec, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, s.keySession(id))
	pipe.SRem(ctx, s.keyActive(), id)
	_, err := pipe.Exec(ctx)
	return err
}

// ActiveIDs lists unfinished sessions. Entries whose session key has expired
// are pruned from the index on the way.
func (s *RedisStore) ActiveIDs(ctx context.Context) ([]string, error) {
	ids, err := s.rdb.SMembers(ctx, s.keyActive()).Result()
	if err != nil {
		return nil, err
	}
	live := ids[:0]
	for _, id := range ids {
		n, err := s.rdb.Exists(ctx, s.keySession(id)).Result()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			_ = s.rdb.SRem(ctx, s.keyActive(), id).Err()
			continue
		}
		live = append(live, id)
	}
	return live, nil
}

func (s *RedisStore) Close() error { return s.rdb.Close() }

// ParseRedisURL reads redis:// and rediss:// URLs with an optional db path.
func ParseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("redis db %q: %w", p, err)
		}
		db = n
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Username: u.User.Username(), Password: pass, DB: db}, nil
}
