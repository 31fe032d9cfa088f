package sync

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// CompletedDateFormat is the layout of the last-completed-date marker.
const CompletedDateFormat = "2006-01-02"

// TodayUTC returns the current UTC calendar date in CompletedDateFormat.
func TodayUTC() string {
	return time.Now().UTC().Format(CompletedDateFormat)
}

// CursorStore persists the paginated sync cursor across invocations.
// The store, not in-memory state, is the source of truth for where a
// partial sync left off.
type CursorStore interface {
	// NextPage returns the stored next-page token, empty when none.
	NextPage(ctx context.Context) (string, error)
	// Advance persists the next-page token.
	Advance(token string, ctx context.Context) error
	// CompleteDay clears the token and stamps the date as fully synced.
	CompleteDay(date string, ctx context.Context) error
	// LastCompletedDate returns the stamped date, empty when none.
	LastCompletedDate(ctx context.Context) (string, error)
	// Reset clears both keys.
	Reset(ctx context.Context) error
}

// RedisCursorStore is the Redis-backed CursorStore, keyed per deployment
// by prefix.
type RedisCursorStore struct {
	client redis.UniversalClient
	prefix string
}

// ParseRedisURL parses a Redis URL into options, tolerating the
// docker-style host:port form alongside full redis:// URLs.
func ParseRedisURL(rawURL string) (*redis.Options, error) {
	if strings.Count(rawURL, ":") == 1 && !strings.Contains(rawURL, "@") && !strings.Contains(rawURL, "//") {
		return &redis.Options{Addr: rawURL}, nil
	}
	return redis.ParseURL(rawURL)
}

// NewRedisCursorStore connects a cursor store to the given Redis URL.
func NewRedisCursorStore(rawURL string, prefix string) (*RedisCursorStore, error) {
	options, err := ParseRedisURL(rawURL)
	if err != nil {
		return nil, err
	}
	return &RedisCursorStore{
		client: redis.NewClient(options),
		prefix: prefix,
	}, nil
}

func (s *RedisCursorStore) nextPageKey() string {
	return s.prefix + ":cursor:next"
}

func (s *RedisCursorStore) completedKey() string {
	return s.prefix + ":cursor:completed"
}

func (s *RedisCursorStore) NextPage(ctx context.Context) (string, error) {
	token, err := s.client.Get(ctx, s.nextPageKey()).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return token, err
}

func (s *RedisCursorStore) Advance(token string, ctx context.Context) error {
	return s.client.Set(ctx, s.nextPageKey(), token, 0).Err()
}

func (s *RedisCursorStore) CompleteDay(date string, ctx context.Context) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.nextPageKey())
		pipe.Set(ctx, s.completedKey(), date, 0)
		return nil
	})
	return err
}

func (s *RedisCursorStore) LastCompletedDate(ctx context.Context) (string, error) {
	date, err := s.client.Get(ctx, s.completedKey()).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return date, err
}

func (s *RedisCursorStore) Reset(ctx context.Context) error {
	return s.client.Del(ctx, s.nextPageKey(), s.completedKey()).Err()
}
