package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Store struct {
	rdb    *redis.Client
	prefix string
}

func New(addr, password string, db int) *Store {
	return &Store{
		rdb: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		prefix: "schoolhub:",
	}
}

// NewWithClient wraps an existing client.
func NewWithClient(rdb *redis.Client) *Store {
	return &Store{rdb: rdb, prefix: "schoolhub:"}
}

func (s *Store) Ping(ctx context.Context) error {
	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.rdb.Ping(cctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) analyticsKey(teacherID, courseID uint64) string {
	return fmt.Sprintf("%sanalytics:%d:%d", s.prefix, teacherID, courseID)
}

// Get returns the cached analysis payload for (teacher, course).
func (s *Store) Get(ctx context.Context, teacherID, courseID uint64) ([]byte, bool, error) {
	b, err := s.rdb.Get(ctx, s.analyticsKey(teacherID, courseID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

// SetIfAbsent stores payload with SETNX so a concurrent writer never replaces
// an earlier analysis.
func (s *Store) SetIfAbsent(ctx context.Context, teacherID, courseID uint64, payload []byte, ttl time.Duration) error {
	return s.rdb.SetNX(ctx, s.analyticsKey(teacherID, courseID), payload, ttl).Err()
}
