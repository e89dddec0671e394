package stats

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps event counters in Redis hashes:
//
//	<prefix>:total              field <op>:<outcome>, never expires
//	<prefix>:minute:<yyyymmddhhmm>  same fields, expires after ttl
//	<prefix>:coupon             field <code>, dispensed coupons
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithPrefix sets the key prefix. Surrounding colons are trimmed.
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.prefix = strings.Trim(prefix, ":") }
}

// WithBucketTTL sets how long per-minute buckets live. Zero keeps them forever.
func WithBucketTTL(d time.Duration) RedisOption {
	return func(s *RedisStore) { s.ttl = d }
}

// NewRedisStore creates a RedisStore. A nil client makes Record a no-op.
func NewRedisStore(rdb *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		rdb:    rdb,
		prefix: "coupon:stats",
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Keys returns the total, minute-bucket and coupon keys an event at `at` touches.
func (s *RedisStore) Keys(at time.Time) (total, bucket, coupon string) {
	return s.prefix + ":total",
		fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504")),
		s.prefix + ":coupon"
}

// Record implements Store.
func (s *RedisStore) Record(ctx context.Context, ev Event) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := string(ev.Op) + ":" + string(ev.Outcome)
	totalKey, bucketKey, couponKey := s.Keys(at)

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, totalKey, field, 1)
	pipe.HIncrBy(ctx, bucketKey, field, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, bucketKey, s.ttl)
	}
	if ev.Outcome == OutcomeClaimed && ev.CouponCode != "" {
		pipe.HIncrBy(ctx, couponKey, ev.CouponCode, 1)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record stats in redis: %w", err)
	}
	return nil
}

// Ping checks the Redis connection. A store without a client is always healthy.
func (s *RedisStore) Ping(ctx context.Context) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Ping(ctx).Err()
}
