// Package ratelimit provides a Redis-backed fixed-window limiter (INCR +
// EXPIRE). It fails open: a Redis outage never blocks a request.
package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Rule is a limiting policy: key prefix, requests per window and the window.
type Rule struct {
	Key    string
	Limit  int
	Window time.Duration
}

// MessageRule builds the send-message rule.
func MessageRule(limit int, window time.Duration) Rule {
	return Rule{Key: "pulsechat:rl:msg:", Limit: limit, Window: window}
}

// Limiter performs rate limiting checks against Redis.
type Limiter struct {
	client *redis.Client
	log    *zerolog.Logger
}

// NewLimiter creates a Limiter backed by the given Redis client.
func NewLimiter(client *redis.Client, logger *zerolog.Logger) *Limiter {
	return &Limiter{client: client, log: logger}
}

// Allow increments the identifier's counter and reports whether it is still
// within the rule. Redis errors are returned alongside true.
func (l *Limiter) Allow(ctx context.Context, identifier string, rule Rule) (bool, error) {
	if rule.Limit <= 0 {
		return true, nil
	}
	key := rule.Key + identifier

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		l.log.Warn().Err(err).Str("key", key).Msg("ratelimit incr failed, failing open")
		return true, err
	}

	// The first hit opens the window.
	if count == 1 {
		if err := l.client.Expire(ctx, key, rule.Window).Err(); err != nil {
			l.log.Warn().Err(err).Str("key", key).Msg("ratelimit expire failed, failing open")
			l.client.Del(ctx, key)
			return true, err
		}
	}

	return int(count) <= rule.Limit, nil
}

// Remaining returns how many requests the identifier has left in the current
// window. Unknown identifiers have the full limit.
func (l *Limiter) Remaining(ctx context.Context, identifier string, rule Rule) (int, error) {
	count, err := l.client.Get(ctx, rule.Key+identifier).Int()
	if errors.Is(err, redis.Nil) {
		return rule.Limit, nil
	}
	if err != nil {
		return rule.Limit, err
	}
	return max(rule.Limit-count, 0), nil
}

// Close releases the Redis client.
func (l *Limiter) Close() error {
	return l.client.Close()
}
