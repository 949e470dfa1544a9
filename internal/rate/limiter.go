package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds throttle tuning parameters.
type Config struct {
	Prefix string

	MaxLoginAttempts      int
	LoginWindow           time.Duration
	EnableAddressThrottle bool

	MaxRegistrationsPerAddress int
	RegistrationWindow         time.Duration
}

// Limiter enforces fixed-window login and registration budgets with Redis
// counters. A nil *Limiter allows everything.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "hubauth:rl"
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

func (l *Limiter) loginUserKey(username string) string {
	return l.config.Prefix + ":lu:" + username
}

func (l *Limiter) loginAddressKey(address string) string {
	return l.config.Prefix + ":la:" + address
}

func (l *Limiter) registrationKey(address string) string {
	return l.config.Prefix + ":reg:" + address
}

// CheckLogin reports [ErrRateLimited] when the username, or the address when
// address throttling is on, has used up its failed-login budget.
func (l *Limiter) CheckLogin(ctx context.Context, username, address string) error {
	if l == nil {
		return nil
	}
	if err := l.checkCounter(ctx, l.loginUserKey(username), l.config.MaxLoginAttempts); err != nil {
		return err
	}

	if l.config.EnableAddressThrottle && address != "" {
		if err := l.checkCounter(ctx, l.loginAddressKey(address), l.config.MaxLoginAttempts); err != nil {
			return err
		}
	}

	return nil
}

// RecordLoginFailure counts one failed login for the username and address.
func (l *Limiter) RecordLoginFailure(ctx context.Context, username, address string) error {
	if l == nil {
		return nil
	}
	if _, err := l.incrementWithTTL(ctx, l.loginUserKey(username), l.config.LoginWindow); err != nil {
		return err
	}

	if l.config.EnableAddressThrottle && address != "" {
		if _, err := l.incrementWithTTL(ctx, l.loginAddressKey(address), l.config.LoginWindow); err != nil {
			return err
		}
	}

	return nil
}

// ResetLogin clears the username counter after a successful login. The
// address counter is left to expire so one good account cannot launder
// guesses against others from the same address.
func (l *Limiter) ResetLogin(ctx context.Context, username string) error {
	if l == nil {
		return nil
	}
	if err := l.redis.Del(ctx, l.loginUserKey(username)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// AllowRegistration consumes one registration from the address budget.
func (l *Limiter) AllowRegistration(ctx context.Context, address string) error {
	if l == nil || address == "" || l.config.MaxRegistrationsPerAddress <= 0 {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, l.registrationKey(address), l.config.RegistrationWindow)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxRegistrationsPerAddress) {
		return ErrRateLimited
	}
	return nil
}

// LoginAttempts returns the current failed-attempt counter for a username.
// Missing keys return zero and do not reveal account existence.
func (l *Limiter) LoginAttempts(ctx context.Context, username string) (int, error) {
	if l == nil {
		return 0, nil
	}
	count, err := l.redis.Get(ctx, l.loginUserKey(username)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) checkCounter(ctx context.Context, key string, maxAttempts int) error {
	if maxAttempts <= 0 {
		return nil
	}

	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count >= int64(maxAttempts) {
		return ErrRateLimited
	}

	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed window: the TTL is set only on the first hit.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
