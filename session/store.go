package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/serverhub/hubauth/internal"
)

// ErrRedisUnavailable is returned when Redis cannot serve a request in time.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrNotFound is returned when a presented secret matches no stored session.
var ErrNotFound = errors.New("session not found")

// ErrExpired is returned when the presented secret matched a session whose
// absolute expiry had passed. The record is deleted before this is returned.
var ErrExpired = fmt.Errorf("%w: expired", ErrNotFound)

const (
	// DefaultTTL is the absolute lifetime of a session.
	DefaultTTL = time.Hour
	// DefaultPrefix namespaces the session keys.
	DefaultPrefix = "hubauth:sess"

	secretHexLen = internal.SessionSecretSize * 2
)

const deleteRecordScript = `
local removed = redis.call("HDEL", KEYS[1], ARGV[1])
redis.call("SREM", KEYS[2], ARGV[1])
return removed
`

var deleteRecordLua = redis.NewScript(deleteRecordScript)

const revokeUserScript = `
local ids = redis.call("SMEMBERS", KEYS[2])
local removed = 0
for _, id in ipairs(ids) do
  removed = removed + redis.call("HDEL", KEYS[1], id)
end
redis.call("DEL", KEYS[2])
return removed
`

var revokeUserLua = redis.NewScript(revokeUserScript)

// Options configures a [Store].
type Options struct {
	// Prefix namespaces keys. The prefix is wrapped in a hash tag so every key
	// lands on one cluster slot.
	Prefix string
	// TTL is the absolute session lifetime measured from issuance.
	TTL time.Duration
	// HashCost is the bcrypt cost used for secret hashes.
	HashCost int
	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

// Store issues, resolves and revokes hub sessions in Redis.
//
// Every record lives as one field of a single Redis hash keyed by a random
// record ID, with a per-user set indexing the IDs of each user. Secrets are
// stored only as bcrypt hashes with independent salts, so resolving a
// presented secret compares it against every stored hash taken from one
// HGETALL snapshot. The cost grows linearly with the number of live sessions.
type Store struct {
	redis    redis.UniversalClient
	prefix   string
	ttl      time.Duration
	hashCost int
	now      func() time.Time
}

// NewStore creates a session [Store] backed by the given Redis client.
func NewStore(rdb redis.UniversalClient, opts Options) (*Store, error) {
	if rdb == nil {
		return nil, errors.New("session: redis client is required")
	}
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.TTL == 0 {
		opts.TTL = DefaultTTL
	}
	if opts.TTL < 0 {
		return nil, errors.New("session: ttl must be > 0")
	}
	if opts.HashCost == 0 {
		opts.HashCost = bcrypt.DefaultCost
	}
	if opts.HashCost < bcrypt.MinCost || opts.HashCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("session: hash cost must be in [%d,%d]", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Store{
		redis:    rdb,
		prefix:   "{" + opts.Prefix + "}",
		ttl:      opts.TTL,
		hashCost: opts.HashCost,
		now:      opts.Now,
	}, nil
}

// TTL returns the absolute session lifetime.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

func (s *Store) recordsKey() string {
	return s.prefix + ":records"
}

func (s *Store) userKey(username string) string {
	return s.prefix + ":user:" + username
}

// Issue creates a session for username and returns the plaintext secret. The
// secret is returned exactly once; only its hash is persisted.
//
//	Performance: 1 bcrypt hash + 1 MULTI (HSET + SADD).
func (s *Store) Issue(ctx context.Context, username string) (string, Info, error) {
	if username == "" {
		return "", Info{}, errors.New("session: username is required")
	}

	secret, err := internal.NewSessionSecret()
	if err != nil {
		return "", Info{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.hashCost)
	if err != nil {
		return "", Info{}, err
	}

	now := s.now()
	rec := &Record{
		ID:         uuid.NewString(),
		Username:   username,
		SecretHash: hash,
		CreatedAt:  now.UnixMilli(),
		ExpiresAt:  now.Add(s.ttl).UnixMilli(),
	}
	data, err := Encode(rec)
	if err != nil {
		return "", Info{}, err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.recordsKey(), rec.ID, data)
		pipe.SAdd(ctx, s.userKey(username), rec.ID)
		return nil
	})
	if err != nil {
		return "", Info{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return secret, rec.info(), nil
}

// Resolve returns the session the presented secret belongs to. A match whose
// expiry has passed is deleted and reported as [ErrExpired].
//
//	Performance: 1 HGETALL + up to N bcrypt comparisons.
func (s *Store) Resolve(ctx context.Context, secret string) (Info, error) {
	rec, err := s.match(ctx, secret)
	if err != nil {
		return Info{}, err
	}

	if rec.expired(s.now()) {
		if err := s.deleteRecord(ctx, rec.ID, rec.Username); err != nil {
			return Info{}, err
		}
		return Info{}, ErrExpired
	}

	return rec.info(), nil
}

// Revoke deletes the session identified by the presented secret. Unknown and
// expired secrets return [ErrNotFound]; an expired match is still deleted.
func (s *Store) Revoke(ctx context.Context, secret string) (Info, error) {
	rec, err := s.match(ctx, secret)
	if err != nil {
		return Info{}, err
	}

	if err := s.deleteRecord(ctx, rec.ID, rec.Username); err != nil {
		return Info{}, err
	}
	if rec.expired(s.now()) {
		return Info{}, ErrExpired
	}
	return rec.info(), nil
}

// RevokeID deletes the session with record ID id. It serves callers that
// already resolved the secret and skips the hash scan. An expired record is
// still deleted and reported as [ErrExpired].
//
//	Performance: 1 HGET + 1 Lua EVALSHA.
func (s *Store) RevokeID(ctx context.Context, id string) (Info, error) {
	raw, err := s.redis.HGet(ctx, s.recordsKey(), id).Result()
	if errors.Is(err, redis.Nil) {
		return Info{}, ErrNotFound
	}
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	rec, err := Decode(id, []byte(raw))
	if err != nil {
		return Info{}, ErrNotFound
	}

	removed, err := deleteRecordLua.Run(ctx, s.redis, []string{s.recordsKey(), s.userKey(rec.Username)}, id).Int64()
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if removed == 0 {
		return Info{}, ErrNotFound
	}
	if rec.expired(s.now()) {
		return Info{}, ErrExpired
	}
	return rec.info(), nil
}

// RevokeAll atomically deletes every session of username and returns how many
// records were removed.
//
//	Performance: 1 Lua EVALSHA.
func (s *Store) RevokeAll(ctx context.Context, username string) (int, error) {
	removed, err := revokeUserLua.Run(ctx, s.redis, []string{s.recordsKey(), s.userKey(username)}).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(removed), nil
}

// Count returns the number of stored session records, expired ones included.
func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.redis.HLen(ctx, s.recordsKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(n), nil
}

// ForUser lists the unexpired sessions of username, oldest first.
func (s *Store) ForUser(ctx context.Context, username string) ([]Info, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(username)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(ids) == 0 {
		return []Info{}, nil
	}

	values, err := s.redis.HMGet(ctx, s.recordsKey(), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	now := s.now()
	out := make([]Info, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		rec, err := Decode(ids[i], []byte(raw))
		if err != nil || rec.expired(now) {
			continue
		}
		out = append(out, rec.info())
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// PurgeExpired deletes every expired record without comparing secrets and
// returns how many were removed.
func (s *Store) PurgeExpired(ctx context.Context) (int, error) {
	entries, err := s.redis.HGetAll(ctx, s.recordsKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	now := s.now()
	purged := 0
	for id, raw := range entries {
		rec, err := Decode(id, []byte(raw))
		if err != nil || !rec.expired(now) {
			continue
		}
		if err := s.deleteRecord(ctx, rec.ID, rec.Username); err != nil {
			return purged, err
		}
		purged++
	}
	return purged, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func (s *Store) match(ctx context.Context, secret string) (*Record, error) {
	if len(secret) != secretHexLen {
		return nil, ErrNotFound
	}

	entries, err := s.redis.HGetAll(ctx, s.recordsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	presented := []byte(secret)
	for id, raw := range entries {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		rec, err := Decode(id, []byte(raw))
		if err != nil {
			continue
		}
		if bcrypt.CompareHashAndPassword(rec.SecretHash, presented) == nil {
			return rec, nil
		}
	}

	return nil, ErrNotFound
}

func (s *Store) deleteRecord(ctx context.Context, id, username string) error {
	_, err := deleteRecordLua.Run(ctx, s.redis, []string{s.recordsKey(), s.userKey(username)}, id).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
