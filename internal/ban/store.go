// Package ban provides address-based ban management backed by Redis.
// Two kinds of records exist, keyed by client address:
//
//	Key:    permban:<ip>
//	Fields: reason, created_at (epoch ms)
//	Expiry: never (removal is an explicit operator action)
//
//	Key:    tempban:<ip>
//	Fields: reason, expires_at (epoch ms)
//	Expiry: lazy — the first check observed at or past expires_at deletes
//	        the record, atomically, inside a Lua script
package ban

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// PermanentPrefix is the Redis key prefix for permanent ban records.
	PermanentPrefix = "permban:"

	// TempPrefix is the Redis key prefix for temporary suspension records.
	TempPrefix = "tempban:"
)

// Store manages ban records in Redis.
type Store struct {
	client    *redis.Client
	permOnce  *redis.Script
	tempCheck *redis.Script
}

// NewStore creates a ban store using the provided Redis client.
func NewStore(client *redis.Client) *Store {
	return &Store{
		client:    client,
		permOnce:  redis.NewScript(permanentBanLua),
		tempCheck: redis.NewScript(checkTempBanLua),
	}
}

// IsPermanentlyBanned reports whether the address has a permanent ban record.
func (s *Store) IsPermanentlyBanned(ctx context.Context, ip string) (bool, error) {
	n, err := s.client.Exists(ctx, PermanentPrefix+ip).Result()
	if err != nil {
		return false, fmt.Errorf("ban: permanent lookup: %w", err)
	}
	return n > 0, nil
}

// BanPermanently inserts a permanent ban for the address. The insert is
// idempotent: if a record already exists it is left untouched and false is
// returned.
func (s *Store) BanPermanently(ctx context.Context, ip, reason string) (bool, error) {
	created, err := s.permOnce.Run(ctx, s.client,
		[]string{PermanentPrefix + ip},
		reason, time.Now().UnixMilli(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("ban: permanent insert: %w", err)
	}
	return created == 1, nil
}

// Unban removes a permanent ban. There is no client-facing command for this;
// it exists for operators and tests.
func (s *Store) Unban(ctx context.Context, ip string) error {
	if err := s.client.Del(ctx, PermanentPrefix+ip).Err(); err != nil {
		return fmt.Errorf("ban: unban: %w", err)
	}
	return nil
}

// CheckTempBan reports whether the address is currently suspended and, if
// so, for how much longer. An expired record is deleted as a side effect and
// the address is admitted. Lookup, expiry comparison and deletion run in a
// single Lua script so two interleaved checks cannot race.
func (s *Store) CheckTempBan(ctx context.Context, ip string) (bool, time.Duration, error) {
	res, err := s.tempCheck.Run(ctx, s.client,
		[]string{TempPrefix + ip},
		time.Now().UnixMilli(),
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("ban: temp check: %w", err)
	}
	if len(res) != 2 || res[0] == 0 {
		return false, 0, nil
	}
	return true, time.Duration(res[1]) * time.Millisecond, nil
}

// SuspendUntil upserts a temporary suspension for the address. A new
// suspension replaces any existing one (last write wins, at most one record
// per address).
func (s *Store) SuspendUntil(ctx context.Context, ip, reason string, expiresAt int64) error {
	err := s.client.HSet(ctx, TempPrefix+ip,
		"reason", reason,
		"expires_at", expiresAt,
	).Err()
	if err != nil {
		return fmt.Errorf("ban: temp upsert: %w", err)
	}
	return nil
}

// RemoveTempBan deletes a temporary suspension explicitly. Normally the lazy
// expiry in CheckTempBan takes care of this; the method exists for operators
// and tests.
func (s *Store) RemoveTempBan(ctx context.Context, ip string) error {
	if err := s.client.Del(ctx, TempPrefix+ip).Err(); err != nil {
		return fmt.Errorf("ban: temp remove: %w", err)
	}
	return nil
}

// permanentBanLua inserts a permanent ban only if none exists yet.
// Returns 1 if the record was created, 0 if one was already present.
const permanentBanLua = `
if redis.call('EXISTS', KEYS[1]) == 1 then
    return 0
end
redis.call('HSET', KEYS[1], 'reason', ARGV[1], 'created_at', ARGV[2])
return 1
`

// checkTempBanLua checks a temp-ban record against the current time and
// deletes it when expired. Returns {0, 0} when the address is admitted and
// {1, remaining_ms} when it is still suspended.
const checkTempBanLua = `
local exp = redis.call('HGET', KEYS[1], 'expires_at')
if not exp then
    return {0, 0}
end
local now = tonumber(ARGV[1])
exp = tonumber(exp)
if now >= exp then
    redis.call('DEL', KEYS[1])
    return {0, 0}
end
return {1, exp - now}
`
