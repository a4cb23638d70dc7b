package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/segyhp/lending-ledger/internal/domain"
)

// versionTTL bounds how long a loan's generation counter outlives its last
// invalidation. It must exceed the longest read-through.
const versionTTL = 24 * time.Hour

// writes the snapshot only if the generation is still the one the reader saw
var setIfVersionScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1]) or "0"
if current ~= ARGV[1] then
	return 0
end
redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
return 1
`)

// LoanCache keeps read-side snapshots of loans and their schedules in Redis.
// Every invalidation bumps a per-loan generation counter, and a snapshot is
// only stored when the generation it was read under is still current. A
// reader racing a repayment therefore cannot put back a stale snapshot.
type LoanCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewLoanCache(client redis.Cmdable, ttl time.Duration) *LoanCache {
	return &LoanCache{client: client, ttl: ttl}
}

func loanKey(loanID uuid.UUID) string {
	return fmt.Sprintf("loan:%s", loanID)
}

func versionKey(loanID uuid.UUID) string {
	return fmt.Sprintf("loan:%s:version", loanID)
}

// Get returns the cached snapshot. A miss is reported as (nil, false, nil).
func (c *LoanCache) Get(ctx context.Context, loanID uuid.UUID) (*domain.LoanDetails, bool, error) {
	raw, err := c.client.Get(ctx, loanKey(loanID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var details domain.LoanDetails
	if err := json.Unmarshal(raw, &details); err != nil {
		return nil, false, fmt.Errorf("corrupt cache entry for loan %s: %w", loanID, err)
	}
	return &details, true, nil
}

// Version returns the loan's current cache generation. Read it before loading
// the loan from storage and hand it to Set.
func (c *LoanCache) Version(ctx context.Context, loanID uuid.UUID) (int64, error) {
	version, err := c.client.Get(ctx, versionKey(loanID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return version, err
}

// Set stores the snapshot if no invalidation happened since version was read.
// It reports whether the snapshot was stored.
func (c *LoanCache) Set(ctx context.Context, details *domain.LoanDetails, version int64) (bool, error) {
	raw, err := json.Marshal(details)
	if err != nil {
		return false, err
	}

	keys := []string{versionKey(details.Loan.ID), loanKey(details.Loan.ID)}
	stored, err := setIfVersionScript.Run(ctx, c.client, keys, version, raw, c.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return stored == 1, nil
}

// Invalidate drops the snapshot and moves the loan to a new generation.
func (c *LoanCache) Invalidate(ctx context.Context, loanID uuid.UUID) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, versionKey(loanID))
		pipe.Expire(ctx, versionKey(loanID), versionTTL)
		pipe.Del(ctx, loanKey(loanID))
		return nil
	})
	return err
}
