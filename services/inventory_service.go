package services

import (
	"context"
	"fmt"

	"ticket-core/internal/status"

	"github.com/redis/go-redis/v9"
)

// tryDecrementScript conditionally takes qty units from a tier. The check and
// the decrement happen inside one script so concurrent callers serialize at
// the store and the sum of successful decrements can never exceed capacity.
//
// Returns the new remaining count, -1 on insufficient capacity, -2 when the
// tier is unknown.
const tryDecrementScript = `
local remaining = redis.call('HGET', KEYS[1], 'remaining')
if not remaining then
  return -2
end
if tonumber(remaining) < tonumber(ARGV[1]) then
  return -1
end
return redis.call('HINCRBY', KEYS[1], 'remaining', -ARGV[1])`

// incrementScript releases qty units back to a tier, clamped to the tier's
// total capacity so compensation bugs cannot inflate inventory.
const incrementScript = `
local total = redis.call('HGET', KEYS[1], 'total')
if not total then
  return -2
end
local remaining = redis.call('HINCRBY', KEYS[1], 'remaining', ARGV[1])
if remaining > tonumber(total) then
  redis.call('HSET', KEYS[1], 'remaining', total)
  return tonumber(total)
end
return remaining`

// InventoryService is the single writer of per-tier remaining counters. No
// caller reads remaining and writes it back; every mutation goes through one
// of the two scripts above.
type InventoryService struct {
	Redis *redis.Client
}

func NewInventoryService(redisClient *redis.Client) *InventoryService {
	return &InventoryService{Redis: redisClient}
}

func tierKey(eventID, tierID string) string {
	return fmt.Sprintf("inventory:%s:%s", eventID, tierID)
}

// Seed loads or resets a tier counter from the catalog. Operator/bootstrap
// path only.
func (s *InventoryService) Seed(ctx context.Context, eventID, tierID string, total int64) error {
	return s.Redis.HSet(ctx, tierKey(eventID, tierID), map[string]any{
		"remaining": total,
		"total":     total,
	}).Err()
}

func (s *InventoryService) TryDecrement(ctx context.Context, eventID, tierID string, qty int64) error {
	if qty <= 0 {
		return status.ErrInvalidQuantity
	}

	res, err := s.Redis.Eval(ctx, tryDecrementScript, []string{tierKey(eventID, tierID)}, qty).Int64()
	if err != nil {
		return fmt.Errorf("inventory decrement: %w", err)
	}

	switch res {
	case -2:
		return status.ErrInvalidItem
	case -1:
		return status.ErrInsufficientInventory
	}

	return nil
}

func (s *InventoryService) Increment(ctx context.Context, eventID, tierID string, qty int64) error {
	if qty <= 0 {
		return status.ErrInvalidQuantity
	}

	res, err := s.Redis.Eval(ctx, incrementScript, []string{tierKey(eventID, tierID)}, qty).Int64()
	if err != nil {
		return fmt.Errorf("inventory release: %w", err)
	}

	if res == -2 {
		return status.ErrInvalidItem
	}

	return nil
}

func (s *InventoryService) Remaining(ctx context.Context, eventID, tierID string) (int64, error) {
	remaining, err := s.Redis.HGet(ctx, tierKey(eventID, tierID), "remaining").Int64()
	if err == redis.Nil {
		return 0, status.ErrInvalidItem
	} else if err != nil {
		return 0, err
	}

	return remaining, nil
}
