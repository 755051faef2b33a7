package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"time"

	"ticket-core/config"
	"ticket-core/internal/status"
	"ticket-core/models"
	"ticket-core/monitoring"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const reservationExpiryIndex = "reservations:expiry"

// consumeReservationScript moves a reservation from active to consumed,
// re-checking wall-clock expiry inside the script. A hold past its expiry is
// never consumed even when the sweep has not run yet; the script leaves it
// untouched so the sweep's release still fires exactly once.
//
// ARGV[1] = now (unix seconds). Returns 'ok', 'expired', or the current
// status ('missing' when the hash does not exist).
const consumeReservationScript = `
local current = redis.call('HGET', KEYS[1], 'status')
if not current then
  return 'missing'
end
if current ~= 'active' then
  return current
end
local expires = redis.call('HGET', KEYS[1], 'expires_at')
if tonumber(expires) <= tonumber(ARGV[1]) then
  return 'expired'
end
redis.call('HSET', KEYS[1], 'status', 'consumed')
return 'ok'`

// releaseReservationScript fences the release of a hold on its status: only
// a reservation still active transitions, so the sweep and a manual release
// racing each other compensate the ledger at most once.
//
// ARGV[1] = target status (expired|released), ARGV[2] = reservation id.
const releaseReservationScript = `
local current = redis.call('HGET', KEYS[1], 'status')
if current ~= 'active' then
  return 0
end
redis.call('HSET', KEYS[1], 'status', ARGV[1])
redis.call('ZREM', KEYS[2], ARGV[2])
return 1`

// ReservationService converts cart requests into time-boxed holds against the
// inventory ledger and owns their lifecycle until checkout consumes them.
type ReservationService struct {
	Redis     *redis.Client
	inventory *InventoryService
	config    *config.Config
	monitor   *monitoring.Monitor
}

func NewReservationService(redisClient *redis.Client, inventory *InventoryService, cfg *config.Config, monitor *monitoring.Monitor) *ReservationService {
	return &ReservationService{
		Redis:     redisClient,
		inventory: inventory,
		config:    cfg,
		monitor:   monitor,
	}
}

func reservationKey(id string) string {
	return fmt.Sprintf("reservation:%s", id)
}

func customerReservationsKey(customerID string) string {
	return fmt.Sprintf("reservations:customer:%s", customerID)
}

// Reserve attempts every line item against the ledger. If any decrement
// fails, all prior decrements of this call are compensated before the error
// is returned; the caller never observes a partial hold.
func (s *ReservationService) Reserve(ctx context.Context, eventID, customerID string, items []models.LineRequest) (*models.Reservation, error) {
	if len(items) == 0 {
		return nil, status.ErrInvalidQuantity
	}

	var held []models.LineRequest
	for _, item := range items {
		if err := s.inventory.TryDecrement(ctx, eventID, item.TierID, item.Quantity); err != nil {
			s.rollback(ctx, eventID, held)
			s.monitor.TrackReservation("reserve", "rejected")
			return nil, err
		}
		held = append(held, item)
	}

	now := time.Now()
	reservation := &models.Reservation{
		ID:         uuid.NewString(),
		EventID:    eventID,
		CustomerID: customerID,
		Items:      items,
		Status:     models.ReservationActive,
		ExpiresAt:  now.Add(s.config.HoldWindow),
		CreatedAt:  now,
	}

	itemsJSON, err := json.Marshal(items)
	if err != nil {
		s.rollback(ctx, eventID, held)
		return nil, err
	}

	key := reservationKey(reservation.ID)
	if err := s.Redis.HSet(ctx, key, map[string]any{
		"id":          reservation.ID,
		"event_id":    eventID,
		"customer_id": customerID,
		"items":       string(itemsJSON),
		"status":      models.ReservationActive,
		"expires_at":  reservation.ExpiresAt.Unix(),
		"created_at":  now.Unix(),
	}).Err(); err != nil {
		s.rollback(ctx, eventID, held)
		return nil, fmt.Errorf("store reservation: %w", err)
	}

	s.Redis.ZAdd(ctx, reservationExpiryIndex, redis.Z{
		Score:  float64(reservation.ExpiresAt.Unix()),
		Member: reservation.ID,
	})
	s.Redis.SAdd(ctx, customerReservationsKey(customerID), reservation.ID)

	s.monitor.TrackReservation("reserve", "success")
	return reservation, nil
}

// ListByCustomer returns the reservation ids ever held by a customer.
func (s *ReservationService) ListByCustomer(ctx context.Context, customerID string) ([]string, error) {
	return s.Redis.SMembers(ctx, customerReservationsKey(customerID)).Result()
}

func (s *ReservationService) rollback(ctx context.Context, eventID string, held []models.LineRequest) {
	for _, item := range held {
		if err := s.inventory.Increment(ctx, eventID, item.TierID, item.Quantity); err != nil {
			slog.Error("reservation rollback failed", "event_id", eventID, "tier_id", item.TierID, "error", err)
		}
	}
}

// Consume transitions active -> consumed for exactly one checkout attempt.
func (s *ReservationService) Consume(ctx context.Context, reservationID string) (*models.Reservation, error) {
	res, err := s.Redis.Eval(ctx, consumeReservationScript,
		[]string{reservationKey(reservationID)}, time.Now().Unix()).Text()
	if err != nil {
		return nil, fmt.Errorf("consume reservation: %w", err)
	}

	switch res {
	case "ok":
		return s.Get(ctx, reservationID)
	case "expired":
		return nil, status.ErrReservationExpired
	case "missing":
		return nil, status.ErrReservationNotFound
	default:
		return nil, status.ErrReservationNotActive
	}
}

// Release transitions a still-active hold to toStatus and returns the held
// units to the ledger. Safe to call from the sweep and from user actions
// concurrently; only the caller that wins the fenced transition compensates.
func (s *ReservationService) Release(ctx context.Context, reservationID, toStatus string) error {
	reservation, err := s.Get(ctx, reservationID)
	if err != nil {
		return err
	}

	won, err := s.Redis.Eval(ctx, releaseReservationScript,
		[]string{reservationKey(reservationID), reservationExpiryIndex},
		toStatus, reservationID).Int64()
	if err != nil {
		return fmt.Errorf("release reservation: %w", err)
	}
	if won != 1 {
		return status.ErrReservationNotActive
	}

	for _, item := range reservation.Items {
		if err := s.inventory.Increment(ctx, reservation.EventID, item.TierID, item.Quantity); err != nil {
			slog.Error("release compensation failed", "reservation_id", reservationID, "tier_id", item.TierID, "error", err)
		}
	}

	s.monitor.TrackReservation("release", toStatus)
	return nil
}

func (s *ReservationService) Get(ctx context.Context, reservationID string) (*models.Reservation, error) {
	data, err := s.Redis.HGetAll(ctx, reservationKey(reservationID)).Result()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, status.ErrReservationNotFound
	}

	var items []models.LineRequest
	if err := json.Unmarshal([]byte(data["items"]), &items); err != nil {
		return nil, fmt.Errorf("decode reservation items: %w", err)
	}

	expires, _ := parseUnix(data["expires_at"])
	created, _ := parseUnix(data["created_at"])

	return &models.Reservation{
		ID:         data["id"],
		EventID:    data["event_id"],
		CustomerID: data["customer_id"],
		Items:      items,
		Status:     data["status"],
		ExpiresAt:  expires,
		CreatedAt:  created,
	}, nil
}

// SweepExpired runs until ctx is cancelled, releasing overdue holds on every
// tick. Expiry is also enforced lazily at Consume time, so a slow sweep never
// lets an expired hold be checked out.
func (s *ReservationService) SweepExpired(ctx context.Context) {
	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	log.Println("Reservation expiry sweep started")

	for {
		select {
		case <-ticker.C:
			s.sweepOnce(ctx)
		case <-ctx.Done():
			log.Println("Reservation expiry sweep stopping")
			return
		}
	}
}

func (s *ReservationService) sweepOnce(ctx context.Context) {
	now := time.Now().Unix()
	ids, err := s.Redis.ZRangeByScore(ctx, reservationExpiryIndex, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%d", now),
		Count: 100,
	}).Result()
	if err != nil {
		slog.Error("expiry sweep scan failed", "error", err)
		return
	}

	released := 0
	for _, id := range ids {
		err := s.Release(ctx, id, models.ReservationExpired)
		switch err {
		case nil:
			released++
		case status.ErrReservationNotActive, status.ErrReservationNotFound:
			// Lost the race to a checkout or an earlier sweep; drop the index entry.
			s.Redis.ZRem(ctx, reservationExpiryIndex, id)
		default:
			slog.Error("expiry release failed", "reservation_id", id, "error", err)
		}
	}

	if released > 0 {
		log.Printf("Expiry sweep released %d reservations", released)
	}
}

func parseUnix(value string) (time.Time, error) {
	var sec int64
	if _, err := fmt.Sscanf(value, "%d", &sec); err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0), nil
}
