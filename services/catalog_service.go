package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ticket-core/models"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const priceCacheTTL = time.Minute

// CatalogService reads events and tiers out of the database. Prices are
// cached briefly in Redis because checkout reprices every order; capacity
// counters are NOT read here, they live in the inventory ledger.
type CatalogService struct {
	app   core.App
	Redis *redis.Client
}

func NewCatalogService(app core.App, redisClient *redis.Client) *CatalogService {
	return &CatalogService{app: app, Redis: redisClient}
}

func priceCacheKey(eventID string) string {
	return fmt.Sprintf("catalog:prices:%s", eventID)
}

// EventByID loads one event.
func (s *CatalogService) EventByID(ctx context.Context, eventID string) (*models.Event, error) {
	record, err := s.app.FindRecordById("events", eventID)
	if err != nil {
		return nil, fmt.Errorf("find event: %w", err)
	}

	return &models.Event{
		ID:        record.Id,
		Name:      record.GetString("name"),
		Venue:     record.GetString("venue"),
		StartTime: record.GetDateTime("start_time").Time(),
		EndTime:   record.GetDateTime("end_time").Time(),
		Status:    record.GetString("status"),
	}, nil
}

// TiersByEvent loads the sellable tiers of an event. Remaining stays zero
// here; callers who need live counts ask the inventory ledger.
func (s *CatalogService) TiersByEvent(ctx context.Context, eventID string) ([]models.InventoryTier, error) {
	records, err := s.app.FindAllRecords("tiers", dbx.HashExp{"event_id": eventID})
	if err != nil {
		return nil, fmt.Errorf("find tiers: %w", err)
	}

	tiers := make([]models.InventoryTier, 0, len(records))
	for _, record := range records {
		price, err := decimal.NewFromString(record.GetString("price"))
		if err != nil {
			return nil, fmt.Errorf("tier %s price: %w", record.Id, err)
		}
		tiers = append(tiers, models.InventoryTier{
			ID:            record.Id,
			EventID:       eventID,
			Name:          record.GetString("name"),
			Price:         price,
			TotalCapacity: int64(record.GetInt("total_capacity")),
		})
	}
	return tiers, nil
}

// TierPrices returns tier id -> unit price for an event, served from the
// Redis cache when fresh.
func (s *CatalogService) TierPrices(ctx context.Context, eventID string) (map[string]decimal.Decimal, error) {
	if cached, err := s.Redis.Get(ctx, priceCacheKey(eventID)).Result(); err == nil {
		var raw map[string]string
		if json.Unmarshal([]byte(cached), &raw) == nil {
			prices := make(map[string]decimal.Decimal, len(raw))
			ok := true
			for id, value := range raw {
				price, err := decimal.NewFromString(value)
				if err != nil {
					ok = false
					break
				}
				prices[id] = price
			}
			if ok {
				return prices, nil
			}
		}
	}

	tiers, err := s.TiersByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	prices := make(map[string]decimal.Decimal, len(tiers))
	raw := make(map[string]string, len(tiers))
	for _, tier := range tiers {
		prices[tier.ID] = tier.Price
		raw[tier.ID] = tier.Price.String()
	}

	if encoded, err := json.Marshal(raw); err == nil {
		s.Redis.Set(ctx, priceCacheKey(eventID), encoded, priceCacheTTL)
	}

	return prices, nil
}

// InvalidatePrices drops the cached prices for an event, used after an admin
// edits tiers.
func (s *CatalogService) InvalidatePrices(ctx context.Context, eventID string) {
	s.Redis.Del(ctx, priceCacheKey(eventID))
}
