package services

import (
	"context"
	"encoding/json"
	"fmt"

	"ticket-core/internal/status"
	"ticket-core/models"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// casOrderStatusScript transitions an order's status only from one of the two
// allowed source states (ARGV[2] may be empty). Returns 'ok' on transition,
// 'missing' for an unknown order, otherwise the current status. All order
// state-machine movement funnels through this script so concurrent writers
// serialize at the store.
const casOrderStatusScript = `
local current = redis.call('HGET', KEYS[1], 'status')
if not current then
  return 'missing'
end
if current == ARGV[1] or (ARGV[2] ~= '' and current == ARGV[2]) then
  redis.call('HSET', KEYS[1], 'status', ARGV[3])
  return 'ok'
end
return current`

// OrderStore owns the order hashes in Redis. Checkout, the webhook guard,
// and the entry validator all mutate order status exclusively through
// TransitionStatus.
type OrderStore struct {
	Redis *redis.Client
}

func NewOrderStore(redisClient *redis.Client) *OrderStore {
	return &OrderStore{Redis: redisClient}
}

func orderKey(id string) string {
	return fmt.Sprintf("order:%s", id)
}

func (s *OrderStore) Save(ctx context.Context, order *models.Order) error {
	linesJSON, err := json.Marshal(order.Lines)
	if err != nil {
		return err
	}
	buyerJSON, err := json.Marshal(order.Buyer)
	if err != nil {
		return err
	}

	return s.Redis.HSet(ctx, orderKey(order.ID), map[string]any{
		"id":             order.ID,
		"reservation_id": order.ReservationID,
		"customer_id":    order.CustomerID,
		"event_id":       order.EventID,
		"lines":          string(linesJSON),
		"total":          order.Total.StringFixed(2),
		"currency":       order.Currency,
		"status":         order.Status,
		"payment_ref":    order.PaymentRef,
		"buyer":          string(buyerJSON),
		"created_at":     order.CreatedAt.Unix(),
	}).Err()
}

func (s *OrderStore) Get(ctx context.Context, orderID string) (*models.Order, error) {
	data, err := s.Redis.HGetAll(ctx, orderKey(orderID)).Result()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, status.ErrOrderNotFound
	}

	var lines []models.OrderLine
	if err := json.Unmarshal([]byte(data["lines"]), &lines); err != nil {
		return nil, fmt.Errorf("decode order lines: %w", err)
	}
	var buyer models.BuyerDetails
	if data["buyer"] != "" {
		if err := json.Unmarshal([]byte(data["buyer"]), &buyer); err != nil {
			return nil, fmt.Errorf("decode buyer: %w", err)
		}
	}

	total, err := decimal.NewFromString(data["total"])
	if err != nil {
		return nil, fmt.Errorf("decode order total: %w", err)
	}

	created, _ := parseUnix(data["created_at"])

	return &models.Order{
		ID:            data["id"],
		ReservationID: data["reservation_id"],
		CustomerID:    data["customer_id"],
		EventID:       data["event_id"],
		Lines:         lines,
		Total:         total,
		Currency:      data["currency"],
		Status:        data["status"],
		PaymentRef:    data["payment_ref"],
		Buyer:         buyer,
		CreatedAt:     created,
	}, nil
}

// TransitionStatus CASes status from one of from1/from2 (from2 may be empty)
// to the target state. Returns the blocking status when the transition loses.
func (s *OrderStore) TransitionStatus(ctx context.Context, orderID, from1, from2, to string) (string, error) {
	res, err := s.Redis.Eval(ctx, casOrderStatusScript, []string{orderKey(orderID)}, from1, from2, to).Text()
	if err != nil {
		return "", fmt.Errorf("order transition: %w", err)
	}
	if res == "missing" {
		return "", status.ErrOrderNotFound
	}
	return res, nil
}

// SetPaymentRef records the gateway charge id on an order.
func (s *OrderStore) SetPaymentRef(ctx context.Context, orderID, ref string) error {
	return s.Redis.HSet(ctx, orderKey(orderID), "payment_ref", ref).Err()
}
