package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ticket-core/config"
	"ticket-core/internal/status"
	"ticket-core/models"
	"ticket-core/monitoring"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// Scan denial reasons, mapped to short operator-facing phrases at the
// transport layer.
const (
	DenyInvalidSignature  = "invalid_signature"
	DenyEventMismatch     = "event_mismatch"
	DenyOrderNotConfirmed = "order_not_confirmed"
	DenyCancelled         = "cancelled"
	DenyAlreadyUsed       = "already_used"
	DenyOwnershipRevoked  = "ownership_revoked"
)

// consumeCredentialScript performs the single race-sensitive step of a scan:
// issued -> consumed, recording when and by whom. Two simultaneous scans of
// the same credential yield exactly one 'ok'.
//
// ARGV[1] = now (unix), ARGV[2] = scanner id. Returns 'ok', 'already_used',
// 'missing', or the blocking status.
const consumeCredentialScript = `
local current = redis.call('HGET', KEYS[1], 'status')
if not current then
  return 'missing'
end
if current == 'consumed' then
  return 'already_used'
end
if current ~= 'issued' then
  return current
end
redis.call('HSET', KEYS[1], 'status', 'consumed', 'consumed_at', ARGV[1], 'consumed_by', ARGV[2])
return 'ok'`

// walkUpSaleScript is the door-side sale: one script decrements the tier and
// materializes an order plus an already-consumed credential, so a walk-up
// buyer can never oversell a tier or hold a replayable QR.
//
// KEYS: inventory hash, order hash, credential hash, order-credentials set.
// Returns 1, or -1 on insufficient inventory, -2 on unknown tier.
const walkUpSaleScript = `
local remaining = redis.call('HGET', KEYS[1], 'remaining')
if not remaining then
  return -2
end
if tonumber(remaining) < 1 then
  return -1
end
redis.call('HINCRBY', KEYS[1], 'remaining', -1)
redis.call('HSET', KEYS[2],
  'id', ARGV[1], 'reservation_id', '', 'customer_id', ARGV[2], 'event_id', ARGV[3],
  'lines', ARGV[4], 'total', ARGV[5], 'currency', ARGV[6], 'status', 'checked_in',
  'payment_ref', ARGV[7], 'buyer', ARGV[8], 'created_at', ARGV[9])
redis.call('HSET', KEYS[3],
  'id', ARGV[10], 'order_id', ARGV[1], 'event_id', ARGV[3], 'tier_id', ARGV[11],
  'unit_id', ARGV[12], 'owner_id', ARGV[2], 'status', 'consumed',
  'consumed_at', ARGV[9], 'consumed_by', ARGV[13], 'issued_at', ARGV[9])
redis.call('SADD', KEYS[4], ARGV[10])
return 1`

// ScanResult is what the door scanner shows the operator.
type ScanResult struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
	// Denial context for already_used: who consumed it and when.
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
	ConsumedBy string     `json:"consumed_by,omitempty"`
	// Ticket info shown on approval.
	Credential *models.Credential `json:"credential,omitempty"`
}

// ScanService is the door-side entry validator. All checks are read-only
// except the final fenced consume.
type ScanService struct {
	Redis       *redis.Client
	Orders      *OrderStore
	credentials *CredentialService
	catalog     Catalog
	config      *config.Config
	monitor     *monitoring.Monitor
}

func NewScanService(redisClient *redis.Client, orders *OrderStore, credentials *CredentialService, catalog Catalog, cfg *config.Config, monitor *monitoring.Monitor) *ScanService {
	return &ScanService{
		Redis:       redisClient,
		Orders:      orders,
		credentials: credentials,
		catalog:     catalog,
		config:      cfg,
		monitor:     monitor,
	}
}

func (s *ScanService) deny(reason string) *ScanResult {
	s.monitor.TrackScan(reason)
	return &ScanResult{Approved: false, Reason: reason}
}

// Scan validates a presented QR payload for an event and, when everything
// checks out, consumes the credential exactly once.
func (s *ScanService) Scan(ctx context.Context, payload, eventID, scannerID string) (*ScanResult, error) {
	claims, err := s.credentials.Verify(payload)
	if err != nil {
		return s.deny(DenyInvalidSignature), nil
	}

	credential, err := s.credentials.Get(ctx, claims.ID)
	if err == status.ErrCredentialNotFound {
		// Signed by us but unknown here: treat as forged.
		return s.deny(DenyInvalidSignature), nil
	} else if err != nil {
		return nil, err
	}

	if credential.EventID != eventID {
		return s.deny(DenyEventMismatch), nil
	}

	// Ownership is validated against the record, not the payload: a payload
	// minted before a transfer carries a stale owner and must be refused.
	if claims.OwnerID != "" && claims.OwnerID != credential.OwnerID {
		return s.deny(DenyOwnershipRevoked), nil
	}

	order, err := s.Orders.Get(ctx, credential.OrderID)
	if err != nil {
		return nil, err
	}
	switch order.Status {
	case models.OrderConfirmed, models.OrderCheckedIn:
		// proceed
	case models.OrderCancelled:
		return s.deny(DenyCancelled), nil
	default:
		return s.deny(DenyOrderNotConfirmed), nil
	}

	res, err := s.Redis.Eval(ctx, consumeCredentialScript,
		[]string{credentialKey(credential.ID)},
		time.Now().Unix(), scannerID).Text()
	if err != nil {
		return nil, fmt.Errorf("consume credential: %w", err)
	}

	switch res {
	case "ok":
		s.afterApproval(ctx, credential, scannerID)
		now := time.Now()
		credential.Status = models.CredentialConsumed
		credential.ConsumedAt = &now
		credential.ConsumedBy = scannerID
		s.monitor.TrackScan("approved")
		return &ScanResult{Approved: true, Credential: credential}, nil

	case "already_used":
		// Surface the original consumption so the door operator can tell a
		// replay from an honest double-tap.
		used, err := s.credentials.Get(ctx, credential.ID)
		if err != nil {
			return nil, err
		}
		result := s.deny(DenyAlreadyUsed)
		result.ConsumedAt = used.ConsumedAt
		result.ConsumedBy = used.ConsumedBy
		return result, nil

	case models.CredentialFrozen, models.CredentialEscrowed,
		models.CredentialSuperseded, models.CredentialRevoked:
		return s.deny(DenyOwnershipRevoked), nil

	default:
		return s.deny(DenyInvalidSignature), nil
	}
}

func (s *ScanService) afterApproval(ctx context.Context, credential *models.Credential, scannerID string) {
	// First approved scan of an order moves it to checked_in; later scans of
	// sibling credentials find it there already, which is fine.
	if _, err := s.Orders.TransitionStatus(ctx, credential.OrderID,
		models.OrderConfirmed, "", models.OrderCheckedIn); err != nil {
		slog.Error("check-in transition failed", "order_id", credential.OrderID, "error", err)
	}

	slog.Info("credential consumed", "credential_id", credential.ID, "scanner_id", scannerID)
}

// WalkUpSale sells one unit at the door with no pre-existing order. The
// inventory decrement and the synthesized, already-consumed order/credential
// pair happen in a single atomic step.
func (s *ScanService) WalkUpSale(ctx context.Context, eventID, tierID, scannerID string, buyer models.BuyerDetails) (*models.Order, *models.Credential, error) {
	prices, err := s.catalog.TierPrices(ctx, eventID)
	if err != nil {
		return nil, nil, err
	}
	price, ok := prices[tierID]
	if !ok {
		return nil, nil, status.ErrInvalidItem
	}

	now := time.Now()
	orderID := uuid.NewString()
	credentialID := uuid.NewString()
	customerID := "walkup-" + uuid.NewString()
	unitID := fmt.Sprintf("%s/%s/1", orderID, tierID)

	lines := []models.OrderLine{{TierID: tierID, Quantity: 1, UnitPrice: price}}
	linesJSON := fmt.Sprintf(`[{"tier_id":%q,"quantity":1,"unit_price":%q}]`, tierID, price.StringFixed(2))
	buyerJSON := fmt.Sprintf(`{"name":%q,"email":%q}`, buyer.Name, buyer.Email)

	res, err := s.Redis.Eval(ctx, walkUpSaleScript,
		[]string{
			tierKey(eventID, tierID),
			orderKey(orderID),
			credentialKey(credentialID),
			orderCredentialsKey(orderID),
		},
		orderID, customerID, eventID, linesJSON, price.StringFixed(2), s.config.Currency,
		"walkup", buyerJSON, now.Unix(), credentialID, tierID, unitID, scannerID,
	).Int64()
	if err != nil {
		return nil, nil, fmt.Errorf("walk-up sale: %w", err)
	}

	switch res {
	case -2:
		return nil, nil, status.ErrInvalidItem
	case -1:
		return nil, nil, status.ErrInsufficientInventory
	}

	order := &models.Order{
		ID:         orderID,
		CustomerID: customerID,
		EventID:    eventID,
		Lines:      lines,
		Total:      price.Mul(decimal.NewFromInt(1)),
		Currency:   s.config.Currency,
		Status:     models.OrderCheckedIn,
		PaymentRef: "walkup",
		Buyer:      buyer,
		CreatedAt:  now,
	}

	credential := &models.Credential{
		ID:           credentialID,
		OrderID:      orderID,
		EventID:      eventID,
		TierID:       tierID,
		TicketUnitID: unitID,
		OwnerID:      customerID,
		Status:       models.CredentialConsumed,
		ConsumedAt:   &now,
		ConsumedBy:   scannerID,
		IssuedAt:     now,
	}

	// Signed for the receipt trail only; the credential is already consumed.
	if payload, err := s.credentials.Sign(credential); err == nil {
		credential.Payload = payload
	}

	s.monitor.TrackScan("walkup_sold")
	return order, credential, nil
}
