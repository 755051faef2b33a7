package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"ticket-core/config"
	"ticket-core/internal/gateway"
	"ticket-core/internal/status"
	"ticket-core/models"
	"ticket-core/monitoring"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Catalog is the read-only event/venue lookup this core consumes. The full
// implementation sits in CatalogService; checkout only needs prices and the
// event's sale status.
type Catalog interface {
	TierPrices(ctx context.Context, eventID string) (map[string]decimal.Decimal, error)
}

// CheckoutService drives a reservation through payment initiation to a
// finalized order. It owns the order state machine together with the webhook
// guard (pending_payment -> confirmed) and the entry validator
// (confirmed -> checked_in).
type CheckoutService struct {
	Orders       *OrderStore
	reservations *ReservationService
	inventory    *InventoryService
	catalog      Catalog
	gateway      gateway.Gateway
	issuer       *CredentialService
	notify       *NotifyService
	config       *config.Config
	monitor      *monitoring.Monitor
}

func NewCheckoutService(
	orders *OrderStore,
	reservations *ReservationService,
	inventory *InventoryService,
	catalog Catalog,
	gw gateway.Gateway,
	issuer *CredentialService,
	notify *NotifyService,
	cfg *config.Config,
	monitor *monitoring.Monitor,
) *CheckoutService {
	return &CheckoutService{
		Orders:       orders,
		reservations: reservations,
		inventory:    inventory,
		catalog:      catalog,
		gateway:      gw,
		issuer:       issuer,
		notify:       notify,
		config:       cfg,
		monitor:      monitor,
	}
}

type InitiateResult struct {
	Order       *models.Order         `json:"order"`
	Intent      *gateway.ChargeIntent `json:"payment_intent,omitempty"`
	Credentials []models.Credential   `json:"credentials,omitempty"`
}

// Initiate consumes a reservation and opens an order. A zero total skips the
// gateway entirely and confirms on the spot. A reservation that cannot be
// consumed (expired, already checked out) is a terminal error; the caller
// must re-reserve.
func (s *CheckoutService) Initiate(ctx context.Context, reservationID, customerID string, buyer models.BuyerDetails) (*InitiateResult, error) {
	held, err := s.reservations.Get(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	// Ownership is checked before the hold is consumed so a bad caller
	// cannot burn someone else's reservation.
	if held.CustomerID != customerID {
		return nil, status.ErrNotOwner
	}

	reservation, err := s.reservations.Consume(ctx, reservationID)
	if err != nil {
		return nil, err
	}

	// The hold is consumed now: release and sweep are fenced out, so any
	// failure before an order hash exists must return the units itself.
	prices, err := s.catalog.TierPrices(ctx, reservation.EventID)
	if err != nil {
		s.releaseLines(ctx, reservation.EventID, reservation.Items)
		return nil, err
	}

	total := decimal.Zero
	lines := make([]models.OrderLine, 0, len(reservation.Items))
	for _, item := range reservation.Items {
		price, ok := prices[item.TierID]
		if !ok {
			s.releaseLines(ctx, reservation.EventID, reservation.Items)
			return nil, status.ErrInvalidItem
		}
		lines = append(lines, models.OrderLine{
			TierID:    item.TierID,
			Quantity:  item.Quantity,
			UnitPrice: price,
		})
		total = total.Add(price.Mul(decimal.NewFromInt(item.Quantity)))
	}

	order := &models.Order{
		ID:            uuid.NewString(),
		ReservationID: reservation.ID,
		CustomerID:    customerID,
		EventID:       reservation.EventID,
		Lines:         lines,
		Total:         total,
		Currency:      s.config.Currency,
		Status:        models.OrderPendingPayment,
		Buyer:         buyer,
		CreatedAt:     time.Now(),
	}

	// Fully discounted orders confirm immediately; no gateway round trip.
	if total.IsZero() {
		order.Status = models.OrderConfirmed
		if err := s.Orders.Save(ctx, order); err != nil {
			s.releaseLines(ctx, reservation.EventID, reservation.Items)
			return nil, err
		}

		credentials, err := s.issuer.IssueForOrder(ctx, order)
		if err != nil {
			return nil, err
		}
		s.notify.TicketsIssued(customerID, order.ID, len(credentials))

		return &InitiateResult{Order: order, Credentials: credentials}, nil
	}

	if err := s.Orders.Save(ctx, order); err != nil {
		s.releaseLines(ctx, reservation.EventID, reservation.Items)
		return nil, err
	}

	gwCtx, cancel := context.WithTimeout(ctx, s.config.GatewayTimeout)
	defer cancel()

	started := time.Now()
	intent, err := s.gateway.CreateChargeIntent(gwCtx, &gateway.ChargeIntentRequest{
		Amount:    total,
		Currency:  order.Currency,
		Reference: order.ID,
		Buyer:     buyer.Email,
	})
	s.monitor.TrackGatewayCall(time.Since(started))

	if err != nil {
		// The order stays pending_payment: if the charge actually went
		// through on the gateway side, the webhook guard resolves it; the
		// caller retries initiation of payment, never the order creation.
		slog.Warn("charge intent failed, order left pending", "order_id", order.ID, "error", err)
		if errors.Is(err, status.ErrGatewayTimeout) || errors.Is(err, status.ErrGatewayUnavailable) {
			return &InitiateResult{Order: order}, err
		}
		return &InitiateResult{Order: order}, status.ErrGatewayUnavailable
	}

	if err := s.Orders.SetPaymentRef(ctx, order.ID, intent.IntentID); err != nil {
		return nil, err
	}
	order.PaymentRef = intent.IntentID

	return &InitiateResult{Order: order, Intent: intent}, nil
}

// Cancel aborts an order from draft or pending_payment and returns its units
// to the ledger. The fenced transition makes the compensation exactly-once
// under a cancel/webhook race.
func (s *CheckoutService) Cancel(ctx context.Context, orderID, reason string) error {
	blocking, err := s.Orders.TransitionStatus(ctx, orderID,
		models.OrderDraft, models.OrderPendingPayment, models.OrderCancelled)
	if err != nil {
		return err
	}
	if blocking != "ok" {
		return status.ErrOrderNotCancellable
	}

	order, err := s.Orders.Get(ctx, orderID)
	if err != nil {
		return err
	}

	for _, line := range order.Lines {
		if err := s.inventory.Increment(ctx, order.EventID, line.TierID, line.Quantity); err != nil {
			slog.Error("cancel compensation failed", "order_id", orderID, "tier_id", line.TierID, "error", err)
		}
	}

	slog.Info("order cancelled", "order_id", orderID, "reason", reason)
	return nil
}

// releaseLines returns a consumed reservation's units to the ledger when
// checkout fails before an order exists to compensate through.
func (s *CheckoutService) releaseLines(ctx context.Context, eventID string, items []models.LineRequest) {
	for _, item := range items {
		if err := s.inventory.Increment(ctx, eventID, item.TierID, item.Quantity); err != nil {
			slog.Error("checkout compensation failed", "event_id", eventID, "tier_id", item.TierID, "error", err)
		}
	}
}
