package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"ticket-core/models"
	"ticket-core/monitoring"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const anomalyListKey = "webhook:anomalies"

// ApplyResult is the tri-state outcome of applying a gateway payment event.
type ApplyResult string

const (
	ResultConfirmed        ApplyResult = "confirmed"
	ResultAlreadyProcessed ApplyResult = "alreadyProcessed"
	ResultRejected         ApplyResult = "rejected"
)

// WebhookService applies gateway payment events to orders exactly once. The
// idempotency witness is a write-once receipt keyed by the gateway payment
// id: whichever delivery creates the receipt owns the order mutation, every
// other delivery of the same payment id is a read-only no-op.
type WebhookService struct {
	Redis   *redis.Client
	Orders  *OrderStore
	issuer  *CredentialService
	notify  *NotifyService
	monitor *monitoring.Monitor
}

func NewWebhookService(redisClient *redis.Client, orders *OrderStore, issuer *CredentialService, notify *NotifyService, monitor *monitoring.Monitor) *WebhookService {
	return &WebhookService{
		Redis:   redisClient,
		Orders:  orders,
		issuer:  issuer,
		notify:  notify,
		monitor: monitor,
	}
}

func receiptKey(paymentID string) string {
	return fmt.Sprintf("webhook:receipt:%s", paymentID)
}

// Apply processes one payment event delivery. It never returns an error for
// integrity problems; those are flagged for operator review and the
// delivery is still acknowledged, so the gateway does not retry-storm us.
func (s *WebhookService) Apply(ctx context.Context, paymentID, orderID, outcome string, amount decimal.Decimal) (ApplyResult, error) {
	receipt := models.WebhookReceipt{
		PaymentID:     paymentID,
		OrderID:       orderID,
		AppliedStatus: outcome,
		ProcessedAt:   time.Now(),
	}
	receiptJSON, err := json.Marshal(receipt)
	if err != nil {
		return ResultRejected, err
	}

	fresh, err := s.Redis.SetNX(ctx, receiptKey(paymentID), receiptJSON, 0).Result()
	if err != nil {
		return ResultRejected, fmt.Errorf("store receipt: %w", err)
	}
	if !fresh {
		s.monitor.TrackWebhook("duplicate")
		return ResultAlreadyProcessed, nil
	}

	order, err := s.Orders.Get(ctx, orderID)
	if err != nil {
		s.flagAnomaly(ctx, paymentID, orderID, "unknown order")
		return ResultRejected, nil
	}

	// Deliveries can arrive out of order; a confirmation racing a re-send
	// that lost the receipt SetNX still must not double-apply.
	if order.Status == models.OrderConfirmed || order.Status == models.OrderCheckedIn {
		s.monitor.TrackWebhook("duplicate")
		return ResultAlreadyProcessed, nil
	}

	if outcome != "succeeded" {
		// The buyer can retry with a fresh charge; the order stays
		// re-payable rather than cancelling and releasing their seats.
		slog.Info("payment failed, order stays pending", "order_id", orderID, "payment_id", paymentID, "outcome", outcome)
		s.monitor.TrackWebhook("failed")
		return ResultRejected, nil
	}

	if !amount.Equal(order.Total) {
		s.flagAnomaly(ctx, paymentID, orderID,
			fmt.Sprintf("amount mismatch: got %s want %s", amount.StringFixed(2), order.Total.StringFixed(2)))
		s.monitor.TrackWebhook("amount_mismatch")
		return ResultRejected, nil
	}

	blocking, err := s.Orders.TransitionStatus(ctx, orderID,
		models.OrderPendingPayment, models.OrderDraft, models.OrderConfirmed)
	if err != nil {
		return ResultRejected, err
	}
	if blocking != "ok" {
		if blocking == models.OrderConfirmed || blocking == models.OrderCheckedIn {
			s.monitor.TrackWebhook("duplicate")
			return ResultAlreadyProcessed, nil
		}
		// cancelled in the meantime
		s.flagAnomaly(ctx, paymentID, orderID, "payment settled for "+blocking+" order")
		return ResultRejected, nil
	}

	if err := s.Orders.SetPaymentRef(ctx, orderID, paymentID); err != nil {
		slog.Error("set payment ref failed", "order_id", orderID, "error", err)
	}
	order.Status = models.OrderConfirmed
	order.PaymentRef = paymentID

	credentials, err := s.issuer.IssueForOrder(ctx, order)
	if err != nil {
		// Confirmation stands; issuance is re-runnable because of the
		// per-unit guards. Flag it so an operator can re-trigger.
		s.flagAnomaly(ctx, paymentID, orderID, "credential issuance failed: "+err.Error())
		return ResultConfirmed, nil
	}

	s.notify.TicketsIssued(order.CustomerID, order.ID, len(credentials))
	s.monitor.TrackWebhook("confirmed")
	return ResultConfirmed, nil
}

// flagAnomaly records an integrity problem for operator review. The webhook
// is still acknowledged to the gateway.
func (s *WebhookService) flagAnomaly(ctx context.Context, paymentID, orderID, reason string) {
	entry, _ := json.Marshal(map[string]any{
		"payment_id": paymentID,
		"order_id":   orderID,
		"reason":     reason,
		"flagged_at": time.Now().Unix(),
	})
	s.Redis.LPush(ctx, anomalyListKey, entry)
	slog.Error("webhook anomaly", "payment_id", paymentID, "order_id", orderID, "reason", reason)
}

// Anomalies returns the most recent flagged integrity problems.
func (s *WebhookService) Anomalies(ctx context.Context, limit int64) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.Redis.LRange(ctx, anomalyListKey, 0, limit-1).Result()
}
