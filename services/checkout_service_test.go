package services

import (
	"context"
	"testing"
	"time"

	"ticket-core/config"
	"ticket-core/internal/gateway"
	"ticket-core/internal/status"
	"ticket-core/models"

	"github.com/go-redis/redismock/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubGateway records charge intent calls and replies with a canned response.
type stubGateway struct {
	calls  int
	intent *gateway.ChargeIntent
	err    error
}

func (g *stubGateway) GetProvider() gateway.Provider { return gateway.ProviderMemory }

func (g *stubGateway) CreateChargeIntent(ctx context.Context, req *gateway.ChargeIntentRequest) (*gateway.ChargeIntent, error) {
	g.calls++
	return g.intent, g.err
}

func (g *stubGateway) VerifySignature(body []byte, signature string) bool { return true }

func (g *stubGateway) Refund(ctx context.Context, paymentID string, amount decimal.Decimal) error {
	return nil
}

func (g *stubGateway) Close(ctx context.Context) error { return nil }

func newCheckoutServiceForTest(gw *stubGateway, prices map[string]decimal.Decimal) (*CheckoutService, redismock.ClientMock) {
	db, mock := redismock.NewClientMock()
	svc := &CheckoutService{
		Orders:       &OrderStore{Redis: db},
		reservations: &ReservationService{Redis: db, inventory: &InventoryService{Redis: db}, config: &config.Config{}},
		inventory:    &InventoryService{Redis: db},
		catalog:      &stubCatalog{prices: prices},
		gateway:      gw,
		issuer:       &CredentialService{Redis: db, secret: []byte("test-signing-secret")},
		config:       &config.Config{Currency: "INR", GatewayTimeout: 5 * time.Second},
	}
	return svc, mock
}

func reservationHashForCheckout(items, reservationStatus string) map[string]string {
	return map[string]string{
		"id":          "res-1",
		"event_id":    "ev-1",
		"customer_id": "cust-1",
		"items":       items,
		"status":      reservationStatus,
		"expires_at":  "1756100600",
		"created_at":  "1756100000",
	}
}

func expectConsumedReservation(mock redismock.ClientMock, items string) {
	mock.ExpectHGetAll("reservation:res-1").SetVal(reservationHashForCheckout(items, models.ReservationActive))
	mock.CustomMatch(matchAnyArgs).
		ExpectEval(consumeReservationScript, []string{"reservation:res-1"}, int64(0)).SetVal("ok")
	mock.ExpectHGetAll("reservation:res-1").SetVal(reservationHashForCheckout(items, models.ReservationConsumed))
}

func TestInitiateZeroTotalSkipsGateway(t *testing.T) {
	gw := &stubGateway{}
	svc, mock := newCheckoutServiceForTest(gw, map[string]decimal.Decimal{
		"comp": decimal.Zero,
	})

	expectConsumedReservation(mock, `[{"tier_id":"comp","quantity":1}]`)
	mock.CustomMatch(matchAnyArgs).
		ExpectHSet("order:any",
			"id", "any", "reservation_id", "any", "customer_id", "any", "event_id", "any",
			"lines", "any", "total", "any", "currency", "any", "status", "any",
			"payment_ref", "any", "buyer", "any", "created_at", "any").SetVal(1)
	mock.CustomMatch(matchAnyArgs).
		ExpectSetNX("credential:unit:any", "any", 0).SetVal(true)
	mock.CustomMatch(matchAnyArgs).
		ExpectHSet("credential:any",
			"id", "any", "order_id", "any", "event_id", "any", "tier_id", "any",
			"unit_id", "any", "owner_id", "any", "status", "any",
			"consumed_at", "any", "consumed_by", "any", "issued_at", "any").SetVal(1)
	mock.CustomMatch(matchAnyArgs).
		ExpectSAdd("credentials:order:any", "any").SetVal(1)

	result, err := svc.Initiate(context.Background(), "res-1", "cust-1", models.BuyerDetails{Name: "A", Email: "a@example.com"})

	require.NoError(t, err)
	assert.Equal(t, models.OrderConfirmed, result.Order.Status)
	assert.Nil(t, result.Intent)
	assert.Len(t, result.Credentials, 1)
	assert.Zero(t, gw.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInitiateOpensChargeIntent(t *testing.T) {
	gw := &stubGateway{intent: &gateway.ChargeIntent{IntentID: "int-1"}}
	svc, mock := newCheckoutServiceForTest(gw, map[string]decimal.Decimal{
		"vip": decimal.RequireFromString("100.00"),
	})

	expectConsumedReservation(mock, `[{"tier_id":"vip","quantity":2}]`)
	mock.CustomMatch(matchAnyArgs).
		ExpectHSet("order:any",
			"id", "any", "reservation_id", "any", "customer_id", "any", "event_id", "any",
			"lines", "any", "total", "any", "currency", "any", "status", "any",
			"payment_ref", "any", "buyer", "any", "created_at", "any").SetVal(1)
	mock.CustomMatch(matchAnyArgs).
		ExpectHSet("order:any", "payment_ref", "int-1").SetVal(1)

	result, err := svc.Initiate(context.Background(), "res-1", "cust-1", models.BuyerDetails{Name: "A", Email: "a@example.com"})

	require.NoError(t, err)
	assert.Equal(t, models.OrderPendingPayment, result.Order.Status)
	assert.True(t, result.Order.Total.Equal(decimal.RequireFromString("200.00")))
	require.NotNil(t, result.Intent)
	assert.Equal(t, "int-1", result.Intent.IntentID)
	assert.Equal(t, "int-1", result.Order.PaymentRef)
	assert.Equal(t, 1, gw.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInitiateGatewayDownLeavesOrderPending(t *testing.T) {
	gw := &stubGateway{err: status.ErrGatewayUnavailable}
	svc, mock := newCheckoutServiceForTest(gw, map[string]decimal.Decimal{
		"vip": decimal.RequireFromString("100.00"),
	})

	expectConsumedReservation(mock, `[{"tier_id":"vip","quantity":1}]`)
	mock.CustomMatch(matchAnyArgs).
		ExpectHSet("order:any",
			"id", "any", "reservation_id", "any", "customer_id", "any", "event_id", "any",
			"lines", "any", "total", "any", "currency", "any", "status", "any",
			"payment_ref", "any", "buyer", "any", "created_at", "any").SetVal(1)

	result, err := svc.Initiate(context.Background(), "res-1", "cust-1", models.BuyerDetails{Name: "A", Email: "a@example.com"})

	assert.ErrorIs(t, err, status.ErrGatewayUnavailable)
	require.NotNil(t, result)
	assert.Equal(t, models.OrderPendingPayment, result.Order.Status)
	assert.Nil(t, result.Intent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInitiateWrongOwnerKeepsHold(t *testing.T) {
	svc, mock := newCheckoutServiceForTest(&stubGateway{}, nil)

	// The hold is never consumed for a caller who does not own it.
	mock.ExpectHGetAll("reservation:res-1").
		SetVal(reservationHashForCheckout(`[{"tier_id":"vip","quantity":1}]`, models.ReservationActive))

	_, err := svc.Initiate(context.Background(), "res-1", "cust-other", models.BuyerDetails{Name: "A", Email: "a@example.com"})

	assert.ErrorIs(t, err, status.ErrNotOwner)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInitiateUnknownTierReleasesHold(t *testing.T) {
	svc, mock := newCheckoutServiceForTest(&stubGateway{}, map[string]decimal.Decimal{
		"vip": decimal.RequireFromString("100.00"),
	})

	expectConsumedReservation(mock, `[{"tier_id":"vip","quantity":1},{"tier_id":"retired","quantity":2}]`)
	mock.ExpectEval(incrementScript, []string{"inventory:ev-1:vip"}, int64(1)).SetVal(int64(10))
	mock.ExpectEval(incrementScript, []string{"inventory:ev-1:retired"}, int64(2)).SetVal(int64(5))

	_, err := svc.Initiate(context.Background(), "res-1", "cust-1", models.BuyerDetails{Name: "A", Email: "a@example.com"})

	assert.ErrorIs(t, err, status.ErrInvalidItem)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelReturnsInventory(t *testing.T) {
	svc, mock := newCheckoutServiceForTest(&stubGateway{}, nil)

	mock.ExpectEval(casOrderStatusScript, []string{"order:ord-1"},
		models.OrderDraft, models.OrderPendingPayment, models.OrderCancelled).SetVal("ok")
	mock.ExpectHGetAll("order:ord-1").SetVal(map[string]string{
		"id":          "ord-1",
		"customer_id": "cust-1",
		"event_id":    "ev-1",
		"lines":       `[{"tier_id":"vip","quantity":2,"unit_price":"100.00"}]`,
		"total":       "200.00",
		"currency":    "INR",
		"status":      models.OrderCancelled,
		"created_at":  "1756100000",
	})
	mock.ExpectEval(incrementScript, []string{"inventory:ev-1:vip"}, int64(2)).SetVal(int64(10))

	err := svc.Cancel(context.Background(), "ord-1", "user_cancelled")

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelConfirmedOrderRefused(t *testing.T) {
	svc, mock := newCheckoutServiceForTest(&stubGateway{}, nil)

	mock.ExpectEval(casOrderStatusScript, []string{"order:ord-1"},
		models.OrderDraft, models.OrderPendingPayment, models.OrderCancelled).SetVal(models.OrderConfirmed)

	err := svc.Cancel(context.Background(), "ord-1", "user_cancelled")

	assert.ErrorIs(t, err, status.ErrOrderNotCancellable)
	assert.NoError(t, mock.ExpectationsWereMet())
}
