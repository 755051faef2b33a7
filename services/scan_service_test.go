package services

import (
	"context"
	"testing"
	"time"

	"ticket-core/config"
	"ticket-core/internal/status"
	"ticket-core/models"

	"github.com/go-redis/redismock/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubCatalog serves fixed tier prices without a database.
type stubCatalog struct {
	prices map[string]decimal.Decimal
}

func (c *stubCatalog) TierPrices(ctx context.Context, eventID string) (map[string]decimal.Decimal, error) {
	return c.prices, nil
}

func newScanServiceForTest() (*ScanService, redismock.ClientMock) {
	db, mock := redismock.NewClientMock()
	credentials := &CredentialService{Redis: db, secret: []byte("test-signing-secret"), legacy: true}
	svc := &ScanService{
		Redis:       db,
		Orders:      &OrderStore{Redis: db},
		credentials: credentials,
		catalog:     &stubCatalog{prices: map[string]decimal.Decimal{"ga": decimal.RequireFromString("50.00")}},
		config:      &config.Config{Currency: "INR"},
	}
	return svc, mock
}

func signedPayload(t *testing.T, svc *ScanService, credential *models.Credential) string {
	t.Helper()
	payload, err := svc.credentials.Sign(credential)
	require.NoError(t, err)
	return payload
}

func issuedCredentialHash() map[string]string {
	return map[string]string{
		"id":        "cred-1",
		"order_id":  "ord-1",
		"event_id":  "ev-1",
		"tier_id":   "vip",
		"unit_id":   "ord-1/vip/1",
		"owner_id":  "cust-1",
		"status":    models.CredentialIssued,
		"issued_at": "1756100000",
	}
}

func confirmedOrderHashForScan() map[string]string {
	return map[string]string{
		"id":          "ord-1",
		"customer_id": "cust-1",
		"event_id":    "ev-1",
		"lines":       `[{"tier_id":"vip","quantity":1,"unit_price":"100.00"}]`,
		"total":       "100.00",
		"currency":    "INR",
		"status":      models.OrderConfirmed,
		"created_at":  "1756100000",
	}
}

func TestScanApproved(t *testing.T) {
	svc, mock := newScanServiceForTest()

	payload := signedPayload(t, svc, &models.Credential{
		ID: "cred-1", OrderID: "ord-1", EventID: "ev-1",
		TierID: "vip", TicketUnitID: "ord-1/vip/1", OwnerID: "cust-1",
		IssuedAt: time.Unix(1756100000, 0),
	})

	mock.ExpectHGetAll("credential:cred-1").SetVal(issuedCredentialHash())
	mock.ExpectHGetAll("order:ord-1").SetVal(confirmedOrderHashForScan())
	mock.CustomMatch(matchAnyArgs).
		ExpectEval(consumeCredentialScript, []string{"credential:cred-1"}, int64(0), "gate-1").SetVal("ok")
	mock.ExpectEval(casOrderStatusScript, []string{"order:ord-1"},
		models.OrderConfirmed, "", models.OrderCheckedIn).SetVal("ok")

	result, err := svc.Scan(context.Background(), payload, "ev-1", "gate-1")

	require.NoError(t, err)
	assert.True(t, result.Approved)
	require.NotNil(t, result.Credential)
	assert.Equal(t, models.CredentialConsumed, result.Credential.Status)
	assert.Equal(t, "gate-1", result.Credential.ConsumedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScanAlreadyUsedReportsFirstConsumption(t *testing.T) {
	svc, mock := newScanServiceForTest()

	payload := signedPayload(t, svc, &models.Credential{
		ID: "cred-1", OrderID: "ord-1", EventID: "ev-1", OwnerID: "cust-1",
		IssuedAt: time.Unix(1756100000, 0),
	})

	consumed := issuedCredentialHash()
	consumed["status"] = models.CredentialConsumed
	consumed["consumed_at"] = "1756103600"
	consumed["consumed_by"] = "gate-2"

	mock.ExpectHGetAll("credential:cred-1").SetVal(issuedCredentialHash())
	mock.ExpectHGetAll("order:ord-1").SetVal(confirmedOrderHashForScan())
	mock.CustomMatch(matchAnyArgs).
		ExpectEval(consumeCredentialScript, []string{"credential:cred-1"}, int64(0), "gate-1").SetVal("already_used")
	mock.ExpectHGetAll("credential:cred-1").SetVal(consumed)

	result, err := svc.Scan(context.Background(), payload, "ev-1", "gate-1")

	require.NoError(t, err)
	assert.False(t, result.Approved)
	assert.Equal(t, DenyAlreadyUsed, result.Reason)
	assert.Equal(t, "gate-2", result.ConsumedBy)
	require.NotNil(t, result.ConsumedAt)
	assert.Equal(t, int64(1756103600), result.ConsumedAt.Unix())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScanEventMismatch(t *testing.T) {
	svc, mock := newScanServiceForTest()

	payload := signedPayload(t, svc, &models.Credential{
		ID: "cred-1", OrderID: "ord-1", EventID: "ev-1", OwnerID: "cust-1",
		IssuedAt: time.Unix(1756100000, 0),
	})

	mock.ExpectHGetAll("credential:cred-1").SetVal(issuedCredentialHash())

	result, err := svc.Scan(context.Background(), payload, "ev-other", "gate-1")

	require.NoError(t, err)
	assert.False(t, result.Approved)
	assert.Equal(t, DenyEventMismatch, result.Reason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScanForgedPayload(t *testing.T) {
	svc, mock := newScanServiceForTest()

	result, err := svc.Scan(context.Background(), "not-a-real-payload", "ev-1", "gate-1")

	require.NoError(t, err)
	assert.False(t, result.Approved)
	assert.Equal(t, DenyInvalidSignature, result.Reason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScanStaleOwnerPayload(t *testing.T) {
	svc, mock := newScanServiceForTest()

	payload := signedPayload(t, svc, &models.Credential{
		ID: "cred-1", OrderID: "ord-1", EventID: "ev-1", OwnerID: "cust-1",
		IssuedAt: time.Unix(1756100000, 0),
	})

	transferred := issuedCredentialHash()
	transferred["owner_id"] = "cust-2"

	mock.ExpectHGetAll("credential:cred-1").SetVal(transferred)

	result, err := svc.Scan(context.Background(), payload, "ev-1", "gate-1")

	require.NoError(t, err)
	assert.False(t, result.Approved)
	assert.Equal(t, DenyOwnershipRevoked, result.Reason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScanCancelledOrder(t *testing.T) {
	svc, mock := newScanServiceForTest()

	payload := signedPayload(t, svc, &models.Credential{
		ID: "cred-1", OrderID: "ord-1", EventID: "ev-1", OwnerID: "cust-1",
		IssuedAt: time.Unix(1756100000, 0),
	})

	cancelled := confirmedOrderHashForScan()
	cancelled["status"] = models.OrderCancelled

	mock.ExpectHGetAll("credential:cred-1").SetVal(issuedCredentialHash())
	mock.ExpectHGetAll("order:ord-1").SetVal(cancelled)

	result, err := svc.Scan(context.Background(), payload, "ev-1", "gate-1")

	require.NoError(t, err)
	assert.False(t, result.Approved)
	assert.Equal(t, DenyCancelled, result.Reason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalkUpSale(t *testing.T) {
	svc, mock := newScanServiceForTest()

	mock.CustomMatch(matchAnyArgs).
		ExpectEval(walkUpSaleScript, []string{"any", "any", "any", "any"},
			"any", "any", "any", "any", "any", "any", "any", "any", "any", "any",
			"any", "any", "any").SetVal(int64(1))

	order, credential, err := svc.WalkUpSale(context.Background(), "ev-1", "ga", "gate-1",
		models.BuyerDetails{Name: "Door Buyer", Email: "door@example.com"})

	require.NoError(t, err)
	assert.Equal(t, models.OrderCheckedIn, order.Status)
	assert.Equal(t, "walkup", order.PaymentRef)
	assert.True(t, order.Total.Equal(decimal.RequireFromString("50.00")))
	assert.Equal(t, models.CredentialConsumed, credential.Status)
	assert.Equal(t, "gate-1", credential.ConsumedBy)
	assert.NotEmpty(t, credential.Payload)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalkUpSaleUnknownTier(t *testing.T) {
	svc, mock := newScanServiceForTest()

	_, _, err := svc.WalkUpSale(context.Background(), "ev-1", "ghost", "gate-1",
		models.BuyerDetails{Name: "Door Buyer", Email: "door@example.com"})

	assert.ErrorIs(t, err, status.ErrInvalidItem)
	assert.NoError(t, mock.ExpectationsWereMet())
}
