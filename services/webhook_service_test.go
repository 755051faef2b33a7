package services

import (
	"context"
	"testing"

	"ticket-core/models"

	"github.com/go-redis/redismock/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// matchAnyArgs ignores argument-level matching for expectations whose payloads
// embed wall-clock timestamps or generated ids.
func matchAnyArgs(expected, actual []interface{}) error {
	return nil
}

func newWebhookServiceForTest() (*WebhookService, redismock.ClientMock) {
	db, mock := redismock.NewClientMock()
	svc := &WebhookService{
		Redis:  db,
		Orders: &OrderStore{Redis: db},
		issuer: &CredentialService{Redis: db, secret: []byte("test-signing-secret")},
	}
	return svc, mock
}

func pendingOrderHash(total string) map[string]string {
	return map[string]string{
		"id":          "ord-1",
		"customer_id": "cust-1",
		"event_id":    "ev-1",
		"lines":       `[{"tier_id":"vip","quantity":1,"unit_price":"100.00"}]`,
		"total":       total,
		"currency":    "INR",
		"status":      models.OrderPendingPayment,
		"created_at":  "1756100000",
	}
}

func TestApplyDuplicatePaymentID(t *testing.T) {
	svc, mock := newWebhookServiceForTest()

	mock.CustomMatch(matchAnyArgs).
		ExpectSetNX("webhook:receipt:pay-1", nil, 0).SetVal(false)

	result, err := svc.Apply(context.Background(), "pay-1", "ord-1", "succeeded", decimal.RequireFromString("100.00"))

	require.NoError(t, err)
	assert.Equal(t, ResultAlreadyProcessed, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyAmountMismatchFlagsAnomaly(t *testing.T) {
	svc, mock := newWebhookServiceForTest()

	mock.CustomMatch(matchAnyArgs).
		ExpectSetNX("webhook:receipt:pay-1", nil, 0).SetVal(true)
	mock.ExpectHGetAll("order:ord-1").SetVal(pendingOrderHash("500.00"))
	mock.CustomMatch(matchAnyArgs).
		ExpectLPush("webhook:anomalies", "any").SetVal(1)

	result, err := svc.Apply(context.Background(), "pay-1", "ord-1", "succeeded", decimal.RequireFromString("450.00"))

	require.NoError(t, err)
	assert.Equal(t, ResultRejected, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyFailedPaymentKeepsOrderPending(t *testing.T) {
	svc, mock := newWebhookServiceForTest()

	mock.CustomMatch(matchAnyArgs).
		ExpectSetNX("webhook:receipt:pay-1", nil, 0).SetVal(true)
	mock.ExpectHGetAll("order:ord-1").SetVal(pendingOrderHash("100.00"))

	result, err := svc.Apply(context.Background(), "pay-1", "ord-1", "failed", decimal.RequireFromString("100.00"))

	require.NoError(t, err)
	assert.Equal(t, ResultRejected, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyAlreadyConfirmedOrder(t *testing.T) {
	svc, mock := newWebhookServiceForTest()

	confirmed := pendingOrderHash("100.00")
	confirmed["status"] = models.OrderConfirmed

	mock.CustomMatch(matchAnyArgs).
		ExpectSetNX("webhook:receipt:pay-2", nil, 0).SetVal(true)
	mock.ExpectHGetAll("order:ord-1").SetVal(confirmed)

	result, err := svc.Apply(context.Background(), "pay-2", "ord-1", "succeeded", decimal.RequireFromString("100.00"))

	require.NoError(t, err)
	assert.Equal(t, ResultAlreadyProcessed, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyConfirmsAndIssuesCredentials(t *testing.T) {
	svc, mock := newWebhookServiceForTest()

	mock.CustomMatch(matchAnyArgs).
		ExpectSetNX("webhook:receipt:pay-1", nil, 0).SetVal(true)
	mock.ExpectHGetAll("order:ord-1").SetVal(pendingOrderHash("100.00"))
	mock.ExpectEval(casOrderStatusScript, []string{"order:ord-1"},
		models.OrderPendingPayment, models.OrderDraft, models.OrderConfirmed).SetVal("ok")
	mock.ExpectHSet("order:ord-1", "payment_ref", "pay-1").SetVal(1)
	mock.ExpectSetNX("credential:unit:ord-1/vip/1", "ord-1", 0).SetVal(true)
	mock.CustomMatch(matchAnyArgs).
		ExpectHSet("credential:any",
			"id", "any", "order_id", "any", "event_id", "any", "tier_id", "any",
			"unit_id", "any", "owner_id", "any", "status", "any",
			"consumed_at", "any", "consumed_by", "any", "issued_at", "any").SetVal(1)
	mock.CustomMatch(matchAnyArgs).
		ExpectSAdd("credentials:order:ord-1", "any").SetVal(1)

	result, err := svc.Apply(context.Background(), "pay-1", "ord-1", "succeeded", decimal.RequireFromString("100.00"))

	require.NoError(t, err)
	assert.Equal(t, ResultConfirmed, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyUnknownOrder(t *testing.T) {
	svc, mock := newWebhookServiceForTest()

	mock.CustomMatch(matchAnyArgs).
		ExpectSetNX("webhook:receipt:pay-1", nil, 0).SetVal(true)
	mock.ExpectHGetAll("order:ghost").SetVal(map[string]string{})
	mock.CustomMatch(matchAnyArgs).
		ExpectLPush("webhook:anomalies", "any").SetVal(1)

	result, err := svc.Apply(context.Background(), "pay-1", "ghost", "succeeded", decimal.RequireFromString("100.00"))

	require.NoError(t, err)
	assert.Equal(t, ResultRejected, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}
