package services

import (
	"context"
	"testing"

	"ticket-core/internal/status"
	"ticket-core/models"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderTransitionWins(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := &OrderStore{Redis: db}

	mock.ExpectEval(casOrderStatusScript, []string{"order:ord-1"},
		models.OrderPendingPayment, models.OrderDraft, models.OrderConfirmed).SetVal("ok")

	res, err := store.TransitionStatus(context.Background(), "ord-1",
		models.OrderPendingPayment, models.OrderDraft, models.OrderConfirmed)

	require.NoError(t, err)
	assert.Equal(t, "ok", res)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderTransitionReportsBlockingStatus(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := &OrderStore{Redis: db}

	mock.ExpectEval(casOrderStatusScript, []string{"order:ord-1"},
		models.OrderDraft, models.OrderPendingPayment, models.OrderCancelled).SetVal(models.OrderConfirmed)

	res, err := store.TransitionStatus(context.Background(), "ord-1",
		models.OrderDraft, models.OrderPendingPayment, models.OrderCancelled)

	require.NoError(t, err)
	assert.Equal(t, models.OrderConfirmed, res)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderTransitionMissingOrder(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := &OrderStore{Redis: db}

	mock.ExpectEval(casOrderStatusScript, []string{"order:ghost"},
		models.OrderDraft, "", models.OrderCancelled).SetVal("missing")

	_, err := store.TransitionStatus(context.Background(), "ghost",
		models.OrderDraft, "", models.OrderCancelled)

	assert.ErrorIs(t, err, status.ErrOrderNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRoundTrip(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := &OrderStore{Redis: db}

	mock.ExpectHGetAll("order:ord-1").SetVal(map[string]string{
		"id":             "ord-1",
		"reservation_id": "res-1",
		"customer_id":    "cust-1",
		"event_id":       "ev-1",
		"lines":          `[{"tier_id":"vip","quantity":2,"unit_price":"100.00"}]`,
		"total":          "200.00",
		"currency":       "INR",
		"status":         models.OrderPendingPayment,
		"buyer":          `{"name":"A","email":"a@example.com"}`,
		"created_at":     "1756100000",
	})

	order, err := store.Get(context.Background(), "ord-1")

	require.NoError(t, err)
	assert.Equal(t, "ord-1", order.ID)
	assert.Equal(t, "res-1", order.ReservationID)
	require.Len(t, order.Lines, 1)
	assert.Equal(t, int64(2), order.Lines[0].Quantity)
	assert.Equal(t, "200.00", order.Total.StringFixed(2))
	assert.Equal(t, "a@example.com", order.Buyer.Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderGetMissing(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := &OrderStore{Redis: db}

	mock.ExpectHGetAll("order:ghost").SetVal(map[string]string{})

	_, err := store.Get(context.Background(), "ghost")

	assert.ErrorIs(t, err, status.ErrOrderNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
