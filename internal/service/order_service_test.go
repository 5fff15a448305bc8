package service

import (
	"context"
	"testing"
	"time"

	"ticketing-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrderService(orders *fakeOrderStore, intents *fakeIntentCreator) *OrderService {
	return NewOrderService(orders, intents, &fakePublisher{}, nil, "INR")
}

func TestCreateOrderInvalidAmount(t *testing.T) {
	orders := newFakeOrderStore()
	intents := &fakeIntentCreator{}
	svc := newTestOrderService(orders, intents)

	for _, amount := range []int64{0, -1, -500} {
		_, err := svc.CreateOrder(context.Background(), &CreateOrderRequest{Amount: amount})
		assert.ErrorIs(t, err, ErrInvalidAmount, "amount %d", amount)
	}

	// The gateway is never consulted for invalid amounts
	assert.Equal(t, 0, intents.calls)
}

func TestCreateOrderPersistsIntent(t *testing.T) {
	orders := newFakeOrderStore()
	intents := &fakeIntentCreator{intentID: "order_gw_1"}
	svc := newTestOrderService(orders, intents)

	resp, err := svc.CreateOrder(context.Background(), &CreateOrderRequest{
		Amount:   1000,
		EventRef: "E1",
		Name:     "Guest",
		Email:    "guest@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "order_gw_1", resp.IntentID)
	assert.Equal(t, models.OrderStatusCreated, resp.Status)

	order, err := orders.GetOrderByIntentID(context.Background(), "order_gw_1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), order.Amount)
	assert.Equal(t, "E1", order.EventRef.String)
	assert.False(t, order.UserID.Valid, "guest checkout leaves user unset")
}

func TestCreateOrderGatewayFailureLeavesNoOrphan(t *testing.T) {
	orders := newFakeOrderStore()
	intents := &fakeIntentCreator{failFirst: 100}
	svc := newTestOrderService(orders, intents)

	_, err := svc.CreateOrder(context.Background(), &CreateOrderRequest{Amount: 1000})
	require.Error(t, err)

	// No order row may exist without a gateway intent
	assert.Empty(t, orders.orders)
	assert.Equal(t, intentCreateAttempts, intents.calls)
}

func TestCreateOrderRetriesTransientGatewayFailure(t *testing.T) {
	orders := newFakeOrderStore()
	intents := &fakeIntentCreator{failFirst: 2, intentID: "order_gw_2"}
	svc := newTestOrderService(orders, intents)

	resp, err := svc.CreateOrder(context.Background(), &CreateOrderRequest{Amount: 1000})
	require.NoError(t, err)
	assert.Equal(t, "order_gw_2", resp.IntentID)
	assert.Equal(t, 3, intents.calls)
}

func TestGetPaymentProjection(t *testing.T) {
	orders := newFakeOrderStore()
	svc := newTestOrderService(orders, &fakeIntentCreator{})
	engine := NewReconciler(orders, &fakeArtifacts{}, &fakePublisher{}, 5, time.Millisecond, time.Second)

	order := seedOrder(t, orders, "order_1", 1000)
	_, err := engine.MarkPaid(context.Background(), capture("ch_1", "order_1", 1000))
	require.NoError(t, err)

	projection, err := svc.GetPaymentProjection(context.Background(), "ch_1")
	require.NoError(t, err)
	assert.Equal(t, "ch_1", projection.PaymentID)
	assert.Equal(t, order.ID, projection.OrderID)
	assert.Equal(t, int64(1000), projection.Amount)
	assert.Equal(t, models.OrderStatusPaid, projection.Status)
	assert.NotEmpty(t, projection.ArtifactURL)
}

func TestGetPaymentProjectionNotReconciled(t *testing.T) {
	orders := newFakeOrderStore()
	svc := newTestOrderService(orders, &fakeIntentCreator{})

	_, err := svc.GetPaymentProjection(context.Background(), "ch_never")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}
