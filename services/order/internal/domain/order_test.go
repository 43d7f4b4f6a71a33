package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyungseok/retail-fulfillment/common/errors"
)

func TestParseOrderStatus(t *testing.T) {
	tests := []struct {
		input    string
		expected OrderStatus
		wantErr  bool
	}{
		{"PENDING", OrderStatusPending, false},
		{"shipped", OrderStatusShipped, false},
		{"  Delivered ", OrderStatusDelivered, false},
		{"CANCELLED", OrderStatusCancelled, false},
		{"CANCELED", "", true},
		{"", "", true},
		{"REFUNDED", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			status, err := ParseOrderStatus(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, errors.ErrCodeInvalidStatus, errors.CodeOf(err))
				assert.Contains(t, err.Error(), tt.input)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, status)
		})
	}
}

func TestParsePaymentStatus(t *testing.T) {
	status, err := ParsePaymentStatus("completed")
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusCompleted, status)

	_, err = ParsePaymentStatus("PAID")
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidStatus))
}

func TestStrictPolicy(t *testing.T) {
	tests := []struct {
		from, to OrderStatus
		allowed  bool
	}{
		{OrderStatusPending, OrderStatusConfirmed, true},
		{OrderStatusConfirmed, OrderStatusShipped, true},
		{OrderStatusShipped, OrderStatusDelivered, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusConfirmed, OrderStatusCancelled, true},
		{OrderStatusShipped, OrderStatusCancelled, true},
		{OrderStatusShipped, OrderStatusShipped, true},

		{OrderStatusPending, OrderStatusShipped, false},
		{OrderStatusConfirmed, OrderStatusPending, false},
		{OrderStatusDelivered, OrderStatusPending, false},
		{OrderStatusDelivered, OrderStatusCancelled, false},
		{OrderStatusCancelled, OrderStatusPending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, PolicyStrict.CanTransition(tt.from, tt.to))
		})
	}
}

func TestPermissivePolicy(t *testing.T) {
	assert.True(t, PolicyPermissive.CanTransition(OrderStatusDelivered, OrderStatusPending))
	assert.True(t, PolicyPermissive.CanTransition(OrderStatusPending, OrderStatusDelivered))
	assert.True(t, PolicyPermissive.CanTransition(OrderStatusShipped, OrderStatusConfirmed))
	assert.False(t, PolicyPermissive.CanTransition(OrderStatusCancelled, OrderStatusPending))
}

func TestOrder_TransitionTo(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	later := created.Add(time.Hour)
	order := &Order{ID: 3, Status: OrderStatusDelivered, UpdatedAt: created}

	err := order.TransitionTo(PolicyStrict, OrderStatusPending, later)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidTransition, errors.CodeOf(err))
	assert.Equal(t, OrderStatusDelivered, order.Status)
	assert.Equal(t, created, order.UpdatedAt)

	require.NoError(t, order.TransitionTo(PolicyPermissive, OrderStatusPending, later))
	assert.Equal(t, OrderStatusPending, order.Status)
	assert.Equal(t, later, order.UpdatedAt)
}

func TestParseTransitionPolicy(t *testing.T) {
	p, err := ParseTransitionPolicy("STRICT")
	require.NoError(t, err)
	assert.Equal(t, PolicyStrict, p)

	p, err = ParseTransitionPolicy("permissive")
	require.NoError(t, err)
	assert.Equal(t, PolicyPermissive, p)

	_, err = ParseTransitionPolicy("lenient")
	assert.Error(t, err)
}

func TestEffectivePrice(t *testing.T) {
	list := &Product{Price: decimal.RequireFromString("20.00")}
	assert.True(t, decimal.RequireFromString("20.00").Equal(EffectivePrice(list)))

	promo := &Product{
		Price:     decimal.RequireFromString("50.00"),
		SalePrice: decimal.NewNullDecimal(decimal.RequireFromString("40.00")),
	}
	assert.True(t, decimal.RequireFromString("40.00").Equal(EffectivePrice(promo)))

	free := &Product{
		Price:     decimal.RequireFromString("9.99"),
		SalePrice: decimal.NewNullDecimal(decimal.Zero),
	}
	assert.True(t, decimal.Zero.Equal(EffectivePrice(free)))
}

func TestCartLine_Snapshot(t *testing.T) {
	size := "M"
	product := &Product{
		ID:        2,
		Name:      "Linen Shirt",
		Price:     decimal.RequireFromString("50.00"),
		SalePrice: decimal.NewNullDecimal(decimal.RequireFromString("40.00")),
	}
	item := CartLine{ProductID: 2, Quantity: 3, SelectedSize: &size}.Snapshot(product)

	assert.Equal(t, int64(2), item.ProductID)
	assert.Equal(t, "Linen Shirt", item.ProductName)
	assert.True(t, decimal.RequireFromString("40.00").Equal(item.UnitPrice))
	assert.True(t, decimal.RequireFromString("120.00").Equal(item.TotalPrice))
	assert.Equal(t, &size, item.SelectedSize)
	assert.Nil(t, item.SelectedColor)
}

func TestOrder_ItemsTotal(t *testing.T) {
	order := &Order{Items: []OrderItem{
		{TotalPrice: decimal.RequireFromString("40.00")},
		{TotalPrice: decimal.RequireFromString("40.00")},
		{TotalPrice: decimal.RequireFromString("0.01")},
	}}
	assert.Equal(t, "80.01", order.ItemsTotal().StringFixed(2))
}
