package domain

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func sampleCart() *Cart {
	return &Cart{
		ID:         "c1",
		CustomerID: "cust-1",
		Status:     CartActive,
		Items: []CartItem{
			{ProductID: "p1", SKU: "A", Name: "Mug", Quantity: 2, UnitPrice: 1250},
			{ProductID: "p2", SKU: "B", Name: "Tea", Quantity: 1, UnitPrice: 600},
			{ProductID: "p3", SKU: "C", Name: "Gone", Quantity: 0, UnitPrice: 100},
		},
	}
}

func TestNewCheckoutSessionSnapshotsCart(t *testing.T) {
	s, err := NewCheckoutSession(sampleCart(), "", t0)
	require.NoError(t, err)
	assert.Equal(t, StateInitiated, s.State)
	assert.Equal(t, "cust-1", s.CustomerID)
	assert.Len(t, s.Lines, 2, "zero quantity lines are dropped")
	assert.Equal(t, int64(3100), s.Total)
	assert.Equal(t, []string{"A", "B"}, s.SKUs())
	assert.Len(t, s.ReservationLines(), 2)

	_, err = NewCheckoutSession(&Cart{ID: "c2"}, "", t0)
	assert.True(t, errors.Is(err, ErrEmptyCart))
	_, err = NewCheckoutSession(nil, "", t0)
	assert.True(t, errors.Is(err, ErrEmptyCart))
}

func TestStateTransitions(t *testing.T) {
	cases := []struct {
		from, to State
		ok       bool
	}{
		{StateInitiated, StateReserved, true},
		{StateInitiated, StateCancelled, true},
		{StateInitiated, StateFinalized, false},
		{StateReserved, StateFinalized, true},
		{StateReserved, StateCancelled, true},
		{StateReserved, StateExpired, true},
		{StateReserved, StateInitiated, false},
		{StateFinalized, StateCancelled, false},
		{StateCancelled, StateReserved, false},
		{StateExpired, StateFinalized, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
	for _, terminal := range []State{StateFinalized, StateCancelled, StateExpired} {
		assert.True(t, terminal.Terminal())
	}
	assert.False(t, StateReserved.Terminal())
}

func TestTransitionToRecordsResolution(t *testing.T) {
	s, err := NewCheckoutSession(sampleCart(), "", t0)
	require.NoError(t, err)

	require.NoError(t, s.TransitionTo(StateReserved, t0.Add(time.Second)))
	assert.Nil(t, s.ResolvedAt)

	at := t0.Add(time.Minute)
	require.NoError(t, s.TransitionTo(StateExpired, at))
	require.NotNil(t, s.ResolvedAt)
	assert.Equal(t, at, *s.ResolvedAt)

	err = s.TransitionTo(StateFinalized, at)
	assert.True(t, errors.Is(err, ErrInvalidState))
	assert.Equal(t, StateExpired, s.State)
}

func TestIsDueIsStrict(t *testing.T) {
	s := &CheckoutSession{ExpiresAt: t0}
	assert.False(t, s.IsDue(t0))
	assert.True(t, s.IsDue(t0.Add(time.Millisecond)))
}

func TestOrderFromSession(t *testing.T) {
	s, err := NewCheckoutSession(sampleCart(), "", t0)
	require.NoError(t, err)

	o := NewOrderFromSession(s, "pay_1", t0)
	assert.Regexp(t, `^ORD-[0-9A-F]{12}$`, o.OrderNumber)
	assert.Equal(t, s.Total, o.Total)
	assert.Equal(t, int64(0), o.Tax)
	assert.Equal(t, PaymentStatusPaid, o.PaymentStatus)
	require.Len(t, o.Items, 2)
	assert.Equal(t, int64(2500), o.Items[0].Subtotal)

	placed := NewOrderPlaced(o)
	assert.Equal(t, o.OrderNumber, placed.OrderNumber)
	assert.Len(t, placed.Items, 2)
}

func TestPaymentFailedErrorIs(t *testing.T) {
	err := errors.Wrap(&PaymentFailedError{Reason: "card declined"}, "finalize")
	assert.True(t, errors.Is(err, ErrPaymentFailed))
	assert.Contains(t, err.Error(), "card declined")
	assert.True(t, errors.Is(ErrReservationExpired, ErrInvalidState))
}
