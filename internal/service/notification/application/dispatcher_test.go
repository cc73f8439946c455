package application_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	checkoutdomain "storefront/internal/service/checkout/domain"
	invdomain "storefront/internal/service/inventory/domain"
	"storefront/internal/service/notification/application"
	"storefront/internal/service/notification/domain"
	"storefront/internal/service/notification/infrastructure"
)

type staticRecipients struct {
	admins []string
}

func (r staticRecipients) Customer(id string) string { return id + "@shop.test" }
func (r staticRecipients) Admins() []string          { return r.admins }

type failingGateway struct {
	calls int
}

func (g *failingGateway) Send(context.Context, domain.Notification) error {
	g.calls++
	return errors.New("smtp down")
}

func order() checkoutdomain.OrderPlaced {
	return checkoutdomain.OrderPlaced{
		OrderID:     "o1",
		OrderNumber: "ORD-0123456789AB",
		CustomerID:  "cust-1",
		Total:       3750,
		Items:       []checkoutdomain.OrderPlacedItem{{SKU: "SKU-1", Name: "Mug", Quantity: 3, UnitPrice: 1250}},
	}
}

func TestOrderPlacedSendsConfirmationOnce(t *testing.T) {
	gateway := infrastructure.NewLogEmailGateway()
	d := application.NewDispatcher(gateway, infrastructure.NewMemoryDeduplicator(), staticRecipients{})
	ctx := context.Background()

	require.NoError(t, d.OrderPlaced(ctx, order()))
	require.NoError(t, d.OrderPlaced(ctx, order()), "redelivered event")

	sent := gateway.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, domain.KindOrderConfirmation, sent[0].Kind)
	assert.Equal(t, "cust-1@shop.test", sent[0].Recipient)
	assert.Contains(t, sent[0].Subject, "ORD-0123456789AB")
	assert.Contains(t, sent[0].Body, "3 x Mug (SKU-1) @ 12.50")
	assert.Contains(t, sent[0].Body, "Total charged: 37.50")
}

func TestFailedSendReleasesDedupKey(t *testing.T) {
	failing := &failingGateway{}
	dedup := infrastructure.NewMemoryDeduplicator()
	d := application.NewDispatcher(failing, dedup, staticRecipients{})
	ctx := context.Background()

	assert.Error(t, d.OrderPlaced(ctx, order()))
	assert.Error(t, d.OrderPlaced(ctx, order()))
	assert.Equal(t, 2, failing.calls, "a failed send must be retried on redelivery")

	first, err := dedup.Claim(ctx, "order:o1", time.Hour)
	require.NoError(t, err)
	assert.True(t, first)
}

func TestCheckoutExpired(t *testing.T) {
	gateway := infrastructure.NewLogEmailGateway()
	d := application.NewDispatcher(gateway, nil, staticRecipients{})
	ctx := context.Background()

	require.NoError(t, d.CheckoutExpired(ctx, checkoutdomain.CheckoutExpired{CheckoutSessionID: "s1", CartID: "c1", CustomerID: "cust-1", ExpiredAt: time.Now()}))
	require.NoError(t, d.CheckoutExpired(ctx, checkoutdomain.CheckoutExpired{CheckoutSessionID: "s2", CartID: "c2"}))

	sent := gateway.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, domain.KindCheckoutExpired, sent[0].Kind)
	assert.Contains(t, sent[0].Body, "cart c1")
}

func TestLowStockNotifiesEveryAdmin(t *testing.T) {
	gateway := infrastructure.NewLogEmailGateway()
	d := application.NewDispatcher(gateway, infrastructure.NewMemoryDeduplicator(), staticRecipients{admins: []string{"ops@shop.test", "buyer@shop.test"}})
	ctx := context.Background()
	alert := invdomain.LowStockAlert{SKU: "SKU-1", Available: 2, Threshold: 10}

	require.NoError(t, d.LowStock(ctx, alert))
	require.NoError(t, d.LowStock(ctx, alert))
	alert.Available = 1
	require.NoError(t, d.LowStock(ctx, alert))

	sent := gateway.Sent()
	require.Len(t, sent, 4)
	assert.Equal(t, "ops@shop.test", sent[0].Recipient)
	assert.Equal(t, "buyer@shop.test", sent[1].Recipient)
	assert.Contains(t, sent[3].Body, "1 units available")
}

func TestLowStockWithoutAdminsIsDropped(t *testing.T) {
	gateway := infrastructure.NewLogEmailGateway()
	d := application.NewDispatcher(gateway, nil, staticRecipients{})
	require.NoError(t, d.LowStock(context.Background(), invdomain.LowStockAlert{SKU: "SKU-1"}))
	assert.Empty(t, gateway.Sent())
}

func TestConfigRecipientsUsesCustomerDomain(t *testing.T) {
	r := application.ConfigRecipients{}
	assert.Equal(t, "cust-1@example.com", r.Customer("cust-1"))
	assert.Equal(t, "someone@else.test", r.Customer("someone@else.test"))
}
