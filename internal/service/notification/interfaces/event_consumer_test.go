package interfaces

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/pkg/mq"
	checkoutdomain "storefront/internal/service/checkout/domain"
	invdomain "storefront/internal/service/inventory/domain"
	"storefront/internal/service/notification/application"
	"storefront/internal/service/notification/domain"
	"storefront/internal/service/notification/infrastructure"
)

type recipients struct{}

func (recipients) Customer(id string) string { return id + "@shop.test" }
func (recipients) Admins() []string          { return []string{"ops@shop.test"} }

func envelope(t *testing.T, eventType string, payload interface{}) kafka.Message {
	t.Helper()
	value, err := mq.EncodeEnvelope(eventType, time.Now(), payload)
	require.NoError(t, err)
	return kafka.Message{Topic: "checkout-events", Value: value}
}

func TestEventHandlerDispatchesByType(t *testing.T) {
	gateway := infrastructure.NewLogEmailGateway()
	handle := EventHandler(application.NewDispatcher(gateway, nil, recipients{}))
	ctx := context.Background()

	require.NoError(t, handle(ctx, envelope(t, checkoutdomain.EventOrderPlaced, checkoutdomain.OrderPlaced{OrderID: "o1", OrderNumber: "ORD-1", CustomerID: "c1"})))
	require.NoError(t, handle(ctx, envelope(t, checkoutdomain.EventCheckoutExpired, checkoutdomain.CheckoutExpired{CheckoutSessionID: "s1", CustomerID: "c1"})))
	require.NoError(t, handle(ctx, envelope(t, invdomain.EventLowStock, invdomain.LowStockAlert{SKU: "SKU-1", Available: 1, Threshold: 5})))
	require.NoError(t, handle(ctx, envelope(t, invdomain.EventStockChanged, invdomain.StockChanged{SKU: "SKU-1"})))

	var kinds []domain.Kind
	for _, n := range gateway.Sent() {
		kinds = append(kinds, n.Kind)
	}
	assert.Equal(t, []domain.Kind{domain.KindOrderConfirmation, domain.KindCheckoutExpired, domain.KindLowStock}, kinds)
}

func TestEventHandlerRejectsMalformedMessages(t *testing.T) {
	handle := EventHandler(application.NewDispatcher(infrastructure.NewLogEmailGateway(), nil, recipients{}))
	ctx := context.Background()

	assert.Error(t, handle(ctx, kafka.Message{Value: []byte("garbage")}))
	assert.Error(t, handle(ctx, kafka.Message{Value: []byte(`{"type":"order.placed","payload":"oops"}`)}))
}
