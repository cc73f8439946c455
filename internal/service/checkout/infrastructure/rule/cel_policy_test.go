package rule

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/service/checkout/domain"
)

func cartOf(items ...domain.CartItem) *domain.Cart {
	return &domain.Cart{ID: "c1", CustomerID: "cust-1", Status: domain.CartActive, Items: items}
}

func TestCartAndLineRules(t *testing.T) {
	p, err := NewCELPolicy([]Rule{
		{Name: "max-total", Expr: "cart.total <= 100000", Message: "order total too large"},
		{Name: "max-qty", Scope: ScopeLine, Expr: "line.quantity <= 5", Message: "too many units of one item"},
	})
	require.NoError(t, err)
	ctx := context.Background()

	assert.NoError(t, p.Admit(ctx, cartOf(domain.CartItem{SKU: "A", Quantity: 2, UnitPrice: 1000})))

	err = p.Admit(ctx, cartOf(domain.CartItem{SKU: "A", Quantity: 6, UnitPrice: 10}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))
	assert.Contains(t, err.Error(), "too many units of one item")

	err = p.Admit(ctx, cartOf(domain.CartItem{SKU: "A", Quantity: 5, UnitPrice: 50000}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "order total too large")
}

func TestEmptyPolicyAdmitsEverything(t *testing.T) {
	p, err := NewCELPolicy(nil)
	require.NoError(t, err)
	assert.NoError(t, p.Admit(context.Background(), cartOf(domain.CartItem{SKU: "A", Quantity: 1000})))
}

func TestReloadKeepsOldRulesOnError(t *testing.T) {
	p, err := NewCELPolicy([]Rule{{Name: "few-lines", Expr: "cart.line_count <= 1"}})
	require.NoError(t, err)
	two := cartOf(domain.CartItem{SKU: "A", Quantity: 1}, domain.CartItem{SKU: "B", Quantity: 1})

	err = p.Admit(context.Background(), two)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected by rule few-lines")

	assert.Error(t, p.Reload([]Rule{{Name: "broken", Expr: "cart.total <="}}))
	assert.Error(t, p.Reload([]Rule{{Name: "bad-scope", Scope: "order", Expr: "true"}}))
	assert.Error(t, p.Admit(context.Background(), two), "old rules still apply")

	require.NoError(t, p.Reload([]Rule{{Name: "sku-block", Scope: ScopeLine, Expr: `line.sku != "C"`}}))
	assert.NoError(t, p.Admit(context.Background(), two))
}

func TestNonBooleanRuleIsAnError(t *testing.T) {
	p, err := NewCELPolicy([]Rule{{Name: "number", Expr: "cart.total"}})
	require.NoError(t, err)
	err = p.Admit(context.Background(), cartOf(domain.CartItem{SKU: "A", Quantity: 1, UnitPrice: 5}))
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrValidation))
}
