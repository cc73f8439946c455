// Package rule 用 CEL 表达式实现结账准入策略。
package rule

import (
	"context"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/checkout/domain"
)

const (
	ScopeCart = "cart"
	ScopeLine = "line"
)

// Rule 是一条准入规则：表达式求值为 true 时放行。
// scope 为 cart 时每个购物车求值一次，为 line 时对每一行求值，变量 line 可用。
type Rule struct {
	Name    string
	Scope   string
	Expr    string
	Message string
}

type compiledRule struct {
	Rule
	program cel.Program
}

// CELPolicy 是 port.AdmissionPolicy 的 CEL 实现，规则可在运行时整体替换。
type CELPolicy struct {
	env *cel.Env

	mu    sync.RWMutex
	rules []compiledRule
}

func NewCELPolicy(rules []Rule) (*CELPolicy, error) {
	env, err := cel.NewEnv(
		cel.Variable("cart", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("line", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create cel environment")
	}
	p := &CELPolicy{env: env}
	if err := p.Reload(rules); err != nil {
		return nil, err
	}
	return p, nil
}

// Reload 编译全部规则后再替换；任一规则无效时保留旧规则。
func (p *CELPolicy) Reload(rules []Rule) error {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		if r.Scope == "" {
			r.Scope = ScopeCart
		}
		if r.Scope != ScopeCart && r.Scope != ScopeLine {
			return errors.Errorf("rule %s: unknown scope %q", r.Name, r.Scope)
		}
		ast, iss := p.env.Compile(r.Expr)
		if iss != nil && iss.Err() != nil {
			return errors.Wrapf(iss.Err(), "compile rule %s", r.Name)
		}
		prg, err := p.env.Program(ast)
		if err != nil {
			return errors.Wrapf(err, "program rule %s", r.Name)
		}
		compiled = append(compiled, compiledRule{Rule: r, program: prg})
	}

	p.mu.Lock()
	p.rules = compiled
	p.mu.Unlock()
	return nil
}

func (p *CELPolicy) Admit(ctx context.Context, cart *domain.Cart) error {
	p.mu.RLock()
	rules := p.rules
	p.mu.RUnlock()
	if len(rules) == 0 {
		return nil
	}

	cartFact := cartFact(cart)
	for _, r := range rules {
		if r.Scope == ScopeCart {
			if err := r.check(map[string]interface{}{"cart": cartFact, "line": map[string]interface{}{}}); err != nil {
				return p.reject(ctx, r, err)
			}
			continue
		}
		for _, item := range cart.Items {
			if err := r.check(map[string]interface{}{"cart": cartFact, "line": lineFact(item)}); err != nil {
				return p.reject(ctx, r, err)
			}
		}
	}
	return nil
}

// errRejected 表示规则求值为 false
var errRejected = errors.New("rejected")

func (r compiledRule) check(vars map[string]interface{}) error {
	out, _, err := r.program.Eval(vars)
	if err != nil {
		return errors.Wrapf(err, "evaluate rule %s", r.Name)
	}
	ok, isBool := out.Value().(bool)
	if !isBool {
		return errors.Errorf("rule %s returned %T, want bool", r.Name, out.Value())
	}
	if !ok {
		return errRejected
	}
	return nil
}

func (p *CELPolicy) reject(ctx context.Context, r compiledRule, err error) error {
	if !errors.Is(err, errRejected) {
		logger.Ctx(ctx).Error().Err(err).Str("rule", r.Name).Msg("admission rule failed to evaluate")
		return err
	}
	msg := r.Message
	if msg == "" {
		msg = "rejected by rule " + r.Name
	}
	return domain.NewValidationError("%s", msg)
}

func cartFact(cart *domain.Cart) map[string]interface{} {
	return map[string]interface{}{
		"id":             cart.ID,
		"customer_id":    cart.CustomerID,
		"total":          cart.Total(),
		"line_count":     int64(len(cart.Items)),
		"total_quantity": int64(cart.TotalQuantity()),
	}
}

func lineFact(item domain.CartItem) map[string]interface{} {
	return map[string]interface{}{
		"product_id": item.ProductID,
		"sku":        item.SKU,
		"name":       item.Name,
		"quantity":   int64(item.Quantity),
		"unit_price": item.UnitPrice,
		"subtotal":   item.Subtotal(),
	}
}
