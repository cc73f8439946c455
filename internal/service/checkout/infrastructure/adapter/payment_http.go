package adapter

import (
	"context"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"storefront/internal/pkg/httpclient"
	"storefront/internal/service/checkout/domain/port"
)

// PaymentHTTPAdapter 通过 HTTP 调用外部支付服务：
// POST {base}/charge 与 POST {base}/refund，402 表示拒绝。
type PaymentHTTPAdapter struct {
	client  *httpclient.Client
	baseURL string
}

func NewPaymentHTTPAdapter(client *httpclient.Client, baseURL string) *PaymentHTTPAdapter {
	return &PaymentHTTPAdapter{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

func (a *PaymentHTTPAdapter) Charge(ctx context.Context, req port.ChargeRequest) (*port.ChargeResult, error) {
	var result port.ChargeResult
	err := a.client.PostJSON(ctx, a.baseURL+"/charge", req, &result)

	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusPaymentRequired {
		reason := strings.TrimSpace(statusErr.Body)
		if reason == "" {
			reason = "declined by payment service"
		}
		return &port.ChargeResult{Success: false, DeclineReason: reason}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "charge via payment service")
	}
	if result.Success && result.Reference == "" {
		return nil, errors.New("payment service returned success without a reference")
	}
	return &result, nil
}

func (a *PaymentHTTPAdapter) Refund(ctx context.Context, reference string, amount int64) error {
	body := map[string]interface{}{"reference": reference, "amount": amount}
	if err := a.client.PostJSON(ctx, a.baseURL+"/refund", body, nil); err != nil {
		return errors.Wrapf(err, "refund payment %s", reference)
	}
	return nil
}
