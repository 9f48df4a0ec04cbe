package infrastructure

import (
	"context"

	"github.com/pkg/errors"

	"storefront/internal/checkout/port"
	"storefront/internal/pkg/httpclient"
)

// PaymentHTTPAdapter 是 port.PaymentGateway 的 HTTP 实现，
// 对接外部支付网关的 charge 接口。
type PaymentHTTPAdapter struct {
	client    *httpclient.Client
	chargeURL string
}

func NewPaymentHTTPAdapter(client *httpclient.Client, chargeURL string) *PaymentHTTPAdapter {
	return &PaymentHTTPAdapter{client: client, chargeURL: chargeURL}
}

type chargeRequestBody struct {
	OrderID     string `json:"orderId"`
	CustomerID  string `json:"customerId"`
	AmountCents int64  `json:"amountCents"`
	Method      string `json:"method"`
}

type chargeResponseBody struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transactionId"`
	ErrorCode     string `json:"errorCode"`
	Reason        string `json:"reason"`
}

func (a *PaymentHTTPAdapter) Charge(ctx context.Context, req port.ChargeRequest) (port.ChargeResult, error) {
	var resp chargeResponseBody
	err := a.client.PostJSON(ctx, a.chargeURL, chargeRequestBody{
		OrderID:     req.OrderID,
		CustomerID:  req.CustomerID,
		AmountCents: req.AmountCents,
		Method:      req.Method,
	}, &resp)
	if err != nil {
		return port.ChargeResult{}, errors.Wrap(err, "payment gateway call failed")
	}
	return port.ChargeResult{
		Success:       resp.Success,
		TransactionID: resp.TransactionID,
		ErrorCode:     resp.ErrorCode,
		Reason:        resp.Reason,
	}, nil
}
