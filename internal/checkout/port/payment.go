package port

import "context"

// ChargeRequest 一次支付请求。
type ChargeRequest struct {
	OrderID     string
	CustomerID  string
	AmountCents int64
	Method      string
}

// ChargeResult 支付网关的应答。
type ChargeResult struct {
	Success       bool
	TransactionID string
	ErrorCode     string
	Reason        string
}

// PaymentGateway 是第三方支付处理器的出站端口。
// 每次 saga 尝试最多调用一次 Charge：自动重试有二次扣款风险，
// 重试策略属于发起新 PlaceOrder 的调用方。
type PaymentGateway interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
}
