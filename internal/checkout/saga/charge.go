package saga

import (
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	checkoutdomain "storefront/internal/checkout/domain"
	"storefront/internal/checkout/port"
	"storefront/internal/pkg/metrics"
)

// ChargeHandler 调用外部支付网关。这是 saga 中唯一的长耗时步骤
// （可达数秒），期间不持有任何库存锁：预占是数据而不是锁，
// 其他 checkout 可以继续预占别的库存。
//
// Charge 每次 saga 尝试最多调用一次；网关传输错误与拒付同样按
// 支付失败处理，绝不自动重试。
type ChargeHandler struct {
	NextHandler
}

func (h *ChargeHandler) Handle(sagaCtx *Context) error {
	ctx, span := sagaCtx.Tracer.Start(sagaCtx.Ctx, "saga.Charge")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", sagaCtx.Order.ID),
		attribute.Int64("order.total_cents", sagaCtx.Order.Pricing.Total),
	)

	started := time.Now()
	result, err := sagaCtx.Gateway.Charge(ctx, port.ChargeRequest{
		OrderID:     sagaCtx.Order.ID,
		CustomerID:  sagaCtx.Order.CustomerID,
		AmountCents: sagaCtx.Order.Pricing.Total,
		Method:      sagaCtx.Order.PaymentMethod,
	})
	metrics.ChargeDuration.Observe(time.Since(started).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "payment gateway call failed")
		sagaCtx.PaymentFailure = &checkoutdomain.PaymentFailedError{Reason: err.Error()}
		return sagaCtx.PaymentFailure
	}
	if !result.Success {
		span.SetStatus(codes.Error, "payment declined")
		span.SetAttributes(attribute.String("payment.error_code", result.ErrorCode))
		sagaCtx.PaymentFailure = &checkoutdomain.PaymentFailedError{Code: result.ErrorCode, Reason: result.Reason}
		return sagaCtx.PaymentFailure
	}

	sagaCtx.Charge = result
	span.AddEvent("Payment charged")
	return h.executeNext(sagaCtx)
}
