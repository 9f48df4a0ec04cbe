package saga

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"

	checkoutdomain "storefront/internal/checkout/domain"
	orderdomain "storefront/internal/order/domain"
	"storefront/internal/pkg/logger"
)

// CreateOrderHandler 用预占时的价格快照落一条 Pending 订单。
// 创建失败（价格不变式被破坏等）时返回 InvalidOrderError，
// 已有的预占由补偿释放。
type CreateOrderHandler struct {
	NextHandler
}

func (h *CreateOrderHandler) Handle(sagaCtx *Context) error {
	_, span := sagaCtx.Tracer.Start(sagaCtx.Ctx, "saga.CreateOrder")
	defer span.End()

	items := make([]orderdomain.Item, 0, len(sagaCtx.Lines))
	for _, line := range sagaCtx.Lines {
		items = append(items, orderdomain.Item{
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		})
	}

	created, err := sagaCtx.Orders.Create(orderdomain.Draft{
		CustomerID:      sagaCtx.Request.Cart.CustomerID,
		Items:           items,
		Pricing:         sagaCtx.Request.Cart.Pricing,
		ShippingAddress: sagaCtx.Request.ShippingAddress,
		ShippingMethod:  sagaCtx.Request.ShippingMethod,
		PaymentMethod:   sagaCtx.Request.PaymentMethod,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "order creation failed")
		return &checkoutdomain.InvalidOrderError{Cause: err}
	}
	sagaCtx.Order = created
	span.AddEvent("Pending order created")

	// 补偿：取消订单。支付失败时同步落 paymentStatus=FAILED。
	sagaCtx.AddCompensation(func(compCtx context.Context) {
		reason := "checkout failed"
		if sagaCtx.PaymentFailure != nil {
			reason = sagaCtx.PaymentFailure.Reason
		}
		cancelled, cancelErr := sagaCtx.Orders.Apply(created.ID, func(o *orderdomain.Order) error {
			if sagaCtx.PaymentFailure != nil {
				o.MarkPaymentFailed()
			}
			return o.Cancel(reason)
		})
		if cancelErr != nil {
			logger.Ctx(compCtx).Error().Err(cancelErr).
				Str("order", created.ID).
				Msg("compensation failed to cancel order")
			return
		}
		sagaCtx.Order = cancelled

		if pubErr := sagaCtx.Events.PublishOrderEvent(compCtx, checkoutdomain.OrderEvent{
			Type:          checkoutdomain.EventOrderCancelled,
			OrderID:       cancelled.ID,
			OrderNumber:   cancelled.OrderNumber,
			CustomerID:    cancelled.CustomerID,
			Status:        string(cancelled.Status),
			PaymentStatus: string(cancelled.PaymentStatus),
			Reason:        reason,
			OccurredAt:    time.Now(),
		}); pubErr != nil {
			logger.Ctx(compCtx).Error().Err(pubErr).Str("order", cancelled.ID).Msg("failed to publish cancel event")
		}
	})

	return h.executeNext(sagaCtx)
}
