package saga

import (
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	checkoutdomain "storefront/internal/checkout/domain"
	invdomain "storefront/internal/inventory/domain"
	orderdomain "storefront/internal/order/domain"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/metrics"
)

// CommitHandler 在支付成功后把每个预占转为永久扣减，并将订单转为 Paid。
//
// 扣款已经发生，这一步不允许失败、也不注册补偿。预占若已被 Reaper
// 回收（慢支付与过期赛跑），记一条 OversellRisk 告警交给运营对账，
// 订单照常转 Paid——已收的钱不能悄悄丢掉。
type CommitHandler struct {
	NextHandler
}

func (h *CommitHandler) Handle(sagaCtx *Context) error {
	ctx, span := sagaCtx.Tracer.Start(sagaCtx.Ctx, "saga.Commit")
	defer span.End()

	for _, res := range sagaCtx.Reservations {
		err := sagaCtx.Inventory.Commit(res.ID)
		if err == nil {
			continue
		}
		if errors.Is(err, invdomain.ErrReservationNotFound) {
			metrics.OversellRisk.Inc()
			span.AddEvent("reservation reaped before commit",
				trace.WithAttributes(attribute.String("reservation", res.ID)))
			event := checkoutdomain.OversellRiskEvent{
				OrderID:       sagaCtx.Order.ID,
				ReservationID: res.ID,
				Key:           res.Line.StockKey(),
				Quantity:      res.Line.Quantity,
				OccurredAt:    time.Now(),
			}
			logger.Ctx(ctx).Error().
				Str("order", sagaCtx.Order.ID).
				Str("reservation", res.ID).
				Stringer("stock_key", res.Line.StockKey()).
				Int("quantity", res.Line.Quantity).
				Msg("oversell risk: reservation expired before commit, manual reconciliation required")
			if pubErr := sagaCtx.Events.PublishOversellRisk(ctx, event); pubErr != nil {
				logger.Ctx(ctx).Error().Err(pubErr).Msg("failed to publish oversell risk event")
			}
			continue
		}
		// 其他错误同样不可逆转，只能告警
		span.RecordError(err)
		logger.Ctx(ctx).Error().Err(err).Str("reservation", res.ID).Msg("commit failed unexpectedly")
	}

	paid, err := sagaCtx.Orders.Apply(sagaCtx.Order.ID, func(o *orderdomain.Order) error {
		return o.MarkPaid(sagaCtx.Charge.TransactionID)
	})
	if err != nil {
		// 正常流程不可能走到：Pending 订单只被本 saga 持有
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to mark order paid")
		return err
	}
	sagaCtx.Order = paid

	if pubErr := sagaCtx.Events.PublishOrderEvent(ctx, checkoutdomain.OrderEvent{
		Type:          checkoutdomain.EventOrderPaid,
		OrderID:       paid.ID,
		OrderNumber:   paid.OrderNumber,
		CustomerID:    paid.CustomerID,
		Status:        string(paid.Status),
		PaymentStatus: string(paid.PaymentStatus),
		OccurredAt:    time.Now(),
	}); pubErr != nil {
		logger.Ctx(ctx).Error().Err(pubErr).Str("order", paid.ID).Msg("failed to publish paid event")
	}

	span.AddEvent("Reservations committed, order paid")
	return h.executeNext(sagaCtx)
}
