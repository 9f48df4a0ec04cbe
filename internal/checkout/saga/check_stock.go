package saga

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	checkoutdomain "storefront/internal/checkout/domain"
)

// CheckStockHandler 是 saga 的第一步：只读校验每个行项目的空闲库存，
// 任何一项不满足就快速失败，此时还没有产生任何预占。
type CheckStockHandler struct {
	NextHandler
}

func (h *CheckStockHandler) Handle(sagaCtx *Context) error {
	_, span := sagaCtx.Tracer.Start(sagaCtx.Ctx, "saga.CheckStock")
	defer span.End()
	span.SetAttributes(attribute.Int("cart.lines", len(sagaCtx.Lines)))

	var unavailable []checkoutdomain.UnavailableItem
	for _, line := range sagaCtx.Lines {
		available, free := sagaCtx.Inventory.CheckStock(line.StockKey(), line.Quantity)
		if !available {
			unavailable = append(unavailable, checkoutdomain.UnavailableItem{
				Key:       line.StockKey(),
				Requested: line.Quantity,
				Free:      free,
			})
		}
	}

	if len(unavailable) > 0 {
		err := &checkoutdomain.InsufficientStockError{Items: unavailable}
		span.RecordError(err)
		span.SetStatus(codes.Error, "stock check failed")
		return err
	}

	span.AddEvent("All line items available")
	return h.executeNext(sagaCtx)
}
