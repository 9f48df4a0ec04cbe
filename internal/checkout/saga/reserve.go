package saga

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	checkoutdomain "storefront/internal/checkout/domain"
	invdomain "storefront/internal/inventory/domain"
	"storefront/internal/pkg/logger"
)

// ReserveHandler 为每个行项目建立预占。行项目已按库存键排序，
// 多单并发时的加锁顺序因此是确定的。
//
// 任何一项预占失败都会中断链条；此前每个成功的预占都已注册了
// 自己的释放补偿，LIFO 执行即逆序释放——对外表现为全有或全无。
type ReserveHandler struct {
	NextHandler
}

func (h *ReserveHandler) Handle(sagaCtx *Context) error {
	_, span := sagaCtx.Tracer.Start(sagaCtx.Ctx, "saga.Reserve")
	defer span.End()

	orderRef := sagaCtx.Request.RequestID

	for _, line := range sagaCtx.Lines {
		line := line
		reservationID, err := sagaCtx.Inventory.Reserve(line.StockKey(), line.Quantity, orderRef)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "stock reservation failed")

			if errors.Is(err, invdomain.ErrOutOfStock) ||
				errors.Is(err, invdomain.ErrUnknownStockKey) ||
				errors.Is(err, invdomain.ErrStockInactive) {
				_, free := sagaCtx.Inventory.CheckStock(line.StockKey(), line.Quantity)
				return &checkoutdomain.InsufficientStockError{
					Items: []checkoutdomain.UnavailableItem{
						{Key: line.StockKey(), Requested: line.Quantity, Free: free},
					},
				}
			}
			return err
		}

		sagaCtx.Reservations = append(sagaCtx.Reservations, Reservation{ID: reservationID, Line: line})

		// 补偿：释放这个预占。Release 幂等，已被 Reaper 回收时是无害 miss。
		sagaCtx.AddCompensation(func(compCtx context.Context) {
			if !sagaCtx.Inventory.Release(reservationID) {
				logger.Ctx(compCtx).Warn().
					Str("reservation", reservationID).
					Stringer("stock_key", line.StockKey()).
					Msg("compensation found reservation already gone")
			}
		})
	}

	span.SetAttributes(attribute.Int("reservations", len(sagaCtx.Reservations)))
	span.AddEvent("All line items reserved")
	return h.executeNext(sagaCtx)
}
