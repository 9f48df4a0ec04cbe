package checkout

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	checkoutdomain "storefront/internal/checkout/domain"
	"storefront/internal/checkout/port"
	"storefront/internal/checkout/saga"
	"storefront/internal/inventory"
	invdomain "storefront/internal/inventory/domain"
	"storefront/internal/order"
	orderdomain "storefront/internal/order/domain"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/metrics"
)

// Service 编排下单 saga 和订单的后续履约生命周期。
// 它是唯一驱动订单状态流转的组件，外部读路径不做任何变更。
type Service struct {
	inventory *inventory.Store
	orders    *order.Store
	gateway   port.PaymentGateway
	shipping  port.ShippingProvider
	events    port.EventPublisher
	tracer    trace.Tracer

	guard   port.IdempotencyGuard // 可选
	archive orderdomain.Repository // 可选：订单归档到持久存储
}

func NewService(
	inv *inventory.Store,
	orders *order.Store,
	gateway port.PaymentGateway,
	shipping port.ShippingProvider,
	events port.EventPublisher,
	tracer trace.Tracer,
) *Service {
	return &Service{
		inventory: inv,
		orders:    orders,
		gateway:   gateway,
		shipping:  shipping,
		events:    events,
		tracer:    tracer,
	}
}

// WithIdempotencyGuard 启用下单幂等保护。
func (s *Service) WithIdempotencyGuard(guard port.IdempotencyGuard) *Service {
	s.guard = guard
	return s
}

// WithArchive 启用订单持久化归档。
func (s *Service) WithArchive(repo orderdomain.Repository) *Service {
	s.archive = repo
	return s
}

// PlaceOrder 执行下单 saga：校验库存 -> 预占 -> 建单 -> 扣款 ->
// 提交或补偿。每次调用结束时订单恰好处于 Paid 或带原因的 Cancelled
// 之一；失败时返回已取消的订单（若已创建）和对应的错误。
//
// 失败的 saga 不原地重试，客户重试 = 发起新的 PlaceOrder。
func (s *Service) PlaceOrder(ctx context.Context, req *checkoutdomain.PlaceOrderRequest) (*orderdomain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.PlaceOrder")
	defer span.End()
	span.SetAttributes(
		attribute.String("customer.id", req.Cart.CustomerID),
		attribute.Int("cart.lines", len(req.Cart.Lines)),
	)

	if len(req.Cart.Lines) == 0 {
		return nil, &checkoutdomain.InvalidOrderError{Cause: errors.New("empty cart")}
	}

	useGuard := s.guard != nil && req.RequestID != ""
	if useGuard {
		started, existing, err := s.guard.Begin(ctx, req.RequestID)
		if err != nil {
			// 幂等存储不可用时放行：可用性优先，风险是重复下单回到源系统的旧行为
			logger.Ctx(ctx).Warn().Err(err).Msg("idempotency guard unavailable, proceeding without it")
			useGuard = false
		} else if !started {
			if existing != "" {
				span.AddEvent("duplicate request, returning prior order")
				return s.orders.Get(existing)
			}
			return nil, checkoutdomain.ErrDuplicateRequest
		}
	}

	// 预占顺序确定化：按库存键稳定排序
	lines := make([]checkoutdomain.CartLine, len(req.Cart.Lines))
	copy(lines, req.Cart.Lines)
	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].StockKey().String() < lines[j].StockKey().String()
	})

	sagaCtx := &saga.Context{
		Ctx:       ctx,
		Tracer:    s.tracer,
		Request:   req,
		Lines:     lines,
		Inventory: s.inventory,
		Orders:    s.orders,
		Gateway:   s.gateway,
		Events:    s.events,
	}

	if err := s.buildChain().Handle(sagaCtx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "checkout saga failed")
		logger.Ctx(ctx).Warn().Err(err).
			Str("customer", req.Cart.CustomerID).
			Msg("checkout saga failed, compensation triggered")

		sagaCtx.TriggerCompensation(ctx)
		s.archiveOrder(ctx, sagaCtx.Order)
		if useGuard {
			if abortErr := s.guard.Abort(ctx, req.RequestID); abortErr != nil {
				logger.Ctx(ctx).Warn().Err(abortErr).Msg("failed to release idempotency key")
			}
		}
		metrics.CheckoutAttempts.WithLabelValues(outcomeOf(err)).Inc()
		return sagaCtx.Order, err
	}

	s.archiveOrder(ctx, sagaCtx.Order)
	if useGuard {
		if err := s.guard.Complete(ctx, req.RequestID, sagaCtx.Order.ID); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Msg("failed to record idempotency result")
		}
	}
	metrics.CheckoutAttempts.WithLabelValues("paid").Inc()

	logger.Ctx(ctx).Info().
		Str("order", sagaCtx.Order.ID).
		Str("order_number", sagaCtx.Order.OrderNumber).
		Msg("checkout completed, order paid")
	return sagaCtx.Order, nil
}

// buildChain 组装 saga 责任链。
func (s *Service) buildChain() saga.Handler {
	chain := new(saga.CheckStockHandler)
	chain.
		SetNext(new(saga.ReserveHandler)).
		SetNext(new(saga.CreateOrderHandler)).
		SetNext(new(saga.ChargeHandler)).
		SetNext(new(saga.CommitHandler))
	return chain
}

// StartFulfillment 开始备货：Paid -> Preparing。
func (s *Service) StartFulfillment(ctx context.Context, orderID string) (*orderdomain.Order, error) {
	updated, err := s.orders.Apply(orderID, func(o *orderdomain.Order) error {
		return o.StartFulfillment()
	})
	if err != nil {
		return nil, err
	}
	s.archiveOrder(ctx, updated)
	s.publishLifecycle(ctx, checkoutdomain.EventOrderPreparing, updated, "")
	return updated, nil
}

// MarkShipped 向物流商创建运单并把订单转为 Shipped。
func (s *Service) MarkShipped(ctx context.Context, orderID string) (*orderdomain.Order, error) {
	current, err := s.orders.Get(orderID)
	if err != nil {
		return nil, err
	}

	shipment, err := s.shipping.CreateShipment(ctx, current.ID, current.ShippingAddress, current.Items)
	if err != nil {
		return nil, err
	}

	updated, err := s.orders.Apply(orderID, func(o *orderdomain.Order) error {
		return o.MarkShipped(shipment.TrackingNumber, shipment.Carrier)
	})
	if err != nil {
		return nil, err
	}
	s.archiveOrder(ctx, updated)
	s.publishLifecycle(ctx, checkoutdomain.EventOrderShipped, updated, "")
	return updated, nil
}

// MarkDelivered 签收：Shipped -> Delivered。
func (s *Service) MarkDelivered(ctx context.Context, orderID string) (*orderdomain.Order, error) {
	updated, err := s.orders.Apply(orderID, func(o *orderdomain.Order) error {
		return o.MarkDelivered()
	})
	if err != nil {
		return nil, err
	}
	s.archiveOrder(ctx, updated)
	s.publishLifecycle(ctx, checkoutdomain.EventOrderDelivered, updated, "")
	return updated, nil
}

// Cancel 客户/运营主动取消，Paid/Preparing 下合法。
// 与失败补偿不同：订单若已支付（库存已永久扣减），这里走 Restore
// 把数量加回总库存，而不是 Release 一个早已不存在的预占。
//
// Pending 订单只在下单 saga 进行期间存在，归 saga 独占：此时取消
// 可能落在库存 Commit 和 MarkPaid 之间，留下既扣了库存又没有
// 退款标记的取消单，所以这里直接拒绝，等 saga 收敛后再取消。
func (s *Service) Cancel(ctx context.Context, orderID, reason string) (*orderdomain.Order, error) {
	var restoreStock bool
	updated, err := s.orders.Apply(orderID, func(o *orderdomain.Order) error {
		if o.Status == orderdomain.StatusPending {
			return checkoutdomain.ErrCheckoutInProgress
		}
		restoreStock = o.Status == orderdomain.StatusPaid || o.Status == orderdomain.StatusPreparing
		if err := o.Cancel(reason); err != nil {
			return err
		}
		if restoreStock {
			o.MarkRefunded()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if restoreStock {
		for _, item := range updated.Items {
			key := invKey(item)
			if restoreErr := s.inventory.Restore(key, item.Quantity); restoreErr != nil {
				logger.Ctx(ctx).Error().Err(restoreErr).
					Str("order", updated.ID).
					Stringer("stock_key", key).
					Msg("failed to restore committed stock on cancellation")
			}
		}
	}

	s.archiveOrder(ctx, updated)
	s.publishLifecycle(ctx, checkoutdomain.EventOrderCancelled, updated, reason)
	return updated, nil
}

// Track 查询运单轨迹。
func (s *Service) Track(ctx context.Context, orderID string) (port.TrackingInfo, error) {
	o, err := s.orders.Get(orderID)
	if err != nil {
		return port.TrackingInfo{}, err
	}
	if o.TrackingNumber == "" {
		return port.TrackingInfo{}, errors.New("order has no shipment yet")
	}
	return s.shipping.Track(ctx, o.TrackingNumber)
}

func (s *Service) archiveOrder(ctx context.Context, o *orderdomain.Order) {
	if s.archive == nil || o == nil {
		return
	}
	// 归档失败不阻断主流程，内存 Store 仍是事实来源
	if err := s.archive.Save(ctx, o); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("order", o.ID).Msg("order archive failed")
	}
}

func (s *Service) publishLifecycle(ctx context.Context, eventType string, o *orderdomain.Order, reason string) {
	if err := s.events.PublishOrderEvent(ctx, checkoutdomain.OrderEvent{
		Type:          eventType,
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		CustomerID:    o.CustomerID,
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		Reason:        reason,
		OccurredAt:    time.Now(),
	}); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("order", o.ID).Msg("failed to publish order event")
	}
}

func outcomeOf(err error) string {
	var insufficient *checkoutdomain.InsufficientStockError
	var invalid *checkoutdomain.InvalidOrderError
	var payment *checkoutdomain.PaymentFailedError
	switch {
	case errors.As(err, &insufficient):
		return "insufficient_stock"
	case errors.As(err, &invalid):
		return "invalid_order"
	case errors.As(err, &payment):
		return "payment_failed"
	default:
		return "internal"
	}
}

func invKey(item orderdomain.Item) invdomain.StockKey {
	return invdomain.StockKey{ProductID: item.ProductID, VariantID: item.VariantID}
}
