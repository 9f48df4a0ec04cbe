package saga

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/trace"

	checkoutdomain "storefront/internal/checkout/domain"
	"storefront/internal/checkout/port"
	"storefront/internal/inventory"
	"storefront/internal/order"
	orderdomain "storefront/internal/order/domain"
	"storefront/internal/pkg/logger"
)

// Reservation 记录 saga 本次尝试中成功建立的一个预占。
type Reservation struct {
	ID   string
	Line checkoutdomain.CartLine
}

// Context 在 saga 流程中传递上下文数据。所有外部依赖都是抽象接口，
// 库存和订单的内存 Store 由进程内直接持有。
type Context struct {
	Ctx    context.Context
	Tracer trace.Tracer

	Request *checkoutdomain.PlaceOrderRequest
	// Lines 已按库存键稳定排序，保证预占顺序确定，
	// 避免底层每键锁出现锁序死锁。
	Lines []checkoutdomain.CartLine

	Order        *orderdomain.Order
	Reservations []Reservation
	Charge       port.ChargeResult

	// 支付失败原因，由 ChargeHandler 在返回错误前写入，
	// 订单取消的补偿闭包据此落 paymentStatus=FAILED。
	PaymentFailure *checkoutdomain.PaymentFailedError

	Inventory *inventory.Store
	Orders    *order.Store
	Gateway   port.PaymentGateway
	Events    port.EventPublisher

	compensations []func(ctx context.Context)
	compLock      sync.Mutex
}

// AddCompensation 注册一个补偿动作。后注册的先执行（LIFO），
// 因此预占的释放天然是逆序的。
func (c *Context) AddCompensation(comp func(ctx context.Context)) {
	c.compLock.Lock()
	defer c.compLock.Unlock()
	c.compensations = append([]func(context.Context){comp}, c.compensations...)
}

// TriggerCompensation 依次执行所有已注册的补偿动作。
func (c *Context) TriggerCompensation(ctx context.Context) {
	c.compLock.Lock()
	comps := c.compensations
	c.compensations = nil
	c.compLock.Unlock()

	logger.Ctx(ctx).Info().
		Int("count", len(comps)).
		Str("customer", c.Request.Cart.CustomerID).
		Msg("executing saga compensation")
	for _, comp := range comps {
		comp(ctx)
	}
}

// Handler 是 saga 单个步骤的抽象，以责任链方式串联。
type Handler interface {
	SetNext(handler Handler) Handler
	Handle(sagaCtx *Context) error
}

// NextHandler 提供链式调用的公共实现，嵌入到每个具体步骤中。
type NextHandler struct {
	next Handler
}

func (h *NextHandler) SetNext(handler Handler) Handler {
	h.next = handler
	return handler
}

func (h *NextHandler) executeNext(sagaCtx *Context) error {
	if h.next != nil {
		return h.next.Handle(sagaCtx)
	}
	return nil
}
