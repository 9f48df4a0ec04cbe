package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.opentelemetry.io/otel"

	checkoutdomain "storefront/internal/checkout/domain"
	"storefront/internal/checkout/infrastructure"
	"storefront/internal/checkout/port"
	"storefront/internal/inventory"
	invdomain "storefront/internal/inventory/domain"
	"storefront/internal/order"
	orderdomain "storefront/internal/order/domain"
)

// stubGateway 可编程的支付网关：result/err 控制应答，
// beforeReply 在应答前执行（用于在支付窗口内制造并发事件）。
type stubGateway struct {
	result      port.ChargeResult
	err         error
	beforeReply func()
	calls       int
}

func (g *stubGateway) Charge(_ context.Context, _ port.ChargeRequest) (port.ChargeResult, error) {
	g.calls++
	if g.beforeReply != nil {
		g.beforeReply()
	}
	return g.result, g.err
}

func approvingGateway() *stubGateway {
	return &stubGateway{result: port.ChargeResult{Success: true, TransactionID: "txn-test"}}
}

type CheckoutSuite struct {
	suite.Suite
	inventory *inventory.Store
	orders    *order.Store
	gateway   *stubGateway
	events    *infrastructure.MemoryEventPublisher
	service   *Service
}

func (s *CheckoutSuite) SetupTest() {
	s.inventory = inventory.NewStore(15 * time.Minute)
	s.orders = order.NewStore()
	s.gateway = approvingGateway()
	s.events = infrastructure.NewMemoryEventPublisher(nil)
	s.service = NewService(
		s.inventory,
		s.orders,
		s.gateway,
		infrastructure.NewLocalShippingProvider(),
		s.events,
		otel.Tracer("checkout-test"),
	)

	s.inventory.SetStock(invdomain.StockKey{ProductID: "laptop"}, 5, 1)
	s.inventory.SetStock(invdomain.StockKey{ProductID: "mouse"}, 50, 5)
}

func (s *CheckoutSuite) placeRequest(lines ...checkoutdomain.CartLine) *checkoutdomain.PlaceOrderRequest {
	var subtotal int64
	for _, l := range lines {
		subtotal += l.UnitPrice * int64(l.Quantity)
	}
	return &checkoutdomain.PlaceOrderRequest{
		Cart: checkoutdomain.CartSnapshot{
			CustomerID: "cust-1",
			Lines:      lines,
			Pricing:    orderdomain.Pricing{Subtotal: subtotal, Total: subtotal},
		},
		ShippingAddress: orderdomain.Address{Recipient: "Alice", Line1: "1 Main St", City: "Springfield", Country: "US"},
		ShippingMethod:  "standard",
		PaymentMethod:   "card",
	}
}

func (s *CheckoutSuite) TestSuccessfulCheckout() {
	req := s.placeRequest(checkoutdomain.CartLine{ProductID: "laptop", Quantity: 2, UnitPrice: 100000})

	o, err := s.service.PlaceOrder(context.Background(), req)
	s.NoError(err)
	s.Require().NotNil(o)
	s.Equal(orderdomain.StatusPaid, o.Status)
	s.Equal(orderdomain.PaymentPaid, o.PaymentStatus)
	s.Equal("txn-test", o.PaymentTransactionID)
	s.NotNil(o.PaidAt)
	s.Equal(1, s.gateway.calls)

	// 预占已提交：总量永久扣减，无残留预占
	rec, err := s.inventory.Snapshot(invdomain.StockKey{ProductID: "laptop"})
	s.NoError(err)
	s.Equal(3, rec.TotalQuantity)
	s.Equal(0, rec.ReservedQuantity)

	events := s.events.OrderEvents()
	s.Require().Len(events, 1)
	s.Equal(checkoutdomain.EventOrderPaid, events[0].Type)
	s.Equal(o.ID, events[0].OrderID)
	s.Empty(s.events.OversellEvents())
}

func (s *CheckoutSuite) TestInsufficientStockFailsFast() {
	req := s.placeRequest(
		checkoutdomain.CartLine{ProductID: "laptop", Quantity: 99, UnitPrice: 100000},
		checkoutdomain.CartLine{ProductID: "unknown", Quantity: 1, UnitPrice: 500},
	)

	o, err := s.service.PlaceOrder(context.Background(), req)
	s.Nil(o)

	var insufficient *checkoutdomain.InsufficientStockError
	s.Require().ErrorAs(err, &insufficient)
	// 两个问题行项目同时报告，而不是只报第一个
	s.Len(insufficient.Items, 2)

	// 检查阶段只读，不触碰网关、不留下订单
	s.Equal(0, s.gateway.calls)
	rec, _ := s.inventory.Snapshot(invdomain.StockKey{ProductID: "laptop"})
	s.Equal(0, rec.ReservedQuantity)
	s.Empty(s.orders.ListByCustomer("cust-1"))
}

func (s *CheckoutSuite) TestReserveFailureReleasesEarlierHolds() {
	// 两行各要 3 件同一 SKU，库存 5：逐行检查都通过，
	// 第一行预占成功后第二行预占不足
	req := s.placeRequest(
		checkoutdomain.CartLine{ProductID: "laptop", Quantity: 3, UnitPrice: 100000},
		checkoutdomain.CartLine{ProductID: "laptop", Quantity: 3, UnitPrice: 100000},
	)

	o, err := s.service.PlaceOrder(context.Background(), req)
	s.Nil(o)

	var insufficient *checkoutdomain.InsufficientStockError
	s.Require().ErrorAs(err, &insufficient)
	s.Require().Len(insufficient.Items, 1)
	s.Equal(3, insufficient.Items[0].Requested)
	s.Equal(2, insufficient.Items[0].Free)

	// 第一行的预占已补偿释放，网关没有被触达，没有残留订单
	s.Equal(0, s.gateway.calls)
	rec, _ := s.inventory.Snapshot(invdomain.StockKey{ProductID: "laptop"})
	s.Equal(5, rec.TotalQuantity)
	s.Equal(0, rec.ReservedQuantity)
	s.Empty(s.orders.ListByCustomer("cust-1"))
}

func (s *CheckoutSuite) TestPaymentDeclinedCompensates() {
	s.gateway.result = port.ChargeResult{Success: false, ErrorCode: "CARD_DECLINED", Reason: "insufficient funds"}

	req := s.placeRequest(checkoutdomain.CartLine{ProductID: "laptop", Quantity: 2, UnitPrice: 100000})
	o, err := s.service.PlaceOrder(context.Background(), req)

	var payment *checkoutdomain.PaymentFailedError
	s.Require().ErrorAs(err, &payment)
	s.Equal("CARD_DECLINED", payment.Code)

	// 补偿后的终态订单随错误一起返回
	s.Require().NotNil(o)
	s.Equal(orderdomain.StatusCancelled, o.Status)
	s.Equal(orderdomain.PaymentFailed, o.PaymentStatus)
	s.Equal("insufficient funds", o.CancelReason)

	// 预占已释放，库存完好
	rec, _ := s.inventory.Snapshot(invdomain.StockKey{ProductID: "laptop"})
	s.Equal(5, rec.TotalQuantity)
	s.Equal(0, rec.ReservedQuantity)

	events := s.events.OrderEvents()
	s.Require().Len(events, 1)
	s.Equal(checkoutdomain.EventOrderCancelled, events[0].Type)
	s.Equal("insufficient funds", events[0].Reason)
}

func (s *CheckoutSuite) TestGatewayTransportErrorTreatedAsFailure() {
	s.gateway.err = errors.New("connection reset by peer")

	req := s.placeRequest(checkoutdomain.CartLine{ProductID: "laptop", Quantity: 1, UnitPrice: 100000})
	o, err := s.service.PlaceOrder(context.Background(), req)

	var payment *checkoutdomain.PaymentFailedError
	s.Require().ErrorAs(err, &payment)
	// 绝不自动重试：结果未知时宁可让客户重试，不冒二次扣款风险
	s.Equal(1, s.gateway.calls)
	s.Require().NotNil(o)
	s.Equal(orderdomain.StatusCancelled, o.Status)
}

func (s *CheckoutSuite) TestMultiSKUFailureReleasesAllReservations() {
	s.gateway.result = port.ChargeResult{Success: false, ErrorCode: "CARD_DECLINED", Reason: "declined"}

	req := s.placeRequest(
		checkoutdomain.CartLine{ProductID: "laptop", Quantity: 3, UnitPrice: 100000},
		checkoutdomain.CartLine{ProductID: "mouse", Quantity: 4, UnitPrice: 2000},
	)

	o, err := s.service.PlaceOrder(context.Background(), req)
	s.Error(err)
	s.Require().NotNil(o)
	s.Equal(orderdomain.StatusCancelled, o.Status)

	// 两个 SKU 的预占都被补偿释放
	for key, total := range map[string]int{"laptop": 5, "mouse": 50} {
		rec, snapErr := s.inventory.Snapshot(invdomain.StockKey{ProductID: key})
		s.Require().NoError(snapErr)
		s.Equal(total, rec.TotalQuantity, key)
		s.Equal(0, rec.ReservedQuantity, key)
	}
}

func (s *CheckoutSuite) TestOversellRiskWhenHoldExpiresDuringPayment() {
	// 预占立即过期 + 支付期间 Reaper 跑了一轮
	expiringInv := inventory.NewStore(-time.Second)
	expiringInv.SetStock(invdomain.StockKey{ProductID: "laptop"}, 5, 1)
	reaper := inventory.NewReaper(expiringInv, time.Minute)

	gateway := approvingGateway()
	gateway.beforeReply = func() { reaper.ReapOnce(time.Now()) }

	svc := NewService(expiringInv, s.orders, gateway, infrastructure.NewLocalShippingProvider(), s.events, otel.Tracer("checkout-test"))

	req := s.placeRequest(checkoutdomain.CartLine{ProductID: "laptop", Quantity: 2, UnitPrice: 100000})
	o, err := svc.PlaceOrder(context.Background(), req)

	// 支付已成功：订单照常转 Paid，超卖风险走告警而不是失败
	s.NoError(err)
	s.Require().NotNil(o)
	s.Equal(orderdomain.StatusPaid, o.Status)

	oversell := s.events.OversellEvents()
	s.Require().Len(oversell, 1)
	s.Equal(o.ID, oversell[0].OrderID)
	s.Equal(2, oversell[0].Quantity)

	// 预占被 Reaper 释放过，总量没有为本单扣减
	rec, _ := expiringInv.Snapshot(invdomain.StockKey{ProductID: "laptop"})
	s.Equal(5, rec.TotalQuantity)
}

func (s *CheckoutSuite) TestIdempotentRetryReturnsPriorOrder() {
	s.service.WithIdempotencyGuard(infrastructure.NewMemoryIdempotencyGuard())

	req := s.placeRequest(checkoutdomain.CartLine{ProductID: "laptop", Quantity: 2, UnitPrice: 100000})
	req.RequestID = "req-42"

	first, err := s.service.PlaceOrder(context.Background(), req)
	s.Require().NoError(err)

	second, err := s.service.PlaceOrder(context.Background(), req)
	s.NoError(err)
	s.Require().NotNil(second)
	s.Equal(first.ID, second.ID)

	// 库存只扣一次，网关只调一次
	rec, _ := s.inventory.Snapshot(invdomain.StockKey{ProductID: "laptop"})
	s.Equal(3, rec.TotalQuantity)
	s.Equal(1, s.gateway.calls)
}

func (s *CheckoutSuite) TestInFlightDuplicateRejected() {
	guard := infrastructure.NewMemoryIdempotencyGuard()
	s.service.WithIdempotencyGuard(guard)

	// 模拟同键请求仍在处理中
	started, _, err := guard.Begin(context.Background(), "req-42")
	s.Require().NoError(err)
	s.Require().True(started)

	req := s.placeRequest(checkoutdomain.CartLine{ProductID: "laptop", Quantity: 1, UnitPrice: 100000})
	req.RequestID = "req-42"

	o, err := s.service.PlaceOrder(context.Background(), req)
	s.Nil(o)
	s.ErrorIs(err, checkoutdomain.ErrDuplicateRequest)
	s.Equal(0, s.gateway.calls)
}

func (s *CheckoutSuite) TestFailedAttemptReleasesIdempotencyKey() {
	s.service.WithIdempotencyGuard(infrastructure.NewMemoryIdempotencyGuard())
	s.gateway.result = port.ChargeResult{Success: false, ErrorCode: "CARD_DECLINED", Reason: "declined"}

	req := s.placeRequest(checkoutdomain.CartLine{ProductID: "laptop", Quantity: 1, UnitPrice: 100000})
	req.RequestID = "req-42"

	_, err := s.service.PlaceOrder(context.Background(), req)
	s.Error(err)

	// 失败释放幂等键，换张卡重试同一 RequestID 可以成功
	s.gateway.result = port.ChargeResult{Success: true, TransactionID: "txn-2"}
	o, err := s.service.PlaceOrder(context.Background(), req)
	s.NoError(err)
	s.Require().NotNil(o)
	s.Equal(orderdomain.StatusPaid, o.Status)
}

func (s *CheckoutSuite) TestEmptyCartRejected() {
	o, err := s.service.PlaceOrder(context.Background(), s.placeRequest())
	s.Nil(o)

	var invalid *checkoutdomain.InvalidOrderError
	s.ErrorAs(err, &invalid)
}

func (s *CheckoutSuite) TestInvalidPricingCompensatesReservations() {
	req := s.placeRequest(checkoutdomain.CartLine{ProductID: "laptop", Quantity: 2, UnitPrice: 100000})
	req.Cart.Pricing.Total = 1 // 破坏价格不变式

	o, err := s.service.PlaceOrder(context.Background(), req)
	s.Nil(o)

	var invalid *checkoutdomain.InvalidOrderError
	s.Require().ErrorAs(err, &invalid)
	s.ErrorIs(err, orderdomain.ErrInvalidPricing)

	rec, _ := s.inventory.Snapshot(invdomain.StockKey{ProductID: "laptop"})
	s.Equal(0, rec.ReservedQuantity)
	s.Equal(0, s.gateway.calls)
}

func (s *CheckoutSuite) TestFulfillmentLifecycle() {
	req := s.placeRequest(checkoutdomain.CartLine{ProductID: "laptop", Quantity: 1, UnitPrice: 100000})
	o, err := s.service.PlaceOrder(context.Background(), req)
	s.Require().NoError(err)

	ctx := context.Background()

	prepared, err := s.service.StartFulfillment(ctx, o.ID)
	s.NoError(err)
	s.Equal(orderdomain.StatusPreparing, prepared.Status)

	shipped, err := s.service.MarkShipped(ctx, o.ID)
	s.NoError(err)
	s.Equal(orderdomain.StatusShipped, shipped.Status)
	s.NotEmpty(shipped.TrackingNumber)
	s.Equal("LOCAL-EXPRESS", shipped.ShippingCompany)

	info, err := s.service.Track(ctx, o.ID)
	s.NoError(err)
	s.Equal(shipped.TrackingNumber, info.TrackingNumber)

	delivered, err := s.service.MarkDelivered(ctx, o.ID)
	s.NoError(err)
	s.Equal(orderdomain.StatusDelivered, delivered.Status)

	types := make([]string, 0)
	for _, ev := range s.events.OrderEvents() {
		types = append(types, ev.Type)
	}
	s.Equal([]string{
		checkoutdomain.EventOrderPaid,
		checkoutdomain.EventOrderPreparing,
		checkoutdomain.EventOrderShipped,
		checkoutdomain.EventOrderDelivered,
	}, types)

	// 签收后不允许取消
	_, err = s.service.Cancel(ctx, o.ID, "changed my mind")
	s.ErrorIs(err, orderdomain.ErrInvalidTransition)
}

func (s *CheckoutSuite) TestCancelAfterPaymentRestoresStock() {
	req := s.placeRequest(checkoutdomain.CartLine{ProductID: "laptop", Quantity: 2, UnitPrice: 100000})
	o, err := s.service.PlaceOrder(context.Background(), req)
	s.Require().NoError(err)

	rec, _ := s.inventory.Snapshot(invdomain.StockKey{ProductID: "laptop"})
	s.Require().Equal(3, rec.TotalQuantity)

	cancelled, err := s.service.Cancel(context.Background(), o.ID, "customer request")
	s.NoError(err)
	s.Equal(orderdomain.StatusCancelled, cancelled.Status)
	s.Equal(orderdomain.PaymentRefunded, cancelled.PaymentStatus)

	// 已提交的扣减通过 Restore 加回
	rec, _ = s.inventory.Snapshot(invdomain.StockKey{ProductID: "laptop"})
	s.Equal(5, rec.TotalQuantity)
}

func (s *CheckoutSuite) TestCancelDuringCheckoutRejected() {
	// Pending 订单只在下单 saga 进行中可见；此时取消可能正落在
	// 库存提交和转 Paid 之间，必须拒绝
	pending, err := s.orders.Create(orderdomain.Draft{
		CustomerID:      "cust-1",
		Items:           []orderdomain.Item{{ProductID: "laptop", Quantity: 1, UnitPrice: 100000}},
		Pricing:         orderdomain.Pricing{Subtotal: 100000, Total: 100000},
		ShippingAddress: orderdomain.Address{Recipient: "Alice", Line1: "1 Main St", City: "Springfield", Country: "US"},
	})
	s.Require().NoError(err)

	o, err := s.service.Cancel(context.Background(), pending.ID, "operator cancel")
	s.Nil(o)
	s.ErrorIs(err, checkoutdomain.ErrCheckoutInProgress)

	// 订单未被触碰，库存没有被凭空加回
	current, err := s.orders.Get(pending.ID)
	s.Require().NoError(err)
	s.Equal(orderdomain.StatusPending, current.Status)
	rec, _ := s.inventory.Snapshot(invdomain.StockKey{ProductID: "laptop"})
	s.Equal(5, rec.TotalQuantity)
}

func (s *CheckoutSuite) TestTrackBeforeShipmentFails() {
	req := s.placeRequest(checkoutdomain.CartLine{ProductID: "laptop", Quantity: 1, UnitPrice: 100000})
	o, err := s.service.PlaceOrder(context.Background(), req)
	s.Require().NoError(err)

	_, err = s.service.Track(context.Background(), o.ID)
	s.Error(err)
}

func TestCheckoutSuite(t *testing.T) {
	suite.Run(t, new(CheckoutSuite))
}
