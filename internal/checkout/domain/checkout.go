package domain

import (
	invdomain "storefront/internal/inventory/domain"
	orderdomain "storefront/internal/order/domain"
)

// CartLine 购物车中的一行。
type CartLine struct {
	ProductID string
	VariantID string
	Quantity  int
	UnitPrice int64 // 单位：分
}

// StockKey 返回该行对应的库存键。
func (l CartLine) StockKey() invdomain.StockKey {
	return invdomain.StockKey{ProductID: l.ProductID, VariantID: l.VariantID}
}

// CartSnapshot 是进入 checkout 时的购物车快照：行项目和定价在
// saga 开始前就固定下来，之后的商品调价不影响本次下单。
type CartSnapshot struct {
	CustomerID string
	Lines      []CartLine
	Pricing    orderdomain.Pricing
}

// PlaceOrderRequest 下单请求。RequestID 是可选的客户端幂等键：
// 同一 RequestID 的重试不会重复预占库存、重复创建订单。
type PlaceOrderRequest struct {
	RequestID       string
	Cart            CartSnapshot
	ShippingAddress orderdomain.Address
	ShippingMethod  string
	PaymentMethod   string
}
