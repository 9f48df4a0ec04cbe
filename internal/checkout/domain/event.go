package domain

import (
	"time"

	invdomain "storefront/internal/inventory/domain"
)

// 订单生命周期事件类型。
const (
	EventOrderPaid      = "order_paid"
	EventOrderCancelled = "order_cancelled"
	EventOrderPreparing = "order_preparing"
	EventOrderShipped   = "order_shipped"
	EventOrderDelivered = "order_delivered"
)

// OrderEvent 订单生命周期事件，推送给门店会话并写入事件流。
type OrderEvent struct {
	Type          string    `json:"type"`
	OrderID       string    `json:"orderId"`
	OrderNumber   string    `json:"orderNumber"`
	CustomerID    string    `json:"customerId"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"paymentStatus"`
	Reason        string    `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// OversellRiskEvent 提交预占时发现它已被 Reaper 回收：支付已成功，
// 但库存没有为本单扣减。这不是本次请求的失败（订单照常转 Paid），
// 而是需要人工对账的运营告警。
type OversellRiskEvent struct {
	OrderID       string             `json:"orderId"`
	ReservationID string             `json:"reservationId"`
	Key           invdomain.StockKey `json:"stockKey"`
	Quantity      int                `json:"quantity"`
	OccurredAt    time.Time          `json:"occurredAt"`
}
