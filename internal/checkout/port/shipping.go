package port

import (
	"context"
	"time"

	orderdomain "storefront/internal/order/domain"
)

// Shipment 物流商创建运单的结果。
type Shipment struct {
	TrackingNumber string
	Carrier        string
}

// TrackingInfo 运单轨迹。
type TrackingInfo struct {
	TrackingNumber string
	Status         string
	LastLocation   string
	UpdatedAt      time.Time
}

// ShippingProvider 是物流商的出站端口，只在订单 Paid 之后使用，
// 不参与同步的 checkout 路径。
type ShippingProvider interface {
	CreateShipment(ctx context.Context, orderID string, recipient orderdomain.Address, items []orderdomain.Item) (Shipment, error)
	Track(ctx context.Context, trackingNumber string) (TrackingInfo, error)
}
