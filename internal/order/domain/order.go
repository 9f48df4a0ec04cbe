package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidTransition 非法的订单状态流转，正常 saga 流程不会触发。
	ErrInvalidTransition = errors.New("invalid order status transition")
	// ErrInvalidPricing 价格不变式被破坏：total != subtotal - discount + shipping。
	ErrInvalidPricing = errors.New("order pricing invariant violated")
	// ErrEmptyOrder 订单缺少必填字段。
	ErrEmptyOrder = errors.New("cannot create order with empty required fields")
)

// Status 定义了订单的生命周期状态。
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPaid      Status = "PAID"
	StatusPreparing Status = "PREPARING"
	StatusShipped   Status = "SHIPPED"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
)

// PaymentStatus 是支付侧的独立状态。
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentFailed   PaymentStatus = "FAILED"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

// Item 是下单时的行项目快照。后续商品调价不影响已下的订单。
type Item struct {
	ProductID string
	VariantID string
	Quantity  int
	UnitPrice int64 // 单位：分
}

// Pricing 订单金额，全部以分为单位。
type Pricing struct {
	Subtotal     int64
	Discount     int64
	ShippingCost int64
	Total        int64
}

// Validate 校验价格不变式。
func (p Pricing) Validate() error {
	if p.Subtotal < 0 || p.Discount < 0 || p.ShippingCost < 0 {
		return fmt.Errorf("%w: negative amount", ErrInvalidPricing)
	}
	if p.Total != p.Subtotal-p.Discount+p.ShippingCost {
		return fmt.Errorf("%w: total=%d, expected %d", ErrInvalidPricing, p.Total, p.Subtotal-p.Discount+p.ShippingCost)
	}
	return nil
}

// Address 收货地址，saga 不解释其内容，只负责透传。
type Address struct {
	Recipient string
	Phone     string
	Line1     string
	Line2     string
	City      string
	PostCode  string
	Country   string
}

// Draft 是创建订单的输入。
type Draft struct {
	CustomerID      string
	Items           []Item
	Pricing         Pricing
	ShippingAddress Address
	ShippingMethod  string
	PaymentMethod   string
}

// Order 是订单聚合的根实体。状态流转只能通过下面的方法进行。
type Order struct {
	ID          string
	OrderNumber string
	CustomerID  string

	Status        Status
	PaymentStatus PaymentStatus

	Items           []Item
	Pricing         Pricing
	ShippingAddress Address
	ShippingMethod  string
	PaymentMethod   string

	PaymentTransactionID string
	TrackingNumber       string
	ShippingCompany      string
	CancelReason         string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	PaidAt      *time.Time
	ShippedAt   *time.Time
	DeliveredAt *time.Time
}

// NewOrder 工厂函数：校验价格不变式，生成 ID 和人类可读的订单号，
// 并复制行项目形成不可变快照。
func NewOrder(draft Draft) (*Order, error) {
	if draft.CustomerID == "" || len(draft.Items) == 0 {
		return nil, ErrEmptyOrder
	}
	for _, item := range draft.Items {
		if item.ProductID == "" || item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: bad line item %q", ErrEmptyOrder, item.ProductID)
		}
	}
	if err := draft.Pricing.Validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	items := make([]Item, len(draft.Items))
	copy(items, draft.Items)

	return &Order{
		ID:              uuid.New().String(),
		OrderNumber:     newOrderNumber(now),
		CustomerID:      draft.CustomerID,
		Status:          StatusPending,
		PaymentStatus:   PaymentPending,
		Items:           items,
		Pricing:         draft.Pricing,
		ShippingAddress: draft.ShippingAddress,
		ShippingMethod:  draft.ShippingMethod,
		PaymentMethod:   draft.PaymentMethod,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// newOrderNumber 生成 "ORD-20260901-AB12CD34" 形式的订单号。
func newOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), suffix)
}

// MarkPaid 支付成功：Pending -> Paid，记录支付时间与流水号。
func (o *Order) MarkPaid(transactionID string) error {
	if o.Status != StatusPending {
		return fmt.Errorf("%w: %s -> PAID", ErrInvalidTransition, o.Status)
	}
	now := time.Now()
	o.Status = StatusPaid
	o.PaymentStatus = PaymentPaid
	o.PaymentTransactionID = transactionID
	o.PaidAt = &now
	o.UpdatedAt = now
	return nil
}

// StartFulfillment 开始备货：Paid -> Preparing。
func (o *Order) StartFulfillment() error {
	if o.Status != StatusPaid {
		return fmt.Errorf("%w: %s -> PREPARING", ErrInvalidTransition, o.Status)
	}
	o.Status = StatusPreparing
	o.UpdatedAt = time.Now()
	return nil
}

// MarkShipped 发货：Preparing -> Shipped，写入运单号与承运商。
func (o *Order) MarkShipped(trackingNumber, shippingCompany string) error {
	if o.Status != StatusPreparing {
		return fmt.Errorf("%w: %s -> SHIPPED", ErrInvalidTransition, o.Status)
	}
	now := time.Now()
	o.Status = StatusShipped
	o.TrackingNumber = trackingNumber
	o.ShippingCompany = shippingCompany
	o.ShippedAt = &now
	o.UpdatedAt = now
	return nil
}

// MarkDelivered 签收：Shipped -> Delivered。
func (o *Order) MarkDelivered() error {
	if o.Status != StatusShipped {
		return fmt.Errorf("%w: %s -> DELIVERED", ErrInvalidTransition, o.Status)
	}
	now := time.Now()
	o.Status = StatusDelivered
	o.DeliveredAt = &now
	o.UpdatedAt = now
	return nil
}

// Cancel 取消订单，Pending/Paid/Preparing 三个状态下合法。
// 已发货或已签收的订单不允许取消。
func (o *Order) Cancel(reason string) error {
	switch o.Status {
	case StatusPending, StatusPaid, StatusPreparing:
	default:
		return fmt.Errorf("%w: %s -> CANCELLED", ErrInvalidTransition, o.Status)
	}
	o.Status = StatusCancelled
	o.CancelReason = reason
	o.UpdatedAt = time.Now()
	return nil
}

// MarkPaymentFailed 记录支付失败，状态流转由 Cancel 单独完成。
func (o *Order) MarkPaymentFailed() {
	o.PaymentStatus = PaymentFailed
	o.UpdatedAt = time.Now()
}

// MarkRefunded 记录退款（支付成功后的取消路径）。
func (o *Order) MarkRefunded() {
	o.PaymentStatus = PaymentRefunded
	o.UpdatedAt = time.Now()
}

// Clone 返回订单的深拷贝，读路径拿到的都是副本。
func (o *Order) Clone() *Order {
	cp := *o
	cp.Items = make([]Item, len(o.Items))
	copy(cp.Items, o.Items)
	if o.PaidAt != nil {
		t := *o.PaidAt
		cp.PaidAt = &t
	}
	if o.ShippedAt != nil {
		t := *o.ShippedAt
		cp.ShippedAt = &t
	}
	if o.DeliveredAt != nil {
		t := *o.DeliveredAt
		cp.DeliveredAt = &t
	}
	return &cp
}
