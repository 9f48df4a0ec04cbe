package infrastructure

import (
	"database/sql"
	"time"

	"storefront/internal/order/domain"
)

// OrderModel 对应数据库中的 orders 表。
type OrderModel struct {
	ID          string `gorm:"primarykey;size:36"`
	OrderNumber string `gorm:"size:32;uniqueIndex;not null"`
	CustomerID  string `gorm:"size:64;not null;index"`

	Status        string `gorm:"size:16;not null"`
	PaymentStatus string `gorm:"size:16;not null"`

	Subtotal     int64 `gorm:"not null"`
	Discount     int64 `gorm:"not null;default:0"`
	ShippingCost int64 `gorm:"not null;default:0"`
	Total        int64 `gorm:"not null"`

	Recipient      string `gorm:"size:128"`
	Phone          string `gorm:"size:32"`
	AddressLine1   string `gorm:"size:256"`
	AddressLine2   string `gorm:"size:256"`
	City           string `gorm:"size:64"`
	PostCode       string `gorm:"size:16"`
	Country        string `gorm:"size:64"`
	ShippingMethod string `gorm:"size:32"`
	PaymentMethod  string `gorm:"size:32"`

	PaymentTransactionID string `gorm:"size:64"`
	TrackingNumber       string `gorm:"size:64"`
	ShippingCompany      string `gorm:"size:64"`
	CancelReason         string `gorm:"size:256"`

	CreatedAt   time.Time
	UpdatedAt   time.Time
	PaidAt      sql.NullTime
	ShippedAt   sql.NullTime
	DeliveredAt sql.NullTime

	// 关联关系
	Items []OrderItemModel `gorm:"foreignKey:OrderID"`
}

// TableName 指定 GORM 应该使用的表名
func (OrderModel) TableName() string { return "orders" }

// OrderItemModel 对应数据库中的 order_item 表。
type OrderItemModel struct {
	ID        uint   `gorm:"primarykey"`
	OrderID   string `gorm:"size:36;not null;index"`
	ProductID string `gorm:"size:64;not null"`
	VariantID string `gorm:"size:64;not null;default:''"`
	Quantity  int    `gorm:"not null"`
	UnitPrice int64  `gorm:"not null"`
}

// TableName 指定 GORM 应该使用的表名
func (OrderItemModel) TableName() string { return "order_item" }

// ToModel 将领域聚合转换为数据库模型。
func ToModel(o *domain.Order) *OrderModel {
	m := &OrderModel{
		ID:                   o.ID,
		OrderNumber:          o.OrderNumber,
		CustomerID:           o.CustomerID,
		Status:               string(o.Status),
		PaymentStatus:        string(o.PaymentStatus),
		Subtotal:             o.Pricing.Subtotal,
		Discount:             o.Pricing.Discount,
		ShippingCost:         o.Pricing.ShippingCost,
		Total:                o.Pricing.Total,
		Recipient:            o.ShippingAddress.Recipient,
		Phone:                o.ShippingAddress.Phone,
		AddressLine1:         o.ShippingAddress.Line1,
		AddressLine2:         o.ShippingAddress.Line2,
		City:                 o.ShippingAddress.City,
		PostCode:             o.ShippingAddress.PostCode,
		Country:              o.ShippingAddress.Country,
		ShippingMethod:       o.ShippingMethod,
		PaymentMethod:        o.PaymentMethod,
		PaymentTransactionID: o.PaymentTransactionID,
		TrackingNumber:       o.TrackingNumber,
		ShippingCompany:      o.ShippingCompany,
		CancelReason:         o.CancelReason,
		CreatedAt:            o.CreatedAt,
		UpdatedAt:            o.UpdatedAt,
		PaidAt:               toNullTime(o.PaidAt),
		ShippedAt:            toNullTime(o.ShippedAt),
		DeliveredAt:          toNullTime(o.DeliveredAt),
	}
	for _, item := range o.Items {
		m.Items = append(m.Items, OrderItemModel{
			OrderID:   o.ID,
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return m
}

// ToDomain 将数据库模型转换为领域聚合。
func ToDomain(m *OrderModel) *domain.Order {
	o := &domain.Order{
		ID:            m.ID,
		OrderNumber:   m.OrderNumber,
		CustomerID:    m.CustomerID,
		Status:        domain.Status(m.Status),
		PaymentStatus: domain.PaymentStatus(m.PaymentStatus),
		Pricing: domain.Pricing{
			Subtotal:     m.Subtotal,
			Discount:     m.Discount,
			ShippingCost: m.ShippingCost,
			Total:        m.Total,
		},
		ShippingAddress: domain.Address{
			Recipient: m.Recipient,
			Phone:     m.Phone,
			Line1:     m.AddressLine1,
			Line2:     m.AddressLine2,
			City:      m.City,
			PostCode:  m.PostCode,
			Country:   m.Country,
		},
		ShippingMethod:       m.ShippingMethod,
		PaymentMethod:        m.PaymentMethod,
		PaymentTransactionID: m.PaymentTransactionID,
		TrackingNumber:       m.TrackingNumber,
		ShippingCompany:      m.ShippingCompany,
		CancelReason:         m.CancelReason,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
		PaidAt:               fromNullTime(m.PaidAt),
		ShippedAt:            fromNullTime(m.ShippedAt),
		DeliveredAt:          fromNullTime(m.DeliveredAt),
	}
	for _, item := range m.Items {
		o.Items = append(o.Items, domain.Item{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return o
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func fromNullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	out := t.Time
	return &out
}
