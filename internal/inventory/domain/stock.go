package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrOutOfStock 空闲库存不足，预占失败。
	ErrOutOfStock = errors.New("insufficient free stock")
	// ErrReservationNotFound 预占不存在（已提交、已释放或已被 Reaper 回收）。
	ErrReservationNotFound = errors.New("reservation not found")
	// ErrUnknownStockKey 库存记录不存在。
	ErrUnknownStockKey = errors.New("unknown stock key")
	// ErrStockInactive 商品已下架，不可预占。
	ErrStockInactive = errors.New("stock record inactive")
	// ErrResetBelowReserved 重置的总量低于未结清的预占量，会破坏
	// Reserved <= Total 不变式。
	ErrResetBelowReserved = errors.New("total below outstanding reservations")
)

// StockKey 是库存记录的复合主键。VariantID 可以为空（无规格商品）。
type StockKey struct {
	ProductID string `json:"productId"`
	VariantID string `json:"variantId,omitempty"`
}

func (k StockKey) String() string {
	if k.VariantID == "" {
		return k.ProductID
	}
	return fmt.Sprintf("%s/%s", k.ProductID, k.VariantID)
}

// StockRecord 是单个 SKU 的库存计数。
// 不变式：0 <= ReservedQuantity <= TotalQuantity。
type StockRecord struct {
	Key               StockKey
	TotalQuantity     int
	ReservedQuantity  int
	LowStockThreshold int
	Active            bool
	LastUpdated       time.Time
}

// Free 返回可预占的空闲数量。
func (r StockRecord) Free() int {
	return r.TotalQuantity - r.ReservedQuantity
}

// LowStock 空闲库存是否已低于告警阈值。
func (r StockRecord) LowStock() bool {
	return r.Free() <= r.LowStockThreshold
}

// Reservation 是对库存的一次临时占用：降低空闲量但不减少总量。
// 只会被创建和销毁（Commit / Release / Reaper 过期回收），不会被修改。
type Reservation struct {
	ID        string
	Key       StockKey
	Quantity  int
	OrderID   string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired 预占是否已过期。
func (r Reservation) Expired(now time.Time) bool {
	return r.ExpiresAt.Before(now)
}
