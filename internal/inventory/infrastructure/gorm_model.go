package infrastructure

import (
	"time"

	"storefront/internal/inventory/domain"
)

// StockModel 对应数据库中的 stock_record 表。
// 只持久化永久计数，活跃预占是纯内存状态，重启后归零。
type StockModel struct {
	ID                uint   `gorm:"primarykey"`
	ProductID         string `gorm:"size:64;not null;uniqueIndex:idx_stock_key"`
	VariantID         string `gorm:"size:64;not null;default:'';uniqueIndex:idx_stock_key"`
	TotalQuantity     int    `gorm:"not null"`
	LowStockThreshold int    `gorm:"not null;default:0"`
	Active            bool   `gorm:"not null;default:true"`
	UpdatedAt         time.Time
}

// TableName 指定 GORM 应该使用的表名
func (StockModel) TableName() string { return "stock_record" }

// ToDomainRecord 将数据库模型转换为领域模型。
func ToDomainRecord(m *StockModel) domain.StockRecord {
	return domain.StockRecord{
		Key:               domain.StockKey{ProductID: m.ProductID, VariantID: m.VariantID},
		TotalQuantity:     m.TotalQuantity,
		LowStockThreshold: m.LowStockThreshold,
		Active:            m.Active,
		LastUpdated:       m.UpdatedAt,
	}
}

// FromDomainRecord 将领域模型转换为数据库模型。
func FromDomainRecord(rec domain.StockRecord) StockModel {
	return StockModel{
		ProductID:         rec.Key.ProductID,
		VariantID:         rec.Key.VariantID,
		TotalQuantity:     rec.TotalQuantity,
		LowStockThreshold: rec.LowStockThreshold,
		Active:            rec.Active,
		UpdatedAt:         rec.LastUpdated,
	}
}
