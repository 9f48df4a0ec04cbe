package infrastructure

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"storefront/internal/order/domain"
)

// ErrOrderNotFound 订单在持久存储中不存在。
var ErrOrderNotFound = errors.New("order not found in archive")

// GormOrderRepository 是 domain.Repository 的 GORM 实现。
type GormOrderRepository struct {
	db *gorm.DB
}

func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// Save 全量 upsert 订单，行项目重写为创建时的不可变快照。
func (r *GormOrderRepository) Save(ctx context.Context, order *domain.Order) error {
	m := ToModel(order)
	items := m.Items
	m.Items = nil

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).Create(m).Error; err != nil {
			return err
		}
		if err := tx.Where("order_id = ?", m.ID).Delete(&OrderItemModel{}).Error; err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		return tx.Create(&items).Error
	})
}

// FindByID 根据 ID 查找订单，预加载行项目。
func (r *GormOrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	var m OrderModel
	err := r.db.WithContext(ctx).Preload("Items").Where("id = ?", id).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return ToDomain(&m), nil
}
