package infrastructure

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"storefront/internal/inventory"
	"storefront/internal/inventory/domain"
	"storefront/internal/pkg/logger"
)

// GormStockRepository 把内存库存的快照周期性落到 MySQL，
// 并在启动时用最近一次快照预热内存 Store。
type GormStockRepository struct {
	db *gorm.DB
}

func NewGormStockRepository(db *gorm.DB) *GormStockRepository {
	return &GormStockRepository{db: db}
}

// SaveAll 按 (product_id, variant_id) upsert 全部快照。
func (r *GormStockRepository) SaveAll(ctx context.Context, records []domain.StockRecord) error {
	if len(records) == 0 {
		return nil
	}
	models := make([]StockModel, 0, len(records))
	for _, rec := range records {
		models = append(models, FromDomainRecord(rec))
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "product_id"}, {Name: "variant_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"total_quantity", "low_stock_threshold", "active", "updated_at"}),
	}).Create(&models).Error
}

// LoadAll 读取全部库存记录。
func (r *GormStockRepository) LoadAll(ctx context.Context) ([]domain.StockRecord, error) {
	var models []StockModel
	if err := r.db.WithContext(ctx).Find(&models).Error; err != nil {
		return nil, err
	}
	records := make([]domain.StockRecord, 0, len(models))
	for i := range models {
		records = append(records, ToDomainRecord(&models[i]))
	}
	return records, nil
}

// RunSnapshotLoop 作为 bootstrap.Worker 周期性落库，ctx 取消时做最后一次写出。
func (r *GormStockRepository) RunSnapshotLoop(ctx context.Context, store *inventory.Store, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := r.SaveAll(flushCtx, store.Snapshots()); err != nil {
				logger.Ctx(flushCtx).Error().Err(err).Msg("final stock snapshot flush failed")
			}
			return nil
		case <-ticker.C:
			if err := r.SaveAll(ctx, store.Snapshots()); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("stock snapshot flush failed")
			}
		}
	}
}
