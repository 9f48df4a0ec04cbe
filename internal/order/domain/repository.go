package domain

import "context"

// Repository 定义了订单聚合的持久化接口。
// 它位于领域层，由基础设施层实现；内存 Store 是运行时的事实来源，
// Repository 负责把每次状态变更归档到持久存储。
type Repository interface {
	// Save 保存一个订单聚合（用于创建或更新）。
	Save(ctx context.Context, order *Order) error

	// FindByID 根据 ID 查找一个订单聚合。
	FindByID(ctx context.Context, id string) (*Order, error)
}
