package port

import (
	"context"

	"storefront/internal/checkout/domain"
)

// EventPublisher 是事件流的出站端口。发布失败不应让主流程失败：
// 调用方只记录错误，由监控兜底。
type EventPublisher interface {
	// PublishOrderEvent 发布订单生命周期事件。
	PublishOrderEvent(ctx context.Context, event domain.OrderEvent) error

	// PublishOversellRisk 发布超卖风险告警。
	PublishOversellRisk(ctx context.Context, event domain.OversellRiskEvent) error
}
