package infrastructure

import (
	"context"
	"encoding/json"
	"sync"

	"storefront/internal/checkout/domain"
	"storefront/internal/pkg/push"
)

// MemoryEventPublisher 是 EventPublisher 的进程内实现：
// 未配置 Kafka 时直接把订单事件推给 WebSocket Hub，并保留事件
// 供测试断言。
type MemoryEventPublisher struct {
	hub *push.Hub // 可为 nil（测试场景）

	mu             sync.Mutex
	orderEvents    []domain.OrderEvent
	oversellEvents []domain.OversellRiskEvent
}

func NewMemoryEventPublisher(hub *push.Hub) *MemoryEventPublisher {
	return &MemoryEventPublisher{hub: hub}
}

func (p *MemoryEventPublisher) PublishOrderEvent(_ context.Context, event domain.OrderEvent) error {
	p.mu.Lock()
	p.orderEvents = append(p.orderEvents, event)
	p.mu.Unlock()

	if p.hub != nil {
		if payload, err := json.Marshal(event); err == nil {
			p.hub.Send(event.CustomerID, payload)
		}
	}
	return nil
}

func (p *MemoryEventPublisher) PublishOversellRisk(_ context.Context, event domain.OversellRiskEvent) error {
	p.mu.Lock()
	p.oversellEvents = append(p.oversellEvents, event)
	p.mu.Unlock()
	return nil
}

// OrderEvents 返回已发布订单事件的副本。
func (p *MemoryEventPublisher) OrderEvents() []domain.OrderEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.OrderEvent, len(p.orderEvents))
	copy(out, p.orderEvents)
	return out
}

// OversellEvents 返回已发布超卖告警的副本。
func (p *MemoryEventPublisher) OversellEvents() []domain.OversellRiskEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.OversellRiskEvent, len(p.oversellEvents))
	copy(out, p.oversellEvents)
	return out
}

// MemoryIdempotencyGuard 是 IdempotencyGuard 的进程内实现，
// 供测试和未配置 Redis 的单机部署使用。
type MemoryIdempotencyGuard struct {
	mu      sync.Mutex
	entries map[string]string // requestID -> orderID 或 pendingMarker
}

func NewMemoryIdempotencyGuard() *MemoryIdempotencyGuard {
	return &MemoryIdempotencyGuard{entries: make(map[string]string)}
}

func (g *MemoryIdempotencyGuard) Begin(_ context.Context, requestID string) (bool, string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	val, exists := g.entries[requestID]
	if !exists {
		g.entries[requestID] = pendingMarker
		return true, "", nil
	}
	if val == pendingMarker {
		return false, "", nil
	}
	return false, val, nil
}

func (g *MemoryIdempotencyGuard) Complete(_ context.Context, requestID, orderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entries[requestID] = orderID
	return nil
}

func (g *MemoryIdempotencyGuard) Abort(_ context.Context, requestID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.entries, requestID)
	return nil
}
