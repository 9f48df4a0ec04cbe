package infrastructure

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"storefront/internal/checkout/port"
	orderdomain "storefront/internal/order/domain"
	"storefront/internal/pkg/logger"
)

// LocalPaymentGateway 进程内模拟网关，没有配置外部支付地址时使用。
// 默认放行；金额为 declineOver 上限之上时拒绝，便于演示补偿路径。
type LocalPaymentGateway struct {
	DeclineOver int64 // 0 表示全部放行
	Latency     time.Duration
}

func (g *LocalPaymentGateway) Charge(ctx context.Context, req port.ChargeRequest) (port.ChargeResult, error) {
	if g.Latency > 0 {
		select {
		case <-time.After(g.Latency):
		case <-ctx.Done():
			return port.ChargeResult{}, ctx.Err()
		}
	}

	if g.DeclineOver > 0 && req.AmountCents > g.DeclineOver {
		logger.Ctx(ctx).Warn().
			Str("order_id", req.OrderID).
			Int64("amount_cents", req.AmountCents).
			Msg("local gateway declined charge over limit")
		return port.ChargeResult{
			Success:   false,
			ErrorCode: "AMOUNT_LIMIT_EXCEEDED",
			Reason:    fmt.Sprintf("amount %d exceeds gateway limit %d", req.AmountCents, g.DeclineOver),
		}, nil
	}

	return port.ChargeResult{
		Success:       true,
		TransactionID: "txn-" + uuid.New().String(),
	}, nil
}

// LocalShippingProvider 进程内模拟物流商。运单状态随查询次数推进，
// 方便在没有真实物流商的环境里演示 Track。
type LocalShippingProvider struct {
	mu    sync.Mutex
	polls map[string]int
}

func NewLocalShippingProvider() *LocalShippingProvider {
	return &LocalShippingProvider{polls: make(map[string]int)}
}

var localTrackStages = []string{"LABEL_CREATED", "IN_TRANSIT", "OUT_FOR_DELIVERY", "DELIVERED"}

func (p *LocalShippingProvider) CreateShipment(ctx context.Context, orderID string, recipient orderdomain.Address, items []orderdomain.Item) (port.Shipment, error) {
	trackingNumber := "SF" + strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:12])
	logger.Ctx(ctx).Info().
		Str("order_id", orderID).
		Str("tracking_number", trackingNumber).
		Int("item_count", len(items)).
		Msg("local shipment created")
	return port.Shipment{TrackingNumber: trackingNumber, Carrier: "LOCAL-EXPRESS"}, nil
}

func (p *LocalShippingProvider) Track(ctx context.Context, trackingNumber string) (port.TrackingInfo, error) {
	p.mu.Lock()
	stage := p.polls[trackingNumber]
	if stage < len(localTrackStages)-1 {
		p.polls[trackingNumber] = stage + 1
	}
	p.mu.Unlock()

	return port.TrackingInfo{
		TrackingNumber: trackingNumber,
		Status:         localTrackStages[stage],
		LastLocation:   "sorting center",
		UpdatedAt:      time.Now(),
	}, nil
}
