package inventory

import (
	"context"
	"time"

	zlog "github.com/rs/zerolog/log"

	"storefront/internal/pkg/metrics"
)

// Reaper 回收被放弃的预占：用户预占库存后关闭页面、始终不支付，
// 到期的 hold 必须释放，否则库存被永久锁死。
//
// Reaper 与正在提交同一预占的 saga 赛跑是安全的：Commit 和 Release
// 对已删除的预占都是幂等 no-op，谁先到谁生效。
type Reaper struct {
	store    *Store
	interval time.Duration
}

func NewReaper(store *Store, interval time.Duration) *Reaper {
	return &Reaper{store: store, interval: interval}
}

// Run 以固定周期扫描，直到 ctx 取消。作为 bootstrap.Worker 运行。
func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	zlog.Info().Dur("interval", r.interval).Msg("reservation reaper started")
	for {
		select {
		case <-ctx.Done():
			zlog.Info().Msg("reservation reaper stopped")
			return nil
		case now := <-ticker.C:
			r.ReapOnce(now)
		}
	}
}

// ReapOnce 执行一轮回收，返回实际释放的数量。
func (r *Reaper) ReapOnce(now time.Time) int {
	reaped := 0
	for _, id := range r.store.ListExpired(now) {
		// 返回 false 说明 saga 在扫描和释放之间已 Commit/Release，无害。
		if r.store.Release(id) {
			reaped++
		}
	}
	if reaped > 0 {
		metrics.ReservationsReaped.Add(float64(reaped))
		zlog.Warn().Int("count", reaped).Msg("released expired stock holds")
	}
	return reaped
}
