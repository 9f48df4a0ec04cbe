package port

import "context"

// IdempotencyGuard 防止同一逻辑下单被处理两次（客户端网络超时后重试）。
//
// Begin 抢占一个幂等键：
//   - started=true：本次调用获得执行权；
//   - started=false 且 existingOrderID 非空：该键此前已成功下单；
//   - started=false 且 existingOrderID 为空：同键请求仍在处理中。
//
// saga 成功后 Complete 记录订单号；失败后 Abort 释放键，允许客户重试。
type IdempotencyGuard interface {
	Begin(ctx context.Context, requestID string) (started bool, existingOrderID string, err error)
	Complete(ctx context.Context, requestID, orderID string) error
	Abort(ctx context.Context, requestID string) error
}
