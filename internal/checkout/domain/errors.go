package domain

import (
	"errors"
	"fmt"
	"strings"

	invdomain "storefront/internal/inventory/domain"
)

// ErrDuplicateRequest 同一幂等键的请求已在处理中或已完成。
var ErrDuplicateRequest = errors.New("duplicate checkout request")

// ErrCheckoutInProgress 订单仍处于下单 saga 的 Pending 窗口内，
// 运营侧暂不能取消。saga 结束后订单必然是 Paid 或 Cancelled。
var ErrCheckoutInProgress = errors.New("checkout still in progress")

// UnavailableItem 描述一个无法满足的行项目。
type UnavailableItem struct {
	Key       invdomain.StockKey
	Requested int
	Free      int
}

// InsufficientStockError 一个或多个行项目库存不足。
// saga 内部通过补偿恢复原状后抛给调用方。
type InsufficientStockError struct {
	Items []UnavailableItem
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Items))
	for _, item := range e.Items {
		parts = append(parts, fmt.Sprintf("%s (requested %d, free %d)", item.Key, item.Requested, item.Free))
	}
	return "insufficient stock: " + strings.Join(parts, ", ")
}

// InvalidOrderError 订单草稿违反数据/价格不变式，等价于 4xx 客户端错误。
type InvalidOrderError struct {
	Cause error
}

func (e *InvalidOrderError) Error() string {
	return fmt.Sprintf("invalid order: %v", e.Cause)
}

func (e *InvalidOrderError) Unwrap() error { return e.Cause }

// PaymentFailedError 支付网关拒绝或超时。订单已被补偿为 Cancelled。
type PaymentFailedError struct {
	Code   string
	Reason string
}

func (e *PaymentFailedError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("payment failed [%s]: %s", e.Code, e.Reason)
	}
	return fmt.Sprintf("payment failed: %s", e.Reason)
}
