package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// pendingMarker 表示该幂等键已被抢占但 saga 尚未结束。
const pendingMarker = "__PENDING__"

// RedisIdempotencyGuard 用 SETNX 实现"同一请求只处理一次"。
// 键值先写占位符，saga 成功后覆盖为订单 ID；失败时删除键放行重试。
type RedisIdempotencyGuard struct {
	client *rd.Client
	ttl    time.Duration
}

func NewRedisIdempotencyGuard(client *rd.Client, ttl time.Duration) *RedisIdempotencyGuard {
	return &RedisIdempotencyGuard{client: client, ttl: ttl}
}

func (g *RedisIdempotencyGuard) key(requestID string) string {
	return fmt.Sprintf("storefront:checkout:request:%s", requestID)
}

func (g *RedisIdempotencyGuard) Begin(ctx context.Context, requestID string) (bool, string, error) {
	ok, err := g.client.SetNX(ctx, g.key(requestID), pendingMarker, g.ttl).Result()
	if err != nil {
		return false, "", err
	}
	if ok {
		return true, "", nil
	}

	val, err := g.client.Get(ctx, g.key(requestID)).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			// 键在两步之间过期或被 Abort，让调用方按在途处理并稍后重试
			return false, "", nil
		}
		return false, "", err
	}
	if val == pendingMarker {
		return false, "", nil
	}
	return false, val, nil
}

func (g *RedisIdempotencyGuard) Complete(ctx context.Context, requestID, orderID string) error {
	return g.client.Set(ctx, g.key(requestID), orderID, g.ttl).Err()
}

func (g *RedisIdempotencyGuard) Abort(ctx context.Context, requestID string) error {
	return g.client.Del(ctx, g.key(requestID)).Err()
}
