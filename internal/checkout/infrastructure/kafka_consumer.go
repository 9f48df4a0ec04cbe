package infrastructure

import (
	"context"
	"encoding/json"
	"time"

	zlog "github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"storefront/internal/checkout/domain"
	"storefront/internal/pkg/push"
)

// OrderEventConsumer 是一个驱动适配器：消费订单事件流并推送给
// 在线的门店会话（WebSocket Hub）。多实例部署时每个节点都消费
// 全量事件，由 Hub 决定本节点是否持有该客户的连接。
type OrderEventConsumer struct {
	reader *kafka.Reader
	hub    *push.Hub
}

func NewOrderEventConsumer(brokers []string, topic, groupID string, hub *push.Hub) *OrderEventConsumer {
	return &OrderEventConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: brokers,
			Topic:   topic,
			GroupID: groupID,
		}),
		hub: hub,
	}
}

// Run 作为 bootstrap.Worker 运行，ctx 取消后关闭 reader 退出。
func (c *OrderEventConsumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	zlog.Info().Str("topic", c.reader.Config().Topic).Msg("order event consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				zlog.Info().Msg("order event consumer shutting down")
				return nil
			}
			zlog.Error().Err(err).Msg("could not read message, retrying")
			time.Sleep(time.Second) // 避免快速失败循环
			continue
		}

		c.processMessage(msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			zlog.Error().Err(err).Msg("failed to commit messages")
		}
	}
}

func (c *OrderEventConsumer) processMessage(msg kafka.Message) {
	var event domain.OrderEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		zlog.Error().Err(err).Msg("failed to unmarshal order event, message skipped")
		return
	}
	c.hub.Send(event.CustomerID, msg.Value)
}
