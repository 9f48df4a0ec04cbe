package infrastructure

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"storefront/internal/checkout/domain"
	"storefront/internal/pkg/logger"
)

// KafkaEventPublisher 把订单生命周期事件和超卖告警写入 Kafka。
// 订单事件以 customerId 为 key，保证同一客户的事件有序。
type KafkaEventPublisher struct {
	orderWriter    *kafka.Writer
	oversellWriter *kafka.Writer
}

func NewKafkaEventPublisher(brokers []string, orderTopic, oversellTopic string) *KafkaEventPublisher {
	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
		}
	}
	return &KafkaEventPublisher{
		orderWriter:    newWriter(orderTopic),
		oversellWriter: newWriter(oversellTopic),
	}
}

func (p *KafkaEventPublisher) PublishOrderEvent(ctx context.Context, event domain.OrderEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.orderWriter.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.CustomerID),
		Value: value,
	})
}

func (p *KafkaEventPublisher) PublishOversellRisk(ctx context.Context, event domain.OversellRiskEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.oversellWriter.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Key.String()),
		Value: value,
	})
}

// Close 关闭底层 writer。
func (p *KafkaEventPublisher) Close() {
	if err := p.orderWriter.Close(); err != nil {
		logger.Ctx(context.Background()).Error().Err(err).Msg("failed to close order event writer")
	}
	if err := p.oversellWriter.Close(); err != nil {
		logger.Ctx(context.Background()).Error().Err(err).Msg("failed to close oversell writer")
	}
}
