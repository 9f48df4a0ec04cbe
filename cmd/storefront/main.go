package main

import (
	"context"
	"log"
	"time"

	rd "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"storefront/internal/checkout"
	"storefront/internal/checkout/infrastructure"
	"storefront/internal/checkout/interfaces"
	"storefront/internal/checkout/port"
	"storefront/internal/inventory"
	invinfra "storefront/internal/inventory/infrastructure"
	"storefront/internal/order"
	orderinfra "storefront/internal/order/infrastructure"
	"storefront/internal/pkg/bootstrap"
	"storefront/internal/pkg/config"
	"storefront/internal/pkg/httpclient"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/push"
	"storefront/internal/pkg/tracing"
	"storefront/internal/promotion"
)

const serviceName = "storefront"

// main 是应用的组装根 (Composition Root)：
// 创建并组装所有依赖项，然后交给 bootstrap 启动。
// MySQL / Redis / Kafka / 外部网关都是可选的，未配置时退化为
// 进程内实现，方便本地起一个自包含的单体跑通全流程。
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger.Init(serviceName)

	tp, err := tracing.InitTracerProvider(serviceName, cfg.Jaeger.Endpoint)
	if err != nil {
		log.Fatalf("failed to initialize tracer provider: %v", err)
	}
	tracer := otel.Tracer(serviceName)

	// 1. 核心内存模型
	invStore := inventory.NewStore(cfg.Inventory.HoldDuration.Std())
	orderStore := order.NewStore()
	reaper := inventory.NewReaper(invStore, cfg.Inventory.ReapInterval.Std())

	workers := []bootstrap.Worker{reaper.Run}

	// 2. WebSocket 推送中心
	hub := push.NewHub()
	go hub.Run()

	// 3. 事件流：配了 Kafka 走 Kafka + 消费者推送，否则进程内直推
	var events port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		publisher := infrastructure.NewKafkaEventPublisher(cfg.Kafka.Brokers, cfg.Kafka.OrderEventTopic, cfg.Kafka.OversellTopic)
		defer publisher.Close()
		events = publisher

		consumer := infrastructure.NewOrderEventConsumer(cfg.Kafka.Brokers, cfg.Kafka.OrderEventTopic, cfg.Kafka.GroupID, hub)
		workers = append(workers, consumer.Run)
	} else {
		events = infrastructure.NewMemoryEventPublisher(hub)
	}

	// 4. 支付与物流：配了外部地址走 HTTP，否则用本地模拟
	httpClient := httpclient.NewClient(tracer)
	var gateway port.PaymentGateway = &infrastructure.LocalPaymentGateway{}
	if cfg.Payment.ChargeURL != "" {
		gateway = infrastructure.NewPaymentHTTPAdapter(httpClient, cfg.Payment.ChargeURL)
	}
	var shipping port.ShippingProvider = infrastructure.NewLocalShippingProvider()
	if cfg.Shipping.BaseURL != "" {
		shipping = infrastructure.NewShippingHTTPAdapter(httpClient, cfg.Shipping.BaseURL)
	}

	service := checkout.NewService(invStore, orderStore, gateway, shipping, events, tracer)

	// 5. Redis 幂等保护（未配置时退化为内存实现）
	if cfg.Redis.Addr != "" {
		redisClient := rd.NewClient(&rd.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Fatalf("failed to connect redis: %v", err)
		}
		defer redisClient.Close()
		service.WithIdempotencyGuard(infrastructure.NewRedisIdempotencyGuard(redisClient, 24*time.Hour))
	} else {
		service.WithIdempotencyGuard(infrastructure.NewMemoryIdempotencyGuard())
	}

	// 6. MySQL：库存快照落库 + 订单归档
	if cfg.MySQL.DSN != "" {
		db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN), &gorm.Config{})
		if err != nil {
			log.Fatalf("failed to connect mysql: %v", err)
		}
		if err := db.AutoMigrate(&invinfra.StockModel{}, &orderinfra.OrderModel{}, &orderinfra.OrderItemModel{}); err != nil {
			log.Fatalf("failed to migrate schema: %v", err)
		}

		stockRepo := invinfra.NewGormStockRepository(db)
		records, err := stockRepo.LoadAll(context.Background())
		if err != nil {
			log.Fatalf("failed to load stock records: %v", err)
		}
		for _, rec := range records {
			invStore.LoadRecord(rec)
		}
		workers = append(workers, func(ctx context.Context) error {
			return stockRepo.RunSnapshotLoop(ctx, invStore, cfg.Inventory.SnapshotInterval.Std())
		})

		service.WithArchive(orderinfra.NewGormOrderRepository(db))
	}

	// 7. 优惠规则引擎
	promos, err := promotion.NewEngine(defaultPromotionRules())
	if err != nil {
		log.Fatalf("failed to compile promotion rules: %v", err)
	}

	handler := interfaces.NewCheckoutHandler(service, invStore, orderStore, hub, promos)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Addr:        cfg.HTTP.Addr,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			handler.RegisterRoutes(appCtx.Mux)
		},
		Workers:        workers,
		TracerProvider: tp,
	})
}

// defaultPromotionRules 内置的兜底规则集。生产环境应当从规则库加载，
// 这里给出的两条足够演示报价接口。
func defaultPromotionRules() []promotion.Rule {
	return []promotion.Rule{
		{
			Code:        "FULL_20000_OFF_2000",
			Description: "满 200 减 20",
			Expression:  "subtotal >= 20000",
			Type:        promotion.DiscountTypeFixedAmount,
			AmountCents: 2000,
		},
		{
			Code:         "VIP_12_PERCENT",
			Description:  "VIP 88 折，最多减 50",
			Expression:   `tier == "vip" && item_count >= 1`,
			Type:         promotion.DiscountTypePercentage,
			Percent:      12,
			CeilingCents: 5000,
		},
	}
}
