package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 聚合运行时配置：优先读取 CONFIG_PATH 指向的 YAML 文件，
// 再用环境变量覆盖，避免硬编码。
type Config struct {
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`

	Inventory struct {
		// HoldDuration 预占库存的有效期，过期由 Reaper 回收。
		HoldDuration Duration `yaml:"hold_duration"`
		// ReapInterval 后台扫描过期预占的周期。
		ReapInterval Duration `yaml:"reap_interval"`
		// SnapshotInterval 库存快照落库的周期（配置了 MySQL 时生效）。
		SnapshotInterval Duration `yaml:"snapshot_interval"`
	} `yaml:"inventory"`

	MySQL struct {
		DSN string `yaml:"dsn"`
	} `yaml:"mysql"`

	Redis struct {
		Addr string `yaml:"addr"`
		DB   int    `yaml:"db"`
	} `yaml:"redis"`

	Kafka struct {
		Brokers         []string `yaml:"brokers"`
		OrderEventTopic string   `yaml:"order_event_topic"`
		OversellTopic   string   `yaml:"oversell_topic"`
		GroupID         string   `yaml:"group_id"`
	} `yaml:"kafka"`

	Jaeger struct {
		Endpoint string `yaml:"endpoint"`
	} `yaml:"jaeger"`

	Payment struct {
		// ChargeURL 外部支付网关地址，为空时使用本地模拟网关。
		ChargeURL string `yaml:"charge_url"`
	} `yaml:"payment"`

	Shipping struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"shipping"`
}

// Duration 包装 time.Duration，让 YAML 里可以写 "15m"、"60s" 这类字面量。
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std 返回标准库的 time.Duration。
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Load 读取并校验配置，缺失项使用默认值。
func Load() (Config, error) {
	var cfg Config
	cfg.HTTP.Addr = ":8080"
	cfg.Inventory.HoldDuration = Duration(15 * time.Minute)
	cfg.Inventory.ReapInterval = Duration(60 * time.Second)
	cfg.Inventory.SnapshotInterval = Duration(30 * time.Second)
	cfg.Kafka.OrderEventTopic = "storefront-order-events"
	cfg.Kafka.OversellTopic = "storefront-oversell-risk"
	cfg.Kafka.GroupID = "storefront-push"

	if path := strings.TrimSpace(os.Getenv("CONFIG_PATH")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", cfg.HTTP.Addr)
	cfg.MySQL.DSN = getEnv("MYSQL_DSN", cfg.MySQL.DSN)
	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", cfg.Jaeger.Endpoint)
	cfg.Payment.ChargeURL = getEnv("PAYMENT_CHARGE_URL", cfg.Payment.ChargeURL)
	cfg.Shipping.BaseURL = getEnv("SHIPPING_BASE_URL", cfg.Shipping.BaseURL)
	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		cfg.Kafka.Brokers = splitCSV(brokers)
	}

	redisDB, err := getEnvInt("REDIS_DB", cfg.Redis.DB)
	if err != nil {
		return Config{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	cfg.Redis.DB = redisDB

	if d, err := getEnvDuration("HOLD_DURATION", cfg.Inventory.HoldDuration.Std()); err != nil {
		return Config{}, fmt.Errorf("invalid HOLD_DURATION: %w", err)
	} else {
		cfg.Inventory.HoldDuration = Duration(d)
	}
	if d, err := getEnvDuration("REAP_INTERVAL", cfg.Inventory.ReapInterval.Std()); err != nil {
		return Config{}, fmt.Errorf("invalid REAP_INTERVAL: %w", err)
	} else {
		cfg.Inventory.ReapInterval = Duration(d)
	}

	if cfg.Inventory.HoldDuration <= 0 {
		return Config{}, fmt.Errorf("inventory.hold_duration must be > 0")
	}
	if cfg.Inventory.ReapInterval <= 0 {
		return Config{}, fmt.Errorf("inventory.reap_interval must be > 0")
	}
	if cfg.Inventory.SnapshotInterval <= 0 {
		return Config{}, fmt.Errorf("inventory.snapshot_interval must be > 0")
	}
	if len(cfg.Kafka.Brokers) > 0 {
		if cfg.Kafka.OrderEventTopic == "" || cfg.Kafka.OversellTopic == "" {
			return Config{}, fmt.Errorf("kafka topics must not be empty when brokers are set")
		}
		if cfg.Kafka.GroupID == "" {
			return Config{}, fmt.Errorf("kafka.group_id must not be empty when brokers are set")
		}
	}

	return cfg, nil
}

// getEnv 读取字符串环境变量，若为空则返回默认值。
func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// getEnvInt 读取整数环境变量，若为空则返回默认值。
func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

// getEnvDuration 读取时长环境变量（如 "15m"、"60s"）。
func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}

// splitCSV 将逗号分隔字符串解析为字符串切片。
func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
