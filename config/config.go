package config

import (
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	postgres_wrapper "tradefloor/pkg/infra/postgres"
	redis_wrapper "tradefloor/pkg/infra/redis"
	"tradefloor/pkg/marketdata"
)

type KafkaConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Brokers        []string `yaml:"brokers"`
	Topic          string   `yaml:"topic"`
	BatchSize      int      `yaml:"batch_size"`
	BatchBytes     int64    `yaml:"batch_bytes"`
	BatchTimeoutMs int64    `yaml:"batch_timeout_ms"`
}

type MarketDataConfig struct {
	marketdata.FeedConfig `yaml:",inline"`
	SnapshotTTLSeconds    int `yaml:"snapshot_ttl_seconds"`
}

// SymbolConfig declares a symbol the exchange ensures at startup. TickSize is
// a decimal string.
type SymbolConfig struct {
	Symbol   string `yaml:"symbol"`
	TickSize string `yaml:"tick_size"`
	LotSize  int64  `yaml:"lot_size"`
}

type LimitConfig struct {
	Symbol         string `yaml:"symbol"`
	MaxPosition    int64  `yaml:"max_position"`
	MaxOrderSize   int64  `yaml:"max_order_size"`
	AppliesToAdmin bool   `yaml:"applies_to_admin"`
}

type AppConfig struct {
	ServiceName string                           `yaml:"service_name"`
	LogLevel    string                           `yaml:"log_level"`
	ExchangeDB  *postgres_wrapper.PostgresConfig `yaml:"exchange_db"`
	Redis       *redis_wrapper.RedisConfig       `yaml:"redis"`
	Kafka       *KafkaConfig                     `yaml:"kafka"`
	MarketData  *MarketDataConfig                `yaml:"marketdata"`
	Symbols     []SymbolConfig                   `yaml:"symbols"`
	Limits      []LimitConfig                    `yaml:"limits"`
}

// Load reads config from file, expanding environment variables first.
func Load(filePath string) (*AppConfig, error) {
	if len(filePath) == 0 {
		filePath = os.Getenv("CONFIG_FILE")
	}

	sugar := zap.S().With("func", "config.Load", "filePath", filePath)
	sugar.Debug("load config...")

	configBytes, err := os.ReadFile(filePath)
	if err != nil {
		sugar.Error("failed to load config file")
		return nil, err
	}
	configBytes = []byte(os.ExpandEnv(string(configBytes)))

	cfg := &AppConfig{}
	if err := yaml.Unmarshal(configBytes, cfg); err != nil {
		sugar.Error("failed to parse config file")
		return nil, err
	}

	if cfg.MarketData == nil {
		cfg.MarketData = &MarketDataConfig{}
	}
	return cfg, nil
}
