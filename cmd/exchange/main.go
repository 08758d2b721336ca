package main

import (
	"context"
	"flag"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradefloor/config"
	"tradefloor/pkg/exchange"
	"tradefloor/pkg/exchange/model"
	postgres_wrapper "tradefloor/pkg/infra/postgres"
	redis_wrapper "tradefloor/pkg/infra/redis"
	"tradefloor/pkg/kafkawrapper"
	"tradefloor/pkg/logging"
	"tradefloor/pkg/marketdata"
	"tradefloor/pkg/orders"
	"tradefloor/pkg/orders/repo"
	"tradefloor/pkg/position"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config-file", "", "Specify config file path")
	flag.Parse()

	cfg, err := config.Load(configFile)
	if err != nil {
		panic(err)
	}

	logger, err := logging.Init(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() // nolint

	go func() {
		http.ListenAndServe("localhost:6060", nil) // nolint
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	db := postgres_wrapper.InitPostgresWithBackoff(cfg.ExchangeDB)
	repos := repo.NewRepo(db)

	feed := marketdata.NewFeed(&cfg.MarketData.FeedConfig)

	if cfg.Redis != nil {
		redisClient, err := redis_wrapper.InitRedis(cfg.Redis)
		if err != nil {
			zap.S().Fatalf("init redis: %v", err)
		}
		ttl := time.Duration(cfg.MarketData.SnapshotTTLSeconds) * time.Second
		feed.RegisterSink(marketdata.NewSnapshotCache(redisClient, ttl))
	}

	var producer *kafkawrapper.Producer
	if cfg.Kafka != nil && cfg.Kafka.Enabled {
		producer = kafkawrapper.NewProducer(kafkawrapper.ProducerConfig{
			Brokers:      cfg.Kafka.Brokers,
			BatchSize:    cfg.Kafka.BatchSize,
			BatchBytes:   cfg.Kafka.BatchBytes,
			BatchTimeout: time.Duration(cfg.Kafka.BatchTimeoutMs) * time.Millisecond,
		})
		defer producer.Close() // nolint
		feed.RegisterSink(marketdata.NewKafkaPublisher(producer, cfg.Kafka.Topic))
	}

	tracker := position.NewTracker()
	manager := exchange.NewManager(tracker, feed)
	service := orders.NewService(manager, repos)

	if err := service.Recover(ctx); err != nil {
		zap.S().Fatalf("recover exchange: %v", err)
	}
	ensureSymbols(ctx, service, cfg)

	for _, l := range cfg.Limits {
		err := service.SetPositionLimit(ctx, model.PositionLimit{
			Symbol:         l.Symbol,
			MaxPosition:    l.MaxPosition,
			MaxOrderSize:   l.MaxOrderSize,
			AppliesToAdmin: l.AppliesToAdmin,
		})
		if err != nil {
			zap.S().Fatalf("set position limit %s: %v", l.Symbol, err)
		}
	}

	zap.S().Infow("exchange started", "service", cfg.ServiceName)

	<-sigs
	zap.S().Info("shutting down...")
	cancel()
}

// ensureSymbols creates configured symbols that recovery did not restore.
func ensureSymbols(ctx context.Context, service *orders.Service, cfg *config.AppConfig) {
	for _, s := range cfg.Symbols {
		tick, err := decimal.NewFromString(s.TickSize)
		if err != nil {
			zap.S().Fatalf("symbol %s: bad tick size %q: %v", s.Symbol, s.TickSize, err)
		}
		err = service.CreateSymbol(ctx, s.Symbol, tick, s.LotSize)
		if err != nil && err != exchange.ErrSymbolExists {
			zap.S().Fatalf("create symbol %s: %v", s.Symbol, err)
		}
	}
}
