package redis_wrapper

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RedisConfig struct {
	ConnectionURL       string `yaml:"connection_url"`
	PoolSize            int    `yaml:"pool_size"`
	DialTimeoutSeconds  int    `yaml:"dial_timeout_seconds"`
	ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `yaml:"write_timeout_seconds"`
	IdleTimeoutSeconds  int    `yaml:"idle_timeout_seconds"`
}

// InitRedis connects the snapshot cache client and pings it once.
func InitRedis(cfg *RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.ConnectionURL)
	if err != nil {
		zap.S().Debugf("parse redis url fail: %+v", err)
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.DialTimeout = time.Duration(cfg.DialTimeoutSeconds) * time.Second
	opts.ReadTimeout = time.Duration(cfg.ReadTimeoutSeconds) * time.Second
	opts.WriteTimeout = time.Duration(cfg.WriteTimeoutSeconds) * time.Second
	opts.ConnMaxIdleTime = time.Duration(cfg.IdleTimeoutSeconds) * time.Second

	client := redis.NewClient(opts)
	if cmd := client.Ping(context.Background()); cmd.Err() != nil {
		return nil, cmd.Err()
	}

	zap.S().Debug("connect to redis successful")
	return client, nil
}
