package realtime

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewRedis creates a new Redis client
func NewRedis(addr, password string, log *zap.Logger) *redis.Client {
	if addr == "" {
		addr = "localhost:6379"
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	log.Info("redis client created", zap.String("addr", addr))
	return rdb
}
