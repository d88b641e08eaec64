package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const connectTimeout = 10 * time.Second

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ConnectRedis ouvre le client Redis et vérifie la connexion par un PING, ce qui
// pré-chauffe aussi le pool avant le premier panier.
func ConnectRedis(ctx context.Context, cfg RedisConfig, logger *zap.Logger) (*redis.Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connexion Redis %s: %w", cfg.Addr, err)
	}
	logger.Info("✅ Connecté à Redis", zap.String("addr", cfg.Addr))
	return client, nil
}

func CloseRedis(client *redis.Client, logger *zap.Logger) {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil && logger != nil {
		logger.Warn("⚠️ fermeture Redis", zap.Error(err))
	}
}
