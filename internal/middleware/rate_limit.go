package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	PaymentMaxAttempts = 5
	PaymentWindow      = 1 * time.Minute
)

// KeyFunc choisit l'identité à limiter ; une clé vide laisse passer la requête.
type KeyFunc func(c *gin.Context) string

// ByUserOrIP limite par utilisateur connecté, sinon par IP.
func ByUserOrIP(c *gin.Context) string {
	if userID := c.GetString("user_id"); userID != "" {
		return "user:" + userID
	}
	return "ip:" + c.ClientIP()
}

// PaymentRateLimit limite les soumissions de paiement. Redis indisponible ne bloque
// pas le paiement : l'erreur est journalisée et la requête continue.
func PaymentRateLimit(client *redis.Client, limit int, window time.Duration, key KeyFunc, logger *zap.Logger) gin.HandlerFunc {
	return RateLimit(client, "payment_attempts", limit, window, key, logger)
}

func RateLimit(client *redis.Client, prefix string, limit int, window time.Duration, key KeyFunc, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	if key == nil {
		key = ByUserOrIP
	}
	return func(c *gin.Context) {
		if client == nil {
			c.Next()
			return
		}
		id := key(c)
		if id == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		redisKey := prefix + ":" + id

		pipe := client.Pipeline()
		incr := pipe.Incr(ctx, redisKey)
		pipe.Expire(ctx, redisKey, window)
		if _, err := pipe.Exec(ctx); err != nil {
			logger.Error("❌ rate limit indisponible", zap.String("key", redisKey), zap.Error(err))
			c.Next()
			return
		}

		count := int(incr.Val())
		if count > limit {
			ttl := client.TTL(ctx, redisKey).Val()
			if ttl <= 0 {
				ttl = window
			}
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       fmt.Sprintf("Trop de tentatives. Réessayez dans %d secondes", int(ttl.Seconds())),
				"retry_after": int(ttl.Seconds()),
			})
			c.Abort()
			return
		}

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", limit))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", limit-count))
		c.Next()
	}
}
