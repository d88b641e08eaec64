package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cedra_cart/internal/cache"
	"cedra_cart/internal/config"
	"cedra_cart/internal/database"
	"cedra_cart/internal/gateway"
	"cedra_cart/internal/handlers/cart"
	"cedra_cart/internal/handlers/payement"
	"cedra_cart/internal/pricing"
	"cedra_cart/internal/routes"
	"cedra_cart/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load(logger)
	if err != nil {
		logger.Fatal("❌ Configuration invalide", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	formatter, err := pricing.NewFormatter(cfg.Currency, cfg.Locale)
	if err != nil {
		logger.Fatal("❌ Devise invalide", zap.String("currency", cfg.Currency), zap.Error(err))
	}

	var (
		redisClient *redis.Client
		carts       cache.Namespacer
		orders      payement.OrderStore
	)
	switch cfg.CartStorage {
	case config.StorageMemory:
		logger.Warn("⚠️ Mode mémoire : paniers et commandes perdus au redémarrage")
		carts = cache.NewMemoryStore()
		orders = payement.NewMemoryOrders()
	default:
		redisClient, err = database.ConnectRedis(ctx, database.RedisConfig{
			Addr:     cfg.RedisHost,
			Password: cfg.RedisPassword,
		}, logger)
		if err != nil {
			logger.Fatal("❌ Erreur connexion Redis", zap.Error(err))
		}
		defer database.CloseRedis(redisClient, logger)
		carts = cache.NewRedisStore(redisClient, cache.CartTTL)
		orders = payement.NewRedisOrders(redisClient)
	}

	if cfg.StripeKey == "" {
		logger.Fatal("❌ Impossible d'initialiser Stripe : clé manquante")
	}
	processor := payement.NewStripeProcessor(cfg.StripeKey)
	logger.Info("✅ Stripe initialisé")

	var mailer payement.ConfirmationMailer
	if cfg.MailEnabled() {
		mailer = utils.NewMailer(utils.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
		}, logger)
	} else {
		logger.Warn("⚠️ SMTP non configuré : pas d'e-mail de confirmation")
	}

	paymentHandler := payement.NewHandler(payement.Options{
		Processor: processor,
		Orders:    orders,
		Mailer:    mailer,
		Pricing:   formatter,
		Logger:    logger,
	})

	registry := cart.NewRegistry(cart.RegistryConfig{
		Storage: carts,
		Gateway: gateway.New(gateway.Config{
			BaseURL: cfg.GatewayBaseURL,
			Timeout: cfg.GatewayTimeout,
			Logger:  logger,
		}),
		Pricing:        formatter,
		Logger:         logger,
		RequestTimeout: cfg.GatewayTimeout,
		IdleTimeout:    cfg.PageIdleTimeout,
	})
	go registry.Run(ctx, cfg.PageIdleTimeout/2)

	cookies := cart.NewCookieStore([]byte(cfg.SessionSecret), !cfg.Development())

	if !cfg.Development() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	routes.RegisterRoutes(r, routes.Deps{
		Cart:           cart.NewHandler(registry, cookies, logger),
		Payment:        paymentHandler,
		Redis:          redisClient,
		JWTSecret:      []byte(cfg.JWTSecret),
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("🚀 Serveur Cedra lancé", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("❌ Serveur arrêté", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("🛑 Arrêt demandé")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("❌ Arrêt du serveur", zap.Error(err))
	}
	registry.Close()
	paymentHandler.Wait()
	logger.Info("👋 Serveur arrêté")
}

func newLogger() *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if os.Getenv("APP_ENV") == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	return logger
}
