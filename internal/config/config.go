package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const (
	StorageRedis  = "redis"
	StorageMemory = "memory"
)

type Config struct {
	Env  string
	Port string

	RedisHost     string
	RedisPassword string
	CartStorage   string

	JWTSecret     string
	SessionSecret string

	GatewayBaseURL string
	GatewayTimeout time.Duration
	StripeKey      string

	Currency string
	Locale   string

	AllowedOrigins []string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	MailFrom     string

	PageIdleTimeout time.Duration
}

func (c Config) Development() bool {
	return c.Env == "development"
}

// MailEnabled indique si les confirmations de commande peuvent partir par e-mail.
func (c Config) MailEnabled() bool {
	return c.SMTPHost != "" && c.MailFrom != ""
}

// Load lit .env s'il existe puis l'environnement du système.
func Load(logger *zap.Logger) (Config, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := godotenv.Load(".env"); err != nil {
		logger.Info("⚠️  Aucun fichier .env trouvé — on continue avec les variables d'environnement du système")
	} else {
		logger.Info("✅ Fichier .env chargé avec succès")
	}
	return FromEnv(os.Getenv)
}

// FromEnv construit la configuration à partir d'une fonction de lecture des variables.
func FromEnv(getenv func(string) string) (Config, error) {
	get := func(key, fallback string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return fallback
	}

	port := get("PORT", "8080")
	cfg := Config{
		Env:            get("APP_ENV", "production"),
		Port:           port,
		RedisHost:      get("REDIS_HOST", "localhost:6379"),
		RedisPassword:  getenv("REDIS_PASSWORD"),
		CartStorage:    strings.ToLower(get("CART_STORAGE", StorageRedis)),
		JWTSecret:      getenv("JWT_SECRET"),
		SessionSecret:  getenv("SESSION_SECRET"),
		GatewayBaseURL: get("GATEWAY_BASE_URL", "http://localhost:"+port),
		StripeKey:      getenv("STRIPE_SECRET_KEY"),
		Currency:       get("CURRENCY", "USD"),
		Locale:         get("LOCALE", "en-US"),
		SMTPHost:       getenv("SMTP_HOST"),
		SMTPUsername:   getenv("SMTP_USERNAME"),
		SMTPPassword:   getenv("SMTP_PASSWORD"),
		MailFrom:       getenv("MAIL_FROM"),
	}

	if cfg.CartStorage != StorageRedis && cfg.CartStorage != StorageMemory {
		return Config{}, fmt.Errorf("CART_STORAGE invalide: %q (redis ou memory)", cfg.CartStorage)
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET manquant")
	}
	if cfg.SessionSecret == "" {
		return Config{}, fmt.Errorf("SESSION_SECRET manquant")
	}

	var err error
	if cfg.GatewayTimeout, err = duration(get("GATEWAY_TIMEOUT", "30s")); err != nil {
		return Config{}, fmt.Errorf("GATEWAY_TIMEOUT: %w", err)
	}
	if cfg.PageIdleTimeout, err = duration(get("PAGE_IDLE_TIMEOUT", "30m")); err != nil {
		return Config{}, fmt.Errorf("PAGE_IDLE_TIMEOUT: %w", err)
	}
	if cfg.SMTPPort, err = strconv.Atoi(get("SMTP_PORT", "587")); err != nil {
		return Config{}, fmt.Errorf("SMTP_PORT: %w", err)
	}

	for _, origin := range strings.Split(get("ALLOWED_ORIGINS", "http://localhost:3000"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
		}
	}

	return cfg, nil
}

func duration(v string) (time.Duration, error) {
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("durée non positive: %s", v)
	}
	return d, nil
}
