package routes

import (
	"net/http"
	"time"

	"cedra_cart/internal/handlers/cart"
	"cedra_cart/internal/handlers/payement"
	"cedra_cart/internal/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Deps struct {
	Cart           *cart.Handler
	Payment        *payement.Handler
	Redis          *redis.Client
	JWTSecret      []byte
	AllowedOrigins []string
	Logger         *zap.Logger
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     d.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	auth := middleware.Auth(d.JWTSecret, d.Logger)
	authRequired := middleware.AuthRequired(d.JWTSecret, d.Logger)
	paymentLimit := middleware.PaymentRateLimit(d.Redis, middleware.PaymentMaxAttempts, middleware.PaymentWindow, middleware.ByUserOrIP, d.Logger)
	// la page appelle elle-même la route de débit : compteur séparé
	chargeLimit := middleware.RateLimit(d.Redis, "charge_attempts", middleware.PaymentMaxAttempts, middleware.PaymentWindow, middleware.ByUserOrIP, d.Logger)

	// Page panier
	cartGroup := r.Group("/api/cart", auth)
	{
		cartGroup.GET("", d.Cart.GetCart)
		cartGroup.PUT("", d.Cart.ReplaceCart)
		cartGroup.DELETE("/items/:id", d.Cart.RemoveItem)
		cartGroup.POST("/widget", d.Cart.WidgetReady)
		cartGroup.POST("/payment", paymentLimit, d.Cart.SubmitPayment)
		cartGroup.GET("/ws", d.Cart.Live(cart.Upgrader(d.AllowedOrigins)))
	}

	// Backend du widget de paiement
	product := r.Group("/api/v1/product/braintree")
	{
		product.GET("/token", d.Payment.Token)
		product.POST("/payment", authRequired, chargeLimit, d.Payment.Pay)
	}

	r.GET("/api/v1/auth/orders", authRequired, d.Payment.MyOrders)
}
