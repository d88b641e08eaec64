package payement

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"cedra_cart/internal/middleware"
	"cedra_cart/internal/models"
	"cedra_cart/internal/pricing"
	"cedra_cart/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	StatusPaid  = "paid"
	mailTimeout = 30 * time.Second
)

// ConfirmationMailer est implémenté par utils.Mailer.
type ConfirmationMailer interface {
	SendOrderConfirmation(ctx context.Context, to string, order models.Order, price utils.PriceFormatter) error
}

type Options struct {
	Processor Processor
	Orders    OrderStore
	Mailer    ConfirmationMailer
	Pricing   *pricing.Formatter
	Logger    *zap.Logger
	Now       func() time.Time
}

// Handler sert le backend du widget : ClientToken, débit et historique des commandes.
type Handler struct {
	processor Processor
	orders    OrderStore
	mailer    ConfirmationMailer
	pricing   *pricing.Formatter
	logger    *zap.Logger
	now       func() time.Time
	mails     sync.WaitGroup
}

func NewHandler(opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Handler{
		processor: opts.Processor,
		orders:    opts.Orders,
		mailer:    opts.Mailer,
		pricing:   opts.Pricing,
		logger:    opts.Logger,
		now:       opts.Now,
	}
}

// GET /api/v1/product/braintree/token
func (h *Handler) Token(c *gin.Context) {
	token, err := h.processor.ClientToken(c.Request.Context())
	if err != nil {
		h.logger.Error("❌ Erreur création ClientToken", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Paiement indisponible"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"clientToken": token})
}

// POST /api/v1/product/braintree/payment
func (h *Handler) Pay(c *gin.Context) {
	auth := middleware.GetAuth(c)
	if auth.User == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Utilisateur non authentifié"})
		return
	}

	var req struct {
		Nonce string      `json:"nonce" binding:"required"`
		Cart  models.Cart `json:"cart"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Cart) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Requête invalide ou panier vide"})
		return
	}

	amount := h.pricing.MinorUnits(req.Cart)
	if amount <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Montant invalide"})
		return
	}

	intentID, err := h.processor.Charge(c.Request.Context(), Charge{
		Amount:        amount,
		Currency:      h.pricing.Currency(),
		PaymentMethod: req.Nonce,
		UserID:        auth.User.ID,
		Email:         auth.User.Email,
	})
	if err != nil {
		h.logger.Warn("❌ Paiement refusé", zap.String("user_id", auth.User.ID), zap.Error(err))
		if errors.Is(err, ErrDeclined) {
			c.JSON(http.StatusPaymentRequired, gin.H{"ok": false, "error": "Paiement refusé"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"ok": false, "error": "Erreur prestataire de paiement"})
		return
	}

	order := models.Order{
		ID:              uuid.NewString(),
		UserID:          auth.User.ID,
		PaymentIntentID: intentID,
		Items:           req.Cart,
		TotalPrice:      pricing.Sum(req.Cart),
		Currency:        h.pricing.Currency(),
		Status:          StatusPaid,
		CreatedAt:       h.now().UTC(),
	}
	h.logger.Info("💳 Paiement confirmé",
		zap.String("order_id", order.ID), zap.String("payment_intent", intentID), zap.Int64("amount", amount))

	// le client est débité : un échec d'enregistrement ne doit pas faire croire à un refus
	if err := h.orders.Save(c.Request.Context(), order); err != nil {
		h.logger.Error("❌ Commande payée mais non enregistrée", zap.String("order_id", order.ID), zap.Error(err))
	}

	h.sendConfirmation(auth.User.Email, order)

	c.JSON(http.StatusOK, gin.H{"ok": true, "order": order})
}

func (h *Handler) sendConfirmation(to string, order models.Order) {
	if h.mailer == nil || to == "" {
		return
	}

	price := func(d decimal.Decimal) string {
		s, err := h.pricing.Format(d)
		if err != nil {
			return d.StringFixed(2)
		}
		return s
	}

	h.mails.Add(1)
	go func() {
		defer h.mails.Done()
		ctx, cancel := context.WithTimeout(context.Background(), mailTimeout)
		defer cancel()
		if err := h.mailer.SendOrderConfirmation(ctx, to, order, price); err != nil {
			h.logger.Error("❌ Erreur envoi e-mail confirmation", zap.String("to", to), zap.Error(err))
			return
		}
		h.logger.Info("📧 E-mail de confirmation envoyé", zap.String("to", to))
	}()
}

// Wait attend les e-mails en cours d'envoi.
func (h *Handler) Wait() {
	h.mails.Wait()
}

// GET /api/v1/auth/orders
func (h *Handler) MyOrders(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Utilisateur non authentifié"})
		return
	}

	orders, err := h.orders.List(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("❌ Erreur récupération commandes", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur récupération commandes"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders, "count": len(orders)})
}
