package cart

import (
	"errors"
	"net/http"

	"cedra_cart/internal/cartstore"
	"cedra_cart/internal/checkout"
	"cedra_cart/internal/middleware"
	"cedra_cart/internal/models"
	"cedra_cart/internal/widget"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

type Handler struct {
	registry *Registry
	cookies  sessions.Store
	logger   *zap.Logger
}

func NewHandler(registry *Registry, cookies sessions.Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{registry: registry, cookies: cookies, logger: logger}
}

// Response est la vue de la page plus les événements à rejouer côté navigateur.
type Response struct {
	checkout.View
	Redirect *checkout.Target `json:"redirect,omitempty"`
	Toasts   []Toast          `json:"toasts,omitempty"`
}

func (h *Handler) session(c *gin.Context) (*Session, bool) {
	id, ok := h.cookieSession(c)
	if !ok {
		return nil, false
	}
	return h.registry.Get(c.Request.Context(), id, middleware.GetAuth(c)), true
}

func (h *Handler) cookieSession(c *gin.Context) (string, bool) {
	id, err := sessionID(c, h.cookies)
	if err != nil {
		h.logger.Error("❌ session panier impossible", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Session indisponible"})
		return "", false
	}
	return id, true
}

func respond(c *gin.Context, status int, s *Session) {
	redirect, toasts := s.Outbox.Drain()
	c.JSON(status, Response{View: s.Page.View(), Redirect: redirect, Toasts: toasts})
}

// GET /api/cart
func (h *Handler) GetCart(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	respond(c, http.StatusOK, s)
}

// PUT /api/cart
func (h *Handler) ReplaceCart(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var cart models.Cart
	if err := c.ShouldBindJSON(&cart); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Panier invalide"})
		return
	}

	if err := s.Page.Replace(c.Request.Context(), cart); err != nil {
		h.storageError(c, err)
		return
	}
	respond(c, http.StatusOK, s)
}

// DELETE /api/cart/items/:id
func (h *Handler) RemoveItem(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	if err := s.Page.Remove(c.Request.Context(), c.Param("id")); err != nil {
		h.storageError(c, err)
		return
	}
	respond(c, http.StatusOK, s)
}

// POST /api/cart/widget : le Drop-in du navigateur a créé son instance.
func (h *Handler) WidgetReady(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var input struct {
		ClientToken string `json:"clientToken" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "clientToken requis"})
		return
	}

	if err := s.Relay.Ready(input.ClientToken); err != nil {
		if errors.Is(err, widget.ErrUnknownToken) {
			c.JSON(http.StatusConflict, gin.H{"error": "ClientToken périmé, rechargez le widget"})
			return
		}
		h.logger.Error("❌ widget non enregistré", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Widget indisponible"})
		return
	}
	respond(c, http.StatusOK, s)
}

// POST /api/cart/payment : le navigateur transmet le nonce du Drop-in.
func (h *Handler) SubmitPayment(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var input struct {
		Nonce string `json:"nonce" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nonce requis"})
		return
	}

	if err := s.Relay.Offer(input.Nonce); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Paiement indisponible pour le moment"})
		return
	}

	err := s.Page.Submit(c.Request.Context())
	switch {
	case err == nil:
		respond(c, http.StatusOK, s)
	case errors.Is(err, checkout.ErrSubmitDisabled):
		s.Relay.Withdraw()
		c.JSON(http.StatusConflict, gin.H{"error": "Paiement indisponible pour le moment"})
	case errors.Is(err, checkout.ErrClosed):
		c.JSON(http.StatusGone, gin.H{"error": "Session expirée, rechargez la page"})
	default:
		respond(c, http.StatusPaymentRequired, s)
	}
}

func (h *Handler) storageError(c *gin.Context, err error) {
	if errors.Is(err, cartstore.ErrStorage) {
		h.logger.Error("❌ panier non enregistré", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Impossible d'enregistrer le panier"})
		return
	}
	h.logger.Error("❌ erreur panier", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur panier"})
}
