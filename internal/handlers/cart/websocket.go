package cart

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// Upgrader n'accepte que les origines autorisées par la configuration CORS.
func Upgrader(allowed []string) websocket.Upgrader {
	origins := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		origins[o] = struct{}{}
	}
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := origins[origin]
			return ok
		},
	}
}

type message struct {
	Type string `json:"type"`
	Response
}

// Live pousse la vue de la page à chaque changement d'état (jeton reçu, widget prêt,
// paiement terminé...). Un WebSocket navigateur n'envoie pas d'en-tête Authorization :
// l'authentification de la page reste celle des requêtes HTTP.
func (h *Handler) Live(upgrader websocket.Upgrader) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := h.cookieSession(c)
		if !ok {
			return
		}
		s := h.registry.Lookup(c.Request.Context(), id)

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			h.logger.Warn("❌ Erreur upgrade WebSocket", zap.Error(err))
			return
		}
		defer conn.Close()

		changes, cancel := s.Page.Subscribe()
		defer cancel()

		// le client ne parle pas : la lecture ne sert qu'à détecter la fermeture
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		send := func(kind string) bool {
			redirect, toasts := s.Outbox.Drain()
			msg := message{Type: kind, Response: Response{View: s.Page.View(), Redirect: redirect, Toasts: toasts}}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("❌ Erreur envoi WebSocket", zap.Error(err))
				return false
			}
			return true
		}

		if !send("connected") {
			return
		}

		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		for {
			select {
			case _, open := <-changes:
				if !open {
					conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseGoingAway, "session expirée"),
						time.Now().Add(writeTimeout))
					return
				}
				if !send("cart_updated") {
					return
				}
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
					return
				}
			case <-closed:
				return
			}
		}
	}
}
