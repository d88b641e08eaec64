package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"cedra_cart/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// AuthKey est la clé du contexte gin portant l'état d'authentification.
const AuthKey = "auth"

// Auth lit le JWT s'il est présent et place l'état d'authentification dans le contexte.
// Sans jeton, ou avec un jeton invalide, la requête continue en invité.
func Auth(secret []byte, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		tokenString := bearer(c.GetHeader("Authorization"))
		if tokenString == "" {
			c.Set(AuthKey, models.AuthState{})
			c.Next()
			return
		}

		auth, err := ParseToken(tokenString, secret)
		if err != nil {
			logger.Warn("⚠️ JWT ignoré, requête traitée en invité", zap.Error(err))
			c.Set(AuthKey, models.AuthState{})
			c.Next()
			return
		}

		c.Set(AuthKey, auth)
		c.Set("user_id", auth.User.ID)
		c.Set("email", auth.User.Email)
		c.Next()
	}
}

// AuthRequired refuse la requête sans JWT valide.
func AuthRequired(secret []byte, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			logger.Debug("❌ Pas de header Authorization")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Token manquant"})
			c.Abort()
			return
		}

		auth, err := ParseToken(bearer(authHeader), secret)
		if err != nil {
			logger.Warn("❌ JWT refusé", zap.Error(err))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Token invalide"})
			c.Abort()
			return
		}

		c.Set(AuthKey, auth)
		c.Set("user_id", auth.User.ID)
		c.Set("email", auth.User.Email)
		c.Next()
	}
}

// ParseToken vérifie la signature HMAC et l'expiration, puis construit l'utilisateur
// à partir des claims user_id, name, email et address.
func ParseToken(tokenString string, secret []byte) (models.AuthState, error) {
	if tokenString == "" {
		return models.AuthState{}, fmt.Errorf("jeton vide")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("méthode de signature inattendue: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return models.AuthState{}, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return models.AuthState{}, fmt.Errorf("claims invalides")
	}

	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return models.AuthState{}, fmt.Errorf("user_id manquant")
	}

	user := &models.User{ID: userID}
	user.Name, _ = claims["name"].(string)
	user.Email, _ = claims["email"].(string)
	user.Address, _ = claims["address"].(string)

	return models.AuthState{Token: tokenString, User: user}, nil
}

// GetAuth renvoie l'état posé par Auth ou AuthRequired, invité sinon.
func GetAuth(c *gin.Context) models.AuthState {
	if v, ok := c.Get(AuthKey); ok {
		if auth, ok := v.(models.AuthState); ok {
			return auth
		}
	}
	return models.AuthState{}
}

// bearer accepte "Bearer <jwt>" ou le jeton nu, comme le client web l'envoie.
func bearer(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}
