package checkout

import (
	"context"

	"cedra_cart/internal/models"
)

// Widget est le widget de paiement tiers : il échange un ClientToken contre une instance.
type Widget interface {
	Initialize(ctx context.Context, clientToken string) (Instance, error)
}

// Instance demande un nonce à usage unique représentant le moyen de paiement.
type Instance interface {
	RequestNonce(ctx context.Context) (string, error)
}

// Gateway regroupe les deux appels réseau de la page.
type Gateway interface {
	ClientToken(ctx context.Context, authToken string) (string, error)
	Pay(ctx context.Context, authToken string, req PaymentRequest) error
}

type PaymentRequest struct {
	Nonce string      `json:"nonce"`
	Cart  models.Cart `json:"cart"`
}

const (
	LoginPath        = "/login"
	LoginReturnPath  = "/cart"
	ProfilePath      = "/dashboard/user/profile"
	OrderHistoryPath = "/dashboard/user/orders"
)

type Target struct {
	Path  string `json:"path"`
	State string `json:"state,omitempty"`
}

type Navigator interface {
	Navigate(target Target)
}

type Notifier interface {
	Success(message string)
	Error(message string)
}
