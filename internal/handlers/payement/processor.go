package payement

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/paymentintent"
	"github.com/stripe/stripe-go/v83/setupintent"
)

var ErrDeclined = errors.New("paiement refusé")

// Charge est un débit unique confirmé immédiatement avec le moyen de paiement du widget.
type Charge struct {
	Amount        int64 // unités mineures (centimes)
	Currency      string
	PaymentMethod string
	UserID        string
	Email         string
}

// Processor est le prestataire de paiement derrière les deux routes du widget.
type Processor interface {
	ClientToken(ctx context.Context) (string, error)
	Charge(ctx context.Context, charge Charge) (string, error)
}

// StripeProcessor : le ClientToken est le secret d'un SetupIntent, le nonce est
// l'identifiant du PaymentMethod créé par le widget.
type StripeProcessor struct{}

func NewStripeProcessor(secretKey string) *StripeProcessor {
	stripe.Key = secretKey
	return &StripeProcessor{}
}

func (StripeProcessor) ClientToken(_ context.Context) (string, error) {
	intent, err := setupintent.New(&stripe.SetupIntentParams{
		AutomaticPaymentMethods: &stripe.SetupIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	})
	if err != nil {
		return "", fmt.Errorf("stripe setupintent: %w", err)
	}
	return intent.ClientSecret, nil
}

func (StripeProcessor) Charge(_ context.Context, charge Charge) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(charge.Amount),
		Currency:      stripe.String(strings.ToLower(charge.Currency)),
		PaymentMethod: stripe.String(charge.PaymentMethod),
		Confirm:       stripe.Bool(true),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
		Metadata: map[string]string{
			"user_id": charge.UserID,
			"email":   charge.Email,
		},
	}

	intent, err := paymentintent.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
			return "", fmt.Errorf("%w: %s", ErrDeclined, stripeErr.Msg)
		}
		return "", fmt.Errorf("stripe paymentintent: %w", err)
	}
	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		return intent.ID, fmt.Errorf("%w: statut %s", ErrDeclined, intent.Status)
	}
	return intent.ID, nil
}
