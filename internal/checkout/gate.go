package checkout

import "cedra_cart/internal/models"

// State est l'affichage de checkout choisi pour la page. Exactement un à la fois.
type State int

const (
	StateGuest State = iota + 1
	StateAddressRequired
	StateSummary
	StatePayment
)

func (s State) String() string {
	switch s {
	case StateGuest:
		return "guest"
	case StateAddressRequired:
		return "address_required"
	case StateSummary:
		return "summary"
	case StatePayment:
		return "payment"
	default:
		return "unknown"
	}
}

type GateInput struct {
	Auth        models.AuthState
	CartSize    int
	ClientToken string
	HasInstance bool
	InFlight    bool
}

type Decision struct {
	State         State
	ShowWidget    bool
	SubmitEnabled bool
}

// Decide applique les règles dans l'ordre : invité, adresse, jeton/panier, paiement.
// Sans adresse le widget n'est jamais affiché, même avec un jeton.
func Decide(in GateInput) Decision {
	if in.Auth.IsGuest() {
		return Decision{State: StateGuest}
	}

	address := in.Auth.Address()
	if address == "" {
		return Decision{State: StateAddressRequired}
	}

	if in.ClientToken == "" || in.CartSize == 0 {
		return Decision{State: StateSummary}
	}

	return Decision{
		State:         StatePayment,
		ShowWidget:    true,
		SubmitEnabled: in.HasInstance && address != "" && !in.InFlight,
	}
}
