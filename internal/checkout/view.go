package checkout

import (
	"fmt"

	"cedra_cart/internal/models"

	"go.uber.org/zap"
)

type ItemView struct {
	ID          string `json:"_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       string `json:"price"`
	PhotoURL    string `json:"photo_url"`
}

// View est tout ce dont le navigateur a besoin pour afficher la page panier.
type View struct {
	Greeting      string     `json:"greeting"`
	Summary       string     `json:"summary"`
	Items         []ItemView `json:"items"`
	Count         int        `json:"count"`
	Total         string     `json:"total,omitempty"`
	State         string     `json:"state"`
	Phase         Phase      `json:"phase"`
	Address       string     `json:"address,omitempty"`
	Login         *Target    `json:"login,omitempty"`
	Profile       *Target    `json:"profile,omitempty"`
	ClientToken   string     `json:"clientToken,omitempty"`
	ShowWidget    bool       `json:"show_widget"`
	SubmitEnabled bool       `json:"submit_enabled"`
	Loading       bool       `json:"loading"`
	ButtonLabel   string     `json:"button_label,omitempty"`
}

func (p *Page) View() View {
	p.mu.Lock()
	defer p.mu.Unlock()

	cart := p.store.Items()
	decision := p.decideLocked()

	view := View{
		Greeting: greeting(p.auth),
		Summary:  summary(len(cart), p.auth.IsGuest()),
		Items:    make([]ItemView, 0, len(cart)),
		Count:    len(cart),
		State:    decision.State.String(),
		Phase:    p.phase,
		Loading:  p.inFlight,
	}

	for _, item := range cart {
		view.Items = append(view.Items, ItemView{
			ID:          item.ID,
			Name:        item.Name,
			Description: item.ShortDescription(),
			Price:       item.Price.String(),
			PhotoURL:    item.PhotoURL(),
		})
	}

	if p.pricing != nil {
		total, err := p.pricing.Total(cart)
		if err != nil {
			p.logger.Error("❌ calcul du total impossible", zap.Error(err))
		} else {
			view.Total = total
		}
	}

	switch decision.State {
	case StateGuest:
		view.Login = &Target{Path: LoginPath, State: LoginReturnPath}
	case StateAddressRequired:
		view.Profile = &Target{Path: ProfilePath}
	default:
		view.Address = p.auth.Address()
		view.Profile = &Target{Path: ProfilePath}
	}

	if decision.ShowWidget {
		view.ShowWidget = true
		view.ClientToken = p.clientToken
		view.SubmitEnabled = decision.SubmitEnabled
		view.ButtonLabel = "Make Payment"
		if p.inFlight {
			view.ButtonLabel = "Processing ...."
		}
	}

	return view
}

func greeting(auth models.AuthState) string {
	if auth.User == nil {
		return "Hello Guest"
	}
	return "Hello " + auth.User.Name
}

func summary(count int, guest bool) string {
	if count == 0 {
		return "Your Cart Is Empty!"
	}
	line := fmt.Sprintf("You have %d item(s) in your cart.", count)
	if guest {
		line += " Please Login To Checkout!"
	}
	return line
}
