package cart

import (
	"sync"

	"cedra_cart/internal/checkout"
)

type Toast struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Outbox retient navigations et notifications de la page jusqu'à ce qu'une réponse HTTP
// ou le websocket les livre au navigateur.
type Outbox struct {
	mu       sync.Mutex
	redirect *checkout.Target
	toasts   []Toast
}

func (o *Outbox) Navigate(target checkout.Target) {
	o.mu.Lock()
	defer o.mu.Unlock()
	t := target
	o.redirect = &t
}

func (o *Outbox) Success(message string) {
	o.push(Toast{Type: "success", Message: message})
}

func (o *Outbox) Error(message string) {
	o.push(Toast{Type: "error", Message: message})
}

func (o *Outbox) push(t Toast) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.toasts = append(o.toasts, t)
}

// Drain livre chaque événement une seule fois.
func (o *Outbox) Drain() (*checkout.Target, []Toast) {
	o.mu.Lock()
	defer o.mu.Unlock()
	redirect, toasts := o.redirect, o.toasts
	o.redirect, o.toasts = nil, nil
	return redirect, toasts
}
