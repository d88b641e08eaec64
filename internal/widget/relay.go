// Package widget relaie le widget Drop-in affiché dans le navigateur vers la page panier :
// le navigateur signale que le widget est prêt, puis transmet le nonce au moment du paiement.
package widget

import (
	"context"
	"errors"
	"sync"

	"cedra_cart/internal/checkout"
)

var (
	ErrUnknownToken = errors.New("widget initialisé avec un ClientToken inconnu")
	ErrNoNonce      = errors.New("aucun nonce transmis par le navigateur")
)

type pending struct {
	clientToken string
	ready       chan *instance
}

// Relay implémente checkout.Widget pour une session.
type Relay struct {
	mu      sync.Mutex
	pending *pending
	early   string
	current *instance
}

func NewRelay() *Relay {
	return &Relay{}
}

// Initialize attend que le navigateur signale un widget prêt pour ce ClientToken.
func (r *Relay) Initialize(ctx context.Context, clientToken string) (checkout.Instance, error) {
	r.mu.Lock()
	if r.early != "" && r.early == clientToken {
		r.early = ""
		inst := r.newInstanceLocked()
		r.mu.Unlock()
		return inst, nil
	}
	p := &pending{clientToken: clientToken, ready: make(chan *instance, 1)}
	r.pending = p
	r.mu.Unlock()

	select {
	case inst := <-p.ready:
		return inst, nil
	case <-ctx.Done():
		r.mu.Lock()
		if r.pending == p {
			r.pending = nil
		}
		r.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Ready est appelé quand le Drop-in du navigateur a créé son instance.
func (r *Relay) Ready(clientToken string) error {
	if clientToken == "" {
		return ErrUnknownToken
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pending == nil {
		r.early = clientToken
		return nil
	}
	if r.pending.clientToken != clientToken {
		return ErrUnknownToken
	}

	r.pending.ready <- r.newInstanceLocked()
	r.pending = nil
	return nil
}

// Offer transmet le nonce à l'instance courante ; un nonce précédent non consommé est remplacé.
func (r *Relay) Offer(nonce string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == nil {
		return checkout.ErrNoInstance
	}
	r.current.offer(nonce)
	return nil
}

// Withdraw retire un nonce offert mais non consommé.
func (r *Relay) Withdraw() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil {
		r.current.drain()
	}
}

func (r *Relay) newInstanceLocked() *instance {
	inst := &instance{nonces: make(chan string, 1)}
	r.current = inst
	return inst
}

type instance struct {
	nonces chan string
}

func (i *instance) RequestNonce(ctx context.Context) (string, error) {
	select {
	case nonce := <-i.nonces:
		if nonce == "" {
			return "", ErrNoNonce
		}
		return nonce, nil
	case <-ctx.Done():
		return "", ErrNoNonce
	}
}

func (i *instance) offer(nonce string) {
	i.drain()
	i.nonces <- nonce
}

func (i *instance) drain() {
	select {
	case <-i.nonces:
	default:
	}
}
