package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cedra_cart/internal/cartstore"
	"cedra_cart/internal/models"
	"cedra_cart/internal/pricing"

	"go.uber.org/zap"
)

// Phase suit une tentative de paiement :
// idle → token_requested → token_ready → widget_ready → submitting → completed | failed.
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseTokenRequested Phase = "token_requested"
	PhaseTokenReady     Phase = "token_ready"
	PhaseWidgetReady    Phase = "widget_ready"
	PhaseSubmitting     Phase = "submitting"
	PhaseCompleted      Phase = "completed"
	PhaseFailed         Phase = "failed"
)

const (
	DefaultRequestTimeout = 30 * time.Second

	PaymentSuccessMessage = "Payment Completed Successfully"
	PaymentFailureMessage = "Payment Failed, please confirm your payment method again"
)

type Options struct {
	Store          *cartstore.Store
	Gateway        Gateway
	Widget         Widget
	Navigator      Navigator
	Notifier       Notifier
	Pricing        *pricing.Formatter
	Logger         *zap.Logger
	RequestTimeout time.Duration
}

// Page est la page panier d'une session. Les appels réseau et l'initialisation du widget
// tournent en arrière-plan ; une réponse d'une génération dépassée est ignorée.
type Page struct {
	mu sync.Mutex

	store    *cartstore.Store
	gateway  Gateway
	widget   Widget
	nav      Navigator
	notify   Notifier
	pricing  *pricing.Formatter
	logger   *zap.Logger
	timeout  time.Duration
	baseCtx  context.Context
	shutdown context.CancelFunc
	wg       sync.WaitGroup

	mounted     bool
	closed      bool
	auth        models.AuthState
	generation  uint64
	clientToken string

	instance      Instance
	widgetSeq     uint64
	widgetPending bool
	cancelWidget  context.CancelFunc

	phase    Phase
	inFlight bool

	subs    map[int]chan struct{}
	nextSub int
}

func NewPage(opts Options) *Page {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Page{
		store:    opts.Store,
		gateway:  opts.Gateway,
		widget:   opts.Widget,
		nav:      opts.Navigator,
		notify:   opts.Notifier,
		pricing:  opts.Pricing,
		logger:   logger,
		timeout:  timeout,
		baseCtx:  ctx,
		shutdown: cancel,
		phase:    PhaseIdle,
		subs:     make(map[int]chan struct{}),
	}
}

// Mount charge le panier persisté puis déclenche la première demande de ClientToken,
// que l'utilisateur soit connecté ou non.
func (p *Page) Mount(ctx context.Context, auth models.AuthState) {
	p.store.Load(ctx)
	p.SetAuth(auth)
}

// SetAuth relance la demande de ClientToken à chaque changement du jeton d'authentification
// (y compris vers ou depuis invité). Sinon seul l'utilisateur (nom, adresse) est mis à jour.
func (p *Page) SetAuth(auth models.AuthState) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	tokenChanged := !p.mounted || auth.Token != p.auth.Token
	p.mounted = true
	p.auth = auth

	if !tokenChanged {
		p.ensureWidgetLocked()
		p.changedLocked()
		return
	}

	p.generation++
	p.clientToken = ""
	p.discardWidgetLocked()
	p.phase = PhaseTokenRequested

	p.wg.Add(1)
	go p.fetchToken(p.generation, auth.Token)

	p.changedLocked()
}

func (p *Page) fetchToken(generation uint64, authToken string) {
	defer p.wg.Done()

	ctx, cancel := context.WithTimeout(p.baseCtx, p.timeout)
	defer cancel()

	token, err := p.gateway.ClientToken(ctx, authToken)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || generation != p.generation {
		p.logger.Debug("🔁 réponse ClientToken périmée ignorée",
			zap.Uint64("generation", generation), zap.Uint64("current", p.generation))
		return
	}

	if err == nil && token == "" {
		err = errors.New("ClientToken vide")
	}
	if err != nil {
		p.logger.Error("❌ récupération du ClientToken impossible",
			zap.Uint64("generation", generation), zap.Error(err))
		p.phase = PhaseIdle
		p.changedLocked()
		return
	}

	p.clientToken = token
	p.phase = PhaseTokenReady
	p.logger.Info("🔑 ClientToken reçu", zap.Uint64("generation", generation))
	p.ensureWidgetLocked()
	p.changedLocked()
}

// ensureWidgetLocked initialise le widget dès qu'il doit être affiché et jette
// l'instance quand il ne l'est plus.
func (p *Page) ensureWidgetLocked() {
	if p.closed {
		return
	}

	decision := p.decideLocked()
	if !decision.ShowWidget {
		if p.instance != nil || p.widgetPending {
			p.discardWidgetLocked()
			if p.phase == PhaseWidgetReady {
				p.phase = PhaseTokenReady
			}
		}
		return
	}

	if p.instance != nil || p.widgetPending || p.inFlight || p.widget == nil {
		return
	}

	ctx, cancel := context.WithCancel(p.baseCtx)
	p.widgetSeq++
	p.widgetPending = true
	p.cancelWidget = cancel

	p.wg.Add(1)
	go p.initWidget(ctx, p.widgetSeq, p.clientToken)
}

func (p *Page) initWidget(ctx context.Context, seq uint64, clientToken string) {
	defer p.wg.Done()

	instance, err := p.widget.Initialize(ctx, clientToken)
	if err == nil && instance == nil {
		err = ErrNoInstance
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || seq != p.widgetSeq {
		return
	}

	p.widgetPending = false
	if err != nil {
		if p.cancelWidget != nil {
			p.cancelWidget()
			p.cancelWidget = nil
		}
		p.logger.Error("❌ initialisation du widget de paiement impossible", zap.Error(err))
		p.changedLocked()
		return
	}

	p.instance = instance
	if p.phase != PhaseSubmitting {
		p.phase = PhaseWidgetReady
	}
	p.logger.Info("💳 widget de paiement prêt")
	p.changedLocked()
}

func (p *Page) discardWidgetLocked() {
	if p.cancelWidget != nil {
		p.cancelWidget()
		p.cancelWidget = nil
	}
	p.widgetSeq++
	p.widgetPending = false
	p.instance = nil
}

// Replace remplace le panier (ajout de produits depuis les autres pages).
func (p *Page) Replace(ctx context.Context, cart models.Cart) error {
	err := p.store.Replace(ctx, cart)
	p.afterCartChange()
	return err
}

func (p *Page) Remove(ctx context.Context, id string) error {
	err := p.store.Remove(ctx, id)
	p.afterCartChange()
	return err
}

func (p *Page) afterCartChange() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ensureWidgetLocked()
	p.changedLocked()
}

// Submit lance le paiement : nonce auprès du widget, puis {nonce, panier} vers la passerelle.
// Refusé tant que le bouton est désactivé, ce qui empêche un double débit.
func (p *Page) Submit(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if !p.decideLocked().SubmitEnabled {
		p.mu.Unlock()
		return ErrSubmitDisabled
	}

	instance := p.instance
	p.instance = nil
	p.inFlight = true
	p.phase = PhaseSubmitting
	cart := p.store.Items()
	authToken := p.auth.Token
	p.changedLocked()
	p.mu.Unlock()

	err := p.pay(ctx, instance, authToken, cart)
	if err != nil {
		p.failSubmit(err)
		return err
	}

	p.completeSubmit(ctx)
	return nil
}

func (p *Page) pay(ctx context.Context, instance Instance, authToken string, cart models.Cart) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	nonce, err := instance.RequestNonce(ctx)
	if err != nil {
		return fmt.Errorf("demande du nonce: %w", err)
	}

	if err := p.gateway.Pay(ctx, authToken, PaymentRequest{Nonce: nonce, Cart: cart}); err != nil {
		return fmt.Errorf("paiement: %w", err)
	}
	return nil
}

// failSubmit laisse panier et ClientToken intacts. L'instance consommée n'est pas
// réutilisée : le widget est réinitialisé et l'utilisateur doit reconfirmer.
func (p *Page) failSubmit(err error) {
	p.mu.Lock()
	p.inFlight = false
	p.phase = PhaseFailed
	p.logger.Error("❌ paiement échoué", zap.Error(err))
	p.discardWidgetLocked()
	p.ensureWidgetLocked()
	p.changedLocked()
	p.mu.Unlock()

	if p.notify != nil {
		p.notify.Error(PaymentFailureMessage)
	}
}

func (p *Page) completeSubmit(ctx context.Context) {
	if err := p.store.Clear(context.WithoutCancel(ctx)); err != nil {
		p.logger.Error("❌ panier payé mais non vidé du stockage", zap.Error(err))
	}

	p.mu.Lock()
	p.inFlight = false
	p.phase = PhaseCompleted
	p.discardWidgetLocked()
	p.logger.Info("✅ paiement effectué")
	p.changedLocked()
	p.mu.Unlock()

	if p.nav != nil {
		p.nav.Navigate(Target{Path: OrderHistoryPath})
	}
	if p.notify != nil {
		p.notify.Success(PaymentSuccessMessage)
	}
}

func (p *Page) decideLocked() Decision {
	return Decide(GateInput{
		Auth:        p.auth,
		CartSize:    p.store.Len(),
		ClientToken: p.clientToken,
		HasInstance: p.instance != nil,
		InFlight:    p.inFlight,
	})
}

func (p *Page) Decision() Decision {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.decideLocked()
}

func (p *Page) Phase() Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase
}

func (p *Page) ClientToken() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clientToken
}

// Subscribe signale chaque changement d'état ; les signaux rapprochés sont fusionnés.
func (p *Page) Subscribe() (<-chan struct{}, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan struct{}, 1)
	if p.closed {
		close(ch)
		return ch, func() {}
	}

	id := p.nextSub
	p.nextSub++
	p.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if sub, ok := p.subs[id]; ok {
				delete(p.subs, id)
				close(sub)
			}
		})
	}
}

func (p *Page) changedLocked() {
	for _, ch := range p.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Close abandonne le travail en cours et attend la fin des goroutines.
func (p *Page) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.shutdown()
	p.discardWidgetLocked()
	for id, ch := range p.subs {
		delete(p.subs, id)
		close(ch)
	}
	p.mu.Unlock()

	p.wg.Wait()
}
