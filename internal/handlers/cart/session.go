package cart

import (
	"context"
	"net/http"
	"sync"
	"time"

	"cedra_cart/internal/cache"
	"cedra_cart/internal/cartstore"
	"cedra_cart/internal/checkout"
	"cedra_cart/internal/models"
	"cedra_cart/internal/pricing"
	"cedra_cart/internal/widget"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

const (
	SessionName  = "cedra_cart"
	sessionIDKey = "sid"

	DefaultIdleTimeout = 30 * time.Minute
)

// Session regroupe la page panier d'un navigateur et ses relais vers ce navigateur.
type Session struct {
	ID     string
	Page   *checkout.Page
	Relay  *widget.Relay
	Outbox *Outbox

	lastSeen time.Time
	// fermé une fois le panier persisté chargé
	mounted chan struct{}
}

type RegistryConfig struct {
	Storage        cache.Namespacer
	Gateway        checkout.Gateway
	Pricing        *pricing.Formatter
	Logger         *zap.Logger
	RequestTimeout time.Duration
	IdleTimeout    time.Duration
	Now            func() time.Time
}

// Registry garde une page par session et ferme celles restées inactives.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	cfg      RegistryConfig
	logger   *zap.Logger
}

func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Registry{
		sessions: make(map[string]*Session),
		cfg:      cfg,
		logger:   cfg.Logger,
	}
}

// Get renvoie la session, en la créant et en montant sa page au premier appel.
// Les appels suivants attendent la fin du montage puis transmettent l'état
// d'authentification courant.
func (r *Registry) Get(ctx context.Context, id string, auth models.AuthState) *Session {
	s, created := r.acquire(id)
	if created {
		s.Page.Mount(ctx, auth)
		close(s.mounted)
		return s
	}
	<-s.mounted
	s.Page.SetAuth(auth)
	return s
}

// Lookup renvoie la session sans toucher à son authentification. Une session inconnue
// est créée et montée en invité.
func (r *Registry) Lookup(ctx context.Context, id string) *Session {
	s, created := r.acquire(id)
	if created {
		s.Page.Mount(ctx, models.AuthState{})
		close(s.mounted)
		return s
	}
	<-s.mounted
	return s
}

func (r *Registry) acquire(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		s.lastSeen = r.cfg.Now()
		return s, false
	}

	logger := r.logger.With(zap.String("session", id))
	relay := widget.NewRelay()
	outbox := &Outbox{}
	page := checkout.NewPage(checkout.Options{
		Store:          cartstore.New(r.cfg.Storage.Namespace(id), logger),
		Gateway:        r.cfg.Gateway,
		Widget:         relay,
		Navigator:      outbox,
		Notifier:       outbox,
		Pricing:        r.cfg.Pricing,
		Logger:         logger,
		RequestTimeout: r.cfg.RequestTimeout,
	})
	s := &Session{
		ID:       id,
		Page:     page,
		Relay:    relay,
		Outbox:   outbox,
		lastSeen: r.cfg.Now(),
		mounted:  make(chan struct{}),
	}
	r.sessions[id] = s
	logger.Debug("🛒 nouvelle page panier")
	return s, true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep ferme les pages inactives depuis plus que le délai d'inactivité. Le panier
// persisté reste en place pour la prochaine visite.
func (r *Registry) Sweep() int {
	deadline := r.cfg.Now().Add(-r.cfg.IdleTimeout)

	r.mu.Lock()
	var idle []*Session
	for id, s := range r.sessions {
		if s.lastSeen.Before(deadline) {
			idle = append(idle, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range idle {
		s.Page.Close()
	}
	if len(idle) > 0 {
		r.logger.Info("🧹 pages panier inactives fermées", zap.Int("count", len(idle)))
	}
	return len(idle)
}

// Run balaye périodiquement jusqu'à l'annulation du contexte.
func (r *Registry) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

func (r *Registry) Close() {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		all = append(all, s)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, s := range all {
		s.Page.Close()
	}
}

// NewCookieStore configure le cookie de session comme le reste du backend.
func NewCookieStore(secret []byte, secure bool) *sessions.CookieStore {
	store := sessions.NewCookieStore(secret)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 30,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

// sessionID lit l'identifiant du cookie, ou en crée un et pose le cookie.
func sessionID(c *gin.Context, store sessions.Store) (string, error) {
	sess, err := store.Get(c.Request, SessionName)
	if err != nil {
		// cookie illisible (secret changé) : on repart d'une session neuve
		sess, err = store.New(c.Request, SessionName)
		if sess == nil {
			return "", err
		}
	}

	if id, ok := sess.Values[sessionIDKey].(string); ok && id != "" {
		return id, nil
	}

	id := uuid.NewString()
	sess.Values[sessionIDKey] = id
	if err := sess.Save(c.Request, c.Writer); err != nil {
		return "", err
	}
	return id, nil
}
