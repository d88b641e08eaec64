package cartstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"cedra_cart/internal/cache"
	"cedra_cart/internal/models"

	"go.uber.org/zap"
)

// Key est la clé du panier dans le stockage de la session.
const Key = "cart"

// ErrStorage : lecture, écriture ou sérialisation du panier impossible.
var ErrStorage = errors.New("stockage panier indisponible")

// Store garde le panier en mémoire et sa copie persistée identiques après chaque mutation.
type Store struct {
	mu      sync.RWMutex
	storage cache.Storage
	items   models.Cart
	logger  *zap.Logger
}

func New(storage cache.Storage, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		storage: storage,
		items:   models.Cart{},
		logger:  logger,
	}
}

// Load lit le panier persisté. Absent ou illisible : panier vide, jamais d'erreur.
func (s *Store) Load(ctx context.Context) models.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = models.Cart{}

	data, err := s.storage.Get(ctx, Key)
	if errors.Is(err, cache.ErrNotFound) {
		return s.items.Clone()
	}
	if err != nil {
		s.logger.Warn("⚠️ lecture panier impossible, panier vide", zap.Error(err))
		return s.items.Clone()
	}

	var cart models.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		s.logger.Warn("⚠️ panier persisté corrompu, panier vide", zap.Error(err))
		return s.items.Clone()
	}
	if cart != nil {
		s.items = cart
	}
	return s.items.Clone()
}

func (s *Store) Items() models.Cart {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.items.Clone()
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Replace écrit d'abord le stockage puis la mémoire. En cas d'échec rien n'est appliqué.
func (s *Store) Replace(ctx context.Context, cart models.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replaceLocked(ctx, cart)
}

// Remove retire le premier article portant cet ID. Aucun article : panier inchangé.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.items.Clone()
	for i, item := range next {
		if item.ID == id {
			next = append(next[:i], next[i+1:]...)
			break
		}
	}
	return s.replaceLocked(ctx, next)
}

// Clear vide le panier après un paiement réussi. Si la suppression échoue, un panier
// vide est écrit à la place pour que le stockage suive la mémoire.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = models.Cart{}
	err := s.storage.Delete(ctx, Key)
	if err == nil {
		return nil
	}
	s.logger.Warn("⚠️ suppression du panier persisté impossible, écriture d'un panier vide", zap.Error(err))

	if setErr := s.storage.Set(ctx, Key, []byte("[]")); setErr != nil {
		s.logger.Error("❌ panier persisté non vidé", zap.Error(errors.Join(err, setErr)))
		return fmt.Errorf("%w: %v", ErrStorage, errors.Join(err, setErr))
	}
	return nil
}

func (s *Store) replaceLocked(ctx context.Context, cart models.Cart) error {
	next := cart.Clone()

	data, err := json.Marshal(next)
	if err != nil {
		s.logger.Error("❌ sérialisation panier impossible", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}

	if err := s.storage.Set(ctx, Key, data); err != nil {
		s.logger.Error("❌ écriture panier impossible", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}

	s.items = next
	return nil
}
