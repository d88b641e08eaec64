package cache

import (
	"context"
	"errors"
)

// ErrNotFound : aucune valeur enregistrée pour la clé demandée.
var ErrNotFound = errors.New("clé introuvable")

// Storage est le stockage durable d'une session (l'équivalent du localStorage du navigateur).
// Set remplace la valeur en entier.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Namespacer découpe un stockage partagé en espaces par session.
type Namespacer interface {
	Namespace(namespace string) Storage
}
