package checkout

import "errors"

var (
	// ErrSubmitDisabled : le bouton de paiement est désactivé dans l'état courant.
	ErrSubmitDisabled = errors.New("paiement indisponible")
	// ErrNoInstance : le widget n'a pas encore fourni d'instance.
	ErrNoInstance = errors.New("widget de paiement non initialisé")
	ErrClosed     = errors.New("page fermée")
)
