package models

import (
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Le navigateur stocke les prix en nombres JSON, on garde la même forme côté serveur.
func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

const (
	PhotoPathPrefix     = "/api/v1/product/product-photo/"
	shortDescriptionLen = 30
)

type CartItem struct {
	ID          string          `json:"_id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
}

// Cart garde l'ordre d'insertion ; les doublons d'ID sont autorisés.
type Cart []CartItem

// PhotoURL est dérivée de l'ID, uniquement pour l'affichage.
func (i CartItem) PhotoURL() string {
	return PhotoPathPrefix + i.ID
}

func (i CartItem) ShortDescription() string {
	if utf8.RuneCountInString(i.Description) <= shortDescriptionLen {
		return i.Description
	}
	runes := []rune(i.Description)
	return string(runes[:shortDescriptionLen]) + "..."
}

// Clone retourne une copie indépendante du panier.
func (c Cart) Clone() Cart {
	if c == nil {
		return Cart{}
	}
	out := make(Cart, len(c))
	copy(out, c)
	return out
}
