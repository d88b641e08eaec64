package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	PaymentIntentID string          `json:"payment_intent_id"`
	Items           Cart            `json:"items"`
	TotalPrice      decimal.Decimal `json:"total_price"`
	Currency        string          `json:"currency"`
	Status          string          `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
}
