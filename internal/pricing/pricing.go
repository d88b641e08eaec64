// Package pricing calcule le total affiché du panier.
package pricing

import (
	"errors"
	"fmt"
	"strings"

	"cedra_cart/internal/models"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

const (
	DefaultCurrency = "USD"
	DefaultLocale   = "en-US"
)

// ErrComputation : le total n'a pas pu être calculé ou formaté.
var ErrComputation = errors.New("calcul du total impossible")

// symbolAfter : langues qui écrivent le symbole après le montant ("1 234,50 €").
var symbolAfter = map[string]bool{
	"fr": true, "de": true, "es": true, "it": true, "pl": true, "cs": true, "sk": true,
	"sv": true, "fi": true, "da": true, "nb": true, "ru": true, "uk": true, "hu": true,
	"ro": true, "bg": true, "hr": true, "sl": true, "lt": true, "lv": true, "et": true,
	"el": true, "ca": true,
}

// Formatter formate les montants avec une devise et une locale fixes.
type Formatter struct {
	unit       currency.Unit
	tag        language.Tag
	printer    *message.Printer
	symbol     string
	suffix     bool
	decimalSep string
	scale      int
}

func NewFormatter(currencyCode, locale string) (*Formatter, error) {
	if currencyCode == "" {
		currencyCode = DefaultCurrency
	}
	if locale == "" {
		locale = DefaultLocale
	}

	unit, err := currency.ParseISO(currencyCode)
	if err != nil {
		return nil, fmt.Errorf("devise %q invalide: %w", currencyCode, err)
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("locale %q invalide: %w", locale, err)
	}

	printer := message.NewPrinter(tag)
	scale, _ := currency.Standard.Rounding(unit)
	base, _ := tag.Base()

	return &Formatter{
		unit:       unit,
		tag:        tag,
		printer:    printer,
		symbol:     printer.Sprint(currency.Symbol(unit)),
		suffix:     symbolAfter[base.String()],
		decimalSep: decimalSeparator(printer),
		scale:      scale,
	}, nil
}

func (f *Formatter) Currency() string {
	return f.unit.String()
}

// Sum additionne les prix tels quels : les prix négatifs ne sont pas rejetés.
func Sum(cart models.Cart) decimal.Decimal {
	total := decimal.Zero
	for _, item := range cart {
		total = total.Add(item.Price)
	}
	return total
}

// Total retourne le total formaté ("$35.00"). Un panier vide ou nil donne zéro.
func (f *Formatter) Total(cart models.Cart) (formatted string, err error) {
	defer func() {
		if r := recover(); r != nil {
			formatted = ""
			err = fmt.Errorf("%w: %v", ErrComputation, r)
		}
	}()
	return f.Format(Sum(cart))
}

// Format applique l'arrondi de la devise puis les séparateurs de la locale. Les chiffres
// viennent du décimal, jamais d'un float.
func (f *Formatter) Format(amount decimal.Decimal) (string, error) {
	if f == nil || f.printer == nil {
		return "", ErrComputation
	}

	rounded := amount.Round(int32(f.scale))
	sign := ""
	if rounded.IsNegative() {
		sign = "-"
		rounded = rounded.Abs()
	}

	digits := f.printer.Sprint(number.Decimal(rounded.IntPart()))
	if f.scale > 0 {
		fixed := rounded.StringFixed(int32(f.scale))
		digits += f.decimalSep + fixed[strings.IndexByte(fixed, '.')+1:]
	}

	if f.suffix {
		return sign + digits + "\u00a0" + f.symbol, nil
	}
	return sign + f.symbol + digits, nil
}

// decimalSeparator lit le séparateur décimal de la locale ("." ou ",").
func decimalSeparator(p *message.Printer) string {
	sample := []rune(p.Sprint(number.Decimal(1.5, number.Scale(1))))
	if len(sample) < 3 {
		return "."
	}
	return string(sample[1 : len(sample)-1])
}

// MinorUnits convertit le total en plus petite unité de la devise (centimes pour USD).
func (f *Formatter) MinorUnits(cart models.Cart) int64 {
	return Sum(cart).Shift(int32(f.scale)).Round(0).IntPart()
}
