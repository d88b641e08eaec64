package utils

import (
	"context"
	"fmt"
	"html"
	"strings"

	"cedra_cart/internal/models"

	"github.com/shopspring/decimal"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

const OrderConfirmationSubject = "Confirmation de votre commande Cedra"

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Mailer envoie les confirmations de commande par SMTP.
type Mailer struct {
	cfg    SMTPConfig
	logger *zap.Logger
}

func NewMailer(cfg SMTPConfig, logger *zap.Logger) *Mailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mailer{cfg: cfg, logger: logger}
}

// PriceFormatter rend un montant dans la devise de la boutique.
type PriceFormatter func(decimal.Decimal) string

func (m *Mailer) SendOrderConfirmation(ctx context.Context, to string, order models.Order, price PriceFormatter) error {
	msg, err := m.message(to, OrderConfirmationSubject, GenerateOrderConfirmationHTML(order, price))
	if err != nil {
		return err
	}

	client, err := mail.NewClient(m.cfg.Host,
		mail.WithPort(m.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthLogin),
		mail.WithUsername(m.cfg.Username),
		mail.WithPassword(m.cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return fmt.Errorf("client smtp: %w", err)
	}

	m.logger.Info("📤 Envoi de l'e-mail", zap.String("to", to), zap.String("order", order.ID))
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("envoi smtp: %w", err)
	}
	return nil
}

func (m *Mailer) message(to, subject, htmlBody string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return nil, fmt.Errorf("expéditeur: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("destinataire: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, htmlBody)
	return msg, nil
}

// GenerateOrderConfirmationHTML génère le HTML de confirmation de commande
func GenerateOrderConfirmationHTML(order models.Order, price PriceFormatter) string {
	if price == nil {
		price = func(d decimal.Decimal) string { return d.StringFixed(2) }
	}

	var rows strings.Builder
	for _, item := range order.Items {
		fmt.Fprintf(&rows, `
			<tr>
				<td style="padding: 10px; border: 1px solid #ddd;">%s</td>
				<td style="padding: 10px; border: 1px solid #ddd;">%s</td>
			</tr>`, html.EscapeString(item.Name), price(item.Price))
	}

	return fmt.Sprintf(`
<!DOCTYPE html>
<html lang="fr">
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
	<title>Confirmation de commande</title>
</head>
<body style="font-family: Arial, sans-serif; background-color: #f9f9f9; padding: 20px;">
	<div style="max-width: 600px; margin: auto; background-color: white; padding: 20px; border-radius: 10px;">
		<h2 style="color: #333;">Confirmation de votre commande</h2>
		<p>Bonjour,</p>
		<p>Votre commande <strong>%s</strong> a été confirmée avec succès.</p>

		<table style="width: 100%%; border-collapse: collapse; margin: 20px 0;">
			<thead>
				<tr style="background-color: #f0f0f0;">
					<th style="padding: 10px; text-align: left; border: 1px solid #ddd;">Produit</th>
					<th style="padding: 10px; text-align: left; border: 1px solid #ddd;">Prix</th>
				</tr>
			</thead>
			<tbody>
				%s
			</tbody>
			<tfoot>
				<tr>
					<td style="padding: 10px; text-align: right; font-weight: bold;">Total:</td>
					<td style="padding: 10px; font-weight: bold;">%s</td>
				</tr>
			</tfoot>
		</table>

		<p style="margin-top: 30px; color: #555;">
			Cordialement,<br>
			<strong>L'équipe Cedra</strong>
		</p>
	</div>
</body>
</html>`, html.EscapeString(order.ID), rows.String(), price(order.TotalPrice))
}
