package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cedra_cart/internal/checkout"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	TokenPath   = "/api/v1/product/braintree/token"
	PaymentPath = "/api/v1/product/braintree/payment"

	DefaultTimeout = 30 * time.Second

	// au-delà, le circuit s'ouvre et les appels échouent immédiatement
	maxConsecutiveFailures = 5
	openStateTimeout       = 30 * time.Second
	maxErrorBody           = 4 << 10
)

var (
	// ErrNetwork couvre tout échec d'un appel à la passerelle : transport, statut non 2xx,
	// réponse illisible ou circuit ouvert.
	ErrNetwork    = errors.New("gateway: appel réseau échoué")
	ErrEmptyToken = errors.New("gateway: ClientToken vide")
)

// StatusError est une réponse non 2xx de la passerelle.
type StatusError struct {
	Method string
	Path   string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s %s: statut %d", ErrNetwork, e.Method, e.Path, e.Status)
}

func (e *StatusError) Unwrap() error { return ErrNetwork }

// rejected : la passerelle a répondu, la requête est refusée (carte déclinée, jeton
// invalide). Le circuit ne compte que les pannes.
func rejected(err error) bool {
	var status *StatusError
	return errors.As(err, &status) && status.Status >= 400 && status.Status < 500
}

type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client parle au backend de paiement. Les demandes de ClientToken simultanées pour un
// même jeton d'authentification partagent un seul appel ; le paiement n'est jamais mutualisé.
// Jeton et paiement ont chacun leur circuit.
type Client struct {
	baseURL       string
	http          *http.Client
	logger        *zap.Logger
	group         singleflight.Group
	tokenBreaker  *gobreaker.CircuitBreaker[[]byte]
	chargeBreaker *gobreaker.CircuitBreaker[[]byte]
}

var _ checkout.Gateway = (*Client)(nil)

func New(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		http:          httpClient,
		logger:        logger,
		tokenBreaker:  newBreaker("payment-gateway-token", logger),
		chargeBreaker: newBreaker("payment-gateway-charge", logger),
	}
}

func newBreaker(name string, logger *zap.Logger) *gobreaker.CircuitBreaker[[]byte] {
	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    name,
		Timeout: openStateTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || rejected(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("⚡ circuit de la passerelle",
				zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
}

type tokenResponse struct {
	ClientToken string `json:"clientToken"`
}

// ClientToken ne dépend pas du contexte du premier appelant : l'appel partagé continue
// si celui-ci abandonne, les autres reçoivent quand même le jeton.
func (c *Client) ClientToken(ctx context.Context, authToken string) (string, error) {
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan("token:"+authToken, func() (interface{}, error) {
		body, err := c.call(detached, c.tokenBreaker, http.MethodGet, TokenPath, authToken, nil)
		if err != nil {
			return "", err
		}

		var resp tokenResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("%w: réponse token illisible: %v", ErrNetwork, err)
		}
		if resp.ClientToken == "" {
			return "", ErrEmptyToken
		}
		return resp.ClientToken, nil
	})

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %v", ErrNetwork, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		if res.Shared {
			c.logger.Debug("🔁 ClientToken mutualisé")
		}
		return res.Val.(string), nil
	}
}

func (c *Client) Pay(ctx context.Context, authToken string, req checkout.PaymentRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encodage du paiement: %w", err)
	}

	if _, err := c.call(ctx, c.chargeBreaker, http.MethodPost, PaymentPath, authToken, payload); err != nil {
		return err
	}
	c.logger.Info("💰 paiement accepté par la passerelle", zap.Int("items", len(req.Cart)))
	return nil
}

func (c *Client) call(ctx context.Context, breaker *gobreaker.CircuitBreaker[[]byte], method, path, authToken string, payload []byte) ([]byte, error) {
	body, err := breaker.Execute(func() ([]byte, error) {
		return c.do(ctx, method, path, authToken, payload)
	})
	if err == nil {
		return body, nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return nil, err
}

func (c *Client) do(ctx context.Context, method, path, authToken string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("❌ passerelle injoignable", zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Error("❌ passerelle en erreur",
			zap.String("path", path), zap.Int("status", resp.StatusCode), zap.ByteString("body", snippet))
		return nil, &StatusError{Method: method, Path: path, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: lecture de la réponse: %v", ErrNetwork, err)
	}
	return body, nil
}
