package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/wildroots/wildroots-backend/pkg/config"
	"github.com/wildroots/wildroots-backend/pkg/logger"
)

const (
	modeTest = "test"
	modeLive = "live"
)

// secret and restricted keys both carry the mode in their prefix
var keyPrefixes = map[string][]string{
	modeTest: {"sk_test_", "rk_test_"},
	modeLive: {"sk_live_", "rk_live_"},
}

var (
	errAPIKeyRequired = errors.New("stripe api key is required")
	errSecretRequired = errors.New("stripe webhook signing secret is required")
	errUnknownMode    = fmt.Errorf("stripe environment must be %q or %q", modeTest, modeLive)
)

// Client is the payment processor gateway: hosted checkout for new donations,
// balance transaction lookups for settled charges and the signing secret used
// to verify webhooks.
type Client struct {
	api           *stripe.Client
	mode          string
	signingSecret string
}

// NewClient validates the key pair for the configured mode and builds an API
// client on retrying backends that log through logg.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	mode := cfg.Environment()
	if _, ok := keyPrefixes[mode]; !ok {
		return nil, errUnknownMode
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	if err := checkKeyMode(mode, apiKey); err != nil {
		return nil, err
	}

	signingSecret := strings.TrimSpace(cfg.Secret)
	if signingSecret == "" {
		return nil, errSecretRequired
	}

	retries := cfg.MaxNetworkRetries
	if retries < 0 {
		retries = 0
	}
	backends := stripe.NewBackendsWithConfig(&stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(retries),
		LeveledLogger:     leveledLogger{ctx: ctx, logg: logg},
	})
	api := stripe.NewClient(apiKey, stripe.WithBackends(backends))

	if logg != nil {
		ctx = logg.WithFields(ctx, map[string]any{
			"stripe_mode":    mode,
			"stripe_retries": retries,
		})
		logg.Info(ctx, "stripe client ready")
	}

	return &Client{api: api, mode: mode, signingSecret: signingSecret}, nil
}

// API returns the underlying Stripe API client.
func (c *Client) API() *stripe.Client {
	if c == nil {
		return nil
	}
	return c.api
}

// LiveMode reports whether real charges are being processed.
func (c *Client) LiveMode() bool {
	return c != nil && c.mode == modeLive
}

func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

func checkKeyMode(mode, key string) error {
	for _, prefix := range keyPrefixes[mode] {
		if strings.HasPrefix(key, prefix) {
			return nil
		}
	}
	return fmt.Errorf("stripe %s mode needs a %s key, got a key with another prefix", mode, strings.Join(keyPrefixes[mode], " or "))
}

// leveledLogger routes the SDK's request logging into the service logger.
// Debug output is dropped.
type leveledLogger struct {
	ctx  context.Context
	logg *logger.Logger
}

func (l leveledLogger) Debugf(string, ...any) {}

func (l leveledLogger) Infof(format string, v ...any) {
	if l.logg != nil {
		l.logg.Info(l.ctx, "stripe: "+fmt.Sprintf(format, v...))
	}
}

func (l leveledLogger) Warnf(format string, v ...any) {
	if l.logg != nil {
		l.logg.Warn(l.ctx, "stripe: "+fmt.Sprintf(format, v...))
	}
}

func (l leveledLogger) Errorf(format string, v ...any) {
	if l.logg != nil {
		l.logg.Error(l.ctx, "stripe: "+fmt.Sprintf(format, v...), nil)
	}
}
