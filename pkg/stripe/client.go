package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/carrental-backend/pkg/config"
	"github.com/angelmondragon/carrental-backend/pkg/logger"
)

const defaultChargeTimeout = 15 * time.Second

// keyPrefixes lists the secret and restricted key prefixes accepted per environment.
var keyPrefixes = map[string][]string{
	"test": {"sk_test_", "rk_test_"},
	"live": {"sk_live_", "rk_live_"},
}

// Client bundles the Stripe SDK client with the webhook secret and charge deadline.
type Client struct {
	api           *stripe.Client
	environment   string
	signingSecret string
	chargeTimeout time.Duration
}

// NewClient refuses a key that belongs to the other environment, so a test
// deploy can never move real money.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env := cfg.Environment()
	prefixes, ok := keyPrefixes[env]
	if !ok {
		return nil, fmt.Errorf("stripe environment must be test or live, got %q", env)
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	secret := strings.TrimSpace(cfg.Secret)
	switch {
	case apiKey == "":
		return nil, errors.New("stripe api key is required")
	case secret == "":
		return nil, errors.New("stripe webhook secret is required")
	case !hasAnyPrefix(apiKey, prefixes):
		return nil, fmt.Errorf("stripe environment %q requires a %s key", env, strings.Join(prefixes, " or "))
	}

	timeout := cfg.ChargeTimeout
	if timeout <= 0 {
		timeout = defaultChargeTimeout
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "stripe_env", env), "stripe client initialized")
	}
	return &Client{
		api:           stripe.NewClient(apiKey),
		environment:   env,
		signingSecret: secret,
		chargeTimeout: timeout,
	}, nil
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func (c *Client) API() *stripe.Client {
	if c == nil {
		return nil
	}
	return c.api
}

// Environment is "test" or "live".
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// SigningSecret verifies inbound webhook payloads.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

// ChargeTimeout bounds every call made to the payment processor.
func (c *Client) ChargeTimeout() time.Duration {
	if c == nil || c.chargeTimeout <= 0 {
		return defaultChargeTimeout
	}
	return c.chargeTimeout
}
