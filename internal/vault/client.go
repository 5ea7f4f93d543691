package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"

	"gap-reversion-bot/config"
	"gap-reversion-bot/internal/logging"
)

// ErrDisabled is returned when credentials are requested with Vault off
var ErrDisabled = errors.New("vault is disabled")

// AlpacaCredentials is the secret stored at <mount>/data/<secret_path>
type AlpacaCredentials struct {
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
	Paper     bool   `json:"paper"`
}

// Client wraps the HashiCorp Vault client
type Client struct {
	client *api.Client
	config config.VaultConfig
	mu     sync.RWMutex
	cached *AlpacaCredentials
}

// NewClient creates a new Vault client
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if cfg.MountPath == "" {
		cfg.MountPath = "secret"
	}
	if !cfg.Enabled {
		return &Client{config: cfg}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{
			CACert: cfg.CACert,
		}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	client.SetToken(cfg.Token)

	return &Client{
		client: client,
		config: cfg,
	}, nil
}

// AlpacaCredentials reads the broker credentials, caching the first
// successful read for the life of the process
func (c *Client) AlpacaCredentials(ctx context.Context) (*AlpacaCredentials, error) {
	c.mu.RLock()
	if c.cached != nil {
		creds := *c.cached
		c.mu.RUnlock()
		return &creds, nil
	}
	c.mu.RUnlock()

	if !c.config.Enabled {
		return nil, ErrDisabled
	}

	path := c.secretPath()
	secret, err := c.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read alpaca credentials from vault: %w", err)
	}

	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("alpaca credentials not found at %s", path)
	}

	// KV v2 nests the payload under "data"
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid secret format")
	}

	creds := &AlpacaCredentials{
		APIKey:    getString(data, "api_key"),
		SecretKey: getString(data, "secret_key"),
		Paper:     getBool(data, "paper", true),
	}
	if creds.APIKey == "" || creds.SecretKey == "" {
		return nil, fmt.Errorf("secret at %s is missing api_key or secret_key", path)
	}

	c.mu.Lock()
	c.cached = creds
	c.mu.Unlock()

	logging.WithComponent("vault").Info("Loaded Alpaca credentials from Vault", "path", path, "paper", creds.Paper)

	result := *creds
	return &result, nil
}

// IsEnabled returns whether Vault is enabled
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// Health checks the Vault connection
func (c *Client) Health(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}

	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}

	return nil
}

// ApplyTo overlays the credentials onto the Alpaca config. Paper is only
// ever tightened, never relaxed, by what Vault says.
func (a *AlpacaCredentials) ApplyTo(cfg *config.AlpacaConfig) {
	cfg.APIKey = a.APIKey
	cfg.SecretKey = a.SecretKey
	if a.Paper {
		cfg.Paper = true
	}
}

func (c *Client) secretPath() string {
	return fmt.Sprintf("%s/data/%s", c.config.MountPath, c.config.SecretPath)
}

func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

func getBool(data map[string]interface{}, key string, fallback bool) bool {
	if val, ok := data[key]; ok {
		switch v := val.(type) {
		case bool:
			return v
		case string:
			return v == "true"
		case json.Number:
			n, _ := v.Int64()
			return n != 0
		}
	}
	return fallback
}
