// Package config handles loading and validation of gateway configuration.
// Supports both development (env vars) and production (Secret Manager) modes.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// DefaultPublicPaths are the endpoints served without a bearer credential:
// login, credential renewal, OAuth URL issuance, and registration.
var DefaultPublicPaths = []string{
	"/auth/login",
	"/auth/renew",
	"/auth/oauth/url",
	"/auth/register",
}

// DefaultPublicRoutes are the navigation routes that tolerate anonymous
// access. Renewal failure never forces a redirect away from these.
var DefaultPublicRoutes = []string{
	"/",
	"/login",
	"/register",
	"/oauth/callback",
}

// Config holds all gateway configuration.
// Environment determines whether secrets load from env vars (development)
// or Secret Manager (production).
type Config struct {
	// Gateway settings
	Port        string
	Environment string // "development" or "production"
	LogLevel    string // "debug", "info", "warn", "error"

	// GCP settings (required in production)
	GCPProject string
	ProfileID  string // names the Secret Manager secret holding storefront config

	// Storefront-specific configuration (loaded from secrets)
	Storefront StorefrontConfig
}

// StorefrontConfig contains storefront-specific settings.
// In production, this is loaded from Secret Manager as JSON.
// In development, loaded from individual env vars or CONFIG_FILE.
type StorefrontConfig struct {
	Origin           string   `json:"origin"` // base API origin
	APIKey           string   `json:"api_key,omitempty"`
	CrossOriginCreds bool     `json:"cross_origin_credentials,omitempty"`
	PublicPaths      []string `json:"public_paths,omitempty"`
	PublicRoutes     []string `json:"public_routes,omitempty"`
	LedgerPath       string   `json:"ledger_path"` // guest cart database file
	MinAPIVersion    string   `json:"min_api_version,omitempty"`
}

// Load reads configuration from file, environment, or Secret Manager.
// Priority: CONFIG_FILE (if set) → ENV vars / Secret Manager.
// Validates all required fields and returns an error if any are missing.
func Load(ctx context.Context) (*Config, error) {
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromFile(configPath)
	}

	cfg := &Config{
		Port:        envOrDefault("PORT", "8080"),
		Environment: envOrDefault("ENVIRONMENT", "development"),
		LogLevel:    envOrDefault("LOG_LEVEL", "info"),
		GCPProject:  os.Getenv("GCP_PROJECT"),
		ProfileID:   os.Getenv("PROFILE_ID"),
	}

	var err error
	if cfg.Environment == "production" {
		if cfg.GCPProject == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production environment")
		}
		if cfg.ProfileID == "" {
			return nil, fmt.Errorf("PROFILE_ID required in production environment")
		}
		err = cfg.loadFromSecretManager(ctx)
	} else {
		err = cfg.loadFromEnv()
	}
	if err != nil {
		return nil, fmt.Errorf("loading storefront config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile reads all configuration from a JSON file.
// Used for local development to avoid juggling many ENV vars.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var fileConfig struct {
		Port        string           `json:"port"`
		Environment string           `json:"environment"`
		LogLevel    string           `json:"log_level"`
		Storefront  StorefrontConfig `json:"storefront"`
	}
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg := &Config{
		Port:        withDefault(fileConfig.Port, "8080"),
		Environment: withDefault(fileConfig.Environment, "development"),
		LogLevel:    withDefault(fileConfig.LogLevel, "info"),
		Storefront:  fileConfig.Storefront,
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromSecretManager fetches storefront config from GCP Secret Manager.
// Secret name format: projects/{project}/secrets/{profile_id}/versions/latest
func (c *Config) loadFromSecretManager(ctx context.Context) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest",
		c.GCPProject, c.ProfileID)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	if err := json.Unmarshal(result.Payload.Data, &c.Storefront); err != nil {
		return fmt.Errorf("parsing secret JSON: %w", err)
	}
	return nil
}

// loadFromEnv reads storefront config from individual environment variables.
// Used in development mode for local testing.
func (c *Config) loadFromEnv() error {
	c.Storefront = StorefrontConfig{
		Origin:           os.Getenv("STOREFRONT_ORIGIN"),
		APIKey:           os.Getenv("STOREFRONT_API_KEY"),
		CrossOriginCreds: os.Getenv("STOREFRONT_CROSS_ORIGIN_CREDENTIALS") == "true",
		LedgerPath:       os.Getenv("LEDGER_PATH"),
		MinAPIVersion:    os.Getenv("STOREFRONT_MIN_API_VERSION"),
	}

	if pathsJSON := os.Getenv("PUBLIC_PATHS"); pathsJSON != "" {
		if err := json.Unmarshal([]byte(pathsJSON), &c.Storefront.PublicPaths); err != nil {
			return fmt.Errorf("parsing PUBLIC_PATHS JSON: %w", err)
		}
	}
	return nil
}

// applyDefaults fills optional fields with their defaults.
func (c *Config) applyDefaults() {
	if len(c.Storefront.PublicPaths) == 0 {
		c.Storefront.PublicPaths = DefaultPublicPaths
	}
	if len(c.Storefront.PublicRoutes) == 0 {
		c.Storefront.PublicRoutes = DefaultPublicRoutes
	}
	if c.Storefront.LedgerPath == "" {
		c.Storefront.LedgerPath = "guest-cart.db"
	}
	if c.Storefront.MinAPIVersion == "" {
		c.Storefront.MinAPIVersion = "1.0.0"
	}
}

// validate checks that all required configuration fields are present.
func (c *Config) validate() error {
	if c.Storefront.Origin == "" {
		return fmt.Errorf("origin is required")
	}
	if _, err := url.Parse(c.Storefront.Origin); err != nil {
		return fmt.Errorf("invalid origin: %w", err)
	}
	if !strings.HasPrefix(c.Storefront.Origin, "http://") && !strings.HasPrefix(c.Storefront.Origin, "https://") {
		return fmt.Errorf("origin must be an absolute http(s) URL")
	}
	return nil
}

// withDefault returns val if non-empty, otherwise defaultVal.
func withDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}

// envOrDefault returns the environment variable value or the default if not set.
func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
