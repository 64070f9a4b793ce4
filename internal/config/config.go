// Package config loads process-level settings from the environment.
// Per-provider credentials are not here; they live in the store and are
// reached through providers.Config.
package config

import (
	"fmt"
	"os"
	"time"
)

// Config holds process settings shared by every command.
type Config struct {
	// DatabaseURL selects the store: memory:// or a postgres:// DSN.
	DatabaseURL string
	// DefaultUser is the local user every command acts as.
	DefaultUser string
	LogLevel    string

	// PushgatewayURL enables pushing run metrics when set.
	PushgatewayURL string

	BigQueryProject  string
	BigQueryDataset  string
	AttachmentBucket string

	HTTPTimeout time.Duration

	// OAuthListenAddr is where the auth command waits for the redirect.
	OAuthListenAddr string
}

// Default returns the settings used when no environment is set.
func Default() Config {
	return Config{
		DatabaseURL:     "memory://",
		DefaultUser:     "default",
		BigQueryDataset: "finance",
		HTTPTimeout:     30 * time.Second,
		OAuthListenAddr: "127.0.0.1:8765",
	}
}

// FromEnv overlays environment variables on Default.
func FromEnv() (Config, error) {
	return fromLookup(os.LookupEnv)
}

func fromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("POCKETSYNC_DATABASE_URL", &cfg.DatabaseURL)
	str("POCKETSYNC_USER", &cfg.DefaultUser)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("POCKETSYNC_PUSHGATEWAY", &cfg.PushgatewayURL)
	str("POCKETSYNC_BQ_PROJECT", &cfg.BigQueryProject)
	str("POCKETSYNC_BQ_DATASET", &cfg.BigQueryDataset)
	str("POCKETSYNC_ATTACHMENT_BUCKET", &cfg.AttachmentBucket)
	str("POCKETSYNC_OAUTH_ADDR", &cfg.OAuthListenAddr)

	if v, ok := lookup("POCKETSYNC_HTTP_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("FromEnv: POCKETSYNC_HTTP_TIMEOUT: %w", err)
		}
		cfg.HTTPTimeout = d
	}

	return cfg, nil
}
