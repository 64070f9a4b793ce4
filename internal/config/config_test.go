package config

import (
	"testing"
	"time"
)

func TestFromLookup(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		check   func(t *testing.T, cfg Config)
		wantErr bool
	}{
		{
			name: "defaults",
			env:  map[string]string{},
			check: func(t *testing.T, cfg Config) {
				if cfg != Default() {
					t.Errorf("got %+v, want defaults", cfg)
				}
			},
		},
		{
			name: "overrides",
			env: map[string]string{
				"POCKETSYNC_DATABASE_URL": "postgres://localhost/pocketsync",
				"POCKETSYNC_USER":         "alex",
				"POCKETSYNC_HTTP_TIMEOUT": "5s",
				"POCKETSYNC_BQ_DATASET":   "",
			},
			check: func(t *testing.T, cfg Config) {
				if cfg.DatabaseURL != "postgres://localhost/pocketsync" {
					t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
				}
				if cfg.DefaultUser != "alex" {
					t.Errorf("DefaultUser = %q", cfg.DefaultUser)
				}
				if cfg.HTTPTimeout != 5*time.Second {
					t.Errorf("HTTPTimeout = %v", cfg.HTTPTimeout)
				}
				if cfg.BigQueryDataset != "finance" {
					t.Errorf("empty value should keep default, got %q", cfg.BigQueryDataset)
				}
			},
		},
		{
			name:    "bad timeout",
			env:     map[string]string{"POCKETSYNC_HTTP_TIMEOUT": "soon"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := fromLookup(func(k string) (string, bool) {
				v, ok := tt.env[k]
				return v, ok
			})
			if (err != nil) != tt.wantErr {
				t.Fatalf("fromLookup() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}
