package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewWithWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf)

	log.Info().Msg("sync started")

	if !strings.Contains(buf.String(), "sync started") {
		t.Errorf("Expected output to contain 'sync started', got: %s", buf.String())
	}
}

func TestFromContext(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := WithContext(context.Background(), NewWithWriter(buf))

	log := FromContext(ctx)
	log.Info().Msg("test")

	if buf.Len() == 0 {
		t.Error("Expected log output from retrieved logger")
	}
}

func TestFromContext_DefaultLogger(t *testing.T) {
	log := FromContext(context.Background())
	if log.GetLevel() == zerolog.Disabled {
		t.Error("Expected default logger to be enabled")
	}
}

func TestWithLevel(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{" error ", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			log := WithLevel(NewWithWriter(&bytes.Buffer{}), tt.level)
			if got := log.GetLevel(); got != tt.want {
				t.Errorf("WithLevel(%q) = %v, want %v", tt.level, got, tt.want)
			}
		})
	}
}

func TestForProvider(t *testing.T) {
	buf := &bytes.Buffer{}
	log := ForProvider(NewWithWriter(buf), "default", "FreeAgent")

	log.Warn().Msg("Invalid access token, attempting to renew")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decoding log line: %v", err)
	}
	if entry["user"] != "default" || entry["provider"] != "FreeAgent" {
		t.Errorf("expected user and provider fields, got: %v", entry)
	}
}
