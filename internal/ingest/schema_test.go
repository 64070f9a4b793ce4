package ingest

import (
	"testing"

	"github.com/dvloznov/pocketsync/internal/apperr"
)

func TestSchema_Validate(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		valid   bool
	}{
		{"number amount", `{"id":"1","payee":"A","amount":1.5,"date":"2020-01-01"}`, true},
		{"string amount", `{"id":"1","payee":"A","amount":"-1.50","date":"2020-01-01"}`, true},
		{"missing payee", `{"id":"1","amount":1,"date":"2020-01-01"}`, false},
		{"wrong type", `{"id":1,"payee":"A","amount":1,"date":"2020-01-01"}`, false},
		{"not json", `{`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := testSchema.Validate([]byte(tt.payload))
			if (err == nil) != tt.valid {
				t.Fatalf("Validate() error = %v, want valid=%v", err, tt.valid)
			}
			if err != nil && !apperr.Is(err, apperr.KindValidation) {
				t.Errorf("expected validation kind, got %v", err)
			}
		})
	}
}

func TestCompileSchema_Invalid(t *testing.T) {
	if _, err := CompileSchema("broken", []byte(`{"type": 12}`)); err == nil {
		t.Error("expected compile error")
	}
}
