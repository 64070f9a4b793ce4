package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	base := errors.New("boom")

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindInternal},
		{"plain", base, KindInternal},
		{"config", Config("missing %s", "token"), KindConfig},
		{"wrapped transport", fmt.Errorf("fetch: %w", Wrap(KindTransport, base, "GET x")), KindTransport},
		{"duplicate", DuplicateName("a"), KindDuplicateName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIs_FindsInnerKind(t *testing.T) {
	inner := Wrap(KindTransport, errors.New("401"), "GET bank_transactions")
	outer := Wrap(KindTransientAuth, inner, "credential rejected after refresh")

	if !Is(outer, KindTransientAuth) {
		t.Error("expected outer kind to match")
	}
	if !Is(outer, KindTransport) {
		t.Error("expected inner kind to match")
	}
	if Is(outer, KindConfig) {
		t.Error("did not expect config kind")
	}
}

func TestWrap_NilIsNil(t *testing.T) {
	if err := Wrap(KindTransport, nil, "x"); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestError_Message(t *testing.T) {
	err := Wrap(KindTransport, errors.New("connection reset"), "GET %s", "accounts")
	if got, want := err.Error(), "GET accounts: connection reset"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, errors.Unwrap(err)) {
		t.Error("expected Unwrap to expose the cause")
	}
}

func TestIsUserVisible(t *testing.T) {
	if !IsUserVisible(Param("bad")) {
		t.Error("param errors are user-visible")
	}
	if IsUserVisible(Wrap(KindTransport, errors.New("x"), "y")) {
		t.Error("transport errors are not user-visible")
	}
}
