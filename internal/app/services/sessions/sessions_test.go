package sessions

import (
	"errors"
	"testing"

	"github.com/virtualgrid/moneyserver/internal/app/domain/money"
)

func TestGridSessions(t *testing.T) {
	r := NewRegistry()
	r.Register("alice@grid", "sess", "secure")

	if err := r.Verify("alice@grid", "sess", "secure"); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := r.Verify("alice@grid", "sess", "wrong"); !errors.Is(err, money.ErrAuthFailure) {
		t.Fatalf("expected ErrAuthFailure, got %v", err)
	}
	if err := r.Verify("bob@grid", "sess", "secure"); !errors.Is(err, money.ErrAuthFailure) {
		t.Fatalf("expected ErrAuthFailure for unknown account, got %v", err)
	}

	// Re-registration replaces the previous session.
	r.Register("alice@grid", "sess2", "secure2")
	if err := r.Verify("alice@grid", "sess", "secure"); !errors.Is(err, money.ErrAuthFailure) {
		t.Fatalf("old session must be invalid, got %v", err)
	}
	if err := r.Verify("alice@grid", "sess2", "secure2"); err != nil {
		t.Fatalf("verify new session: %v", err)
	}

	if got := r.Count(); got != 1 {
		t.Fatalf("count = %d, want 1", got)
	}
	r.Remove("alice@grid")
	if err := r.Verify("alice@grid", "sess2", "secure2"); !errors.Is(err, money.ErrAuthFailure) {
		t.Fatalf("expected ErrAuthFailure after remove, got %v", err)
	}
	if got := r.Count(); got != 0 {
		t.Fatalf("count = %d, want 0", got)
	}
}

func TestWebSessions(t *testing.T) {
	r := NewRegistry()
	token := r.RegisterWeb("alice@grid")
	if token == "" {
		t.Fatal("empty token")
	}
	if err := r.VerifyWeb("alice@grid", token); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := r.VerifyWeb("alice@grid", "bogus"); !errors.Is(err, money.ErrAuthFailure) {
		t.Fatalf("expected ErrAuthFailure, got %v", err)
	}

	second := r.RegisterWeb("alice@grid")
	if second == token {
		t.Fatal("token not rotated on re-login")
	}
	if err := r.VerifyWeb("alice@grid", token); !errors.Is(err, money.ErrAuthFailure) {
		t.Fatalf("old token must be invalid, got %v", err)
	}

	r.RemoveWeb("alice@grid")
	if err := r.VerifyWeb("alice@grid", second); !errors.Is(err, money.ErrAuthFailure) {
		t.Fatalf("expected ErrAuthFailure after remove, got %v", err)
	}
}
