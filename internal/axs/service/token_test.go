package service_test

import (
	"errors"
	"testing"
	"time"

	"github.com/axs360/access-engine/internal/axs/service"
	"github.com/axs360/access-engine/internal/axs/types"
)

func TestToken_IssueResolve(t *testing.T) {
	clk := newTestClock()
	issuer := service.NewTokenIssuer("s3cret", 5*time.Minute).WithClock(clk.Now)
	p := types.Pass{ID: "pass-1", OwnerID: "user-1", ValidFrom: t0.Add(-time.Hour), Status: types.PassStatusActive}

	tok, err := issuer.Issue(p)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !tok.ExpiresAt.Equal(t0.Add(5*time.Minute)) || tok.PassID != "pass-1" {
		t.Errorf("unexpected token: %+v", tok)
	}

	id, err := issuer.Resolve(tok.Token)
	if err != nil || id != "pass-1" {
		t.Fatalf("Resolve = %q, %v", id, err)
	}

	clk.Advance(6 * time.Minute)
	if _, err := issuer.Resolve(tok.Token); !errors.Is(err, service.ErrInvalidToken) {
		t.Errorf("expired token: expected ErrInvalidToken, got %v", err)
	}
}

func TestToken_ExpiryCappedByPass(t *testing.T) {
	clk := newTestClock()
	issuer := service.NewTokenIssuer("s3cret", time.Hour).WithClock(clk.Now)
	until := t0.Add(10 * time.Minute)
	p := types.Pass{ID: "pass-1", ValidFrom: t0.Add(-time.Hour), ValidUntil: &until, Status: types.PassStatusActive}

	tok, err := issuer.Issue(p)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !tok.ExpiresAt.Equal(until) {
		t.Errorf("expires at %v, want %v", tok.ExpiresAt, until)
	}
}

func TestToken_Rejections(t *testing.T) {
	clk := newTestClock()
	issuer := service.NewTokenIssuer("s3cret", time.Minute).WithClock(clk.Now)
	other := service.NewTokenIssuer("different", time.Minute).WithClock(clk.Now)
	p := types.Pass{ID: "pass-1", ValidFrom: t0.Add(-time.Hour), Status: types.PassStatusActive}

	foreign, err := other.Issue(p)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := issuer.Resolve(foreign.Token); !errors.Is(err, service.ErrInvalidToken) {
		t.Errorf("wrong secret: expected ErrInvalidToken, got %v", err)
	}
	if _, err := issuer.Resolve("garbage"); !errors.Is(err, service.ErrInvalidToken) {
		t.Errorf("garbage: expected ErrInvalidToken, got %v", err)
	}

	p.Status = types.PassStatusRevoked
	if _, err := issuer.Issue(p); !errors.Is(err, service.ErrPassInvalid) {
		t.Errorf("revoked pass: expected ErrPassInvalid, got %v", err)
	}
}
