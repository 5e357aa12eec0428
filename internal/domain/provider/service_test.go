package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

type mockRepo struct {
	active *Identity
	err    error
}

func (m *mockRepo) Create(_ context.Context, p *Identity) error { return nil }

func (m *mockRepo) GetActive(_ context.Context) (*Identity, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.active, nil
}

func (m *mockRepo) GetByLicense(_ context.Context, license string) (*Identity, error) {
	return m.active, m.err
}

func TestResolve_DirectoryHit(t *testing.T) {
	svc := NewService(&mockRepo{active: &Identity{License: "PR-100", Active: true}}, "FALLBACK", zerolog.Nop())
	p, err := svc.Resolve(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.License != "PR-100" {
		t.Errorf("expected directory identity, got %q", p.License)
	}
}

func TestResolve_FallbackWhenEmpty(t *testing.T) {
	svc := NewService(&mockRepo{err: pgx.ErrNoRows}, "FALLBACK", zerolog.Nop())
	p, err := svc.Resolve(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.License != "FALLBACK" {
		t.Errorf("expected fallback identity, got %q", p.License)
	}
}

func TestResolve_EmptyAndNoFallback(t *testing.T) {
	svc := NewService(&mockRepo{err: pgx.ErrNoRows}, "", zerolog.Nop())
	if _, err := svc.Resolve(context.Background()); err == nil {
		t.Error("expected error when directory empty and no fallback configured")
	}
}

func TestResolve_LookupFailureNotMasked(t *testing.T) {
	boom := errors.New("connection reset")
	svc := NewService(&mockRepo{err: boom}, "FALLBACK", zerolog.Nop())
	if _, err := svc.Resolve(context.Background()); !errors.Is(err, boom) {
		t.Errorf("expected lookup error to propagate, got %v", err)
	}
}
