package provider

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// Service resolves the provider identity used on outbound poll envelopes.
// When the tenant directory has no active identity, a configured fallback
// license is used so polling keeps working for single-provider deployments
// that never seed the directory.
type Service struct {
	repo            Repository
	fallbackLicense string
	logger          zerolog.Logger
}

func NewService(repo Repository, fallbackLicense string, logger zerolog.Logger) *Service {
	return &Service{repo: repo, fallbackLicense: fallbackLicense, logger: logger}
}

// Resolve returns the active directory identity for the current scope, or
// the fallback identity when the directory is empty.
func (s *Service) Resolve(ctx context.Context) (*Identity, error) {
	p, err := s.repo.GetActive(ctx)
	if err == nil {
		return p, nil
	}
	if err != pgx.ErrNoRows {
		// Directory lookup errors other than "not found" are real failures;
		// falling back here would hide a broken tenant schema.
		s.logger.Error().Err(err).Msg("provider directory lookup failed")
		return nil, err
	}
	if s.fallbackLicense == "" {
		return nil, err
	}
	s.logger.Warn().Str("license", s.fallbackLicense).Msg("no active provider identity, using configured fallback")
	return &Identity{License: s.fallbackLicense, Name: "default", Active: true}, nil
}
