package company

import (
	"context"
	"log/slog"

	"github.com/opale-crm/opale-crm/internal/platform/cache"
)

const cacheKey = "company:profile"

// Service resolves the company profile with a cache in front and a default
// substitution behind. Resolution never fails: lookup errors and missing rows
// both yield the injected defaults, with incomplete stored rows backfilled
// field by field from the same defaults.
type Service struct {
	repo     Repository
	cache    *cache.JSONCache
	defaults Profile
	logger   *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo Repository, c *cache.JSONCache, defaults Profile, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: c, defaults: defaults, logger: logger}
}

// Resolve returns the effective profile for document generation.
func (s *Service) Resolve(ctx context.Context) Profile {
	var cached Profile
	hit, err := s.cache.Get(ctx, cacheKey, &cached)
	if err != nil {
		s.logger.Warn("company profile cache read", slog.Any("error", err))
	}
	if hit {
		return s.withDefaults(cached)
	}

	stored, err := s.repo.Get(ctx)
	if err != nil {
		s.logger.Warn("company profile lookup, using defaults", slog.Any("error", err))
		return s.defaults
	}
	if stored == nil {
		return s.defaults
	}

	effective := s.withDefaults(*stored)
	if err := s.cache.Set(ctx, cacheKey, effective); err != nil {
		s.logger.Warn("company profile cache write", slog.Any("error", err))
	}
	return effective
}

func (s *Service) withDefaults(p Profile) Profile {
	if p.LegalName == "" {
		p.LegalName = s.defaults.LegalName
	}
	if p.ValidityDays <= 0 {
		p.ValidityDays = s.defaults.ValidityDays
	}
	if p.VATRate <= 0 {
		p.VATRate = s.defaults.VATRate
	}
	if p.PaymentTerms == "" {
		p.PaymentTerms = s.defaults.PaymentTerms
	}
	return p
}
