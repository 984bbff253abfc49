package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/aryan0dhankhar/tenantauth/internal/domain"
	"github.com/aryan0dhankhar/tenantauth/internal/observability/metrics"
)

// APIKeyResolver maps a presented API key to the tenant it belongs to.
// Every lookup goes to the record store, so rotation and revocation apply
// to the next request.
type APIKeyResolver struct {
	repo   domain.TenantRepository
	logger *slog.Logger
}

func NewAPIKeyResolver(repo domain.TenantRepository, logger *slog.Logger) *APIKeyResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIKeyResolver{repo: repo, logger: logger}
}

// Resolve returns the tenant context for key. Empty, revoked and unknown
// keys all fail with domain.ErrInvalidAPIKey.
func (r *APIKeyResolver) Resolve(ctx context.Context, key string) (domain.TenantContext, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		metrics.ObserveAPIKeyResolution(metrics.ResultRejected)
		return domain.TenantContext{}, domain.ErrInvalidAPIKey
	}

	tenant, err := r.repo.GetByAPIKey(ctx, key)
	if errors.Is(err, domain.ErrTenantNotFound) {
		metrics.ObserveAPIKeyResolution(metrics.ResultRejected)
		return domain.TenantContext{}, domain.ErrInvalidAPIKey
	}
	if err != nil {
		metrics.ObserveAPIKeyResolution(metrics.ResultError)
		r.logger.Error("api key lookup failed", slog.String("error", err.Error()))
		return domain.TenantContext{}, err
	}

	metrics.ObserveAPIKeyResolution(metrics.ResultSuccess)
	return domain.TenantContext{TenantID: tenant.TenantID, CompanyID: tenant.CompanyID}, nil
}
