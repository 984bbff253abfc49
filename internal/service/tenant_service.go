package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aryan0dhankhar/tenantauth/internal/domain"
	"github.com/aryan0dhankhar/tenantauth/internal/observability/metrics"
	"github.com/aryan0dhankhar/tenantauth/internal/security/audit"
	"github.com/aryan0dhankhar/tenantauth/internal/security/auth"
)

// RegisterTenantInput is the payload of a company registration
type RegisterTenantInput struct {
	Name     string      `json:"companyName" validate:"required,max=128"`
	Email    string      `json:"email" validate:"required,email,max=254"`
	Password string      `json:"password" validate:"required,pwbytes"`
	Plan     domain.Plan `json:"plan" validate:"omitempty,oneof=A B C"`
}

// CompanyCredentials authenticate company-level operations
type CompanyCredentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// TenantProfile is the public projection of a tenant
type TenantProfile struct {
	TenantID    string      `json:"tenantId"`
	CompanyID   string      `json:"companyId"`
	CompanyName string      `json:"companyName"`
	Email       string      `json:"email"`
	Plan        domain.Plan `json:"plan"`
	HasAPIKey   bool        `json:"hasApiKey"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// APIKeyView reveals the current key; APIKey is nil when revoked
type APIKeyView struct {
	CompanyID string  `json:"companyId"`
	APIKey    *string `json:"apiKey"`
}

// TenantService owns company records and their API keys
type TenantService struct {
	repo   domain.TenantRepository
	hasher auth.PasswordHasher
	audit  *audit.Logger
	logger *slog.Logger
	now    func() time.Time
}

func NewTenantService(repo domain.TenantRepository, hasher auth.PasswordHasher, auditLog *audit.Logger, logger *slog.Logger) *TenantService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TenantService{
		repo:   repo,
		hasher: hasher,
		audit:  auditLog,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Register creates a tenant with a fresh API key. Name and email must not
// belong to any existing tenant.
func (s *TenantService) Register(ctx context.Context, in RegisterTenantInput) (*domain.Tenant, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if in.Plan == "" {
		in.Plan = domain.PlanA
	}

	exists, err := s.repo.ExistsByNameOrEmail(ctx, in.Name, in.Email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, domain.ErrDuplicateTenant
	}

	digest, err := hashPassword(s.hasher, in.Password)
	if err != nil {
		return nil, err
	}
	apiKey, err := auth.NewAPIKey()
	if err != nil {
		return nil, err
	}
	tenantID, err := auth.NewTenantID()
	if err != nil {
		return nil, err
	}

	tenant := &domain.Tenant{
		TenantID:       tenantID,
		CompanyID:      auth.NewCompanyID(),
		Name:           in.Name,
		ContactEmail:   in.Email,
		Plan:           in.Plan,
		PasswordDigest: digest,
		APIKey:         &apiKey,
		CreatedAt:      s.now(),
	}
	if err := s.repo.Create(ctx, tenant); err != nil {
		// A concurrent registration can pass the pre-check; the unique
		// constraints map to ErrDuplicateTenant in that case.
		return nil, err
	}

	metrics.ObserveTenantEvent("register")
	s.audit.LogTenant(ctx, tenant.TenantID, audit.ActionTenantRegister, audit.StatusSuccess, "plan="+string(tenant.Plan))
	s.logger.Info("tenant registered",
		slog.String("tenant_id", tenant.TenantID),
		slog.String("company_id", tenant.CompanyID),
	)
	return tenant, nil
}

// Authenticate checks a company's email and password
func (s *TenantService) Authenticate(ctx context.Context, email, password string) (*domain.Tenant, error) {
	tenant, err := s.repo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, err
	}
	ok, err := verifyPassword(s.hasher, password, tenant.PasswordDigest)
	if err != nil {
		s.logger.Error("tenant digest unreadable",
			slog.String("tenant_id", tenant.TenantID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	if !ok {
		s.audit.LogTenant(ctx, tenant.TenantID, audit.ActionTenantLogin, audit.StatusFailure, "bad password")
		return nil, domain.ErrInvalidCredentials
	}
	s.audit.LogTenant(ctx, tenant.TenantID, audit.ActionTenantLogin, audit.StatusSuccess, "")
	return tenant, nil
}

// Authorize validates creds and authenticates them. Company operations
// that mutate the tenant or reveal its key go through here first.
func (s *TenantService) Authorize(ctx context.Context, creds CompanyCredentials) (*domain.Tenant, error) {
	creds.Email = normalizeEmail(creds.Email)
	if err := validateInput(creds); err != nil {
		return nil, err
	}
	return s.Authenticate(ctx, creds.Email, creds.Password)
}

// RotateAPIKey replaces the tenant's key. The old key stops resolving at once.
func (s *TenantService) RotateAPIKey(ctx context.Context, email string) (string, error) {
	apiKey, err := auth.NewAPIKey()
	if err != nil {
		return "", err
	}
	email = normalizeEmail(email)
	if err := s.repo.SetAPIKey(ctx, email, &apiKey); err != nil {
		return "", err
	}
	metrics.ObserveTenantEvent("rotate_key")
	s.audit.LogAction(ctx, "", "", audit.ActionKeyRotate, "tenant", email, audit.StatusSuccess, "")
	return apiKey, nil
}

// RevokeAPIKey clears the key; user operations fail until a new key is issued.
func (s *TenantService) RevokeAPIKey(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if err := s.repo.SetAPIKey(ctx, email, nil); err != nil {
		return err
	}
	metrics.ObserveTenantEvent("revoke_key")
	s.audit.LogAction(ctx, "", "", audit.ActionKeyRevoke, "tenant", email, audit.StatusSuccess, "")
	return nil
}

// ChangePlan moves the tenant to another plan
func (s *TenantService) ChangePlan(ctx context.Context, email string, plan domain.Plan) error {
	if !plan.Valid() {
		return fmt.Errorf("%w: plan must be one of [A B C]", domain.ErrValidation)
	}
	email = normalizeEmail(email)
	if err := s.repo.SetPlan(ctx, email, plan); err != nil {
		return err
	}
	s.audit.LogAction(ctx, "", "", audit.ActionPlanChange, "tenant", email, audit.StatusSuccess, "plan="+string(plan))
	return nil
}

// Delete removes the tenant. Its users are left in place but can no longer
// authenticate, since every user flow re-checks the tenant.
func (s *TenantService) Delete(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if err := s.repo.Delete(ctx, email); err != nil {
		return err
	}
	metrics.ObserveTenantEvent("delete")
	s.audit.LogAction(ctx, "", "", audit.ActionTenantDelete, "tenant", email, audit.StatusSuccess, "")
	s.logger.Info("tenant deleted")
	return nil
}

// GetProfile returns the public projection of the selected tenant
func (s *TenantService) GetProfile(ctx context.Context, sel domain.TenantSelector) (*TenantProfile, error) {
	tenant, err := s.lookup(ctx, sel)
	if err != nil {
		return nil, err
	}
	return &TenantProfile{
		TenantID:    tenant.TenantID,
		CompanyID:   tenant.CompanyID,
		CompanyName: tenant.Name,
		Email:       tenant.ContactEmail,
		Plan:        tenant.Plan,
		HasAPIKey:   tenant.APIKey != nil,
		CreatedAt:   tenant.CreatedAt,
	}, nil
}

// GetAPIKey returns the selected tenant's current key
func (s *TenantService) GetAPIKey(ctx context.Context, sel domain.TenantSelector) (*APIKeyView, error) {
	tenant, err := s.lookup(ctx, sel)
	if err != nil {
		return nil, err
	}
	return &APIKeyView{CompanyID: tenant.CompanyID, APIKey: tenant.APIKey}, nil
}

// Exists reports whether tenantID still names a tenant
func (s *TenantService) Exists(ctx context.Context, tenantID string) (bool, error) {
	_, err := s.repo.GetByTenantID(ctx, tenantID)
	if errors.Is(err, domain.ErrTenantNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *TenantService) lookup(ctx context.Context, sel domain.TenantSelector) (*domain.Tenant, error) {
	switch {
	case sel.Email != "":
		return s.repo.GetByEmail(ctx, normalizeEmail(sel.Email))
	case sel.CompanyID != "":
		return s.repo.GetByCompanyID(ctx, strings.TrimSpace(sel.CompanyID))
	default:
		return nil, fmt.Errorf("%w: email or companyId is required", domain.ErrValidation)
	}
}
