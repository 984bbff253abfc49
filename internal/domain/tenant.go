package domain

import (
	"context"
	"time"
)

// Plan is the commercial tier of a tenant. It does not affect authentication.
type Plan string

const (
	PlanA Plan = "A"
	PlanB Plan = "B"
	PlanC Plan = "C"
)

// Valid reports whether p is one of the known plans.
func (p Plan) Valid() bool {
	switch p {
	case PlanA, PlanB, PlanC:
		return true
	}
	return false
}

// Tenant represents a company and the isolation boundary of its users
type Tenant struct {
	TenantID       string    `json:"tenantId"`
	CompanyID      string    `json:"companyId"`
	Name           string    `json:"companyName"`
	ContactEmail   string    `json:"email"`
	Plan           Plan      `json:"plan"`
	PasswordDigest string    `json:"-"`
	APIKey         *string   `json:"-"` // nil once revoked
	CreatedAt      time.Time `json:"createdAt"`
}

// TenantContext is what a resolved API key grants a request.
type TenantContext struct {
	TenantID  string
	CompanyID string
}

// TenantSelector picks a tenant by contact email or company ID.
// Exactly one field is expected to be set.
type TenantSelector struct {
	Email     string
	CompanyID string
}

// TenantRepository defines data access for tenants
type TenantRepository interface {
	Create(ctx context.Context, tenant *Tenant) error
	GetByTenantID(ctx context.Context, tenantID string) (*Tenant, error)
	GetByEmail(ctx context.Context, email string) (*Tenant, error)
	GetByCompanyID(ctx context.Context, companyID string) (*Tenant, error)
	GetByAPIKey(ctx context.Context, apiKey string) (*Tenant, error)
	ExistsByNameOrEmail(ctx context.Context, name, email string) (bool, error)
	// SetAPIKey replaces the key; a nil key revokes it.
	SetAPIKey(ctx context.Context, email string, apiKey *string) error
	SetPlan(ctx context.Context, email string, plan Plan) error
	Delete(ctx context.Context, email string) error
}
