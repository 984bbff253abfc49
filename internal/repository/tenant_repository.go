package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/aryan0dhankhar/tenantauth/internal/domain"
)

// SQLTenantRepository implements domain.TenantRepository on PostgreSQL or SQLite
type SQLTenantRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLTenantRepository creates a new tenant repository
func NewSQLTenantRepository(db *sql.DB, logger *slog.Logger) *SQLTenantRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &SQLTenantRepository{
		db:     db,
		logger: logger,
	}
}

const tenantColumns = `tenant_id, company_id, name, contact_email, plan, password_digest, api_key, created_at`

// Create inserts a tenant. Any unique-key clash is reported as ErrDuplicateTenant.
func (r *SQLTenantRepository) Create(ctx context.Context, tenant *domain.Tenant) error {
	query := `
		INSERT INTO tenants (` + tenantColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		tenant.TenantID,
		tenant.CompanyID,
		tenant.Name,
		tenant.ContactEmail,
		string(tenant.Plan),
		tenant.PasswordDigest,
		nullString(tenant.APIKey),
		tenant.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateTenant
		}
		r.logger.Error("failed to create tenant",
			slog.String("tenant_id", tenant.TenantID),
			slog.String("error", err.Error()),
		)
		return storeError("create tenant", err)
	}

	return nil
}

// GetByTenantID retrieves a tenant by its tenant identifier
func (r *SQLTenantRepository) GetByTenantID(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	return r.getOne(ctx, "tenant_id", tenantID)
}

// GetByEmail retrieves a tenant by contact email
func (r *SQLTenantRepository) GetByEmail(ctx context.Context, email string) (*domain.Tenant, error) {
	return r.getOne(ctx, "contact_email", email)
}

// GetByCompanyID retrieves a tenant by company ID
func (r *SQLTenantRepository) GetByCompanyID(ctx context.Context, companyID string) (*domain.Tenant, error) {
	return r.getOne(ctx, "company_id", companyID)
}

// GetByAPIKey retrieves the tenant currently holding apiKey
func (r *SQLTenantRepository) GetByAPIKey(ctx context.Context, apiKey string) (*domain.Tenant, error) {
	return r.getOne(ctx, "api_key", apiKey)
}

// column is always one of the constants above, never caller input.
func (r *SQLTenantRepository) getOne(ctx context.Context, column, value string) (*domain.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE ` + column + ` = $1`

	var (
		tenant domain.Tenant
		plan   string
		apiKey sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, value).Scan(
		&tenant.TenantID,
		&tenant.CompanyID,
		&tenant.Name,
		&tenant.ContactEmail,
		&plan,
		&tenant.PasswordDigest,
		&apiKey,
		&tenant.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTenantNotFound
		}
		r.logger.Error("failed to get tenant",
			slog.String("by", column),
			slog.String("error", err.Error()),
		)
		return nil, storeError("get tenant", err)
	}

	tenant.Plan = domain.Plan(plan)
	tenant.APIKey = stringPtr(apiKey)
	return &tenant, nil
}

// ExistsByNameOrEmail reports whether a tenant already uses name or email
func (r *SQLTenantRepository) ExistsByNameOrEmail(ctx context.Context, name, email string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tenants WHERE name = $1 OR contact_email = $2`,
		name, email,
	).Scan(&count)
	if err != nil {
		return false, storeError("check tenant", err)
	}
	return count > 0, nil
}

// SetAPIKey replaces the tenant's API key; nil revokes it
func (r *SQLTenantRepository) SetAPIKey(ctx context.Context, email string, apiKey *string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE tenants SET api_key = $1 WHERE contact_email = $2`,
		nullString(apiKey), email,
	)
	if err != nil {
		return storeError("set api key", err)
	}
	return checkAffected(result, "set api key", domain.ErrTenantNotFound)
}

// SetPlan changes the tenant's plan
func (r *SQLTenantRepository) SetPlan(ctx context.Context, email string, plan domain.Plan) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE tenants SET plan = $1 WHERE contact_email = $2`,
		string(plan), email,
	)
	if err != nil {
		return storeError("set plan", err)
	}
	return checkAffected(result, "set plan", domain.ErrTenantNotFound)
}

// Delete hard-deletes a tenant. Its users are left untouched.
func (r *SQLTenantRepository) Delete(ctx context.Context, email string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tenants WHERE contact_email = $1`, email)
	if err != nil {
		return storeError("delete tenant", err)
	}
	return checkAffected(result, "delete tenant", domain.ErrTenantNotFound)
}
