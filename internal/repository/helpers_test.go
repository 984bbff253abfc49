package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/aryan0dhankhar/tenantauth/internal/domain"
	"github.com/aryan0dhankhar/tenantauth/pkg/database"
)

// testDB opens a migrated SQLite database in a temp dir.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "tenantauth.db") + "?_busy_timeout=5000"
	pool, err := database.NewConnectionPool(context.Background(), &database.Config{
		Driver: database.DriverSQLite,
		DSN:    dsn,
	}, nil)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	if err := Migrate(context.Background(), pool.GetDB(), nil); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return pool.GetDB()
}

func strPtr(s string) *string { return &s }

func newTestTenant(id, name, email, key string) *domain.Tenant {
	return &domain.Tenant{
		TenantID:       id,
		CompanyID:      "company-" + id,
		Name:           name,
		ContactEmail:   email,
		Plan:           domain.PlanA,
		PasswordDigest: "$2a$10$digest",
		APIKey:         strPtr(key),
		CreatedAt:      time.Now().UTC(),
	}
}

func newTestUser(id, tenantID, email string) *domain.User {
	now := time.Now().UTC()
	return &domain.User{
		UserID:         id,
		TenantID:       tenantID,
		Email:          email,
		Username:       "name-" + id,
		PasswordDigest: "$2a$10$digest",
		Role:           domain.RoleUser,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
