package domain

import (
	"context"
	"time"
)

// Role is the coarse authorization flag carried by a user
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User represents an end user scoped to a tenant
type User struct {
	UserID               string    `json:"userId"`
	TenantID             string    `json:"tenantId"`
	Email                string    `json:"email"`
	Username             string    `json:"username"`
	PasswordDigest       string    `json:"-"`
	Role                 Role      `json:"role"`
	ActiveRefreshTokenID *string   `json:"-"` // nil means no active session
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// UserRepository defines data access for users.
// Lookups by email are always scoped to a tenant.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, userID string) (*User, error)
	GetByTenantEmail(ctx context.Context, tenantID, email string) (*User, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*User, error)
	UpdateUsername(ctx context.Context, userID, username string) error
	SetRole(ctx context.Context, tenantID, email string, role Role) error

	// UpdatePassword stores a new digest and ends the active session
	// in the same write.
	UpdatePassword(ctx context.Context, userID, digest string) error

	// SetRefreshTokenID unconditionally starts a new session lineage.
	SetRefreshTokenID(ctx context.Context, userID, tokenID string) error

	// RotateRefreshTokenID replaces oldID with newID only if oldID is still
	// the active marker. It returns ErrSessionRevoked when it is not.
	RotateRefreshTokenID(ctx context.Context, userID, oldID, newID string) error

	// ClearRefreshTokenID ends the active session, if any.
	ClearRefreshTokenID(ctx context.Context, userID string) error
}
