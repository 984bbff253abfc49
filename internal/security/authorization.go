package security

import (
	"fmt"
	"log/slog"

	"github.com/aryan0dhankhar/tenantauth/internal/domain"
)

// Permission represents an action permission
type Permission string

const (
	PermReadProfile    Permission = "read_profile"
	PermUpdateProfile  Permission = "update_profile"
	PermChangePassword Permission = "change_password"
	PermListUsers      Permission = "list_users"
)

// RolePermissions maps roles to their permissions
var RolePermissions = map[domain.Role][]Permission{
	domain.RoleAdmin: {
		PermReadProfile,
		PermUpdateProfile,
		PermChangePassword,
		PermListUsers,
	},
	domain.RoleUser: {
		PermReadProfile,
		PermUpdateProfile,
		PermChangePassword,
	},
}

// AuthorizationService handles authorization checks
type AuthorizationService struct {
	logger *slog.Logger
}

// NewAuthorizationService creates a new authorization service
func NewAuthorizationService(logger *slog.Logger) *AuthorizationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthorizationService{
		logger: logger,
	}
}

// HasPermission checks if a role has a specific permission
func (as *AuthorizationService) HasPermission(role domain.Role, permission Permission) bool {
	for _, p := range RolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}

// ValidatePermission returns an error wrapping domain.ErrForbidden when
// role lacks permission
func (as *AuthorizationService) ValidatePermission(role domain.Role, permission Permission) error {
	if !as.HasPermission(role, permission) {
		as.logger.Warn("permission denied",
			slog.String("role", string(role)),
			slog.String("permission", string(permission)),
		)
		return fmt.Errorf("%w: %s role cannot %s", domain.ErrForbidden, role, permission)
	}
	return nil
}

// ValidateTenantAccess checks that a principal of userTenantID may act
// inside requestedTenantID
func (as *AuthorizationService) ValidateTenantAccess(userTenantID, requestedTenantID string) error {
	if userTenantID == "" || userTenantID != requestedTenantID {
		as.logger.Warn("tenant access denied",
			slog.String("user_tenant", userTenantID),
			slog.String("requested_tenant", requestedTenantID),
		)
		return fmt.Errorf("%w: tenant mismatch", domain.ErrForbidden)
	}
	return nil
}
