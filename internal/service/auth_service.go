package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aryan0dhankhar/tenantauth/internal/domain"
	"github.com/aryan0dhankhar/tenantauth/internal/observability/metrics"
	"github.com/aryan0dhankhar/tenantauth/internal/observability/tracing"
	"github.com/aryan0dhankhar/tenantauth/internal/security"
	"github.com/aryan0dhankhar/tenantauth/internal/security/audit"
	"github.com/aryan0dhankhar/tenantauth/internal/security/auth"
	"github.com/aryan0dhankhar/tenantauth/internal/security/lockout"
)

// SigninInput is the payload of a user signin
type SigninInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// ChangePasswordInput is the payload of a password change
type ChangePasswordInput struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,pwbytes"`
}

// SetRoleInput changes a user's role. The company credentials must belong
// to the tenant the API key resolves to.
type SetRoleInput struct {
	CompanyEmail    string      `json:"email" validate:"required,email"`
	CompanyPassword string      `json:"password" validate:"required"`
	UserEmail       string      `json:"userEmail" validate:"required,email"`
	Role            domain.Role `json:"role" validate:"required,oneof=user admin"`
}

// AuthService composes tenant resolution, user records and sessions into
// the user-facing flows. Flows keyed by API key resolve the tenant first;
// flows keyed by access token re-check that the token's tenant and user
// still exist.
type AuthService struct {
	resolver *APIKeyResolver
	tenants  *TenantService
	users    *UserService
	sessions *SessionService
	lockout  lockout.Guard
	authz    *security.AuthorizationService
	audit    *audit.Logger
	logger   *slog.Logger
}

// AuthServiceDeps groups the collaborators of AuthService
type AuthServiceDeps struct {
	Resolver *APIKeyResolver
	Tenants  *TenantService
	Users    *UserService
	Sessions *SessionService
	Lockout  lockout.Guard
	Authz    *security.AuthorizationService
	Audit    *audit.Logger
}

func NewAuthService(deps AuthServiceDeps, logger *slog.Logger) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	guard := deps.Lockout
	if guard == nil {
		guard = lockout.Disabled{}
	}
	authz := deps.Authz
	if authz == nil {
		authz = security.NewAuthorizationService(logger)
	}
	return &AuthService{
		resolver: deps.Resolver,
		tenants:  deps.Tenants,
		users:    deps.Users,
		sessions: deps.Sessions,
		lockout:  guard,
		authz:    authz,
		audit:    deps.Audit,
		logger:   logger,
	}
}

// Signup creates a user in the tenant that apiKey resolves to
func (s *AuthService) Signup(ctx context.Context, apiKey string, in CreateUserInput) (_ *domain.User, err error) {
	ctx, span := tracing.Start(ctx, "auth.signup")
	defer func() { tracing.End(span, err) }()

	in.Email = normalizeEmail(in.Email)
	if err := validateInput(in); err != nil {
		return nil, err
	}
	tc, err := s.resolver.Resolve(ctx, apiKey)
	if err != nil {
		metrics.ObserveSignup(metrics.ResultRejected)
		return nil, err
	}

	user, err := s.users.Create(ctx, tc.TenantID, in)
	if err != nil {
		metrics.ObserveSignup(metrics.ResultFailure)
		s.audit.LogUser(ctx, tc.TenantID, "", audit.ActionSignup, audit.StatusFailure, errorReason(err))
		return nil, err
	}

	metrics.ObserveSignup(metrics.ResultSuccess)
	s.audit.LogUser(ctx, tc.TenantID, user.UserID, audit.ActionSignup, audit.StatusSuccess, "")
	return user, nil
}

// Signin checks the user's password inside the resolved tenant and starts
// a new session. Unknown emails and wrong passwords are indistinguishable.
func (s *AuthService) Signin(ctx context.Context, apiKey string, in SigninInput) (_ *TokenPair, err error) {
	ctx, span := tracing.Start(ctx, "auth.signin")
	defer func() { tracing.End(span, err) }()

	in.Email = normalizeEmail(in.Email)
	if err := validateInput(in); err != nil {
		return nil, err
	}
	tc, err := s.resolver.Resolve(ctx, apiKey)
	if err != nil {
		metrics.ObserveSignin(metrics.ResultRejected)
		return nil, err
	}

	key := lockout.Key(tc.TenantID, in.Email)
	if err := s.lockout.Check(ctx, key); err != nil {
		metrics.ObserveSignin(metrics.ResultLocked)
		s.audit.LogSession(ctx, tc.TenantID, "", audit.ActionSignin, audit.StatusDenied, "locked out")
		return nil, err
	}

	user, err := s.users.Authenticate(ctx, tc.TenantID, in.Email, in.Password)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			s.lockout.RecordFailure(ctx, key)
			metrics.ObserveSignin(metrics.ResultFailure)
			s.audit.LogSession(ctx, tc.TenantID, "", audit.ActionSignin, audit.StatusFailure, "invalid credentials")
		} else {
			metrics.ObserveSignin(metrics.ResultError)
		}
		return nil, err
	}

	pair, err := s.sessions.Login(ctx, user)
	if err != nil {
		metrics.ObserveSignin(metrics.ResultError)
		return nil, err
	}

	s.lockout.Reset(ctx, key)
	metrics.ObserveSignin(metrics.ResultSuccess)
	s.audit.LogSession(ctx, tc.TenantID, user.UserID, audit.ActionSignin, audit.StatusSuccess, "")
	return pair, nil
}

// Refresh rotates the session named by refreshToken. A token that was
// already rotated, or that belongs to another tenant, fails with
// domain.ErrSessionRevoked.
func (s *AuthService) Refresh(ctx context.Context, apiKey, refreshToken string) (_ *TokenPair, err error) {
	ctx, span := tracing.Start(ctx, "auth.refresh")
	defer func() { tracing.End(span, err) }()

	tc, err := s.resolver.Resolve(ctx, apiKey)
	if err != nil {
		metrics.ObserveRefresh(metrics.ResultRejected)
		return nil, err
	}

	pair, user, err := s.sessions.Refresh(ctx, tc.TenantID, refreshToken)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrSessionRevoked):
		metrics.ObserveRefresh(metrics.ResultRejected)
		s.audit.LogSession(ctx, tc.TenantID, "", audit.ActionReuseDetected, audit.StatusDenied, "refresh token not current")
		return nil, err
	case errors.Is(err, domain.ErrTokenExpired), errors.Is(err, domain.ErrTokenInvalid):
		metrics.ObserveRefresh(metrics.ResultFailure)
		return nil, err
	default:
		metrics.ObserveRefresh(metrics.ResultError)
		return nil, err
	}

	metrics.ObserveRefresh(metrics.ResultSuccess)
	s.audit.LogSession(ctx, tc.TenantID, user.UserID, audit.ActionRefresh, audit.StatusSuccess, "")
	return pair, nil
}

// Logout ends the session named by refreshToken, if there is one. It only
// fails on an invalid API key or a store failure.
func (s *AuthService) Logout(ctx context.Context, apiKey, refreshToken string) (err error) {
	ctx, span := tracing.Start(ctx, "auth.logout")
	defer func() { tracing.End(span, err) }()

	tc, err := s.resolver.Resolve(ctx, apiKey)
	if err != nil {
		return err
	}
	user, err := s.sessions.Logout(ctx, tc.TenantID, refreshToken)
	if err != nil {
		return err
	}
	if user != nil {
		s.audit.LogSession(ctx, tc.TenantID, user.UserID, audit.ActionLogout, audit.StatusSuccess, "")
	}
	return nil
}

// Authenticate verifies an access token. Handlers pass the returned claims
// to the claim-based flows below.
func (s *AuthService) Authenticate(accessToken string) (*auth.AccessClaims, error) {
	return s.sessions.VerifyAccess(accessToken)
}

// CurrentUser returns the user the access token was issued to
func (s *AuthService) CurrentUser(ctx context.Context, claims *auth.AccessClaims) (_ *domain.User, err error) {
	ctx, span := tracing.Start(ctx, "auth.current_user")
	defer func() { tracing.End(span, err) }()

	return s.principal(ctx, claims, security.PermReadProfile)
}

// UpdateProfile changes the caller's own profile
func (s *AuthService) UpdateProfile(ctx context.Context, claims *auth.AccessClaims, in UpdateProfileInput) (_ *domain.User, err error) {
	ctx, span := tracing.Start(ctx, "auth.update_profile")
	defer func() { tracing.End(span, err) }()

	if err := validateInput(in); err != nil {
		return nil, err
	}
	user, err := s.principal(ctx, claims, security.PermUpdateProfile)
	if err != nil {
		return nil, err
	}
	updated, err := s.users.UpdateProfile(ctx, user.UserID, in)
	if err != nil {
		return nil, err
	}
	s.audit.LogUser(ctx, user.TenantID, user.UserID, audit.ActionProfileUpdate, audit.StatusSuccess, "")
	return updated, nil
}

// ChangePassword replaces the caller's password and ends their session.
// Access tokens already issued stay valid until they expire.
func (s *AuthService) ChangePassword(ctx context.Context, claims *auth.AccessClaims, in ChangePasswordInput) (err error) {
	ctx, span := tracing.Start(ctx, "auth.change_password")
	defer func() { tracing.End(span, err) }()

	if err := validateInput(in); err != nil {
		return err
	}
	user, err := s.principal(ctx, claims, security.PermChangePassword)
	if err != nil {
		return err
	}
	if err := s.users.ChangePassword(ctx, user.UserID, in.OldPassword, in.NewPassword); err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			s.audit.LogUser(ctx, user.TenantID, user.UserID, audit.ActionPasswordChange, audit.StatusFailure, "wrong old password")
		}
		return err
	}
	s.audit.LogUser(ctx, user.TenantID, user.UserID, audit.ActionPasswordChange, audit.StatusSuccess, "")
	return nil
}

// ListUsers returns the users of the caller's tenant. Admins only.
func (s *AuthService) ListUsers(ctx context.Context, claims *auth.AccessClaims) (_ []*domain.User, err error) {
	ctx, span := tracing.Start(ctx, "auth.list_users")
	defer func() { tracing.End(span, err) }()

	user, err := s.principal(ctx, claims, security.PermListUsers)
	if err != nil {
		return nil, err
	}
	return s.users.ListByTenant(ctx, user.TenantID)
}

// SetUserRole lets a company promote or demote one of its users
func (s *AuthService) SetUserRole(ctx context.Context, apiKey string, in SetRoleInput) (err error) {
	ctx, span := tracing.Start(ctx, "auth.set_user_role")
	defer func() { tracing.End(span, err) }()

	in.CompanyEmail = normalizeEmail(in.CompanyEmail)
	in.UserEmail = normalizeEmail(in.UserEmail)
	if err := validateInput(in); err != nil {
		return err
	}
	tc, err := s.resolver.Resolve(ctx, apiKey)
	if err != nil {
		return err
	}
	tenant, err := s.tenants.Authorize(ctx, CompanyCredentials{Email: in.CompanyEmail, Password: in.CompanyPassword})
	if err != nil {
		return err
	}
	if err := s.authz.ValidateTenantAccess(tenant.TenantID, tc.TenantID); err != nil {
		s.audit.LogDenied(ctx, tc.TenantID, "", "company credentials belong to another tenant")
		return err
	}
	if err := s.users.SetRole(ctx, tc.TenantID, in.UserEmail, in.Role); err != nil {
		return err
	}
	s.audit.LogAction(ctx, tc.TenantID, "", audit.ActionRoleChange, "user", normalizeEmail(in.UserEmail), audit.StatusSuccess, "role="+string(in.Role))
	return nil
}

// principal loads the user behind claims and checks perm against the
// stored role. A deleted tenant or user invalidates the token.
func (s *AuthService) principal(ctx context.Context, claims *auth.AccessClaims, perm security.Permission) (*domain.User, error) {
	if claims == nil {
		return nil, fmt.Errorf("%w: missing claims", domain.ErrTokenInvalid)
	}
	exists, err := s.tenants.Exists(ctx, claims.TenantID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: tenant no longer exists", domain.ErrTokenInvalid)
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, fmt.Errorf("%w: user no longer exists", domain.ErrTokenInvalid)
	}
	if err != nil {
		return nil, err
	}
	if err := s.authz.ValidateTenantAccess(user.TenantID, claims.TenantID); err != nil {
		return nil, fmt.Errorf("%w: tenant mismatch", domain.ErrTokenInvalid)
	}
	if err := s.authz.ValidatePermission(user.Role, perm); err != nil {
		s.audit.LogDenied(ctx, user.TenantID, user.UserID, string(perm))
		return nil, err
	}
	return user, nil
}

func errorReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrDuplicateUser):
		return "duplicate user"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	default:
		return "internal"
	}
}
