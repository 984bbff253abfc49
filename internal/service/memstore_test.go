package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/aryan0dhankhar/tenantauth/internal/domain"
	"github.com/aryan0dhankhar/tenantauth/internal/security"
	"github.com/aryan0dhankhar/tenantauth/internal/security/audit"
	"github.com/aryan0dhankhar/tenantauth/internal/security/auth"
	"github.com/aryan0dhankhar/tenantauth/internal/security/lockout"
)

// memTenantRepo and memUserRepo stand in for the SQL repositories. They
// hand out copies so callers cannot mutate stored state by accident.

type memTenantRepo struct {
	mu      sync.Mutex
	tenants map[string]*domain.Tenant // by tenant ID
	err     error
}

func newMemTenantRepo() *memTenantRepo {
	return &memTenantRepo{tenants: map[string]*domain.Tenant{}}
}

func copyTenant(t *domain.Tenant) *domain.Tenant {
	c := *t
	if t.APIKey != nil {
		k := *t.APIKey
		c.APIKey = &k
	}
	return &c
}

func (m *memTenantRepo) Create(_ context.Context, t *domain.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for _, e := range m.tenants {
		if e.TenantID == t.TenantID || e.CompanyID == t.CompanyID || e.Name == t.Name || e.ContactEmail == t.ContactEmail ||
			(e.APIKey != nil && t.APIKey != nil && *e.APIKey == *t.APIKey) {
			return domain.ErrDuplicateTenant
		}
	}
	m.tenants[t.TenantID] = copyTenant(t)
	return nil
}

func (m *memTenantRepo) find(match func(*domain.Tenant) bool) (*domain.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, t := range m.tenants {
		if match(t) {
			return copyTenant(t), nil
		}
	}
	return nil, domain.ErrTenantNotFound
}

func (m *memTenantRepo) GetByTenantID(_ context.Context, id string) (*domain.Tenant, error) {
	return m.find(func(t *domain.Tenant) bool { return t.TenantID == id })
}

func (m *memTenantRepo) GetByEmail(_ context.Context, email string) (*domain.Tenant, error) {
	return m.find(func(t *domain.Tenant) bool { return t.ContactEmail == email })
}

func (m *memTenantRepo) GetByCompanyID(_ context.Context, id string) (*domain.Tenant, error) {
	return m.find(func(t *domain.Tenant) bool { return t.CompanyID == id })
}

func (m *memTenantRepo) GetByAPIKey(_ context.Context, key string) (*domain.Tenant, error) {
	return m.find(func(t *domain.Tenant) bool { return t.APIKey != nil && *t.APIKey == key })
}

func (m *memTenantRepo) ExistsByNameOrEmail(_ context.Context, name, email string) (bool, error) {
	_, err := m.find(func(t *domain.Tenant) bool { return t.Name == name || t.ContactEmail == email })
	if err == domain.ErrTenantNotFound {
		return false, nil
	}
	return err == nil, err
}

func (m *memTenantRepo) update(email string, fn func(*domain.Tenant)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for _, t := range m.tenants {
		if t.ContactEmail == email {
			fn(t)
			return nil
		}
	}
	return domain.ErrTenantNotFound
}

func (m *memTenantRepo) SetAPIKey(_ context.Context, email string, key *string) error {
	return m.update(email, func(t *domain.Tenant) { t.APIKey = key })
}

func (m *memTenantRepo) SetPlan(_ context.Context, email string, plan domain.Plan) error {
	return m.update(email, func(t *domain.Tenant) { t.Plan = plan })
}

func (m *memTenantRepo) Delete(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.tenants {
		if t.ContactEmail == email {
			delete(m.tenants, id)
			return nil
		}
	}
	return domain.ErrTenantNotFound
}

type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User // by user ID
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: map[string]*domain.User{}}
}

func copyUser(u *domain.User) *domain.User {
	c := *u
	if u.ActiveRefreshTokenID != nil {
		id := *u.ActiveRefreshTokenID
		c.ActiveRefreshTokenID = &id
	}
	return &c
}

func (m *memUserRepo) Create(_ context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.users {
		if e.UserID == u.UserID || (e.TenantID == u.TenantID && e.Email == u.Email) {
			return domain.ErrDuplicateUser
		}
	}
	m.users[u.UserID] = copyUser(u)
	return nil
}

func (m *memUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return copyUser(u), nil
	}
	return nil, domain.ErrUserNotFound
}

func (m *memUserRepo) GetByTenantEmail(_ context.Context, tenantID, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.TenantID == tenantID && u.Email == email {
			return copyUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (m *memUserRepo) ListByTenant(_ context.Context, tenantID string) ([]*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.User
	for _, u := range m.users {
		if u.TenantID == tenantID {
			out = append(out, copyUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (m *memUserRepo) mutate(id string, fn func(*domain.User) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	if err := fn(u); err != nil {
		return err
	}
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memUserRepo) UpdateUsername(_ context.Context, id, username string) error {
	return m.mutate(id, func(u *domain.User) error { u.Username = username; return nil })
}

func (m *memUserRepo) SetRole(_ context.Context, tenantID, email string, role domain.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.TenantID == tenantID && u.Email == email {
			u.Role = role
			return nil
		}
	}
	return domain.ErrUserNotFound
}

func (m *memUserRepo) UpdatePassword(_ context.Context, id, digest string) error {
	return m.mutate(id, func(u *domain.User) error {
		u.PasswordDigest = digest
		u.ActiveRefreshTokenID = nil
		return nil
	})
}

func (m *memUserRepo) SetRefreshTokenID(_ context.Context, id, tokenID string) error {
	return m.mutate(id, func(u *domain.User) error { u.ActiveRefreshTokenID = &tokenID; return nil })
}

func (m *memUserRepo) RotateRefreshTokenID(_ context.Context, id, oldID, newID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || u.ActiveRefreshTokenID == nil || *u.ActiveRefreshTokenID != oldID {
		return domain.ErrSessionRevoked
	}
	u.ActiveRefreshTokenID = &newID
	return nil
}

func (m *memUserRepo) ClearRefreshTokenID(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.ActiveRefreshTokenID = nil
	}
	return nil
}

func (m *memUserRepo) marker(t *testing.T, id string) *string {
	t.Helper()
	u, err := m.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("load user %s: %v", id, err)
	}
	return u.ActiveRefreshTokenID
}

// testEnv wires every service over the in-memory repositories.
type testEnv struct {
	tenantRepo *memTenantRepo
	userRepo   *memUserRepo
	tokens     *auth.TokenManager
	tenants    *TenantService
	resolver   *APIKeyResolver
	users      *UserService
	sessions   *SessionService
	auth       *AuthService
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T, guard lockout.Guard) *testEnv {
	t.Helper()
	logger := quietLogger()

	hasher, err := auth.NewHasher(auth.AlgorithmBcrypt, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	tokens, err := auth.NewTokenManager(auth.TokenManagerConfig{
		AccessSecret:  "test-access-secret",
		RefreshSecret: "test-refresh-secret",
		Issuer:        "tenantauth",
	})
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}

	env := &testEnv{
		tenantRepo: newMemTenantRepo(),
		userRepo:   newMemUserRepo(),
		tokens:     tokens,
	}
	auditLog := audit.NewLogger(logger)
	env.tenants = NewTenantService(env.tenantRepo, hasher, auditLog, logger)
	env.resolver = NewAPIKeyResolver(env.tenantRepo, logger)
	env.users = NewUserService(env.userRepo, hasher, logger)
	env.sessions = NewSessionService(env.userRepo, tokens, logger)
	env.auth = NewAuthService(AuthServiceDeps{
		Resolver: env.resolver,
		Tenants:  env.tenants,
		Users:    env.users,
		Sessions: env.sessions,
		Lockout:  guard,
		Authz:    security.NewAuthorizationService(logger),
		Audit:    auditLog,
	}, logger)
	return env
}

func (e *testEnv) registerTenant(t *testing.T, name, email string) *domain.Tenant {
	t.Helper()
	tenant, err := e.tenants.Register(context.Background(), RegisterTenantInput{
		Name: name, Email: email, Password: "company-pass",
	})
	if err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	return tenant
}

func (e *testEnv) signup(t *testing.T, apiKey, email, password string) *domain.User {
	t.Helper()
	user, err := e.auth.Signup(context.Background(), apiKey, CreateUserInput{Email: email, Password: password})
	if err != nil {
		t.Fatalf("signup %s: %v", email, err)
	}
	return user
}
