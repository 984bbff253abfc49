package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/aryan0dhankhar/tenantauth/internal/repository"
	"github.com/aryan0dhankhar/tenantauth/internal/security"
	"github.com/aryan0dhankhar/tenantauth/internal/security/audit"
	"github.com/aryan0dhankhar/tenantauth/internal/security/auth"
	"github.com/aryan0dhankhar/tenantauth/internal/security/lockout"
	"github.com/aryan0dhankhar/tenantauth/internal/service"
	"github.com/aryan0dhankhar/tenantauth/pkg/database"
)

const testRefreshTTL = time.Hour

// testServer wires the real services over a temp-file SQLite database.
type testServer struct {
	mux  *http.ServeMux
	pool *database.ConnectionPool
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	dsn := filepath.Join(t.TempDir(), "tenantauth.db") + "?_busy_timeout=5000"
	pool, err := database.NewConnectionPool(context.Background(), &database.Config{
		Driver: database.DriverSQLite,
		DSN:    dsn,
	}, logger)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { pool.Close() })
	if err := repository.Migrate(context.Background(), pool.GetDB(), logger); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	hasher, err := auth.NewHasher(auth.AlgorithmBcrypt, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	tokens, err := auth.NewTokenManager(auth.TokenManagerConfig{
		AccessSecret:  "handler-access-secret",
		RefreshSecret: "handler-refresh-secret",
		RefreshTTL:    testRefreshTTL,
	})
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}

	tenantRepo := repository.NewSQLTenantRepository(pool.GetDB(), logger)
	userRepo := repository.NewSQLUserRepository(pool.GetDB(), logger)
	auditLog := audit.NewLogger(logger)

	tenants := service.NewTenantService(tenantRepo, hasher, auditLog, logger)
	authService := service.NewAuthService(service.AuthServiceDeps{
		Resolver: service.NewAPIKeyResolver(tenantRepo, logger),
		Tenants:  tenants,
		Users:    service.NewUserService(userRepo, hasher, logger),
		Sessions: service.NewSessionService(userRepo, tokens, logger),
		Lockout:  lockout.NewMemoryGuard(3, time.Minute),
		Authz:    security.NewAuthorizationService(logger),
		Audit:    auditLog,
	}, logger)

	mux := http.NewServeMux()
	Routes{
		Company:  NewCompanyHandler(tenants, authService, logger),
		User:     NewUserHandler(authService, false, testRefreshTTL, logger),
		Health:   NewHealthHandler(pool, nil, logger),
		Verifier: authService,
		Logger:   logger,
	}.Register(mux)

	return &testServer{mux: mux, pool: pool}
}

type call struct {
	method  string
	path    string
	body    any
	apiKey  string
	bearer  string
	cookies []*http.Cookie
}

func (s *testServer) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if c.body != nil {
		raw, err := json.Marshal(c.body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(c.method, c.path, body)
	if c.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %T from %q: %v", v, rec.Body.String(), err)
	}
	return v
}

func refreshCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == RefreshCookieName {
			return c
		}
	}
	t.Fatalf("response has no %s cookie", RefreshCookieName)
	return nil
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, want, rec.Body.String())
	}
}

// registerCompany registers a tenant with password "company-pass"
func (s *testServer) registerCompany(t *testing.T, name, email string) RegisterResponse {
	t.Helper()
	rec := s.do(t, call{method: http.MethodPost, path: "/company/register", body: map[string]string{
		"companyName": name, "email": email, "password": "company-pass",
	}})
	expectStatus(t, rec, http.StatusCreated)
	return decode[RegisterResponse](t, rec)
}

func (s *testServer) signup(t *testing.T, apiKey, email, password string) {
	t.Helper()
	rec := s.do(t, call{method: http.MethodPost, path: "/user/signup", apiKey: apiKey, body: map[string]string{
		"email": email, "password": password,
	}})
	expectStatus(t, rec, http.StatusCreated)
}

// signin returns the access token and the refresh cookie
func (s *testServer) signin(t *testing.T, apiKey, email, password string) (string, *http.Cookie) {
	t.Helper()
	rec := s.do(t, call{method: http.MethodPost, path: "/user/signin", apiKey: apiKey, body: map[string]string{
		"email": email, "password": password,
	}})
	expectStatus(t, rec, http.StatusOK)
	pair := decode[service.TokenPair](t, rec)
	return pair.AccessToken, refreshCookie(t, rec)
}
