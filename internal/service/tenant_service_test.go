package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/aryan0dhankhar/tenantauth/internal/domain"
)

func TestTenantService_Register(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	tenant, err := env.tenants.Register(ctx, RegisterTenantInput{
		Name: "Acme", Email: " A@Acme.com ", Password: "x",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if tenant.APIKey == nil || len(*tenant.APIKey) != 48 {
		t.Fatalf("api key = %v, want 48 hex chars", tenant.APIKey)
	}
	if !strings.HasPrefix(tenant.TenantID, "tenant-") {
		t.Errorf("tenant id = %q", tenant.TenantID)
	}
	if tenant.CompanyID == "" || tenant.CompanyID == tenant.TenantID {
		t.Errorf("company id = %q", tenant.CompanyID)
	}
	if tenant.Plan != domain.PlanA {
		t.Errorf("plan = %q, want default A", tenant.Plan)
	}
	if tenant.ContactEmail != "a@acme.com" {
		t.Errorf("email not normalized: %q", tenant.ContactEmail)
	}
	if tenant.PasswordDigest == "x" || tenant.PasswordDigest == "" {
		t.Errorf("password stored in plaintext")
	}
}

func TestTenantService_RegisterRejectsDuplicates(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.registerTenant(t, "Acme", "a@acme.com")

	tests := []struct {
		name  string
		input RegisterTenantInput
	}{
		{"same name", RegisterTenantInput{Name: "Acme", Email: "other@acme.com", Password: "x"}},
		{"same email", RegisterTenantInput{Name: "Other", Email: "a@acme.com", Password: "x"}},
		{"same email different case", RegisterTenantInput{Name: "Other", Email: "A@ACME.COM", Password: "x"}},
	}
	for _, tt := range tests {
		if _, err := env.tenants.Register(ctx, tt.input); !errors.Is(err, domain.ErrDuplicateTenant) {
			t.Errorf("%s: err = %v, want ErrDuplicateTenant", tt.name, err)
		}
	}
}

func TestTenantService_RegisterValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	tests := []RegisterTenantInput{
		{Name: "", Email: "a@acme.com", Password: "x"},
		{Name: "Acme", Email: "not-an-email", Password: "x"},
		{Name: "Acme", Email: "a@acme.com", Password: ""},
		{Name: "Acme", Email: "a@acme.com", Password: "x", Plan: "Z"},
		{Name: "Acme", Email: "a@acme.com", Password: strings.Repeat("p", 73)},
	}
	for i, in := range tests {
		if _, err := env.tenants.Register(ctx, in); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("case %d: err = %v, want ErrValidation", i, err)
		}
	}
}

func TestTenantService_UniqueIdentifiers(t *testing.T) {
	env := newTestEnv(t, nil)
	keys := map[string]bool{}
	ids := map[string]bool{}
	for i := 0; i < 20; i++ {
		tenant := env.registerTenant(t, "Company"+string(rune('A'+i)), "c"+string(rune('a'+i))+"@example.com")
		if keys[*tenant.APIKey] || ids[tenant.TenantID] {
			t.Fatalf("duplicate identifier on tenant %d", i)
		}
		keys[*tenant.APIKey] = true
		ids[tenant.TenantID] = true
	}
}

func TestTenantService_Authenticate(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.registerTenant(t, "Acme", "a@acme.com")

	if _, err := env.tenants.Authenticate(ctx, "nobody@acme.com", "company-pass"); !errors.Is(err, domain.ErrTenantNotFound) {
		t.Errorf("unknown email: %v", err)
	}
	if _, err := env.tenants.Authenticate(ctx, "a@acme.com", "wrong"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Errorf("wrong password: %v", err)
	}
	tenant, err := env.tenants.Authenticate(ctx, "A@acme.com", "company-pass")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if tenant.Name != "Acme" {
		t.Errorf("name = %q", tenant.Name)
	}

	if _, err := env.tenants.Authorize(ctx, CompanyCredentials{Email: "a@acme.com"}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("missing password: %v", err)
	}
}

func TestTenantService_RotateAndRevoke(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	tenant := env.registerTenant(t, "Acme", "a@acme.com")
	oldKey := *tenant.APIKey

	newKey, err := env.tenants.RotateAPIKey(ctx, "a@acme.com")
	if err != nil {
		t.Fatalf("RotateAPIKey: %v", err)
	}
	if newKey == oldKey {
		t.Fatalf("rotation returned the same key")
	}
	if _, err := env.resolver.Resolve(ctx, oldKey); !errors.Is(err, domain.ErrInvalidAPIKey) {
		t.Errorf("old key still resolves: %v", err)
	}
	tc, err := env.resolver.Resolve(ctx, newKey)
	if err != nil || tc.TenantID != tenant.TenantID {
		t.Errorf("new key resolve = %+v, %v", tc, err)
	}

	if err := env.tenants.RevokeAPIKey(ctx, "a@acme.com"); err != nil {
		t.Fatalf("RevokeAPIKey: %v", err)
	}
	if _, err := env.resolver.Resolve(ctx, newKey); !errors.Is(err, domain.ErrInvalidAPIKey) {
		t.Errorf("revoked key still resolves: %v", err)
	}

	view, err := env.tenants.GetAPIKey(ctx, domain.TenantSelector{CompanyID: tenant.CompanyID})
	if err != nil {
		t.Fatalf("GetAPIKey: %v", err)
	}
	if view.APIKey != nil {
		t.Errorf("revoked tenant reports key %q", *view.APIKey)
	}

	if _, err := env.tenants.RotateAPIKey(ctx, "ghost@acme.com"); !errors.Is(err, domain.ErrTenantNotFound) {
		t.Errorf("rotate unknown: %v", err)
	}
}

func TestTenantService_ProfileHidesDigest(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	tenant := env.registerTenant(t, "Acme", "a@acme.com")

	profile, err := env.tenants.GetProfile(ctx, domain.TenantSelector{Email: "a@acme.com"})
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if profile.CompanyID != tenant.CompanyID || !profile.HasAPIKey {
		t.Errorf("profile = %+v", profile)
	}

	body, err := json.Marshal(profile)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(body), tenant.PasswordDigest) || strings.Contains(string(body), *tenant.APIKey) {
		t.Errorf("profile leaks secrets: %s", body)
	}

	if _, err := env.tenants.GetProfile(ctx, domain.TenantSelector{}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("empty selector: %v", err)
	}
}

func TestTenantService_PlanAndDelete(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	tenant := env.registerTenant(t, "Acme", "a@acme.com")

	if err := env.tenants.ChangePlan(ctx, "a@acme.com", "Z"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("invalid plan: %v", err)
	}
	if err := env.tenants.ChangePlan(ctx, "a@acme.com", domain.PlanC); err != nil {
		t.Fatalf("ChangePlan: %v", err)
	}
	profile, _ := env.tenants.GetProfile(ctx, domain.TenantSelector{Email: "a@acme.com"})
	if profile.Plan != domain.PlanC {
		t.Errorf("plan = %q", profile.Plan)
	}

	if err := env.tenants.Delete(ctx, "a@acme.com"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := env.tenants.Delete(ctx, "a@acme.com"); !errors.Is(err, domain.ErrTenantNotFound) {
		t.Errorf("second delete: %v", err)
	}
	exists, err := env.tenants.Exists(ctx, tenant.TenantID)
	if err != nil || exists {
		t.Errorf("Exists after delete = %v, %v", exists, err)
	}
}

func TestAPIKeyResolver(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	tenant := env.registerTenant(t, "Acme", "a@acme.com")

	for _, key := range []string{"", "   ", "deadbeef"} {
		if _, err := env.resolver.Resolve(ctx, key); !errors.Is(err, domain.ErrInvalidAPIKey) {
			t.Errorf("key %q: err = %v", key, err)
		}
	}

	tc, err := env.resolver.Resolve(ctx, *tenant.APIKey)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if tc.TenantID != tenant.TenantID || tc.CompanyID != tenant.CompanyID {
		t.Errorf("context = %+v", tc)
	}

	env.tenantRepo.err = domain.ErrStoreUnavailable
	if _, err := env.resolver.Resolve(ctx, *tenant.APIKey); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Errorf("store failure: err = %v, want ErrStoreUnavailable", err)
	}
}
