package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/aryan0dhankhar/tenantauth/internal/domain"
)

func newTestManager(t *testing.T) *TokenManager {
	t.Helper()
	tm, err := NewTokenManager(TokenManagerConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
	})
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}
	return tm
}

var testUser = &domain.User{UserID: "usr-1", TenantID: "tenant-1", Role: domain.RoleAdmin}

func TestTokenManager_AccessRoundTrip(t *testing.T) {
	tm := newTestManager(t)

	token, err := tm.IssueAccess(testUser)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	claims, err := tm.ParseAccess(token)
	if err != nil {
		t.Fatalf("ParseAccess: %v", err)
	}
	if claims.UserID != "usr-1" || claims.TenantID != "tenant-1" || claims.Role != domain.RoleAdmin {
		t.Errorf("claims = %+v", claims)
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != DefaultAccessTTL {
		t.Errorf("lifetime = %v, want %v", got, DefaultAccessTTL)
	}
}

func TestTokenManager_RefreshRoundTrip(t *testing.T) {
	tm := newTestManager(t)

	token, err := tm.IssueRefresh("usr-1", "tok-1")
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	claims, err := tm.ParseRefresh(token)
	if err != nil {
		t.Fatalf("ParseRefresh: %v", err)
	}
	if claims.UserID != "usr-1" || claims.TokenID != "tok-1" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestTokenManager_KindsAreNotInterchangeable(t *testing.T) {
	tm := newTestManager(t)

	access, _ := tm.IssueAccess(testUser)
	refresh, _ := tm.IssueRefresh("usr-1", "tok-1")

	if _, err := tm.ParseRefresh(access); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Errorf("ParseRefresh(access) error = %v, want ErrTokenInvalid", err)
	}
	if _, err := tm.ParseAccess(refresh); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Errorf("ParseAccess(refresh) error = %v, want ErrTokenInvalid", err)
	}
}

func TestTokenManager_Expired(t *testing.T) {
	tm := newTestManager(t)
	issued := time.Now().Add(-time.Hour)
	tm.now = func() time.Time { return issued }

	access, _ := tm.IssueAccess(testUser)
	refresh, _ := tm.IssueRefresh("usr-1", "tok-1")

	tm.now = func() time.Time { return issued.Add(DefaultAccessTTL + time.Minute) }
	if _, err := tm.ParseAccess(access); !errors.Is(err, domain.ErrTokenExpired) {
		t.Errorf("ParseAccess error = %v, want ErrTokenExpired", err)
	}
	if _, err := tm.ParseRefresh(refresh); err != nil {
		t.Errorf("refresh token expired early: %v", err)
	}

	tm.now = func() time.Time { return issued.Add(DefaultRefreshTTL + time.Minute) }
	if _, err := tm.ParseRefresh(refresh); !errors.Is(err, domain.ErrTokenExpired) {
		t.Errorf("ParseRefresh error = %v, want ErrTokenExpired", err)
	}
}

func TestTokenManager_RejectsTampering(t *testing.T) {
	tm := newTestManager(t)
	token, _ := tm.IssueAccess(testUser)

	other, _ := NewTokenManager(TokenManagerConfig{AccessSecret: "other-a", RefreshSecret: "other-r"})
	forged, _ := other.IssueAccess(testUser)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, AccessClaims{
		UserID:   "usr-1",
		TenantID: "tenant-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "tenantauth",
			Audience:  jwt.ClaimStrings{"access"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.jwt"},
		{"flipped signature", token[:len(token)-2] + flip(token[len(token)-2:])},
		{"wrong secret", forged},
		{"alg none", unsigned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tm.ParseAccess(tt.token); !errors.Is(err, domain.ErrTokenInvalid) {
				t.Errorf("ParseAccess error = %v, want ErrTokenInvalid", err)
			}
		})
	}
}

func flip(s string) string {
	if strings.HasPrefix(s, "A") {
		return "B" + s[1:]
	}
	return "A" + s[1:]
}

func TestNewTokenManager_Validation(t *testing.T) {
	if _, err := NewTokenManager(TokenManagerConfig{AccessSecret: "a"}); err == nil {
		t.Errorf("expected error for missing refresh secret")
	}
	if _, err := NewTokenManager(TokenManagerConfig{AccessSecret: "same", RefreshSecret: "same"}); err == nil {
		t.Errorf("expected error for identical secrets")
	}
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{"Bearer abc", "abc", false},
		{"bearer abc", "abc", false},
		{"  Bearer   abc  ", "abc", false},
		{"Basic abc", "", true},
		{"Bearer", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ExtractToken(tt.header)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ExtractToken(%q) = %q, %v", tt.header, got, err)
		}
	}
}

func TestIDs(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		id, err := NewTokenID()
		if err != nil {
			t.Fatalf("NewTokenID: %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate token id %q", id)
		}
		seen[id] = true
	}

	key, err := NewAPIKey()
	if err != nil || len(key) != 48 {
		t.Errorf("NewAPIKey = %q (%d chars), %v; want 48 hex chars", key, len(key), err)
	}
	tenantID, _ := NewTenantID()
	if !strings.HasPrefix(tenantID, "tenant-") {
		t.Errorf("NewTenantID = %q", tenantID)
	}
	userID, _ := NewUserID()
	if !strings.HasPrefix(userID, "usr-") {
		t.Errorf("NewUserID = %q", userID)
	}
}
