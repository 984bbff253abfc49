package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aryan0dhankhar/tenantauth/internal/domain"
)

func newSessionUser(t *testing.T, env *testEnv, tenantID, email string) *domain.User {
	t.Helper()
	user, err := env.users.Create(context.Background(), tenantID, CreateUserInput{Email: email, Password: "p"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return user
}

func TestSessionService_LoginSetsMarker(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	user := newSessionUser(t, env, "tenant-a", "bob@example.com")

	pair, err := env.sessions.Login(ctx, user)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" || pair.ExpiresIn != 900 {
		t.Fatalf("pair = %+v", pair)
	}

	claims, err := env.tokens.ParseRefresh(pair.RefreshToken)
	if err != nil {
		t.Fatalf("ParseRefresh: %v", err)
	}
	marker := env.userRepo.marker(t, user.UserID)
	if marker == nil || *marker != claims.TokenID {
		t.Errorf("marker = %v, want %s", marker, claims.TokenID)
	}

	access, err := env.sessions.VerifyAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if access.UserID != user.UserID || access.TenantID != "tenant-a" {
		t.Errorf("access claims = %+v", access)
	}
}

func TestSessionService_RefreshRotatesAndDetectsReuse(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	user := newSessionUser(t, env, "tenant-a", "bob@example.com")

	first, err := env.sessions.Login(ctx, user)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	second, _, err := env.sessions.Refresh(ctx, "tenant-a", first.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatalf("refresh returned the same token")
	}

	if _, _, err := env.sessions.Refresh(ctx, "tenant-a", first.RefreshToken); !errors.Is(err, domain.ErrSessionRevoked) {
		t.Fatalf("reused token: err = %v, want ErrSessionRevoked", err)
	}

	third, _, err := env.sessions.Refresh(ctx, "tenant-a", second.RefreshToken)
	if err != nil {
		t.Fatalf("refresh with current token: %v", err)
	}

	// Every earlier lineage stays dead.
	for i, tok := range []string{first.RefreshToken, second.RefreshToken} {
		if _, _, err := env.sessions.Refresh(ctx, "tenant-a", tok); !errors.Is(err, domain.ErrSessionRevoked) {
			t.Errorf("token %d: err = %v", i, err)
		}
	}
	claims, _ := env.tokens.ParseRefresh(third.RefreshToken)
	if m := env.userRepo.marker(t, user.UserID); m == nil || *m != claims.TokenID {
		t.Errorf("marker does not match latest token")
	}
}

func TestSessionService_NewLoginRevokesPreviousLineage(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	user := newSessionUser(t, env, "tenant-a", "bob@example.com")

	laptop, _ := env.sessions.Login(ctx, user)
	if _, err := env.sessions.Login(ctx, user); err != nil {
		t.Fatalf("second Login: %v", err)
	}
	if _, _, err := env.sessions.Refresh(ctx, "tenant-a", laptop.RefreshToken); !errors.Is(err, domain.ErrSessionRevoked) {
		t.Errorf("first device token: err = %v, want ErrSessionRevoked", err)
	}
}

func TestSessionService_ConcurrentRefreshSucceedsOnce(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	user := newSessionUser(t, env, "tenant-a", "bob@example.com")
	pair, _ := env.sessions.Login(ctx, user)

	const callers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		revoked   int
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, _, err := env.sessions.Refresh(ctx, "tenant-a", pair.RefreshToken)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domain.ErrSessionRevoked):
				revoked++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if successes != 1 || revoked != callers-1 {
		t.Errorf("successes=%d revoked=%d, want 1 and %d", successes, revoked, callers-1)
	}
}

func TestSessionService_RefreshRejections(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	user := newSessionUser(t, env, "tenant-a", "bob@example.com")
	pair, _ := env.sessions.Login(ctx, user)

	if _, _, err := env.sessions.Refresh(ctx, "tenant-b", pair.RefreshToken); !errors.Is(err, domain.ErrSessionRevoked) {
		t.Errorf("other tenant: %v", err)
	}
	if _, _, err := env.sessions.Refresh(ctx, "tenant-a", "garbage"); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Errorf("garbage token: %v", err)
	}
	if _, _, err := env.sessions.Refresh(ctx, "tenant-a", pair.AccessToken); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Errorf("access token used as refresh: %v", err)
	}
	// A cross-tenant attempt must not have consumed the token.
	if _, _, err := env.sessions.Refresh(ctx, "tenant-a", pair.RefreshToken); err != nil {
		t.Errorf("legitimate refresh after rejection: %v", err)
	}
}

func TestSessionService_Logout(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	user := newSessionUser(t, env, "tenant-a", "bob@example.com")
	pair, _ := env.sessions.Login(ctx, user)

	for _, tok := range []string{"", "garbage", pair.AccessToken} {
		if u, err := env.sessions.Logout(ctx, "tenant-a", tok); err != nil || u != nil {
			t.Errorf("logout with %q = %v, %v; want no-op", tok, u, err)
		}
	}
	if env.userRepo.marker(t, user.UserID) == nil {
		t.Fatalf("no-op logout cleared the session")
	}

	if _, err := env.sessions.Logout(ctx, "tenant-b", pair.RefreshToken); err != nil {
		t.Fatalf("cross-tenant logout: %v", err)
	}
	if env.userRepo.marker(t, user.UserID) == nil {
		t.Fatalf("cross-tenant logout cleared the session")
	}

	for i := 0; i < 2; i++ {
		if _, err := env.sessions.Logout(ctx, "tenant-a", pair.RefreshToken); err != nil {
			t.Fatalf("logout %d: %v", i, err)
		}
	}
	if env.userRepo.marker(t, user.UserID) != nil {
		t.Errorf("logout left the session active")
	}
	if _, _, err := env.sessions.Refresh(ctx, "tenant-a", pair.RefreshToken); !errors.Is(err, domain.ErrSessionRevoked) {
		t.Errorf("refresh after logout: %v", err)
	}
}
