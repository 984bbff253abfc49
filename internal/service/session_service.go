package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aryan0dhankhar/tenantauth/internal/domain"
	"github.com/aryan0dhankhar/tenantauth/internal/observability/metrics"
	"github.com/aryan0dhankhar/tenantauth/internal/security/auth"
)

// TokenPair is what a successful signin or refresh hands back. The refresh
// token travels in a cookie and is never serialized into a body.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"-"`
	ExpiresIn    int    `json:"expiresIn"`
}

// SessionService runs the per-user session state machine:
//
//	no session -> active(t0) -> active(t1) -> ... -> no session
//
// The user's ActiveRefreshTokenID is the only record of which lineage is
// live. Refresh replaces it through a conditional update, so a refresh
// token is accepted at most once.
type SessionService struct {
	users  domain.UserRepository
	tokens *auth.TokenManager
	logger *slog.Logger
}

func NewSessionService(users domain.UserRepository, tokens *auth.TokenManager, logger *slog.Logger) *SessionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionService{users: users, tokens: tokens, logger: logger}
}

// Login starts a new lineage for user, replacing any previous one.
func (s *SessionService) Login(ctx context.Context, user *domain.User) (*TokenPair, error) {
	tokenID, err := auth.NewTokenID()
	if err != nil {
		return nil, err
	}
	pair, err := s.issue(user, tokenID)
	if err != nil {
		return nil, err
	}
	if err := s.users.SetRefreshTokenID(ctx, user.UserID, tokenID); err != nil {
		return nil, err
	}
	return pair, nil
}

// Refresh exchanges a refresh token for a new pair. The token's user must
// belong to tenantID. Tokens that are not the user's current lineage fail
// with domain.ErrSessionRevoked, as do tokens for deleted users.
func (s *SessionService) Refresh(ctx context.Context, tenantID, refreshToken string) (*TokenPair, *domain.User, error) {
	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return nil, nil, err
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, nil, domain.ErrSessionRevoked
	}
	if err != nil {
		return nil, nil, err
	}
	if user.TenantID != tenantID {
		s.logger.Warn("refresh token presented under another tenant",
			slog.String("user_id", user.UserID),
			slog.String("tenant_id", tenantID),
		)
		return nil, nil, domain.ErrSessionRevoked
	}

	pair, err := s.rotate(ctx, user, claims.TokenID)
	if err != nil {
		return nil, nil, err
	}
	return pair, user, nil
}

func (s *SessionService) rotate(ctx context.Context, user *domain.User, oldTokenID string) (*TokenPair, error) {
	if user.ActiveRefreshTokenID == nil || *user.ActiveRefreshTokenID != oldTokenID {
		s.reuseDetected(user)
		return nil, domain.ErrSessionRevoked
	}

	newTokenID, err := auth.NewTokenID()
	if err != nil {
		return nil, err
	}
	pair, err := s.issue(user, newTokenID)
	if err != nil {
		return nil, err
	}

	// The read above is only a fast path; this conditional write decides
	// which of several concurrent callers wins.
	if err := s.users.RotateRefreshTokenID(ctx, user.UserID, oldTokenID, newTokenID); err != nil {
		if errors.Is(err, domain.ErrSessionRevoked) {
			s.reuseDetected(user)
		}
		return nil, err
	}
	user.ActiveRefreshTokenID = &newTokenID
	return pair, nil
}

func (s *SessionService) reuseDetected(user *domain.User) {
	metrics.ObserveReuseDetected()
	s.logger.Warn("refresh token reuse detected",
		slog.String("tenant_id", user.TenantID),
		slog.String("user_id", user.UserID),
	)
}

// Logout ends the session named by refreshToken. Missing, expired and
// unverifiable tokens are treated as already logged out, as are tokens of
// users outside tenantID. Only store failures are returned.
func (s *SessionService) Logout(ctx context.Context, tenantID, refreshToken string) (*domain.User, error) {
	if refreshToken == "" {
		return nil, nil
	}
	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return nil, nil
	}
	user, err := s.users.GetByID(ctx, claims.UserID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if user.TenantID != tenantID {
		return nil, nil
	}
	if err := s.users.ClearRefreshTokenID(ctx, user.UserID); err != nil {
		return nil, err
	}
	user.ActiveRefreshTokenID = nil
	return user, nil
}

// VerifyAccess checks signature and expiry only. It does not consult the
// store, so an access token outlives logout until it expires.
func (s *SessionService) VerifyAccess(accessToken string) (*auth.AccessClaims, error) {
	return s.tokens.ParseAccess(accessToken)
}

func (s *SessionService) issue(user *domain.User, tokenID string) (*TokenPair, error) {
	access, err := s.tokens.IssueAccess(user)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.IssueRefresh(user.UserID, tokenID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int(s.tokens.AccessTTL().Seconds()),
	}, nil
}
