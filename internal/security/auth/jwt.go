package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/aryan0dhankhar/tenantauth/internal/domain"
)

const (
	audienceAccess  = "access"
	audienceRefresh = "refresh"

	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// AccessClaims are carried by short-lived access tokens
type AccessClaims struct {
	UserID   string      `json:"userId"`
	TenantID string      `json:"tenantId"`
	Role     domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// RefreshClaims are carried by refresh tokens. TokenID must match the
// user's active refresh marker for the token to be accepted.
type RefreshClaims struct {
	UserID  string `json:"userId"`
	TokenID string `json:"tokenId"`
	jwt.RegisteredClaims
}

// TokenManagerConfig configures a TokenManager
type TokenManagerConfig struct {
	AccessSecret  string
	RefreshSecret string
	Issuer        string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// TokenManager signs and verifies access and refresh tokens. It holds no
// mutable state and is safe for concurrent use.
type TokenManager struct {
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewTokenManager validates cfg and creates a TokenManager
func NewTokenManager(cfg TokenManagerConfig) (*TokenManager, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("access and refresh secrets are required")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "tenantauth"
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	return &TokenManager{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		issuer:        cfg.Issuer,
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		now:           time.Now,
	}, nil
}

// AccessTTL returns the lifetime of access tokens
func (tm *TokenManager) AccessTTL() time.Duration { return tm.accessTTL }

// RefreshTTL returns the lifetime of refresh tokens
func (tm *TokenManager) RefreshTTL() time.Duration { return tm.refreshTTL }

// IssueAccess signs an access token for user
func (tm *TokenManager) IssueAccess(user *domain.User) (string, error) {
	if user.UserID == "" || user.TenantID == "" {
		return "", errors.New("user id and tenant id required")
	}
	now := tm.now()
	claims := AccessClaims{
		UserID:   user.UserID,
		TenantID: user.TenantID,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.UserID,
			Issuer:    tm.issuer,
			Audience:  jwt.ClaimStrings{audienceAccess},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.accessTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.accessSecret)
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

// IssueRefresh signs a refresh token bound to tokenID
func (tm *TokenManager) IssueRefresh(userID, tokenID string) (string, error) {
	if userID == "" || tokenID == "" {
		return "", errors.New("user id and token id required")
	}
	now := tm.now()
	claims := RefreshClaims{
		UserID:  userID,
		TokenID: tokenID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    tm.issuer,
			Audience:  jwt.ClaimStrings{audienceRefresh},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.refreshTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.refreshSecret)
	if err != nil {
		return "", fmt.Errorf("signing refresh token: %w", err)
	}
	return signed, nil
}

// ParseAccess verifies signature and expiry of an access token
func (tm *TokenManager) ParseAccess(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := tm.parse(tokenString, claims, tm.accessSecret, audienceAccess); err != nil {
		return nil, err
	}
	if claims.UserID == "" || claims.TenantID == "" {
		return nil, fmt.Errorf("%w: missing subject", domain.ErrTokenInvalid)
	}
	return claims, nil
}

// ParseRefresh verifies signature and expiry of a refresh token. It does
// not check the token against the stored session marker.
func (tm *TokenManager) ParseRefresh(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := tm.parse(tokenString, claims, tm.refreshSecret, audienceRefresh); err != nil {
		return nil, err
	}
	if claims.UserID == "" || claims.TokenID == "" {
		return nil, fmt.Errorf("%w: missing token id", domain.ErrTokenInvalid)
	}
	return claims, nil
}

func (tm *TokenManager) parse(tokenString string, claims jwt.Claims, secret []byte, audience string) error {
	if tokenString == "" {
		return fmt.Errorf("%w: empty token", domain.ErrTokenInvalid)
	}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tm.issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tm.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return fmt.Errorf("%w: %w", domain.ErrTokenExpired, err)
		}
		return fmt.Errorf("%w: %w", domain.ErrTokenInvalid, err)
	}
	return nil
}

// ExtractToken returns the credential from an "Authorization: Bearer x" header
func ExtractToken(authHeader string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(authHeader), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("%w: invalid authorization header", domain.ErrTokenInvalid)
	}
	return strings.TrimSpace(token), nil
}
