package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aryan0dhankhar/tenantauth/internal/domain"
	"github.com/aryan0dhankhar/tenantauth/internal/security/auth"
)

// CreateUserInput describes a new user inside a tenant
type CreateUserInput struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Username string `json:"username" validate:"omitempty,max=64"`
	Password string `json:"password" validate:"required,pwbytes"`
}

// UpdateProfileInput lists the user fields a user may change
type UpdateProfileInput struct {
	Username string `json:"username" validate:"required,max=64"`
}

// UserService owns user records. Every email lookup is tenant scoped.
type UserService struct {
	repo   domain.UserRepository
	hasher auth.PasswordHasher
	logger *slog.Logger
	now    func() time.Time

	dummyOnce   sync.Once
	dummyDigest string
}

func NewUserService(repo domain.UserRepository, hasher auth.PasswordHasher, logger *slog.Logger) *UserService {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserService{
		repo:   repo,
		hasher: hasher,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create adds a user to tenantID. The username defaults to the local part
// of the email.
func (s *UserService) Create(ctx context.Context, tenantID string, in CreateUserInput) (*domain.User, error) {
	in.Email = normalizeEmail(in.Email)
	in.Username = strings.TrimSpace(in.Username)
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if in.Username == "" {
		in.Username, _, _ = strings.Cut(in.Email, "@")
	}

	_, err := s.repo.GetByTenantEmail(ctx, tenantID, in.Email)
	switch {
	case err == nil:
		return nil, domain.ErrDuplicateUser
	case !errors.Is(err, domain.ErrUserNotFound):
		return nil, err
	}

	digest, err := hashPassword(s.hasher, in.Password)
	if err != nil {
		return nil, err
	}
	userID, err := auth.NewUserID()
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &domain.User{
		UserID:         userID,
		TenantID:       tenantID,
		Email:          in.Email,
		Username:       in.Username,
		PasswordDigest: digest,
		Role:           domain.RoleUser,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user created",
		slog.String("tenant_id", tenantID),
		slog.String("user_id", user.UserID),
	)
	return user, nil
}

// FindByCredentials looks a user up by email inside tenantID
func (s *UserService) FindByCredentials(ctx context.Context, tenantID, email string) (*domain.User, error) {
	return s.repo.GetByTenantEmail(ctx, tenantID, normalizeEmail(email))
}

// FindByID looks a user up by its global ID
func (s *UserService) FindByID(ctx context.Context, userID string) (*domain.User, error) {
	return s.repo.GetByID(ctx, userID)
}

// Authenticate verifies a user's password inside tenantID. An unknown email
// and a wrong password both return domain.ErrInvalidCredentials, and both
// pay for one password verification.
func (s *UserService) Authenticate(ctx context.Context, tenantID, email, password string) (*domain.User, error) {
	user, err := s.FindByCredentials(ctx, tenantID, email)
	if errors.Is(err, domain.ErrUserNotFound) {
		s.burnVerify(password)
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	ok, err := verifyPassword(s.hasher, password, user.PasswordDigest)
	if err != nil {
		s.logger.Error("user digest unreadable",
			slog.String("user_id", user.UserID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	if !ok {
		return nil, domain.ErrInvalidCredentials
	}
	return user, nil
}

// burnVerify runs one verification against a throwaway digest so that
// unknown emails take as long as wrong passwords.
func (s *UserService) burnVerify(password string) {
	s.dummyOnce.Do(func() {
		digest, err := s.hasher.Hash("tenantauth-unknown-user")
		if err != nil {
			s.logger.Warn("could not prepare dummy digest", slog.String("error", err.Error()))
			return
		}
		s.dummyDigest = digest
	})
	if s.dummyDigest != "" {
		_, _ = s.hasher.Verify(password, s.dummyDigest)
	}
}

// UpdateProfile applies in to the user and returns the stored record
func (s *UserService) UpdateProfile(ctx context.Context, userID string, in UpdateProfileInput) (*domain.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateUsername(ctx, userID, in.Username); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, userID)
}

// ChangePassword replaces the password after checking the old one. The new
// digest and the end of the active session are written together.
func (s *UserService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	ok, err := verifyPassword(s.hasher, oldPassword, user.PasswordDigest)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrInvalidCredentials
	}

	digest, err := hashPassword(s.hasher, newPassword)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePassword(ctx, userID, digest); err != nil {
		return err
	}
	s.logger.Info("password changed", slog.String("user_id", userID))
	return nil
}

// ListByTenant returns every user of tenantID
func (s *UserService) ListByTenant(ctx context.Context, tenantID string) ([]*domain.User, error) {
	return s.repo.ListByTenant(ctx, tenantID)
}

// SetRole changes the role of the user with email inside tenantID
func (s *UserService) SetRole(ctx context.Context, tenantID, email string, role domain.Role) error {
	return s.repo.SetRole(ctx, tenantID, normalizeEmail(email), role)
}
