package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/aryan0dhankhar/tenantauth/internal/domain"
)

// SQLUserRepository implements domain.UserRepository on PostgreSQL or SQLite
type SQLUserRepository struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewSQLUserRepository creates a new user repository
func NewSQLUserRepository(db *sql.DB, logger *slog.Logger) *SQLUserRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &SQLUserRepository{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

const userColumns = `user_id, tenant_id, email, username, password_digest, role, active_refresh_token_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		user    domain.User
		role    string
		tokenID sql.NullString
	)
	err := row.Scan(
		&user.UserID,
		&user.TenantID,
		&user.Email,
		&user.Username,
		&user.PasswordDigest,
		&role,
		&tokenID,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.Role = domain.Role(role)
	user.ActiveRefreshTokenID = stringPtr(tokenID)
	return &user, nil
}

// Create inserts a user. A clash on (tenant_id, email) is ErrDuplicateUser.
func (r *SQLUserRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		user.UserID,
		user.TenantID,
		user.Email,
		user.Username,
		user.PasswordDigest,
		string(user.Role),
		nullString(user.ActiveRefreshTokenID),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateUser
		}
		r.logger.Error("failed to create user",
			slog.String("tenant_id", user.TenantID),
			slog.String("error", err.Error()),
		)
		return storeError("create user", err)
	}

	return nil
}

// GetByID retrieves a user by ID
func (r *SQLUserRepository) GetByID(ctx context.Context, userID string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE user_id = $1`, userID)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, storeError("get user", err)
	}
	return user, nil
}

// GetByTenantEmail retrieves a user by email inside one tenant
func (r *SQLUserRepository) GetByTenantEmail(ctx context.Context, tenantID, email string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE tenant_id = $1 AND email = $2`,
		tenantID, email)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, storeError("get user by email", err)
	}
	return user, nil
}

// ListByTenant lists all users for a tenant, newest first
func (r *SQLUserRepository) ListByTenant(ctx context.Context, tenantID string) ([]*domain.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE tenant_id = $1 ORDER BY created_at DESC`,
		tenantID)
	if err != nil {
		r.logger.Error("failed to list users by tenant",
			slog.String("tenant_id", tenantID),
			slog.String("error", err.Error()),
		)
		return nil, storeError("list users", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, storeError("scan user", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list users", err)
	}
	return users, nil
}

// UpdateUsername changes the display name of a user
func (r *SQLUserRepository) UpdateUsername(ctx context.Context, userID, username string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET username = $1, updated_at = $2 WHERE user_id = $3`,
		username, r.now(), userID)
	if err != nil {
		return storeError("update username", err)
	}
	return checkAffected(result, "update username", domain.ErrUserNotFound)
}

// SetRole changes the role of the user with email inside tenantID
func (r *SQLUserRepository) SetRole(ctx context.Context, tenantID, email string, role domain.Role) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET role = $1, updated_at = $2 WHERE tenant_id = $3 AND email = $4`,
		string(role), r.now(), tenantID, email)
	if err != nil {
		return storeError("set role", err)
	}
	return checkAffected(result, "set role", domain.ErrUserNotFound)
}

// UpdatePassword stores digest and clears the session marker in one statement
func (r *SQLUserRepository) UpdatePassword(ctx context.Context, userID, digest string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_digest = $1, active_refresh_token_id = NULL, updated_at = $2 WHERE user_id = $3`,
		digest, r.now(), userID)
	if err != nil {
		return storeError("update password", err)
	}
	return checkAffected(result, "update password", domain.ErrUserNotFound)
}

// SetRefreshTokenID starts a new session lineage, replacing any previous one
func (r *SQLUserRepository) SetRefreshTokenID(ctx context.Context, userID, tokenID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET active_refresh_token_id = $1, updated_at = $2 WHERE user_id = $3`,
		tokenID, r.now(), userID)
	if err != nil {
		return storeError("set refresh token", err)
	}
	return checkAffected(result, "set refresh token", domain.ErrUserNotFound)
}

// RotateRefreshTokenID is the compare-and-set used by refresh. The match on
// the previous marker happens inside the UPDATE so concurrent callers
// holding the same token cannot both succeed.
func (r *SQLUserRepository) RotateRefreshTokenID(ctx context.Context, userID, oldID, newID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET active_refresh_token_id = $1, updated_at = $2
		 WHERE user_id = $3 AND active_refresh_token_id = $4`,
		newID, r.now(), userID, oldID)
	if err != nil {
		return storeError("rotate refresh token", err)
	}
	return checkAffected(result, "rotate refresh token", domain.ErrSessionRevoked)
}

// ClearRefreshTokenID ends the active session. Clearing an already empty
// marker is not an error.
func (r *SQLUserRepository) ClearRefreshTokenID(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET active_refresh_token_id = NULL, updated_at = $1 WHERE user_id = $2`,
		r.now(), userID)
	if err != nil {
		return storeError("clear refresh token", err)
	}
	return nil
}
