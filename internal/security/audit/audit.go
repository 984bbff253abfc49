package audit

import (
	"context"
	"log/slog"
	"time"
)

// Actions recorded by the service layer
const (
	ActionTenantRegister = "tenant.register"
	ActionTenantLogin    = "tenant.login"
	ActionKeyRotate      = "tenant.rotate_key"
	ActionKeyRevoke      = "tenant.revoke_key"
	ActionTenantDelete   = "tenant.delete"
	ActionPlanChange     = "tenant.change_plan"
	ActionRoleChange     = "user.change_role"
	ActionSignup         = "user.signup"
	ActionSignin         = "user.signin"
	ActionRefresh        = "session.refresh"
	ActionReuseDetected  = "session.reuse_detected"
	ActionLogout         = "session.logout"
	ActionPasswordChange = "user.change_password"
	ActionProfileUpdate  = "user.update_profile"
)

// Outcome values
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusDenied  = "denied"
)

type requestIDKey struct{}

// WithRequestID stores the request ID so audit records can carry it.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext returns the request ID, or "" if none was set.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// Logger writes audit records as structured log lines. A nil *Logger
// discards everything.
type Logger struct {
	logger *slog.Logger
}

func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger.With(slog.String("stream", "audit"))}
}

// LogAction records one security-relevant event. Never pass secrets in details.
func (al *Logger) LogAction(ctx context.Context, tenantID, userID, action, resource, resourceID, status, details string) {
	if al == nil {
		return
	}
	al.logger.LogAttrs(ctx, slog.LevelInfo, "audit",
		slog.String("action", action),
		slog.String("resource", resource),
		slog.String("resource_id", resourceID),
		slog.String("tenant_id", tenantID),
		slog.String("user_id", userID),
		slog.String("status", status),
		slog.String("details", details),
		slog.String("request_id", RequestIDFromContext(ctx)),
		slog.Time("timestamp", time.Now().UTC()),
	)
}

func (al *Logger) LogTenant(ctx context.Context, tenantID, action, status, details string) {
	al.LogAction(ctx, tenantID, "", action, "tenant", tenantID, status, details)
}

func (al *Logger) LogSession(ctx context.Context, tenantID, userID, action, status, details string) {
	al.LogAction(ctx, tenantID, userID, action, "session", userID, status, details)
}

func (al *Logger) LogUser(ctx context.Context, tenantID, userID, action, status, details string) {
	al.LogAction(ctx, tenantID, userID, action, "user", userID, status, details)
}

func (al *Logger) LogDenied(ctx context.Context, tenantID, userID, reason string) {
	al.LogAction(ctx, tenantID, userID, "access_denied", "api", "", StatusDenied, reason)
}
