package handler

import (
	"log/slog"
	"net/http"

	"github.com/aryan0dhankhar/tenantauth/internal/domain"
	"github.com/aryan0dhankhar/tenantauth/internal/security/middleware"
	"github.com/aryan0dhankhar/tenantauth/internal/service"
)

// CompanyHandler serves the tenant registry endpoints
type CompanyHandler struct {
	tenants *service.TenantService
	auth    *service.AuthService
	logger  *slog.Logger
}

// NewCompanyHandler creates a new company handler
func NewCompanyHandler(tenants *service.TenantService, authService *service.AuthService, logger *slog.Logger) *CompanyHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CompanyHandler{
		tenants: tenants,
		auth:    authService,
		logger:  logger,
	}
}

// RegisterResponse is returned once per tenant; it is the only response
// besides login and api-key that carries the key.
type RegisterResponse struct {
	APIKey    string `json:"apiKey"`
	CompanyID string `json:"companyId"`
	TenantID  string `json:"tenantId"`
}

// CompanyLoginResponse carries the current key, null when revoked
type CompanyLoginResponse struct {
	APIKey    *string `json:"apiKey"`
	CompanyID string  `json:"companyId"`
}

type APIKeyResponse struct {
	APIKey string `json:"apiKey"`
}

// ChangePlanRequest authenticates the company and names the new plan
type ChangePlanRequest struct {
	service.CompanyCredentials
	Plan domain.Plan `json:"plan"`
}

// Register handles POST /company/register
func (h *CompanyHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterTenantInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	tenant, err := h.tenants.Register(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, RegisterResponse{
		APIKey:    *tenant.APIKey,
		CompanyID: tenant.CompanyID,
		TenantID:  tenant.TenantID,
	})
}

// Login handles POST /company/login
func (h *CompanyHandler) Login(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.authorize(w, r, nil)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, CompanyLoginResponse{APIKey: tenant.APIKey, CompanyID: tenant.CompanyID})
}

// RotateKey handles POST /company/rotate-key
func (h *CompanyHandler) RotateKey(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.authorize(w, r, nil)
	if !ok {
		return
	}
	apiKey, err := h.tenants.RotateAPIKey(r.Context(), tenant.ContactEmail)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, APIKeyResponse{APIKey: apiKey})
}

// RevokeKey handles POST /company/revoke-key
func (h *CompanyHandler) RevokeKey(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.authorize(w, r, nil)
	if !ok {
		return
	}
	if err := h.tenants.RevokeAPIKey(r.Context(), tenant.ContactEmail); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "api key revoked"})
}

// Delete handles DELETE /company/delete
func (h *CompanyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.authorize(w, r, nil)
	if !ok {
		return
	}
	if err := h.tenants.Delete(r.Context(), tenant.ContactEmail); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "company deleted"})
}

// ChangePlan handles POST /company/plan
func (h *CompanyHandler) ChangePlan(w http.ResponseWriter, r *http.Request) {
	var req ChangePlanRequest
	tenant, ok := h.authorize(w, r, &req)
	if !ok {
		return
	}
	if err := h.tenants.ChangePlan(r.Context(), tenant.ContactEmail, req.Plan); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "plan updated"})
}

// Profile handles GET /company/profile?email=...|companyId=...
func (h *CompanyHandler) Profile(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	profile, err := h.tenants.GetProfile(r.Context(), domain.TenantSelector{
		Email:     q.Get("email"),
		CompanyID: q.Get("companyId"),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// APIKey handles POST /company/api-key
func (h *CompanyHandler) APIKey(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.authorize(w, r, nil)
	if !ok {
		return
	}
	view, err := h.tenants.GetAPIKey(r.Context(), domain.TenantSelector{Email: tenant.ContactEmail})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// SetUserRole handles POST /company/users/role
func (h *CompanyHandler) SetUserRole(w http.ResponseWriter, r *http.Request) {
	var req service.SetRoleInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.auth.SetUserRole(r.Context(), r.Header.Get(middleware.APIKeyHeader), req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "role updated"})
}

// authorize decodes the company credentials from the body, into dst when
// the endpoint needs extra fields, and authenticates them. It writes the
// error response itself.
func (h *CompanyHandler) authorize(w http.ResponseWriter, r *http.Request, dst *ChangePlanRequest) (*domain.Tenant, bool) {
	if dst == nil {
		dst = &ChangePlanRequest{}
	}
	if err := decodeJSON(w, r, dst); err != nil {
		writeError(w, r, h.logger, err)
		return nil, false
	}
	tenant, err := h.tenants.Authorize(r.Context(), dst.CompanyCredentials)
	if err != nil {
		writeError(w, r, h.logger, err)
		return nil, false
	}
	return tenant, true
}
