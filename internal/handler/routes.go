package handler

import (
	"log/slog"
	"net/http"

	"github.com/aryan0dhankhar/tenantauth/internal/security/middleware"
)

// Routes groups the handlers and the token verifier guarding the bearer
// endpoints
type Routes struct {
	Company  *CompanyHandler
	User     *UserHandler
	Health   *HealthHandler
	Verifier middleware.AccessVerifier
	Logger   *slog.Logger
}

// Register adds every endpoint to mux. Method-qualified patterns let the
// mux answer 405 for the wrong verb.
func (rt Routes) Register(mux *http.ServeMux) {
	bearer := middleware.BearerAuth(rt.Verifier, rt.Logger)

	mux.HandleFunc("POST /company/register", rt.Company.Register)
	mux.HandleFunc("POST /company/login", rt.Company.Login)
	mux.HandleFunc("POST /company/rotate-key", rt.Company.RotateKey)
	mux.HandleFunc("POST /company/revoke-key", rt.Company.RevokeKey)
	mux.HandleFunc("DELETE /company/delete", rt.Company.Delete)
	mux.HandleFunc("POST /company/plan", rt.Company.ChangePlan)
	mux.HandleFunc("GET /company/profile", rt.Company.Profile)
	mux.HandleFunc("POST /company/api-key", rt.Company.APIKey)
	mux.HandleFunc("POST /company/users/role", rt.Company.SetUserRole)

	mux.HandleFunc("POST /user/signup", rt.User.Signup)
	mux.HandleFunc("POST /user/signin", rt.User.Signin)
	mux.HandleFunc("POST /user/refresh-token", rt.User.RefreshToken)
	mux.HandleFunc("POST /user/logout", rt.User.Logout)
	mux.Handle("GET /user/me", bearer(http.HandlerFunc(rt.User.Me)))
	mux.Handle("PUT /user/profile", bearer(http.HandlerFunc(rt.User.UpdateProfile)))
	mux.Handle("POST /user/change-password", bearer(http.HandlerFunc(rt.User.ChangePassword)))
	mux.Handle("GET /user/list", bearer(http.HandlerFunc(rt.User.List)))

	mux.HandleFunc("GET /healthz", rt.Health.Health)
	mux.HandleFunc("GET /readyz", rt.Health.Ready)
}
