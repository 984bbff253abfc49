package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/aryan0dhankhar/tenantauth/internal/domain"
	"github.com/aryan0dhankhar/tenantauth/internal/handler"
	"github.com/aryan0dhankhar/tenantauth/internal/security/middleware"
	"github.com/aryan0dhankhar/tenantauth/internal/service"
)

// state is what the CLI remembers between invocations
type state struct {
	APIKey       string `json:"apiKey,omitempty"`
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

type client struct {
	baseURL string
	http    *http.Client
	dir     string
	state   state
}

func newClient(baseURL, dir string) (*client, error) {
	c := &client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		dir:     dir,
	}
	data, err := os.ReadFile(c.statePath())
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &c.state); err != nil {
		return nil, fmt.Errorf("corrupt state file %s: %w", c.statePath(), err)
	}
	return c, nil
}

func (c *client) statePath() string {
	return filepath.Join(c.dir, "state.json")
}

func (c *client) save() error {
	if err := os.MkdirAll(c.dir, 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c.state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.statePath(), data, 0o600)
}

type requestOpt func(*http.Request)

func withAPIKey(key string) requestOpt {
	return func(r *http.Request) { r.Header.Set(middleware.APIKeyHeader, key) }
}

func withBearer(token string) requestOpt {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withRefreshCookie(token string) requestOpt {
	return func(r *http.Request) {
		if token != "" {
			r.AddCookie(&http.Cookie{Name: handler.RefreshCookieName, Value: token})
		}
	}
}

// do sends body as JSON and decodes a 2xx response into out. Other
// statuses become errors carrying the server's message.
func (c *client) do(method, path string, body, out any, opts ...requestOpt) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e handler.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&e) != nil || e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return resp, fmt.Errorf("%s (HTTP %d)", e.Error, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp, nil
}

func (c *client) requireAPIKey() error {
	if c.state.APIKey == "" {
		return errors.New("no API key saved; pass -api-key or run company login")
	}
	return nil
}

func (c *client) registerCompany(name, email, password, plan string) (*handler.RegisterResponse, error) {
	var res handler.RegisterResponse
	in := service.RegisterTenantInput{Name: name, Email: email, Password: password, Plan: domain.Plan(plan)}
	if _, err := c.do(http.MethodPost, "/company/register", in, &res); err != nil {
		return nil, err
	}
	c.state = state{APIKey: res.APIKey}
	return &res, c.save()
}

// companyCommand runs the endpoints that take only company credentials
func (c *client) companyCommand(cmd, email, password string) error {
	creds := service.CompanyCredentials{Email: email, Password: password}
	switch cmd {
	case "login":
		var res handler.CompanyLoginResponse
		if _, err := c.do(http.MethodPost, "/company/login", creds, &res); err != nil {
			return err
		}
		if res.APIKey == nil {
			fmt.Printf("✓ Logged in (company %s); API key is revoked\n", res.CompanyID)
			return nil
		}
		c.state.APIKey = *res.APIKey
		fmt.Printf("✓ Logged in (company %s)\n  apiKey: %s\n", res.CompanyID, *res.APIKey)
	case "rotate-key":
		var res handler.APIKeyResponse
		if _, err := c.do(http.MethodPost, "/company/rotate-key", creds, &res); err != nil {
			return err
		}
		c.state.APIKey = res.APIKey
		fmt.Printf("✓ API key rotated\n  apiKey: %s\n", res.APIKey)
	case "revoke-key":
		if _, err := c.do(http.MethodPost, "/company/revoke-key", creds, nil); err != nil {
			return err
		}
		c.state.APIKey = ""
		fmt.Println("✓ API key revoked")
	case "delete":
		if _, err := c.do(http.MethodDelete, "/company/delete", creds, nil); err != nil {
			return err
		}
		c.state = state{}
		fmt.Println("✓ Company deleted")
	}
	return c.save()
}

func (c *client) changePlan(email, password, plan string) error {
	body := handler.ChangePlanRequest{
		CompanyCredentials: service.CompanyCredentials{Email: email, Password: password},
		Plan:               domain.Plan(plan),
	}
	_, err := c.do(http.MethodPost, "/company/plan", body, nil)
	return err
}

func (c *client) companyProfile(email, companyID string) (*service.TenantProfile, error) {
	q := url.Values{}
	if email != "" {
		q.Set("email", email)
	}
	if companyID != "" {
		q.Set("companyId", companyID)
	}
	var p service.TenantProfile
	if _, err := c.do(http.MethodGet, "/company/profile?"+q.Encode(), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *client) signup(email, username, password string) error {
	if err := c.requireAPIKey(); err != nil {
		return err
	}
	in := service.CreateUserInput{Email: email, Username: username, Password: password}
	if _, err := c.do(http.MethodPost, "/user/signup", in, nil, withAPIKey(c.state.APIKey)); err != nil {
		return err
	}
	return c.save()
}

func (c *client) signin(email, password string) error {
	if err := c.requireAPIKey(); err != nil {
		return err
	}
	var pair service.TokenPair
	resp, err := c.do(http.MethodPost, "/user/signin", service.SigninInput{Email: email, Password: password}, &pair, withAPIKey(c.state.APIKey))
	if err != nil {
		return err
	}
	c.storeSession(resp, pair.AccessToken)
	return c.save()
}

func (c *client) refresh() error {
	if err := c.requireAPIKey(); err != nil {
		return err
	}
	if c.state.RefreshToken == "" {
		return errors.New("not signed in")
	}
	var pair service.TokenPair
	resp, err := c.do(http.MethodPost, "/user/refresh-token", nil, &pair,
		withAPIKey(c.state.APIKey), withRefreshCookie(c.state.RefreshToken))
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusForbidden {
			c.state.AccessToken, c.state.RefreshToken = "", ""
			_ = c.save()
		}
		return err
	}
	c.storeSession(resp, pair.AccessToken)
	return c.save()
}

func (c *client) logout() error {
	if err := c.requireAPIKey(); err != nil {
		return err
	}
	_, err := c.do(http.MethodPost, "/user/logout", nil, nil,
		withAPIKey(c.state.APIKey), withRefreshCookie(c.state.RefreshToken))
	if err != nil {
		return err
	}
	c.state.AccessToken, c.state.RefreshToken = "", ""
	return c.save()
}

func (c *client) me() (*domain.User, error) {
	var res handler.UserResponse
	if _, err := c.do(http.MethodGet, "/user/me", nil, &res, withBearer(c.state.AccessToken)); err != nil {
		return nil, err
	}
	return res.User, nil
}

func (c *client) listUsers() ([]*domain.User, error) {
	var res handler.UsersResponse
	if _, err := c.do(http.MethodGet, "/user/list", nil, &res, withBearer(c.state.AccessToken)); err != nil {
		return nil, err
	}
	return res.Users, nil
}

// storeSession keeps the access token and the refresh cookie of resp
func (c *client) storeSession(resp *http.Response, accessToken string) {
	c.state.AccessToken = accessToken
	for _, ck := range resp.Cookies() {
		if ck.Name == handler.RefreshCookieName {
			c.state.RefreshToken = ck.Value
		}
	}
}
