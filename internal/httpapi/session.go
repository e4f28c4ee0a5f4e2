package httpapi

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"photobox/internal/identity"
	"photobox/internal/metrics"
	"photobox/internal/recaptcha"
)

const ssoSecretHeader = "X-SSO-Secret"

type loginRequest struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	RecaptchaToken string `json:"recaptcha_token"`
}

type signupRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	PhoneNumber string `json:"phoneNumber"`
	Name        string `json:"name"`
}

type ssoRequest struct {
	Provider string `json:"provider"`
	Subject  string `json:"subject"`
	Email    string `json:"email"`
	Name     string `json:"name"`
}

type selectBoothRequest struct {
	BoothID string `json:"booth_id"`
}

func (d *Dashboard) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if err := d.checkCaptcha(r, req.RecaptchaToken); err != nil {
		metrics.LoginAttempts.WithLabelValues("password", "captcha_rejected").Inc()
		writeServiceError(w, r, err)
		return
	}
	result, err := d.Identity.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		metrics.LoginAttempts.WithLabelValues("password", outcome(err)).Inc()
		writeServiceError(w, r, err)
		return
	}
	metrics.LoginAttempts.WithLabelValues("password", "success").Inc()
	setLoggedUser(r.Context(), result.User.ID)
	writeJSON(w, http.StatusOK, result)
}

// checkCaptcha verifies the login token when a secret is configured. Without
// RequireCaptcha a missing token is let through.
func (d *Dashboard) checkCaptcha(r *http.Request, token string) error {
	if d.Captcha == nil || !d.Captcha.Enabled() {
		return nil
	}
	if strings.TrimSpace(token) == "" && !d.Config.RequireCaptcha {
		return nil
	}
	_, err := d.Captcha.Verify(r.Context(), token, recaptcha.DefaultAction)
	return err
}

func (d *Dashboard) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	result, err := d.Identity.Signup(r.Context(), identity.SignupInput{
		Email:       req.Email,
		Password:    req.Password,
		PhoneNumber: req.PhoneNumber,
		Name:        req.Name,
	})
	if err != nil {
		metrics.LoginAttempts.WithLabelValues("signup", outcome(err)).Inc()
		writeServiceError(w, r, err)
		return
	}
	metrics.LoginAttempts.WithLabelValues("signup", "success").Inc()
	setLoggedUser(r.Context(), result.User.ID)
	writeJSON(w, http.StatusCreated, result)
}

// handleSSO trusts identities forwarded by the SSO gateway, which proves
// itself with the shared secret header.
func (d *Dashboard) handleSSO(w http.ResponseWriter, r *http.Request) {
	if d.Config.SSOSecret == "" {
		writeError(w, http.StatusPreconditionFailed, "configuration_missing", "sso is not configured")
		return
	}
	given := r.Header.Get(ssoSecretHeader)
	if subtle.ConstantTimeCompare([]byte(given), []byte(d.Config.SSOSecret)) != 1 {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid sso secret")
		return
	}
	var req ssoRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	result, err := d.Identity.SSOLogin(r.Context(), identity.SSOInput{
		Provider: req.Provider,
		Subject:  req.Subject,
		Email:    req.Email,
		Name:     req.Name,
	})
	if err != nil {
		metrics.LoginAttempts.WithLabelValues("sso", outcome(err)).Inc()
		writeServiceError(w, r, err)
		return
	}
	metrics.LoginAttempts.WithLabelValues("sso", "success").Inc()
	setLoggedUser(r.Context(), result.User.ID)
	writeJSON(w, http.StatusOK, result)
}

func outcome(err error) string {
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, identity.ErrEmailTaken):
		return "conflict"
	default:
		return "error"
	}
}

func (d *Dashboard) handleCheck(w http.ResponseWriter, r *http.Request) {
	sessionID := sessionIDFromRequest(r)
	authenticated := false
	if sessionID != "" {
		_, err := d.Identity.Session(r.Context(), sessionID)
		authenticated = err == nil
	}
	writeJSON(w, http.StatusOK, map[string]bool{"authenticated": authenticated})
}

func (d *Dashboard) handleLogout(w http.ResponseWriter, r *http.Request) {
	p, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	if err := d.Identity.Logout(r.Context(), p.SessionID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (d *Dashboard) handleMe(w http.ResponseWriter, r *http.Request) {
	p, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, p.Session.Snapshot)
}

func (d *Dashboard) handlePermissions(w http.ResponseWriter, r *http.Request) {
	p, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"role": p.Role})
}

func (d *Dashboard) handleGetSessionBooth(w http.ResponseWriter, r *http.Request) {
	p, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, selectBoothRequest{BoothID: p.Session.SelectedBooth})
}

func (d *Dashboard) handleSelectBooth(w http.ResponseWriter, r *http.Request) {
	p, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	var req selectBoothRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.BoothID = strings.TrimSpace(req.BoothID)
	if req.BoothID == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "booth_id is required")
		return
	}
	session, err := d.Identity.SelectBooth(r.Context(), p.SessionID, req.BoothID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, selectBoothRequest{BoothID: session.SelectedBooth})
}
