package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"photobox/internal/account"
	"photobox/internal/authz"
	"photobox/internal/identity"
	"photobox/internal/models"
	"photobox/internal/resource"
	"photobox/internal/revenue"
	"photobox/internal/store"
	"photobox/internal/store/memory"
	"photobox/internal/xendit"
)

type fakeIdentity struct {
	sessions map[string]identity.Session
	loginFn  func(ctx context.Context, email, password string) (identity.LoginResult, error)
}

func (f *fakeIdentity) Session(ctx context.Context, sessionID string) (identity.Session, error) {
	session, ok := f.sessions[sessionID]
	if !ok {
		return identity.Session{}, identity.ErrSessionNotFound
	}
	return session, nil
}

func (f *fakeIdentity) Login(ctx context.Context, email, password string) (identity.LoginResult, error) {
	if f.loginFn == nil {
		return identity.LoginResult{}, identity.ErrInvalidCredentials
	}
	return f.loginFn(ctx, email, password)
}

func (f *fakeIdentity) Signup(ctx context.Context, in identity.SignupInput) (identity.LoginResult, error) {
	return identity.LoginResult{}, identity.ErrEmailTaken
}

func (f *fakeIdentity) SSOLogin(ctx context.Context, in identity.SSOInput) (identity.LoginResult, error) {
	return identity.LoginResult{SessionID: "sso-session", User: identity.Snapshot{ID: "sso-user"}}, nil
}

func (f *fakeIdentity) Logout(ctx context.Context, sessionID string) error {
	delete(f.sessions, sessionID)
	return nil
}

func (f *fakeIdentity) SelectBooth(ctx context.Context, sessionID, boothID string) (identity.Session, error) {
	session, ok := f.sessions[sessionID]
	if !ok {
		return identity.Session{}, identity.ErrSessionNotFound
	}
	session.SelectedBooth = boothID
	f.sessions[sessionID] = session
	return session, nil
}

type fakeRevenue struct {
	invoices []models.Invoice
	err      error
}

func (f fakeRevenue) ListInvoices(ctx context.Context, ownerID string, filter xendit.Filter) ([]models.Invoice, error) {
	return f.invoices, f.err
}

func (f fakeRevenue) SumRevenue(ctx context.Context, ownerID string) (models.Revenue, error) {
	if f.err != nil {
		return models.Revenue{}, f.err
	}
	return revenue.Summarize(f.invoices), nil
}

type testEnv struct {
	store     *memory.Store
	identity  *fakeIdentity
	dashboard *Dashboard
	handler   http.Handler
}

func newTestEnv(t *testing.T, rev Revenue) *testEnv {
	t.Helper()
	st := memory.NewStore()
	enforcer, err := authz.NewEnforcer()
	if err != nil {
		t.Fatalf("enforcer: %v", err)
	}
	ident := &fakeIdentity{sessions: map[string]identity.Session{
		"client-session": {ID: "client-session", UserID: "u1", Snapshot: identity.Snapshot{ID: "u1", Role: models.RoleClient}},
		"admin-session":  {ID: "admin-session", UserID: "a1", Snapshot: identity.Snapshot{ID: "a1", Role: models.RoleAdmin}},
	}}
	if rev == nil {
		rev = fakeRevenue{}
	}
	d := &Dashboard{
		Identity:    ident,
		Booths:      resource.NewBooths(st),
		Vouchers:    resource.NewVouchers(st),
		Backgrounds: resource.NewBackgrounds(st),
		Revenue:     rev,
		Accounts:    account.NewService(st, nil),
		Authz:       enforcer,
		Config:      DashboardConfig{RateLimit: RateLimitConfig{IPPerMinute: 6000, IPBurst: 1000, OwnerPerMinute: 6000, OwnerBurst: 1000}},
	}
	return &testEnv{store: st, identity: ident, dashboard: d, handler: d.Routes()}
}

func (e *testEnv) do(t *testing.T, method, path, session string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if session != "" {
		req.Header.Set("Authorization", "Bearer "+session)
	}
	resp := httptest.NewRecorder()
	e.handler.ServeHTTP(resp, req)
	return resp
}

func errorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var payload errorResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error body %q: %v", resp.Body.String(), err)
	}
	return payload.Error.Code
}

func TestLoginSuccess(t *testing.T) {
	env := newTestEnv(t, nil)
	env.identity.loginFn = func(ctx context.Context, email, password string) (identity.LoginResult, error) {
		return identity.LoginResult{SessionID: "s1", ExpiresAt: time.Now().Add(time.Hour), RedirectTo: "/", User: identity.Snapshot{ID: "u1", Email: email}}, nil
	}
	resp := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ana@example.com", "password": "secret"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var result identity.LoginResult
	if err := json.Unmarshal(resp.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.SessionID != "s1" || result.RedirectTo != "/" {
		t.Fatalf("unexpected result %#v", result)
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	env := newTestEnv(t, nil)
	resp := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ana@example.com", "password": "wrong"})
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}
}

func TestLoginRejectsUnknownFields(t *testing.T) {
	env := newTestEnv(t, nil)
	resp := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "a@b.c", "tenant": "x"})
	if resp.Code != http.StatusBadRequest || errorCode(t, resp) != "invalid_json" {
		t.Fatalf("expected invalid_json 400, got %d %s", resp.Code, resp.Body.String())
	}
}

func TestSignupConflict(t *testing.T) {
	env := newTestEnv(t, nil)
	resp := env.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{"email": "ana@example.com", "password": "secret1", "phoneNumber": "0812"})
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
}

func TestSSORequiresSharedSecret(t *testing.T) {
	env := newTestEnv(t, nil)
	resp := env.do(t, http.MethodPost, "/api/auth/sso", "", map[string]string{"provider": "google", "subject": "123"})
	if resp.Code != http.StatusPreconditionFailed {
		t.Fatalf("expected status 412 without a configured secret, got %d", resp.Code)
	}
}

func TestCheckAndMe(t *testing.T) {
	env := newTestEnv(t, nil)
	resp := env.do(t, http.MethodGet, "/api/auth/check", "", nil)
	if resp.Code != http.StatusOK || !bytes.Contains(resp.Body.Bytes(), []byte(`"authenticated":false`)) {
		t.Fatalf("unexpected check response %d %s", resp.Code, resp.Body.String())
	}
	resp = env.do(t, http.MethodGet, "/api/auth/me", "", nil)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}
	resp = env.do(t, http.MethodGet, "/api/auth/me", "client-session", nil)
	if resp.Code != http.StatusOK || !bytes.Contains(resp.Body.Bytes(), []byte(`"id":"u1"`)) {
		t.Fatalf("unexpected me response %d %s", resp.Code, resp.Body.String())
	}
	resp = env.do(t, http.MethodPost, "/api/auth/logout", "client-session", nil)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", resp.Code)
	}
	resp = env.do(t, http.MethodGet, "/api/booths", "client-session", nil)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 after logout, got %d", resp.Code)
	}
}

func TestBoothAndVoucherRoutes(t *testing.T) {
	env := newTestEnv(t, nil)
	resp := env.do(t, http.MethodPost, "/api/booths", "client-session", map[string]any{"id": "b1", "name": "Lobby"})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d %s", resp.Code, resp.Body.String())
	}
	resp = env.do(t, http.MethodGet, "/api/booths", "client-session", nil)
	var list resource.List
	if err := json.Unmarshal(resp.Body.Bytes(), &list); err != nil || list.Total != 1 {
		t.Fatalf("unexpected booth list %s", resp.Body.String())
	}

	resp = env.do(t, http.MethodPost, "/api/booths/b1/vouchers", "client-session", map[string]any{"code": " promo10 ", "discount": 10})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d %s", resp.Code, resp.Body.String())
	}
	resp = env.do(t, http.MethodPost, "/api/booths/b1/vouchers", "client-session", map[string]any{"code": "PROMO10", "discount": 5})
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
	resp = env.do(t, http.MethodPost, "/api/booths/b1/vouchers", "client-session", map[string]any{"code": "NEG", "discount": -1})
	if resp.Code != http.StatusUnprocessableEntity || errorCode(t, resp) != "validation_error" {
		t.Fatalf("expected validation_error 422, got %d %s", resp.Code, resp.Body.String())
	}
	resp = env.do(t, http.MethodGet, "/api/booths/b1/vouchers/promo10", "client-session", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	resp = env.do(t, http.MethodPatch, "/api/booths/b1/vouchers/MISSING", "client-session", map[string]any{"discount": 1})
	if resp.Code != http.StatusNotFound || errorCode(t, resp) != "not_found" {
		t.Fatalf("expected not_found 404, got %d %s", resp.Code, resp.Body.String())
	}
	resp = env.do(t, http.MethodPut, "/api/booths/b1/vouchers/NEW", "client-session", map[string]any{"discount": 1})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200 for upsert, got %d", resp.Code)
	}

	resp = env.do(t, http.MethodDelete, "/api/booths/b1", "client-session", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	docs, err := env.store.ListGroup(context.Background(), "vouchers", "", 10)
	if err != nil || len(docs) != 0 {
		t.Fatalf("expected vouchers to be removed with the booth, got %d %v", len(docs), err)
	}
}

func TestBackgroundRoutes(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodPost, "/api/booths", "client-session", map[string]any{"id": "b1", "name": "Lobby"})

	resp := env.do(t, http.MethodGet, "/api/booths/b1/backgrounds", "client-session", nil)
	var list resource.List
	if err := json.Unmarshal(resp.Body.Bytes(), &list); err != nil || list.Total != len(resource.Slots) {
		t.Fatalf("expected every slot, got %s", resp.Body.String())
	}
	resp = env.do(t, http.MethodPut, "/api/booths/b1/backgrounds/lobby", "client-session", map[string]any{"url": "x"})
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422 for unknown slot, got %d", resp.Code)
	}
}

func TestNestedRoutesRequireExistingBooth(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodPost, "/api/booths", "client-session", map[string]any{"id": "b1", "name": "Lobby"})

	tests := []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodPost, "/api/booths/b2/vouchers", map[string]any{"code": "SAVE"}},
		{http.MethodPut, "/api/booths/b2/vouchers/SAVE", map[string]any{"discount": 1}},
		{http.MethodGet, "/api/booths/b2/vouchers", nil},
		{http.MethodPut, "/api/booths/b2/backgrounds/home", map[string]any{"url": "x"}},
		{http.MethodGet, "/api/booths/b2/backgrounds", nil},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			resp := env.do(t, tt.method, tt.path, "client-session", tt.body)
			if resp.Code != http.StatusNotFound || errorCode(t, resp) != "not_found" {
				t.Fatalf("expected not_found 404, got %d %s", resp.Code, resp.Body.String())
			}
		})
	}

	docs, err := env.store.ListGroup(context.Background(), "vouchers", "", 10)
	if err != nil || len(docs) != 0 {
		t.Fatalf("expected no vouchers under a missing booth, got %d %v", len(docs), err)
	}
	resp := env.do(t, http.MethodPost, "/api/booths/b1/vouchers", "client-session", map[string]any{"code": "SAVE"})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d %s", resp.Code, resp.Body.String())
	}
}

func TestSelectedBoothShorthand(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodPost, "/api/booths", "client-session", map[string]any{"id": "b1", "name": "Lobby"})

	resp := env.do(t, http.MethodGet, "/api/vouchers", "client-session", nil)
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422 without a selected booth, got %d", resp.Code)
	}
	resp = env.do(t, http.MethodPut, "/api/session/booth", "client-session", map[string]string{"booth_id": "b1"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	resp = env.do(t, http.MethodPost, "/api/vouchers", "client-session", map[string]any{"code": "SAVE"})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d %s", resp.Code, resp.Body.String())
	}
	resp = env.do(t, http.MethodGet, "/api/booths/b1/vouchers/SAVE", "client-session", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected the voucher under the selected booth, got %d", resp.Code)
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	env := newTestEnv(t, nil)
	resp := env.do(t, http.MethodGet, "/api/admin/users", "client-session", nil)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", resp.Code)
	}
	resp = env.do(t, http.MethodGet, "/api/admin/users", "admin-session", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	resp = env.do(t, http.MethodGet, "/api/booths", "admin-session", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected admin to inherit client routes, got %d", resp.Code)
	}
}

func TestRevenueErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "missing key", err: revenue.ErrConfigurationMissing, status: http.StatusPreconditionFailed, code: "configuration_missing"},
		{name: "gateway", err: &xendit.ExternalServiceError{StatusCode: 500, Body: "boom"}, status: http.StatusBadGateway, code: "external_service_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, fakeRevenue{err: tc.err})
			resp := env.do(t, http.MethodGet, "/api/revenue", "client-session", nil)
			if resp.Code != tc.status || errorCode(t, resp) != tc.code {
				t.Fatalf("expected %d %s, got %d %s", tc.status, tc.code, resp.Code, resp.Body.String())
			}
		})
	}
}

func TestTransactionsFilters(t *testing.T) {
	at := func(raw string) *time.Time {
		v, _ := time.Parse(time.RFC3339, raw)
		return &v
	}
	invoices := []models.Invoice{
		{ID: "i1", Status: models.InvoicePaid, Amount: 10000, PaidAt: at("2024-03-01T10:00:00+07:00")},
		{ID: "i2", Status: models.InvoicePaid, Amount: 5000, PaidAt: at("2024-03-02T23:30:00+07:00")},
		{ID: "i3", Status: models.InvoiceExpired, Amount: 7000, Created: *at("2024-03-02T08:00:00+07:00")},
	}
	env := newTestEnv(t, fakeRevenue{invoices: invoices})

	resp := env.do(t, http.MethodGet, "/api/transactions?from=2024-03-02&to=2024-03-02", "client-session", nil)
	var body struct {
		Data  []models.Invoice `json:"data"`
		Total int              `json:"total"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil || body.Total != 2 {
		t.Fatalf("expected 2 invoices, got %s", resp.Body.String())
	}
	resp = env.do(t, http.MethodGet, "/api/transactions?status=paid", "client-session", nil)
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil || body.Total != 2 {
		t.Fatalf("expected 2 paid invoices, got %s", resp.Body.String())
	}
	resp = env.do(t, http.MethodGet, "/api/transactions?status=foo", "client-session", nil)
	if resp.Code != http.StatusUnprocessableEntity || errorCode(t, resp) != "validation_error" {
		t.Fatalf("expected status 422 for an unknown status, got %d %s", resp.Code, resp.Body.String())
	}
	resp = env.do(t, http.MethodGet, "/api/transactions?from=03/02/2024", "client-session", nil)
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422 for a malformed date, got %d", resp.Code)
	}
	resp = env.do(t, http.MethodGet, "/api/transactions/report.csv", "client-session", nil)
	if resp.Code != http.StatusOK || resp.Header().Get("Content-Type") != "text/csv; charset=utf-8" {
		t.Fatalf("unexpected csv response %d %s", resp.Code, resp.Header().Get("Content-Type"))
	}
	resp = env.do(t, http.MethodGet, "/api/revenue/daily", "client-session", nil)
	if resp.Code != http.StatusOK || !bytes.Contains(resp.Body.Bytes(), []byte(`"2024-03-02"`)) {
		t.Fatalf("unexpected daily response %d %s", resp.Code, resp.Body.String())
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{store.ErrNotFound, http.StatusNotFound},
		{resource.ErrVoucherExists, http.StatusConflict},
		{resource.ErrNoBoothSelected, http.StatusUnprocessableEntity},
		{identity.ErrBoothNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: %q", store.ErrInvalidField, "a.b"), http.StatusUnprocessableEntity},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if status, _ := classify(tc.err); status != tc.status {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.status, status)
		}
	}
}
