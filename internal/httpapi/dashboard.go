package httpapi

import (
	"context"
	"io"
	"net/http"

	"photobox/internal/account"
	"photobox/internal/identity"
	"photobox/internal/models"
	"photobox/internal/recaptcha"
	"photobox/internal/resource"
	"photobox/internal/storage"
	"photobox/internal/xendit"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const dashboardService = "dashboard-service"

type Identity interface {
	SessionLookup
	Login(ctx context.Context, email, password string) (identity.LoginResult, error)
	Signup(ctx context.Context, in identity.SignupInput) (identity.LoginResult, error)
	SSOLogin(ctx context.Context, in identity.SSOInput) (identity.LoginResult, error)
	Logout(ctx context.Context, sessionID string) error
	SelectBooth(ctx context.Context, sessionID, boothID string) (identity.Session, error)
}

type BoothAdapter interface {
	resource.Adapter
	AssignCode(ctx context.Context, scope resource.Scope, id string) (string, error)
}

type Revenue interface {
	ListInvoices(ctx context.Context, ownerID string, filter xendit.Filter) ([]models.Invoice, error)
	SumRevenue(ctx context.Context, ownerID string) (models.Revenue, error)
}

type Accounts interface {
	Get(ctx context.Context, userID string) (models.User, error)
	UpdateProfile(ctx context.Context, userID string, in account.ProfileUpdate) (models.User, error)
	SetProfilePicture(ctx context.Context, userID, url string) (models.User, error)
	SetXenditKey(ctx context.Context, userID, key string) error
	HasXenditKey(ctx context.Context, userID string) (bool, error)
	SetRole(ctx context.Context, userID, role string) (models.User, error)
	ListUsers(ctx context.Context) ([]models.UserSummary, error)
}

type Images interface {
	PutImage(ctx context.Context, prefix string, r io.Reader, maxWidth int) (storage.Object, error)
	Delete(ctx context.Context, url string) error
	MaxBytes() int64
}

type Captcha interface {
	Enabled() bool
	Verify(ctx context.Context, token, action string) (recaptcha.Result, error)
}

type DashboardConfig struct {
	RateLimit      RateLimitConfig
	CORSOrigins    []string
	SSOSecret      string
	RequireCaptcha bool
}

type Dashboard struct {
	Identity    Identity
	Booths      BoothAdapter
	Vouchers    resource.Adapter
	Backgrounds resource.Adapter
	Revenue     Revenue
	Accounts    Accounts
	Images      Images
	Files       http.Handler
	Captcha     Captcha
	Authz       Authorizer
	Config      DashboardConfig
}

func (d *Dashboard) Routes() http.Handler {
	limiter := NewRateLimiter(dashboardService, d.Config.RateLimit)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(LoggingMiddleware(dashboardService))
	r.Use(middleware.Recoverer)
	r.Use(corsHandler(d.Config.CORSOrigins))
	r.Use(limiter.Middleware)

	r.Get("/healthz", handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	if d.Files != nil {
		r.Handle("/files/*", d.Files)
	}

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/login", d.handleLogin)
		r.Post("/signup", d.handleSignup)
		r.Post("/sso", d.handleSSO)
		r.Get("/check", d.handleCheck)
		r.Group(func(r chi.Router) {
			r.Use(SessionAuth(d.Identity))
			r.Post("/logout", d.handleLogout)
			r.Get("/me", d.handleMe)
			r.Get("/permissions", d.handlePermissions)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(SessionAuth(d.Identity))
		r.Use(limiter.OwnerMiddleware)
		r.Use(Authorize(d.Authz))

		r.Get("/api/session/booth", d.handleGetSessionBooth)
		r.Put("/api/session/booth", d.handleSelectBooth)

		r.Route("/api/booths", func(r chi.Router) {
			booths := resourceHandler{adapter: d.Booths, scope: ownerScope, param: "boothID"}
			booths.mount(r)
			r.Post("/{boothID}/code", d.handleAssignCode)
			r.Get("/{boothID}/code.png", d.handleBoothQR)
			r.Route("/{boothID}/vouchers", func(r chi.Router) {
				r.Use(d.requireBooth(routeBoothScope))
			resourceHandler{adapter: d.Vouchers, scope: routeBoothScope, param: "id"}.mount(r)
			})
			r.Route("/{boothID}/backgrounds", func(r chi.Router) {
				d.mountBackgrounds(r, routeBoothScope)
			})
		})
		r.Route("/api/vouchers", func(r chi.Router) {
			r.Use(d.requireBooth(selectedBoothScope))
			resourceHandler{adapter: d.Vouchers, scope: selectedBoothScope, param: "id"}.mount(r)
		})
		r.Route("/api/backgrounds", func(r chi.Router) {
			d.mountBackgrounds(r, selectedBoothScope)
		})

		r.Get("/api/revenue", d.handleRevenue)
		r.Get("/api/revenue/daily", d.handleRevenueDaily)
		r.Get("/api/transactions", d.handleTransactions)
		r.Get("/api/transactions/report.csv", d.handleReportCSV)
		r.Get("/api/transactions/report.pdf", d.handleReportPDF)

		r.Get("/api/account", d.handleGetAccount)
		r.Patch("/api/account", d.handleUpdateAccount)
		r.Post("/api/account/picture", d.handleProfilePicture)
		r.Get("/api/account/xendit-key", d.handleGetXenditKey)
		r.Put("/api/account/xendit-key", d.handleSetXenditKey)

		r.Get("/api/admin/users", d.handleListUsers)
		r.Put("/api/admin/users/{userID}/role", d.handleSetRole)
	})
	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func corsHandler(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Session-ID", "X-Request-ID", "X-SSO-Secret"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	})
}

func mustPrincipal(w http.ResponseWriter, r *http.Request) (Principal, bool) {
	p, ok := principalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return Principal{}, false
	}
	return p, true
}
