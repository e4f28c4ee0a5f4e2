package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"photobox/internal/boothtoken"
	"photobox/internal/metrics"
	"photobox/internal/recaptcha"
	"photobox/internal/resource"
	"photobox/internal/revenue"
	"photobox/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const boothService = "booth-service"

var errVoucherInactive = fmt.Errorf("%w: voucher is not active", store.ErrNotFound)

type TokenExchanger interface {
	TokenVerifier
	Exchange(ctx context.Context, code string) (boothtoken.Token, error)
}

type BoothConfig struct {
	RateLimit         RateLimitConfig
	ExchangePerMinute int
	CORSOrigins       []string
}

// BoothAPI is the kiosk-facing surface: code exchange, reCAPTCHA and the
// read-only config a booth needs once it holds a token.
type BoothAPI struct {
	Tokens      TokenExchanger
	Captcha     Captcha
	Booths      resource.Adapter
	Vouchers    resource.Adapter
	Backgrounds resource.Adapter
	Authz       Authorizer
	Config      BoothConfig
	now         func() time.Time
}

type verifyRequest struct {
	Token  string `json:"token"`
	Action string `json:"action"`
}

func (b *BoothAPI) Routes() http.Handler {
	limiter := NewRateLimiter(boothService, b.Config.RateLimit)
	exchangeLimit := b.Config.ExchangePerMinute
	if exchangeLimit <= 0 {
		exchangeLimit = 10
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(LoggingMiddleware(boothService))
	r.Use(middleware.Recoverer)
	r.Use(corsHandler(b.Config.CORSOrigins))
	r.Use(limiter.Middleware)

	r.Get("/healthz", handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.With(httprate.Limit(exchangeLimit, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			metrics.APIRateLimitHits.WithLabelValues(boothService, "exchange").Inc()
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
		}),
	)).Post("/api/booth/token", b.handleExchange)
	r.Post("/api/recaptcha/verify", b.handleVerify)

	r.Group(func(r chi.Router) {
		r.Use(BoothAuth(b.Tokens))
		r.Use(Authorize(b.Authz))
		r.Get("/api/booth/config", b.handleConfig)
		r.Get("/api/booth/vouchers/{code}", b.handleVoucher)
	})
	return r
}

func (b *BoothAPI) handleExchange(w http.ResponseWriter, r *http.Request) {
	token, err := b.exchange(w, r)
	if err != nil {
		metrics.BoothTokenExchanges.WithLabelValues(exchangeOutcome(err)).Inc()
		writeServiceError(w, r, err)
		return
	}
	metrics.BoothTokenExchanges.WithLabelValues("success").Inc()
	writeJSON(w, http.StatusOK, token)
}

// exchange reports every malformed body, including a non-string code, as an
// invalid argument so kiosks see a single error code.
func (b *BoothAPI) exchange(w http.ResponseWriter, r *http.Request) (boothtoken.Token, error) {
	var body map[string]any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&body); err != nil {
		return boothtoken.Token{}, fmt.Errorf("%w: malformed body", boothtoken.ErrInvalidArgument)
	}
	code, ok := body["boothCode"].(string)
	if !ok {
		return boothtoken.Token{}, fmt.Errorf("%w: boothCode must be a string", boothtoken.ErrInvalidArgument)
	}
	return b.Tokens.Exchange(r.Context(), code)
}

func exchangeOutcome(err error) string {
	switch {
	case errors.Is(err, boothtoken.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, boothtoken.ErrBoothNotFound):
		return "not_found"
	default:
		return "error"
	}
}

// handleVerify reports a rejected token as success=false rather than an error.
func (b *BoothAPI) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if b.Captcha == nil || !b.Captcha.Enabled() {
		writeServiceError(w, r, recaptcha.ErrSecretMissing)
		return
	}
	result, err := b.Captcha.Verify(r.Context(), req.Token, req.Action)
	if errors.Is(err, recaptcha.ErrMissingToken) {
		writeError(w, http.StatusBadRequest, "invalid-argument", err.Error())
		return
	}
	if err != nil && !errors.Is(err, recaptcha.ErrRejected) {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (b *BoothAPI) handleConfig(w http.ResponseWriter, r *http.Request) {
	p, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	scope := resource.Scope{ClientID: p.UserID, BoothID: p.BoothID}
	booth, err := b.Booths.GetOne(r.Context(), resource.Scope{ClientID: p.UserID}, p.BoothID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	backgrounds, err := b.Backgrounds.GetList(r.Context(), scope)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"booth":       booth,
		"backgrounds": backgrounds.Data,
	})
}

func (b *BoothAPI) handleVoucher(w http.ResponseWriter, r *http.Request) {
	p, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	scope := resource.Scope{ClientID: p.UserID, BoothID: p.BoothID}
	voucher, err := b.Vouchers.GetOne(r.Context(), scope, chi.URLParam(r, "code"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !b.redeemable(voucher) {
		writeServiceError(w, r, errVoucherInactive)
		return
	}
	writeJSON(w, http.StatusOK, voucher)
}

// redeemable is false for inactive vouchers and for vouchers past the end of
// their expiry day in Jakarta time.
func (b *BoothAPI) redeemable(voucher resource.Record) bool {
	if active, ok := voucher["is_active"].(bool); ok && !active {
		return false
	}
	raw, _ := voucher["expiry_date"].(string)
	if raw == "" {
		return true
	}
	now := time.Now()
	if b.now != nil {
		now = b.now()
	}
	if at, err := time.Parse(time.RFC3339, raw); err == nil {
		return now.Before(at)
	}
	if day, err := revenue.ParseDay(raw); err == nil {
		return now.Before(day.AddDate(0, 0, 1))
	}
	return true
}
