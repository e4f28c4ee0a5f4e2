// Package recaptcha checks reCAPTCHA v3 tokens with Google's siteverify API.
package recaptcha

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

const (
	DefaultVerifyURL = "https://www.google.com/recaptcha/api/siteverify"
	DefaultAction    = "login"
	DefaultMinScore  = 0.5
)

var (
	ErrMissingToken  = errors.New("recaptcha token is required")
	ErrSecretMissing = errors.New("recaptcha secret key is not configured")
	ErrRejected      = errors.New("recaptcha verification failed")
	ErrUnavailable   = errors.New("recaptcha siteverify unavailable")
)

type Config struct {
	SecretKey string
	VerifyURL string
	MinScore  float64
}

type Result struct {
	Success bool    `json:"success"`
	Score   float64 `json:"score"`
}

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	Score      float64  `json:"score"`
	Action     string   `json:"action"`
	Hostname   string   `json:"hostname"`
	ErrorCodes []string `json:"error-codes"`
}

type Verifier struct {
	cfg    Config
	client *http.Client
}

func NewVerifier(cfg Config) *Verifier {
	if cfg.VerifyURL == "" {
		cfg.VerifyURL = DefaultVerifyURL
	}
	if cfg.MinScore <= 0 {
		cfg.MinScore = DefaultMinScore
	}
	return &Verifier{cfg: cfg, client: &http.Client{Timeout: 5 * time.Second}}
}

func (v *Verifier) Enabled() bool {
	return v != nil && v.cfg.SecretKey != ""
}

func (v *Verifier) Verify(ctx context.Context, token, action string) (Result, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Result{}, ErrMissingToken
	}
	if v.cfg.SecretKey == "" {
		return Result{}, ErrSecretMissing
	}
	if action == "" {
		action = DefaultAction
	}

	form := url.Values{}
	form.Set("secret", v.cfg.SecretKey)
	form.Set("response", token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.cfg.VerifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	var body siteverifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !body.Success || body.Action != action || body.Score < v.cfg.MinScore {
		return Result{Success: false, Score: body.Score}, ErrRejected
	}
	return Result{Success: true, Score: body.Score}, nil
}
