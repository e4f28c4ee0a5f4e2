package models

import "time"

const (
	RoleClient     = "client"
	RoleAdmin      = "admin"
	RolePhotobooth = "photobooth"
)

type User struct {
	UserID            string `json:"id,omitempty"`
	Email             string `json:"email"`
	Name              string `json:"name"`
	Role              string `json:"role"`
	ProfilePictureURL string `json:"profilePictureUrl"`
	PhoneNumber       string `json:"phoneNumber"`
	CreatedAt         string `json:"createdAt,omitempty"`
}

type Credential struct {
	UserID       string `json:"user_id"`
	PasswordHash string `json:"password_hash"`
	CreatedAt    string `json:"created_at"`
}

type Identity struct {
	UserID string `json:"user_id"`
}

type Client struct {
	ClientID     string `json:"id,omitempty"`
	Name         string `json:"name"`
	XenditAPIKey string `json:"xendit_api_key"`
	CreatedAt    string `json:"created_at"`
}

type BoothSettings struct {
	CallbackURL       string  `json:"callback_url,omitempty"`
	DSLRBoothAPI      string  `json:"dslrbooth_api,omitempty"`
	DSLRBoothPassword string  `json:"dslrbooth_password,omitempty"`
	Price             float64 `json:"price,omitempty"`
}

type Booth struct {
	BoothID   string        `json:"id,omitempty"`
	Name      string        `json:"name"`
	CreatedAt string        `json:"created_at"`
	Settings  BoothSettings `json:"settings"`
	BoothCode string        `json:"boothCode,omitempty"`
}

type Voucher struct {
	Code       string  `json:"id,omitempty"`
	Discount   float64 `json:"discount"`
	ExpiryDate *string `json:"expiry_date"`
	IsActive   bool    `json:"is_active"`
	CreatedAt  string  `json:"created_at"`
}

type Background struct {
	Slot      string `json:"id,omitempty"`
	URL       string `json:"url"`
	IsActive  bool   `json:"is_active"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

const (
	InvoicePaid    = "PAID"
	InvoiceExpired = "EXPIRED"
	InvoiceFailed  = "FAILED"
	InvoicePending = "PENDING"
)

type Invoice struct {
	ID          string     `json:"id"`
	ExternalID  string     `json:"external_id"`
	Amount      float64    `json:"amount"`
	Currency    string     `json:"currency"`
	Status      string     `json:"status"`
	PayerEmail  string     `json:"payer_email,omitempty"`
	Description string     `json:"description,omitempty"`
	Created     time.Time  `json:"created"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
}

// SettledAt is the time an invoice counts toward a date range.
func (i Invoice) SettledAt() time.Time {
	if i.PaidAt != nil && !i.PaidAt.IsZero() {
		return *i.PaidAt
	}
	return i.Created
}

type UserSummary struct {
	UserID     string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	BoothCount int    `json:"booth_count"`
	CreatedAt  string `json:"createdAt,omitempty"`
}

type Revenue struct {
	Total     float64 `json:"total"`
	Currency  string  `json:"currency"`
	PaidCount int     `json:"paid_count"`
}
