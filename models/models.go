package models

import (
	"time"
)

const (
	PlanFree       = "FREE"
	PlanBasic      = "BASIC"
	PlanPro        = "PRO"
	PlanEnterprise = "ENTERPRISE"
)

const (
	StatusInactive = "INACTIVE"
	StatusActive   = "ACTIVE"
	StatusCanceled = "CANCELED"
)

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Subscription is the single billing row per user. Stripe reference
// columns stay empty until the user goes through checkout.
type Subscription struct {
	ID                   string     `json:"id"`
	UserID               string     `json:"user_id"`
	Plan                 string     `json:"plan"`
	Status               string     `json:"status"`
	StripeCustomerID     string     `json:"-"`
	StripeSubscriptionID string     `json:"-"`
	StripePriceID        string     `json:"-"`
	CurrentPeriodEnd     *time.Time `json:"current_period_end,omitempty"`
	GenerationsUsed      int        `json:"generations_used"`
	UsagePeriodStart     time.Time  `json:"usage_period_start"`
}

type Color struct {
	Name        string `json:"name"`
	PantoneCode string `json:"pantoneCode"`
	Hex         string `json:"hex"`
	Usage       string `json:"usage"`
	Description string `json:"description"`
}

type Palette struct {
	PaletteName string  `json:"paletteName"`
	Description string  `json:"description"`
	Colors      []Color `json:"colors"`
}

type PaletteImage struct {
	URL             string `json:"url"`
	Alt             string `json:"alt"`
	Photographer    string `json:"photographer"`
	PhotographerURL string `json:"photographerUrl"`
	Source          string `json:"source"`
}
