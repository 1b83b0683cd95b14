package services

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"palettestudio/config"
	"palettestudio/models"
)

var (
	ErrNotFound        = errors.New("subscription not found")
	ErrAlreadyCanceled = errors.New("subscription already canceled")
)

// Entitlement is the answer to "may this user use the gated feature".
type Entitlement struct {
	Plan      string     `json:"plan"`
	Status    string     `json:"status"`
	PeriodEnd *time.Time `json:"periodEnd,omitempty"`
}

type SubscriptionService struct {
	db      *sql.DB
	billing BillingClient
	prices  config.PriceTable
}

func NewSubscriptionService(db *sql.DB, billing BillingClient, prices config.PriceTable) *SubscriptionService {
	return &SubscriptionService{db: db, billing: billing, prices: prices}
}

// PlanFromPriceID maps a Stripe price ID to a paid plan by exact match
// against the configured price table, defaulting to FREE.
func PlanFromPriceID(prices config.PriceTable, priceID string) string {
	switch priceID {
	case prices.Basic:
		return models.PlanBasic
	case prices.Pro:
		return models.PlanPro
	case prices.Enterprise:
		return models.PlanEnterprise
	default:
		return models.PlanFree
	}
}

// GetEntitlement reads the user's subscription row. A user without a row
// is on the implicit free tier and counts as ACTIVE.
func (s *SubscriptionService) GetEntitlement(ctx context.Context, userID string) (Entitlement, error) {
	var ent Entitlement
	var periodEnd sql.NullTime

	err := s.db.QueryRowContext(ctx,
		`SELECT plan, status, current_period_end FROM subscriptions WHERE user_id = $1`,
		userID,
	).Scan(&ent.Plan, &ent.Status, &periodEnd)

	if errors.Is(err, sql.ErrNoRows) {
		return Entitlement{Plan: models.PlanFree, Status: models.StatusActive}, nil
	}
	if err != nil {
		return Entitlement{}, err
	}

	if periodEnd.Valid {
		t := periodEnd.Time
		ent.PeriodEnd = &t
	}
	return ent, nil
}

// IsEntitled reports whether the subscription permits use of the
// generation feature: status ACTIVE and period end absent or in the future.
func (s *SubscriptionService) IsEntitled(ctx context.Context, userID string) (bool, error) {
	ent, err := s.GetEntitlement(ctx, userID)
	if err != nil {
		return false, err
	}
	if ent.Status != models.StatusActive {
		return false, nil
	}
	return ent.PeriodEnd == nil || ent.PeriodEnd.After(time.Now()), nil
}

// Cancel ends the user's subscription. The provider-side cancel is best
// effort: a Stripe failure is logged and the local row still transitions,
// since a later webhook reconciles the provider state anyway.
func (s *SubscriptionService) Cancel(ctx context.Context, userID string) error {
	var id, status string
	var stripeSubID sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT id, status, stripe_subscription_id FROM subscriptions WHERE user_id = $1`,
		userID,
	).Scan(&id, &status, &stripeSubID)

	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if status == models.StatusCanceled {
		return ErrAlreadyCanceled
	}

	if stripeSubID.Valid && stripeSubID.String != "" {
		if err := s.billing.CancelSubscription(ctx, stripeSubID.String); err != nil {
			log.Printf("stripe cancellation failed for subscription %s: %v", stripeSubID.String, err)
		}
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE subscriptions SET status = $1, plan = $2, updated_at = now() WHERE id = $3`,
		models.StatusCanceled, models.PlanFree, id,
	)
	return err
}

// EnsureCustomer returns the user's Stripe customer ID, creating the
// customer and upserting the subscription row on first checkout.
func (s *SubscriptionService) EnsureCustomer(ctx context.Context, userID, email string) (string, error) {
	var customerID sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT stripe_customer_id FROM subscriptions WHERE user_id = $1`,
		userID,
	).Scan(&customerID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}
	if customerID.Valid && customerID.String != "" {
		return customerID.String, nil
	}

	created, err := s.billing.CreateCustomer(ctx, email, userID)
	if err != nil {
		return "", err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (user_id, stripe_customer_id, plan, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET stripe_customer_id = EXCLUDED.stripe_customer_id, updated_at = now()
	`, userID, created, models.PlanFree, models.StatusInactive)
	if err != nil {
		return "", err
	}
	return created, nil
}
