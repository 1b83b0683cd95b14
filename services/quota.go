package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"palettestudio/models"
)

var ErrQuotaExceeded = errors.New("monthly generation quota exceeded")

const (
	FreeMonthlyLimit  = 5
	BasicMonthlyLimit = 100
	ProMonthlyLimit   = 1000
)

// monthlyLimit returns the generation allowance for a plan, or -1 for
// unlimited.
func monthlyLimit(plan string) int {
	switch plan {
	case models.PlanBasic:
		return BasicMonthlyLimit
	case models.PlanPro:
		return ProMonthlyLimit
	case models.PlanEnterprise:
		return -1
	default:
		return FreeMonthlyLimit
	}
}

func monthStartUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// QuotaService tracks per-user generation usage on the subscription row.
// The counter lives server-side; the client is never trusted with it.
type QuotaService struct {
	db *sql.DB
}

func NewQuotaService(db *sql.DB) *QuotaService {
	return &QuotaService{db: db}
}

// Reserve consumes one generation from the user's monthly allowance,
// resetting the counter when a new month has started. It runs in a
// serializable transaction so concurrent requests cannot overspend.
func (q *QuotaService) Reserve(ctx context.Context, userID string) error {
	tx, err := q.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var plan string
	var used int
	var periodStart time.Time

	err = tx.QueryRowContext(ctx, `
		SELECT plan, generations_used, usage_period_start
		FROM subscriptions
		WHERE user_id = $1
		FOR UPDATE
	`, userID).Scan(&plan, &used, &periodStart)

	now := time.Now()
	currentMonth := monthStartUTC(now)

	if errors.Is(err, sql.ErrNoRows) {
		// Implicit free tier: provision the row and count this use. The
		// row is ACTIVE because a user without a row already counts as
		// FREE/ACTIVE; materializing it must not change their access.
		_, err = tx.ExecContext(ctx, `
			INSERT INTO subscriptions (user_id, plan, status, generations_used, usage_period_start)
			VALUES ($1, $2, $3, 1, $4)
		`, userID, models.PlanFree, models.StatusActive, currentMonth)
		if err != nil {
			return err
		}
		return tx.Commit()
	}
	if err != nil {
		return err
	}

	if periodStart.Before(currentMonth) {
		used = 0
		periodStart = currentMonth
	}

	limit := monthlyLimit(plan)
	if limit >= 0 && used+1 > limit {
		return ErrQuotaExceeded
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE subscriptions
		SET generations_used = $1, usage_period_start = $2, updated_at = now()
		WHERE user_id = $3
	`, used+1, periodStart, userID)
	if err != nil {
		return err
	}
	return tx.Commit()
}
