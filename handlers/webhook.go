package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"palettestudio/config"
	"palettestudio/models"
	"palettestudio/services"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

type WebhookHandler struct {
	db      *sql.DB
	billing services.BillingClient
	prices  config.PriceTable
	secret  string
}

func NewWebhookHandler(db *sql.DB, billing services.BillingClient, prices config.PriceTable, secret string) *WebhookHandler {
	return &WebhookHandler{db: db, billing: billing, prices: prices, secret: secret}
}

// HandleStripe verifies the event signature before touching any state,
// then dispatches on the event kind. Events referencing subscriptions we
// have no row for are ignored, and unrecognized kinds are a no-op; both
// still acknowledge with 200 so Stripe stops redelivering.
func (h *WebhookHandler) HandleStripe(c *gin.Context) {
	const maxBodyBytes = int64(65536)
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		log.Printf("stripe webhook read failed: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
		return
	}

	event, err := webhook.ConstructEventWithOptions(
		body,
		c.GetHeader("Stripe-Signature"),
		h.secret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		log.Printf("stripe webhook signature failed: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid signature"})
		return
	}

	ctx := c.Request.Context()

	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			log.Printf("stripe session unmarshal failed: %v", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session payload"})
			return
		}
		err = h.handleCheckoutCompleted(ctx, &sess)

	case "invoice.payment_succeeded":
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			log.Printf("stripe invoice unmarshal failed: %v", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid invoice payload"})
			return
		}
		err = h.handlePaymentSucceeded(ctx, &inv)

	case "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			log.Printf("stripe subscription unmarshal failed: %v", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid subscription payload"})
			return
		}
		err = h.handleSubscriptionUpdated(ctx, &sub)

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			log.Printf("stripe subscription unmarshal failed: %v", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid subscription payload"})
			return
		}
		err = h.handleSubscriptionDeleted(ctx, &sub)

	default:
		// Intentionally ignore unhandled events.
	}

	if err != nil {
		log.Printf("stripe webhook %s failed: %v", event.Type, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Webhook handler failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// handleCheckoutCompleted attaches the new subscription to the row of the
// user named in the checkout metadata. This is the one event keyed by
// user ID: the row has no subscription reference yet.
func (h *WebhookHandler) handleCheckoutCompleted(ctx context.Context, sess *stripe.CheckoutSession) error {
	userID := sess.Metadata["user_id"]
	if userID == "" || sess.Subscription == nil || sess.Subscription.ID == "" {
		return nil
	}

	sub, err := h.billing.GetSubscription(ctx, sess.Subscription.ID)
	if err != nil {
		return err
	}

	_, err = h.db.ExecContext(ctx, `
		UPDATE subscriptions
		SET stripe_subscription_id = $1,
		    stripe_price_id = $2,
		    current_period_end = $3,
		    status = $4,
		    plan = $5,
		    updated_at = now()
		WHERE user_id = $6
	`, sub.ID, sub.PriceID, sub.CurrentPeriodEnd, models.StatusActive,
		services.PlanFromPriceID(h.prices, sub.PriceID), userID)
	return err
}

func (h *WebhookHandler) handlePaymentSucceeded(ctx context.Context, inv *stripe.Invoice) error {
	if inv.Subscription == nil || inv.Subscription.ID == "" {
		return nil
	}

	sub, err := h.billing.GetSubscription(ctx, inv.Subscription.ID)
	if err != nil {
		return err
	}

	_, err = h.db.ExecContext(ctx, `
		UPDATE subscriptions
		SET current_period_end = $1, status = $2, updated_at = now()
		WHERE stripe_subscription_id = $3
	`, sub.CurrentPeriodEnd, models.StatusActive, sub.ID)
	return err
}

func (h *WebhookHandler) handleSubscriptionUpdated(ctx context.Context, sub *stripe.Subscription) error {
	if sub.ID == "" {
		return nil
	}

	priceID := ""
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		priceID = sub.Items.Data[0].Price.ID
	}

	status := models.StatusInactive
	if sub.Status == stripe.SubscriptionStatusActive {
		status = models.StatusActive
	}

	_, err := h.db.ExecContext(ctx, `
		UPDATE subscriptions
		SET stripe_price_id = $1,
		    current_period_end = $2,
		    status = $3,
		    plan = $4,
		    updated_at = now()
		WHERE stripe_subscription_id = $5
	`, priceID, unixTime(sub.CurrentPeriodEnd), status,
		services.PlanFromPriceID(h.prices, priceID), sub.ID)
	return err
}

func (h *WebhookHandler) handleSubscriptionDeleted(ctx context.Context, sub *stripe.Subscription) error {
	if sub.ID == "" {
		return nil
	}

	_, err := h.db.ExecContext(ctx, `
		UPDATE subscriptions
		SET status = $1, plan = $2, updated_at = now()
		WHERE stripe_subscription_id = $3
	`, models.StatusCanceled, models.PlanFree, sub.ID)
	return err
}

// unixTime converts a provider epoch into a nullable timestamp argument.
func unixTime(sec int64) interface{} {
	if sec == 0 {
		return nil
	}
	return time.Unix(sec, 0).UTC()
}
