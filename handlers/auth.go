package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"palettestudio/middleware"
	"palettestudio/models"
	"palettestudio/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
)

const oauthStateCookie = "palettestudio_oauth_state"

// googleUserInfoURL is a var to allow test overrides via httptest.
var googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

type AuthHandler struct {
	db       *sql.DB
	sessions *middleware.SessionManager
	subs     *services.SubscriptionService
	mailer   *services.Mailer
	oauth    *oauth2.Config
}

func NewAuthHandler(db *sql.DB, sessions *middleware.SessionManager, subs *services.SubscriptionService, mailer *services.Mailer, oauth *oauth2.Config) *AuthHandler {
	return &AuthHandler{db: db, sessions: sessions, subs: subs, mailer: mailer, oauth: oauth}
}

type RegisterInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name" binding:"required"`
}

type LoginInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Register creates a user and its FREE/INACTIVE subscription in one
// transaction: either both rows exist afterwards or neither does.
func (h *AuthHandler) Register(c *gin.Context) {
	var input RegisterInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Name, email and password are required"})
		return
	}

	email := strings.ToLower(strings.TrimSpace(input.Email))
	name := strings.TrimSpace(input.Name)

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
		return
	}

	tx, err := h.db.BeginTx(c.Request.Context(), nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Registration failed"})
		return
	}
	defer tx.Rollback()

	var userID string
	err = tx.QueryRowContext(c.Request.Context(),
		`INSERT INTO users (email, name, password_hash) VALUES ($1, $2, $3) RETURNING id`,
		email, nullIfEmpty(name), string(hash),
	).Scan(&userID)
	if err != nil {
		if isUniqueViolation(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Email already in use"})
			return
		}
		log.Printf("user insert failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Registration failed"})
		return
	}

	_, err = tx.ExecContext(c.Request.Context(),
		`INSERT INTO subscriptions (user_id, plan, status) VALUES ($1, $2, $3)`,
		userID, models.PlanFree, models.StatusInactive,
	)
	if err != nil {
		log.Printf("subscription insert failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Registration failed"})
		return
	}

	if err := tx.Commit(); err != nil {
		log.Printf("registration commit failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Registration failed"})
		return
	}

	go h.mailer.SendWelcome(email, name)

	c.JSON(http.StatusCreated, gin.H{"userId": userID})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var input LoginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email and password are required"})
		return
	}

	email := strings.ToLower(strings.TrimSpace(input.Email))

	var userID string
	var passwordHash sql.NullString
	err := h.db.QueryRowContext(c.Request.Context(),
		`SELECT id, password_hash FROM users WHERE email = $1`,
		email,
	).Scan(&userID, &passwordHash)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	// OAuth-only accounts have no password hash.
	if !passwordHash.Valid || passwordHash.String == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash.String), []byte(input.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	token, err := h.sessions.Issue(userID, email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
		return
	}
	h.sessions.SetCookie(c, token)
	c.JSON(http.StatusOK, gin.H{"token": token})
}

type updatePasswordInput struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,min=8"`
	ConfirmPassword string `json:"confirmPassword" binding:"required"`
}

// UpdatePassword changes the caller's password after verifying the
// current one. OAuth-only accounts have no password to change.
func (h *AuthHandler) UpdatePassword(c *gin.Context) {
	userID := c.GetString("userID")

	var input updatePasswordInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "All password fields are required"})
		return
	}
	if input.NewPassword != input.ConfirmPassword {
		c.JSON(http.StatusBadRequest, gin.H{"error": "New passwords do not match"})
		return
	}

	var passwordHash sql.NullString
	err := h.db.QueryRowContext(c.Request.Context(),
		`SELECT password_hash FROM users WHERE id = $1`,
		userID,
	).Scan(&passwordHash)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if !passwordHash.Valid || passwordHash.String == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "This account has no password set"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash.String), []byte(input.CurrentPassword)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Current password is incorrect"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
		return
	}

	_, err = h.db.ExecContext(c.Request.Context(),
		`UPDATE users SET password_hash = $1 WHERE id = $2`,
		string(hash), userID,
	)
	if err != nil {
		log.Printf("password update failed for %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update password"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// AuthError is the landing page for failed OAuth sign-ins.
func (h *AuthHandler) AuthError(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, gin.H{"error": "Sign-in failed. Please try again."})
}

// Me returns the authenticated user's profile and entitlement summary.
func (h *AuthHandler) Me(c *gin.Context) {
	userID := c.GetString("userID")

	var user models.User
	var name sql.NullString
	err := h.db.QueryRowContext(c.Request.Context(),
		`SELECT id, email, name, created_at FROM users WHERE id = $1`,
		userID,
	).Scan(&user.ID, &user.Email, &name, &user.CreatedAt)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	user.Name = name.String

	ent, err := h.subs.GetEntitlement(c.Request.Context(), userID)
	if err != nil {
		log.Printf("entitlement lookup failed for %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load subscription"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":         user,
		"subscription": ent,
	})
}

// GoogleRedirect starts the OAuth code flow with a one-time state cookie.
func (h *AuthHandler) GoogleRedirect(c *gin.Context) {
	if h.oauth == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Google sign-in not enabled"})
		return
	}

	state := uuid.NewString()
	c.SetCookie(oauthStateCookie, state, int((5 * time.Minute).Seconds()), "/", "", false, true)
	c.Redirect(http.StatusFound, h.oauth.AuthCodeURL(state))
}

type googleProfile struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// GoogleCallback finishes the OAuth flow. First sign-in provisions a
// user row (no password hash) and a FREE/INACTIVE subscription.
func (h *AuthHandler) GoogleCallback(c *gin.Context) {
	if h.oauth == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Google sign-in not enabled"})
		return
	}

	cookieState, err := c.Cookie(oauthStateCookie)
	if err != nil || cookieState == "" || c.Query("state") != cookieState {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid OAuth state"})
		return
	}

	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing authorization code"})
		return
	}

	token, err := h.oauth.Exchange(c.Request.Context(), code)
	if err != nil {
		log.Printf("oauth code exchange failed: %v", err)
		c.Redirect(http.StatusFound, "/auth/error")
		return
	}

	profile, err := fetchGoogleProfile(c.Request.Context(), h.oauth, token)
	if err != nil {
		log.Printf("oauth profile fetch failed: %v", err)
		c.Redirect(http.StatusFound, "/auth/error")
		return
	}
	if profile.Email == "" {
		c.Redirect(http.StatusFound, "/auth/error")
		return
	}

	userID, err := h.upsertOAuthUser(c.Request.Context(), profile)
	if err != nil {
		log.Printf("oauth user provisioning failed: %v", err)
		c.Redirect(http.StatusFound, "/auth/error")
		return
	}

	sessionToken, err := h.sessions.Issue(userID, profile.Email)
	if err != nil {
		c.Redirect(http.StatusFound, "/auth/error")
		return
	}
	h.sessions.SetCookie(c, sessionToken)
	c.Redirect(http.StatusFound, "/")
}

func fetchGoogleProfile(ctx context.Context, cfg *oauth2.Config, token *oauth2.Token) (googleProfile, error) {
	resp, err := cfg.Client(ctx, token).Get(googleUserInfoURL)
	if err != nil {
		return googleProfile{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return googleProfile{}, errors.New("userinfo request failed: " + resp.Status)
	}

	var profile googleProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return googleProfile{}, err
	}
	return profile, nil
}

// upsertOAuthUser finds the user by email or creates user + subscription
// together. Existing users may predate the subscription row, so it is
// provisioned lazily too.
func (h *AuthHandler) upsertOAuthUser(ctx context.Context, profile googleProfile) (string, error) {
	email := strings.ToLower(strings.TrimSpace(profile.Email))

	var userID string
	err := h.db.QueryRowContext(ctx, `SELECT id FROM users WHERE email = $1`, email).Scan(&userID)
	if err == nil {
		_, err = h.db.ExecContext(ctx, `
			INSERT INTO subscriptions (user_id, plan, status)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id) DO NOTHING
		`, userID, models.PlanFree, models.StatusInactive)
		return userID, err
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx,
		`INSERT INTO users (email, name) VALUES ($1, $2) RETURNING id`,
		email, nullIfEmpty(strings.TrimSpace(profile.Name)),
	).Scan(&userID)
	if err != nil {
		return "", err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO subscriptions (user_id, plan, status) VALUES ($1, $2, $3)`,
		userID, models.PlanFree, models.StatusInactive,
	)
	if err != nil {
		return "", err
	}

	return userID, tx.Commit()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
