package handlers

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"palettestudio/middleware"
	"palettestudio/models"
	"palettestudio/services"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"
)

func newAuthRouter(db *sql.DB) *gin.Engine {
	sessions := middleware.NewSessionManager("test-secret")
	subs := services.NewSubscriptionService(db, &fakeBilling{}, webhookTestPrices)
	h := NewAuthHandler(db, sessions, subs, services.NewMailer("", ""), nil)

	router := gin.New()
	router.POST("/api/auth/register", h.Register)
	router.POST("/api/auth/login", h.Login)
	router.GET("/auth/error", h.AuthError)
	router.POST("/api/user/update-password", func(c *gin.Context) {
		c.Set("userID", "user-1")
		h.UpdatePassword(c)
	})
	return router
}

func postJSON(router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestRegisterCreatesUserAndSubscription(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock error = %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO users").
		WithArgs("dana@example.com", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("user-1"))
	mock.ExpectExec("INSERT INTO subscriptions").
		WithArgs("user-1", models.PlanFree, models.StatusInactive).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	router := newAuthRouter(db)
	resp := postJSON(router, "/api/auth/register",
		`{"email":"Dana@Example.com","password":"correct horse","name":"Dana"}`)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var out struct {
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("response decode error = %v", err)
	}
	if out.UserID != "user-1" {
		t.Fatalf("userId = %q, want user-1", out.UserID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet DB expectations: %v", err)
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock error = %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO users").
		WithArgs("dana@example.com", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	router := newAuthRouter(db)
	resp := postJSON(router, "/api/auth/register",
		`{"email":"dana@example.com","password":"correct horse","name":"Dana"}`)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "Email already in use") {
		t.Fatalf("unexpected body: %s", resp.Body.String())
	}
}

func TestRegisterValidatesInput(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock error = %v", err)
	}
	defer db.Close()

	router := newAuthRouter(db)

	for _, body := range []string{
		`{}`,
		`{"email":"not-an-email","password":"correct horse","name":"Dana"}`,
		`{"email":"dana@example.com","password":"short","name":"Dana"}`,
		`{"email":"dana@example.com","password":"correct horse"}`,
	} {
		resp := postJSON(router, "/api/auth/register", body)
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %d", body, resp.Code)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("invalid input must not touch the database: %v", err)
	}
}

func TestLoginIssuesSession(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock error = %v", err)
	}
	defer db.Close()

	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt error = %v", err)
	}
	mock.ExpectQuery("SELECT id, password_hash FROM users").
		WithArgs("dana@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "password_hash"}).AddRow("user-1", string(hash)))

	router := newAuthRouter(db)
	resp := postJSON(router, "/api/auth/login",
		`{"email":"dana@example.com","password":"correct horse"}`)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("response decode error = %v", err)
	}
	if out.Token == "" {
		t.Fatal("expected a session token")
	}

	cookieSet := false
	for _, cookie := range resp.Result().Cookies() {
		if cookie.Name == middleware.SessionCookie && cookie.Value != "" {
			cookieSet = true
		}
	}
	if !cookieSet {
		t.Fatal("expected a session cookie")
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock error = %v", err)
	}
	defer db.Close()

	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt error = %v", err)
	}
	mock.ExpectQuery("SELECT id, password_hash FROM users").
		WithArgs("dana@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "password_hash"}).AddRow("user-1", string(hash)))

	router := newAuthRouter(db)
	resp := postJSON(router, "/api/auth/login",
		`{"email":"dana@example.com","password":"wrong horse"}`)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestLoginRejectsUnknownEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock error = %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT id, password_hash FROM users").
		WithArgs("ghost@example.com").
		WillReturnError(sql.ErrNoRows)

	router := newAuthRouter(db)
	resp := postJSON(router, "/api/auth/login",
		`{"email":"ghost@example.com","password":"whatever-pass"}`)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestLoginRejectsOAuthOnlyAccount(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock error = %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT id, password_hash FROM users").
		WithArgs("dana@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "password_hash"}).AddRow("user-1", nil))

	router := newAuthRouter(db)
	resp := postJSON(router, "/api/auth/login",
		`{"email":"dana@example.com","password":"correct horse"}`)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestUpdatePasswordSucceeds(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock error = %v", err)
	}
	defer db.Close()

	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt error = %v", err)
	}
	mock.ExpectQuery("SELECT password_hash FROM users").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"password_hash"}).AddRow(string(hash)))
	mock.ExpectExec("UPDATE users SET password_hash").
		WithArgs(sqlmock.AnyArg(), "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	router := newAuthRouter(db)
	resp := postJSON(router, "/api/user/update-password",
		`{"currentPassword":"correct horse","newPassword":"battery staple","confirmPassword":"battery staple"}`)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), "success") {
		t.Fatalf("unexpected body: %s", resp.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet DB expectations: %v", err)
	}
}

func TestUpdatePasswordRejectsWrongCurrentPassword(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock error = %v", err)
	}
	defer db.Close()

	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt error = %v", err)
	}
	mock.ExpectQuery("SELECT password_hash FROM users").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"password_hash"}).AddRow(string(hash)))

	router := newAuthRouter(db)
	resp := postJSON(router, "/api/user/update-password",
		`{"currentPassword":"wrong horse","newPassword":"battery staple","confirmPassword":"battery staple"}`)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("hash must not be updated: %v", err)
	}
}

func TestUpdatePasswordRejectsMismatchedConfirmation(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock error = %v", err)
	}
	defer db.Close()

	router := newAuthRouter(db)
	resp := postJSON(router, "/api/user/update-password",
		`{"currentPassword":"correct horse","newPassword":"battery staple","confirmPassword":"battery stable"}`)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mismatched confirmation must not touch the database: %v", err)
	}
}

func TestUpdatePasswordValidatesInput(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock error = %v", err)
	}
	defer db.Close()

	router := newAuthRouter(db)
	for _, body := range []string{
		`{}`,
		`{"currentPassword":"correct horse","confirmPassword":"battery staple"}`,
		`{"currentPassword":"correct horse","newPassword":"short","confirmPassword":"short"}`,
	} {
		resp := postJSON(router, "/api/user/update-password", body)
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %d", body, resp.Code)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("invalid input must not touch the database: %v", err)
	}
}

func TestUpdatePasswordRejectsOAuthOnlyAccount(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock error = %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT password_hash FROM users").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"password_hash"}).AddRow(nil))

	router := newAuthRouter(db)
	resp := postJSON(router, "/api/user/update-password",
		`{"currentPassword":"correct horse","newPassword":"battery staple","confirmPassword":"battery staple"}`)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("hash must not be updated: %v", err)
	}
}

func TestAuthErrorPage(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock error = %v", err)
	}
	defer db.Close()

	router := newAuthRouter(db)
	req := httptest.NewRequest(http.MethodGet, "/auth/error", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "Sign-in failed") {
		t.Fatalf("unexpected body: %s", resp.Body.String())
	}
}
