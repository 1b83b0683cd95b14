package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	SessionCookie = "palettestudio_session"

	sessionLifetime = 30 * 24 * time.Hour
	refreshAfter    = 24 * time.Hour
)

// SessionManager signs and verifies the opaque session tokens carried in
// the Authorization header or the session cookie.
type SessionManager struct {
	secret []byte
}

func NewSessionManager(secret string) *SessionManager {
	return &SessionManager{secret: []byte(secret)}
}

// Issue creates a session token for the given user, valid for 30 days.
func (m *SessionManager) Issue(userID, email string) (string, error) {
	return m.issueAt(userID, email, time.Now())
}

func (m *SessionManager) issueAt(userID, email string, now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"email":   email,
		"iat":     now.Unix(),
		"exp":     now.Add(sessionLifetime).Unix(),
	})
	return token.SignedString(m.secret)
}

// SetCookie attaches the session token as an httpOnly cookie.
func (m *SessionManager) SetCookie(c *gin.Context, token string) {
	c.SetCookie(SessionCookie, token, int(sessionLifetime.Seconds()), "/", "", false, true)
}

type sessionClaims struct {
	UserID   string
	Email    string
	IssuedAt time.Time
}

func (m *SessionManager) parse(tokenString string) (sessionClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return sessionClaims{}, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return sessionClaims{}, fmt.Errorf("invalid token claims")
	}

	userID, _ := claims["user_id"].(string)
	email, _ := claims["email"].(string)
	if userID == "" {
		return sessionClaims{}, fmt.Errorf("token missing user id")
	}

	var issuedAt time.Time
	if iat, ok := claims["iat"].(float64); ok {
		issuedAt = time.Unix(int64(iat), 0)
	}

	return sessionClaims{UserID: userID, Email: email, IssuedAt: issuedAt}, nil
}

// AuthRequired gates every route outside the public allow-list. Tokens in
// active use for more than 24 hours are re-signed so the 30-day lifetime
// slides forward, matching the session refresh window.
func AuthRequired(m *SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := ""

		authHeader := c.GetHeader("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
		}

		if tokenString == "" {
			cookie, err := c.Cookie(SessionCookie)
			if err == nil {
				tokenString = cookie
			}
		}

		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		claims, err := m.parse(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		if !claims.IssuedAt.IsZero() && time.Since(claims.IssuedAt) > refreshAfter {
			if refreshed, err := m.Issue(claims.UserID, claims.Email); err == nil {
				m.SetCookie(c, refreshed)
			}
		}

		c.Set("userID", claims.UserID)
		c.Set("userEmail", claims.Email)
		c.Next()
	}
}
