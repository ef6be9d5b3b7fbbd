// Package middleware holds the transport middleware: bearer-token auth
// and per-user rate limiting.
package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// UserIDContextKey is where BearerAuth stores the authenticated user ID
// on the echo context.
const UserIDContextKey = "user_id"

// BearerAuth verifies the HMAC-signed bearer token and exposes its `sub`
// claim as the user identity. Identity is issued elsewhere; this server
// only verifies. Requests without a valid token never reach a handler.
func BearerAuth(secret string) echo.MiddlewareFunc {
	key := []byte(secret)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID, err := verifyBearer(key, c.Request().Header.Get("Authorization"))
			if err != nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"code":    "UNAUTHORIZED",
					"message": err.Error(),
				})
			}
			c.Set(UserIDContextKey, userID)
			return next(c)
		}
	}
}

func verifyBearer(key []byte, header string) (string, error) {
	if len(key) == 0 {
		return "", fmt.Errorf("auth secret not configured")
	}
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return "", fmt.Errorf("missing bearer token")
	}

	parsed, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid token")
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return "", fmt.Errorf("invalid token claims")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", fmt.Errorf("token carries no subject")
	}
	return sub, nil
}
