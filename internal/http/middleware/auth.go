// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the caller's identity. With a signing secret configured
// the identity is the subject of an HS256 bearer token; without one it is
// taken from the X-User-ID header or the userId query parameter, which is
// how local development and tests identify users.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// UserIDKey is the Gin context key holding the authenticated user id.
const UserIDKey = "userID"

// HeaderUserID carries the user id when bearer auth is disabled.
const HeaderUserID = "X-User-ID"

type userCtxKey struct{}

// AuthOptions configures Auth.
type AuthOptions struct {
	// Secret enables bearer-token auth when non-empty.
	Secret string
	// UserClaim names the claim holding the user id. Defaults to "sub",
	// falling back to "user_id".
	UserClaim string
}

// Auth attaches the caller's user id to the Gin and request contexts. It
// never rejects anonymous requests; handlers that need a user call
// UserID and answer 401 themselves. An invalid bearer token is rejected.
func Auth(opts AuthOptions) gin.HandlerFunc {
	secret := []byte(opts.Secret)
	claim := opts.UserClaim

	return func(c *gin.Context) {
		var uid string
		if len(secret) > 0 {
			raw, present, err := bearerToken(c.GetHeader("Authorization"))
			if present {
				if err == nil {
					uid, err = subjectFrom(raw, secret, claim)
				}
				if err != nil {
					c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
						"request_id": c.Writer.Header().Get(requestIDHeader),
						"code":       "unauthorized",
						"message":    "invalid or expired token",
					})
					return
				}
			}
		} else {
			uid = strings.TrimSpace(c.GetHeader(HeaderUserID))
			if uid == "" {
				uid = strings.TrimSpace(c.Query("userId"))
			}
		}

		if uid != "" {
			c.Set(UserIDKey, uid)
			c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), userCtxKey{}, uid))
		}
		c.Next()
	}
}

// UserID returns the authenticated user id, if any.
func UserID(c *gin.Context) (string, bool) {
	if v, ok := c.Get(UserIDKey); ok {
		if s, ok := v.(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

// UserIDFromContext is the context.Context counterpart of UserID.
func UserIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(userCtxKey{}).(string)
	return s
}

func bearerToken(header string) (token string, present bool, err error) {
	if header == "" {
		return "", false, nil
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", true, errors.New("invalid authorization header format")
	}
	return parts[1], true, nil
}

func subjectFrom(raw string, secret []byte, claim string) (string, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}

	keys := []string{"sub", "user_id"}
	if claim != "" {
		keys = []string{claim}
	}
	for _, k := range keys {
		if s, ok := claims[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s), nil
		}
	}
	return "", errors.New("token has no user claim")
}
