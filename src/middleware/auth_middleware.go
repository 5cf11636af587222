package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const (
	orgIDKey      contextKey = "org_id"
	userIDKey     contextKey = "user_id"
	superAdminKey contextKey = "super_admin"
)

// Identity is what a verified token says about the caller.
type Identity struct {
	OrgID      int64
	UserID     int64
	SuperAdmin bool
}

// ParseTokenFromRequest extracts and validates the bearer token, returning claims if valid
func ParseTokenFromRequest(r *http.Request, secret []byte) (jwt.MapClaims, error) {
	tokenString := r.Header.Get("Authorization")
	if tokenString == "" {
		return nil, fmt.Errorf("missing token")
	}

	tokenString = strings.TrimPrefix(tokenString, "Bearer ")

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("invalid signing method")
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return claims, nil
}

func identityFromClaims(claims jwt.MapClaims) (Identity, error) {
	orgID, ok := claims["org_id"].(float64)
	if !ok || orgID <= 0 {
		return Identity{}, fmt.Errorf("invalid token claims")
	}
	userID, _ := claims["user_id"].(float64)
	superAdmin, _ := claims["super_admin"].(bool)
	return Identity{OrgID: int64(orgID), UserID: int64(userID), SuperAdmin: superAdmin}, nil
}

// JWTAuthMiddleware puts the caller's organization and user into the request
// context. Every tenant-scoped handler reads the organization from there.
func JWTAuthMiddleware(secret string) func(http.Handler) http.Handler {
	key := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := ParseTokenFromRequest(r, key)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}
			id, err := identityFromClaims(claims)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func SuperAdminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		superAdmin, ok := r.Context().Value(superAdminKey).(bool)
		if !ok || !superAdmin {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	ctx = context.WithValue(ctx, orgIDKey, id.OrgID)
	ctx = context.WithValue(ctx, userIDKey, id.UserID)
	return context.WithValue(ctx, superAdminKey, id.SuperAdmin)
}

// OrgID returns the authenticated organization, or 0 outside an authenticated request.
func OrgID(ctx context.Context) int64 {
	id, _ := ctx.Value(orgIDKey).(int64)
	return id
}

func UserID(ctx context.Context) int64 {
	id, _ := ctx.Value(userIDKey).(int64)
	return id
}
