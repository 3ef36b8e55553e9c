package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/zarya-platform/zarya-backend/libs/auth"
)

type identityKey struct{}

// Identity is the authenticated caller extracted from the bearer token.
type Identity struct {
	UserID     string
	MerchantID string
	Role       string
}

const (
	RoleMerchant = "merchant"
	RoleAdmin    = "admin"
)

func identityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// RequireAuth verifies the bearer token and stores the caller identity on the
// request context.
func RequireAuth(next http.Handler, jwtSecret string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") || len(strings.TrimSpace(authHeader)) <= len("Bearer ") {
			writeError(w, http.StatusUnauthorized, "missing or invalid Authorization header")
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		claims, err := auth.ParseAndVerifyHS256(token, jwtSecret)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		id := Identity{
			UserID:     claims.Sub,
			MerchantID: claims.MerchantID,
			Role:       claims.Role,
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, id)))
	})
}

func RequireRole(next http.Handler, roles ...string) http.Handler {
	allowed := map[string]struct{}{}
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := identityFrom(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		if _, ok := allowed[id.Role]; !ok {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// canAccessMerchant allows admins everywhere and merchants only on their own
// resources.
func canAccessMerchant(id Identity, merchantID string) bool {
	if id.Role == RoleAdmin {
		return true
	}
	return id.Role == RoleMerchant && id.MerchantID == merchantID
}
