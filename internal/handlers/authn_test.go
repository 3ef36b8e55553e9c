package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/zarya-platform/zarya-backend/libs/auth"
)

const testSecret = "test-secret"

func signedToken(t *testing.T, sub, merchantID, role string) string {
	t.Helper()
	now := time.Now()
	token, err := auth.SignHS256(auth.Claims{
		Sub:        sub,
		MerchantID: merchantID,
		Role:       role,
		Iat:        now.Unix(),
		Exp:        now.Add(time.Hour).Unix(),
	}, testSecret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	return token
}

func TestRequireAuthRejectsMissingAndBadTokens(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler should not run")
	})
	h := RequireAuth(next, testSecret)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no header: status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token: status = %d, want 401", rec.Code)
	}
}

func TestRequireAuthStoresIdentity(t *testing.T) {
	var got Identity
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = identityFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	h := RequireAuth(next, testSecret)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "user-1", "merchant-1", RoleMerchant))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got.UserID != "user-1" || got.MerchantID != "merchant-1" || got.Role != RoleMerchant {
		t.Fatalf("identity = %+v", got)
	}
}

func TestRequireRole(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := RequireAuth(RequireRole(next, RoleAdmin), testSecret)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "user-1", "merchant-1", RoleMerchant))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("merchant on admin route: status = %d, want 403", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "admin-1", "", RoleAdmin))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin on admin route: status = %d, want 200", rec.Code)
	}
}

func TestCanAccessMerchant(t *testing.T) {
	admin := Identity{UserID: "a1", Role: RoleAdmin}
	owner := Identity{UserID: "m1", MerchantID: "m1", Role: RoleMerchant}
	other := Identity{UserID: "m2", MerchantID: "m2", Role: RoleMerchant}

	if !canAccessMerchant(admin, "m1") {
		t.Fatal("admin should access any merchant")
	}
	if !canAccessMerchant(owner, "m1") {
		t.Fatal("merchant should access own resources")
	}
	if canAccessMerchant(other, "m1") {
		t.Fatal("merchant should not access another merchant")
	}
}

func TestMerchantIDFromPublicID(t *testing.T) {
	cases := []struct {
		publicID string
		want     string
	}{
		{"merchant_profiles/m-42/avatar", "m-42"},
		{"zarya/merchant_profiles/m-42/gallery/img1", "m-42"},
		{"merchant_profiles", ""},
		{"other_folder/m-42/avatar", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := merchantIDFromPublicID(tc.publicID); got != tc.want {
			t.Fatalf("merchantIDFromPublicID(%q) = %q, want %q", tc.publicID, got, tc.want)
		}
	}
}
