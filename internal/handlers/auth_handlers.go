package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zarya-platform/zarya-backend/internal/model"
	"github.com/zarya-platform/zarya-backend/internal/notify"
	"github.com/zarya-platform/zarya-backend/internal/storage"
	"github.com/zarya-platform/zarya-backend/libs/auth"
)

// AuthHandler covers merchant and admin authentication plus self-service
// profile operations.
type AuthHandler struct {
	merchants  *storage.MerchantsRepository
	admins     *storage.AdminUsersRepository
	dispatcher *notify.Dispatcher
	logger     *slog.Logger
	jwtSecret  string
	tokenTTL   time.Duration
	refreshTTL time.Duration
}

func NewAuthHandler(
	merchants *storage.MerchantsRepository,
	admins *storage.AdminUsersRepository,
	dispatcher *notify.Dispatcher,
	logger *slog.Logger,
	jwtSecret string,
	tokenTTL, refreshTTL time.Duration,
) *AuthHandler {
	if tokenTTL <= 0 {
		tokenTTL = time.Hour
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &AuthHandler{
		merchants:  merchants,
		admins:     admins,
		dispatcher: dispatcher,
		logger:     logger,
		jwtSecret:  jwtSecret,
		tokenTTL:   tokenTTL,
		refreshTTL: refreshTTL,
	}
}

func (h *AuthHandler) issueTokens(sub, merchantID, role string) (accessToken, refreshToken string, err error) {
	now := time.Now().UTC()
	accessToken, err = auth.SignHS256(auth.Claims{
		Sub:        sub,
		MerchantID: merchantID,
		Role:       role,
		Iat:        now.Unix(),
		Exp:        now.Add(h.tokenTTL).Unix(),
	}, h.jwtSecret)
	if err != nil {
		return "", "", err
	}
	refreshToken, err = auth.SignHS256(auth.Claims{
		Sub:        sub,
		MerchantID: merchantID,
		Role:       "refresh:" + role,
		Iat:        now.Unix(),
		Exp:        now.Add(h.refreshTTL).Unix(),
	}, h.jwtSecret)
	return accessToken, refreshToken, err
}

func (h *AuthHandler) RegisterMerchant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BusinessName string `json:"business_name"`
		OwnerName    string `json:"owner_name"`
		Email        string `json:"email"`
		Phone        string `json:"phone"`
		Category     string `json:"category"`
		Password     string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	req.BusinessName = strings.TrimSpace(req.BusinessName)
	req.OwnerName = strings.TrimSpace(req.OwnerName)
	req.Email = strings.TrimSpace(req.Email)
	if req.BusinessName == "" || req.Email == "" || len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "business_name, email and a password of at least 8 characters are required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to process password")
		return
	}
	merchant := model.Merchant{
		ID:           uuid.NewString(),
		BusinessName: req.BusinessName,
		OwnerName:    req.OwnerName,
		Email:        strings.ToLower(req.Email),
		Phone:        strings.TrimSpace(req.Phone),
		Category:     strings.TrimSpace(req.Category),
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := h.merchants.Create(r.Context(), &merchant); err != nil {
		if storage.IsDuplicate(err) {
			writeError(w, http.StatusConflict, "email already registered")
			return
		}
		h.logger.Error("merchant registration failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to register merchant")
		return
	}

	subject, html := notify.WelcomeEmail(merchant)
	if res := h.dispatcher.SendEmail(r.Context(), merchant.Email, subject, html); !res.Success {
		h.logger.Error("welcome email failed", "merchant_id", merchant.ID, "err", res.Error)
	}

	accessToken, refreshToken, err := h.issueTokens(merchant.ID, merchant.ID, RoleMerchant)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue tokens")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"merchant":      merchantView(merchant),
		"access_token":  accessToken,
		"refresh_token": refreshToken,
	})
}

func (h *AuthHandler) LoginMerchant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	merchant, err := h.merchants.GetByEmail(r.Context(), strings.TrimSpace(req.Email))
	if err != nil || !auth.CheckPassword(merchant.PasswordHash, req.Password) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	accessToken, refreshToken, err := h.issueTokens(merchant.ID, merchant.ID, RoleMerchant)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue tokens")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"merchant":      merchantView(merchant),
		"access_token":  accessToken,
		"refresh_token": refreshToken,
	})
}

func (h *AuthHandler) LoginAdmin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	admin, err := h.admins.GetByEmail(r.Context(), strings.TrimSpace(req.Email))
	if err != nil || !auth.CheckPassword(admin.PasswordHash, req.Password) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	accessToken, refreshToken, err := h.issueTokens(admin.ID, "", RoleAdmin)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue tokens")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"admin": map[string]any{
			"id":    admin.ID,
			"email": admin.Email,
			"name":  admin.Name,
		},
		"access_token":  accessToken,
		"refresh_token": refreshToken,
	})
}

// Refresh exchanges a refresh token for a new token pair.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	claims, err := auth.ParseAndVerifyHS256(strings.TrimSpace(req.RefreshToken), h.jwtSecret)
	if err != nil || !strings.HasPrefix(claims.Role, "refresh:") {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	role := strings.TrimPrefix(claims.Role, "refresh:")

	accessToken, refreshToken, err := h.issueTokens(claims.Sub, claims.MerchantID, role)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue tokens")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
	})
}

func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	switch id.Role {
	case RoleMerchant:
		merchant, err := h.merchants.GetMerchant(r.Context(), id.MerchantID)
		if err != nil {
			writeError(w, http.StatusNotFound, "merchant not found")
			return
		}
		writeJSON(w, http.StatusOK, merchantView(merchant))
	case RoleAdmin:
		admin, err := h.admins.GetByID(r.Context(), id.UserID)
		if err != nil {
			writeError(w, http.StatusNotFound, "admin not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"id":    admin.ID,
			"email": admin.Email,
			"name":  admin.Name,
			"role":  admin.Role,
		})
	default:
		writeError(w, http.StatusForbidden, "forbidden")
	}
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	if id.Role != RoleMerchant {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.NewPassword) < 8 {
		writeError(w, http.StatusBadRequest, "new password must be at least 8 characters")
		return
	}

	merchant, err := h.merchants.GetMerchant(r.Context(), id.MerchantID)
	if err != nil {
		writeError(w, http.StatusNotFound, "merchant not found")
		return
	}
	if !auth.CheckPassword(merchant.PasswordHash, req.CurrentPassword) {
		writeError(w, http.StatusUnauthorized, "current password is incorrect")
		return
	}
	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to process password")
		return
	}
	if err := h.merchants.UpdatePassword(r.Context(), merchant.ID, hash); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update password")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func merchantView(m model.Merchant) map[string]any {
	return map[string]any{
		"id":            m.ID,
		"business_name": m.BusinessName,
		"owner_name":    m.OwnerName,
		"email":         m.Email,
		"phone":         m.Phone,
		"category":      m.Category,
		"is_active":     m.IsActive,
		"image_urls":    m.ImageURLs,
		"created_at":    m.CreatedAt,
	}
}
