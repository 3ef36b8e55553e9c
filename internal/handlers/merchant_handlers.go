package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/zarya-platform/zarya-backend/internal/media"
	"github.com/zarya-platform/zarya-backend/internal/storage"
)

type MerchantHandler struct {
	merchants *storage.MerchantsRepository
	images    *media.Store
	logger    *slog.Logger
}

func NewMerchantHandler(merchants *storage.MerchantsRepository, images *media.Store, logger *slog.Logger) *MerchantHandler {
	return &MerchantHandler{merchants: merchants, images: images, logger: logger}
}

// List is admin-only; pagination via limit/offset query params.
func (h *MerchantHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	merchants, err := h.merchants.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("merchant list failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list merchants")
		return
	}
	views := make([]map[string]any, 0, len(merchants))
	for _, m := range merchants {
		views = append(views, merchantView(m))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *MerchantHandler) Get(w http.ResponseWriter, r *http.Request) {
	merchantID := r.PathValue("id")
	id, _ := identityFrom(r.Context())
	if !canAccessMerchant(id, merchantID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	merchant, err := h.merchants.GetMerchant(r.Context(), merchantID)
	if err != nil {
		writeError(w, http.StatusNotFound, "merchant not found")
		return
	}
	writeJSON(w, http.StatusOK, merchantView(merchant))
}

func (h *MerchantHandler) Update(w http.ResponseWriter, r *http.Request) {
	merchantID := r.PathValue("id")
	id, _ := identityFrom(r.Context())
	if !canAccessMerchant(id, merchantID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	var req struct {
		BusinessName string `json:"business_name"`
		OwnerName    string `json:"owner_name"`
		Phone        string `json:"phone"`
		Category     string `json:"category"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	merchant, err := h.merchants.GetMerchant(r.Context(), merchantID)
	if err != nil {
		writeError(w, http.StatusNotFound, "merchant not found")
		return
	}
	if v := strings.TrimSpace(req.BusinessName); v != "" {
		merchant.BusinessName = v
	}
	if v := strings.TrimSpace(req.OwnerName); v != "" {
		merchant.OwnerName = v
	}
	if v := strings.TrimSpace(req.Phone); v != "" {
		merchant.Phone = v
	}
	if v := strings.TrimSpace(req.Category); v != "" {
		merchant.Category = v
	}
	if err := h.merchants.UpdateProfile(r.Context(), merchant); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update merchant")
		return
	}
	writeJSON(w, http.StatusOK, merchantView(merchant))
}

// SetStatus is the admin activation switch.
func (h *MerchantHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	merchantID := r.PathValue("id")
	var req struct {
		IsActive *bool `json:"is_active"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.IsActive == nil {
		writeError(w, http.StatusBadRequest, "is_active is required")
		return
	}
	if err := h.merchants.SetActive(r.Context(), merchantID, *req.IsActive, time.Now().UTC()); err != nil {
		if storage.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "merchant not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update status")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RegisterDevice stores an FCM token for push delivery.
func (h *MerchantHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	merchantID := r.PathValue("id")
	id, _ := identityFrom(r.Context())
	if !canAccessMerchant(id, merchantID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	var req struct {
		Token string `json:"token"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Token = strings.TrimSpace(req.Token)
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}
	if err := h.merchants.AddFCMToken(r.Context(), merchantID, req.Token); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to register device")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteImage removes the asset from Cloudinary and the URL from the profile.
func (h *MerchantHandler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	merchantID := r.PathValue("id")
	id, _ := identityFrom(r.Context())
	if !canAccessMerchant(id, merchantID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	var req struct {
		PublicID string `json:"public_id"`
		URL      string `json:"url"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.PublicID == "" || req.URL == "" {
		writeError(w, http.StatusBadRequest, "public_id and url are required")
		return
	}

	if h.images != nil {
		if err := h.images.Destroy(r.Context(), req.PublicID); err != nil {
			h.logger.Error("cloudinary destroy failed", "merchant_id", merchantID, "public_id", req.PublicID, "err", err)
			writeError(w, http.StatusBadGateway, "failed to remove image from storage")
			return
		}
	}
	if err := h.merchants.RemoveImageURL(r.Context(), merchantID, req.URL); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update image list")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete removes a merchant account entirely; admin only.
func (h *MerchantHandler) Delete(w http.ResponseWriter, r *http.Request) {
	merchantID := r.PathValue("id")
	if err := h.merchants.Delete(r.Context(), merchantID); err != nil {
		if storage.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "merchant not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete merchant")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
