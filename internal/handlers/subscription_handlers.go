package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zarya-platform/zarya-backend/internal/model"
	"github.com/zarya-platform/zarya-backend/internal/storage"
)

// Plan durations; renewals extend from the later of now and the current
// expiry so early renewal never loses paid time.
var planDurations = map[string]time.Duration{
	"monthly": 30 * 24 * time.Hour,
	"yearly":  365 * 24 * time.Hour,
}

type SubscriptionHandler struct {
	subscriptions *storage.SubscriptionsRepository
	logger        *slog.Logger
}

func NewSubscriptionHandler(subscriptions *storage.SubscriptionsRepository, logger *slog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptions: subscriptions, logger: logger}
}

func subscriptionView(s model.Subscription) map[string]any {
	return map[string]any{
		"id":           s.ID,
		"merchant_id":  s.MerchantID,
		"plan":         s.Plan,
		"amount":       s.Amount,
		"currency":     s.Currency,
		"status":       s.Status,
		"start_date":   s.StartDate,
		"expiry_date":  s.ExpiryDate,
		"expired_at":   s.ExpiredAt,
		"cancelled_at": s.CancelledAt,
		"created_at":   s.CreatedAt,
	}
}

func (h *SubscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MerchantID string  `json:"merchant_id"`
		Plan       string  `json:"plan"`
		Amount     float64 `json:"amount"`
		Currency   string  `json:"currency"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	id, _ := identityFrom(r.Context())
	if !canAccessMerchant(id, req.MerchantID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	duration, ok := planDurations[strings.ToLower(req.Plan)]
	if !ok {
		writeError(w, http.StatusBadRequest, "plan must be monthly or yearly")
		return
	}
	if req.Amount < 0 {
		writeError(w, http.StatusBadRequest, "amount must not be negative")
		return
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}

	now := time.Now().UTC()
	sub := model.Subscription{
		ID:         uuid.NewString(),
		MerchantID: req.MerchantID,
		Plan:       strings.ToLower(req.Plan),
		Amount:     req.Amount,
		Currency:   strings.ToUpper(req.Currency),
		Status:     model.SubscriptionActive,
		StartDate:  now,
		ExpiryDate: now.Add(duration),
	}
	if err := h.subscriptions.Create(r.Context(), &sub); err != nil {
		h.logger.Error("subscription create failed", "merchant_id", req.MerchantID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to create subscription")
		return
	}
	writeJSON(w, http.StatusCreated, subscriptionView(sub))
}

func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sub, err := h.subscriptions.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "subscription not found")
		return
	}
	id, _ := identityFrom(r.Context())
	if !canAccessMerchant(id, sub.MerchantID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	writeJSON(w, http.StatusOK, subscriptionView(sub))
}

func (h *SubscriptionHandler) ListByMerchant(w http.ResponseWriter, r *http.Request) {
	merchantID := r.PathValue("id")
	id, _ := identityFrom(r.Context())
	if !canAccessMerchant(id, merchantID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	if r.URL.Query().Get("active") == "true" {
		sub, err := h.subscriptions.GetActiveByMerchant(r.Context(), merchantID)
		if storage.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "no active subscription")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load subscription")
			return
		}
		writeJSON(w, http.StatusOK, subscriptionView(sub))
		return
	}
	subs, err := h.subscriptions.ListByMerchant(r.Context(), merchantID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}
	views := make([]map[string]any, 0, len(subs))
	for _, s := range subs {
		views = append(views, subscriptionView(s))
	}
	writeJSON(w, http.StatusOK, views)
}

// Renew extends the subscription by its plan duration and reactivates the
// merchant if an expiry had deactivated them.
func (h *SubscriptionHandler) Renew(w http.ResponseWriter, r *http.Request) {
	sub, err := h.subscriptions.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "subscription not found")
		return
	}
	id, _ := identityFrom(r.Context())
	if !canAccessMerchant(id, sub.MerchantID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	duration, ok := planDurations[sub.Plan]
	if !ok {
		duration = planDurations["monthly"]
	}
	base := time.Now().UTC()
	if sub.ExpiryDate.After(base) {
		base = sub.ExpiryDate
	}

	renewed, err := h.subscriptions.Renew(r.Context(), sub.ID, base.Add(duration))
	if err != nil {
		if storage.IsNotFound(err) {
			writeError(w, http.StatusConflict, "subscription cannot be renewed")
			return
		}
		h.logger.Error("subscription renew failed", "subscription_id", sub.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to renew subscription")
		return
	}
	writeJSON(w, http.StatusOK, subscriptionView(renewed))
}

func (h *SubscriptionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	sub, err := h.subscriptions.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "subscription not found")
		return
	}
	id, _ := identityFrom(r.Context())
	if !canAccessMerchant(id, sub.MerchantID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	if err := h.subscriptions.Cancel(r.Context(), sub.ID, time.Now().UTC()); err != nil {
		if storage.IsNotFound(err) {
			writeError(w, http.StatusConflict, "subscription is not cancellable")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to cancel subscription")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stats is the admin revenue overview.
func (h *SubscriptionHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.subscriptions.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"active_subscriptions":  st.ActiveCount,
		"expired_subscriptions": st.ExpiredCount,
		"monthly_revenue":       st.MonthlyAmount,
	})
}
