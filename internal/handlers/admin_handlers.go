package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/zarya-platform/zarya-backend/internal/cron"
	"github.com/zarya-platform/zarya-backend/internal/storage"
)

type AdminHandler struct {
	merchants     *storage.MerchantsRepository
	subscriptions *storage.SubscriptionsRepository
	appointments  *storage.AppointmentsRepository
	notifications *storage.NotificationsRepository
	admins        *storage.AdminUsersRepository
	runner        *cron.Runner
	logger        *slog.Logger
}

func NewAdminHandler(
	merchants *storage.MerchantsRepository,
	subscriptions *storage.SubscriptionsRepository,
	appointments *storage.AppointmentsRepository,
	notifications *storage.NotificationsRepository,
	admins *storage.AdminUsersRepository,
	runner *cron.Runner,
	logger *slog.Logger,
) *AdminHandler {
	return &AdminHandler{
		merchants:     merchants,
		subscriptions: subscriptions,
		appointments:  appointments,
		notifications: notifications,
		admins:        admins,
		runner:        runner,
		logger:        logger,
	}
}

// Dashboard returns the platform-wide counters the admin landing page shows.
func (h *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()

	activeMerchants, err := h.merchants.CountActive(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load merchant stats")
		return
	}
	subStats, err := h.subscriptions.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load subscription stats")
		return
	}
	apptsWeek, err := h.appointments.CountInRange(r.Context(), now.AddDate(0, 0, -7), now)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load appointment stats")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"active_merchants":      activeMerchants,
		"active_subscriptions":  subStats.ActiveCount,
		"expired_subscriptions": subStats.ExpiredCount,
		"monthly_revenue":       subStats.MonthlyAmount,
		"appointments_7d":       apptsWeek,
		"generated_at":          now,
	})
}

// ListAdmins lists the platform operator accounts. Password hashes stay out
// of the response.
func (h *AdminHandler) ListAdmins(w http.ResponseWriter, r *http.Request) {
	users, err := h.admins.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load admin users")
		return
	}
	out := make([]map[string]any, 0, len(users))
	for _, u := range users {
		out = append(out, map[string]any{
			"id":         u.ID,
			"email":      u.Email,
			"name":       u.Name,
			"role":       u.Role,
			"created_at": u.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"admins": out})
}

func (h *AdminHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"jobs": h.runner.Jobs()})
}

// RunJob triggers a registered maintenance job outside its schedule.
func (h *AdminHandler) RunJob(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	id, _ := identityFrom(r.Context())
	h.logger.Info("manual cron trigger", "job", name, "admin_id", id.UserID)

	if err := h.runner.RunJob(r.Context(), name); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": name, "status": "completed"})
}

// ListNotifications returns the caller's in-app notices, newest first.
func (h *AdminHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())

	unreadOnly := r.URL.Query().Get("unread") == "true"
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	notices, err := h.notifications.ListByUser(r.Context(), id.UserID, unreadOnly, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load notifications")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": notices})
}

func (h *AdminHandler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())

	err := h.notifications.MarkRead(r.Context(), id.UserID, r.PathValue("id"), time.Now().UTC())
	if storage.IsNotFound(err) {
		writeError(w, http.StatusNotFound, "notification not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to mark notification read")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "read"})
}
