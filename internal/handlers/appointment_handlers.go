package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/zarya-platform/zarya-backend/internal/booking"
	"github.com/zarya-platform/zarya-backend/internal/model"
	"github.com/zarya-platform/zarya-backend/internal/storage"
)

type AppointmentHandler struct {
	service *booking.Service
	slots   *storage.TimeSlotsRepository
	logger  *slog.Logger
}

func NewAppointmentHandler(service *booking.Service, slots *storage.TimeSlotsRepository, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{service: service, slots: slots, logger: logger}
}

func appointmentView(a model.Appointment) map[string]any {
	return map[string]any{
		"id":          a.ID,
		"merchant_id": a.MerchantID,
		"customer":    a.Customer,
		"service":     a.ServiceName,
		"price":       a.Price,
		"date_time":   a.DateTime,
		"status":      a.Status,
		"created_at":  a.CreatedAt,
		"updated_at":  a.UpdatedAt,
	}
}

func bookingError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, booking.ErrMerchantInactive):
		writeError(w, http.StatusUnprocessableEntity, "merchant is not active")
	case errors.Is(err, booking.ErrPastDateTime):
		writeError(w, http.StatusBadRequest, "appointment time must be in the future")
	case errors.Is(err, booking.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "time slot is no longer available")
	case errors.Is(err, booking.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid status transition")
	case storage.IsNotFound(err):
		writeError(w, http.StatusNotFound, "appointment not found")
	default:
		logger.Error("booking operation failed", "err", err)
		writeError(w, http.StatusInternalServerError, "operation failed")
	}
}

// Create books an appointment. Customers book without auth; the endpoint is
// rate limited instead.
func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MerchantID    string  `json:"merchant_id"`
		CustomerName  string  `json:"customer_name"`
		CustomerEmail string  `json:"customer_email"`
		CustomerPhone string  `json:"customer_phone"`
		ServiceName   string  `json:"service_name"`
		Price         float64 `json:"price"`
		DateTime      string  `json:"date_time"`
		SlotID        string  `json:"slot_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.CustomerEmail = strings.TrimSpace(req.CustomerEmail)
	if req.MerchantID == "" || req.CustomerName == "" || req.CustomerEmail == "" || req.ServiceName == "" {
		writeError(w, http.StatusBadRequest, "merchant_id, customer_name, customer_email and service_name are required")
		return
	}
	dateTime, err := time.Parse(time.RFC3339, strings.TrimSpace(req.DateTime))
	if err != nil {
		writeError(w, http.StatusBadRequest, "date_time must be RFC 3339")
		return
	}

	appt, err := h.service.Create(r.Context(), booking.CreateInput{
		MerchantID: req.MerchantID,
		Customer: model.CustomerInfo{
			Name:  req.CustomerName,
			Email: req.CustomerEmail,
			Phone: strings.TrimSpace(req.CustomerPhone),
		},
		ServiceName: strings.TrimSpace(req.ServiceName),
		Price:       req.Price,
		DateTime:    dateTime.UTC(),
		SlotID:      strings.TrimSpace(req.SlotID),
	})
	if err != nil {
		bookingError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, appointmentView(appt))
}

func (h *AppointmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	appt, err := h.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		bookingError(w, h.logger, err)
		return
	}
	id, _ := identityFrom(r.Context())
	if !canAccessMerchant(id, appt.MerchantID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	writeJSON(w, http.StatusOK, appointmentView(appt))
}

func (h *AppointmentHandler) ListByMerchant(w http.ResponseWriter, r *http.Request) {
	merchantID := r.PathValue("id")
	id, _ := identityFrom(r.Context())
	if !canAccessMerchant(id, merchantID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	var (
		appts []model.Appointment
		err   error
	)
	if fromRaw, toRaw := r.URL.Query().Get("from"), r.URL.Query().Get("to"); fromRaw != "" && toRaw != "" {
		from, fromErr := time.Parse("2006-01-02", fromRaw)
		to, toErr := time.Parse("2006-01-02", toRaw)
		if fromErr != nil || toErr != nil {
			writeError(w, http.StatusBadRequest, "from and to must be YYYY-MM-DD")
			return
		}
		appts, err = h.service.ListByMerchantAndRange(r.Context(), merchantID, from, to.AddDate(0, 0, 1))
	} else {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		appts, err = h.service.ListByMerchant(r.Context(), merchantID, limit, offset)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list appointments")
		return
	}
	views := make([]map[string]any, 0, len(appts))
	for _, a := range appts {
		views = append(views, appointmentView(a))
	}
	writeJSON(w, http.StatusOK, views)
}

// ChangeStatus confirms, cancels or completes an appointment.
func (h *AppointmentHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	apptID := r.PathValue("id")
	appt, err := h.service.Get(r.Context(), apptID)
	if err != nil {
		bookingError(w, h.logger, err)
		return
	}
	id, _ := identityFrom(r.Context())
	if !canAccessMerchant(id, appt.MerchantID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	var req struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	updated, err := h.service.ChangeStatus(r.Context(), apptID, strings.ToLower(strings.TrimSpace(req.Status)), strings.TrimSpace(req.Reason))
	if err != nil {
		bookingError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, appointmentView(updated))
}

func (h *AppointmentHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	apptID := r.PathValue("id")
	appt, err := h.service.Get(r.Context(), apptID)
	if err != nil {
		bookingError(w, h.logger, err)
		return
	}
	id, _ := identityFrom(r.Context())
	if !canAccessMerchant(id, appt.MerchantID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	var req struct {
		DateTime string `json:"date_time"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	newTime, err := time.Parse(time.RFC3339, strings.TrimSpace(req.DateTime))
	if err != nil {
		writeError(w, http.StatusBadRequest, "date_time must be RFC 3339")
		return
	}

	updated, err := h.service.Reschedule(r.Context(), apptID, newTime.UTC())
	if err != nil {
		bookingError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, appointmentView(updated))
}

func (h *AppointmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	apptID := r.PathValue("id")
	appt, err := h.service.Get(r.Context(), apptID)
	if err != nil {
		bookingError(w, h.logger, err)
		return
	}
	id, _ := identityFrom(r.Context())
	if !canAccessMerchant(id, appt.MerchantID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	if err := h.service.Delete(r.Context(), apptID); err != nil {
		bookingError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GenerateSlots builds the merchant's slot grid for a date range.
func (h *AppointmentHandler) GenerateSlots(w http.ResponseWriter, r *http.Request) {
	merchantID := r.PathValue("id")
	id, _ := identityFrom(r.Context())
	if !canAccessMerchant(id, merchantID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	var req struct {
		From        string `json:"from"`
		To          string `json:"to"`
		StartHour   int    `json:"start_hour"`
		EndHour     int    `json:"end_hour"`
		SlotMinutes int    `json:"slot_minutes"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	from, err := time.Parse("2006-01-02", req.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, "from must be YYYY-MM-DD")
		return
	}
	to, err := time.Parse("2006-01-02", req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, "to must be YYYY-MM-DD")
		return
	}

	inserted, err := h.service.GenerateSlots(r.Context(), merchantID, from, to, booking.SlotWindow{
		StartHour:   req.StartHour,
		EndHour:     req.EndHour,
		SlotMinutes: req.SlotMinutes,
	})
	if err != nil {
		if errors.Is(err, booking.ErrBadSlotWindow) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		bookingError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"inserted": inserted})
}

// Stats returns per-status appointment counts for the merchant dashboard.
// Defaults to the trailing 30 days when no range is given.
func (h *AppointmentHandler) Stats(w http.ResponseWriter, r *http.Request) {
	merchantID := r.PathValue("id")
	id, _ := identityFrom(r.Context())
	if !canAccessMerchant(id, merchantID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	now := time.Now().UTC()
	from := now.AddDate(0, 0, -30)
	to := now
	if raw := r.URL.Query().Get("from"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "from must be YYYY-MM-DD")
			return
		}
		from = t
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "to must be YYYY-MM-DD")
			return
		}
		to = t.AddDate(0, 0, 1) // inclusive end date
	}

	counts, err := h.service.Stats(r.Context(), merchantID, from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load appointment stats")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"merchant_id": merchantID,
		"from":        from,
		"to":          to,
		"counts":      counts,
	})
}

// ListSlots returns a merchant's open slots for one day; public for the
// booking page.
func (h *AppointmentHandler) ListSlots(w http.ResponseWriter, r *http.Request) {
	merchantID := r.PathValue("id")
	date, err := time.Parse("2006-01-02", r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	slots, err := h.slots.ListAvailable(r.Context(), merchantID, date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list slots")
		return
	}
	writeJSON(w, http.StatusOK, slots)
}
