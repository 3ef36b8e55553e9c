package handlers

import "net/http"

// Deps bundles everything route registration needs. main constructs each
// handler and hands them over in one place.
type Deps struct {
	Auth          *AuthHandler
	Merchants     *MerchantHandler
	Subscriptions *SubscriptionHandler
	Appointments  *AppointmentHandler
	Webhooks      *WebhookHandler
	Admin         *AdminHandler
	JWTSecret     string
}

// RegisterRoutes mounts the API on mux. Method-qualified patterns keep the
// dispatch in one table; auth wrapping happens here so handlers stay thin.
func RegisterRoutes(mux *http.ServeMux, d Deps) {
	authed := func(h http.HandlerFunc) http.Handler {
		return RequireAuth(h, d.JWTSecret)
	}
	adminOnly := func(h http.HandlerFunc) http.Handler {
		return RequireAuth(RequireRole(h, RoleAdmin), d.JWTSecret)
	}

	// Auth. Registration, logins and refresh are public by nature.
	mux.HandleFunc("POST /api/v1/auth/merchants/register", d.Auth.RegisterMerchant)
	mux.HandleFunc("POST /api/v1/auth/merchants/login", d.Auth.LoginMerchant)
	mux.HandleFunc("POST /api/v1/auth/admins/login", d.Auth.LoginAdmin)
	mux.HandleFunc("POST /api/v1/auth/refresh", d.Auth.Refresh)
	mux.Handle("GET /api/v1/auth/profile", authed(d.Auth.Profile))
	mux.Handle("POST /api/v1/auth/change-password", authed(d.Auth.ChangePassword))

	// Merchants.
	mux.Handle("GET /api/v1/merchants", adminOnly(d.Merchants.List))
	mux.Handle("GET /api/v1/merchants/{id}", authed(d.Merchants.Get))
	mux.Handle("PUT /api/v1/merchants/{id}", authed(d.Merchants.Update))
	mux.Handle("DELETE /api/v1/merchants/{id}", adminOnly(d.Merchants.Delete))
	mux.Handle("PATCH /api/v1/merchants/{id}/status", adminOnly(d.Merchants.SetStatus))
	mux.Handle("POST /api/v1/merchants/{id}/devices", authed(d.Merchants.RegisterDevice))
	mux.Handle("DELETE /api/v1/merchants/{id}/images", authed(d.Merchants.DeleteImage))

	// Subscriptions.
	mux.Handle("POST /api/v1/subscriptions", authed(d.Subscriptions.Create))
	mux.Handle("GET /api/v1/subscriptions/{id}", authed(d.Subscriptions.Get))
	mux.Handle("POST /api/v1/subscriptions/{id}/renew", authed(d.Subscriptions.Renew))
	mux.Handle("POST /api/v1/subscriptions/{id}/cancel", authed(d.Subscriptions.Cancel))
	mux.Handle("GET /api/v1/merchants/{id}/subscriptions", authed(d.Subscriptions.ListByMerchant))

	// Appointments. Creation and slot listing are the customer-facing booking
	// surface and carry no auth.
	mux.HandleFunc("POST /api/v1/appointments", d.Appointments.Create)
	mux.Handle("GET /api/v1/appointments/{id}", authed(d.Appointments.Get))
	mux.Handle("PATCH /api/v1/appointments/{id}/status", authed(d.Appointments.ChangeStatus))
	mux.Handle("PUT /api/v1/appointments/{id}/reschedule", authed(d.Appointments.Reschedule))
	mux.Handle("DELETE /api/v1/appointments/{id}", authed(d.Appointments.Delete))
	mux.Handle("GET /api/v1/merchants/{id}/appointments", authed(d.Appointments.ListByMerchant))
	mux.Handle("GET /api/v1/merchants/{id}/appointments/stats", authed(d.Appointments.Stats))
	mux.Handle("POST /api/v1/merchants/{id}/slots", authed(d.Appointments.GenerateSlots))
	mux.HandleFunc("GET /api/v1/merchants/{id}/slots", d.Appointments.ListSlots)

	// Webhooks authenticate with provider signatures, not JWTs.
	mux.HandleFunc("POST /api/v1/webhooks/stripe", d.Webhooks.Stripe)
	mux.HandleFunc("POST /api/v1/webhooks/cloudinary", d.Webhooks.Cloudinary)
	mux.HandleFunc("POST /api/v1/webhooks/realtime-sync", d.Webhooks.RealtimeSync)

	// Admin.
	mux.Handle("GET /api/v1/admin/dashboard", adminOnly(d.Admin.Dashboard))
	mux.Handle("GET /api/v1/admin/users", adminOnly(d.Admin.ListAdmins))
	mux.Handle("GET /api/v1/admin/subscriptions/stats", adminOnly(d.Subscriptions.Stats))
	mux.Handle("GET /api/v1/admin/cron/jobs", adminOnly(d.Admin.ListJobs))
	mux.Handle("POST /api/v1/admin/cron/jobs/{name}/run", adminOnly(d.Admin.RunJob))

	// In-app notices are per-user and shared by merchants and admins.
	mux.Handle("GET /api/v1/notifications", authed(d.Admin.ListNotifications))
	mux.Handle("POST /api/v1/notifications/{id}/read", authed(d.Admin.MarkNotificationRead))
}
