package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/zarya-platform/zarya-backend/internal/media"
	"github.com/zarya-platform/zarya-backend/internal/notify"
	"github.com/zarya-platform/zarya-backend/internal/storage"
)

// WebhookHandler receives callbacks from external providers. None of these
// routes carry JWT auth: Stripe and Cloudinary authenticate via signatures,
// the realtime-sync hook is trusted from the internal network.
type WebhookHandler struct {
	webhookEvents *storage.WebhookEventsRepository
	subscriptions *storage.SubscriptionsRepository
	merchants     *storage.MerchantsRepository
	dispatcher    *notify.Dispatcher
	images        *media.Store
	logger        *slog.Logger

	stripeWebhookSecret    string
	stripeWebhookTolerance time.Duration
}

func NewWebhookHandler(
	webhookEvents *storage.WebhookEventsRepository,
	subscriptions *storage.SubscriptionsRepository,
	merchants *storage.MerchantsRepository,
	dispatcher *notify.Dispatcher,
	images *media.Store,
	logger *slog.Logger,
	stripeWebhookSecret string,
	stripeWebhookTolerance time.Duration,
) *WebhookHandler {
	if stripeWebhookTolerance <= 0 {
		stripeWebhookTolerance = 5 * time.Minute
	}
	return &WebhookHandler{
		webhookEvents:          webhookEvents,
		subscriptions:          subscriptions,
		merchants:              merchants,
		dispatcher:             dispatcher,
		images:                 images,
		logger:                 logger,
		stripeWebhookSecret:    stripeWebhookSecret,
		stripeWebhookTolerance: stripeWebhookTolerance,
	}
}

// Stripe handles billing events. Signature verification is the auth; replayed
// events are deduplicated on (provider, provider_event_id).
func (h *WebhookHandler) Stripe(w http.ResponseWriter, r *http.Request) {
	if strings.TrimSpace(h.stripeWebhookSecret) == "" {
		writeError(w, http.StatusServiceUnavailable, "stripe webhook not configured")
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		writeError(w, http.StatusBadRequest, "missing Stripe-Signature header")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1 MiB hard cap
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	evt, err := webhook.ConstructEventWithTolerance(body, sigHeader, h.stripeWebhookSecret, h.stripeWebhookTolerance)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	evtType := string(evt.Type)
	h.logger.Info("stripe webhook received", "provider_event_id", evt.ID, "event_type", evtType)

	fresh, err := h.webhookEvents.Record(r.Context(), "stripe", evt.ID, evtType)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to record provider event")
		return
	}
	if !fresh {
		h.logger.Info("stripe webhook duplicate ignored", "provider_event_id", evt.ID, "event_type", evtType)
		writeJSON(w, http.StatusOK, map[string]any{"status": "duplicate"})
		return
	}

	switch evtType {
	case "payment_intent.succeeded":
		h.handlePaymentSucceeded(r, evt)
	case "payment_intent.payment_failed":
		h.handlePaymentFailed(r, evt)
	case "customer.subscription.deleted":
		h.handleProviderSubscriptionDeleted(r, evt)
	default:
		h.logger.Info("unhandled stripe event type", "event_type", evtType)
	}

	writeJSON(w, http.StatusOK, map[string]any{"received": true})
}

// subscriptionIDFromMetadata pulls our subscription id out of the Stripe
// object metadata. Checkout and PaymentIntent creation both set it.
func subscriptionIDFromMetadata(md map[string]string) string {
	return strings.TrimSpace(md["subscription_id"])
}

func (h *WebhookHandler) handlePaymentSucceeded(r *http.Request, evt stripe.Event) {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(evt.Data.Raw, &intent); err != nil {
		h.logger.Error("stripe: invalid payment intent payload", "err", err)
		return
	}
	subID := subscriptionIDFromMetadata(intent.Metadata)
	if subID == "" {
		h.logger.Warn("stripe: payment intent missing subscription_id metadata", "provider_event_id", evt.ID)
		return
	}

	sub, err := h.subscriptions.GetByID(r.Context(), subID)
	if err != nil {
		h.logger.Error("stripe: subscription lookup failed", "subscription_id", subID, "err", err)
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
	if _, err := h.subscriptions.Renew(r.Context(), subID, base.Add(duration)); err != nil {
		h.logger.Error("stripe: renewal failed", "subscription_id", subID, "err", err)
		return
	}
	h.logger.Info("subscription renewed from payment", "subscription_id", subID, "merchant_id", sub.MerchantID)
}

func (h *WebhookHandler) handlePaymentFailed(r *http.Request, evt stripe.Event) {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(evt.Data.Raw, &intent); err != nil {
		h.logger.Error("stripe: invalid payment intent payload", "err", err)
		return
	}
	subID := subscriptionIDFromMetadata(intent.Metadata)
	if subID == "" {
		h.logger.Warn("stripe: payment intent missing subscription_id metadata", "provider_event_id", evt.ID)
		return
	}

	sub, err := h.subscriptions.GetByID(r.Context(), subID)
	if err != nil {
		h.logger.Error("stripe: subscription lookup failed", "subscription_id", subID, "err", err)
		return
	}
	marked, err := h.subscriptions.MarkPaymentFailed(r.Context(), subID)
	if err != nil {
		h.logger.Error("stripe: mark payment failed", "subscription_id", subID, "err", err)
		return
	}
	if !marked {
		return
	}

	merchant, err := h.merchants.GetMerchant(r.Context(), sub.MerchantID)
	if err != nil {
		h.logger.Error("stripe: merchant lookup failed", "merchant_id", sub.MerchantID, "err", err)
		return
	}
	subject, html := notify.PaymentFailedEmail(merchant, sub)
	if res := h.dispatcher.SendEmail(r.Context(), merchant.Email, subject, html); !res.Success {
		h.logger.Error("stripe: payment failure email", "merchant_id", merchant.ID, "err", res.Error)
	}
}

func (h *WebhookHandler) handleProviderSubscriptionDeleted(r *http.Request, evt stripe.Event) {
	var providerSub stripe.Subscription
	if err := json.Unmarshal(evt.Data.Raw, &providerSub); err != nil {
		h.logger.Error("stripe: invalid subscription payload", "err", err)
		return
	}
	subID := subscriptionIDFromMetadata(providerSub.Metadata)
	if subID == "" {
		h.logger.Warn("stripe: provider subscription missing subscription_id metadata", "provider_event_id", evt.ID)
		return
	}
	if err := h.subscriptions.Cancel(r.Context(), subID, time.Now().UTC()); err != nil {
		h.logger.Error("stripe: cancel from provider", "subscription_id", subID, "err", err)
		return
	}
	h.logger.Info("subscription cancelled from provider", "subscription_id", subID)
}

type cloudinaryNotification struct {
	NotificationType string `json:"notification_type"`
	PublicID         string `json:"public_id"`
	ResourceType     string `json:"resource_type"`
	SecureURL        string `json:"secure_url"`
}

// Cloudinary handles asset notifications. The signature covers the raw body
// plus the X-Cld-Timestamp header.
func (h *WebhookHandler) Cloudinary(w http.ResponseWriter, r *http.Request) {
	if h.images == nil {
		writeError(w, http.StatusServiceUnavailable, "media storage not configured")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	timestamp := r.Header.Get("X-Cld-Timestamp")
	signature := r.Header.Get("X-Cld-Signature")
	if !h.images.VerifyWebhookSignature(body, timestamp, signature) {
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var n cloudinaryNotification
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&n); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	h.logger.Info("cloudinary webhook received", "notification_type", n.NotificationType, "public_id", n.PublicID)

	switch n.NotificationType {
	case "upload":
		if merchantID := merchantIDFromPublicID(n.PublicID); merchantID != "" && n.SecureURL != "" {
			if err := h.merchants.AddImageURL(r.Context(), merchantID, n.SecureURL); err != nil {
				h.logger.Error("cloudinary: add image url", "merchant_id", merchantID, "err", err)
			}
		}
	case "delete":
		if merchantID := merchantIDFromPublicID(n.PublicID); merchantID != "" && n.SecureURL != "" {
			if err := h.merchants.RemoveImageURL(r.Context(), merchantID, n.SecureURL); err != nil {
				h.logger.Error("cloudinary: remove image url", "merchant_id", merchantID, "err", err)
			}
		}
	default:
		h.logger.Info("unhandled cloudinary notification type", "notification_type", n.NotificationType)
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// merchantIDFromPublicID extracts the merchant id from asset public IDs of
// the form "merchant_profiles/<merchant_id>/<asset>".
func merchantIDFromPublicID(publicID string) string {
	parts := strings.Split(publicID, "/")
	for i, p := range parts {
		if p == "merchant_profiles" && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return ""
}

type realtimeSyncPayload struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// RealtimeSync acknowledges change notifications from the realtime layer.
// Clients subscribe to live channels directly; the backend only records that
// the sync happened so the event stream stays observable.
func (h *WebhookHandler) RealtimeSync(w http.ResponseWriter, r *http.Request) {
	var p realtimeSyncPayload
	if !decodeJSON(w, r, &p) {
		return
	}

	switch p.Type {
	case "merchant_updated", "subscription_updated", "appointment_updated":
		h.logger.Info("realtime sync received", "type", p.Type)
	default:
		h.logger.Info("unhandled realtime sync type", "type", p.Type)
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
