package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/zarya-platform/zarya-backend/internal/model"
)

// Result reports a single delivery attempt to callers that record outcomes
// instead of propagating them.
type Result struct {
	Success bool
	Error   string
}

func resultOf(err error) Result {
	if err != nil {
		return Result{Error: err.Error()}
	}
	return Result{Success: true}
}

// NotificationStore persists in-app notifications.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n model.Notification) error
}

// MerchantDirectory resolves merchants and prunes device tokens the push
// provider rejects.
type MerchantDirectory interface {
	GetMerchant(ctx context.Context, id string) (model.Merchant, error)
	RemoveFCMTokens(ctx context.Context, merchantID string, tokens []string) error
}

// Dispatcher fans a notification out to the right channel. Every external
// call runs under its own timeout so one slow provider cannot stall a sweep.
type Dispatcher struct {
	email     EmailSender
	sms       SMSSender
	push      PushSender
	store     NotificationStore
	merchants MerchantDirectory
	logger    *slog.Logger
	timeout   time.Duration
}

func NewDispatcher(email EmailSender, sms SMSSender, push PushSender, store NotificationStore, merchants MerchantDirectory, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		email:     email,
		sms:       sms,
		push:      push,
		store:     store,
		merchants: merchants,
		logger:    logger,
		timeout:   10 * time.Second,
	}
}

func (d *Dispatcher) SendEmail(ctx context.Context, to, subject, html string) Result {
	if to == "" {
		return Result{Error: "no recipient email"}
	}
	done := make(chan error, 1)
	go func() {
		done <- d.email.Send(to, subject, html)
	}()
	select {
	case err := <-done:
		if err != nil {
			d.logger.Error("email send failed", "to", to, "subject", subject, "err", err)
		}
		return resultOf(err)
	case <-time.After(d.timeout):
		d.logger.Error("email send timed out", "to", to, "subject", subject)
		return Result{Error: "email send timed out"}
	case <-ctx.Done():
		return Result{Error: ctx.Err().Error()}
	}
}

func (d *Dispatcher) SendSMS(ctx context.Context, to, body string) Result {
	if to == "" {
		return Result{Error: "no recipient phone"}
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	err := d.sms.Send(ctx, to, body)
	if err != nil {
		d.logger.Error("sms send failed", "to", to, "provider", d.sms.ProviderID(), "err", err)
	}
	return resultOf(err)
}

// PushToMerchant sends to every registered device token for the merchant and
// prunes the tokens the provider reports dead. No registered tokens is a
// quiet no-op.
func (d *Dispatcher) PushToMerchant(ctx context.Context, merchant model.Merchant, title, body string, data map[string]string) Result {
	if len(merchant.FCMTokens) == 0 {
		return Result{Success: true}
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	invalid, err := d.push.SendToTokens(ctx, merchant.FCMTokens, title, body, data)
	if len(invalid) > 0 {
		if pruneErr := d.merchants.RemoveFCMTokens(ctx, merchant.ID, invalid); pruneErr != nil {
			d.logger.Error("fcm token prune failed", "merchant_id", merchant.ID, "err", pruneErr)
		} else {
			d.logger.Info("pruned dead fcm tokens", "merchant_id", merchant.ID, "count", len(invalid))
		}
	}
	if err != nil {
		d.logger.Error("push send failed", "merchant_id", merchant.ID, "err", err)
	}
	return resultOf(err)
}

// InAppNotice writes a dashboard notification row.
func (d *Dispatcher) InAppNotice(ctx context.Context, userID, title, message, severity string, data map[string]any) error {
	return d.store.CreateNotification(ctx, model.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		Message:   message,
		Severity:  severity,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	})
}

// SendReminder routes a due reminder by recipient type: customers get email,
// merchants get a push to their devices. Everything needed comes from the
// snapshot except merchant device tokens, which are resolved live so pruning
// stays effective.
func (d *Dispatcher) SendReminder(ctx context.Context, rem model.Reminder) error {
	switch rem.RecipientType {
	case model.RecipientCustomer:
		subject, html := ReminderEmail(rem.Snapshot, rem.TimeUntil)
		if res := d.SendEmail(ctx, rem.Snapshot.CustomerEmail, subject, html); !res.Success {
			return fmt.Errorf("reminder email: %s", res.Error)
		}
		return nil
	case model.RecipientMerchant:
		merchant, err := d.merchants.GetMerchant(ctx, rem.Snapshot.MerchantID)
		if err != nil {
			return fmt.Errorf("merchant lookup: %w", err)
		}
		title := "Upcoming Appointment"
		body := fmt.Sprintf("%s with %s in %s", rem.Snapshot.ServiceName, rem.Snapshot.CustomerName, rem.TimeUntil)
		if res := d.PushToMerchant(ctx, merchant, title, body, map[string]string{
			"type":           "appointment_reminder",
			"appointment_id": rem.AppointmentID,
		}); !res.Success {
			return fmt.Errorf("reminder push: %s", res.Error)
		}
		return nil
	default:
		return fmt.Errorf("unknown recipient type %q", rem.RecipientType)
	}
}

// SubscriptionExpiryEmail satisfies the expiry sweep's notifier.
func (d *Dispatcher) SubscriptionExpiryEmail(ctx context.Context, merchant model.Merchant, sub model.Subscription) error {
	subject, html := SubscriptionExpiryEmail(merchant, sub)
	if res := d.SendEmail(ctx, merchant.Email, subject, html); !res.Success {
		return fmt.Errorf("expiry email: %s", res.Error)
	}
	return nil
}
