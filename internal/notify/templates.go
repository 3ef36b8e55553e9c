package notify

import (
	"fmt"
	"time"

	"github.com/zarya-platform/zarya-backend/internal/model"
)

func formatDate(t time.Time) string {
	return t.Format("January 2, 2006")
}

func formatTime(t time.Time) string {
	return t.Format("3:04 PM")
}

func wrap(inner string) string {
	return fmt.Sprintf(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">%s</div>`, inner)
}

// AppointmentConfirmationEmail is sent to the customer when a booking is
// first created.
func AppointmentConfirmationEmail(appt model.Appointment, merchantName string) (subject, html string) {
	subject = "Appointment Confirmation - Zarya"
	html = wrap(fmt.Sprintf(`
    <h2 style="color: #6366F1;">Appointment Confirmed!</h2>
    <p>Dear %s,</p>
    <p>Your appointment has been successfully booked. Here are the details:</p>
    <div style="background-color: #f8f9fa; padding: 20px; border-radius: 8px; margin: 20px 0;">
      <h3 style="margin-top: 0; color: #333;">Appointment Details</h3>
      <p><strong>Service:</strong> %s</p>
      <p><strong>Merchant:</strong> %s</p>
      <p><strong>Date:</strong> %s</p>
      <p><strong>Time:</strong> %s</p>
      <p><strong>Booking Reference:</strong> %s</p>
    </div>
    <p>Please arrive 10 minutes early for your appointment.</p>
    <p>If you need to reschedule or cancel, please contact the merchant directly.</p>
    <p>Thank you for choosing Zarya!</p>`,
		appt.Customer.Name, appt.ServiceName, merchantName,
		formatDate(appt.DateTime), formatTime(appt.DateTime), appt.ID))
	return subject, html
}

// AppointmentConfirmedEmail is sent when the merchant confirms a pending
// booking.
func AppointmentConfirmedEmail(appt model.Appointment, merchantName string) (subject, html string) {
	subject = "Your Appointment is Confirmed - Zarya"
	html = wrap(fmt.Sprintf(`
    <h2 style="color: #10B981;">Appointment Confirmed!</h2>
    <p>Dear %s,</p>
    <p>Great news! Your appointment has been confirmed by %s.</p>
    <div style="background-color: #f0fdf4; padding: 20px; border-radius: 8px; margin: 20px 0; border-left: 4px solid #10B981;">
      <h3 style="margin-top: 0; color: #333;">Confirmed Appointment</h3>
      <p><strong>Service:</strong> %s</p>
      <p><strong>Date:</strong> %s</p>
      <p><strong>Time:</strong> %s</p>
    </div>
    <p>We look forward to seeing you!</p>`,
		appt.Customer.Name, merchantName, appt.ServiceName,
		formatDate(appt.DateTime), formatTime(appt.DateTime)))
	return subject, html
}

func AppointmentCancelledEmail(appt model.Appointment, reason string) (subject, html string) {
	subject = "Appointment Cancelled - Zarya"
	reasonLine := ""
	if reason != "" {
		reasonLine = fmt.Sprintf("<p><strong>Reason:</strong> %s</p>", reason)
	}
	html = wrap(fmt.Sprintf(`
    <h2 style="color: #EF4444;">Appointment Cancelled</h2>
    <p>Dear %s,</p>
    <p>We're sorry to inform you that your appointment has been cancelled.</p>
    <div style="background-color: #fef2f2; padding: 20px; border-radius: 8px; margin: 20px 0; border-left: 4px solid #EF4444;">
      <h3 style="margin-top: 0; color: #333;">Cancelled Appointment</h3>
      <p><strong>Service:</strong> %s</p>
      <p><strong>Date:</strong> %s</p>
      <p><strong>Time:</strong> %s</p>
      %s
    </div>
    <p>Please feel free to book another appointment at your convenience.</p>`,
		appt.Customer.Name, appt.ServiceName,
		formatDate(appt.DateTime), formatTime(appt.DateTime), reasonLine))
	return subject, html
}

func AppointmentRescheduledEmail(appt model.Appointment, oldTime time.Time) (subject, html string) {
	subject = "Appointment Rescheduled - Zarya"
	html = wrap(fmt.Sprintf(`
    <h2 style="color: #6366F1;">Appointment Rescheduled</h2>
    <p>Dear %s,</p>
    <p>Your appointment has been moved to a new time.</p>
    <div style="background-color: #f8f9fa; padding: 20px; border-radius: 8px; margin: 20px 0;">
      <h3 style="margin-top: 0; color: #333;">Updated Appointment</h3>
      <p><strong>Service:</strong> %s</p>
      <p><strong>Previous:</strong> %s at %s</p>
      <p><strong>New Date:</strong> %s</p>
      <p><strong>New Time:</strong> %s</p>
    </div>
    <p>If the new time does not work for you, please contact the merchant directly.</p>`,
		appt.Customer.Name, appt.ServiceName,
		formatDate(oldTime), formatTime(oldTime),
		formatDate(appt.DateTime), formatTime(appt.DateTime)))
	return subject, html
}

// ReminderEmail renders from the snapshot embedded on the reminder record so
// it works even if the appointment was deleted after scheduling.
func ReminderEmail(snap model.ReminderSnapshot, timeUntil string) (subject, html string) {
	subject = "Appointment Reminder - Zarya"
	when := snap.DateTime
	dateLine, timeLine := when, ""
	if t, err := time.Parse(time.RFC3339, snap.DateTime); err == nil {
		dateLine = formatDate(t)
		timeLine = formatTime(t)
	}
	html = wrap(fmt.Sprintf(`
    <h2 style="color: #F59E0B;">Appointment Reminder</h2>
    <p>Dear %s,</p>
    <p>This is a friendly reminder about your upcoming appointment in %s.</p>
    <div style="background-color: #fffbeb; padding: 20px; border-radius: 8px; margin: 20px 0; border-left: 4px solid #F59E0B;">
      <h3 style="margin-top: 0; color: #333;">Appointment Details</h3>
      <p><strong>Service:</strong> %s</p>
      <p><strong>Merchant:</strong> %s</p>
      <p><strong>Date:</strong> %s</p>
      <p><strong>Time:</strong> %s</p>
    </div>
    <p>Please arrive 10 minutes early. We look forward to seeing you!</p>`,
		snap.CustomerName, timeUntil, snap.ServiceName, snap.MerchantName,
		dateLine, timeLine))
	return subject, html
}

func SubscriptionExpiryEmail(merchant model.Merchant, sub model.Subscription) (subject, html string) {
	subject = "Subscription Expiry Notice"
	html = wrap(fmt.Sprintf(`
    <h2 style="color: #ff6b6b;">Subscription Expiry Notice</h2>
    <p>Dear %s,</p>
    <p>Your subscription for <strong>%s</strong> will expire on %s.</p>
    <div style="background-color: #fff3cd; padding: 20px; border-radius: 5px; margin: 20px 0;">
      <h3>Subscription Details:</h3>
      <p><strong>Plan:</strong> %s</p>
      <p><strong>Expiry Date:</strong> %s</p>
      <p><strong>Amount:</strong> $%.2f</p>
    </div>
    <p>To continue using our services without interruption, please renew your subscription before the expiry date.</p>
    <p>If you have any questions, please contact our support team.</p>
    <p>Best regards,<br>The Zarya Team</p>`,
		merchant.OwnerName, merchant.BusinessName, formatDate(sub.ExpiryDate),
		sub.Plan, formatDate(sub.ExpiryDate), sub.Amount))
	return subject, html
}

func PaymentFailedEmail(merchant model.Merchant, sub model.Subscription) (subject, html string) {
	subject = "Payment Failed - Action Required"
	html = wrap(fmt.Sprintf(`
    <h2 style="color: #dc3545;">Payment Failed</h2>
    <p>Dear %s,</p>
    <p>We were unable to process your payment for the subscription renewal of <strong>%s</strong>.</p>
    <div style="background-color: #f8d7da; padding: 20px; border-radius: 5px; margin: 20px 0;">
      <h3>Subscription Details:</h3>
      <p><strong>Plan:</strong> %s</p>
      <p><strong>Amount:</strong> $%.2f</p>
    </div>
    <p>Please update your payment method in your dashboard to avoid service interruption.</p>
    <p>If you need assistance, please contact our support team.</p>
    <p>Best regards,<br>The Zarya Team</p>`,
		merchant.OwnerName, merchant.BusinessName, sub.Plan, sub.Amount))
	return subject, html
}

func WelcomeEmail(merchant model.Merchant) (subject, html string) {
	subject = "Welcome to Zarya Merchant Platform"
	html = wrap(fmt.Sprintf(`
    <h2 style="color: #333;">Welcome to Zarya Merchant Platform!</h2>
    <p>Dear %s,</p>
    <p>Welcome to the Zarya Merchant Platform! Your account has been successfully created.</p>
    <div style="background-color: #f5f5f5; padding: 20px; border-radius: 5px; margin: 20px 0;">
      <h3>Account Details:</h3>
      <p><strong>Business Name:</strong> %s</p>
      <p><strong>Email:</strong> %s</p>
      <p><strong>Category:</strong> %s</p>
    </div>
    <p>You can now log in to your dashboard and start managing your appointments and services.</p>
    <p>If you have any questions, please don't hesitate to contact our support team.</p>
    <p>Best regards,<br>The Zarya Team</p>`,
		merchant.OwnerName, merchant.BusinessName, merchant.Email, merchant.Category))
	return subject, html
}
