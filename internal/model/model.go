package model

import "time"

// Appointment statuses form a small lifecycle: pending -> confirmed ->
// completed, with cancelled/rescheduled reachable from pending/confirmed.
const (
	AppointmentPending     = "pending"
	AppointmentConfirmed   = "confirmed"
	AppointmentCancelled   = "cancelled"
	AppointmentRescheduled = "rescheduled"
	AppointmentCompleted   = "completed"
)

const (
	SubscriptionActive        = "active"
	SubscriptionPaymentFailed = "payment_failed"
	SubscriptionExpired       = "expired"
	SubscriptionCancelled     = "cancelled"
)

const (
	RecipientCustomer = "customer"
	RecipientMerchant = "merchant"
)

type CustomerInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type Appointment struct {
	ID          string
	MerchantID  string
	Customer    CustomerInfo
	ServiceName string
	Price       float64
	DateTime    time.Time
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Merchant struct {
	ID            string
	BusinessName  string
	OwnerName     string
	Email         string
	Phone         string
	Category      string
	PasswordHash  string
	IsActive      bool
	FCMTokens     []string
	ImageURLs     []string
	DeactivatedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Subscription struct {
	ID          string
	MerchantID  string
	Plan        string
	Amount      float64
	Currency    string
	Status      string
	StartDate   time.Time
	ExpiryDate  time.Time
	ExpiredAt   *time.Time
	CancelledAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ReminderSnapshot is the appointment+merchant data embedded on a reminder at
// schedule time. It spares a fetch at fire time and tolerates the referenced
// entity being deleted, at the cost of staleness; rescheduling invalidates it
// by cancelling and recreating the reminders.
type ReminderSnapshot struct {
	CustomerName  string  `json:"customer_name"`
	CustomerEmail string  `json:"customer_email"`
	CustomerPhone string  `json:"customer_phone"`
	ServiceName   string  `json:"service_name"`
	Price         float64 `json:"price"`
	DateTime      string  `json:"date_time"` // RFC 3339
	MerchantName  string  `json:"merchant_name"`
	MerchantID    string  `json:"merchant_id"`
}

type Reminder struct {
	ID            string
	AppointmentID string
	RecipientType string
	ScheduledFor  time.Time
	TimeUntil     string // human label: "24 hours", "1 hour", "15 minutes"
	Snapshot      ReminderSnapshot
	Sent          bool
	Failed        bool
	Error         string
	CreatedAt     time.Time
	SentAt        *time.Time
}

type TimeSlot struct {
	ID            string    `json:"id"`
	MerchantID    string    `json:"merchant_id"`
	Date          time.Time `json:"date"`       // midnight, date component only
	StartTime     string    `json:"start_time"` // "HH:MM"
	EndTime       string    `json:"end_time"`
	IsAvailable   bool      `json:"is_available"`
	AppointmentID string    `json:"appointment_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type Notification struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Severity  string         `json:"severity"` // info | warning | error
	Data      map[string]any `json:"data,omitempty"`
	Read      bool           `json:"read"`
	CreatedAt time.Time      `json:"created_at"`
	ReadAt    *time.Time     `json:"read_at,omitempty"`
}

type AdminUser struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}
