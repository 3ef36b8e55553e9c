package outbox

import "encoding/json"

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType (event per topic).
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Event types emitted by the booking and billing flows. Versioned so
// consumers can migrate without a flag day.
const (
	EventAppointmentCreated     = "booking.appointment.created.v1"
	EventAppointmentStatus      = "booking.appointment.status_changed.v1"
	EventAppointmentRescheduled = "booking.appointment.rescheduled.v1"
	EventAppointmentDeleted     = "booking.appointment.deleted.v1"
	EventSubscriptionExpired    = "billing.subscription.expired.v1"
	EventSubscriptionRenewed    = "billing.subscription.renewed.v1"
	EventPaymentFailed          = "billing.payment.failed.v1"
	EventMerchantRegistered     = "merchant.registered.v1"
	EventNotificationSent       = "notification.sent.v1"
	EventNotificationFailed     = "notification.failed.v1"
)

// NewEvent marshals the payload; marshal failure is a programming error
// surfaced to the caller rather than silently dropped.
func NewEvent(aggregateType, aggregateID, eventType string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       raw,
	}, nil
}
