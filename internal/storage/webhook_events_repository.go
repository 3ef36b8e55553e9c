package storage

import (
	"context"

	"github.com/zarya-platform/zarya-backend/libs/db"
)

// WebhookEventsRepository deduplicates inbound provider webhooks. Providers
// redeliver on timeout, so the (provider, event_id) pair is recorded before
// processing and a duplicate insert means skip.
type WebhookEventsRepository struct {
	pool *db.Pool
}

func NewWebhookEventsRepository(pool *db.Pool) *WebhookEventsRepository {
	return &WebhookEventsRepository{pool: pool}
}

// Record returns true when this delivery is the first for the event.
func (r *WebhookEventsRepository) Record(ctx context.Context, provider, eventID, eventType string) (bool, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO webhook_events (provider, event_id, event_type)
		VALUES ($1, $2, $3)
	`, provider, eventID, eventType)
	if err == nil {
		return true, nil
	}
	if IsDuplicate(err) {
		return false, nil
	}
	return false, err
}
