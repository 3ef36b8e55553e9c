package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/zarya-platform/zarya-backend/internal/outbox"
	"github.com/zarya-platform/zarya-backend/internal/storage"
)

// Retention windows for the nightly cleanup.
const (
	notificationRetention = 30 * 24 * time.Hour
	reminderRetention     = 90 * 24 * time.Hour
	backupRetention       = 30 * 24 * time.Hour
	outboxRetention       = 7 * 24 * time.Hour
)

// Jobs bundles the scheduled maintenance work: the nightly backup and the
// cleanup of tables that only ever grow.
type Jobs struct {
	reports       *storage.ReportsRepository
	notifications *storage.NotificationsRepository
	reminders     *storage.RemindersRepository
	slots         *storage.TimeSlotsRepository
	outbox        *outbox.Repository
	logger        *slog.Logger
}

func NewJobs(
	reports *storage.ReportsRepository,
	notifications *storage.NotificationsRepository,
	reminders *storage.RemindersRepository,
	slots *storage.TimeSlotsRepository,
	outboxRepo *outbox.Repository,
	logger *slog.Logger,
) *Jobs {
	return &Jobs{
		reports:       reports,
		notifications: notifications,
		reminders:     reminders,
		slots:         slots,
		outbox:        outboxRepo,
		logger:        logger,
	}
}

// DailyBackup snapshots merchants and subscriptions into the backups table.
func (j *Jobs) DailyBackup(ctx context.Context) error {
	snapshot, merchantCount, subscriptionCount, err := j.reports.SnapshotCoreTables(ctx)
	if err != nil {
		return fmt.Errorf("snapshot core tables: %w", err)
	}
	rec := storage.BackupRecord{
		ID:                uuid.NewString(),
		TakenAt:           time.Now().UTC(),
		MerchantCount:     merchantCount,
		SubscriptionCount: subscriptionCount,
		Snapshot:          snapshot,
	}
	if err := j.reports.SaveBackup(ctx, &rec); err != nil {
		return fmt.Errorf("save backup: %w", err)
	}
	j.logger.Info("daily backup created",
		"backup_id", rec.ID,
		"merchants", merchantCount,
		"subscriptions", subscriptionCount,
	)
	return nil
}

// Cleanup trims aged rows across the growing tables. Each table is handled
// independently so one failure does not block the others.
func (j *Jobs) Cleanup(ctx context.Context) error {
	now := time.Now().UTC()
	var firstErr error

	run := func(name string, fn func() (int64, error)) {
		n, err := fn()
		if err != nil {
			j.logger.Error("cleanup step failed", "step", name, "err", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", name, err)
			}
			return
		}
		if n > 0 {
			j.logger.Info("cleanup step done", "step", name, "deleted", n)
		}
	}

	run("read-notifications", func() (int64, error) {
		return j.notifications.DeleteReadBefore(ctx, now.Add(-notificationRetention))
	})
	run("terminal-reminders", func() (int64, error) {
		return j.reminders.DeleteTerminalBefore(ctx, now.Add(-reminderRetention))
	})
	run("old-backups", func() (int64, error) {
		return j.reports.DeleteBackupsBefore(ctx, now.Add(-backupRetention))
	})
	run("published-outbox", func() (int64, error) {
		return j.outbox.DeletePublishedBefore(ctx, now.Add(-outboxRetention))
	})

	return firstErr
}

// CleanupExpiredSlots removes still-available slots whose date has passed;
// runs on its own cadence ahead of the main cleanup.
func (j *Jobs) CleanupExpiredSlots(ctx context.Context) error {
	n, err := j.slots.DeleteExpiredBefore(ctx, time.Now().UTC().Truncate(24*time.Hour))
	if err != nil {
		return fmt.Errorf("expired slots: %w", err)
	}
	if n > 0 {
		j.logger.Info("expired slots removed", "deleted", n)
	}
	return nil
}
