package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/zarya-platform/zarya-backend/internal/model"
	"github.com/zarya-platform/zarya-backend/internal/storage"
)

// AdminLister enumerates admin users so each one gets the weekly summary
// notice.
type AdminLister interface {
	List(ctx context.Context) ([]model.AdminUser, error)
}

// Noticer creates the in-app summary for admins.
type Noticer interface {
	InAppNotice(ctx context.Context, userID, title, message, severity string, data map[string]any) error
}

// Generator produces the Monday-morning platform report.
type Generator struct {
	reports *storage.ReportsRepository
	admins  AdminLister
	noticer Noticer
	logger  *slog.Logger
}

func NewGenerator(reports *storage.ReportsRepository, admins AdminLister, noticer Noticer, logger *slog.Logger) *Generator {
	return &Generator{
		reports: reports,
		admins:  admins,
		noticer: noticer,
		logger:  logger,
	}
}

// GenerateWeekly aggregates the trailing seven days, persists the report and
// notifies every admin. Notice failures are logged per admin, not fatal.
func (g *Generator) GenerateWeekly(ctx context.Context, now time.Time) error {
	weekAgo := now.Add(-7 * 24 * time.Hour)

	merchants, subscriptions, appointments, revenue, err := g.reports.CountsSince(ctx, weekAgo)
	if err != nil {
		return fmt.Errorf("weekly counts: %w", err)
	}

	rep := storage.WeeklyReport{
		ID:               uuid.NewString(),
		StartDate:        weekAgo,
		EndDate:          now,
		NewMerchants:     merchants,
		NewSubscriptions: subscriptions,
		NewAppointments:  appointments,
		Revenue:          revenue,
	}
	if err := g.reports.SaveWeeklyReport(ctx, &rep); err != nil {
		return fmt.Errorf("save weekly report: %w", err)
	}

	g.logger.Info("weekly analytics report generated",
		"report_id", rep.ID,
		"new_merchants", merchants,
		"new_subscriptions", subscriptions,
		"new_appointments", appointments,
		"revenue", revenue,
	)

	admins, err := g.admins.List(ctx)
	if err != nil {
		return fmt.Errorf("list admins: %w", err)
	}
	message := fmt.Sprintf("Weekly report: %d new merchants, %d new subscriptions, $%.2f revenue",
		merchants, subscriptions, revenue)
	for _, admin := range admins {
		if err := g.noticer.InAppNotice(ctx, admin.ID, "Weekly Analytics Report", message, "info",
			map[string]any{"report_id": rep.ID}); err != nil {
			g.logger.Error("weekly report notice failed", "admin_id", admin.ID, "err", err)
		}
	}
	return nil
}
