package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pledgerhq/pledger/internal/models"
	"github.com/pledgerhq/pledger/internal/services"
	"github.com/pledgerhq/pledger/pkg/logger"
	"github.com/pledgerhq/pledger/pkg/metrics"
)

const (
	defaultSchedule           = "@every 10m"
	defaultOverdueDedupWindow = 24 * time.Hour
	defaultNearWindow         = 24 * time.Hour
	defaultNearDedupWindow    = 6 * time.Hour
)

// Sweeper periodically reconciles promise deadlines: it expires ongoing
// promises past their deadline, notifies participants of freshly overdue
// promises, and warns about deadlines approaching within the next day.
// Notification passes dedup against recent notifications of the same type,
// so restarts and overlapping runs never double-notify.
type Sweeper struct {
	db            *gorm.DB
	notifications *services.NotificationService
	cron          *cron.Cron
	now           func() time.Time
	log           *zap.Logger

	schedule           string
	overdueDedupWindow time.Duration
	nearWindow         time.Duration
	nearDedupWindow    time.Duration
}

// Option customises the Sweeper.
type Option func(*Sweeper)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(s *Sweeper) {
		if c != nil {
			s.cron = c
		}
	}
}

// WithNow overrides the clock used for deadline comparisons.
func WithNow(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSchedule overrides the cron specification for sweep runs.
func WithSchedule(spec string) Option {
	return func(s *Sweeper) {
		if spec != "" {
			s.schedule = spec
		}
	}
}

// WithOverdueDedupWindow adjusts how long an overdue notification suppresses
// repeats for the same promise and recipient.
func WithOverdueDedupWindow(window time.Duration) Option {
	return func(s *Sweeper) {
		if window > 0 {
			s.overdueDedupWindow = window
		}
	}
}

// WithNearWindow adjusts how far ahead of a deadline the warning pass looks.
func WithNearWindow(window time.Duration) Option {
	return func(s *Sweeper) {
		if window > 0 {
			s.nearWindow = window
		}
	}
}

// WithNearDedupWindow adjusts how long a deadline warning suppresses repeats.
func WithNearDedupWindow(window time.Duration) Option {
	return func(s *Sweeper) {
		if window > 0 {
			s.nearDedupWindow = window
		}
	}
}

// New constructs a Sweeper with sensible defaults.
func New(db *gorm.DB, notifications *services.NotificationService, opts ...Option) (*Sweeper, error) {
	if db == nil {
		return nil, errors.New("sweeper: db is required")
	}
	if notifications == nil {
		return nil, errors.New("sweeper: notification service is required")
	}

	sweeper := &Sweeper{
		db:                 db,
		notifications:      notifications,
		now:                time.Now,
		log:                logger.WithModule("sweeper"),
		schedule:           defaultSchedule,
		overdueDedupWindow: defaultOverdueDedupWindow,
		nearWindow:         defaultNearWindow,
		nearDedupWindow:    defaultNearDedupWindow,
	}

	for _, opt := range opts {
		opt(sweeper)
	}

	if sweeper.cron == nil {
		sweeper.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return sweeper, nil
}

// Start registers the sweep with the cron scheduler and launches it.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, func() {
		if err := s.RunOnce(context.Background()); err != nil {
			s.log.Warn("sweep run failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("sweeper: register schedule: %w", err)
	}

	s.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for any running sweep to complete.
func (s *Sweeper) Stop() context.Context {
	if s.cron == nil {
		return context.Background()
	}
	return s.cron.Stop()
}

// RunOnce executes a full sweep: expiry, overdue notifications, and
// deadline warnings, in that order so that a promise expired in this run is
// eligible for an overdue notification in the same run.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if _, err := s.ExpireOverdue(ctx); err != nil {
		metrics.SweepRuns.WithLabelValues("expire", "error").Inc()
		errs = multierr.Append(errs, err)
	} else {
		metrics.SweepRuns.WithLabelValues("expire", "ok").Inc()
	}

	if err := s.NotifyOverdue(ctx); err != nil {
		metrics.SweepRuns.WithLabelValues("overdue_notify", "error").Inc()
		errs = multierr.Append(errs, err)
	} else {
		metrics.SweepRuns.WithLabelValues("overdue_notify", "ok").Inc()
	}

	if err := s.NotifyDeadlineNear(ctx); err != nil {
		metrics.SweepRuns.WithLabelValues("deadline_near", "error").Inc()
		errs = multierr.Append(errs, err)
	} else {
		metrics.SweepRuns.WithLabelValues("deadline_near", "ok").Inc()
	}

	return errs
}

// ExpireOverdue flips every ongoing promise past its deadline to overdue in
// a single conditional update, so a concurrent completion wins the race.
func (s *Sweeper) ExpireOverdue(ctx context.Context) (int64, error) {
	now := s.now().UTC()

	result := s.db.WithContext(ctx).
		Model(&models.Promise{}).
		Where("status = ? AND deadline IS NOT NULL AND deadline < ?", models.StatusOngoing, now).
		Update("status", models.StatusOverdue)
	if result.Error != nil {
		return 0, fmt.Errorf("sweeper: expire overdue: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		metrics.PromisesExpired.Add(float64(result.RowsAffected))
		s.log.Info("expired overdue promises", zap.Int64("count", result.RowsAffected))
	}
	return result.RowsAffected, nil
}

// NotifyOverdue tells every participant about promises whose deadline
// passed within the dedup window. Older overdue promises are left alone so
// a long-dead promise does not resurface on every sweep.
func (s *Sweeper) NotifyOverdue(ctx context.Context) error {
	now := s.now().UTC()
	since := now.Add(-s.overdueDedupWindow)

	var promises []models.Promise
	if err := s.db.WithContext(ctx).
		Where("status = ? AND deadline >= ?", models.StatusOverdue, since).
		Find(&promises).Error; err != nil {
		return fmt.Errorf("sweeper: load overdue promises: %w", err)
	}

	var errs error
	for i := range promises {
		promise := &promises[i]
		message := fmt.Sprintf("The promise %q is past its deadline.", promise.Title)
		if err := s.notifyParticipants(ctx, promise, models.NotificationPromiseOverdue,
			"Promise overdue", message, since); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// NotifyDeadlineNear warns participants about ongoing promises due within
// the look-ahead window.
func (s *Sweeper) NotifyDeadlineNear(ctx context.Context) error {
	now := s.now().UTC()
	until := now.Add(s.nearWindow)
	since := now.Add(-s.nearDedupWindow)

	var promises []models.Promise
	if err := s.db.WithContext(ctx).
		Where("status = ? AND deadline IS NOT NULL AND deadline > ? AND deadline <= ?",
			models.StatusOngoing, now, until).
		Find(&promises).Error; err != nil {
		return fmt.Errorf("sweeper: load upcoming deadlines: %w", err)
	}

	var errs error
	for i := range promises {
		promise := &promises[i]
		message := fmt.Sprintf("The promise %q is due %s.", promise.Title, remainingPhrase(promise.Deadline.Sub(now)))
		if err := s.notifyParticipants(ctx, promise, models.NotificationDeadlineNear,
			"Deadline approaching", message, since); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// notifyParticipants fans a notification out to every participant, skipping
// recipients who already received one of the same type since the cutoff.
func (s *Sweeper) notifyParticipants(ctx context.Context, promise *models.Promise, notificationType, title, message string, since time.Time) error {
	var errs error
	for _, userID := range promise.ParticipantIDs() {
		recent, err := s.notifications.HasRecent(ctx, userID, promise.ID, notificationType, since)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if recent {
			continue
		}
		if _, err := s.notifications.Create(ctx, services.CreateNotificationInput{
			UserID:           userID,
			Type:             notificationType,
			Title:            title,
			Message:          message,
			RelatedPromiseID: promise.ID,
		}); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func remainingPhrase(remaining time.Duration) string {
	if remaining < time.Hour {
		return "in less than an hour"
	}
	hours := int(remaining.Round(time.Hour).Hours())
	if hours == 1 {
		return "in about an hour"
	}
	return fmt.Sprintf("in about %d hours", hours)
}
