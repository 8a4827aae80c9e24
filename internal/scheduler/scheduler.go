// Package scheduler runs the due scanner: a periodic job that finds
// due, unnotified revisions and dispatches one reminder per revision,
// throttled so overlapping ticks and slow scans never duplicate sends.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"

	"github.com/example/revbot/pkg/models"
)

// sendTimeout bounds a single reminder dispatch so one hung delivery
// can't stall the rest of the scan.
const sendTimeout = 15 * time.Second

// Store is the persistence capability the scanner consumes
type Store interface {
	QueryDue(ctx context.Context, now time.Time, throttle time.Duration) ([]models.Revision, error)
	TryMarkNotified(ctx context.Context, revisionID int64, at time.Time, throttle time.Duration) (bool, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
}

// Notifier delivers a single reminder carrying a "mark done" action
// addressed by the revision's identity
type Notifier interface {
	SendReminder(ctx context.Context, userID int64, rev models.Revision) error
}

// Config controls the due scanner
type Config struct {
	// ScanInterval is the tick period.
	ScanInterval time.Duration
	// ThrottleWindow is the minimum time between two reminder attempts
	// for the same revision.
	ThrottleWindow time.Duration
	// StartHour/EndHour bound the hours (UTC) during which any
	// reminders go out.
	StartHour int
	EndHour   int
	// MaxPerReminder caps reminders per user per tick to avoid
	// flooding a chat.
	MaxPerReminder int
}

// Scheduler manages the periodic due scan
type Scheduler struct {
	cfg      Config
	store    Store
	notifier Notifier
	cron     *gocron.Scheduler
	log      zerolog.Logger

	now func() time.Time
}

// New creates a scheduler instance. Start must be called to begin
// scanning.
func New(cfg Config, store Store, notifier Notifier, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		store:    store,
		notifier: notifier,
		cron:     gocron.NewScheduler(time.UTC),
		log:      log.With().Str("component", "scheduler").Logger(),
		now:      time.Now,
	}
}

// Start begins the periodic due scan. SingletonMode guarantees a slow
// tick is never overlapped by the next one.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.Every(s.cfg.ScanInterval).SingletonMode().Do(func() {
		if err := s.RunDueScan(ctx); err != nil {
			// Transient store failure: the tick is skipped and the next
			// one retries, nothing crashes.
			s.log.Error().Err(err).Msg("due scan failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule due scan: %w", err)
	}
	s.cron.StartAsync()
	s.log.Info().Dur("interval", s.cfg.ScanInterval).Msg("due scanner started")
	return nil
}

// Stop terminates the periodic scan. An in-flight tick finishes
// naturally.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// RunDueScan performs one scan tick: query due revisions, dispatch a
// reminder for each, and record the send. Outside the configured hour
// window the tick is a no-op.
func (s *Scheduler) RunDueScan(ctx context.Context) error {
	now := s.now().UTC()
	if hour := now.Hour(); hour < s.cfg.StartHour || hour > s.cfg.EndHour {
		s.log.Debug().Int("hour", hour).Msg("outside notification hours, skipping scan")
		return nil
	}
	return s.scan(ctx)
}

// RunManualCheck dispatches due reminders for a single user on demand,
// ignoring the hour window. Returns the number of reminders sent.
func (s *Scheduler) RunManualCheck(ctx context.Context, userID int64) (int, error) {
	return s.scanUser(ctx, userID)
}

func (s *Scheduler) scan(ctx context.Context) error {
	now := s.now().UTC()
	revs, err := s.store.QueryDue(ctx, now, s.cfg.ThrottleWindow)
	if err != nil {
		return fmt.Errorf("failed to query due revisions: %w", err)
	}
	if len(revs) == 0 {
		return nil
	}

	users := make(map[int64]*models.User)
	sent := make(map[int64]int)

	for _, rev := range revs {
		if sent[rev.UserID] >= s.cfg.MaxPerReminder {
			continue
		}

		user, ok := users[rev.UserID]
		if !ok {
			user, err = s.store.GetUser(ctx, rev.UserID)
			if err != nil {
				s.log.Warn().Err(err).Int64("user", rev.UserID).Msg("skipping revisions of unknown user")
				users[rev.UserID] = nil
				continue
			}
			users[rev.UserID] = user
		}
		if user == nil || !user.NotificationEnabled {
			continue
		}
		// Hold reminders until the user's preferred hour of day.
		if now.Hour() < user.NotificationHour {
			continue
		}

		if s.dispatch(ctx, rev) {
			sent[rev.UserID]++
		}
	}
	return nil
}

func (s *Scheduler) scanUser(ctx context.Context, userID int64) (int, error) {
	now := s.now().UTC()
	revs, err := s.store.QueryDue(ctx, now, s.cfg.ThrottleWindow)
	if err != nil {
		return 0, fmt.Errorf("failed to query due revisions: %w", err)
	}
	count := 0
	for _, rev := range revs {
		if rev.UserID != userID || count >= s.cfg.MaxPerReminder {
			continue
		}
		if s.dispatch(ctx, rev) {
			count++
		}
	}
	return count, nil
}

// dispatch sends one reminder and marks the revision notified. Send
// failures leave last_notified_at untouched so the next tick retries;
// the mark re-checks the throttle so two overlapping scans can't both
// record a send for the same window.
func (s *Scheduler) dispatch(ctx context.Context, rev models.Revision) bool {
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	if err := s.notifier.SendReminder(sendCtx, rev.UserID, rev); err != nil {
		s.log.Warn().Err(err).
			Int64("revision", rev.ID).
			Int64("user", rev.UserID).
			Msg("reminder delivery failed, will retry next tick")
		return false
	}

	ok, err := s.store.TryMarkNotified(ctx, rev.ID, s.now().UTC(), s.cfg.ThrottleWindow)
	if err != nil {
		s.log.Error().Err(err).Int64("revision", rev.ID).Msg("failed to record reminder send")
		return true
	}
	if !ok {
		s.log.Debug().Int64("revision", rev.ID).Msg("reminder already recorded by a concurrent scan")
	}
	return true
}
