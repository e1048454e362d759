/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/andrewchw/jira-action-items-chatbot/internal/config"
	"github.com/andrewchw/jira-action-items-chatbot/internal/domain"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const (
	dueSweepLockKey   = 7420011
	cachePruneLockKey = 7420012
)

type tracker interface {
	Myself(ctx context.Context, userID string) (map[string]any, error)
	SearchIssues(ctx context.Context, userID, jql string, fieldNames []string, startAt, maxResults int) (map[string]any, error)
}

type store interface {
	TokenHolders(ctx context.Context) ([]string, error)
	DueReminders(ctx context.Context, asOf time.Time) ([]domain.Reminder, error)
	MarkReminderSent(ctx context.Context, id int64, at time.Time) error
	SnoozeReminder(ctx context.Context, id int64, until time.Time) error
	PruneCaches(ctx context.Context) error
	TryAdvisoryLock(ctx context.Context, key int64) (bool, error)
	AdvisoryUnlock(ctx context.Context, key int64)
}

// Scheduler sweeps every token holder's due issues on a fixed tick and
// rebuilds their notification queue.
type Scheduler struct {
	store    store
	tracker  tracker
	queue    *Queue
	interval time.Duration
	horizon  int // days ahead for the low-urgency window
	log      zerolog.Logger
	cron     *cron.Cron
	now      func() time.Time
}

func NewScheduler(cfg config.Config, st store, tr tracker, q *Queue, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		store:    st,
		tracker:  tr,
		queue:    q,
		interval: cfg.ReminderInterval,
		horizon:  cfg.ReminderHorizon,
		log:      log,
		cron:     cron.New(),
		now:      time.Now,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, func() { s.tick(ctx) }); err != nil { return err }
	if _, err := s.cron.AddFunc("@every 1h", func() { s.pruneCaches(ctx) }); err != nil { return err }
	s.cron.Start()
	s.log.Info().Str("interval", s.interval.String()).Msg("due-item scheduler started")
	return nil
}

func (s *Scheduler) Stop() context.Context { return s.cron.Stop() }

func (s *Scheduler) tick(ctx context.Context) {
	got, err := s.store.TryAdvisoryLock(ctx, dueSweepLockKey)
	if err != nil {
		s.log.Error().Err(err).Msg("due sweep: lock acquisition failed")
		return
	}
	if !got {
		s.log.Debug().Msg("due sweep: another replica holds the lock")
		return
	}
	defer s.store.AdvisoryUnlock(ctx, dueSweepLockKey)
	s.Sweep(ctx)
	s.DeliverReminders(ctx)
}

func (s *Scheduler) pruneCaches(ctx context.Context) {
	got, err := s.store.TryAdvisoryLock(ctx, cachePruneLockKey)
	if err != nil || !got { return }
	defer s.store.AdvisoryUnlock(ctx, cachePruneLockKey)
	if err := s.store.PruneCaches(ctx); err != nil {
		s.log.Warn().Err(err).Msg("cache prune failed")
	}
}

// Sweep runs one full pass. A failing user is logged and skipped; one bad
// token must not starve everyone else's reminders.
func (s *Scheduler) Sweep(ctx context.Context) {
	users, err := s.store.TokenHolders(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("due sweep: listing token holders failed")
		return
	}
	for _, userID := range users {
		if _, err := s.tracker.Myself(ctx, userID); err != nil {
			s.log.Warn().Err(err).Str("user", userID).Msg("due sweep: token check failed, skipping user")
			continue
		}
		items, err := s.collect(ctx, userID)
		if err != nil {
			s.log.Warn().Err(err).Str("user", userID).Msg("due sweep: collection failed, skipping user")
			continue
		}
		s.queue.Replace(userID, items)
		if len(items) > 0 {
			s.log.Info().Str("user", userID).Int("count", len(items)).Msg("due sweep: queued notifications")
		}
	}
}

// DeliverReminders pushes user-created reminders that have come due. Unlike the
// issue sweep these append rather than replace: a reminder fires once, then is
// either marked sent or re-armed on its recurrence.
func (s *Scheduler) DeliverReminders(ctx context.Context) {
	now := s.now()
	rems, err := s.store.DueReminders(ctx, now)
	if err != nil {
		s.log.Error().Err(err).Msg("reminder delivery: listing due reminders failed")
		return
	}
	for _, rem := range rems {
		if rem.UserID == "" { continue }
		msg := rem.Message
		if msg == "" { msg = fmt.Sprintf("Reminder for %s", rem.IssueKey) }
		s.queue.Append(rem.UserID, domain.Notification{
			IssueKey:  rem.IssueKey,
			Title:     msg,
			Message:   msg,
			DueDate:   rem.DueAt.Format("2006-01-02"),
			Urgency:   domain.UrgencyHigh,
			Actions:   []string{"Done", "View", "Snooze"},
			Timestamp: now,
		})
		if next, ok := nextOccurrence(rem.Recurrence, rem.DueAt); ok {
			if err := s.store.SnoozeReminder(ctx, rem.ID, next); err != nil {
				s.log.Warn().Err(err).Int64("id", rem.ID).Msg("reminder delivery: re-arm failed")
			}
			continue
		}
		if err := s.store.MarkReminderSent(ctx, rem.ID, now); err != nil {
			s.log.Warn().Err(err).Int64("id", rem.ID).Msg("reminder delivery: mark sent failed")
		}
	}
}

func nextOccurrence(recurrence string, from time.Time) (time.Time, bool) {
	switch recurrence {
	case "daily":
		return from.AddDate(0, 0, 1), true
	case "weekly":
		return from.AddDate(0, 0, 7), true
	case "monthly":
		return from.AddDate(0, 1, 0), true
	default:
		return time.Time{}, false
	}
}

type window struct {
	jql     string
	urgency string
	actions []string
	message func(due time.Time) string
}

func (s *Scheduler) windows() []window {
	now := s.now()
	today := now.Format("2006-01-02")
	tomorrow := now.AddDate(0, 0, 1).Format("2006-01-02")
	horizonEnd := now.AddDate(0, 0, s.horizon).Format("2006-01-02")
	base := `assignee = currentUser() AND resolution = Unresolved AND duedate %s ORDER BY priority DESC`
	return []window{
		{
			jql:     fmt.Sprintf(base, `= "`+today+`"`),
			urgency: domain.UrgencyHigh,
			actions: []string{"Done", "View", "Snooze"},
			message: func(time.Time) string { return "due today" },
		},
		{
			jql:     fmt.Sprintf(base, `= "`+tomorrow+`"`),
			urgency: domain.UrgencyMedium,
			actions: []string{"View", "Snooze"},
			message: func(time.Time) string { return "due tomorrow" },
		},
		{
			jql:     fmt.Sprintf(base, `> "`+tomorrow+`" AND duedate <= "`+horizonEnd+`"`),
			urgency: domain.UrgencyLow,
			actions: []string{"View"},
			message: func(due time.Time) string {
				days := int(due.Sub(now.Truncate(24*time.Hour)).Hours() / 24)
				return fmt.Sprintf("due in %d days", days)
			},
		},
	}
}

func (s *Scheduler) collect(ctx context.Context, userID string) ([]domain.Notification, error) {
	fieldNames := []string{"summary", "duedate", "status", "priority"}
	var items []domain.Notification
	seen := make(map[string]bool)
	for _, w := range s.windows() {
		res, err := s.tracker.SearchIssues(ctx, userID, w.jql, fieldNames, 0, 50)
		if err != nil { return nil, err }
		issues, _ := res["issues"].([]any)
		for _, raw := range issues {
			issue, ok := raw.(map[string]any)
			if !ok { continue }
			key, _ := issue["key"].(string)
			if key == "" || seen[key] { continue }
			seen[key] = true
			fields, _ := issue["fields"].(map[string]any)
			n := domain.Notification{
				IssueKey:  key,
				Title:     stringField(fields, "summary"),
				DueDate:   stringField(fields, "duedate"),
				Status:    nameField(fields, "status"),
				Priority:  nameField(fields, "priority"),
				Urgency:   w.urgency,
				Actions:   w.actions,
				Timestamp: s.now(),
			}
			due, err := time.Parse("2006-01-02", n.DueDate)
			if err != nil { due = s.now() }
			n.Message = fmt.Sprintf("%s is %s", key, w.message(due))
			items = append(items, n)
		}
	}
	return items, nil
}

func stringField(fields map[string]any, key string) string {
	if fields == nil { return "" }
	s, _ := fields[key].(string)
	return s
}

func nameField(fields map[string]any, key string) string {
	if fields == nil { return "" }
	m, _ := fields[key].(map[string]any)
	if m == nil { return "" }
	s, _ := m["name"].(string)
	return s
}
