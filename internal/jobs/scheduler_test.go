package jobs

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/andrewchw/jira-action-items-chatbot/internal/config"
	"github.com/andrewchw/jira-action-items-chatbot/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	users   []string
	due     []domain.Reminder
	sent    []int64
	snoozed map[int64]time.Time
	locked  bool
}

func (s *fakeStore) TokenHolders(context.Context) ([]string, error) { return s.users, nil }

func (s *fakeStore) DueReminders(context.Context, time.Time) ([]domain.Reminder, error) {
	return s.due, nil
}

func (s *fakeStore) MarkReminderSent(_ context.Context, id int64, _ time.Time) error {
	s.sent = append(s.sent, id)
	return nil
}

func (s *fakeStore) SnoozeReminder(_ context.Context, id int64, until time.Time) error {
	if s.snoozed == nil { s.snoozed = map[int64]time.Time{} }
	s.snoozed[id] = until
	return nil
}

func (s *fakeStore) PruneCaches(context.Context) error { return nil }

func (s *fakeStore) TryAdvisoryLock(context.Context, int64) (bool, error) { return !s.locked, nil }

func (s *fakeStore) AdvisoryUnlock(context.Context, int64) {}

type fakeTracker struct {
	myselfErr map[string]error
	issues    map[string][]map[string]any // jql fragment -> issues
}

func (tr *fakeTracker) Myself(_ context.Context, userID string) (map[string]any, error) {
	if err := tr.myselfErr[userID]; err != nil { return nil, err }
	return map[string]any{"name": userID}, nil
}

func (tr *fakeTracker) SearchIssues(_ context.Context, _, jql string, _ []string, _, _ int) (map[string]any, error) {
	for frag, issues := range tr.issues {
		if strings.Contains(jql, frag) {
			out := make([]any, 0, len(issues))
			for _, i := range issues { out = append(out, i) }
			return map[string]any{"issues": out}, nil
		}
	}
	return map[string]any{"issues": []any{}}, nil
}

func issue(key, summary, due, priority string) map[string]any {
	return map[string]any{
		"key": key,
		"fields": map[string]any{
			"summary":  summary,
			"duedate":  due,
			"status":   map[string]any{"name": "To Do"},
			"priority": map[string]any{"name": priority},
		},
	}
}

func newTestScheduler(st store, tr tracker, q *Queue) *Scheduler {
	cfg := config.Config{ReminderInterval: 15 * time.Minute, ReminderHorizon: 7}
	s := NewScheduler(cfg, st, tr, q, zerolog.Nop())
	s.now = func() time.Time { return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC) }
	return s
}

func TestSweepQueuesDueTodayAsHigh(t *testing.T) {
	q := NewQueue()
	tr := &fakeTracker{issues: map[string][]map[string]any{
		`= "2026-03-10"`: {
			issue("PROJ-1", "fix login", "2026-03-10", "Highest"),
			issue("PROJ-2", "rotate keys", "2026-03-10", "High"),
		},
	}}
	s := newTestScheduler(&fakeStore{users: []string{"u1"}}, tr, q)

	s.Sweep(context.Background())

	items := q.Drain("u1")
	require.Len(t, items, 2)
	for _, n := range items {
		assert.Equal(t, domain.UrgencyHigh, n.Urgency)
		assert.Equal(t, []string{"Done", "View", "Snooze"}, n.Actions)
		assert.Contains(t, n.Message, "due today")
	}
}

func TestSweepUrgencyTiers(t *testing.T) {
	q := NewQueue()
	tr := &fakeTracker{issues: map[string][]map[string]any{
		`= "2026-03-10"`: {issue("PROJ-1", "a", "2026-03-10", "High")},
		`= "2026-03-11"`: {issue("PROJ-2", "b", "2026-03-11", "High")},
		`> "2026-03-11"`: {issue("PROJ-3", "c", "2026-03-13", "Low")},
	}}
	s := newTestScheduler(&fakeStore{users: []string{"u1"}}, tr, q)

	s.Sweep(context.Background())

	items := q.Drain("u1")
	require.Len(t, items, 3)
	byKey := map[string]domain.Notification{}
	for _, n := range items { byKey[n.IssueKey] = n }

	assert.Equal(t, domain.UrgencyHigh, byKey["PROJ-1"].Urgency)
	assert.Equal(t, domain.UrgencyMedium, byKey["PROJ-2"].Urgency)
	assert.Equal(t, []string{"View", "Snooze"}, byKey["PROJ-2"].Actions)
	assert.Contains(t, byKey["PROJ-2"].Message, "due tomorrow")
	assert.Equal(t, domain.UrgencyLow, byKey["PROJ-3"].Urgency)
	assert.Equal(t, []string{"View"}, byKey["PROJ-3"].Actions)
	assert.Contains(t, byKey["PROJ-3"].Message, "due in 3 days")
}

// One user's dead token must not stop the sweep for everyone else.
func TestSweepSkipsFailingUser(t *testing.T) {
	q := NewQueue()
	tr := &fakeTracker{
		myselfErr: map[string]error{"bad": fmt.Errorf("expired token")},
		issues: map[string][]map[string]any{
			`= "2026-03-10"`: {issue("PROJ-1", "a", "2026-03-10", "High")},
		},
	}
	s := newTestScheduler(&fakeStore{users: []string{"bad", "good"}}, tr, q)

	s.Sweep(context.Background())

	assert.Empty(t, q.Drain("bad"))
	assert.Len(t, q.Drain("good"), 1)
}

func TestSweepReplacesPreviousQueue(t *testing.T) {
	q := NewQueue()
	q.Append("u1", domain.Notification{IssueKey: "STALE-1"})
	tr := &fakeTracker{issues: map[string][]map[string]any{
		`= "2026-03-10"`: {issue("PROJ-1", "a", "2026-03-10", "High")},
	}}
	s := newTestScheduler(&fakeStore{users: []string{"u1"}}, tr, q)

	s.Sweep(context.Background())

	items := q.Drain("u1")
	require.Len(t, items, 1)
	assert.Equal(t, "PROJ-1", items[0].IssueKey)
}

func TestDeliverRemindersMarksSent(t *testing.T) {
	q := NewQueue()
	st := &fakeStore{due: []domain.Reminder{
		{ID: 5, UserID: "u1", IssueKey: "PROJ-9", DueAt: time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC), Message: "standup follow-up"},
	}}
	s := newTestScheduler(st, &fakeTracker{}, q)

	s.DeliverReminders(context.Background())

	items := q.Drain("u1")
	require.Len(t, items, 1)
	assert.Equal(t, "PROJ-9", items[0].IssueKey)
	assert.Equal(t, "standup follow-up", items[0].Message)
	assert.Equal(t, domain.UrgencyHigh, items[0].Urgency)
	assert.Equal(t, []int64{5}, st.sent)
	assert.Empty(t, st.snoozed)
}

func TestDeliverRemindersReArmsRecurring(t *testing.T) {
	q := NewQueue()
	due := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	st := &fakeStore{due: []domain.Reminder{
		{ID: 7, UserID: "u1", IssueKey: "PROJ-2", DueAt: due, Recurrence: "daily"},
	}}
	s := newTestScheduler(st, &fakeTracker{}, q)

	s.DeliverReminders(context.Background())

	require.Len(t, q.Drain("u1"), 1)
	assert.Empty(t, st.sent)
	assert.Equal(t, due.AddDate(0, 0, 1), st.snoozed[7])
}

func TestDeliverRemindersSkipsOwnerless(t *testing.T) {
	q := NewQueue()
	st := &fakeStore{due: []domain.Reminder{{ID: 3, IssueKey: "PROJ-4"}}}
	s := newTestScheduler(st, &fakeTracker{}, q)

	s.DeliverReminders(context.Background())

	assert.Empty(t, q.Drain(""))
	assert.Empty(t, st.sent)
}

func TestQueueDrainIsAtomic(t *testing.T) {
	q := NewQueue()
	for i := 0; i < 100; i++ {
		q.Append("u1", domain.Notification{IssueKey: fmt.Sprintf("PROJ-%d", i)})
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n := len(q.Drain("u1"))
			mu.Lock()
			total += n
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, total, "every notification is delivered exactly once")
	assert.Zero(t, q.Pending("u1"))
}

func TestQueuePushTest(t *testing.T) {
	q := NewQueue()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	n := q.PushTest("u1", "checking delivery", now)

	assert.True(t, n.IsTest)
	assert.Equal(t, "TEST-123", n.IssueKey)
	assert.Equal(t, "checking delivery", n.Message)
	assert.Equal(t, domain.UrgencyHigh, n.Urgency)

	items := q.Drain("u1")
	require.Len(t, items, 1)
	assert.Equal(t, "TEST-123", items[0].IssueKey)
}

func TestQueuePushTestDefaultMessage(t *testing.T) {
	q := NewQueue()
	n := q.PushTest("u1", "", time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))

	assert.Equal(t, "This is a test notification from the chatbot", n.Message)
}
