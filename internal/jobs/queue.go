package jobs

import (
	"sync"
	"time"

	"github.com/andrewchw/jira-action-items-chatbot/internal/domain"
)

// Queue holds pending notifications per user. Each sweep replaces a user's
// slice wholesale, so a notification dismissed in the tracker disappears on
// the next tick; Drain hands the slice to the caller and clears it in one
// critical section so concurrent polls never deliver a notification twice.
type Queue struct {
	mu     sync.Mutex
	byUser map[string][]domain.Notification
}

func NewQueue() *Queue {
	return &Queue{byUser: make(map[string][]domain.Notification)}
}

func (q *Queue) Replace(userID string, items []domain.Notification) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(items) == 0 {
		delete(q.byUser, userID)
		return
	}
	q.byUser[userID] = items
}

func (q *Queue) Append(userID string, n domain.Notification) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.byUser[userID] = append(q.byUser[userID], n)
}

func (q *Queue) Drain(userID string) []domain.Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.byUser[userID]
	delete(q.byUser, userID)
	return items
}

func (q *Queue) Pending(userID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.byUser[userID])
}

// PushTest enqueues a synthetic notification for end-to-end delivery checks.
// An empty message falls back to a fixed body.
func (q *Queue) PushTest(userID, message string, now time.Time) domain.Notification {
	if message == "" {
		message = "This is a test notification from the chatbot"
	}
	n := domain.Notification{
		IssueKey:  "TEST-123",
		Title:     "Test notification",
		Message:   message,
		DueDate:   now.Format("2006-01-02"),
		Status:    "Open",
		Priority:  "High",
		Urgency:   domain.UrgencyHigh,
		Actions:   []string{"Done", "View", "Snooze"},
		Timestamp: now,
		IsTest:    true,
	}
	q.Append(userID, n)
	return n
}
