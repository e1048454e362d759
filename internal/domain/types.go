package domain

import "time"

// Intent is the classified purpose of a free-text command.
type Intent string

const (
	IntentCreateTask      Intent = "create_task"
	IntentUpdateTask      Intent = "update_task"
	IntentTransitionTask  Intent = "transition_task"
	IntentAssignTask      Intent = "assign_task"
	IntentAddComment      Intent = "add_comment"
	IntentGetTaskDetails  Intent = "get_task_details"
	IntentAttachEvidence  Intent = "attach_evidence"
	IntentCreateReminder  Intent = "create_reminder"
	IntentGetMyTasks      Intent = "get_my_tasks"
	IntentGetOverdueTasks Intent = "get_overdue_tasks"
	IntentGetTasks        Intent = "get_tasks"
	IntentListReminders   Intent = "list_reminders"
	IntentHelp            Intent = "help"
	IntentUnknown         Intent = "unknown"
)

// ExtractedCommand is the extractor's output: one per incoming message,
// immutable once produced.
type ExtractedCommand struct {
	Intent   Intent
	Entities map[string]any
	RawText  string
}

// Entity keys shared by extractor, mapper and orchestrator.
const (
	EntOriginalQuery = "original_query"
	EntTaskID        = "task_id"
	EntProjectKey    = "project_key"
	EntTitle         = "title"
	EntDescription   = "description"
	EntComment       = "comment"
	EntChanges       = "changes"
	EntAssignee      = "assignee"
	EntReporter      = "reporter"
	EntPriority      = "priority"
	EntStatus        = "status"
	EntIssueType     = "issue_type"
	EntDueDate       = "due_date"
	EntReminderTime  = "reminder_time"
	EntReminderRaw   = "reminder_time_raw"
	EntFileName      = "file_name"
	EntFilterClause  = "filter_clause"
	EntLabels        = "labels"
	EntComponents    = "components"

	// Marker value meaning "the user issuing this command".
	SelfAssignee = "current_user"
)

// DeployMode distinguishes the two tracker variants. They diverge on user
// identity shape (accountId vs username) and on description format.
type DeployMode string

const (
	ModeCloud  DeployMode = "cloud"
	ModeServer DeployMode = "server"
)

// FieldSet is the canonical tracker payload built from extracted entities.
// Zero values mean "not set".
type FieldSet struct {
	ProjectKey  string
	Summary     string
	Description string
	IssueType   string
	Priority    string
	Assignee    *UserRef
	Reporter    *UserRef
	DueDate     string
	Labels      []string
	Components  []string
}

// UserRef is a deployment-aware user reference for write payloads. Exactly
// one of AccountID, Email, or Name is set.
type UserRef struct {
	AccountID string
	Email     string
	Name      string
}

// IdentityRecord is one row of the local identity cache. StableID is an
// opaque cloud account id or a server username depending on DeployMode;
// records are never deleted, only refreshed.
type IdentityRecord struct {
	StableID    string
	Username    string
	DisplayName string
	Email       string
	AvatarURL   string
	Active      bool
	LastUpdated time.Time
}

// Token is a per-user bearer credential read from the token store. Writes
// belong to the OAuth flow, which lives outside this service.
type Token struct {
	UserID    string
	Access    string
	Refresh   string
	ExpiresAt time.Time
}

func (t Token) Valid(now time.Time) bool {
	return t.Access != "" && now.Before(t.ExpiresAt)
}

// Reminder is persisted due-item state, mutated by snooze/mark-done and the
// scheduler.
type Reminder struct {
	ID         int64
	UserID     string
	IssueKey   string
	DueAt      time.Time
	Message    string
	Recurrence string
	Sent       bool
	LastSent   *time.Time
}

// Urgency tiers drive which actions a notification offers.
const (
	UrgencyHigh   = "high"
	UrgencyMedium = "medium"
	UrgencyLow    = "low"
)

// Notification is an ephemeral per-user queue entry, held until drained by a
// client poll.
type Notification struct {
	IssueKey  string    `json:"key"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	DueDate   string    `json:"due_date"`
	Status    string    `json:"status"`
	Priority  string    `json:"priority"`
	Urgency   string    `json:"urgency"`
	Actions   []string  `json:"actions"`
	Timestamp time.Time `json:"timestamp"`
	IsTest    bool      `json:"is_test,omitempty"`
}

// ChatMessage is one turn handed to the text-generation collaborator.
type ChatMessage struct {
	Role    string
	Content string
}

// CommandResult is the orchestrator's structured outcome. Failures are values
// here, never panics further up.
type CommandResult struct {
	Success  bool           `json:"success"`
	Intent   Intent         `json:"intent"`
	Message  string         `json:"message,omitempty"`
	IssueKey string         `json:"issue_key,omitempty"`
	Error    string         `json:"error,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
}
