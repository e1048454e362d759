/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/andrewchw/jira-action-items-chatbot/internal/config"
	"github.com/andrewchw/jira-action-items-chatbot/internal/domain"
	"github.com/andrewchw/jira-action-items-chatbot/internal/fields"
	"github.com/rs/zerolog"
)

// Consumer-side views of the collaborators; the concrete types live in their
// own packages.

type extractor interface {
	Extract(text string) domain.ExtractedCommand
}

type mapper interface {
	ToTrackerFields(ctx context.Context, entities map[string]any) (domain.FieldSet, error)
}

type resolver interface {
	Resolve(ctx context.Context, reference string) (domain.IdentityRecord, error)
}

type trackerClient interface {
	Mode() domain.DeployMode
	SearchIssues(ctx context.Context, userID, jql string, fieldNames []string, startAt, maxResults int) (map[string]any, error)
	Issue(ctx context.Context, userID, key string, fieldNames []string) (map[string]any, error)
	CreateIssue(ctx context.Context, userID string, issueFields map[string]any) (map[string]any, error)
	UpdateIssue(ctx context.Context, userID, key string, issueFields map[string]any) error
	AddComment(ctx context.Context, userID, key, text string) (map[string]any, error)
	Transitions(ctx context.Context, userID, key string) ([]map[string]any, error)
	ApplyTransition(ctx context.Context, userID, key, transitionID, comment string) error
	AssignIssue(ctx context.Context, userID, key string, ref domain.UserRef) error
}

type reminderStore interface {
	CreateReminder(ctx context.Context, rem domain.Reminder) (int64, error)
	RemindersByIssue(ctx context.Context, issueKey string) ([]domain.Reminder, error)
	DueReminders(ctx context.Context, asOf time.Time) ([]domain.Reminder, error)
	SnoozeReminder(ctx context.Context, id int64, until time.Time) error
	DeleteReminder(ctx context.Context, id int64) error
}

type completer interface {
	Complete(ctx context.Context, messages []domain.ChatMessage, temperature float64, maxTokens int64, useCache bool) (string, error)
}

// Service is the command orchestrator: one natural-language message in, one
// structured result out. Failures come back as values inside the result.
type Service struct {
	extract        extractor
	mapper         mapper
	resolver       resolver
	tracker        trackerClient
	reminders      reminderStore
	llm            completer
	defaultProject string
	log            zerolog.Logger
	now            func() time.Time
}

func New(ex extractor, mp mapper, rs resolver, tc trackerClient, rm reminderStore, lm completer, cfg config.Config, log zerolog.Logger) *Service {
	return &Service{
		extract:        ex,
		mapper:         mp,
		resolver:       rs,
		tracker:        tc,
		reminders:      rm,
		llm:            lm,
		defaultProject: cfg.DefaultProject,
		log:            log,
		now:            time.Now,
	}
}

func (s *Service) Handle(ctx context.Context, userID, text string) domain.CommandResult {
	cmd := s.extract.Extract(text)
	s.log.Info().Str("user", userID).Str("intent", string(cmd.Intent)).Msg("command extracted")

	var res domain.CommandResult
	switch cmd.Intent {
	case domain.IntentCreateTask:
		res = s.createTask(ctx, userID, cmd)
	case domain.IntentUpdateTask:
		res = s.updateTask(ctx, userID, cmd)
	case domain.IntentTransitionTask:
		res = s.transitionTask(ctx, userID, cmd)
	case domain.IntentAssignTask:
		res = s.assignTask(ctx, userID, cmd)
	case domain.IntentAddComment:
		res = s.addComment(ctx, userID, cmd)
	case domain.IntentGetTaskDetails:
		res = s.taskDetails(ctx, userID, cmd)
	case domain.IntentAttachEvidence:
		res = s.attachEvidence(ctx, userID, cmd)
	case domain.IntentCreateReminder:
		res = s.createReminder(ctx, userID, cmd)
	case domain.IntentListReminders:
		res = s.listReminders(ctx, cmd)
	case domain.IntentGetMyTasks, domain.IntentGetOverdueTasks, domain.IntentGetTasks:
		res = s.listTasks(ctx, userID, cmd)
	case domain.IntentHelp:
		res = domain.CommandResult{Success: true, Intent: cmd.Intent, Message: helpText}
	default:
		res = s.freeform(ctx, cmd)
	}
	res.Intent = cmd.Intent
	return res
}

func (s *Service) createTask(ctx context.Context, userID string, cmd domain.ExtractedCommand) domain.CommandResult {
	fs, err := s.mapper.ToTrackerFields(ctx, cmd.Entities)
	if err != nil { return s.failure(cmd, err) }
	if fs.ProjectKey == "" { fs.ProjectKey = s.defaultProject }
	if fs.ProjectKey == "" {
		return s.failure(cmd, &domain.ValidationError{Field: "project", Reason: "no project named and no default configured"})
	}
	if fs.Summary == "" {
		return s.failure(cmd, &domain.ValidationError{Field: "summary", Reason: "could not find a title in the request"})
	}
	out, err := s.tracker.CreateIssue(ctx, userID, fields.Payload(fs, s.tracker.Mode()))
	if err != nil { return s.failure(cmd, err) }
	key, _ := out["key"].(string)
	return domain.CommandResult{
		Success:  true,
		IssueKey: key,
		Message:  fmt.Sprintf("Created %s: %s", key, fs.Summary),
		Details:  map[string]any{"project": fs.ProjectKey, "issue_type": fs.IssueType, "priority": fs.Priority},
	}
}

func (s *Service) updateTask(ctx context.Context, userID string, cmd domain.ExtractedCommand) domain.CommandResult {
	key := entString(cmd, domain.EntTaskID)
	fs, err := s.mapper.ToTrackerFields(ctx, cmd.Entities)
	if err != nil { return s.failure(cmd, err) }
	fs.ProjectKey = "" // never move an issue between projects on update
	fs.IssueType = ""
	payload := fields.Payload(fs, s.tracker.Mode())
	if changes := entString(cmd, domain.EntChanges); changes != "" {
		applyChangeLines(payload, changes, s.tracker.Mode())
	}
	if len(payload) == 0 {
		return s.failure(cmd, &domain.ValidationError{Field: "changes", Reason: "nothing to update"})
	}
	if err := s.tracker.UpdateIssue(ctx, userID, key, payload); err != nil { return s.failure(cmd, err) }
	return domain.CommandResult{Success: true, IssueKey: key, Message: fmt.Sprintf("Updated %s", key)}
}

func (s *Service) transitionTask(ctx context.Context, userID string, cmd domain.ExtractedCommand) domain.CommandResult {
	key := entString(cmd, domain.EntTaskID)
	target := entString(cmd, domain.EntStatus)
	transitions, err := s.tracker.Transitions(ctx, userID, key)
	if err != nil { return s.failure(cmd, err) }
	id, name := matchTransition(transitions, target)
	if id == "" {
		return s.failure(cmd, &domain.ValidationError{Field: "status", Reason: fmt.Sprintf("no transition to %q from the current status", target)})
	}
	if err := s.tracker.ApplyTransition(ctx, userID, key, id, ""); err != nil { return s.failure(cmd, err) }
	return domain.CommandResult{Success: true, IssueKey: key, Message: fmt.Sprintf("Moved %s to %s", key, name)}
}

func (s *Service) assignTask(ctx context.Context, userID string, cmd domain.ExtractedCommand) domain.CommandResult {
	key := entString(cmd, domain.EntTaskID)
	who := entString(cmd, domain.EntAssignee)
	var ref domain.UserRef
	if who == domain.SelfAssignee {
		// currentUser() is not usable in the assignee endpoint; resolve the
		// caller through the directory like any other reference.
		who = userID
	}
	rec, err := s.resolver.Resolve(ctx, who)
	if err != nil { return s.failure(cmd, err) }
	if s.tracker.Mode() == domain.ModeCloud {
		ref = domain.UserRef{AccountID: rec.StableID}
	} else {
		ref = domain.UserRef{Name: rec.StableID}
	}
	if err := s.tracker.AssignIssue(ctx, userID, key, ref); err != nil { return s.failure(cmd, err) }
	display := rec.DisplayName
	if display == "" { display = who }
	return domain.CommandResult{Success: true, IssueKey: key, Message: fmt.Sprintf("Assigned %s to %s", key, display)}
}

func (s *Service) addComment(ctx context.Context, userID string, cmd domain.ExtractedCommand) domain.CommandResult {
	key := entString(cmd, domain.EntTaskID)
	text := entString(cmd, domain.EntComment)
	if text == "" {
		return s.failure(cmd, &domain.ValidationError{Field: "comment", Reason: "no comment text found"})
	}
	if _, err := s.tracker.AddComment(ctx, userID, key, text); err != nil { return s.failure(cmd, err) }
	return domain.CommandResult{Success: true, IssueKey: key, Message: fmt.Sprintf("Commented on %s", key)}
}

func (s *Service) taskDetails(ctx context.Context, userID string, cmd domain.ExtractedCommand) domain.CommandResult {
	key := entString(cmd, domain.EntTaskID)
	issue, err := s.tracker.Issue(ctx, userID, key, []string{"summary", "status", "priority", "assignee", "duedate", "description"})
	if err != nil { return s.failure(cmd, err) }
	f, _ := issue["fields"].(map[string]any)
	details := map[string]any{
		"summary":  strField(f, "summary"),
		"status":   nameOf(f, "status"),
		"priority": nameOf(f, "priority"),
		"assignee": displayNameOf(f, "assignee"),
		"due_date": strField(f, "duedate"),
	}
	return domain.CommandResult{
		Success:  true,
		IssueKey: key,
		Message:  fmt.Sprintf("%s: %s (%s, %s)", key, details["summary"], details["status"], details["priority"]),
		Details:  details,
	}
}

// attachEvidence cannot move bytes itself; the chat surface has no file
// stream. It acknowledges the request and leaves a trail on the issue so
// the upload is traceable once the client performs it.
func (s *Service) attachEvidence(ctx context.Context, userID string, cmd domain.ExtractedCommand) domain.CommandResult {
	key := entString(cmd, domain.EntTaskID)
	file := entString(cmd, domain.EntFileName)
	if _, err := s.tracker.AddComment(ctx, userID, key, fmt.Sprintf("Attachment pending: %s", file)); err != nil {
		return s.failure(cmd, err)
	}
	return domain.CommandResult{
		Success:  true,
		IssueKey: key,
		Message:  fmt.Sprintf("Noted %s as pending evidence on %s. Upload it from the issue page to finish.", file, key),
		Details:  map[string]any{"file_name": file},
	}
}

func (s *Service) createReminder(ctx context.Context, userID string, cmd domain.ExtractedCommand) domain.CommandResult {
	key := entString(cmd, domain.EntTaskID)
	raw := entString(cmd, domain.EntReminderTime)
	due, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return s.failure(cmd, &domain.ValidationError{Field: "reminder_time", Reason: fmt.Sprintf("could not understand %q as a time", entString(cmd, domain.EntReminderRaw))})
	}
	id, err := s.reminders.CreateReminder(ctx, domain.Reminder{
		UserID:     userID,
		IssueKey:   key,
		DueAt:      due,
		Message:    fmt.Sprintf("Reminder for %s", key),
		Recurrence: recurrenceFrom(cmd.RawText),
	})
	if err != nil { return s.failure(cmd, err) }
	return domain.CommandResult{
		Success:  true,
		IssueKey: key,
		Message:  fmt.Sprintf("Reminder set for %s at %s", key, due.Format("Mon Jan 2 15:04")),
		Details:  map[string]any{"reminder_id": id},
	}
}

func recurrenceFrom(text string) string {
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "every day") || strings.Contains(t, "daily"):
		return "daily"
	case strings.Contains(t, "every week") || strings.Contains(t, "weekly"):
		return "weekly"
	case strings.Contains(t, "every month") || strings.Contains(t, "monthly"):
		return "monthly"
	}
	return ""
}

func (s *Service) listReminders(ctx context.Context, cmd domain.ExtractedCommand) domain.CommandResult {
	var (
		rems []domain.Reminder
		err  error
	)
	if key := entString(cmd, domain.EntTaskID); key != "" {
		rems, err = s.reminders.RemindersByIssue(ctx, key)
	} else {
		rems, err = s.reminders.DueReminders(ctx, s.now().AddDate(0, 0, 30))
	}
	if err != nil { return s.failure(cmd, err) }
	if len(rems) == 0 {
		return domain.CommandResult{Success: true, Message: "No reminders set."}
	}
	lines := make([]string, 0, len(rems))
	for _, r := range rems {
		lines = append(lines, fmt.Sprintf("%s at %s", r.IssueKey, r.DueAt.Format("Mon Jan 2 15:04")))
	}
	return domain.CommandResult{
		Success: true,
		Message: "Reminders:\n" + strings.Join(lines, "\n"),
		Details: map[string]any{"count": len(rems)},
	}
}

func (s *Service) listTasks(ctx context.Context, userID string, cmd domain.ExtractedCommand) domain.CommandResult {
	jql := s.buildJQL(cmd)
	res, err := s.tracker.SearchIssues(ctx, userID, jql, []string{"summary", "status", "priority", "duedate"}, 0, 20)
	if err != nil { return s.failure(cmd, err) }
	issues, _ := res["issues"].([]any)
	if len(issues) == 0 {
		return domain.CommandResult{Success: true, Message: "No matching tasks found."}
	}
	lines := make([]string, 0, len(issues))
	for _, raw := range issues {
		issue, ok := raw.(map[string]any)
		if !ok { continue }
		key, _ := issue["key"].(string)
		f, _ := issue["fields"].(map[string]any)
		lines = append(lines, fmt.Sprintf("%s %s (%s)", key, strField(f, "summary"), nameOf(f, "status")))
	}
	return domain.CommandResult{
		Success: true,
		Message: fmt.Sprintf("Found %d tasks:\n%s", len(lines), strings.Join(lines, "\n")),
		Details: map[string]any{"count": len(lines), "jql": jql},
	}
}

func (s *Service) buildJQL(cmd domain.ExtractedCommand) string {
	switch cmd.Intent {
	case domain.IntentGetMyTasks:
		return `assignee = currentUser() AND resolution = Unresolved ORDER BY priority DESC, duedate ASC`
	case domain.IntentGetOverdueTasks:
		return `assignee = currentUser() AND resolution = Unresolved AND duedate < now() ORDER BY duedate ASC`
	default:
		clauses := []string{`resolution = Unresolved`}
		if pk := entString(cmd, domain.EntProjectKey); pk != "" {
			clauses = append(clauses, fmt.Sprintf("project = %s", pk))
		}
		if st := entString(cmd, domain.EntStatus); st != "" {
			clauses = append(clauses, fmt.Sprintf("status = %q", st))
		}
		if filter := entString(cmd, domain.EntFilterClause); filter == "for the current user" {
			clauses = append(clauses, `assignee = currentUser()`)
		}
		return strings.Join(clauses, " AND ") + ` ORDER BY priority DESC, duedate ASC`
	}
}

// freeform keeps an unrecognized message conversational rather than erroring.
func (s *Service) freeform(ctx context.Context, cmd domain.ExtractedCommand) domain.CommandResult {
	reply, err := s.llm.Complete(ctx, []domain.ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: cmd.RawText},
	}, 0.7, 0, true)
	if err != nil {
		return domain.CommandResult{
			Success: false,
			Error:   "I couldn't understand that request. Try 'help' to see what I can do.",
		}
	}
	return domain.CommandResult{Success: true, Message: reply}
}

// failure maps the error taxonomy to user-facing buckets. Internal detail
// goes to the log, not the chat.
func (s *Service) failure(cmd domain.ExtractedCommand, err error) domain.CommandResult {
	s.log.Warn().Err(err).Str("intent", string(cmd.Intent)).Msg("command failed")
	res := domain.CommandResult{Success: false, IssueKey: entString(cmd, domain.EntTaskID)}
	var (
		vErr *domain.ValidationError
		aErr *domain.AuthError
		tErr *domain.TransientNetworkError
		rErr *domain.RemoteAPIError
		sErr *domain.ResolutionError
	)
	switch {
	case errors.As(err, &vErr):
		res.Error = fmt.Sprintf("I couldn't understand that request: %s.", vErr.Reason)
	case errors.As(err, &sErr):
		res.Error = fmt.Sprintf("I couldn't find a user matching %q.", sErr.Reference)
	case errors.As(err, &aErr):
		res.Error = "I couldn't reach the tracker: authentication failed. Check the connected account."
	case errors.As(err, &tErr):
		res.Error = "I couldn't reach the tracker right now. Please try again in a moment."
	case errors.As(err, &rErr):
		res.Error = fmt.Sprintf("The tracker rejected this: %s", rErr.Message)
	default:
		res.Error = "Something went wrong handling that request."
	}
	return res
}

// applyChangeLines merges "Field: value" lines from an update command into
// the write payload.
func applyChangeLines(payload map[string]any, changes string, mode domain.DeployMode) {
	for _, line := range strings.Split(changes, "\n") {
		name, value, ok := strings.Cut(line, ":")
		if !ok { continue }
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "summary":
			payload["summary"] = value
		case "description":
			if mode == domain.ModeCloud {
				payload["description"] = fields.ADF(value)
			} else {
				payload["description"] = value
			}
		case "priority":
			payload["priority"] = map[string]any{"name": fields.NormalizePriority(value)}
		}
	}
}

// matchTransition finds a workflow transition whose target status matches the
// requested name, exact first then substring, both case-insensitive.
func matchTransition(transitions []map[string]any, target string) (id, name string) {
	want := strings.ToLower(strings.TrimSpace(target))
	var partialID, partialName string
	for _, t := range transitions {
		tid, _ := t["id"].(string)
		to, _ := t["to"].(map[string]any)
		tname, _ := to["name"].(string)
		if tname == "" {
			tname, _ = t["name"].(string)
		}
		lower := strings.ToLower(tname)
		if lower == want { return tid, tname }
		if partialID == "" && (strings.Contains(lower, want) || strings.Contains(want, lower)) {
			partialID, partialName = tid, tname
		}
	}
	return partialID, partialName
}

func entString(cmd domain.ExtractedCommand, key string) string {
	s, _ := cmd.Entities[key].(string)
	return s
}

func strField(f map[string]any, key string) string {
	if f == nil { return "" }
	s, _ := f[key].(string)
	return s
}

func nameOf(f map[string]any, key string) string {
	if f == nil { return "" }
	m, _ := f[key].(map[string]any)
	if m == nil { return "" }
	s, _ := m["name"].(string)
	return s
}

func displayNameOf(f map[string]any, key string) string {
	if f == nil { return "" }
	m, _ := f[key].(map[string]any)
	if m == nil { return "Unassigned" }
	s, _ := m["displayName"].(string)
	if s == "" { return "Unassigned" }
	return s
}

const systemPrompt = `You are a concise assistant for a Jira task chatbot. ` +
	`Answer briefly. When the user seems to want a task action, suggest the ` +
	`phrasing the bot understands, e.g. "Create a task in PROJ about ..." or ` +
	`"Assign PROJ-12 to @name".`

const helpText = `Here's what I can do:
- Create a task: "Create a high priority bug in PROJ about login failures"
- Update a task: "Update PROJ-12 description: new details"
- Move a task: "Move PROJ-12 to In Progress"
- Assign: "Assign PROJ-12 to @sam"
- Comment: "Comment on PROJ-12: looks good"
- Details: "Show details for PROJ-12"
- Reminders: "Remind me about PROJ-12 tomorrow at 9am"
- Lists: "Show my tasks", "Show overdue tasks"`
