package nlp

import (
	"strings"

	"github.com/andrewchw/jira-action-items-chatbot/internal/domain"
)

type ruleInput struct {
	normalized string
	tokens     []taggedToken
	entities   map[string]any
}

func (in ruleInput) has(key string) bool {
	_, ok := in.entities[key]
	return ok
}

// intentRules is the precedence chain as data: evaluated top to bottom, first
// match wins. The order is load-bearing: creation outranks lookups even when
// an issue key is present, and each gated rule requires both its keywords and
// its entity before firing.
var intentRules = []struct {
	intent domain.Intent
	match  func(ruleInput) bool
}{
	{domain.IntentCreateTask, func(in ruleInput) bool {
		return containsAny(in.normalized, kwCreateVerbs) && containsAny(in.normalized, kwTaskObjects)
	}},
	{domain.IntentUpdateTask, func(in ruleInput) bool {
		return in.has(domain.EntTaskID) && containsAny(in.normalized, kwUpdateVerbs)
	}},
	{domain.IntentTransitionTask, func(in ruleInput) bool {
		return in.has(domain.EntTaskID) && containsAny(in.normalized, kwTransitionVerbs) && in.has(domain.EntStatus)
	}},
	{domain.IntentAssignTask, func(in ruleInput) bool {
		return in.has(domain.EntTaskID) && containsAny(in.normalized, kwAssignVerbs) && in.has(domain.EntAssignee)
	}},
	{domain.IntentAddComment, func(in ruleInput) bool {
		return in.has(domain.EntTaskID) && containsAny(in.normalized, kwCommentVerbs) && in.has(domain.EntComment)
	}},
	{domain.IntentGetTaskDetails, func(in ruleInput) bool {
		return in.has(domain.EntTaskID) && containsAny(in.normalized, kwDetailWords)
	}},
	{domain.IntentAttachEvidence, func(in ruleInput) bool {
		return in.has(domain.EntTaskID) && containsAny(in.normalized, kwEvidenceActions) && in.has(domain.EntFileName)
	}},
	{domain.IntentCreateReminder, func(in ruleInput) bool {
		return in.has(domain.EntTaskID) && containsAny(in.normalized, kwReminderActions) && in.has(domain.EntReminderTime)
	}},
	{domain.IntentGetMyTasks, func(in ruleInput) bool {
		return listingTasks(in) && (strings.Contains(in.normalized, "my") || hasToken(in.tokens, "me") || strings.Contains(in.normalized, "assigned to me"))
	}},
	{domain.IntentGetOverdueTasks, func(in ruleInput) bool {
		return listingTasks(in) && strings.Contains(in.normalized, "overdue")
	}},
	{domain.IntentGetTasks, listingTasks},
	{domain.IntentListReminders, func(in ruleInput) bool {
		return containsAny(in.normalized, kwListActions) && containsAny(in.normalized, kwReminderActions)
	}},
	{domain.IntentHelp, func(in ruleInput) bool {
		return containsAny(in.normalized, kwHelpWords)
	}},
}

func listingTasks(in ruleInput) bool {
	return containsAny(in.normalized, kwListActions) && containsAny(in.normalized, kwTaskObjects)
}

func classify(normalized string, tokens []taggedToken, entities map[string]any) domain.Intent {
	in := ruleInput{normalized: normalized, tokens: tokens, entities: entities}
	for _, r := range intentRules {
		if r.match(in) { return r.intent }
	}
	return domain.IntentUnknown
}
