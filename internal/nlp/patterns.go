package nlp

import (
	"regexp"
	"strings"
)

// The fixed pattern battery. Issue keys, project keys and file names match
// against the original-case text; everything else against the normalized one.
var (
	reTaskID     = regexp.MustCompile(`\b([A-Z][A-Z0-9_]+-\d+)\b`)
	reProjectKey = regexp.MustCompile(`\b(?:project|in|for)\s+([A-Z][A-Z0-9_]+)\b`)
	reDatetime   = regexp.MustCompile(`\b(\d{1,2}[:/]\d{1,2}(?:[:/]\d{2,4})?)\b|\b(\d{1,2}(?:am|pm))\b|\b(tomorrow|today|next week|next month|in \d+ days?)\b`)
	reEmail      = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	reUsername   = regexp.MustCompile(`@([A-Za-z0-9._-]+)\b`)
	reDuration   = regexp.MustCompile(`\b(\d+)\s+(minute|minutes|mins|min|hour|hours|day|days|week|weeks|month|months)\b`)
	rePriority   = regexp.MustCompile(`\b(highest|high|medium|low|lowest|blocker|critical|major|minor|trivial)\s+priority\b`)
	reStatus     = regexp.MustCompile(`\b(to do|in progress|done|blocked|pending|completed|resolved|open|closed)\b`)
	reIssueType  = regexp.MustCompile(`\b(bug|task|story|epic|feature|improvement|sub-task)\b`)
	reFileName   = regexp.MustCompile(`\b([a-zA-Z0-9_.-]+\.(?:pdf|doc|docx|jpg|jpeg|png|xlsx|txt|zip))\b`)
)

// Ordered title patterns; first match wins. Quoted forms before bare ones.
var titlePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:titled|called|named)\s+"([^"]+)"`),
	regexp.MustCompile(`(?:titled|called|named)\s+'([^']+)'`),
	regexp.MustCompile(`(?:titled|called|named)\s+([^.,;:]+)`),
	regexp.MustCompile(`(?:create|add|new)\s+(?:a|an)\s+(?:task|issue|ticket|bug|story)\s+(?:for|about|on)\s+([^.,;:]+)`),
	regexp.MustCompile(`(?:create|add|new)\s+(?:a|an)\s+(?:task|issue|ticket|bug|story)\s+(?:titled|called|named)\s+([^.,;:]+)`),
}

var commentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:comment|note)(?:ing)?\s+"([^"]+)"`),
	regexp.MustCompile(`(?:comment|note)(?:ing)?\s+'([^']+)'`),
	regexp.MustCompile(`(?:comment|note)(?:ing)?\s+(?:that|saying|stating)\s+([^.,;:]+)`),
	regexp.MustCompile(`(?:with|and|add)\s+(?:the|a)\s+(?:comment|note)\s+"([^"]+)"`),
	regexp.MustCompile(`(?:with|and|add)\s+(?:the|a)\s+(?:comment|note)\s+'([^']+)'`),
	regexp.MustCompile(`(?:with|and|add)\s+(?:the|a)\s+(?:comment|note)\s+([^.,;:]+)`),
}

var descChangePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:change|update|modify|set)\s+(?:the\s+)?description\s+(?:to|as)\s+"([^"]+)"`),
	regexp.MustCompile(`(?:change|update|modify|set)\s+(?:the\s+)?description\s+(?:to|as)\s+'([^']+)'`),
	regexp.MustCompile(`(?:change|update|modify|set)\s+(?:the\s+)?description\s+(?:to|as)\s+([^.,;:]+)`),
}

var summaryChangePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:change|update|modify|set)\s+(?:the\s+)?(?:summary|title)\s+(?:to|as)\s+"([^"]+)"`),
	regexp.MustCompile(`(?:change|update|modify|set)\s+(?:the\s+)?(?:summary|title)\s+(?:to|as)\s+'([^']+)'`),
	regexp.MustCompile(`(?:change|update|modify|set)\s+(?:the\s+)?(?:summary|title)\s+(?:to|as)\s+([^.,;:]+)`),
}

// Keyword vocabularies gating the intent rules.
var (
	kwTaskActions     = []string{"create", "add", "make", "new", "update", "edit", "change", "modify", "delete", "remove", "assign", "transition", "move"}
	kwTaskObjects     = []string{"task", "issue", "ticket", "story", "bug", "feature", "item", "action item", "epic", "subtask"}
	kwReminderActions = []string{"remind", "remember", "notification", "alert", "ping", "notify", "follow up"}
	kwListActions     = []string{"show", "list", "get", "view", "display", "what are", "find", "search", "query", "fetch"}
	kwEvidenceActions = []string{"attach", "upload", "evidence", "file", "document", "screenshot", "proof", "add file"}
	kwCreateVerbs     = []string{"create", "add", "new"}
	kwUpdateVerbs     = []string{"update", "change", "modify", "edit"}
	kwTransitionVerbs = []string{"transition", "move", "change status", "mark as"}
	kwAssignVerbs     = []string{"assign", "give to", "transfer to"}
	kwCommentVerbs    = []string{"comment", "note", "remark"}
	kwDetailWords     = []string{"detail", "about", "info", "information", "describe", "show"}
	kwHelpWords       = []string{"help", "how do i", "how to", "explain", "guide"}
)

// statusTerms maps canonical workflow statuses to their spoken synonyms.
var statusTerms = map[string][]string{
	"to do":       {"to do", "todo", "not started", "open", "new"},
	"in progress": {"in progress", "working on", "started", "ongoing", "in dev", "developing"},
	"done":        {"done", "complete", "finished", "resolved", "closed", "fixed"},
	"blocked":     {"blocked", "stuck", "impediment", "waiting", "on hold"},
}

// statusOrder keeps synonym scanning deterministic.
var statusOrder = []string{"to do", "in progress", "done", "blocked"}

// priorityTerms maps the five tracker priorities to their spoken synonyms.
var priorityTerms = map[string][]string{
	"highest": {"highest", "blocker", "critical", "urgent", "asap", "as soon as possible", "emergency", "p0"},
	"high":    {"high", "important", "major", "p1"},
	"medium":  {"medium", "normal", "default", "standard", "p2"},
	"low":     {"low", "minor", "can wait", "when possible", "p3"},
	"lowest":  {"lowest", "trivial", "whenever", "no rush", "p4"},
}

var priorityOrder = []string{"highest", "high", "medium", "low", "lowest"}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if w != "" && strings.Contains(text, w) { return true }
	}
	return false
}
