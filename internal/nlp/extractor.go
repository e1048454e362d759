package nlp

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/andrewchw/jira-action-items-chatbot/internal/domain"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/rs/zerolog"
)

// Extractor turns free text into an intent plus a flat entity map. It never
// returns an error: anything it cannot read degrades to IntentUnknown with
// the original query preserved.
type Extractor struct {
	log zerolog.Logger
	w   *when.Parser
	now func() time.Time
}

func New(log zerolog.Logger) *Extractor {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &Extractor{log: log, w: w, now: time.Now}
}

func (e *Extractor) Extract(text string) domain.ExtractedCommand {
	entities := map[string]any{domain.EntOriginalQuery: text}
	normalized := Normalize(text)
	tokens := tagTokens(normalized)

	// Shape-sensitive patterns run against the original casing.
	if m := reTaskID.FindStringSubmatch(text); m != nil {
		entities[domain.EntTaskID] = m[1]
	}
	if m := reProjectKey.FindStringSubmatch(text); m != nil {
		entities[domain.EntProjectKey] = m[1]
	}
	if m := reFileName.FindStringSubmatch(text); m != nil {
		entities[domain.EntFileName] = m[1]
	}

	e.extractDatetime(normalized, entities)
	e.extractAssignee(text, tokens, entities)
	e.extractIssueType(normalized, entities)
	e.extractPriority(normalized, entities)
	e.extractStatus(normalized, entities)

	if containsAny(normalized, kwCreateVerbs) {
		e.extractTitle(normalized, tokens, entities)
	}
	if m := firstMatch(commentPatterns, normalized); m != "" {
		entities[domain.EntComment] = m
	}
	if containsAny(normalized, kwUpdateVerbs) {
		e.extractChanges(normalized, entities)
	}
	if containsAny(normalized, kwListActions) {
		e.buildFilterClause(normalized, entities)
	}

	intent := classify(normalized, tokens, entities)
	e.log.Debug().Str("intent", string(intent)).Int("entities", len(entities)).Msg("extracted command")
	return domain.ExtractedCommand{Intent: intent, Entities: entities, RawText: text}
}

func (e *Extractor) extractDatetime(normalized string, entities map[string]any) {
	m := reDatetime.FindStringSubmatch(normalized)
	if m == nil {
		e.extractDuration(normalized, entities)
		return
	}
	raw := ""
	for _, g := range m[1:] {
		if g != "" { raw = g; break }
	}
	if raw == "" { return }
	entities[domain.EntReminderRaw] = raw
	if r, err := e.w.Parse(raw, e.now()); err == nil && r != nil {
		entities[domain.EntReminderTime] = r.Time.Format(time.RFC3339)
	} else {
		// Unparsed phrases pass through; callers treat them as soft failures.
		entities[domain.EntReminderTime] = raw
	}
}

// extractDuration covers offset phrases the datetime battery misses, such as
// "in 2 hours" or "30 minutes".
func (e *Extractor) extractDuration(normalized string, entities map[string]any) {
	m := reDuration.FindStringSubmatch(normalized)
	if m == nil { return }
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 { return }
	now := e.now()
	var at time.Time
	switch unit := m[2]; {
	case strings.HasPrefix(unit, "min"):
		at = now.Add(time.Duration(n) * time.Minute)
	case strings.HasPrefix(unit, "hour"):
		at = now.Add(time.Duration(n) * time.Hour)
	case strings.HasPrefix(unit, "day"):
		at = now.AddDate(0, 0, n)
	case strings.HasPrefix(unit, "week"):
		at = now.AddDate(0, 0, 7*n)
	case strings.HasPrefix(unit, "month"):
		at = now.AddDate(0, n, 0)
	default:
		return
	}
	entities[domain.EntReminderRaw] = m[0]
	entities[domain.EntReminderTime] = at.Format(time.RFC3339)
}

func (e *Extractor) extractAssignee(text string, tokens []taggedToken, entities map[string]any) {
	if m := reEmail.FindString(text); m != "" {
		entities[domain.EntAssignee] = m
		return
	}
	if m := reUsername.FindStringSubmatch(text); m != nil {
		entities[domain.EntAssignee] = m[1]
		return
	}
	if hasToken(tokens, "me", "my", "myself") {
		entities[domain.EntAssignee] = domain.SelfAssignee
	}
}

func (e *Extractor) extractIssueType(normalized string, entities map[string]any) {
	if m := reIssueType.FindStringSubmatch(normalized); m != nil {
		entities[domain.EntIssueType] = m[1]
		return
	}
	entities[domain.EntIssueType] = "task"
}

func (e *Extractor) extractPriority(normalized string, entities map[string]any) {
	if m := rePriority.FindStringSubmatch(normalized); m != nil {
		word := m[1]
		for _, p := range priorityOrder {
			for _, syn := range priorityTerms[p] {
				if word == syn {
					entities[domain.EntPriority] = p
					return
				}
			}
		}
		entities[domain.EntPriority] = word
		return
	}
	for _, p := range priorityOrder {
		if containsAny(normalized, priorityTerms[p]) {
			entities[domain.EntPriority] = p
			return
		}
	}
	entities[domain.EntPriority] = "medium"
}

func (e *Extractor) extractStatus(normalized string, entities map[string]any) {
	if m := reStatus.FindStringSubmatch(normalized); m != nil {
		word := m[1]
		for _, s := range statusOrder {
			for _, syn := range statusTerms[s] {
				if word == syn {
					entities[domain.EntStatus] = s
					return
				}
			}
		}
		entities[domain.EntStatus] = word
	}
}

func (e *Extractor) extractTitle(normalized string, tokens []taggedToken, entities map[string]any) {
	if m := firstMatch(titlePatterns, normalized); m != "" {
		entities[domain.EntTitle] = m
		return
	}
	if np := longestNounPhrase(tokens); np != "" {
		entities[domain.EntTitle] = np
	}
}

func (e *Extractor) extractChanges(normalized string, entities map[string]any) {
	var changes []string
	if m := firstMatch(descChangePatterns, normalized); m != "" {
		changes = append(changes, "Description: "+m)
	}
	if m := firstMatch(summaryChangePatterns, normalized); m != "" {
		changes = append(changes, "Summary: "+m)
	}
	if p, ok := entities[domain.EntPriority].(string); ok && rePriority.MatchString(normalized) {
		changes = append(changes, "Priority: "+p)
	}
	if len(changes) > 0 {
		entities[domain.EntChanges] = strings.Join(changes, "\n")
	}
}

func (e *Extractor) buildFilterClause(normalized string, entities map[string]any) {
	var parts []string
	if a, ok := entities[domain.EntAssignee].(string); ok {
		if a == domain.SelfAssignee {
			parts = append(parts, "assigned to me")
		} else {
			parts = append(parts, "assigned to "+a)
		}
	}
	if s, ok := entities[domain.EntStatus].(string); ok {
		parts = append(parts, "with status '"+s+"'")
	}
	if strings.Contains(normalized, "overdue") {
		parts = append(parts, "that are overdue")
	} else if strings.Contains(normalized, "upcoming") || strings.Contains(normalized, "this week") {
		parts = append(parts, "due this week")
	}
	if pk, ok := entities[domain.EntProjectKey].(string); ok {
		parts = append(parts, "in project "+pk)
	}
	if len(parts) == 0 {
		entities[domain.EntFilterClause] = "for the current user"
		return
	}
	entities[domain.EntFilterClause] = strings.Join(parts, " ")
}

func firstMatch(patterns []*regexp.Regexp, text string) string {
	for _, p := range patterns {
		if m := p.FindStringSubmatch(text); m != nil {
			for _, g := range m[1:] {
				if g != "" { return strings.TrimSpace(g) }
			}
		}
	}
	return ""
}
