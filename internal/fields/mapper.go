package fields

import (
	"context"
	"strings"
	"time"

	"github.com/andrewchw/jira-action-items-chatbot/internal/domain"
	"github.com/rs/zerolog"
)

// Resolver turns a human reference into a tracker identity. Implemented by
// internal/identity; the mapper only needs this one call.
type Resolver interface {
	Resolve(ctx context.Context, reference string) (domain.IdentityRecord, error)
}

// Mapper converts extracted entities into the tracker's field structures and
// back. The inverse direction is lossy.
type Mapper struct {
	resolver Resolver
	mode     domain.DeployMode
	log      zerolog.Logger
	now      func() time.Time
}

func NewMapper(resolver Resolver, mode domain.DeployMode, log zerolog.Logger) *Mapper {
	return &Mapper{resolver: resolver, mode: mode, log: log, now: time.Now}
}

// Synonym tables: first matching key wins.
var (
	summaryKeys     = []string{"summary", domain.EntTitle, "subject"}
	descriptionKeys = []string{domain.EntDescription, "details", "body"}
	assigneeKeys    = []string{domain.EntAssignee, "assigned_to", "owner"}
	reporterKeys    = []string{domain.EntReporter, "reported_by", "creator"}
	priorityKeys    = []string{domain.EntPriority, "importance"}
	dueDateKeys     = []string{domain.EntDueDate, "deadline", "due"}
)

// prioritySynonyms maps spoken forms onto the tracker's five priorities.
var prioritySynonyms = map[string]string{
	"highest": "Highest", "blocker": "Highest", "critical": "Highest",
	"urgent": "Highest", "asap": "Highest", "as soon as possible": "Highest",
	"emergency": "Highest", "p0": "Highest",
	"high": "High", "important": "High", "major": "High", "p1": "High",
	"medium": "Medium", "normal": "Medium", "default": "Medium", "standard": "Medium", "p2": "Medium",
	"low": "Low", "minor": "Low", "p3": "Low",
	"lowest": "Lowest", "trivial": "Lowest", "p4": "Lowest",
}

// NormalizePriority maps a raw priority string onto exactly one of Highest,
// High, Medium, Low, Lowest. Unrecognized input defaults to Medium.
func NormalizePriority(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimSuffix(s, " priority")
	if p, ok := prioritySynonyms[s]; ok { return p }
	return "Medium"
}

// ToTrackerFields builds a FieldSet from the loose entity map. Identity
// values route through the resolver; plain email addresses skip it.
func (m *Mapper) ToTrackerFields(ctx context.Context, entities map[string]any) (domain.FieldSet, error) {
	var fs domain.FieldSet
	fs.Summary = firstString(entities, summaryKeys)
	fs.Description = firstString(entities, descriptionKeys)
	fs.ProjectKey = strOf(entities[domain.EntProjectKey])
	if t := strOf(entities[domain.EntIssueType]); t != "" {
		fs.IssueType = titleCase(t)
	}
	if p := firstString(entities, priorityKeys); p != "" {
		fs.Priority = NormalizePriority(p)
	}
	if d := firstString(entities, dueDateKeys); d != "" {
		fs.DueDate = NormalizeDate(d, m.now())
	}
	fs.Labels = stringList(entities[domain.EntLabels])
	fs.Components = stringList(entities[domain.EntComponents])

	if ref := firstString(entities, assigneeKeys); ref != "" {
		u, err := m.userRef(ctx, ref)
		if err != nil { return fs, err }
		fs.Assignee = u
	}
	if ref := firstString(entities, reporterKeys); ref != "" {
		u, err := m.userRef(ctx, ref)
		if err != nil { return fs, err }
		fs.Reporter = u
	}
	return fs, nil
}

func (m *Mapper) userRef(ctx context.Context, ref string) (*domain.UserRef, error) {
	// Emails are valid identity values on both deployment modes; no resolver
	// round trip needed.
	if strings.Contains(ref, "@") && strings.Contains(ref, ".") {
		return &domain.UserRef{Email: ref}, nil
	}
	rec, err := m.resolver.Resolve(ctx, ref)
	if err != nil { return nil, err }
	if m.mode == domain.ModeCloud {
		return &domain.UserRef{AccountID: rec.StableID}, nil
	}
	name := rec.Username
	if name == "" { name = rec.StableID }
	return &domain.UserRef{Name: name}, nil
}

// ToEntities is the lossy inverse: a tracker issue payload flattened back
// into the entity vocabulary the rest of the pipeline speaks.
func ToEntities(payload map[string]any) map[string]any {
	out := map[string]any{}
	if k, ok := payload["key"].(string); ok { out[domain.EntTaskID] = k }
	f, _ := payload["fields"].(map[string]any)
	if f == nil { return out }
	if s, ok := f["summary"].(string); ok { out["summary"] = s }
	if d, ok := f["description"].(string); ok { out[domain.EntDescription] = d }
	if d, ok := f["duedate"].(string); ok { out[domain.EntDueDate] = d }
	if st, ok := f["status"].(map[string]any); ok {
		if n, ok := st["name"].(string); ok { out[domain.EntStatus] = n }
	}
	if pr, ok := f["priority"].(map[string]any); ok {
		if n, ok := pr["name"].(string); ok { out[domain.EntPriority] = n }
	}
	if as, ok := f["assignee"].(map[string]any); ok {
		if n, ok := as["displayName"].(string); ok { out[domain.EntAssignee] = n }
	}
	if labels, ok := f["labels"].([]any); ok {
		out[domain.EntLabels] = stringList(labels)
	}
	return out
}

// Payload renders a FieldSet as the JSON "fields" object for a create or
// update call, branching on deployment mode for user and description shapes.
func Payload(fs domain.FieldSet, mode domain.DeployMode) map[string]any {
	out := map[string]any{}
	if fs.ProjectKey != "" { out["project"] = map[string]any{"key": fs.ProjectKey} }
	if fs.IssueType != "" { out["issuetype"] = map[string]any{"name": fs.IssueType} }
	if fs.Summary != "" { out["summary"] = fs.Summary }
	if fs.Description != "" {
		if mode == domain.ModeCloud {
			out["description"] = ADF(fs.Description)
		} else {
			out["description"] = fs.Description
		}
	}
	if fs.Priority != "" { out["priority"] = map[string]any{"name": fs.Priority} }
	if fs.DueDate != "" { out["duedate"] = fs.DueDate }
	if fs.Assignee != nil { out["assignee"] = userPayload(*fs.Assignee, mode) }
	if fs.Reporter != nil { out["reporter"] = userPayload(*fs.Reporter, mode) }
	if len(fs.Labels) > 0 { out["labels"] = fs.Labels }
	if len(fs.Components) > 0 {
		comps := make([]map[string]any, 0, len(fs.Components))
		for _, c := range fs.Components { comps = append(comps, map[string]any{"name": c}) }
		out["components"] = comps
	}
	return out
}

func userPayload(u domain.UserRef, mode domain.DeployMode) map[string]any {
	if mode == domain.ModeCloud {
		if u.AccountID != "" { return map[string]any{"accountId": u.AccountID} }
		return map[string]any{"emailAddress": u.Email}
	}
	name := u.Name
	if name == "" { name = u.Email }
	return map[string]any{"name": name}
}

// ADF wraps plain text in the minimal rich-text document the cloud API
// requires for descriptions.
func ADF(text string) map[string]any {
	return map[string]any{
		"type":    "doc",
		"version": 1,
		"content": []map[string]any{
			{"type": "paragraph", "content": []map[string]any{{"type": "text", "text": text}}},
		},
	}
}

func firstString(entities map[string]any, keys []string) string {
	for _, k := range keys {
		if s := strOf(entities[k]); s != "" { return s }
	}
	return ""
}

func strOf(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// stringList accepts a comma-joined string, []string, or []any of strings.
func stringList(v any) []string {
	switch vv := v.(type) {
	case string:
		if strings.TrimSpace(vv) == "" { return nil }
		parts := strings.Split(vv, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" { out = append(out, p) }
		}
		return out
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, it := range vv {
			if s, ok := it.(string); ok && s != "" { out = append(out, s) }
		}
		return out
	}
	return nil
}

func titleCase(s string) string {
	s = strings.TrimSpace(s)
	if s == "" { return s }
	if strings.EqualFold(s, "sub-task") { return "Sub-task" }
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
