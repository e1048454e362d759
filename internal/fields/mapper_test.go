package fields

import (
	"context"
	"testing"
	"time"

	"github.com/andrewchw/jira-action-items-chatbot/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	calls int
	rec   domain.IdentityRecord
	err   error
}

func (f *fakeResolver) Resolve(_ context.Context, _ string) (domain.IdentityRecord, error) {
	f.calls++
	return f.rec, f.err
}

func TestNormalizePriority(t *testing.T) {
	for _, in := range []string{"urgent", "asap", "blocker", "highest priority", "Critical", "P0"} {
		assert.Equal(t, "Highest", NormalizePriority(in), in)
	}
	assert.Equal(t, "High", NormalizePriority("important"))
	assert.Equal(t, "Low", NormalizePriority("minor"))
	assert.Equal(t, "Medium", NormalizePriority("whatever this is"))
	assert.Equal(t, "Medium", NormalizePriority(""))
}

func TestNormalizeDate(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	assert.Equal(t, "2026-01-15", NormalizeDate("2026-01-15", now))
	assert.Equal(t, "2026-01-15", NormalizeDate("15/01/2026", now))
	assert.Equal(t, "2026-01-15", NormalizeDate("15 January 2026", now))
	assert.Equal(t, "2026-03-11", NormalizeDate("tomorrow", now))

	// Unparseable input passes through untouched.
	assert.Equal(t, "sometime soonish", NormalizeDate("sometime soonish", now))
}

func TestToTrackerFieldsCloud(t *testing.T) {
	res := &fakeResolver{rec: domain.IdentityRecord{StableID: "5ec794101114700c34fe1d9f", Username: "deencat"}}
	m := NewMapper(res, domain.ModeCloud, zerolog.Nop())
	m.now = func() time.Time { return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC) }

	fs, err := m.ToTrackerFields(context.Background(), map[string]any{
		domain.EntTitle:      "login failures",
		domain.EntIssueType:  "bug",
		domain.EntPriority:   "high",
		domain.EntDueDate:    "tomorrow",
		domain.EntAssignee:   "deencat",
		domain.EntProjectKey: "PROJ",
	})
	require.NoError(t, err)

	assert.Equal(t, "login failures", fs.Summary)
	assert.Equal(t, "Bug", fs.IssueType)
	assert.Equal(t, "High", fs.Priority)
	assert.Equal(t, "2026-03-11", fs.DueDate)
	assert.Equal(t, "PROJ", fs.ProjectKey)
	require.NotNil(t, fs.Assignee)
	assert.Equal(t, "5ec794101114700c34fe1d9f", fs.Assignee.AccountID)
	assert.Equal(t, 1, res.calls)
}

func TestToTrackerFieldsEmailSkipsResolver(t *testing.T) {
	res := &fakeResolver{}
	m := NewMapper(res, domain.ModeCloud, zerolog.Nop())

	fs, err := m.ToTrackerFields(context.Background(), map[string]any{
		domain.EntAssignee: "alice@example.com",
	})
	require.NoError(t, err)
	require.NotNil(t, fs.Assignee)
	assert.Equal(t, "alice@example.com", fs.Assignee.Email)
	assert.Zero(t, res.calls)
}

func TestToTrackerFieldsServerMode(t *testing.T) {
	res := &fakeResolver{rec: domain.IdentityRecord{StableID: "jsmith", Username: "jsmith"}}
	m := NewMapper(res, domain.ModeServer, zerolog.Nop())

	fs, err := m.ToTrackerFields(context.Background(), map[string]any{
		domain.EntAssignee: "John Smith",
	})
	require.NoError(t, err)
	require.NotNil(t, fs.Assignee)
	assert.Equal(t, "jsmith", fs.Assignee.Name)
}

func TestSynonymKeysFirstMatchWins(t *testing.T) {
	m := NewMapper(&fakeResolver{}, domain.ModeServer, zerolog.Nop())
	fs, err := m.ToTrackerFields(context.Background(), map[string]any{
		"subject":    "fallback title",
		"deadline":   "2026-04-01",
		"importance": "minor",
	})
	require.NoError(t, err)
	assert.Equal(t, "fallback title", fs.Summary)
	assert.Equal(t, "2026-04-01", fs.DueDate)
	assert.Equal(t, "Low", fs.Priority)
}

func TestPayloadCloud(t *testing.T) {
	fs := domain.FieldSet{
		ProjectKey:  "PROJ",
		Summary:     "login failures",
		Description: "users cannot log in",
		IssueType:   "Bug",
		Priority:    "High",
		DueDate:     "2026-03-11",
		Assignee:    &domain.UserRef{AccountID: "5ec794101114700c34fe1d9f"},
		Labels:      []string{"auth"},
	}
	out := Payload(fs, domain.ModeCloud)

	assert.Equal(t, map[string]any{"key": "PROJ"}, out["project"])
	assert.Equal(t, map[string]any{"name": "Bug"}, out["issuetype"])
	assert.Equal(t, map[string]any{"accountId": "5ec794101114700c34fe1d9f"}, out["assignee"])

	desc, ok := out["description"].(map[string]any)
	require.True(t, ok, "cloud descriptions are rich-text documents")
	assert.Equal(t, "doc", desc["type"])
}

func TestPayloadServer(t *testing.T) {
	fs := domain.FieldSet{
		Summary:     "login failures",
		Description: "plain text",
		Assignee:    &domain.UserRef{Name: "jsmith"},
	}
	out := Payload(fs, domain.ModeServer)

	assert.Equal(t, "plain text", out["description"])
	assert.Equal(t, map[string]any{"name": "jsmith"}, out["assignee"])
}

func TestToEntitiesInverse(t *testing.T) {
	out := ToEntities(map[string]any{
		"key": "PROJ-5",
		"fields": map[string]any{
			"summary":  "login failures",
			"duedate":  "2026-03-11",
			"status":   map[string]any{"name": "In Progress"},
			"priority": map[string]any{"name": "High"},
			"assignee": map[string]any{"displayName": "Deen Cat"},
			"labels":   []any{"auth"},
		},
	})
	assert.Equal(t, "PROJ-5", out[domain.EntTaskID])
	assert.Equal(t, "login failures", out["summary"])
	assert.Equal(t, "In Progress", out[domain.EntStatus])
	assert.Equal(t, "High", out[domain.EntPriority])
	assert.Equal(t, "Deen Cat", out[domain.EntAssignee])
	assert.Equal(t, []string{"auth"}, out[domain.EntLabels])
}

func TestStringListCommaSplit(t *testing.T) {
	assert.Equal(t, []string{"auth", "login"}, stringList("auth, login"))
	assert.Equal(t, []string{"one"}, stringList([]string{"one"}))
	assert.Nil(t, stringList(nil))
}
