package jira

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/andrewchw/jira-action-items-chatbot/internal/domain"
	"github.com/google/uuid"
)

// apiPath prefixes an endpoint with the REST version for the deploy mode.
// Cloud speaks v3, Server/Data Center v2.
func (c *Client) apiPath(p string) string {
	if c.mode == domain.ModeCloud {
		return "/rest/api/3" + p
	}
	return "/rest/api/2" + p
}

// SearchIssues runs a JQL query. Both modes use the GET form so results hit
// the response cache.
func (c *Client) SearchIssues(ctx context.Context, userID, jql string, fieldNames []string, startAt, maxResults int) (map[string]any, error) {
	params := url.Values{}
	params.Set("jql", jql)
	if len(fieldNames) > 0 { params.Set("fields", strings.Join(fieldNames, ",")) }
	params.Set("startAt", strconv.Itoa(startAt))
	params.Set("maxResults", strconv.Itoa(maxResults))

	endpoint := c.apiPath("/search")
	if c.mode == domain.ModeCloud { endpoint = "/rest/api/3/search/jql" }
	out, err := c.Request(ctx, ReqSpec{Method: "GET", Endpoint: endpoint, Params: params, UserID: userID})
	if err != nil { return nil, err }
	return asMap(out), nil
}

func (c *Client) Issue(ctx context.Context, userID, key string, fieldNames []string) (map[string]any, error) {
	params := url.Values{}
	if len(fieldNames) > 0 { params.Set("fields", strings.Join(fieldNames, ",")) }
	out, err := c.Request(ctx, ReqSpec{Method: "GET", Endpoint: c.apiPath("/issue/" + key), Params: params, UserID: userID})
	if err != nil { return nil, err }
	return asMap(out), nil
}

// CreateIssue posts a new issue. The generated idempotency key makes the
// write safe to retry on transport failure.
func (c *Client) CreateIssue(ctx context.Context, userID string, fields map[string]any) (map[string]any, error) {
	out, err := c.Request(ctx, ReqSpec{
		Method:         "POST",
		Endpoint:       c.apiPath("/issue"),
		Body:           map[string]any{"fields": fields},
		UserID:         userID,
		IdempotencyKey: uuid.NewString(),
	})
	if err != nil { return nil, err }
	return asMap(out), nil
}

func (c *Client) UpdateIssue(ctx context.Context, userID, key string, fields map[string]any) error {
	_, err := c.Request(ctx, ReqSpec{
		Method:   "PUT",
		Endpoint: c.apiPath("/issue/" + key),
		Body:     map[string]any{"fields": fields},
		UserID:   userID,
	})
	return err
}

func (c *Client) AddComment(ctx context.Context, userID, key, text string) (map[string]any, error) {
	var body map[string]any
	if c.mode == domain.ModeCloud {
		body = map[string]any{"body": adfDoc(text)}
	} else {
		body = map[string]any{"body": text}
	}
	out, err := c.Request(ctx, ReqSpec{Method: "POST", Endpoint: c.apiPath("/issue/" + key + "/comment"), Body: body, UserID: userID})
	if err != nil { return nil, err }
	return asMap(out), nil
}

func (c *Client) Transitions(ctx context.Context, userID, key string) ([]map[string]any, error) {
	out, err := c.Request(ctx, ReqSpec{Method: "GET", Endpoint: c.apiPath("/issue/" + key + "/transitions"), UserID: userID, NoCache: true})
	if err != nil { return nil, err }
	return mapList(asMap(out)["transitions"]), nil
}

// ApplyTransition moves an issue through its workflow. Transition IDs are
// looked up by the caller via Transitions; status names differ per workflow.
func (c *Client) ApplyTransition(ctx context.Context, userID, key, transitionID, comment string) error {
	body := map[string]any{"transition": map[string]any{"id": transitionID}}
	if comment != "" {
		var cb any = comment
		if c.mode == domain.ModeCloud { cb = adfDoc(comment) }
		body["update"] = map[string]any{"comment": []any{map[string]any{"add": map[string]any{"body": cb}}}}
	}
	_, err := c.Request(ctx, ReqSpec{Method: "POST", Endpoint: c.apiPath("/issue/" + key + "/transitions"), Body: body, UserID: userID})
	return err
}

func (c *Client) AssignIssue(ctx context.Context, userID, key string, ref domain.UserRef) error {
	var body map[string]any
	switch {
	case c.mode == domain.ModeCloud && ref.AccountID != "":
		body = map[string]any{"accountId": ref.AccountID}
	case ref.Name != "":
		body = map[string]any{"name": ref.Name}
	case ref.Email != "":
		body = map[string]any{"name": ref.Email}
	default:
		return &domain.ValidationError{Field: "assignee", Reason: "no usable user reference"}
	}
	_, err := c.Request(ctx, ReqSpec{Method: "PUT", Endpoint: c.apiPath("/issue/" + key + "/assignee"), Body: body, UserID: userID})
	return err
}

func (c *Client) Projects(ctx context.Context, userID string) ([]map[string]any, error) {
	out, err := c.Request(ctx, ReqSpec{Method: "GET", Endpoint: c.apiPath("/project"), UserID: userID})
	if err != nil { return nil, err }
	return mapList(out), nil
}

func (c *Client) Project(ctx context.Context, userID, key string) (map[string]any, error) {
	out, err := c.Request(ctx, ReqSpec{Method: "GET", Endpoint: c.apiPath("/project/" + key), UserID: userID})
	if err != nil { return nil, err }
	return asMap(out), nil
}

func (c *Client) IssueTypes(ctx context.Context, userID string) ([]map[string]any, error) {
	out, err := c.Request(ctx, ReqSpec{Method: "GET", Endpoint: c.apiPath("/issuetype"), UserID: userID})
	if err != nil { return nil, err }
	return mapList(out), nil
}

func (c *Client) FieldMeta(ctx context.Context) ([]map[string]any, error) {
	out, err := c.Request(ctx, ReqSpec{Method: "GET", Endpoint: c.apiPath("/field")})
	if err != nil { return nil, err }
	return mapList(out), nil
}

// Myself validates the caller's credentials and returns their profile.
// Never cached: it doubles as a token liveness probe.
func (c *Client) Myself(ctx context.Context, userID string) (map[string]any, error) {
	out, err := c.Request(ctx, ReqSpec{Method: "GET", Endpoint: c.apiPath("/myself"), UserID: userID, NoCache: true})
	if err != nil { return nil, err }
	return asMap(out), nil
}

// adfDoc wraps plain text in the minimal Atlassian Document Format envelope
// cloud comment bodies require.
func adfDoc(text string) map[string]any {
	return map[string]any{
		"type":    "doc",
		"version": 1,
		"content": []any{map[string]any{
			"type":    "paragraph",
			"content": []any{map[string]any{"type": "text", "text": text}},
		}},
	}
}

func asMap(v any) map[string]any {
	if m, ok := v.(map[string]any); ok { return m }
	return map[string]any{}
}

func mapList(v any) []map[string]any {
	items, ok := v.([]any)
	if !ok { return nil }
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		if m, ok := it.(map[string]any); ok { out = append(out, m) }
	}
	return out
}
