package jira

import (
	"context"
	"net/url"
	"strconv"

	"github.com/andrewchw/jira-action-items-chatbot/internal/domain"
)

// The user lookup surface consumed by the identity resolver. Cloud and
// Server expose different endpoints and field names; everything funnels into
// IdentityRecord here so nothing above this layer branches on deploy mode.

func (c *Client) SearchUsers(ctx context.Context, query string, startAt, max int) ([]domain.IdentityRecord, error) {
	params := url.Values{}
	if c.mode == domain.ModeCloud {
		params.Set("query", query)
	} else {
		if query == "" { query = "." } // server rejects an empty username filter
		params.Set("username", query)
	}
	params.Set("startAt", strconv.Itoa(startAt))
	params.Set("maxResults", strconv.Itoa(max))
	out, err := c.Request(ctx, ReqSpec{Method: "GET", Endpoint: c.apiPath("/user/search"), Params: params})
	if err != nil { return nil, err }
	return c.parseUsers(mapList(out)), nil
}

func (c *Client) PickerUsers(ctx context.Context, query string, max int) ([]domain.IdentityRecord, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("maxResults", strconv.Itoa(max))
	out, err := c.Request(ctx, ReqSpec{Method: "GET", Endpoint: c.apiPath("/user/picker"), Params: params})
	if err != nil { return nil, err }
	return c.parseUsers(mapList(asMap(out)["users"])), nil
}

func (c *Client) Groups(ctx context.Context) ([]string, error) {
	out, err := c.Request(ctx, ReqSpec{Method: "GET", Endpoint: c.apiPath("/groups/picker")})
	if err != nil { return nil, err }
	var names []string
	for _, g := range mapList(asMap(out)["groups"]) {
		if n, ok := g["name"].(string); ok && n != "" { names = append(names, n) }
	}
	return names, nil
}

func (c *Client) GroupMembers(ctx context.Context, group string, startAt, max int) ([]domain.IdentityRecord, error) {
	params := url.Values{}
	params.Set("groupname", group)
	params.Set("startAt", strconv.Itoa(startAt))
	params.Set("maxResults", strconv.Itoa(max))
	out, err := c.Request(ctx, ReqSpec{Method: "GET", Endpoint: c.apiPath("/group/member"), Params: params})
	if err != nil { return nil, err }
	return c.parseUsers(mapList(asMap(out)["values"])), nil
}

// User fetches one profile by its stable identifier (accountId on cloud,
// username on server).
func (c *Client) User(ctx context.Context, id string) (domain.IdentityRecord, error) {
	params := url.Values{}
	if c.mode == domain.ModeCloud {
		params.Set("accountId", id)
	} else {
		params.Set("username", id)
	}
	out, err := c.Request(ctx, ReqSpec{Method: "GET", Endpoint: c.apiPath("/user"), Params: params})
	if err != nil { return domain.IdentityRecord{}, err }
	rec := c.parseUser(asMap(out))
	if rec.StableID == "" {
		return domain.IdentityRecord{}, &domain.ResolutionError{Reference: id}
	}
	return rec, nil
}

// ProjectLeads browses project metadata for lead users. Only useful as a
// fallback when directory browsing is locked down; leads are usually visible
// even then.
func (c *Client) ProjectLeads(ctx context.Context) ([]domain.IdentityRecord, error) {
	params := url.Values{}
	params.Set("expand", "lead")
	out, err := c.Request(ctx, ReqSpec{Method: "GET", Endpoint: c.apiPath("/project"), Params: params})
	if err != nil { return nil, err }
	var recs []domain.IdentityRecord
	for _, p := range mapList(out) {
		lead, ok := p["lead"].(map[string]any)
		if !ok { continue }
		if rec := c.parseUser(lead); rec.StableID != "" { recs = append(recs, rec) }
	}
	return recs, nil
}

func (c *Client) parseUsers(items []map[string]any) []domain.IdentityRecord {
	recs := make([]domain.IdentityRecord, 0, len(items))
	for _, it := range items {
		if rec := c.parseUser(it); rec.StableID != "" { recs = append(recs, rec) }
	}
	return recs
}

// parseUser maps one tracker user object. Cloud keys on accountId, Server
// on name; both carry displayName and usually emailAddress.
func (c *Client) parseUser(m map[string]any) domain.IdentityRecord {
	rec := domain.IdentityRecord{
		Username:    str(m["name"]),
		DisplayName: str(m["displayName"]),
		Email:       str(m["emailAddress"]),
		Active:      true,
	}
	if v, ok := m["active"].(bool); ok { rec.Active = v }
	if id := str(m["accountId"]); id != "" {
		rec.StableID = id
	} else {
		rec.StableID = rec.Username
	}
	if av, ok := m["avatarUrls"].(map[string]any); ok {
		rec.AvatarURL = str(av["48x48"])
	}
	return rec
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
