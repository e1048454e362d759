package identity

import (
	"context"
	"strings"
	"testing"

	"github.com/andrewchw/jira-action-items-chatbot/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDirectory struct {
	searchCalls int
	pickerCalls int
	users       []domain.IdentityRecord
	members     map[string][]domain.IdentityRecord
}

func (f *fakeDirectory) SearchUsers(_ context.Context, _ string, startAt, _ int) ([]domain.IdentityRecord, error) {
	f.searchCalls++
	if startAt > 0 { return nil, nil }
	return f.users, nil
}

func (f *fakeDirectory) PickerUsers(_ context.Context, _ string, _ int) ([]domain.IdentityRecord, error) {
	f.pickerCalls++
	return nil, nil
}

func (f *fakeDirectory) Groups(context.Context) ([]string, error) {
	groups := make([]string, 0, len(f.members))
	for g := range f.members { groups = append(groups, g) }
	return groups, nil
}

func (f *fakeDirectory) GroupMembers(_ context.Context, group string, startAt, _ int) ([]domain.IdentityRecord, error) {
	if startAt > 0 { return nil, nil }
	return f.members[group], nil
}

func (f *fakeDirectory) ProjectLeads(context.Context) ([]domain.IdentityRecord, error) {
	return nil, nil
}

type memCache struct {
	recs map[string]domain.IdentityRecord
}

func newMemCache() *memCache { return &memCache{recs: map[string]domain.IdentityRecord{}} }

func (c *memCache) FindIdentity(_ context.Context, ref string) (domain.IdentityRecord, bool, error) {
	lower := strings.ToLower(ref)
	for _, rec := range c.recs {
		if strings.EqualFold(rec.Username, lower) || strings.EqualFold(rec.DisplayName, ref) ||
			strings.EqualFold(rec.Email, lower) || rec.StableID == ref {
			return rec, true, nil
		}
	}
	return domain.IdentityRecord{}, false, nil
}

func (c *memCache) UpsertIdentity(_ context.Context, rec domain.IdentityRecord) error {
	c.recs[rec.StableID] = rec
	return nil
}

func TestLooksLikeAccountID(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"712020:4f5c8a9b-1d2e-4a3b-9c8d-7e6f5a4b3c2d", true}, // UUID shape
		{"5ec794101114700c34fe1d9f", true},                   // 24-char '5'-prefixed
		{"abc123def456ghi", true},                            // generic long alphanumeric
		{"deencat", false},
		{"John Smith", false},
		{"a-b-c-d-e", false}, // hyphens but too short
		{"", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, LooksLikeAccountID(tc.in), tc.in)
	}
}

// A pre-resolved identifier short-circuits: no cache read, no network.
func TestResolvePreResolvedID(t *testing.T) {
	dir := &fakeDirectory{}
	r := NewResolver(dir, newMemCache(), domain.ModeCloud, zerolog.Nop())

	rec, err := r.Resolve(context.Background(), "5ec794101114700c34fe1d9f")
	require.NoError(t, err)
	assert.Equal(t, "5ec794101114700c34fe1d9f", rec.StableID)
	assert.Zero(t, dir.searchCalls)
	assert.Zero(t, dir.pickerCalls)
}

func TestResolveEmailBypassesDirectory(t *testing.T) {
	dir := &fakeDirectory{}
	r := NewResolver(dir, newMemCache(), domain.ModeCloud, zerolog.Nop())

	rec, err := r.Resolve(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", rec.Email)
	assert.Zero(t, dir.searchCalls)
}

// First resolution hits the directory exactly once; the result is cached and
// the second resolution touches nothing remote.
func TestResolveSearchesOnceThenCaches(t *testing.T) {
	dir := &fakeDirectory{users: []domain.IdentityRecord{
		{StableID: "5ec794101114700c34fe1d9f", Username: "deencat", DisplayName: "Deen Cat"},
	}}
	cache := newMemCache()
	r := NewResolver(dir, cache, domain.ModeCloud, zerolog.Nop())

	rec, err := r.Resolve(context.Background(), "deencat")
	require.NoError(t, err)
	assert.Equal(t, "5ec794101114700c34fe1d9f", rec.StableID)
	assert.Equal(t, 1, dir.searchCalls)

	rec, err = r.Resolve(context.Background(), "deencat")
	require.NoError(t, err)
	assert.Equal(t, "5ec794101114700c34fe1d9f", rec.StableID)
	assert.Equal(t, 1, dir.searchCalls, "second resolution must not hit the directory")
	assert.Zero(t, dir.pickerCalls)
}

func TestResolveExactMatchPreferred(t *testing.T) {
	dir := &fakeDirectory{users: []domain.IdentityRecord{
		{StableID: "id-partial", Username: "deencatalog"},
		{StableID: "id-exact", Username: "deencat"},
	}}
	r := NewResolver(dir, newMemCache(), domain.ModeCloud, zerolog.Nop())

	rec, err := r.Resolve(context.Background(), "deencat")
	require.NoError(t, err)
	assert.Equal(t, "id-exact", rec.StableID)
}

func TestResolveCloudUnresolvedFails(t *testing.T) {
	r := NewResolver(&fakeDirectory{}, newMemCache(), domain.ModeCloud, zerolog.Nop())

	_, err := r.Resolve(context.Background(), "nobody")
	var resErr *domain.ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, "nobody", resErr.Reference)
}

func TestResolveServerPassthrough(t *testing.T) {
	r := NewResolver(&fakeDirectory{}, newMemCache(), domain.ModeServer, zerolog.Nop())

	rec, err := r.Resolve(context.Background(), "jsmith")
	require.NoError(t, err)
	assert.Equal(t, "jsmith", rec.Username)
}

func TestBulkSyncPagedSearch(t *testing.T) {
	dir := &fakeDirectory{users: []domain.IdentityRecord{
		{StableID: "id-1", Username: "alice"},
		{StableID: "id-2", Username: "bob"},
		{StableID: "id-1", Username: "alice"}, // duplicate row from the remote
	}}
	cache := newMemCache()
	r := NewResolver(dir, cache, domain.ModeCloud, zerolog.Nop())

	n, err := r.BulkSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, cache.recs, 2)
}

// When directory browsing is locked down, sync falls back to group members.
func TestBulkSyncGroupFallback(t *testing.T) {
	dir := &fakeDirectory{members: map[string][]domain.IdentityRecord{
		"jira-users": {{StableID: "id-3", Username: "carol"}},
	}}
	cache := newMemCache()
	r := NewResolver(dir, cache, domain.ModeCloud, zerolog.Nop())

	n, err := r.BulkSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestResolveEmptyReference(t *testing.T) {
	r := NewResolver(&fakeDirectory{}, newMemCache(), domain.ModeCloud, zerolog.Nop())

	_, err := r.Resolve(context.Background(), "   ")
	var vErr *domain.ValidationError
	assert.ErrorAs(t, err, &vErr)
}
