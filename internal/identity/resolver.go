package identity

import (
	"context"
	"strings"
	"time"

	"github.com/andrewchw/jira-action-items-chatbot/internal/domain"
	"github.com/rs/zerolog"
)

// Directory is the tracker-side user lookup surface, implemented by the jira
// adapter.
type Directory interface {
	SearchUsers(ctx context.Context, query string, startAt, max int) ([]domain.IdentityRecord, error)
	PickerUsers(ctx context.Context, query string, max int) ([]domain.IdentityRecord, error)
	Groups(ctx context.Context) ([]string, error)
	GroupMembers(ctx context.Context, group string, startAt, max int) ([]domain.IdentityRecord, error)
	ProjectLeads(ctx context.Context) ([]domain.IdentityRecord, error)
}

// Cache is the local identity store, implemented by the repo. Lookups are
// exact, case-insensitive, across username, display name and email.
type Cache interface {
	FindIdentity(ctx context.Context, reference string) (domain.IdentityRecord, bool, error)
	UpsertIdentity(ctx context.Context, rec domain.IdentityRecord) error
}

type Resolver struct {
	dir   Directory
	cache Cache
	mode  domain.DeployMode
	log   zerolog.Logger
}

func NewResolver(dir Directory, cache Cache, mode domain.DeployMode, log zerolog.Logger) *Resolver {
	return &Resolver{dir: dir, cache: cache, mode: mode, log: log}
}

// LooksLikeAccountID is the one canonical shape validator for pre-resolved
// cloud identifiers. Checks run in documented precedence:
//  1. hyphenated UUID shape: longer than 20 chars with at least 4 hyphens
//  2. alphanumeric longer than 10 chars starting with the Atlassian '5' prefix
//  3. any purely alphanumeric string longer than 10 chars
// The '5'-prefixed check is subsumed by the generic one; both stay documented
// because call sites historically special-cased the prefix form.
func LooksLikeAccountID(s string) bool {
	if len(s) > 20 && strings.Count(s, "-") >= 4 {
		return true
	}
	return len(s) > 10 && isAlnum(s)
}

func isAlnum(s string) bool {
	for _, r := range s {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return false
		}
	}
	return len(s) > 0
}

// Resolve maps a human reference (username, display name, email, or an
// already-valid identifier) to an identity record. Cloud mode fails with a
// ResolutionError rather than letting an unresolvable free-text name reach
// the remote API; server mode passes the name through as a username.
func (r *Resolver) Resolve(ctx context.Context, reference string) (domain.IdentityRecord, error) {
	ref := strings.TrimSpace(reference)
	if ref == "" {
		return domain.IdentityRecord{}, &domain.ValidationError{Field: "assignee", Reason: "empty reference"}
	}

	if r.mode == domain.ModeCloud && LooksLikeAccountID(ref) {
		return domain.IdentityRecord{StableID: ref}, nil
	}
	if strings.Contains(ref, "@") {
		return domain.IdentityRecord{StableID: ref, Email: ref}, nil
	}

	if rec, ok, err := r.cache.FindIdentity(ctx, ref); err == nil && ok {
		return rec, nil
	} else if err != nil {
		r.log.Warn().Err(err).Str("ref", ref).Msg("identity cache lookup failed")
	}

	if rec, ok := r.searchDirectory(ctx, ref); ok {
		r.store(ctx, rec)
		return rec, nil
	}

	if r.mode == domain.ModeServer {
		// Server deployments accept usernames directly.
		return domain.IdentityRecord{StableID: ref, Username: ref}, nil
	}
	return domain.IdentityRecord{}, &domain.ResolutionError{Reference: reference}
}

func (r *Resolver) searchDirectory(ctx context.Context, ref string) (domain.IdentityRecord, bool) {
	users, err := r.dir.SearchUsers(ctx, ref, 0, 50)
	if err != nil {
		r.log.Warn().Err(err).Str("ref", ref).Msg("directory search failed")
	}
	if rec, ok := pickBest(users, ref); ok {
		return rec, true
	}
	// Last resort: the picker endpoint matches on more fields server-side.
	users, err = r.dir.PickerUsers(ctx, ref, 20)
	if err != nil {
		r.log.Warn().Err(err).Str("ref", ref).Msg("picker search failed")
		return domain.IdentityRecord{}, false
	}
	return pickBest(users, ref)
}

// pickBest prefers exact field equality (username, display name, email;
// case-insensitive) over any partial match; among partials, first wins.
func pickBest(users []domain.IdentityRecord, ref string) (domain.IdentityRecord, bool) {
	for _, u := range users {
		if strings.EqualFold(u.Username, ref) || strings.EqualFold(u.DisplayName, ref) || strings.EqualFold(u.Email, ref) {
			return u, true
		}
	}
	if len(users) > 0 {
		return users[0], true
	}
	return domain.IdentityRecord{}, false
}

func (r *Resolver) store(ctx context.Context, rec domain.IdentityRecord) {
	// Upsert key: stable id, falling back to username then email.
	if rec.StableID == "" {
		if rec.Username != "" {
			rec.StableID = rec.Username
		} else {
			rec.StableID = rec.Email
		}
	}
	if rec.StableID == "" { return }
	rec.LastUpdated = time.Now()
	if err := r.cache.UpsertIdentity(ctx, rec); err != nil {
		r.log.Warn().Err(err).Str("id", rec.StableID).Msg("identity cache upsert failed")
	}
}

// BulkSync refreshes the whole local cache from the directory: paged search
// first, then group-membership enumeration, then project leads, stopping at
// the first source that yields anything. Records are deduplicated by stable
// identifier. Returns the number of records upserted.
func (r *Resolver) BulkSync(ctx context.Context) (int, error) {
	seen := map[string]struct{}{}
	count := 0
	add := func(recs []domain.IdentityRecord) {
		for _, rec := range recs {
			key := rec.StableID
			if key == "" { key = rec.Username }
			if key == "" { key = rec.Email }
			if key == "" { continue }
			if _, dup := seen[key]; dup { continue }
			seen[key] = struct{}{}
			r.store(ctx, rec)
			count++
		}
	}

	const page = 50
	for startAt := 0; ; startAt += page {
		users, err := r.dir.SearchUsers(ctx, "", startAt, page)
		if err != nil {
			r.log.Warn().Err(err).Msg("bulk sync: paged search failed")
			break
		}
		if len(users) == 0 { break }
		add(users)
		if len(users) < page { break }
	}
	if count > 0 { return count, nil }

	groups, err := r.dir.Groups(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("bulk sync: group listing failed")
	}
	for _, g := range groups {
		for startAt := 0; ; startAt += page {
			members, err := r.dir.GroupMembers(ctx, g, startAt, page)
			if err != nil || len(members) == 0 { break }
			add(members)
			if len(members) < page { break }
		}
	}
	if count > 0 { return count, nil }

	leads, err := r.dir.ProjectLeads(ctx)
	if err != nil {
		return count, err
	}
	add(leads)
	return count, nil
}
