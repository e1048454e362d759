/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package jira

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/andrewchw/jira-action-items-chatbot/internal/config"
	"github.com/andrewchw/jira-action-items-chatbot/internal/domain"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// CacheStore persists GET responses. Implemented by the repo; entries past
// their TTL read as misses.
type CacheStore interface {
	GetAPICache(ctx context.Context, key string) (json.RawMessage, bool, error)
	PutAPICache(ctx context.Context, key string, payload json.RawMessage, ttl time.Duration) error
}

// TokenSource supplies per-user bearer tokens. Read-only here; writes belong
// to the OAuth flow.
type TokenSource interface {
	Token(ctx context.Context, userID string) (domain.Token, bool, error)
}

type Client struct {
	baseURL   string
	mode      domain.DeployMode
	user      string // shared basic-auth pair
	pass      string
	tokens    TokenSource
	cache     CacheStore
	http      *http.Client
	log       zerolog.Logger
	cacheTTL  time.Duration
	retryMax  uint64
	retryBase time.Duration
	now       func() time.Time
}

func NewClient(cfg config.Config, tokens TokenSource, cache CacheStore, log zerolog.Logger) *Client {
	return &Client{
		baseURL:   strings.TrimRight(cfg.JiraBaseURL, "/"),
		mode:      domain.DeployMode(cfg.JiraDeployMode),
		user:      cfg.JiraUsername,
		pass:      cfg.JiraAPIToken,
		tokens:    tokens,
		cache:     cache,
		http:      &http.Client{Timeout: cfg.HTTPTimeout},
		log:       log,
		cacheTTL:  cfg.CacheTTL,
		retryMax:  uint64(cfg.RetryMax),
		retryBase: cfg.RetryBase,
		now:       time.Now,
	}
}

func (c *Client) Mode() domain.DeployMode { return c.mode }

// ReqSpec describes one tracker call.
type ReqSpec struct {
	Method   string
	Endpoint string // path under the base URL, e.g. /rest/api/2/search
	Params   url.Values
	Body     any
	UserID   string // whose bearer token to prefer; empty means shared basic auth

	NoCache  bool          // bypass cache read and write (GETs only cache anyway)
	CacheTTL time.Duration // 0 means the configured default

	// IdempotencyKey opts a write into automatic retry. Without it only
	// GET/HEAD are retried: replaying a timed-out create can duplicate
	// issues when the first attempt actually landed.
	IdempotencyKey string
}

func (c *Client) Request(ctx context.Context, spec ReqSpec) (any, error) {
	if c.baseURL == "" {
		return nil, &domain.ValidationError{Field: "base_url", Reason: "jira base URL not configured"}
	}
	method := strings.ToUpper(spec.Method)

	cacheKey := ""
	if method == http.MethodGet && !spec.NoCache && c.cache != nil {
		cacheKey = requestKey(method, spec.Endpoint, spec.Params, spec.Body)
		if raw, ok, err := c.cache.GetAPICache(ctx, cacheKey); err == nil && ok {
			var out any
			if json.Unmarshal(raw, &out) == nil {
				c.log.Debug().Str("endpoint", spec.Endpoint).Msg("jira cache hit")
				return out, nil
			}
		} else if err != nil {
			c.log.Warn().Err(err).Msg("jira cache read failed")
		}
	}

	var bodyBytes []byte
	if spec.Body != nil {
		b, err := json.Marshal(spec.Body)
		if err != nil { return nil, err }
		bodyBytes = b
	}

	u := c.baseURL + spec.Endpoint
	if len(spec.Params) > 0 { u += "?" + spec.Params.Encode() }

	retryable := method == http.MethodGet || method == http.MethodHead || spec.IdempotencyKey != ""

	var out any
	op := func() error {
		var r io.Reader
		if bodyBytes != nil { r = bytes.NewReader(bodyBytes) }
		req, err := http.NewRequestWithContext(ctx, method, u, r)
		if err != nil { return backoff.Permanent(err) }
		req.Header.Set("Accept", "application/json")
		if bodyBytes != nil { req.Header.Set("Content-Type", "application/json") }
		if spec.IdempotencyKey != "" { req.Header.Set("X-Idempotency-Key", spec.IdempotencyKey) }
		c.authorize(ctx, req, spec.UserID)

		resp, err := c.http.Do(req)
		if err != nil {
			terr := &domain.TransientNetworkError{Err: err}
			if !retryable { return backoff.Permanent(terr) }
			return terr
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			b, _ := io.ReadAll(resp.Body)
			apiErr := classify(resp.StatusCode, b)
			var transient *domain.TransientNetworkError
			if errors.As(apiErr, &transient) && retryable { return apiErr }
			return backoff.Permanent(apiErr)
		}

		b, err := io.ReadAll(resp.Body)
		if err != nil { return &domain.TransientNetworkError{Err: err} }
		if len(bytes.TrimSpace(b)) == 0 {
			out = map[string]any{"success": true}
			return nil
		}
		if err := json.Unmarshal(b, &out); err != nil {
			return backoff.Permanent(err)
		}
		if cacheKey != "" {
			ttl := spec.CacheTTL
			if ttl <= 0 { ttl = c.cacheTTL }
			if err := c.cache.PutAPICache(ctx, cacheKey, json.RawMessage(b), ttl); err != nil {
				c.log.Warn().Err(err).Msg("jira cache write failed")
			}
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryBase
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, c.retryMax), ctx)); err != nil {
		c.log.Error().Err(err).Str("m", method).Str("endpoint", spec.Endpoint).Msg("jira request failed")
		return nil, err
	}
	return out, nil
}

// authorize prefers a live per-user bearer token and falls back to the shared
// basic pair. This is a per-request decision, not a client mode.
func (c *Client) authorize(ctx context.Context, req *http.Request, userID string) {
	if userID != "" && c.tokens != nil {
		if tok, ok, err := c.tokens.Token(ctx, userID); err == nil && ok && tok.Valid(c.now()) {
			req.Header.Set("Authorization", "Bearer "+tok.Access)
			return
		}
	}
	if c.user != "" && c.pass != "" {
		req.SetBasicAuth(c.user, c.pass)
	}
}

// classify turns a non-2xx response into the error taxonomy: 401/403 are auth,
// other 4xx are remote rejections (never retried), 429 and 5xx are transient.
func classify(status int, body []byte) error {
	msg := parseErrorBody(status, body)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &domain.AuthError{Reason: msg}
	case status == http.StatusTooManyRequests || status >= 500:
		return &domain.TransientNetworkError{Err: &domain.RemoteAPIError{StatusCode: status, Message: msg}}
	default:
		return &domain.RemoteAPIError{StatusCode: status, Message: msg}
	}
}

// parseErrorBody extracts the tracker's message: first entry of the
// errorMessages array, else the errors map flattened into "field: message"
// pairs, else a generic HTTP error string.
func parseErrorBody(status int, body []byte) string {
	var parsed struct {
		ErrorMessages []string          `json:"errorMessages"`
		Errors        map[string]string `json:"errors"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if len(parsed.ErrorMessages) > 0 {
			return parsed.ErrorMessages[0]
		}
		if len(parsed.Errors) > 0 {
			parts := make([]string, 0, len(parsed.Errors))
			for k, v := range parsed.Errors { parts = append(parts, k+": "+v) }
			sort.Strings(parts)
			return strings.Join(parts, ", ")
		}
	}
	return "HTTP error " + strconv.Itoa(status)
}

// requestKey is a stable hash over method, endpoint and the sorted
// params/body, so identical GETs share one cache row.
func requestKey(method, endpoint string, params url.Values, body any) string {
	var sb strings.Builder
	sb.WriteString(method)
	sb.WriteByte('|')
	sb.WriteString(endpoint)
	sb.WriteByte('|')
	if len(params) > 0 {
		sb.WriteString(params.Encode()) // Encode sorts keys
	}
	sb.WriteByte('|')
	if body != nil {
		if b, err := json.Marshal(body); err == nil { sb.Write(b) } // map keys marshal sorted
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}
