package domain

import "fmt"

// ValidationError: a required entity or field is missing or malformed before
// any network call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" { return e.Reason }
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// AuthError: no usable credential, or the tracker answered 401/403.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string { return e.Reason }

// TransientNetworkError: a retryable transport failure (connection error,
// timeout, 5xx). Surfaced only after the retry budget is spent.
type TransientNetworkError struct {
	Err error
}

func (e *TransientNetworkError) Error() string { return "transient network error: " + e.Err.Error() }
func (e *TransientNetworkError) Unwrap() error { return e.Err }

// RemoteAPIError: the tracker returned a non-2xx with a parseable message.
// 4xx responses are never retried.
type RemoteAPIError struct {
	StatusCode int
	Message    string
}

func (e *RemoteAPIError) Error() string {
	return fmt.Sprintf("jira api status=%d: %s", e.StatusCode, e.Message)
}

// ResolutionError: an assignee/reporter reference could not be resolved to a
// cloud account id. Failing fast here beats submitting a payload the remote
// API is guaranteed to reject.
type ResolutionError struct {
	Reference string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve %q to a tracker account id", e.Reference)
}
