// Package apperrors defines the error-kind taxonomy shared by every
// component. Components never return bare errors for conditions the
// orchestrator needs to branch on; they wrap them in an *AppError so the
// caller can classify with errors.As without string matching.
package apperrors

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies an error for retry, circuit-breaking, and aggregate
// reporting purposes.
type Kind string

const (
	// KindNetworkUnavailable fails fast; the run aborts.
	KindNetworkUnavailable Kind = "NETWORK_UNAVAILABLE"
	// KindAuthExpired triggers one re-auth attempt at the session layer.
	KindAuthExpired Kind = "AUTH_EXPIRED"
	// KindRateLimited is retried transparently, honoring RetryAfter.
	KindRateLimited Kind = "RATE_LIMITED"
	// KindTransient is retried with exponential backoff up to a limit.
	KindTransient Kind = "TRANSIENT"
	// KindRemoteError is a non-2xx response the transport could not
	// otherwise classify.
	KindRemoteError Kind = "REMOTE_ERROR"
	// KindNotFound means the item does not exist upstream; not a run-level
	// error.
	KindNotFound Kind = "NOT_FOUND"
	// KindQualityUnavailable means the requested stream quality was
	// downgraded; not an error, just reported.
	KindQualityUnavailable Kind = "QUALITY_UNAVAILABLE"
	// KindDiskFull halts downloads but keeps metadata already committed.
	KindDiskFull Kind = "DISK_FULL"
	// KindMergeError is per-item fatal; the .part files are retained.
	KindMergeError Kind = "MERGE_ERROR"
	// KindCommitFailed means the dataset store rolled back in-memory
	// state after an index write failure.
	KindCommitFailed Kind = "COMMIT_FAILED"
	// KindPerItemFailed is the degraded terminal state of a KindTransient
	// error that exhausted its retries.
	KindPerItemFailed Kind = "PER_ITEM_FAILED"
	// KindSearchFailed means every page of a keyword failed.
	KindSearchFailed Kind = "SEARCH_FAILED"
)

// AppError carries a Kind plus whatever extra fields that kind needs for
// the caller to act on it (retry-after, exit code, etc).
type AppError struct {
	Kind    Kind
	Message string
	Err     error

	// RetryAfter is set for KindRateLimited.
	RetryAfter time.Duration
	// Code is set for KindRemoteError.
	Code int
	// Keyword is set for KindSearchFailed.
	Keyword string
	// ItemID is set whenever the error concerns a specific item, so log
	// sites and the aggregate report can attribute it without re-wrapping.
	ItemID string
	// Tool, ExitCode, StderrTail are set for KindMergeError.
	Tool       string
	ExitCode   int
	StderrTail string
}

func (e *AppError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.ItemID != "" {
		msg = fmt.Sprintf("[%s] %s", e.ItemID, msg)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *AppError) Unwrap() error { return e.Err }

// New creates an AppError with no wrapped cause.
func New(kind Kind, message string) error {
	return &AppError{Kind: kind, Message: message}
}

// Wrap attaches a Kind to an existing error.
func Wrap(kind Kind, message string, err error) error {
	return &AppError{Kind: kind, Message: message, Err: err}
}

// WithItem returns a copy of err (if it is an *AppError) tagged with the
// given item ID, so downstream logging and reporting can attribute it.
func WithItem(err error, itemID string) error {
	var ae *AppError
	if errors.As(err, &ae) {
		cp := *ae
		cp.ItemID = itemID
		return &cp
	}
	return err
}

// RateLimited creates a KindRateLimited error honoring retryAfter.
func RateLimited(retryAfter time.Duration) error {
	return &AppError{Kind: KindRateLimited, Message: "rate limited", RetryAfter: retryAfter}
}

// RemoteError creates a KindRemoteError error for a non-2xx response.
func RemoteError(code int, message string) error {
	return &AppError{Kind: KindRemoteError, Message: message, Code: code}
}

// MergeError creates a KindMergeError from a failed muxer invocation.
func MergeError(tool string, exitCode int, stderrTail string) error {
	return &AppError{
		Kind:       KindMergeError,
		Message:    "muxer invocation failed",
		Tool:       tool,
		ExitCode:   exitCode,
		StderrTail: stderrTail,
	}
}

// SearchFailed creates a KindSearchFailed error for a keyword whose every
// page failed.
func SearchFailed(keyword string, cause error) error {
	return &AppError{Kind: KindSearchFailed, Message: "all pages failed", Err: cause, Keyword: keyword}
}

// KindOf extracts the Kind of err, or "" if err is not an *AppError.
func KindOf(err error) Kind {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// Is reports whether err is an *AppError of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// AsAppError extracts the *AppError from err, if any.
func AsAppError(err error) (*AppError, bool) {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
