package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind identifies a class of failure in a run
type Kind string

const (
	KindCookieIO            Kind = "cookie_io"
	KindChallengeUnresolved Kind = "challenge_unresolved"
	KindNavigation          Kind = "navigation"
	KindManifestFormat      Kind = "manifest_format"
	KindMalformedAssetURL   Kind = "malformed_asset_url"
	KindDownloadTransport   Kind = "download_transport"
	KindDownloadStatus      Kind = "download_status"
)

// Sentinels for errors.Is checks. Matching is by kind only.
var (
	ErrCookieIO            = &Error{Kind: KindCookieIO}
	ErrChallengeUnresolved = &Error{Kind: KindChallengeUnresolved}
	ErrNavigation          = &Error{Kind: KindNavigation}
	ErrManifestFormat      = &Error{Kind: KindManifestFormat}
	ErrMalformedAssetURL   = &Error{Kind: KindMalformedAssetURL}
	ErrDownloadTransport   = &Error{Kind: KindDownloadTransport}
	ErrDownloadStatus      = &Error{Kind: KindDownloadStatus}
)

// Error is a typed failure carrying the operation, the URL involved and an
// optional HTTP status code
type Error struct {
	Kind Kind
	Op   string
	URL  string
	Code int
	Err  error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Code != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Code)
	}
	if e.URL != "" {
		msg += " " + e.URL
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds a typed error
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Status builds a download_status error for a non-success response
func Status(url string, code int) *Error {
	return &Error{Kind: KindDownloadStatus, Op: "fetch", URL: url, Code: code}
}

// Transport builds a download_transport error for a failed round trip
func Transport(url string, err error) *Error {
	return &Error{Kind: KindDownloadTransport, Op: "fetch", URL: url, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsFatal reports whether err ends the run. Only session bootstrap and
// primary navigation failures do.
func IsFatal(err error) bool {
	switch KindOf(err) {
	case KindChallengeUnresolved, KindNavigation:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether err is a per-asset download failure
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindDownloadTransport, KindDownloadStatus:
		return true
	default:
		return false
	}
}

// StatusCode extracts the HTTP status carried by err, or 0
func StatusCode(err error) int {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return 0
}
