package transfer

import (
	"errors"
	"fmt"
)

// ErrorKind groups failures by how they should be handled: whether a retry
// makes sense and what a UI should tell the user. Use KindOf to extract the
// kind from any error returned by this package.
type ErrorKind int

const (
	// KindTransient covers connection resets, refused connections, DNS
	// failures and read/connect timeouts.
	KindTransient ErrorKind = iota

	// KindRateLimited is HTTP 429.
	KindRateLimited

	// KindServerTransient is a 5xx-class failure (including Cloudflare 524).
	KindServerTransient

	// KindClientError is any 4xx other than 429. Not retryable.
	KindClientError

	// KindParseError means the response arrived but its body did not match
	// the expected structure. Not retryable; this is a logic error.
	KindParseError

	// KindCancelled means the caller's context was cancelled or its deadline
	// expired. Never retried.
	KindCancelled

	// KindFatal means retries were exhausted or the failure was otherwise
	// unrecoverable.
	KindFatal
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRateLimited:
		return "rate-limited"
	case KindServerTransient:
		return "server-transient"
	case KindClientError:
		return "client-error"
	case KindParseError:
		return "parse-error"
	case KindCancelled:
		return "cancelled"
	case KindFatal:
		return "fatal"
	}
	return "unknown"
}

// Category returns a human-readable description suitable for surfacing in a
// UI. Independent of retry behavior.
func (k ErrorKind) Category() string {
	switch k {
	case KindTransient:
		return "Network interruption"
	case KindRateLimited:
		return "Rate limited by server"
	case KindServerTransient:
		return "Server temporarily unavailable"
	case KindClientError:
		return "Request rejected"
	case KindParseError:
		return "Unexpected response format"
	case KindCancelled:
		return "Cancelled"
	case KindFatal:
		return "Download failed"
	}
	return "Unknown error"
}

// Error is the failure value every public operation returns. It carries the
// classification kind, the HTTP status when one was received, and the last
// underlying error.
type Error struct {
	Kind    ErrorKind
	Status  int // 0 when the failure happened before a response arrived
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.Category()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, status int, msg string, err error) *Error {
	return &Error{Kind: kind, Status: status, Message: msg, Err: err}
}

// KindOf reports the ErrorKind carried by err. Errors that did not originate
// in this package map to KindFatal.
func KindOf(err error) ErrorKind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindFatal
}

// Sentinel errors.
var (
	// ErrRangeNotSupported indicates the server does not honor Range
	// requests, detected either from a missing Accept-Ranges header or a
	// 200 response to a ranged request.
	ErrRangeNotSupported = errors.New("transfer: range requests not supported")

	// ErrUnknownLength indicates the server did not report a usable
	// Content-Length for the resource.
	ErrUnknownLength = errors.New("transfer: content length unknown")

	// ErrTruncated indicates fewer bytes arrived than the server advertised.
	ErrTruncated = errors.New("transfer: truncated transfer")
)
