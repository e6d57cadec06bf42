package transfer

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"
)

// decision is the outcome of classifying one transport result. suggestedDelay
// is zero unless the server asked for a specific wait (Retry-After).
type decision struct {
	retry          bool
	kind           ErrorKind
	suggestedDelay time.Duration
}

// serverTransientCodes are status codes treated as temporary server failures.
// 524 is Cloudflare's origin-timeout status; model-hosting APIs behind
// Cloudflare return it routinely under load.
var serverTransientCodes = map[int]bool{
	http.StatusInternalServerError: true, // 500
	http.StatusBadGateway:          true, // 502
	http.StatusServiceUnavailable:  true, // 503
	http.StatusGatewayTimeout:      true, // 504
	524:                            true,
}

// classifyStatus maps a received HTTP status to a retry decision. Only called
// for non-2xx statuses.
func classifyStatus(status int, header http.Header) decision {
	switch {
	case status == http.StatusTooManyRequests:
		return decision{retry: true, kind: KindRateLimited, suggestedDelay: parseRetryAfter(header)}
	case serverTransientCodes[status]:
		return decision{retry: true, kind: KindServerTransient}
	case status >= 400 && status < 500:
		return decision{retry: false, kind: KindClientError}
	case status >= 500:
		return decision{retry: true, kind: KindServerTransient}
	}
	return decision{retry: false, kind: KindFatal}
}

// classifyError maps a transport-level error (no response arrived) to a
// retry decision. Context cancellation is surfaced as Cancelled and never
// retried; everything else that looks like a network hiccup is Transient.
func classifyError(err error) decision {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return decision{retry: false, kind: KindCancelled}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return decision{retry: true, kind: KindTransient}
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return decision{retry: true, kind: KindTransient}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		// Connection refused, reset, broken pipe and friends.
		return decision{retry: true, kind: KindTransient}
	}
	// url.Error and io errors from a dropped connection end up here.
	return decision{retry: true, kind: KindTransient}
}

// parseRetryAfter reads a Retry-After header, which is either a delay in
// seconds or an HTTP date. Returns 0 when absent or unparseable.
func parseRetryAfter(header http.Header) time.Duration {
	v := header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
