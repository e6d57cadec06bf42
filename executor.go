package transfer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// RequestSpec describes one logical HTTP request. It is an immutable value
// created per call; the body is held as bytes so attempts can be replayed.
type RequestSpec struct {
	Method  string
	URL     string
	Header  http.Header
	Body    []byte
	Timeout time.Duration // per-attempt deadline; 0 leaves only the transport's header timeout
}

// Response is a successful (2xx) HTTP response. The body remains bound to the
// request's context until Close is called, so callers must always Close.
type Response struct {
	StatusCode    int
	Header        http.Header
	ContentLength int64
	Body          io.ReadCloser

	cancel context.CancelFunc
}

func (r *Response) Close() error {
	err := r.Body.Close()
	if r.cancel != nil {
		r.cancel()
	}
	return err
}

// Stats are lightweight diagnostic counters; they play no role in
// correctness.
type Stats struct {
	Attempts  int64
	Successes int64
	Failures  int64
}

// executor performs one logical request with retries. All network I/O in the
// engine funnels through here, which is also where the optional request
// throttle applies.
type executor struct {
	client  *http.Client
	policy  RetryPolicy
	limiter *rate.Limiter
	log     zerolog.Logger

	attempts  atomic.Int64
	successes atomic.Int64
	failures  atomic.Int64
}

func newExecutor(client *http.Client, policy RetryPolicy, limiter *rate.Limiter) *executor {
	return &executor{
		client:  client,
		policy:  policy,
		limiter: limiter,
		log:     GetLogger("executor"),
	}
}

func (e *executor) stats() Stats {
	return Stats{
		Attempts:  e.attempts.Load(),
		Successes: e.successes.Load(),
		Failures:  e.failures.Load(),
	}
}

// execute runs the attempt loop: try, classify, back off, retry. Failures are
// always returned as *Error values; nothing panics across this boundary.
func (e *executor) execute(ctx context.Context, spec RequestSpec) (*Response, error) {
	var lastErr error
	var lastStatus int

	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return nil, newError(KindCancelled, 0, "request cancelled", err)
			}
		}

		resp, cancel, err := e.attempt(ctx, spec)
		if err == nil {
			e.successes.Add(1)
			return &Response{
				StatusCode:    resp.StatusCode,
				Header:        resp.Header,
				ContentLength: resp.ContentLength,
				Body:          resp.Body,
				cancel:        cancel,
			}, nil
		}

		var dec decision
		if resp != nil {
			lastStatus = resp.StatusCode
			dec = classifyStatus(resp.StatusCode, resp.Header)
		} else {
			lastStatus = 0
			dec = classifyError(err)
			if dec.kind == KindCancelled && ctx.Err() == nil {
				// The attempt-local deadline expired, not the caller's
				// context. That's an ordinary timeout: retry it.
				dec = decision{retry: true, kind: KindTransient}
			}
		}
		lastErr = err
		cancel()

		if !dec.retry {
			e.failures.Add(1)
			return nil, newError(dec.kind, lastStatus, fmt.Sprintf("%s %s failed", spec.Method, spec.URL), err)
		}
		if attempt == e.policy.MaxAttempts {
			break
		}

		delay := dec.suggestedDelay
		if delay <= 0 {
			delay = e.policy.NextDelay(attempt)
		}
		e.log.Debug().Str("url", spec.URL).Int("attempt", attempt).
			Str("kind", dec.kind.String()).Dur("delay", delay).Err(err).
			Msg("Retrying request")
		if err := sleepCtx(ctx, delay); err != nil {
			e.failures.Add(1)
			return nil, newError(KindCancelled, lastStatus, "request cancelled during backoff", err)
		}
	}

	e.failures.Add(1)
	msg := fmt.Sprintf("%s %s failed after %d attempts", spec.Method, spec.URL, e.policy.MaxAttempts)
	return nil, newError(KindFatal, lastStatus, msg, lastErr)
}

// attempt performs exactly one network call. On a non-2xx status it drains
// and closes the body and returns the response alongside an error so the
// caller can classify by status; the caller owns cancel in every case.
func (e *executor) attempt(ctx context.Context, spec RequestSpec) (*http.Response, context.CancelFunc, error) {
	var attemptCtx context.Context
	var cancel context.CancelFunc
	if spec.Timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
	} else {
		attemptCtx, cancel = context.WithCancel(ctx)
	}

	var body io.Reader
	if len(spec.Body) > 0 {
		body = bytes.NewReader(spec.Body)
	}
	req, err := http.NewRequestWithContext(attemptCtx, spec.Method, spec.URL, body)
	if err != nil {
		cancel()
		return nil, func() {}, newError(KindFatal, 0, "invalid request", err)
	}
	for k, vs := range spec.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	e.attempts.Add(1)
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, cancel, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, cancel, nil
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
	return resp, cancel, fmt.Errorf("unexpected status %d (%s)", resp.StatusCode, http.StatusText(resp.StatusCode))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
