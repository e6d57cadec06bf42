package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Config holds everything the client needs; zero values fall back to the
// defaults below. The embedding application owns config loading and hands the
// resolved values in here.
type Config struct {
	// RequestTimeout is the per-attempt deadline for API calls and probes.
	// Download bodies are exempt; they are bounded by cancellation instead.
	RequestTimeout time.Duration

	// KeepAliveTimeout is how long idle pool connections are kept.
	KeepAliveTimeout time.Duration

	ProxyURL  string
	UserAgent string
	Headers   map[string]string

	// AuthToken, when set, is attached to every request as a static
	// Authorization: Bearer header.
	AuthToken string

	Retry RetryPolicy

	// Connections is the chunked-download concurrency.
	Connections int

	// ChunkThreshold is the size at which downloads switch from a single
	// stream to concurrent chunks.
	ChunkThreshold int64

	// RequestsPerSecond throttles request starts across the whole client.
	// Zero disables throttling.
	RequestsPerSecond float64
}

const (
	DefaultConnections    = 8
	DefaultChunkThreshold = 16 << 20
	DefaultUserAgent      = "modelbay-transfer/1.0"
)

func DefaultConfig() Config {
	return Config{
		RequestTimeout:   60 * time.Second,
		KeepAliveTimeout: 90 * time.Second,
		UserAgent:        DefaultUserAgent,
		Retry:            DefaultRetryPolicy(),
		Connections:      DefaultConnections,
		ChunkThreshold:   DefaultChunkThreshold,
	}
}

// Client is the transfer engine facade. It owns the shared connection pool,
// which every concurrent task and chunk worker draws from; the pool is safe
// for concurrent use and torn down by Close.
type Client struct {
	cfg        Config
	httpClient *http.Client
	exec       *executor
	log        zerolog.Logger
}

// New constructs a Client. The connection pool lives until Close.
func New(cfg Config) (*Client, error) {
	def := DefaultConfig()
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.KeepAliveTimeout == 0 {
		cfg.KeepAliveTimeout = def.KeepAliveTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.Retry == (RetryPolicy{}) {
		cfg.Retry = def.Retry
	}
	if cfg.Connections <= 0 {
		cfg.Connections = def.Connections
	}
	if cfg.ChunkThreshold <= 0 {
		cfg.ChunkThreshold = def.ChunkThreshold
	}
	if err := cfg.Retry.Validate(); err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	httpClient := newHTTPClient(cfg)
	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		exec:       newExecutor(httpClient, cfg.Retry, limiter),
		log:        GetLogger("client"),
	}, nil
}

// Close releases idle pooled connections. The client must not be used after.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// Stats returns the diagnostic request counters.
func (c *Client) Stats() Stats {
	return c.exec.stats()
}

// newSpec builds a RequestSpec carrying the client's standing headers.
func (c *Client) newSpec(method, rawURL string) RequestSpec {
	header := make(http.Header)
	header.Set("User-Agent", c.cfg.UserAgent)
	header.Set("Connection", "keep-alive")
	for k, v := range c.cfg.Headers {
		header.Set(k, v)
	}
	return RequestSpec{Method: method, URL: rawURL, Header: header}
}

// GetJSON fetches rawURL (with params appended) and decodes the response body
// into out. A body that fails to decode is a ParseError and is never retried;
// that's a logic fault, not a transport one.
func (c *Client) GetJSON(ctx context.Context, rawURL string, params url.Values, out any) error {
	if len(params) > 0 {
		u, err := url.Parse(rawURL)
		if err != nil {
			return newError(KindFatal, 0, "invalid URL", err)
		}
		q := u.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
		rawURL = u.String()
	}

	spec := c.newSpec(http.MethodGet, rawURL)
	spec.Timeout = c.cfg.RequestTimeout
	spec.Header.Set("Accept", "application/json")
	resp, err := c.exec.execute(ctx, spec)
	if err != nil {
		return err
	}
	defer resp.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return newError(KindCancelled, resp.StatusCode, "request cancelled", ctx.Err())
		}
		return newError(KindTransient, resp.StatusCode, "reading response body", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return newError(KindParseError, resp.StatusCode, "decoding JSON response", err)
	}
	return nil
}

// PostJSON sends body as JSON and decodes the response into out (which may be
// nil when the caller doesn't need the reply).
func (c *Client) PostJSON(ctx context.Context, rawURL string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return newError(KindFatal, 0, "encoding request body", err)
	}
	spec := c.newSpec(http.MethodPost, rawURL)
	spec.Timeout = c.cfg.RequestTimeout
	spec.Body = payload
	spec.Header.Set("Content-Type", "application/json")
	spec.Header.Set("Accept", "application/json")
	resp, err := c.exec.execute(ctx, spec)
	if err != nil {
		return err
	}
	defer resp.Close()
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return newError(KindTransient, resp.StatusCode, "reading response body", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return newError(KindParseError, resp.StatusCode, "decoding JSON response", err)
	}
	return nil
}

// DownloadFile fetches rawURL to destPath, reporting progress to sink (which
// may be nil). The strategy is picked per resource: s3:// URLs go through the
// S3 mirror backend, git repository URLs are cloned, and HTTP resources
// download chunked when they are large and the server supports ranges, as a
// single resumable stream otherwise. A nil return means the destination file
// is complete.
func (c *Client) DownloadFile(ctx context.Context, rawURL, destPath string, sink ProgressSink) error {
	task := &DownloadTask{
		ID:        uuid.NewString(),
		URL:       rawURL,
		Dest:      destPath,
		TotalSize: -1,
	}
	tr := newTracker(sink, -1)
	tr.setPhase(PhaseInitializing)

	err := c.dispatch(ctx, task, tr)
	if err != nil {
		tr.finish(PhaseFailed)
		return asTransferError(ctx, err)
	}
	tr.finish(PhaseDone)
	return nil
}

func (c *Client) dispatch(ctx context.Context, task *DownloadTask, tr *tracker) error {
	switch {
	case strings.HasPrefix(task.URL, "s3://"):
		return c.downloadS3(ctx, task, tr)
	case isGitURL(task.URL):
		return c.downloadGitClone(ctx, task, tr)
	}

	info, err := c.probe(ctx, task.URL)
	if err != nil {
		// No usable probe: never fail just because HEAD did; the plain
		// stream needs neither size nor range support.
		if KindOf(err) == KindCancelled {
			return err
		}
		c.log.Debug().Err(err).Str("url", task.URL).Msg("Probe failed, using single stream")
		return c.downloadStream(ctx, task, tr)
	}
	if info.Size <= 0 || !info.AcceptsRanges || info.Size < c.cfg.ChunkThreshold {
		return c.downloadStream(ctx, task, tr)
	}
	task.TotalSize = info.Size
	return c.downloadChunked(ctx, task, c.cfg.Connections, tr)
}

// DownloadBatch runs entries through a bounded pool of workers. Each entry
// gets its own progress sink from sinkFor (which may return nil). The first
// error per entry is collected; a non-nil return lists every failed entry.
func (c *Client) DownloadBatch(ctx context.Context, entries []BatchEntry, workers int, sinkFor func(BatchEntry) ProgressSink) error {
	if workers < 1 {
		workers = 1
	}
	entryCh := make(chan BatchEntry, len(entries))
	for _, entry := range entries {
		entryCh <- entry
	}
	close(entryCh)

	errs := make([]error, 0, len(entries))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for entry := range entryCh {
				var sink ProgressSink
				if sinkFor != nil {
					sink = sinkFor(entry)
				}
				if err := c.DownloadFile(ctx, entry.URL, entry.OutputPath, sink); err != nil {
					mu.Lock()
					errs = append(errs, fmt.Errorf("%s: %w", entry.URL, err))
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

// asTransferError guarantees the public boundary always returns *Error.
func asTransferError(ctx context.Context, err error) error {
	var te *Error
	if errors.As(err, &te) {
		return err
	}
	if ctx.Err() != nil {
		return newError(KindCancelled, 0, "download cancelled", err)
	}
	return newError(KindFatal, 0, "download failed", err)
}
