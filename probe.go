package transfer

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var filenameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_\-\. ]+`)

// FileInfo is what a probe learns about a remote resource before the
// download strategy is chosen.
type FileInfo struct {
	Size          int64 // -1 when the server did not report a length
	AcceptsRanges bool
	Filename      string // from Content-Disposition, sanitized; may be empty
}

// Stat probes rawURL without downloading it, reporting its size, whether the
// server honors Range requests, and the filename the server suggests.
func (c *Client) Stat(ctx context.Context, rawURL string) (*FileInfo, error) {
	return c.probe(ctx, rawURL)
}

// probe asks the server for size and range support using a HEAD request,
// falling back to a one-byte ranged GET for servers that refuse HEAD.
func (c *Client) probe(ctx context.Context, rawURL string) (*FileInfo, error) {
	spec := c.newSpec(http.MethodHead, rawURL)
	spec.Timeout = c.cfg.RequestTimeout
	resp, err := c.exec.execute(ctx, spec)
	if err != nil {
		var te *Error
		if errors.As(err, &te) && (te.Status == http.StatusMethodNotAllowed || te.Status == http.StatusNotImplemented) {
			return c.rangeProbe(ctx, rawURL)
		}
		return nil, err
	}
	defer resp.Close()

	info := &FileInfo{
		Size:          resp.ContentLength,
		AcceptsRanges: resp.Header.Get("Accept-Ranges") == "bytes",
		Filename:      filenameFromHeader(resp.Header),
	}
	if info.Size < 0 {
		if cl := resp.Header.Get("Content-Length"); cl != "" {
			if size, err := strconv.ParseInt(cl, 10, 64); err == nil {
				info.Size = size
			}
		}
	}
	return info, nil
}

// rangeProbe requests the first byte of the resource. A 206 with a
// Content-Range total means the server supports ranges and tells us the size.
func (c *Client) rangeProbe(ctx context.Context, rawURL string) (*FileInfo, error) {
	spec := c.newSpec(http.MethodGet, rawURL)
	spec.Timeout = c.cfg.RequestTimeout
	spec.Header.Set("Range", "bytes=0-0")
	resp, err := c.exec.execute(ctx, spec)
	if err != nil {
		return nil, err
	}
	defer resp.Close()

	info := &FileInfo{Size: -1, Filename: filenameFromHeader(resp.Header)}
	if resp.StatusCode != http.StatusPartialContent {
		// Server ignored the range and is sending the whole body.
		info.Size = resp.ContentLength
		return info, nil
	}
	info.AcceptsRanges = true
	if _, _, total, err := parseContentRange(resp.Header.Get("Content-Range")); err == nil {
		info.Size = total
	}
	return info, nil
}

// parseContentRange parses "bytes start-end/total". Total is -1 for "*".
func parseContentRange(header string) (start, end, total int64, err error) {
	value, ok := strings.CutPrefix(header, "bytes ")
	if !ok {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range: %q", header)
	}
	rangePart, totalPart, ok := strings.Cut(value, "/")
	if !ok {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range: %q", header)
	}
	startStr, endStr, ok := strings.Cut(rangePart, "-")
	if !ok {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range: %q", header)
	}
	if start, err = strconv.ParseInt(startStr, 10, 64); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range start: %w", err)
	}
	if end, err = strconv.ParseInt(endStr, 10, 64); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range end: %w", err)
	}
	if totalPart == "*" {
		total = -1
	} else if total, err = strconv.ParseInt(totalPart, 10, 64); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range total: %w", err)
	}
	return start, end, total, nil
}

// filenameFromHeader extracts a usable filename from Content-Disposition.
func filenameFromHeader(header http.Header) string {
	cd := header.Get("Content-Disposition")
	if cd == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(cd)
	if err != nil {
		return ""
	}
	if fn, ok := params["filename"]; ok && fn != "" {
		return filenameSanitizer.ReplaceAllString(fn, "_")
	}
	if fn, ok := params["filename*"]; ok && strings.HasPrefix(fn, "UTF-8''") {
		unescaped, _ := url.PathUnescape(strings.TrimPrefix(fn, "UTF-8''"))
		return filenameSanitizer.ReplaceAllString(unescaped, "_")
	}
	return ""
}
