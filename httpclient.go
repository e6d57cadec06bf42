package transfer

import (
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// newHTTPClient builds the shared connection pool. One pool serves every
// request the client issues: JSON calls, probes, and all chunk workers, which
// is why per-host idle limits sit high. Compression is disabled so ranged
// responses arrive as raw bytes.
func newHTTPClient(cfg Config) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100, // for connection reuse across chunk workers
		IdleConnTimeout:       cfg.KeepAliveTimeout,
		DisableCompression:    true,
		MaxConnsPerHost:       0,
		ResponseHeaderTimeout: cfg.RequestTimeout,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}
	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			log.Error().Err(err).Str("proxy", cfg.ProxyURL).Msg("Invalid proxy URL, proceeding without proxy")
		} else {
			transport.Proxy = http.ProxyURL(proxyURL)
			log.Debug().Str("proxy", cfg.ProxyURL).Msg("Using proxy for connections")
		}
	}

	var rt http.RoundTripper = transport
	if cfg.AuthToken != "" {
		rt = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AuthToken}),
			Base:   transport,
		}
	}
	// No client-level timeout: it would cover the full body read and kill
	// long downloads. Per-attempt deadlines come from RequestSpec.Timeout.
	return &http.Client{Transport: rt}
}
