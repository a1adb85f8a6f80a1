// Package pubmed probes the public PubMed index for article existence
package pubmed

import (
	"context"
	"io"
	"net/http"
	"time"

	perr "chartguard/internal/platform/errors"
	"chartguard/internal/platform/logger"
)

const (
	baseURLDefault = "https://pubmed.ncbi.nlm.nih.gov"
	defaultTimeout = 8 * time.Second
	defaultUA      = "chartguard-verify"
)

// Options configures the Client
type Options struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// Client answers "does this article id exist" with a status-only probe.
// Bodies are never read beyond draining, so a GET costs the same as a HEAD
type Client struct {
	http *http.Client
	opts Options
	log  logger.Logger
	now  func() time.Time
}

// NewClient creates a new Client with sane defaults
func NewClient(o Options) *Client {
	if o.BaseURL == "" {
		o.BaseURL = baseURLDefault
	}
	if o.UserAgent == "" {
		o.UserAgent = defaultUA
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	return &Client{
		http: &http.Client{Timeout: o.Timeout},
		opts: o,
		log:  *logger.Named("pubmed"),
		now:  time.Now,
	}
}

// Exists reports whether the article page for id resolves.
//
// HEAD is tried first; 405 and 403 fall back to a status-only GET since some
// fronting proxies reject HEAD. Transport failures report false rather than
// an error so a flaky network degrades to "unverified" instead of failing
// the whole batch
func (c *Client) Exists(ctx context.Context, id string) bool {
	url := c.opts.BaseURL + "/" + id + "/"

	status, err := c.probe(ctx, http.MethodHead, url)
	if err != nil {
		c.log.Warn().Err(err).Str("id", id).Msg("pubmed head failed")
		return false
	}
	if status >= 200 && status < 300 {
		return true
	}
	if status != http.StatusMethodNotAllowed && status != http.StatusForbidden {
		return false
	}

	status, err = c.probe(ctx, http.MethodGet, url)
	if err != nil {
		c.log.Warn().Err(err).Str("id", id).Msg("pubmed get failed")
		return false
	}
	return status >= 200 && status < 300
}

func (c *Client) probe(ctx context.Context, method, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, perr.Wrapf(err, perr.ErrorCodeUnknown, "pubmed new request failed")
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)

	start := c.now()
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, perr.Wrapf(err, perr.ErrorCodeUnavailable, "pubmed do failed")
	}
	lat := c.now().Sub(start)
	// status only; drain so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()

	c.log.Debug().
		Str("method", method).
		Str("url", url).
		Int("status", resp.StatusCode).
		Dur("latency", lat).
		Msg("pubmed probe response")
	return resp.StatusCode, nil
}
