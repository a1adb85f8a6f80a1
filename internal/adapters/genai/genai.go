// Package genai is a minimal client for the generative language REST API
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	perr "chartguard/internal/platform/errors"
	"chartguard/internal/platform/logger"
)

const (
	baseURLDefault = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-3-flash-preview"
	defaultTimeout = 60 * time.Second
)

// Options configures the Client
type Options struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Part is one text fragment of a content block
type Part struct {
	Text string `json:"text"`
}

// Content is a block of parts
type Content struct {
	Parts []Part `json:"parts"`
}

// GenerationConfig tunes the model call
type GenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

// Request is the generateContent payload
type Request struct {
	Contents          []Content         `json:"contents"`
	SystemInstruction *Content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
}

type candidate struct {
	Content Content `json:"content"`
}

type response struct {
	Candidates []candidate `json:"candidates"`
}

// StatusError carries the upstream HTTP status for failed calls so callers
// can feed it back into credential health tracking
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string { return "genai: upstream status " + http.StatusText(e.Status) }

// Client issues generateContent calls. The credential is supplied per call,
// not held by the client, so one client serves every rotation slot
type Client struct {
	http *http.Client
	opts Options
	log  logger.Logger
}

// NewClient creates a new Client with sane defaults
func NewClient(o Options) *Client {
	if o.BaseURL == "" {
		o.BaseURL = baseURLDefault
	}
	if o.Model == "" {
		o.Model = defaultModel
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	return &Client{
		http: &http.Client{Timeout: o.Timeout},
		opts: o,
		log:  *logger.Named("genai"),
	}
}

// Model returns the configured model name
func (c *Client) Model() string { return c.opts.Model }

// Generate posts req using credential and returns the first candidate's text.
//
// A non-2xx upstream answer returns a *StatusError wrapped in an Upstream
// project error; the response body is not interpreted beyond diagnostics
func (c *Client) Generate(ctx context.Context, credential string, req Request) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", perr.Wrapf(err, perr.ErrorCodeUnknown, "genai marshal failed")
	}

	u := c.opts.BaseURL + "/models/" + c.opts.Model + ":generateContent?key=" + url.QueryEscape(credential)
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", perr.Wrapf(err, perr.ErrorCodeUnknown, "genai new request failed")
	}
	hreq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(hreq)
	if err != nil {
		return "", perr.Wrapf(err, perr.ErrorCodeUnavailable, "genai do failed")
	}
	defer func() { _ = resp.Body.Close() }()

	c.log.Debug().
		Str("model", c.opts.Model).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("genai response")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		tail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		c.log.Warn().Int("status", resp.StatusCode).Bytes("body", tail).Msg("genai upstream error")
		return "", perr.Wrapf(&StatusError{Status: resp.StatusCode}, perr.ErrorCodeUpstream,
			"genai upstream status %d", resp.StatusCode)
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", perr.Wrapf(err, perr.ErrorCodeUpstream, "genai decode failed")
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", perr.Upstreamf("genai returned no content")
	}
	return out.Candidates[0].Content.Parts[0].Text, nil
}
