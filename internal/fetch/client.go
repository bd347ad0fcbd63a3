// Package fetch is the single outbound HTTP path for share pages, lookup
// endpoints and feed documents. Every request is attempted exactly once
// under a bounded timeout; retry policy belongs to the caller.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gregjones/httpcache"
	"github.com/matthewjhunter/podhub/internal/errs"
)

const (
	defaultTimeout      = 15 * time.Second
	defaultMaxBodyBytes = 10 << 20
	defaultUserAgent    = "podhub/1.0"
)

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int64
	// Cache enables an in-memory RFC 7234 cache in front of the transport.
	Cache bool
	// Transport overrides http.DefaultTransport; tests use it to route
	// requests for arbitrary hosts to a local server.
	Transport http.RoundTripper
}

// Response is a fully read HTTP response.
type Response struct {
	URL         string // final URL after redirects
	Status      int
	ContentType string
	Header      http.Header
	Body        []byte
}

// Client performs single-attempt GETs with a body size cap.
type Client struct {
	http      *http.Client
	userAgent string
	maxBody   int64
}

// New creates a Client from opts.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}

	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	if opts.Cache {
		ct := httpcache.NewMemoryCacheTransport()
		ct.Transport = transport
		transport = ct
	}

	return &Client{
		http:      &http.Client{Timeout: opts.Timeout, Transport: transport},
		userAgent: opts.UserAgent,
		maxBody:   opts.MaxBodyBytes,
	}
}

// Get fetches rawURL. Extra headers (conditional request headers, Accept)
// are applied on top of the User-Agent. Transport failures, timeouts,
// oversized bodies and statuses >= 400 all come back as errs.FetchError;
// a 304 is returned as a normal response with an empty body.
func (c *Client) Get(ctx context.Context, rawURL string, header http.Header) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidInput, err, "build request for %s", rawURL)
	}
	req.Header.Set("User-Agent", c.userAgent)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.FetchError, err, "get %s", rawURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, errs.HTTPStatus(rawURL, resp.StatusCode)
	}

	out := &Response{
		URL:         rawURL,
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Header:      resp.Header,
	}
	if resp.Request != nil && resp.Request.URL != nil {
		out.URL = resp.Request.URL.String()
	}
	if resp.StatusCode == http.StatusNotModified {
		return out, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, errs.Wrap(errs.FetchError, err, "read %s", rawURL)
	}
	if int64(len(body)) > c.maxBody {
		return nil, errs.New(errs.FetchError, "%s body exceeds %d bytes", rawURL, c.maxBody)
	}
	out.Body = body
	return out, nil
}

// String describes the client for log lines.
func (c *Client) String() string {
	return fmt.Sprintf("fetch.Client(timeout=%s, max_body=%d)", c.http.Timeout, c.maxBody)
}
