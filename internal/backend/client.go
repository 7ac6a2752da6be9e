// Package backend is the HTTP client for the marketplace API.
//
// Authentication is cookie based: the server sets access and refresh cookies
// on login and refresh, and the client only carries them in its jar. Every
// request flows through a Doer chain so callers can wrap a single call with
// extra behavior (see RefreshOn401) without touching the shared client.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Request is a replayable API call. Body holds the encoded JSON payload.
type Request struct {
	Method  string
	Path    string // relative to the client's base URL, already escaped
	Body    []byte
	Retried bool
}

// NewRequest encodes body (if non-nil) and returns a request for path.
func NewRequest(method, path string, body any) (*Request, error) {
	r := &Request{Method: method, Path: path}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", path, err)
		}
		r.Body = data
	}
	return r, nil
}

// Clone returns a copy that can be sent again.
func (r *Request) Clone() *Request {
	c := *r
	c.Body = bytes.Clone(r.Body)
	return &c
}

// Response is a 2xx response with its body fully read.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Decode unmarshals the response body into out. An empty body leaves out untouched.
func (r *Response) Decode(out any) error {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	return json.Unmarshal(r.Body, out)
}

// Doer sends a Request. Non-2xx responses are returned as *APIError.
type Doer interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// DoerFunc adapts a function to Doer.
type DoerFunc func(ctx context.Context, req *Request) (*Response, error)

func (f DoerFunc) Do(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Middleware decorates a Doer.
type Middleware func(next Doer) Doer

// Client talks to the marketplace API.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *zap.Logger
	doer   Doer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its Jar is kept as the
// session cookie store; a nil Jar is replaced with a fresh one.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client rooted at baseURL ("https://host/api/").
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	if base.Path == "" || base.Path[len(base.Path)-1] != '/' {
		base.Path += "/"
	}

	c := &Client{
		base:   base,
		http:   &http.Client{Timeout: 15 * time.Second},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("cookie jar: %w", err)
		}
		c.http.Jar = jar
	}
	c.doer = DoerFunc(c.roundTrip)
	return c, nil
}

// BaseURL returns a copy of the API root.
func (c *Client) BaseURL() *url.URL {
	u := *c.base
	return &u
}

// Jar returns the cookie jar holding the session cookies.
func (c *Client) Jar() http.CookieJar {
	return c.http.Jar
}

// With returns a client that shares c's transport and cookies but sends its
// requests through the given middleware, outermost first.
func (c *Client) With(mw ...Middleware) *Client {
	scoped := *c
	d := c.doer
	for i := len(mw) - 1; i >= 0; i-- {
		d = mw[i](d)
	}
	scoped.doer = d
	return &scoped
}

// Do sends req through the client's middleware chain.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	return c.doer.Do(ctx, req)
}

func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	req, err := NewRequest(method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := resp.Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, r *Request) (*Response, error) {
	ref, err := url.Parse(r.Path)
	if err != nil {
		return nil, fmt.Errorf("parse path %q: %w", r.Path, err)
	}
	target := c.base.ResolveReference(ref)

	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, r.Method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", r.Path, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if r.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	requestID := uuid.NewString()
	httpReq.Header.Set("X-Request-ID", requestID)

	started := time.Now()
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", r.Method, r.Path, err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", r.Path, err)
	}

	c.logger.Debug("api call",
		zap.String("method", r.Method),
		zap.String("path", r.Path),
		zap.Int("status", httpResp.StatusCode),
		zap.Bool("retried", r.Retried),
		zap.String("request_id", requestID),
		zap.Duration("took", time.Since(started)),
	)

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, newAPIError(httpResp.StatusCode, r.Path, data)
	}
	return &Response{Status: httpResp.StatusCode, Header: httpResp.Header, Body: data}, nil
}
