package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/net/http/httpguts"
)

// Client is a preconfigured JSON HTTP client. Its configuration is fixed at
// construction and it is safe for concurrent use; every call carries its own
// timeout and shares nothing else with other calls.
type Client struct {
	client  *resty.Client
	base    *url.URL
	timeout time.Duration
	headers map[string]string
	hook    HeaderHook
	log     Logger
}

// New builds a Client from the defaults overridden by opts.
func New(opts ...Option) (*Client, error) {
	s := defaultSettings()
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}

	base, err := parseBaseURL(s.baseURL)
	if err != nil {
		return nil, err
	}
	if s.timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive, got %s", s.timeout)
	}

	rc := newRestyBaseClient(s.timeout)
	rc.SetAllowGetMethodPayload(true)
	if s.transport != nil {
		rc.SetTransport(s.transport)
	}
	if s.restyLogger != nil {
		rc.SetLogger(s.restyLogger)
	}

	headers := make(map[string]string, len(s.headers))
	for k, v := range s.headers {
		headers[k] = v
	}

	return &Client{
		client:  rc,
		base:    base,
		timeout: s.timeout,
		headers: headers,
		hook:    s.hook,
		log:     ensureLogger(s.log),
	}, nil
}

// NewRestyHTTPClient exposes a configured resty.Client for callers needing custom verbs.
func NewRestyHTTPClient(timeout time.Duration) *resty.Client {
	return newRestyBaseClient(timeout)
}

// newRestyBaseClient creates a new resty.Client with the specified timeout.
func newRestyBaseClient(timeout time.Duration) *resty.Client {
	c := resty.New()
	c.SetTimeout(timeout)
	return c
}

func parseBaseURL(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, errors.New("base url is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must use http or https", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("base url %q has no host", raw)
	}
	return u, nil
}

// BaseURL returns the configured base address.
func (c *Client) BaseURL() string { return c.base.String() }

// Timeout returns the per-call timeout.
func (c *Client) Timeout() time.Duration { return c.timeout }

// CloseIdleConnections drops pooled keep-alive connections. The client stays usable.
func (c *Client) CloseIdleConnections() {
	if c == nil || c.client == nil {
		return
	}
	c.client.GetClient().CloseIdleConnections()
}

// Target resolves path against the base address the way Send does.
func (c *Client) Target(path string) string {
	target, _ := c.resolve(path)
	return target
}

// resolve joins path onto the base address. Absolute http(s) URLs are used as given.
func (c *Client) resolve(path string) (string, error) {
	path = strings.TrimSpace(path)
	if u, err := url.Parse(path); err == nil && u.IsAbs() {
		if u.Scheme != "http" && u.Scheme != "https" {
			return path, fmt.Errorf("unsupported scheme %q", u.Scheme)
		}
		return path, nil
	}

	target := strings.TrimRight(c.base.String(), "/")
	if path != "" {
		target += "/" + strings.TrimLeft(path, "/")
	}
	if _, err := url.Parse(target); err != nil {
		return target, fmt.Errorf("parse target: %w", err)
	}
	return target, nil
}

// Send performs one call and returns the response envelope for 2xx statuses.
// Failures are returned as *ServerError, *NetworkError or *ConfigurationError.
func (c *Client) Send(ctx context.Context, method, path string, body any, opts ...RequestOption) (*Envelope, error) {
	if c == nil || c.client == nil {
		return nil, &ConfigurationError{Method: method, Path: path, Err: errors.New("client is not initialized")}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	method = strings.ToUpper(strings.TrimSpace(method))
	target, err := c.resolve(path)

	c.log.InfoObj("sending request", "request", map[string]any{
		"method": method,
		"url":    target,
	})

	var req *resty.Request
	if err == nil {
		req, err = c.buildRequest(ctx, method, target, body, opts)
	}
	if err != nil {
		return nil, c.configurationFailure(method, path, err)
	}

	resp, err := req.Execute(method, target)
	if err != nil {
		return nil, c.transportFailure(method, path, target, err)
	}
	if !resp.IsSuccess() {
		return nil, c.serverFailure(method, target, resp)
	}

	env := &Envelope{
		Payload:    resp.Body(),
		StatusCode: resp.StatusCode(),
		Headers:    resp.Header().Clone(),
	}
	c.log.InfoObj("response received", "response", map[string]any{
		"method":     method,
		"url":        target,
		"status":     env.StatusCode,
		"elapsed_ms": resp.Time().Milliseconds(),
		"payload":    payloadField(env.Payload),
	})
	return env, nil
}

// Get sends a GET request.
func (c *Client) Get(ctx context.Context, path string, opts ...RequestOption) (*Envelope, error) {
	return c.Send(ctx, http.MethodGet, path, nil, opts...)
}

// Post sends a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any, opts ...RequestOption) (*Envelope, error) {
	return c.Send(ctx, http.MethodPost, path, body, opts...)
}

// Put sends a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body any, opts ...RequestOption) (*Envelope, error) {
	return c.Send(ctx, http.MethodPut, path, body, opts...)
}

// Patch sends a PATCH request with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body any, opts ...RequestOption) (*Envelope, error) {
	return c.Send(ctx, http.MethodPatch, path, body, opts...)
}

// Delete sends a DELETE request.
func (c *Client) Delete(ctx context.Context, path string, opts ...RequestOption) (*Envelope, error) {
	return c.Send(ctx, http.MethodDelete, path, nil, opts...)
}

func (c *Client) buildRequest(ctx context.Context, method, target string, body any, opts []RequestOption) (*resty.Request, error) {
	if !validMethod(method) {
		return nil, fmt.Errorf("invalid http method %q", method)
	}

	var rs requestSettings
	for _, opt := range opts {
		if opt != nil {
			opt(&rs)
		}
	}

	headers := make(map[string]string, len(c.headers)+len(rs.headers))
	for k, v := range c.headers {
		headers[k] = v
	}
	for _, hook := range []HeaderHook{c.hook, rs.hook} {
		if hook == nil {
			continue
		}
		extra, err := hook(ctx, method, target)
		if err != nil {
			return nil, fmt.Errorf("header hook: %w", err)
		}
		for k, v := range extra {
			headers[http.CanonicalHeaderKey(k)] = v
		}
	}
	for k, v := range rs.headers {
		headers[k] = v
	}
	if err := checkHeaders(headers); err != nil {
		return nil, err
	}

	req := c.client.R().
		SetContext(ctx).
		SetHeaders(headers)

	if len(rs.query) > 0 {
		req.SetQueryParamsFromValues(rs.query)
	}

	if body != nil {
		if !payloadAllowed(method) {
			return nil, fmt.Errorf("%s requests cannot carry a body", method)
		}
		payload, err := encodeBody(body)
		if err != nil {
			return nil, err
		}
		req.SetBody(payload)
	}
	return req, nil
}

// checkHeaders rejects what net/http would refuse at send time.
func checkHeaders(headers map[string]string) error {
	for k, v := range headers {
		if !httpguts.ValidHeaderFieldName(k) {
			return fmt.Errorf("invalid header name %q", k)
		}
		if !httpguts.ValidHeaderFieldValue(v) {
			return fmt.Errorf("invalid value for header %q", k)
		}
	}
	return nil
}

// payloadAllowed mirrors the methods resty drops a body for. GET bodies are
// enabled on the client.
func payloadAllowed(method string) bool {
	return method != http.MethodHead && method != http.MethodOptions
}

// encodeBody passes raw bytes and strings through and JSON-encodes anything else.
func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	case string:
		return []byte(b), nil
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		return raw, nil
	}
}

func (c *Client) configurationFailure(method, path string, err error) error {
	c.log.ErrorObj("request configuration error", "request_error", map[string]any{
		"method": method,
		"path":   path,
		"error":  err.Error(),
	})
	return &ConfigurationError{Method: method, Path: path, Err: err}
}

func (c *Client) transportFailure(method, path, target string, err error) error {
	if !isNetworkFailure(err) {
		return c.configurationFailure(method, path, err)
	}

	timeout := isTimeout(err)
	c.log.ErrorObj(MsgCannotReachServer, "request_error", map[string]any{
		"method":  method,
		"url":     target,
		"timeout": timeout,
		"error":   err.Error(),
	})
	return &NetworkError{Method: method, URL: target, Timeout: timeout, Err: err}
}

func (c *Client) serverFailure(method, target string, resp *resty.Response) error {
	body := resp.Body()
	fields := map[string]any{
		"method":  method,
		"url":     target,
		"status":  resp.StatusCode(),
		"payload": payloadField(body),
	}
	if summary := htmlSummary(resp.Header(), body); summary != "" {
		fields["summary"] = summary
	}
	c.log.ErrorObj("server responded with error", "response_error", fields)

	return &ServerError{
		Method:     method,
		URL:        target,
		StatusCode: resp.StatusCode(),
		Payload:    body,
		Headers:    resp.Header().Clone(),
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

// isNetworkFailure reports whether err happened after the request left the client.
func isNetworkFailure(err error) bool {
	if isTimeout(err) || errors.Is(err, context.Canceled) {
		return true
	}
	// net/http validates the request inside Do, so these arrive wrapped in a url.Error.
	if strings.Contains(err.Error(), "net/http: invalid") {
		return false
	}
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Op != "parse"
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}

func validMethod(method string) bool {
	if method == "" {
		return false
	}
	return strings.IndexFunc(method, func(r rune) bool {
		return r <= ' ' || r >= 0x7f || strings.ContainsRune(`()<>@,;:\"/[]?={}`, r)
	}) == -1
}
