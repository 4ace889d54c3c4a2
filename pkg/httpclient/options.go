package httpclient

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	DefaultBaseURL  = "http://127.0.0.1:8000"
	DefaultTimeout  = 10 * time.Second
	ContentTypeJSON = "application/json"
)

// HeaderHook returns extra headers for an outbound call. It is the extension
// point for authentication; returning an error aborts the call before it is sent.
type HeaderHook func(ctx context.Context, method, target string) (map[string]string, error)

// Option configures a Client at construction.
type Option func(*settings)

type settings struct {
	baseURL     string
	timeout     time.Duration
	headers     map[string]string
	log         Logger
	hook        HeaderHook
	restyLogger resty.Logger
	transport   http.RoundTripper
}

func defaultSettings() settings {
	return settings{
		baseURL: DefaultBaseURL,
		timeout: DefaultTimeout,
		headers: map[string]string{
			"Content-Type": ContentTypeJSON,
			"Accept":       ContentTypeJSON,
		},
	}
}

// WithBaseURL sets the address prefixed to every relative path.
func WithBaseURL(base string) Option {
	return func(s *settings) { s.baseURL = strings.TrimSpace(base) }
}

// WithTimeout bounds each call, including reading the response body.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

// WithHeader adds a default header sent on every call.
func WithHeader(key, value string) Option {
	return func(s *settings) {
		key = strings.TrimSpace(key)
		if key == "" {
			return
		}
		s.headers[http.CanonicalHeaderKey(key)] = value
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(log Logger) Option {
	return func(s *settings) { s.log = log }
}

// WithHeaderHook installs a hook consulted before every call.
func WithHeaderHook(hook HeaderHook) Option {
	return func(s *settings) { s.hook = hook }
}

// WithRestyLogger routes resty's internal warnings to the given logger.
func WithRestyLogger(l resty.Logger) Option {
	return func(s *settings) { s.restyLogger = l }
}

// WithTransport replaces the underlying round tripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(s *settings) { s.transport = rt }
}

// RequestOption overrides settings for a single call.
type RequestOption func(*requestSettings)

type requestSettings struct {
	headers map[string]string
	query   url.Values
	hook    HeaderHook
}

// WithRequestHeader sets one header for this call, overriding defaults.
func WithRequestHeader(key, value string) RequestOption {
	return func(r *requestSettings) {
		key = strings.TrimSpace(key)
		if key == "" {
			return
		}
		if r.headers == nil {
			r.headers = make(map[string]string)
		}
		r.headers[http.CanonicalHeaderKey(key)] = value
	}
}

// WithRequestHeaders sets several headers for this call.
func WithRequestHeaders(headers map[string]string) RequestOption {
	return func(r *requestSettings) {
		for k, v := range headers {
			WithRequestHeader(k, v)(r)
		}
	}
}

// WithQueryParam appends a query parameter to this call.
func WithQueryParam(key, value string) RequestOption {
	return func(r *requestSettings) {
		if r.query == nil {
			r.query = url.Values{}
		}
		r.query.Add(key, value)
	}
}

// WithQueryParams appends several query parameters to this call.
func WithQueryParams(params map[string]string) RequestOption {
	return func(r *requestSettings) {
		for k, v := range params {
			WithQueryParam(k, v)(r)
		}
	}
}

// WithRequestHeaderHook runs hook for this call only, after the client-level hook.
func WithRequestHeaderHook(hook HeaderHook) RequestOption {
	return func(r *requestSettings) { r.hook = hook }
}
