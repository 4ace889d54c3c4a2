package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adda-Baaj/apiclient/internal/logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedClient(t *testing.T, opts ...Option) (*Client, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	all := append([]Option{WithLogger(logger.New(zap.New(core)))}, opts...)
	c, err := New(all...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, logs
}

func TestNewDefaults(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.BaseURL() != DefaultBaseURL {
		t.Fatalf("BaseURL = %s", c.BaseURL())
	}
	if c.Timeout() != 10*time.Second {
		t.Fatalf("Timeout = %s", c.Timeout())
	}
}

func TestNewRejectsInvalidSettings(t *testing.T) {
	if _, err := New(WithBaseURL("ftp://example.com")); err == nil {
		t.Fatalf("expected error for non-http base url")
	}
	if _, err := New(WithBaseURL("")); err == nil {
		t.Fatalf("expected error for empty base url")
	}
	if _, err := New(WithTimeout(0)); err == nil {
		t.Fatalf("expected error for zero timeout")
	}
}

func TestTargetResolution(t *testing.T) {
	c, err := New(WithBaseURL("http://api.local:8000/v1/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cases := map[string]string{
		"/items":                 "http://api.local:8000/v1/items",
		"items?page=2":           "http://api.local:8000/v1/items?page=2",
		"":                       "http://api.local:8000/v1",
		"https://other.host/x/y": "https://other.host/x/y",
	}
	for path, want := range cases {
		if got := c.Target(path); got != want {
			t.Fatalf("Target(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestSendReturnsEnvelope(t *testing.T) {
	const respBody = `{"id":7,"name":"widget"}`
	var gotBody []byte
	var gotContentType, gotMethod string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("X-Trace", "abc")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(respBody))
	}))
	defer srv.Close()

	c, logs := newObservedClient(t, WithBaseURL(srv.URL))

	env, err := c.Send(context.Background(), "post", "/items", map[string]string{"name": "widget"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if env.StatusCode != http.StatusCreated {
		t.Fatalf("StatusCode = %d", env.StatusCode)
	}
	if !bytes.Equal(env.Payload, []byte(respBody)) {
		t.Fatalf("Payload = %s", env.Payload)
	}
	if env.Headers.Get("X-Trace") != "abc" {
		t.Fatalf("missing response header, got %v", env.Headers)
	}
	if gotMethod != http.MethodPost {
		t.Fatalf("server saw method %s", gotMethod)
	}
	if gotContentType != ContentTypeJSON {
		t.Fatalf("server saw content type %q", gotContentType)
	}
	if string(gotBody) != `{"name":"widget"}` {
		t.Fatalf("server saw body %s", gotBody)
	}

	var decoded struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}
	if err := env.Decode(&decoded); err != nil || decoded.ID != 7 {
		t.Fatalf("Decode = %+v, %v", decoded, err)
	}

	if logs.Len() != 2 {
		t.Fatalf("expected 2 log lines, got %d", logs.Len())
	}
	pre := logs.FilterMessage("sending request").All()
	if len(pre) != 1 {
		t.Fatalf("expected 1 pre-transmission line, got %d", len(pre))
	}
	fields, ok := pre[0].ContextMap()["request"].(map[string]any)
	if !ok {
		t.Fatalf("request field missing: %#v", pre[0].ContextMap())
	}
	if fields["method"] != "POST" || fields["url"] != srv.URL+"/items" {
		t.Fatalf("unexpected request fields: %#v", fields)
	}
	if logs.FilterMessage("response received").Len() != 1 {
		t.Fatalf("expected 1 response line")
	}
}

func TestSendServerError(t *testing.T) {
	const body = `{"error":"not found"}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	c, logs := newObservedClient(t, WithBaseURL(srv.URL))

	env, err := c.Get(context.Background(), "/missing")
	if env != nil {
		t.Fatalf("expected nil envelope, got %+v", env)
	}

	var serr *ServerError
	if !errors.As(err, &serr) {
		t.Fatalf("expected ServerError, got %T %v", err, err)
	}
	if serr.StatusCode != http.StatusNotFound {
		t.Fatalf("StatusCode = %d", serr.StatusCode)
	}
	if string(serr.Payload) != body {
		t.Fatalf("Payload = %s", serr.Payload)
	}
	if !errors.Is(err, ErrServer) || errors.Is(err, ErrNetwork) {
		t.Fatalf("sentinel mismatch for %v", err)
	}
	if kind, ok := KindOf(err); !ok || kind != KindServer {
		t.Fatalf("KindOf = %q, %v", kind, ok)
	}

	if logs.Len() != 2 {
		t.Fatalf("expected 2 log lines, got %d", logs.Len())
	}
	failures := logs.FilterMessage("server responded with error").All()
	if len(failures) != 1 {
		t.Fatalf("expected 1 server error line, got %d", len(failures))
	}
	fields := failures[0].ContextMap()["response_error"].(map[string]any)
	if fields["status"] != http.StatusNotFound {
		t.Fatalf("logged status = %v", fields["status"])
	}
}

func TestSendServerErrorSummarizesHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html><head><title> 502  Bad Gateway </title></head><body></body></html>"))
	}))
	defer srv.Close()

	c, logs := newObservedClient(t, WithBaseURL(srv.URL))
	if _, err := c.Get(context.Background(), "/"); !errors.Is(err, ErrServer) {
		t.Fatalf("expected server error, got %v", err)
	}

	entry := logs.FilterMessage("server responded with error").All()[0]
	fields := entry.ContextMap()["response_error"].(map[string]any)
	if fields["summary"] != "502 Bad Gateway" {
		t.Fatalf("summary = %v", fields["summary"])
	}
}

func TestSendNetworkErrorWhenServerUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	base := srv.URL
	srv.Close()

	c, logs := newObservedClient(t, WithBaseURL(base), WithTimeout(2*time.Second))

	var messages []string
	for _, path := range []string{"/alpha", "/beta/gamma"} {
		_, err := c.Get(context.Background(), path)
		var nerr *NetworkError
		if !errors.As(err, &nerr) {
			t.Fatalf("expected NetworkError for %s, got %T %v", path, err, err)
		}
		if nerr.Timeout {
			t.Fatalf("refused connection reported as timeout")
		}
		if !errors.Is(err, ErrNetwork) {
			t.Fatalf("expected ErrNetwork sentinel")
		}
		messages = append(messages, nerr.Message())
	}
	if messages[0] != MsgCannotReachServer || messages[0] != messages[1] {
		t.Fatalf("expected fixed message, got %v", messages)
	}
	if logs.FilterMessage(MsgCannotReachServer).Len() != 2 {
		t.Fatalf("expected 2 network failure lines, got %d", logs.FilterMessage(MsgCannotReachServer).Len())
	}
	if logs.Len() != 4 {
		t.Fatalf("expected 4 log lines, got %d", logs.Len())
	}
}

func TestSendNetworkErrorOnTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c, logs := newObservedClient(t, WithBaseURL(srv.URL), WithTimeout(50*time.Millisecond))

	start := time.Now()
	_, err := c.Get(context.Background(), "/slow")
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("call was not aborted by timeout, took %s", elapsed)
	}

	var nerr *NetworkError
	if !errors.As(err, &nerr) {
		t.Fatalf("expected NetworkError, got %T %v", err, err)
	}
	if !nerr.Timeout {
		t.Fatalf("expected timeout flag on %v", err)
	}
	if logs.FilterMessage(MsgCannotReachServer).Len() != 1 {
		t.Fatalf("expected 1 network failure line")
	}
}

func TestSendConfigurationErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	failingHook := func(context.Context, string, string) (map[string]string, error) {
		return nil, errors.New("token store unavailable")
	}

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		opts   []RequestOption
	}{
		{name: "invalid method", method: "BAD METHOD", path: "/x"},
		{name: "empty method", method: "", path: "/x"},
		{name: "unencodable body", method: http.MethodPost, path: "/x", body: make(chan int)},
		{name: "unsupported scheme", method: http.MethodGet, path: "ftp://files.local/x"},
		{name: "failing header hook", method: http.MethodGet, path: "/x", opts: []RequestOption{WithRequestHeaderHook(failingHook)}},
		{name: "header value with newline", method: http.MethodGet, path: "/x", opts: []RequestOption{WithRequestHeader("X-Bad", "a\nb")}},
		{name: "header name with space", method: http.MethodGet, path: "/x", opts: []RequestOption{WithRequestHeader("Bad Key", "v")}},
		{name: "header from hook with control char", method: http.MethodGet, path: "/x", opts: []RequestOption{WithRequestHeaderHook(
			func(context.Context, string, string) (map[string]string, error) {
				return map[string]string{"Authorization": "Bearer \x00"}, nil
			})}},
		{name: "body on HEAD", method: http.MethodHead, path: "/x", body: map[string]int{"a": 1}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, logs := newObservedClient(t, WithBaseURL(srv.URL))
			_, err := c.Send(context.Background(), tc.method, tc.path, tc.body, tc.opts...)

			var cerr *ConfigurationError
			if !errors.As(err, &cerr) {
				t.Fatalf("expected ConfigurationError, got %T %v", err, err)
			}
			if !errors.Is(err, ErrConfiguration) {
				t.Fatalf("expected ErrConfiguration sentinel")
			}
			if logs.FilterMessage("sending request").Len() != 1 {
				t.Fatalf("expected 1 pre-transmission line")
			}
			if logs.FilterMessage("request configuration error").Len() != 1 {
				t.Fatalf("expected 1 configuration error line")
			}
			if logs.FilterMessage(MsgCannotReachServer).Len() != 0 {
				t.Fatalf("configuration failure must not be logged as unreachable")
			}
		})
	}

	if hits.Load() != 0 {
		t.Fatalf("server should not have been reached, got %d hits", hits.Load())
	}
}

func TestSendHeaderHooksAndOverrides(t *testing.T) {
	type seen struct {
		auth  string
		trace string
		page  string
	}
	var mu sync.Mutex
	var calls []seen

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, seen{
			auth:  r.Header.Get("Authorization"),
			trace: r.Header.Get("X-Trace-Id"),
			page:  r.URL.Query().Get("page"),
		})
		mu.Unlock()
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	hook := func(_ context.Context, method, target string) (map[string]string, error) {
		if method != http.MethodGet || target != srv.URL+"/me" {
			return nil, fmt.Errorf("unexpected hook args %s %s", method, target)
		}
		return map[string]string{"authorization": "Bearer t1"}, nil
	}
	c, _ := newObservedClient(t, WithBaseURL(srv.URL), WithHeaderHook(hook), WithHeader("X-Trace-Id", "default"))

	if _, err := c.Get(context.Background(), "/me", WithQueryParam("page", "2")); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, err := c.Get(context.Background(), "/me",
		WithRequestHeaders(map[string]string{"Authorization": "Bearer override", "X-Trace-Id": "call"}),
	); err != nil {
		t.Fatalf("Get with overrides: %v", err)
	}

	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	if calls[0] != (seen{auth: "Bearer t1", trace: "default", page: "2"}) {
		t.Fatalf("first call = %+v", calls[0])
	}
	if calls[1] != (seen{auth: "Bearer override", trace: "call"}) {
		t.Fatalf("second call = %+v", calls[1])
	}
}

func TestSendConcurrentCallsAreIndependent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/slow" {
			time.Sleep(20 * time.Millisecond)
		}
		w.Header().Set("X-Path", r.URL.Path)
		if r.URL.Path == "/broken" {
			w.WriteHeader(http.StatusInternalServerError)
		}
		_, _ = fmt.Fprintf(w, `{"path":%q}`, r.URL.Path)
	}))
	defer srv.Close()

	c, _ := newObservedClient(t, WithBaseURL(srv.URL))

	paths := []string{"/slow", "/fast", "/broken"}
	type outcome struct {
		path string
		env  *Envelope
		err  error
	}
	results := make([]outcome, 30)

	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path := paths[i%len(paths)]
			env, err := c.Get(context.Background(), path)
			results[i] = outcome{path: path, env: env, err: err}
		}(i)
	}
	wg.Wait()

	for _, res := range results {
		want := fmt.Sprintf(`{"path":%q}`, res.path)
		if res.path == "/broken" {
			var serr *ServerError
			if !errors.As(res.err, &serr) || string(serr.Payload) != want {
				t.Fatalf("expected server error with %s, got %v", want, res.err)
			}
			continue
		}
		if res.err != nil {
			t.Fatalf("%s: %v", res.path, res.err)
		}
		if string(res.env.Payload) != want || res.env.Headers.Get("X-Path") != res.path {
			t.Fatalf("%s got payload %s header %s", res.path, res.env.Payload, res.env.Headers.Get("X-Path"))
		}
	}
}

func TestCloseIdleConnectionsKeepsClientUsable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, _ := newObservedClient(t, WithBaseURL(srv.URL))
	if _, err := c.Get(context.Background(), "/a"); err != nil {
		t.Fatalf("first call: %v", err)
	}
	c.CloseIdleConnections()
	if _, err := c.Get(context.Background(), "/b"); err != nil {
		t.Fatalf("call after CloseIdleConnections: %v", err)
	}

	var nilClient *Client
	nilClient.CloseIdleConnections()
}

func TestSendGetCarriesBody(t *testing.T) {
	got := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got <- string(b)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, _ := newObservedClient(t, WithBaseURL(srv.URL))
	if _, err := c.Send(context.Background(), http.MethodGet, "/search", map[string]int{"a": 1}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if body := <-got; body != `{"a":1}` {
		t.Fatalf("server received body %q", body)
	}
}

func TestInvalidRequestErrorsAreNotNetworkFailures(t *testing.T) {
	err := &url.Error{Op: "Get", URL: "http://127.0.0.1/x", Err: errors.New(`net/http: invalid header field name "Bad Key"`)}
	if isNetworkFailure(err) {
		t.Fatalf("net/http validation error classified as network failure")
	}
	refused := &url.Error{Op: "Get", URL: "http://127.0.0.1/x", Err: errors.New("dial tcp: connection refused")}
	if !isNetworkFailure(refused) {
		t.Fatalf("connection failure should be a network failure")
	}
}
