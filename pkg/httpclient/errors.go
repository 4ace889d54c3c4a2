package httpclient

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a failed call.
type Kind string

const (
	// KindServer means a response arrived with a non-2xx status.
	KindServer Kind = "server"
	// KindNetwork means the request went out but no response came back.
	KindNetwork Kind = "network"
	// KindConfiguration means the request could not be built or sent.
	KindConfiguration Kind = "configuration"
)

// MsgCannotReachServer is the fixed message reported for every network failure.
const MsgCannotReachServer = "cannot reach server"

// Sentinels for errors.Is matching against a failure kind.
var (
	ErrServer        = errors.New("server error")
	ErrNetwork       = errors.New("network error")
	ErrConfiguration = errors.New("configuration error")
)

// ServerError reports a non-2xx response.
type ServerError struct {
	Method     string
	URL        string
	StatusCode int
	Payload    []byte
	Headers    http.Header
}

func (e *ServerError) Error() string {
	msg := fmt.Sprintf("%s %s: server responded %d", e.Method, e.URL, e.StatusCode)
	if snippet := bodySnippet(e.Payload); snippet != "" {
		msg += ": " + snippet
	}
	return msg
}

func (e *ServerError) Kind() Kind { return KindServer }

func (e *ServerError) Is(target error) bool { return target == ErrServer }

// NetworkError reports a request that never produced a response:
// refused connections, unreachable hosts, timeouts and cancellations.
type NetworkError struct {
	Method  string
	URL     string
	Timeout bool
	Err     error
}

// Message returns the human-readable description, identical for every target.
func (e *NetworkError) Message() string { return MsgCannotReachServer }

func (e *NetworkError) Error() string {
	msg := e.Message()
	if e.Timeout {
		msg += " (timeout)"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Method, e.URL, msg, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Method, e.URL, msg)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Kind() Kind { return KindNetwork }

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// ConfigurationError reports a request that could not be constructed.
type ConfigurationError struct {
	Method string
	Path   string
	Err    error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("request configuration error for %s %q: %v", e.Method, e.Path, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *ConfigurationError) Kind() Kind { return KindConfiguration }

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// KindOf reports the failure kind carried by err, if any.
func KindOf(err error) (Kind, bool) {
	var k interface{ Kind() Kind }
	if errors.As(err, &k) {
		return k.Kind(), true
	}
	return "", false
}

func bodySnippet(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if len(body) > 512 {
		body = body[:512]
	}
	return strings.TrimSpace(string(body))
}
