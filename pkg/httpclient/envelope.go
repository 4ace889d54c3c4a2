package httpclient

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Envelope is the normalized result of a successful call. Payload is the
// response body exactly as the server sent it.
type Envelope struct {
	Payload    []byte
	StatusCode int
	Headers    http.Header
}

// Decode unmarshals the JSON payload into v.
func (e *Envelope) Decode(v any) error {
	if e == nil || len(e.Payload) == 0 {
		return errors.New("envelope has no payload")
	}
	return json.Unmarshal(e.Payload, v)
}

// payloadField renders a body for structured logs: valid JSON is embedded as-is,
// anything else is logged as text.
func payloadField(body []byte) any {
	if len(body) == 0 {
		return nil
	}
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	return bodySnippet(body)
}
