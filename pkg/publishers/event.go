package publishers

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Event describes the outcome of one call, as published downstream.
type Event struct {
	RequestID  string    `json:"request_id"`
	Method     string    `json:"method"`
	Target     string    `json:"target"`
	Outcome    string    `json:"outcome"`
	StatusCode int       `json:"status_code,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// defaultGroupID orders events without a request id on FIFO sinks.
const defaultGroupID = "apiclient"

// body is the JSON document every sink carries.
func (e Event) body() ([]byte, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return raw, nil
}

// attributes are the routing attributes attached to queue and topic messages.
func (e Event) attributes() map[string]string {
	attrs := map[string]string{
		"request_id": e.RequestID,
		"outcome":    e.Outcome,
	}
	if e.StatusCode > 0 {
		attrs["status_code"] = strconv.Itoa(e.StatusCode)
	}
	return attrs
}

// groupID keeps events for one catalog request in order on FIFO queues and topics.
func (e Event) groupID() string {
	if e.RequestID == "" {
		return defaultGroupID
	}
	return e.RequestID
}

// dedupID is unique per call.
func (e Event) dedupID() string {
	return e.groupID() + "-" + strconv.FormatInt(e.OccurredAt.UnixNano(), 10)
}
