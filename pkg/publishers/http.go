package publishers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Adda-Baaj/apiclient/pkg/httpclient"
	"github.com/go-resty/resty/v2"
)

// httpPublisher posts each event as JSON to a webhook. The call's request id
// and outcome are mirrored into headers so receivers can route without parsing.
type httpPublisher struct {
	id      string
	method  string
	url     string
	headers map[string]string
	client  *resty.Client
	typ     string
	log     Logger
}

func newHTTPPublisher(_ context.Context, cfg PublisherConfig, log Logger) (Publisher, error) {
	if cfg.HTTP == nil {
		return nil, fmt.Errorf("publisher %q missing http configuration", cfg.ID)
	}
	method := cfg.HTTP.Method
	if method == "" {
		method = httpDefaultMethod
	}

	return &httpPublisher{
		id:      cfg.ID,
		typ:     TypeHTTP,
		method:  method,
		url:     cfg.HTTP.URL,
		headers: cfg.HTTP.Headers,
		client:  httpclient.NewRestyHTTPClient(time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second),
		log:     ensureLogger(log),
	}, nil
}

func (h *httpPublisher) ID() string   { return h.id }
func (h *httpPublisher) Type() string { return h.typ }

func (h *httpPublisher) Publish(ctx context.Context, evt Event) error {
	body, err := evt.body()
	if err != nil {
		return err
	}

	resp, err := h.client.R().
		SetContext(ctx).
		SetHeaders(h.headers).
		SetHeader("Content-Type", httpclient.ContentTypeJSON).
		SetHeader("X-Request-Id", evt.RequestID).
		SetHeader("X-Call-Outcome", evt.Outcome).
		SetBody(body).
		Execute(h.method, h.url)
	if err == nil && resp.IsError() {
		err = fmt.Errorf("status %d: %s", resp.StatusCode(), snippet(resp.Body()))
	}
	if err != nil {
		logDelivery(h.log, TypeHTTP, h.id, err, map[string]any{"url": h.url})
		return fmt.Errorf("http publish: %w", err)
	}

	logDelivery(h.log, TypeHTTP, h.id, nil, map[string]any{"status": resp.StatusCode()})
	return nil
}

func snippet(body []byte) string {
	const limit = 512
	if len(body) > limit {
		body = body[:limit]
	}
	return strings.TrimSpace(string(body))
}
