package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Adda-Baaj/apiclient/internal/config"
	"github.com/Adda-Baaj/apiclient/internal/history"
	"github.com/Adda-Baaj/apiclient/internal/logger"
	"github.com/Adda-Baaj/apiclient/pkg/httpclient"
	"github.com/Adda-Baaj/apiclient/pkg/publishers"
	"github.com/Adda-Baaj/apiclient/pkg/requests"
	"golang.org/x/sync/errgroup"
)

const (
	// OutcomeOK marks a call that returned an envelope.
	OutcomeOK = "ok"
	// AdhocRequestID labels calls that do not come from the catalog.
	AdhocRequestID = "adhoc"
)

// Runner wires the HTTP client facade to the request catalog, call history and
// outcome publishers.
type Runner struct {
	client       *httpclient.Client
	catalog      *requests.Registry
	requestsFile string
	store        history.Store
	fanout       *publishers.Fanout
	concurrency  int
	log          logger.Logger
}

// NewRunner builds a runner from config. clientOpts are applied after the config-derived options.
func NewRunner(ctx context.Context, cfg *config.Config, log logger.Logger, clientOpts ...httpclient.Option) (*Runner, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	opts := append([]httpclient.Option{
		httpclient.WithBaseURL(cfg.APIBaseURL),
		httpclient.WithTimeout(cfg.APITimeout),
		httpclient.WithLogger(log),
	}, clientOpts...)
	client, err := httpclient.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("init http client: %w", err)
	}
	log.InfoObj("http client initialized", "client_config", map[string]any{
		"base_url":   client.BaseURL(),
		"timeout_ms": client.Timeout().Milliseconds(),
	})

	catalog, err := loadCatalog(cfg.RequestsFile, log)
	if err != nil {
		return nil, err
	}

	fanout, err := buildFanout(ctx, cfg.PublishersFile, log)
	if err != nil {
		return nil, err
	}

	store, err := history.NewStore(cfg.HistoryType, cfg.HistoryPath, history.Options{
		RecordTTL:       cfg.HistoryTTL,
		CleanupInterval: cfg.HistoryCleanupInterval,
	})
	if err != nil {
		_ = fanout.Close()
		return nil, fmt.Errorf("init history: %w", err)
	}
	log.InfoObj("history initialized", "history_config", map[string]any{
		"type":                     cfg.HistoryType,
		"path":                     cfg.HistoryPath,
		"record_ttl_seconds":       int(cfg.HistoryTTL.Seconds()),
		"cleanup_interval_seconds": int(cfg.HistoryCleanupInterval.Seconds()),
	})

	concurrency := cfg.RunConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	return &Runner{
		client:       client,
		catalog:      catalog,
		requestsFile: cfg.RequestsFile,
		store:        store,
		fanout:       fanout,
		concurrency:  concurrency,
		log:          log,
	}, nil
}

// loadCatalog loads the requests file. A missing file leaves the runner usable for ad-hoc calls.
func loadCatalog(path string, log logger.Logger) (*requests.Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		log.WarnObj("requests file not found; catalog disabled", "requests_file", path)
		return nil, nil
	}

	catalog, err := requests.LoadRegistry(path)
	if err != nil {
		return nil, fmt.Errorf("load requests catalog: %w", err)
	}
	log.InfoObj("requests catalog loaded", "requests_meta", map[string]any{
		"count": catalog.Len(),
		"file":  path,
	})
	return catalog, nil
}

func buildFanout(ctx context.Context, path string, log logger.Logger) (*publishers.Fanout, error) {
	if strings.TrimSpace(path) == "" {
		return publishers.NewFanout(nil), nil
	}

	publisherReg, err := publishers.LoadRegistry(path)
	if err != nil {
		return nil, fmt.Errorf("load publishers registry: %w", err)
	}
	enabled := publisherReg.Enabled()

	pubClients, err := publishers.BuildAll(ctx, publishers.DefaultBuilders(), enabled, log)
	if err != nil {
		return nil, fmt.Errorf("build publishers: %w", err)
	}

	summaries := make([]map[string]string, 0, len(enabled))
	for _, pubCfg := range enabled {
		summaries = append(summaries, map[string]string{
			"id":   pubCfg.ID,
			"type": pubCfg.Type,
		})
	}
	log.InfoObj("publishers registry loaded", "publishers_meta", map[string]any{
		"count":      len(summaries),
		"publishers": summaries,
	})
	return publishers.NewFanout(pubClients), nil
}

// Client exposes the underlying facade.
func (r *Runner) Client() *httpclient.Client { return r.client }

// Catalog returns the loaded request catalog, or nil when none is configured.
func (r *Runner) Catalog() *requests.Registry { return r.catalog }

// Send performs one ad-hoc call and records its outcome.
func (r *Runner) Send(ctx context.Context, method, path string, body any, opts ...httpclient.RequestOption) Result {
	if r == nil || r.client == nil {
		return Result{RequestID: AdhocRequestID, Method: method, Err: errors.New("runner is not initialized")}
	}
	res := r.call(ctx, requests.Definition{
		ID:     AdhocRequestID,
		Method: method,
		Path:   path,
		Body:   body,
	}, opts...)
	r.record(ctx, res)
	return res
}

// RunOnce executes the selected catalog requests (all when ids is empty)
// concurrently and returns their results in selection order. The error joins
// every failed call.
func (r *Runner) RunOnce(ctx context.Context, ids ...string) ([]Result, error) {
	defs, err := r.selectRequests(ids)
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(defs))
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, def := range defs {
		g.Go(func() error {
			results[i] = r.call(ctx, def)
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, res := range results {
		r.record(ctx, res)
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("request %s: %w", res.RequestID, res.Err))
		}
	}
	return results, errors.Join(errs...)
}

// Watch runs the selected requests immediately and then on every tick until ctx is done.
func (r *Runner) Watch(ctx context.Context, interval time.Duration, ids []string, onResults func([]Result)) error {
	if interval <= 0 {
		return fmt.Errorf("watch interval must be positive, got %s", interval)
	}
	defs, err := r.selectRequests(ids)
	if err != nil {
		return err
	}

	r.log.InfoObj("watch loop starting", "watch_state", map[string]any{
		"requests_count": len(defs),
		"interval":       interval.String(),
	})

	runOnce := func() {
		start := time.Now()
		results, err := r.RunOnce(ctx, ids...)
		if onResults != nil && len(results) > 0 {
			onResults(results)
		}
		if err != nil {
			r.log.ErrorObj("scheduled run failed", "error", err.Error())
			return
		}
		r.log.InfoObj("scheduled run completed", "run_meta", map[string]any{
			"requests_count": len(results),
			"elapsed_ms":     time.Since(start).Milliseconds(),
		})
	}

	runOnce()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.InfoObj("watch loop exiting", "reason", ctx.Err().Error())
			return nil
		case <-ticker.C:
			runOnce()
		}
	}
}

// History returns up to limit recent call records, newest first.
func (r *Runner) History(limit int) ([]history.Record, error) {
	if r == nil || r.store == nil {
		return nil, errors.New("runner is not initialized")
	}
	return r.store.Recent(limit)
}

// Close releases idle connections, the history store and publisher clients.
func (r *Runner) Close() error {
	if r == nil {
		return nil
	}
	r.client.CloseIdleConnections()

	var errs []error
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close history: %w", err))
		}
	}
	if err := r.fanout.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (r *Runner) selectRequests(ids []string) ([]requests.Definition, error) {
	if r == nil || r.client == nil {
		return nil, errors.New("runner is not initialized")
	}
	if r.catalog == nil {
		return nil, fmt.Errorf("no requests catalog loaded (requests_file %q)", r.requestsFile)
	}
	return r.catalog.Select(ids...)
}

func (r *Runner) call(ctx context.Context, def requests.Definition, extra ...httpclient.RequestOption) Result {
	opts := make([]httpclient.RequestOption, 0, len(extra)+2)
	if len(def.Headers) > 0 {
		opts = append(opts, httpclient.WithRequestHeaders(def.Headers))
	}
	if len(def.Query) > 0 {
		opts = append(opts, httpclient.WithQueryParams(def.Query))
	}
	opts = append(opts, extra...)

	start := time.Now()
	env, err := r.client.Send(ctx, def.Method, def.Path, def.Body, opts...)
	return Result{
		RequestID: def.ID,
		Method:    strings.ToUpper(strings.TrimSpace(def.Method)),
		Target:    r.client.Target(def.Path),
		Envelope:  env,
		Err:       err,
		Duration:  time.Since(start),
		At:        start.UTC(),
	}
}

// record stores the outcome and fans it out. Failures here never change the call result.
func (r *Runner) record(ctx context.Context, res Result) {
	rec := res.historyRecord()
	if err := r.store.Record(rec); err != nil {
		r.log.WarnObj("history record failed", "history_error", map[string]any{
			"request_id": res.RequestID,
			"error":      err.Error(),
		})
	}

	if r.fanout.Size() == 0 {
		return
	}
	if _, err := r.fanout.Publish(ctx, res.event()); err != nil {
		r.log.WarnObj("call event publish failed", "publish_error", map[string]any{
			"request_id": res.RequestID,
			"error":      err.Error(),
		})
	}
}
