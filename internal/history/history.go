// Package history keeps a bounded, expiring log of call outcomes. Records hold
// metadata only; response payloads are never stored.
package history

import (
	"fmt"
	"strings"
	"time"
)

// Record describes one completed call.
type Record struct {
	RequestID  string    `json:"request_id"`
	Method     string    `json:"method"`
	Target     string    `json:"target"`
	Outcome    string    `json:"outcome"`
	StatusCode int       `json:"status_code,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

// Store persists call records.
type Store interface {
	Close() error
	Record(rec Record) error
	// Recent returns up to limit unexpired records, newest first.
	Recent(limit int) ([]Record, error)
}

// Options controls retention characteristics for concrete store implementations.
type Options struct {
	RecordTTL       time.Duration
	CleanupInterval time.Duration
}

const (
	defaultRecordTTL       = 7 * 24 * time.Hour
	defaultCleanupInterval = 12 * time.Hour
)

// NewStore creates the configured history backend.
func NewStore(typ, path string, opts Options) (Store, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))
	opts = normalizeOptions(opts)

	switch typ {
	case "", "none", "disabled":
		return noopStore{}, nil
	case "bbolt":
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("bbolt history requires a path")
		}
		return openBolt(path, opts)
	default:
		return nil, fmt.Errorf("unsupported history type %q", typ)
	}
}

func normalizeOptions(opts Options) Options {
	if opts.RecordTTL <= 0 {
		opts.RecordTTL = defaultRecordTTL
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = defaultCleanupInterval
	}
	return opts
}

type noopStore struct{}

func (noopStore) Close() error                  { return nil }
func (noopStore) Record(Record) error           { return nil }
func (noopStore) Recent(int) ([]Record, error) { return nil, nil }
