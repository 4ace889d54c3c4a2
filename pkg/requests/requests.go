// Package requests loads named request definitions (YAML/JSON) that the runner replays.
package requests

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Adda-Baaj/apiclient/internal/fileconfig"
)

const defaultMethod = http.MethodGet

// Definition is a single named call declared in the catalog file.
type Definition struct {
	ID      string            `json:"id" yaml:"id"`
	Method  string            `json:"method" yaml:"method"`
	Path    string            `json:"path" yaml:"path"`
	Body    any               `json:"body" yaml:"body"`
	Headers map[string]string `json:"headers" yaml:"headers"`
	Query   map[string]string `json:"query" yaml:"query"`
}

type catalogFile struct {
	Requests []Definition `json:"requests" yaml:"requests"`
}

// Registry holds the loaded definitions in file order. It is read-only after NewRegistry.
type Registry struct {
	defs []Definition
	idx  map[string]Definition
}

// LoadRegistry loads request definitions from a YAML/JSON file.
func LoadRegistry(path string) (*Registry, error) {
	cf, err := fileconfig.Load[catalogFile](path, "requests")
	if err != nil {
		return nil, err
	}
	return NewRegistry(cf.Requests)
}

// NewRegistry validates defs and builds a registry from them.
func NewRegistry(defs []Definition) (*Registry, error) {
	if len(defs) == 0 {
		return nil, errors.New("requests file contains no requests entries")
	}

	reg := &Registry{
		defs: make([]Definition, len(defs)),
		idx:  make(map[string]Definition, len(defs)),
	}
	for i := range defs {
		d := sanitizeDefinition(defs[i])
		if err := validateDefinition(d); err != nil {
			return nil, fmt.Errorf("requests[%d]: %w", i, err)
		}
		if _, exists := reg.idx[d.ID]; exists {
			return nil, fmt.Errorf("duplicate request id %q", d.ID)
		}
		reg.defs[i] = d
		reg.idx[d.ID] = d
	}
	return reg, nil
}

func sanitizeDefinition(d Definition) Definition {
	d.ID = strings.TrimSpace(d.ID)
	d.Path = strings.TrimSpace(d.Path)
	d.Method = strings.ToUpper(strings.TrimSpace(d.Method))
	if d.Method == "" {
		d.Method = defaultMethod
	}
	d.Headers = trimMap(d.Headers)
	d.Query = trimMap(d.Query)
	return d
}

// trimMap trims keys and values and drops entries with empty keys.
func trimMap(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		key := strings.TrimSpace(k)
		if key == "" {
			continue
		}
		out[key] = strings.TrimSpace(v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func validateDefinition(d Definition) error {
	if d.ID == "" {
		return errors.New("id is required")
	}
	if d.Path == "" {
		return fmt.Errorf("path is required for request %q", d.ID)
	}
	return nil
}

// All returns every definition in file order.
func (r *Registry) All() []Definition {
	if r == nil {
		return nil
	}

	out := make([]Definition, len(r.defs))
	copy(out, r.defs)
	return out
}

// ByID returns the definition for id, if loaded.
func (r *Registry) ByID(id string) (Definition, bool) {
	if r == nil {
		return Definition{}, false
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Definition{}, false
	}
	d, ok := r.idx[id]
	return d, ok
}

// Select returns the definitions for ids in the order given, or all of them when ids is empty.
func (r *Registry) Select(ids ...string) ([]Definition, error) {
	if r == nil {
		return nil, errors.New("requests registry is not loaded")
	}
	if len(ids) == 0 {
		return r.All(), nil
	}

	out := make([]Definition, 0, len(ids))
	for _, id := range ids {
		d, ok := r.ByID(id)
		if !ok {
			return nil, fmt.Errorf("unknown request id %q", id)
		}
		out = append(out, d)
	}
	return out, nil
}

// Len returns the number of definitions.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.defs)
}
