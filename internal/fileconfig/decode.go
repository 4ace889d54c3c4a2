// Package fileconfig decodes the YAML or JSON definition files (request
// catalog, publishers) into typed structs.
package fileconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

type format struct {
	name      string
	exts      []string
	unmarshal func([]byte, any) error
}

var formats = []format{
	{name: "yaml", exts: []string{".yaml", ".yml"}, unmarshal: yaml.Unmarshal},
	{name: "json", exts: []string{".json"}, unmarshal: json.Unmarshal},
}

// Load reads path and decodes it into a T. kind names the file in errors
// ("requests", "publishers").
func Load[T any](path, kind string) (T, error) {
	var zero T
	path = strings.TrimSpace(path)
	if path == "" {
		return zero, fmt.Errorf("%s file path is empty", kind)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return zero, fmt.Errorf("read %s file: %w", kind, err)
	}
	return Decode[T](raw, filepath.Ext(path), kind)
}

// Decode picks the format from ext. An unknown or empty ext tries every
// format in turn and keeps the first that decodes.
func Decode[T any](data []byte, ext, kind string) (T, error) {
	var errs []error
	for _, f := range formatsFor(ext) {
		var out T
		if err := f.unmarshal(data, &out); err != nil {
			errs = append(errs, fmt.Errorf("decode %s %s: %w", f.name, kind, err))
			continue
		}
		return out, nil
	}

	var zero T
	return zero, fmt.Errorf("%s file format not recognized (expected YAML or JSON): %w", kind, errors.Join(errs...))
}

func formatsFor(ext string) []format {
	ext = strings.ToLower(strings.TrimSpace(ext))
	for _, f := range formats {
		if slices.Contains(f.exts, ext) {
			return []format{f}
		}
	}
	return formats
}
