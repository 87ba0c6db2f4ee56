// Package loader reads rule documents from disk for validation.
//
// JSON and YAML documents decode to untyped values (map[string]any, []any)
// exactly as the validator expects them; no typed unmarshaling happens here
// so shape errors surface as validation errors rather than decode errors.
package loader

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Extensions lists the file extensions treated as rule documents.
var Extensions = []string{".json", ".yaml", ".yml"}

// Document is the set of rules read from one file.
type Document struct {
	Path  string
	Rules []any
}

// IsRuleFile reports whether path has a rule document extension.
func IsRuleFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// LoadPath loads a single file, or every rule file directly inside a directory.
// Directory entries are returned sorted by name.
func LoadPath(path string) ([]Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if !info.IsDir() {
		doc, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		return []Document{doc}, nil
	}
	return LoadDir(path)
}

// LoadDir loads every rule file directly inside dir, sorted by name.
// Subdirectories are not descended.
func LoadDir(dir string) ([]Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !IsRuleFile(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	docs := make([]Document, 0, len(names))
	for _, name := range names {
		doc, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// LoadFile reads one JSON or YAML document.
// A top-level list yields its elements; any other value yields one rule.
// An empty or null document yields no rules.
func LoadFile(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var parsed any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		parsed, err = decodeJSON(data)
	case ".yaml", ".yml":
		parsed, err = decodeYAML(data)
	default:
		return Document{}, fmt.Errorf("unsupported rule file extension: %s", path)
	}
	if err != nil {
		return Document{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return Document{Path: path, Rules: split(parsed)}, nil
}

func decodeJSON(data []byte) (any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after JSON document")
	}
	return v, nil
}

func decodeYAML(data []byte) (any, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return normalizeYAML(v), nil
}

// normalizeYAML rewrites the map[any]any that yaml.v3 produces for mappings
// with non-string keys into map[string]any, keying by fmt.Sprint.
func normalizeYAML(v any) any {
	switch d := v.(type) {
	case map[any]any:
		m := make(map[string]any, len(d))
		for k, val := range d {
			m[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return m
	case map[string]any:
		for k, val := range d {
			d[k] = normalizeYAML(val)
		}
		return d
	case []any:
		for i, val := range d {
			d[i] = normalizeYAML(val)
		}
		return d
	default:
		return v
	}
}

func split(v any) []any {
	switch d := v.(type) {
	case nil:
		return nil
	case []any:
		return d
	default:
		return []any{d}
	}
}
