// Package datafile loads and saves value records as JSON or YAML files and
// derives records from a base plus overrides.
package datafile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileType selects the on-disk encoding of a record.
type FileType string

const (
	// Auto infers the encoding from the file extension.
	Auto FileType = "AUTO"
	JSON FileType = "JSON"
	YAML FileType = "YAML"
)

// ErrUnsupportedFileType reports a path whose extension maps to no encoding.
var ErrUnsupportedFileType = errors.New("unsupported file type")

// TypeFromPath maps .json to JSON and .yaml/.yml to YAML, case-insensitively.
func TypeFromPath(path string) (FileType, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return JSON, nil
	case ".yaml", ".yml":
		return YAML, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFileType, path)
	}
}

// Resolve turns Auto into a concrete encoding for path.
func Resolve(path string, fileType FileType) (FileType, error) {
	switch fileType {
	case "", Auto:
		return TypeFromPath(path)
	case JSON, YAML:
		return fileType, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFileType, fileType)
	}
}

// Load reads path and decodes it into a new T.
func Load[T any](path string, fileType FileType) (T, error) {
	var out T

	resolved, err := Resolve(path, fileType)
	if err != nil {
		return out, err
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return out, fmt.Errorf("read %s: %w", path, err)
	}

	if err := Unmarshal(content, resolved, &out); err != nil {
		return out, fmt.Errorf("decode %s: %w", path, err)
	}
	return out, nil
}

// Unmarshal decodes content of the given concrete type into v.
func Unmarshal(content []byte, fileType FileType, v any) error {
	switch fileType {
	case JSON:
		return json.Unmarshal(content, v)
	case YAML:
		return yaml.Unmarshal(content, v)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFileType, fileType)
	}
}

// Save encodes v and writes it to path, replacing any existing file.
func Save(path string, fileType FileType, v any) error {
	resolved, err := Resolve(path, fileType)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	switch resolved {
	case JSON:
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
	case YAML:
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
