// Package config loads YAML configuration files with environment variable
// expansion.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Validator is an interface for configuration validation.
type Validator interface {
	Validate() error
}

// Load decodes filename over target, which keeps any value the file does
// not set. ${VAR} references are expanded before decoding. Unknown keys are
// rejected.
func Load[T any](filename string, target *T) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filename, err)
	}
	if err := decode(os.ExpandEnv(string(data)), target); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}
	return validate(target)
}

// LoadOptional is Load for a file that may not exist. Without it target
// keeps its defaults and is only validated.
func LoadOptional[T any](filename string, target *T) error {
	if filename != "" {
		_, err := os.Stat(filename)
		switch {
		case err == nil:
			return Load(filename, target)
		case !errors.Is(err, fs.ErrNotExist):
			return fmt.Errorf("failed to stat config file %s: %w", filename, err)
		}
	}
	return validate(target)
}

func decode(content string, target any) error {
	dec := yaml.NewDecoder(strings.NewReader(content))
	dec.KnownFields(true)
	// An empty or comment-only file decodes to io.EOF.
	if err := dec.Decode(target); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func validate(target any) error {
	if v, ok := target.(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("config validation failed: %w", err)
		}
	}
	return nil
}
