// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

// Package data provides helpers for configuration file operations.
package data

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// EnsureFullPath ensures the parent directories of path exist.
func EnsureFullPath(path string, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, perm); err != nil {
		return fmt.Errorf("failed to create full path for %q: %w", path, err)
	}
	return nil
}

// SaveYAML saves a struct to a YAML file.
func SaveYAML(path string, data any) error {
	if err := EnsureFullPath(path, 0700); err != nil {
		return err
	}

	bytes, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}

	if err := os.WriteFile(path, bytes, 0600); err != nil {
		return fmt.Errorf("failed to write YAML file %q: %w", path, err)
	}

	return nil
}

// LoadYAML loads a YAML file into a struct.
func LoadYAML(path string, data any) error {
	bytes, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read YAML file %q: %w", path, err)
	}

	if err := yaml.Unmarshal(bytes, data); err != nil {
		return fmt.Errorf("failed to unmarshal YAML from %q: %w", path, err)
	}

	return nil
}

// LoadOptionalYAML loads path into data, leaving data untouched when the
// file does not exist.
func LoadOptionalYAML(path string, data any) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat YAML file %q: %w", path, err)
	}

	return LoadYAML(path, data)
}
