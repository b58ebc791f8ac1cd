package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// WriteRoutesFile atomically writes a RoutesFile to disk using a
// temp-file-then-rename pattern so readers (including our own fsnotify
// watcher) never see partial writes.
func WriteRoutesFile(path string, routes *RoutesFile) error {
	data, err := yaml.Marshal(routes)
	if err != nil {
		return fmt.Errorf("failed to marshal routes config: %w", err)
	}

	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, ".routes.*.yaml.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if _, err := os.Stat(tmpPath); err == nil {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file to %q: %w", path, err)
	}
	return nil
}

// EnsureRoutesFile writes the default routes file if none exists at path.
// Returns true if the file was created.
func EnsureRoutesFile(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to stat routes file %q: %w", path, err)
	}
	if err := WriteRoutesFile(path, DefaultRoutesFile()); err != nil {
		return false, err
	}
	return true, nil
}
