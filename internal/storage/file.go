package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// WriteJSONFile writes v as indented JSON to path through a temporary file and a
// rename, so readers never observe a partially written document.
func WriteJSONFile(path string, v any, filePermissions, dirPermissions os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}
	jsonData = append(jsonData, '\n')

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, jsonData, filePermissions); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}
