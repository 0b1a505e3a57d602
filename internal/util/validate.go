package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// IsConfigured reports whether all provided values are non-empty.
func IsConfigured(values ...string) bool {
	for _, v := range values {
		if v == "" {
			return false
		}
	}
	return true
}

// ValidatePath validates a file path for security.
func ValidatePath(field, path string) error {
	if path == "" {
		return fmt.Errorf("%s: is required", field)
	}

	// Reject traversal outright; Clean would silently resolve it.
	if strings.Contains(path, "..") {
		return fmt.Errorf("%s: path cannot contain '..'", field)
	}
	if strings.ContainsRune(path, 0) {
		return fmt.Errorf("%s: path cannot contain NUL", field)
	}
	if filepath.Clean(path) == "." {
		return fmt.Errorf("%s: invalid path", field)
	}
	return nil
}

// CheckPathWritable creates dir if needed and proves it accepts a write by
// creating and removing a probe file.
func CheckPathWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return WrapError("create directory", err)
	}

	probe, err := os.CreateTemp(dir, ".soundmeter-write-test-*")
	if err != nil {
		return WrapError("create probe file", err)
	}
	name := probe.Name()

	_, writeErr := probe.Write(make([]byte, 1024))
	closeErr := probe.Close()
	removeErr := os.Remove(name)

	switch {
	case writeErr != nil:
		return WrapError("write probe file", writeErr)
	case closeErr != nil:
		return WrapError("close probe file", closeErr)
	case removeErr != nil:
		return WrapError("remove probe file", removeErr)
	}
	return nil
}
