package security

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// ValidateFilePath validates that a file path is non-empty and doesn't contain directory traversal attempts
func ValidateFilePath(path string) error {
	if path == "" {
		return fmt.Errorf("file path cannot be empty")
	}
	if strings.ContainsRune(path, '\x00') {
		return fmt.Errorf("path contains null byte")
	}

	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("path contains directory traversal: %s", path)
		}
	}

	return nil
}

// ResolveWithinBase joins name onto baseDir and returns the cleaned path.
// Absolute names and names that resolve outside baseDir are rejected.
func ResolveWithinBase(baseDir, name string) (string, error) {
	if err := ValidateFilePath(name); err != nil {
		return "", err
	}
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("absolute paths not allowed: %s", name)
	}

	cleanBase := filepath.Clean(baseDir)
	full := filepath.Clean(filepath.Join(cleanBase, name))

	rel, err := filepath.Rel(cleanBase, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes base directory: %s", name)
	}

	return full, nil
}

// SanitizeFilename reduces an uploaded file name to a safe base name made of
// ASCII letters, digits, dot, dash and underscore. Returns "" when nothing usable remains.
func SanitizeFilename(name string) string {
	name = filepath.Base(filepath.ToSlash(strings.ReplaceAll(name, "\\", "/")))
	name = strings.ReplaceAll(name, " ", "_")
	name = unsafeNameChars.ReplaceAllString(name, "")
	name = strings.Trim(name, "._")
	return name
}
