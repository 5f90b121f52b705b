// Package security checks user-supplied output paths (CSV logs, plots,
// capture files, database backups) before anything is written to them.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// canonical resolves symlinks in the deepest existing ancestor of path so a
// not-yet-created file under a symlinked directory is judged by its target.
func canonical(path string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	for dir := abs; ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			rest, _ := filepath.Rel(dir, abs)
			return filepath.Join(resolved, rest), nil
		}
		if filepath.Dir(dir) == dir {
			return abs, nil
		}
	}
}

// ValidatePathWithin returns an error unless path stays inside dir.
func ValidatePathWithin(path, dir string) error {
	p, err := canonical(path)
	if err != nil {
		return err
	}
	d, err := canonical(dir)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(d, p)
	if err != nil {
		return fmt.Errorf("path %s is outside %s: %w", path, dir, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("path traversal detected: %s escapes %s", path, dir)
	}
	return nil
}

// ValidatePathWithinAny accepts path if it is inside at least one of dirs.
func ValidatePathWithinAny(path string, dirs []string) error {
	if len(dirs) == 0 {
		return fmt.Errorf("no allowed directories specified")
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if ValidatePathWithin(path, dir) == nil {
			return nil
		}
	}
	return fmt.Errorf("path %s must be within one of %v", path, dirs)
}

// ValidateExportPath accepts paths under the temp directory, the working
// directory or any of extraDirs (typically the configured data directory).
func ValidateExportPath(path string, extraDirs ...string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	dirs := append([]string{os.TempDir(), cwd}, extraDirs...)
	return ValidatePathWithinAny(path, dirs)
}

// SanitizeFilename keeps ASCII letters, digits, '.', '_' and '-', collapsing
// any other run of characters into one underscore.
func SanitizeFilename(s string) string {
	const maxLen = 128
	var b strings.Builder
	under := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
			under = false
		case !under:
			b.WriteByte('_')
			under = true
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
