package script

import (
	"os"
	"path/filepath"
	"strings"
)

// DefaultExtensions lists the script extensions accepted when none are configured.
var DefaultExtensions = []string{".cmd"}

// Validator checks that a path names an existing regular file with an allowed extension.
type Validator struct {
	Extensions []string
}

// Validate returns the absolute, cleaned form of path or a *ValidationError.
func (v Validator) Validate(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", &ValidationError{Path: path, Reason: "empty path"}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", &ValidationError{Path: path, Reason: err.Error()}
	}
	if !v.allowed(abs) {
		return "", &ValidationError{Path: abs, Reason: "extension not one of " + strings.Join(v.extensions(), ", ")}
	}
	fi, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", &ValidationError{Path: abs, Reason: "file does not exist"}
		}
		return "", &ValidationError{Path: abs, Reason: err.Error()}
	}
	if !fi.Mode().IsRegular() {
		return "", &ValidationError{Path: abs, Reason: "not a regular file"}
	}
	return abs, nil
}

func (v Validator) extensions() []string {
	if len(v.Extensions) == 0 {
		return DefaultExtensions
	}
	return v.Extensions
}

func (v Validator) allowed(path string) bool {
	name := strings.ToLower(BaseName(path))
	for _, ext := range v.extensions() {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if strings.HasSuffix(name, ext) && len(name) > len(ext) {
			return true
		}
	}
	return false
}
