package cli

import (
	"path/filepath"
	"strings"
)

// baseName returns the file name of path without any extension.
func baseName(path string) string {
	name, _, _ := strings.Cut(filepath.Base(path), ".")
	return name
}
