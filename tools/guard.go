package tools

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/m4xw311/codeloop/errors"
)

// Resolve maps a model-supplied path onto the working root. op names the
// operation for the rejection message ("list", "read", ...).
//
// Containment is decided on path segments rather than string prefixes, so a
// sibling such as /work/rootxx is not accepted for root /work/root. Symlinks
// are not followed.
func Resolve(root, relativePath, op string) (string, error) {
	root = filepath.Clean(root)

	var target string
	if filepath.IsAbs(relativePath) {
		target = filepath.Clean(relativePath)
	} else {
		target = filepath.Join(root, relativePath)
	}

	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", errors.E(errors.KindPathEscape,
			"Cannot %s %q as it is outside the permitted working directory", op, relativePath)
	}
	return target, nil
}
