package pathguard

import (
	"path/filepath"
	"strings"

	"github.com/cuemby/molt/pkg/errdefs"
)

// Guard validates and filters relative paths before the engine writes
// anything under them. Allow and ignore entries are exact paths or prefix
// directories; an empty allow list permits everything not ignored.
type Guard struct {
	allow  []string
	ignore []string
}

// New creates a Guard with the given allow and ignore lists
func New(allow, ignore []string) *Guard {
	return &Guard{allow: allow, ignore: ignore}
}

// Normalize validates rel and returns its canonical slash-joined form.
// Rejected: absolute paths, empty paths, and any segment that is empty,
// ".", or "..".
func Normalize(rel string) (string, error) {
	if rel == "" {
		return "", errdefs.Wrapf(errdefs.ErrPath, "empty path")
	}
	if strings.HasPrefix(rel, "/") || strings.HasPrefix(rel, "\\") {
		return "", errdefs.Wrapf(errdefs.ErrPath, "absolute path %q", rel)
	}
	// Windows-style drive or separator smuggling
	if strings.Contains(rel, "\\") || strings.Contains(rel, ":") {
		return "", errdefs.Wrapf(errdefs.ErrPath, "invalid character in %q", rel)
	}
	segments := strings.Split(rel, "/")
	for _, seg := range segments {
		switch seg {
		case "":
			return "", errdefs.Wrapf(errdefs.ErrPath, "empty segment in %q", rel)
		case ".":
			return "", errdefs.Wrapf(errdefs.ErrPath, "dot segment in %q", rel)
		case "..":
			return "", errdefs.Wrapf(errdefs.ErrPath, "parent segment in %q", rel)
		}
	}
	return strings.Join(segments, "/"), nil
}

// Permitted reports whether a normalized path passes the allow list (if
// present) and is not excluded by the ignore list.
func (g *Guard) Permitted(rel string) bool {
	if len(g.allow) > 0 && !matchAny(rel, g.allow) {
		return false
	}
	return !matchAny(rel, g.ignore)
}

// Check normalizes rel and verifies it is permitted, returning the
// canonical form.
func (g *Guard) Check(rel string) (string, error) {
	norm, err := Normalize(rel)
	if err != nil {
		return "", err
	}
	if !g.Permitted(norm) {
		return "", errdefs.Wrapf(errdefs.ErrPath, "path %q not permitted", norm)
	}
	return norm, nil
}

// matchAny reports whether rel equals an entry or sits under an entry
// treated as a directory prefix.
func matchAny(rel string, entries []string) bool {
	for _, e := range entries {
		e = strings.TrimSuffix(e, "/")
		if e == "" {
			continue
		}
		if rel == e || strings.HasPrefix(rel, e+"/") {
			return true
		}
	}
	return false
}

// WithinRoot verifies that joining rel to root cannot escape root once the
// path is resolved. Defense in depth for staged and backup destinations;
// Normalize already rejects traversal segments.
func WithinRoot(root, rel string) error {
	joined := filepath.Join(root, filepath.FromSlash(rel))
	cleanRoot := filepath.Clean(root)
	if joined != cleanRoot && !strings.HasPrefix(joined, cleanRoot+string(filepath.Separator)) {
		return errdefs.Wrapf(errdefs.ErrPath, "path %q escapes %q", rel, root)
	}
	return nil
}
