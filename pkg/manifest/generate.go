package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cuemby/molt/pkg/atomicfile"
	"github.com/cuemby/molt/pkg/errdefs"
	"github.com/cuemby/molt/pkg/hasher"
)

// DefaultExcludes are glob patterns skipped by Generate unless overridden
var DefaultExcludes = []string{
	".git*",
	".ota_*",
	"__pycache__",
	"*.pyc",
	"*.pyo",
	"ota_error.json",
	"ota_history.db",
	"version.json",
}

// GenerateOptions controls manifest generation
type GenerateOptions struct {
	// Version label recorded in the manifest
	Version string

	// Include restricts the scan to these relative paths (exact). Empty
	// includes every regular file under root.
	Include []string

	// Exclude glob patterns, matched against the relative path and its
	// base name. Nil uses DefaultExcludes.
	Exclude []string

	// Deletes lists paths the device should remove on apply
	Deletes []string

	// PostUpdate is the optional hook identifier
	PostUpdate string

	// Key signs the manifest when non-empty
	Key string

	// Now stamps generated_at; zero uses the current time
	Now time.Time
}

// Generate walks root, hashes every selected file, and returns the
// manifest plus its signed JSON encoding.
func Generate(root string, opts GenerateOptions) (*Manifest, []byte, error) {
	exclude := opts.Exclude
	if exclude == nil {
		exclude = DefaultExcludes
	}

	var rels []string
	if len(opts.Include) > 0 {
		rels = append(rels, opts.Include...)
	} else {
		err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil || info.IsDir() {
				return err
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			rels = append(rels, filepath.ToSlash(rel))
			return nil
		})
		if err != nil {
			return nil, nil, errdefs.Wrap(errdefs.ErrIOFault, err)
		}
	}
	sort.Strings(rels)

	h := hasher.New(256 * 1024)
	m := &Manifest{
		Version:    opts.Version,
		Deletes:    opts.Deletes,
		PostUpdate: opts.PostUpdate,
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	m.GeneratedAt = now.UTC().Format("2006-01-02T15:04:05Z")

	for _, rel := range rels {
		if excluded(rel, exclude) {
			continue
		}
		full := filepath.Join(root, filepath.FromSlash(rel))
		st, err := os.Stat(full)
		if err != nil {
			return nil, nil, errdefs.Wrap(errdefs.ErrIOFault, err)
		}
		sha, err := h.SHA256File(full)
		if err != nil {
			return nil, nil, err
		}
		crc, err := h.CRC32File(full)
		if err != nil {
			return nil, nil, err
		}
		m.Files = append(m.Files, File{Path: rel, SHA256: sha, CRC32: &crc, Size: st.Size()})
	}

	unsigned, err := json.Marshal(m)
	if err != nil {
		return nil, nil, errdefs.Wrap(errdefs.ErrState, err)
	}
	if opts.Key != "" {
		sig, err := Sign(unsigned, opts.Key)
		if err != nil {
			return nil, nil, err
		}
		m.Signature = sig
	}

	signed, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, nil, errdefs.Wrap(errdefs.ErrState, err)
	}
	m.raw = signed
	return m, signed, nil
}

// GenerateFile generates a manifest for root and writes it atomically
func GenerateFile(root, outPath string, opts GenerateOptions) (*Manifest, error) {
	m, signed, err := Generate(root, opts)
	if err != nil {
		return nil, err
	}
	if err := atomicfile.WriteFile(outPath, signed); err != nil {
		return nil, err
	}
	return m, nil
}

// excluded reports whether rel matches any pattern by full relative path,
// base name, or leading path component. Repository metadata under .git is
// always skipped.
func excluded(rel string, patterns []string) bool {
	parts := strings.Split(rel, "/")
	for _, p := range parts {
		if p == ".git" {
			return true
		}
	}
	base := parts[len(parts)-1]
	for _, pat := range patterns {
		if ok, _ := filepath.Match(pat, rel); ok {
			return true
		}
		if ok, _ := filepath.Match(pat, base); ok {
			return true
		}
		if ok, _ := filepath.Match(pat, parts[0]); ok {
			return true
		}
	}
	return false
}
