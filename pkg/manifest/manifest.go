package manifest

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/cuemby/molt/pkg/errdefs"
)

// File is one artifact entry in a manifest
type File struct {
	Path   string  `json:"path"`
	SHA256 string  `json:"sha256,omitempty"`
	CRC32  *uint32 `json:"crc32,omitempty"`
	Size   int64   `json:"size"`
}

// Verifiable reports whether the entry carries at least one content hash
func (f *File) Verifiable() bool {
	return f.SHA256 != "" || f.CRC32 != nil
}

// Manifest is the signed artifact descriptor delivered out-of-band with
// a release.
type Manifest struct {
	Version     string   `json:"version"`
	GeneratedAt string   `json:"generated_at,omitempty"`
	Files       []File   `json:"files"`
	Deletes     []string `json:"deletes,omitempty"`
	PostUpdate  string   `json:"post_update,omitempty"`
	Signature   string   `json:"signature,omitempty"`

	// raw preserves the original JSON so verification canonicalizes the
	// exact document that was signed, unknown fields included
	raw []byte
}

// Parse decodes a manifest, keeping the raw bytes for verification
func Parse(raw []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, errdefs.Wrapf(errdefs.ErrIntegrity, "malformed manifest: %v", err)
	}
	if m.Version == "" {
		return nil, errdefs.Wrapf(errdefs.ErrIntegrity, "manifest missing version")
	}
	m.raw = append([]byte(nil), raw...)
	return &m, nil
}

// Verify checks the embedded HMAC-SHA-256 signature against key.
//
// No key configured means verification is skipped: unsigned manifests
// are trusted by explicit configuration. A configured key with a missing
// signature fails. Comparison is constant time.
func (m *Manifest) Verify(key string) error {
	if key == "" {
		return nil
	}
	if m.Signature == "" {
		return errdefs.Wrapf(errdefs.ErrIntegrity, "manifest missing signature")
	}
	canonical, err := Canonicalize(m.raw)
	if err != nil {
		return err
	}
	expected := signHex([]byte(key), canonical)
	if !hmac.Equal([]byte(expected), []byte(m.Signature)) {
		return errdefs.Wrapf(errdefs.ErrIntegrity, "manifest signature mismatch")
	}
	return nil
}

// Canonicalize produces the canonical signing form of a manifest
// document: the signature member removed, object keys sorted, minimal
// separators, no HTML escaping. Number literals pass through verbatim.
func Canonicalize(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc map[string]interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, errdefs.Wrapf(errdefs.ErrIntegrity, "malformed manifest: %v", err)
	}
	delete(doc, "signature")

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return nil, errdefs.Wrap(errdefs.ErrState, err)
	}
	// Encoder appends a newline; the canonical form has none
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Sign computes the lowercase-hex HMAC-SHA-256 over the canonical form
// of raw and returns it. raw may or may not already carry a signature
// member; it is removed before signing.
func Sign(raw []byte, key string) (string, error) {
	canonical, err := Canonicalize(raw)
	if err != nil {
		return "", err
	}
	return signHex([]byte(key), canonical), nil
}

func signHex(key, data []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}
