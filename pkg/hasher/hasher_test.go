package hasher

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSHA256Stream(t *testing.T) {
	tests := []struct {
		name  string
		data  []byte
		chunk int
	}{
		{name: "empty", data: nil, chunk: 16},
		{name: "small", data: []byte("demo"), chunk: 16},
		{name: "multi chunk", data: bytes.Repeat([]byte("abc123"), 1000), chunk: 64},
		{name: "chunk boundary", data: bytes.Repeat([]byte{0xAB}, 128), chunk: 64},
	}

	h := New(1024)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			digest, total, err := h.SHA256(NewReaderSource(bytes.NewReader(tt.data), tt.chunk))
			require.NoError(t, err)

			want := sha256.Sum256(tt.data)
			assert.Equal(t, hex.EncodeToString(want[:]), digest)
			assert.Equal(t, int64(len(tt.data)), total)
		})
	}
}

func TestCRC32Stream(t *testing.T) {
	data := bytes.Repeat([]byte("payload"), 500)
	h := New(1024)

	crc, err := h.CRC32(NewReaderSource(bytes.NewReader(data), 100))
	require.NoError(t, err)
	assert.Equal(t, crc32.ChecksumIEEE(data), crc)
}

func TestBlobSHA1(t *testing.T) {
	// Known git blob hash: "blob 4\x00demo"
	h := New(1024)
	digest, err := h.BlobSHA1(4, BytesSource([]byte("demo"), 2))
	require.NoError(t, err)

	// git hash-object on a file containing "demo"
	assert.Equal(t, "efd261bf79519c997d1c2ac4154798d551f022dd", digest)
}

func TestBlobSHA1SizeMismatch(t *testing.T) {
	h := New(1024)

	// Declared size larger than the stream
	_, err := h.BlobSHA1(10, BytesSource([]byte("demo"), 2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "size mismatch")

	// Declared size smaller than the stream
	_, err = h.BlobSHA1(2, BytesSource([]byte("demo"), 2))
	require.Error(t, err)
}

func TestFileHelpers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blob.bin")
	data := bytes.Repeat([]byte{0x5A, 0x00, 0xFF}, 2048)
	require.NoError(t, os.WriteFile(path, data, 0644))

	h := New(256)

	digest, err := h.SHA256File(path)
	require.NoError(t, err)
	want := sha256.Sum256(data)
	assert.Equal(t, hex.EncodeToString(want[:]), digest)

	crc, err := h.CRC32File(path)
	require.NoError(t, err)
	assert.Equal(t, crc32.ChecksumIEEE(data), crc)

	blob, err := h.BlobSHA1File(path)
	require.NoError(t, err)
	assert.Len(t, blob, 40)
}

func TestFileHelpersMissingFile(t *testing.T) {
	h := New(256)
	_, err := h.SHA256File(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}

func TestSumSHA256(t *testing.T) {
	want := sha256.Sum256([]byte("demo"))
	assert.Equal(t, hex.EncodeToString(want[:]), SumSHA256([]byte("demo")))
}
