package hasher

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"hash/crc32"
	"io"
	"os"
	"strconv"

	"github.com/cuemby/molt/pkg/errdefs"
)

// ChunkSource yields successive byte slices of a stream. ReadChunk returns
// io.EOF with no data when the stream is exhausted. The returned slice is
// only valid until the next call, allowing sources to reuse one buffer.
type ChunkSource interface {
	ReadChunk() ([]byte, error)
}

// Hasher computes content hashes in streaming fashion over bounded buffers.
// The CRC table is created once per instance and shared by all CRC-32
// operations issued through it.
type Hasher struct {
	chunkSize int
	crcTable  *crc32.Table
}

// New creates a Hasher with the given chunk size for file-level helpers
func New(chunkSize int) *Hasher {
	if chunkSize <= 0 {
		chunkSize = 1024
	}
	return &Hasher{
		chunkSize: chunkSize,
		crcTable:  crc32.MakeTable(crc32.IEEE),
	}
}

// SHA256 consumes src and returns the lowercase hex SHA-256 digest and the
// total number of bytes consumed.
func (h *Hasher) SHA256(src ChunkSource) (string, int64, error) {
	d := sha256.New()
	var total int64
	for {
		chunk, err := src.ReadChunk()
		if len(chunk) > 0 {
			d.Write(chunk)
			total += int64(len(chunk))
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", total, errdefs.Wrap(errdefs.ErrIOFault, err)
		}
	}
	return hex.EncodeToString(d.Sum(nil)), total, nil
}

// CRC32 consumes src and returns the IEEE CRC-32 of its bytes
func (h *Hasher) CRC32(src ChunkSource) (uint32, error) {
	var crc uint32
	for {
		chunk, err := src.ReadChunk()
		if len(chunk) > 0 {
			crc = crc32.Update(crc, h.crcTable, chunk)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return crc, errdefs.Wrap(errdefs.ErrIOFault, err)
		}
	}
	return crc, nil
}

// BlobSHA1 computes the repository-host blob identity: SHA-1 over
// "blob <size>\x00" followed by the stream bytes. It fails with an
// integrity error if the stream length does not equal declaredSize.
func (h *Hasher) BlobSHA1(declaredSize int64, src ChunkSource) (string, error) {
	d := sha1.New()
	d.Write([]byte("blob " + strconv.FormatInt(declaredSize, 10) + "\x00"))
	remaining := declaredSize
	for {
		chunk, err := src.ReadChunk()
		if len(chunk) > 0 {
			remaining -= int64(len(chunk))
			d.Write(chunk)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", errdefs.Wrap(errdefs.ErrIOFault, err)
		}
	}
	if remaining != 0 {
		return "", errdefs.Wrapf(errdefs.ErrIntegrity,
			"size mismatch during stream: %d bytes unaccounted", remaining)
	}
	return hex.EncodeToString(d.Sum(nil)), nil
}

// SHA256File hashes a file on disk streaming in chunks
func (h *Hasher) SHA256File(path string) (string, error) {
	src, closeFn, err := h.fileSource(path)
	if err != nil {
		return "", err
	}
	defer closeFn()
	digest, _, err := h.SHA256(src)
	return digest, err
}

// CRC32File computes the CRC-32 of a file on disk
func (h *Hasher) CRC32File(path string) (uint32, error) {
	src, closeFn, err := h.fileSource(path)
	if err != nil {
		return 0, err
	}
	defer closeFn()
	return h.CRC32(src)
}

// BlobSHA1File computes the blob identity of a file on disk using its
// current size as the declared size.
func (h *Hasher) BlobSHA1File(path string) (string, error) {
	st, err := os.Stat(path)
	if err != nil {
		return "", errdefs.Wrap(errdefs.ErrIOFault, err)
	}
	src, closeFn, err := h.fileSource(path)
	if err != nil {
		return "", err
	}
	defer closeFn()
	return h.BlobSHA1(st.Size(), src)
}

func (h *Hasher) fileSource(path string) (ChunkSource, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errdefs.Wrap(errdefs.ErrIOFault, err)
	}
	return NewReaderSource(f, h.chunkSize), func() { f.Close() }, nil
}

// readerSource adapts an io.Reader to ChunkSource with one reused buffer
type readerSource struct {
	r   io.Reader
	buf []byte
}

// NewReaderSource wraps r in a ChunkSource backed by a single fixed buffer
// of chunkSize bytes. Peak memory is O(chunkSize) regardless of stream size.
func NewReaderSource(r io.Reader, chunkSize int) ChunkSource {
	if chunkSize <= 0 {
		chunkSize = 1024
	}
	return &readerSource{r: r, buf: make([]byte, chunkSize)}
}

func (s *readerSource) ReadChunk() ([]byte, error) {
	n, err := s.r.Read(s.buf)
	if n > 0 {
		return s.buf[:n], err
	}
	if err == nil {
		err = io.EOF
	}
	return nil, err
}

// BytesSource wraps an in-memory buffer as a ChunkSource
func BytesSource(data []byte, chunkSize int) ChunkSource {
	return &bytesSource{data: data, chunk: chunkSize}
}

type bytesSource struct {
	data  []byte
	chunk int
	pos   int
}

func (s *bytesSource) ReadChunk() ([]byte, error) {
	if s.pos >= len(s.data) {
		return nil, io.EOF
	}
	n := s.chunk
	if n <= 0 {
		n = 1024
	}
	if s.pos+n > len(s.data) {
		n = len(s.data) - s.pos
	}
	out := s.data[s.pos : s.pos+n]
	s.pos += n
	return out, nil
}

// SumSHA256 returns the hex SHA-256 of an in-memory buffer. Used for small
// payloads like canonical manifests; large artifacts go through ChunkSource.
func SumSHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
