package delta

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"github.com/cuemby/molt/pkg/atomicfile"
	"github.com/cuemby/molt/pkg/errdefs"
)

// Wire format constants
var deltaMagic = []byte("OTADELTA")

const (
	formatVersion = 1

	opCopyOld byte = 0x01
	opNewData byte = 0x02
	opEnd     byte = 0xFF

	// Per-instruction limits preventing memory exhaustion on the device
	MaxCopySize   = 4096
	MaxInsertSize = 2048
)

// Options controls delta application
type Options struct {
	// ExpectedSHA256 is the lowercase hex digest the output must hash to.
	// Empty skips the check.
	ExpectedSHA256 string

	// ChunkSize bounds reads from the old file and literal streaming.
	// Defaults to 512.
	ChunkSize int
}

// Apply interprets the delta instruction stream against oldPath and
// produces outputPath in one streaming pass, returning the SHA-256 of
// the output. Peak working set is the 64-byte lookahead plus one chunk.
//
// The output is written through the atomic writer: it is fsynced and
// renamed into place only after the END instruction and hash check.
func Apply(oldPath string, delta io.Reader, outputPath string, opts Options) (string, error) {
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 512
	}

	r := newChunkedReader(delta)

	// Header
	header := make([]byte, len(deltaMagic))
	if err := r.readFull(header); err != nil {
		return "", errdefs.Wrapf(errdefs.ErrIntegrity, "delta too short")
	}
	if !bytes.Equal(header, deltaMagic) {
		return "", errdefs.Wrapf(errdefs.ErrIntegrity, "invalid delta magic")
	}
	version, ok, err := r.readByte()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errdefs.Wrapf(errdefs.ErrIntegrity, "delta too short")
	}
	if version != formatVersion {
		return "", errdefs.Wrapf(errdefs.ErrIntegrity, "unsupported delta version %d", version)
	}

	oldFile, err := os.Open(oldPath)
	if err != nil {
		return "", errdefs.Wrap(errdefs.ErrIOFault, err)
	}
	defer oldFile.Close()

	out, err := atomicfile.NewWriter(outputPath)
	if err != nil {
		return "", err
	}

	digest := sha256.New()
	buf := make([]byte, chunkSize)

	emit := func(p []byte) error {
		if _, err := out.Write(p); err != nil {
			return err
		}
		digest.Write(p)
		return nil
	}

	for {
		opcode, ok, err := r.readByte()
		if err != nil {
			out.Abort()
			return "", err
		}
		if !ok {
			out.Abort()
			return "", errdefs.Wrapf(errdefs.ErrIntegrity, "delta ended without END instruction")
		}

		if opcode == opEnd {
			break
		}

		switch opcode {
		case opCopyOld:
			offset, err := r.readVarint()
			if err != nil {
				out.Abort()
				return "", err
			}
			length, err := r.readVarint()
			if err != nil {
				out.Abort()
				return "", err
			}
			if length > MaxCopySize {
				out.Abort()
				return "", errdefs.Wrapf(errdefs.ErrIntegrity, "copy size %d exceeds limit", length)
			}
			if _, err := oldFile.Seek(int64(offset), io.SeekStart); err != nil {
				out.Abort()
				return "", errdefs.Wrap(errdefs.ErrIOFault, err)
			}
			remaining := int(length)
			for remaining > 0 {
				n := chunkSize
				if n > remaining {
					n = remaining
				}
				if _, err := io.ReadFull(oldFile, buf[:n]); err != nil {
					out.Abort()
					return "", errdefs.Wrapf(errdefs.ErrIntegrity, "unexpected EOF in old file")
				}
				if err := emit(buf[:n]); err != nil {
					out.Abort()
					return "", err
				}
				remaining -= n
			}

		case opNewData:
			length, err := r.readVarint()
			if err != nil {
				out.Abort()
				return "", err
			}
			if length > MaxInsertSize {
				out.Abort()
				return "", errdefs.Wrapf(errdefs.ErrIntegrity, "insert size %d exceeds limit", length)
			}
			remaining := int(length)
			for remaining > 0 {
				n := chunkSize
				if n > remaining {
					n = remaining
				}
				if err := r.readFull(buf[:n]); err != nil {
					out.Abort()
					return "", err
				}
				if err := emit(buf[:n]); err != nil {
					out.Abort()
					return "", err
				}
				remaining -= n
			}

		default:
			out.Abort()
			return "", errdefs.Wrapf(errdefs.ErrIntegrity, "unknown opcode 0x%02x", opcode)
		}
	}

	result := hex.EncodeToString(digest.Sum(nil))
	if opts.ExpectedSHA256 != "" && result != opts.ExpectedSHA256 {
		out.Abort()
		return "", errdefs.Wrapf(errdefs.ErrIntegrity,
			"output hash mismatch: expected %s, got %s", opts.ExpectedSHA256, result)
	}

	if err := out.Commit(); err != nil {
		return "", err
	}
	return result, nil
}

// ApplyFile applies a delta stored at deltaPath. This is the canonical
// streaming mode: the delta file is never loaded into memory.
func ApplyFile(oldPath, deltaPath, outputPath string, opts Options) (string, error) {
	f, err := os.Open(deltaPath)
	if err != nil {
		return "", errdefs.Wrap(errdefs.ErrIOFault, err)
	}
	defer f.Close()
	return Apply(oldPath, f, outputPath, opts)
}

// ApplyBytes applies an in-memory delta, treated as a trivial stream
func ApplyBytes(oldPath string, delta []byte, outputPath string, opts Options) (string, error) {
	return Apply(oldPath, bytes.NewReader(delta), outputPath, opts)
}
