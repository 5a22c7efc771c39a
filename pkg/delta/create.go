package delta

import (
	"crypto/sha256"
	"os"

	"github.com/cuemby/molt/pkg/atomicfile"
	"github.com/cuemby/molt/pkg/errdefs"
)

// DefaultBlockSize is the match granularity for delta generation
const DefaultBlockSize = 512

// Create generates a delta that transforms old into new. The algorithm is
// a simple block-hash match: fixed-size blocks of the new file are looked
// up in a table of old-file blocks, matches are extended byte-wise, and
// unmatched bytes accumulate into literal instructions. It is a host-side
// tool; both files are read into memory.
//
// COPY instructions are split at MaxCopySize and literals at
// MaxInsertSize so the result always satisfies the applier's limits.
func Create(oldData, newData []byte, blockSize int) []byte {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}

	// Hash table of old file blocks, first 8 digest bytes as key
	type blockKey [8]byte
	oldBlocks := make(map[blockKey]int)
	for i := 0; i+blockSize <= len(oldData); i += blockSize {
		sum := sha256.Sum256(oldData[i : i+blockSize])
		var key blockKey
		copy(key[:], sum[:8])
		if _, seen := oldBlocks[key]; !seen {
			oldBlocks[key] = i
		}
	}

	out := make([]byte, 0, len(deltaMagic)+1+len(newData)/2)
	out = append(out, deltaMagic...)
	out = append(out, formatVersion)

	var pending []byte
	flushInsert := func() {
		for len(pending) > 0 {
			n := len(pending)
			if n > MaxInsertSize {
				n = MaxInsertSize
			}
			out = append(out, opNewData)
			out = appendVarint(out, uint32(n))
			out = append(out, pending[:n]...)
			pending = pending[n:]
		}
	}
	emitCopy := func(offset, length int) {
		for length > 0 {
			n := length
			if n > MaxCopySize {
				n = MaxCopySize
			}
			out = append(out, opCopyOld)
			out = appendVarint(out, uint32(offset))
			out = appendVarint(out, uint32(n))
			offset += n
			length -= n
		}
	}

	pos := 0
	for pos < len(newData) {
		matched := false
		if pos+blockSize <= len(newData) {
			sum := sha256.Sum256(newData[pos : pos+blockSize])
			var key blockKey
			copy(key[:], sum[:8])
			if oldPos, okBlock := oldBlocks[key]; okBlock {
				// Extend the match byte-wise past the block
				matchLen := blockSize
				for pos+matchLen < len(newData) &&
					oldPos+matchLen < len(oldData) &&
					newData[pos+matchLen] == oldData[oldPos+matchLen] {
					matchLen++
				}
				flushInsert()
				emitCopy(oldPos, matchLen)
				pos += matchLen
				matched = true
			}
		}
		if !matched {
			pending = append(pending, newData[pos])
			pos++
		}
	}
	flushInsert()

	out = append(out, opEnd)
	return out
}

// CreateFile generates a delta between two files on disk and writes it
// atomically to outputPath, returning the delta size.
func CreateFile(oldPath, newPath, outputPath string, blockSize int) (int, error) {
	oldData, err := os.ReadFile(oldPath)
	if err != nil {
		return 0, errdefs.Wrap(errdefs.ErrIOFault, err)
	}
	newData, err := os.ReadFile(newPath)
	if err != nil {
		return 0, errdefs.Wrap(errdefs.ErrIOFault, err)
	}
	out := Create(oldData, newData, blockSize)
	if err := atomicfile.WriteFile(outputPath, out); err != nil {
		return 0, err
	}
	return len(out), nil
}

// EstimateSize gives a rough delta size prediction without generating
// the delta, for deciding between delta and full transfer.
func EstimateSize(oldSize, newSize int64, blockSize int) int64 {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	// Assume roughly 30% of the new file matches old blocks
	estimated := int64(9) // header
	estimated += newSize * 7 / 10
	estimated += (newSize * 3 / 10) / int64(blockSize) * 10
	return estimated
}
