package delta

import (
	"io"

	"github.com/cuemby/molt/pkg/errdefs"
)

// lookaheadSize is the fixed parse buffer; the applier never holds more
// than this much of the delta stream plus one output chunk in memory.
const lookaheadSize = 64

// chunkedReader wraps the delta source in a fixed 64-byte lookahead
// buffer. All instruction parsing goes through it.
type chunkedReader struct {
	r   io.Reader
	buf [lookaheadSize]byte
	n   int // valid bytes in buf
	pos int // read position in buf
	eof bool
}

func newChunkedReader(r io.Reader) *chunkedReader {
	return &chunkedReader{r: r}
}

// refill loads the next buffer-full; returns false at end of stream
func (c *chunkedReader) refill() (bool, error) {
	if c.pos < c.n {
		return true, nil
	}
	if c.eof {
		return false, nil
	}
	n, err := c.r.Read(c.buf[:])
	c.n = n
	c.pos = 0
	if err == io.EOF {
		c.eof = true
		return n > 0, nil
	}
	if err != nil {
		return false, errdefs.Wrap(errdefs.ErrIOFault, err)
	}
	if n == 0 {
		c.eof = true
		return false, nil
	}
	return true, nil
}

// readByte returns the next byte, or ok=false at end of stream
func (c *chunkedReader) readByte() (byte, bool, error) {
	ok, err := c.refill()
	if err != nil || !ok {
		return 0, false, err
	}
	b := c.buf[c.pos]
	c.pos++
	return b, true, nil
}

// readFull fills dst completely or fails with a truncation error
func (c *chunkedReader) readFull(dst []byte) error {
	filled := 0
	for filled < len(dst) {
		ok, err := c.refill()
		if err != nil {
			return err
		}
		if !ok {
			return errdefs.Wrapf(errdefs.ErrIntegrity,
				"delta truncated: wanted %d more bytes", len(dst)-filled)
		}
		n := copy(dst[filled:], c.buf[c.pos:c.n])
		c.pos += n
		filled += n
	}
	return nil
}

// readVarint decodes a 7-bit little-endian continuation varint bounded
// to 32-bit values.
func (c *chunkedReader) readVarint() (uint32, error) {
	var result uint32
	shift := uint(0)
	for {
		b, ok, err := c.readByte()
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, errdefs.Wrapf(errdefs.ErrIntegrity, "delta truncated reading varint")
		}
		result |= uint32(b&0x7F) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
		if shift > 28 {
			return 0, errdefs.Wrapf(errdefs.ErrIntegrity, "varint exceeds 32 bits")
		}
	}
}

// appendVarint encodes v in 7-bit little-endian continuation form
func appendVarint(dst []byte, v uint32) []byte {
	for v > 0x7F {
		dst = append(dst, byte(v&0x7F)|0x80)
		v >>= 7
	}
	return append(dst, byte(v&0x7F))
}
