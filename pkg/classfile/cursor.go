package classfile

import "encoding/binary"

// Cursor is a forward-only big-endian reader over an immutable byte slice.
// Reads past the end report ok=false instead of panicking.
type Cursor struct {
	data []byte
	off  int
}

// NewCursor returns a Cursor positioned at the start of data.
func NewCursor(data []byte) *Cursor {
	return &Cursor{data: data}
}

// Offset returns the number of bytes consumed so far.
func (c *Cursor) Offset() int {
	return c.off
}

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int {
	return len(c.data) - c.off
}

// ReadU8 reads one byte.
func (c *Cursor) ReadU8() (uint8, bool) {
	if c.Remaining() < 1 {
		return 0, false
	}
	v := c.data[c.off]
	c.off++
	return v, true
}

// ReadU16 reads a big-endian uint16.
func (c *Cursor) ReadU16() (uint16, bool) {
	b, ok := c.ReadBytes(2)
	if !ok {
		return 0, false
	}
	return binary.BigEndian.Uint16(b), true
}

// ReadU32 reads a big-endian uint32.
func (c *Cursor) ReadU32() (uint32, bool) {
	b, ok := c.ReadBytes(4)
	if !ok {
		return 0, false
	}
	return binary.BigEndian.Uint32(b), true
}

// ReadU64 reads a big-endian uint64.
func (c *Cursor) ReadU64() (uint64, bool) {
	b, ok := c.ReadBytes(8)
	if !ok {
		return 0, false
	}
	return binary.BigEndian.Uint64(b), true
}

// ReadBytes returns the next n bytes as a sub-slice of the backing buffer.
// Callers that keep the bytes beyond the buffer's lifetime must copy them.
func (c *Cursor) ReadBytes(n int) ([]byte, bool) {
	if n < 0 || c.Remaining() < n {
		return nil, false
	}
	b := c.data[c.off : c.off+n : c.off+n]
	c.off += n
	return b, true
}

// Advance skips n bytes. If fewer remain, the cursor moves to the end and
// Advance reports false.
func (c *Cursor) Advance(n int) bool {
	if n < 0 || c.Remaining() < n {
		c.off = len(c.data)
		return false
	}
	c.off += n
	return true
}
