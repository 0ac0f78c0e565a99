package classfile

import "testing"

func TestCursorReads(t *testing.T) {
	c := NewCursor([]byte{
		0xCA,
		0xFE, 0xBA,
		0x00, 0x00, 0x00, 0x34,
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
	})

	u8, ok := c.ReadU8()
	if !ok || u8 != 0xCA {
		t.Fatalf("ReadU8: got 0x%X, %v", u8, ok)
	}
	u16, ok := c.ReadU16()
	if !ok || u16 != 0xFEBA {
		t.Fatalf("ReadU16: got 0x%X, %v", u16, ok)
	}
	u32, ok := c.ReadU32()
	if !ok || u32 != 52 {
		t.Fatalf("ReadU32: got %d, %v", u32, ok)
	}
	u64, ok := c.ReadU64()
	if !ok || u64 != 0x0102030405060708 {
		t.Fatalf("ReadU64: got 0x%X, %v", u64, ok)
	}
	if c.Remaining() != 0 {
		t.Errorf("Remaining: got %d, want 0", c.Remaining())
	}
}

func TestCursorShortReads(t *testing.T) {
	tests := []struct {
		name string
		read func(c *Cursor) bool
	}{
		{"u8", func(c *Cursor) bool { _, ok := c.ReadU8(); return ok }},
		{"u16", func(c *Cursor) bool { _, ok := c.ReadU16(); return ok }},
		{"u32", func(c *Cursor) bool { _, ok := c.ReadU32(); return ok }},
		{"u64", func(c *Cursor) bool { _, ok := c.ReadU64(); return ok }},
		{"bytes", func(c *Cursor) bool { _, ok := c.ReadBytes(2); return ok }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var data []byte
			if tt.name != "u8" {
				data = []byte{0x01}
			}
			c := NewCursor(data)
			if tt.read(c) {
				t.Fatal("expected short read to fail")
			}
			if c.Offset() != 0 {
				t.Errorf("failed read moved the cursor to %d", c.Offset())
			}
		})
	}
}

func TestCursorReadBytesBorrows(t *testing.T) {
	data := []byte{1, 2, 3, 4}
	c := NewCursor(data)
	c.ReadU8()

	b, ok := c.ReadBytes(2)
	if !ok {
		t.Fatal("ReadBytes failed")
	}
	data[1] = 9
	if b[0] != 9 {
		t.Error("ReadBytes copied the buffer")
	}
	if cap(b) != 2 {
		t.Errorf("cap: got %d, want 2", cap(b))
	}
	if c.Offset() != 3 {
		t.Errorf("Offset: got %d, want 3", c.Offset())
	}
}

func TestCursorAdvance(t *testing.T) {
	c := NewCursor(make([]byte, 10))
	if !c.Advance(4) {
		t.Fatal("Advance(4) failed")
	}
	if c.Offset() != 4 {
		t.Errorf("Offset: got %d, want 4", c.Offset())
	}
	if !c.Advance(0) {
		t.Error("Advance(0) failed")
	}
	if c.Advance(7) {
		t.Error("Advance past the end succeeded")
	}
	if c.Remaining() != 0 {
		t.Errorf("Remaining after overrun: got %d, want 0", c.Remaining())
	}
}
