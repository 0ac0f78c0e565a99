package classfile

import (
	"math"
	"strings"
	"testing"

	"github.com/daimatz/runevm/pkg/classfile/classfiletest"
	"github.com/daimatz/runevm/pkg/errors"
)

func TestParseConstantPool(t *testing.T) {
	data := []byte{
		1, 0, 5, 'H', 'e', 'l', 'l', 'o', // #1 Utf8 "Hello"
		7, 0, 1, // #2 Class #1
		8, 0, 1, // #3 String #1
		3, 0xFF, 0xFF, 0xFF, 0xFE, // #4 Integer -2
		5, 0, 0, 0, 1, 0, 0, 0, 0, // #5 Long 1<<32, #6 unusable
		4, 0x3F, 0xC0, 0, 0, // #7 Float 1.5
		6, 0x40, 0x09, 0x21, 0xFB, 0x54, 0x44, 0x2D, 0x18, // #8 Double pi, #9 unusable
		12, 0, 1, 0, 1, // #10 NameAndType
	}
	cur := NewCursor(data)
	pool, err := parseConstantPool(cur, 11)
	if err != nil {
		t.Fatalf("parseConstantPool: %v", err)
	}
	if cur.Remaining() != 0 {
		t.Errorf("%d bytes left unread", cur.Remaining())
	}
	if pool.Len() != 11 {
		t.Errorf("Len: got %d, want 11", pool.Len())
	}

	if s, err := pool.Utf8(1); err != nil || s != "Hello" {
		t.Errorf("Utf8(1): got %q, %v", s, err)
	}
	if s, err := pool.ClassName(2); err != nil || s != "Hello" {
		t.Errorf("ClassName(2): got %q, %v", s, err)
	}
	if s, err := pool.String(3); err != nil || s != "Hello" {
		t.Errorf("String(3): got %q, %v", s, err)
	}
	if v, err := pool.Integer(4); err != nil || v != -2 {
		t.Errorf("Integer(4): got %d, %v", v, err)
	}
	if v, err := pool.Long(5); err != nil || v != 1<<32 {
		t.Errorf("Long(5): got %d, %v", v, err)
	}
	if v, err := pool.Float(7); err != nil || v != 1.5 {
		t.Errorf("Float(7): got %v, %v", v, err)
	}
	if v, err := pool.Double(8); err != nil || v != math.Pi {
		t.Errorf("Double(8): got %v, %v", v, err)
	}
	if n, d, err := pool.NameAndType(10); err != nil || n != "Hello" || d != "Hello" {
		t.Errorf("NameAndType(10): got %q %q, %v", n, d, err)
	}

	// the slot after a Long or Double is not addressable
	for _, idx := range []uint16{6, 9} {
		if _, err := pool.Get(idx); !errors.Is(err, errors.ErrInvalidIndex) {
			t.Errorf("Get(%d): got %v, want ErrInvalidIndex", idx, err)
		}
	}
}

func TestParseConstantPoolEmpty(t *testing.T) {
	for _, count := range []uint16{0, 1} {
		pool, err := parseConstantPool(NewCursor(nil), count)
		if err != nil {
			t.Fatalf("count %d: %v", count, err)
		}
		if _, err := pool.Get(0); !errors.Is(err, errors.ErrInvalidIndex) {
			t.Errorf("count %d: Get(0) = %v, want ErrInvalidIndex", count, err)
		}
	}
}

func TestParseConstantPoolUnknownTag(t *testing.T) {
	data := []byte{
		1, 0, 1, 'a', // #1 Utf8
		2, 0xAA, 0xBB, // #2 tag 2 is undefined
	}
	cur := NewCursor(data)
	_, err := parseConstantPool(cur, 3)
	if !errors.Is(err, errors.ErrUnhandledConstant) {
		t.Fatalf("got %v, want ErrUnhandledConstant", err)
	}

	var e *errors.Error
	if !errors.As(err, &e) {
		t.Fatalf("not an *errors.Error: %T", err)
	}
	if e.Value != uint8(2) {
		t.Errorf("Value: got %v, want 2", e.Value)
	}
	if e.Offset != 4 {
		t.Errorf("Offset: got %d, want 4", e.Offset)
	}
	// nothing past the tag byte is consumed
	if cur.Offset() != 5 {
		t.Errorf("cursor at %d, want 5", cur.Offset())
	}
}

func TestParseConstantPoolTruncated(t *testing.T) {
	data := []byte{1, 0, 5, 'H', 'e'}
	_, err := parseConstantPool(NewCursor(data), 2)
	if !errors.Is(err, errors.ErrMissingField) {
		t.Fatalf("got %v, want ErrMissingField", err)
	}
}

func TestConstantPoolLookupErrors(t *testing.T) {
	b := classfiletest.New("Foo", "java/lang/Object")
	field := b.Fieldref("Foo", "x", "I")
	method := b.Methodref("Foo", "run", "()V")
	iface := b.InterfaceMethodref("java/lang/Runnable", "run", "()V")
	str := b.String("hi")
	cf, err := Parse(b.Bytes())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	pool := cf.ConstantPool

	tests := []struct {
		name string
		call func() error
	}{
		{"index 0", func() error { _, err := pool.Get(0); return err }},
		{"out of range", func() error { _, err := pool.Get(uint16(pool.Len())); return err }},
		{"utf8 on class", func() error { _, err := pool.Utf8(cf.ThisClass); return err }},
		{"class on string", func() error { _, err := pool.ClassName(str); return err }},
		{"fieldref on methodref", func() error { _, err := pool.FieldRef(method); return err }},
		{"methodref on fieldref", func() error { _, err := pool.MethodRef(field); return err }},
		{"methodref on interface", func() error { _, err := pool.MethodRef(iface); return err }},
		{"integer on string", func() error { _, err := pool.Integer(str); return err }},
		{"long on string", func() error { _, err := pool.Long(str); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, errors.ErrInvalidIndex) {
				t.Errorf("got %v, want ErrInvalidIndex", err)
			}
		})
	}
}

func TestConstantPoolMemberRefs(t *testing.T) {
	b := classfiletest.New("Foo", "java/lang/Object")
	field := b.Fieldref("java/lang/System", "out", "Ljava/io/PrintStream;")
	method := b.Methodref("java/io/PrintStream", "println", "(Ljava/lang/String;)V")
	iface := b.InterfaceMethodref("java/util/List", "size", "()I")
	cf, err := Parse(b.Bytes())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	pool := cf.ConstantPool

	ref, err := pool.FieldRef(field)
	if err != nil {
		t.Fatalf("FieldRef: %v", err)
	}
	if ref.String() != "java/lang/System.out:Ljava/io/PrintStream;" {
		t.Errorf("FieldRef: got %s", ref)
	}

	ref, err = pool.MethodRef(method)
	if err != nil {
		t.Fatalf("MethodRef: %v", err)
	}
	if ref.ClassName != "java/io/PrintStream" || ref.Name != "println" || ref.Descriptor != "(Ljava/lang/String;)V" {
		t.Errorf("MethodRef: got %+v", ref)
	}

	ref, err = pool.InterfaceMethodRef(iface)
	if err != nil {
		t.Fatalf("InterfaceMethodRef: %v", err)
	}
	if ref.ClassName != "java/util/List" || ref.Name != "size" {
		t.Errorf("InterfaceMethodRef: got %+v", ref)
	}

	if ref, err = pool.AnyMethodRef(iface); err != nil || ref.Name != "size" {
		t.Errorf("AnyMethodRef(interface): got %+v, %v", ref, err)
	}
}

func TestDecodeUtf8Lenient(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want string
	}{
		{"ascii", []byte("main"), "main"},
		{"multibyte", []byte("héllo"), "héllo"},
		{"modified utf8 nul", []byte{'a', 0xC0, 0x80, 'b'}, "a\x00b"},
		{"surrogate pair", []byte{'>', 0xED, 0xA0, 0xBD, 0xED, 0xB8, 0x80}, ">😀"},
		{"unpaired high surrogate", []byte{0xED, 0xA0, 0xBD, 'x'}, "�x"},
		{"reversed pair", []byte{0xED, 0xB8, 0x80, 0xED, 0xA0, 0xBD}, "��"},
		{"lone continuation", []byte{'x', 0x80}, "x�"},
		{"nul beside invalid byte", []byte{0xC0, 0x80, 0xFF}, "���"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decodeUtf8(tt.raw)
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
			if strings.ContainsRune(tt.want, '�') && !strings.ContainsRune(got, '�') {
				t.Error("ill-formed input was not replaced")
			}
		})
	}
}
