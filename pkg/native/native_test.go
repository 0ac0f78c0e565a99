package native

import (
	"bytes"
	"math"
	"testing"
)

func TestNativeHashMap(t *testing.T) {
	t.Run("put and get", func(t *testing.T) {
		hm := NewNativeHashMap()
		if old := hm.Put("key1", "value1"); old != nil {
			t.Errorf("Put on empty map returned %v", old)
		}
		if got := hm.Get("key1"); got != "value1" {
			t.Errorf("Get(key1): got %v, want %q", got, "value1")
		}
	})

	t.Run("get missing key returns nil", func(t *testing.T) {
		hm := NewNativeHashMap()
		if got := hm.Get("nonexistent"); got != nil {
			t.Errorf("Get(nonexistent): got %v, want nil", got)
		}
	})

	t.Run("overwrite value", func(t *testing.T) {
		hm := NewNativeHashMap()
		hm.Put("key", "old")
		if old := hm.Put("key", "new"); old != "old" {
			t.Errorf("Put returned %v, want %q", old, "old")
		}
		if got := hm.Get("key"); got != "new" {
			t.Errorf("Get(key) after overwrite: got %v, want %q", got, "new")
		}
		if hm.Size() != 1 {
			t.Errorf("Size: got %d, want 1", hm.Size())
		}
	})

	t.Run("boxed integer keys compare by value", func(t *testing.T) {
		hm := NewNativeHashMap()
		hm.Put(IntegerValueOf(7), "seven")
		if got := hm.Get(IntegerValueOf(7)); got != "seven" {
			t.Errorf("Get(7): got %v, want %q", got, "seven")
		}
		if !hm.ContainsKey(IntegerValueOf(7)) {
			t.Error("ContainsKey(7) = false")
		}
	})

	t.Run("remove", func(t *testing.T) {
		hm := NewNativeHashMap()
		hm.Put("a", "1")
		hm.Put("b", "2")
		if old := hm.Remove("a"); old != "1" {
			t.Errorf("Remove(a): got %v, want %q", old, "1")
		}
		if hm.ContainsKey("a") {
			t.Error("ContainsKey(a) after Remove")
		}
		if hm.Size() != 1 {
			t.Errorf("Size: got %d, want 1", hm.Size())
		}
	})
}

func TestNativeInteger(t *testing.T) {
	for _, v := range []int32{0, 42, -100, math.MaxInt32} {
		if got := IntegerIntValue(IntegerValueOf(v)); got != v {
			t.Errorf("intValue(valueOf(%d)): got %d", v, got)
		}
	}
	if s := IntegerValueOf(-5).String(); s != "-5" {
		t.Errorf("String(): got %q, want %q", s, "-5")
	}
}

func TestParseInt(t *testing.T) {
	tests := []struct {
		in   string
		want int32
		ok   bool
	}{
		{"123", 123, true},
		{"-123", -123, true},
		{"+7", 7, true},
		{"2147483647", math.MaxInt32, true},
		{"2147483648", 0, false},
		{"", 0, false},
		{"12a", 0, false},
		{" 1", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseInt(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseInt(%q): got %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFormatDouble(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{1, "1.0"},
		{-2.5, "-2.5"},
		{0, "0.0"},
		{math.Copysign(0, -1), "-0.0"},
		{0.001, "0.001"},
		{1234567, "1234567.0"},
		{1e7, "1.0E7"},
		{1.5e10, "1.5E10"},
		{1e-5, "1.0E-5"},
		{math.NaN(), "NaN"},
		{math.Inf(1), "Infinity"},
		{math.Inf(-1), "-Infinity"},
	}
	for _, tt := range tests {
		if got := FormatDouble(tt.in); got != tt.want {
			t.Errorf("FormatDouble(%v): got %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		in   float32
		want string
	}{
		{0.1, "0.1"},
		{3, "3.0"},
		{1e10, "1.0E10"},
	}
	for _, tt := range tests {
		if got := FormatFloat(tt.in); got != tt.want {
			t.Errorf("FormatFloat(%v): got %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestUTF16(t *testing.T) {
	tests := []struct {
		s    string
		want int
	}{
		{"", 0},
		{"abc", 3},
		{"héllo", 5},
		{"a😀", 3},
	}
	for _, tt := range tests {
		if got := UTF16Len(tt.s); got != tt.want {
			t.Errorf("UTF16Len(%q): got %d, want %d", tt.s, got, tt.want)
		}
	}

	if c, ok := CharAt("héllo", 1); !ok || FormatChar(c) != "é" {
		t.Errorf("CharAt(héllo, 1): got %q, %v", FormatChar(c), ok)
	}
	if c, ok := CharAt("a😀", 1); !ok || c != 0xD83D {
		t.Errorf("CharAt(a😀, 1): got %#x, %v; want high surrogate", c, ok)
	}
	for _, i := range []int{-1, 3} {
		if _, ok := CharAt("abc", i); ok {
			t.Errorf("CharAt(abc, %d) succeeded", i)
		}
	}
}

func TestStringBuilder(t *testing.T) {
	var sb StringBuilder
	sb.Append("n=").Append("5").Append("é")
	if sb.String() != "n=5é" {
		t.Errorf("String(): got %q", sb.String())
	}
	if sb.Len() != 4 {
		t.Errorf("Len(): got %d, want 4", sb.Len())
	}
}

func TestPrintStream(t *testing.T) {
	var buf bytes.Buffer
	ps := NewPrintStream(&buf)
	if err := ps.Print("a"); err != nil {
		t.Fatal(err)
	}
	if err := ps.Println("b"); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "ab\n" {
		t.Errorf("got %q, want %q", buf.String(), "ab\n")
	}
}
