package native

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf16"
)

// FormatDouble formats d the way Double.toString does.
func FormatDouble(d float64) string {
	return formatFloating(d, 64)
}

// FormatFloat formats f the way Float.toString does.
func FormatFloat(f float32) string {
	return formatFloating(float64(f), 32)
}

func formatFloating(f float64, bits int) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		if math.Signbit(f) {
			return "-0.0"
		}
		return "0.0"
	}

	if abs := math.Abs(f); abs >= 1e-3 && abs < 1e7 {
		s := strconv.FormatFloat(f, 'f', -1, bits)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return s
	}

	// "1.5E+10" -> "1.5E10", "1E-05" -> "1.0E-5"
	mant, exp, _ := strings.Cut(strconv.FormatFloat(f, 'E', -1, bits), "E")
	if !strings.Contains(mant, ".") {
		mant += ".0"
	}
	e, _ := strconv.Atoi(exp)
	return mant + "E" + strconv.Itoa(e)
}

// FormatChar returns the string of a single UTF-16 code unit.
func FormatChar(c uint16) string {
	return string(utf16.Decode([]uint16{c}))
}

// UTF16Len returns the length of s in UTF-16 code units.
func UTF16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

// CharAt returns the UTF-16 code unit at index i of s.
func CharAt(s string, i int) (uint16, bool) {
	units := utf16.Encode([]rune(s))
	if i < 0 || i >= len(units) {
		return 0, false
	}
	return units[i], true
}
