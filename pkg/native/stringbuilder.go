package native

import "strings"

// StringBuilderClass is the class name of StringBuilder values.
const StringBuilderClass = "java/lang/StringBuilder"

// StringBuilder represents a java.lang.StringBuilder.
type StringBuilder struct {
	buf strings.Builder
}

// Append adds s to the end of the builder and returns the builder.
func (sb *StringBuilder) Append(s string) *StringBuilder {
	sb.buf.WriteString(s)
	return sb
}

// Len returns the length in UTF-16 code units, as StringBuilder.length does.
func (sb *StringBuilder) Len() int {
	return UTF16Len(sb.buf.String())
}

func (sb *StringBuilder) String() string {
	return sb.buf.String()
}
