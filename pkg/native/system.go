package native

import (
	"io"
)

// PrintStreamClass is the class name of PrintStream values.
const PrintStreamClass = "java/io/PrintStream"

// PrintStream represents a java.io.PrintStream.
type PrintStream struct {
	Writer io.Writer
}

// NewPrintStream creates a PrintStream writing to w.
func NewPrintStream(w io.Writer) *PrintStream {
	return &PrintStream{Writer: w}
}

// Print writes s without a line terminator.
func (ps *PrintStream) Print(s string) error {
	_, err := io.WriteString(ps.Writer, s)
	return err
}

// Println writes s followed by a newline.
func (ps *PrintStream) Println(s string) error {
	_, err := io.WriteString(ps.Writer, s+"\n")
	return err
}
