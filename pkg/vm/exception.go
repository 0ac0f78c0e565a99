package vm

import "fmt"

// Class names of the exceptions the interpreter raises itself.
const (
	ArithmeticException        = "java/lang/ArithmeticException"
	NullPointerException       = "java/lang/NullPointerException"
	ArrayIndexOutOfBounds      = "java/lang/ArrayIndexOutOfBoundsException"
	NegativeArraySizeException = "java/lang/NegativeArraySizeException"
	ClassCastException         = "java/lang/ClassCastException"
)

// messageField holds Throwable's detail message on exception objects.
const messageField = "detailMessage"

// builtinSupers gives the superclass of JDK classes that have no class
// file on the class path.
var builtinSupers = map[string]string{
	"java/lang/Throwable":                        "java/lang/Object",
	"java/lang/Exception":                        "java/lang/Throwable",
	"java/lang/Error":                            "java/lang/Throwable",
	"java/lang/RuntimeException":                 "java/lang/Exception",
	"java/lang/ArithmeticException":              "java/lang/RuntimeException",
	"java/lang/NullPointerException":             "java/lang/RuntimeException",
	"java/lang/ClassCastException":               "java/lang/RuntimeException",
	"java/lang/ArrayStoreException":              "java/lang/RuntimeException",
	"java/lang/NegativeArraySizeException":       "java/lang/RuntimeException",
	"java/lang/IllegalArgumentException":         "java/lang/RuntimeException",
	"java/lang/IllegalStateException":            "java/lang/RuntimeException",
	"java/lang/UnsupportedOperationException":    "java/lang/RuntimeException",
	"java/lang/IndexOutOfBoundsException":        "java/lang/RuntimeException",
	"java/lang/ArrayIndexOutOfBoundsException":   "java/lang/IndexOutOfBoundsException",
	"java/lang/StringIndexOutOfBoundsException":  "java/lang/IndexOutOfBoundsException",
	"java/lang/NumberFormatException":            "java/lang/IllegalArgumentException",
	"java/lang/String":                           "java/lang/Object",
	"java/lang/StringBuilder":                    "java/lang/Object",
	"java/lang/Number":                           "java/lang/Object",
	"java/lang/Integer":                          "java/lang/Number",
	"java/lang/Class":                            "java/lang/Object",
	"java/lang/System":                           "java/lang/Object",
	"java/io/PrintStream":                        "java/lang/Object",
	"java/util/HashMap":                          "java/lang/Object",
	"java/lang/Math":                             "java/lang/Object",
}

// builtinInterfaces lists interfaces implemented by JDK classes without a
// class file.
var builtinInterfaces = map[string][]string{
	"java/lang/String":        {"java/lang/CharSequence", "java/lang/Comparable", "java/io/Serializable"},
	"java/lang/StringBuilder": {"java/lang/CharSequence"},
	"java/lang/Integer":       {"java/lang/Comparable"},
	"java/lang/Throwable":     {"java/io/Serializable"},
	"java/util/HashMap":       {"java/util/Map"},
}

// JavaException represents a JVM exception being thrown.
type JavaException struct {
	Object *JObject
}

func (e *JavaException) Error() string {
	if msg := e.Message(); msg != "" {
		return fmt.Sprintf("JavaException: %s: %s", e.Object.ClassName, msg)
	}
	return fmt.Sprintf("JavaException: %s", e.Object.ClassName)
}

// Message returns the exception's detail message, or "".
func (e *JavaException) Message() string {
	if s, ok := e.Object.Fields[messageField].Ref.(string); ok {
		return s
	}
	return ""
}

func NewJavaException(className string) *JavaException {
	return &JavaException{Object: NewObject(className)}
}

// NewJavaExceptionf creates an exception with a formatted detail message.
func NewJavaExceptionf(className, format string, args ...any) *JavaException {
	e := NewJavaException(className)
	e.Object.Fields[messageField] = RefValue(fmt.Sprintf(format, args...))
	return e
}
