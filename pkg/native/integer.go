package native

import "strconv"

// IntegerClass is the class name of boxed integers.
const IntegerClass = "java/lang/Integer"

// NativeInteger represents a java.lang.Integer.
type NativeInteger struct {
	Value int32
}

// IntegerValueOf creates a NativeInteger (boxing).
func IntegerValueOf(v int32) *NativeInteger {
	return &NativeInteger{Value: v}
}

// IntegerIntValue returns the int32 value of a NativeInteger (unboxing).
func IntegerIntValue(ni *NativeInteger) int32 {
	return ni.Value
}

func (ni *NativeInteger) String() string {
	return strconv.FormatInt(int64(ni.Value), 10)
}

// ParseInt parses s the way Integer.parseInt does.
func ParseInt(s string) (int32, bool) {
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, false
	}
	return int32(v), true
}
