package vm

import "fmt"

// ValueType represents the type of a Value on the stack or in local variables.
type ValueType int

const (
	// TypeNone marks a local slot that was never written.
	TypeNone ValueType = iota
	TypeInt
	TypeLong
	TypeFloat
	TypeDouble
	TypeRef
	TypeNull
	// TypeTop fills the upper slot of a long or double local.
	TypeTop
)

var valueTypeNames = [...]string{
	TypeNone:   "none",
	TypeInt:    "int",
	TypeLong:   "long",
	TypeFloat:  "float",
	TypeDouble: "double",
	TypeRef:    "reference",
	TypeNull:   "null",
	TypeTop:    "top",
}

func (t ValueType) String() string {
	if t >= 0 && int(t) < len(valueTypeNames) {
		return valueTypeNames[t]
	}
	return fmt.Sprintf("ValueType(%d)", int(t))
}

// Value represents a value on the operand stack or in local variables.
// boolean, byte, char and short are carried as TypeInt.
type Value struct {
	Ref    any
	Long   int64
	Double float64
	Type   ValueType
	Int    int32
	Float  float32
}

// IntValue creates an integer Value.
func IntValue(v int32) Value {
	return Value{Type: TypeInt, Int: v}
}

// LongValue creates a long Value.
func LongValue(v int64) Value {
	return Value{Type: TypeLong, Long: v}
}

// FloatValue creates a float Value.
func FloatValue(v float32) Value {
	return Value{Type: TypeFloat, Float: v}
}

// DoubleValue creates a double Value.
func DoubleValue(v float64) Value {
	return Value{Type: TypeDouble, Double: v}
}

// RefValue creates a reference Value. A nil ref is the null reference.
func RefValue(ref any) Value {
	if ref == nil {
		return NullValue()
	}
	return Value{Type: TypeRef, Ref: ref}
}

// NullValue creates a null reference Value.
func NullValue() Value {
	return Value{Type: TypeNull}
}

func topValue() Value {
	return Value{Type: TypeTop}
}

// IsNull reports whether v is the null reference.
func (v Value) IsNull() bool {
	return v.Type == TypeNull || (v.Type == TypeRef && v.Ref == nil)
}

// IsReference reports whether v is a reference or null.
func (v Value) IsReference() bool {
	return v.Type == TypeRef || v.Type == TypeNull
}

// Size returns the number of operand stack or local slots v occupies.
func (v Value) Size() int {
	if v.Type == TypeLong || v.Type == TypeDouble {
		return 2
	}
	return 1
}

func (v Value) String() string {
	switch v.Type {
	case TypeInt:
		return fmt.Sprintf("int(%d)", v.Int)
	case TypeLong:
		return fmt.Sprintf("long(%d)", v.Long)
	case TypeFloat:
		return fmt.Sprintf("float(%g)", v.Float)
	case TypeDouble:
		return fmt.Sprintf("double(%g)", v.Double)
	case TypeRef:
		return fmt.Sprintf("ref(%T)", v.Ref)
	}
	return v.Type.String()
}

// zeroValue returns the default value of a field of the given descriptor.
func zeroValue(descriptor string) Value {
	if descriptor == "" {
		return NullValue()
	}
	switch descriptor[0] {
	case 'B', 'C', 'I', 'S', 'Z':
		return IntValue(0)
	case 'J':
		return LongValue(0)
	case 'F':
		return FloatValue(0)
	case 'D':
		return DoubleValue(0)
	}
	return NullValue()
}

// typeOfDescriptor returns the ValueType a value of the given field
// descriptor is carried as.
func typeOfDescriptor(descriptor string) ValueType {
	return zeroValue(descriptor).Type
}
