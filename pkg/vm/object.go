package vm

import (
	"fmt"
	"strings"

	"github.com/daimatz/runevm/pkg/classfile"
	"github.com/daimatz/runevm/pkg/native"
)

// JObject represents a JVM object instance.
type JObject struct {
	ClassName string
	Fields    map[string]Value
}

// NewObject creates an instance of className with no fields set.
func NewObject(className string) *JObject {
	return &JObject{ClassName: className, Fields: make(map[string]Value)}
}

// Field returns the named instance field, or the default value of
// descriptor if it was never written.
func (o *JObject) Field(name, descriptor string) Value {
	if v, ok := o.Fields[name]; ok {
		return v
	}
	return zeroValue(descriptor)
}

func (o *JObject) String() string {
	return fmt.Sprintf("%s@%p", strings.ReplaceAll(o.ClassName, "/", "."), o)
}

// JArray represents a JVM array. Type is the array's own descriptor,
// e.g. "[I" or "[Ljava/lang/String;".
type JArray struct {
	Type     string
	Elements []Value
}

// NewArray creates an array of length n filled with the default value of
// the component type.
func NewArray(descriptor string, n int) *JArray {
	elements := make([]Value, n)
	zero := zeroValue(descriptor[1:])
	for i := range elements {
		elements[i] = zero
	}
	return &JArray{Type: descriptor, Elements: elements}
}

// ComponentType returns the descriptor of the array's elements.
func (a *JArray) ComponentType() string {
	return a.Type[1:]
}

func (a *JArray) String() string {
	return fmt.Sprintf("%s@%p", a.Type, a)
}

// JClass is the value pushed by ldc for a Class constant.
type JClass struct {
	Name string
}

func (c *JClass) String() string {
	return "class " + strings.ReplaceAll(c.Name, "/", ".")
}

// newArrayDescriptors maps newarray type codes to array descriptors.
var newArrayDescriptors = map[uint8]string{
	classfile.ATBoolean: "[Z",
	classfile.ATChar:    "[C",
	classfile.ATFloat:   "[F",
	classfile.ATDouble:  "[D",
	classfile.ATByte:    "[B",
	classfile.ATShort:   "[S",
	classfile.ATInt:     "[I",
	classfile.ATLong:    "[J",
}

// arrayDescriptorOf returns the descriptor of an array whose component is
// the class or array named by a Class constant.
func arrayDescriptorOf(className string) string {
	if strings.HasPrefix(className, "[") {
		return "[" + className
	}
	return "[L" + className + ";"
}

// runtimeClass returns the class name of the object v refers to.
func runtimeClass(v Value) string {
	switch r := v.Ref.(type) {
	case *JObject:
		return r.ClassName
	case *JArray:
		return r.Type
	case string:
		return "java/lang/String"
	case *JClass:
		return "java/lang/Class"
	case *native.PrintStream:
		return native.PrintStreamClass
	case *native.StringBuilder:
		return native.StringBuilderClass
	case *native.NativeInteger:
		return native.IntegerClass
	case *native.NativeHashMap:
		return native.HashMapClass
	}
	return "java/lang/Object"
}
