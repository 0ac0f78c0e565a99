package vm

import (
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/daimatz/runevm/pkg/classfile"
	"github.com/daimatz/runevm/pkg/errors"
	"github.com/daimatz/runevm/pkg/native"
)

const (
	objectClass    = "java/lang/Object"
	stringClass    = "java/lang/String"
	throwableClass = "java/lang/Throwable"
	mathClass      = "java/lang/Math"
)

var primitiveDescriptors = []string{"I", "J", "F", "D", "Z", "C"}

// printDescriptors are the parameter types of PrintStream.print and println.
var printDescriptors = append(primitiveDescriptors[:len(primitiveDescriptors):len(primitiveDescriptors)],
	"Ljava/lang/String;",
	"Ljava/lang/Object;",
)

// appendDescriptors are the parameter types of StringBuilder.append.
var appendDescriptors = append(printDescriptors[:len(printDescriptors):len(printDescriptors)],
	"Ljava/lang/CharSequence;",
)

func noop(args []Value) (Value, error) { return Value{}, nil }

// hostState returns the Go value behind a receiver of a builtin class.
// Instances of user classes extending the builtin, and builtins created
// without a factory, have none.
func hostState[T any](v Value, class string) (T, error) {
	state, ok := v.Ref.(T)
	if !ok {
		return state, errors.Unsupported(errors.PhaseRuntime,
			"%s receiver is a %s; subclassing builtin %s is not supported", class, runtimeClass(v), class)
	}
	return state, nil
}

func boolValue(b bool) Value {
	if b {
		return IntValue(1)
	}
	return IntValue(0)
}

// registerNatives installs the host methods backing the builtin JDK
// classes.
func (vm *VM) registerNatives() {
	vm.factories[native.StringBuilderClass] = func() any { return &native.StringBuilder{} }
	vm.factories[native.HashMapClass] = func() any { return native.NewNativeHashMap() }

	vm.registerObject()
	vm.registerPrintStream()
	vm.registerThrowable()
	vm.registerString()
	vm.registerStringBuilder()
	vm.registerInteger()
	vm.registerHashMap()
	vm.registerMath()
}

func (vm *VM) registerObject() {
	vm.RegisterHost(objectClass, "<init>", "()V", noop)
	vm.RegisterHost(objectClass, "toString", "()Ljava/lang/String;", func(args []Value) (Value, error) {
		return RefValue(javaString(args[0], "Ljava/lang/Object;")), nil
	})
	vm.RegisterHost(objectClass, "equals", "(Ljava/lang/Object;)Z", func(args []Value) (Value, error) {
		return boolValue(args[0].Ref == args[1].Ref), nil
	})
}

func (vm *VM) registerPrintStream() {
	const class = native.PrintStreamClass
	vm.RegisterHost(class, "println", "()V", func(args []Value) (Value, error) {
		ps, err := hostState[*native.PrintStream](args[0], class)
		if err != nil {
			return Value{}, err
		}
		return Value{}, ps.Println("")
	})
	for _, desc := range printDescriptors {
		vm.RegisterHost(class, "print", "("+desc+")V", func(args []Value) (Value, error) {
			ps, err := hostState[*native.PrintStream](args[0], class)
			if err != nil {
				return Value{}, err
			}
			s, err := vm.stringOf(args[1], desc)
			if err != nil {
				return Value{}, err
			}
			return Value{}, ps.Print(s)
		})
		vm.RegisterHost(class, "println", "("+desc+")V", func(args []Value) (Value, error) {
			ps, err := hostState[*native.PrintStream](args[0], class)
			if err != nil {
				return Value{}, err
			}
			s, err := vm.stringOf(args[1], desc)
			if err != nil {
				return Value{}, err
			}
			return Value{}, ps.Println(s)
		})
	}
}

func (vm *VM) registerThrowable() {
	vm.RegisterHost(throwableClass, "<init>", "()V", noop)
	vm.RegisterHost(throwableClass, "<init>", "(Ljava/lang/String;)V", func(args []Value) (Value, error) {
		if obj, ok := args[0].Ref.(*JObject); ok {
			obj.Fields[messageField] = args[1]
		}
		return Value{}, nil
	})
	vm.RegisterHost(throwableClass, "getMessage", "()Ljava/lang/String;", func(args []Value) (Value, error) {
		if obj, ok := args[0].Ref.(*JObject); ok {
			return obj.Field(messageField, "Ljava/lang/String;"), nil
		}
		return NullValue(), nil
	})
	vm.RegisterHost(throwableClass, "toString", "()Ljava/lang/String;", func(args []Value) (Value, error) {
		obj, ok := args[0].Ref.(*JObject)
		if !ok {
			return RefValue(javaString(args[0], "Ljava/lang/Object;")), nil
		}
		s := strings.ReplaceAll(obj.ClassName, "/", ".")
		if msg, ok := obj.Fields[messageField].Ref.(string); ok {
			s += ": " + msg
		}
		return RefValue(s), nil
	})
}

func (vm *VM) registerString() {
	str := func(v Value) string {
		s, _ := v.Ref.(string)
		return s
	}
	vm.RegisterHost(stringClass, "length", "()I", func(args []Value) (Value, error) {
		return IntValue(int32(native.UTF16Len(str(args[0])))), nil
	})
	vm.RegisterHost(stringClass, "isEmpty", "()Z", func(args []Value) (Value, error) {
		return boolValue(str(args[0]) == ""), nil
	})
	vm.RegisterHost(stringClass, "charAt", "(I)C", func(args []Value) (Value, error) {
		c, ok := native.CharAt(str(args[0]), int(args[1].Int))
		if !ok {
			return Value{}, NewJavaExceptionf("java/lang/StringIndexOutOfBoundsException",
				"index %d, length %d", args[1].Int, native.UTF16Len(str(args[0])))
		}
		return IntValue(int32(c)), nil
	})
	vm.RegisterHost(stringClass, "equals", "(Ljava/lang/Object;)Z", func(args []Value) (Value, error) {
		other, ok := args[1].Ref.(string)
		return boolValue(ok && other == str(args[0])), nil
	})
	vm.RegisterHost(stringClass, "hashCode", "()I", func(args []Value) (Value, error) {
		var h int32
		for _, c := range utf16.Encode([]rune(str(args[0]))) {
			h = 31*h + int32(c)
		}
		return IntValue(h), nil
	})
	vm.RegisterHost(stringClass, "concat", "(Ljava/lang/String;)Ljava/lang/String;", func(args []Value) (Value, error) {
		return RefValue(str(args[0]) + str(args[1])), nil
	})
	vm.RegisterHost(stringClass, "toString", "()Ljava/lang/String;", func(args []Value) (Value, error) {
		return args[0], nil
	})
	for _, desc := range primitiveDescriptors {
		vm.RegisterHost(stringClass, "valueOf", "("+desc+")Ljava/lang/String;", func(args []Value) (Value, error) {
			return RefValue(javaString(args[0], desc)), nil
		})
	}
	vm.RegisterHost(stringClass, "valueOf", "(Ljava/lang/Object;)Ljava/lang/String;", func(args []Value) (Value, error) {
		s, err := vm.stringOf(args[0], "Ljava/lang/Object;")
		return RefValue(s), err
	})
}

func (vm *VM) registerStringBuilder() {
	const class = native.StringBuilderClass
	builder := func(v Value) (*native.StringBuilder, error) {
		return hostState[*native.StringBuilder](v, class)
	}
	vm.RegisterHost(class, "<init>", "()V", noop)
	vm.RegisterHost(class, "<init>", "(Ljava/lang/String;)V", func(args []Value) (Value, error) {
		sb, err := builder(args[0])
		if err != nil {
			return Value{}, err
		}
		sb.Append(javaString(args[1], "Ljava/lang/String;"))
		return Value{}, nil
	})
	for _, desc := range appendDescriptors {
		vm.RegisterHost(class, "append", "("+desc+")Ljava/lang/StringBuilder;", func(args []Value) (Value, error) {
			sb, err := builder(args[0])
			if err != nil {
				return Value{}, err
			}
			s, err := vm.stringOf(args[1], desc)
			if err != nil {
				return Value{}, err
			}
			sb.Append(s)
			return args[0], nil
		})
	}
	vm.RegisterHost(class, "toString", "()Ljava/lang/String;", func(args []Value) (Value, error) {
		sb, err := builder(args[0])
		if err != nil {
			return Value{}, err
		}
		return RefValue(sb.String()), nil
	})
	vm.RegisterHost(class, "length", "()I", func(args []Value) (Value, error) {
		sb, err := builder(args[0])
		if err != nil {
			return Value{}, err
		}
		return IntValue(int32(sb.Len())), nil
	})
}

func (vm *VM) registerInteger() {
	const class = native.IntegerClass
	boxed := func(v Value) int32 {
		if ni, ok := v.Ref.(*native.NativeInteger); ok {
			return native.IntegerIntValue(ni)
		}
		return 0
	}
	vm.RegisterHost(class, "valueOf", "(I)Ljava/lang/Integer;", func(args []Value) (Value, error) {
		return RefValue(native.IntegerValueOf(args[0].Int)), nil
	})
	vm.RegisterHost(class, "intValue", "()I", func(args []Value) (Value, error) {
		return IntValue(boxed(args[0])), nil
	})
	vm.RegisterHost(class, "parseInt", "(Ljava/lang/String;)I", func(args []Value) (Value, error) {
		s, _ := args[0].Ref.(string)
		v, ok := native.ParseInt(s)
		if !ok {
			return Value{}, NewJavaExceptionf("java/lang/NumberFormatException", "For input string: %q", s)
		}
		return IntValue(v), nil
	})
	vm.RegisterHost(class, "toString", "(I)Ljava/lang/String;", func(args []Value) (Value, error) {
		return RefValue(strconv.FormatInt(int64(args[0].Int), 10)), nil
	})
	vm.RegisterHost(class, "toString", "()Ljava/lang/String;", func(args []Value) (Value, error) {
		return RefValue(strconv.FormatInt(int64(boxed(args[0])), 10)), nil
	})
	vm.RegisterHost(class, "equals", "(Ljava/lang/Object;)Z", func(args []Value) (Value, error) {
		other, ok := args[1].Ref.(*native.NativeInteger)
		return boolValue(ok && other.Value == boxed(args[0])), nil
	})
	vm.RegisterHost(class, "hashCode", "()I", func(args []Value) (Value, error) {
		return IntValue(boxed(args[0])), nil
	})
}

func (vm *VM) registerHashMap() {
	const class = native.HashMapClass
	// method wraps a host method that needs the receiver's map.
	method := func(name, desc string, fn func(m *native.NativeHashMap, args []Value) Value) {
		vm.RegisterHost(class, name, desc, func(args []Value) (Value, error) {
			m, err := hostState[*native.NativeHashMap](args[0], class)
			if err != nil {
				return Value{}, err
			}
			return fn(m, args), nil
		})
	}
	vm.RegisterHost(class, "<init>", "()V", noop)
	method("get", "(Ljava/lang/Object;)Ljava/lang/Object;", func(m *native.NativeHashMap, args []Value) Value {
		return RefValue(m.Get(args[1].Ref))
	})
	method("put", "(Ljava/lang/Object;Ljava/lang/Object;)Ljava/lang/Object;", func(m *native.NativeHashMap, args []Value) Value {
		return RefValue(m.Put(args[1].Ref, args[2].Ref))
	})
	method("containsKey", "(Ljava/lang/Object;)Z", func(m *native.NativeHashMap, args []Value) Value {
		return boolValue(m.ContainsKey(args[1].Ref))
	})
	method("remove", "(Ljava/lang/Object;)Ljava/lang/Object;", func(m *native.NativeHashMap, args []Value) Value {
		return RefValue(m.Remove(args[1].Ref))
	})
	method("size", "()I", func(m *native.NativeHashMap, args []Value) Value {
		return IntValue(int32(m.Size()))
	})
}

func (vm *VM) registerMath() {
	vm.RegisterHost(mathClass, "max", "(II)I", func(args []Value) (Value, error) {
		return IntValue(max(args[0].Int, args[1].Int)), nil
	})
	vm.RegisterHost(mathClass, "min", "(II)I", func(args []Value) (Value, error) {
		return IntValue(min(args[0].Int, args[1].Int)), nil
	})
	vm.RegisterHost(mathClass, "abs", "(I)I", func(args []Value) (Value, error) {
		if args[0].Int < 0 {
			return IntValue(-args[0].Int), nil
		}
		return args[0], nil
	})
}

// stringOf converts v to text as String.valueOf would. Objects go through
// their toString, which may be bytecode.
func (vm *VM) stringOf(v Value, descriptor string) (string, error) {
	if _, ok := v.Ref.(*JObject); !ok {
		return javaString(v, descriptor), nil
	}
	ref := &classfile.MemberRef{ClassName: runtimeClass(v), Name: "toString", Descriptor: "()Ljava/lang/String;"}
	target, err := vm.ResolveMethod(classfile.OpInvokevirtual, ref, v)
	if err != nil {
		return "", err
	}
	var ret Value
	if target.Host != nil {
		ret, err = target.Host([]Value{v})
	} else {
		ret, _, err = vm.run(target.Class, target.Method, []Value{v})
	}
	if err != nil {
		return "", err
	}
	return javaString(ret, "Ljava/lang/String;"), nil
}
