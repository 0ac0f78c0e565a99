package vm

import "github.com/daimatz/runevm/pkg/classfile"

// HostMethod implements a method in Go. args holds the receiver first for
// instance methods. The returned value is ignored for void methods.
type HostMethod func(args []Value) (Value, error)

// Target is a resolved invocation target: either a bytecode method or a
// host method.
type Target struct {
	Class  *classfile.ClassFile
	Method *classfile.MethodInfo
	Host   HostMethod
}

// Env is what a frame needs from its surroundings to execute instructions
// that reach beyond the frame: static state, method resolution and the
// object model.
type Env interface {
	GetStatic(ref *classfile.MemberRef) (Value, error)
	PutStatic(ref *classfile.MemberRef, v Value) error
	// ResolveMethod finds the target of an invoke instruction. receiver is
	// the zero Value for invokestatic.
	ResolveMethod(op classfile.Opcode, ref *classfile.MemberRef, receiver Value) (*Target, error)
	NewObject(className string) (Value, error)
	// InstanceOf reports whether the non-null v is assignable to className.
	InstanceOf(v Value, className string) (bool, error)
}
