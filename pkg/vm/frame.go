package vm

import (
	"github.com/daimatz/runevm/pkg/classfile"
	"github.com/daimatz/runevm/pkg/errors"
)

// Status is the outcome of executing frame instructions.
type Status int

const (
	// StatusRunning means the frame has more instructions to execute.
	StatusRunning Status = iota
	// StatusFinished means the method returned or ran off the end of its
	// code.
	StatusFinished
	// StatusNextFrame means an invoke instruction needs a new frame for a
	// bytecode method. The caller's pc already points past the invoke.
	StatusNextFrame
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusFinished:
		return "finished"
	case StatusNextFrame:
		return "next_frame"
	}
	return "unknown"
}

// Invocation describes the activation a NextFrame result asks for.
type Invocation struct {
	Class  *classfile.ClassFile
	Method *classfile.MethodInfo
	// ArgCount is the number of operand stack values the callee takes,
	// including the receiver of instance methods.
	ArgCount int
}

// Result is returned by Step and Execute.
type Result struct {
	Invocation *Invocation
	// Return is valid when HasReturn is set on a finished frame.
	Return    Value
	Status    Status
	HasReturn bool
}

// Frame represents a stack frame for method execution.
type Frame struct {
	Class  *classfile.ClassFile
	Method *classfile.MethodInfo
	Code   *classfile.Code
	// PC is the byte offset of the next instruction.
	PC        int
	LocalVars []Value

	stack    []Value
	depth    int // in slots; long and double count twice
	maxStack int

	// instrPC is the offset of the instruction being (or last) executed.
	instrPC int
	// next is where PC moves when the current instruction completes.
	next int
}

var emptyCode = classfile.NewCode(nil, 0)

// NewFrame creates a frame for method, a member of class. A method without
// code produces a frame that finishes immediately.
func NewFrame(class *classfile.ClassFile, method *classfile.MethodInfo) *Frame {
	f := &Frame{Class: class, Method: method, Code: emptyCode}
	if method != nil && method.Code != nil {
		f.LocalVars = make([]Value, method.Code.MaxLocals)
		f.maxStack = int(method.Code.MaxStack)
		f.stack = make([]Value, 0, method.Code.MaxStack)
		if method.Code.Code != nil {
			f.Code = method.Code.Code
		}
	}
	return f
}

func (f *Frame) pool() *classfile.ConstantPool {
	return f.Class.ConstantPool
}

// Push pushes a value onto the operand stack.
func (f *Frame) Push(v Value) error {
	if f.depth+v.Size() > f.maxStack {
		return errors.New(errors.PhaseRuntime, errors.KindStackOverflow).
			Offset(f.instrPC).
			Detail("operand stack exceeds max_stack %d", f.maxStack).
			Build()
	}
	f.stack = append(f.stack, v)
	f.depth += v.Size()
	return nil
}

// Pop pops a value from the operand stack.
func (f *Frame) Pop() (Value, error) {
	if len(f.stack) == 0 {
		return Value{}, errors.New(errors.PhaseRuntime, errors.KindStackUnderflow).Offset(f.instrPC).Build()
	}
	v := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	f.depth -= v.Size()
	return v, nil
}

// Peek returns the value n entries below the top of the stack without
// removing it; Peek(0) is the top.
func (f *Frame) Peek(n int) (Value, error) {
	if n < 0 || n >= len(f.stack) {
		return Value{}, errors.New(errors.PhaseRuntime, errors.KindStackUnderflow).Offset(f.instrPC).Build()
	}
	return f.stack[len(f.stack)-1-n], nil
}

// Stack returns a copy of the operand stack, bottom first.
func (f *Frame) Stack() []Value {
	return append([]Value(nil), f.stack...)
}

// StackDepth returns the number of values on the operand stack.
func (f *Frame) StackDepth() int {
	return len(f.stack)
}

func (f *Frame) clearStack() {
	f.stack = f.stack[:0]
	f.depth = 0
}

func (f *Frame) popType(want ValueType) (Value, error) {
	v, err := f.Pop()
	if err != nil {
		return Value{}, err
	}
	if v.Type != want {
		return Value{}, errors.TypeMismatch(f.instrPC, want.String(), v.Type.String())
	}
	return v, nil
}

func (f *Frame) popInt() (int32, error) {
	v, err := f.popType(TypeInt)
	return v.Int, err
}

func (f *Frame) popLong() (int64, error) {
	v, err := f.popType(TypeLong)
	return v.Long, err
}

func (f *Frame) popFloat() (float32, error) {
	v, err := f.popType(TypeFloat)
	return v.Float, err
}

func (f *Frame) popDouble() (float64, error) {
	v, err := f.popType(TypeDouble)
	return v.Double, err
}

// popRef pops a reference or null.
func (f *Frame) popRef() (Value, error) {
	v, err := f.Pop()
	if err != nil {
		return Value{}, err
	}
	if !v.IsReference() {
		return Value{}, errors.TypeMismatch(f.instrPC, "reference", v.Type.String())
	}
	return v, nil
}

// popN pops n values and returns them in push order.
func (f *Frame) popN(n int) ([]Value, error) {
	if n > len(f.stack) {
		return nil, errors.New(errors.PhaseRuntime, errors.KindStackUnderflow).
			Offset(f.instrPC).
			Detail("need %d operands, have %d", n, len(f.stack)).
			Build()
	}
	vals := make([]Value, n)
	for i := n - 1; i >= 0; i-- {
		vals[i], _ = f.Pop()
	}
	return vals, nil
}

func (f *Frame) localOutOfBounds(index int) error {
	return errors.New(errors.PhaseRuntime, errors.KindOutOfBounds).
		Offset(f.instrPC).
		Value(index).
		Detail("local variable index out of range, max_locals %d", len(f.LocalVars)).
		Build()
}

// GetLocal returns the value at the given local variable index.
func (f *Frame) GetLocal(index int) (Value, error) {
	if index < 0 || index >= len(f.LocalVars) {
		return Value{}, f.localOutOfBounds(index)
	}
	return f.LocalVars[index], nil
}

// SetLocal sets the value at the given local variable index. Long and
// double values also claim the following slot.
func (f *Frame) SetLocal(index int, v Value) error {
	if index < 0 || index+v.Size() > len(f.LocalVars) {
		return f.localOutOfBounds(index)
	}
	// overwriting half of a long/double invalidates the other half
	if old := f.LocalVars[index]; old.Size() == 2 && index+1 < len(f.LocalVars) {
		f.LocalVars[index+1] = Value{}
	}
	if index > 0 && f.LocalVars[index-1].Size() == 2 {
		f.LocalVars[index-1] = Value{}
	}
	f.LocalVars[index] = v
	if v.Size() == 2 {
		f.LocalVars[index+1] = topValue()
	}
	return nil
}

// localType loads a local and checks its kind. Reference loads accept null.
func (f *Frame) localType(index int, want ValueType) (Value, error) {
	v, err := f.GetLocal(index)
	if err != nil {
		return Value{}, err
	}
	ok := v.Type == want
	if want == TypeRef {
		ok = v.IsReference()
	}
	if !ok {
		return Value{}, errors.TypeMismatch(f.instrPC, want.String(), v.Type.String())
	}
	return v, nil
}

// setArgs places invocation arguments into the leading local slots.
func (f *Frame) setArgs(args []Value) error {
	slot := 0
	for _, a := range args {
		if err := f.SetLocal(slot, a); err != nil {
			return err
		}
		slot += a.Size()
	}
	return nil
}

// Step executes one instruction.
func (f *Frame) Step(env Env) (Result, error) {
	if f.PC >= f.Code.Length {
		return Result{Status: StatusFinished}, nil
	}
	i, ok := f.Code.IndexOf(f.PC)
	if !ok {
		return Result{}, errors.New(errors.PhaseRuntime, errors.KindInvalidData).
			Offset(f.PC).
			Detail("pc is not at an instruction boundary").
			Build()
	}
	in := &f.Code.Instructions[i]
	f.instrPC = in.Offset
	f.next = f.Code.NextPC(i)

	res, err := f.execute(env, in)
	if err != nil {
		return Result{}, err
	}
	if res.Status == StatusFinished {
		return res, nil
	}
	f.PC = f.next
	if res.Status == StatusRunning && f.PC >= f.Code.Length {
		return Result{Status: StatusFinished}, nil
	}
	return res, nil
}

// Execute steps until the frame finishes or needs a new frame.
func (f *Frame) Execute(env Env) (Result, error) {
	for {
		res, err := f.Step(env)
		if err != nil || res.Status != StatusRunning {
			return res, err
		}
	}
}

// handlerFor returns the pc of the handler covering the current
// instruction for the thrown object exc. A catch type that does not
// resolve is an error.
func (f *Frame) handlerFor(env Env, exc *JObject) (int, bool, error) {
	if f.Method == nil || f.Method.Code == nil {
		return 0, false, nil
	}
	for _, h := range f.Method.Code.ExceptionHandlers {
		if !h.Covers(f.instrPC) {
			continue
		}
		if h.CatchType == 0 {
			return int(h.HandlerPC), true, nil
		}
		name, err := f.pool().ClassName(h.CatchType)
		if err != nil {
			return 0, false, err
		}
		ok, err := env.InstanceOf(RefValue(exc), name)
		if err != nil {
			return 0, false, err
		}
		if ok {
			return int(h.HandlerPC), true, nil
		}
	}
	return 0, false, nil
}
