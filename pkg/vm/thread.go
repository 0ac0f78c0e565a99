package vm

import (
	"go.uber.org/zap"

	"github.com/daimatz/runevm/pkg/classfile"
	"github.com/daimatz/runevm/pkg/errors"
)

// DefaultMaxFrameDepth is the maximum number of nested method calls.
const DefaultMaxFrameDepth = 1024

// Thread owns a call stack of frames, most recent last.
type Thread struct {
	env   Env
	stack []*Frame

	// MaxDepth caps the call stack; 0 means DefaultMaxFrameDepth.
	MaxDepth int
	// MaxSteps caps the number of executed instructions; 0 means no limit.
	MaxSteps int
	// Trace logs every instruction at debug level.
	Trace bool

	steps int
}

// NewThread creates a thread whose stack holds one frame for method with
// args in its leading local slots.
func NewThread(env Env, class *classfile.ClassFile, method *classfile.MethodInfo, args ...Value) (*Thread, error) {
	frame := NewFrame(class, method)
	if err := frame.setArgs(args); err != nil {
		return nil, err
	}
	return &Thread{env: env, stack: []*Frame{frame}}, nil
}

// Depth returns the number of frames on the call stack.
func (t *Thread) Depth() int {
	return len(t.stack)
}

// Steps returns the number of instructions executed so far.
func (t *Thread) Steps() int {
	return t.steps
}

func (t *Thread) top() *Frame {
	return t.stack[len(t.stack)-1]
}

func (t *Thread) maxDepth() int {
	if t.MaxDepth > 0 {
		return t.MaxDepth
	}
	return DefaultMaxFrameDepth
}

// Run executes until the call stack is empty and returns the entry
// method's return value. Any error, including an uncaught Java exception,
// aborts the run and clears the stack.
func (t *Thread) Run() (Value, bool, error) {
	for len(t.stack) > 0 {
		frame := t.top()
		res, err := t.execute(frame)
		if err != nil {
			if err = t.dispatch(err); err == nil {
				continue
			}
			t.stack = nil
			return Value{}, false, err
		}

		switch res.Status {
		case StatusNextFrame:
			if err := t.invoke(frame, res.Invocation); err != nil {
				if err = t.dispatch(err); err == nil {
					continue
				}
				t.stack = nil
				return Value{}, false, err
			}

		case StatusFinished:
			t.stack = t.stack[:len(t.stack)-1]
			Logger().Debug("pop frame",
				zap.String("method", methodName(frame)),
				zap.Int("depth", len(t.stack)))
			if len(t.stack) == 0 {
				return res.Return, res.HasReturn, nil
			}
			if res.HasReturn {
				caller := t.top()
				if err := caller.Push(res.Return); err != nil {
					t.stack = nil
					return Value{}, false, err
				}
			}
		}
	}
	return Value{}, false, nil
}

// execute steps frame until it finishes or needs a new frame.
func (t *Thread) execute(frame *Frame) (Result, error) {
	for {
		if t.MaxSteps > 0 && t.steps >= t.MaxSteps {
			return Result{}, errors.New(errors.PhaseRuntime, errors.KindStepLimit).
				Offset(frame.PC).
				Detail("executed %d instructions", t.steps).
				Build()
		}
		if t.Trace {
			t.trace(frame)
		}
		t.steps++
		res, err := frame.Step(t.env)
		if err != nil || res.Status != StatusRunning {
			return res, err
		}
	}
}

func (t *Thread) trace(frame *Frame) {
	i, ok := frame.Code.IndexOf(frame.PC)
	if !ok {
		return
	}
	Logger().Debug("exec",
		zap.String("method", methodName(frame)),
		zap.Int("pc", frame.PC),
		zap.Stringer("op", frame.Code.Instructions[i].Opcode),
		zap.Int("stack", frame.StackDepth()))
}

// invoke pops the arguments off the caller's stack and pushes the callee
// frame.
func (t *Thread) invoke(caller *Frame, inv *Invocation) error {
	if len(t.stack) >= t.maxDepth() {
		return errors.New(errors.PhaseRuntime, errors.KindStackOverflow).
			Offset(caller.instrPC).
			Detail("frame depth exceeded %d", t.maxDepth()).
			Build()
	}
	args, err := caller.popN(inv.ArgCount)
	if err != nil {
		return err
	}
	callee := NewFrame(inv.Class, inv.Method)
	if err := callee.setArgs(args); err != nil {
		return err
	}
	t.stack = append(t.stack, callee)
	Logger().Debug("push frame",
		zap.String("method", methodName(callee)),
		zap.Int("depth", len(t.stack)))
	return nil
}

// dispatch unwinds the stack to the nearest handler for a Java exception
// and returns nil. Other errors, exceptions nothing catches and failures
// while matching a handler are returned with the stack untouched.
func (t *Thread) dispatch(err error) error {
	var exc *JavaException
	if !errors.As(err, &exc) {
		return err
	}
	for i := len(t.stack) - 1; i >= 0; i-- {
		frame := t.stack[i]
		pc, ok, herr := frame.handlerFor(t.env, exc.Object)
		if herr != nil {
			return herr
		}
		if !ok {
			continue
		}
		Logger().Debug("exception caught",
			zap.String("exception", exc.Object.ClassName),
			zap.String("method", methodName(frame)),
			zap.Int("handler", pc))
		t.stack = t.stack[:i+1]
		frame.clearStack()
		frame.PC = pc
		return frame.Push(RefValue(exc.Object))
	}
	return err
}

func methodName(f *Frame) string {
	if f.Method == nil {
		return "?"
	}
	name := f.Method.Name + f.Method.Descriptor
	if f.Class != nil {
		if cn, err := f.Class.ClassName(); err == nil {
			return cn + "." + name
		}
	}
	return name
}
