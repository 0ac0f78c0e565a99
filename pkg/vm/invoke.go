package vm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/daimatz/runevm/pkg/classfile"
	"github.com/daimatz/runevm/pkg/errors"
	"github.com/daimatz/runevm/pkg/native"
)

// executeInvoke handles invokevirtual, invokespecial, invokestatic and
// invokeinterface. Host methods run in place; bytecode methods are handed
// back to the thread as a NextFrame result.
func (f *Frame) executeInvoke(env Env, op classfile.Opcode, index uint16) (Result, error) {
	var ref *classfile.MemberRef
	var err error
	if op == classfile.OpInvokeinterface {
		ref, err = f.pool().InterfaceMethodRef(index)
	} else {
		ref, err = f.pool().AnyMethodRef(index)
	}
	if err != nil {
		return Result{}, err
	}

	md, err := classfile.ParseMethodDescriptor(ref.Descriptor)
	if err != nil {
		return Result{}, err
	}
	argc := md.ArgCount()

	var receiver Value
	if op != classfile.OpInvokestatic {
		receiver, err = f.Peek(argc)
		if err != nil {
			return Result{}, err
		}
		if !receiver.IsReference() {
			return Result{}, errors.TypeMismatch(f.instrPC, "reference", receiver.Type.String())
		}
		if receiver.IsNull() {
			return Result{}, NewJavaExceptionf(NullPointerException, "cannot invoke %s on null", ref)
		}
		argc++
	}

	target, err := env.ResolveMethod(op, ref, receiver)
	if err != nil {
		return Result{}, err
	}

	if target.Host == nil {
		return Result{
			Status: StatusNextFrame,
			Invocation: &Invocation{
				Class:    target.Class,
				Method:   target.Method,
				ArgCount: argc,
			},
		}, nil
	}

	args, err := f.popN(argc)
	if err != nil {
		return Result{}, err
	}
	ret, err := target.Host(args)
	if err != nil {
		return Result{}, err
	}
	if md.IsVoid() {
		return running, nil
	}
	return running, f.Push(ret)
}

const (
	concatFactory       = "java/lang/invoke/StringConcatFactory"
	concatWithConstants = "makeConcatWithConstants"
	concatArgTag        = '\x01'
	concatConstantTag   = '\x02'
)

// executeInvokedynamic supports the call sites javac emits for string
// concatenation. Any other bootstrap method is unsupported.
func (f *Frame) executeInvokedynamic(index uint16) error {
	indy, name, desc, err := f.pool().InvokeDynamic(index)
	if err != nil {
		return err
	}
	bms := f.Class.BootstrapMethods()
	bi := int(indy.BootstrapMethodAttrIndex)
	if bi >= len(bms) {
		return errors.New(errors.PhaseRuntime, errors.KindInvalidIndex).
			Offset(f.instrPC).
			Value(indy.BootstrapMethodAttrIndex).
			Detail("bootstrap method index out of range, have %d", len(bms)).
			Build()
	}
	bm := bms[bi]
	_, handle, err := f.pool().MethodHandle(bm.MethodRef)
	if err != nil {
		return err
	}
	if handle.ClassName != concatFactory {
		return errors.New(errors.PhaseRuntime, errors.KindUnsupported).
			Offset(f.instrPC).
			Detail("invokedynamic %s with bootstrap %s", name, handle).
			Build()
	}

	md, err := classfile.ParseMethodDescriptor(desc)
	if err != nil {
		return err
	}
	args, err := f.popN(md.ArgCount())
	if err != nil {
		return err
	}
	for i, a := range args {
		want := typeOfField(md.Params[i])
		if a.Type != want && !(want == TypeRef && a.IsReference()) {
			return errors.TypeMismatch(f.instrPC, want.String(), a.Type.String())
		}
	}

	var sb strings.Builder
	if handle.Name != concatWithConstants {
		// makeConcat: plain concatenation of the arguments
		for i, a := range args {
			sb.WriteString(javaString(a, md.Params[i]))
		}
		return f.Push(RefValue(sb.String()))
	}

	if len(bm.BootstrapArguments) == 0 {
		return errors.InvalidData(errors.PhaseRuntime, f.instrPC, "%s without a recipe", concatWithConstants)
	}
	recipe, err := f.pool().String(bm.BootstrapArguments[0])
	if err != nil {
		return err
	}
	constants := bm.BootstrapArguments[1:]
	next := 0
	for _, r := range recipe {
		switch r {
		case concatArgTag:
			if next >= len(args) {
				return errors.InvalidData(errors.PhaseRuntime, f.instrPC, "concat recipe %q needs more than %d arguments", recipe, len(args))
			}
			sb.WriteString(javaString(args[next], md.Params[next]))
			next++
		case concatConstantTag:
			if len(constants) == 0 {
				return errors.InvalidData(errors.PhaseRuntime, f.instrPC, "concat recipe %q runs out of constants", recipe)
			}
			s, err := f.constantString(constants[0])
			if err != nil {
				return err
			}
			sb.WriteString(s)
			constants = constants[1:]
		default:
			sb.WriteRune(r)
		}
	}
	return f.Push(RefValue(sb.String()))
}

// constantString renders a loadable constant the way String.valueOf would.
func (f *Frame) constantString(index uint16) (string, error) {
	c, err := f.pool().Get(index)
	if err != nil {
		return "", err
	}
	switch c := c.(type) {
	case *classfile.ConstantString:
		return f.pool().Utf8(c.StringIndex)
	case *classfile.ConstantInteger:
		return strconv.FormatInt(int64(c.Value), 10), nil
	case *classfile.ConstantLong:
		return strconv.FormatInt(c.Value, 10), nil
	case *classfile.ConstantFloat:
		return native.FormatFloat(c.Value), nil
	case *classfile.ConstantDouble:
		return native.FormatDouble(c.Value), nil
	}
	return "", errors.InvalidIndex(errors.PhaseRuntime, index, "constant %s is not a concat constant", c.Tag())
}

// javaString converts v, declared with the given field descriptor, to the
// text String.valueOf produces.
func javaString(v Value, descriptor string) string {
	switch descriptor {
	case "Z":
		return strconv.FormatBool(v.Int != 0)
	case "C":
		return native.FormatChar(uint16(v.Int))
	}
	switch v.Type {
	case TypeInt:
		return strconv.FormatInt(int64(v.Int), 10)
	case TypeLong:
		return strconv.FormatInt(v.Long, 10)
	case TypeFloat:
		return native.FormatFloat(v.Float)
	case TypeDouble:
		return native.FormatDouble(v.Double)
	case TypeNull:
		return "null"
	}
	switch r := v.Ref.(type) {
	case nil:
		return "null"
	case string:
		return r
	case fmt.Stringer:
		return r.String()
	}
	return fmt.Sprint(v.Ref)
}
