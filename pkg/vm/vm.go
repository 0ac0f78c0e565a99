package vm

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/daimatz/runevm/pkg/classfile"
	"github.com/daimatz/runevm/pkg/errors"
	"github.com/daimatz/runevm/pkg/native"
)

// Default entry point run by Execute.
const (
	DefaultEntryMethod     = "main"
	DefaultEntryDescriptor = "([Ljava/lang/String;)V"
)

// VM is the virtual machine that executes Java bytecode. It implements Env
// for the threads it starts.
type VM struct {
	Loader ClassLoader
	Stdout io.Writer
	Stderr io.Writer

	EntryMethod     string
	EntryDescriptor string
	// MaxFrameDepth and MaxSteps are applied to every thread; see Thread.
	MaxFrameDepth int
	MaxSteps      int
	Trace         bool

	classes     map[string]*classfile.ClassFile
	statics     map[string]map[string]Value
	initialized map[string]bool
	hosts       map[string]HostMethod
	factories   map[string]func() any
}

// NewVM creates a new VM loading classes through loader.
func NewVM(loader ClassLoader) *VM {
	vm := &VM{
		Loader:          loader,
		Stdout:          os.Stdout,
		Stderr:          os.Stderr,
		EntryMethod:     DefaultEntryMethod,
		EntryDescriptor: DefaultEntryDescriptor,
		classes:         make(map[string]*classfile.ClassFile),
		statics:         make(map[string]map[string]Value),
		initialized:     make(map[string]bool),
		hosts:           make(map[string]HostMethod),
		factories:       make(map[string]func() any),
	}
	vm.registerNatives()
	return vm
}

func hostKey(className, name, descriptor string) string {
	return className + "." + name + ":" + descriptor
}

// RegisterHost makes fn the implementation of className.name:descriptor.
// Host methods take precedence over class files.
func (vm *VM) RegisterHost(className, name, descriptor string, fn HostMethod) {
	vm.hosts[hostKey(className, name, descriptor)] = fn
}

// Execute finds and executes the entry method of the class.
func (vm *VM) Execute(className string, args ...string) error {
	cf, err := vm.LoadClass(className)
	if err != nil {
		return err
	}
	method := cf.FindMethod(vm.EntryMethod, vm.EntryDescriptor)
	if method == nil {
		return errors.NotFound(errors.PhaseRuntime, "method", hostKey(className, vm.EntryMethod, vm.EntryDescriptor))
	}
	if method.Code == nil {
		return errors.Unsupported(errors.PhaseRuntime, "%s.%s has no Code attribute", className, vm.EntryMethod)
	}
	if err := vm.initClass(className); err != nil {
		return err
	}

	var callArgs []Value
	if md, err := classfile.ParseMethodDescriptor(vm.EntryDescriptor); err == nil && md.ArgCount() == 1 && md.Params[0] == "[Ljava/lang/String;" {
		arr := NewArray("[Ljava/lang/String;", len(args))
		for i, a := range args {
			arr.Elements[i] = RefValue(a)
		}
		callArgs = append(callArgs, RefValue(arr))
	}
	_, _, err = vm.run(cf, method, callArgs)
	return err
}

// Invoke runs a static method and returns its value, if any.
func (vm *VM) Invoke(className, name, descriptor string, args ...Value) (Value, bool, error) {
	cf, err := vm.LoadClass(className)
	if err != nil {
		return Value{}, false, err
	}
	method := cf.FindMethod(name, descriptor)
	if method == nil {
		return Value{}, false, errors.NotFound(errors.PhaseRuntime, "method", hostKey(className, name, descriptor))
	}
	if !method.AccessFlags.IsStatic() {
		return Value{}, false, errors.Unsupported(errors.PhaseRuntime, "Invoke of instance method %s", name)
	}
	if err := vm.initClass(className); err != nil {
		return Value{}, false, err
	}
	return vm.run(cf, method, args)
}

func (vm *VM) run(cf *classfile.ClassFile, method *classfile.MethodInfo, args []Value) (Value, bool, error) {
	t, err := NewThread(vm, cf, method, args...)
	if err != nil {
		return Value{}, false, err
	}
	t.MaxDepth = vm.MaxFrameDepth
	t.MaxSteps = vm.MaxSteps
	t.Trace = vm.Trace
	return t.Run()
}

// LoadClass returns the named class, loading it on first use.
func (vm *VM) LoadClass(name string) (*classfile.ClassFile, error) {
	if cf, ok := vm.classes[name]; ok {
		return cf, nil
	}
	if vm.Loader == nil {
		return nil, errors.NotFound(errors.PhaseLoad, "class", name)
	}
	cf, err := vm.Loader.LoadClass(name)
	if err != nil {
		return nil, err
	}
	vm.classes[name] = cf
	Logger().Debug("class loaded",
		zap.String("class", name),
		zap.Uint16("major", cf.MajorVersion),
		zap.Int("methods", len(cf.Methods)))
	return cf, nil
}

// isBuiltin reports whether name is emulated by host methods. Class files
// for builtin classes are never loaded, even when the class path has them.
func isBuiltin(name string) bool {
	if name == "java/lang/Object" {
		return true
	}
	_, ok := builtinSupers[name]
	return ok
}

// findClass is LoadClass for lookups that fall back to builtins: a builtin
// or a class that is not found yields nil without error.
func (vm *VM) findClass(name string) (*classfile.ClassFile, error) {
	if isBuiltin(name) {
		return nil, nil
	}
	cf, err := vm.LoadClass(name)
	if errors.Is(err, errors.ErrNotFound) {
		return nil, nil
	}
	return cf, err
}

// superOf returns the superclass of name, or "" for java/lang/Object.
func (vm *VM) superOf(name string) (string, error) {
	if name == "java/lang/Object" {
		return "", nil
	}
	if super, ok := builtinSupers[name]; ok {
		return super, nil
	}
	cf, err := vm.findClass(name)
	if err != nil {
		return "", err
	}
	if cf == nil {
		return "java/lang/Object", nil
	}
	return cf.SuperClassName()
}

// initClass sets up static storage and runs <clinit> on first use. The
// class counts as initialized before <clinit> runs so that recursive use
// from the initializer does not re-enter it.
func (vm *VM) initClass(name string) error {
	if vm.initialized[name] {
		return nil
	}
	vm.initialized[name] = true

	cf, err := vm.findClass(name)
	if err != nil || cf == nil {
		return err
	}
	super, err := cf.SuperClassName()
	if err != nil {
		return err
	}
	if super != "" {
		if err := vm.initClass(super); err != nil {
			return err
		}
	}

	statics := make(map[string]Value)
	vm.statics[name] = statics
	for i := range cf.Fields {
		fi := &cf.Fields[i]
		if !fi.AccessFlags.IsStatic() {
			continue
		}
		v, err := constantValue(cf, fi)
		if err != nil {
			return fmt.Errorf("initializing %s.%s: %w", name, fi.Name, err)
		}
		statics[fi.Name] = v
	}

	if clinit := cf.FindMethod("<clinit>", "()V"); clinit != nil && clinit.Code != nil {
		Logger().Debug("run <clinit>", zap.String("class", name))
		if _, _, err := vm.run(cf, clinit, nil); err != nil {
			return fmt.Errorf("initializing %s: %w", name, err)
		}
	}
	return nil
}

// constantValue returns a static field's ConstantValue, or its default.
func constantValue(cf *classfile.ClassFile, fi *classfile.FieldInfo) (Value, error) {
	cv := fi.ConstantValue()
	if cv == nil {
		return zeroValue(fi.Descriptor), nil
	}
	pool := cf.ConstantPool
	switch typeOfField(fi.Descriptor) {
	case TypeInt:
		v, err := pool.Integer(cv.ValueIndex)
		return IntValue(v), err
	case TypeLong:
		v, err := pool.Long(cv.ValueIndex)
		return LongValue(v), err
	case TypeFloat:
		v, err := pool.Float(cv.ValueIndex)
		return FloatValue(v), err
	case TypeDouble:
		v, err := pool.Double(cv.ValueIndex)
		return DoubleValue(v), err
	}
	s, err := pool.String(cv.ValueIndex)
	return RefValue(s), err
}

// staticOwner finds the class in name's superclass chain that declares
// the static field.
func (vm *VM) staticOwner(name, field string) (string, error) {
	for c := name; c != ""; {
		if err := vm.initClass(c); err != nil {
			return "", err
		}
		if _, ok := vm.statics[c][field]; ok {
			return c, nil
		}
		var err error
		if c, err = vm.superOf(c); err != nil {
			return "", err
		}
	}
	return "", errors.NotFound(errors.PhaseRuntime, "static field", hostKey(name, field, ""))
}

// GetStatic implements Env.
func (vm *VM) GetStatic(ref *classfile.MemberRef) (Value, error) {
	if ref.ClassName == "java/lang/System" {
		switch ref.Name {
		case "out":
			return RefValue(native.NewPrintStream(vm.Stdout)), nil
		case "err":
			return RefValue(native.NewPrintStream(vm.Stderr)), nil
		}
	}
	owner, err := vm.staticOwner(ref.ClassName, ref.Name)
	if err != nil {
		return Value{}, err
	}
	return vm.statics[owner][ref.Name], nil
}

// PutStatic implements Env.
func (vm *VM) PutStatic(ref *classfile.MemberRef, v Value) error {
	owner, err := vm.staticOwner(ref.ClassName, ref.Name)
	if err != nil {
		return err
	}
	vm.statics[owner][ref.Name] = v
	return nil
}

// ResolveMethod implements Env. Virtual and interface calls start the
// lookup at the receiver's class; static and special calls at the
// referenced class. Host methods shadow bytecode in each class visited.
func (vm *VM) ResolveMethod(op classfile.Opcode, ref *classfile.MemberRef, receiver Value) (*Target, error) {
	start := ref.ClassName
	if (op == classfile.OpInvokevirtual || op == classfile.OpInvokeinterface) && !receiver.IsNull() {
		start = runtimeClass(receiver)
		if arr, ok := receiver.Ref.(*JArray); ok && arr != nil {
			start = "java/lang/Object"
		}
	}
	if op == classfile.OpInvokestatic {
		if err := vm.initClass(ref.ClassName); err != nil {
			return nil, err
		}
	}

	for c := start; c != ""; {
		if h, ok := vm.hosts[hostKey(c, ref.Name, ref.Descriptor)]; ok {
			return &Target{Host: h}, nil
		}
		cf, err := vm.findClass(c)
		if err != nil {
			return nil, err
		}
		if cf != nil {
			if m := cf.FindMethod(ref.Name, ref.Descriptor); m != nil {
				if m.Code == nil {
					return nil, errors.Unsupported(errors.PhaseRuntime, "%s has no Code attribute (abstract or native)", ref)
				}
				return &Target{Class: cf, Method: m}, nil
			}
		}
		if c, err = vm.superOf(c); err != nil {
			return nil, err
		}
	}
	return nil, errors.NotFound(errors.PhaseRuntime, "method", ref.String())
}

// NewObject implements Env.
func (vm *VM) NewObject(className string) (Value, error) {
	if factory, ok := vm.factories[className]; ok {
		return RefValue(factory()), nil
	}
	if isBuiltin(className) {
		return RefValue(NewObject(className)), nil
	}
	if _, err := vm.LoadClass(className); err != nil {
		return Value{}, err
	}
	if err := vm.initClass(className); err != nil {
		return Value{}, err
	}
	return RefValue(NewObject(className)), nil
}

// InstanceOf implements Env.
func (vm *VM) InstanceOf(v Value, className string) (bool, error) {
	if className == "java/lang/Object" {
		return true, nil
	}
	if arr, ok := v.Ref.(*JArray); ok {
		return arrayAssignable(arr.Type, className), nil
	}
	return vm.isSubclass(runtimeClass(v), className)
}

// isSubclass reports whether class is target or inherits from it through
// superclasses or interfaces. A class in the hierarchy that fails to load
// or resolve is an error.
func (vm *VM) isSubclass(class, target string) (bool, error) {
	seen := make(map[string]bool)
	var walk func(c string) (bool, error)
	walk = func(c string) (bool, error) {
		if c == "" || seen[c] {
			return false, nil
		}
		seen[c] = true
		if c == target {
			return true, nil
		}
		for _, iface := range builtinInterfaces[c] {
			if ok, err := walk(iface); ok || err != nil {
				return ok, err
			}
		}
		cf, err := vm.findClass(c)
		if err != nil {
			return false, err
		}
		if cf != nil {
			names, err := cf.InterfaceNames()
			if err != nil {
				return false, err
			}
			for _, iface := range names {
				if ok, err := walk(iface); ok || err != nil {
					return ok, err
				}
			}
		}
		super, err := vm.superOf(c)
		if err != nil {
			return false, err
		}
		return walk(super)
	}
	return walk(class)
}

// arrayAssignable covers the array cases of checkcast and instanceof.
func arrayAssignable(arrayType, target string) bool {
	switch target {
	case arrayType, "java/lang/Cloneable", "java/io/Serializable":
		return true
	}
	return false
}
