package classfile

import (
	"fmt"

	"github.com/daimatz/runevm/pkg/errors"
)

// Attribute names with a structural parser.
const (
	AttrCode             = "Code"
	AttrConstantValue    = "ConstantValue"
	AttrBootstrapMethods = "BootstrapMethods"
	AttrSourceFile       = "SourceFile"
)

// Attribute is implemented by every decoded attribute.
type Attribute interface {
	Name() string
}

// CodeAttribute represents the Code attribute of a method.
type CodeAttribute struct {
	MaxStack          uint16
	MaxLocals         uint16
	Code              *Code
	ExceptionHandlers []ExceptionHandler
	Attributes        []Attribute
}

func (a *CodeAttribute) Name() string { return AttrCode }

// ExceptionHandler represents an entry in the exception table.
// CatchType 0 catches everything.
type ExceptionHandler struct {
	StartPC   uint16
	EndPC     uint16
	HandlerPC uint16
	CatchType uint16
}

// Covers reports whether pc is in [StartPC, EndPC).
func (h ExceptionHandler) Covers(pc int) bool {
	return pc >= int(h.StartPC) && pc < int(h.EndPC)
}

type ConstantValueAttribute struct {
	ValueIndex uint16
}

func (a *ConstantValueAttribute) Name() string { return AttrConstantValue }

type SourceFileAttribute struct {
	SourceFileIndex uint16
	SourceFile      string
}

func (a *SourceFileAttribute) Name() string { return AttrSourceFile }

// BootstrapMethod is one entry of the BootstrapMethods attribute.
type BootstrapMethod struct {
	MethodRef          uint16
	BootstrapArguments []uint16
}

type BootstrapMethodsAttribute struct {
	Methods []BootstrapMethod
}

func (a *BootstrapMethodsAttribute) Name() string { return AttrBootstrapMethods }

// UnhandledAttribute marks an attribute that was skipped. Only the name is
// kept.
type UnhandledAttribute struct {
	AttrName string
}

func (a *UnhandledAttribute) Name() string { return a.AttrName }

type attributeParser func(cur *Cursor, pool *ConstantPool) (Attribute, error)

var attributeParsers map[string]attributeParser

func init() {
	attributeParsers = map[string]attributeParser{
		AttrCode:             parseCodeAttribute,
		AttrConstantValue:    parseConstantValue,
		AttrBootstrapMethods: parseBootstrapMethods,
		AttrSourceFile:       parseSourceFile,
	}
}

// readAttributes reads a u16 count followed by that many attributes.
func readAttributes(cur *Cursor, pool *ConstantPool) ([]Attribute, error) {
	count, err := readU16(cur, "attributes count")
	if err != nil {
		return nil, err
	}

	attrs := make([]Attribute, 0, count)
	for i := uint16(0); i < count; i++ {
		attr, err := readAttribute(cur, pool)
		if err != nil {
			return nil, fmt.Errorf("reading attribute %d: %w", i, err)
		}
		attrs = append(attrs, attr)
	}
	return attrs, nil
}

func readAttribute(cur *Cursor, pool *ConstantPool) (Attribute, error) {
	nameOff := cur.Offset()
	nameIndex, err := readU16(cur, "attribute name index")
	if err != nil {
		return nil, err
	}
	length, err := readU32(cur, "attribute length")
	if err != nil {
		return nil, err
	}

	name, err := pool.Utf8(nameIndex)
	if err != nil {
		return nil, errors.New(errors.PhaseLoad, errors.KindInvalidIndex).
			Offset(nameOff).
			Value(nameIndex).
			Detail("resolving attribute name").
			Cause(err).
			Build()
	}

	parse, ok := attributeParsers[name]
	if !ok {
		if !cur.Advance(int(length)) {
			return nil, errors.MissingField(errors.PhaseLoad, cur.Offset(), "skipping "+name+" attribute payload")
		}
		return &UnhandledAttribute{AttrName: name}, nil
	}

	start := cur.Offset()
	payload, ok := cur.ReadBytes(int(length))
	if !ok {
		return nil, errors.MissingField(errors.PhaseLoad, start, "reading "+name+" attribute payload")
	}

	sub := NewCursor(payload)
	attr, err := parse(sub, pool)
	if err != nil {
		return nil, rebase(err, start, name)
	}
	if sub.Remaining() != 0 {
		return nil, errors.InvalidData(errors.PhaseLoad, start+sub.Offset(),
			"%s attribute declares %d bytes but its contents end after %d", name, length, sub.Offset())
	}
	return attr, nil
}

// rebase converts offsets relative to an attribute payload back into class
// file offsets.
func rebase(err error, base int, name string) error {
	var e *errors.Error
	if errors.As(err, &e) && e.Phase == errors.PhaseLoad && e.Offset >= 0 {
		e.Offset += base
	}
	return fmt.Errorf("parsing %s attribute: %w", name, err)
}

func parseCodeAttribute(cur *Cursor, pool *ConstantPool) (Attribute, error) {
	maxStack, err := readU16(cur, "max_stack")
	if err != nil {
		return nil, err
	}
	maxLocals, err := readU16(cur, "max_locals")
	if err != nil {
		return nil, err
	}
	codeLength, err := readU32(cur, "code_length")
	if err != nil {
		return nil, err
	}
	codeOff := cur.Offset()
	raw, ok := cur.ReadBytes(int(codeLength))
	if !ok {
		return nil, errors.MissingField(errors.PhaseLoad, codeOff, "reading code")
	}

	insns, err := DecodeInstructions(raw)
	if err != nil {
		return nil, err
	}

	exLen, err := readU16(cur, "exception table length")
	if err != nil {
		return nil, err
	}
	handlers := make([]ExceptionHandler, exLen)
	for i := range handlers {
		var h ExceptionHandler
		if h.StartPC, err = readU16(cur, "exception start_pc"); err != nil {
			return nil, err
		}
		if h.EndPC, err = readU16(cur, "exception end_pc"); err != nil {
			return nil, err
		}
		if h.HandlerPC, err = readU16(cur, "exception handler_pc"); err != nil {
			return nil, err
		}
		if h.CatchType, err = readU16(cur, "exception catch_type"); err != nil {
			return nil, err
		}
		handlers[i] = h
	}

	nested, err := readAttributes(cur, pool)
	if err != nil {
		return nil, err
	}

	return &CodeAttribute{
		MaxStack:          maxStack,
		MaxLocals:         maxLocals,
		Code:              NewCode(insns, int(codeLength)),
		ExceptionHandlers: handlers,
		Attributes:        nested,
	}, nil
}

func parseConstantValue(cur *Cursor, _ *ConstantPool) (Attribute, error) {
	idx, err := readU16(cur, "constantvalue_index")
	if err != nil {
		return nil, err
	}
	return &ConstantValueAttribute{ValueIndex: idx}, nil
}

func parseSourceFile(cur *Cursor, pool *ConstantPool) (Attribute, error) {
	idx, err := readU16(cur, "sourcefile_index")
	if err != nil {
		return nil, err
	}
	name, err := pool.Utf8(idx)
	if err != nil {
		return nil, err
	}
	return &SourceFileAttribute{SourceFileIndex: idx, SourceFile: name}, nil
}

func parseBootstrapMethods(cur *Cursor, _ *ConstantPool) (Attribute, error) {
	numMethods, err := readU16(cur, "num_bootstrap_methods")
	if err != nil {
		return nil, err
	}
	methods := make([]BootstrapMethod, numMethods)
	for i := range methods {
		methodRef, err := readU16(cur, "bootstrap_method_ref")
		if err != nil {
			return nil, err
		}
		numArgs, err := readU16(cur, "num_bootstrap_arguments")
		if err != nil {
			return nil, err
		}
		args := make([]uint16, numArgs)
		for j := range args {
			if args[j], err = readU16(cur, "bootstrap argument"); err != nil {
				return nil, err
			}
		}
		methods[i] = BootstrapMethod{MethodRef: methodRef, BootstrapArguments: args}
	}
	return &BootstrapMethodsAttribute{Methods: methods}, nil
}

func readU16(cur *Cursor, what string) (uint16, error) {
	off := cur.Offset()
	v, ok := cur.ReadU16()
	if !ok {
		return 0, errors.MissingField(errors.PhaseLoad, off, "reading "+what)
	}
	return v, nil
}

func readU32(cur *Cursor, what string) (uint32, error) {
	off := cur.Offset()
	v, ok := cur.ReadU32()
	if !ok {
		return 0, errors.MissingField(errors.PhaseLoad, off, "reading "+what)
	}
	return v, nil
}
