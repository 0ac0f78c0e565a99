package classfile

import (
	"fmt"
	"io"
	"os"

	"github.com/daimatz/runevm/pkg/errors"
)

// ParseFile reads and parses a .class file from the given path.
func ParseFile(path string) (*ClassFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// ParseReader reads r to the end and parses the result.
func ParseReader(r io.Reader) (*ClassFile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a complete class file. It either returns a fully populated
// ClassFile or an error; data is not retained.
func Parse(data []byte) (*ClassFile, error) {
	cur := NewCursor(data)
	cf := &ClassFile{}

	// Magic number
	magic, ok := cur.ReadU32()
	if !ok {
		return nil, errors.MissingField(errors.PhaseLoad, 0, "reading magic number")
	}
	if magic != classMagic {
		return nil, errors.New(errors.PhaseLoad, errors.KindInvalidMagic).
			Offset(0).
			Detail("0x%08X (expected 0xCAFEBABE)", magic).
			Build()
	}

	var err error

	// Version
	if cf.MinorVersion, err = readU16(cur, "minor version"); err != nil {
		return nil, err
	}
	if cf.MajorVersion, err = readU16(cur, "major version"); err != nil {
		return nil, err
	}

	// Constant pool
	cpCount, err := readU16(cur, "constant pool count")
	if err != nil {
		return nil, err
	}
	cf.ConstantPool, err = parseConstantPool(cur, cpCount)
	if err != nil {
		return nil, fmt.Errorf("parsing constant pool: %w", err)
	}
	pool := cf.ConstantPool

	// Access flags, this_class, super_class
	flags, err := readU16(cur, "access flags")
	if err != nil {
		return nil, err
	}
	cf.AccessFlags = ClassAccessFlags(flags)
	if cf.ThisClass, err = readU16(cur, "this_class"); err != nil {
		return nil, err
	}
	if cf.SuperClass, err = readU16(cur, "super_class"); err != nil {
		return nil, err
	}

	// Interfaces
	interfacesCount, err := readU16(cur, "interfaces count")
	if err != nil {
		return nil, err
	}
	cf.Interfaces = make([]uint16, interfacesCount)
	for i := range cf.Interfaces {
		if cf.Interfaces[i], err = readU16(cur, fmt.Sprintf("interface %d", i)); err != nil {
			return nil, err
		}
	}

	// Fields
	fieldsCount, err := readU16(cur, "fields count")
	if err != nil {
		return nil, err
	}
	cf.Fields = make([]FieldInfo, fieldsCount)
	for i := range cf.Fields {
		m, err := parseMember(cur, pool)
		if err != nil {
			return nil, fmt.Errorf("parsing field %d: %w", i, err)
		}
		cf.Fields[i] = FieldInfo{
			AccessFlags:     FieldAccessFlags(m.flags),
			NameIndex:       m.nameIndex,
			DescriptorIndex: m.descIndex,
			Name:            m.name,
			Descriptor:      m.desc,
			Attributes:      m.attrs,
		}
	}

	// Methods
	methodsCount, err := readU16(cur, "methods count")
	if err != nil {
		return nil, err
	}
	cf.Methods = make([]MethodInfo, methodsCount)
	for i := range cf.Methods {
		m, err := parseMember(cur, pool)
		if err != nil {
			return nil, fmt.Errorf("parsing method %d: %w", i, err)
		}
		method := MethodInfo{
			AccessFlags:     MethodAccessFlags(m.flags),
			NameIndex:       m.nameIndex,
			DescriptorIndex: m.descIndex,
			Name:            m.name,
			Descriptor:      m.desc,
			Attributes:      m.attrs,
		}
		for _, attr := range m.attrs {
			if code, ok := attr.(*CodeAttribute); ok {
				method.Code = code
				break
			}
		}
		cf.Methods[i] = method
	}

	// Class-level attributes
	cf.Attributes, err = readAttributes(cur, pool)
	if err != nil {
		return nil, fmt.Errorf("parsing class attributes: %w", err)
	}

	return cf, nil
}

// member is the shared shape of field_info and method_info.
type member struct {
	flags     uint16
	nameIndex uint16
	descIndex uint16
	name      string
	desc      string
	attrs     []Attribute
}

func parseMember(cur *Cursor, pool *ConstantPool) (*member, error) {
	var m member
	var err error
	if m.flags, err = readU16(cur, "access flags"); err != nil {
		return nil, err
	}
	nameOff := cur.Offset()
	if m.nameIndex, err = readU16(cur, "name index"); err != nil {
		return nil, err
	}
	if m.descIndex, err = readU16(cur, "descriptor index"); err != nil {
		return nil, err
	}

	if m.name, err = pool.Utf8(m.nameIndex); err != nil {
		return nil, errors.New(errors.PhaseLoad, errors.KindInvalidIndex).
			Offset(nameOff).Value(m.nameIndex).Detail("resolving name").Cause(err).Build()
	}
	if m.desc, err = pool.Utf8(m.descIndex); err != nil {
		return nil, errors.New(errors.PhaseLoad, errors.KindInvalidIndex).
			Offset(nameOff + 2).Value(m.descIndex).Detail("resolving descriptor").Cause(err).Build()
	}

	if m.attrs, err = readAttributes(cur, pool); err != nil {
		return nil, err
	}
	return &m, nil
}
