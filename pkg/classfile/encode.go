package classfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/daimatz/runevm/pkg/errors"
)

// writer wraps a bytes.Buffer with big-endian helpers.
type writer struct {
	buf bytes.Buffer
}

func (w *writer) u8(v uint8)   { w.buf.WriteByte(v) }
func (w *writer) u16(v uint16) { w.buf.Write(binary.BigEndian.AppendUint16(nil, v)) }
func (w *writer) u32(v uint32) { w.buf.Write(binary.BigEndian.AppendUint32(nil, v)) }
func (w *writer) u64(v uint64) { w.buf.Write(binary.BigEndian.AppendUint64(nil, v)) }

// Encode serializes the class file. Pool indices, member order and
// recognized attributes are preserved. Unhandled attributes were never
// stored and are not written.
func (cf *ClassFile) Encode() ([]byte, error) {
	w := &writer{}
	w.u32(classMagic)
	w.u16(cf.MinorVersion)
	w.u16(cf.MajorVersion)

	if err := encodeConstantPool(w, cf.ConstantPool); err != nil {
		return nil, err
	}

	w.u16(uint16(cf.AccessFlags))
	w.u16(cf.ThisClass)
	w.u16(cf.SuperClass)

	w.u16(uint16(len(cf.Interfaces)))
	for _, idx := range cf.Interfaces {
		w.u16(idx)
	}

	w.u16(uint16(len(cf.Fields)))
	for i := range cf.Fields {
		f := &cf.Fields[i]
		w.u16(uint16(f.AccessFlags))
		w.u16(f.NameIndex)
		w.u16(f.DescriptorIndex)
		if err := encodeAttributes(w, cf.ConstantPool, f.Attributes); err != nil {
			return nil, fmt.Errorf("encoding field %s: %w", f.Name, err)
		}
	}

	w.u16(uint16(len(cf.Methods)))
	for i := range cf.Methods {
		m := &cf.Methods[i]
		w.u16(uint16(m.AccessFlags))
		w.u16(m.NameIndex)
		w.u16(m.DescriptorIndex)
		if err := encodeAttributes(w, cf.ConstantPool, m.Attributes); err != nil {
			return nil, fmt.Errorf("encoding method %s: %w", m.Name, err)
		}
	}

	if err := encodeAttributes(w, cf.ConstantPool, cf.Attributes); err != nil {
		return nil, fmt.Errorf("encoding class attributes: %w", err)
	}
	return w.buf.Bytes(), nil
}

func encodeConstantPool(w *writer, pool *ConstantPool) error {
	w.u16(uint16(pool.Len()))
	for i := 1; i < pool.Len(); i++ {
		c := pool.entries[i]
		if c == nil {
			continue // upper half of a Long or Double
		}
		w.u8(uint8(c.Tag()))
		switch c := c.(type) {
		case *ConstantUtf8:
			w.u16(uint16(len(c.Value)))
			w.buf.WriteString(c.Value)
		case *ConstantInteger:
			w.u32(uint32(c.Value))
		case *ConstantFloat:
			w.u32(math.Float32bits(c.Value))
		case *ConstantLong:
			w.u64(uint64(c.Value))
		case *ConstantDouble:
			w.u64(math.Float64bits(c.Value))
		case *ConstantClass:
			w.u16(c.NameIndex)
		case *ConstantString:
			w.u16(c.StringIndex)
		case *ConstantFieldref:
			w.u16(c.ClassIndex)
			w.u16(c.NameAndTypeIndex)
		case *ConstantMethodref:
			w.u16(c.ClassIndex)
			w.u16(c.NameAndTypeIndex)
		case *ConstantInterfaceMethodref:
			w.u16(c.ClassIndex)
			w.u16(c.NameAndTypeIndex)
		case *ConstantNameAndType:
			w.u16(c.NameIndex)
			w.u16(c.DescriptorIndex)
		case *ConstantMethodHandle:
			w.u8(c.ReferenceKind)
			w.u16(c.ReferenceIndex)
		case *ConstantMethodType:
			w.u16(c.DescriptorIndex)
		case *ConstantDynamic:
			w.u16(c.BootstrapMethodAttrIndex)
			w.u16(c.NameAndTypeIndex)
		case *ConstantModule:
			w.u16(c.NameIndex)
		default:
			return errors.New(errors.PhaseLoad, errors.KindUnhandledConstant).
				Value(uint8(c.Tag())).
				Detail("encoding constant pool index %d", i).
				Build()
		}
	}
	return nil
}

// utf8Index finds the first Utf8 entry equal to s.
func (p *ConstantPool) utf8Index(s string) (uint16, bool) {
	for i, c := range p.entries {
		if u, ok := c.(*ConstantUtf8); ok && u.Value == s {
			return uint16(i), true
		}
	}
	return 0, false
}

func encodeAttributes(w *writer, pool *ConstantPool, attrs []Attribute) error {
	var kept []Attribute
	for _, a := range attrs {
		if _, ok := a.(*UnhandledAttribute); !ok {
			kept = append(kept, a)
		}
	}

	w.u16(uint16(len(kept)))
	for _, a := range kept {
		nameIndex, ok := pool.utf8Index(a.Name())
		if !ok {
			return errors.NotFound(errors.PhaseLoad, "attribute name", a.Name())
		}

		body := &writer{}
		switch a := a.(type) {
		case *CodeAttribute:
			body.u16(a.MaxStack)
			body.u16(a.MaxLocals)
			code := a.Code.Bytes()
			body.u32(uint32(len(code)))
			body.buf.Write(code)
			body.u16(uint16(len(a.ExceptionHandlers)))
			for _, h := range a.ExceptionHandlers {
				body.u16(h.StartPC)
				body.u16(h.EndPC)
				body.u16(h.HandlerPC)
				body.u16(h.CatchType)
			}
			if err := encodeAttributes(body, pool, a.Attributes); err != nil {
				return err
			}
		case *ConstantValueAttribute:
			body.u16(a.ValueIndex)
		case *SourceFileAttribute:
			body.u16(a.SourceFileIndex)
		case *BootstrapMethodsAttribute:
			body.u16(uint16(len(a.Methods)))
			for _, m := range a.Methods {
				body.u16(m.MethodRef)
				body.u16(uint16(len(m.BootstrapArguments)))
				for _, arg := range m.BootstrapArguments {
					body.u16(arg)
				}
			}
		default:
			return errors.Unsupported(errors.PhaseLoad, "encoding %s attribute", a.Name())
		}

		w.u16(nameIndex)
		w.u32(uint32(body.buf.Len()))
		w.buf.Write(body.buf.Bytes())
	}
	return nil
}
