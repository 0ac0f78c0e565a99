// Package classfiletest assembles class-file bytes for tests. It writes the
// binary format directly and does not depend on the classfile package, so
// parser tests are not checked against the parser's own encoder.
package classfiletest

import (
	"encoding/binary"
	"math"
	"reflect"
)

// Attr is an attribute ready to be attached to a class, field or method.
type Attr struct {
	Name string
	Body []byte
}

// Handler is one exception table entry.
type Handler struct {
	StartPC, EndPC, HandlerPC, CatchType uint16
}

type member struct {
	flags      uint16
	name, desc uint16
	attrs      []Attr
}

// Builder accumulates a class file. Pool entries are deduplicated where the
// format allows it.
type Builder struct {
	Minor, Major uint16
	Flags        uint16

	pool  [][]byte // pool[i] is the encoded entry at index i; nil for unused slots
	dedup map[string]uint16

	this, super uint16
	interfaces  []uint16
	fields      []member
	methods     []member
	attrs       []Attr
}

// New starts a public class named name extending super. An empty super
// leaves super_class at 0.
func New(name, super string) *Builder {
	b := &Builder{
		Major: 52,
		Flags: 0x0021,
		pool:  [][]byte{nil},
		dedup: make(map[string]uint16),
	}
	b.this = b.Class(name)
	if super != "" {
		b.super = b.Class(super)
	}
	return b
}

// Empty returns a builder with an empty pool and this/super set to 0.
func Empty() *Builder {
	return &Builder{
		Major: 52,
		Flags: 0x0021,
		pool:  [][]byte{nil},
		dedup: make(map[string]uint16),
	}
}

func (b *Builder) add(key string, entry []byte, slots int) uint16 {
	if key != "" {
		if idx, ok := b.dedup[key]; ok {
			return idx
		}
	}
	idx := uint16(len(b.pool))
	b.pool = append(b.pool, entry)
	for i := 1; i < slots; i++ {
		b.pool = append(b.pool, nil)
	}
	if key != "" {
		b.dedup[key] = idx
	}
	return idx
}

// Raw appends an arbitrary entry with the given tag and payload.
func (b *Builder) Raw(tag byte, payload ...byte) uint16 {
	return b.add("", append([]byte{tag}, payload...), 1)
}

func (b *Builder) Utf8(s string) uint16 {
	e := append([]byte{1}, U16(uint16(len(s)))...)
	return b.add("utf8:"+s, append(e, s...), 1)
}

func (b *Builder) Integer(v int32) uint16 {
	return b.add("", append([]byte{3}, U32(uint32(v))...), 1)
}

func (b *Builder) Float(v float32) uint16 {
	return b.add("", append([]byte{4}, U32(math.Float32bits(v))...), 1)
}

// Long occupies two pool slots.
func (b *Builder) Long(v int64) uint16 {
	return b.add("", append([]byte{5}, U64(uint64(v))...), 2)
}

// Double occupies two pool slots.
func (b *Builder) Double(v float64) uint16 {
	return b.add("", append([]byte{6}, U64(math.Float64bits(v))...), 2)
}

func (b *Builder) Class(name string) uint16 {
	n := b.Utf8(name)
	return b.add("class:"+name, append([]byte{7}, U16(n)...), 1)
}

func (b *Builder) String(s string) uint16 {
	n := b.Utf8(s)
	return b.add("string:"+s, append([]byte{8}, U16(n)...), 1)
}

func (b *Builder) NameAndType(name, desc string) uint16 {
	n, d := b.Utf8(name), b.Utf8(desc)
	return b.add("nat:"+name+":"+desc, append(append([]byte{12}, U16(n)...), U16(d)...), 1)
}

func (b *Builder) ref(tag byte, class, name, desc string) uint16 {
	c, nt := b.Class(class), b.NameAndType(name, desc)
	key := string(rune('0'+tag)) + ":" + class + "." + name + ":" + desc
	return b.add(key, append(append([]byte{tag}, U16(c)...), U16(nt)...), 1)
}

func (b *Builder) Fieldref(class, name, desc string) uint16 {
	return b.ref(9, class, name, desc)
}

func (b *Builder) Methodref(class, name, desc string) uint16 {
	return b.ref(10, class, name, desc)
}

func (b *Builder) InterfaceMethodref(class, name, desc string) uint16 {
	return b.ref(11, class, name, desc)
}

func (b *Builder) MethodHandle(kind uint8, refIndex uint16) uint16 {
	return b.add("", append([]byte{15, kind}, U16(refIndex)...), 1)
}

func (b *Builder) InvokeDynamic(bootstrap uint16, name, desc string) uint16 {
	nt := b.NameAndType(name, desc)
	return b.add("", append(append([]byte{18}, U16(bootstrap)...), U16(nt)...), 1)
}

// ThisClass overrides this_class.
func (b *Builder) ThisClass(idx uint16) { b.this = idx }

// SuperClass overrides super_class.
func (b *Builder) SuperClass(idx uint16) { b.super = idx }

func (b *Builder) AddInterface(name string) {
	b.interfaces = append(b.interfaces, b.Class(name))
}

func (b *Builder) AddField(flags uint16, name, desc string, attrs ...Attr) {
	b.fields = append(b.fields, b.member(flags, name, desc, attrs))
}

func (b *Builder) AddMethod(flags uint16, name, desc string, attrs ...Attr) {
	b.methods = append(b.methods, b.member(flags, name, desc, attrs))
}

func (b *Builder) AddAttribute(attrs ...Attr) {
	for _, a := range attrs {
		b.Utf8(a.Name)
	}
	b.attrs = append(b.attrs, attrs...)
}

func (b *Builder) member(flags uint16, name, desc string, attrs []Attr) member {
	for _, a := range attrs {
		b.Utf8(a.Name)
	}
	return member{flags: flags, name: b.Utf8(name), desc: b.Utf8(desc), attrs: attrs}
}

// Code builds a Code attribute body.
func (b *Builder) Code(maxStack, maxLocals uint16, code []byte, handlers []Handler, nested ...Attr) Attr {
	body := append(U16(maxStack), U16(maxLocals)...)
	body = append(body, U32(uint32(len(code)))...)
	body = append(body, code...)
	body = append(body, U16(uint16(len(handlers)))...)
	for _, h := range handlers {
		body = append(body, U16(h.StartPC)...)
		body = append(body, U16(h.EndPC)...)
		body = append(body, U16(h.HandlerPC)...)
		body = append(body, U16(h.CatchType)...)
	}
	for _, a := range nested {
		b.Utf8(a.Name)
	}
	body = append(body, b.attributes(nested)...)
	return Attr{Name: "Code", Body: body}
}

// ConstantValue builds a ConstantValue attribute.
func ConstantValue(idx uint16) Attr {
	return Attr{Name: "ConstantValue", Body: U16(idx)}
}

// SourceFile builds a SourceFile attribute.
func (b *Builder) SourceFile(name string) Attr {
	return Attr{Name: "SourceFile", Body: U16(b.Utf8(name))}
}

// BootstrapMethod is one BootstrapMethods entry.
type BootstrapMethod struct {
	MethodRef uint16
	Args      []uint16
}

// BootstrapMethods builds a BootstrapMethods attribute.
func BootstrapMethods(methods ...BootstrapMethod) Attr {
	body := U16(uint16(len(methods)))
	for _, m := range methods {
		body = append(body, U16(m.MethodRef)...)
		body = append(body, U16(uint16(len(m.Args)))...)
		for _, a := range m.Args {
			body = append(body, U16(a)...)
		}
	}
	return Attr{Name: "BootstrapMethods", Body: body}
}

func (b *Builder) attributes(attrs []Attr) []byte {
	out := U16(uint16(len(attrs)))
	for _, a := range attrs {
		out = append(out, U16(b.dedup["utf8:"+a.Name])...)
		out = append(out, U32(uint32(len(a.Body)))...)
		out = append(out, a.Body...)
	}
	return out
}

// PoolCount returns the constant_pool_count the class will declare.
func (b *Builder) PoolCount() int {
	return len(b.pool)
}

// Bytes returns the encoded class file.
func (b *Builder) Bytes() []byte {
	out := U32(0xCAFEBABE)
	out = append(out, U16(b.Minor)...)
	out = append(out, U16(b.Major)...)

	out = append(out, U16(uint16(len(b.pool)))...)
	for _, e := range b.pool[1:] {
		out = append(out, e...)
	}

	out = append(out, U16(b.Flags)...)
	out = append(out, U16(b.this)...)
	out = append(out, U16(b.super)...)

	out = append(out, U16(uint16(len(b.interfaces)))...)
	for _, i := range b.interfaces {
		out = append(out, U16(i)...)
	}

	for _, list := range [][]member{b.fields, b.methods} {
		out = append(out, U16(uint16(len(list)))...)
		for _, m := range list {
			out = append(out, U16(m.flags)...)
			out = append(out, U16(m.name)...)
			out = append(out, U16(m.desc)...)
			out = append(out, b.attributes(m.attrs)...)
		}
	}

	return append(out, b.attributes(b.attrs)...)
}

func U16(v uint16) []byte { return binary.BigEndian.AppendUint16(nil, v) }
func U32(v uint32) []byte { return binary.BigEndian.AppendUint32(nil, v) }
func U64(v uint64) []byte { return binary.BigEndian.AppendUint64(nil, v) }

// Ops concatenates bytecode. Byte-sized integers (including named types
// such as classfile.Opcode) become one byte, int becomes one byte, uint16
// and int16 become two, int32 and uint32 four; []byte is copied as is.
func Ops(parts ...any) []byte {
	var out []byte
	for _, p := range parts {
		switch v := p.(type) {
		case []byte:
			out = append(out, v...)
		case int:
			out = append(out, byte(v))
		case uint16:
			out = append(out, U16(v)...)
		case int16:
			out = append(out, U16(uint16(v))...)
		case uint32:
			out = append(out, U32(v)...)
		case int32:
			out = append(out, U32(uint32(v))...)
		default:
			rv := reflect.ValueOf(p)
			switch rv.Kind() {
			case reflect.Uint8:
				out = append(out, byte(rv.Uint()))
			case reflect.Int8:
				out = append(out, byte(rv.Int()))
			default:
				panic("classfiletest.Ops: unsupported part " + rv.Type().String())
			}
		}
	}
	return out
}
