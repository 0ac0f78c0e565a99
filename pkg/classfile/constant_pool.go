package classfile

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"

	"github.com/daimatz/runevm/pkg/errors"
)

// ConstantTag identifies the kind of a constant pool entry.
type ConstantTag uint8

// Constant pool tags
const (
	TagUtf8               ConstantTag = 1
	TagInteger            ConstantTag = 3
	TagFloat              ConstantTag = 4
	TagLong               ConstantTag = 5
	TagDouble             ConstantTag = 6
	TagClass              ConstantTag = 7
	TagString             ConstantTag = 8
	TagFieldref           ConstantTag = 9
	TagMethodref          ConstantTag = 10
	TagInterfaceMethodref ConstantTag = 11
	TagNameAndType        ConstantTag = 12
	TagMethodHandle       ConstantTag = 15
	TagMethodType         ConstantTag = 16
	TagDynamic            ConstantTag = 17
	TagInvokeDynamic      ConstantTag = 18
	TagModule             ConstantTag = 19
	TagPackage            ConstantTag = 20
)

var tagNames = map[ConstantTag]string{
	TagUtf8:               "Utf8",
	TagInteger:            "Integer",
	TagFloat:              "Float",
	TagLong:               "Long",
	TagDouble:             "Double",
	TagClass:              "Class",
	TagString:             "String",
	TagFieldref:           "Fieldref",
	TagMethodref:          "Methodref",
	TagInterfaceMethodref: "InterfaceMethodref",
	TagNameAndType:        "NameAndType",
	TagMethodHandle:       "MethodHandle",
	TagMethodType:         "MethodType",
	TagDynamic:            "Dynamic",
	TagInvokeDynamic:      "InvokeDynamic",
	TagModule:             "Module",
	TagPackage:            "Package",
}

func (t ConstantTag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return "tag(" + strconv.Itoa(int(t)) + ")"
}

// Constant is implemented by all constant pool entry types.
type Constant interface {
	Tag() ConstantTag
}

type ConstantUtf8 struct {
	Value string
}

func (c *ConstantUtf8) Tag() ConstantTag { return TagUtf8 }

type ConstantInteger struct {
	Value int32
}

func (c *ConstantInteger) Tag() ConstantTag { return TagInteger }

type ConstantFloat struct {
	Value float32
}

func (c *ConstantFloat) Tag() ConstantTag { return TagFloat }

type ConstantLong struct {
	Value int64
}

func (c *ConstantLong) Tag() ConstantTag { return TagLong }

type ConstantDouble struct {
	Value float64
}

func (c *ConstantDouble) Tag() ConstantTag { return TagDouble }

type ConstantClass struct {
	NameIndex uint16
}

func (c *ConstantClass) Tag() ConstantTag { return TagClass }

type ConstantString struct {
	StringIndex uint16
}

func (c *ConstantString) Tag() ConstantTag { return TagString }

type ConstantFieldref struct {
	ClassIndex       uint16
	NameAndTypeIndex uint16
}

func (c *ConstantFieldref) Tag() ConstantTag { return TagFieldref }

type ConstantMethodref struct {
	ClassIndex       uint16
	NameAndTypeIndex uint16
}

func (c *ConstantMethodref) Tag() ConstantTag { return TagMethodref }

type ConstantInterfaceMethodref struct {
	ClassIndex       uint16
	NameAndTypeIndex uint16
}

func (c *ConstantInterfaceMethodref) Tag() ConstantTag { return TagInterfaceMethodref }

type ConstantNameAndType struct {
	NameIndex       uint16
	DescriptorIndex uint16
}

func (c *ConstantNameAndType) Tag() ConstantTag { return TagNameAndType }

type ConstantMethodHandle struct {
	ReferenceKind  uint8
	ReferenceIndex uint16
}

func (c *ConstantMethodHandle) Tag() ConstantTag { return TagMethodHandle }

type ConstantMethodType struct {
	DescriptorIndex uint16
}

func (c *ConstantMethodType) Tag() ConstantTag { return TagMethodType }

// ConstantDynamic covers both CONSTANT_Dynamic and CONSTANT_InvokeDynamic;
// Kind holds which one was read.
type ConstantDynamic struct {
	Kind                     ConstantTag
	BootstrapMethodAttrIndex uint16
	NameAndTypeIndex         uint16
}

func (c *ConstantDynamic) Tag() ConstantTag { return c.Kind }

// ConstantModule covers CONSTANT_Module and CONSTANT_Package.
type ConstantModule struct {
	Kind      ConstantTag
	NameIndex uint16
}

func (c *ConstantModule) Tag() ConstantTag { return c.Kind }

// ConstantPool is the 1-indexed constant table of a class file. Slot 0 and
// the slot following a Long or Double are empty. A pool is never modified
// after parsing and may be shared by any number of frames.
type ConstantPool struct {
	entries []Constant
}

// NewConstantPool builds a pool from 1-indexed entries; entries[0] must be
// nil.
func NewConstantPool(entries []Constant) *ConstantPool {
	return &ConstantPool{entries: entries}
}

// Len returns the declared constant_pool_count.
func (p *ConstantPool) Len() int {
	return len(p.entries)
}

// parseConstantPool reads constant_pool_count-1 slots from the cursor.
func parseConstantPool(cur *Cursor, count uint16) (*ConstantPool, error) {
	entries := make([]Constant, count)

	for i := 1; i < int(count); i++ {
		tagOff := cur.Offset()
		b, ok := cur.ReadU8()
		if !ok {
			return nil, errors.MissingField(errors.PhaseLoad, tagOff, "reading constant pool tag at index "+strconv.Itoa(i))
		}
		tag := ConstantTag(b)

		c, ok, err := readConstant(cur, tag)
		if err != nil {
			return nil, errors.New(errors.PhaseLoad, errors.KindUnhandledConstant).
				Offset(tagOff).
				Value(uint8(tag)).
				Detail("constant pool index %d", i).
				Build()
		}
		if !ok {
			return nil, errors.MissingField(errors.PhaseLoad, cur.Offset(), "reading "+tag.String()+" at index "+strconv.Itoa(i))
		}
		entries[i] = c

		if tag == TagLong || tag == TagDouble {
			i++ // the next slot is unusable
		}
	}

	return &ConstantPool{entries: entries}, nil
}

// errUnhandledTag is an internal marker; parseConstantPool turns it into a
// positioned error.
var errUnhandledTag = errors.ErrUnhandledConstant

func readConstant(cur *Cursor, tag ConstantTag) (Constant, bool, error) {
	switch tag {
	case TagUtf8:
		length, ok := cur.ReadU16()
		if !ok {
			return nil, false, nil
		}
		raw, ok := cur.ReadBytes(int(length))
		if !ok {
			return nil, false, nil
		}
		return &ConstantUtf8{Value: decodeUtf8(raw)}, true, nil

	case TagInteger:
		v, ok := cur.ReadU32()
		return &ConstantInteger{Value: int32(v)}, ok, nil

	case TagFloat:
		v, ok := cur.ReadU32()
		return &ConstantFloat{Value: math.Float32frombits(v)}, ok, nil

	case TagLong:
		v, ok := cur.ReadU64()
		return &ConstantLong{Value: int64(v)}, ok, nil

	case TagDouble:
		v, ok := cur.ReadU64()
		return &ConstantDouble{Value: math.Float64frombits(v)}, ok, nil

	case TagClass:
		v, ok := cur.ReadU16()
		return &ConstantClass{NameIndex: v}, ok, nil

	case TagString:
		v, ok := cur.ReadU16()
		return &ConstantString{StringIndex: v}, ok, nil

	case TagFieldref, TagMethodref, TagInterfaceMethodref:
		classIndex, ok1 := cur.ReadU16()
		natIndex, ok2 := cur.ReadU16()
		ok := ok1 && ok2
		switch tag {
		case TagFieldref:
			return &ConstantFieldref{ClassIndex: classIndex, NameAndTypeIndex: natIndex}, ok, nil
		case TagMethodref:
			return &ConstantMethodref{ClassIndex: classIndex, NameAndTypeIndex: natIndex}, ok, nil
		default:
			return &ConstantInterfaceMethodref{ClassIndex: classIndex, NameAndTypeIndex: natIndex}, ok, nil
		}

	case TagNameAndType:
		nameIndex, ok1 := cur.ReadU16()
		descIndex, ok2 := cur.ReadU16()
		return &ConstantNameAndType{NameIndex: nameIndex, DescriptorIndex: descIndex}, ok1 && ok2, nil

	case TagMethodHandle:
		kind, ok1 := cur.ReadU8()
		ref, ok2 := cur.ReadU16()
		return &ConstantMethodHandle{ReferenceKind: kind, ReferenceIndex: ref}, ok1 && ok2, nil

	case TagMethodType:
		v, ok := cur.ReadU16()
		return &ConstantMethodType{DescriptorIndex: v}, ok, nil

	case TagDynamic, TagInvokeDynamic:
		bsm, ok1 := cur.ReadU16()
		nat, ok2 := cur.ReadU16()
		return &ConstantDynamic{Kind: tag, BootstrapMethodAttrIndex: bsm, NameAndTypeIndex: nat}, ok1 && ok2, nil

	case TagModule, TagPackage:
		v, ok := cur.ReadU16()
		return &ConstantModule{Kind: tag, NameIndex: v}, ok, nil
	}

	return nil, false, errUnhandledTag
}

var utf8Decoder = unicode.UTF8.NewDecoder()

// decodeUtf8 never fails. Class files use modified UTF-8: NUL is C0 80 and
// supplementary characters are surrogate pairs of three bytes each. Those
// forms are decoded; anything else that is not valid UTF-8, including
// unpaired surrogates, becomes U+FFFD.
func decodeUtf8(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	if s, ok := decodeModifiedUtf8(raw); ok {
		return s
	}
	out, err := utf8Decoder.Bytes(raw)
	if err != nil {
		return strings.ToValidUTF8(string(raw), "\uFFFD")
	}
	return string(out)
}

// decodeModifiedUtf8 reports false on bytes that are neither UTF-8 nor one
// of the modified UTF-8 encodings.
func decodeModifiedUtf8(raw []byte) (string, bool) {
	var sb strings.Builder
	sb.Grow(len(raw))
	for i := 0; i < len(raw); {
		if r, size := utf8.DecodeRune(raw[i:]); r != utf8.RuneError || size != 1 {
			sb.WriteString(string(raw[i : i+size]))
			i += size
			continue
		}
		if raw[i] == 0xC0 && i+1 < len(raw) && raw[i+1] == 0x80 {
			sb.WriteByte(0)
			i += 2
			continue
		}
		hi, ok := surrogate(raw[i:])
		if !ok {
			return "", false
		}
		i += 3
		if lo, ok := surrogate(raw[i:]); ok && hi < 0xDC00 && lo >= 0xDC00 {
			sb.WriteRune(utf16.DecodeRune(hi, lo))
			i += 3
			continue
		}
		sb.WriteRune(utf8.RuneError)
	}
	return sb.String(), true
}

// surrogate decodes a UTF-16 surrogate written as three UTF-8 bytes.
func surrogate(b []byte) (rune, bool) {
	if len(b) < 3 || b[0] != 0xED || b[1]&0xE0 != 0xA0 || b[2]&0xC0 != 0x80 {
		return 0, false
	}
	return 0xD000 | rune(b[1]&0x3F)<<6 | rune(b[2]&0x3F), true
}

// Get returns the entry at index.
func (p *ConstantPool) Get(index uint16) (Constant, error) {
	if index == 0 || int(index) >= len(p.entries) || p.entries[index] == nil {
		return nil, errors.InvalidIndex(errors.PhaseLoad, index, "invalid constant pool index %d", index)
	}
	return p.entries[index], nil
}

func (p *ConstantPool) expect(index uint16, tag ConstantTag) (Constant, error) {
	c, err := p.Get(index)
	if err != nil {
		return nil, err
	}
	if c.Tag() != tag {
		return nil, errors.InvalidIndex(errors.PhaseLoad, index, "constant pool index %d is %s, not %s", index, c.Tag(), tag)
	}
	return c, nil
}

// Utf8 returns the text of the Utf8 entry at index.
func (p *ConstantPool) Utf8(index uint16) (string, error) {
	c, err := p.expect(index, TagUtf8)
	if err != nil {
		return "", err
	}
	return c.(*ConstantUtf8).Value, nil
}

// ClassName returns the name referenced by the Class entry at index.
func (p *ConstantPool) ClassName(index uint16) (string, error) {
	c, err := p.expect(index, TagClass)
	if err != nil {
		return "", err
	}
	return p.Utf8(c.(*ConstantClass).NameIndex)
}

// String returns the text referenced by the String entry at index.
func (p *ConstantPool) String(index uint16) (string, error) {
	c, err := p.expect(index, TagString)
	if err != nil {
		return "", err
	}
	return p.Utf8(c.(*ConstantString).StringIndex)
}

// Integer returns the value of the Integer entry at index.
func (p *ConstantPool) Integer(index uint16) (int32, error) {
	c, err := p.expect(index, TagInteger)
	if err != nil {
		return 0, err
	}
	return c.(*ConstantInteger).Value, nil
}

// Float returns the value of the Float entry at index.
func (p *ConstantPool) Float(index uint16) (float32, error) {
	c, err := p.expect(index, TagFloat)
	if err != nil {
		return 0, err
	}
	return c.(*ConstantFloat).Value, nil
}

// Long returns the value of the Long entry at index.
func (p *ConstantPool) Long(index uint16) (int64, error) {
	c, err := p.expect(index, TagLong)
	if err != nil {
		return 0, err
	}
	return c.(*ConstantLong).Value, nil
}

// Double returns the value of the Double entry at index.
func (p *ConstantPool) Double(index uint16) (float64, error) {
	c, err := p.expect(index, TagDouble)
	if err != nil {
		return 0, err
	}
	return c.(*ConstantDouble).Value, nil
}

// NameAndType returns the name and descriptor of the NameAndType entry at
// index.
func (p *ConstantPool) NameAndType(index uint16) (name, descriptor string, err error) {
	c, err := p.expect(index, TagNameAndType)
	if err != nil {
		return "", "", err
	}
	nat := c.(*ConstantNameAndType)
	if name, err = p.Utf8(nat.NameIndex); err != nil {
		return "", "", err
	}
	if descriptor, err = p.Utf8(nat.DescriptorIndex); err != nil {
		return "", "", err
	}
	return name, descriptor, nil
}

// MemberRef is a resolved field or method reference.
type MemberRef struct {
	ClassName  string
	Name       string
	Descriptor string
}

func (r *MemberRef) String() string {
	return r.ClassName + "." + r.Name + ":" + r.Descriptor
}

func (p *ConstantPool) memberRef(classIndex, natIndex uint16) (*MemberRef, error) {
	className, err := p.ClassName(classIndex)
	if err != nil {
		return nil, err
	}
	name, desc, err := p.NameAndType(natIndex)
	if err != nil {
		return nil, err
	}
	return &MemberRef{ClassName: className, Name: name, Descriptor: desc}, nil
}

// FieldRef resolves the Fieldref entry at index.
func (p *ConstantPool) FieldRef(index uint16) (*MemberRef, error) {
	c, err := p.expect(index, TagFieldref)
	if err != nil {
		return nil, err
	}
	ref := c.(*ConstantFieldref)
	return p.memberRef(ref.ClassIndex, ref.NameAndTypeIndex)
}

// MethodRef resolves the Methodref entry at index.
func (p *ConstantPool) MethodRef(index uint16) (*MemberRef, error) {
	c, err := p.expect(index, TagMethodref)
	if err != nil {
		return nil, err
	}
	ref := c.(*ConstantMethodref)
	return p.memberRef(ref.ClassIndex, ref.NameAndTypeIndex)
}

// InterfaceMethodRef resolves the InterfaceMethodref entry at index.
func (p *ConstantPool) InterfaceMethodRef(index uint16) (*MemberRef, error) {
	c, err := p.expect(index, TagInterfaceMethodref)
	if err != nil {
		return nil, err
	}
	ref := c.(*ConstantInterfaceMethodref)
	return p.memberRef(ref.ClassIndex, ref.NameAndTypeIndex)
}

// AnyMethodRef resolves a Methodref or InterfaceMethodref entry; since Java 8
// invokestatic and invokespecial may name either.
func (p *ConstantPool) AnyMethodRef(index uint16) (*MemberRef, error) {
	c, err := p.Get(index)
	if err != nil {
		return nil, err
	}
	if c.Tag() == TagInterfaceMethodref {
		return p.InterfaceMethodRef(index)
	}
	return p.MethodRef(index)
}

// MethodHandle resolves the MethodHandle entry at index to its reference
// kind and the member it points at.
func (p *ConstantPool) MethodHandle(index uint16) (uint8, *MemberRef, error) {
	c, err := p.expect(index, TagMethodHandle)
	if err != nil {
		return 0, nil, err
	}
	mh := c.(*ConstantMethodHandle)
	var ref *MemberRef
	switch mh.ReferenceKind {
	case RefGetField, RefGetStatic, RefPutField, RefPutStatic:
		ref, err = p.FieldRef(mh.ReferenceIndex)
	default:
		ref, err = p.AnyMethodRef(mh.ReferenceIndex)
	}
	if err != nil {
		return 0, nil, err
	}
	return mh.ReferenceKind, ref, nil
}

// InvokeDynamic returns the InvokeDynamic entry at index with its resolved
// name and descriptor.
func (p *ConstantPool) InvokeDynamic(index uint16) (*ConstantDynamic, string, string, error) {
	c, err := p.expect(index, TagInvokeDynamic)
	if err != nil {
		return nil, "", "", err
	}
	indy := c.(*ConstantDynamic)
	name, desc, err := p.NameAndType(indy.NameAndTypeIndex)
	if err != nil {
		return nil, "", "", err
	}
	return indy, name, desc, nil
}

// Method handle reference kinds
const (
	RefGetField         uint8 = 1
	RefGetStatic        uint8 = 2
	RefPutField         uint8 = 3
	RefPutStatic        uint8 = 4
	RefInvokeVirtual    uint8 = 5
	RefInvokeStatic     uint8 = 6
	RefInvokeSpecial    uint8 = 7
	RefNewInvokeSpecial uint8 = 8
	RefInvokeInterface  uint8 = 9
)
