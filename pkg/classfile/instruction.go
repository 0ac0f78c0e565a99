package classfile

import (
	"bytes"
	"encoding/binary"

	"github.com/daimatz/runevm/pkg/errors"
)

// Instruction represents a decoded bytecode instruction. Offset is the
// byte offset of the opcode (of the wide prefix, if any) within the code
// array.
type Instruction struct {
	Imm    any
	Offset int
	Opcode Opcode
}

// IndexImm holds a constant pool index for ldc, field access, invoke*,
// new, anewarray, checkcast and instanceof.
type IndexImm struct {
	Index uint16
}

// LocalImm holds the local slot for loads, stores and ret.
type LocalImm struct {
	Index uint16
	Wide  bool
}

// ByteImm holds the sign-extended operand of bipush.
type ByteImm struct {
	Value int8
}

// ShortImm holds the operand of sipush.
type ShortImm struct {
	Value int16
}

// IincImm holds the local slot and increment of iinc.
type IincImm struct {
	Index uint16
	Const int16
	Wide  bool
}

// BranchImm holds a branch offset relative to the instruction's own
// offset.
type BranchImm struct {
	Offset int32
}

// TableSwitchImm holds the jump table of tableswitch. Offsets are relative
// to the instruction.
type TableSwitchImm struct {
	Default int32
	Low     int32
	High    int32
	Offsets []int32
}

// MatchOffset is one key of a lookupswitch.
type MatchOffset struct {
	Match  int32
	Offset int32
}

// LookupSwitchImm holds the sorted match pairs of lookupswitch.
type LookupSwitchImm struct {
	Default int32
	Pairs   []MatchOffset
}

// InvokeInterfaceImm holds the operands of invokeinterface. The trailing
// zero byte is not stored.
type InvokeInterfaceImm struct {
	Index uint16
	Count uint8
}

// InvokeDynamicImm holds the call site index of invokedynamic.
type InvokeDynamicImm struct {
	Index uint16
}

// Array type codes for newarray
const (
	ATBoolean uint8 = 4
	ATChar    uint8 = 5
	ATFloat   uint8 = 6
	ATDouble  uint8 = 7
	ATByte    uint8 = 8
	ATShort   uint8 = 9
	ATInt     uint8 = 10
	ATLong    uint8 = 11
)

// NewArrayImm holds the element type of newarray.
type NewArrayImm struct {
	AType uint8
}

// MultiANewArrayImm holds the operands of multianewarray.
type MultiANewArrayImm struct {
	Index      uint16
	Dimensions uint8
}

// BranchTarget returns the absolute target of a branch instruction.
func (i Instruction) BranchTarget() (int, bool) {
	imm, ok := i.Imm.(BranchImm)
	if !ok {
		return 0, false
	}
	return i.Offset + int(imm.Offset), true
}

// switchPadding returns the number of padding bytes after a switch opcode
// at pc. Alignment is relative to the start of the code array.
func switchPadding(pc int) int {
	return (4 - (pc+1)%4) % 4
}

// DecodeInstructions decodes a method's code array.
func DecodeInstructions(code []byte) ([]Instruction, error) {
	cur := NewCursor(code)
	// Roughly 2 bytes per instruction on average
	instrs := make([]Instruction, 0, len(code)/2)

	for cur.Remaining() > 0 {
		instr, err := decodeInstruction(cur)
		if err != nil {
			return nil, err
		}
		instrs = append(instrs, instr)
	}
	return instrs, nil
}

func decodeInstruction(cur *Cursor) (Instruction, error) {
	pc := cur.Offset()
	b, _ := cur.ReadU8()
	op := Opcode(b)
	instr := Instruction{Offset: pc, Opcode: op}

	short := func() error {
		return errors.New(errors.PhaseDecode, errors.KindMissingField).
			Offset(pc).
			Detail("truncated operands for %s", op).
			Build()
	}

	switch op {
	case OpBipush:
		v, ok := cur.ReadU8()
		if !ok {
			return instr, short()
		}
		instr.Imm = ByteImm{Value: int8(v)}

	case OpSipush:
		v, ok := cur.ReadU16()
		if !ok {
			return instr, short()
		}
		instr.Imm = ShortImm{Value: int16(v)}

	case OpLdc:
		v, ok := cur.ReadU8()
		if !ok {
			return instr, short()
		}
		instr.Imm = IndexImm{Index: uint16(v)}

	case OpLdcW, OpLdc2W,
		OpGetstatic, OpPutstatic, OpGetfield, OpPutfield,
		OpInvokevirtual, OpInvokespecial, OpInvokestatic,
		OpNew, OpAnewarray, OpCheckcast, OpInstanceof:
		v, ok := cur.ReadU16()
		if !ok {
			return instr, short()
		}
		instr.Imm = IndexImm{Index: v}

	case OpIload, OpLload, OpFload, OpDload, OpAload,
		OpIstore, OpLstore, OpFstore, OpDstore, OpAstore, OpRet:
		v, ok := cur.ReadU8()
		if !ok {
			return instr, short()
		}
		instr.Imm = LocalImm{Index: uint16(v)}

	case OpIinc:
		idx, ok1 := cur.ReadU8()
		c, ok2 := cur.ReadU8()
		if !ok1 || !ok2 {
			return instr, short()
		}
		instr.Imm = IincImm{Index: uint16(idx), Const: int16(int8(c))}

	case OpIfeq, OpIfne, OpIflt, OpIfge, OpIfgt, OpIfle,
		OpIfIcmpeq, OpIfIcmpne, OpIfIcmplt, OpIfIcmpge, OpIfIcmpgt, OpIfIcmple,
		OpIfAcmpeq, OpIfAcmpne, OpGoto, OpJsr, OpIfnull, OpIfnonnull:
		v, ok := cur.ReadU16()
		if !ok {
			return instr, short()
		}
		instr.Imm = BranchImm{Offset: int32(int16(v))}

	case OpGotoW, OpJsrW:
		v, ok := cur.ReadU32()
		if !ok {
			return instr, short()
		}
		instr.Imm = BranchImm{Offset: int32(v)}

	case OpTableswitch:
		if !cur.Advance(switchPadding(pc)) {
			return instr, short()
		}
		def, ok1 := cur.ReadU32()
		low, ok2 := cur.ReadU32()
		high, ok3 := cur.ReadU32()
		if !ok1 || !ok2 || !ok3 {
			return instr, short()
		}
		if int32(high) < int32(low) {
			return instr, errors.InvalidData(errors.PhaseDecode, pc, "tableswitch high %d < low %d", int32(high), int32(low))
		}
		n := int64(int32(high)) - int64(int32(low)) + 1
		if n*4 > int64(cur.Remaining()) {
			return instr, short()
		}
		offsets := make([]int32, n)
		for i := range offsets {
			v, _ := cur.ReadU32()
			offsets[i] = int32(v)
		}
		instr.Imm = TableSwitchImm{Default: int32(def), Low: int32(low), High: int32(high), Offsets: offsets}

	case OpLookupswitch:
		if !cur.Advance(switchPadding(pc)) {
			return instr, short()
		}
		def, ok1 := cur.ReadU32()
		npairs, ok2 := cur.ReadU32()
		if !ok1 || !ok2 {
			return instr, short()
		}
		if int32(npairs) < 0 {
			return instr, errors.InvalidData(errors.PhaseDecode, pc, "lookupswitch npairs %d", int32(npairs))
		}
		if int64(npairs)*8 > int64(cur.Remaining()) {
			return instr, short()
		}
		pairs := make([]MatchOffset, npairs)
		for i := range pairs {
			m, _ := cur.ReadU32()
			o, _ := cur.ReadU32()
			pairs[i] = MatchOffset{Match: int32(m), Offset: int32(o)}
		}
		instr.Imm = LookupSwitchImm{Default: int32(def), Pairs: pairs}

	case OpInvokeinterface:
		idx, ok1 := cur.ReadU16()
		count, ok2 := cur.ReadU8()
		_, ok3 := cur.ReadU8()
		if !ok1 || !ok2 || !ok3 {
			return instr, short()
		}
		instr.Imm = InvokeInterfaceImm{Index: idx, Count: count}

	case OpInvokedynamic:
		idx, ok1 := cur.ReadU16()
		ok2 := cur.Advance(2)
		if !ok1 || !ok2 {
			return instr, short()
		}
		instr.Imm = InvokeDynamicImm{Index: idx}

	case OpNewarray:
		v, ok := cur.ReadU8()
		if !ok {
			return instr, short()
		}
		instr.Imm = NewArrayImm{AType: v}

	case OpMultianewarray:
		idx, ok1 := cur.ReadU16()
		dims, ok2 := cur.ReadU8()
		if !ok1 || !ok2 {
			return instr, short()
		}
		instr.Imm = MultiANewArrayImm{Index: idx, Dimensions: dims}

	case OpWide:
		return decodeWide(cur, pc)

	default:
		if !op.Valid() {
			return instr, errors.New(errors.PhaseDecode, errors.KindUnhandledOpcode).
				Offset(pc).
				Value(uint8(op)).
				Build()
		}
		// no operands
	}

	return instr, nil
}

// decodeWide decodes the instruction modified by a wide prefix. The result
// carries the modified opcode and the prefix's offset.
func decodeWide(cur *Cursor, pc int) (Instruction, error) {
	b, ok := cur.ReadU8()
	if !ok {
		return Instruction{}, errors.MissingField(errors.PhaseDecode, pc, "reading wide opcode")
	}
	op := Opcode(b)
	instr := Instruction{Offset: pc, Opcode: op}

	switch op {
	case OpIload, OpLload, OpFload, OpDload, OpAload,
		OpIstore, OpLstore, OpFstore, OpDstore, OpAstore, OpRet:
		v, ok := cur.ReadU16()
		if !ok {
			return instr, errors.MissingField(errors.PhaseDecode, pc, "reading wide "+op.String()+" index")
		}
		instr.Imm = LocalImm{Index: v, Wide: true}

	case OpIinc:
		idx, ok1 := cur.ReadU16()
		c, ok2 := cur.ReadU16()
		if !ok1 || !ok2 {
			return instr, errors.MissingField(errors.PhaseDecode, pc, "reading wide iinc operands")
		}
		instr.Imm = IincImm{Index: idx, Const: int16(c), Wide: true}

	default:
		return instr, errors.New(errors.PhaseDecode, errors.KindUnhandledOpcode).
			Offset(pc).
			Value(uint8(op)).
			Detail("%s cannot follow wide", op).
			Build()
	}
	return instr, nil
}

// EncodeInstructionTo writes one instruction. Switch padding is computed
// from instr.Offset, so instructions must be written at their own offsets.
func EncodeInstructionTo(buf *bytes.Buffer, instr *Instruction) {
	u16 := func(v uint16) { buf.Write(binary.BigEndian.AppendUint16(nil, v)) }
	u32 := func(v uint32) { buf.Write(binary.BigEndian.AppendUint32(nil, v)) }

	switch imm := instr.Imm.(type) {
	case LocalImm:
		if imm.Wide {
			buf.WriteByte(byte(OpWide))
			buf.WriteByte(byte(instr.Opcode))
			u16(imm.Index)
			return
		}
		buf.WriteByte(byte(instr.Opcode))
		buf.WriteByte(byte(imm.Index))
		return
	case IincImm:
		if imm.Wide {
			buf.WriteByte(byte(OpWide))
			buf.WriteByte(byte(instr.Opcode))
			u16(imm.Index)
			u16(uint16(imm.Const))
			return
		}
		buf.WriteByte(byte(instr.Opcode))
		buf.WriteByte(byte(imm.Index))
		buf.WriteByte(byte(int8(imm.Const)))
		return
	}

	buf.WriteByte(byte(instr.Opcode))

	switch imm := instr.Imm.(type) {
	case ByteImm:
		buf.WriteByte(byte(imm.Value))
	case ShortImm:
		u16(uint16(imm.Value))
	case IndexImm:
		if instr.Opcode == OpLdc {
			buf.WriteByte(byte(imm.Index))
		} else {
			u16(imm.Index)
		}
	case BranchImm:
		if instr.Opcode == OpGotoW || instr.Opcode == OpJsrW {
			u32(uint32(imm.Offset))
		} else {
			u16(uint16(int16(imm.Offset)))
		}
	case TableSwitchImm:
		buf.Write(make([]byte, switchPadding(instr.Offset)))
		u32(uint32(imm.Default))
		u32(uint32(imm.Low))
		u32(uint32(imm.High))
		for _, o := range imm.Offsets {
			u32(uint32(o))
		}
	case LookupSwitchImm:
		buf.Write(make([]byte, switchPadding(instr.Offset)))
		u32(uint32(imm.Default))
		u32(uint32(len(imm.Pairs)))
		for _, p := range imm.Pairs {
			u32(uint32(p.Match))
			u32(uint32(p.Offset))
		}
	case InvokeInterfaceImm:
		u16(imm.Index)
		buf.WriteByte(imm.Count)
		buf.WriteByte(0)
	case InvokeDynamicImm:
		u16(imm.Index)
		buf.Write([]byte{0, 0})
	case NewArrayImm:
		buf.WriteByte(imm.AType)
	case MultiANewArrayImm:
		u16(imm.Index)
		buf.WriteByte(imm.Dimensions)
	}
}

// EncodeInstructions encodes instructions to bytes.
func EncodeInstructions(instrs []Instruction) []byte {
	var buf bytes.Buffer
	buf.Grow(len(instrs) * 3) // estimate 3 bytes per instruction
	for i := range instrs {
		EncodeInstructionTo(&buf, &instrs[i])
	}
	return buf.Bytes()
}

// Code is a decoded code array addressed by program counter.
type Code struct {
	Instructions []Instruction
	// Length is the size of the original code array in bytes.
	Length int
	// index maps a pc to its position in Instructions, -1 inside operands.
	index []int32
}

// NewCode indexes instrs, which must have been decoded from a code array of
// length bytes.
func NewCode(instrs []Instruction, length int) *Code {
	index := make([]int32, length)
	for i := range index {
		index[i] = -1
	}
	for i, in := range instrs {
		if in.Offset >= 0 && in.Offset < length {
			index[in.Offset] = int32(i)
		}
	}
	return &Code{Instructions: instrs, Length: length, index: index}
}

// IndexOf returns the position of the instruction starting at pc.
func (c *Code) IndexOf(pc int) (int, bool) {
	if pc < 0 || pc >= len(c.index) || c.index[pc] < 0 {
		return 0, false
	}
	return int(c.index[pc]), true
}

// NextPC returns the pc following the i-th instruction.
func (c *Code) NextPC(i int) int {
	if i+1 < len(c.Instructions) {
		return c.Instructions[i+1].Offset
	}
	return c.Length
}

// Bytes re-encodes the instructions.
func (c *Code) Bytes() []byte {
	return EncodeInstructions(c.Instructions)
}
