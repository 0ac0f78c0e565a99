package vm

import (
	"math"
	"strings"

	"github.com/daimatz/runevm/pkg/classfile"
	"github.com/daimatz/runevm/pkg/errors"
)

var running = Result{Status: StatusRunning}

// localOp describes a load or store opcode. index is -1 when the slot comes
// from the instruction's LocalImm.
type localOp struct {
	typ   ValueType
	index int
	store bool
}

var localOps = map[classfile.Opcode]localOp{}

func init() {
	families := []struct {
		load, load0, store, store0 classfile.Opcode
		typ                        ValueType
	}{
		{classfile.OpIload, classfile.OpIload0, classfile.OpIstore, classfile.OpIstore0, TypeInt},
		{classfile.OpLload, classfile.OpLload0, classfile.OpLstore, classfile.OpLstore0, TypeLong},
		{classfile.OpFload, classfile.OpFload0, classfile.OpFstore, classfile.OpFstore0, TypeFloat},
		{classfile.OpDload, classfile.OpDload0, classfile.OpDstore, classfile.OpDstore0, TypeDouble},
		{classfile.OpAload, classfile.OpAload0, classfile.OpAstore, classfile.OpAstore0, TypeRef},
	}
	for _, fam := range families {
		localOps[fam.load] = localOp{typ: fam.typ, index: -1}
		localOps[fam.store] = localOp{typ: fam.typ, index: -1, store: true}
		for i := 0; i < 4; i++ {
			localOps[fam.load0+classfile.Opcode(i)] = localOp{typ: fam.typ, index: i}
			localOps[fam.store0+classfile.Opcode(i)] = localOp{typ: fam.typ, index: i, store: true}
		}
	}
}

// arrayOp describes an array load or store. components lists the array
// descriptors the opcode accepts.
type arrayOp struct {
	typ        ValueType
	components string
	store      bool
}

var arrayOps = map[classfile.Opcode]arrayOp{
	classfile.OpIaload:  {typ: TypeInt, components: "I"},
	classfile.OpLaload:  {typ: TypeLong, components: "J"},
	classfile.OpFaload:  {typ: TypeFloat, components: "F"},
	classfile.OpDaload:  {typ: TypeDouble, components: "D"},
	classfile.OpAaload:  {typ: TypeRef, components: "L["},
	classfile.OpBaload:  {typ: TypeInt, components: "BZ"},
	classfile.OpCaload:  {typ: TypeInt, components: "C"},
	classfile.OpSaload:  {typ: TypeInt, components: "S"},
	classfile.OpIastore: {typ: TypeInt, components: "I", store: true},
	classfile.OpLastore: {typ: TypeLong, components: "J", store: true},
	classfile.OpFastore: {typ: TypeFloat, components: "F", store: true},
	classfile.OpDastore: {typ: TypeDouble, components: "D", store: true},
	classfile.OpAastore: {typ: TypeRef, components: "L[", store: true},
	classfile.OpBastore: {typ: TypeInt, components: "BZ", store: true},
	classfile.OpCastore: {typ: TypeInt, components: "C", store: true},
	classfile.OpSastore: {typ: TypeInt, components: "S", store: true},
}

// execute applies a single decoded instruction.
func (f *Frame) execute(env Env, in *classfile.Instruction) (Result, error) {
	op := in.Opcode
	if lo, ok := localOps[op]; ok {
		return running, f.executeLocal(in, lo)
	}
	if ao, ok := arrayOps[op]; ok {
		return running, f.executeArray(ao)
	}

	switch op {
	case classfile.OpNop:
		// do nothing

	// --- Constant load instructions ---
	case classfile.OpAconstNull:
		return running, f.Push(NullValue())

	case classfile.OpIconstM1, classfile.OpIconst0, classfile.OpIconst1, classfile.OpIconst2,
		classfile.OpIconst3, classfile.OpIconst4, classfile.OpIconst5:
		return running, f.Push(IntValue(int32(op) - int32(classfile.OpIconst0)))

	case classfile.OpLconst0, classfile.OpLconst1:
		return running, f.Push(LongValue(int64(op - classfile.OpLconst0)))

	case classfile.OpFconst0, classfile.OpFconst1, classfile.OpFconst2:
		return running, f.Push(FloatValue(float32(op - classfile.OpFconst0)))

	case classfile.OpDconst0, classfile.OpDconst1:
		return running, f.Push(DoubleValue(float64(op - classfile.OpDconst0)))

	case classfile.OpBipush:
		return running, f.Push(IntValue(int32(in.Imm.(classfile.ByteImm).Value)))

	case classfile.OpSipush:
		return running, f.Push(IntValue(int32(in.Imm.(classfile.ShortImm).Value)))

	case classfile.OpLdc, classfile.OpLdcW, classfile.OpLdc2W:
		return running, f.executeLdc(op, in.Imm.(classfile.IndexImm).Index)

	// --- Stack manipulation ---
	case classfile.OpPop, classfile.OpPop2, classfile.OpDup, classfile.OpDupX1, classfile.OpDupX2,
		classfile.OpDup2, classfile.OpDup2X1, classfile.OpDup2X2, classfile.OpSwap:
		return running, f.executeStack(op)

	// --- Arithmetic ---
	case classfile.OpIadd:
		return running, f.intBinop(func(a, b int32) int32 { return a + b })
	case classfile.OpLadd:
		return running, f.longBinop(func(a, b int64) int64 { return a + b })
	case classfile.OpFadd:
		return running, f.floatBinop(func(a, b float32) float32 { return a + b })
	case classfile.OpDadd:
		return running, f.doubleBinop(func(a, b float64) float64 { return a + b })

	case classfile.OpIsub:
		return running, f.intBinop(func(a, b int32) int32 { return a - b })
	case classfile.OpLsub:
		return running, f.longBinop(func(a, b int64) int64 { return a - b })
	case classfile.OpFsub:
		return running, f.floatBinop(func(a, b float32) float32 { return a - b })
	case classfile.OpDsub:
		return running, f.doubleBinop(func(a, b float64) float64 { return a - b })

	case classfile.OpImul:
		return running, f.intBinop(func(a, b int32) int32 { return a * b })
	case classfile.OpLmul:
		return running, f.longBinop(func(a, b int64) int64 { return a * b })
	case classfile.OpFmul:
		return running, f.floatBinop(func(a, b float32) float32 { return a * b })
	case classfile.OpDmul:
		return running, f.doubleBinop(func(a, b float64) float64 { return a * b })

	case classfile.OpIdiv, classfile.OpIrem:
		v2, err := f.popInt()
		if err != nil {
			return Result{}, err
		}
		v1, err := f.popInt()
		if err != nil {
			return Result{}, err
		}
		if v2 == 0 {
			return Result{}, NewJavaExceptionf(ArithmeticException, "/ by zero")
		}
		// MinInt32 / -1 wraps in Go as it does in Java
		if op == classfile.OpIdiv {
			return running, f.Push(IntValue(v1 / v2))
		}
		return running, f.Push(IntValue(v1 % v2))

	case classfile.OpLdiv, classfile.OpLrem:
		v2, err := f.popLong()
		if err != nil {
			return Result{}, err
		}
		v1, err := f.popLong()
		if err != nil {
			return Result{}, err
		}
		if v2 == 0 {
			return Result{}, NewJavaExceptionf(ArithmeticException, "/ by zero")
		}
		if op == classfile.OpLdiv {
			return running, f.Push(LongValue(v1 / v2))
		}
		return running, f.Push(LongValue(v1 % v2))

	case classfile.OpFdiv:
		return running, f.floatBinop(func(a, b float32) float32 { return a / b })
	case classfile.OpDdiv:
		return running, f.doubleBinop(func(a, b float64) float64 { return a / b })
	case classfile.OpFrem:
		return running, f.floatBinop(func(a, b float32) float32 { return float32(math.Mod(float64(a), float64(b))) })
	case classfile.OpDrem:
		return running, f.doubleBinop(math.Mod)

	case classfile.OpIneg:
		v, err := f.popInt()
		if err != nil {
			return Result{}, err
		}
		return running, f.Push(IntValue(-v))
	case classfile.OpLneg:
		v, err := f.popLong()
		if err != nil {
			return Result{}, err
		}
		return running, f.Push(LongValue(-v))
	case classfile.OpFneg:
		v, err := f.popFloat()
		if err != nil {
			return Result{}, err
		}
		return running, f.Push(FloatValue(-v))
	case classfile.OpDneg:
		v, err := f.popDouble()
		if err != nil {
			return Result{}, err
		}
		return running, f.Push(DoubleValue(-v))

	// --- Bit operations ---
	case classfile.OpIshl:
		return running, f.intBinop(func(a, b int32) int32 { return a << (uint32(b) & 0x1f) })
	case classfile.OpIshr:
		return running, f.intBinop(func(a, b int32) int32 { return a >> (uint32(b) & 0x1f) })
	case classfile.OpIushr:
		return running, f.intBinop(func(a, b int32) int32 { return int32(uint32(a) >> (uint32(b) & 0x1f)) })
	case classfile.OpLshl, classfile.OpLshr, classfile.OpLushr:
		return running, f.executeLongShift(op)

	case classfile.OpIand:
		return running, f.intBinop(func(a, b int32) int32 { return a & b })
	case classfile.OpLand:
		return running, f.longBinop(func(a, b int64) int64 { return a & b })
	case classfile.OpIor:
		return running, f.intBinop(func(a, b int32) int32 { return a | b })
	case classfile.OpLor:
		return running, f.longBinop(func(a, b int64) int64 { return a | b })
	case classfile.OpIxor:
		return running, f.intBinop(func(a, b int32) int32 { return a ^ b })
	case classfile.OpLxor:
		return running, f.longBinop(func(a, b int64) int64 { return a ^ b })

	case classfile.OpIinc:
		imm := in.Imm.(classfile.IincImm)
		local, err := f.localType(int(imm.Index), TypeInt)
		if err != nil {
			return Result{}, err
		}
		return running, f.SetLocal(int(imm.Index), IntValue(local.Int+int32(imm.Const)))

	// --- Type conversions ---
	case classfile.OpI2l, classfile.OpI2f, classfile.OpI2d, classfile.OpI2b, classfile.OpI2c, classfile.OpI2s,
		classfile.OpL2i, classfile.OpL2f, classfile.OpL2d,
		classfile.OpF2i, classfile.OpF2l, classfile.OpF2d,
		classfile.OpD2i, classfile.OpD2l, classfile.OpD2f:
		return running, f.executeConversion(op)

	// --- Comparisons ---
	case classfile.OpLcmp:
		v2, err := f.popLong()
		if err != nil {
			return Result{}, err
		}
		v1, err := f.popLong()
		if err != nil {
			return Result{}, err
		}
		return running, f.Push(IntValue(compare(v1, v2)))

	case classfile.OpFcmpl, classfile.OpFcmpg:
		v2, err := f.popFloat()
		if err != nil {
			return Result{}, err
		}
		v1, err := f.popFloat()
		if err != nil {
			return Result{}, err
		}
		return running, f.Push(IntValue(compareFloating(float64(v1), float64(v2), op == classfile.OpFcmpg)))

	case classfile.OpDcmpl, classfile.OpDcmpg:
		v2, err := f.popDouble()
		if err != nil {
			return Result{}, err
		}
		v1, err := f.popDouble()
		if err != nil {
			return Result{}, err
		}
		return running, f.Push(IntValue(compareFloating(v1, v2, op == classfile.OpDcmpg)))

	// --- Comparison and branch ---
	case classfile.OpIfeq, classfile.OpIfne, classfile.OpIflt, classfile.OpIfge, classfile.OpIfgt, classfile.OpIfle:
		v, err := f.popInt()
		if err != nil {
			return Result{}, err
		}
		f.branchIf(in, intCondition(op, v, 0))

	case classfile.OpIfIcmpeq, classfile.OpIfIcmpne, classfile.OpIfIcmplt,
		classfile.OpIfIcmpge, classfile.OpIfIcmpgt, classfile.OpIfIcmple:
		v2, err := f.popInt()
		if err != nil {
			return Result{}, err
		}
		v1, err := f.popInt()
		if err != nil {
			return Result{}, err
		}
		f.branchIf(in, intCondition(op, v1, v2))

	case classfile.OpIfAcmpeq, classfile.OpIfAcmpne:
		v2, err := f.popRef()
		if err != nil {
			return Result{}, err
		}
		v1, err := f.popRef()
		if err != nil {
			return Result{}, err
		}
		eq := sameRef(v1, v2)
		f.branchIf(in, eq == (op == classfile.OpIfAcmpeq))

	case classfile.OpIfnull, classfile.OpIfnonnull:
		v, err := f.popRef()
		if err != nil {
			return Result{}, err
		}
		f.branchIf(in, v.IsNull() == (op == classfile.OpIfnull))

	case classfile.OpGoto, classfile.OpGotoW:
		f.branchIf(in, true)

	case classfile.OpTableswitch:
		key, err := f.popInt()
		if err != nil {
			return Result{}, err
		}
		imm := in.Imm.(classfile.TableSwitchImm)
		offset := imm.Default
		if key >= imm.Low && key <= imm.High {
			offset = imm.Offsets[key-imm.Low]
		}
		f.next = in.Offset + int(offset)

	case classfile.OpLookupswitch:
		key, err := f.popInt()
		if err != nil {
			return Result{}, err
		}
		imm := in.Imm.(classfile.LookupSwitchImm)
		offset := imm.Default
		for _, p := range imm.Pairs {
			if p.Match == key {
				offset = p.Offset
				break
			}
		}
		f.next = in.Offset + int(offset)

	case classfile.OpJsr, classfile.OpJsrW, classfile.OpRet:
		return Result{}, errors.New(errors.PhaseRuntime, errors.KindUnsupported).
			Offset(in.Offset).
			Detail("%s: subroutines are not supported", op).
			Build()

	// --- Return ---
	case classfile.OpIreturn, classfile.OpLreturn, classfile.OpFreturn, classfile.OpDreturn, classfile.OpAreturn:
		return f.executeReturn(op)

	case classfile.OpReturn:
		return Result{Status: StatusFinished}, nil

	// --- Method invocation and field access ---
	case classfile.OpGetstatic:
		return running, f.executeGetstatic(env, in.Imm.(classfile.IndexImm).Index)

	case classfile.OpPutstatic:
		return running, f.executePutstatic(env, in.Imm.(classfile.IndexImm).Index)

	case classfile.OpGetfield:
		return running, f.executeGetfield(in.Imm.(classfile.IndexImm).Index)

	case classfile.OpPutfield:
		return running, f.executePutfield(in.Imm.(classfile.IndexImm).Index)

	case classfile.OpInvokevirtual, classfile.OpInvokespecial, classfile.OpInvokestatic:
		return f.executeInvoke(env, op, in.Imm.(classfile.IndexImm).Index)

	case classfile.OpInvokeinterface:
		return f.executeInvoke(env, op, in.Imm.(classfile.InvokeInterfaceImm).Index)

	case classfile.OpInvokedynamic:
		return running, f.executeInvokedynamic(in.Imm.(classfile.InvokeDynamicImm).Index)

	// --- Objects and arrays ---
	case classfile.OpNew:
		className, err := f.pool().ClassName(in.Imm.(classfile.IndexImm).Index)
		if err != nil {
			return Result{}, err
		}
		obj, err := env.NewObject(className)
		if err != nil {
			return Result{}, err
		}
		return running, f.Push(obj)

	case classfile.OpNewarray:
		atype := in.Imm.(classfile.NewArrayImm).AType
		desc, ok := newArrayDescriptors[atype]
		if !ok {
			return Result{}, errors.InvalidData(errors.PhaseRuntime, in.Offset, "newarray: invalid type code %d", atype)
		}
		return running, f.newArray(desc)

	case classfile.OpAnewarray:
		className, err := f.pool().ClassName(in.Imm.(classfile.IndexImm).Index)
		if err != nil {
			return Result{}, err
		}
		return running, f.newArray(arrayDescriptorOf(className))

	case classfile.OpMultianewarray:
		imm := in.Imm.(classfile.MultiANewArrayImm)
		return running, f.executeMultianewarray(imm.Index, int(imm.Dimensions))

	case classfile.OpArraylength:
		arr, err := f.popArray()
		if err != nil {
			return Result{}, err
		}
		return running, f.Push(IntValue(int32(len(arr.Elements))))

	case classfile.OpAthrow:
		ref, err := f.popRef()
		if err != nil {
			return Result{}, err
		}
		if ref.IsNull() {
			return Result{}, NewJavaException(NullPointerException)
		}
		obj, ok := ref.Ref.(*JObject)
		if !ok {
			return Result{}, errors.TypeMismatch(in.Offset, "throwable", runtimeClass(ref))
		}
		return Result{}, &JavaException{Object: obj}

	case classfile.OpCheckcast:
		className, err := f.pool().ClassName(in.Imm.(classfile.IndexImm).Index)
		if err != nil {
			return Result{}, err
		}
		v, err := f.Peek(0)
		if err != nil {
			return Result{}, err
		}
		if !v.IsReference() {
			return Result{}, errors.TypeMismatch(in.Offset, "reference", v.Type.String())
		}
		if !v.IsNull() {
			ok, err := env.InstanceOf(v, className)
			if err != nil {
				return Result{}, err
			}
			if !ok {
				return Result{}, NewJavaExceptionf(ClassCastException, "%s cannot be cast to %s", runtimeClass(v), className)
			}
		}

	case classfile.OpInstanceof:
		className, err := f.pool().ClassName(in.Imm.(classfile.IndexImm).Index)
		if err != nil {
			return Result{}, err
		}
		v, err := f.popRef()
		if err != nil {
			return Result{}, err
		}
		var result int32
		if !v.IsNull() {
			ok, err := env.InstanceOf(v, className)
			if err != nil {
				return Result{}, err
			}
			if ok {
				result = 1
			}
		}
		return running, f.Push(IntValue(result))

	case classfile.OpMonitorenter, classfile.OpMonitorexit:
		// single-threaded: only the null check is observable
		v, err := f.popRef()
		if err != nil {
			return Result{}, err
		}
		if v.IsNull() {
			return Result{}, NewJavaException(NullPointerException)
		}

	default:
		return Result{}, errors.New(errors.PhaseRuntime, errors.KindUnhandledOpcode).
			Offset(in.Offset).
			Value(uint8(op)).
			Build()
	}

	return running, nil
}

func (f *Frame) executeLocal(in *classfile.Instruction, lo localOp) error {
	index := lo.index
	if index < 0 {
		index = int(in.Imm.(classfile.LocalImm).Index)
	}
	if !lo.store {
		v, err := f.localType(index, lo.typ)
		if err != nil {
			return err
		}
		return f.Push(v)
	}

	v, err := f.Pop()
	if err != nil {
		return err
	}
	ok := v.Type == lo.typ
	if lo.typ == TypeRef {
		ok = v.IsReference()
	}
	if !ok {
		return errors.TypeMismatch(in.Offset, lo.typ.String(), v.Type.String())
	}
	return f.SetLocal(index, v)
}

func (f *Frame) executeStack(op classfile.Opcode) error {
	// category 1 values take one slot, long and double (category 2) two
	cat1 := func(vs ...Value) error {
		for _, v := range vs {
			if v.Size() != 1 {
				return errors.TypeMismatch(f.instrPC, "category 1 value", v.Type.String())
			}
		}
		return nil
	}
	push := func(vs ...Value) error {
		for _, v := range vs {
			if err := f.Push(v); err != nil {
				return err
			}
		}
		return nil
	}

	v1, err := f.Pop()
	if err != nil {
		return err
	}

	switch op {
	case classfile.OpPop:
		return cat1(v1)

	case classfile.OpDup:
		if err := cat1(v1); err != nil {
			return err
		}
		return push(v1, v1)
	}

	if op == classfile.OpPop2 || op == classfile.OpDup2 {
		if v1.Size() == 2 {
			if op == classfile.OpPop2 {
				return nil
			}
			return push(v1, v1)
		}
		v2, err := f.Pop()
		if err != nil {
			return err
		}
		if err := cat1(v2); err != nil {
			return err
		}
		if op == classfile.OpPop2 {
			return nil
		}
		return push(v2, v1, v2, v1)
	}

	v2, err := f.Pop()
	if err != nil {
		return err
	}

	switch op {
	case classfile.OpSwap:
		if err := cat1(v1, v2); err != nil {
			return err
		}
		return push(v1, v2)

	case classfile.OpDupX1:
		if err := cat1(v1, v2); err != nil {
			return err
		}
		return push(v1, v2, v1)

	case classfile.OpDupX2:
		if err := cat1(v1); err != nil {
			return err
		}
		if v2.Size() == 2 {
			return push(v1, v2, v1)
		}
		v3, err := f.Pop()
		if err != nil {
			return err
		}
		if err := cat1(v3); err != nil {
			return err
		}
		return push(v1, v3, v2, v1)

	case classfile.OpDup2X1:
		if v1.Size() == 2 {
			if err := cat1(v2); err != nil {
				return err
			}
			return push(v1, v2, v1)
		}
		v3, err := f.Pop()
		if err != nil {
			return err
		}
		if err := cat1(v2, v3); err != nil {
			return err
		}
		return push(v2, v1, v3, v2, v1)

	case classfile.OpDup2X2:
		if v1.Size() == 2 {
			if v2.Size() == 2 {
				return push(v1, v2, v1)
			}
			v3, err := f.Pop()
			if err != nil {
				return err
			}
			if err := cat1(v3); err != nil {
				return err
			}
			return push(v1, v3, v2, v1)
		}
		if err := cat1(v2); err != nil {
			return err
		}
		v3, err := f.Pop()
		if err != nil {
			return err
		}
		if v3.Size() == 2 {
			return push(v2, v1, v3, v2, v1)
		}
		v4, err := f.Pop()
		if err != nil {
			return err
		}
		if err := cat1(v4); err != nil {
			return err
		}
		return push(v2, v1, v4, v3, v2, v1)
	}
	return nil
}

func (f *Frame) intBinop(fn func(a, b int32) int32) error {
	v2, err := f.popInt()
	if err != nil {
		return err
	}
	v1, err := f.popInt()
	if err != nil {
		return err
	}
	return f.Push(IntValue(fn(v1, v2)))
}

func (f *Frame) longBinop(fn func(a, b int64) int64) error {
	v2, err := f.popLong()
	if err != nil {
		return err
	}
	v1, err := f.popLong()
	if err != nil {
		return err
	}
	return f.Push(LongValue(fn(v1, v2)))
}

func (f *Frame) floatBinop(fn func(a, b float32) float32) error {
	v2, err := f.popFloat()
	if err != nil {
		return err
	}
	v1, err := f.popFloat()
	if err != nil {
		return err
	}
	return f.Push(FloatValue(fn(v1, v2)))
}

func (f *Frame) doubleBinop(fn func(a, b float64) float64) error {
	v2, err := f.popDouble()
	if err != nil {
		return err
	}
	v1, err := f.popDouble()
	if err != nil {
		return err
	}
	return f.Push(DoubleValue(fn(v1, v2)))
}

// executeLongShift pops an int shift distance and a long.
func (f *Frame) executeLongShift(op classfile.Opcode) error {
	s, err := f.popInt()
	if err != nil {
		return err
	}
	v, err := f.popLong()
	if err != nil {
		return err
	}
	n := uint32(s) & 0x3f
	switch op {
	case classfile.OpLshl:
		v <<= n
	case classfile.OpLshr:
		v >>= n
	default:
		v = int64(uint64(v) >> n)
	}
	return f.Push(LongValue(v))
}

func (f *Frame) executeConversion(op classfile.Opcode) error {
	var from ValueType
	switch op {
	case classfile.OpI2l, classfile.OpI2f, classfile.OpI2d, classfile.OpI2b, classfile.OpI2c, classfile.OpI2s:
		from = TypeInt
	case classfile.OpL2i, classfile.OpL2f, classfile.OpL2d:
		from = TypeLong
	case classfile.OpF2i, classfile.OpF2l, classfile.OpF2d:
		from = TypeFloat
	default:
		from = TypeDouble
	}
	v, err := f.popType(from)
	if err != nil {
		return err
	}

	var out Value
	switch op {
	case classfile.OpI2l:
		out = LongValue(int64(v.Int))
	case classfile.OpI2f:
		out = FloatValue(float32(v.Int))
	case classfile.OpI2d:
		out = DoubleValue(float64(v.Int))
	case classfile.OpI2b:
		out = IntValue(int32(int8(v.Int)))
	case classfile.OpI2c:
		out = IntValue(int32(uint16(v.Int)))
	case classfile.OpI2s:
		out = IntValue(int32(int16(v.Int)))
	case classfile.OpL2i:
		out = IntValue(int32(v.Long))
	case classfile.OpL2f:
		out = FloatValue(float32(v.Long))
	case classfile.OpL2d:
		out = DoubleValue(float64(v.Long))
	case classfile.OpF2i:
		out = IntValue(toInt32(float64(v.Float)))
	case classfile.OpF2l:
		out = LongValue(toInt64(float64(v.Float)))
	case classfile.OpF2d:
		out = DoubleValue(float64(v.Float))
	case classfile.OpD2i:
		out = IntValue(toInt32(v.Double))
	case classfile.OpD2l:
		out = LongValue(toInt64(v.Double))
	case classfile.OpD2f:
		out = FloatValue(float32(v.Double))
	}
	return f.Push(out)
}

// toInt32 converts with Java's saturating semantics; NaN becomes 0.
func toInt32(d float64) int32 {
	switch {
	case math.IsNaN(d):
		return 0
	case d >= math.MaxInt32:
		return math.MaxInt32
	case d <= math.MinInt32:
		return math.MinInt32
	}
	return int32(d)
}

func toInt64(d float64) int64 {
	switch {
	case math.IsNaN(d):
		return 0
	case d >= math.MaxInt64:
		return math.MaxInt64
	case d <= math.MinInt64:
		return math.MinInt64
	}
	return int64(d)
}

func compare[T int64 | int32](a, b T) int32 {
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	}
	return 0
}

// compareFloating implements fcmp/dcmp; nanGreater selects the g variant.
func compareFloating(a, b float64, nanGreater bool) int32 {
	if math.IsNaN(a) || math.IsNaN(b) {
		if nanGreater {
			return 1
		}
		return -1
	}
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	}
	return 0
}

func intCondition(op classfile.Opcode, a, b int32) bool {
	switch op {
	case classfile.OpIfeq, classfile.OpIfIcmpeq:
		return a == b
	case classfile.OpIfne, classfile.OpIfIcmpne:
		return a != b
	case classfile.OpIflt, classfile.OpIfIcmplt:
		return a < b
	case classfile.OpIfge, classfile.OpIfIcmpge:
		return a >= b
	case classfile.OpIfgt, classfile.OpIfIcmpgt:
		return a > b
	}
	return a <= b
}

// branchIf moves to the instruction's branch target when cond holds.
func (f *Frame) branchIf(in *classfile.Instruction, cond bool) {
	if !cond {
		return
	}
	if target, ok := in.BranchTarget(); ok {
		f.next = target
	}
}

// sameRef implements reference equality.
func sameRef(a, b Value) bool {
	if a.IsNull() || b.IsNull() {
		return a.IsNull() && b.IsNull()
	}
	return a.Ref == b.Ref
}

func (f *Frame) executeReturn(op classfile.Opcode) (Result, error) {
	var v Value
	var err error
	switch op {
	case classfile.OpIreturn:
		v, err = f.popType(TypeInt)
	case classfile.OpLreturn:
		v, err = f.popType(TypeLong)
	case classfile.OpFreturn:
		v, err = f.popType(TypeFloat)
	case classfile.OpDreturn:
		v, err = f.popType(TypeDouble)
	default:
		v, err = f.popRef()
	}
	if err != nil {
		return Result{}, err
	}
	return Result{Status: StatusFinished, Return: v, HasReturn: true}, nil
}

// executeLdc handles ldc, ldc_w and ldc2_w.
func (f *Frame) executeLdc(op classfile.Opcode, index uint16) error {
	c, err := f.pool().Get(index)
	if err != nil {
		return err
	}

	wide := c.Tag() == classfile.TagLong || c.Tag() == classfile.TagDouble
	if wide != (op == classfile.OpLdc2W) {
		return errors.New(errors.PhaseRuntime, errors.KindInvalidIndex).
			Offset(f.instrPC).
			Value(index).
			Detail("%s cannot load a %s constant", op, c.Tag()).
			Build()
	}

	switch c := c.(type) {
	case *classfile.ConstantInteger:
		return f.Push(IntValue(c.Value))
	case *classfile.ConstantFloat:
		return f.Push(FloatValue(c.Value))
	case *classfile.ConstantLong:
		return f.Push(LongValue(c.Value))
	case *classfile.ConstantDouble:
		return f.Push(DoubleValue(c.Value))
	case *classfile.ConstantString:
		s, err := f.pool().Utf8(c.StringIndex)
		if err != nil {
			return err
		}
		return f.Push(RefValue(s))
	case *classfile.ConstantClass:
		name, err := f.pool().Utf8(c.NameIndex)
		if err != nil {
			return err
		}
		return f.Push(RefValue(&JClass{Name: name}))
	}
	return errors.New(errors.PhaseRuntime, errors.KindUnsupported).
		Offset(f.instrPC).
		Value(index).
		Detail("ldc of a %s constant", c.Tag()).
		Build()
}

func (f *Frame) executeGetstatic(env Env, index uint16) error {
	ref, err := f.pool().FieldRef(index)
	if err != nil {
		return err
	}
	v, err := env.GetStatic(ref)
	if err != nil {
		return err
	}
	return f.Push(v)
}

func (f *Frame) executePutstatic(env Env, index uint16) error {
	ref, err := f.pool().FieldRef(index)
	if err != nil {
		return err
	}
	v, err := f.popValueOf(typeOfField(ref.Descriptor))
	if err != nil {
		return err
	}
	return env.PutStatic(ref, v)
}

func (f *Frame) executeGetfield(index uint16) error {
	ref, err := f.pool().FieldRef(index)
	if err != nil {
		return err
	}
	obj, err := f.popObject()
	if err != nil {
		return err
	}
	return f.Push(obj.Field(ref.Name, ref.Descriptor))
}

func (f *Frame) executePutfield(index uint16) error {
	ref, err := f.pool().FieldRef(index)
	if err != nil {
		return err
	}
	v, err := f.popValueOf(typeOfField(ref.Descriptor))
	if err != nil {
		return err
	}
	obj, err := f.popObject()
	if err != nil {
		return err
	}
	obj.Fields[ref.Name] = v
	return nil
}

// typeOfField returns the stack type of a field descriptor; null is a
// reference on the stack.
func typeOfField(descriptor string) ValueType {
	if t := typeOfDescriptor(descriptor); t != TypeNull {
		return t
	}
	return TypeRef
}

// popValueOf is popType, except that TypeRef also accepts null.
func (f *Frame) popValueOf(t ValueType) (Value, error) {
	if t == TypeRef {
		return f.popRef()
	}
	return f.popType(t)
}

func (f *Frame) popObject() (*JObject, error) {
	ref, err := f.popRef()
	if err != nil {
		return nil, err
	}
	if ref.IsNull() {
		return nil, NewJavaException(NullPointerException)
	}
	obj, ok := ref.Ref.(*JObject)
	if !ok {
		return nil, errors.TypeMismatch(f.instrPC, "object", runtimeClass(ref))
	}
	return obj, nil
}

func (f *Frame) popArray() (*JArray, error) {
	ref, err := f.popRef()
	if err != nil {
		return nil, err
	}
	if ref.IsNull() {
		return nil, NewJavaException(NullPointerException)
	}
	arr, ok := ref.Ref.(*JArray)
	if !ok {
		return nil, errors.TypeMismatch(f.instrPC, "array", runtimeClass(ref))
	}
	return arr, nil
}

func (f *Frame) newArray(descriptor string) error {
	n, err := f.popInt()
	if err != nil {
		return err
	}
	if n < 0 {
		return NewJavaExceptionf(NegativeArraySizeException, "%d", n)
	}
	return f.Push(RefValue(NewArray(descriptor, int(n))))
}

func (f *Frame) executeMultianewarray(index uint16, dims int) error {
	desc, err := f.pool().ClassName(index)
	if err != nil {
		return err
	}
	if dims < 1 || dims > len(desc) || desc[:dims] != strings.Repeat("[", dims) {
		return errors.InvalidData(errors.PhaseRuntime, f.instrPC, "multianewarray: %d dimensions for %s", dims, desc)
	}
	counts, err := f.popN(dims)
	if err != nil {
		return err
	}
	lengths := make([]int, dims)
	for i, c := range counts {
		if c.Type != TypeInt {
			return errors.TypeMismatch(f.instrPC, "int", c.Type.String())
		}
		if c.Int < 0 {
			return NewJavaExceptionf(NegativeArraySizeException, "%d", c.Int)
		}
		lengths[i] = int(c.Int)
	}
	return f.Push(RefValue(newMultiArray(desc, lengths)))
}

func newMultiArray(descriptor string, lengths []int) *JArray {
	arr := NewArray(descriptor, lengths[0])
	if len(lengths) > 1 {
		for i := range arr.Elements {
			arr.Elements[i] = RefValue(newMultiArray(descriptor[1:], lengths[1:]))
		}
	}
	return arr
}

func (f *Frame) executeArray(ao arrayOp) error {
	var v Value
	if ao.store {
		var err error
		if v, err = f.popValueOf(ao.typ); err != nil {
			return err
		}
	}
	index, err := f.popInt()
	if err != nil {
		return err
	}
	arr, err := f.popArray()
	if err != nil {
		return err
	}

	comp := arr.ComponentType()
	if strings.IndexByte(ao.components, comp[0]) < 0 {
		return errors.TypeMismatch(f.instrPC, "array of "+ao.components, arr.Type)
	}
	if index < 0 || int(index) >= len(arr.Elements) {
		return NewJavaExceptionf(ArrayIndexOutOfBounds, "Index %d out of bounds for length %d", index, len(arr.Elements))
	}

	if !ao.store {
		return f.Push(arr.Elements[index])
	}
	switch comp {
	case "Z":
		v.Int &= 1
	case "B":
		v.Int = int32(int8(v.Int))
	case "C":
		v.Int = int32(uint16(v.Int))
	case "S":
		v.Int = int32(int16(v.Int))
	}
	arr.Elements[index] = v
	return nil
}
